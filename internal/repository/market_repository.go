package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prediction-amm/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MarketRepository persists markets, pools, positions, trades, settlements
// and price candles.
type MarketRepository struct {
	db *gorm.DB
}

func NewMarketRepository(db *gorm.DB) *MarketRepository {
	return &MarketRepository{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// CreateMarket inserts a market together with its pool
func (r *MarketRepository) CreateMarket(ctx context.Context, market *models.Market, pool *models.PoolRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Market{}).Where("id = ?", market.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("market %s: %w", market.ID, ErrAlreadyExists)
		}
		if err := tx.Create(market).Error; err != nil {
			return fmt.Errorf("failed to create market: %w", err)
		}
		if err := tx.Create(pool).Error; err != nil {
			return fmt.Errorf("failed to create pool: %w", err)
		}
		return nil
	})
}

// GetMarket retrieves a market by ID
func (r *MarketRepository) GetMarket(ctx context.Context, id string) (*models.Market, error) {
	var market models.Market
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&market).Error; err != nil {
		return nil, notFound(err)
	}
	return &market, nil
}

// ListMarkets returns markets newest first, optionally filtered by status
func (r *MarketRepository) ListMarkets(ctx context.Context, status models.MarketStatus, limit, offset int) ([]models.Market, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}

	var markets []models.Market
	if err := query.Find(&markets).Error; err != nil {
		return nil, err
	}
	return markets, nil
}

// ListMarketsAfter returns up to limit markets with the given status and an
// id greater than afterID, in id order. Markets created or moved to another
// status between pages do not shift the rest of the scan.
func (r *MarketRepository) ListMarketsAfter(ctx context.Context, status models.MarketStatus, afterID string, limit int) ([]models.Market, error) {
	var markets []models.Market
	err := r.db.WithContext(ctx).
		Where("status = ? AND id > ?", status, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&markets).Error
	if err != nil {
		return nil, err
	}
	return markets, nil
}

// GetPool retrieves the pool of a market
func (r *MarketRepository) GetPool(ctx context.Context, marketID string) (*models.PoolRecord, error) {
	var pool models.PoolRecord
	if err := r.db.WithContext(ctx).Where("market_id = ?", marketID).First(&pool).Error; err != nil {
		return nil, notFound(err)
	}
	return &pool, nil
}

// GetPosition retrieves a user's position in a market
func (r *MarketRepository) GetPosition(ctx context.Context, userID, marketID string) (*models.PositionRecord, error) {
	var pos models.PositionRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND market_id = ?", userID, marketID).
		First(&pos).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &pos, nil
}

// ListPositions returns every position in a market ordered by user
func (r *MarketRepository) ListPositions(ctx context.Context, marketID string) ([]models.PositionRecord, error) {
	var positions []models.PositionRecord
	err := r.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("user_id ASC").
		Find(&positions).Error
	if err != nil {
		return nil, err
	}
	return positions, nil
}

// ApplyTrade stores the post-trade pool, the trader's position and the trade
// row in one transaction. pool.Version must be the version the trade was
// computed from; the write is rejected with ErrStalePool if the stored pool
// has moved on, or ErrStatusConflict if the market is no longer active. On
// success pool.Version is advanced to the stored version.
func (r *MarketRepository) ApplyTrade(ctx context.Context, pool *models.PoolRecord, position *models.PositionRecord, trade *models.Trade) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PoolRecord{}).
			Where("market_id = ? AND version = ?", pool.MarketID, pool.Version).
			Where("EXISTS (SELECT 1 FROM markets WHERE markets.id = amm_pools.market_id AND markets.status = ?)", models.MarketStatusActive).
			Updates(map[string]interface{}{
				"yes_reserves":     pool.YesReserves,
				"no_reserves":      pool.NoReserves,
				"total_collateral": pool.TotalCollateral,
				"updated_at":       pool.UpdatedAt,
				"version":          gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update pool: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return rejectedTrade(tx, pool)
		}
		if err := tx.Save(position).Error; err != nil {
			return fmt.Errorf("failed to save position: %w", err)
		}
		if err := tx.Create(trade).Error; err != nil {
			return fmt.Errorf("failed to record trade: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	pool.Version++
	return nil
}

// rejectedTrade explains why a conditional pool update matched no row.
func rejectedTrade(tx *gorm.DB, pool *models.PoolRecord) error {
	var current models.PoolRecord
	if err := tx.Select("market_id", "version").Where("market_id = ?", pool.MarketID).First(&current).Error; err != nil {
		return fmt.Errorf("pool %s: %w", pool.MarketID, notFound(err))
	}
	if current.Version != pool.Version {
		return fmt.Errorf("pool %s is at version %d, trade was priced at %d: %w",
			pool.MarketID, current.Version, pool.Version, ErrStalePool)
	}
	return fmt.Errorf("market %s is not active: %w", pool.MarketID, ErrStatusConflict)
}

// UpdateMarketStatus moves a market from one status to another. The update
// only applies while the stored status still equals from.
func (r *MarketRepository) UpdateMarketStatus(ctx context.Context, market *models.Market, from models.MarketStatus) error {
	return updateMarketStatus(r.db.WithContext(ctx), market, from)
}

func updateMarketStatus(tx *gorm.DB, market *models.Market, from models.MarketStatus) error {
	res := tx.Model(&models.Market{}).
		Where("id = ? AND status = ?", market.ID, from).
		Updates(map[string]interface{}{
			"status":          market.Status,
			"winning_outcome": market.WinningOutcome,
			"oracle_source":   market.OracleSource,
			"resolved_at":     market.ResolvedAt,
			"settled_at":      market.SettledAt,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update market status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("market %s is no longer %s: %w", market.ID, from, ErrStatusConflict)
	}
	return nil
}

// ApplySettlement stores a settlement with its payouts and marks the market
// settled in one transaction.
func (r *MarketRepository) ApplySettlement(ctx context.Context, market *models.Market, settlement *models.Settlement) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Settlement{}).Where("market_id = ?", settlement.MarketID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("settlement for market %s: %w", settlement.MarketID, ErrAlreadyExists)
		}
		if err := tx.Create(settlement).Error; err != nil {
			return fmt.Errorf("failed to create settlement: %w", err)
		}
		return updateMarketStatus(tx, market, models.MarketStatusResolved)
	})
}

// GetSettlement retrieves a settlement with its payouts
func (r *MarketRepository) GetSettlement(ctx context.Context, marketID string) (*models.Settlement, error) {
	var s models.Settlement
	err := r.db.WithContext(ctx).
		Preload("Payouts", func(db *gorm.DB) *gorm.DB { return db.Order("user_id ASC") }).
		Where("market_id = ?", marketID).
		First(&s).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// ListTrades returns the most recent trades of a market
func (r *MarketRepository) ListTrades(ctx context.Context, marketID string, limit int) ([]models.Trade, error) {
	var trades []models.Trade
	err := r.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("created_at DESC").
		Limit(limit).
		Find(&trades).Error
	if err != nil {
		return nil, err
	}
	return trades, nil
}

// SumTradeVolume totals the USDC traded in a market during [from, to)
func (r *MarketRepository) SumTradeVolume(ctx context.Context, marketID string, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&models.Trade{}).
		Select("COALESCE(SUM(usdc_amount), 0)").
		Where("market_id = ? AND created_at >= ? AND created_at < ?", marketID, from, to).
		Row().Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum trade volume: %w", err)
	}
	return total, nil
}

// RecordPriceSample folds a price observation into the candle starting at
// bucket, creating the candle on first sample.
func (r *MarketRepository) RecordPriceSample(ctx context.Context, marketID string, bucket time.Time, price, volume decimal.Decimal) (*models.PriceCandle, error) {
	var candle models.PriceCandle
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("market_id = ? AND timestamp = ?", marketID, bucket).
			First(&candle).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			candle = models.PriceCandle{
				MarketID:  marketID,
				Timestamp: bucket,
				Open:      price,
				High:      price,
				Low:       price,
				Close:     price,
				Volume:    volume,
			}
			return tx.Create(&candle).Error
		}
		if err != nil {
			return err
		}

		candle.High = decimal.Max(candle.High, price)
		candle.Low = decimal.Min(candle.Low, price)
		candle.Close = price
		candle.Volume = volume
		return tx.Model(&candle).Updates(map[string]interface{}{
			"high":   candle.High,
			"low":    candle.Low,
			"close":  candle.Close,
			"volume": candle.Volume,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record price sample: %w", err)
	}
	return &candle, nil
}

// GetPriceHistory returns candles since the given time, oldest first
func (r *MarketRepository) GetPriceHistory(ctx context.Context, marketID string, since time.Time, limit int) ([]models.PriceCandle, error) {
	query := r.db.WithContext(ctx).
		Where("market_id = ? AND timestamp >= ?", marketID, since).
		Order("timestamp ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var candles []models.PriceCandle
	if err := query.Find(&candles).Error; err != nil {
		return nil, err
	}
	return candles, nil
}
