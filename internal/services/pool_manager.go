package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"prediction-amm/internal/amm"
	"prediction-amm/internal/models"
	"prediction-amm/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MarketStore is the persistence the pool manager runs on.
type MarketStore interface {
	CreateMarket(ctx context.Context, market *models.Market, pool *models.PoolRecord) error
	GetMarket(ctx context.Context, id string) (*models.Market, error)
	ListMarkets(ctx context.Context, status models.MarketStatus, limit, offset int) ([]models.Market, error)
	ListMarketsAfter(ctx context.Context, status models.MarketStatus, afterID string, limit int) ([]models.Market, error)
	GetPool(ctx context.Context, marketID string) (*models.PoolRecord, error)
	GetPosition(ctx context.Context, userID, marketID string) (*models.PositionRecord, error)
	ListPositions(ctx context.Context, marketID string) ([]models.PositionRecord, error)
	ApplyTrade(ctx context.Context, pool *models.PoolRecord, position *models.PositionRecord, trade *models.Trade) error
	UpdateMarketStatus(ctx context.Context, market *models.Market, from models.MarketStatus) error
	ApplySettlement(ctx context.Context, market *models.Market, settlement *models.Settlement) error
	GetSettlement(ctx context.Context, marketID string) (*models.Settlement, error)
}

// BetReceipt is an executed bet and the bettor's position after it.
type BetReceipt struct {
	Result   amm.BetResult
	Position amm.UserPosition
}

// SellReceipt is an executed sale and the seller's position after it.
type SellReceipt struct {
	Result   amm.SellResult
	Position amm.UserPosition
}

// PoolManager owns every market's pool. Reads see the last committed state;
// writes to one market are serialized through the locker and committed with
// the trade in a single store transaction. Each trade is also conditioned on
// the pool version it was priced from, so a writer whose lock lapsed cannot
// overwrite a newer pool.
type PoolManager struct {
	store     MarketStore
	engine    *amm.Engine
	locker    MarketLocker
	publisher EventPublisher
	archive   SettlementArchive
	now       func() time.Time
}

// PoolManagerOption customizes a PoolManager.
type PoolManagerOption func(*PoolManager)

// WithEventPublisher publishes a MarketEvent after each committed change.
func WithEventPublisher(p EventPublisher) PoolManagerOption {
	return func(pm *PoolManager) { pm.publisher = p }
}

// WithSettlementArchive copies each settlement to an archive after commit.
func WithSettlementArchive(a SettlementArchive) PoolManagerOption {
	return func(pm *PoolManager) { pm.archive = a }
}

func NewPoolManager(store MarketStore, engine *amm.Engine, locker MarketLocker, opts ...PoolManagerOption) *PoolManager {
	pm := &PoolManager{
		store:  store,
		engine: engine,
		locker: locker,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(pm)
	}
	return pm
}

// Engine returns the AMM engine the manager trades with.
func (pm *PoolManager) Engine() *amm.Engine {
	return pm.engine
}

func (pm *PoolManager) withMarketLock(ctx context.Context, marketID string, fn func() error) error {
	unlock, err := pm.locker.Lock(ctx, marketID)
	if err != nil {
		return fmt.Errorf("failed to lock market %s: %w", marketID, err)
	}
	defer unlock()
	return fn()
}

func (pm *PoolManager) loadMarket(ctx context.Context, marketID string) (*models.Market, amm.PoolState, error) {
	market, pool, _, err := pm.loadMarketVersion(ctx, marketID)
	return market, pool, err
}

// loadMarketVersion also returns the stored pool version a trade must be
// committed against.
func (pm *PoolManager) loadMarketVersion(ctx context.Context, marketID string) (*models.Market, amm.PoolState, int64, error) {
	market, err := pm.store.GetMarket(ctx, marketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, amm.PoolState{}, 0, fmt.Errorf("%w: %s", ErrMarketNotFound, marketID)
		}
		return nil, amm.PoolState{}, 0, fmt.Errorf("failed to get market: %w", err)
	}
	rec, err := pm.store.GetPool(ctx, marketID)
	if err != nil {
		return nil, amm.PoolState{}, 0, fmt.Errorf("failed to get pool for market %s: %w", marketID, err)
	}
	pool, err := rec.ToPoolState()
	if err != nil {
		return nil, amm.PoolState{}, 0, err
	}
	return market, pool, rec.Version, nil
}

func (pm *PoolManager) loadPosition(ctx context.Context, userID, marketID string) (*models.PositionRecord, amm.UserPosition, error) {
	rec, err := pm.store.GetPosition(ctx, userID, marketID)
	if errors.Is(err, repository.ErrNotFound) {
		pos := amm.UserPosition{UserID: userID, MarketID: marketID}
		return models.NewPositionRecord(pos), pos, nil
	}
	if err != nil {
		return nil, amm.UserPosition{}, fmt.Errorf("failed to get position: %w", err)
	}
	pos, err := rec.ToUserPosition()
	if err != nil {
		return nil, amm.UserPosition{}, err
	}
	return rec, pos, nil
}

// CreateMarket opens a new active market with a fresh 50/50 pool. A blank id
// is replaced with a generated UUID.
func (pm *PoolManager) CreateMarket(ctx context.Context, req models.CreateMarketRequest) (*models.Market, amm.PoolState, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	if strings.TrimSpace(req.Question) == "" {
		return nil, amm.PoolState{}, fmt.Errorf("%w: question is required", amm.ErrInvalidArgument)
	}

	var (
		market *models.Market
		pool   amm.PoolState
	)
	err := pm.withMarketLock(ctx, id, func() error {
		var err error
		pool, err = pm.engine.CreatePool(amm.PoolConfig{
			MarketID:         id,
			InitialLiquidity: req.InitialLiquidity,
			VirtualLiquidity: req.VirtualLiquidity,
		})
		if err != nil {
			return err
		}

		market = &models.Market{
			ID:          id,
			Question:    req.Question,
			Description: req.Description,
			Category:    req.Category,
			Status:      models.MarketStatusActive,
			CreatedBy:   req.CreatedBy,
			CreatedAt:   pool.CreatedAt,
			UpdatedAt:   pool.CreatedAt,
		}
		if err := pm.store.CreateMarket(ctx, market, models.NewPoolRecord(pool)); err != nil {
			if errors.Is(err, repository.ErrAlreadyExists) {
				return fmt.Errorf("%w: %s", ErrMarketExists, id)
			}
			return fmt.Errorf("failed to create market: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, amm.PoolState{}, err
	}

	log.Printf("[PoolManager] Market %s created: liquidity=%s virtual=%s", id, req.InitialLiquidity, pool.VirtualLiquidity)
	prices := pm.engine.GetPrices(pool)
	pm.publish(ctx, MarketEvent{Type: EventMarketCreated, MarketID: id, Status: market.Status, Prices: &prices, At: pool.CreatedAt})
	return market, pool, nil
}

// GetMarket returns the market row
func (pm *PoolManager) GetMarket(ctx context.Context, marketID string) (*models.Market, error) {
	market, _, err := pm.loadMarket(ctx, marketID)
	return market, err
}

// ListMarkets returns markets, optionally filtered by status
func (pm *PoolManager) ListMarkets(ctx context.Context, status models.MarketStatus, limit, offset int) ([]models.Market, error) {
	markets, err := pm.store.ListMarkets(ctx, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list markets: %w", err)
	}
	return markets, nil
}

// ListMarketsAfter pages markets with the given status in id order, starting
// after afterID. Pass "" for the first page.
func (pm *PoolManager) ListMarketsAfter(ctx context.Context, status models.MarketStatus, afterID string, limit int) ([]models.Market, error) {
	markets, err := pm.store.ListMarketsAfter(ctx, status, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list markets: %w", err)
	}
	return markets, nil
}

// GetPool returns a snapshot of the market's pool
func (pm *PoolManager) GetPool(ctx context.Context, marketID string) (amm.PoolState, error) {
	_, pool, err := pm.loadMarket(ctx, marketID)
	return pool, err
}

// GetPrices returns the market's current display prices
func (pm *PoolManager) GetPrices(ctx context.Context, marketID string) (amm.Prices, error) {
	pool, err := pm.GetPool(ctx, marketID)
	if err != nil {
		return amm.Prices{}, err
	}
	return pm.engine.GetPrices(pool), nil
}

// GetPosition returns a user's holdings; a user who never traded holds an
// empty position.
func (pm *PoolManager) GetPosition(ctx context.Context, marketID, userID string) (amm.UserPosition, error) {
	if _, _, err := pm.loadMarket(ctx, marketID); err != nil {
		return amm.UserPosition{}, err
	}
	_, pos, err := pm.loadPosition(ctx, userID, marketID)
	return pos, err
}

// GetPositionValue returns a user's holdings marked to the current prices
func (pm *PoolManager) GetPositionValue(ctx context.Context, marketID, userID string) (models.PositionView, error) {
	_, pool, err := pm.loadMarket(ctx, marketID)
	if err != nil {
		return models.PositionView{}, err
	}
	_, pos, err := pm.loadPosition(ctx, userID, marketID)
	if err != nil {
		return models.PositionView{}, err
	}
	return pm.positionView(pool, pos), nil
}

func (pm *PoolManager) positionView(pool amm.PoolState, pos amm.UserPosition) models.PositionView {
	return models.PositionView{
		MarketID:       pos.MarketID,
		UserID:         pos.UserID,
		YesShares:      pos.YesShares,
		NoShares:       pos.NoShares,
		TotalCostBasis: pos.TotalCostBasis,
		Value:          pm.engine.GetPositionValue(pos.YesShares, pos.NoShares, pool),
	}
}

// QuoteBet previews a bet against the current pool. A bet the engine would
// reject yields a nil quote and no error.
func (pm *PoolManager) QuoteBet(ctx context.Context, marketID string, usdcAmount amm.Amount, betOn amm.Outcome) (*amm.BetQuote, error) {
	market, pool, err := pm.loadMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if !market.IsTradable() {
		return nil, nil
	}
	return pm.engine.QuoteBet(pool, usdcAmount, betOn), nil
}

// PlaceBet executes a Mint & Swap bet for userID
func (pm *PoolManager) PlaceBet(ctx context.Context, marketID, userID string, usdcAmount amm.Amount, betOn amm.Outcome) (*BetReceipt, error) {
	var (
		receipt *BetReceipt
		event   MarketEvent
	)
	err := pm.withMarketLock(ctx, marketID, func() error {
		market, pool, version, err := pm.loadTradableMarket(ctx, marketID)
		if err != nil {
			return err
		}
		res, err := pm.engine.PlaceBet(pool, usdcAmount, betOn)
		if err != nil {
			return err
		}
		receipt, event, err = pm.commitBet(ctx, market, version, userID, models.TradeTypeBet, res)
		return err
	})
	if err != nil {
		return nil, err
	}
	pm.publish(ctx, event)
	return receipt, nil
}

// PlaceSafeModeBet bets a share of the user's vault yield. A stake that
// rounds to nothing returns a nil receipt and no error.
func (pm *PoolManager) PlaceSafeModeBet(ctx context.Context, marketID, userID string, principalBalance, accruedYield amm.Amount, yieldPercent float64, betOn amm.Outcome) (*BetReceipt, error) {
	var (
		receipt *BetReceipt
		event   MarketEvent
	)
	err := pm.withMarketLock(ctx, marketID, func() error {
		market, pool, version, err := pm.loadTradableMarket(ctx, marketID)
		if err != nil {
			return err
		}
		res, err := pm.engine.PlaceSafeModeBet(pool, principalBalance, accruedYield, yieldPercent, betOn)
		if err != nil || res == nil {
			return err
		}
		receipt, event, err = pm.commitBet(ctx, market, version, userID, models.TradeTypeSafeBet, *res)
		return err
	})
	if err != nil {
		return nil, err
	}
	if receipt != nil {
		pm.publish(ctx, event)
	}
	return receipt, nil
}

func (pm *PoolManager) loadTradableMarket(ctx context.Context, marketID string) (*models.Market, amm.PoolState, int64, error) {
	market, pool, version, err := pm.loadMarketVersion(ctx, marketID)
	if err != nil {
		return nil, amm.PoolState{}, 0, err
	}
	if !market.IsTradable() {
		return nil, amm.PoolState{}, 0, fmt.Errorf("%w: market %s is %s", ErrMarketNotActive, marketID, market.Status)
	}
	return market, pool, version, nil
}

// applyTrade commits a trade priced from the given pool version.
func (pm *PoolManager) applyTrade(ctx context.Context, pool amm.PoolState, version int64, position *models.PositionRecord, trade *models.Trade) error {
	rec := models.NewPoolRecord(pool)
	rec.Version = version
	err := pm.store.ApplyTrade(ctx, rec, position, trade)
	switch {
	case errors.Is(err, repository.ErrStalePool):
		log.Printf("[PoolManager] Rejected stale write to market %s: %v", pool.MarketID, err)
		return fmt.Errorf("%w: %v", ErrConcurrentUpdate, err)
	case errors.Is(err, repository.ErrStatusConflict):
		return fmt.Errorf("%w: %v", ErrMarketNotActive, err)
	}
	return err
}

func (pm *PoolManager) commitBet(ctx context.Context, market *models.Market, version int64, userID string, tradeType models.TradeType, res amm.BetResult) (*BetReceipt, MarketEvent, error) {
	rec, pos, err := pm.loadPosition(ctx, userID, market.ID)
	if err != nil {
		return nil, MarketEvent{}, err
	}
	if res.Outcome == amm.OutcomeYes {
		pos.YesShares, err = pos.YesShares.CheckedAdd(res.TotalShares)
	} else {
		pos.NoShares, err = pos.NoShares.CheckedAdd(res.TotalShares)
	}
	if err != nil {
		return nil, MarketEvent{}, err
	}
	if pos.TotalCostBasis, err = pos.TotalCostBasis.CheckedAdd(res.USDCAmount); err != nil {
		return nil, MarketEvent{}, err
	}
	rec.SetPosition(pos)

	prices := pm.engine.GetPrices(res.NewPool)
	trade := &models.Trade{
		MarketID:   market.ID,
		UserID:     userID,
		Type:       tradeType,
		Outcome:    string(res.Outcome),
		USDCAmount: res.USDCAmount.Units(),
		Shares:     res.TotalShares.Units(),
		Fee:        decimal.Zero,
		Price:      decimal.NewFromFloat(res.EffectivePrice).Round(8),
		YesPrice:   decimal.NewFromFloat(prices.YesPrice).Round(8),
		CreatedAt:  res.NewPool.UpdatedAt,
	}
	if err := pm.applyTrade(ctx, res.NewPool, version, rec, trade); err != nil {
		return nil, MarketEvent{}, fmt.Errorf("failed to apply bet: %w", err)
	}

	log.Printf("[PoolManager] %s market=%s user=%s outcome=%s usdc=%s shares=%s price=%.6f yes=%.4f",
		tradeType, market.ID, userID, res.Outcome, res.USDCAmount, res.TotalShares, res.EffectivePrice, prices.YesPrice)
	event := MarketEvent{
		Type:      EventTrade,
		MarketID:  market.ID,
		Status:    market.Status,
		Prices:    &prices,
		TradeType: tradeType,
		Outcome:   res.Outcome,
		USDC:      res.USDCAmount,
		Shares:    res.TotalShares,
		At:        res.NewPool.UpdatedAt,
	}
	return &BetReceipt{Result: res, Position: pos}, event, nil
}

// SellPosition sells shares the user holds back to the pool for USDC
func (pm *PoolManager) SellPosition(ctx context.Context, marketID, userID string, shares amm.Amount, outcome amm.Outcome) (*SellReceipt, error) {
	var (
		receipt *SellReceipt
		event   MarketEvent
	)
	err := pm.withMarketLock(ctx, marketID, func() error {
		market, pool, version, err := pm.loadTradableMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if !outcome.Valid() {
			return fmt.Errorf("%w: unknown outcome %q", amm.ErrInvalidArgument, outcome)
		}
		rec, pos, err := pm.loadPosition(ctx, userID, marketID)
		if err != nil {
			return err
		}
		if held := pos.Shares(outcome); held < shares {
			return fmt.Errorf("%w: user %s holds %s %s, cannot sell %s", ErrInsufficientShares, userID, held, outcome, shares)
		}

		res, err := pm.engine.SellPosition(pool, shares, outcome)
		if err != nil {
			return err
		}

		if outcome == amm.OutcomeYes {
			pos.YesShares -= shares
		} else {
			pos.NoShares -= shares
		}
		if pos.TotalCostBasis > res.USDCOut {
			pos.TotalCostBasis -= res.USDCOut
		} else {
			pos.TotalCostBasis = 0
		}
		rec.SetPosition(pos)

		prices := pm.engine.GetPrices(res.NewPool)
		trade := &models.Trade{
			MarketID:   marketID,
			UserID:     userID,
			Type:       models.TradeTypeSell,
			Outcome:    string(outcome),
			USDCAmount: res.USDCOut.Units(),
			Shares:     shares.Units(),
			Fee:        res.Fee.Units(),
			Price:      decimal.NewFromFloat(res.EffectivePrice).Round(8),
			YesPrice:   decimal.NewFromFloat(prices.YesPrice).Round(8),
			CreatedAt:  res.NewPool.UpdatedAt,
		}
		if err := pm.applyTrade(ctx, res.NewPool, version, rec, trade); err != nil {
			return fmt.Errorf("failed to apply sale: %w", err)
		}

		log.Printf("[PoolManager] SELL market=%s user=%s outcome=%s shares=%s usdc=%s fee=%s",
			marketID, userID, outcome, shares, res.USDCOut, res.Fee)
		event = MarketEvent{
			Type:      EventTrade,
			MarketID:  marketID,
			Status:    market.Status,
			Prices:    &prices,
			TradeType: models.TradeTypeSell,
			Outcome:   outcome,
			USDC:      res.USDCOut,
			Shares:    shares,
			At:        res.NewPool.UpdatedAt,
		}
		receipt = &SellReceipt{Result: res, Position: pos}
		return nil
	})
	if err != nil {
		return nil, err
	}
	pm.publish(ctx, event)
	return receipt, nil
}

func (pm *PoolManager) loadPositions(ctx context.Context, marketID string) ([]amm.UserPosition, error) {
	recs, err := pm.store.ListPositions(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	positions := make([]amm.UserPosition, 0, len(recs))
	for i := range recs {
		pos, err := recs[i].ToUserPosition()
		if err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

func (pm *PoolManager) transition(ctx context.Context, market *models.Market, next models.MarketStatus) error {
	from := market.Status
	if !from.CanTransitionTo(next) {
		return fmt.Errorf("%w: market %s is %s, cannot become %s", ErrInvalidTransition, market.ID, from, next)
	}
	market.Status = next
	if err := pm.store.UpdateMarketStatus(ctx, market, from); err != nil {
		market.Status = from
		if errors.Is(err, repository.ErrStatusConflict) {
			return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
		}
		return err
	}
	return nil
}

// ResolveMarket records the winning outcome. The pool must cover every
// winning share; otherwise the market stays active and
// amm.ErrSolvencyCheckFailed is returned.
func (pm *PoolManager) ResolveMarket(ctx context.Context, marketID string, outcome amm.Outcome, oracleSource string) (*models.Market, error) {
	if !outcome.Valid() {
		return nil, fmt.Errorf("%w: unknown outcome %q", amm.ErrInvalidArgument, outcome)
	}

	var market *models.Market
	err := pm.withMarketLock(ctx, marketID, func() error {
		m, pool, err := pm.loadMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if !m.Status.CanTransitionTo(models.MarketStatusResolved) {
			return fmt.Errorf("%w: market %s is %s", ErrInvalidTransition, marketID, m.Status)
		}

		positions, err := pm.loadPositions(ctx, marketID)
		if err != nil {
			return err
		}
		if err := pm.engine.CheckPoolSolvency(pool, positions, outcome); err != nil {
			log.Printf("[PoolManager] CRITICAL: refusing to resolve market %s: %v", marketID, err)
			return err
		}

		resolvedAt := pm.now()
		m.WinningOutcome = string(outcome)
		m.OracleSource = oracleSource
		m.ResolvedAt = &resolvedAt
		if err := pm.transition(ctx, m, models.MarketStatusResolved); err != nil {
			return err
		}
		market = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[PoolManager] Market %s resolved %s (source=%s)", marketID, outcome, oracleSource)
	pm.publish(ctx, MarketEvent{Type: EventMarketResolved, MarketID: marketID, Status: market.Status, Outcome: outcome, At: *market.ResolvedAt})
	return market, nil
}

// SettleMarket computes and stores every user's payout for a resolved market
func (pm *PoolManager) SettleMarket(ctx context.Context, marketID string) (*models.Settlement, amm.MarketSettlement, error) {
	var (
		rec        *models.Settlement
		settlement amm.MarketSettlement
	)
	err := pm.withMarketLock(ctx, marketID, func() error {
		market, pool, err := pm.loadMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if market.Status == models.MarketStatusActive {
			return fmt.Errorf("%w: %s", ErrMarketNotResolved, marketID)
		}
		if !market.Status.CanTransitionTo(models.MarketStatusSettled) {
			return fmt.Errorf("%w: market %s is %s", ErrInvalidTransition, marketID, market.Status)
		}

		winning, err := amm.ParseOutcome(market.WinningOutcome)
		if err != nil {
			return fmt.Errorf("market %s has no valid winning outcome: %w", marketID, err)
		}
		resolution := amm.MarketResolution{
			MarketID:       marketID,
			WinningOutcome: winning,
			OracleSource:   market.OracleSource,
		}
		if market.ResolvedAt != nil {
			resolution.ResolvedAt = market.ResolvedAt.UTC()
		}

		positions, err := pm.loadPositions(ctx, marketID)
		if err != nil {
			return err
		}
		if err := pm.engine.CheckPoolSolvency(pool, positions, winning); err != nil {
			log.Printf("[PoolManager] CRITICAL: refusing to settle market %s: %v", marketID, err)
			return err
		}
		if settlement, err = pm.engine.CalculateMarketSettlement(positions, resolution); err != nil {
			return fmt.Errorf("failed to calculate settlement: %w", err)
		}

		settledAt := pm.now()
		market.Status = models.MarketStatusSettled
		market.SettledAt = &settledAt
		rec = models.NewSettlement(settlement)
		if err := pm.store.ApplySettlement(ctx, market, rec); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) || errors.Is(err, repository.ErrAlreadyExists) {
				return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
			}
			return fmt.Errorf("failed to store settlement: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, amm.MarketSettlement{}, err
	}

	log.Printf("[PoolManager] Market %s settled: users=%d gross=%s fee=%s proof=%s",
		marketID, len(settlement.Users), settlement.TotalGrossPayout, settlement.ProtocolFeeCollected, settlement.Proof)
	if pm.archive != nil {
		if err := pm.archive.ArchiveSettlement(ctx, rec); err != nil {
			log.Printf("[PoolManager] Failed to archive settlement for market %s: %v", marketID, err)
		}
	}
	pm.publish(ctx, MarketEvent{Type: EventMarketSettled, MarketID: marketID, Status: models.MarketStatusSettled, Outcome: settlement.WinningOutcome, At: pm.now()})
	return rec, settlement, nil
}

// GetSettlement returns the stored settlement of a market
func (pm *PoolManager) GetSettlement(ctx context.Context, marketID string) (*models.Settlement, error) {
	s, err := pm.store.GetSettlement(ctx, marketID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSettlementNotFound, marketID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	return s, nil
}

// CancelMarket stops trading on an active market
func (pm *PoolManager) CancelMarket(ctx context.Context, marketID string) (*models.Market, error) {
	var market *models.Market
	err := pm.withMarketLock(ctx, marketID, func() error {
		m, _, err := pm.loadMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if err := pm.transition(ctx, m, models.MarketStatusCancelled); err != nil {
			return err
		}
		market = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[PoolManager] Market %s cancelled", marketID)
	pm.publish(ctx, MarketEvent{Type: EventMarketCancelled, MarketID: marketID, Status: market.Status, At: pm.now()})
	return market, nil
}
