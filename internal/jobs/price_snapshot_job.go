package jobs

import (
	"context"
	"log"
	"time"

	"prediction-amm/internal/models"
	"prediction-amm/internal/services"

	"github.com/shopspring/decimal"
)

const marketPageSize = 100

// SnapshotStore persists price candles.
type SnapshotStore interface {
	SumTradeVolume(ctx context.Context, marketID string, from, to time.Time) (decimal.Decimal, error)
	RecordPriceSample(ctx context.Context, marketID string, bucket time.Time, price, volume decimal.Decimal) (*models.PriceCandle, error)
}

// PriceSnapshotJob samples the YES price of every active market on a fixed
// interval and folds it into a candle of the same width.
type PriceSnapshotJob struct {
	pools    *services.PoolManager
	store    SnapshotStore
	interval time.Duration
	now      func() time.Time
}

// NewPriceSnapshotJob creates a new price snapshot job
func NewPriceSnapshotJob(pools *services.PoolManager, store SnapshotStore, interval time.Duration) *PriceSnapshotJob {
	return &PriceSnapshotJob{
		pools:    pools,
		store:    store,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run snapshots immediately and then every interval until ctx is done
func (j *PriceSnapshotJob) Run(ctx context.Context) error {
	log.Printf("[PriceSnapshotJob] Starting price snapshot job (interval: %v)", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		if _, err := j.Snapshot(ctx); err != nil {
			log.Printf("[PriceSnapshotJob] Error listing markets: %v", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			log.Println("[PriceSnapshotJob] Stopping price snapshot job")
			return nil
		}
	}
}

// Snapshot records one sample per active market and returns how many were
// recorded. A failing market is logged and skipped. Markets are paged by id,
// so markets opened or closed mid-scan never shift the others out of a page.
func (j *PriceSnapshotJob) Snapshot(ctx context.Context) (int, error) {
	bucket := j.now().Truncate(j.interval)
	recorded := 0

	after := ""
	for {
		markets, err := j.pools.ListMarketsAfter(ctx, models.MarketStatusActive, after, marketPageSize)
		if err != nil {
			return recorded, err
		}
		for i := range markets {
			if err := j.snapshotMarket(ctx, markets[i].ID, bucket); err != nil {
				log.Printf("[PriceSnapshotJob] Market %s: %v", markets[i].ID, err)
				continue
			}
			recorded++
		}
		if len(markets) < marketPageSize {
			return recorded, nil
		}
		after = markets[len(markets)-1].ID
	}
}

func (j *PriceSnapshotJob) snapshotMarket(ctx context.Context, marketID string, bucket time.Time) error {
	prices, err := j.pools.GetPrices(ctx, marketID)
	if err != nil {
		return err
	}
	volume, err := j.store.SumTradeVolume(ctx, marketID, bucket, bucket.Add(j.interval))
	if err != nil {
		return err
	}
	_, err = j.store.RecordPriceSample(ctx, marketID, bucket, decimal.NewFromFloat(prices.YesPrice).Round(8), volume)
	return err
}
