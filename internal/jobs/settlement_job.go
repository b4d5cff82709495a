package jobs

import (
	"context"
	"log"
	"time"

	"prediction-amm/internal/models"
	"prediction-amm/internal/services"
)

// SettlementJob settles resolved markets that nobody has settled yet
type SettlementJob struct {
	pools    *services.PoolManager
	interval time.Duration
}

// NewSettlementJob creates a new settlement job
func NewSettlementJob(pools *services.PoolManager, interval time.Duration) *SettlementJob {
	return &SettlementJob{
		pools:    pools,
		interval: interval,
	}
}

// Run settles pending markets every interval until ctx is done
func (j *SettlementJob) Run(ctx context.Context) error {
	log.Printf("[SettlementJob] Starting settlement job (interval: %v)", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.SettleResolved(ctx)
		case <-ctx.Done():
			log.Println("[SettlementJob] Stopping settlement job")
			return nil
		}
	}
}

// SettleResolved settles every resolved market and returns how many it
// settled. Markets that fail are logged and retried on the next run.
func (j *SettlementJob) SettleResolved(ctx context.Context) int {
	markets, err := j.pools.ListMarkets(ctx, models.MarketStatusResolved, 0, 0)
	if err != nil {
		log.Printf("[SettlementJob] Error fetching resolved markets: %v", err)
		return 0
	}
	if len(markets) == 0 {
		return 0
	}

	log.Printf("[SettlementJob] Settling %d resolved markets", len(markets))

	settled := 0
	for _, market := range markets {
		s, _, err := j.pools.SettleMarket(ctx, market.ID)
		if err != nil {
			log.Printf("[SettlementJob] Failed to settle market %s: %v", market.ID, err)
			continue
		}
		settled++
		log.Printf("[SettlementJob] Settled market %s: %d payouts, proof=%s", market.ID, len(s.Payouts), s.Proof)
	}

	return settled
}
