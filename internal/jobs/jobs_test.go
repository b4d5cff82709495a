package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"prediction-amm/internal/amm"
	"prediction-amm/internal/database"
	"prediction-amm/internal/models"
	"prediction-amm/internal/repository"
	"prediction-amm/internal/services"

	"github.com/google/uuid"
	"gorm.io/gorm/logger"
)

func setup(t *testing.T) (*services.PoolManager, *repository.MarketRepository) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open("sqlite", dsn, logger.Silent)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate failed: %v", err)
	}
	repo := repository.NewMarketRepository(db)
	engine, err := amm.NewEngine(amm.DefaultParams())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return services.NewPoolManager(repo, engine, services.NewKeyedMutex()), repo
}

func createMarket(t *testing.T, pm *services.PoolManager, id string) {
	t.Helper()
	zero := amm.Amount(0)
	_, _, err := pm.CreateMarket(context.Background(), models.CreateMarketRequest{
		ID:               id,
		Question:         "Q?",
		InitialLiquidity: 1000 * amm.Scale,
		VirtualLiquidity: &zero,
	})
	if err != nil {
		t.Fatalf("CreateMarket failed: %v", err)
	}
}

func TestPriceSnapshotJob(t *testing.T) {
	pm, repo := setup(t)
	ctx := context.Background()
	createMarket(t, pm, "open")
	createMarket(t, pm, "closed")
	if _, err := pm.CancelMarket(ctx, "closed"); err != nil {
		t.Fatalf("CancelMarket failed: %v", err)
	}

	job := NewPriceSnapshotJob(pm, repo, time.Minute)
	start := time.Now().UTC().Truncate(time.Minute)
	job.now = func() time.Time { return start.Add(10 * time.Second) }

	n, err := job.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 market sampled, got %d", n)
	}

	if _, err := pm.PlaceBet(ctx, "open", "alice", 100*amm.Scale, amm.OutcomeYes); err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}
	job.now = func() time.Time { return start.Add(50 * time.Second) }
	if _, err := job.Snapshot(ctx); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	candles, err := repo.GetPriceHistory(ctx, "open", start.Add(-time.Hour), 0)
	if err != nil {
		t.Fatalf("GetPriceHistory failed: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("Expected both samples in one candle, got %d candles", len(candles))
	}
	c := candles[0]
	if c.Open.String() != "0.5" {
		t.Errorf("Expected open 0.5, got %s", c.Open)
	}
	if !c.Close.GreaterThan(c.Open) || !c.High.Equal(c.Close) || !c.Low.Equal(c.Open) {
		t.Errorf("Unexpected OHLC after a YES bet: o=%s h=%s l=%s c=%s", c.Open, c.High, c.Low, c.Close)
	}
	if c.Volume.IntPart() != 100*int64(amm.Scale) {
		t.Errorf("Expected volume of one 100 USDC bet, got %s", c.Volume)
	}

	closed, err := repo.GetPriceHistory(ctx, "closed", start.Add(-time.Hour), 0)
	if err != nil {
		t.Fatalf("GetPriceHistory failed: %v", err)
	}
	if len(closed) != 0 {
		t.Errorf("Expected no candles for a cancelled market, got %d", len(closed))
	}
}

func TestPriceSnapshotJobPagesAllMarkets(t *testing.T) {
	pm, repo := setup(t)
	ctx := context.Background()
	total := marketPageSize + 5
	for i := 0; i < total; i++ {
		createMarket(t, pm, fmt.Sprintf("m%03d", i))
	}
	if _, err := pm.CancelMarket(ctx, "m000"); err != nil {
		t.Fatalf("CancelMarket failed: %v", err)
	}

	job := NewPriceSnapshotJob(pm, repo, time.Minute)
	n, err := job.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if n != total-1 {
		t.Fatalf("Expected %d markets sampled, got %d", total-1, n)
	}

	last := fmt.Sprintf("m%03d", total-1)
	candles, err := repo.GetPriceHistory(ctx, last, time.Now().UTC().Add(-time.Hour), 0)
	if err != nil {
		t.Fatalf("GetPriceHistory failed: %v", err)
	}
	if len(candles) != 1 {
		t.Errorf("Expected a candle for %s on the second page, got %d", last, len(candles))
	}
}

func TestPriceSnapshotJobStopsOnCancel(t *testing.T) {
	pm, repo := setup(t)
	job := NewPriceSnapshotJob(pm, repo, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestSettlementJob(t *testing.T) {
	pm, _ := setup(t)
	ctx := context.Background()
	createMarket(t, pm, "m1")
	createMarket(t, pm, "m2")

	if _, err := pm.PlaceBet(ctx, "m1", "alice", 100*amm.Scale, amm.OutcomeYes); err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}
	if _, err := pm.ResolveMarket(ctx, "m1", amm.OutcomeYes, "manual"); err != nil {
		t.Fatalf("ResolveMarket failed: %v", err)
	}

	job := NewSettlementJob(pm, time.Minute)
	if n := job.SettleResolved(ctx); n != 1 {
		t.Fatalf("Expected 1 market settled, got %d", n)
	}
	if n := job.SettleResolved(ctx); n != 0 {
		t.Fatalf("Expected nothing left to settle, got %d", n)
	}

	m1, err := pm.GetMarket(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMarket failed: %v", err)
	}
	if m1.Status != models.MarketStatusSettled {
		t.Errorf("Expected m1 settled, got %s", m1.Status)
	}
	m2, err := pm.GetMarket(ctx, "m2")
	if err != nil {
		t.Fatalf("GetMarket failed: %v", err)
	}
	if m2.Status != models.MarketStatusActive {
		t.Errorf("Expected m2 untouched, got %s", m2.Status)
	}
}
