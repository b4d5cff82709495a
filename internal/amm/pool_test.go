package amm

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/holiman/uint256"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t testing.TB) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultParams())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	e.now = func() time.Time { return testNow }
	return e
}

// newTestPool opens a pool with the given liquidity (whole USDC) and no
// virtual liquidity.
func newTestPool(t testing.TB, e *Engine, liquidity uint64) PoolState {
	t.Helper()
	zero := Amount(0)
	pool, err := e.CreatePool(PoolConfig{
		MarketID:         "market-1",
		InitialLiquidity: Amount(liquidity) * Scale,
		VirtualLiquidity: &zero,
	})
	if err != nil {
		t.Fatalf("CreatePool failed: %v", err)
	}
	return pool
}

func TestCreatePool(t *testing.T) {
	e := newTestEngine(t)
	pool := newTestPool(t, e, 1000)

	if pool.YesReserves != 1000*Scale || pool.NoReserves != 1000*Scale {
		t.Errorf("reserves: got %s/%s, want 1000/1000", pool.YesReserves, pool.NoReserves)
	}
	var wantK uint256.Int
	wantK.Mul(u256(1000*Scale), u256(1000*Scale))
	if !pool.K.Eq(&wantK) {
		t.Errorf("k: got %s, want %s", pool.K.Dec(), wantK.Dec())
	}
	if pool.TotalCollateral != 2000*Scale {
		t.Errorf("collateral: got %s, want 2000", pool.TotalCollateral)
	}
	if !pool.CreatedAt.Equal(testNow) || !pool.UpdatedAt.Equal(testNow) {
		t.Errorf("timestamps not stamped from clock")
	}

	prices := e.GetPrices(pool)
	if prices.YesPrice != 0.5 || prices.NoPrice != 0.5 {
		t.Errorf("prices: got %v/%v, want 0.5/0.5", prices.YesPrice, prices.NoPrice)
	}
	if prices.YesProbability != 50 {
		t.Errorf("probability: got %v, want 50", prices.YesProbability)
	}
}

func TestCreatePoolDefaultsVirtualLiquidity(t *testing.T) {
	e := newTestEngine(t)
	pool, err := e.CreatePool(PoolConfig{MarketID: "m", InitialLiquidity: 10 * Scale})
	if err != nil {
		t.Fatalf("CreatePool failed: %v", err)
	}
	if pool.VirtualLiquidity != e.Params().DefaultVirtualLiquidity {
		t.Errorf("virtual liquidity: got %s, want %s", pool.VirtualLiquidity, e.Params().DefaultVirtualLiquidity)
	}
}

func TestCreatePoolRejectsBadConfig(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.CreatePool(PoolConfig{MarketID: "m"}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("zero liquidity: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := e.CreatePool(PoolConfig{InitialLiquidity: Scale}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("missing market id: expected ErrInvalidArgument, got %v", err)
	}
}

func TestGetPricesClampAndSum(t *testing.T) {
	e := newTestEngine(t)

	// 1 YES against 10,000 NO: raw YES price ~0.9999, raw NO ~0.0001.
	skewed := PoolState{MarketID: "m", YesReserves: Scale, NoReserves: 10_000 * Scale}
	skewed.K.Mul(u256(skewed.YesReserves), u256(skewed.NoReserves))

	prices := e.GetPrices(skewed)
	if prices.YesPrice != 0.99 {
		t.Errorf("YES price: got %v, want clamp to 0.99", prices.YesPrice)
	}
	if prices.NoPrice != 0.01 {
		t.Errorf("NO price: got %v, want clamp to 0.01", prices.NoPrice)
	}

	raw := e.GetSpotPrice(skewed, OutcomeYes) + e.GetSpotPrice(skewed, OutcomeNo)
	if math.Abs(raw-1) > 1e-12 {
		t.Errorf("raw prices sum to %v, want 1", raw)
	}
	if e.ValidatePriceCap(skewed) {
		t.Error("expected skewed pool to fail the price cap")
	}

	balanced := newTestPool(t, e, 1000)
	p := e.GetPrices(balanced)
	if math.Abs(p.YesPrice+p.NoPrice-1) > 1e-12 {
		t.Errorf("balanced prices sum to %v, want 1", p.YesPrice+p.NoPrice)
	}
}

func TestVirtualLiquidityDampensPrice(t *testing.T) {
	e := newTestEngine(t)
	thin := newTestPool(t, e, 1000)

	virtual := 5000 * Scale
	deep, err := e.CreatePool(PoolConfig{MarketID: "m", InitialLiquidity: 1000 * Scale, VirtualLiquidity: &virtual})
	if err != nil {
		t.Fatalf("CreatePool failed: %v", err)
	}

	thinSwap, err := e.CalculateSwap(thin, 100*Scale, OutcomeNo)
	if err != nil {
		t.Fatalf("thin swap failed: %v", err)
	}
	deepSwap, err := e.CalculateSwap(deep, 100*Scale, OutcomeNo)
	if err != nil {
		t.Fatalf("deep swap failed: %v", err)
	}

	// Virtual liquidity only affects prices, not swap output.
	if thinSwap.AmountOut != deepSwap.AmountOut {
		t.Errorf("amount out differs: %s vs %s", thinSwap.AmountOut, deepSwap.AmountOut)
	}
	if deepSwap.PriceImpactPct >= thinSwap.PriceImpactPct {
		t.Errorf("expected smaller impact with virtual liquidity: %v >= %v", deepSwap.PriceImpactPct, thinSwap.PriceImpactPct)
	}
}

func TestCalculateSwapScenario(t *testing.T) {
	e := newTestEngine(t)
	pool := newTestPool(t, e, 1000)

	swap, err := e.CalculateSwap(pool, 100*Scale, OutcomeNo)
	if err != nil {
		t.Fatalf("CalculateSwap failed: %v", err)
	}

	// newYes = 1e18 / 1.1e9 = 909090909 (truncated), out = 90909091
	if swap.NewPool.YesReserves != 909_090_909 {
		t.Errorf("new YES reserves: got %d, want 909090909", swap.NewPool.YesReserves)
	}
	if swap.NewPool.NoReserves != 1_100*Scale {
		t.Errorf("new NO reserves: got %d, want 1100000000", swap.NewPool.NoReserves)
	}
	if swap.AmountOut != 90_909_091 {
		t.Errorf("amount out: got %d, want 90909091", swap.AmountOut)
	}
	if !swap.NewPool.K.Eq(&pool.K) {
		t.Error("k changed by swap")
	}
	if math.Abs(swap.EffectivePrice-1.1) > 1e-6 {
		t.Errorf("effective price: got %v, want ~1.1", swap.EffectivePrice)
	}

	// YES spot 0.5 -> 1100/2009.09 = 0.547511..., a ~9.5% move.
	before := 0.5
	after := float64(1_100*Scale) / float64(1_100*Scale+909_090_909)
	want := math.Abs(after-before) / before * 100
	if math.Abs(swap.PriceImpactPct-want) > 1e-9 {
		t.Errorf("price impact: got %v, want %v", swap.PriceImpactPct, want)
	}

	// Input is untouched.
	if pool.YesReserves != 1000*Scale || pool.NoReserves != 1000*Scale {
		t.Error("CalculateSwap mutated its input pool")
	}
}

func TestCalculateSwapPreservesK(t *testing.T) {
	e := newTestEngine(t)
	pool := newTestPool(t, e, 1000)

	amounts := []Amount{1, 7, Scale, 33 * Scale, 999 * Scale, 5_000 * Scale}
	for _, side := range []Outcome{OutcomeYes, OutcomeNo} {
		for _, amt := range amounts {
			swap, err := e.CalculateSwap(pool, amt, side)
			if err != nil {
				t.Fatalf("swap %s %s failed: %v", amt, side, err)
			}
			assertKPreserved(t, swap.NewPool, side)
		}
	}
}

// assertKPreserved checks y' * x' <= k < (y' + 1) * x' where x' is the
// reserve that received the input and y' the truncated opposite reserve.
func assertKPreserved(t *testing.T, pool PoolState, sellOutcome Outcome) {
	t.Helper()
	in := u256(pool.Reserve(sellOutcome))
	out := pool.Reserve(sellOutcome.Opposite())

	var lo, hi uint256.Int
	lo.Mul(u256(out), in)
	hi.Mul(u256(out+1), in)
	if lo.Gt(&pool.K) || !hi.Gt(&pool.K) {
		t.Errorf("reserves %s/%s violate k=%s", pool.YesReserves, pool.NoReserves, pool.K.Dec())
	}
}

func TestCalculateSwapErrors(t *testing.T) {
	e := newTestEngine(t)
	pool := newTestPool(t, e, 1000)

	if _, err := e.CalculateSwap(pool, 0, OutcomeNo); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("zero amount: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := e.CalculateSwap(pool, Scale, Outcome("MAYBE")); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("bad outcome: expected ErrInvalidArgument, got %v", err)
	}

	// k = 1e6: selling 2,000,000 units floors the opposite reserve to zero.
	tiny := PoolState{MarketID: "m", YesReserves: 1000, NoReserves: 1000}
	tiny.K.Mul(u256(1000), u256(1000))
	if _, err := e.CalculateSwap(tiny, 2_000_000, OutcomeNo); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Errorf("drain: expected ErrInsufficientLiquidity, got %v", err)
	}

	// Truncation residue in k can make a dust trade produce nothing.
	residue := PoolState{MarketID: "m", YesReserves: 1000, NoReserves: 1_000_000_000}
	residue.K.SetUint64(1_000_000_001_500)
	if _, err := e.CalculateSwap(residue, 1, OutcomeNo); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Errorf("dust: expected ErrInsufficientLiquidity, got %v", err)
	}
}

func TestIsSwapAllowed(t *testing.T) {
	e := newTestEngine(t)
	pool := newTestPool(t, e, 1000)

	if !e.IsSwapAllowed(pool, 100*Scale, OutcomeNo) {
		t.Error("expected modest swap to be allowed")
	}
	if e.IsSwapAllowed(pool, 0, OutcomeNo) {
		t.Error("expected zero swap to be rejected")
	}

	// Pushes YES to ~0.9999: the swap itself succeeds but breaches the cap.
	if _, err := e.CalculateSwap(pool, 100_000*Scale, OutcomeNo); err != nil {
		t.Fatalf("large swap failed: %v", err)
	}
	if e.IsSwapAllowed(pool, 100_000*Scale, OutcomeNo) {
		t.Error("expected cap-breaching swap to be rejected")
	}
	if err := e.checkSwap(pool, 100_000*Scale, OutcomeNo); !errors.Is(err, ErrPriceCapExceeded) {
		t.Errorf("expected ErrPriceCapExceeded, got %v", err)
	}
}

func TestParseOutcome(t *testing.T) {
	if o, err := ParseOutcome(" yes "); err != nil || o != OutcomeYes {
		t.Errorf("got %v, %v", o, err)
	}
	if o, err := ParseOutcome("No"); err != nil || o != OutcomeNo {
		t.Errorf("got %v, %v", o, err)
	}
	if _, err := ParseOutcome("maybe"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if OutcomeYes.Opposite() != OutcomeNo || OutcomeNo.Opposite() != OutcomeYes {
		t.Error("Opposite is wrong")
	}
}

func FuzzCalculateSwapPreservesK(f *testing.F) {
	f.Add(uint64(1000_000_000), uint64(1000_000_000), uint64(100_000_000), true)
	f.Add(uint64(1), uint64(1), uint64(1), false)
	f.Add(uint64(5_000_000), uint64(999_999_999_999), uint64(12345), true)

	e, err := NewEngine(DefaultParams())
	if err != nil {
		f.Fatalf("NewEngine failed: %v", err)
	}

	f.Fuzz(func(t *testing.T, yes, no, amountIn uint64, sellNo bool) {
		if yes == 0 || no == 0 {
			return
		}
		pool := PoolState{MarketID: "fuzz", YesReserves: Amount(yes), NoReserves: Amount(no)}
		pool.K.Mul(u256(pool.YesReserves), u256(pool.NoReserves))

		side := OutcomeYes
		if sellNo {
			side = OutcomeNo
		}
		swap, err := e.CalculateSwap(pool, Amount(amountIn), side)
		if err != nil {
			if !errors.Is(err, ErrInvalidArgument) && !errors.Is(err, ErrInsufficientLiquidity) {
				t.Fatalf("unexpected error kind: %v", err)
			}
			return
		}
		if swap.AmountOut == 0 || swap.NewPool.YesReserves == 0 || swap.NewPool.NoReserves == 0 {
			t.Fatalf("swap produced an empty side: %+v", swap)
		}
		if !swap.NewPool.K.Eq(&pool.K) {
			t.Fatal("k changed")
		}
		assertKPreserved(t, swap.NewPool, side)
	})
}
