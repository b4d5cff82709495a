package amm

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/holiman/uint256"
)

// Outcome is one side of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Valid reports whether o is YES or NO.
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Opposite returns the complementary outcome.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// ParseOutcome accepts "yes"/"no" in any case.
func ParseOutcome(s string) (Outcome, error) {
	o := Outcome(strings.ToUpper(strings.TrimSpace(s)))
	if !o.Valid() {
		return "", fmt.Errorf("%w: unknown outcome %q", ErrInvalidArgument, s)
	}
	return o, nil
}

// PoolState is the reserve state of one binary market. It is a plain value:
// every mutation returns a new PoolState and leaves the input untouched.
type PoolState struct {
	MarketID    string
	YesReserves Amount
	NoReserves  Amount
	// K is fixed at creation to YesReserves * NoReserves and never changed
	// by trading.
	K uint256.Int
	// VirtualLiquidity is added to both sides in price computation only.
	VirtualLiquidity Amount
	// TotalCollateral is the USDC backing all outstanding share pairs.
	TotalCollateral Amount
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Reserve returns the reserve held for outcome.
func (p PoolState) Reserve(o Outcome) Amount {
	if o == OutcomeYes {
		return p.YesReserves
	}
	return p.NoReserves
}

func (p PoolState) withReserve(o Outcome, v Amount) PoolState {
	if o == OutcomeYes {
		p.YesReserves = v
	} else {
		p.NoReserves = v
	}
	return p
}

// PoolConfig describes a pool to create.
type PoolConfig struct {
	MarketID         string
	InitialLiquidity Amount
	// VirtualLiquidity falls back to Params.DefaultVirtualLiquidity when nil.
	VirtualLiquidity *Amount
}

// Prices are the implied outcome prices of a pool, clamped to
// [MinPrice, PriceCap]. Display values only.
type Prices struct {
	YesPrice       float64 `json:"yes_price"`
	NoPrice        float64 `json:"no_price"`
	YesProbability float64 `json:"yes_probability"`
	NoProbability  float64 `json:"no_probability"`
}

// Price returns the price of o.
func (p Prices) Price(o Outcome) float64 {
	if o == OutcomeYes {
		return p.YesPrice
	}
	return p.NoPrice
}

// Probability returns the implied probability of o in percent.
func (p Prices) Probability(o Outcome) float64 {
	if o == OutcomeYes {
		return p.YesProbability
	}
	return p.NoProbability
}

// SwapResult is the outcome of a constant-product swap.
type SwapResult struct {
	SellOutcome    Outcome
	AmountIn       Amount
	AmountOut      Amount
	EffectivePrice float64
	// PriceImpactPct is the relative change, in percent, of the acquired
	// outcome's spot price: |after - before| / before * 100.
	PriceImpactPct float64
	NewPool        PoolState
}

// CreatePool opens a symmetric 50/50 pool. Both sides are fully
// collateralized, so TotalCollateral starts at twice the initial liquidity.
func (e *Engine) CreatePool(cfg PoolConfig) (PoolState, error) {
	if cfg.MarketID == "" {
		return PoolState{}, fmt.Errorf("%w: market id is required", ErrInvalidArgument)
	}
	if cfg.InitialLiquidity == 0 {
		return PoolState{}, fmt.Errorf("%w: initial liquidity must be greater than 0", ErrInvalidArgument)
	}
	collateral, err := addAmounts(cfg.InitialLiquidity, cfg.InitialLiquidity)
	if err != nil {
		return PoolState{}, err
	}

	virtual := e.params.DefaultVirtualLiquidity
	if cfg.VirtualLiquidity != nil {
		virtual = *cfg.VirtualLiquidity
	}

	now := e.now()
	pool := PoolState{
		MarketID:         cfg.MarketID,
		YesReserves:      cfg.InitialLiquidity,
		NoReserves:       cfg.InitialLiquidity,
		VirtualLiquidity: virtual,
		TotalCollateral:  collateral,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	pool.K.Mul(u256(cfg.InitialLiquidity), u256(cfg.InitialLiquidity))
	return pool, nil
}

// effectiveReserves returns reserves plus virtual liquidity as floats.
func effectiveReserves(pool PoolState) (yes, no float64) {
	v := float64(pool.VirtualLiquidity)
	return float64(pool.YesReserves) + v, float64(pool.NoReserves) + v
}

// GetSpotPrice returns the unclamped implied price of o. An outcome's price
// is the opposite side's share of effective reserves.
func (e *Engine) GetSpotPrice(pool PoolState, o Outcome) float64 {
	yes, no := effectiveReserves(pool)
	total := yes + no
	if total == 0 {
		return 0
	}
	if o == OutcomeYes {
		return no / total
	}
	return yes / total
}

// GetPrices returns clamped display prices and probabilities.
func (e *Engine) GetPrices(pool PoolState) Prices {
	lo, hi := e.params.MinPrice.Float64(), e.params.PriceCap.Float64()
	yes := clamp(e.GetSpotPrice(pool, OutcomeYes), lo, hi)
	no := clamp(e.GetSpotPrice(pool, OutcomeNo), lo, hi)
	return Prices{
		YesPrice:       yes,
		NoPrice:        no,
		YesProbability: yes * 100,
		NoProbability:  no * 100,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// ValidatePriceCap reports whether neither outcome's unclamped implied price
// is above the cap. The comparison is exact integer arithmetic.
func (e *Engine) ValidatePriceCap(pool PoolState) bool {
	return e.checkPriceCap(pool) == nil
}

func (e *Engine) checkPriceCap(pool PoolState) error {
	var effYes, effNo, total, limit, lhs uint256.Int
	effYes.Add(u256(pool.YesReserves), u256(pool.VirtualLiquidity))
	effNo.Add(u256(pool.NoReserves), u256(pool.VirtualLiquidity))
	total.Add(&effYes, &effNo)
	limit.Mul(&total, u256(e.params.PriceCap))

	// yesPrice = effNo / total <= cap  <=>  effNo * Scale <= cap * total
	if lhs.Mul(&effNo, u256(Scale)); lhs.Gt(&limit) {
		return fmt.Errorf("%w: YES price %.6f above cap %s", ErrPriceCapExceeded,
			e.GetSpotPrice(pool, OutcomeYes), e.params.PriceCap)
	}
	if lhs.Mul(&effYes, u256(Scale)); lhs.Gt(&limit) {
		return fmt.Errorf("%w: NO price %.6f above cap %s", ErrPriceCapExceeded,
			e.GetSpotPrice(pool, OutcomeNo), e.params.PriceCap)
	}
	return nil
}

// CalculateSwap sells amountIn shares of sellOutcome into the pool and
// returns the opposite shares paid out under x*y=k.
func (e *Engine) CalculateSwap(pool PoolState, amountIn Amount, sellOutcome Outcome) (SwapResult, error) {
	if amountIn == 0 {
		return SwapResult{}, fmt.Errorf("%w: swap amount must be greater than 0", ErrInvalidArgument)
	}
	if !sellOutcome.Valid() {
		return SwapResult{}, fmt.Errorf("%w: unknown outcome %q", ErrInvalidArgument, sellOutcome)
	}
	buyOutcome := sellOutcome.Opposite()

	inReserve := pool.Reserve(sellOutcome)
	outReserve := pool.Reserve(buyOutcome)

	newIn, err := addAmounts(inReserve, amountIn)
	if err != nil {
		return SwapResult{}, err
	}

	// (x + dx) * (y - dy) = k  =>  y' = k / (x + dx)
	var q uint256.Int
	q.Div(&pool.K, u256(newIn))
	if !q.IsUint64() || q.Uint64() >= uint64(outReserve) {
		return SwapResult{}, fmt.Errorf("%w: swap of %s %s yields no output", ErrInsufficientLiquidity, amountIn, sellOutcome)
	}
	newOut := Amount(q.Uint64())
	if newOut == 0 {
		return SwapResult{}, fmt.Errorf("%w: swap of %s %s would drain the %s reserve", ErrInsufficientLiquidity, amountIn, sellOutcome, buyOutcome)
	}
	amountOut := outReserve - newOut

	next := pool.withReserve(sellOutcome, newIn).withReserve(buyOutcome, newOut)
	next.UpdatedAt = e.now()

	return SwapResult{
		SellOutcome:    sellOutcome,
		AmountIn:       amountIn,
		AmountOut:      amountOut,
		EffectivePrice: float64(amountIn) / float64(amountOut),
		PriceImpactPct: relativeChangePct(e.GetSpotPrice(pool, buyOutcome), e.GetSpotPrice(next, buyOutcome)),
		NewPool:        next,
	}, nil
}

func relativeChangePct(before, after float64) float64 {
	if before == 0 {
		return 0
	}
	return math.Abs(after-before) / before * 100
}

// IsSwapAllowed reports whether the swap succeeds and leaves the pool within
// the price cap. Every failure collapses to false; use checkSwap to see why.
func (e *Engine) IsSwapAllowed(pool PoolState, amountIn Amount, sellOutcome Outcome) bool {
	return e.checkSwap(pool, amountIn, sellOutcome) == nil
}

func (e *Engine) checkSwap(pool PoolState, amountIn Amount, sellOutcome Outcome) error {
	swap, err := e.CalculateSwap(pool, amountIn, sellOutcome)
	if err != nil {
		return err
	}
	return e.checkPriceCap(swap.NewPool)
}
