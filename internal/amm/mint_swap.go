package amm

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"
)

// BetResult is the outcome of a Mint & Swap bet.
type BetResult struct {
	Outcome    Outcome
	USDCAmount Amount
	// MintedShares equals USDCAmount: one YES and one NO share per unit.
	MintedShares Amount
	// SwappedShares is what the pool paid for the unwanted side.
	SwappedShares Amount
	// TotalShares of Outcome now held from this bet.
	TotalShares    Amount
	EffectivePrice float64
	// NewProbability of Outcome after the bet, in percent.
	NewProbability float64
	// PriceImpactPct is the swap leg's relative spot price change.
	PriceImpactPct float64
	NewPool        PoolState
}

// BetQuote previews a bet without committing it.
type BetQuote struct {
	ExpectedShares Amount  `json:"expected_shares"`
	EffectivePrice float64 `json:"effective_price"`
	// ProbabilityImpact is the absolute move of the chosen outcome's
	// probability, in percentage points. Not the same measure as
	// SwapResult.PriceImpactPct.
	ProbabilityImpact float64 `json:"probability_impact"`
}

// SellResult is the outcome of selling held shares back for USDC.
type SellResult struct {
	Outcome    Outcome
	SharesSold Amount
	// SwappedShares of Outcome went into the pool in exchange for
	// BurnedPairs opposite shares.
	SwappedShares Amount
	// BurnedPairs complete YES+NO pairs were redeemed for USDC.
	BurnedPairs    Amount
	Fee            Amount
	USDCOut        Amount
	EffectivePrice float64
	PriceImpactPct float64
	NewPool        PoolState
}

// PositionValue marks shares to market at current prices, in whole USDC.
type PositionValue struct {
	YesValue   float64 `json:"yes_value"`
	NoValue    float64 `json:"no_value"`
	TotalValue float64 `json:"total_value"`
}

// PlaceBet turns usdcAmount into shares of betOn: mint usdcAmount paired
// shares, then sell the unwanted side into the pool. The bet is rejected
// whole if the resulting pool breaches the price cap.
func (e *Engine) PlaceBet(pool PoolState, usdcAmount Amount, betOn Outcome) (BetResult, error) {
	if usdcAmount == 0 {
		return BetResult{}, fmt.Errorf("%w: bet amount must be greater than 0", ErrInvalidArgument)
	}
	if !betOn.Valid() {
		return BetResult{}, fmt.Errorf("%w: unknown outcome %q", ErrInvalidArgument, betOn)
	}

	minted := usdcAmount
	swap, err := e.CalculateSwap(pool, minted, betOn.Opposite())
	if err != nil {
		return BetResult{}, err
	}
	if err := e.checkPriceCap(swap.NewPool); err != nil {
		return BetResult{}, err
	}

	total, err := addAmounts(minted, swap.AmountOut)
	if err != nil {
		return BetResult{}, err
	}
	next := swap.NewPool
	if next.TotalCollateral, err = addAmounts(next.TotalCollateral, usdcAmount); err != nil {
		return BetResult{}, err
	}

	return BetResult{
		Outcome:        betOn,
		USDCAmount:     usdcAmount,
		MintedShares:   minted,
		SwappedShares:  swap.AmountOut,
		TotalShares:    total,
		EffectivePrice: float64(usdcAmount) / float64(total),
		NewProbability: e.GetPrices(next).Probability(betOn),
		PriceImpactPct: swap.PriceImpactPct,
		NewPool:        next,
	}, nil
}

// QuoteBet previews PlaceBet on an unchanged pool. It returns nil when the
// bet would be rejected for any reason.
func (e *Engine) QuoteBet(pool PoolState, usdcAmount Amount, betOn Outcome) *BetQuote {
	q, err := e.quoteBet(pool, usdcAmount, betOn)
	if err != nil {
		return nil
	}
	return &q
}

func (e *Engine) quoteBet(pool PoolState, usdcAmount Amount, betOn Outcome) (BetQuote, error) {
	before := e.GetPrices(pool).Probability(betOn)
	res, err := e.PlaceBet(pool, usdcAmount, betOn)
	if err != nil {
		return BetQuote{}, err
	}
	return BetQuote{
		ExpectedShares:    res.TotalShares,
		EffectivePrice:    res.EffectivePrice,
		ProbabilityImpact: math.Abs(res.NewProbability - before),
	}, nil
}

// SellPosition sells shares of outcome back to the pool for USDC. Part of
// the shares is swapped for the opposite side so the seller holds complete
// pairs, which are burned against collateral. The caller must have checked
// that the seller holds the shares.
func (e *Engine) SellPosition(pool PoolState, shares Amount, outcome Outcome) (SellResult, error) {
	if shares == 0 {
		return SellResult{}, fmt.Errorf("%w: sell amount must be greater than 0", ErrInvalidArgument)
	}
	if !outcome.Valid() {
		return SellResult{}, fmt.Errorf("%w: unknown outcome %q", ErrInvalidArgument, outcome)
	}
	opposite := outcome.Opposite()
	y := pool.Reserve(outcome)
	n := pool.Reserve(opposite)

	ySold, err := addAmounts(y, shares)
	if err != nil {
		return SellResult{}, err
	}

	// Swap a shares in, take b opposite shares out, with a + b = shares:
	//   (n - b)(y + shares - b) = k
	// b is the smaller root, taken with a ceiling square root so the pool
	// keeps (n - b)(y + a) >= k.
	var c, s, d, tmp uint256.Int
	c.Mul(u256(n), u256(ySold))
	if !c.Gt(&pool.K) {
		return SellResult{}, fmt.Errorf("%w: sale of %s %s yields no output", ErrInsufficientLiquidity, shares, outcome)
	}
	c.Sub(&c, &pool.K)
	s.Add(u256(n), u256(ySold))
	d.Mul(&s, &s)
	tmp.Lsh(&c, 2)
	d.Sub(&d, &tmp)
	root := ceilSqrt(&d)

	var b uint256.Int
	b.Sub(&s, root)
	b.Rsh(&b, 1)
	if b.IsZero() || !b.Lt(u256(n)) {
		return SellResult{}, fmt.Errorf("%w: sale of %s %s yields no output", ErrInsufficientLiquidity, shares, outcome)
	}
	burned := Amount(b.Uint64())
	swapped := shares - burned

	fee := mulDivCeil(burned, e.params.SellFeeBps, bpsDenominator)
	if fee >= burned {
		return SellResult{}, fmt.Errorf("%w: sale of %s %s is smaller than the exit fee", ErrInsufficientLiquidity, shares, outcome)
	}
	usdcOut := burned - fee

	next := pool.withReserve(outcome, y+swapped).withReserve(opposite, n-burned)
	if next.TotalCollateral, err = subAmounts(pool.TotalCollateral, usdcOut); err != nil {
		return SellResult{}, fmt.Errorf("%w: collateral %s cannot cover %s", ErrInsufficientLiquidity, pool.TotalCollateral, usdcOut)
	}
	next.UpdatedAt = e.now()
	if err := e.checkPriceCap(next); err != nil {
		return SellResult{}, err
	}

	return SellResult{
		Outcome:        outcome,
		SharesSold:     shares,
		SwappedShares:  swapped,
		BurnedPairs:    burned,
		Fee:            fee,
		USDCOut:        usdcOut,
		EffectivePrice: float64(usdcOut) / float64(shares),
		PriceImpactPct: relativeChangePct(e.GetSpotPrice(pool, outcome), e.GetSpotPrice(next, outcome)),
		NewPool:        next,
	}, nil
}

// ceilSqrt returns the smallest r with r*r >= x.
func ceilSqrt(x *uint256.Int) *uint256.Int {
	r := new(uint256.Int).Sqrt(x)
	var sq uint256.Int
	if sq.Mul(r, r); sq.Lt(x) {
		r.AddUint64(r, 1)
	}
	return r
}

// PlaceSafeModeBet bets a percentage of vault yield while the principal
// stays untouched. The percentage keeps two decimals (12.345 -> 12.34%).
// A zero yield, or a stake that rounds to zero, is a no-op: nil, nil.
func (e *Engine) PlaceSafeModeBet(pool PoolState, principalBalance, accruedYield Amount, yieldPercentToBet float64, betOn Outcome) (*BetResult, error) {
	if principalBalance == 0 {
		return nil, fmt.Errorf("%w: safe mode requires a vault deposit", ErrInvalidArgument)
	}
	if math.IsNaN(yieldPercentToBet) || yieldPercentToBet <= 0 || yieldPercentToBet > 100 {
		return nil, fmt.Errorf("%w: yield percent %v must be in (0, 100]", ErrInvalidArgument, yieldPercentToBet)
	}
	if accruedYield == 0 {
		return nil, nil
	}

	hundredths := uint64(math.Floor(yieldPercentToBet * 100))
	stake := mulDiv(accruedYield, hundredths, bpsDenominator)
	if stake == 0 {
		return nil, nil
	}

	res, err := e.PlaceBet(pool, stake, betOn)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// GetPositionValue values yesShares and noShares at the pool's current
// display prices.
func (e *Engine) GetPositionValue(yesShares, noShares Amount, pool PoolState) PositionValue {
	prices := e.GetPrices(pool)
	yes := yesShares.Float64() * prices.YesPrice
	no := noShares.Float64() * prices.NoPrice
	return PositionValue{
		YesValue:   yes,
		NoValue:    no,
		TotalValue: yes + no,
	}
}

// CalculatePayout returns the redemption value of winning shares: one USDC
// unit per share.
func CalculatePayout(shares Amount) Amount {
	return shares
}
