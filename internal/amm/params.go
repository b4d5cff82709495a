package amm

import (
	"fmt"
	"time"
)

// Params are the protocol constants the engine runs with.
type Params struct {
	// PriceCap is the highest implied price either outcome may reach,
	// expressed as a fraction of 1.0 (990000 = 0.99).
	PriceCap Amount `toml:"price_cap"`
	// MinPrice is the lower display clamp applied by GetPrices.
	MinPrice Amount `toml:"min_price"`
	// DefaultVirtualLiquidity is used by CreatePool when the caller does
	// not provide one.
	DefaultVirtualLiquidity Amount `toml:"default_virtual_liquidity"`
	// ProtocolFeeBps is withheld from gross settlement payouts.
	ProtocolFeeBps uint64 `toml:"protocol_fee_bps"`
	// SellFeeBps is withheld from the USDC released by SellPosition.
	SellFeeBps uint64 `toml:"sell_fee_bps"`
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		PriceCap:                990_000,
		MinPrice:                10_000,
		DefaultVirtualLiquidity: 1_000 * Scale,
		ProtocolFeeBps:          200,
		SellFeeBps:              50,
	}
}

// Validate checks that the parameters describe a usable market.
func (p Params) Validate() error {
	if p.PriceCap >= Scale {
		return fmt.Errorf("%w: price cap %s must be below 1.0", ErrInvalidArgument, p.PriceCap)
	}
	if p.MinPrice == 0 {
		return fmt.Errorf("%w: min price must be above 0", ErrInvalidArgument)
	}
	if p.MinPrice >= p.PriceCap {
		return fmt.Errorf("%w: min price %s must be below price cap %s", ErrInvalidArgument, p.MinPrice, p.PriceCap)
	}
	if p.ProtocolFeeBps > bpsDenominator {
		return fmt.Errorf("%w: protocol fee %d bps exceeds 100%%", ErrInvalidArgument, p.ProtocolFeeBps)
	}
	if p.SellFeeBps > bpsDenominator {
		return fmt.Errorf("%w: sell fee %d bps exceeds 100%%", ErrInvalidArgument, p.SellFeeBps)
	}
	return nil
}

// Engine evaluates pool, betting and settlement math for a fixed parameter
// set. It holds no market state; every method is a pure function of its
// arguments apart from stamping UpdatedAt.
type Engine struct {
	params Params
	now    func() time.Time
}

// NewEngine validates params and returns an engine.
func NewEngine(params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Engine{params: params, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Params returns the engine's parameters.
func (e *Engine) Params() Params {
	return e.params
}
