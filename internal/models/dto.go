package models

import (
	"time"

	"prediction-amm/internal/amm"
)

// ---- Request/Response DTOs ----
// Amounts travel as decimal strings ("100.5") and decode into amm.Amount.

// CreateMarketRequest is the request body for opening a market
type CreateMarketRequest struct {
	ID               string      `json:"id"`
	Question         string      `json:"question" binding:"required"`
	Description      string      `json:"description"`
	Category         string      `json:"category"`
	InitialLiquidity amm.Amount  `json:"initial_liquidity"`
	VirtualLiquidity *amm.Amount `json:"virtual_liquidity"`
	CreatedBy        string      `json:"-"`
}

// BetRequest is the request body for a Mint & Swap bet
type BetRequest struct {
	Amount  amm.Amount `json:"amount"`
	Outcome string     `json:"outcome" binding:"required"`
}

// SafeBetRequest is the request body for a yield-funded bet
type SafeBetRequest struct {
	PrincipalBalance amm.Amount `json:"principal_balance"`
	AccruedYield     amm.Amount `json:"accrued_yield"`
	YieldPercent     float64    `json:"yield_percent"`
	Outcome          string     `json:"outcome" binding:"required"`
}

// SellRequest is the request body for selling shares back to the pool
type SellRequest struct {
	Shares  amm.Amount `json:"shares"`
	Outcome string     `json:"outcome" binding:"required"`
}

// ResolveMarketRequest is the admin request body for resolving a market
type ResolveMarketRequest struct {
	Outcome      string `json:"outcome" binding:"required"`
	OracleSource string `json:"oracle_source"`
}

// PoolView is the API rendering of a pool
type PoolView struct {
	YesReserves      amm.Amount `json:"yes_reserves"`
	NoReserves       amm.Amount `json:"no_reserves"`
	K                string     `json:"k"`
	VirtualLiquidity amm.Amount `json:"virtual_liquidity"`
	TotalCollateral  amm.Amount `json:"total_collateral"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewPoolView renders pool state for the API.
func NewPoolView(p amm.PoolState) PoolView {
	return PoolView{
		YesReserves:      p.YesReserves,
		NoReserves:       p.NoReserves,
		K:                p.K.Dec(),
		VirtualLiquidity: p.VirtualLiquidity,
		TotalCollateral:  p.TotalCollateral,
		UpdatedAt:        p.UpdatedAt,
	}
}

// MarketResponse is the API response for a market with its pool
type MarketResponse struct {
	Market *Market    `json:"market"`
	Pool   PoolView   `json:"pool"`
	Prices amm.Prices `json:"prices"`
}

// BetResponse is the API response for an executed bet
type BetResponse struct {
	Outcome        amm.Outcome  `json:"outcome"`
	USDCAmount     amm.Amount   `json:"usdc_amount"`
	MintedShares   amm.Amount   `json:"minted_shares"`
	SwappedShares  amm.Amount   `json:"swapped_shares"`
	TotalShares    amm.Amount   `json:"total_shares"`
	EffectivePrice float64      `json:"effective_price"`
	NewProbability float64      `json:"new_probability"`
	PriceImpact    float64      `json:"price_impact"`
	Position       PositionView `json:"position"`
}

// SellResponse is the API response for an executed sale
type SellResponse struct {
	Outcome        amm.Outcome  `json:"outcome"`
	SharesSold     amm.Amount   `json:"shares_sold"`
	Fee            amm.Amount   `json:"fee"`
	USDCOut        amm.Amount   `json:"usdc_out"`
	EffectivePrice float64      `json:"effective_price"`
	PriceImpact    float64      `json:"price_impact"`
	Position       PositionView `json:"position"`
}

// PositionView is a user's holdings with their mark-to-market value
type PositionView struct {
	MarketID       string            `json:"market_id"`
	UserID         string            `json:"user_id"`
	YesShares      amm.Amount        `json:"yes_shares"`
	NoShares       amm.Amount        `json:"no_shares"`
	TotalCostBasis amm.Amount        `json:"total_cost_basis"`
	Value          amm.PositionValue `json:"value"`
}
