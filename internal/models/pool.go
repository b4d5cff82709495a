package models

import (
	"fmt"
	"time"

	"prediction-amm/internal/amm"

	"github.com/shopspring/decimal"
)

// PoolRecord persists an amm.PoolState. Amounts are stored as integer
// micro-units in numeric(78,0) columns so k never loses precision.
// Version counts committed trades and guards each write against a stale read.
type PoolRecord struct {
	MarketID         string          `gorm:"size:64;primaryKey" json:"market_id"`
	YesReserves      decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"yes_reserves"`
	NoReserves       decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"no_reserves"`
	K                decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"k"`
	VirtualLiquidity decimal.Decimal `gorm:"type:numeric(78,0);not null;default:0" json:"virtual_liquidity"`
	TotalCollateral  decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"total_collateral"`
	CreatedAt        time.Time       `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime:false" json:"updated_at"`
	Version          int64           `gorm:"not null;default:0" json:"version"`
}

func (PoolRecord) TableName() string {
	return "amm_pools"
}

// NewPoolRecord converts pool state into its persisted form.
func NewPoolRecord(p amm.PoolState) *PoolRecord {
	return &PoolRecord{
		MarketID:         p.MarketID,
		YesReserves:      p.YesReserves.Units(),
		NoReserves:       p.NoReserves.Units(),
		K:                amm.U256Units(p.K),
		VirtualLiquidity: p.VirtualLiquidity.Units(),
		TotalCollateral:  p.TotalCollateral.Units(),
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

// ToPoolState converts the record back into engine state.
func (r *PoolRecord) ToPoolState() (amm.PoolState, error) {
	p := amm.PoolState{MarketID: r.MarketID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
	var err error
	fields := []struct {
		name string
		src  decimal.Decimal
		dst  *amm.Amount
	}{
		{"yes_reserves", r.YesReserves, &p.YesReserves},
		{"no_reserves", r.NoReserves, &p.NoReserves},
		{"virtual_liquidity", r.VirtualLiquidity, &p.VirtualLiquidity},
		{"total_collateral", r.TotalCollateral, &p.TotalCollateral},
	}
	for _, f := range fields {
		if *f.dst, err = amm.AmountFromUnits(f.src); err != nil {
			return amm.PoolState{}, fmt.Errorf("pool %s %s: %w", r.MarketID, f.name, err)
		}
	}
	if p.K, err = amm.U256FromUnits(r.K); err != nil {
		return amm.PoolState{}, fmt.Errorf("pool %s k: %w", r.MarketID, err)
	}
	return p, nil
}
