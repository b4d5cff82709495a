package models

import (
	"fmt"
	"time"

	"prediction-amm/internal/amm"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PositionRecord is one user's share holdings in one market
type PositionRecord struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         string          `gorm:"size:64;not null;uniqueIndex:idx_position_user_market" json:"user_id"`
	MarketID       string          `gorm:"size:64;not null;uniqueIndex:idx_position_user_market;index" json:"market_id"`
	YesShares      decimal.Decimal `gorm:"type:numeric(78,0);not null;default:0" json:"yes_shares"`
	NoShares       decimal.Decimal `gorm:"type:numeric(78,0);not null;default:0" json:"no_shares"`
	TotalCostBasis decimal.Decimal `gorm:"type:numeric(78,0);not null;default:0" json:"total_cost_basis"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName specifies the table name for PositionRecord
func (PositionRecord) TableName() string {
	return "user_positions"
}

func (p *PositionRecord) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// NewPositionRecord converts an engine position for storage.
func NewPositionRecord(p amm.UserPosition) *PositionRecord {
	return &PositionRecord{
		UserID:         p.UserID,
		MarketID:       p.MarketID,
		YesShares:      p.YesShares.Units(),
		NoShares:       p.NoShares.Units(),
		TotalCostBasis: p.TotalCostBasis.Units(),
	}
}

// SetPosition copies holdings from p, leaving identity fields alone.
func (r *PositionRecord) SetPosition(p amm.UserPosition) {
	r.YesShares = p.YesShares.Units()
	r.NoShares = p.NoShares.Units()
	r.TotalCostBasis = p.TotalCostBasis.Units()
}

// ToUserPosition converts the record into an engine position.
func (r *PositionRecord) ToUserPosition() (amm.UserPosition, error) {
	pos := amm.UserPosition{UserID: r.UserID, MarketID: r.MarketID}
	var err error
	if pos.YesShares, err = amm.AmountFromUnits(r.YesShares); err != nil {
		return amm.UserPosition{}, fmt.Errorf("position %s yes_shares: %w", r.ID, err)
	}
	if pos.NoShares, err = amm.AmountFromUnits(r.NoShares); err != nil {
		return amm.UserPosition{}, fmt.Errorf("position %s no_shares: %w", r.ID, err)
	}
	if pos.TotalCostBasis, err = amm.AmountFromUnits(r.TotalCostBasis); err != nil {
		return amm.UserPosition{}, fmt.Errorf("position %s total_cost_basis: %w", r.ID, err)
	}
	return pos, nil
}
