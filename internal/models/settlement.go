package models

import (
	"time"

	"prediction-amm/internal/amm"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PayoutStatus tracks disbursement of a settled payout
type PayoutStatus string

const (
	PayoutStatusPending PayoutStatus = "PENDING"
	PayoutStatusPaid    PayoutStatus = "PAID"
)

// Settlement is the stored result of settling a resolved market
type Settlement struct {
	MarketID             string          `gorm:"size:64;primaryKey" json:"market_id"`
	WinningOutcome       string          `gorm:"size:3;not null" json:"winning_outcome"`
	TotalWinningShares   decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"total_winning_shares"`
	TotalGrossPayout     decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"total_gross_payout"`
	TotalNetPayout       decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"total_net_payout"`
	ProtocolFeeCollected decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"protocol_fee_collected"`
	Proof                string          `gorm:"size:64;not null;index" json:"proof"`
	Summary              string          `gorm:"type:text" json:"summary"`
	ResolvedAt           time.Time       `json:"resolved_at"`
	CreatedAt            time.Time       `json:"created_at"`
	Payouts              []Payout        `gorm:"foreignKey:MarketID;references:MarketID" json:"payouts,omitempty"`
}

func (Settlement) TableName() string {
	return "settlements"
}

// Payout is one user's line of a settlement. ProfitLoss is signed.
type Payout struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	MarketID      string          `gorm:"size:64;not null;uniqueIndex:idx_payout_market_user" json:"market_id"`
	UserID        string          `gorm:"size:64;not null;uniqueIndex:idx_payout_market_user;index" json:"user_id"`
	WinningShares decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"winning_shares"`
	GrossPayout   decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"gross_payout"`
	ProtocolFee   decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"protocol_fee"`
	NetPayout     decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"net_payout"`
	CostBasis     decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"cost_basis"`
	ProfitLoss    decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"profit_loss"`
	Status        PayoutStatus    `gorm:"size:20;not null;default:PENDING;index" json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (Payout) TableName() string {
	return "payouts"
}

func (p *Payout) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// NewSettlement converts an engine settlement into a settlement row with one
// payout per user.
func NewSettlement(s amm.MarketSettlement) *Settlement {
	rec := &Settlement{
		MarketID:             s.MarketID,
		WinningOutcome:       string(s.WinningOutcome),
		TotalWinningShares:   s.TotalWinningShares.Units(),
		TotalGrossPayout:     s.TotalGrossPayout.Units(),
		TotalNetPayout:       s.TotalNetPayout.Units(),
		ProtocolFeeCollected: s.ProtocolFeeCollected.Units(),
		Proof:                s.Proof,
		Summary:              amm.FormatSettlementSummary(s),
		ResolvedAt:           s.ResolvedAt,
		Payouts:              make([]Payout, 0, len(s.Users)),
	}
	for _, u := range s.Users {
		rec.Payouts = append(rec.Payouts, Payout{
			MarketID:      s.MarketID,
			UserID:        u.UserID,
			WinningShares: u.WinningShares.Units(),
			GrossPayout:   u.GrossPayout.Units(),
			ProtocolFee:   u.ProtocolFee.Units(),
			NetPayout:     u.NetPayout.Units(),
			CostBasis:     u.CostBasis.Units(),
			ProfitLoss:    decimal.NewFromInt(u.ProfitLoss),
			Status:        PayoutStatusPending,
		})
	}
	return rec
}
