package models

import (
	"time"
)

// MarketStatus is the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive    MarketStatus = "active"
	MarketStatusResolved  MarketStatus = "resolved"
	MarketStatusSettled   MarketStatus = "settled"
	MarketStatusCancelled MarketStatus = "cancelled"
)

// CanTransitionTo reports whether a market may move from s to next.
// active -> resolved -> settled, and active -> cancelled.
func (s MarketStatus) CanTransitionTo(next MarketStatus) bool {
	switch s {
	case MarketStatusActive:
		return next == MarketStatusResolved || next == MarketStatusCancelled
	case MarketStatusResolved:
		return next == MarketStatusSettled
	}
	return false
}

// Market represents a binary prediction market
type Market struct {
	ID             string       `gorm:"size:64;primaryKey" json:"id"`
	Question       string       `gorm:"size:500;not null" json:"question"`
	Description    string       `gorm:"type:text" json:"description"`
	Category       string       `gorm:"size:50;index" json:"category"`
	Status         MarketStatus `gorm:"size:20;not null;default:active;index" json:"status"`
	WinningOutcome string       `gorm:"size:3" json:"winning_outcome,omitempty"` // YES, NO
	OracleSource   string       `gorm:"size:255" json:"oracle_source,omitempty"`
	CreatedBy      string       `gorm:"size:64;index" json:"created_by,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	ResolvedAt     *time.Time   `json:"resolved_at,omitempty"`
	SettledAt      *time.Time   `json:"settled_at,omitempty"`
}

// TableName specifies the table name for Market model
func (Market) TableName() string {
	return "markets"
}

// IsTradable reports whether bets and sells are accepted.
func (m *Market) IsTradable() bool {
	return m.Status == MarketStatusActive
}
