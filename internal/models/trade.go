package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TradeType identifies how a trade entered the pool
type TradeType string

const (
	TradeTypeBet     TradeType = "BET"
	TradeTypeSafeBet TradeType = "SAFE_BET"
	TradeTypeSell    TradeType = "SELL"
)

// Trade is an executed bet or sale. USDCAmount is paid in for bets and paid
// out for sells; Shares are received for bets and given up for sells.
type Trade struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	MarketID   string          `gorm:"size:64;not null;index" json:"market_id"`
	UserID     string          `gorm:"size:64;not null;index" json:"user_id"`
	Type       TradeType       `gorm:"size:20;not null" json:"type"`
	Outcome    string          `gorm:"size:3;not null" json:"outcome"`
	USDCAmount decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"usdc_amount"`
	Shares     decimal.Decimal `gorm:"type:numeric(78,0);not null" json:"shares"`
	Fee        decimal.Decimal `gorm:"type:numeric(78,0);not null;default:0" json:"fee"`
	Price      decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"price"`     // effective USDC per share
	YesPrice   decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"yes_price"` // after the trade
	CreatedAt  time.Time       `gorm:"index" json:"created_at"`
}

func (Trade) TableName() string {
	return "amm_trades"
}

func (t *Trade) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// PriceCandle represents OHLC data of the YES price for charting
type PriceCandle struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	MarketID  string          `gorm:"size:64;not null;uniqueIndex:idx_candle_market_ts" json:"market_id"`
	Timestamp time.Time       `gorm:"not null;uniqueIndex:idx_candle_market_ts" json:"timestamp"`
	Open      decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"open"`
	High      decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"high"`
	Low       decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"low"`
	Close     decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"close"`
	Volume    decimal.Decimal `gorm:"type:numeric(78,0);not null;default:0" json:"volume"` // USDC micro-units traded
	CreatedAt time.Time       `json:"created_at"`
}

func (PriceCandle) TableName() string {
	return "price_candles"
}

func (c *PriceCandle) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
