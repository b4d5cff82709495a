package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"prediction-amm/internal/amm"
	"prediction-amm/internal/models"
)

// EventPublisher delivers serialized market events to a channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// SettlementArchive stores a copy of each settlement outside the database.
type SettlementArchive interface {
	ArchiveSettlement(ctx context.Context, settlement *models.Settlement) error
}

// Market event types
const (
	EventMarketCreated   = "market_created"
	EventTrade           = "trade"
	EventMarketResolved  = "market_resolved"
	EventMarketSettled   = "market_settled"
	EventMarketCancelled = "market_cancelled"
)

// MarketEvent is published on MarketChannel(marketID) after every committed
// change to a market.
type MarketEvent struct {
	Type      string              `json:"type"`
	MarketID  string              `json:"market_id"`
	Status    models.MarketStatus `json:"status"`
	Prices    *amm.Prices         `json:"prices,omitempty"`
	TradeType models.TradeType    `json:"trade_type,omitempty"`
	Outcome   amm.Outcome         `json:"outcome,omitempty"`
	USDC      amm.Amount          `json:"usdc,omitempty"`
	Shares    amm.Amount          `json:"shares,omitempty"`
	At        time.Time           `json:"at"`
}

// MarketChannel names the channel carrying events of one market.
func MarketChannel(marketID string) string {
	return "market:" + marketID
}

// MarketChannelPattern matches every market channel.
const MarketChannelPattern = "market:*"

func (pm *PoolManager) publish(ctx context.Context, ev MarketEvent) {
	if pm.publisher == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[PoolManager] Failed to encode %s event for market %s: %v", ev.Type, ev.MarketID, err)
		return
	}
	if err := pm.publisher.Publish(ctx, MarketChannel(ev.MarketID), payload); err != nil {
		log.Printf("[PoolManager] Failed to publish %s event for market %s: %v", ev.Type, ev.MarketID, err)
	}
}
