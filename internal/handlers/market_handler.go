package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"prediction-amm/internal/amm"
	"prediction-amm/internal/auth"
	"prediction-amm/internal/models"
	"prediction-amm/internal/services"
	"prediction-amm/internal/ws"

	"github.com/gin-gonic/gin"
)

// MarketHistory serves the read-only trade and candle history of a market.
type MarketHistory interface {
	ListTrades(ctx context.Context, marketID string, limit int) ([]models.Trade, error)
	GetPriceHistory(ctx context.Context, marketID string, since time.Time, limit int) ([]models.PriceCandle, error)
}

type MarketHandler struct {
	pools   *services.PoolManager
	history MarketHistory
	hub     *ws.Hub
}

// NewMarketHandler wires the HTTP surface. hub may be nil, in which case the
// WebSocket routes answer 503.
func NewMarketHandler(pools *services.PoolManager, history MarketHistory, hub *ws.Hub) *MarketHandler {
	return &MarketHandler{
		pools:   pools,
		history: history,
		hub:     hub,
	}
}

func queryInt(c *gin.Context, key string, def, max int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 0 || (max > 0 && v > max) {
		return def
	}
	return v
}

func (h *MarketHandler) marketResponse(ctx context.Context, market *models.Market) (models.MarketResponse, error) {
	pool, err := h.pools.GetPool(ctx, market.ID)
	if err != nil {
		return models.MarketResponse{}, err
	}
	return models.MarketResponse{
		Market: market,
		Pool:   models.NewPoolView(pool),
		Prices: h.pools.Engine().GetPrices(pool),
	}, nil
}

// ListMarkets lists markets, optionally filtered by status
// GET /api/markets
func (h *MarketHandler) ListMarkets(c *gin.Context) {
	limit := queryInt(c, "limit", 20, 100)
	if limit == 0 {
		limit = 20
	}
	offset := queryInt(c, "offset", 0, 0)

	markets, err := h.pools.ListMarkets(c.Request.Context(), models.MarketStatus(c.Query("status")), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.MarketResponse, 0, len(markets))
	for i := range markets {
		resp, err := h.marketResponse(c.Request.Context(), &markets[i])
		if err != nil {
			respondError(c, err)
			return
		}
		responses = append(responses, resp)
	}

	c.JSON(http.StatusOK, gin.H{
		"markets": responses,
		"total":   len(responses),
	})
}

// GetMarket returns a market with its pool and prices
// GET /api/markets/:id
func (h *MarketHandler) GetMarket(c *gin.Context) {
	market, err := h.pools.GetMarket(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	resp, err := h.marketResponse(c.Request.Context(), market)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetQuote previews a bet
// GET /api/markets/:id/quote?amount=&outcome=
func (h *MarketHandler) GetQuote(c *gin.Context) {
	amount, err := amm.ParseAmount(c.Query("amount"))
	if err != nil {
		respondError(c, err)
		return
	}
	outcome, err := amm.ParseOutcome(c.Query("outcome"))
	if err != nil {
		respondError(c, err)
		return
	}

	quote, err := h.pools.QuoteBet(c.Request.Context(), c.Param("id"), amount, outcome)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"available": quote != nil,
		"quote":     quote,
	})
}

// GetTrades returns the most recent trades of a market
// GET /api/markets/:id/trades
func (h *MarketHandler) GetTrades(c *gin.Context) {
	marketID := c.Param("id")
	if _, err := h.pools.GetMarket(c.Request.Context(), marketID); err != nil {
		respondError(c, err)
		return
	}
	trades, err := h.history.ListTrades(c.Request.Context(), marketID, queryInt(c, "limit", 50, 500))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

// GetCandles returns YES price candles of a market
// GET /api/markets/:id/candles?since=RFC3339&limit=
func (h *MarketHandler) GetCandles(c *gin.Context) {
	marketID := c.Param("id")
	since := time.Now().UTC().Add(-24 * time.Hour)
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an RFC3339 timestamp"})
			return
		}
		since = t.UTC()
	}
	if _, err := h.pools.GetMarket(c.Request.Context(), marketID); err != nil {
		respondError(c, err)
		return
	}

	candles, err := h.history.GetPriceHistory(c.Request.Context(), marketID, since, queryInt(c, "limit", 500, 5000))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": candles})
}

// GetSettlement returns the stored settlement of a market
// GET /api/markets/:id/settlement
func (h *MarketHandler) GetSettlement(c *gin.Context) {
	s, err := h.pools.GetSettlement(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func userID(c *gin.Context) (string, bool) {
	id, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return id, ok
}

func (h *MarketHandler) betResponse(marketID string, r *services.BetReceipt) models.BetResponse {
	res := r.Result
	return models.BetResponse{
		Outcome:        res.Outcome,
		USDCAmount:     res.USDCAmount,
		MintedShares:   res.MintedShares,
		SwappedShares:  res.SwappedShares,
		TotalShares:    res.TotalShares,
		EffectivePrice: res.EffectivePrice,
		NewProbability: res.NewProbability,
		PriceImpact:    res.PriceImpactPct,
		Position:       h.positionView(marketID, r.Position, res.NewPool),
	}
}

func (h *MarketHandler) positionView(marketID string, pos amm.UserPosition, pool amm.PoolState) models.PositionView {
	return models.PositionView{
		MarketID:       marketID,
		UserID:         pos.UserID,
		YesShares:      pos.YesShares,
		NoShares:       pos.NoShares,
		TotalCostBasis: pos.TotalCostBasis,
		Value:          h.pools.Engine().GetPositionValue(pos.YesShares, pos.NoShares, pool),
	}
}

// PlaceBet executes a Mint & Swap bet for the caller
// POST /api/markets/:id/bets
func (h *MarketHandler) PlaceBet(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var req models.BetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	outcome, err := amm.ParseOutcome(req.Outcome)
	if err != nil {
		respondError(c, err)
		return
	}

	marketID := c.Param("id")
	receipt, err := h.pools.PlaceBet(c.Request.Context(), marketID, uid, req.Amount, outcome)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.betResponse(marketID, receipt))
}

// PlaceSafeModeBet bets a share of the caller's accrued yield
// POST /api/markets/:id/safe-bets
func (h *MarketHandler) PlaceSafeModeBet(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var req models.SafeBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	outcome, err := amm.ParseOutcome(req.Outcome)
	if err != nil {
		respondError(c, err)
		return
	}

	marketID := c.Param("id")
	receipt, err := h.pools.PlaceSafeModeBet(c.Request.Context(), marketID, uid,
		req.PrincipalBalance, req.AccruedYield, req.YieldPercent, outcome)
	if err != nil {
		respondError(c, err)
		return
	}
	if receipt == nil {
		c.JSON(http.StatusOK, gin.H{"placed": false})
		return
	}
	c.JSON(http.StatusCreated, h.betResponse(marketID, receipt))
}

// SellPosition sells the caller's shares back to the pool
// POST /api/markets/:id/sell
func (h *MarketHandler) SellPosition(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var req models.SellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	outcome, err := amm.ParseOutcome(req.Outcome)
	if err != nil {
		respondError(c, err)
		return
	}

	marketID := c.Param("id")
	receipt, err := h.pools.SellPosition(c.Request.Context(), marketID, uid, req.Shares, outcome)
	if err != nil {
		respondError(c, err)
		return
	}
	res := receipt.Result
	c.JSON(http.StatusOK, models.SellResponse{
		Outcome:        res.Outcome,
		SharesSold:     res.SharesSold,
		Fee:            res.Fee,
		USDCOut:        res.USDCOut,
		EffectivePrice: res.EffectivePrice,
		PriceImpact:    res.PriceImpactPct,
		Position:       h.positionView(marketID, receipt.Position, res.NewPool),
	})
}

// GetMyPosition returns the caller's holdings marked to market
// GET /api/markets/:id/positions/me
func (h *MarketHandler) GetMyPosition(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	view, err := h.pools.GetPositionValue(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// CreateMarket opens a market (admin)
// POST /api/admin/markets
func (h *MarketHandler) CreateMarket(c *gin.Context) {
	var req models.CreateMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.CreatedBy, _ = auth.GetUserID(c)

	market, pool, err := h.pools.CreateMarket(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.MarketResponse{
		Market: market,
		Pool:   models.NewPoolView(pool),
		Prices: h.pools.Engine().GetPrices(pool),
	})
}

// ResolveMarket records the winning outcome (admin)
// POST /api/admin/markets/:id/resolve
func (h *MarketHandler) ResolveMarket(c *gin.Context) {
	var req models.ResolveMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	outcome, err := amm.ParseOutcome(req.Outcome)
	if err != nil {
		respondError(c, err)
		return
	}

	market, err := h.pools.ResolveMarket(c.Request.Context(), c.Param("id"), outcome, req.OracleSource)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, market)
}

// SettleMarket computes and stores payouts (admin)
// POST /api/admin/markets/:id/settle
func (h *MarketHandler) SettleMarket(c *gin.Context) {
	s, _, err := h.pools.SettleMarket(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// CancelMarket halts trading (admin)
// POST /api/admin/markets/:id/cancel
func (h *MarketHandler) CancelMarket(c *gin.Context) {
	market, err := h.pools.CancelMarket(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, market)
}

// StreamMarket upgrades to a WebSocket carrying one market's events
// GET /ws/markets/:id
func (h *MarketHandler) StreamMarket(c *gin.Context) {
	h.stream(c, services.MarketChannel(c.Param("id")))
}

// StreamAll upgrades to a WebSocket carrying every market's events
// GET /ws/markets
func (h *MarketHandler) StreamAll(c *gin.Context) {
	h.stream(c, services.MarketChannelPattern)
}

func (h *MarketHandler) stream(c *gin.Context, channel string) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream disabled"})
		return
	}
	h.hub.Serve(c.Writer, c.Request, channel)
}
