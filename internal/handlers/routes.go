package handlers

import (
	"net/http"
	"time"

	"prediction-amm/internal/auth"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the health check and every market route on router.
func RegisterRoutes(router *gin.Engine, h *MarketHandler) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	// Public market routes
	router.GET("/api/markets", h.ListMarkets)
	router.GET("/api/markets/:id", h.GetMarket)
	router.GET("/api/markets/:id/quote", h.GetQuote)
	router.GET("/api/markets/:id/trades", h.GetTrades)
	router.GET("/api/markets/:id/candles", h.GetCandles)
	router.GET("/api/markets/:id/settlement", h.GetSettlement)
	router.GET("/ws/markets", h.StreamAll)
	router.GET("/ws/markets/:id", h.StreamMarket)

	// Trading routes (protected)
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware())
	{
		api.POST("/markets/:id/bets", h.PlaceBet)
		api.POST("/markets/:id/safe-bets", h.PlaceSafeModeBet)
		api.POST("/markets/:id/sell", h.SellPosition)
		api.GET("/markets/:id/positions/me", h.GetMyPosition)
	}

	// Admin routes (protected + admin only)
	admin := router.Group("/api/admin")
	admin.Use(auth.AuthMiddleware(), auth.AdminMiddleware())
	{
		admin.POST("/markets", h.CreateMarket)
		admin.POST("/markets/:id/resolve", h.ResolveMarket)
		admin.POST("/markets/:id/settle", h.SettleMarket)
		admin.POST("/markets/:id/cancel", h.CancelMarket)
	}
}
