package handlers

import (
	"errors"
	"log"
	"net/http"

	"prediction-amm/internal/amm"
	"prediction-amm/internal/services"

	"github.com/gin-gonic/gin"
)

// statusFor maps a service or engine error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, amm.ErrInvalidArgument), errors.Is(err, services.ErrInsufficientShares):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrMarketNotFound), errors.Is(err, services.ErrSettlementNotFound):
		return http.StatusNotFound
	case errors.Is(err, amm.ErrPriceCapExceeded), errors.Is(err, amm.ErrInsufficientLiquidity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrMarketNotActive),
		errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrMarketExists),
		errors.Is(err, services.ErrConcurrentUpdate),
		errors.Is(err, services.ErrMarketNotResolved):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		if errors.Is(err, amm.ErrSolvencyCheckFailed) {
			log.Printf("[MarketHandler] CRITICAL: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
			c.JSON(status, gin.H{"error": "pool solvency check failed"})
			return
		}
		log.Printf("[MarketHandler] %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
