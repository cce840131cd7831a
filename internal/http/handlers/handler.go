package handlers

import (
	"errors"
	"net/http"

	"clicker_ledger/internal/domain"
	"clicker_ledger/internal/logger"
	"clicker_ledger/internal/service"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Ledger   *service.Ledger
	BotToken string
	DevMode  bool
}

func NewHandler(ledger *service.Ledger, botToken string, devMode bool) *Handler {
	return &Handler{Ledger: ledger, BotToken: botToken, DevMode: devMode}
}

// getUserID извлекает user_id из контекста Gin
func getUserID(c interface{ Get(string) (any, bool) }) (int64, bool) {
	uidVal, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	switch v := uidVal.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// writeError maps ledger errors to HTTP statuses.
func writeError(c *gin.Context, err error) {
	switch {
	case domain.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrDuplicateTransaction):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "retryable": true})
	case errors.Is(err, domain.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable", "retryable": true})
	case domain.IsBusinessRule(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.WithContext(c.Request.Context()).Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
