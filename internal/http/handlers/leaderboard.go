package handlers

import (
	"net/http"
	"strconv"

	"clicker_ledger/internal/service"

	"github.com/gin-gonic/gin"
)

// GetLeaderboard returns the top users by total earned. ?limit= is clamped
// to [1, 100].
func (h *Handler) GetLeaderboard(c *gin.Context) {
	limit := service.DefaultLeaderboardLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	top, err := h.Ledger.Queries.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": top})
}
