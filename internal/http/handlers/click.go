package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type ClickRequest struct {
	Clicks int64 `json:"clicks"`
}

// Click credits a batch of taps. An empty body counts as one click.
func (h *Handler) Click(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	req := ClickRequest{Clicks: 1}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
			return
		}
	}

	res, err := h.Ledger.Balances.Click(c.Request.Context(), userID, req.Clicks)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) CollectPassive(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	res, err := h.Ledger.Balances.CollectPassive(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
