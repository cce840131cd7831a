package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ShopItems lists the catalog priced at the user's current levels
func (h *Handler) ShopItems(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	items, err := h.Ledger.Queries.ShopItems(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type BuyRequest struct {
	ItemID string `json:"item_id" binding:"required"`
}

func (h *Handler) Buy(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req BuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "item_id is required"})
		return
	}

	res, err := h.Ledger.Purchases.Buy(c.Request.Context(), userID, req.ItemID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// MyUpgrades lists owned upgrades, latest purchase first
func (h *Handler) MyUpgrades(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ups, err := h.Ledger.Queries.Upgrades(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"upgrades": ups})
}
