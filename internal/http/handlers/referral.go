package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetReferralLink returns the user's invite link
func (h *Handler) GetReferralLink(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"referral_link": h.Ledger.Referrals.Link(userID),
		"bonus":         h.Ledger.Referrals.Bonus(),
	})
}

// GetReferralStats returns user's referral statistics
func (h *Handler) GetReferralStats(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	stats, err := h.Ledger.Referrals.Stats(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
