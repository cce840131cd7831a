package handlers

import (
	"errors"
	"net/http"

	"clicker_ledger/internal/domain"
	"clicker_ledger/internal/logger"
	"clicker_ledger/internal/service"
	"clicker_ledger/internal/telegram"

	"github.com/gin-gonic/gin"
)

type AuthRequest struct {
	InitData string `json:"init_data" binding:"required"`
}

// Auth exchanges Mini App init data for a JWT. A first launch through a
// ref_<id> link also registers the referral.
func (h *Handler) Auth(c *gin.Context) {
	var req AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	launch, err := telegram.Verify(req.InitData, h.BotToken, h.DevMode)
	switch {
	case errors.Is(err, telegram.ErrInvalidInitData):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	user, created, err := h.Ledger.Users.CreateOrUpdate(ctx, launch.User.ID, domain.ProfileFields{
		Username:  launch.User.Username,
		FirstName: launch.User.FirstName,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if referrerID, ok := service.ParseStartPayload(launch.StartParam); ok && created {
		bonus := h.Ledger.Referrals.Bonus()
		if _, err := h.Ledger.Referrals.Register(ctx, referrerID, user.ID, bonus); err != nil {
			logger.WithContext(ctx).Warn("referral not registered",
				"referrer_id", referrerID, "user_id", user.ID, "error", err)
		}
	}

	token, err := service.GenerateJWT(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}

	profile, err := h.Ledger.Queries.Profile(ctx, user.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"created": created,
		"user":    profile,
	})
}
