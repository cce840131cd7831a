package http

import (
	"time"

	"clicker_ledger/internal/http/handlers"
	"clicker_ledger/internal/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Limits are the per-window request budgets.
type Limits struct {
	API        int
	APIWindow  time.Duration
	Auth       int
	AuthWindow time.Duration
	// Click and passive collection, per user
	Game       int
	GameWindow time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.API <= 0 {
		l.API = 120
	}
	if l.APIWindow <= 0 {
		l.APIWindow = time.Minute
	}
	if l.Auth <= 0 {
		l.Auth = 20
	}
	if l.AuthWindow <= 0 {
		l.AuthWindow = time.Minute
	}
	if l.Game <= 0 {
		l.Game = 600
	}
	if l.GameWindow <= 0 {
		l.GameWindow = time.Minute
	}
	return l
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(h *handlers.Handler, health *handlers.HealthHandler, rl *middleware.RateLimiter, limits Limits) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), cors())
	RegisterRoutes(r, h, health, rl, limits)
	return r
}

func RegisterRoutes(r *gin.Engine, h *handlers.Handler, health *handlers.HealthHandler, rl *middleware.RateLimiter, limits Limits) {
	limits = limits.withDefaults()

	// Health checks (no rate limiting)
	r.GET("/health", health.Health)
	r.GET("/healthz", health.Liveness)
	r.GET("/readyz", health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.Use(rl.ByIP("api", limits.API, limits.APIWindow))

	v1.POST("/auth", rl.ByIP("auth", limits.Auth, limits.AuthWindow), h.Auth)
	v1.GET("/leaderboard", h.GetLeaderboard)

	authed := v1.Group("")
	authed.Use(middleware.JWT())
	{
		authed.GET("/profile", h.MyProfile)
		authed.GET("/stats", h.Stats)
		authed.GET("/transactions", h.Transactions)

		authed.GET("/shop/items", h.ShopItems)
		authed.POST("/shop/buy", h.Buy)
		authed.GET("/upgrades", h.MyUpgrades)

		gameRL := rl.ByUser("game", limits.Game, limits.GameWindow)
		authed.POST("/click", gameRL, h.Click)
		authed.POST("/passive/collect", gameRL, h.CollectPassive)

		authed.GET("/referral/link", h.GetReferralLink)
		authed.GET("/referral/stats", h.GetReferralStats)
	}
}

// cors allows the Mini App frontend on another origin.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
