package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clicker_ledger/internal/bot"
	"clicker_ledger/internal/cache"
	"clicker_ledger/internal/catalog"
	"clicker_ledger/internal/config"
	"clicker_ledger/internal/db"
	httpServer "clicker_ledger/internal/http"
	"clicker_ledger/internal/http/handlers"
	"clicker_ledger/internal/http/middleware"
	"clicker_ledger/internal/logger"
	"clicker_ledger/internal/repository"
	"clicker_ledger/internal/repository/memory"
	"clicker_ledger/internal/repository/postgres"
	"clicker_ledger/internal/service"

	"github.com/gin-gonic/gin"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	service.InitJWT(cfg.JWTSecret)

	ctx := context.Background()

	store := openStore(ctx, cfg)
	defer store.Close()

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		loaded, err := catalog.LoadFile(cfg.CatalogPath)
		if err != nil {
			logger.Fatal("failed to load catalog", "path", cfg.CatalogPath, "error", err)
		}
		cat = loaded
	}

	opts := service.Options{
		ReferralBonus:    cfg.ReferralBonus,
		PassiveMaxWindow: cfg.PassiveMaxWindow,
		MaxClicksPerCall: cfg.MaxClicksPerCall,
		BotUsername:      cfg.BotUsername,
	}

	deps := map[string]handlers.Pinger{}
	redisClient, err := cache.Connect(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		// rate limits and the leaderboard fall back to in-process state
		logger.Warn("redis unavailable, continuing without it", "error", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		opts.LeaderboardCache = cache.NewLeaderboard(redisClient, cfg.LeaderboardCacheTTL)
		deps["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	ledger := service.NewLedger(store, cat, opts)

	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handlers.NewHandler(ledger, cfg.BotToken, cfg.DevMode)
	health := handlers.NewHealthHandler(store, version, deps)
	r := httpServer.NewRouter(h, health, middleware.NewRateLimiter(redisClient), httpServer.Limits{
		API:        cfg.APIRateLimit,
		APIWindow:  time.Duration(cfg.APIRateWindow) * time.Second,
		Auth:       cfg.AuthRateLimit,
		AuthWindow: time.Duration(cfg.AuthRateWindow) * time.Second,
	})

	var tgBot *bot.Bot
	if cfg.BotEnabled {
		tgBot, err = bot.New(cfg.BotToken, ledger, bot.Settings{
			WebAppURL:     cfg.WebAppURL,
			ProviderToken: cfg.PaymentProviderToken,
			AdminIDs:      cfg.AdminTelegramIDs,
		})
		if err != nil {
			logger.Error("failed to start bot", "error", err)
		} else {
			go tgBot.Start()
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort, "store", cfg.StoreDriver, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	if tgBot != nil {
		tgBot.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}

func openStore(ctx context.Context, cfg *config.Config) repository.Store {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.New()
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL, 0)
	if err != nil {
		logger.Fatal("failed to connect database", "error", err)
	}
	return postgres.New(pool, cfg.StoreTimeout)
}
