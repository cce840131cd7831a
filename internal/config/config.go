package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"clicker_ledger/internal/logger"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	AppPort string
	DevMode bool

	StoreDriver  string
	DatabaseURL  string
	StoreTimeout time.Duration

	JWTSecret string

	BotToken             string
	BotUsername          string
	BotEnabled           bool
	WebAppURL            string
	PaymentProviderToken string
	AdminTelegramIDs     []int64 // tg id админов бота

	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	LeaderboardCacheTTL time.Duration

	ReferralBonus    int64
	CatalogPath      string
	PassiveMaxWindow time.Duration
	MaxClicksPerCall int

	LogLevel string
	LogJSON  bool

	// Rate limits
	APIRateLimit   int
	APIRateWindow  int
	AuthRateLimit  int
	AuthRateWindow int
}

// Load reads the configuration from env (and .env when present).
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		AppPort: getString("APP_PORT", "8080"),
		DevMode: os.Getenv("DEV_MODE") == "true",

		StoreDriver:  getString("STORE_DRIVER", StoreDriverPostgres),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StoreTimeout: time.Duration(getInt("STORE_TIMEOUT_SECONDS", 5)) * time.Second,

		JWTSecret: os.Getenv("JWT_SECRET"),

		BotToken:             os.Getenv("BOT_TOKEN"),
		BotUsername:          getString("BOT_USERNAME", "clicker_bot"),
		BotEnabled:           os.Getenv("BOT_ENABLED") == "true",
		WebAppURL:            os.Getenv("WEBAPP_URL"),
		PaymentProviderToken: os.Getenv("PAYMENT_PROVIDER_TOKEN"),
		AdminTelegramIDs:     parseIDs(os.Getenv("ADMIN_TELEGRAM_IDS")),

		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             getInt("REDIS_DB", 0),
		LeaderboardCacheTTL: time.Duration(getInt("LEADERBOARD_CACHE_TTL_SECONDS", 10)) * time.Second,

		ReferralBonus:    int64(getInt("REFERRAL_BONUS", 100)),
		CatalogPath:      os.Getenv("CATALOG_PATH"),
		PassiveMaxWindow: time.Duration(getInt("PASSIVE_MAX_WINDOW_SECONDS", 3*60*60)) * time.Second,
		MaxClicksPerCall: getInt("MAX_CLICKS_PER_CALL", 1000),

		LogLevel: getString("LOG_LEVEL", "info"),
		LogJSON:  os.Getenv("LOG_JSON") == "true",

		APIRateLimit:   getInt("API_RATE_LIMIT", 120),
		APIRateWindow:  getInt("API_RATE_WINDOW_SECONDS", 60),
		AuthRateLimit:  getInt("AUTH_RATE_LIMIT", 20),
		AuthRateWindow: getInt("AUTH_RATE_WINDOW_SECONDS", 60),
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			logger.Fatal("DATABASE_URL is not set")
		}
	case StoreDriverMemory:
	default:
		logger.Fatal("unknown STORE_DRIVER", "driver", cfg.StoreDriver)
	}

	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}

	if cfg.BotEnabled && cfg.BotToken == "" {
		logger.Fatal("BOT_TOKEN is not set")
	}

	return cfg
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getInt keeps def for unset, malformed or non-positive values.
func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		logger.Warn("ignoring invalid env value", "key", key, "value", v)
		return def
	}
	return n
}

func parseIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			logger.Warn("ignoring invalid admin id", "value", part)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
