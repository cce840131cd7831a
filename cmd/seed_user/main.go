package main

import (
	"context"
	"flag"
	"fmt"

	"clicker_ledger/internal/catalog"
	"clicker_ledger/internal/config"
	"clicker_ledger/internal/db"
	"clicker_ledger/internal/domain"
	"clicker_ledger/internal/logger"
	"clicker_ledger/internal/repository/postgres"
	"clicker_ledger/internal/service"
)

// seed_user creates (or refreshes) a test player, optionally grants coins,
// and prints a JWT for calling the API by hand.
func main() {
	id := flag.Int64("id", 1234567890, "telegram user id")
	username := flag.String("username", "testuser", "username")
	coins := flag.Int64("coins", 0, "coins to grant")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, false)
	service.InitJWT(cfg.JWTSecret)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL, 2)
	if err != nil {
		logger.Fatal("connect", "error", err)
	}
	store := postgres.New(pool, cfg.StoreTimeout)
	defer store.Close()

	ledger := service.NewLedger(store, catalog.Default(), service.Options{})

	u, created, err := ledger.Users.CreateOrUpdate(ctx, *id, domain.ProfileFields{Username: *username, FirstName: "Tester"})
	if err != nil {
		logger.Fatal("create user failed", "error", err)
	}
	logger.Info("user ready", "id", u.ID, "created", created)

	if *coins > 0 {
		b, err := ledger.Balances.Credit(ctx, u.ID, *coins, domain.KindManual, domain.Meta{Description: "seed"})
		if err != nil {
			logger.Fatal("grant coins failed", "error", err)
		}
		logger.Info("coins granted", "amount", *coins, "balance", b.Coins)
	}

	token, err := service.GenerateJWT(u.ID)
	if err != nil {
		logger.Fatal("failed to generate token", "error", err)
	}
	fmt.Println(token)
}
