package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"clicker_ledger/internal/db"
	"clicker_ledger/internal/logger"
	"clicker_ledger/internal/migrations"

	"github.com/joho/godotenv"
)

func main() {
	apply := flag.Bool("apply", false, "apply migrations (default lists them)")
	flag.Parse()

	_ = godotenv.Load()
	logger.Init("info", false)

	if !*apply {
		names, err := migrations.Names()
		if err != nil {
			logger.Fatal("list migrations", "error", err)
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Fatal("DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn, 1)
	if err != nil {
		logger.Fatal("connect", "error", err)
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool, func(name string) {
		logger.Info("applied", "migration", name)
	}); err != nil {
		logger.Fatal("migration failed", "error", err)
	}
}
