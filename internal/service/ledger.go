package service

import (
	"time"

	"clicker_ledger/internal/catalog"
	"clicker_ledger/internal/repository"
)

// Options tunes the ledger. Zero values fall back to defaults.
type Options struct {
	ReferralBonus    int64
	PassiveMaxWindow time.Duration
	MaxClicksPerCall int
	BotUsername      string
	LeaderboardCache LeaderboardCache
	Clock            func() time.Time
}

// Ledger bundles the ledger services over one store. All of them share the
// same per-user locks.
type Ledger struct {
	Users     *UserService
	Balances  *BalanceService
	Purchases *PurchaseService
	Referrals *ReferralService
	Queries   *QueryService

	Catalog *catalog.Catalog
	store   repository.Store
}

func NewLedger(store repository.Store, cat *catalog.Catalog, opts Options) *Ledger {
	if cat == nil {
		cat = catalog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	c := core{store: store, locks: NewUserLocks(), now: clock}

	return &Ledger{
		Users:     NewUserService(c),
		Balances:  NewBalanceService(c, opts.PassiveMaxWindow, opts.MaxClicksPerCall),
		Purchases: NewPurchaseService(c, cat, opts.PassiveMaxWindow),
		Referrals: NewReferralService(c, opts.ReferralBonus, opts.BotUsername),
		Queries:   NewQueryService(c, cat, opts.LeaderboardCache),
		Catalog:   cat,
		store:     store,
	}
}

// Store exposes the underlying store for health checks.
func (l *Ledger) Store() repository.Store {
	return l.store
}
