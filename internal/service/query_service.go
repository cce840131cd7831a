package service

import (
	"context"
	"fmt"

	"clicker_ledger/internal/catalog"
	"clicker_ledger/internal/domain"
	"clicker_ledger/internal/logger"
)

const (
	DefaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// LeaderboardCache keeps recent leaderboard pages. Implementations may be
// stale for a short TTL.
type LeaderboardCache interface {
	Get(ctx context.Context, limit int) ([]domain.LeaderboardEntry, bool, error)
	Set(ctx context.Context, limit int, rows []domain.LeaderboardEntry) error
}

// QueryService is the read side of the ledger. It never writes.
type QueryService struct {
	core
	catalog *catalog.Catalog
	cache   LeaderboardCache
}

func NewQueryService(c core, cat *catalog.Catalog, cache LeaderboardCache) *QueryService {
	return &QueryService{core: c, catalog: cat, cache: cache}
}

func (s *QueryService) Profile(ctx context.Context, userID int64) (*domain.Profile, error) {
	const op = "service.Query.Profile"

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	b, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	totals, err := s.store.ReferralTotals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	purchases, err := s.store.CountTransactions(ctx, userID, domain.KindPurchase, domain.KindUpgradePurchase)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &domain.Profile{
		User:             *u,
		Balance:          *b,
		TotalPurchases:   purchases,
		ReferralsCount:   totals.Count,
		ReferralEarnings: totals.Earnings,
	}, nil
}

func (s *QueryService) Stats(ctx context.Context, userID int64) (*domain.Stats, error) {
	const op = "service.Query.Stats"

	b, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	totals, err := s.store.ReferralTotals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &domain.Stats{
		Coins:            b.Coins,
		TotalEarned:      b.TotalEarned,
		TotalSpent:       b.TotalSpent,
		TotalClicks:      b.TotalClicks,
		ClickPower:       b.ClickPower,
		PassiveIncome:    b.PassiveIncome,
		ReferralsCount:   totals.Count,
		ReferralEarnings: totals.Earnings,
	}, nil
}

// ShopItems lists the whole catalog priced at the user's committed levels.
func (s *QueryService) ShopItems(ctx context.Context, userID int64) ([]domain.UpgradeView, error) {
	const op = "service.Query.ShopItems"

	levels, err := s.levels(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.catalog.List(levels), nil
}

// Upgrades lists only the items the user owns, most recent purchase first.
func (s *QueryService) Upgrades(ctx context.Context, userID int64) ([]domain.UpgradeView, error) {
	const op = "service.Query.Upgrades"

	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	owned, err := s.store.ListOwnerships(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	views := make([]domain.UpgradeView, 0, len(owned))
	for _, o := range owned {
		def, ok := s.catalog.Lookup(o.UpgradeID)
		if !ok {
			// item dropped from the catalog after purchase
			continue
		}
		views = append(views, catalog.View(def, o.Level))
	}
	return views, nil
}

func (s *QueryService) levels(ctx context.Context, userID int64) (map[string]int, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	owned, err := s.store.ListOwnerships(ctx, userID)
	if err != nil {
		return nil, err
	}
	levels := make(map[string]int, len(owned))
	for _, o := range owned {
		levels[o.UpgradeID] = o.Level
	}
	return levels, nil
}

// Leaderboard ranks users by total_earned, ties by ascending id. limit is
// clamped to [1, 100].
func (s *QueryService) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	const op = "service.Query.Leaderboard"

	switch {
	case limit < 1:
		limit = 1
	case limit > maxLeaderboardLimit:
		limit = maxLeaderboardLimit
	}

	log := logger.WithContext(ctx).With("component", "query")

	if s.cache != nil {
		rows, ok, err := s.cache.Get(ctx, limit)
		if err != nil {
			log.Warn("leaderboard cache read failed", "error", err)
		} else if ok {
			return rows, nil
		}
	}

	rows, err := s.store.Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if rows == nil {
		rows = []domain.LeaderboardEntry{}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, limit, rows); err != nil {
			log.Warn("leaderboard cache write failed", "error", err)
		}
	}
	return rows, nil
}
