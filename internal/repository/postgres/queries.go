package postgres

import (
	"context"
	"fmt"

	"clicker_ledger/internal/domain"

	"github.com/Masterminds/squirrel"
)

func (s *Storage) ListOwnerships(ctx context.Context, userID int64) ([]domain.UpgradeOwnership, error) {
	const op = "storage.postgres.ListOwnerships"

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	sql, args, err := psql.Select("user_id", "upgrade_id", "level", "purchased_at").
		From("upgrade_ownerships").
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.Gt{"level": 0}).
		OrderBy("purchased_at DESC", "upgrade_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	defer rows.Close()

	var res []domain.UpgradeOwnership
	for rows.Next() {
		var o domain.UpgradeOwnership
		if err := rows.Scan(&o.UserID, &o.UpgradeID, &o.Level, &o.PurchasedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res = append(res, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return res, nil
}

func (s *Storage) ListTransactions(ctx context.Context, userID int64, limit int) ([]domain.Transaction, error) {
	const op = "storage.postgres.ListTransactions"

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	sql, args, err := psql.Select("id", "user_id", "kind", "amount", "description", "item_id",
		"COALESCE(external_id, '')", "created_at").
		From("transactions").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	defer rows.Close()

	var res []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var kind string
		if err := rows.Scan(&t.ID, &t.UserID, &kind, &t.Amount, &t.Description, &t.ItemID,
			&t.ExternalID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		t.Kind = domain.TransactionKind(kind)
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return res, nil
}

func (s *Storage) CountTransactions(ctx context.Context, userID int64, kinds ...domain.TransactionKind) (int, error) {
	const op = "storage.postgres.CountTransactions"

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	q := psql.Select("COUNT(*)").
		From("transactions").
		Where(squirrel.Eq{"user_id": userID})
	if len(kinds) > 0 {
		names := make([]string, len(kinds))
		for i, k := range kinds {
			names[i] = string(k)
		}
		q = q.Where(squirrel.Eq{"kind": names})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var n int
	if err := s.db.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return n, nil
}

func (s *Storage) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	const op = "storage.postgres.Leaderboard"

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	sql, args, err := psql.Select("u.id", "u.username", "u.first_name",
		"b.total_earned", "b.total_clicks", "b.coins").
		From("users u").
		Join("balances b ON b.user_id = u.id").
		OrderBy("b.total_earned DESC", "u.id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	defer rows.Close()

	var res []domain.LeaderboardEntry
	for rows.Next() {
		e := domain.LeaderboardEntry{Position: len(res) + 1}
		if err := rows.Scan(&e.UserID, &e.Username, &e.FirstName,
			&e.TotalEarned, &e.TotalClicks, &e.Coins); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return res, nil
}

func (s *Storage) ReferralsOf(ctx context.Context, referrerID int64) ([]domain.ReferredUser, error) {
	const op = "storage.postgres.ReferralsOf"

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	sql, args, err := psql.Select("u.id", "u.username", "u.first_name",
		"r.created_at", "b.total_earned", "r.bonus_paid").
		From("referrals r").
		Join("users u ON u.id = r.referred_id").
		Join("balances b ON b.user_id = r.referred_id").
		Where(squirrel.Eq{"r.referrer_id": referrerID}).
		OrderBy("r.created_at DESC", "r.referred_id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	defer rows.Close()

	var res []domain.ReferredUser
	for rows.Next() {
		var r domain.ReferredUser
		if err := rows.Scan(&r.UserID, &r.Username, &r.FirstName,
			&r.ReferredAt, &r.TotalEarned, &r.BonusPaid); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return res, nil
}

func (s *Storage) ReferralTotals(ctx context.Context, referrerID int64) (domain.ReferralTotals, error) {
	const op = "storage.postgres.ReferralTotals"

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	sql, args, err := psql.Select("COUNT(*)", "COALESCE(SUM(bonus_paid), 0)").
		From("referrals").
		Where(squirrel.Eq{"referrer_id": referrerID}).
		ToSql()
	if err != nil {
		return domain.ReferralTotals{}, fmt.Errorf("%s: %w", op, err)
	}

	var t domain.ReferralTotals
	if err := s.db.QueryRow(ctx, sql, args...).Scan(&t.Count, &t.Earnings); err != nil {
		return domain.ReferralTotals{}, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return t, nil
}
