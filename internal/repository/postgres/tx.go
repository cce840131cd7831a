package postgres

import (
	"context"
	"errors"
	"fmt"

	"clicker_ledger/internal/domain"

	"github.com/jackc/pgx/v5"
)

type pgTx struct {
	q querier
}

const userColumns = "id, username, first_name, referrer_id, registered_at, last_active_at"

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.ReferrerID, &u.RegisteredAt, &u.LastActiveAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func getUser(ctx context.Context, q querier, userID int64) (*domain.User, error) {
	const op = "storage.postgres.GetUser"

	u, err := scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return u, nil
}

func getBalance(ctx context.Context, q querier, userID int64, forUpdate bool) (*domain.Balance, error) {
	const op = "storage.postgres.GetBalance"

	query := `SELECT user_id, coins, total_earned, total_spent, total_clicks,
		        click_power, passive_income, last_collection_at
		 FROM balances
		 WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var b domain.Balance
	err := q.QueryRow(ctx, query, userID).Scan(
		&b.UserID, &b.Coins, &b.TotalEarned, &b.TotalSpent, &b.TotalClicks,
		&b.ClickPower, &b.PassiveIncome, &b.LastCollectionAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return &b, nil
}

func (t *pgTx) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	return getUser(ctx, t.q, userID)
}

func (t *pgTx) UpsertUser(ctx context.Context, u *domain.User) (bool, error) {
	const op = "storage.postgres.UpsertUser"

	// xmax is zero only for a freshly inserted row
	var created bool
	err := t.q.QueryRow(ctx, `
		INSERT INTO users (id, username, first_name, registered_at, last_active_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		   SET username = EXCLUDED.username,
		       first_name = EXCLUDED.first_name,
		       last_active_at = EXCLUDED.last_active_at
		RETURNING referrer_id, registered_at, (xmax = 0)`,
		u.ID, u.Username, u.FirstName, u.RegisteredAt, u.LastActiveAt,
	).Scan(&u.ReferrerID, &u.RegisteredAt, &created)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, mapError(err))
	}

	if !created {
		return false, nil
	}

	b := domain.NewBalance(u.ID, u.RegisteredAt)
	sql, args, err := psql.Insert("balances").
		Columns("user_id", "click_power", "passive_income", "last_collection_at").
		Values(b.UserID, b.ClickPower, b.PassiveIncome, b.LastCollectionAt).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := t.q.Exec(ctx, sql, args...); err != nil {
		return false, fmt.Errorf("%s: balance: %w", op, mapError(err))
	}
	return true, nil
}

func (t *pgTx) SetReferrer(ctx context.Context, referredID, referrerID int64) error {
	const op = "storage.postgres.SetReferrer"

	_, err := t.q.Exec(ctx,
		`UPDATE users SET referrer_id = $2 WHERE id = $1 AND referrer_id IS NULL`,
		referredID, referrerID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return nil
}

func (t *pgTx) LockBalance(ctx context.Context, userID int64) (*domain.Balance, error) {
	return getBalance(ctx, t.q, userID, true)
}

func (t *pgTx) SaveBalance(ctx context.Context, b *domain.Balance) error {
	const op = "storage.postgres.SaveBalance"

	sql, args, err := psql.Update("balances").
		Set("coins", b.Coins).
		Set("total_earned", b.TotalEarned).
		Set("total_spent", b.TotalSpent).
		Set("total_clicks", b.TotalClicks).
		Set("click_power", b.ClickPower).
		Set("passive_income", b.PassiveIncome).
		Set("last_collection_at", b.LastCollectionAt).
		Where("user_id = ?", b.UserID).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tag, err := t.q.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (t *pgTx) AppendTransaction(ctx context.Context, tr *domain.Transaction) error {
	const op = "storage.postgres.AppendTransaction"

	var externalID *string
	if tr.ExternalID != "" {
		externalID = &tr.ExternalID
	}

	sql, args, err := psql.Insert("transactions").
		Columns("user_id", "kind", "amount", "description", "item_id", "external_id", "created_at").
		Values(tr.UserID, string(tr.Kind), tr.Amount, tr.Description, tr.ItemID, externalID, tr.CreatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := t.q.QueryRow(ctx, sql, args...).Scan(&tr.ID); err != nil {
		mapped := mapError(err)
		if errors.Is(mapped, domain.ErrDuplicateTransaction) {
			return mapped
		}
		return fmt.Errorf("%s: %w", op, mapped)
	}
	return nil
}

func (t *pgTx) GetOwnership(ctx context.Context, userID int64, upgradeID string) (*domain.UpgradeOwnership, error) {
	const op = "storage.postgres.GetOwnership"

	o := domain.UpgradeOwnership{UserID: userID, UpgradeID: upgradeID}
	err := t.q.QueryRow(ctx, `
		SELECT level, purchased_at
		FROM upgrade_ownerships
		WHERE user_id = $1 AND upgrade_id = $2
		FOR UPDATE`,
		userID, upgradeID,
	).Scan(&o.Level, &o.PurchasedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return &o, nil
}

func (t *pgTx) SaveOwnership(ctx context.Context, o *domain.UpgradeOwnership) error {
	const op = "storage.postgres.SaveOwnership"

	_, err := t.q.Exec(ctx, `
		INSERT INTO upgrade_ownerships (user_id, upgrade_id, level, purchased_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, upgrade_id) DO UPDATE
		   SET level = EXCLUDED.level,
		       purchased_at = EXCLUDED.purchased_at`,
		o.UserID, o.UpgradeID, o.Level, o.PurchasedAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return nil
}

func (t *pgTx) InsertReferral(ctx context.Context, e *domain.ReferralEdge) (bool, error) {
	const op = "storage.postgres.InsertReferral"

	tag, err := t.q.Exec(ctx, `
		INSERT INTO referrals (referrer_id, referred_id, bonus_paid, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (referred_id) DO NOTHING`,
		e.ReferrerID, e.ReferredID, e.BonusPaid, e.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return tag.RowsAffected() == 1, nil
}
