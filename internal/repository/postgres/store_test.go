package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"clicker_ledger/internal/domain"
	"clicker_ledger/internal/migrations"
	"clicker_ledger/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"serialization", &pgconn.PgError{Code: "40001"}, domain.ErrConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, domain.ErrConflict},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, domain.ErrConflict},
		{"duplicate payment", &pgconn.PgError{Code: "23505", ConstraintName: "uq_transactions_external"}, domain.ErrDuplicateTransaction},
		{"out of range", &pgconn.PgError{Code: "22003"}, domain.ErrInvalidAmount},
		{"deadline", context.DeadlineExceeded, domain.ErrStoreUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tc.in), tc.want)
		})
	}

	plain := errors.New("boom")
	assert.Equal(t, plain, mapError(plain))
	assert.NoError(t, mapError(nil))
}

func openTestStore(t *testing.T) *Storage {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, migrations.Apply(context.Background(), pool, nil))

	return New(pool, 5*time.Second)
}

func uniqueID() int64 {
	return time.Now().UnixNano() / 1000
}

func TestStorage_CreditAndDuplicatePayment(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := uniqueID()
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, s.Atomic(ctx, func(tx repository.Tx) error {
		created, err := tx.UpsertUser(ctx, &domain.User{ID: id, Username: "pg", RegisteredAt: now, LastActiveAt: now})
		require.True(t, created)
		return err
	}))

	charge := "charge-" + time.Now().Format(time.RFC3339Nano)
	pay := func() error {
		return s.Atomic(ctx, func(tx repository.Tx) error {
			b, err := tx.LockBalance(ctx, id)
			if err != nil {
				return err
			}
			if err := b.Apply(250); err != nil {
				return err
			}
			if err := tx.SaveBalance(ctx, b); err != nil {
				return err
			}
			return tx.AppendTransaction(ctx, &domain.Transaction{
				UserID: id, Kind: domain.KindPurchase, Amount: 250, ExternalID: charge, CreatedAt: now,
			})
		})
	}

	require.NoError(t, pay())
	assert.ErrorIs(t, pay(), domain.ErrDuplicateTransaction)

	b, err := s.GetBalance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(250), b.Coins)
	assert.True(t, b.Consistent())

	txs, err := s.ListTransactions(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, charge, txs[0].ExternalID)

	n, err := s.CountTransactions(ctx, id, domain.KindPurchase, domain.KindUpgradePurchase)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStorage_RollbackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := uniqueID()
	now := time.Now().UTC()

	require.NoError(t, s.Atomic(ctx, func(tx repository.Tx) error {
		_, err := tx.UpsertUser(ctx, &domain.User{ID: id, RegisteredAt: now, LastActiveAt: now})
		return err
	}))

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(tx repository.Tx) error {
		if err := tx.SaveOwnership(ctx, &domain.UpgradeOwnership{UserID: id, UpgradeID: "click_power_1", Level: 1, PurchasedAt: now}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	owned, err := s.ListOwnerships(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, owned)
}

func TestStorage_UnknownUser(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetBalance(context.Background(), -1)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}
