package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clicker_ledger/internal/domain"
	"clicker_ledger/internal/repository"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const DefaultTimeout = 5 * time.Second

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Storage struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

var _ repository.Store = (*Storage)(nil)

// New wraps an existing pool. Every store call is bounded by timeout.
func New(db *pgxpool.Pool, timeout time.Duration) *Storage {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Storage{db: db, timeout: timeout}
}

func (s *Storage) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Storage) Close() {
	s.db.Close()
}

func (s *Storage) Atomic(ctx context.Context, fn func(tx repository.Tx) error) error {
	const op = "storage.postgres.Atomic"

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{q: tx}); err != nil {
		return mapError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, mapError(err))
	}
	return nil
}

func (s *Storage) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// mapError turns driver failures into ledger errors. Errors that already
// carry a ledger meaning pass through untouched.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.Message)
		case "23505":
			if pgErr.ConstraintName == "uq_transactions_external" {
				return domain.ErrDuplicateTransaction
			}
			return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.Message)
		case "22003":
			// numeric_value_out_of_range
			return fmt.Errorf("%w: %s", domain.ErrInvalidAmount, pgErr.Message)
		case "57014":
			return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, pgErr.Message)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	switch {
	case errors.As(err, &connErr),
		pgconn.Timeout(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}

func (s *Storage) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return getUser(ctx, s.db, userID)
}

func (s *Storage) GetBalance(ctx context.Context, userID int64) (*domain.Balance, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return getBalance(ctx, s.db, userID, false)
}
