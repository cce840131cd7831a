package repository

import (
	"context"

	"clicker_ledger/internal/domain"
)

// Store is the durable ledger state. Writes only happen inside Atomic.
type Store interface {
	Reader

	// Atomic runs fn as one unit of work. Everything fn writes through tx is
	// committed when fn returns nil and discarded otherwise.
	Atomic(ctx context.Context, fn func(tx Tx) error) error

	Ping(ctx context.Context) error
	Close()
}

// Tx is the write view handed to Atomic callbacks.
type Tx interface {
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	// UpsertUser inserts the user together with a fresh balance, or updates
	// the profile fields and last activity of an existing one.
	UpsertUser(ctx context.Context, u *domain.User) (created bool, err error)
	// SetReferrer fills referrer_id only when it is still empty.
	SetReferrer(ctx context.Context, referredID, referrerID int64) error

	// LockBalance reads the balance and holds it until the unit ends.
	LockBalance(ctx context.Context, userID int64) (*domain.Balance, error)
	SaveBalance(ctx context.Context, b *domain.Balance) error
	// AppendTransaction returns domain.ErrDuplicateTransaction when
	// (kind, external_id) already exists.
	AppendTransaction(ctx context.Context, t *domain.Transaction) error

	GetOwnership(ctx context.Context, userID int64, upgradeID string) (*domain.UpgradeOwnership, error)
	SaveOwnership(ctx context.Context, o *domain.UpgradeOwnership) error

	// InsertReferral reports inserted=false when the referred user already
	// has an edge.
	InsertReferral(ctx context.Context, e *domain.ReferralEdge) (inserted bool, err error)
}

// Reader serves the query surface.
type Reader interface {
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	GetBalance(ctx context.Context, userID int64) (*domain.Balance, error)
	ListOwnerships(ctx context.Context, userID int64) ([]domain.UpgradeOwnership, error)
	ListTransactions(ctx context.Context, userID int64, limit int) ([]domain.Transaction, error)
	CountTransactions(ctx context.Context, userID int64, kinds ...domain.TransactionKind) (int, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
	ReferralsOf(ctx context.Context, referrerID int64) ([]domain.ReferredUser, error)
	ReferralTotals(ctx context.Context, referrerID int64) (domain.ReferralTotals, error)
}
