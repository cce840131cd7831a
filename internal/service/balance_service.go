package service

import (
	"context"
	"fmt"
	"time"

	"clicker_ledger/internal/domain"
	"clicker_ledger/internal/logger"
	"clicker_ledger/internal/repository"
)

const (
	DefaultPassiveMaxWindow = 3 * time.Hour
	DefaultMaxClicksPerCall = 1000

	maxHistoryLimit = 100
)

// core is the state shared by the ledger services.
type core struct {
	store repository.Store
	locks *UserLocks
	now   func() time.Time
}

// post applies a signed amount to a locked balance, saves it and appends the
// matching transaction.
func post(ctx context.Context, tx repository.Tx, b *domain.Balance, amount int64,
	kind domain.TransactionKind, meta domain.Meta, at time.Time) error {
	if err := b.Apply(amount); err != nil {
		return err
	}
	if err := tx.SaveBalance(ctx, b); err != nil {
		return err
	}
	return tx.AppendTransaction(ctx, &domain.Transaction{
		UserID:      b.UserID,
		Kind:        kind,
		Amount:      amount,
		Description: meta.Description,
		ItemID:      meta.ItemID,
		ExternalID:  meta.ExternalID,
		CreatedAt:   at,
	})
}

// BalanceService moves coins in and out of a user's balance
type BalanceService struct {
	core
	passiveMaxWindow time.Duration
	maxClicks        int64
}

func NewBalanceService(c core, passiveMaxWindow time.Duration, maxClicks int) *BalanceService {
	if passiveMaxWindow <= 0 {
		passiveMaxWindow = DefaultPassiveMaxWindow
	}
	if maxClicks <= 0 {
		maxClicks = DefaultMaxClicksPerCall
	}
	return &BalanceService{
		core:             c,
		passiveMaxWindow: passiveMaxWindow,
		maxClicks:        int64(maxClicks),
	}
}

// GetBalance returns the latest committed balance
func (s *BalanceService) GetBalance(ctx context.Context, userID int64) (*domain.Balance, error) {
	const op = "service.Balance.GetBalance"

	b, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}

// Credit adds amount to the user's balance and logs it under kind.
func (s *BalanceService) Credit(ctx context.Context, userID, amount int64, kind domain.TransactionKind, meta domain.Meta) (*domain.Balance, error) {
	const op = "service.Balance.Credit"

	if amount <= 0 {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrInvalidAmount)
	}
	return s.apply(ctx, op, userID, amount, kind, meta)
}

// Debit takes amount from the user's balance. It fails with
// domain.ErrInsufficientFunds and changes nothing when coins < amount.
func (s *BalanceService) Debit(ctx context.Context, userID, amount int64, kind domain.TransactionKind, meta domain.Meta) (*domain.Balance, error) {
	const op = "service.Balance.Debit"

	if amount <= 0 {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrInvalidAmount)
	}
	return s.apply(ctx, op, userID, -amount, kind, meta)
}

// CreditPayment credits a payment exactly once per externalID. A replay
// returns domain.ErrDuplicateTransaction and leaves the balance unchanged.
func (s *BalanceService) CreditPayment(ctx context.Context, userID, amount int64, externalID, description string) (*domain.Balance, error) {
	const op = "service.Balance.CreditPayment"

	if externalID == "" {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrNoExternalID)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrInvalidAmount)
	}
	return s.apply(ctx, op, userID, amount, domain.KindPurchase, domain.Meta{
		Description: description,
		ExternalID:  externalID,
	})
}

func (s *BalanceService) apply(ctx context.Context, op string, userID, signed int64, kind domain.TransactionKind, meta domain.Meta) (b *domain.Balance, err error) {
	start := time.Now()
	defer func() { observe(op, start, err) }()

	if userID <= 0 {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrInvalidUser)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%s: %w: %q", op, domain.ErrInvalidKind, kind)
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	now := s.now()
	err = s.store.Atomic(ctx, func(tx repository.Tx) error {
		var err error
		b, err = tx.LockBalance(ctx, userID)
		if err != nil {
			return err
		}
		return post(ctx, tx, b, signed, kind, meta, now)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	countCoins(kind, signed)
	logger.WithContext(ctx).Debug("balance changed",
		"component", "balance", "op", op, "user_id", userID, "amount", signed, "kind", kind, "coins", b.Coins)
	return b, nil
}

// Click credits clicks × click_power and counts the clicks.
func (s *BalanceService) Click(ctx context.Context, userID, clicks int64) (res *domain.ClickResult, err error) {
	const op = "service.Balance.Click"

	start := time.Now()
	defer func() { observe(op, start, err) }()

	if userID <= 0 {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrInvalidUser)
	}
	if clicks <= 0 || clicks > s.maxClicks {
		return nil, fmt.Errorf("%s: %w: clicks must be in [1, %d]", op, domain.ErrInvalidAmount, s.maxClicks)
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	now := s.now()
	err = s.store.Atomic(ctx, func(tx repository.Tx) error {
		b, err := tx.LockBalance(ctx, userID)
		if err != nil {
			return err
		}
		earned := clicks * b.ClickPower
		b.TotalClicks += clicks
		if err := post(ctx, tx, b, earned, domain.KindManual, domain.Meta{Description: "clicks"}, now); err != nil {
			return err
		}
		res = &domain.ClickResult{Clicks: clicks, Earned: earned, Balance: *b}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	countCoins(domain.KindManual, res.Earned)
	return res, nil
}

// CollectPassive credits the passive income accrued since the last
// collection. Only whole seconds count and the window is capped.
func (s *BalanceService) CollectPassive(ctx context.Context, userID int64) (res *domain.CollectResult, err error) {
	const op = "service.Balance.CollectPassive"

	start := time.Now()
	defer func() { observe(op, start, err) }()

	if userID <= 0 {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrInvalidUser)
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	now := s.now()
	err = s.store.Atomic(ctx, func(tx repository.Tx) error {
		b, err := tx.LockBalance(ctx, userID)
		if err != nil {
			return err
		}
		seconds, earned, err := settlePassive(ctx, tx, b, now, s.passiveMaxWindow)
		if err != nil {
			return err
		}
		res = &domain.CollectResult{Seconds: seconds, Earned: earned, Balance: *b}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if res.Earned > 0 {
		countCoins(domain.KindManual, res.Earned)
	}
	return res, nil
}

// settlePassive brings b up to now: it credits the accrued income (if any)
// and advances last_collection_at by the whole seconds consumed. Seconds
// beyond the window are forfeited. b is saved in every case.
func settlePassive(ctx context.Context, tx repository.Tx, b *domain.Balance, now time.Time, window time.Duration) (seconds, earned int64, err error) {
	elapsed := now.Sub(b.LastCollectionAt)
	if elapsed > 0 {
		seconds = int64(elapsed / time.Second)
	}

	counted := seconds
	if limit := int64(window / time.Second); counted > limit {
		counted = limit
	}
	earned = counted * b.PassiveIncome

	b.LastCollectionAt = b.LastCollectionAt.Add(time.Duration(seconds) * time.Second)
	if earned > 0 {
		err = post(ctx, tx, b, earned, domain.KindManual, domain.Meta{Description: "passive_income"}, now)
		return seconds, earned, err
	}
	return seconds, 0, tx.SaveBalance(ctx, b)
}

// History returns the newest transactions first. limit is clamped to [1, 100].
func (s *BalanceService) History(ctx context.Context, userID int64, limit int) ([]domain.Transaction, error) {
	const op = "service.Balance.History"

	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	txs, err := s.store.ListTransactions(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return txs, nil
}

func clampLimit(limit int) int {
	switch {
	case limit < 1:
		return 1
	case limit > maxHistoryLimit:
		return maxHistoryLimit
	}
	return limit
}
