package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"clicker_ledger/internal/domain"
	"clicker_ledger/internal/repository"
)

type ownKey struct {
	userID    int64
	upgradeID string
}

func externalKey(kind domain.TransactionKind, externalID string) string {
	return string(kind) + ":" + externalID
}

// Store keeps the ledger in process memory. Units of work stage their writes
// and apply them under one lock at commit, so a failed unit leaves no trace.
type Store struct {
	mu sync.RWMutex

	users    map[int64]domain.User
	balances map[int64]domain.Balance
	// version of each balance, bumped on every commit that touches it
	versions map[int64]int64

	transactions []domain.Transaction
	externalIDs  map[string]struct{}
	nextTxID     int64

	ownerships map[ownKey]domain.UpgradeOwnership
	referrals  map[int64]domain.ReferralEdge // by referred id

	closed bool
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:       make(map[int64]domain.User),
		balances:    make(map[int64]domain.Balance),
		versions:    make(map[int64]int64),
		externalIDs: make(map[string]struct{}),
		ownerships:  make(map[ownKey]domain.UpgradeOwnership),
		referrals:   make(map[int64]domain.ReferralEdge),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrStoreUnavailable
	}
	return ctx.Err()
}

func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Store) Atomic(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}

	tx := newTx(s)
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return s.commit(tx)
}

func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrStoreUnavailable
	}

	// validate everything before touching state
	for id, v := range tx.readVersions {
		if s.versions[id] != v {
			return domain.ErrConflict
		}
	}
	for _, t := range tx.transactions {
		if t.ExternalID == "" {
			continue
		}
		if _, dup := s.externalIDs[externalKey(t.Kind, t.ExternalID)]; dup {
			return domain.ErrDuplicateTransaction
		}
	}
	for referred := range tx.referrals {
		if _, dup := s.referrals[referred]; dup {
			return domain.ErrConflict
		}
	}

	for id, u := range tx.users {
		s.users[id] = u
	}
	for id, b := range tx.balances {
		s.balances[id] = b
		s.versions[id]++
	}
	for _, t := range tx.transactions {
		s.nextTxID++
		t.ID = s.nextTxID
		s.transactions = append(s.transactions, t)
		if t.ExternalID != "" {
			s.externalIDs[externalKey(t.Kind, t.ExternalID)] = struct{}{}
		}
	}
	for k, o := range tx.ownerships {
		s.ownerships[k] = o
	}
	for referred, e := range tx.referrals {
		s.referrals[referred] = e
	}
	return nil
}

// Reader

func (s *Store) GetUser(_ context.Context, userID int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (s *Store) GetBalance(_ context.Context, userID int64) (*domain.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.balances[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &b, nil
}

func (s *Store) ListOwnerships(_ context.Context, userID int64) ([]domain.UpgradeOwnership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []domain.UpgradeOwnership
	for k, o := range s.ownerships {
		if k.userID == userID {
			res = append(res, o)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].PurchasedAt.Equal(res[j].PurchasedAt) {
			return res[i].PurchasedAt.After(res[j].PurchasedAt)
		}
		return res[i].UpgradeID < res[j].UpgradeID
	})
	return res, nil
}

func (s *Store) ListTransactions(_ context.Context, userID int64, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []domain.Transaction
	for i := len(s.transactions) - 1; i >= 0 && len(res) < limit; i-- {
		if s.transactions[i].UserID == userID {
			res = append(res, s.transactions[i])
		}
	}
	return res, nil
}

func (s *Store) CountTransactions(_ context.Context, userID int64, kinds ...domain.TransactionKind) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, t := range s.transactions {
		if t.UserID != userID {
			continue
		}
		if len(kinds) == 0 || hasKind(kinds, t.Kind) {
			n++
		}
	}
	return n, nil
}

func hasKind(kinds []domain.TransactionKind, k domain.TransactionKind) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

func (s *Store) Leaderboard(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.LeaderboardEntry, 0, len(s.users))
	for id, u := range s.users {
		b := s.balances[id]
		rows = append(rows, domain.LeaderboardEntry{
			UserID:      id,
			Username:    u.Username,
			FirstName:   u.FirstName,
			TotalEarned: b.TotalEarned,
			TotalClicks: b.TotalClicks,
			Coins:       b.Coins,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalEarned != rows[j].TotalEarned {
			return rows[i].TotalEarned > rows[j].TotalEarned
		}
		return rows[i].UserID < rows[j].UserID
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	for i := range rows {
		rows[i].Position = i + 1
	}
	return rows, nil
}

func (s *Store) ReferralsOf(_ context.Context, referrerID int64) ([]domain.ReferredUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []domain.ReferredUser
	for referred, e := range s.referrals {
		if e.ReferrerID != referrerID {
			continue
		}
		u := s.users[referred]
		res = append(res, domain.ReferredUser{
			UserID:      referred,
			Username:    u.Username,
			FirstName:   u.FirstName,
			ReferredAt:  e.CreatedAt,
			TotalEarned: s.balances[referred].TotalEarned,
			BonusPaid:   e.BonusPaid,
		})
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].ReferredAt.Equal(res[j].ReferredAt) {
			return res[i].ReferredAt.After(res[j].ReferredAt)
		}
		return res[i].UserID > res[j].UserID
	})
	return res, nil
}

func (s *Store) ReferralTotals(_ context.Context, referrerID int64) (domain.ReferralTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t domain.ReferralTotals
	for _, e := range s.referrals {
		if e.ReferrerID == referrerID {
			t.Count++
			t.Earnings += e.BonusPaid
		}
	}
	return t, nil
}

// memTx stages writes until commit.
type memTx struct {
	s *Store

	users        map[int64]domain.User
	balances     map[int64]domain.Balance
	readVersions map[int64]int64
	transactions []domain.Transaction
	ownerships   map[ownKey]domain.UpgradeOwnership
	referrals    map[int64]domain.ReferralEdge
}

func newTx(s *Store) *memTx {
	return &memTx{
		s:            s,
		users:        make(map[int64]domain.User),
		balances:     make(map[int64]domain.Balance),
		readVersions: make(map[int64]int64),
		ownerships:   make(map[ownKey]domain.UpgradeOwnership),
		referrals:    make(map[int64]domain.ReferralEdge),
	}
}

func (t *memTx) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	if u, ok := t.users[userID]; ok {
		return &u, nil
	}
	return t.s.GetUser(ctx, userID)
}

func (t *memTx) UpsertUser(ctx context.Context, u *domain.User) (bool, error) {
	existing, err := t.GetUser(ctx, u.ID)
	if errors.Is(err, domain.ErrUserNotFound) {
		t.users[u.ID] = *u
		b := domain.NewBalance(u.ID, u.RegisteredAt)
		t.balances[u.ID] = *b
		t.s.mu.RLock()
		t.readVersions[u.ID] = t.s.versions[u.ID]
		t.s.mu.RUnlock()
		return true, nil
	}
	if err != nil {
		return false, err
	}

	updated := *existing
	updated.Username = u.Username
	updated.FirstName = u.FirstName
	updated.LastActiveAt = u.LastActiveAt
	t.users[u.ID] = updated
	*u = updated
	return false, nil
}

func (t *memTx) SetReferrer(ctx context.Context, referredID, referrerID int64) error {
	u, err := t.GetUser(ctx, referredID)
	if err != nil {
		return err
	}
	if u.ReferrerID != nil {
		return nil
	}
	ref := referrerID
	u.ReferrerID = &ref
	t.users[referredID] = *u
	return nil
}

func (t *memTx) LockBalance(_ context.Context, userID int64) (*domain.Balance, error) {
	if b, ok := t.balances[userID]; ok {
		return &b, nil
	}

	t.s.mu.RLock()
	b, ok := t.s.balances[userID]
	v := t.s.versions[userID]
	t.s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	t.readVersions[userID] = v
	t.balances[userID] = b
	return &b, nil
}

func (t *memTx) SaveBalance(_ context.Context, b *domain.Balance) error {
	if _, ok := t.balances[b.UserID]; !ok {
		return fmt.Errorf("memory: balance %d saved without lock", b.UserID)
	}
	t.balances[b.UserID] = *b
	return nil
}

func (t *memTx) AppendTransaction(_ context.Context, tr *domain.Transaction) error {
	if tr.ExternalID != "" {
		key := externalKey(tr.Kind, tr.ExternalID)
		t.s.mu.RLock()
		_, dup := t.s.externalIDs[key]
		t.s.mu.RUnlock()
		if dup {
			return domain.ErrDuplicateTransaction
		}
		for _, pending := range t.transactions {
			if pending.ExternalID != "" && externalKey(pending.Kind, pending.ExternalID) == key {
				return domain.ErrDuplicateTransaction
			}
		}
	}
	t.transactions = append(t.transactions, *tr)
	return nil
}

func (t *memTx) GetOwnership(_ context.Context, userID int64, upgradeID string) (*domain.UpgradeOwnership, error) {
	k := ownKey{userID, upgradeID}
	if o, ok := t.ownerships[k]; ok {
		return &o, nil
	}

	t.s.mu.RLock()
	o, ok := t.s.ownerships[k]
	t.s.mu.RUnlock()
	if !ok {
		return &domain.UpgradeOwnership{UserID: userID, UpgradeID: upgradeID}, nil
	}
	return &o, nil
}

func (t *memTx) SaveOwnership(_ context.Context, o *domain.UpgradeOwnership) error {
	t.ownerships[ownKey{o.UserID, o.UpgradeID}] = *o
	return nil
}

func (t *memTx) InsertReferral(_ context.Context, e *domain.ReferralEdge) (bool, error) {
	if _, ok := t.referrals[e.ReferredID]; ok {
		return false, nil
	}
	t.s.mu.RLock()
	_, exists := t.s.referrals[e.ReferredID]
	t.s.mu.RUnlock()
	if exists {
		return false, nil
	}
	t.referrals[e.ReferredID] = *e
	return true, nil
}
