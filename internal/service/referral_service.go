package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"clicker_ledger/internal/domain"
	"clicker_ledger/internal/logger"
	"clicker_ledger/internal/repository"
)

const (
	DefaultReferralBonus = 100

	startPrefix = "ref_"
)

// ReferralService pays one-time bonuses for invited users.
type ReferralService struct {
	core
	bonus       int64
	botUsername string
}

func NewReferralService(c core, bonus int64, botUsername string) *ReferralService {
	if bonus <= 0 {
		bonus = DefaultReferralBonus
	}
	return &ReferralService{core: c, bonus: bonus, botUsername: botUsername}
}

// Bonus is the amount paid when no explicit bonus is given.
func (s *ReferralService) Bonus() int64 {
	return s.bonus
}

// Register records that referrerID invited referredID and credits the
// referrer with bonus. A user is referred at most once; later calls report
// Applied=false without error.
func (s *ReferralService) Register(ctx context.Context, referrerID, referredID, bonus int64) (res domain.RegisterResult, err error) {
	const op = "service.Referral.Register"

	start := time.Now()
	defer func() { observe(op, start, err) }()

	switch {
	case referrerID <= 0 || referredID <= 0:
		return res, fmt.Errorf("%s: %w", op, domain.ErrInvalidUser)
	case referrerID == referredID:
		return res, fmt.Errorf("%s: %w", op, domain.ErrSelfReferral)
	case bonus <= 0:
		return res, fmt.Errorf("%s: %w", op, domain.ErrInvalidAmount)
	}

	unlock := s.locks.Lock(referrerID, referredID)
	defer unlock()

	now := s.now()
	err = s.store.Atomic(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetUser(ctx, referredID); err != nil {
			return err
		}
		b, err := tx.LockBalance(ctx, referrerID)
		if err != nil {
			return err
		}

		inserted, err := tx.InsertReferral(ctx, &domain.ReferralEdge{
			ReferrerID: referrerID,
			ReferredID: referredID,
			BonusPaid:  bonus,
			CreatedAt:  now,
		})
		if err != nil || !inserted {
			return err
		}

		if err := tx.SetReferrer(ctx, referredID, referrerID); err != nil {
			return err
		}

		meta := domain.Meta{Description: "referral " + strconv.FormatInt(referredID, 10)}
		if err := post(ctx, tx, b, bonus, domain.KindReferralBonus, meta, now); err != nil {
			return err
		}
		res.Applied = true
		return nil
	})
	if err != nil {
		return domain.RegisterResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if res.Applied {
		countCoins(domain.KindReferralBonus, bonus)
		logger.WithContext(ctx).Info("referral registered",
			"component", "referral", "referrer_id", referrerID, "referred_id", referredID, "bonus", bonus)
	}
	return res, nil
}

// Stats lists the users referrerID brought in, newest first.
func (s *ReferralService) Stats(ctx context.Context, referrerID int64) (*domain.ReferralStats, error) {
	const op = "service.Referral.Stats"

	if _, err := s.store.GetUser(ctx, referrerID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refs, err := s.store.ReferralsOf(ctx, referrerID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	stats := &domain.ReferralStats{
		TotalReferrals: len(refs),
		Referrals:      refs,
	}
	if stats.Referrals == nil {
		stats.Referrals = []domain.ReferredUser{}
	}
	for _, r := range refs {
		stats.TotalEarnings += r.BonusPaid
	}
	return stats, nil
}

// Link returns the bot deep link that attributes new users to userID.
func (s *ReferralService) Link(userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%s%d", s.botUsername, startPrefix, userID)
}

// ParseStartPayload extracts the referrer id from a "ref_<id>" start
// parameter.
func ParseStartPayload(payload string) (int64, bool) {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, startPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(payload, startPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
