package service

import (
	"context"
	"fmt"

	"clicker_ledger/internal/domain"
	"clicker_ledger/internal/logger"
	"clicker_ledger/internal/repository"
)

// UserService registers players on first contact.
type UserService struct {
	core
}

func NewUserService(c core) *UserService {
	return &UserService{core: c}
}

// CreateOrUpdate creates the user with a zero balance, or refreshes the
// profile fields and last activity of an existing one.
func (s *UserService) CreateOrUpdate(ctx context.Context, userID int64, p domain.ProfileFields) (*domain.User, bool, error) {
	const op = "service.User.CreateOrUpdate"

	if userID <= 0 {
		return nil, false, fmt.Errorf("%s: %w", op, domain.ErrInvalidUser)
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	now := s.now()
	u := &domain.User{
		ID:           userID,
		Username:     p.Username,
		FirstName:    p.FirstName,
		RegisteredAt: now,
		LastActiveAt: now,
	}

	var created bool
	err := s.store.Atomic(ctx, func(tx repository.Tx) error {
		var err error
		created, err = tx.UpsertUser(ctx, u)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if created {
		logger.WithContext(ctx).Info("user registered", "component", "user", "user_id", userID)
	}
	return u, created, nil
}
