package domain

import (
	"math"
	"time"
)

// Balance is the per-user ledger state. Coins always equal
// TotalEarned - TotalSpent.
type Balance struct {
	UserID           int64     `db:"user_id" json:"user_id"`
	Coins            int64     `db:"coins" json:"coins"`
	TotalEarned      int64     `db:"total_earned" json:"total_earned"`
	TotalSpent       int64     `db:"total_spent" json:"total_spent"`
	TotalClicks      int64     `db:"total_clicks" json:"total_clicks"`
	ClickPower       int64     `db:"click_power" json:"click_power"`
	PassiveIncome    int64     `db:"passive_income" json:"passive_income"`
	LastCollectionAt time.Time `db:"last_collection_at" json:"last_collection_at"`
}

// Starting values for a freshly registered player.
const (
	InitialClickPower    = 1
	InitialPassiveIncome = 0
)

// NewBalance returns the zero balance of a new user.
func NewBalance(userID int64, now time.Time) *Balance {
	return &Balance{
		UserID:           userID,
		ClickPower:       InitialClickPower,
		PassiveIncome:    InitialPassiveIncome,
		LastCollectionAt: now,
	}
}

// Apply adds a signed amount to the balance, keeping the earned/spent
// counters in step. It refuses to take coins below zero and rejects
// amounts that would overflow a counter.
func (b *Balance) Apply(amount int64) error {
	switch {
	case amount > 0:
		if amount > math.MaxInt64-b.Coins || amount > math.MaxInt64-b.TotalEarned {
			return ErrInvalidAmount
		}
		b.Coins += amount
		b.TotalEarned += amount
	case amount < 0:
		if b.Coins+amount < 0 {
			return ErrInsufficientFunds
		}
		if amount == math.MinInt64 || -amount > math.MaxInt64-b.TotalSpent {
			return ErrInvalidAmount
		}
		b.Coins += amount
		b.TotalSpent += -amount
	}
	return nil
}

// Consistent reports whether the coin invariant holds.
func (b *Balance) Consistent() bool {
	return b.Coins >= 0 && b.Coins == b.TotalEarned-b.TotalSpent
}

// ClickResult is returned by a click batch.
type ClickResult struct {
	Clicks  int64   `json:"clicks"`
	Earned  int64   `json:"earned"`
	Balance Balance `json:"balance"`
}

// CollectResult is returned by a passive income collection.
type CollectResult struct {
	Seconds int64   `json:"seconds"`
	Earned  int64   `json:"earned"`
	Balance Balance `json:"balance"`
}
