package domain

import "time"

// ReferralEdge links a referrer to the user they brought in. A user can be
// referred once.
type ReferralEdge struct {
	ReferrerID int64     `db:"referrer_id" json:"referrer_id"`
	ReferredID int64     `db:"referred_id" json:"referred_id"`
	BonusPaid  int64     `db:"bonus_paid" json:"bonus_paid"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ReferredUser is one row of a referrer's statistics.
type ReferredUser struct {
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username"`
	FirstName   string    `json:"first_name"`
	ReferredAt  time.Time `json:"registration_date"`
	TotalEarned int64     `json:"total_earned"`
	BonusPaid   int64     `json:"bonus_paid"`
}

type ReferralStats struct {
	TotalReferrals int            `json:"total_referrals"`
	TotalEarnings  int64          `json:"total_earnings"`
	Referrals      []ReferredUser `json:"referrals"`
}

type RegisterResult struct {
	Applied bool `json:"applied"`
}
