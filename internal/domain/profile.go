package domain

// Profile is the read-only view of a player returned to collaborators.
type Profile struct {
	User
	Balance
	TotalPurchases   int   `json:"total_purchases"`
	ReferralsCount   int   `json:"referrals_count"`
	ReferralEarnings int64 `json:"referral_earnings"`
}

// Stats is the numeric subset of a profile.
type Stats struct {
	Coins            int64 `json:"coins"`
	TotalEarned      int64 `json:"total_earned"`
	TotalSpent       int64 `json:"total_spent"`
	TotalClicks      int64 `json:"total_clicks"`
	ClickPower       int64 `json:"click_power"`
	PassiveIncome    int64 `json:"passive_income"`
	ReferralsCount   int   `json:"referrals_count"`
	ReferralEarnings int64 `json:"referral_earnings"`
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Position    int    `json:"position"`
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	FirstName   string `json:"first_name"`
	TotalEarned int64  `json:"total_earned"`
	TotalClicks int64  `json:"total_clicks"`
	Coins       int64  `json:"coins"`
}

// ReferralTotals aggregates the edges a user created.
type ReferralTotals struct {
	Count    int
	Earnings int64
}
