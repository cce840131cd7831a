package domain

import "time"

// User is a player identity. ID is the Telegram user id.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	FirstName    string    `db:"first_name" json:"first_name"`
	ReferrerID   *int64    `db:"referrer_id" json:"referrer_id,omitempty"`
	RegisteredAt time.Time `db:"registered_at" json:"registered_at"`
	LastActiveAt time.Time `db:"last_active_at" json:"last_active_at"`
}

// ProfileFields are the mutable identity fields supplied by collaborators.
type ProfileFields struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}
