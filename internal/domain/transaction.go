package domain

import "time"

// TransactionKind classifies a ledger entry.
type TransactionKind string

const (
	KindManual          TransactionKind = "manual"
	KindPurchase        TransactionKind = "purchase"
	KindUpgradePurchase TransactionKind = "upgrade_purchase"
	KindReferralBonus   TransactionKind = "referral_bonus"
)

// Valid reports whether k is one of the known kinds.
func (k TransactionKind) Valid() bool {
	switch k {
	case KindManual, KindPurchase, KindUpgradePurchase, KindReferralBonus:
		return true
	}
	return false
}

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID          int64           `db:"id" json:"id"`
	UserID      int64           `db:"user_id" json:"user_id"`
	Kind        TransactionKind `db:"kind" json:"kind"`
	Amount      int64           `db:"amount" json:"amount"`
	Description string          `db:"description" json:"description,omitempty"`
	ItemID      string          `db:"item_id" json:"item_id,omitempty"`
	ExternalID  string          `db:"external_id" json:"external_id,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Meta carries the optional fields of a credit or debit.
type Meta struct {
	Description string `json:"description,omitempty"`
	ItemID      string `json:"item_id,omitempty"`
	ExternalID  string `json:"external_id,omitempty"`
}
