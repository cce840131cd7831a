package domain

import "time"

// EffectType names the balance stat an upgrade increases.
type EffectType string

const (
	EffectClickPower    EffectType = "click_power"
	EffectPassiveIncome EffectType = "passive_income"
)

// UpgradeDefinition is a static catalog entry.
type UpgradeDefinition struct {
	ID          string     `yaml:"id" json:"id"`
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description" json:"description"`
	Category    string     `yaml:"category" json:"category"`
	BasePrice   int64      `yaml:"base_price" json:"base_price"`
	EffectType  EffectType `yaml:"effect_type" json:"effect_type"`
	EffectValue int64      `yaml:"effect_value" json:"effect_value"`
	MaxLevel    int        `yaml:"max_level" json:"max_level"`
}

// UpgradeOwnership is the level a user holds of one upgrade.
type UpgradeOwnership struct {
	UserID      int64     `db:"user_id" json:"user_id"`
	UpgradeID   string    `db:"upgrade_id" json:"upgrade_id"`
	Level       int       `db:"level" json:"level"`
	PurchasedAt time.Time `db:"purchased_at" json:"purchased_at"`
}

// UpgradeView is a catalog entry merged with the user's progress.
type UpgradeView struct {
	UpgradeDefinition
	CurrentLevel int   `json:"current_level"`
	Price        int64 `json:"price"`
	Available    bool  `json:"available"`
}

// PurchaseResult is returned by a successful upgrade purchase.
type PurchaseResult struct {
	Item      UpgradeView `json:"item"`
	PricePaid int64       `json:"price_paid"`
	NewLevel  int         `json:"new_level"`
	Balance   Balance     `json:"balance"`
}
