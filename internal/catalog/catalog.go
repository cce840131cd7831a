package catalog

import (
	"fmt"
	"math"
	"os"

	"clicker_ledger/internal/domain"

	"gopkg.in/yaml.v3"
)

// PriceGrowth is the per-level price multiplier.
const PriceGrowth = 1.1

// Catalog holds the purchasable upgrades in display order.
type Catalog struct {
	items []domain.UpgradeDefinition
	byID  map[string]int
}

// New validates defs and builds a catalog.
func New(defs []domain.UpgradeDefinition) (*Catalog, error) {
	c := &Catalog{
		items: make([]domain.UpgradeDefinition, 0, len(defs)),
		byID:  make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if err := validate(d); err != nil {
			return nil, err
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate upgrade id %q", d.ID)
		}
		c.byID[d.ID] = len(c.items)
		c.items = append(c.items, d)
	}
	return c, nil
}

func validate(d domain.UpgradeDefinition) error {
	switch {
	case d.ID == "":
		return fmt.Errorf("catalog: upgrade without id")
	case d.BasePrice <= 0:
		return fmt.Errorf("catalog: %s: base_price must be positive", d.ID)
	case d.MaxLevel <= 0:
		return fmt.Errorf("catalog: %s: max_level must be positive", d.ID)
	case d.EffectValue <= 0:
		return fmt.Errorf("catalog: %s: effect_value must be positive", d.ID)
	case d.EffectType != domain.EffectClickPower && d.EffectType != domain.EffectPassiveIncome:
		return fmt.Errorf("catalog: %s: unknown effect_type %q", d.ID, d.EffectType)
	}
	return nil
}

// Default returns the built-in shop.
func Default() *Catalog {
	c, err := New(defaultItems)
	if err != nil {
		panic(err)
	}
	return c
}

var defaultItems = []domain.UpgradeDefinition{
	{
		ID:          "click_power_1",
		Name:        "Улучшенный клик",
		Description: "+1 монета за клик",
		Category:    "click",
		BasePrice:   50,
		EffectType:  domain.EffectClickPower,
		EffectValue: 1,
		MaxLevel:    50,
	},
	{
		ID:          "click_power_5",
		Name:        "Мощный клик",
		Description: "+5 монет за клик",
		Category:    "click",
		BasePrice:   200,
		EffectType:  domain.EffectClickPower,
		EffectValue: 5,
		MaxLevel:    20,
	},
	{
		ID:          "passive_income_1",
		Name:        "Пассивный доход",
		Description: "+1 монета в секунду",
		Category:    "passive",
		BasePrice:   100,
		EffectType:  domain.EffectPassiveIncome,
		EffectValue: 1,
		MaxLevel:    100,
	},
	{
		ID:          "passive_income_10",
		Name:        "Мега-генератор",
		Description: "+10 монет в секунду",
		Category:    "passive",
		BasePrice:   1000,
		EffectType:  domain.EffectPassiveIncome,
		EffectValue: 10,
		MaxLevel:    50,
	},
}

type fileFormat struct {
	Upgrades []domain.UpgradeDefinition `yaml:"upgrades"`
}

// LoadFile reads a YAML catalog:
//
//	upgrades:
//	  - id: click_power_1
//	    base_price: 50
//	    effect_type: click_power
//	    effect_value: 1
//	    max_level: 50
func LoadFile(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	if len(f.Upgrades) == 0 {
		return nil, fmt.Errorf("catalog: %s has no upgrades", path)
	}
	return New(f.Upgrades)
}

// Lookup returns the definition with the given id.
func (c *Catalog) Lookup(id string) (domain.UpgradeDefinition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return domain.UpgradeDefinition{}, false
	}
	return c.items[i], true
}

// Price is round(base_price * 1.1^level).
func Price(def domain.UpgradeDefinition, level int) int64 {
	return int64(math.Round(float64(def.BasePrice) * math.Pow(PriceGrowth, float64(level))))
}

// View merges a definition with the user's level.
func View(def domain.UpgradeDefinition, level int) domain.UpgradeView {
	return domain.UpgradeView{
		UpgradeDefinition: def,
		CurrentLevel:      level,
		Price:             Price(def, level),
		Available:         level < def.MaxLevel,
	}
}

// List builds views for every item. Missing ids in levels count as level 0.
func (c *Catalog) List(levels map[string]int) []domain.UpgradeView {
	out := make([]domain.UpgradeView, 0, len(c.items))
	for _, d := range c.items {
		out = append(out, View(d, levels[d.ID]))
	}
	return out
}

// Definitions returns a copy of the catalog entries.
func (c *Catalog) Definitions() []domain.UpgradeDefinition {
	return append([]domain.UpgradeDefinition(nil), c.items...)
}
