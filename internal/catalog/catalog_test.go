package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"clicker_ledger/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceCurve(t *testing.T) {
	def := domain.UpgradeDefinition{ID: "x", BasePrice: 50}

	cases := []struct {
		level int
		want  int64
	}{
		{0, 50},
		{1, 55},
		{2, 61}, // 60.5 rounds half away from zero
		{3, 67},
		{10, 130},
	}

	for _, tc := range cases {
		if got := Price(def, tc.level); got != tc.want {
			t.Fatalf("Price(50, %d) = %d; want %d", tc.level, got, tc.want)
		}
	}
}

func TestList_MergesLevels(t *testing.T) {
	c := Default()

	views := c.List(map[string]int{"click_power_1": 2, "click_power_5": 20})
	require.Len(t, views, 4)

	assert.Equal(t, "click_power_1", views[0].ID)
	assert.Equal(t, 2, views[0].CurrentLevel)
	assert.Equal(t, int64(61), views[0].Price)
	assert.True(t, views[0].Available)

	assert.Equal(t, 20, views[1].CurrentLevel)
	assert.False(t, views[1].Available)

	assert.Equal(t, 0, views[2].CurrentLevel)
	assert.Equal(t, int64(100), views[2].Price)
}

func TestLookup(t *testing.T) {
	c := Default()

	def, ok := c.Lookup("passive_income_10")
	require.True(t, ok)
	assert.Equal(t, domain.EffectPassiveIncome, def.EffectType)
	assert.Equal(t, int64(10), def.EffectValue)

	_, ok = c.Lookup("nope")
	assert.False(t, ok)
}

func TestNew_RejectsInvalid(t *testing.T) {
	base := domain.UpgradeDefinition{
		ID: "a", BasePrice: 10, EffectType: domain.EffectClickPower, EffectValue: 1, MaxLevel: 5,
	}

	_, err := New([]domain.UpgradeDefinition{base, base})
	assert.ErrorContains(t, err, "duplicate")

	bad := base
	bad.EffectType = "gold_rain"
	_, err = New([]domain.UpgradeDefinition{bad})
	assert.ErrorContains(t, err, "unknown effect_type")

	bad = base
	bad.MaxLevel = 0
	_, err = New([]domain.UpgradeDefinition{bad})
	assert.ErrorContains(t, err, "max_level")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := `upgrades:
  - id: golden_finger
    name: Golden finger
    base_price: 75
    effect_type: click_power
    effect_value: 3
    max_level: 10
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)

	def, ok := c.Lookup("golden_finger")
	require.True(t, ok)
	assert.Equal(t, int64(75), def.BasePrice)
	assert.Equal(t, 10, def.MaxLevel)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("upgrades: []\n"), 0o600))
	_, err = LoadFile(empty)
	assert.Error(t, err)
}
