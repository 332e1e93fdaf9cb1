package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSKU(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"abc-123", "ABC-123"},
		{"  ABC 123  ", "ABC-123"},
		{"abc_123", "ABC-123"},
		{"abc.123/x", "ABC-123-X"},
		{"abc   123", "ABC-123"},
		{"", ""},
		{"---", "---"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSKU(tt.raw))
		})
	}
}

func TestSelectPriceTier(t *testing.T) {
	now := time.Now().UTC()
	tiers := []CustomerPrice{
		{MinQty: decimal.NewFromInt(1), UnitPriceMicros: 2_000_000},
		{MinQty: decimal.NewFromInt(100), UnitPriceMicros: 1_800_000},
		{MinQty: decimal.NewFromInt(500), UnitPriceMicros: 1_500_000},
	}

	t.Run("qty below first tier", func(t *testing.T) {
		tier := SelectPriceTier(tiers, decimal.NewFromFloat(0.5), now)
		assert.Nil(t, tier)
	})

	t.Run("qty exactly at tier boundary selects that tier", func(t *testing.T) {
		tier := SelectPriceTier(tiers, decimal.NewFromInt(100), now)
		require.NotNil(t, tier)
		assert.Equal(t, Micros(1_800_000), tier.UnitPriceMicros)
	})

	t.Run("qty between tiers selects lower tier", func(t *testing.T) {
		tier := SelectPriceTier(tiers, decimal.NewFromInt(499), now)
		require.NotNil(t, tier)
		assert.Equal(t, Micros(1_800_000), tier.UnitPriceMicros)
	})

	t.Run("qty at top tier", func(t *testing.T) {
		tier := SelectPriceTier(tiers, decimal.NewFromInt(500), now)
		require.NotNil(t, tier)
		assert.Equal(t, Micros(1_500_000), tier.UnitPriceMicros)
	})

	t.Run("expired tier is skipped", func(t *testing.T) {
		past := now.Add(-48 * time.Hour)
		expired := []CustomerPrice{
			{MinQty: decimal.NewFromInt(1), UnitPriceMicros: 900_000, ValidTo: &past},
		}
		assert.Nil(t, SelectPriceTier(expired, decimal.NewFromInt(10), now))
	})

	t.Run("future tier is skipped", func(t *testing.T) {
		future := now.Add(48 * time.Hour)
		pending := []CustomerPrice{
			{MinQty: decimal.NewFromInt(1), UnitPriceMicros: 900_000, ValidFrom: &future},
		}
		assert.Nil(t, SelectPriceTier(pending, decimal.NewFromInt(10), now))
	})
}

func TestProductConvertsFrom(t *testing.T) {
	p := Product{
		BaseUoM: UoMMeter,
		UoMConversions: map[UoM]decimal.Decimal{
			UoMCentimeter: decimal.RequireFromString("0.01"),
		},
	}

	assert.True(t, p.ConvertsFrom(UoMMeter))
	assert.True(t, p.ConvertsFrom(UoMCentimeter))
	assert.False(t, p.ConvertsFrom(UoMKilogram))
}

func TestCustomerContactDomain(t *testing.T) {
	assert.Equal(t, "acme.example", CustomerContact{Email: "buyer@ACME.example"}.Domain())
	assert.Equal(t, "", CustomerContact{Email: "no-at-sign"}.Domain())
	assert.Equal(t, "", CustomerContact{Email: "trailing@"}.Domain())
}

func TestTenantSettingsNormalized(t *testing.T) {
	t.Run("zero settings get defaults", func(t *testing.T) {
		s := TenantSettings{}.Normalized()
		def := DefaultTenantSettings()
		assert.Equal(t, def, s)
	})

	t.Run("confidence weights rescale to sum 1", func(t *testing.T) {
		s := TenantSettings{HeaderConfidenceWeight: 1, LineConfidenceWeight: 3}.Normalized()
		assert.InDelta(t, 0.25, s.HeaderConfidenceWeight, 1e-9)
		assert.InDelta(t, 0.75, s.LineConfidenceWeight, 1e-9)
	})

	t.Run("explicit values survive", func(t *testing.T) {
		s := TenantSettings{DailyBudgetMicros: 5_000_000, MaxQty: 10}.Normalized()
		assert.Equal(t, Micros(5_000_000), s.DailyBudgetMicros)
		assert.Equal(t, int64(10), s.MaxQty)
	})
}
