package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMicrosFromString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Micros
	}{
		{"simple", "1.23", 1_230_000},
		{"integer", "10", 10_000_000},
		{"six digits", "0.000001", 1},
		{"rounds half up", "0.0000015", 2},
		{"rounds half up negative", "-0.0000015", -2},
		{"truncating digits", "1.2345678", 1_234_568},
		{"zero", "0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MicrosFromString(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMicrosFromStringInvalid(t *testing.T) {
	_, err := MicrosFromString("not-a-number")
	assert.Error(t, err)
}

func TestMicrosRoundTrip(t *testing.T) {
	d := decimal.RequireFromString("1234.56789")
	m := MicrosFromDecimal(d)
	assert.True(t, m.Decimal().Equal(decimal.RequireFromString("1234.56789")))
}

func TestMicrosString(t *testing.T) {
	assert.Equal(t, "1.23", Micros(1_230_000).String())
	assert.Equal(t, "0.00", Micros(0).String())
}

func TestRelativeDeviation(t *testing.T) {
	tests := []struct {
		name      string
		value     Micros
		reference Micros
		want      float64
	}{
		{"exact", 1_000_000, 1_000_000, 0},
		{"five percent over", 1_050_000, 1_000_000, 0.05},
		{"five percent under", 950_000, 1_000_000, 0.05},
		{"zero reference zero value", 0, 0, 0},
		{"zero reference nonzero value", 500, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.value.RelativeDeviation(tt.reference), 1e-9)
		})
	}
}
