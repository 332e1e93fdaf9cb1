// Package domain holds OrderFlow's core entities and value types.
// Everything tenant-scoped carries a TenantID; monetary values are
// integer micro-units; quantities are exact decimals.
package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Micros is a monetary amount in millionths of a currency unit.
// 1_230_000 micros == 1.23 EUR.
type Micros int64

var microsPerUnit = decimal.NewFromInt(1_000_000)

// MicrosFromDecimal converts a decimal currency amount to micros,
// rounding half away from zero at the sixth fractional digit.
func MicrosFromDecimal(d decimal.Decimal) Micros {
	return Micros(d.Mul(microsPerUnit).Round(0).IntPart())
}

// MicrosFromString parses a decimal currency string into micros.
func MicrosFromString(s string) (Micros, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid money amount %q: %w", s, err)
	}
	return MicrosFromDecimal(d), nil
}

// Decimal converts micros back to a decimal currency amount.
func (m Micros) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(m)).Div(microsPerUnit)
}

// String renders the amount as a plain decimal with exactly two
// fractional digits, rounding half to even.
func (m Micros) String() string {
	return m.Decimal().StringFixedBank(2)
}

// RelativeDeviation returns |m - reference| / reference as a float.
// A zero reference returns 0 when m is also zero, 1 otherwise, so a
// free-of-charge tier never divides by zero.
func (m Micros) RelativeDeviation(reference Micros) float64 {
	if reference == 0 {
		if m == 0 {
			return 0
		}
		return 1
	}
	diff := int64(m) - int64(reference)
	if diff < 0 {
		diff = -diff
	}
	ref := int64(reference)
	if ref < 0 {
		ref = -ref
	}
	return float64(diff) / float64(ref)
}
