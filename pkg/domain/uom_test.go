package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUoM(t *testing.T) {
	tests := []struct {
		raw  string
		want UoM
		ok   bool
	}{
		{"ST", UoMPiece, true},
		{"st", UoMPiece, true},
		{"Stück", UoMPiece, true},
		{"stk", UoMPiece, true},
		{"pcs", UoMPiece, true},
		{"Pce", UoMPiece, true},
		{"m", UoMMeter, true},
		{"lfm", UoMMeter, true},
		{"Meter", UoMMeter, true},
		{"KG", UoMKilogram, true},
		{"kilogramm", UoMKilogram, true},
		{"Karton", UoMCarton, true},
		{"box", UoMCarton, true},
		{"Palette", UoMPallet, true},
		{"Satz", UoMSet, true},
		{"ml", UoMMilliliter, true},
		{"Stk.", UoMPiece, true},
		{" kg ", UoMKilogram, true},
		{"", "", false},
		{"furlong", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := NormalizeUoM(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestIsCanonicalUoM(t *testing.T) {
	for _, u := range CanonicalUoMs {
		assert.True(t, IsCanonicalUoM(u))
	}
	assert.False(t, IsCanonicalUoM("YD"))
	assert.False(t, IsCanonicalUoM(""))
}
