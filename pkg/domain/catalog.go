package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Customer is one business customer in the tenant's catalog.
type Customer struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	Name              string
	ERPCustomerNumber string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CustomerContact carries a case-insensitively unique email per
// customer.
type CustomerContact struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	CustomerID uuid.UUID
	Email      string
	Name       string
	IsPrimary  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Domain returns the lower-cased part after '@', or "" when the email
// has none.
func (c CustomerContact) Domain() string {
	at := strings.LastIndex(c.Email, "@")
	if at < 0 || at == len(c.Email)-1 {
		return ""
	}
	return strings.ToLower(c.Email[at+1:])
}

// Product is an internal catalog item. InternalSKU is immutable.
type Product struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	InternalSKU    string
	Name           string
	Description    string
	BaseUoM        UoM
	UoMConversions map[UoM]decimal.Decimal // alt UoM -> multiplier to base
	Attributes     map[string]string
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ConvertsFrom reports whether qty in the given UoM can be expressed
// in the product's base UoM.
func (p Product) ConvertsFrom(u UoM) bool {
	if u == p.BaseUoM {
		return true
	}
	_, ok := p.UoMConversions[u]
	return ok
}

// ProductEmbedding is one vector per (product, model).
type ProductEmbedding struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	ProductID uuid.UUID
	Model     string
	Embedding []float32
	TextHash  string // SHA-256 of the canonical embedded text
	SourcedAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CustomerPrice is one tier of a stepped price schedule.
type CustomerPrice struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	CustomerID      uuid.UUID
	InternalSKU     string
	Currency        string
	UoM             UoM
	MinQty          decimal.Decimal
	UnitPriceMicros Micros
	ValidFrom       *time.Time
	ValidTo         *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AppliesAt reports whether the tier's validity window covers t.
func (p CustomerPrice) AppliesAt(t time.Time) bool {
	if p.ValidFrom != nil && t.Before(*p.ValidFrom) {
		return false
	}
	if p.ValidTo != nil && t.After(*p.ValidTo) {
		return false
	}
	return true
}

// SelectPriceTier picks the applicable tier from tiers: greatest
// MinQty <= qty among tiers valid at the given date, matching currency
// and SKU filtering being the caller's concern. Returns nil when no
// tier applies.
func SelectPriceTier(tiers []CustomerPrice, qty decimal.Decimal, at time.Time) *CustomerPrice {
	var best *CustomerPrice
	for i := range tiers {
		tier := &tiers[i]
		if !tier.AppliesAt(at) {
			continue
		}
		if tier.MinQty.GreaterThan(qty) {
			continue
		}
		if best == nil || tier.MinQty.GreaterThan(best.MinQty) {
			best = tier
		}
	}
	return best
}

// SKUMapping is a learned (customer SKU -> internal SKU) link.
type SKUMapping struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	CustomerID        uuid.UUID
	NormalizedSKU     string
	InternalSKU       string
	Status            MappingStatus
	SupportCount      int
	RejectCount       int
	UoMConversionNote string
	LastUsedAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NormalizeSKU canonicalizes a raw customer SKU for mapping and
// lookup: upper-cased, with whitespace and separator runs collapsed.
func NormalizeSKU(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	var b strings.Builder
	b.Grow(len(s))
	lastSep := false
	for _, r := range s {
		switch {
		case r == ' ' || r == '\t' || r == '_' || r == '.' || r == '/':
			if !lastSep && b.Len() > 0 {
				b.WriteRune('-')
			}
			lastSep = true
		default:
			b.WriteRune(r)
			lastSep = false
		}
	}
	out := b.String()
	if lastSep {
		// Drop the separator written for a trailing run; dashes from the
		// raw input are kept.
		out = strings.TrimSuffix(out, "-")
	}
	return out
}
