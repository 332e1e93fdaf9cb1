// Package rules holds the pure validation rule functions. Each rule
// inspects a draft (with its lines and catalog caches) and returns
// zero or more findings; persistence and lifecycle live in
// pkg/validation.
package rules

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aliuyar1234/orderflow/pkg/domain"
)

// Issue type identifiers.
const (
	TypeMissingCustomer    = "MISSING_CUSTOMER"
	TypeMissingCurrency    = "MISSING_CURRENCY"
	TypeMissingSKU         = "MISSING_SKU"
	TypeUnknownProduct     = "UNKNOWN_PRODUCT"
	TypeMissingQty         = "MISSING_QTY"
	TypeInvalidQty         = "INVALID_QTY"
	TypeMissingUoM         = "MISSING_UOM"
	TypeUnknownUoM         = "UNKNOWN_UOM"
	TypeUoMIncompatible    = "UOM_INCOMPATIBLE"
	TypeMissingPrice       = "MISSING_PRICE"
	TypePriceMismatch      = "PRICE_MISMATCH"
	TypeDuplicateLine      = "DUPLICATE_LINE"
	TypeCurrencyMismatch   = "LINE_CURRENCY_MISMATCH"
	TypeRuleFailed         = "VALIDATION_RULE_FAILED"
)

// Finding is one rule result before persistence.
type Finding struct {
	LineID   *uuid.UUID
	Type     string
	Severity domain.IssueSeverity
	Message  string
	Details  map[string]interface{}
}

// Context is the input every rule receives.
type Context struct {
	Draft          *domain.DraftOrder
	ProductsBySKU  map[string]domain.Product
	PricesForSKU   func(internalSKU string) []domain.CustomerPrice
	Settings       domain.TenantSettings
	Now            time.Time
}

// Rule is a named pure validation function.
type Rule struct {
	Name string
	Run  func(ctx *Context) []Finding
}

// All returns the full rule set in evaluation order.
func All() []Rule {
	return []Rule{
		{"missing_customer", MissingCustomer},
		{"missing_currency", MissingCurrency},
		{"missing_sku", MissingSKU},
		{"unknown_product", UnknownProduct},
		{"missing_qty", MissingQty},
		{"invalid_qty", InvalidQty},
		{"missing_uom", MissingUoM},
		{"unknown_uom", UnknownUoM},
		{"uom_incompatible", UoMIncompatible},
		{"missing_price", MissingPrice},
		{"price_mismatch", PriceMismatch},
		{"duplicate_line", DuplicateLine},
		{"line_currency", LineCurrency},
	}
}

// MissingCustomer flags a draft without a customer.
func MissingCustomer(ctx *Context) []Finding {
	if ctx.Draft.CustomerID != nil {
		return nil
	}
	return []Finding{{
		Type:     TypeMissingCustomer,
		Severity: domain.SeverityError,
		Message:  "no customer is assigned to this order",
	}}
}

// MissingCurrency flags a draft without a header currency.
func MissingCurrency(ctx *Context) []Finding {
	if ctx.Draft.Currency != "" {
		return nil
	}
	return []Finding{{
		Type:     TypeMissingCurrency,
		Severity: domain.SeverityError,
		Message:  "no currency is set on this order",
	}}
}

// MissingSKU flags lines without an internal SKU.
func MissingSKU(ctx *Context) []Finding {
	var findings []Finding
	for i := range ctx.Draft.Lines {
		line := &ctx.Draft.Lines[i]
		if line.InternalSKU == "" {
			findings = append(findings, lineFinding(line, TypeMissingSKU, domain.SeverityError,
				fmt.Sprintf("line %d has no internal SKU", line.LineNo)))
		}
	}
	return findings
}

// UnknownProduct flags lines whose internal SKU is absent from the
// catalog or points at an inactive product.
func UnknownProduct(ctx *Context) []Finding {
	var findings []Finding
	for i := range ctx.Draft.Lines {
		line := &ctx.Draft.Lines[i]
		if line.InternalSKU == "" {
			continue
		}
		product, ok := ctx.ProductsBySKU[line.InternalSKU]
		if !ok || !product.Active {
			findings = append(findings, lineFinding(line, TypeUnknownProduct, domain.SeverityError,
				fmt.Sprintf("line %d references unknown or inactive product %s", line.LineNo, line.InternalSKU)))
		}
	}
	return findings
}

// MissingQty flags lines without a quantity.
func MissingQty(ctx *Context) []Finding {
	var findings []Finding
	for i := range ctx.Draft.Lines {
		line := &ctx.Draft.Lines[i]
		if line.Qty == nil {
			findings = append(findings, lineFinding(line, TypeMissingQty, domain.SeverityError,
				fmt.Sprintf("line %d has no quantity", line.LineNo)))
		}
	}
	return findings
}

// InvalidQty flags non-positive quantities.
func InvalidQty(ctx *Context) []Finding {
	var findings []Finding
	for i := range ctx.Draft.Lines {
		line := &ctx.Draft.Lines[i]
		if line.Qty != nil && line.Qty.LessThanOrEqual(decimal.Zero) {
			findings = append(findings, lineFinding(line, TypeInvalidQty, domain.SeverityError,
				fmt.Sprintf("line %d quantity %s is not positive", line.LineNo, line.Qty.String())))
		}
	}
	return findings
}

// MissingUoM flags lines without a unit.
func MissingUoM(ctx *Context) []Finding {
	var findings []Finding
	for i := range ctx.Draft.Lines {
		line := &ctx.Draft.Lines[i]
		if line.UoM == nil || *line.UoM == "" {
			findings = append(findings, lineFinding(line, TypeMissingUoM, domain.SeverityError,
				fmt.Sprintf("line %d has no unit of measure", line.LineNo)))
		}
	}
	return findings
}

// UnknownUoM flags units outside the canonical set.
func UnknownUoM(ctx *Context) []Finding {
	var findings []Finding
	for i := range ctx.Draft.Lines {
		line := &ctx.Draft.Lines[i]
		if line.UoM == nil || *line.UoM == "" {
			continue
		}
		if !domain.IsCanonicalUoM(*line.UoM) {
			findings = append(findings, lineFinding(line, TypeUnknownUoM, domain.SeverityError,
				fmt.Sprintf("line %d unit %q is not a canonical code", line.LineNo, *line.UoM)))
		}
	}
	return findings
}

// UoMIncompatible flags line units the product cannot convert from.
func UoMIncompatible(ctx *Context) []Finding {
	var findings []Finding
	for i := range ctx.Draft.Lines {
		line := &ctx.Draft.Lines[i]
		if line.UoM == nil || *line.UoM == "" || line.InternalSKU == "" {
			continue
		}
		product, ok := ctx.ProductsBySKU[line.InternalSKU]
		if !ok {
			continue // UnknownProduct already covers this line
		}
		if !product.ConvertsFrom(*line.UoM) {
			findings = append(findings, lineFinding(line, TypeUoMIncompatible, domain.SeverityError,
				fmt.Sprintf("line %d unit %s cannot convert to product base unit %s", line.LineNo, *line.UoM, product.BaseUoM)))
		}
	}
	return findings
}

// MissingPrice warns about lines without a unit price.
func MissingPrice(ctx *Context) []Finding {
	var findings []Finding
	for i := range ctx.Draft.Lines {
		line := &ctx.Draft.Lines[i]
		if line.UnitPriceMicros == nil {
			findings = append(findings, lineFinding(line, TypeMissingPrice, domain.SeverityWarning,
				fmt.Sprintf("line %d has no unit price", line.LineNo)))
		}
	}
	return findings
}

// PriceMismatch compares line prices against the applicable customer
// tier. Severity is a tenant setting.
func PriceMismatch(ctx *Context) []Finding {
	if ctx.PricesForSKU == nil {
		return nil
	}
	settings := ctx.Settings.Normalized()
	severity := domain.SeverityWarning
	if settings.PriceMismatchIsError {
		severity = domain.SeverityError
	}
	tolerance := settings.PriceTolerancePercent / 100

	at := ctx.Now
	if ctx.Draft.OrderDate != nil {
		at = *ctx.Draft.OrderDate
	}

	var findings []Finding
	for i := range ctx.Draft.Lines {
		line := &ctx.Draft.Lines[i]
		if line.UnitPriceMicros == nil || line.Qty == nil || line.InternalSKU == "" {
			continue
		}
		tiers := ctx.PricesForSKU(line.InternalSKU)
		tier := domain.SelectPriceTier(tiers, *line.Qty, at)
		if tier == nil {
			continue
		}
		deviation := line.UnitPriceMicros.RelativeDeviation(tier.UnitPriceMicros)
		if deviation > tolerance {
			findings = append(findings, Finding{
				LineID:   &line.ID,
				Type:     TypePriceMismatch,
				Severity: severity,
				Message: fmt.Sprintf("line %d price %s deviates %.1f%% from the agreed price %s",
					line.LineNo, line.UnitPriceMicros.String(), deviation*100, tier.UnitPriceMicros.String()),
				Details: map[string]interface{}{
					"line_price_micros": int64(*line.UnitPriceMicros),
					"tier_price_micros": int64(tier.UnitPriceMicros),
					"deviation":         deviation,
				},
			})
		}
	}
	return findings
}

// DuplicateLine warns when the same (internal SKU, qty, UoM) appears
// more than once.
func DuplicateLine(ctx *Context) []Finding {
	seen := make(map[string]int) // key -> first line number
	var findings []Finding
	for i := range ctx.Draft.Lines {
		line := &ctx.Draft.Lines[i]
		if line.InternalSKU == "" || line.Qty == nil || line.UoM == nil {
			continue
		}
		key := line.InternalSKU + "|" + line.Qty.String() + "|" + string(*line.UoM)
		if first, ok := seen[key]; ok {
			findings = append(findings, lineFinding(line, TypeDuplicateLine, domain.SeverityWarning,
				fmt.Sprintf("line %d duplicates line %d (%s)", line.LineNo, first, line.InternalSKU)))
			continue
		}
		seen[key] = line.LineNo
	}
	return findings
}

// LineCurrency warns when a line currency differs from the header.
func LineCurrency(ctx *Context) []Finding {
	if ctx.Draft.Currency == "" {
		return nil
	}
	var findings []Finding
	for i := range ctx.Draft.Lines {
		line := &ctx.Draft.Lines[i]
		if line.Currency != "" && line.Currency != ctx.Draft.Currency {
			findings = append(findings, lineFinding(line, TypeCurrencyMismatch, domain.SeverityWarning,
				fmt.Sprintf("line %d currency %s differs from order currency %s", line.LineNo, line.Currency, ctx.Draft.Currency)))
		}
	}
	return findings
}

func lineFinding(line *domain.DraftOrderLine, issueType string, severity domain.IssueSeverity, message string) Finding {
	return Finding{
		LineID:   &line.ID,
		Type:     issueType,
		Severity: severity,
		Message:  message,
	}
}
