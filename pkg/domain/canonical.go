package domain

import (
	"github.com/shopspring/decimal"
)

// CanonicalOutput is the structured result of extracting one order
// document, independent of which extractor produced it.
type CanonicalOutput struct {
	Order            CanonicalOrder  `json:"order"`
	Lines            []CanonicalLine `json:"lines" validate:"dive"`
	Confidence       Confidence      `json:"confidence"`
	Warnings         []Warning       `json:"warnings,omitempty"`
	ExtractorVersion string          `json:"extractor_version"`
}

// CustomerHint carries whatever the document said about who ordered.
type CustomerHint struct {
	Name              string `json:"name,omitempty"`
	Email             string `json:"email,omitempty"`
	ERPCustomerNumber string `json:"erp_customer_number,omitempty"`
}

// CanonicalOrder is the extracted order header.
type CanonicalOrder struct {
	ExternalOrderNumber   string        `json:"external_order_number,omitempty"`
	OrderDate             string        `json:"order_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Currency              string        `json:"currency,omitempty" validate:"omitempty,iso4217"`
	RequestedDeliveryDate string        `json:"requested_delivery_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	CustomerHint          *CustomerHint `json:"customer_hint,omitempty"`
	Notes                 string        `json:"notes,omitempty"`
	ShipTo                *Address      `json:"ship_to,omitempty"`
}

// CanonicalLine is one extracted order line. LineNo runs 1..n without
// gaps.
type CanonicalLine struct {
	LineNo                int              `json:"line_no" validate:"min=1"`
	CustomerSKURaw        string           `json:"customer_sku_raw,omitempty"`
	ProductDescription    string           `json:"product_description,omitempty"`
	Qty                   *decimal.Decimal `json:"qty,omitempty"`
	UoM                   string           `json:"uom,omitempty" validate:"omitempty,oneof=ST M CM MM KG G L ML KAR PAL SET"`
	UnitPrice             *decimal.Decimal `json:"unit_price,omitempty"`
	Currency              string           `json:"currency,omitempty" validate:"omitempty,iso4217"`
	RequestedDeliveryDate string           `json:"requested_delivery_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// OrderFieldConfidence holds per-field header confidences in [0, 1].
type OrderFieldConfidence struct {
	ExternalOrderNumber float64 `json:"external_order_number"`
	OrderDate           float64 `json:"order_date"`
	Currency            float64 `json:"currency"`
}

// LineFieldConfidence holds per-field line confidences in [0, 1].
type LineFieldConfidence struct {
	CustomerSKU float64 `json:"customer_sku"`
	Qty         float64 `json:"qty"`
	Description float64 `json:"description"`
}

// Confidence aggregates extraction confidence.
type Confidence struct {
	Order   OrderFieldConfidence  `json:"order"`
	Lines   []LineFieldConfidence `json:"lines"`
	Overall float64               `json:"overall" validate:"min=0,max=1"`
}

// HasLines reports whether any line was extracted.
func (o *CanonicalOutput) HasLines() bool {
	return len(o.Lines) > 0
}

// AddWarning appends a coded warning.
func (o *CanonicalOutput) AddWarning(code, message string) {
	o.Warnings = append(o.Warnings, Warning{Code: code, Message: message})
}

// HasWarning reports whether a warning with the code exists.
func (o *CanonicalOutput) HasWarning(code string) bool {
	for _, w := range o.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}
