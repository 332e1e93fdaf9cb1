// Package erpexport renders approved drafts as export documents,
// writes them atomically into the ERP dropzone, and ingests the
// acknowledgment files the ERP writes back.
package erpexport

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/aliuyar1234/orderflow/pkg/domain"
)

// FormatVersion identifies the export document schema.
const FormatVersion = "orderflow_export_json_v1"

// ExportDocument is the rendered export payload.
type ExportDocument struct {
	FormatVersion   string       `json:"format_version"`
	ExportTimestamp string       `json:"export_timestamp"`
	Org             ExportOrg    `json:"org"`
	Order           ExportOrder  `json:"order"`
	Lines           []ExportLine `json:"lines"`
}

// ExportOrg identifies the exporting tenant.
type ExportOrg struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
}

// ExportCustomer carries the resolved customer.
type ExportCustomer struct {
	ERPCustomerNumber string `json:"erp_customer_number,omitempty"`
	Name              string `json:"name,omitempty"`
}

// ExportOrder is the order header.
type ExportOrder struct {
	DraftOrderID          string          `json:"draft_order_id"`
	ExternalOrderNumber   string          `json:"external_order_number,omitempty"`
	OrderDate             string          `json:"order_date,omitempty"`
	Currency              string          `json:"currency,omitempty"`
	RequestedDeliveryDate string          `json:"requested_delivery_date,omitempty"`
	Notes                 string          `json:"notes,omitempty"`
	ShipTo                *domain.Address `json:"ship_to,omitempty"`
	BillTo                *domain.Address `json:"bill_to,omitempty"`
	ApprovedAt            string          `json:"approved_at,omitempty"`
	Customer              *ExportCustomer `json:"customer,omitempty"`
}

// ExportLine is one order line.
type ExportLine struct {
	LineNo                int    `json:"line_no"`
	InternalSKU           string `json:"internal_sku,omitempty"`
	CustomerSKU           string `json:"customer_sku,omitempty"`
	Description           string `json:"description,omitempty"`
	Qty                   string `json:"qty"`
	UoM                   string `json:"uom"`
	UnitPrice             string `json:"unit_price,omitempty"`
	Currency              string `json:"currency,omitempty"`
	RequestedDeliveryDate string `json:"requested_delivery_date,omitempty"`
	LineNotes             string `json:"line_notes,omitempty"`
}

// Render builds the export document for an approved draft.
func Render(draft *domain.DraftOrder, tenant domain.Tenant, customer *domain.Customer, now time.Time) ([]byte, error) {
	doc := ExportDocument{
		FormatVersion:   FormatVersion,
		ExportTimestamp: now.UTC().Format(time.RFC3339),
		Org: ExportOrg{
			ID:   tenant.ID.String(),
			Slug: tenant.Slug,
		},
		Order: ExportOrder{
			DraftOrderID:        draft.ID.String(),
			ExternalOrderNumber: draft.ExternalOrderNumber,
			Currency:            draft.Currency,
			Notes:               draft.Notes,
			ShipTo:              draft.ShipTo,
			BillTo:              draft.BillTo,
		},
	}

	if draft.OrderDate != nil {
		doc.Order.OrderDate = draft.OrderDate.UTC().Format("2006-01-02")
	}
	if draft.RequestedDelivery != nil {
		doc.Order.RequestedDeliveryDate = draft.RequestedDelivery.UTC().Format("2006-01-02")
	}
	if draft.ApprovedAt != nil {
		doc.Order.ApprovedAt = draft.ApprovedAt.UTC().Format(time.RFC3339)
	}
	if customer != nil {
		doc.Order.Customer = &ExportCustomer{
			ERPCustomerNumber: customer.ERPCustomerNumber,
			Name:              customer.Name,
		}
	}

	doc.Lines = make([]ExportLine, 0, len(draft.Lines))
	for _, line := range draft.Lines {
		exportLine := ExportLine{
			LineNo:      line.LineNo,
			InternalSKU: line.InternalSKU,
			CustomerSKU: line.CustomerSKURaw,
			Description: line.Description,
			Currency:    line.Currency,
			LineNotes:   line.Notes,
		}
		if line.Qty != nil {
			exportLine.Qty = line.Qty.String()
		}
		if line.UoM != nil {
			exportLine.UoM = string(*line.UoM)
		}
		if line.UnitPriceMicros != nil {
			exportLine.UnitPrice = line.UnitPriceMicros.Decimal().String()
		}
		if line.RequestedDelivery != nil {
			exportLine.RequestedDeliveryDate = line.RequestedDelivery.UTC().Format("2006-01-02")
		}
		doc.Lines = append(doc.Lines, exportLine)
	}

	return json.MarshalIndent(doc, "", "  ")
}

// IdempotencyKey derives the unique export key from the draft
// identity and version.
func IdempotencyKey(tenantID, draftID uuid.UUID, draftVersion int64) string {
	return domainHash(tenantID.String(), draftID.String(), versionString(draftVersion))
}
