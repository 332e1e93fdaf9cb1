package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Address is a postal address on a draft header.
type Address struct {
	Company string `json:"company,omitempty"`
	Street  string `json:"street,omitempty"`
	Zip     string `json:"zip,omitempty"`
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}

// ReadyCheck is the stored outcome of the latest ready evaluation.
type ReadyCheck struct {
	IsReady         bool      `json:"is_ready"`
	BlockingReasons []string  `json:"blocking_reasons"`
	CheckedAt       time.Time `json:"checked_at"`
}

// DraftOrder is the central work item of the pipeline.
type DraftOrder struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	CustomerID          *uuid.UUID
	DocumentID          *uuid.UUID
	ExtractionRunID     *uuid.UUID
	ExternalOrderNumber string
	OrderDate           *time.Time
	RequestedDelivery   *time.Time
	Currency            string
	ShipTo              *Address
	BillTo              *Address
	Notes               string
	Status              DraftStatus
	Version             int64
	ApprovedBy          string
	ApprovedAt          *time.Time
	ERPReference        string
	PushedAt            *time.Time
	DeletedAt           *time.Time
	Ready               *ReadyCheck

	OverallConfidence    float64
	ExtractionConfidence float64
	CustomerConfidence   float64
	MatchingConfidence   float64

	Lines []DraftOrderLine

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsDeleted reports whether the draft is soft-deleted.
func (d *DraftOrder) IsDeleted() bool {
	return d.DeletedAt != nil
}

// MatchCandidate is one scored catalog candidate for a line.
type MatchCandidate struct {
	ProductID   uuid.UUID   `json:"product_id"`
	InternalSKU string      `json:"internal_sku"`
	Name        string      `json:"name"`
	Confidence  float64     `json:"confidence"`
	Method      MatchMethod `json:"method"`
	TriScore    float64     `json:"tri_score"`
	EmbScore    float64     `json:"emb_score"`
	UoMPenalty  float64     `json:"uom_penalty"`
	PricePen    float64     `json:"price_penalty"`
}

// DraftOrderLine is one quantity-bearing line of a draft.
type DraftOrderLine struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	DraftID           uuid.UUID
	LineNo            int
	ProductID         *uuid.UUID
	InternalSKU       string
	CustomerSKURaw    string
	NormalizedSKU     string
	Description       string
	Qty               *decimal.Decimal
	UoM               *UoM
	UnitPriceMicros   *Micros
	Currency          string
	RequestedDelivery *time.Time
	MatchStatus       MatchStatus
	MatchMethod       MatchMethod
	MatchConfidence   float64
	Candidates        []MatchCandidate
	Notes             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ValidationIssue is one finding from a validation run, attached to a
// draft or one of its lines.
type ValidationIssue struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	DraftID    uuid.UUID
	LineID     *uuid.UUID
	Type       string
	Severity   IssueSeverity
	Status     IssueStatus
	Message    string
	Details    map[string]interface{}
	ResolvedBy string
	ResolvedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
