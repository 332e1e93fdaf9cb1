package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is the root of ownership. Every other entity carries its id.
type Tenant struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	Settings  TenantSettings
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TenantSettings holds per-tenant tuning. Zero values fall back to the
// defaults below, so a tenant row with an empty settings map behaves
// like DefaultTenantSettings().
type TenantSettings struct {
	DefaultCurrency string `json:"default_currency"`

	// Extraction.
	LLMTriggerConfidence   float64 `json:"llm_trigger_confidence"`
	MaxPagesForLLM         int     `json:"max_pages_for_llm"`
	HeaderConfidenceWeight float64 `json:"header_confidence_weight"`
	LineConfidenceWeight   float64 `json:"line_confidence_weight"`
	MaxQty                 int64   `json:"max_qty"`

	// Matching.
	AutoApplyThreshold    float64 `json:"auto_apply_threshold"`
	AutoApplyGap          float64 `json:"auto_apply_gap"`
	PriceTolerancePercent float64 `json:"price_tolerance_percent"`
	EmbeddingModel        string  `json:"embedding_model"`

	// Customer detection.
	CustomerAutoSelectThreshold float64 `json:"customer_auto_select_threshold"`
	CustomerMinGap              float64 `json:"customer_min_gap"`

	// Budget: 0 means unlimited.
	DailyBudgetMicros Micros `json:"daily_budget_micros"`

	// Validation: when true, PRICE_MISMATCH is an ERROR, not a WARNING.
	PriceMismatchIsError bool `json:"price_mismatch_is_error"`

	// Retention windows in days; 0 keeps forever.
	DocumentRetentionDays int `json:"document_retention_days"`
	AILogRetentionDays    int `json:"ai_log_retention_days"`
}

// DefaultTenantSettings returns the documented defaults.
func DefaultTenantSettings() TenantSettings {
	return TenantSettings{
		DefaultCurrency:             "EUR",
		LLMTriggerConfidence:        0.60,
		MaxPagesForLLM:              20,
		HeaderConfidenceWeight:      0.4,
		LineConfidenceWeight:        0.6,
		MaxQty:                      1_000_000,
		AutoApplyThreshold:          0.92,
		AutoApplyGap:                0.10,
		PriceTolerancePercent:       5,
		CustomerAutoSelectThreshold: 0.90,
		CustomerMinGap:              0.07,
	}
}

// Normalized returns a copy with zero values replaced by defaults and
// confidence weights rescaled to sum to 1.0.
func (s TenantSettings) Normalized() TenantSettings {
	def := DefaultTenantSettings()
	if s.DefaultCurrency == "" {
		s.DefaultCurrency = def.DefaultCurrency
	}
	if s.LLMTriggerConfidence <= 0 {
		s.LLMTriggerConfidence = def.LLMTriggerConfidence
	}
	if s.MaxPagesForLLM <= 0 {
		s.MaxPagesForLLM = def.MaxPagesForLLM
	}
	if s.HeaderConfidenceWeight <= 0 && s.LineConfidenceWeight <= 0 {
		s.HeaderConfidenceWeight = def.HeaderConfidenceWeight
		s.LineConfidenceWeight = def.LineConfidenceWeight
	}
	if sum := s.HeaderConfidenceWeight + s.LineConfidenceWeight; sum > 0 && sum != 1.0 {
		s.HeaderConfidenceWeight /= sum
		s.LineConfidenceWeight /= sum
	}
	if s.MaxQty <= 0 {
		s.MaxQty = def.MaxQty
	}
	if s.AutoApplyThreshold <= 0 {
		s.AutoApplyThreshold = def.AutoApplyThreshold
	}
	if s.AutoApplyGap <= 0 {
		s.AutoApplyGap = def.AutoApplyGap
	}
	if s.PriceTolerancePercent <= 0 {
		s.PriceTolerancePercent = def.PriceTolerancePercent
	}
	if s.CustomerAutoSelectThreshold <= 0 {
		s.CustomerAutoSelectThreshold = def.CustomerAutoSelectThreshold
	}
	if s.CustomerMinGap <= 0 {
		s.CustomerMinGap = def.CustomerMinGap
	}
	return s
}
