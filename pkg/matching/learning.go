package matching

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aliuyar1234/orderflow/pkg/domain"
)

// MappingStore reads and writes the learned mapping table. Find
// returns the live mapping for a key regardless of status (DEPRECATED
// rows are invisible); Save creates or updates one row.
type MappingStore interface {
	FindConfirmed(ctx context.Context, tenantID, customerID uuid.UUID, normalizedSKU string) (*domain.SKUMapping, error)
	Find(ctx context.Context, tenantID, customerID uuid.UUID, normalizedSKU string) (*domain.SKUMapping, error)
	Save(ctx context.Context, mapping *domain.SKUMapping) error
}

// FeedbackSink records append-only audit events.
type FeedbackSink interface {
	Record(ctx context.Context, event domain.FeedbackEvent) error
}

// Learner drives the SUGGESTED -> CONFIRMED / REJECTED mapping
// lifecycle from user decisions on matched lines. Every decision
// writes a feedback event; the counters feed future confidence
// tuning.
type Learner struct {
	store    MappingStore
	feedback FeedbackSink
	log      *logrus.Logger
	now      func() time.Time
}

// NewLearner builds a Learner. feedback may be nil.
func NewLearner(store MappingStore, feedback FeedbackSink, logger *logrus.Logger) *Learner {
	return &Learner{store: store, feedback: feedback, log: logger, now: time.Now}
}

// WithClock overrides the learner's clock.
func (l *Learner) WithClock(now func() time.Time) *Learner {
	l.now = now
	return l
}

// Decision carries the context of one user decision on a line match.
type Decision struct {
	TenantID      uuid.UUID
	CustomerID    uuid.UUID
	NormalizedSKU string
	InternalSKU   string
	Actor         string
	DraftID       *uuid.UUID
	LineID        *uuid.UUID
}

// Confirm records that the user accepted internal SKU for the
// customer SKU. An existing mapping to the same product is confirmed
// and its support counter bumped; a mapping to a different product is
// deprecated and replaced.
func (l *Learner) Confirm(ctx context.Context, d Decision) (*domain.SKUMapping, error) {
	now := l.now().UTC()

	mapping, err := l.store.Find(ctx, d.TenantID, d.CustomerID, d.NormalizedSKU)
	if err != nil {
		return nil, err
	}

	if mapping != nil && mapping.InternalSKU != d.InternalSKU {
		mapping.Status = domain.MappingDeprecated
		if err := l.store.Save(ctx, mapping); err != nil {
			return nil, err
		}
		mapping = nil
	}

	if mapping == nil {
		mapping = &domain.SKUMapping{
			ID:            uuid.New(),
			TenantID:      d.TenantID,
			CustomerID:    d.CustomerID,
			NormalizedSKU: d.NormalizedSKU,
			InternalSKU:   d.InternalSKU,
		}
	}

	mapping.Status = domain.MappingConfirmed
	mapping.SupportCount++
	mapping.LastUsedAt = &now
	if err := l.store.Save(ctx, mapping); err != nil {
		return nil, err
	}

	l.audit(ctx, domain.FeedbackEvent{
		TenantID:  d.TenantID,
		Kind:      domain.FeedbackMappingConfirmed,
		Actor:     d.Actor,
		DraftID:   d.DraftID,
		LineID:    d.LineID,
		MappingID: &mapping.ID,
		Payload: map[string]interface{}{
			"normalized_sku": d.NormalizedSKU,
			"internal_sku":   d.InternalSKU,
			"support_count":  mapping.SupportCount,
		},
	})

	return mapping, nil
}

// Reject records that the user refused internal SKU for the customer
// SKU. The mapping survives as REJECTED so the same suggestion is not
// re-learned from the next document.
func (l *Learner) Reject(ctx context.Context, d Decision) (*domain.SKUMapping, error) {
	mapping, err := l.store.Find(ctx, d.TenantID, d.CustomerID, d.NormalizedSKU)
	if err != nil {
		return nil, err
	}

	if mapping == nil || mapping.InternalSKU != d.InternalSKU {
		mapping = &domain.SKUMapping{
			ID:            uuid.New(),
			TenantID:      d.TenantID,
			CustomerID:    d.CustomerID,
			NormalizedSKU: d.NormalizedSKU,
			InternalSKU:   d.InternalSKU,
		}
	}

	mapping.Status = domain.MappingRejected
	mapping.RejectCount++
	if err := l.store.Save(ctx, mapping); err != nil {
		return nil, err
	}

	l.audit(ctx, domain.FeedbackEvent{
		TenantID:  d.TenantID,
		Kind:      domain.FeedbackMappingRejected,
		Actor:     d.Actor,
		DraftID:   d.DraftID,
		LineID:    d.LineID,
		MappingID: &mapping.ID,
		Payload: map[string]interface{}{
			"normalized_sku": d.NormalizedSKU,
			"internal_sku":   d.InternalSKU,
			"reject_count":   mapping.RejectCount,
		},
	})

	return mapping, nil
}

func (l *Learner) audit(ctx context.Context, event domain.FeedbackEvent) {
	if l.feedback == nil {
		return
	}
	if err := l.feedback.Record(ctx, event); err != nil {
		l.log.WithError(err).Warn("mapping feedback write failed")
	}
}
