package draftorder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/domain"
)

// Store persists drafts. Save enforces optimistic concurrency: the
// write succeeds only when the stored version equals expectedVersion,
// and bumps the version by one.
type Store interface {
	Get(ctx context.Context, tenantID, draftID uuid.UUID) (*domain.DraftOrder, error)
	Create(ctx context.Context, draft *domain.DraftOrder) error
	Save(ctx context.Context, draft *domain.DraftOrder, expectedVersion int64) error
}

// FeedbackSink records append-only audit events.
type FeedbackSink interface {
	Record(ctx context.Context, event domain.FeedbackEvent) error
}

// Service applies lifecycle operations to drafts.
type Service struct {
	store    Store
	feedback FeedbackSink
	log      *logrus.Logger
	now      func() time.Time
}

// NewService builds a Service. feedback may be nil.
func NewService(store Store, feedback FeedbackSink, logger *logrus.Logger) *Service {
	return &Service{store: store, feedback: feedback, log: logger, now: time.Now}
}

// WithClock overrides the service's clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create persists a new draft.
func (s *Service) Create(ctx context.Context, draft *domain.DraftOrder) error {
	return s.store.Create(ctx, draft)
}

// Get loads a draft. Soft-deleted and cross-tenant drafts read as
// NotFound.
func (s *Service) Get(ctx context.Context, tenantID, draftID uuid.UUID) (*domain.DraftOrder, error) {
	draft, err := s.store.Get(ctx, tenantID, draftID)
	if err != nil {
		return nil, err
	}
	if draft == nil || draft.IsDeleted() {
		return nil, apperrors.Newf(apperrors.ErrorTypeNotFound, "draft %s not found", draftID)
	}
	return draft, nil
}

// Mutate loads the draft, applies fn, and saves under the caller's
// expected version. Soft-deleted drafts read as NotFound.
func (s *Service) Mutate(ctx context.Context, tenantID, draftID uuid.UUID, expectedVersion int64, fn func(*domain.DraftOrder) error) (*domain.DraftOrder, error) {
	draft, err := s.store.Get(ctx, tenantID, draftID)
	if err != nil {
		return nil, err
	}
	if draft == nil || draft.IsDeleted() {
		return nil, apperrors.Newf(apperrors.ErrorTypeNotFound, "draft %s not found", draftID)
	}
	if draft.Version != expectedVersion {
		return nil, apperrors.Newf(apperrors.ErrorTypeVersionConflict,
			"draft version is %d, expected %d", draft.Version, expectedVersion)
	}

	if err := fn(draft); err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, draft, expectedVersion); err != nil {
		return nil, err
	}
	return draft, nil
}

// Transition moves the draft to a new status along a legal edge.
func (s *Service) Transition(ctx context.Context, tenantID, draftID uuid.UUID, expectedVersion int64, to domain.DraftStatus) (*domain.DraftOrder, error) {
	return s.Mutate(ctx, tenantID, draftID, expectedVersion, func(draft *domain.DraftOrder) error {
		if err := CheckDraftTransition(draft.Status, to); err != nil {
			return err
		}
		draft.Status = to
		return nil
	})
}

// Approve moves a READY draft to APPROVED. The ready-check must have
// passed; approval capability of the actor is the caller's contract.
func (s *Service) Approve(ctx context.Context, tenantID, draftID uuid.UUID, expectedVersion int64, actor string) (*domain.DraftOrder, error) {
	draft, err := s.Mutate(ctx, tenantID, draftID, expectedVersion, func(draft *domain.DraftOrder) error {
		if err := CheckDraftTransition(draft.Status, domain.DraftApproved); err != nil {
			return err
		}
		if draft.Ready == nil || !draft.Ready.IsReady {
			return apperrors.New(apperrors.ErrorTypeIllegalStateTransition,
				"draft is not ready for approval")
		}
		approvedAt := s.now().UTC()
		draft.Status = domain.DraftApproved
		draft.ApprovedBy = actor
		draft.ApprovedAt = &approvedAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, domain.FeedbackEvent{
		TenantID: tenantID,
		Kind:     domain.FeedbackDraftApproved,
		Actor:    actor,
		DraftID:  &draftID,
	})
	return draft, nil
}

// ApplyLineMatch records the user's accepted product on a line. The
// line becomes MATCHED; the caller drives re-validation and mapping
// learning.
func (s *Service) ApplyLineMatch(ctx context.Context, tenantID, draftID uuid.UUID, expectedVersion int64, lineNo int, product domain.Product, actor string) (*domain.DraftOrder, error) {
	var lineID *uuid.UUID
	draft, err := s.Mutate(ctx, tenantID, draftID, expectedVersion, func(draft *domain.DraftOrder) error {
		line := findLine(draft, lineNo)
		if line == nil {
			return apperrors.Newf(apperrors.ErrorTypeNotFound, "line %d not found on draft %s", lineNo, draftID)
		}
		productID := product.ID
		line.ProductID = &productID
		line.InternalSKU = product.InternalSKU
		line.MatchStatus = domain.MatchMatched
		line.MatchMethod = domain.MethodExactMapping
		line.MatchConfidence = 0.99
		lineID = &line.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, domain.FeedbackEvent{
		TenantID: tenantID,
		Kind:     domain.FeedbackLineEdited,
		Actor:    actor,
		DraftID:  &draftID,
		LineID:   lineID,
		Payload: map[string]interface{}{
			"line_no":      lineNo,
			"internal_sku": product.InternalSKU,
			"action":       "match_confirmed",
		},
	})
	return draft, nil
}

// ClearLineMatch removes the user-rejected product from a line,
// returning it to UNMATCHED for review.
func (s *Service) ClearLineMatch(ctx context.Context, tenantID, draftID uuid.UUID, expectedVersion int64, lineNo int, actor string) (*domain.DraftOrder, error) {
	var lineID *uuid.UUID
	var rejectedSKU string
	draft, err := s.Mutate(ctx, tenantID, draftID, expectedVersion, func(draft *domain.DraftOrder) error {
		line := findLine(draft, lineNo)
		if line == nil {
			return apperrors.Newf(apperrors.ErrorTypeNotFound, "line %d not found on draft %s", lineNo, draftID)
		}
		rejectedSKU = line.InternalSKU
		line.ProductID = nil
		line.InternalSKU = ""
		line.MatchStatus = domain.MatchUnmatched
		line.MatchConfidence = 0
		lineID = &line.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, domain.FeedbackEvent{
		TenantID: tenantID,
		Kind:     domain.FeedbackLineEdited,
		Actor:    actor,
		DraftID:  &draftID,
		LineID:   lineID,
		Payload: map[string]interface{}{
			"line_no":      lineNo,
			"internal_sku": rejectedSKU,
			"action":       "match_rejected",
		},
	})
	return draft, nil
}

func findLine(draft *domain.DraftOrder, lineNo int) *domain.DraftOrderLine {
	for i := range draft.Lines {
		if draft.Lines[i].LineNo == lineNo {
			return &draft.Lines[i]
		}
	}
	return nil
}

// MarkPushed records a successful export hand-off.
func (s *Service) MarkPushed(ctx context.Context, tenantID, draftID uuid.UUID, expectedVersion int64, erpReference string) (*domain.DraftOrder, error) {
	return s.Mutate(ctx, tenantID, draftID, expectedVersion, func(draft *domain.DraftOrder) error {
		if err := CheckDraftTransition(draft.Status, domain.DraftPushed); err != nil {
			return err
		}
		pushedAt := s.now().UTC()
		draft.Status = domain.DraftPushed
		draft.PushedAt = &pushedAt
		if erpReference != "" {
			draft.ERPReference = erpReference
		}
		return nil
	})
}

// ApplyAck moves a PUSHED draft to its terminal state from an ERP
// acknowledgment.
func (s *Service) ApplyAck(ctx context.Context, tenantID, draftID uuid.UUID, expectedVersion int64, acked bool, erpReference string) (*domain.DraftOrder, error) {
	to := domain.DraftAcked
	if !acked {
		to = domain.DraftFailed
	}
	return s.Mutate(ctx, tenantID, draftID, expectedVersion, func(draft *domain.DraftOrder) error {
		if err := CheckDraftTransition(draft.Status, to); err != nil {
			return err
		}
		draft.Status = to
		if erpReference != "" {
			draft.ERPReference = erpReference
		}
		return nil
	})
}

// SetReady stores a ready-check snapshot and moves MATCHED drafts to
// READY (or READY drafts back to MATCHED when the gate regressed).
func (s *Service) SetReady(ctx context.Context, tenantID, draftID uuid.UUID, expectedVersion int64, ready domain.ReadyCheck) (*domain.DraftOrder, error) {
	return s.Mutate(ctx, tenantID, draftID, expectedVersion, func(draft *domain.DraftOrder) error {
		draft.Ready = &ready
		switch {
		case ready.IsReady && draft.Status == domain.DraftMatched:
			draft.Status = domain.DraftReady
		case !ready.IsReady && draft.Status == domain.DraftReady:
			draft.Status = domain.DraftMatched
		}
		return nil
	})
}

// SoftDelete hides the draft from default queries.
func (s *Service) SoftDelete(ctx context.Context, tenantID, draftID uuid.UUID, expectedVersion int64) error {
	_, err := s.Mutate(ctx, tenantID, draftID, expectedVersion, func(draft *domain.DraftOrder) error {
		deletedAt := s.now().UTC()
		draft.DeletedAt = &deletedAt
		return nil
	})
	return err
}

func (s *Service) audit(ctx context.Context, event domain.FeedbackEvent) {
	if s.feedback == nil {
		return
	}
	if err := s.feedback.Record(ctx, event); err != nil {
		s.log.WithError(err).Warn("feedback event write failed")
	}
}
