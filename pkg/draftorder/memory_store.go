package draftorder

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/domain"
)

// MemoryStore is an in-process Store for tests.
type MemoryStore struct {
	mu     sync.RWMutex
	drafts map[uuid.UUID]domain.DraftOrder
	events []domain.FeedbackEvent
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[uuid.UUID]domain.DraftOrder)}
}

// Get implements Store. Cross-tenant lookups read as absent.
func (s *MemoryStore) Get(ctx context.Context, tenantID, draftID uuid.UUID) (*domain.DraftOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	draft, ok := s.drafts[draftID]
	if !ok || draft.TenantID != tenantID {
		return nil, nil
	}
	found := draft
	found.Lines = append([]domain.DraftOrderLine(nil), draft.Lines...)
	return &found, nil
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, draft *domain.DraftOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if draft.ID == uuid.Nil {
		draft.ID = uuid.New()
	}
	if draft.Version == 0 {
		draft.Version = 1
	}
	now := time.Now().UTC()
	draft.CreatedAt = now
	draft.UpdatedAt = now
	s.drafts[draft.ID] = *draft
	return nil
}

// Save implements Store with the optimistic version check.
func (s *MemoryStore) Save(ctx context.Context, draft *domain.DraftOrder, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.drafts[draft.ID]
	if !ok || stored.TenantID != draft.TenantID {
		return apperrors.Newf(apperrors.ErrorTypeNotFound, "draft %s not found", draft.ID)
	}
	if stored.Version != expectedVersion {
		return apperrors.Newf(apperrors.ErrorTypeVersionConflict,
			"draft version is %d, expected %d", stored.Version, expectedVersion)
	}

	draft.Version = expectedVersion + 1
	draft.UpdatedAt = time.Now().UTC()
	s.drafts[draft.ID] = *draft
	return nil
}

// ListByTenant returns a tenant's drafts, soft-deleted excluded.
func (s *MemoryStore) ListByTenant(tenantID uuid.UUID) []*domain.DraftOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.DraftOrder
	for _, draft := range s.drafts {
		if draft.TenantID == tenantID && !draft.IsDeleted() {
			copied := draft
			result = append(result, &copied)
		}
	}
	return result
}

// Record implements FeedbackSink.
func (s *MemoryStore) Record(ctx context.Context, event domain.FeedbackEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.CreatedAt = time.Now().UTC()
	s.events = append(s.events, event)
	return nil
}

// Events returns recorded feedback events for test assertions.
func (s *MemoryStore) Events() []domain.FeedbackEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.FeedbackEvent(nil), s.events...)
}
