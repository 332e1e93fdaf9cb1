package validation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/domain"
)

// MemoryIssueStore is an in-process IssueStore for tests.
type MemoryIssueStore struct {
	mu     sync.RWMutex
	issues map[uuid.UUID]domain.ValidationIssue
	now    func() time.Time
}

// NewMemoryIssueStore builds an empty store.
func NewMemoryIssueStore() *MemoryIssueStore {
	return &MemoryIssueStore{issues: make(map[uuid.UUID]domain.ValidationIssue), now: time.Now}
}

// ListForDraft implements IssueStore.
func (s *MemoryIssueStore) ListForDraft(ctx context.Context, tenantID, draftID uuid.UUID) ([]domain.ValidationIssue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.ValidationIssue
	for _, issue := range s.issues {
		if issue.TenantID == tenantID && issue.DraftID == draftID {
			result = append(result, issue)
		}
	}
	return result, nil
}

// Create implements IssueStore.
func (s *MemoryIssueStore) Create(ctx context.Context, issue domain.ValidationIssue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if issue.ID == uuid.Nil {
		issue.ID = uuid.New()
	}
	now := s.now().UTC()
	issue.CreatedAt = now
	issue.UpdatedAt = now
	s.issues[issue.ID] = issue
	return nil
}

// SetStatus implements IssueStore.
func (s *MemoryIssueStore) SetStatus(ctx context.Context, tenantID, issueID uuid.UUID, status domain.IssueStatus, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue, ok := s.issues[issueID]
	if !ok || issue.TenantID != tenantID {
		return apperrors.Newf(apperrors.ErrorTypeNotFound, "issue %s not found", issueID)
	}

	issue.Status = status
	issue.UpdatedAt = s.now().UTC()
	if status == domain.IssueResolved || status == domain.IssueOverridden {
		resolvedAt := s.now().UTC()
		issue.ResolvedAt = &resolvedAt
		issue.ResolvedBy = actor
	}
	s.issues[issueID] = issue
	return nil
}
