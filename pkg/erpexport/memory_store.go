package erpexport

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/domain"
)

// MemoryExportStore is an in-process ExportStore for tests.
type MemoryExportStore struct {
	mu      sync.RWMutex
	exports map[uuid.UUID]domain.ERPExport
}

// NewMemoryExportStore builds an empty store.
func NewMemoryExportStore() *MemoryExportStore {
	return &MemoryExportStore{exports: make(map[uuid.UUID]domain.ERPExport)}
}

// CreateUnique implements ExportStore.
func (s *MemoryExportStore) CreateUnique(ctx context.Context, export domain.ERPExport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.exports {
		if existing.TenantID == export.TenantID && existing.IdempotencyKey == export.IdempotencyKey {
			return apperrors.Newf(apperrors.ErrorTypeVersionConflict,
				"export with idempotency key %s already exists", export.IdempotencyKey)
		}
	}

	if export.ID == uuid.Nil {
		export.ID = uuid.New()
	}
	now := time.Now().UTC()
	export.CreatedAt = now
	export.UpdatedAt = now
	s.exports[export.ID] = export
	return nil
}

// FindByIdempotencyKey implements ExportStore.
func (s *MemoryExportStore) FindByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*domain.ERPExport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, export := range s.exports {
		if export.TenantID == tenantID && export.IdempotencyKey == key {
			found := export
			return &found, nil
		}
	}
	return nil, nil
}

// FindLatestSent implements ExportStore.
func (s *MemoryExportStore) FindLatestSent(ctx context.Context, tenantID, draftID uuid.UUID) (*domain.ERPExport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.ERPExport
	for _, export := range s.exports {
		if export.TenantID != tenantID || export.DraftID != draftID || export.Status != domain.ExportSent {
			continue
		}
		if latest == nil || export.CreatedAt.After(latest.CreatedAt) {
			found := export
			latest = &found
		}
	}
	return latest, nil
}

// Update implements ExportStore.
func (s *MemoryExportStore) Update(ctx context.Context, export domain.ERPExport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.exports[export.ID]
	if !ok || stored.TenantID != export.TenantID {
		return apperrors.Newf(apperrors.ErrorTypeNotFound, "export %s not found", export.ID)
	}
	export.CreatedAt = stored.CreatedAt
	export.UpdatedAt = time.Now().UTC()
	s.exports[export.ID] = export
	return nil
}

// All returns every record, for test assertions.
func (s *MemoryExportStore) All() []domain.ERPExport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ERPExport, 0, len(s.exports))
	for _, export := range s.exports {
		result = append(result, export)
	}
	return result
}
