package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
)

// MemoryStore is an in-process Store for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	infos   map[string]ObjectInfo
	now     func() time.Time
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		infos:   make(map[string]ObjectInfo),
		now:     time.Now,
	}
}

// WithClock overrides the store's clock.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Store implements Store.
func (s *MemoryStore) Store(ctx context.Context, tenantID uuid.UUID, filename, mimeType string, data []byte) (ObjectInfo, error) {
	if len(data) == 0 {
		return ObjectInfo{}, apperrors.New(apperrors.ErrorTypeEmptyFile, "refusing to store zero bytes")
	}

	hash := HashBytes(data)
	key := BuildKey(tenantID, hash, filename, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if info, ok := s.infos[key]; ok {
		info.Deduplicated = true
		return info, nil
	}

	info := ObjectInfo{
		Key:         key,
		TenantID:    tenantID,
		Filename:    filename,
		MimeType:    mimeType,
		ContentHash: hash,
		SizeBytes:   int64(len(data)),
		StoredAt:    s.now().UTC(),
	}
	s.objects[key] = append([]byte(nil), data...)
	s.infos[key] = info
	return info, nil
}

// Retrieve implements Store.
func (s *MemoryStore) Retrieve(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrorTypeNotFound, "object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}

// Exists implements Store.
func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return apperrors.Newf(apperrors.ErrorTypeNotFound, "object %s not found", key)
	}
	delete(s.objects, key)
	delete(s.infos, key)
	return nil
}

// Presign implements Store.
func (s *MemoryStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[key]; !ok {
		return "", apperrors.Newf(apperrors.ErrorTypeNotFound, "object %s not found", key)
	}
	return fmt.Sprintf("memory://%s?expires=%d", key, s.now().UTC().Add(ttl).Unix()), nil
}
