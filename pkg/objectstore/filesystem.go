package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	sharederrors "github.com/aliuyar1234/orderflow/pkg/shared/errors"
)

const metaSuffix = ".meta.json"

// FilesystemStore keeps objects under a base directory, one file per
// object plus a metadata sidecar. Writes are atomic (tmp + rename).
type FilesystemStore struct {
	basePath string
	log      *logrus.Logger
	mu       sync.Mutex
	now      func() time.Time
}

// NewFilesystemStore builds a store rooted at basePath, creating it if
// missing.
func NewFilesystemStore(basePath string, logger *logrus.Logger) (*FilesystemStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, sharederrors.FailedToWithDetails("create object store root", "objectstore", basePath, err)
	}
	return &FilesystemStore{basePath: basePath, log: logger, now: time.Now}, nil
}

// WithClock overrides the store's clock; tests use it to pin the
// key's year/month segment.
func (s *FilesystemStore) WithClock(now func() time.Time) *FilesystemStore {
	s.now = now
	return s
}

func (s *FilesystemStore) objectPath(key string) (string, error) {
	cleaned := filepath.Clean(key)
	if strings.Contains(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", apperrors.Newf(apperrors.ErrorTypeFilenameInvalid, "invalid object key %q", key)
	}
	return filepath.Join(s.basePath, filepath.FromSlash(cleaned)), nil
}

// Store implements Store.
func (s *FilesystemStore) Store(ctx context.Context, tenantID uuid.UUID, filename, mimeType string, data []byte) (ObjectInfo, error) {
	if len(data) == 0 {
		return ObjectInfo{}, apperrors.New(apperrors.ErrorTypeEmptyFile, "refusing to store zero bytes")
	}

	hash := HashBytes(data)
	key := BuildKey(tenantID, hash, filename, s.now())

	p, err := s.objectPath(key)
	if err != nil {
		return ObjectInfo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if info, err := s.readMeta(p); err == nil {
		info.Deduplicated = true
		return info, nil
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return ObjectInfo{}, sharederrors.FailedToWithDetails("create object directory", "objectstore", key, err)
	}

	if err := writeFileAtomic(p, data, 0o644); err != nil {
		return ObjectInfo{}, apperrors.Wrap(err, apperrors.ErrorTypeStorageUnavailable, "object write failed").WithDetails(key)
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
	metaBytes, err := json.Marshal(info)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("marshal object metadata: %w", err)
	}
	if err := writeFileAtomic(p+metaSuffix, metaBytes, 0o644); err != nil {
		return ObjectInfo{}, apperrors.Wrap(err, apperrors.ErrorTypeStorageUnavailable, "object metadata write failed").WithDetails(key)
	}

	s.log.WithFields(logrus.Fields{
		"component":  "objectstore",
		"key":        key,
		"size_bytes": info.SizeBytes,
		"tenant_id":  tenantID.String(),
	}).Debug("object stored")

	return info, nil
}

func (s *FilesystemStore) readMeta(objectPath string) (ObjectInfo, error) {
	raw, err := os.ReadFile(objectPath + metaSuffix)
	if err != nil {
		return ObjectInfo{}, err
	}
	var info ObjectInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return ObjectInfo{}, err
	}
	return info, nil
}

// Retrieve implements Store.
func (s *FilesystemStore) Retrieve(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.objectPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Newf(apperrors.ErrorTypeNotFound, "object %s not found", key)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeStorageUnavailable, "object read failed").WithDetails(key)
	}
	return f, nil
}

// Exists implements Store.
func (s *FilesystemStore) Exists(ctx context.Context, key string) (bool, error) {
	p, err := s.objectPath(key)
	if err != nil {
		return false, err
	}
	_, statErr := os.Stat(p)
	if statErr == nil {
		return true, nil
	}
	if os.IsNotExist(statErr) {
		return false, nil
	}
	return false, apperrors.Wrap(statErr, apperrors.ErrorTypeStorageUnavailable, "object stat failed").WithDetails(key)
}

// Delete implements Store.
func (s *FilesystemStore) Delete(ctx context.Context, key string) error {
	p, err := s.objectPath(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return apperrors.Newf(apperrors.ErrorTypeNotFound, "object %s not found", key)
		}
		return apperrors.Wrap(err, apperrors.ErrorTypeStorageUnavailable, "object delete failed").WithDetails(key)
	}
	_ = os.Remove(p + metaSuffix)
	return nil
}

// Presign implements Store. The filesystem backend has no real signing
// authority; it returns a file URL carrying the expiry, which the
// local development proxy honors.
func (s *FilesystemStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", apperrors.Newf(apperrors.ErrorTypeNotFound, "object %s not found", key)
	}
	p, err := s.objectPath(key)
	if err != nil {
		return "", err
	}
	expires := s.now().UTC().Add(ttl).Unix()
	return fmt.Sprintf("file://%s?expires=%d", url.PathEscape(p), expires), nil
}

// writeFileAtomic writes data to path via a .tmp sibling and rename,
// so readers never observe a partial file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
