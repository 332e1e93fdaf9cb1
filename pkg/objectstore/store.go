// Package objectstore provides content-addressed byte storage for
// uploaded artifacts, extraction results, and export archives. Keys
// are deterministic ({tenant}/{yyyy}/{mm}/{sha256}.{ext}), so storing
// the same bytes for the same tenant twice is a no-op returning the
// existing metadata.
package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ObjectInfo is the metadata kept alongside stored bytes.
type ObjectInfo struct {
	Key          string    `json:"key"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Filename     string    `json:"filename"`
	MimeType     string    `json:"mime_type"`
	ContentHash  string    `json:"content_hash"`
	SizeBytes    int64     `json:"size_bytes"`
	StoredAt     time.Time `json:"stored_at"`
	Deduplicated bool      `json:"-"`
}

// Store is the object-store port. Implementations must be safe for
// concurrent use.
type Store interface {
	// Store writes data under its deterministic key and returns the
	// object metadata. Storing bytes that already exist returns the
	// existing metadata with Deduplicated set.
	Store(ctx context.Context, tenantID uuid.UUID, filename, mimeType string, data []byte) (ObjectInfo, error)

	// Retrieve streams the object's bytes.
	Retrieve(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object. Deleting a missing key is an error.
	Delete(ctx context.Context, key string) error

	// Presign returns a URL from which the object can be read until
	// ttl elapses.
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// HashBytes returns the SHA-256 of data as lower-case hex.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// BuildKey computes the deterministic storage key for data uploaded by
// a tenant at time now. The extension is preserved from the original
// filename when present.
func BuildKey(tenantID uuid.UUID, contentHash, filename string, now time.Time) string {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	key := fmt.Sprintf("%s/%04d/%02d/%s", tenantID, now.UTC().Year(), int(now.UTC().Month()), contentHash)
	if ext != "" {
		key += "." + strings.ToLower(ext)
	}
	return key
}
