package erpexport

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/domain"
	"github.com/aliuyar1234/orderflow/pkg/metrics"
	"github.com/aliuyar1234/orderflow/pkg/objectstore"
)

// ExportStore persists erp_export records. CreateUnique must refuse a
// second record with the same idempotency key.
type ExportStore interface {
	CreateUnique(ctx context.Context, export domain.ERPExport) error
	FindByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*domain.ERPExport, error)
	FindLatestSent(ctx context.Context, tenantID, draftID uuid.UUID) (*domain.ERPExport, error)
	Update(ctx context.Context, export domain.ERPExport) error
}

// Connector writes approved drafts into a DROPZONE_JSON_V1 dropzone.
type Connector struct {
	store   objectstore.Store
	exports ExportStore
	log     *logrus.Logger
	now     func() time.Time
	random  func() string
}

// NewConnector builds a Connector.
func NewConnector(store objectstore.Store, exports ExportStore, logger *logrus.Logger) *Connector {
	return &Connector{
		store:   store,
		exports: exports,
		log:     logger,
		now:     time.Now,
		random:  randomHex8,
	}
}

// WithClock overrides the connector's clock.
func (c *Connector) WithClock(now func() time.Time) *Connector {
	c.now = now
	return c
}

// Export renders, archives, and drops one approved draft. A second
// call for the same (tenant, draft, version) returns the existing
// record without writing anything.
func (c *Connector) Export(ctx context.Context, draft *domain.DraftOrder, tenant domain.Tenant, customer *domain.Customer, conn domain.ERPConnection, dropzone domain.DropzoneConfig) (*domain.ERPExport, error) {
	key := IdempotencyKey(draft.TenantID, draft.ID, draft.Version)

	if existing, err := c.exports.FindByIdempotencyKey(ctx, draft.TenantID, key); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	started := c.now()
	payload, err := Render(draft, tenant, customer, started)
	if err != nil {
		return nil, fmt.Errorf("render export document: %w", err)
	}

	filename := fmt.Sprintf("sales_order_%s_%s_%s.json",
		draft.ID.String(), started.UTC().Format("20060102150405"), c.random())

	export := domain.ERPExport{
		ID:             uuid.New(),
		TenantID:       draft.TenantID,
		DraftID:        draft.ID,
		DraftVersion:   draft.Version,
		ConnectionID:   conn.ID,
		IdempotencyKey: key,
	}

	// Archive copy first; the object store is content-addressed, so a
	// retried export of identical bytes dedups.
	info, err := c.store.Store(ctx, draft.TenantID, "exports/"+filename, "application/json", payload)
	if err != nil {
		return c.recordFailure(ctx, export, fmt.Errorf("archive write failed: %w", err))
	}
	export.StorageKey = info.Key

	target := filepath.Join(dropzone.ExportPath, filename)
	if err := writeDropzoneAtomic(target, payload); err != nil {
		return c.recordFailure(ctx, export,
			apperrors.Wrap(err, apperrors.ErrorTypeDropzoneWriteFailed, "dropzone write failed").WithDetails(target))
	}

	export.Status = domain.ExportSent
	export.DropzonePath = target
	export.LatencyMS = c.now().Sub(started).Milliseconds()

	if err := c.exports.CreateUnique(ctx, export); err != nil {
		return nil, err
	}

	metrics.RecordExport(string(domain.ExportSent))
	c.log.WithFields(logrus.Fields{
		"component": "erpexport",
		"tenant_id": draft.TenantID.String(),
		"draft_id":  draft.ID.String(),
		"path":      target,
	}).Info("draft exported")

	return &export, nil
}

// recordFailure persists a FAILED export with the provider error
// verbatim. Retrying is an explicit caller action, never automatic.
func (c *Connector) recordFailure(ctx context.Context, export domain.ERPExport, cause error) (*domain.ERPExport, error) {
	export.Status = domain.ExportFailed
	export.ErrorDetail = cause.Error()
	if err := c.exports.CreateUnique(ctx, export); err != nil {
		return nil, err
	}
	metrics.RecordExport(string(domain.ExportFailed))
	return &export, cause
}

// writeDropzoneAtomic writes target via the {target}.tmp + rename
// discipline, creating the destination directory when missing.
func writeDropzoneAtomic(target string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func randomHex8() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(b[:])
}

func domainHash(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func versionString(v int64) string {
	return strconv.FormatInt(v, 10)
}
