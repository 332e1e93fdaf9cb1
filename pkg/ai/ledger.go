package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aliuyar1234/orderflow/pkg/domain"
)

// DedupWindow is how long a successful ledger record answers an
// identical call without a new provider request.
const DedupWindow = 7 * 24 * time.Hour

// InputHash computes the ledger key for a call: SHA-256 over the
// tenant, call type, and the canonical input parts in order.
func InputHash(tenantID uuid.UUID, callType domain.AICallType, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(tenantID.String()))
	h.Write([]byte{0})
	h.Write([]byte(callType))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Ledger records every provider call and answers dedup and budget
// queries. Writes are independent commits so records survive the
// rollback of any surrounding draft transaction.
type Ledger interface {
	// Record appends one immutable call record.
	Record(ctx context.Context, entry domain.AICallLog) error

	// FindRecent returns the newest successful record with this input
	// hash no older than the dedup window, or nil.
	FindRecent(ctx context.Context, tenantID uuid.UUID, inputHash string, notBefore time.Time) (*domain.AICallLog, error)

	// SpentSince sums cost_micros for the tenant since the given
	// moment (callers pass UTC midnight for the daily budget).
	SpentSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (domain.Micros, error)
}

// MemoryLedger is an in-process Ledger for tests.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []domain.AICallLog
	now     func() time.Time
}

// NewMemoryLedger builds an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{now: time.Now}
}

// WithClock overrides the ledger's clock.
func (l *MemoryLedger) WithClock(now func() time.Time) *MemoryLedger {
	l.now = now
	return l
}

// Record implements Ledger.
func (l *MemoryLedger) Record(ctx context.Context, entry domain.AICallLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now().UTC()
	}
	l.entries = append(l.entries, entry)
	return nil
}

// FindRecent implements Ledger.
func (l *MemoryLedger) FindRecent(ctx context.Context, tenantID uuid.UUID, inputHash string, notBefore time.Time) (*domain.AICallLog, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var matches []domain.AICallLog
	for _, e := range l.entries {
		if e.TenantID == tenantID && e.InputHash == inputHash &&
			e.Status == domain.AICallSucceeded && !e.CreatedAt.Before(notBefore) {
			matches = append(matches, e)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	found := matches[0]
	return &found, nil
}

// SpentSince implements Ledger.
func (l *MemoryLedger) SpentSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (domain.Micros, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total domain.Micros
	for _, e := range l.entries {
		if e.TenantID == tenantID && !e.CreatedAt.Before(since) {
			total += e.CostMicros
		}
	}
	return total, nil
}

// Entries returns a copy of all records, for test assertions.
func (l *MemoryLedger) Entries() []domain.AICallLog {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.AICallLog(nil), l.entries...)
}
