package ai

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliuyar1234/orderflow/pkg/domain"
)

func TestInputHashStableAndTenantScoped(t *testing.T) {
	tenantA := uuid.New()
	tenantB := uuid.New()

	h1 := InputHash(tenantA, domain.CallExtractText, "v1", "prompt")
	h2 := InputHash(tenantA, domain.CallExtractText, "v1", "prompt")
	h3 := InputHash(tenantB, domain.CallExtractText, "v1", "prompt")
	h4 := InputHash(tenantA, domain.CallExtractVision, "v1", "prompt")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3, "different tenants must hash differently")
	assert.NotEqual(t, h1, h4, "different call types must hash differently")
	assert.Len(t, h1, 64)
}

func TestInputHashPartBoundaries(t *testing.T) {
	tenant := uuid.New()
	// "ab" + "c" must not collide with "a" + "bc".
	assert.NotEqual(t,
		InputHash(tenant, domain.CallExtractText, "ab", "c"),
		InputHash(tenant, domain.CallExtractText, "a", "bc"))
}

func TestMemoryLedgerFindRecent(t *testing.T) {
	ctx := context.Background()
	tenant := uuid.New()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	ledger := NewMemoryLedger().WithClock(func() time.Time { return now })

	old := domain.AICallLog{
		TenantID:  tenant,
		CallType:  domain.CallExtractText,
		InputHash: "hash-1",
		Status:    domain.AICallSucceeded,
		CreatedAt: now.Add(-8 * 24 * time.Hour),
	}
	fresh := domain.AICallLog{
		TenantID:   tenant,
		CallType:   domain.CallExtractText,
		InputHash:  "hash-1",
		Status:     domain.AICallSucceeded,
		CostMicros: 42,
		CreatedAt:  now.Add(-time.Hour),
	}
	failed := domain.AICallLog{
		TenantID:  tenant,
		CallType:  domain.CallExtractText,
		InputHash: "hash-2",
		Status:    domain.AICallFailed,
		CreatedAt: now,
	}

	require.NoError(t, ledger.Record(ctx, old))
	require.NoError(t, ledger.Record(ctx, fresh))
	require.NoError(t, ledger.Record(ctx, failed))

	t.Run("returns the fresh successful record", func(t *testing.T) {
		got, err := ledger.FindRecent(ctx, tenant, "hash-1", now.Add(-DedupWindow))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, domain.Micros(42), got.CostMicros)
	})

	t.Run("records older than the window are invisible", func(t *testing.T) {
		got, err := ledger.FindRecent(ctx, tenant, "hash-1", now.Add(-time.Minute))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("failed records never dedup", func(t *testing.T) {
		got, err := ledger.FindRecent(ctx, tenant, "hash-2", now.Add(-DedupWindow))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("other tenants see nothing", func(t *testing.T) {
		got, err := ledger.FindRecent(ctx, uuid.New(), "hash-1", now.Add(-DedupWindow))
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestMemoryLedgerSpentSince(t *testing.T) {
	ctx := context.Background()
	tenant := uuid.New()
	other := uuid.New()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	midnight := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	ledger := NewMemoryLedger().WithClock(func() time.Time { return now })

	entries := []domain.AICallLog{
		{TenantID: tenant, CostMicros: 100, Status: domain.AICallSucceeded, CreatedAt: now.Add(-time.Hour)},
		{TenantID: tenant, CostMicros: 250, Status: domain.AICallSucceeded, CreatedAt: now.Add(-2 * time.Hour)},
		{TenantID: tenant, CostMicros: 999, Status: domain.AICallSucceeded, CreatedAt: midnight.Add(-time.Minute)}, // yesterday
		{TenantID: other, CostMicros: 777, Status: domain.AICallSucceeded, CreatedAt: now},
	}
	for _, e := range entries {
		require.NoError(t, ledger.Record(ctx, e))
	}

	spent, err := ledger.SpentSince(ctx, tenant, midnight)
	require.NoError(t, err)
	assert.Equal(t, domain.Micros(350), spent)
}
