package ai

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/domain"
)

func TestBudgetGate(t *testing.T) {
	ctx := context.Background()
	tenant := uuid.New()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	newGate := func(spentToday domain.Micros) *BudgetGate {
		ledger := NewMemoryLedger().WithClock(func() time.Time { return now })
		if spentToday > 0 {
			require.NoError(t, ledger.Record(ctx, domain.AICallLog{
				TenantID:   tenant,
				CostMicros: spentToday,
				Status:     domain.AICallSucceeded,
				CreatedAt:  now.Add(-time.Hour),
			}))
		}
		return NewBudgetGate(ledger).WithClock(func() time.Time { return now })
	}

	t.Run("zero budget means unlimited", func(t *testing.T) {
		gate := newGate(1_000_000_000)
		settings := domain.TenantSettings{DailyBudgetMicros: 0}
		assert.NoError(t, gate.Authorize(ctx, tenant, settings))
	})

	t.Run("under budget authorizes", func(t *testing.T) {
		gate := newGate(400)
		settings := domain.TenantSettings{DailyBudgetMicros: 500}
		assert.NoError(t, gate.Authorize(ctx, tenant, settings))
	})

	t.Run("at budget blocks", func(t *testing.T) {
		gate := newGate(500)
		settings := domain.TenantSettings{DailyBudgetMicros: 500}
		err := gate.Authorize(ctx, tenant, settings)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeBudgetExceeded))
	})

	t.Run("over budget blocks", func(t *testing.T) {
		gate := newGate(501)
		settings := domain.TenantSettings{DailyBudgetMicros: 500}
		err := gate.Authorize(ctx, tenant, settings)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeBudgetExceeded))
	})

	t.Run("yesterday's spend does not count", func(t *testing.T) {
		ledger := NewMemoryLedger()
		require.NoError(t, ledger.Record(ctx, domain.AICallLog{
			TenantID:   tenant,
			CostMicros: 10_000,
			Status:     domain.AICallSucceeded,
			CreatedAt:  now.Add(-36 * time.Hour),
		}))
		gate := NewBudgetGate(ledger).WithClock(func() time.Time { return now })
		settings := domain.TenantSettings{DailyBudgetMicros: 500}
		assert.NoError(t, gate.Authorize(ctx, tenant, settings))
	})

	t.Run("remaining reports unspent budget", func(t *testing.T) {
		gate := newGate(300)
		settings := domain.TenantSettings{DailyBudgetMicros: 500}
		remaining, limited, err := gate.Remaining(ctx, tenant, settings)
		require.NoError(t, err)
		assert.True(t, limited)
		assert.Equal(t, domain.Micros(200), remaining)
	})
}
