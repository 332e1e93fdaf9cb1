package ai

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/domain"
	"github.com/aliuyar1234/orderflow/pkg/metrics"
)

// BudgetGate refuses LLM calls that would exceed a tenant's daily
// cost allowance. It is advisory, not a distributed lock: a brief
// single-call overshoot is acceptable, the ledger is the source of
// truth.
type BudgetGate struct {
	ledger Ledger
	now    func() time.Time
}

// NewBudgetGate builds a gate over the given ledger.
func NewBudgetGate(ledger Ledger) *BudgetGate {
	return &BudgetGate{ledger: ledger, now: time.Now}
}

// WithClock overrides the gate's clock.
func (g *BudgetGate) WithClock(now func() time.Time) *BudgetGate {
	g.now = now
	return g
}

// UTCMidnight returns the start of the current UTC day.
func (g *BudgetGate) UTCMidnight() time.Time {
	now := g.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Authorize checks whether the tenant may spend. A budget of 0 means
// unlimited. Returns a BudgetExceeded error when today's ledger sum
// has already reached the budget.
func (g *BudgetGate) Authorize(ctx context.Context, tenantID uuid.UUID, settings domain.TenantSettings) error {
	budget := settings.DailyBudgetMicros
	if budget <= 0 {
		return nil
	}

	spent, err := g.ledger.SpentSince(ctx, tenantID, g.UTCMidnight())
	if err != nil {
		return err
	}

	if spent >= budget {
		metrics.RecordBudgetBlocked()
		return apperrors.Newf(apperrors.ErrorTypeBudgetExceeded,
			"daily AI budget exhausted").WithDetailsf("spent %d of %d micros", spent, budget)
	}
	return nil
}

// Remaining reports the unspent budget for today; the second return is
// false when the tenant is unlimited.
func (g *BudgetGate) Remaining(ctx context.Context, tenantID uuid.UUID, settings domain.TenantSettings) (domain.Micros, bool, error) {
	budget := settings.DailyBudgetMicros
	if budget <= 0 {
		return 0, false, nil
	}
	spent, err := g.ledger.SpentSince(ctx, tenantID, g.UTCMidnight())
	if err != nil {
		return 0, false, err
	}
	remaining := budget - spent
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true, nil
}
