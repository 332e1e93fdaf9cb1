// Package validation runs the rule set over a draft, reconciles the
// findings with the persisted issue list (auto-resolving cleared
// conditions), and computes the ready-check that gates approval.
package validation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aliuyar1234/orderflow/pkg/domain"
	"github.com/aliuyar1234/orderflow/pkg/metrics"
	"github.com/aliuyar1234/orderflow/pkg/validation/rules"
)

// IssueStore persists validation issues.
type IssueStore interface {
	// ListForDraft returns every issue of the draft, all statuses.
	ListForDraft(ctx context.Context, tenantID, draftID uuid.UUID) ([]domain.ValidationIssue, error)

	// Create persists a new issue.
	Create(ctx context.Context, issue domain.ValidationIssue) error

	// SetStatus updates an issue's status; actor is empty for
	// automatic transitions.
	SetStatus(ctx context.Context, tenantID, issueID uuid.UUID, status domain.IssueStatus, actor string) error
}

// Engine validates drafts.
type Engine struct {
	issues IssueStore
	log    *logrus.Logger
	now    func() time.Time
}

// NewEngine builds an Engine.
func NewEngine(issues IssueStore, logger *logrus.Logger) *Engine {
	return &Engine{issues: issues, log: logger, now: time.Now}
}

// WithClock overrides the engine's clock.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Deps are the caches a validation run reads. They are built per run;
// no state survives between runs.
type Deps struct {
	ProductsBySKU map[string]domain.Product
	PricesForSKU  func(internalSKU string) []domain.CustomerPrice
	Settings      domain.TenantSettings
}

// Validate runs every rule, reconciles persisted issues, and returns
// the resulting ready-check. Rule failures demote to a WARNING finding
// and never abort the run.
func (e *Engine) Validate(ctx context.Context, draft *domain.DraftOrder, deps Deps) (domain.ReadyCheck, error) {
	findings := e.evaluate(draft, deps)

	if err := e.reconcile(ctx, draft, findings); err != nil {
		return domain.ReadyCheck{}, err
	}

	return e.ReadyCheck(ctx, draft.TenantID, draft.ID)
}

// evaluate runs the rule set fail-open.
func (e *Engine) evaluate(draft *domain.DraftOrder, deps Deps) []rules.Finding {
	ruleCtx := &rules.Context{
		Draft:         draft,
		ProductsBySKU: deps.ProductsBySKU,
		PricesForSKU:  deps.PricesForSKU,
		Settings:      deps.Settings,
		Now:           e.now().UTC(),
	}

	var findings []rules.Finding
	for _, rule := range rules.All() {
		ruleFindings, err := e.runRule(rule, ruleCtx)
		if err != nil {
			e.log.WithFields(logrus.Fields{
				"component": "validation",
				"rule":      rule.Name,
				"draft_id":  draft.ID.String(),
				"error":     err.Error(),
			}).Warn("validation rule failed, continuing")
			findings = append(findings, rules.Finding{
				Type:     rules.TypeRuleFailed,
				Severity: domain.SeverityWarning,
				Message:  fmt.Sprintf("rule %s failed: %v", rule.Name, err),
			})
			continue
		}
		findings = append(findings, ruleFindings...)
	}
	return findings
}

func (e *Engine) runRule(rule rules.Rule, ruleCtx *rules.Context) (findings []rules.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return rule.Run(ruleCtx), nil
}

// issueKey identifies a condition: one issue type on one entity.
func issueKey(issueType string, lineID *uuid.UUID) string {
	if lineID == nil {
		return issueType + "|draft"
	}
	return issueType + "|" + lineID.String()
}

// reconcile aligns persisted issues with fresh findings: new
// conditions open issues, cleared conditions auto-resolve OPEN and
// ACKNOWLEDGED issues with no actor, unchanged conditions keep their
// issue (and its lifecycle state) untouched.
func (e *Engine) reconcile(ctx context.Context, draft *domain.DraftOrder, findings []rules.Finding) error {
	existing, err := e.issues.ListForDraft(ctx, draft.TenantID, draft.ID)
	if err != nil {
		return err
	}

	fresh := make(map[string]rules.Finding, len(findings))
	for _, f := range findings {
		fresh[issueKey(f.Type, f.LineID)] = f
	}

	covered := make(map[string]bool)
	for _, issue := range existing {
		key := issueKey(issue.Type, issue.LineID)
		switch issue.Status {
		case domain.IssueOpen, domain.IssueAcknowledged:
			if _, stillPresent := fresh[key]; stillPresent {
				covered[key] = true
				continue
			}
			if err := e.issues.SetStatus(ctx, draft.TenantID, issue.ID, domain.IssueResolved, ""); err != nil {
				return err
			}
		case domain.IssueOverridden:
			// An override silences the condition permanently; do not
			// reopen it.
			covered[key] = true
		}
	}

	for key, finding := range fresh {
		if covered[key] {
			continue
		}
		issue := domain.ValidationIssue{
			ID:       uuid.New(),
			TenantID: draft.TenantID,
			DraftID:  draft.ID,
			LineID:   finding.LineID,
			Type:     finding.Type,
			Severity: finding.Severity,
			Status:   domain.IssueOpen,
			Message:  finding.Message,
			Details:  finding.Details,
		}
		if err := e.issues.Create(ctx, issue); err != nil {
			return err
		}
		metrics.RecordValidationIssue(finding.Type, string(finding.Severity))
	}

	return nil
}

// ReadyCheck computes the gate: ready iff no OPEN ERROR issues exist.
// Acknowledging an issue moves it out of OPEN and clears its blocker;
// the acknowledgment itself stays visible on the draft.
func (e *Engine) ReadyCheck(ctx context.Context, tenantID, draftID uuid.UUID) (domain.ReadyCheck, error) {
	issues, err := e.issues.ListForDraft(ctx, tenantID, draftID)
	if err != nil {
		return domain.ReadyCheck{}, err
	}

	blocking := make(map[string]bool)
	for _, issue := range issues {
		if issue.Status == domain.IssueOpen && issue.Severity == domain.SeverityError {
			blocking[issue.Type] = true
		}
	}

	reasons := make([]string, 0, len(blocking))
	for t := range blocking {
		reasons = append(reasons, t)
	}
	sort.Strings(reasons)

	return domain.ReadyCheck{
		IsReady:         len(reasons) == 0,
		BlockingReasons: reasons,
		CheckedAt:       e.now().UTC(),
	}, nil
}
