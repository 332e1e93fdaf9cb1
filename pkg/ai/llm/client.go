// Package llm wraps an ai.LLMPort with the call discipline every
// OrderFlow LLM call follows: budget gate, ledger dedup, circuit
// breaker, bounded retry, and a ledger record for every provider
// round trip. The extraction router talks to this client, never to a
// provider adapter directly.
package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/ai"
	"github.com/aliuyar1234/orderflow/pkg/domain"
	"github.com/aliuyar1234/orderflow/pkg/metrics"
	"github.com/aliuyar1234/orderflow/pkg/objectstore"
	"github.com/aliuyar1234/orderflow/pkg/shared/retry"
)

// CallRefs carries the optional entity references stamped onto ledger
// rows.
type CallRefs struct {
	DocumentID *uuid.UUID
	DraftID    *uuid.UUID
}

// Client is the gated, resilient LLM client.
type Client struct {
	port    ai.LLMPort
	ledger  ai.Ledger
	gate    *ai.BudgetGate
	store   objectstore.Store
	breaker *gobreaker.CircuitBreaker
	retrier *retry.Retrier
	log     *logrus.Logger
	now     func() time.Time
}

// NewClient builds a Client. The store archives raw results so dedup
// hits can replay them without a provider call.
func NewClient(port ai.LLMPort, ledger ai.Ledger, gate *ai.BudgetGate, store objectstore.Store, logger *logrus.Logger) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "llm-" + port.Provider(),
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		port:    port,
		ledger:  ledger,
		gate:    gate,
		store:   store,
		breaker: breaker,
		retrier: retry.NewRetrier(retry.DefaultRetryConfig(), logger),
		log:     logger,
		now:     time.Now,
	}
}

// WithClock overrides the client's clock.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// ExtractFromText runs a text-mode extraction call. The bool return
// is true when the result came from the ledger cache.
func (c *Client) ExtractFromText(ctx context.Context, tenantID uuid.UUID, settings domain.TenantSettings, req ai.LLMRequest, refs CallRefs) (*ai.LLMResult, bool, error) {
	hash := ai.InputHash(tenantID, domain.CallExtractText, req.PromptVersion, req.System, req.Prompt)
	return c.call(ctx, tenantID, settings, domain.CallExtractText, hash, refs, func(ctx context.Context) (*ai.LLMResult, error) {
		return c.port.ExtractFromText(ctx, req)
	})
}

// ExtractFromImages runs a vision-mode extraction call.
func (c *Client) ExtractFromImages(ctx context.Context, tenantID uuid.UUID, settings domain.TenantSettings, req ai.VisionRequest, refs CallRefs) (*ai.LLMResult, bool, error) {
	parts := []string{req.PromptVersion, req.System, req.Prompt}
	for _, p := range req.Pages {
		parts = append(parts, objectstore.HashBytes(p.Data))
	}
	hash := ai.InputHash(tenantID, domain.CallExtractVision, parts...)
	return c.call(ctx, tenantID, settings, domain.CallExtractVision, hash, refs, func(ctx context.Context) (*ai.LLMResult, error) {
		return c.port.ExtractFromImages(ctx, req)
	})
}

// RepairStructuredOutput runs the single self-repair call. Repair
// inputs embed the invalid output, so dedup hits are only byte-exact
// replays.
func (c *Client) RepairStructuredOutput(ctx context.Context, tenantID uuid.UUID, settings domain.TenantSettings, req ai.RepairRequest, refs CallRefs) (*ai.LLMResult, bool, error) {
	hash := ai.InputHash(tenantID, domain.CallRepair, req.InvalidOutput, req.ValidationError, req.TargetSchema)
	return c.call(ctx, tenantID, settings, domain.CallRepair, hash, refs, func(ctx context.Context) (*ai.LLMResult, error) {
		return c.port.RepairStructuredOutput(ctx, req)
	})
}

func (c *Client) call(
	ctx context.Context,
	tenantID uuid.UUID,
	settings domain.TenantSettings,
	callType domain.AICallType,
	inputHash string,
	refs CallRefs,
	invoke func(ctx context.Context) (*ai.LLMResult, error),
) (*ai.LLMResult, bool, error) {
	// Dedup before spending anything.
	if cached, err := c.replay(ctx, tenantID, inputHash); err == nil && cached != nil {
		metrics.RecordAICacheHit()
		return cached, true, nil
	}

	if err := c.gate.Authorize(ctx, tenantID, settings); err != nil {
		return nil, false, err
	}

	started := c.now()
	resultAny, err := c.retrier.ExecuteWithType(ctx, func(ctx context.Context, attempt int) (any, error) {
		out, cbErr := c.breaker.Execute(func() (interface{}, error) {
			res, callErr := invoke(ctx)
			if callErr != nil {
				return nil, classify(callErr)
			}
			return res, nil
		})
		if cbErr != nil {
			if cbErr == gobreaker.ErrOpenState || cbErr == gobreaker.ErrTooManyRequests {
				return nil, retry.WrapRetryableError(
					apperrors.Wrap(cbErr, apperrors.ErrorTypeLLMServiceUnavailable, "provider circuit open"),
					false, "circuit breaker open")
			}
			return nil, cbErr
		}
		return out, nil
	})
	latency := c.now().Sub(started)

	if err != nil {
		c.recordFailure(ctx, tenantID, callType, inputHash, refs, latency, err)
		return nil, false, err
	}

	result := resultAny.(*ai.LLMResult)
	result.Latency = latency

	resultKey := c.archive(ctx, tenantID, result)

	entry := domain.AICallLog{
		TenantID:     tenantID,
		CallType:     callType,
		Provider:     result.Provider,
		Model:        result.Model,
		InputHash:    inputHash,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		LatencyMS:    latency.Milliseconds(),
		CostMicros:   domain.Micros(result.CostMicros),
		Status:       domain.AICallSucceeded,
		ResultKey:    resultKey,
		DocumentID:   refs.DocumentID,
		DraftID:      refs.DraftID,
	}
	if err := c.ledger.Record(ctx, entry); err != nil {
		// The call succeeded; a ledger write failure must not lose the
		// result. Log and continue.
		c.log.WithError(err).WithField("input_hash", inputHash).Error("ai ledger write failed")
	}

	metrics.RecordAICall(string(callType), result.Provider, result.Model, latency, result.CostMicros)
	return result, false, nil
}

// replay returns the archived result of a recent successful identical
// call, or nil.
func (c *Client) replay(ctx context.Context, tenantID uuid.UUID, inputHash string) (*ai.LLMResult, error) {
	notBefore := c.now().UTC().Add(-ai.DedupWindow)
	prior, err := c.ledger.FindRecent(ctx, tenantID, inputHash, notBefore)
	if err != nil || prior == nil || prior.ResultKey == "" {
		return nil, err
	}

	rc, err := c.store.Retrieve(ctx, prior.ResultKey)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var result ai.LLMResult
	if err := json.NewDecoder(rc).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) archive(ctx context.Context, tenantID uuid.UUID, result *ai.LLMResult) string {
	data, err := json.Marshal(result)
	if err != nil {
		return ""
	}
	info, err := c.store.Store(ctx, tenantID, "ai-result.json", "application/json", data)
	if err != nil {
		c.log.WithError(err).Warn("ai result archive failed")
		return ""
	}
	return info.Key
}

func (c *Client) recordFailure(ctx context.Context, tenantID uuid.UUID, callType domain.AICallType, inputHash string, refs CallRefs, latency time.Duration, callErr error) {
	entry := domain.AICallLog{
		TenantID:    tenantID,
		CallType:    callType,
		Provider:    c.port.Provider(),
		InputHash:   inputHash,
		LatencyMS:   latency.Milliseconds(),
		Status:      domain.AICallFailed,
		ErrorDetail: callErr.Error(),
		DocumentID:  refs.DocumentID,
		DraftID:     refs.DraftID,
	}
	if err := c.ledger.Record(ctx, entry); err != nil {
		c.log.WithError(err).Error("ai ledger failure-record write failed")
	}
}

// classify annotates provider errors with retryability so the shared
// Retrier treats the recoverable subset (timeout, rate limit, service
// unavailable) as transient and fails fast on the rest.
func classify(err error) error {
	switch apperrors.GetType(err) {
	case apperrors.ErrorTypeLLMTimeout, apperrors.ErrorTypeLLMRateLimit, apperrors.ErrorTypeLLMServiceUnavailable:
		return retry.WrapRetryableError(err, true, string(apperrors.GetType(err)))
	case apperrors.ErrorTypeLLMAuthFailed, apperrors.ErrorTypeLLMInvalidResponse:
		return retry.WrapRetryableError(err, false, string(apperrors.GetType(err)))
	default:
		return err
	}
}
