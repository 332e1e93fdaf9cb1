package ai

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/domain"
	"github.com/aliuyar1234/orderflow/pkg/metrics"
)

// GatedEmbedder wraps an EmbeddingPort with ledger recording and the
// budget gate. Embedding dedup happens one level up (the embedding
// task short-circuits on text hash), so this wrapper only meters and
// records.
type GatedEmbedder struct {
	port   EmbeddingPort
	ledger Ledger
	gate   *BudgetGate
	now    func() time.Time
}

// NewGatedEmbedder builds a GatedEmbedder.
func NewGatedEmbedder(port EmbeddingPort, ledger Ledger, gate *BudgetGate) *GatedEmbedder {
	return &GatedEmbedder{port: port, ledger: ledger, gate: gate, now: time.Now}
}

// Model returns the wrapped provider's model name.
func (e *GatedEmbedder) Model() string { return e.port.Model() }

// EmbedText embeds one text.
func (e *GatedEmbedder) EmbedText(ctx context.Context, tenantID uuid.UUID, settings domain.TenantSettings, text string) (*EmbeddingResult, error) {
	if text == "" {
		return nil, apperrors.New(apperrors.ErrorTypeEmbeddingError, "empty embedding input")
	}
	return e.run(ctx, tenantID, settings, []string{text}, func(ctx context.Context) (*EmbeddingResult, error) {
		return e.port.EmbedText(ctx, text)
	})
}

// EmbedBatch embeds up to MaxEmbedBatch texts.
func (e *GatedEmbedder) EmbedBatch(ctx context.Context, tenantID uuid.UUID, settings domain.TenantSettings, texts []string) (*EmbeddingResult, error) {
	if len(texts) == 0 {
		return nil, apperrors.New(apperrors.ErrorTypeEmbeddingError, "empty embedding batch")
	}
	if len(texts) > MaxEmbedBatch {
		return nil, apperrors.Newf(apperrors.ErrorTypeEmbeddingError, "batch of %d exceeds provider limit %d", len(texts), MaxEmbedBatch)
	}
	return e.run(ctx, tenantID, settings, texts, func(ctx context.Context) (*EmbeddingResult, error) {
		return e.port.EmbedBatch(ctx, texts)
	})
}

func (e *GatedEmbedder) run(ctx context.Context, tenantID uuid.UUID, settings domain.TenantSettings, texts []string, invoke func(ctx context.Context) (*EmbeddingResult, error)) (*EmbeddingResult, error) {
	if err := e.gate.Authorize(ctx, tenantID, settings); err != nil {
		return nil, err
	}

	hashParts := append([]string{e.port.Model()}, texts...)
	hash := InputHash(tenantID, domain.CallEmbed, hashParts...)

	started := e.now()
	result, err := invoke(ctx)
	latency := e.now().Sub(started)

	entry := domain.AICallLog{
		TenantID:  tenantID,
		CallType:  domain.CallEmbed,
		Provider:  e.port.Provider(),
		Model:     e.port.Model(),
		InputHash: hash,
		LatencyMS: latency.Milliseconds(),
	}

	if err != nil {
		entry.Status = domain.AICallFailed
		entry.ErrorDetail = err.Error()
		_ = e.ledger.Record(ctx, entry)
		return nil, err
	}

	result.Latency = latency
	entry.Status = domain.AICallSucceeded
	entry.InputTokens = result.InputTokens
	entry.CostMicros = domain.Micros(result.CostMicros)
	_ = e.ledger.Record(ctx, entry)

	metrics.RecordAICall(string(domain.CallEmbed), result.Provider, result.Model, latency, result.CostMicros)
	return result, nil
}
