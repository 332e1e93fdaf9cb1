package providers

import (
	"context"

	"github.com/tmc/langchaingo/embeddings"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/ai"
)

// LangchainEmbedder implements ai.EmbeddingPort over any langchaingo
// embeddings.Embedder, so the embedding backend (OpenAI, Bedrock
// Titan, local) is selected by configuration.
type LangchainEmbedder struct {
	embedder embeddings.Embedder
	provider string
	model    string
}

// NewLangchainEmbedder builds the adapter.
func NewLangchainEmbedder(embedder embeddings.Embedder, provider, model string) *LangchainEmbedder {
	return &LangchainEmbedder{embedder: embedder, provider: provider, model: model}
}

// Provider implements ai.EmbeddingPort.
func (e *LangchainEmbedder) Provider() string { return e.provider }

// Model implements ai.EmbeddingPort.
func (e *LangchainEmbedder) Model() string { return e.model }

// EmbedText implements ai.EmbeddingPort.
func (e *LangchainEmbedder) EmbedText(ctx context.Context, text string) (*ai.EmbeddingResult, error) {
	if text == "" {
		return nil, apperrors.New(apperrors.ErrorTypeEmbeddingError, "empty embedding input")
	}

	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeEmbeddingError, "embedding call failed")
	}

	tokens := ai.EstimateTextTokens(len(text))
	return &ai.EmbeddingResult{
		Vectors:     [][]float32{vector},
		Provider:    e.provider,
		Model:       e.model,
		InputTokens: tokens,
		CostMicros:  ai.CostMicros(e.provider, e.model, tokens, 0),
	}, nil
}

// EmbedBatch implements ai.EmbeddingPort.
func (e *LangchainEmbedder) EmbedBatch(ctx context.Context, texts []string) (*ai.EmbeddingResult, error) {
	if len(texts) == 0 {
		return nil, apperrors.New(apperrors.ErrorTypeEmbeddingError, "empty embedding batch")
	}
	if len(texts) > ai.MaxEmbedBatch {
		return nil, apperrors.Newf(apperrors.ErrorTypeEmbeddingError, "batch of %d exceeds provider limit %d", len(texts), ai.MaxEmbedBatch)
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeEmbeddingError, "embedding batch failed")
	}

	tokens := 0
	for _, t := range texts {
		tokens += ai.EstimateTextTokens(len(t))
	}
	return &ai.EmbeddingResult{
		Vectors:     vectors,
		Provider:    e.provider,
		Model:       e.model,
		InputTokens: tokens,
		CostMicros:  ai.CostMicros(e.provider, e.model, tokens, 0),
	}, nil
}
