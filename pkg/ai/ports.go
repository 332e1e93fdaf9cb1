// Package ai defines the LLM and embedding ports, the cost ledger
// that deduplicates provider calls, and the daily budget gate. Provider
// implementations live in pkg/ai/providers; the resilient client that
// composes breaker, ledger, and gate lives in pkg/ai/llm.
package ai

import (
	"context"
	"encoding/json"
	"time"
)

// LLMRequest is a text-mode extraction request.
type LLMRequest struct {
	System        string
	Prompt        string
	PromptVersion string
	MaxTokens     int
	Temperature   float32
}

// ImagePage is one rendered page handed to the vision path.
type ImagePage struct {
	MediaType string // e.g. "image/png"
	Data      []byte
}

// VisionRequest is an image-mode extraction request.
type VisionRequest struct {
	System        string
	Prompt        string
	PromptVersion string
	Pages         []ImagePage
	MaxTokens     int
	Temperature   float32
}

// RepairRequest asks the provider to fix structured output that failed
// validation. Exactly one repair attempt is made per extraction.
type RepairRequest struct {
	InvalidOutput   string
	ValidationError string
	TargetSchema    string
	MaxTokens       int
}

// LLMResult is the outcome of one provider call.
type LLMResult struct {
	RawOutput    string
	Parsed       json.RawMessage // nil when the output was not valid JSON
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
	CostMicros   int64
	Warnings     []string
}

// LLMPort is the abstract LLM provider.
type LLMPort interface {
	ExtractFromText(ctx context.Context, req LLMRequest) (*LLMResult, error)
	ExtractFromImages(ctx context.Context, req VisionRequest) (*LLMResult, error)
	RepairStructuredOutput(ctx context.Context, req RepairRequest) (*LLMResult, error)

	// Provider returns the stable provider name used in ledger rows
	// and metrics labels.
	Provider() string
}

// MaxEmbedBatch is the largest batch EmbedBatch accepts.
const MaxEmbedBatch = 2048

// EmbeddingResult is the outcome of one embedding call.
type EmbeddingResult struct {
	Vectors      [][]float32
	Provider     string
	Model        string
	InputTokens  int
	Latency      time.Duration
	CostMicros   int64
}

// EmbeddingPort is the abstract embedding provider.
type EmbeddingPort interface {
	EmbedText(ctx context.Context, text string) (*EmbeddingResult, error)
	EmbedBatch(ctx context.Context, texts []string) (*EmbeddingResult, error)
	Model() string
	Provider() string
}
