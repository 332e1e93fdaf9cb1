// Package providers holds the concrete LLM and embedding adapters
// behind the pkg/ai ports: the Anthropic API, AWS Bedrock, and a
// langchaingo-backed embedder. Each adapter maps provider failures
// onto the closed apperrors taxonomy.
package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/ai"
	"github.com/aliuyar1234/orderflow/pkg/shared/httpclient"
)

// AnthropicProvider implements ai.LLMPort against the Anthropic API.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	visionModel string
}

// NewAnthropicProvider builds the adapter. visionModel falls back to
// model when empty. The SDK rides on the shared hardened HTTP client
// so provider calls get their own connection pool and the long
// completion-friendly header timeout.
func NewAnthropicProvider(apiKey, model, visionModel string, timeout time.Duration) *AnthropicProvider {
	if visionModel == "" {
		visionModel = model
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(
			option.WithAPIKey(apiKey),
			option.WithHTTPClient(httpclient.NewClient(httpclient.LLMClientConfig(timeout))),
		),
		model:       model,
		visionModel: visionModel,
	}
}

// Provider implements ai.LLMPort.
func (p *AnthropicProvider) Provider() string { return "anthropic" }

// ExtractFromText implements ai.LLMPort.
func (p *AnthropicProvider) ExtractFromText(ctx context.Context, req ai.LLMRequest) (*ai.LLMResult, error) {
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
	}
	return p.invoke(ctx, p.model, req.System, messages, req.MaxTokens, req.Temperature)
}

// ExtractFromImages implements ai.LLMPort.
func (p *AnthropicProvider) ExtractFromImages(ctx context.Context, req ai.VisionRequest) (*ai.LLMResult, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(req.Pages)+1)
	for _, page := range req.Pages {
		blocks = append(blocks, anthropic.NewImageBlockBase64(page.MediaType, base64.StdEncoding.EncodeToString(page.Data)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(req.Prompt))

	messages := []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)}
	return p.invoke(ctx, p.visionModel, req.System, messages, req.MaxTokens, req.Temperature)
}

// RepairStructuredOutput implements ai.LLMPort.
func (p *AnthropicProvider) RepairStructuredOutput(ctx context.Context, req ai.RepairRequest) (*ai.LLMResult, error) {
	prompt := repairPrompt(req)
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
	}
	return p.invoke(ctx, p.model, repairSystemPrompt, messages, req.MaxTokens, 0)
}

func (p *AnthropicProvider) invoke(ctx context.Context, model, system string, messages []anthropic.MessageParam, maxTokens int, temperature float32) (*ai.LLMResult, error) {
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(float64(temperature)),
		Messages:    messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, mapAnthropicError(err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	raw := sb.String()

	inTokens := int(message.Usage.InputTokens)
	outTokens := int(message.Usage.OutputTokens)

	return &ai.LLMResult{
		RawOutput:    raw,
		Parsed:       ai.ExtractJSON(raw),
		Provider:     p.Provider(),
		Model:        model,
		InputTokens:  inTokens,
		OutputTokens: outTokens,
		CostMicros:   ai.CostMicros(p.Provider(), model, inTokens, outTokens),
	}, nil
}

func mapAnthropicError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(err, apperrors.ErrorTypeLLMTimeout, "anthropic call timed out")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.Wrap(err, apperrors.ErrorTypeLLMTimeout, "anthropic call timed out")
	}

	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperrors.Wrap(err, apperrors.ErrorTypeLLMAuthFailed, "anthropic rejected credentials")
		case http.StatusTooManyRequests:
			return apperrors.Wrap(err, apperrors.ErrorTypeLLMRateLimit, "anthropic rate limit")
		case http.StatusRequestTimeout:
			return apperrors.Wrap(err, apperrors.ErrorTypeLLMTimeout, "anthropic call timed out")
		default:
			if apierr.StatusCode >= 500 {
				return apperrors.Wrap(err, apperrors.ErrorTypeLLMServiceUnavailable, "anthropic unavailable")
			}
			return apperrors.Wrap(err, apperrors.ErrorTypeLLMInvalidResponse, "anthropic call failed")
		}
	}

	return apperrors.Wrap(err, apperrors.ErrorTypeLLMServiceUnavailable, "anthropic call failed")
}

const repairSystemPrompt = "You repair malformed structured output. Return only the corrected JSON object, nothing else."

func repairPrompt(req ai.RepairRequest) string {
	var sb strings.Builder
	sb.WriteString("The following output failed schema validation.\n\nOutput:\n")
	sb.WriteString(req.InvalidOutput)
	sb.WriteString("\n\nValidation error:\n")
	sb.WriteString(req.ValidationError)
	sb.WriteString("\n\nTarget schema:\n")
	sb.WriteString(req.TargetSchema)
	sb.WriteString("\n\nReturn the corrected JSON object only.")
	return sb.String()
}
