package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/ai"
)

// bedrockAnthropicVersion is the fixed version string the Bedrock
// Anthropic message schema requires.
const bedrockAnthropicVersion = "bedrock-2023-05-31"

// BedrockProvider implements ai.LLMPort against AWS Bedrock's
// Anthropic models.
type BedrockProvider struct {
	client      *bedrockruntime.Client
	model       string
	visionModel string
}

// NewBedrockProvider builds the adapter from a preconfigured Bedrock
// runtime client.
func NewBedrockProvider(client *bedrockruntime.Client, model, visionModel string) *BedrockProvider {
	if visionModel == "" {
		visionModel = model
	}
	return &BedrockProvider{client: client, model: model, visionModel: visionModel}
}

// Provider implements ai.LLMPort.
func (p *BedrockProvider) Provider() string { return "bedrock" }

type bedrockContent struct {
	Type   string         `json:"type"`
	Text   string         `json:"text,omitempty"`
	Source *bedrockSource `json:"source,omitempty"`
}

type bedrockSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type bedrockMessage struct {
	Role    string           `json:"role"`
	Content []bedrockContent `json:"content"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Temperature      float32          `json:"temperature"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// ExtractFromText implements ai.LLMPort.
func (p *BedrockProvider) ExtractFromText(ctx context.Context, req ai.LLMRequest) (*ai.LLMResult, error) {
	body := bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        maxTokensOrDefault(req.MaxTokens),
		Temperature:      req.Temperature,
		System:           req.System,
		Messages: []bedrockMessage{{
			Role:    "user",
			Content: []bedrockContent{{Type: "text", Text: req.Prompt}},
		}},
	}
	return p.invoke(ctx, p.model, body)
}

// ExtractFromImages implements ai.LLMPort.
func (p *BedrockProvider) ExtractFromImages(ctx context.Context, req ai.VisionRequest) (*ai.LLMResult, error) {
	content := make([]bedrockContent, 0, len(req.Pages)+1)
	for _, page := range req.Pages {
		content = append(content, bedrockContent{
			Type: "image",
			Source: &bedrockSource{
				Type:      "base64",
				MediaType: page.MediaType,
				Data:      base64.StdEncoding.EncodeToString(page.Data),
			},
		})
	}
	content = append(content, bedrockContent{Type: "text", Text: req.Prompt})

	body := bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        maxTokensOrDefault(req.MaxTokens),
		Temperature:      req.Temperature,
		System:           req.System,
		Messages:         []bedrockMessage{{Role: "user", Content: content}},
	}
	return p.invoke(ctx, p.visionModel, body)
}

// RepairStructuredOutput implements ai.LLMPort.
func (p *BedrockProvider) RepairStructuredOutput(ctx context.Context, req ai.RepairRequest) (*ai.LLMResult, error) {
	body := bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        maxTokensOrDefault(req.MaxTokens),
		System:           repairSystemPrompt,
		Messages: []bedrockMessage{{
			Role:    "user",
			Content: []bedrockContent{{Type: "text", Text: repairPrompt(req)}},
		}},
	}
	return p.invoke(ctx, p.model, body)
}

func (p *BedrockProvider) invoke(ctx context.Context, model string, body bedrockRequest) (*ai.LLMResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal bedrock request: %w", err)
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return nil, mapBedrockError(err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeLLMInvalidResponse, "bedrock response is not valid JSON")
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	raw := sb.String()

	return &ai.LLMResult{
		RawOutput:    raw,
		Parsed:       ai.ExtractJSON(raw),
		Provider:     p.Provider(),
		Model:        model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CostMicros:   ai.CostMicros(p.Provider(), model, resp.Usage.InputTokens, resp.Usage.OutputTokens),
	}, nil
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return 8192
	}
	return n
}

func mapBedrockError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(err, apperrors.ErrorTypeLLMTimeout, "bedrock call timed out")
	}

	var throttle *brtypes.ThrottlingException
	if errors.As(err, &throttle) {
		return apperrors.Wrap(err, apperrors.ErrorTypeLLMRateLimit, "bedrock throttled")
	}
	var quota *brtypes.ServiceQuotaExceededException
	if errors.As(err, &quota) {
		return apperrors.Wrap(err, apperrors.ErrorTypeLLMRateLimit, "bedrock quota exceeded")
	}
	var denied *brtypes.AccessDeniedException
	if errors.As(err, &denied) {
		return apperrors.Wrap(err, apperrors.ErrorTypeLLMAuthFailed, "bedrock access denied")
	}
	var modelTimeout *brtypes.ModelTimeoutException
	if errors.As(err, &modelTimeout) {
		return apperrors.Wrap(err, apperrors.ErrorTypeLLMTimeout, "bedrock model timed out")
	}
	var internal *brtypes.InternalServerException
	if errors.As(err, &internal) {
		return apperrors.Wrap(err, apperrors.ErrorTypeLLMServiceUnavailable, "bedrock internal error")
	}
	var notReady *brtypes.ModelNotReadyException
	if errors.As(err, &notReady) {
		return apperrors.Wrap(err, apperrors.ErrorTypeLLMServiceUnavailable, "bedrock model not ready")
	}
	var validation *brtypes.ValidationException
	if errors.As(err, &validation) {
		return apperrors.Wrap(err, apperrors.ErrorTypeLLMInvalidResponse, "bedrock rejected request")
	}

	return apperrors.Wrap(err, apperrors.ErrorTypeLLMServiceUnavailable, "bedrock call failed")
}
