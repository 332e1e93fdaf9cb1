package extraction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/ai"
	"github.com/aliuyar1234/orderflow/pkg/ai/llm"
	"github.com/aliuyar1234/orderflow/pkg/domain"
	"github.com/aliuyar1234/orderflow/pkg/extraction/rules"
	"github.com/aliuyar1234/orderflow/pkg/metrics"
)

// LLMExtractorVersion tags LLM-produced outputs.
const LLMExtractorVersion = "llm_v1"

// ExtractorKind is the closed set of extractor variants the dispatch
// table selects between.
type ExtractorKind string

const (
	KindRuleCSV   ExtractorKind = "RULE_CSV"
	KindRuleXLSX  ExtractorKind = "RULE_XLSX"
	KindRulePDF   ExtractorKind = "RULE_PDF"
	KindLLMText   ExtractorKind = "LLM_TEXT"
	KindLLMVision ExtractorKind = "LLM_VISION"
)

// mimeDispatch maps MIME types to the rule extractor tried first.
var mimeDispatch = map[string]ExtractorKind{
	"text/csv":                 KindRuleCSV,
	"application/csv":          KindRuleCSV,
	"text/plain":               KindRuleCSV,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": KindRuleXLSX,
	"application/vnd.ms-excel": KindRuleXLSX,
	"application/pdf":          KindRulePDF,
}

// PageRenderer rasterizes PDF pages for the vision path. Rendering is
// an external capability (the worker wires one); tests inject fakes.
type PageRenderer interface {
	RenderPages(ctx context.Context, pdf []byte, maxPages int) ([]ai.ImagePage, error)
}

// Input is one extraction request.
type Input struct {
	TenantID   uuid.UUID
	Settings   domain.TenantSettings
	DocumentID uuid.UUID
	Filename   string
	MimeType   string
	Data       []byte

	SenderEmail          string
	Subject              string
	DefaultCurrency      string
	KnownCustomerNumbers []string
	FewShotHints         []string
}

// Result is the outcome of one extraction run.
type Result struct {
	Output            *domain.CanonicalOutput
	Method            domain.ExtractionMethod
	ExtractorVersion  string
	TextCoverageRatio float64
	PageCount         int
	Runtime           time.Duration
	CacheHit          bool
	ErrorCode         string
	ErrorDetail       string
}

// Failed reports whether the run produced no usable output.
func (r *Result) Failed() bool { return r.Output == nil }

// Router selects and executes extractors.
type Router struct {
	llm      *llm.Client
	renderer PageRenderer
	log      *logrus.Logger
	now      func() time.Time
}

// NewRouter builds a Router. renderer may be nil; scanned PDFs then
// produce a failed run with no output.
func NewRouter(llmClient *llm.Client, renderer PageRenderer, logger *logrus.Logger) *Router {
	return &Router{llm: llmClient, renderer: renderer, log: logger, now: time.Now}
}

// Extract runs the full routing algorithm for one document.
func (r *Router) Extract(ctx context.Context, input Input) (*Result, error) {
	started := r.now()
	result, err := r.extract(ctx, input)
	if result != nil {
		result.Runtime = r.now().Sub(started)
		if result.Output != nil {
			metrics.RecordExtraction(string(result.Method), result.Runtime)
		}
	}
	return result, err
}

func (r *Router) extract(ctx context.Context, input Input) (*Result, error) {
	kind, ok := mimeDispatch[input.MimeType]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrorTypeUnsupportedMimeType,
			"no extractor for MIME type %s", input.MimeType)
	}

	switch kind {
	case KindRuleCSV, KindRuleXLSX:
		return r.extractStructured(ctx, input, kind)
	case KindRulePDF:
		return r.extractPDF(ctx, input)
	default:
		return nil, apperrors.Newf(apperrors.ErrorTypeInternal, "unhandled extractor kind %s", kind)
	}
}

// extractStructured handles CSV and XLSX: rule-based first, LLM text
// fallback on weak results.
func (r *Router) extractStructured(ctx context.Context, input Input, kind ExtractorKind) (*Result, error) {
	var out *domain.CanonicalOutput
	var err error
	if kind == KindRuleCSV {
		out, err = rules.ExtractCSV(input.Data)
	} else {
		out, err = rules.ExtractXLSX(input.Data)
	}
	if err != nil {
		return nil, err
	}

	ComputeConfidence(out, input.Settings, false, 1)

	ruleResult := &Result{
		Output:            out,
		Method:            domain.ExtractionRule,
		ExtractorVersion:  out.ExtractorVersion,
		TextCoverageRatio: 1,
	}

	if !r.needsLLM(out, input.Settings, false) {
		return ruleResult, nil
	}
	if !out.HasLines() {
		out.AddWarning(CodeNoLines, "rule-based extraction found no lines")
	}

	return r.llmTextFallback(ctx, input, string(input.Data), ruleResult)
}

// extractPDF handles PDFs: coverage decision, rule path, vision or
// text LLM fallback.
func (r *Router) extractPDF(ctx context.Context, input Input) (*Result, error) {
	info, err := rules.InspectPDF(input.Data)
	if err != nil {
		return nil, err
	}

	settings := input.Settings.Normalized()

	// Oversized documents never go to a provider, regardless of
	// coverage.
	if info.PageCount > settings.MaxPagesForLLM {
		out := rules.ExtractPDF(info)
		ComputeConfidence(out, input.Settings, true, info.TextCoverageRatio)
		if info.IsScanned() {
			out.AddWarning(CodeLowTextCoverage, "scanned document exceeds the LLM page limit")
		}
		return &Result{
			Output:            out,
			Method:            domain.ExtractionRule,
			ExtractorVersion:  out.ExtractorVersion,
			TextCoverageRatio: info.TextCoverageRatio,
			PageCount:         info.PageCount,
		}, nil
	}

	if info.IsScanned() {
		return r.llmVisionPath(ctx, input, info)
	}

	out := rules.ExtractPDF(info)
	ComputeConfidence(out, input.Settings, true, info.TextCoverageRatio)

	ruleResult := &Result{
		Output:            out,
		Method:            domain.ExtractionRule,
		ExtractorVersion:  out.ExtractorVersion,
		TextCoverageRatio: info.TextCoverageRatio,
		PageCount:         info.PageCount,
	}

	if !r.needsLLM(out, input.Settings, false) {
		return ruleResult, nil
	}
	if !out.HasLines() {
		out.AddWarning(CodeNoLines, "rule-based extraction found no lines")
	}

	return r.llmTextFallback(ctx, input, info.Text, ruleResult)
}

// needsLLM applies the fallback trigger: weak confidence, zero lines,
// or a scanned document.
func (r *Router) needsLLM(out *domain.CanonicalOutput, settings domain.TenantSettings, scanned bool) bool {
	s := settings.Normalized()
	return out.Confidence.Overall < s.LLMTriggerConfidence || !out.HasLines() || scanned
}

func (r *Router) promptContext(input Input) PromptContext {
	return PromptContext{
		SenderEmail:          input.SenderEmail,
		Subject:              input.Subject,
		DefaultCurrency:      input.DefaultCurrency,
		KnownCustomerNumbers: input.KnownCustomerNumbers,
		FewShotHints:         input.FewShotHints,
	}
}

// llmTextFallback runs the text-mode LLM over the extracted text. The
// rule result survives every failure mode.
func (r *Router) llmTextFallback(ctx context.Context, input Input, sourceText string, ruleResult *Result) (*Result, error) {
	req := ai.LLMRequest{
		System:        SystemPrompt(),
		Prompt:        BuildTextPrompt(sourceText, r.promptContext(input)),
		PromptVersion: PromptTextV1,
		Temperature:   0,
	}

	llmResult, cached, err := r.llm.ExtractFromText(ctx, input.TenantID, input.Settings, req, llm.CallRefs{DocumentID: &input.DocumentID})
	if err != nil {
		return r.llmFailure(input, ruleResult, err), nil
	}

	return r.finishLLM(ctx, input, llmResult, cached, sourceText, ruleResult, domain.ExtractionLLMText, ruleResult.PageCount)
}

// llmVisionPath renders pages and runs the vision model. Used only for
// scanned documents, where there is no rule-based result to fall back
// on; failures produce a failed run.
func (r *Router) llmVisionPath(ctx context.Context, input Input, info rules.PDFInfo) (*Result, error) {
	base := &Result{
		Method:            domain.ExtractionLLMVision,
		TextCoverageRatio: info.TextCoverageRatio,
		PageCount:         info.PageCount,
	}

	if r.renderer == nil {
		base.ErrorCode = CodeLLMFailed
		base.ErrorDetail = "no page renderer configured for scanned documents"
		return base, nil
	}

	settings := input.Settings.Normalized()
	pages, err := r.renderer.RenderPages(ctx, input.Data, settings.MaxPagesForLLM)
	if err != nil {
		base.ErrorCode = CodeLLMFailed
		base.ErrorDetail = err.Error()
		return base, nil
	}

	req := ai.VisionRequest{
		System:        SystemPrompt(),
		Prompt:        BuildVisionPrompt(r.promptContext(input)),
		PromptVersion: PromptVisionV1,
		Pages:         pages,
		Temperature:   0,
	}

	llmResult, cached, err := r.llm.ExtractFromImages(ctx, input.TenantID, input.Settings, req, llm.CallRefs{DocumentID: &input.DocumentID})
	if err != nil {
		return r.llmFailure(input, base, err), nil
	}

	return r.finishLLM(ctx, input, llmResult, cached, info.Text, base, domain.ExtractionLLMVision, info.PageCount)
}

// finishLLM validates (with one self-repair), guards, and scores the
// LLM output, falling back to the rule result when the output stays
// unusable.
func (r *Router) finishLLM(ctx context.Context, input Input, llmResult *ai.LLMResult, cached bool, sourceText string, fallback *Result, method domain.ExtractionMethod, pages int) (*Result, error) {
	out, schemaErr := r.parseWithRepair(ctx, input, llmResult)
	if schemaErr != nil {
		if fallback.Output != nil {
			fallback.Output.AddWarning(schemaErr.Code, schemaErr.Message)
			return fallback, nil
		}
		fallback.ErrorCode = schemaErr.Code
		fallback.ErrorDetail = schemaErr.Message
		return fallback, nil
	}

	out.ExtractorVersion = LLMExtractorVersion
	isPDF := method == domain.ExtractionLLMVision || input.MimeType == "application/pdf"
	ComputeConfidence(out, input.Settings, isPDF, fallback.TextCoverageRatio)
	ApplyHallucinationGuards(out, sourceText, pages, input.Settings)

	return &Result{
		Output:            out,
		Method:            method,
		ExtractorVersion:  LLMExtractorVersion,
		TextCoverageRatio: fallback.TextCoverageRatio,
		PageCount:         pages,
		CacheHit:          cached,
	}, nil
}

// parseWithRepair validates the LLM output, issuing exactly one repair
// call on failure.
func (r *Router) parseWithRepair(ctx context.Context, input Input, llmResult *ai.LLMResult) (*domain.CanonicalOutput, *SchemaError) {
	raw := llmResult.Parsed
	if raw == nil {
		raw = ai.ExtractJSON(llmResult.RawOutput)
	}

	out, err := ParseCanonical(raw)
	if err == nil {
		return out, nil
	}

	schemaErr := asSchemaError(err)
	r.log.WithFields(logrus.Fields{
		"component": "extraction",
		"tenant_id": input.TenantID.String(),
		"code":      schemaErr.Code,
	}).Warn("LLM output invalid, attempting one repair")

	repairReq := ai.RepairRequest{
		InvalidOutput:   llmResult.RawOutput,
		ValidationError: schemaErr.Message,
		TargetSchema:    CanonicalSchemaJSON,
	}
	repaired, _, repairErr := r.llm.RepairStructuredOutput(ctx, input.TenantID, input.Settings, repairReq, llm.CallRefs{DocumentID: &input.DocumentID})
	if repairErr != nil {
		return nil, schemaErr
	}

	repairedRaw := repaired.Parsed
	if repairedRaw == nil {
		repairedRaw = ai.ExtractJSON(repaired.RawOutput)
	}
	out, err = ParseCanonical(repairedRaw)
	if err != nil {
		return nil, asSchemaError(err)
	}
	return out, nil
}

func asSchemaError(err error) *SchemaError {
	if se, ok := err.(*SchemaError); ok {
		return se
	}
	return &SchemaError{Code: CodeLLMInvalidJSON, Message: err.Error()}
}

// llmFailure folds a provider failure into the best available result:
// the rule output with a warning, or a failed run.
func (r *Router) llmFailure(input Input, fallback *Result, err error) *Result {
	code := CodeLLMFailed
	if apperrors.IsType(err, apperrors.ErrorTypeBudgetExceeded) {
		code = CodeBudgetExceeded
	}

	r.log.WithFields(logrus.Fields{
		"component": "extraction",
		"tenant_id": input.TenantID.String(),
		"code":      code,
		"error":     err.Error(),
	}).Warn("LLM fallback unavailable")

	if fallback.Output != nil {
		fallback.Output.AddWarning(code, err.Error())
		return fallback
	}
	fallback.ErrorCode = code
	fallback.ErrorDetail = err.Error()
	return fallback
}
