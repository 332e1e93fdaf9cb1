package extraction

import (
	"strings"
)

// Prompt template versions. Bump when the wording changes so the
// ledger's input hash separates results across template generations.
const (
	PromptTextV1   = "pdf_extract_text_v1"
	PromptVisionV1 = "pdf_extract_vision_v1"
)

// systemPrompt fixes the extraction contract: JSON only, no prose, no
// invented values.
const systemPrompt = `You extract purchase-order data from business documents.
Return ONLY a JSON object matching the given schema. No markdown, no commentary.
Never invent values: omit any field the document does not state.
Quantities and prices are plain decimal numbers. Dates are YYYY-MM-DD.
Unit of measure must be one of: ST, M, CM, MM, KG, G, L, ML, KAR, PAL, SET.
line_no starts at 1 and increases by 1 per line.`

// PromptContext carries the document surroundings handed to the LLM.
type PromptContext struct {
	SenderEmail          string
	Subject              string
	DefaultCurrency      string
	KnownCustomerNumbers []string
	FewShotHints         []string
}

// BuildTextPrompt renders the text-mode extraction prompt.
func BuildTextPrompt(documentText string, pctx PromptContext) string {
	var sb strings.Builder
	writeContext(&sb, pctx)
	sb.WriteString("Target schema:\n")
	sb.WriteString(CanonicalSchemaJSON)
	sb.WriteString("\n\nDocument text:\n---\n")
	sb.WriteString(documentText)
	sb.WriteString("\n---\nExtract the order as JSON.")
	return sb.String()
}

// BuildVisionPrompt renders the vision-mode extraction prompt; the
// page images travel separately.
func BuildVisionPrompt(pctx PromptContext) string {
	var sb strings.Builder
	writeContext(&sb, pctx)
	sb.WriteString("Target schema:\n")
	sb.WriteString(CanonicalSchemaJSON)
	sb.WriteString("\n\nThe attached images are the pages of one purchase order. Extract the order as JSON.")
	return sb.String()
}

func writeContext(sb *strings.Builder, pctx PromptContext) {
	if pctx.SenderEmail != "" {
		sb.WriteString("Sender email: ")
		sb.WriteString(pctx.SenderEmail)
		sb.WriteString("\n")
	}
	if pctx.Subject != "" {
		sb.WriteString("Email subject: ")
		sb.WriteString(pctx.Subject)
		sb.WriteString("\n")
	}
	if pctx.DefaultCurrency != "" {
		sb.WriteString("Default currency if the document states none: ")
		sb.WriteString(pctx.DefaultCurrency)
		sb.WriteString("\n")
	}
	if len(pctx.KnownCustomerNumbers) > 0 {
		sb.WriteString("Known customer numbers: ")
		sb.WriteString(strings.Join(pctx.KnownCustomerNumbers, ", "))
		sb.WriteString("\n")
	}
	for _, hint := range pctx.FewShotHints {
		sb.WriteString("Hint: ")
		sb.WriteString(hint)
		sb.WriteString("\n")
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
}

// SystemPrompt exposes the fixed system prompt to the router.
func SystemPrompt() string { return systemPrompt }
