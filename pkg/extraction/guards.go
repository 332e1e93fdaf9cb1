package extraction

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aliuyar1234/orderflow/pkg/domain"
)

// ApplyHallucinationGuards checks every line of LLM output against
// the source text and the tenant's quantity bounds, reducing
// confidences and emitting coded warnings. It mutates out in place.
//
// Guards, in order:
//   - anchor check per line (SKU, long description token, or integer
//     qty must appear in the source text)
//   - quantity range per line
//   - suspicious line counts for the page count
//   - high anchor-failure rate across lines
func ApplyHallucinationGuards(out *domain.CanonicalOutput, sourceText string, pages int, settings domain.TenantSettings) {
	s := settings.Normalized()
	normSource := normalizeForAnchor(sourceText)

	anchorFailures := 0
	for i := range out.Lines {
		line := &out.Lines[i]

		if !anchored(line, sourceText, normSource) {
			anchorFailures++
			if i < len(out.Confidence.Lines) {
				out.Confidence.Lines[i].CustomerSKU *= 0.5
				out.Confidence.Lines[i].Qty *= 0.5
				out.Confidence.Lines[i].Description *= 0.5
			}
			out.AddWarning(CodeAnchorCheckFailed,
				fmt.Sprintf("line %d has no anchor in the source text", line.LineNo))
		}

		if line.Qty != nil {
			maxQty := decimal.NewFromInt(s.MaxQty)
			if line.Qty.LessThanOrEqual(decimal.Zero) || line.Qty.GreaterThan(maxQty) {
				out.AddWarning(CodeQtyRangeViolation,
					fmt.Sprintf("line %d qty %s outside (0, %d]", line.LineNo, line.Qty.String(), s.MaxQty))
				line.Qty = nil
				if i < len(out.Confidence.Lines) {
					out.Confidence.Lines[i].Qty = 0
				}
			}
		}
	}

	lineCount := len(out.Lines)
	suspicious := (lineCount > 200 && pages <= 2) ||
		(pages > 0 && lineCount/pages > 100)
	if suspicious {
		out.Confidence.Overall = clamp01(out.Confidence.Overall * 0.7)
		out.AddWarning(CodeLinesCountSuspicious,
			fmt.Sprintf("%d lines over %d pages", lineCount, pages))
	}

	if lineCount > 0 && float64(anchorFailures)/float64(lineCount) > 0.3 {
		out.Confidence.Overall = clamp01(out.Confidence.Overall * 0.7)
		out.AddWarning(CodeHighAnchorFailureRate,
			fmt.Sprintf("%d of %d lines failed the anchor check", anchorFailures, lineCount))
	}
}

// anchored reports whether at least one of the line's extracted facts
// appears in the source text.
func anchored(line *domain.CanonicalLine, sourceText, normSource string) bool {
	if line.CustomerSKURaw != "" {
		if strings.Contains(normSource, normalizeForAnchor(line.CustomerSKURaw)) {
			return true
		}
		if norm := domain.NormalizeSKU(line.CustomerSKURaw); norm != "" &&
			strings.Contains(normSource, strings.ToLower(norm)) {
			return true
		}
	}

	lowerSource := strings.ToLower(sourceText)
	for _, token := range strings.Fields(line.ProductDescription) {
		if len([]rune(token)) >= 8 && strings.Contains(lowerSource, strings.ToLower(token)) {
			return true
		}
	}

	if line.Qty != nil {
		intPart := line.Qty.Truncate(0).String()
		if strings.Contains(sourceText, intPart) {
			return true
		}
	}

	return false
}

// normalizeForAnchor lowercases and strips separator characters so
// "ABC-123" matches "abc 123" and "ABC123".
func normalizeForAnchor(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch r {
		case ' ', '\t', '\n', '-', '_', '.', '/':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
