package rules

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/domain"
)

// PDFExtractorVersion tags outputs of the PDF rule extractor.
const PDFExtractorVersion = "pdf_rule_v1"

// charsPerPageBaseline is the expected character yield of a fully
// text-based A4 order page; the coverage ratio is measured against it.
const charsPerPageBaseline = 2500

// PDFInfo describes a PDF independent of extraction success.
type PDFInfo struct {
	PageCount         int
	Text              string
	TextChars         int
	TextCoverageRatio float64
}

// InspectPDF opens the document, counts pages, and extracts whatever
// text its content streams carry. A scanned PDF yields little or no
// text, which is exactly what the coverage ratio detects.
func InspectPDF(data []byte) (PDFInfo, error) {
	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return PDFInfo{}, apperrors.Wrap(err, apperrors.ErrorTypeInvalidFile, "PDF open failed")
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		return PDFInfo{}, apperrors.Wrap(err, apperrors.ErrorTypeInvalidFile, "PDF validation failed")
	}

	info := PDFInfo{PageCount: pdfCtx.PageCount}

	var sb strings.Builder
	for page := 1; page <= pdfCtx.PageCount; page++ {
		r, err := pdfcpu.ExtractPageContent(pdfCtx, page)
		if err != nil || r == nil {
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil {
			continue
		}
		sb.WriteString(decodeContentText(content))
		sb.WriteString("\n")
	}

	info.Text = sb.String()
	info.TextChars = len(strings.TrimSpace(info.Text))
	if info.PageCount > 0 {
		ratio := float64(info.TextChars) / float64(info.PageCount*charsPerPageBaseline)
		if ratio > 1 {
			ratio = 1
		}
		info.TextCoverageRatio = ratio
	}
	return info, nil
}

// IsScanned applies the routing thresholds: coverage below 15% or
// fewer than 500 characters total.
func (i PDFInfo) IsScanned() bool {
	return i.TextCoverageRatio < 0.15 || i.TextChars < 500
}

// decodeContentText pulls the text-showing operators (Tj, TJ, ', ")
// out of a decoded PDF content stream. Positioning operators become
// line breaks so downstream regexes see one order line per text line.
func decodeContentText(content []byte) string {
	var sb strings.Builder
	i := 0
	n := len(content)

	for i < n {
		switch content[i] {
		case '(':
			str, next := readPDFString(content, i)
			sb.WriteString(str)
			i = next
		case 'T':
			if i+1 < n {
				switch content[i+1] {
				case 'd', 'D', '*':
					sb.WriteString("\n")
					i += 2
					continue
				}
			}
			i++
		case 'E':
			if i+1 < n && content[i+1] == 'T' {
				sb.WriteString("\n")
				i += 2
				continue
			}
			i++
		default:
			i++
		}
	}

	return collapseBlankLines(sb.String())
}

// readPDFString reads a parenthesized PDF string starting at open,
// handling nesting and backslash escapes. Returns the decoded text and
// the index after the closing parenthesis.
func readPDFString(content []byte, open int) (string, int) {
	var sb strings.Builder
	depth := 0
	i := open
	for i < len(content) {
		ch := content[i]
		switch ch {
		case '\\':
			if i+1 < len(content) {
				esc := content[i+1]
				switch esc {
				case 'n':
					sb.WriteByte('\n')
				case 't':
					sb.WriteByte('\t')
				case 'r', 'f', 'b':
					// ignored control escapes
				case '(', ')', '\\':
					sb.WriteByte(esc)
				default:
					sb.WriteByte(esc)
				}
				i += 2
				continue
			}
			i++
		case '(':
			if depth > 0 {
				sb.WriteByte(ch)
			}
			depth++
			i++
		case ')':
			depth--
			if depth == 0 {
				return sb.String(), i + 1
			}
			sb.WriteByte(ch)
			i++
		default:
			if depth > 0 {
				sb.WriteByte(ch)
			}
			i++
		}
	}
	return sb.String(), i
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n")
}

// pdfLineRe matches a classic order line:
//
//	1 ABC-123 Kabel NYM-J 3x1,5 10 M 1,23
//
// position, SKU, free-text description, quantity, unit, unit price.
var pdfLineRe = regexp.MustCompile(`^\s*(\d{1,4})\s+([A-Za-z0-9][A-Za-z0-9/_.-]{1,30})\s+(.+?)\s+(\d+(?:[.,]\d+)?)\s+([A-Za-zÄäÖöÜü.]{1,10})\s+(\d+(?:[.,]\d+)?)\s*$`)

// pdfLineNoPriceRe matches the same shape without a trailing price.
var pdfLineNoPriceRe = regexp.MustCompile(`^\s*(\d{1,4})\s+([A-Za-z0-9][A-Za-z0-9/_.-]{1,30})\s+(.+?)\s+(\d+(?:[.,]\d+)?)\s+([A-Za-zÄäÖöÜü.]{1,10})\s*$`)

// ExtractPDF runs the rule-based PDF path over already-inspected
// content: labeled header fields plus regex line parsing.
func ExtractPDF(info PDFInfo) *domain.CanonicalOutput {
	out := &domain.CanonicalOutput{ExtractorVersion: PDFExtractorVersion}

	fillOrderHeader(&out.Order, firstChars(info.Text, 2000))

	lines := strings.Split(info.Text, "\n")
	style := DetectDecimalStyle(lines)

	lineNo := 0
	for _, raw := range lines {
		m := pdfLineRe.FindStringSubmatch(raw)
		withPrice := m != nil
		if m == nil {
			m = pdfLineNoPriceRe.FindStringSubmatch(raw)
		}
		if m == nil {
			continue
		}

		uom, uomOK := domain.NormalizeUoM(m[5])
		if !uomOK {
			// Without a recognizable unit the row is more likely an
			// address or footer fragment than an order line.
			continue
		}

		line := domain.CanonicalLine{
			CustomerSKURaw:     m[2],
			ProductDescription: strings.TrimSpace(m[3]),
			UoM:                string(uom),
		}
		if qty, ok := ParseNumber(m[4], style); ok {
			line.Qty = &qty
		}
		if withPrice {
			if price, ok := ParseNumber(m[6], style); ok {
				line.UnitPrice = &price
			}
		}

		lineNo++
		line.LineNo = lineNo
		out.Lines = append(out.Lines, line)
	}

	return out
}

func firstChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
