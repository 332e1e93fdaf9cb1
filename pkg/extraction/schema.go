// Package extraction routes documents to the right extractor, gates
// and invokes the LLM fallback, validates structured output, and
// applies the hallucination guards. The rule-based extractors live in
// pkg/extraction/rules.
package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aliuyar1234/orderflow/pkg/domain"
)

var validate = validator.New()

// Warning and error codes attached to extraction runs.
const (
	CodeLLMInvalidJSON        = "LLM_INVALID_JSON"
	CodeLLMSchemaMismatch     = "LLM_SCHEMA_MISMATCH"
	CodeLowTextCoverage       = "LOW_TEXT_COVERAGE"
	CodeNoLines               = "NO_LINES"
	CodeAnchorCheckFailed     = "ANCHOR_CHECK_FAILED"
	CodeQtyRangeViolation     = "QTY_RANGE_VIOLATION"
	CodeLinesCountSuspicious  = "LINES_COUNT_SUSPICIOUS"
	CodeHighAnchorFailureRate = "HIGH_ANCHOR_FAILURE_RATE"
	CodeBudgetExceeded        = "BUDGET_EXCEEDED"
	CodeLLMFailed             = "LLM_FAILED"
)

// CanonicalSchemaJSON is the target-schema text supplied to repair
// calls. It mirrors the canonical output shape; keep the two in sync.
const CanonicalSchemaJSON = `{
  "order": {
    "external_order_number": "string?",
    "order_date": "YYYY-MM-DD?",
    "currency": "ISO-4217?",
    "requested_delivery_date": "YYYY-MM-DD?",
    "customer_hint": {"name": "string?", "email": "string?", "erp_customer_number": "string?"},
    "notes": "string?",
    "ship_to": {"company": "string?", "street": "string?", "zip": "string?", "city": "string?", "country": "string?"}
  },
  "lines": [
    {
      "line_no": "int, 1..n consecutive",
      "customer_sku_raw": "string?",
      "product_description": "string?",
      "qty": "decimal?",
      "uom": "one of ST,M,CM,MM,KG,G,L,ML,KAR,PAL,SET?",
      "unit_price": "decimal?",
      "currency": "ISO-4217?",
      "requested_delivery_date": "YYYY-MM-DD?"
    }
  ]
}`

// SchemaError is a structured validation failure distinguishing
// malformed JSON from schema violations.
type SchemaError struct {
	Code    string
	Message string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ParseCanonical parses raw bytes into a validated CanonicalOutput.
// Parsing and validation stay distinct: a *SchemaError carries
// CodeLLMInvalidJSON for unparsable input and CodeLLMSchemaMismatch
// for structurally invalid output.
func ParseCanonical(raw []byte) (*domain.CanonicalOutput, error) {
	if len(raw) == 0 {
		return nil, &SchemaError{Code: CodeLLMInvalidJSON, Message: "empty output"}
	}

	var out domain.CanonicalOutput
	decoder := json.NewDecoder(strings.NewReader(string(raw)))
	if err := decoder.Decode(&out); err != nil {
		return nil, &SchemaError{Code: CodeLLMInvalidJSON, Message: err.Error()}
	}

	if err := ValidateCanonical(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateCanonical checks an already-parsed output against the
// schema's structural rules.
func ValidateCanonical(out *domain.CanonicalOutput) error {
	if err := validate.Struct(out); err != nil {
		return &SchemaError{Code: CodeLLMSchemaMismatch, Message: err.Error()}
	}

	for i, line := range out.Lines {
		if line.LineNo != i+1 {
			return &SchemaError{
				Code:    CodeLLMSchemaMismatch,
				Message: fmt.Sprintf("line_no must run 1..n without gaps: index %d has line_no %d", i, line.LineNo),
			}
		}
	}

	if len(out.Confidence.Lines) != 0 && len(out.Confidence.Lines) != len(out.Lines) {
		return &SchemaError{
			Code:    CodeLLMSchemaMismatch,
			Message: fmt.Sprintf("confidence.lines length %d does not match lines length %d", len(out.Confidence.Lines), len(out.Lines)),
		}
	}

	return nil
}

// RenumberLines rewrites line numbers to 1..n, preserving order. The
// rule extractors number their lines themselves and do not call it.
func RenumberLines(out *domain.CanonicalOutput) {
	for i := range out.Lines {
		out.Lines[i].LineNo = i + 1
	}
}
