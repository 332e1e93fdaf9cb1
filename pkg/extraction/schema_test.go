package extraction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliuyar1234/orderflow/pkg/domain"
)

func TestParseCanonical(t *testing.T) {
	valid := []byte(`{
		"order": {"external_order_number": "PO-1", "order_date": "2025-01-04", "currency": "EUR"},
		"lines": [
			{"line_no": 1, "customer_sku_raw": "ABC-123", "qty": "10", "uom": "M", "unit_price": "1.23"},
			{"line_no": 2, "customer_sku_raw": "DEF-456", "qty": "5", "uom": "ST"}
		],
		"extractor_version": "llm_v1"
	}`)

	t.Run("valid output parses", func(t *testing.T) {
		out, err := ParseCanonical(valid)
		require.NoError(t, err)
		assert.Equal(t, "PO-1", out.Order.ExternalOrderNumber)
		require.Len(t, out.Lines, 2)
		assert.Equal(t, "10", out.Lines[0].Qty.String())
	})

	t.Run("round-trips through JSON", func(t *testing.T) {
		out, err := ParseCanonical(valid)
		require.NoError(t, err)

		raw2, err := jsonMarshal(out)
		require.NoError(t, err)
		out2, err := ParseCanonical(raw2)
		require.NoError(t, err)

		assert.Equal(t, out.Order, out2.Order)
		assert.Equal(t, len(out.Lines), len(out2.Lines))
		assert.True(t, out.Lines[0].Qty.Equal(*out2.Lines[0].Qty))
	})

	t.Run("invalid JSON yields LLM_INVALID_JSON", func(t *testing.T) {
		_, err := ParseCanonical([]byte(`{not json`))
		se := requireSchemaError(t, err)
		assert.Equal(t, CodeLLMInvalidJSON, se.Code)
	})

	t.Run("empty input yields LLM_INVALID_JSON", func(t *testing.T) {
		_, err := ParseCanonical(nil)
		se := requireSchemaError(t, err)
		assert.Equal(t, CodeLLMInvalidJSON, se.Code)
	})

	t.Run("gapped line numbers yield LLM_SCHEMA_MISMATCH", func(t *testing.T) {
		gapped := []byte(`{"order": {}, "lines": [{"line_no": 1}, {"line_no": 3}]}`)
		_, err := ParseCanonical(gapped)
		se := requireSchemaError(t, err)
		assert.Equal(t, CodeLLMSchemaMismatch, se.Code)
	})

	t.Run("zero line number yields LLM_SCHEMA_MISMATCH", func(t *testing.T) {
		bad := []byte(`{"order": {}, "lines": [{"line_no": 0}]}`)
		_, err := ParseCanonical(bad)
		se := requireSchemaError(t, err)
		assert.Equal(t, CodeLLMSchemaMismatch, se.Code)
	})

	t.Run("bad currency yields LLM_SCHEMA_MISMATCH", func(t *testing.T) {
		bad := []byte(`{"order": {"currency": "EURO"}, "lines": []}`)
		_, err := ParseCanonical(bad)
		se := requireSchemaError(t, err)
		assert.Equal(t, CodeLLMSchemaMismatch, se.Code)
	})

	t.Run("bad uom yields LLM_SCHEMA_MISMATCH", func(t *testing.T) {
		bad := []byte(`{"order": {}, "lines": [{"line_no": 1, "uom": "YD"}]}`)
		_, err := ParseCanonical(bad)
		se := requireSchemaError(t, err)
		assert.Equal(t, CodeLLMSchemaMismatch, se.Code)
	})

	t.Run("bad date yields LLM_SCHEMA_MISMATCH", func(t *testing.T) {
		bad := []byte(`{"order": {"order_date": "04.01.2025"}, "lines": []}`)
		_, err := ParseCanonical(bad)
		se := requireSchemaError(t, err)
		assert.Equal(t, CodeLLMSchemaMismatch, se.Code)
	})
}

func TestRenumberLines(t *testing.T) {
	out := &domain.CanonicalOutput{
		Lines: []domain.CanonicalLine{{LineNo: 7}, {LineNo: 2}, {LineNo: 9}},
	}
	RenumberLines(out)
	for i, line := range out.Lines {
		assert.Equal(t, i+1, line.LineNo)
	}
	assert.NoError(t, ValidateCanonical(out))
}

func requireSchemaError(t *testing.T, err error) *SchemaError {
	t.Helper()
	require.Error(t, err)
	se, ok := err.(*SchemaError)
	require.True(t, ok, "expected *SchemaError, got %T", err)
	return se
}

func jsonMarshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
