package extraction

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliuyar1234/orderflow/pkg/domain"
)

func guardedOutput(lines ...domain.CanonicalLine) *domain.CanonicalOutput {
	out := &domain.CanonicalOutput{Lines: lines}
	out.Confidence.Lines = make([]domain.LineFieldConfidence, len(lines))
	for i := range out.Confidence.Lines {
		out.Confidence.Lines[i] = domain.LineFieldConfidence{CustomerSKU: 1, Qty: 1, Description: 1}
	}
	out.Confidence.Overall = 1
	return out
}

func TestAnchorCheck(t *testing.T) {
	source := "Bestellung\n1 ABC-123 Kabel NYM-J Installationsleitung 10 M 1,23\n"
	settings := domain.TenantSettings{}

	t.Run("sku anchor passes", func(t *testing.T) {
		out := guardedOutput(domain.CanonicalLine{LineNo: 1, CustomerSKURaw: "ABC-123"})
		ApplyHallucinationGuards(out, source, 1, settings)
		assert.False(t, out.HasWarning(CodeAnchorCheckFailed))
		assert.Equal(t, 1.0, out.Confidence.Lines[0].CustomerSKU)
	})

	t.Run("sku anchor tolerates separator differences", func(t *testing.T) {
		out := guardedOutput(domain.CanonicalLine{LineNo: 1, CustomerSKURaw: "abc 123"})
		ApplyHallucinationGuards(out, source, 1, settings)
		assert.False(t, out.HasWarning(CodeAnchorCheckFailed))
	})

	t.Run("long description token anchors", func(t *testing.T) {
		out := guardedOutput(domain.CanonicalLine{LineNo: 1, ProductDescription: "Installationsleitung grau"})
		ApplyHallucinationGuards(out, source, 1, settings)
		assert.False(t, out.HasWarning(CodeAnchorCheckFailed))
	})

	t.Run("integer qty anchors", func(t *testing.T) {
		out := guardedOutput(domain.CanonicalLine{LineNo: 1, Qty: qty("10")})
		ApplyHallucinationGuards(out, source, 1, settings)
		assert.False(t, out.HasWarning(CodeAnchorCheckFailed))
	})

	t.Run("unanchored line halves field confidences", func(t *testing.T) {
		out := guardedOutput(domain.CanonicalLine{
			LineNo: 1, CustomerSKURaw: "ZZZ-999", ProductDescription: "Phantomartikel", Qty: qty("777"),
		})
		ApplyHallucinationGuards(out, source, 1, settings)
		assert.True(t, out.HasWarning(CodeAnchorCheckFailed))
		assert.Equal(t, 0.5, out.Confidence.Lines[0].CustomerSKU)
		assert.Equal(t, 0.5, out.Confidence.Lines[0].Qty)
		assert.Equal(t, 0.5, out.Confidence.Lines[0].Description)
	})
}

func TestQtyRangeGuard(t *testing.T) {
	settings := domain.TenantSettings{}
	source := "ABC-123 maximal"

	t.Run("zero qty is nulled", func(t *testing.T) {
		out := guardedOutput(domain.CanonicalLine{LineNo: 1, CustomerSKURaw: "ABC-123", Qty: qty("0")})
		ApplyHallucinationGuards(out, source, 1, settings)
		assert.True(t, out.HasWarning(CodeQtyRangeViolation))
		assert.Nil(t, out.Lines[0].Qty)
		assert.Equal(t, 0.0, out.Confidence.Lines[0].Qty)
	})

	t.Run("max qty is accepted", func(t *testing.T) {
		out := guardedOutput(domain.CanonicalLine{LineNo: 1, CustomerSKURaw: "ABC-123", Qty: qty("1000000")})
		ApplyHallucinationGuards(out, source, 1, settings)
		assert.False(t, out.HasWarning(CodeQtyRangeViolation))
		require.NotNil(t, out.Lines[0].Qty)
	})

	t.Run("max plus one is nulled", func(t *testing.T) {
		out := guardedOutput(domain.CanonicalLine{LineNo: 1, CustomerSKURaw: "ABC-123", Qty: qty("1000001")})
		ApplyHallucinationGuards(out, source, 1, settings)
		assert.True(t, out.HasWarning(CodeQtyRangeViolation))
		assert.Nil(t, out.Lines[0].Qty)
	})

	t.Run("tenant max overrides the default", func(t *testing.T) {
		tight := domain.TenantSettings{MaxQty: 100}
		out := guardedOutput(domain.CanonicalLine{LineNo: 1, CustomerSKURaw: "ABC-123", Qty: qty("101")})
		ApplyHallucinationGuards(out, source, 1, tight)
		assert.True(t, out.HasWarning(CodeQtyRangeViolation))
	})
}

func TestLinesCountGuard(t *testing.T) {
	settings := domain.TenantSettings{}

	manyLines := func(n int) []domain.CanonicalLine {
		lines := make([]domain.CanonicalLine, n)
		for i := range lines {
			lines[i] = domain.CanonicalLine{LineNo: i + 1, CustomerSKURaw: fmt.Sprintf("SKU-%d", i)}
		}
		return lines
	}

	t.Run("201 lines on 2 pages is suspicious", func(t *testing.T) {
		out := guardedOutput(manyLines(201)...)
		before := out.Confidence.Overall
		ApplyHallucinationGuards(out, "irrelevant", 2, settings)
		assert.True(t, out.HasWarning(CodeLinesCountSuspicious))
		assert.Less(t, out.Confidence.Overall, before)
	})

	t.Run("dense pages are suspicious", func(t *testing.T) {
		out := guardedOutput(manyLines(150)...) // 150 lines / 1 page > 100
		ApplyHallucinationGuards(out, "irrelevant", 1, settings)
		assert.True(t, out.HasWarning(CodeLinesCountSuspicious))
	})

	t.Run("normal density passes", func(t *testing.T) {
		source := "SKU-0 SKU-1 SKU-2"
		out := guardedOutput(manyLines(3)...)
		ApplyHallucinationGuards(out, source, 1, settings)
		assert.False(t, out.HasWarning(CodeLinesCountSuspicious))
	})
}

func TestHighAnchorFailureRate(t *testing.T) {
	settings := domain.TenantSettings{}
	source := "only REAL-1 and REAL-2 exist here"

	t.Run("over 30 percent failures reduce overall", func(t *testing.T) {
		out := guardedOutput(
			domain.CanonicalLine{LineNo: 1, CustomerSKURaw: "REAL-1"},
			domain.CanonicalLine{LineNo: 2, CustomerSKURaw: "FAKE-1"},
			domain.CanonicalLine{LineNo: 3, CustomerSKURaw: "FAKE-2"},
		)
		ApplyHallucinationGuards(out, source, 1, settings)
		assert.True(t, out.HasWarning(CodeHighAnchorFailureRate))
		assert.InDelta(t, 0.7, out.Confidence.Overall, 1e-9)
	})

	t.Run("under 30 percent does not", func(t *testing.T) {
		out := guardedOutput(
			domain.CanonicalLine{LineNo: 1, CustomerSKURaw: "REAL-1"},
			domain.CanonicalLine{LineNo: 2, CustomerSKURaw: "REAL-2"},
			domain.CanonicalLine{LineNo: 3, CustomerSKURaw: "REAL-1"},
			domain.CanonicalLine{LineNo: 4, CustomerSKURaw: "FAKE-1"},
		)
		ApplyHallucinationGuards(out, source, 1, settings)
		assert.False(t, out.HasWarning(CodeHighAnchorFailureRate))
	})
}
