package extraction

import (
	"github.com/aliuyar1234/orderflow/pkg/domain"
)

// ComputeConfidence fills out.Confidence: header confidence is the
// fraction of {order_number, order_date, currency} present, line
// confidence averages {sku, qty, description} presence per line, and
// overall combines them with the tenant's weights. A PDF with text
// coverage under 15% halves the overall score.
func ComputeConfidence(out *domain.CanonicalOutput, settings domain.TenantSettings, isPDF bool, textCoverageRatio float64) {
	s := settings.Normalized()

	var orderConf domain.OrderFieldConfidence
	if out.Order.ExternalOrderNumber != "" {
		orderConf.ExternalOrderNumber = 1
	}
	if out.Order.OrderDate != "" {
		orderConf.OrderDate = 1
	}
	if out.Order.Currency != "" {
		orderConf.Currency = 1
	}
	headerScore := (orderConf.ExternalOrderNumber + orderConf.OrderDate + orderConf.Currency) / 3

	lineConfs := make([]domain.LineFieldConfidence, len(out.Lines))
	var lineSum float64
	for i, line := range out.Lines {
		var lc domain.LineFieldConfidence
		if line.CustomerSKURaw != "" {
			lc.CustomerSKU = 1
		}
		if line.Qty != nil {
			lc.Qty = 1
		}
		if line.ProductDescription != "" {
			lc.Description = 1
		}
		lineConfs[i] = lc
		lineSum += (lc.CustomerSKU + lc.Qty + lc.Description) / 3
	}

	var linesScore float64
	if len(out.Lines) > 0 {
		linesScore = lineSum / float64(len(out.Lines))
	}

	overall := s.HeaderConfidenceWeight*headerScore + s.LineConfidenceWeight*linesScore
	if isPDF && textCoverageRatio < 0.15 {
		overall *= 0.5
	}

	out.Confidence = domain.Confidence{
		Order:   orderConf,
		Lines:   lineConfs,
		Overall: clamp01(overall),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
