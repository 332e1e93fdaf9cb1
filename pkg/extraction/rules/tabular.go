package rules

import (
	"regexp"
	"strings"

	"github.com/aliuyar1234/orderflow/pkg/domain"
)

// headerLabelPatterns locate order-header fields in free-form cells
// above the table ("Bestellnummer: PO-123", "Currency: EUR").
var headerLabelPatterns = map[CanonicalField]*regexp.Regexp{
	FieldOrderNumber:  regexp.MustCompile(`(?i)(?:bestellnummer|bestell-?nr\.?|order\s*(?:number|no\.?)|po\s*(?:number|no\.?)|auftragsnummer|commande)\s*[:#]?\s*([A-Za-z0-9][A-Za-z0-9/_.-]*)`),
	FieldOrderDate:    regexp.MustCompile(`(?i)(?:datum|bestelldatum|order\s*date|date(?:\s+de\s+commande)?)\s*[:#]?\s*([0-9./-]+)`),
	FieldCurrency:     regexp.MustCompile(`(?i)(?:währung|waehrung|currency|devise)\s*[:#]?\s*([A-Za-z€$£]{1,4})`),
	FieldDeliveryDate: regexp.MustCompile(`(?i)(?:liefertermin|lieferdatum|delivery\s*date|livraison|wunschtermin)\s*[:#]?\s*([0-9./-]+)`),
	FieldReference:    regexp.MustCompile(`(?i)(?:referenz|reference|kommission|ihr\s+zeichen)\s*[:#]?\s*(\S.*)`),
}

var customerNumberRe = regexp.MustCompile(`(?i)(?:kundennr\.?|kunden-?nummer|customer\s*(?:number|no\.?)|debitor(?:ennummer)?|client\s*(?:no\.?|number)?)\s*[:#]?\s*([A-Za-z0-9-]+)`)

// assembleFromRows builds a CanonicalOutput from a grid of cells. The
// header row is located by alias coverage; rows above it feed the
// order header, rows below become lines.
func assembleFromRows(rows [][]string, extractorVersion string) *domain.CanonicalOutput {
	out := &domain.CanonicalOutput{ExtractorVersion: extractorVersion}

	headerIdx := -1
	for i, row := range rows {
		if LooksLikeHeader(row) {
			headerIdx = i
			break
		}
	}

	// Everything above the table (or the whole sheet when no table
	// was found) is scanned for labeled header fields.
	headerScanLimit := len(rows)
	if headerIdx >= 0 {
		headerScanLimit = headerIdx
	}
	var headerText strings.Builder
	for _, row := range rows[:headerScanLimit] {
		headerText.WriteString(strings.Join(row, " "))
		headerText.WriteString("\n")
	}
	fillOrderHeader(&out.Order, headerText.String())

	if headerIdx < 0 {
		return out
	}

	columns := MapHeaders(rows[headerIdx])
	dataRows := rows[headerIdx+1:]

	// Decimal style is decided once over all numeric cells.
	var samples []string
	for _, row := range dataRows {
		samples = append(samples, strings.Join(row, " "))
	}
	style := DetectDecimalStyle(samples)

	lineNo := 0
	for _, row := range dataRows {
		if isEmptyRow(row) {
			continue
		}
		line, ok := buildLine(row, columns, style)
		if !ok {
			continue
		}
		lineNo++
		line.LineNo = lineNo
		out.Lines = append(out.Lines, line)
	}

	return out
}

func fillOrderHeader(order *domain.CanonicalOrder, text string) {
	if m := headerLabelPatterns[FieldOrderNumber].FindStringSubmatch(text); m != nil {
		order.ExternalOrderNumber = strings.TrimSpace(m[1])
	}
	if m := headerLabelPatterns[FieldOrderDate].FindStringSubmatch(text); m != nil {
		order.OrderDate = ParseDateISO(m[1])
	}
	if m := headerLabelPatterns[FieldCurrency].FindStringSubmatch(text); m != nil {
		order.Currency = DetectCurrency(m[1])
	}
	if m := headerLabelPatterns[FieldDeliveryDate].FindStringSubmatch(text); m != nil {
		order.RequestedDeliveryDate = ParseDateISO(m[1])
	}
	if order.Currency == "" {
		order.Currency = DetectCurrency(text)
	}
	if m := customerNumberRe.FindStringSubmatch(text); m != nil {
		if order.CustomerHint == nil {
			order.CustomerHint = &domain.CustomerHint{}
		}
		order.CustomerHint.ERPCustomerNumber = strings.TrimSpace(m[1])
	}
}

func buildLine(row []string, columns map[int]CanonicalField, style DecimalStyle) (domain.CanonicalLine, bool) {
	var line domain.CanonicalLine
	populated := false

	for idx, field := range columns {
		if idx >= len(row) {
			continue
		}
		cell := strings.TrimSpace(row[idx])
		if cell == "" {
			continue
		}

		switch field {
		case FieldSKU:
			line.CustomerSKURaw = cell
			populated = true
		case FieldDescription:
			line.ProductDescription = cell
			populated = true
		case FieldQty:
			if qty, ok := ParseNumber(cell, style); ok {
				line.Qty = &qty
				populated = true
			}
		case FieldUoM:
			if u, ok := domain.NormalizeUoM(cell); ok {
				line.UoM = string(u)
			}
		case FieldUnitPrice:
			if price, ok := ParseNumber(cell, style); ok {
				line.UnitPrice = &price
			}
		case FieldCurrency:
			line.Currency = DetectCurrency(cell)
		case FieldDeliveryDate:
			line.RequestedDeliveryDate = ParseDateISO(cell)
		}
	}

	// A line needs at least an SKU or a description to be real; rows
	// carrying only totals are footer noise.
	if line.CustomerSKURaw == "" && line.ProductDescription == "" {
		return line, false
	}
	return line, populated
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
