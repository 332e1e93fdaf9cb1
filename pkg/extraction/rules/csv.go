package rules

import (
	"bytes"
	"encoding/csv"
	"strings"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/domain"
)

// CSVExtractorVersion tags outputs of the CSV rule extractor.
const CSVExtractorVersion = "csv_rule_v1"

// ExtractCSV parses a CSV (or semicolon/tab separated) order file into
// canonical output. The delimiter is sniffed from the first lines.
func ExtractCSV(data []byte) (*domain.CanonicalOutput, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, apperrors.New(apperrors.ErrorTypeEmptyFile, "empty CSV payload")
	}

	delimiter := sniffDelimiter(data)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInvalidFile, "CSV parse failed")
	}

	return assembleFromRows(records, CSVExtractorVersion), nil
}

// sniffDelimiter counts candidate separators over the first lines and
// picks the most frequent; comma wins ties.
func sniffDelimiter(data []byte) rune {
	head := data
	if len(head) > 4096 {
		head = head[:4096]
	}
	lines := strings.SplitN(string(head), "\n", 10)

	counts := map[rune]int{',': 0, ';': 0, '\t': 0}
	for _, line := range lines {
		for r := range counts {
			counts[r] += strings.Count(line, string(r))
		}
	}

	best := ','
	for _, r := range []rune{';', '\t'} {
		if counts[r] > counts[best] {
			best = r
		}
	}
	return best
}
