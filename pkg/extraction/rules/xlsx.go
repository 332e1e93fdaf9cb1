package rules

import (
	"bytes"

	"github.com/xuri/excelize/v2"

	"github.com/aliuyar1234/orderflow/internal/apperrors"
	"github.com/aliuyar1234/orderflow/pkg/domain"
)

// XLSXExtractorVersion tags outputs of the spreadsheet rule extractor.
const XLSXExtractorVersion = "xlsx_rule_v1"

// ExtractXLSX parses the first non-empty sheet of a workbook into
// canonical output.
func ExtractXLSX(data []byte) (*domain.CanonicalOutput, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInvalidFile, "workbook open failed")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperrors.New(apperrors.ErrorTypeInvalidFile, "workbook has no sheets")
	}

	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeInvalidFile, "sheet read failed").WithDetails(sheet)
		}
		if len(rows) == 0 {
			continue
		}
		out := assembleFromRows(rows, XLSXExtractorVersion)
		if out.HasLines() || !isAllEmpty(rows) {
			return out, nil
		}
	}

	return &domain.CanonicalOutput{ExtractorVersion: XLSXExtractorVersion}, nil
}

func isAllEmpty(rows [][]string) bool {
	for _, row := range rows {
		if !isEmptyRow(row) {
			return false
		}
	}
	return true
}
