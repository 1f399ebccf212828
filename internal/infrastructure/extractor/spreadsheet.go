package extractor

import (
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

// readSpreadsheet renders every sheet as "Sheet: <name>" followed by comma separated rows.
func readSpreadsheet(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", &domain.ProcessingError{Operation: "open spreadsheet", Err: err}
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", &domain.ProcessingError{Operation: "read sheet " + sheet, Err: err}
		}
		if len(rows) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Sheet: ")
		b.WriteString(sheet)
		for _, row := range rows {
			b.WriteByte('\n')
			b.WriteString(strings.Join(row, ", "))
		}
	}
	return strings.TrimSpace(b.String()), nil
}
