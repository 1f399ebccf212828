package extractor

import (
	"os"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

// readDocx returns one line per body paragraph. Table rows become one line each with
// tab-separated cells.
func readDocx(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &domain.ProcessingError{Operation: "open docx", Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", &domain.ProcessingError{Operation: "open docx", Err: err}
	}
	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return "", &domain.ProcessingError{Operation: "parse docx body", Err: err}
	}

	var lines []string
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			lines = append(lines, it.String())
		case *docx.Table:
			lines = append(lines, tableLines(it)...)
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func tableLines(t *docx.Table) []string {
	lines := make([]string, 0, len(t.TableRows))
	for _, row := range t.TableRows {
		cells := make([]string, 0, len(row.TableCells))
		for _, cell := range row.TableCells {
			parts := make([]string, 0, len(cell.Paragraphs))
			for _, p := range cell.Paragraphs {
				parts = append(parts, p.String())
			}
			cells = append(cells, strings.TrimSpace(strings.Join(parts, " ")))
		}
		lines = append(lines, strings.Join(cells, "\t"))
	}
	return lines
}
