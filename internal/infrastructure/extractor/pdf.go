package extractor

import (
	"context"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

// NativePDF reads the PDF text layer in-process. It is the degraded source used when
// poppler is not installed: no layout preservation.
type NativePDF struct{}

func (NativePDF) PDFText(_ context.Context, path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", &domain.ProcessingError{Operation: "open pdf", Err: err}
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", &domain.ProcessingError{Operation: "read pdf text", Err: err}
	}
	var b strings.Builder
	if _, err := io.Copy(&b, plain); err != nil {
		return "", &domain.ProcessingError{Operation: "read pdf text", Err: err}
	}
	return b.String(), nil
}
