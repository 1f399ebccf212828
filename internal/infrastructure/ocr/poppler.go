package ocr

import (
	"context"
	"log/slog"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

// Poppler reads the text layer of a PDF with pdftotext.
type Poppler struct {
	cfg    Config
	runner Runner
}

func NewPoppler(cfg Config, runner Runner, logger *slog.Logger) *Poppler {
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	return &Poppler{cfg: cfg.normalize(), runner: runner}
}

func (p *Poppler) PDFText(ctx context.Context, path string) (string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, stderr, err := p.runner.Run(ctx, p.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", &domain.ProcessingError{Operation: "pdftotext", Stderr: string(stderr), Err: err}
	}
	return string(out), nil
}
