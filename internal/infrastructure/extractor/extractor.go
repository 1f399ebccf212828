package extractor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/doc2sys/internal/core/domain"
	"github.com/kirillkom/doc2sys/internal/infrastructure/ocr"
)

// ImageOCRUnavailable is returned for images when no OCR engine can run, so the pipeline keeps moving.
const ImageOCRUnavailable = "OCR functionality not available. Cannot extract text from image."

// ImageOCRDisabled is returned for images when the user has switched OCR off.
const ImageOCRDisabled = "OCR is disabled. Cannot extract text from image."

// PDFTextSource reads the embedded text layer of a PDF.
type PDFTextSource interface {
	PDFText(ctx context.Context, path string) (string, error)
}

type Extractor struct {
	engine ocr.Engine
	pdf    PDFTextSource
	logger *slog.Logger
}

func New(engine ocr.Engine, pdf PDFTextSource, logger *slog.Logger) *Extractor {
	if engine == nil {
		engine = ocr.Unavailable{}
	}
	if pdf == nil {
		pdf = NativePDF{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{engine: engine, pdf: pdf, logger: logger}
}

var imageExtensions = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "bmp": {}, "tif": {}, "tiff": {}, "gif": {},
}

// Supported reports whether the extension (without dot) has an extraction strategy.
func Supported(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch ext {
	case "txt", "md", "csv", "json", "docx", "xlsx", "pdf":
		return true
	}
	_, ok := imageExtensions[ext]
	return ok
}

func (e *Extractor) Extract(ctx context.Context, path string, opts domain.ExtractOptions) (string, error) {
	start := time.Now()
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if !Supported(ext) {
		return "", &domain.UnsupportedDocumentError{Extension: ext}
	}
	if _, err := os.Stat(path); err != nil {
		return "", &domain.ProcessingError{Operation: "open document " + filepath.Base(path), Err: err}
	}

	var (
		text   string
		err    error
		method string
	)
	switch ext {
	case "txt", "md", "csv", "json":
		method = "plaintext"
		text, err = readPlainText(path)
	case "docx":
		method = "docx"
		text, err = readDocx(path)
	case "xlsx":
		method = "spreadsheet"
		text, err = readSpreadsheet(path)
	case "pdf":
		text, method, err = e.extractPDF(ctx, path, opts)
	default:
		text, method, err = e.extractImage(ctx, path, opts)
	}
	if err != nil {
		e.logger.Error("extract.failed", "path", path, "ext", ext, "error", err)
		return "", err
	}

	e.logger.Info("extract.ok",
		"ext", ext,
		"method", method,
		"chars", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func (e *Extractor) extractPDF(ctx context.Context, path string, opts domain.ExtractOptions) (string, string, error) {
	text, err := e.pdf.PDFText(ctx, path)
	if err != nil {
		return "", "pdf-text", err
	}
	if strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text), "pdf-text", nil
	}
	if !opts.OCREnabled {
		return "", "pdf-text", nil
	}
	if !e.engine.Available() {
		e.logger.Warn("extract.pdf.ocr_unavailable", "path", path)
		return "", "pdf-text", nil
	}

	text, err = e.engine.RecognizePDF(ctx, path, opts.Languages)
	if err != nil {
		return "", "pdf-ocr", err
	}
	return text, "pdf-ocr", nil
}

func (e *Extractor) extractImage(ctx context.Context, path string, opts domain.ExtractOptions) (string, string, error) {
	if !opts.OCREnabled {
		return ImageOCRDisabled, "image-placeholder", nil
	}
	if !e.engine.Available() {
		return ImageOCRUnavailable, "image-placeholder", nil
	}
	text, err := e.engine.RecognizeImage(ctx, path, opts.Languages)
	if err != nil {
		return "", "image-ocr", err
	}
	return text, "image-ocr", nil
}
