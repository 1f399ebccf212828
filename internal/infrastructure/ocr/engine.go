package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

var ErrUnavailable = errors.New("ocr engine unavailable")

type Config struct {
	Tesseract   string
	Pdftoppm    string
	Pdftotext   string
	DPI         int
	MaxPages    int
	TessdataDir string
}

func (c Config) normalize() Config {
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Pdftotext == "" {
		c.Pdftotext = "pdftotext"
	}
	// Anything below 300 DPI loses too much detail on scanned invoices.
	if c.DPI < 300 {
		c.DPI = 300
	}
	return c
}

// Engine is the OCR capability. Unavailable is the degraded implementation.
type Engine interface {
	Available() bool
	RecognizeImage(ctx context.Context, path string, languages []string) (string, error)
	RecognizePDF(ctx context.Context, path string, languages []string) (string, error)
}

// Detect returns a Tesseract engine when the binaries are installed and Unavailable otherwise.
func Detect(cfg Config, runner Runner, logger *slog.Logger) Engine {
	cfg = cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	if !HasBinary(cfg.Tesseract) {
		logger.Warn("ocr.unavailable", "binary", cfg.Tesseract)
		return Unavailable{}
	}
	return NewTesseract(cfg, runner, logger)
}

type Tesseract struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewTesseract(cfg Config, runner Runner, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	return &Tesseract{cfg: cfg.normalize(), runner: runner, logger: logger}
}

func (t *Tesseract) Available() bool { return true }

// RecognizeImage runs tesseract with an output base inside a scoped temp dir and reads <base>.txt back.
func (t *Tesseract) RecognizeImage(ctx context.Context, path string, languages []string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "doc2sys-ocr-*")
	if err != nil {
		return "", &domain.ProcessingError{Operation: "create ocr temp dir", Err: err}
	}
	defer t.removeAll(tmpDir)

	outBase := filepath.Join(tmpDir, "out")
	args := []string{path, outBase, "-l", LanguageArg(languages)}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	if _, stderr, err := t.runner.Run(ctx, t.cfg.Tesseract, args...); err != nil {
		return "", &domain.ProcessingError{Operation: "tesseract", Stderr: string(stderr), Err: err}
	}

	raw, err := os.ReadFile(outBase + ".txt")
	if err != nil {
		return "", &domain.ProcessingError{Operation: "read tesseract output", Err: err}
	}
	return strings.TrimSpace(string(raw)), nil
}

// RecognizePDF renders every page and OCRs them one by one, prefixing each page with a header.
func (t *Tesseract) RecognizePDF(ctx context.Context, path string, languages []string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "doc2sys-pages-*")
	if err != nil {
		return "", &domain.ProcessingError{Operation: "create pdf render dir", Err: err}
	}
	defer t.removeAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	if _, stderr, err := t.runner.Run(ctx, t.cfg.Pdftoppm, "-r", strconv.Itoa(t.cfg.DPI), "-png", path, prefix); err != nil {
		return "", &domain.ProcessingError{Operation: "pdftoppm", Stderr: string(stderr), Err: err}
	}

	// pdftoppm zero-pads page numbers, so lexical order is page order.
	pages, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(pages)
	if t.cfg.MaxPages > 0 && len(pages) > t.cfg.MaxPages {
		pages = pages[:t.cfg.MaxPages]
	}
	if len(pages) == 0 {
		return "", &domain.ProcessingError{Operation: "pdftoppm", Err: errors.New("no pages rendered")}
	}

	var b strings.Builder
	var failed int
	var lastErr error
	for i, page := range pages {
		text, err := t.RecognizeImage(ctx, page, languages)
		if err != nil {
			t.logger.Warn("ocr.page.failed", "page", i+1, "error", err)
			failed++
			lastErr = err
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- Page %d ---\n%s", i+1, text)
	}
	if failed == len(pages) {
		return "", lastErr
	}
	return b.String(), nil
}

func (t *Tesseract) removeAll(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		t.logger.Warn("ocr.cleanup.failed", "dir", dir, "error", err)
	}
}

// Unavailable is selected when no OCR engine is installed.
type Unavailable struct{}

func (Unavailable) Available() bool { return false }

func (Unavailable) RecognizeImage(context.Context, string, []string) (string, error) {
	return "", ErrUnavailable
}

func (Unavailable) RecognizePDF(context.Context, string, []string) (string, error) {
	return "", ErrUnavailable
}

var languageCodes = map[string]string{
	"en": "eng",
	"fr": "fra",
	"de": "deu",
	"es": "spa",
	"it": "ita",
	"pt": "por",
	"nl": "nld",
	"el": "ell",
	"ru": "rus",
}

// LanguageArg maps two-letter codes to tesseract codes and joins them with "+".
func LanguageArg(languages []string) string {
	seen := make(map[string]struct{}, len(languages))
	codes := make([]string, 0, len(languages))
	for _, lang := range languages {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" {
			continue
		}
		if mapped, ok := languageCodes[lang]; ok {
			lang = mapped
		}
		if _, ok := seen[lang]; ok {
			continue
		}
		seen[lang] = struct{}{}
		codes = append(codes, lang)
	}
	if len(codes) == 0 {
		return "eng"
	}
	return strings.Join(codes, "+")
}
