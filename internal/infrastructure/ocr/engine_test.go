package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

type fakeRunner struct {
	calls     [][]string
	pages     int
	pageText  func(path string) string
	failTool  string
	stderr    string
	renderDir string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if name == f.failTool {
		return nil, []byte(f.stderr), errors.New("exit status 1")
	}
	switch name {
	case "pdftoppm":
		prefix := args[len(args)-1]
		f.renderDir = filepath.Dir(prefix)
		for i := 1; i <= f.pages; i++ {
			page := prefix + "-" + string(rune('0'+i)) + ".png"
			if err := os.WriteFile(page, []byte("png"), 0o644); err != nil {
				return nil, nil, err
			}
		}
	case "tesseract":
		text := "recognized"
		if f.pageText != nil {
			text = f.pageText(args[0])
		}
		if err := os.WriteFile(args[1]+".txt", []byte(text+"\n"), 0o644); err != nil {
			return nil, nil, err
		}
	case "pdftotext":
		return []byte("layout text"), nil, nil
	}
	return nil, nil, nil
}

func TestTesseractRecognizeImageJoinsLanguages(t *testing.T) {
	runner := &fakeRunner{}
	engine := NewTesseract(Config{}, runner, nil)

	text, err := engine.RecognizeImage(context.Background(), "/tmp/scan.png", []string{"en", "fr", "deu"})
	if err != nil {
		t.Fatalf("RecognizeImage() error = %v", err)
	}
	if text != "recognized" {
		t.Fatalf("unexpected text: %q", text)
	}
	args := runner.calls[0]
	if args[0] != "tesseract" || args[1] != "/tmp/scan.png" {
		t.Fatalf("unexpected command: %v", args)
	}
	if args[3] != "-l" || args[4] != "eng+fra+deu" {
		t.Fatalf("expected joined languages, got %v", args)
	}
	if _, err := os.Stat(filepath.Dir(args[2])); !os.IsNotExist(err) {
		t.Fatalf("expected ocr temp dir to be removed, stat err = %v", err)
	}
}

func TestTesseractRecognizeImageFailureCarriesStderr(t *testing.T) {
	runner := &fakeRunner{failTool: "tesseract", stderr: "Error opening data file"}
	engine := NewTesseract(Config{}, runner, nil)

	_, err := engine.RecognizeImage(context.Background(), "/tmp/scan.png", nil)
	var perr *domain.ProcessingError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProcessingError, got %v", err)
	}
	if !strings.Contains(perr.Error(), "Error opening data file") {
		t.Fatalf("expected stderr in error, got %q", perr.Error())
	}
	if !domain.IsKind(err, domain.ErrProcessing) {
		t.Fatalf("expected processing kind")
	}
}

func TestTesseractRecognizePDFAddsPageHeaders(t *testing.T) {
	runner := &fakeRunner{
		pages: 2,
		pageText: func(path string) string {
			return "text of " + filepath.Base(path)
		},
	}
	engine := NewTesseract(Config{DPI: 150}, runner, nil)

	text, err := engine.RecognizePDF(context.Background(), "/tmp/scan.pdf", []string{"en"})
	if err != nil {
		t.Fatalf("RecognizePDF() error = %v", err)
	}
	want := "--- Page 1 ---\ntext of page-1.png\n\n--- Page 2 ---\ntext of page-2.png"
	if text != want {
		t.Fatalf("unexpected text:\n%s", text)
	}

	render := runner.calls[0]
	if render[0] != "pdftoppm" || render[1] != "-r" || render[2] != "300" {
		t.Fatalf("expected at least 300 DPI rendering, got %v", render)
	}
	if _, err := os.Stat(runner.renderDir); !os.IsNotExist(err) {
		t.Fatalf("expected render dir to be removed, stat err = %v", err)
	}
}

func TestTesseractRecognizePDFNoPages(t *testing.T) {
	engine := NewTesseract(Config{}, &fakeRunner{}, nil)

	if _, err := engine.RecognizePDF(context.Background(), "/tmp/scan.pdf", nil); !domain.IsKind(err, domain.ErrProcessing) {
		t.Fatalf("expected processing error, got %v", err)
	}
}

func TestPopplerPDFText(t *testing.T) {
	runner := &fakeRunner{}
	poppler := NewPoppler(Config{}, runner, nil)

	text, err := poppler.PDFText(context.Background(), "/tmp/a.pdf")
	if err != nil {
		t.Fatalf("PDFText() error = %v", err)
	}
	if text != "layout text" {
		t.Fatalf("unexpected text: %q", text)
	}
	got := strings.Join(runner.calls[0], " ")
	if got != "pdftotext -layout -enc UTF-8 -eol unix /tmp/a.pdf -" {
		t.Fatalf("unexpected command: %s", got)
	}
}

func TestUnavailableEngine(t *testing.T) {
	var engine Engine = Unavailable{}
	if engine.Available() {
		t.Fatalf("expected unavailable")
	}
	if _, err := engine.RecognizeImage(context.Background(), "x.png", nil); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestLanguageArg(t *testing.T) {
	cases := []struct {
		in   []string
		want string
	}{
		{in: nil, want: "eng"},
		{in: []string{" ", ""}, want: "eng"},
		{in: []string{"en", "el", "EN"}, want: "eng+ell"},
		{in: []string{"es", "it", "pt"}, want: "spa+ita+por"},
	}
	for _, tc := range cases {
		if got := LanguageArg(tc.in); got != tc.want {
			t.Fatalf("LanguageArg(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
