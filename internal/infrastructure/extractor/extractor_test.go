package extractor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fumiama/go-docx"
	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

type fakePDF struct {
	text string
	err  error
}

func (f fakePDF) PDFText(context.Context, string) (string, error) { return f.text, f.err }

type fakeEngine struct {
	available bool
	text      string
	pdfCalls  int
	langs     []string
}

func (f *fakeEngine) Available() bool { return f.available }

func (f *fakeEngine) RecognizeImage(_ context.Context, _ string, langs []string) (string, error) {
	f.langs = langs
	return f.text, nil
}

func (f *fakeEngine) RecognizePDF(_ context.Context, _ string, langs []string) (string, error) {
	f.pdfCalls++
	f.langs = langs
	return "--- Page 1 ---\n" + f.text, nil
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestExtractPlainTextFamily(t *testing.T) {
	ex := New(&fakeEngine{}, fakePDF{}, nil)
	for _, name := range []string{"a.txt", "a.md", "a.csv", "a.json"} {
		path := writeFile(t, name, []byte("\xEF\xBB\xBF  hello, world \n"))
		got, err := ex.Extract(context.Background(), path, domain.ExtractOptions{})
		if err != nil {
			t.Fatalf("Extract(%s) error = %v", name, err)
		}
		if got != "hello, world" {
			t.Fatalf("Extract(%s) = %q", name, got)
		}
	}
}

func TestExtractPlainTextLatin1Fallback(t *testing.T) {
	ex := New(&fakeEngine{}, fakePDF{}, nil)
	path := writeFile(t, "latin.txt", []byte("Caf\xe9 \xa3100"))

	got, err := ex.Extract(context.Background(), path, domain.ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "Café £100" {
		t.Fatalf("unexpected decode: %q", got)
	}
}

func TestExtractDocxJoinsParagraphs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "letter.docx")
	doc := docx.New().WithDefaultTheme()
	doc.AddParagraph().AddText("Invoice INV-7")
	doc.AddParagraph().AddText("Total\t42.00")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create docx: %v", err)
	}
	if _, err := doc.WriteTo(f); err != nil {
		t.Fatalf("write docx: %v", err)
	}
	_ = f.Close()

	got, err := New(nil, nil, nil).Extract(context.Background(), path, domain.ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "Invoice INV-7\nTotal\t42.00" {
		t.Fatalf("unexpected docx text: %q", got)
	}
}

func TestDocxTableRowsAreTabSeparated(t *testing.T) {
	doc := docx.New()
	tbl := doc.AddTable(2, 2, 0, nil)
	tbl.TableRows[0].TableCells[0].AddParagraph().AddText("Item")
	tbl.TableRows[0].TableCells[1].AddParagraph().AddText("Amount")
	tbl.TableRows[1].TableCells[0].AddParagraph().AddText("Paper")
	tbl.TableRows[1].TableCells[1].AddParagraph().AddText("12.50")

	got := tableLines(tbl)
	if diff := cmp.Diff([]string{"Item\tAmount", "Paper\t12.50"}, got); diff != "" {
		t.Fatalf("table lines mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractBrokenDocxIsProcessingError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.docx")
	if err := os.WriteFile(path, []byte("not a zip"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, err := New(nil, nil, nil).Extract(context.Background(), path, domain.ExtractOptions{})
	var pe *domain.ProcessingError
	if !errors.As(err, &pe) || pe.Operation != "parse docx body" {
		t.Fatalf("expected docx processing error, got %v", err)
	}
}

func TestExtractSpreadsheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.xlsx")
	f := excelize.NewFile()
	_ = f.SetCellValue("Sheet1", "A1", "item")
	_ = f.SetCellValue("Sheet1", "B1", "amount")
	_ = f.SetCellValue("Sheet1", "A2", "paper")
	_ = f.SetCellValue("Sheet1", "B2", "12.5")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save xlsx: %v", err)
	}
	_ = f.Close()

	got, err := New(nil, nil, nil).Extract(context.Background(), path, domain.ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "Sheet: Sheet1\nitem, amount\npaper, 12.5" {
		t.Fatalf("unexpected spreadsheet text: %q", got)
	}
}

func TestExtractPDFWithoutTextAndOCRDisabledReturnsEmpty(t *testing.T) {
	engine := &fakeEngine{available: true, text: "ocr"}
	ex := New(engine, fakePDF{text: "  \n\f "}, nil)
	path := writeFile(t, "scan.pdf", []byte("%PDF-1.4"))

	got, err := ex.Extract(context.Background(), path, domain.ExtractOptions{OCREnabled: false})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty text, got %q", got)
	}
	if engine.pdfCalls != 0 {
		t.Fatalf("expected OCR not to run")
	}
}

func TestExtractPDFFallsBackToOCR(t *testing.T) {
	engine := &fakeEngine{available: true, text: "scanned total 10"}
	ex := New(engine, fakePDF{text: ""}, nil)
	path := writeFile(t, "scan.pdf", []byte("%PDF-1.4"))

	got, err := ex.Extract(context.Background(), path, domain.ExtractOptions{OCREnabled: true, Languages: []string{"en", "de"}})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "--- Page 1 ---\nscanned total 10" {
		t.Fatalf("unexpected OCR text: %q", got)
	}
	if len(engine.langs) != 2 {
		t.Fatalf("expected languages to be forwarded, got %v", engine.langs)
	}
}

func TestExtractPDFPrefersTextLayer(t *testing.T) {
	engine := &fakeEngine{available: true}
	ex := New(engine, fakePDF{text: "  Invoice 1 \n"}, nil)
	path := writeFile(t, "doc.pdf", []byte("%PDF-1.4"))

	got, err := ex.Extract(context.Background(), path, domain.ExtractOptions{OCREnabled: true})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "Invoice 1" || engine.pdfCalls != 0 {
		t.Fatalf("unexpected result %q, ocr calls %d", got, engine.pdfCalls)
	}
}

func TestExtractPDFToolFailure(t *testing.T) {
	toolErr := &domain.ProcessingError{Operation: "pdftotext", Stderr: "Syntax Error", Err: errors.New("exit status 1")}
	ex := New(nil, fakePDF{err: toolErr}, nil)
	path := writeFile(t, "bad.pdf", []byte("nope"))

	_, err := ex.Extract(context.Background(), path, domain.ExtractOptions{})
	if !domain.IsKind(err, domain.ErrProcessing) {
		t.Fatalf("expected processing error, got %v", err)
	}
}

func TestExtractImagePlaceholders(t *testing.T) {
	path := writeFile(t, "photo.JPG", []byte("jpeg"))

	got, err := New(nil, nil, nil).Extract(context.Background(), path, domain.ExtractOptions{OCREnabled: true})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != ImageOCRUnavailable {
		t.Fatalf("expected unavailable placeholder, got %q", got)
	}

	got, err = New(&fakeEngine{available: true}, nil, nil).Extract(context.Background(), path, domain.ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != ImageOCRDisabled {
		t.Fatalf("expected disabled placeholder, got %q", got)
	}
}

func TestExtractImageRunsOCR(t *testing.T) {
	path := writeFile(t, "receipt.png", []byte("png"))
	engine := &fakeEngine{available: true, text: "RECEIPT 12"}

	got, err := New(engine, nil, nil).Extract(context.Background(), path, domain.ExtractOptions{OCREnabled: true})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "RECEIPT 12" {
		t.Fatalf("unexpected OCR text: %q", got)
	}
}

func TestExtractUnsupportedExtension(t *testing.T) {
	path := writeFile(t, "archive.rar", []byte("rar"))

	_, err := New(nil, nil, nil).Extract(context.Background(), path, domain.ExtractOptions{})
	var unsupported *domain.UnsupportedDocumentError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedDocumentError, got %v", err)
	}
	if unsupported.Extension != "rar" {
		t.Fatalf("unexpected extension: %q", unsupported.Extension)
	}
}

func TestExtractMissingFile(t *testing.T) {
	_, err := New(nil, nil, nil).Extract(context.Background(), filepath.Join(t.TempDir(), "gone.txt"), domain.ExtractOptions{})
	var perr *domain.ProcessingError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProcessingError, got %v", err)
	}
}
