package mcpadapter

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

type analyzerFake struct {
	userID string
	err    error
}

func (a *analyzerFake) ExtractFile(_ context.Context, userID, path string) (string, error) {
	a.userID = userID
	if a.err != nil {
		return "", a.err
	}
	return "text of " + path, nil
}

func (a *analyzerFake) ClassifyText(_ context.Context, userID, _ string) (domain.ClassificationResult, error) {
	a.userID = userID
	if a.err != nil {
		return domain.ClassificationResult{}, a.err
	}
	return domain.ClassificationResult{DocumentType: "Invoice", Confidence: 0.8, TargetDoctype: "Purchase Invoice"}, nil
}

func (a *analyzerFake) ExtractFieldsFromText(_ context.Context, _ string, _ string, docType string) (domain.ExtractionResult, error) {
	if a.err != nil {
		return domain.ExtractionResult{}, a.err
	}
	return domain.ExtractionResult{Data: map[string]any{"invoice_number": "INV-1", "type": docType}}, nil
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	text, ok := mcp.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func TestClassifyTextTool(t *testing.T) {
	analyzer := &analyzerFake{}
	s := NewServer(analyzer, "mcp-user", nil)

	res, err := s.handleClassifyText(context.Background(), callRequest("classify_text", map[string]any{"text": "INVOICE"}))
	if err != nil {
		t.Fatalf("handleClassifyText() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	var cls domain.ClassificationResult
	if err := json.Unmarshal([]byte(resultText(t, res)), &cls); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if cls.DocumentType != "Invoice" || cls.TargetDoctype != "Purchase Invoice" {
		t.Fatalf("unexpected classification %+v", cls)
	}
	if analyzer.userID != "mcp-user" {
		t.Fatalf("user id = %q", analyzer.userID)
	}
}

func TestToolsRejectMissingArguments(t *testing.T) {
	s := NewServer(&analyzerFake{}, "", nil)

	res, err := s.handleExtractFields(context.Background(), callRequest("extract_fields", map[string]any{"text": "x"}))
	if err != nil {
		t.Fatalf("handleExtractFields() error = %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "document_type") {
		t.Fatalf("expected missing argument error, got %+v", res)
	}
}

func TestToolErrorsStayInsideResult(t *testing.T) {
	s := NewServer(&analyzerFake{err: &domain.UnsupportedDocumentError{Extension: "xyz"}}, "", nil)

	res, err := s.handleExtractText(context.Background(), callRequest("extract_text", map[string]any{"path": "/tmp/a.xyz"}))
	if err != nil {
		t.Fatalf("handleExtractText() error = %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), ".xyz") {
		t.Fatalf("expected unsupported document error, got %+v", res)
	}
}

func TestExtractTools(t *testing.T) {
	s := NewServer(&analyzerFake{}, "", nil)

	res, err := s.handleExtractText(context.Background(), callRequest("extract_text", map[string]any{"path": "/tmp/a.pdf"}))
	if err != nil || res.IsError {
		t.Fatalf("handleExtractText() = %+v, %v", res, err)
	}
	if got := resultText(t, res); got != "text of /tmp/a.pdf" {
		t.Fatalf("text = %q", got)
	}

	res, err = s.handleExtractFields(context.Background(), callRequest("extract_fields", map[string]any{"text": "x", "document_type": "Invoice"}))
	if err != nil || res.IsError {
		t.Fatalf("handleExtractFields() = %+v, %v", res, err)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(resultText(t, res)), &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data["invoice_number"] != "INV-1" {
		t.Fatalf("unexpected data %+v", data)
	}
}
