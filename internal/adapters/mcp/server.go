package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/doc2sys/internal/core/ports"
)

const (
	serverName    = "doc2sys"
	serverVersion = "1.0.0"
)

// Server exposes the analysis components as MCP tools.
type Server struct {
	analyzer ports.TextAnalyzer
	userID   string
	logger   *slog.Logger
	mcp      *server.MCPServer
}

// NewServer registers extract_text, classify_text and extract_fields.
// userID selects whose settings (document types, OCR languages) the tools run with.
func NewServer(analyzer ports.TextAnalyzer, userID string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		analyzer: analyzer,
		userID:   userID,
		logger:   logger,
		mcp: server.NewMCPServer(serverName, serverVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("extract_text",
		mcp.WithDescription("Extract raw text from a local document (PDF, image, DOCX, XLSX, text). Uses OCR for scans when available."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the file to read")),
	), s.handleExtractText)

	s.mcp.AddTool(mcp.NewTool("classify_text",
		mcp.WithDescription("Classify document text into one of the configured document types, or 'unknown'."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Document text")),
	), s.handleClassifyText)

	s.mcp.AddTool(mcp.NewTool("extract_fields",
		mcp.WithDescription("Extract structured fields from document text for a known document type."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Document text")),
		mcp.WithString("document_type", mcp.Required(), mcp.Description("Configured document type name, e.g. Invoice")),
	), s.handleExtractFields)
}

// MCPServer returns the underlying server, e.g. for a non-stdio transport.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio blocks serving JSON-RPC on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleExtractText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := s.analyzer.ExtractFile(ctx, s.userID, path)
	if err != nil {
		return s.toolError("extract_text", err), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleClassifyText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.analyzer.ClassifyText(ctx, s.userID, text)
	if err != nil {
		return s.toolError("classify_text", err), nil
	}
	return jsonResult(res)
}

func (s *Server) handleExtractFields(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	docType, err := req.RequireString("document_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.analyzer.ExtractFieldsFromText(ctx, s.userID, text, docType)
	if err != nil {
		return s.toolError("extract_fields", err), nil
	}
	return jsonResult(res.Data)
}

// toolError reports failures inside the tool result so the client model can react to them.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.logger.Warn("mcp.tool_failed", "tool", tool, "error", err)
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", tool, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
