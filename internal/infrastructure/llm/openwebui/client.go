package openwebui

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/doc2sys/internal/core/domain"
	"github.com/kirillkom/doc2sys/internal/infrastructure/resilience"
)

const (
	defaultChatPath    = "/api/chat/completions"
	defaultFilesPath   = "/api/v1/files/"
	defaultTemperature = 0.1
	defaultTimeout     = 600 * time.Second
	defaultPromptChars = 10000
)

type Config struct {
	BaseURL        string
	Model          string
	APIKey         string
	ChatPath       string
	FilesPath      string
	Temperature    float64
	Timeout        time.Duration
	MaxPromptChars int
}

func (c Config) normalize() Config {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.ChatPath == "" {
		c.ChatPath = defaultChatPath
	}
	if c.FilesPath == "" {
		c.FilesPath = defaultFilesPath
	}
	if c.Temperature <= 0 {
		c.Temperature = defaultTemperature
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxPromptChars <= 0 {
		c.MaxPromptChars = defaultPromptChars
	}
	return c
}

// Client talks to an OpenAI-compatible chat-completions backend (Open WebUI, Ollama).
type Client struct {
	cfg        Config
	httpClient *http.Client
	executor   *resilience.Executor
	logger     *slog.Logger
}

func New(cfg Config, executor *resilience.Executor, logger *slog.Logger) *Client {
	cfg = cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		executor:   executor,
		logger:     logger,
	}
}

// ClientFor makes a single Client usable where a per-user source is expected. Overrides are ignored.
func (c *Client) ClientFor(domain.LLMSettings) *Client {
	return c
}

// Configured reports whether an endpoint and model are set.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.BaseURL != "" && c.cfg.Model != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type fileAttachment struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type chatRequest struct {
	Model          string           `json:"model"`
	Temperature    float64          `json:"temperature"`
	Messages       []chatMessage    `json:"messages"`
	ResponseFormat *responseFormat  `json:"response_format,omitempty"`
	Files          []fileAttachment `json:"files,omitempty"`
	Stream         bool             `json:"stream"`
}

type usagePayload struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
	TotalDurationNS  int64 `json:"total_duration_ns"`
	TotalDuration    int64 `json:"total_duration"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	// Ollama's native /api/chat shape.
	Message         *chatMessage  `json:"message"`
	Usage           *usagePayload `json:"usage"`
	PromptEvalCount int64         `json:"prompt_eval_count"`
	EvalCount       int64         `json:"eval_count"`
	TotalDuration   int64         `json:"total_duration"`
}

func (r chatResponse) content() string {
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.Content
	}
	if r.Message != nil {
		return r.Message.Content
	}
	return ""
}

func (r chatResponse) tokenUsage() *domain.TokenUsage {
	u := &domain.TokenUsage{}
	if r.Usage != nil {
		u.InputTokens = r.Usage.PromptTokens
		u.OutputTokens = r.Usage.CompletionTokens
		u.TotalTokens = r.Usage.TotalTokens
		u.DurationNS = r.Usage.TotalDurationNS
		if u.DurationNS == 0 {
			u.DurationNS = r.Usage.TotalDuration
		}
	}
	if u.InputTokens == 0 && u.OutputTokens == 0 {
		u.InputTokens = r.PromptEvalCount
		u.OutputTokens = r.EvalCount
	}
	if u.DurationNS == 0 {
		u.DurationNS = r.TotalDuration
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	if *u == (domain.TokenUsage{}) {
		return nil
	}
	return u
}

// ChatJSON sends one system+user exchange asking for a JSON object. When filePath is set the
// file is uploaded (once per session) and attached instead of relying on inline text.
func (c *Client) ChatJSON(ctx context.Context, operation, system, user, filePath string) (string, *domain.TokenUsage, error) {
	if !c.Configured() {
		return "", nil, &domain.LLMProcessingError{Operation: operation, Err: domain.ErrLLMNotConfigured}
	}
	start := time.Now()

	req := chatRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	if filePath != "" {
		fileID, err := c.fileRef(ctx, filePath)
		if err != nil {
			return "", nil, err
		}
		req.Files = []fileAttachment{{Type: "file", ID: fileID}}
	}

	c.logger.Info("llm."+operation+".start", "model", c.cfg.Model, "prompt_chars", len(user), "with_file", filePath != "")
	resp, err := resilience.Do(ctx, c.executor, "llm."+operation, func(callCtx context.Context) (chatResponse, error) {
		var out chatResponse
		err := c.postJSON(callCtx, c.cfg.ChatPath, req, &out, operation)
		return out, err
	}, resilience.ClassifyHTTPError)
	if err != nil {
		c.logger.Error("llm."+operation+".http_error", "elapsed_ms", time.Since(start).Milliseconds(), "error", err)
		return "", nil, toLLMError(operation, err)
	}

	usage := resp.tokenUsage()
	c.logger.Info("llm."+operation+".ok",
		"elapsed_ms", time.Since(start).Milliseconds(),
		"input_tokens", tokens(usage, true),
		"output_tokens", tokens(usage, false),
	)
	return strings.TrimSpace(resp.content()), usage, nil
}

// Truncate cuts text to the configured prompt budget on a rune boundary.
func (c *Client) Truncate(text string) string {
	limit := c.cfg.MaxPromptChars
	if limit <= 0 {
		return text
	}
	count := 0
	for i := range text {
		if count == limit {
			return text[:i]
		}
		count++
	}
	return text
}

func toLLMError(operation string, err error) error {
	status := 0
	var statusErr *resilience.HTTPStatusError
	if errors.As(err, &statusErr) {
		status = statusErr.StatusCode
	}
	return &domain.LLMProcessingError{
		Operation:  operation,
		StatusCode: status,
		Err:        resilience.WrapTemporary("llm "+operation, err, resilience.ClassifyHTTPError),
	}
}

func tokens(u *domain.TokenUsage, input bool) int64 {
	if u == nil {
		return 0
	}
	if input {
		return u.InputTokens
	}
	return u.OutputTokens
}
