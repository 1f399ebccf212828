package fields

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kirillkom/doc2sys/internal/core/domain"
	"github.com/kirillkom/doc2sys/internal/core/ports"
)

// Composite runs the LLM extractor and falls back to the regex path on any failure.
// Token usage from a failed LLM call is still reported.
type Composite struct {
	primary  ports.FieldExtractor
	fallback ports.FieldExtractor
	logger   *slog.Logger
}

func NewComposite(primary, fallback ports.FieldExtractor, logger *slog.Logger) *Composite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composite{primary: primary, fallback: fallback, logger: logger}
}

func (c *Composite) ExtractFields(ctx context.Context, in domain.ExtractInput) (domain.ExtractionResult, error) {
	var spent *domain.TokenUsage
	if c.primary != nil {
		res, err := c.primary.ExtractFields(ctx, in)
		if err == nil {
			return res, nil
		}
		spent = res.Usage
		if errors.Is(err, domain.ErrLLMNotConfigured) {
			c.logger.Debug("fields.llm_skipped", "document_type", in.Type.Name, "fallback", "regex")
		} else {
			c.logger.Warn("fields.llm_failed", "error", err, "document_type", in.Type.Name, "fallback", "regex")
		}
	}
	if c.fallback == nil {
		return domain.ExtractionResult{Data: map[string]any{}, Usage: spent}, nil
	}
	res, err := c.fallback.ExtractFields(ctx, in)
	if err != nil {
		return domain.ExtractionResult{Data: map[string]any{}, Usage: spent}, err
	}
	if res.Usage == nil {
		res.Usage = spent
	}
	return res, nil
}
