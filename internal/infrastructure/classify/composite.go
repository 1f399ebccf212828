package classify

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/kirillkom/doc2sys/internal/core/domain"
	"github.com/kirillkom/doc2sys/internal/core/ports"
)

const (
	// MinMLConfidence is the floor below which a model prediction becomes "unknown".
	MinMLConfidence = 0.3
	// DefaultMLConfidence stands in when the model cannot produce a usable probability.
	DefaultMLConfidence = 0.8
)

// Composite tries the LLM classifier first and falls back to keyword scoring blended with
// the trained model when the LLM is unavailable or fails.
type Composite struct {
	primary ports.DocumentClassifier
	trainer *Trainer
	logger  *slog.Logger
}

func NewComposite(primary ports.DocumentClassifier, trainer *Trainer, logger *slog.Logger) *Composite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composite{primary: primary, trainer: trainer, logger: logger}
}

func (c *Composite) Classify(ctx context.Context, in domain.ClassifyInput) (domain.ClassificationResult, error) {
	if c.primary != nil {
		res, err := c.primary.Classify(ctx, in)
		if err == nil {
			return res, nil
		}
		switch {
		case domain.IsKind(err, domain.ErrInvalidInput):
			return domain.Unknown(0), err
		case errors.Is(err, domain.ErrLLMNotConfigured):
			c.logger.Debug("classify.llm_skipped", "fallback", "keyword_ml")
		default:
			c.logger.Warn("classify.llm_failed", "error", err, "fallback", "keyword_ml")
		}
	}
	if strings.TrimSpace(in.Text) == "" {
		return domain.Unknown(0), nil
	}
	return c.Fallback(ctx, in.Text, in.Types), nil
}

// Fallback is the deterministic path: keyword scoring, optionally blended with the trained model.
// The keyword match wins whenever its score is at least the model's confidence.
func (c *Composite) Fallback(ctx context.Context, text string, types []domain.DocumentType) domain.ClassificationResult {
	keyword, keywordOK := BestKeywordMatch(text, types)

	model := c.trainer.Model(ctx)
	if model == nil {
		return keyword
	}
	ml, ok := predict(model, text, types)
	if !ok {
		return keyword
	}
	if keywordOK && keyword.Confidence >= ml.Confidence {
		return keyword
	}
	if ml.Confidence < MinMLConfidence {
		return domain.Unknown(ml.Confidence)
	}
	return ml
}

func predict(model *Model, text string, types []domain.DocumentType) (domain.ClassificationResult, bool) {
	label, prob, ok := model.Predict(text)
	if !ok {
		return domain.ClassificationResult{}, false
	}
	t, found := domain.FindType(types, label)
	if !found {
		return domain.Unknown(prob), true
	}
	return domain.ClassificationResult{
		DocumentType:  t.Name,
		Confidence:    prob,
		TargetDoctype: t.TargetDoctype,
		Reasoning:     "naive bayes",
	}, true
}
