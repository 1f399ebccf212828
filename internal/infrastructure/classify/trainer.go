package classify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

const (
	MinTrainingSamples = 5
	defaultMaxSamples  = 5000
	defaultRetrainTTL  = 10 * time.Minute
)

// SampleSource lists previously classified documents.
type SampleSource interface {
	ListLabeledSamples(ctx context.Context, limit int) ([]domain.LabeledSample, error)
}

// Trainer lazily trains the naive Bayes model and retrains it once the cached model is older than the TTL.
type Trainer struct {
	source     SampleSource
	ttl        time.Duration
	maxSamples int
	now        func() time.Time
	logger     *slog.Logger

	mu        sync.Mutex
	model     *Model
	trainedAt time.Time
}

func NewTrainer(source SampleSource, ttl time.Duration, logger *slog.Logger) *Trainer {
	if ttl <= 0 {
		ttl = defaultRetrainTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{
		source:     source,
		ttl:        ttl,
		maxSamples: defaultMaxSamples,
		now:        time.Now,
		logger:     logger,
	}
}

// Model returns nil when fewer than MinTrainingSamples labeled documents exist.
func (t *Trainer) Model(ctx context.Context) *Model {
	if t == nil || t.source == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.trainedAt.IsZero() && t.now().Sub(t.trainedAt) < t.ttl {
		return t.model
	}

	samples, err := t.source.ListLabeledSamples(ctx, t.maxSamples)
	if err != nil {
		t.logger.Warn("classify.train.samples_failed", "error", err)
		return t.model
	}
	t.trainedAt = t.now()

	model := Train(samples)
	if model.SampleCount() < MinTrainingSamples {
		t.logger.Info("classify.train.insufficient", "samples", model.SampleCount())
		t.model = nil
		return nil
	}
	t.logger.Info("classify.train.ok", "samples", model.SampleCount(), "labels", len(model.Labels()))
	t.model = model
	return model
}

// Invalidate forces a retrain on the next call.
func (t *Trainer) Invalidate() {
	t.mu.Lock()
	t.trainedAt = time.Time{}
	t.mu.Unlock()
}
