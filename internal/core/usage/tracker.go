package usage

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

// Tracker accumulates token usage, cost and wall-clock duration for one document lifecycle.
//
// Duration nesting is carried in the context: Time marks the context it hands to its callback,
// so timed calls made inside another timed call see a non-zero depth and do not add their
// elapsed time again. Only the outermost call contributes.
type Tracker struct {
	mu     sync.Mutex
	totals domain.Usage
	logger *slog.Logger
}

type depthKey struct {
	tracker *Tracker
}

func NewTracker(initial domain.Usage, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{totals: initial, logger: logger}
}

// Depth returns how many timed calls of this tracker enclose ctx.
func (t *Tracker) Depth(ctx context.Context) int {
	if ctx == nil {
		return 0
	}
	depth, _ := ctx.Value(depthKey{tracker: t}).(int)
	return depth
}

// Time runs fn and adds its wall-clock duration when ctx is not already inside a timed call.
func (t *Tracker) Time(ctx context.Context, fn func(context.Context) error) error {
	depth := t.Depth(ctx)
	start := time.Now()
	err := fn(context.WithValue(ctx, depthKey{tracker: t}, depth+1))
	t.AddDuration(ctx, time.Since(start).Seconds())
	return err
}

// AddDuration adds seconds to the total only at depth zero. It reports whether the value was added.
func (t *Tracker) AddDuration(ctx context.Context, seconds float64) bool {
	if depth := t.Depth(ctx); depth > 0 {
		t.logger.Debug("usage.duration.nested", "depth", depth, "seconds", seconds)
		return false
	}
	if !validNumber(seconds) {
		t.logger.Warn("usage.duration.invalid", "seconds", seconds)
		return false
	}

	t.mu.Lock()
	t.totals.DurationSeconds += seconds
	t.mu.Unlock()
	return true
}

// AddTokens folds one LLM call into the totals. A nil usage counts as zero.
// A backend-reported duration is treated like any other timed contribution.
func (t *Tracker) AddTokens(ctx context.Context, u *domain.TokenUsage, pricing domain.Pricing) {
	if u == nil {
		return
	}
	if u.InputTokens < 0 || u.OutputTokens < 0 || u.TotalTokens < 0 {
		t.logger.Warn("usage.tokens.invalid",
			"input_tokens", u.InputTokens,
			"output_tokens", u.OutputTokens,
			"total_tokens", u.TotalTokens,
		)
		return
	}

	total := u.TotalTokens
	if total == 0 {
		total = u.InputTokens + u.OutputTokens
	}
	inCost, outCost, totalCost := pricing.Cost(*u)
	if !validNumber(totalCost) {
		t.logger.Warn("usage.cost.invalid", "total_cost", totalCost)
		inCost, outCost, totalCost = 0, 0, 0
	}

	t.mu.Lock()
	t.totals.InputTokens += u.InputTokens
	t.totals.OutputTokens += u.OutputTokens
	t.totals.TotalTokens += total
	t.totals.InputCost += inCost
	t.totals.OutputCost += outCost
	t.totals.TotalCost += totalCost
	t.mu.Unlock()

	if u.DurationNS > 0 {
		t.AddDuration(ctx, float64(u.DurationNS)/float64(time.Second))
	}
}

// Reset zeroes every token, cost and duration total at once.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.totals = domain.Usage{}
	t.mu.Unlock()
}

func (t *Tracker) Snapshot() domain.Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals
}

func validNumber(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
