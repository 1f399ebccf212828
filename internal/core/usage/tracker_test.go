package usage

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

func TestTrackerAddTokensSumsSequentialCalls(t *testing.T) {
	tracker := NewTracker(domain.Usage{}, nil)
	ctx := context.Background()

	tracker.AddTokens(ctx, &domain.TokenUsage{InputTokens: 10, OutputTokens: 5}, domain.Pricing{})
	tracker.AddTokens(ctx, &domain.TokenUsage{InputTokens: 7, OutputTokens: 3}, domain.Pricing{})

	got := tracker.Snapshot()
	if got.InputTokens != 17 || got.OutputTokens != 8 || got.TotalTokens != 25 {
		t.Fatalf("unexpected totals: %+v", got)
	}
}

func TestTrackerAddTokensComputesCostPerMillion(t *testing.T) {
	tracker := NewTracker(domain.Usage{}, nil)
	pricing := domain.Pricing{InputPerMillion: 2, OutputPerMillion: 8}

	tracker.AddTokens(context.Background(), &domain.TokenUsage{
		InputTokens:  500_000,
		OutputTokens: 250_000,
		TotalTokens:  750_000,
	}, pricing)

	got := tracker.Snapshot()
	if got.InputCost != 1 || got.OutputCost != 2 || got.TotalCost != 3 {
		t.Fatalf("unexpected cost: %+v", got)
	}
}

func TestTrackerAddTokensIgnoresNilAndNegative(t *testing.T) {
	tracker := NewTracker(domain.Usage{InputTokens: 3, TotalTokens: 3}, nil)
	ctx := context.Background()

	tracker.AddTokens(ctx, nil, domain.Pricing{})
	tracker.AddTokens(ctx, &domain.TokenUsage{InputTokens: -4}, domain.Pricing{})

	got := tracker.Snapshot()
	if got.InputTokens != 3 || got.TotalTokens != 3 {
		t.Fatalf("expected totals to be unchanged, got %+v", got)
	}
}

func TestTrackerTimeDoesNotDoubleCountNestedCalls(t *testing.T) {
	tracker := NewTracker(domain.Usage{}, nil)
	step := 20 * time.Millisecond

	start := time.Now()
	err := tracker.Time(context.Background(), func(ctx context.Context) error {
		for i := 0; i < 2; i++ {
			if err := tracker.Time(ctx, func(context.Context) error {
				time.Sleep(step)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	wall := time.Since(start).Seconds()
	if err != nil {
		t.Fatalf("Time() error = %v", err)
	}

	got := tracker.Snapshot().DurationSeconds
	if got < (2 * step).Seconds() {
		t.Fatalf("expected at least the nested sleep time, got %f", got)
	}
	if got > wall {
		t.Fatalf("expected total %f to not exceed root wall time %f", got, wall)
	}
}

func TestTrackerBackendDurationOnlyCountsAtRoot(t *testing.T) {
	tracker := NewTracker(domain.Usage{}, nil)
	reported := &domain.TokenUsage{InputTokens: 1, OutputTokens: 1, DurationNS: int64(2 * time.Second)}

	tracker.AddTokens(context.Background(), reported, domain.Pricing{})
	if got := tracker.Snapshot().DurationSeconds; got != 2 {
		t.Fatalf("expected root backend duration to be added, got %f", got)
	}

	_ = tracker.Time(context.Background(), func(ctx context.Context) error {
		tracker.AddTokens(ctx, reported, domain.Pricing{})
		return nil
	})
	if got := tracker.Snapshot().DurationSeconds; got >= 4 {
		t.Fatalf("expected nested backend duration to be suppressed, got %f", got)
	}
}

func TestTrackerDepthIsScopedPerTracker(t *testing.T) {
	outer := NewTracker(domain.Usage{}, nil)
	inner := NewTracker(domain.Usage{}, nil)

	_ = outer.Time(context.Background(), func(ctx context.Context) error {
		if outer.Depth(ctx) != 1 {
			t.Fatalf("expected outer depth 1, got %d", outer.Depth(ctx))
		}
		if inner.Depth(ctx) != 0 {
			t.Fatalf("expected inner depth 0, got %d", inner.Depth(ctx))
		}
		return nil
	})
}

func TestTrackerReset(t *testing.T) {
	tracker := NewTracker(domain.Usage{
		InputTokens:     1,
		OutputTokens:    2,
		TotalTokens:     3,
		InputCost:       0.1,
		OutputCost:      0.2,
		TotalCost:       0.3,
		DurationSeconds: 4,
	}, nil)

	tracker.Reset()
	if got := tracker.Snapshot(); !got.IsZero() {
		t.Fatalf("expected zero usage after reset, got %+v", got)
	}
}
