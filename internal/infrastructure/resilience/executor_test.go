package resilience

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

func fastRetryConfig(attempts int) Config {
	return Config{
		RetryMaxAttempts:    attempts,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}
}

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(fastRetryConfig(3), nil)

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "llm.chat", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{Retryable: errors.Is(err, errTemp), RecordFailure: true}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(fastRetryConfig(3), nil)

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "llm.chat", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	}, nil)

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "connector.erpnext", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "connector.erpnext", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if !IsCircuitOpen(WrapTemporary("connector sync", err, classifier)) {
		t.Fatalf("expected wrapped error to keep circuit state")
	}
}

func TestDoReturnsValue(t *testing.T) {
	exec := NewExecutor(fastRetryConfig(2), nil)

	calls := 0
	got, err := Do(context.Background(), exec, "llm.upload", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &HTTPStatusError{StatusCode: http.StatusServiceUnavailable, Status: "503 Service Unavailable"}
		}
		return "file-1", nil
	}, ClassifyHTTPError)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "file-1" || calls != 2 {
		t.Fatalf("unexpected result %q after %d calls", got, calls)
	}

	got, err = Do(context.Background(), nil, "direct", func(context.Context) (string, error) {
		return "direct", nil
	}, nil)
	if err != nil || got != "direct" {
		t.Fatalf("expected nil executor to run callback, got %q, %v", got, err)
	}
}

func TestClassifyHTTPError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "bad gateway", err: &HTTPStatusError{StatusCode: http.StatusBadGateway}, retryable: true},
		{name: "throttled", err: &HTTPStatusError{StatusCode: http.StatusTooManyRequests}, retryable: true},
		{name: "unauthorized", err: &HTTPStatusError{StatusCode: http.StatusUnauthorized}, retryable: false},
		{name: "canceled", err: context.Canceled, retryable: false},
		{name: "plain", err: errors.New("boom"), retryable: false},
	}
	for _, tc := range cases {
		if got := ClassifyHTTPError(tc.err).Retryable; got != tc.retryable {
			t.Fatalf("%s: retryable = %v, want %v", tc.name, got, tc.retryable)
		}
	}
}

func TestWrapTemporaryMarksRetryableErrors(t *testing.T) {
	err := WrapTemporary("llm chat", &HTTPStatusError{StatusCode: http.StatusGatewayTimeout}, ClassifyHTTPError)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind, got %v", err)
	}
	err = WrapTemporary("llm chat", &HTTPStatusError{StatusCode: http.StatusBadRequest}, ClassifyHTTPError)
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected bad request to stay permanent")
	}
}

func TestNewHTTPStatusErrorIncludesBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusBadGateway,
		Status:     "502 Bad Gateway",
		Body:       io.NopCloser(strings.NewReader("model unavailable")),
	}
	err := NewHTTPStatusError("llm", "chat", resp)
	if !strings.Contains(err.Error(), "model unavailable") || !strings.Contains(err.Error(), "llm chat") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"-1", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"soon", 0},
	}
	for _, tc := range cases {
		if got := parseRetryAfter(tc.value, now); got != tc.want {
			t.Fatalf("parseRetryAfter(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestClassifyHTTPErrorCarriesRetryAfter(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Status:     "429 Too Many Requests",
		Header:     http.Header{"Retry-After": []string{"7"}},
		Body:       io.NopCloser(strings.NewReader("")),
	}
	class := ClassifyHTTPError(NewHTTPStatusError("erpnext", "insert", resp))
	if !class.Retryable || class.RetryAfter != 7*time.Second {
		t.Fatalf("ClassifyHTTPError() = %+v", class)
	}
}

func TestDelayHonorsRetryAfterUpToCap(t *testing.T) {
	exec := NewExecutor(Config{
		RetryInitialBackoff: 10 * time.Millisecond,
		RetryMaxBackoff:     20 * time.Millisecond,
		MaxRetryAfter:       time.Second,
	}, nil)

	if got := exec.delay(10*time.Millisecond, 0); got != 10*time.Millisecond {
		t.Fatalf("plain backoff = %v", got)
	}
	if got := exec.delay(10*time.Millisecond, 500*time.Millisecond); got != 500*time.Millisecond {
		t.Fatalf("retry-after delay = %v", got)
	}
	if got := exec.delay(10*time.Millisecond, time.Hour); got != time.Second {
		t.Fatalf("capped delay = %v", got)
	}
}

func TestExecuteWaitsForRetryAfter(t *testing.T) {
	cfg := fastRetryConfig(2)
	cfg.MaxRetryAfter = 30 * time.Millisecond
	exec := NewExecutor(cfg, nil)

	calls := 0
	started := time.Now()
	err := exec.Execute(context.Background(), "webhook.post", func(context.Context) error {
		calls++
		if calls == 1 {
			return &HTTPStatusError{StatusCode: http.StatusTooManyRequests, RetryAfter: 20 * time.Millisecond}
		}
		return nil
	}, ClassifyHTTPError)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if elapsed := time.Since(started); elapsed < 20*time.Millisecond {
		t.Fatalf("expected to wait for Retry-After, elapsed %v", elapsed)
	}
}

func TestExecuteStopsWaitingOnCancel(t *testing.T) {
	cfg := fastRetryConfig(3)
	cfg.RetryInitialBackoff = time.Hour
	cfg.RetryMaxBackoff = time.Hour
	exec := NewExecutor(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errTemp := errors.New("temporary")
	calls := 0
	err := exec.Execute(ctx, "llm.chat", func(context.Context) error {
		calls++
		cancel()
		return errTemp
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	})
	if !errors.Is(err, errTemp) || calls != 1 {
		t.Fatalf("expected last error after cancel, got %v after %d calls", err, calls)
	}
}

func TestPresetsAreNamedAndNormalized(t *testing.T) {
	for _, cfg := range []Config{DefaultConfig(), BrokerConfig(), ConnectorConfig(), LLMConfig()} {
		got := cfg.normalize()
		if got != cfg {
			t.Fatalf("preset %q changed on normalize: %+v", cfg.Name, got)
		}
	}
	if got := (Config{RetryInitialBackoff: time.Second, RetryMaxBackoff: time.Millisecond}).normalize(); got.RetryMaxBackoff != time.Second {
		t.Fatalf("max backoff should not be below initial, got %v", got.RetryMaxBackoff)
	}
	if got := (Config{}).normalize(); got.Name != "default" || got.RetryMaxAttempts != 3 {
		t.Fatalf("zero config normalize = %+v", got)
	}
}
