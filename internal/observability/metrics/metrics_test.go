package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/v1/documents/abc":          "/v1/documents/{id}",
		"/v1/documents/abc/classify": "/v1/documents/{id}/classify",
		"/v1/documents":              "/v1/documents",
		"/healthz":                   "/healthz",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPipelineMetricsRecordsStagesAndTokens(t *testing.T) {
	reg := NewRegistry()
	m := NewPipelineMetrics("worker", reg)

	m.StageFinished(domain.StageClassify, true, 2*time.Second)
	m.StageFinished(domain.StageClassify, false, time.Second)
	m.LLMUsage(domain.TokenUsage{InputTokens: 17, OutputTokens: 8}, 0.5)

	if got := testutil.ToFloat64(m.stageTotal.WithLabelValues("worker", "classify", "success")); got != 1 {
		t.Fatalf("success count = %v", got)
	}
	if got := testutil.ToFloat64(m.llmTokensTotal.WithLabelValues("worker", "in")); got != 17 {
		t.Fatalf("input tokens = %v", got)
	}
	if got := testutil.ToFloat64(m.llmTokensTotal.WithLabelValues("worker", "out")); got != 8 {
		t.Fatalf("output tokens = %v", got)
	}
	if got := testutil.ToFloat64(m.llmCostTotal.WithLabelValues("worker")); got != 0.5 {
		t.Fatalf("cost = %v", got)
	}
}

func TestHTTPMiddlewareExposesMetrics(t *testing.T) {
	reg := NewRegistry()
	m := NewHTTPServerMetrics("api", reg)
	h := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/documents/42/process", nil))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `doc2sys_http_requests_total{method="POST",path="/v1/documents/{id}/process",service="api",status="202"} 1`) {
		t.Fatalf("metrics output missing request counter:\n%s", body)
	}
}
