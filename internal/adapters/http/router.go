package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/doc2sys/internal/config"
	"github.com/kirillkom/doc2sys/internal/core/domain"
	"github.com/kirillkom/doc2sys/internal/core/ports"
	"github.com/kirillkom/doc2sys/internal/observability/metrics"
)

const (
	serviceName         = "api"
	backpressureWait    = 250 * time.Millisecond
	defaultUploadLimit  = 50 << 20
	multipartMemorySize = 8 << 20
)

// Services are the inbound ports the REST adapter serves.
type Services struct {
	Ingest       ports.DocumentIngestor
	Documents    ports.DocumentReader
	Pipeline     ports.DocumentPipeline
	Analyzer     ports.TextAnalyzer
	Integrations ports.IntegrationService
}

type Router struct {
	cfg            config.Config
	svc            Services
	metrics        *metrics.HTTPServerMetrics
	metricsHandler http.Handler
	logger         *slog.Logger
}

type RouterOption func(*Router)

// WithMetrics instruments requests and serves the registry on /metrics.
func WithMetrics(m *metrics.HTTPServerMetrics, handler http.Handler) RouterOption {
	return func(rt *Router) {
		rt.metrics = m
		rt.metricsHandler = handler
	}
}

func WithLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

func NewRouter(cfg config.Config, svc Services, opts ...RouterOption) *Router {
	rt := &Router{cfg: cfg, svc: svc, logger: slog.Default()}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Handler assembles the route table and middleware chain. It fails only when the embedded
// OpenAPI document is invalid.
func (rt *Router) Handler() (http.Handler, error) {
	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /v1/documents", rt.uploadDocument)
	api.HandleFunc("GET /v1/documents/{id}", rt.getDocumentByID)
	api.HandleFunc("POST /v1/documents/{id}/extract-text", rt.runStage(func(p ports.DocumentPipeline) stageCall { return p.ExtractText }))
	api.HandleFunc("POST /v1/documents/{id}/classify", rt.runStage(func(p ports.DocumentPipeline) stageCall { return p.Classify }))
	api.HandleFunc("POST /v1/documents/{id}/extract-fields", rt.runStage(func(p ports.DocumentPipeline) stageCall { return p.ExtractFields }))
	api.HandleFunc("POST /v1/documents/{id}/integrations", rt.runStage(func(p ports.DocumentPipeline) stageCall { return p.TriggerIntegrations }))
	api.HandleFunc("POST /v1/documents/{id}/process", rt.runStage(func(p ports.DocumentPipeline) stageCall { return p.ProcessAll }))
	api.HandleFunc("POST /v1/documents/{id}/reset-metrics", rt.resetMetrics)
	api.HandleFunc("GET /v1/documents/{id}/integration-logs", rt.integrationLogs)
	api.HandleFunc("POST /v1/classify", rt.classifyText)
	api.HandleFunc("POST /v1/extract-fields", rt.extractFields)
	api.HandleFunc("GET /v1/integrations", rt.listConnectors)
	api.HandleFunc("POST /v1/integrations/{name}/test", rt.testIntegration)

	var onReject rejectFunc
	if rt.metrics != nil {
		onReject = func(reason string) { rt.metrics.RecordRejected(serviceName, reason) }
	}
	var apiHandler http.Handler = validator.middleware(api)
	apiHandler = backpressureMiddleware(apiHandler, rt.cfg.MaxInFlight, backpressureWait, onReject)
	apiHandler = rateLimitMiddleware(apiHandler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst, onReject)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", rt.healthz)
	root.HandleFunc("GET /openapi.yaml", serveOpenAPI)
	if rt.metricsHandler != nil {
		root.Handle("GET /metrics", rt.metricsHandler)
	}
	root.Handle("/", apiHandler)

	var handler http.Handler = root
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = recoverMiddleware(rt.logger, handler)
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler), nil
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func serveOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPISpec)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	limit := rt.cfg.MaxUploadBytes
	if limit <= 0 {
		limit = defaultUploadLimit
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemorySize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", limit))
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	doc, err := rt.svc.Ingest.Upload(
		r.Context(),
		userID(r),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.svc.Documents.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type stageCall func(ctx context.Context, documentID string) (domain.StageResult, error)

// runStage serves one re-runnable stage. A failed stage is still a 200: the outcome is in the body.
func (rt *Router) runStage(pick func(ports.DocumentPipeline) stageCall) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := pick(rt.svc.Pipeline)(r.Context(), r.PathValue("id"))
		if err != nil {
			rt.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (rt *Router) resetMetrics(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.svc.Pipeline.ResetMetrics(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) integrationLogs(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := rt.svc.Documents.GetByID(r.Context(), id); err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	logs, err := rt.svc.Integrations.ListLogs(r.Context(), id)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	if logs == nil {
		logs = []domain.IntegrationLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (rt *Router) classifyText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	res, err := rt.svc.Analyzer.ClassifyText(r.Context(), userID(r), req.Text)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (rt *Router) extractFields(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text         string `json:"text"`
		DocumentType string `json:"document_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	res, err := rt.svc.Analyzer.ExtractFieldsFromText(r.Context(), userID(r), req.Text, req.DocumentType)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (rt *Router) listConnectors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.svc.Integrations.Connectors())
}

func (rt *Router) testIntegration(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := rt.svc.Integrations.TestIntegration(r.Context(), userID(r), name); err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "integration": name})
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("http.handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"code", code,
			"error", err,
		)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", temporaryRetryAfter)
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": code})
}

func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(userIDHeader))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
