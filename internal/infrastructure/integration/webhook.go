package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/doc2sys/internal/core/domain"
	"github.com/kirillkom/doc2sys/internal/infrastructure/resilience"
)

const WebhookConnector = "webhook"

// Webhook POSTs a JSON event for every synced document to BaseURL.
type Webhook struct {
	settings domain.IntegrationSettings
	client   *http.Client
	executor *resilience.Executor
}

type webhookEvent struct {
	Event      string         `json:"event"`
	SentAt     time.Time      `json:"sent_at"`
	DocumentID string         `json:"document_id,omitempty"`
	Document   map[string]any `json:"document,omitempty"`
}

func NewWebhook(settings domain.IntegrationSettings, deps Deps) (Connector, error) {
	settings.BaseURL = strings.TrimSpace(settings.BaseURL)
	deps = deps.withDefaults()
	return &Webhook{settings: settings, client: deps.HTTPClient, executor: deps.Executor}, nil
}

func (w *Webhook) MappingFields() []domain.MappingField {
	return []domain.MappingField{
		{Name: "document_type", Label: "Document Type", Type: "Data"},
		{Name: "extracted_data", Label: "Extracted Data", Type: "JSON"},
		{Name: "confidence", Label: "Confidence", Type: "Float"},
	}
}

func (w *Webhook) Authenticate(context.Context) error {
	if w.settings.BaseURL == "" {
		return domain.WrapError(domain.ErrInvalidInput, "webhook authenticate", errors.New("base_url is required"))
	}
	return nil
}

func (w *Webhook) TestConnection(ctx context.Context) error {
	if err := w.Authenticate(ctx); err != nil {
		return err
	}
	_, err := w.post(ctx, webhookEvent{Event: "doc2sys.test", SentAt: time.Now().UTC()})
	return err
}

func (w *Webhook) SyncDocument(ctx context.Context, doc *domain.Document) (domain.SyncResult, error) {
	if err := w.Authenticate(ctx); err != nil {
		return domain.SyncResult{Message: err.Error()}, err
	}
	rec := documentRecord(doc)
	if len(w.settings.FieldMapping) > 0 {
		rec = applyMapping(rec, w.settings.FieldMapping)
	}
	ref, err := w.post(ctx, webhookEvent{
		Event:      "doc2sys.document.processed",
		SentAt:     time.Now().UTC(),
		DocumentID: doc.ID,
		Document:   rec,
	})
	if err != nil {
		return domain.SyncResult{Message: err.Error()}, err
	}
	return domain.SyncResult{Success: true, Reference: ref, Message: "Webhook delivered"}, nil
}

// post returns the receiver's "id" field when it answers with one.
func (w *Webhook) post(ctx context.Context, event webhookEvent) (string, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal webhook event: %w", err)
	}
	ref, err := resilience.Do(ctx, w.executor, "connector.webhook", func(callCtx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, w.settings.BaseURL, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("create webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if w.settings.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+w.settings.APIKey)
		}
		resp, err := w.client.Do(req)
		if err != nil {
			return "", fmt.Errorf("webhook request: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return "", resilience.NewHTTPStatusError("webhook", "post", resp)
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var out struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(raw, &out) == nil && out.ID != "" {
			return out.ID, nil
		}
		return resp.Status, nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return "", resilience.WrapTemporary("webhook post", err, resilience.ClassifyHTTPError)
	}
	return ref, nil
}
