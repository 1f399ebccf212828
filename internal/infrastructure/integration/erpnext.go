package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/kirillkom/doc2sys/internal/core/domain"
	"github.com/kirillkom/doc2sys/internal/infrastructure/resilience"
)

const (
	ERPNextConnector = "erpnext"
	defaultDoctype   = "Doc2Sys Item"
)

var defaultERPNextMapping = map[string]string{
	"title":          "title",
	"description":    "description",
	"document_type":  "document_type",
	"extracted_data": "extracted_data",
}

// ERPNext pushes documents to a Frappe/ERPNext site through its REST resource API.
type ERPNext struct {
	settings domain.IntegrationSettings
	client   *http.Client
	executor *resilience.Executor
	logger   *slog.Logger

	authenticated bool
}

func NewERPNext(settings domain.IntegrationSettings, deps Deps) (Connector, error) {
	settings.BaseURL = strings.TrimRight(strings.TrimSpace(settings.BaseURL), "/")
	deps = deps.withDefaults()
	return &ERPNext{
		settings: settings,
		client:   deps.HTTPClient,
		executor: deps.Executor,
		logger:   deps.Logger,
	}, nil
}

func (e *ERPNext) MappingFields() []domain.MappingField {
	return []domain.MappingField{
		{Name: "title", Label: "Title", Type: "Data"},
		{Name: "description", Label: "Description", Type: "Text"},
		{Name: "document_type", Label: "Document Type", Type: "Data"},
		{Name: "extracted_data", Label: "Extracted Data", Type: "JSON"},
		{Name: "status", Label: "Status", Type: "Select"},
	}
}

func (e *ERPNext) Authenticate(ctx context.Context) error {
	if e.settings.BaseURL == "" || e.settings.APIKey == "" || e.settings.APISecret == "" {
		return domain.WrapError(domain.ErrInvalidInput, "erpnext authenticate", errors.New("base_url, api_key and api_secret are required"))
	}
	_, err := resilience.Do(ctx, e.executor, "connector.erpnext.auth", func(callCtx context.Context) (struct{}, error) {
		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, e.settings.BaseURL+"/api/method/frappe.auth.get_logged_user", nil)
		if err != nil {
			return struct{}{}, fmt.Errorf("create erpnext auth request: %w", err)
		}
		e.authorize(req)
		return struct{}{}, e.do(req, nil, "auth")
	}, resilience.ClassifyHTTPError)
	if err != nil {
		var statusErr *resilience.HTTPStatusError
		if errors.As(err, &statusErr) && (statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden) {
			return domain.WrapError(domain.ErrUnauthorized, "erpnext authenticate", err)
		}
		return resilience.WrapTemporary("erpnext authenticate", err, resilience.ClassifyHTTPError)
	}
	e.authenticated = true
	return nil
}

func (e *ERPNext) TestConnection(ctx context.Context) error {
	return e.Authenticate(ctx)
}

func (e *ERPNext) SyncDocument(ctx context.Context, doc *domain.Document) (domain.SyncResult, error) {
	if !e.authenticated {
		if err := e.Authenticate(ctx); err != nil {
			return domain.SyncResult{Message: "Authentication failed"}, err
		}
	}

	mapping := e.settings.FieldMapping
	if len(mapping) == 0 {
		mapping = defaultERPNextMapping
	}
	payload := applyMapping(documentRecord(doc), mapping)
	doctype := strings.TrimSpace(doc.TargetDoctype)
	if doctype == "" {
		doctype = defaultDoctype
	}
	payload["doctype"] = doctype

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.SyncResult{Message: err.Error()}, fmt.Errorf("marshal erpnext payload: %w", err)
	}

	var out struct {
		Data struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	_, err = resilience.Do(ctx, e.executor, "connector.erpnext.sync", func(callCtx context.Context) (struct{}, error) {
		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, e.settings.BaseURL+"/api/resource/"+url.PathEscape(doctype), bytes.NewReader(body))
		if err != nil {
			return struct{}{}, fmt.Errorf("create erpnext sync request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		e.authorize(req)
		return struct{}{}, e.do(req, &out, "sync")
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return domain.SyncResult{Message: err.Error()}, resilience.WrapTemporary("erpnext sync", err, resilience.ClassifyHTTPError)
	}

	e.logger.Info("integration.erpnext.synced", "document_id", doc.ID, "doctype", doctype, "reference", out.Data.Name)
	return domain.SyncResult{
		Success:   true,
		Reference: out.Data.Name,
		Message:   "Document synced successfully",
	}, nil
}

func (e *ERPNext) authorize(req *http.Request) {
	req.Header.Set("Authorization", "token "+e.settings.APIKey+":"+e.settings.APISecret)
	req.Header.Set("Accept", "application/json")
}

func (e *ERPNext) do(req *http.Request, out any, operation string) error {
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("erpnext %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return resilience.NewHTTPStatusError("erpnext", operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode erpnext %s response: %w", operation, err)
	}
	return nil
}
