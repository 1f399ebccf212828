package integration

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kirillkom/doc2sys/internal/core/domain"
	"github.com/kirillkom/doc2sys/internal/core/ports"
)

const (
	EventConnector      = "nats"
	DefaultEventSubject = "doc2sys.documents.processed"
)

// DocumentProcessedEvent is the payload published by the nats connector.
type DocumentProcessedEvent struct {
	DocumentID    string         `json:"document_id"`
	UserID        string         `json:"user_id"`
	Filename      string         `json:"filename"`
	DocumentType  string         `json:"document_type"`
	TargetDoctype string         `json:"target_doctype,omitempty"`
	Confidence    float64        `json:"confidence"`
	ExtractedData map[string]any `json:"extracted_data,omitempty"`
	ProcessedAt   time.Time      `json:"processed_at"`
}

// Event publishes processed documents on the message bus.
type Event struct {
	subject   string
	publisher ports.EventPublisher
}

func NewEvent(settings domain.IntegrationSettings, deps Deps) (Connector, error) {
	subject := strings.TrimSpace(settings.Subject)
	if subject == "" {
		subject = strings.TrimSpace(deps.EventSubject)
	}
	if subject == "" {
		subject = DefaultEventSubject
	}
	return &Event{subject: subject, publisher: deps.Publisher}, nil
}

func (e *Event) MappingFields() []domain.MappingField {
	return []domain.MappingField{
		{Name: "document_type", Label: "Document Type", Type: "Data"},
		{Name: "extracted_data", Label: "Extracted Data", Type: "JSON"},
	}
}

func (e *Event) Authenticate(context.Context) error {
	if e.publisher == nil {
		return domain.WrapError(domain.ErrInvalidInput, "nats connector", errors.New("event publisher is not configured"))
	}
	return nil
}

func (e *Event) TestConnection(ctx context.Context) error {
	if err := e.Authenticate(ctx); err != nil {
		return err
	}
	return e.publisher.PublishJSON(ctx, e.subject+".test", map[string]any{"event": "doc2sys.test", "sent_at": time.Now().UTC()})
}

func (e *Event) SyncDocument(ctx context.Context, doc *domain.Document) (domain.SyncResult, error) {
	if err := e.Authenticate(ctx); err != nil {
		return domain.SyncResult{Message: err.Error()}, err
	}
	event := DocumentProcessedEvent{
		DocumentID:    doc.ID,
		UserID:        doc.UserID,
		Filename:      doc.Filename,
		DocumentType:  doc.DocumentType,
		TargetDoctype: doc.TargetDoctype,
		Confidence:    doc.Confidence,
		ExtractedData: doc.ExtractedData,
		ProcessedAt:   time.Now().UTC(),
	}
	if err := e.publisher.PublishJSON(ctx, e.subject, event); err != nil {
		return domain.SyncResult{Message: err.Error()}, err
	}
	return domain.SyncResult{Success: true, Reference: e.subject, Message: "Event published"}, nil
}
