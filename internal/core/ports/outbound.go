package ports

import (
	"context"
	"io"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

// DocumentRepository persists and reads document state.
// Each Save method touches only the columns owned by its stage.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveText(ctx context.Context, id, text string) error
	SaveClassification(ctx context.Context, id string, cls domain.ClassificationResult) error
	SaveExtractedData(ctx context.Context, id string, data map[string]any) error
	SaveUsage(ctx context.Context, id string, usage domain.Usage) error
	ListLabeledSamples(ctx context.Context, limit int) ([]domain.LabeledSample, error)
}

// IntegrationLogStore keeps the connector activity log.
type IntegrationLogStore interface {
	AppendIntegrationLog(ctx context.Context, entry domain.IntegrationLog) error
	ListIntegrationLogs(ctx context.Context, documentID string) ([]domain.IntegrationLog, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Path(key string) (string, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// EventPublisher sends arbitrary JSON events to a subject.
type EventPublisher interface {
	PublishJSON(ctx context.Context, subject string, payload any) error
}

// TextExtractor converts a local file into raw text.
type TextExtractor interface {
	Extract(ctx context.Context, path string, opts domain.ExtractOptions) (string, error)
}

// DocumentClassifier determines the document type of text or a file.
type DocumentClassifier interface {
	Classify(ctx context.Context, in domain.ClassifyInput) (domain.ClassificationResult, error)
}

// FieldExtractor mines structured fields for a known document type.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, in domain.ExtractInput) (domain.ExtractionResult, error)
}

// IntegrationDispatcher forwards a processed document to downstream connectors.
type IntegrationDispatcher interface {
	Dispatch(ctx context.Context, doc *domain.Document, integrations []domain.IntegrationSettings) ([]domain.IntegrationLog, error)
	Test(ctx context.Context, settings domain.IntegrationSettings) error
	Connectors() []domain.ConnectorInfo
}

// SettingsProvider resolves per-user configuration.
type SettingsProvider interface {
	ForUser(ctx context.Context, userID string) (domain.UserSettings, error)
}
