package ports

import (
	"context"
	"io"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, userID, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentPipeline exposes every stage as an independently re-runnable operation.
// Stage failures are reported in the StageResult; the error return is reserved for
// failures to load or persist the document itself.
type DocumentPipeline interface {
	ExtractText(ctx context.Context, documentID string) (domain.StageResult, error)
	Classify(ctx context.Context, documentID string) (domain.StageResult, error)
	ExtractFields(ctx context.Context, documentID string) (domain.StageResult, error)
	TriggerIntegrations(ctx context.Context, documentID string) (domain.StageResult, error)
	ProcessAll(ctx context.Context, documentID string) (domain.StageResult, error)
	ResetMetrics(ctx context.Context, documentID string) (*domain.Document, error)
}

// TextAnalyzer runs the pipeline components on ad-hoc input without a stored document.
type TextAnalyzer interface {
	ExtractFile(ctx context.Context, userID, path string) (string, error)
	ClassifyText(ctx context.Context, userID, text string) (domain.ClassificationResult, error)
	ExtractFieldsFromText(ctx context.Context, userID, text, documentType string) (domain.ExtractionResult, error)
}

// IntegrationService lists connectors, tests configured integrations and reads activity logs.
type IntegrationService interface {
	Connectors() []domain.ConnectorInfo
	TestIntegration(ctx context.Context, userID, name string) error
	ListLogs(ctx context.Context, documentID string) ([]domain.IntegrationLog, error)
}
