package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/doc2sys/internal/core/domain"
	"github.com/kirillkom/doc2sys/internal/core/ports"
)

const logMessageLimit = 140

// Dispatcher runs a user's integrations for one document and records an activity log entry per connector.
type Dispatcher struct {
	registry *Registry
	logs     ports.IntegrationLogStore
	now      func() time.Time
	logger   *slog.Logger
}

func NewDispatcher(registry *Registry, logs ports.IntegrationLogStore, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, logs: logs, now: time.Now, logger: logger}
}

// Dispatch never stops on a failing connector. The returned error only reports log persistence failures.
func (d *Dispatcher) Dispatch(ctx context.Context, doc *domain.Document, integrations []domain.IntegrationSettings) ([]domain.IntegrationLog, error) {
	entries := make([]domain.IntegrationLog, 0, len(integrations))
	var errs []error
	for _, settings := range integrations {
		if err := ctx.Err(); err != nil {
			return entries, err
		}
		result, err := d.sync(ctx, doc, settings)
		entry := domain.IntegrationLog{
			ID:          uuid.NewString(),
			DocumentID:  doc.ID,
			UserID:      doc.UserID,
			Integration: settings.Name,
			Connector:   settings.Connector,
			Status:      domain.IntegrationSuccess,
			Message:     truncateRunes(result.Message, logMessageLimit),
			Reference:   result.Reference,
			CreatedAt:   d.now().UTC(),
		}
		if err != nil || !result.Success {
			entry.Status = domain.IntegrationError
			if entry.Message == "" && err != nil {
				entry.Message = truncateRunes(err.Error(), logMessageLimit)
			}
			d.logger.Warn("integration.sync_failed", "document_id", doc.ID, "integration", settings.Name, "connector", settings.Connector, "error", err)
		} else {
			d.logger.Info("integration.sync_ok", "document_id", doc.ID, "integration", settings.Name, "connector", settings.Connector, "reference", result.Reference)
		}

		if d.logs != nil {
			if err := d.logs.AppendIntegrationLog(ctx, entry); err != nil {
				errs = append(errs, fmt.Errorf("append integration log %s: %w", settings.Name, err))
			}
		}
		entries = append(entries, entry)
	}
	return entries, errors.Join(errs...)
}

func (d *Dispatcher) sync(ctx context.Context, doc *domain.Document, settings domain.IntegrationSettings) (domain.SyncResult, error) {
	conn, err := d.registry.Create(settings)
	if err != nil {
		return domain.SyncResult{Message: err.Error()}, err
	}
	return conn.SyncDocument(ctx, doc)
}

func (d *Dispatcher) Test(ctx context.Context, settings domain.IntegrationSettings) error {
	conn, err := d.registry.Create(settings)
	if err != nil {
		return err
	}
	return conn.TestConnection(ctx)
}

func (d *Dispatcher) Connectors() []domain.ConnectorInfo {
	return d.registry.Connectors()
}
