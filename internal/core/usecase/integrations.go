package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/doc2sys/internal/core/domain"
	"github.com/kirillkom/doc2sys/internal/core/ports"
)

type IntegrationUseCase struct {
	dispatcher ports.IntegrationDispatcher
	logs       ports.IntegrationLogStore
	settings   ports.SettingsProvider
}

func NewIntegrationUseCase(dispatcher ports.IntegrationDispatcher, logs ports.IntegrationLogStore, settings ports.SettingsProvider) *IntegrationUseCase {
	return &IntegrationUseCase{dispatcher: dispatcher, logs: logs, settings: settings}
}

func (uc *IntegrationUseCase) Connectors() []domain.ConnectorInfo {
	return uc.dispatcher.Connectors()
}

// TestIntegration checks the caller's configured integration by name.
func (uc *IntegrationUseCase) TestIntegration(ctx context.Context, userID, name string) error {
	settings, err := uc.settings.ForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve user settings: %w", err)
	}
	integration, ok := settings.Integration(name)
	if !ok {
		return domain.WrapError(domain.ErrConnectorNotFound, "test integration", fmt.Errorf("integration %q is not configured", name))
	}
	return uc.dispatcher.Test(ctx, integration)
}

func (uc *IntegrationUseCase) ListLogs(ctx context.Context, documentID string) ([]domain.IntegrationLog, error) {
	logs, err := uc.logs.ListIntegrationLogs(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list integration logs: %w", err)
	}
	return logs, nil
}
