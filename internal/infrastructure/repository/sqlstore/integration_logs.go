package sqlstore

import (
	"context"
	"fmt"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

func (s *Store) AppendIntegrationLog(ctx context.Context, entry domain.IntegrationLog) error {
	_, err := s.exec(ctx, `
INSERT INTO integration_logs (id, document_id, user_id, integration, connector, status, message, reference, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, entry.ID, entry.DocumentID, entry.UserID, entry.Integration, entry.Connector, string(entry.Status), entry.Message, entry.Reference, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert integration log: %w", err)
	}
	return nil
}

func (s *Store) ListIntegrationLogs(ctx context.Context, documentID string) ([]domain.IntegrationLog, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
SELECT id, document_id, user_id, integration, connector, status, message, reference, created_at
FROM integration_logs
WHERE document_id = $1
ORDER BY created_at ASC, id ASC
`), documentID)
	if err != nil {
		return nil, fmt.Errorf("query integration logs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.IntegrationLog, 0)
	for rows.Next() {
		var (
			entry  domain.IntegrationLog
			status string
		)
		if err := rows.Scan(&entry.ID, &entry.DocumentID, &entry.UserID, &entry.Integration, &entry.Connector,
			&status, &entry.Message, &entry.Reference, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan integration log: %w", err)
		}
		entry.Status = domain.IntegrationStatus(status)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate integration logs: %w", err)
	}
	return out, nil
}
