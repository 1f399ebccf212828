package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

// Store implements the document repository and the integration log over database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
}

// execOne fails with ErrDocumentNotFound when no row was touched.
func (s *Store) execOne(ctx context.Context, operation, id, query string, args ...any) error {
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("document %s", id))
	}
	return nil
}

const documentColumns = `id, user_id, filename, mime_type, storage_path, text, document_type, target_doctype, confidence, extracted_data,
	input_tokens, output_tokens, total_tokens, input_cost, output_cost, total_cost, duration_seconds,
	status, error_message, created_at, updated_at`

func (s *Store) Create(ctx context.Context, doc *domain.Document) error {
	data, err := marshalData(doc.ExtractedData)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
`,
		doc.ID, doc.UserID, doc.Filename, doc.MimeType, doc.StoragePath, doc.Text, doc.DocumentType, doc.TargetDoctype,
		doc.Confidence, data,
		doc.Usage.InputTokens, doc.Usage.OutputTokens, doc.Usage.TotalTokens,
		doc.Usage.InputCost, doc.Usage.OutputCost, doc.Usage.TotalCost, doc.Usage.DurationSeconds,
		string(doc.Status), doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`), id)

	var (
		doc    domain.Document
		data   string
		status string
	)
	err := row.Scan(
		&doc.ID, &doc.UserID, &doc.Filename, &doc.MimeType, &doc.StoragePath, &doc.Text, &doc.DocumentType, &doc.TargetDoctype,
		&doc.Confidence, &data,
		&doc.Usage.InputTokens, &doc.Usage.OutputTokens, &doc.Usage.TotalTokens,
		&doc.Usage.InputCost, &doc.Usage.OutputCost, &doc.Usage.TotalCost, &doc.Usage.DurationSeconds,
		&status, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("document %s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	if data != "" && data != "{}" {
		if err := json.Unmarshal([]byte(data), &doc.ExtractedData); err != nil {
			return nil, fmt.Errorf("unmarshal extracted data: %w", err)
		}
	}
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	return s.execOne(ctx, "update document status", id, `
UPDATE documents
SET status = $1, error_message = $2, updated_at = $3
WHERE id = $4
`, string(status), errMessage, s.now(), id)
}

func (s *Store) SaveText(ctx context.Context, id, text string) error {
	return s.execOne(ctx, "save text", id, `
UPDATE documents
SET text = $1, updated_at = $2
WHERE id = $3
`, text, s.now(), id)
}

func (s *Store) SaveClassification(ctx context.Context, id string, cls domain.ClassificationResult) error {
	return s.execOne(ctx, "save classification", id, `
UPDATE documents
SET document_type = $1, target_doctype = $2, confidence = $3, updated_at = $4
WHERE id = $5
`, cls.DocumentType, cls.TargetDoctype, cls.Confidence, s.now(), id)
}

func (s *Store) SaveExtractedData(ctx context.Context, id string, data map[string]any) error {
	raw, err := marshalData(data)
	if err != nil {
		return err
	}
	return s.execOne(ctx, "save extracted data", id, `
UPDATE documents
SET extracted_data = $1, updated_at = $2
WHERE id = $3
`, raw, s.now(), id)
}

func (s *Store) SaveUsage(ctx context.Context, id string, u domain.Usage) error {
	return s.execOne(ctx, "save usage", id, `
UPDATE documents
SET input_tokens = $1, output_tokens = $2, total_tokens = $3,
	input_cost = $4, output_cost = $5, total_cost = $6, duration_seconds = $7, updated_at = $8
WHERE id = $9
`, u.InputTokens, u.OutputTokens, u.TotalTokens, u.InputCost, u.OutputCost, u.TotalCost, u.DurationSeconds, s.now(), id)
}

// ListLabeledSamples returns the most recently classified documents with text, for classifier training.
func (s *Store) ListLabeledSamples(ctx context.Context, limit int) ([]domain.LabeledSample, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
SELECT text, document_type
FROM documents
WHERE document_type <> '' AND document_type <> $1 AND text <> ''
ORDER BY updated_at DESC
LIMIT $2
`), domain.UnknownDocumentType, limit)
	if err != nil {
		return nil, fmt.Errorf("query labeled samples: %w", err)
	}
	defer rows.Close()

	var out []domain.LabeledSample
	for rows.Next() {
		var sample domain.LabeledSample
		if err := rows.Scan(&sample.Text, &sample.DocumentType); err != nil {
			return nil, fmt.Errorf("scan labeled sample: %w", err)
		}
		out = append(out, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labeled samples: %w", err)
	}
	return out, nil
}

func marshalData(data map[string]any) (string, error) {
	if len(data) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal extracted data: %w", err)
	}
	return string(raw), nil
}
