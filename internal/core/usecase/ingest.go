package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/doc2sys/internal/core/domain"
	"github.com/kirillkom/doc2sys/internal/core/ports"
)

const (
	fallbackFilename  = "document.bin"
	fallbackMimeType  = "application/octet-stream"
	maxStoredNameSize = 96
)

type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
	logger  *slog.Logger
	now     func() time.Time
}

// NewIngestDocumentUseCase wires upload handling. A nil queue stores the document without
// announcing it; callers then run the pipeline themselves.
func NewIngestDocumentUseCase(repo ports.DocumentRepository, storage ports.ObjectStorage, queue ports.MessageQueue, logger *slog.Logger) *IngestDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Upload stores the file under "<id>_<safe name>", records it as new and queues it.
// A queue failure leaves the stored document in place and is reported as temporary.
func (uc *IngestDocumentUseCase) Upload(ctx context.Context, userID, filename, mimeType string, body io.Reader) (*domain.Document, error) {
	const op = "upload document"
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, errors.New("filename is required"))
	}

	id := uuid.NewString()
	key := id + "_" + sanitizeFilename(name)
	if err := uc.storage.Save(ctx, key, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	now := uc.now()
	doc := &domain.Document{
		ID:            id,
		UserID:        strings.TrimSpace(userID),
		Filename:      name,
		MimeType:      detectMimeType(name, mimeType),
		StoragePath:   key,
		ExtractedData: map[string]any{},
		Status:        domain.StatusNew,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if uc.queue != nil {
		if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
			uc.logger.Error("ingest.publish_failed", "document_id", doc.ID, "error", err)
			return nil, domain.WrapError(domain.ErrTemporary, op, fmt.Errorf("publish ingestion event: %w", err))
		}
	}
	uc.logger.Info("ingest.stored",
		"document_id", doc.ID,
		"user_id", doc.UserID,
		"filename", doc.Filename,
		"mime_type", doc.MimeType,
		"queued", uc.queue != nil,
	)
	return doc, nil
}

// detectMimeType trusts the client unless it sent nothing useful, then falls back to the extension.
func detectMimeType(filename, declared string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != fallbackMimeType {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		return byExt
	}
	return fallbackMimeType
}

// sanitizeFilename maps the name onto [A-Za-z0-9._-] and caps its length.
// The extension survives both steps because text extraction dispatches on it.
func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return fallbackFilename
	}

	var b strings.Builder
	b.Grow(len(base))
	for _, r := range base {
		if isSafeNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	safe := b.String()
	if len(safe) <= maxStoredNameSize {
		return safe
	}
	ext := filepath.Ext(safe)
	if len(ext) >= maxStoredNameSize {
		ext = ""
	}
	return safe[:maxStoredNameSize-len(ext)] + ext
}

func isSafeNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '-', r == '_':
		return true
	}
	return false
}
