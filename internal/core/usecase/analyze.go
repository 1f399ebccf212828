package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/doc2sys/internal/core/domain"
	"github.com/kirillkom/doc2sys/internal/core/ports"
	"github.com/kirillkom/doc2sys/internal/core/session"
)

// Analyzer runs extraction, classification and field extraction on ad-hoc input
// without creating a document record.
type Analyzer struct {
	extractor  ports.TextExtractor
	classifier ports.DocumentClassifier
	fields     ports.FieldExtractor
	settings   ports.SettingsProvider
}

func NewAnalyzer(
	extractor ports.TextExtractor,
	classifier ports.DocumentClassifier,
	fields ports.FieldExtractor,
	settings ports.SettingsProvider,
) *Analyzer {
	return &Analyzer{extractor: extractor, classifier: classifier, fields: fields, settings: settings}
}

func (a *Analyzer) ExtractFile(ctx context.Context, userID, path string) (string, error) {
	settings, err := a.settings.ForUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("resolve user settings: %w", err)
	}
	return a.extractor.Extract(ctx, path, settings.ExtractOptions())
}

func (a *Analyzer) ClassifyText(ctx context.Context, userID, text string) (domain.ClassificationResult, error) {
	if strings.TrimSpace(text) == "" {
		return domain.ClassificationResult{}, domain.WrapError(domain.ErrInvalidInput, "classify text", errors.New("text is required"))
	}
	settings, err := a.settings.ForUser(ctx, userID)
	if err != nil {
		return domain.ClassificationResult{}, fmt.Errorf("resolve user settings: %w", err)
	}
	ctx = withSession(ctx)
	return a.classifier.Classify(ctx, domain.ClassifyInput{Text: text, Types: settings.DocumentTypes, LLM: settings.LLM})
}

func (a *Analyzer) ExtractFieldsFromText(ctx context.Context, userID, text, documentType string) (domain.ExtractionResult, error) {
	if strings.TrimSpace(text) == "" {
		return domain.ExtractionResult{}, domain.WrapError(domain.ErrInvalidInput, "extract fields", errors.New("text is required"))
	}
	settings, err := a.settings.ForUser(ctx, userID)
	if err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("resolve user settings: %w", err)
	}
	docType, ok := domain.FindType(settings.DocumentTypes, documentType)
	if !ok {
		return domain.ExtractionResult{}, domain.WrapError(domain.ErrInvalidInput, "extract fields", fmt.Errorf("document type %q is not enabled", documentType))
	}
	ctx = withSession(ctx)
	return a.fields.ExtractFields(ctx, domain.ExtractInput{Text: text, Type: docType, LLM: settings.LLM})
}

func withSession(ctx context.Context) context.Context {
	if session.FromContext(ctx) != nil {
		return ctx
	}
	return session.NewContext(ctx, session.New())
}
