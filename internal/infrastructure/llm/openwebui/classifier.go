package openwebui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

// SubstringMatchConfidence is assigned when the answer is not JSON but names a configured type.
const SubstringMatchConfidence = 0.6

const classifySystemPrompt = "You are a document classification assistant. Always respond in JSON."

type Classifier struct {
	clients ClientSource
	logger  *slog.Logger
}

func NewClassifier(clients ClientSource, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{clients: clients, logger: logger}
}

func (c *Classifier) Classify(ctx context.Context, in domain.ClassifyInput) (domain.ClassificationResult, error) {
	text := strings.TrimSpace(in.Text)
	filePath := ""
	if text == "" {
		if in.FilePath == "" {
			return domain.Unknown(0), domain.WrapError(domain.ErrInvalidInput, "classify", fmt.Errorf("text or file is required"))
		}
		filePath = in.FilePath
	}

	client := c.clients.ClientFor(in.LLM)
	prompt := buildClassificationPrompt(client.Truncate(text), in.Types, filePath != "")
	content, usage, err := client.ChatJSON(ctx, "classify", classifySystemPrompt, prompt, filePath)
	if err != nil {
		return domain.Unknown(0), err
	}

	result, parsed := parseClassification(content, in.Types)
	if !parsed {
		c.logger.Warn("llm.classify.invalid_json",
			"content", truncateLog(content),
			"fallback_type", result.DocumentType,
		)
	}
	result.Usage = usage
	return result, nil
}

func buildClassificationPrompt(text string, types []domain.DocumentType, fromFile bool) string {
	names := make([]string, 0, len(types)+1)
	for _, t := range types {
		names = append(names, fmt.Sprintf("%q", t.Name))
	}
	names = append(names, fmt.Sprintf("%q", domain.UnknownDocumentType))

	var b strings.Builder
	b.WriteString("Your task is to classify a document. Analyze it and determine what type of document it is.\n")
	b.WriteString("Answer with exactly one of these document types: ")
	b.WriteString(strings.Join(names, ", "))
	b.WriteString("\nIf the document does not match any of the available types, classify it as \"unknown\".\n\n")
	if fromFile {
		b.WriteString("The document is attached as a file.\n\n")
	} else {
		b.WriteString("Document text:\n")
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	b.WriteString(`Respond with a JSON object only, no markdown:
{"document_type": "<one of the types above>", "confidence": <number from 0 to 1>, "reasoning": "<brief explanation>"}`)
	return b.String()
}

// parseClassification never fails: unparseable answers fall back to substring matching of type names.
// The second return value is false when that fallback was used.
func parseClassification(content string, types []domain.DocumentType) (domain.ClassificationResult, bool) {
	obj, err := decodeObject(content)
	if err != nil {
		return matchTypeName(content, types), false
	}
	if items, ok := obj["items"].([]any); ok && obj["document_type"] == nil {
		obj = nil
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				obj = m
				break
			}
		}
		if obj == nil {
			return domain.Unknown(0), true
		}
	}

	confidence, _ := numberField(obj, "confidence")
	confidence = clamp01(confidence)
	reasoning := stringField(obj, "reasoning")

	name := stringField(obj, "document_type")
	t, ok := domain.FindType(types, name)
	if !ok {
		if !strings.EqualFold(name, domain.UnknownDocumentType) {
			confidence = 0
		}
		res := domain.Unknown(confidence)
		res.Reasoning = reasoning
		return res, true
	}
	return domain.ClassificationResult{
		DocumentType:  t.Name,
		Confidence:    confidence,
		Reasoning:     reasoning,
		TargetDoctype: t.TargetDoctype,
	}, true
}

func matchTypeName(content string, types []domain.DocumentType) domain.ClassificationResult {
	lower := strings.ToLower(content)
	for _, t := range types {
		if t.Name == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(t.Name)) {
			return domain.ClassificationResult{
				DocumentType:  t.Name,
				Confidence:    SubstringMatchConfidence,
				TargetDoctype: t.TargetDoctype,
			}
		}
	}
	return domain.Unknown(0)
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

func truncateLog(s string) string {
	if len(s) <= 512 {
		return s
	}
	return s[:512] + "...(truncated)"
}
