package fields

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

type heuristic struct {
	field    string
	patterns []*regexp.Regexp
}

var invoiceHeuristics = []heuristic{
	{field: "invoice_number", patterns: compileAll(
		`invoice\s*(?:no|number|#)[:.\s]*(\w+[-/\w]*)`,
		`invoice[:.\s]*(\w+[-/\w]*)`,
		`bill\s*(?:no|number)[:.\s]*(\w+[-/\w]*)`,
	)},
	{field: "due_date", patterns: compileAll(
		`due\s*(?:date|on)[:.\s]*(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})`,
		`payment\s*due[:.\s]*(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})`,
	)},
	{field: "tax_amount", patterns: compileAll(
		`vat[:.\s]*(\d+[,.\d]*%?)`,
		`tax[:.\s]*(\d+[,.\d]*%?)`,
		`vat\s*amount[:.\s]*([€$£]?\s?\d+[,.\d]*)`,
	)},
}

var receiptNumber = heuristic{field: "receipt_number", patterns: compileAll(
	`receipt\s*(?:no|number|#)[:.\s]*(\w+[-/\w]*)`,
	`receipt[:.\s]*(\w+[-/\w]*)`,
)}

var merchantPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^([A-Z][A-Z \t&]+)$`),
	regexp.MustCompile(`(?im)^(.*?)\s*(?:receipt|invoice)`),
}

// RegexExtractor is the deterministic field extractor: entities first, then the type's
// configured patterns, then built-in heuristics for invoices and receipts. Later sources
// overwrite earlier ones on the same key.
type RegexExtractor struct {
	entities EntityRecognizer
	logger   *slog.Logger
}

func NewRegexExtractor(entities EntityRecognizer, logger *slog.Logger) *RegexExtractor {
	if entities == nil {
		entities = NoopRecognizer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RegexExtractor{entities: entities, logger: logger}
}

func (e *RegexExtractor) ExtractFields(_ context.Context, in domain.ExtractInput) (domain.ExtractionResult, error) {
	data := make(map[string]any)
	if strings.TrimSpace(in.Text) == "" {
		return domain.ExtractionResult{Data: data}, nil
	}

	if e.entities.Available() {
		for k, v := range e.entities.Recognize(in.Text) {
			data[k] = v
		}
	}

	for _, p := range in.Type.Patterns {
		if v, ok := p.Match(in.Text); ok {
			data[p.Field] = v
		}
	}

	switch strings.ToLower(in.Type.Name) {
	case "invoice":
		for _, h := range invoiceHeuristics {
			h.apply(in.Text, data)
		}
	case "receipt":
		receiptNumber.apply(in.Text, data)
		if m, ok := findMerchant(in.Text); ok {
			data["merchant"] = m
		}
	}

	e.logger.Debug("fields.regex.ok", "document_type", in.Type.Name, "fields", len(data))
	return domain.ExtractionResult{Data: data}, nil
}

func (h heuristic) apply(text string, data map[string]any) {
	for _, re := range h.patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			data[h.field] = m[1]
			return
		}
	}
}

func findMerchant(text string) (string, bool) {
	for _, re := range merchantPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			name := strings.TrimSpace(m[1])
			if n := len([]rune(name)); n > 3 && n < 40 {
				return name, true
			}
		}
	}
	return "", false
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		out = append(out, regexp.MustCompile(`(?i)`+expr))
	}
	return out
}
