package openwebui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

const (
	extractSystemPrompt = "You are a document data extraction assistant. Always respond in JSON."

	// ConsistencyKey holds the validation verdict attached to extracted data.
	ConsistencyKey = "consistency_check"

	totalTolerance = 0.01
)

type FieldExtractor struct {
	clients ClientSource
	schemas *schemaCache
	logger  *slog.Logger
}

func NewFieldExtractor(clients ClientSource, logger *slog.Logger) *FieldExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FieldExtractor{clients: clients, schemas: newSchemaCache(), logger: logger}
}

// ExtractFields asks the model for structured fields. When the answer is not valid JSON the
// returned error is an LLMProcessingError and the result still carries the token usage.
func (f *FieldExtractor) ExtractFields(ctx context.Context, in domain.ExtractInput) (domain.ExtractionResult, error) {
	text := strings.TrimSpace(in.Text)
	filePath := ""
	if text == "" {
		if in.FilePath == "" {
			return domain.ExtractionResult{}, domain.WrapError(domain.ErrInvalidInput, "extract fields", fmt.Errorf("text or file is required"))
		}
		filePath = in.FilePath
	}

	client := f.clients.ClientFor(in.LLM)
	prompt := buildExtractionPrompt(in.Type, client.Truncate(text), filePath != "")
	content, usage, err := client.ChatJSON(ctx, "extract", extractSystemPrompt, prompt, filePath)
	if err != nil {
		return domain.ExtractionResult{}, err
	}

	data, err := decodeObject(content)
	if err != nil {
		f.logger.Warn("llm.extract.invalid_json", "document_type", in.Type.Name, "content", truncateLog(content))
		return domain.ExtractionResult{Usage: usage}, &domain.LLMProcessingError{Operation: "extract", Err: fmt.Errorf("parse extraction json: %w", err)}
	}

	problems := f.validate(in.Type.Name, data)
	problems = append(problems, checkTotals(data)...)
	if len(problems) > 0 {
		f.logger.Warn("llm.extract.inconsistent", "document_type", in.Type.Name, "problems", problems)
		data[ConsistencyKey] = map[string]any{"valid": false, "errors": problems}
	} else if _, hasItems := data["items"]; hasItems {
		data[ConsistencyKey] = map[string]any{"valid": true}
	}

	return domain.ExtractionResult{Data: data, Usage: usage}, nil
}

func buildExtractionPrompt(t domain.DocumentType, text string, fromFile bool) string {
	body := text
	if fromFile {
		body = "The document is attached as a file."
	}
	if custom := strings.TrimSpace(t.ExtractPrompt); custom != "" {
		return custom + "\n\n" + body
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Extract the structured data of this %s document.\n", t.Name)
	b.WriteString("Return one JSON object that validates against this JSON schema:\n")
	b.WriteString(schemaPromptJSON(t.Name))
	b.WriteString(`

Rules:
- Identify the supplier and the customer by their legal names.
- Format every date as YYYY-MM-DD.
- Give quantities, rates and amounts as plain numbers without currency symbols or thousands separators.
- List every line item with its quantity and rate.
- Line item amounts plus taxes minus discounts must equal the grand total. Copy printed values; do not adjust them to make the totals match.
- Use null for fields that are not present.

Document:
`)
	b.WriteString(body)
	return b.String()
}

func (f *FieldExtractor) validate(typeName string, data map[string]any) []string {
	schema, err := f.schemas.get(typeName)
	if err != nil {
		f.logger.Error("llm.extract.schema_error", "document_type", typeName, "error", err)
		return nil
	}
	err = schema.Validate(map[string]any(data))
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if errors.As(err, &verr) {
		out := make([]string, 0, len(verr.Causes)+1)
		for _, leaf := range leafCauses(verr) {
			out = append(out, fmt.Sprintf("%s: %s", leaf.InstanceLocation, leaf.Message))
		}
		return out
	}
	return []string{err.Error()}
}

func leafCauses(verr *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(verr.Causes) == 0 {
		return []*jsonschema.ValidationError{verr}
	}
	var out []*jsonschema.ValidationError
	for _, c := range verr.Causes {
		out = append(out, leafCauses(c)...)
	}
	return out
}

// checkTotals verifies that line items, taxes and discounts add up to the grand total.
func checkTotals(data map[string]any) []string {
	items, ok := data["items"].([]any)
	if !ok || len(items) == 0 {
		return nil
	}
	total, ok := firstNumber(data, "grand_total", "total")
	if !ok {
		return nil
	}

	var sum float64
	for i, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			return []string{fmt.Sprintf("/items/%d: not an object", i)}
		}
		amount, ok := numberField(item, "amount")
		if !ok {
			qty, okQty := numberField(item, "qty")
			rate, okRate := numberField(item, "rate")
			if !okQty || !okRate {
				return []string{fmt.Sprintf("/items/%d: missing amount or qty and rate", i)}
			}
			amount = qty * rate
		}
		sum += amount
	}
	tax, _ := firstNumber(data, "total_taxes_and_charges", "tax", "tax_amount")
	discount, _ := firstNumber(data, "discount_amount")

	expected := sum + tax - discount
	if math.Abs(expected-total) > totalTolerance {
		return []string{fmt.Sprintf("line items (%.2f) plus tax (%.2f) minus discount (%.2f) = %.2f, grand total is %.2f",
			sum, tax, discount, expected, total)}
	}
	return nil
}

func firstNumber(data map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := numberField(data, k); ok {
			return v, true
		}
	}
	return 0, false
}
