package openwebui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const isoDatePattern = `^\d{4}-\d{2}-\d{2}$`

func nullable(typ string) map[string]any {
	return map[string]any{"type": []any{typ, "null"}}
}

func dateField() map[string]any {
	return map[string]any{
		"anyOf": []any{
			map[string]any{"type": "string", "pattern": isoDatePattern},
			map[string]any{"type": "null"},
		},
	}
}

func lineItems() map[string]any {
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"item_name":   nullable("string"),
				"description": nullable("string"),
				"qty":         nullable("number"),
				"rate":        nullable("number"),
				"amount":      nullable("number"),
			},
		},
	}
}

func invoiceSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"supplier":                nullable("string"),
			"supplier_tax_id":         nullable("string"),
			"customer":                nullable("string"),
			"invoice_number":          nullable("string"),
			"posting_date":            dateField(),
			"due_date":                dateField(),
			"currency":                nullable("string"),
			"items":                   lineItems(),
			"net_total":               nullable("number"),
			"total_taxes_and_charges": nullable("number"),
			"discount_amount":         nullable("number"),
			"grand_total":             nullable("number"),
		},
	}
}

func receiptSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"merchant":       nullable("string"),
			"receipt_number": nullable("string"),
			"date":           dateField(),
			"currency":       nullable("string"),
			"payment_method": nullable("string"),
			"items":          lineItems(),
			"tax":            nullable("number"),
			"total":          nullable("number"),
		},
	}
}

func genericSchema() map[string]any {
	return map[string]any{"type": "object"}
}

// schemaFor picks the built-in schema for a document type name.
func schemaFor(typeName string) map[string]any {
	name := strings.ToLower(typeName)
	switch {
	case strings.Contains(name, "receipt"):
		return receiptSchema()
	case strings.Contains(name, "invoice"), strings.Contains(name, "order"), strings.Contains(name, "quotation"), strings.Contains(name, "bill"):
		return invoiceSchema()
	default:
		return genericSchema()
	}
}

type schemaCache struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

func newSchemaCache() *schemaCache {
	return &schemaCache{compiled: make(map[string]*jsonschema.Schema)}
}

func (c *schemaCache) get(typeName string) (*jsonschema.Schema, error) {
	key := strings.ToLower(strings.TrimSpace(typeName))
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.compiled[key]; ok {
		return s, nil
	}
	s, err := compileSchema(schemaFor(typeName))
	if err != nil {
		return nil, err
	}
	c.compiled[key] = s
	return s, nil
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func schemaPromptJSON(typeName string) string {
	b, err := json.MarshalIndent(schemaFor(typeName), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
