package integration

import (
	"sort"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

const descriptionLimit = 1000

// documentRecord flattens a document into the source keys a field mapping may reference.
// Extracted fields are addressable by their own name unless they collide with a document field.
func documentRecord(doc *domain.Document) map[string]any {
	rec := map[string]any{
		"id":             doc.ID,
		"user_id":        doc.UserID,
		"title":          doc.Filename,
		"filename":       doc.Filename,
		"description":    truncateRunes(doc.Text, descriptionLimit),
		"document_type":  doc.DocumentType,
		"target_doctype": doc.TargetDoctype,
		"confidence":     doc.Confidence,
		"extracted_data": doc.ExtractedData,
		"status":         string(doc.Status),
	}
	for k, v := range doc.ExtractedData {
		if _, taken := rec[k]; !taken {
			rec[k] = v
		}
	}
	return rec
}

// applyMapping builds target -> value from a target -> source mapping. Missing sources are skipped.
func applyMapping(rec map[string]any, mapping map[string]string) map[string]any {
	out := make(map[string]any, len(mapping))
	targets := make([]string, 0, len(mapping))
	for target := range mapping {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	for _, target := range targets {
		if v, ok := rec[mapping[target]]; ok {
			out[target] = v
		}
	}
	return out
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
