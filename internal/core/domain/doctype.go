package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// DocumentType is a configured category with its classification keywords and extraction rules.
type DocumentType struct {
	Name          string
	TargetDoctype string
	Keywords      []string
	ExtractPrompt string
	Patterns      []ExtractionPattern
}

// NormalizedKeywords lowercases, trims and drops blank keywords, keeping the first occurrence of each.
func (t DocumentType) NormalizedKeywords() []string {
	seen := make(map[string]struct{}, len(t.Keywords))
	out := make([]string, 0, len(t.Keywords))
	for _, kw := range t.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

// SplitKeywords parses a comma separated keyword list.
func SplitKeywords(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FindType matches a type name case-insensitively.
func FindType(types []DocumentType, name string) (DocumentType, bool) {
	name = strings.TrimSpace(name)
	for _, t := range types {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return DocumentType{}, false
}

// ExtractionPattern is a compiled per-field regular expression.
// Construct it with NewExtractionPattern so invalid expressions fail at configuration time.
type ExtractionPattern struct {
	Field string
	Raw   string
	re    *regexp.Regexp
}

func NewExtractionPattern(field, expr string) (ExtractionPattern, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return ExtractionPattern{}, WrapError(ErrInvalidInput, "compile extraction pattern", fmt.Errorf("field name is required"))
	}
	re, err := regexp.Compile("(?im)" + expr)
	if err != nil {
		return ExtractionPattern{}, WrapError(ErrInvalidInput, "compile extraction pattern "+field, err)
	}
	return ExtractionPattern{Field: field, Raw: expr, re: re}, nil
}

func MustExtractionPattern(field, expr string) ExtractionPattern {
	p, err := NewExtractionPattern(field, expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Match returns the first capture group when the pattern has one, otherwise the whole match.
func (p ExtractionPattern) Match(text string) (string, bool) {
	if p.re == nil {
		return "", false
	}
	m := p.re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	if len(m) > 1 {
		return strings.TrimSpace(m[1]), true
	}
	return strings.TrimSpace(m[0]), true
}
