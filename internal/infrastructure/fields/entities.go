package fields

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// EntityRecognizer finds generic entities (organizations, dates, money) in free text.
type EntityRecognizer interface {
	Available() bool
	Recognize(text string) map[string]any
}

// NoopRecognizer stands in when entity extraction is disabled.
type NoopRecognizer struct{}

func (NoopRecognizer) Available() bool                { return false }
func (NoopRecognizer) Recognize(string) map[string]any { return nil }

const maxEntityText = 100000

var (
	orgPattern   = regexp.MustCompile(`\b((?:[A-Z][\w&'.-]*\s+){0,4}(?:Ltd|Limited|Inc|LLC|GmbH|AG|S\.?A\.?|SRL|BV|PLC|Corp|Corporation|Company|Co\.))(?:\W|$)`)
	datePattern  = regexp.MustCompile(`\b(\d{4}-\d{1,2}-\d{1,2}|\d{1,2}[/.-]\d{1,2}[/.-]\d{4})\b`)
	moneyPattern = regexp.MustCompile(`(?i)(?:[€$£]\s?\d[\d,]*(?:\.\d+)?|\d[\d,]*(?:\.\d+)?\s?(?:€|\$|£|eur\b|usd\b|gbp\b))`)
	nonNumeric   = regexp.MustCompile(`[^\d.]`)
)

var dateLayouts = []string{"2/1/2006", "2-1-2006", "2006-1-2", "2.1.2006"}

// RuleRecognizer is a pattern-based recognizer. Dates are normalized to YYYY-MM-DD and
// the largest money amount is reported as total_amount.
type RuleRecognizer struct{}

func (RuleRecognizer) Available() bool { return true }

func (RuleRecognizer) Recognize(text string) map[string]any {
	if len(text) > maxEntityText {
		text = text[:maxEntityText]
	}
	out := make(map[string]any)

	if orgs := uniqueMatches(orgPattern, text, 1); len(orgs) > 0 {
		out["organizations"] = orgs
	}

	var dates []string
	for _, raw := range uniqueMatches(datePattern, text, 1) {
		if normalized, ok := NormalizeDate(raw); ok {
			dates = append(dates, normalized)
		}
	}
	if len(dates) > 0 {
		out["dates"] = dates
		out["document_date"] = dates[0]
	}

	if amounts := uniqueMatches(moneyPattern, text, 0); len(amounts) > 0 {
		out["amounts"] = amounts
		var (
			largest float64
			found   bool
		)
		for _, a := range amounts {
			v, ok := ParseMoney(a)
			if !ok {
				continue
			}
			if !found || v > largest {
				largest, found = v, true
			}
		}
		if found {
			out["total_amount"] = largest
		}
	}
	return out
}

// NormalizeDate parses day-first and ISO formats and returns YYYY-MM-DD.
func NormalizeDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(time.DateOnly), true
		}
	}
	return "", false
}

// ParseMoney strips everything but digits and dots and parses the remainder.
func ParseMoney(raw string) (float64, bool) {
	clean := nonNumeric.ReplaceAllString(raw, "")
	if clean == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func uniqueMatches(re *regexp.Regexp, text string, group int) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		v := strings.TrimSpace(m[group])
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
