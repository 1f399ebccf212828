package classify

import (
	"strings"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

// KeywordScore is the fraction of a type's normalized keywords found in the lowercased text.
func KeywordScore(lowerText string, t domain.DocumentType) float64 {
	keywords := t.NormalizedKeywords()
	if len(keywords) == 0 {
		return 0
	}
	matches := 0
	for _, kw := range keywords {
		if strings.Contains(lowerText, kw) {
			matches++
		}
	}
	return float64(matches) / float64(len(keywords))
}

// BestKeywordMatch returns the type with the highest non-zero score. Ties keep the earlier type.
func BestKeywordMatch(text string, types []domain.DocumentType) (domain.ClassificationResult, bool) {
	lower := strings.ToLower(text)
	var (
		best      domain.DocumentType
		bestScore float64
	)
	for _, t := range types {
		if score := KeywordScore(lower, t); score > bestScore {
			best, bestScore = t, score
		}
	}
	if bestScore == 0 {
		return domain.Unknown(0), false
	}
	return domain.ClassificationResult{
		DocumentType:  best.Name,
		Confidence:    bestScore,
		TargetDoctype: best.TargetDoctype,
		Reasoning:     "keyword match",
	}, true
}
