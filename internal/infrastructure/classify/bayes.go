package classify

import (
	"errors"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/jbrukh/bayesian"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

// Model is a naive Bayes classifier over word unigrams. A training set with a single label
// has nothing to discriminate, so Predict answers that label with full confidence.
type Model struct {
	labels      []string
	classifier  *bayesian.Classifier
	vocabulary  map[string]struct{}
	sampleCount int
}

// Train builds a model from labeled samples. Samples with empty text or label are skipped.
func Train(samples []domain.LabeledSample) *Model {
	m := &Model{vocabulary: make(map[string]struct{})}

	type doc struct {
		label  string
		tokens []string
	}
	docs := make([]doc, 0, len(samples))
	seen := make(map[string]struct{})
	for _, s := range samples {
		label := strings.TrimSpace(s.DocumentType)
		tokens := tokenize(s.Text)
		if label == "" || len(tokens) == 0 {
			continue
		}
		docs = append(docs, doc{label: label, tokens: tokens})
		if _, ok := seen[label]; !ok {
			seen[label] = struct{}{}
			m.labels = append(m.labels, label)
		}
		for _, tok := range tokens {
			m.vocabulary[tok] = struct{}{}
		}
	}
	m.sampleCount = len(docs)
	sort.Strings(m.labels)
	if len(m.labels) < 2 {
		return m
	}

	classes := make([]bayesian.Class, len(m.labels))
	for i, l := range m.labels {
		classes[i] = bayesian.Class(l)
	}
	m.classifier = bayesian.NewClassifier(classes...)
	for _, d := range docs {
		m.classifier.Learn(d.tokens, bayesian.Class(d.label))
	}
	return m
}

func (m *Model) SampleCount() int { return m.sampleCount }

func (m *Model) Labels() []string { return append([]string(nil), m.labels...) }

// Predict returns the most probable label and its posterior probability. Words never seen in
// training are ignored.
func (m *Model) Predict(text string) (string, float64, bool) {
	if m == nil || len(m.labels) == 0 {
		return "", 0, false
	}
	if m.classifier == nil {
		return m.labels[0], 1, true
	}

	tokens := tokenize(text)
	known := tokens[:0]
	for _, tok := range tokens {
		if _, ok := m.vocabulary[tok]; ok {
			known = append(known, tok)
		}
	}

	// ErrUnderflow still comes with log-domain scores, which are the ones to trust.
	scores, best, _, err := m.classifier.SafeProbScores(known)
	if err != nil && !errors.Is(err, bayesian.ErrUnderflow) {
		return "", 0, false
	}
	prob := scores[best]
	if math.IsNaN(prob) || math.IsInf(prob, 0) {
		prob = DefaultMLConfidence
	}
	return m.labels[best], prob, true
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		out = append(out, f)
	}
	return out
}
