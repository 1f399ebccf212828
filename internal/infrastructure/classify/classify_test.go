package classify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

var testTypes = []domain.DocumentType{
	{Name: "Invoice", TargetDoctype: "Purchase Invoice", Keywords: []string{"invoice", "bill", "payment due"}},
	{Name: "Receipt", TargetDoctype: "Expense Claim", Keywords: []string{"receipt", "paid", "thank you"}},
	{Name: "Letter"},
}

type fakeSamples struct {
	samples []domain.LabeledSample
	err     error
	calls   int
}

func (f *fakeSamples) ListLabeledSamples(context.Context, int) ([]domain.LabeledSample, error) {
	f.calls++
	return f.samples, f.err
}

type fakeClassifier struct {
	res domain.ClassificationResult
	err error
}

func (f fakeClassifier) Classify(context.Context, domain.ClassifyInput) (domain.ClassificationResult, error) {
	return f.res, f.err
}

func TestKeywordRoundTripYieldsFullConfidence(t *testing.T) {
	for _, typ := range testTypes[:2] {
		text := strings.Join(typ.Keywords, " ")
		res, ok := BestKeywordMatch(text, testTypes)
		if !ok {
			t.Fatalf("expected %s to match", typ.Name)
		}
		if res.DocumentType != typ.Name || res.Confidence != 1.0 {
			t.Fatalf("BestKeywordMatch(%q) = %+v", text, res)
		}
		if res.TargetDoctype != typ.TargetDoctype {
			t.Fatalf("expected target doctype %q, got %q", typ.TargetDoctype, res.TargetDoctype)
		}
	}
}

func TestKeywordScoreFraction(t *testing.T) {
	res, ok := BestKeywordMatch("Please find the INVOICE attached.", testTypes)
	if !ok || res.DocumentType != "Invoice" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Confidence < 0.33 || res.Confidence > 0.34 {
		t.Fatalf("expected 1/3 confidence, got %v", res.Confidence)
	}
}

func TestKeywordTieKeepsEarlierType(t *testing.T) {
	res, _ := BestKeywordMatch("invoice receipt", testTypes)
	if res.DocumentType != "Invoice" {
		t.Fatalf("expected first declared type on tie, got %q", res.DocumentType)
	}
}

func TestKeywordNoMatchIsUnknown(t *testing.T) {
	res, ok := BestKeywordMatch("quarterly newsletter", testTypes)
	if ok || res.DocumentType != domain.UnknownDocumentType || res.Confidence != 0 {
		t.Fatalf("expected unknown/0, got %+v ok=%v", res, ok)
	}
}

func TestNaiveBayesPredictsDominantVocabulary(t *testing.T) {
	model := Train([]domain.LabeledSample{
		{Text: "invoice number total due vat", DocumentType: "Invoice"},
		{Text: "invoice amount due supplier", DocumentType: "Invoice"},
		{Text: "receipt cashier change paid", DocumentType: "Receipt"},
		{Text: "receipt store paid cash", DocumentType: "Receipt"},
		{Text: "", DocumentType: "Receipt"},
		{Text: "orphan", DocumentType: ""},
	})
	if model.SampleCount() != 4 {
		t.Fatalf("expected blank samples to be skipped, got %d", model.SampleCount())
	}
	label, prob, ok := model.Predict("cashier paid cash at the store")
	if !ok || label != "Receipt" {
		t.Fatalf("Predict() = %q %v %v", label, prob, ok)
	}
	if prob <= 0.5 || prob > 1 {
		t.Fatalf("expected probability in (0.5, 1], got %v", prob)
	}
}

func TestNaiveBayesSingleLabelAnswersThatLabel(t *testing.T) {
	model := Train([]domain.LabeledSample{
		{Text: "invoice total", DocumentType: "Invoice"},
		{Text: "invoice vat", DocumentType: "Invoice"},
	})
	label, prob, ok := model.Predict("anything at all")
	if !ok || label != "Invoice" || prob != 1 {
		t.Fatalf("Predict() = %q %v %v", label, prob, ok)
	}
}

func TestNaiveBayesIgnoresUnseenWords(t *testing.T) {
	model := Train(bayesSamples())
	label, _, ok := model.Predict("cashier " + strings.Repeat("zzz ", 50))
	if !ok || label != "Receipt" {
		t.Fatalf("unseen words should not drown the known one, got %q ok=%v", label, ok)
	}
	if got := Train(nil); got.SampleCount() != 0 {
		t.Fatalf("expected empty model")
	}
	if _, _, ok := Train(nil).Predict("x"); ok {
		t.Fatalf("empty model must not predict")
	}
}

func TestTrainerRequiresMinimumSamples(t *testing.T) {
	src := &fakeSamples{samples: []domain.LabeledSample{
		{Text: "a invoice", DocumentType: "Invoice"},
		{Text: "b invoice", DocumentType: "Invoice"},
	}}
	trainer := NewTrainer(src, time.Minute, nil)
	if m := trainer.Model(context.Background()); m != nil {
		t.Fatalf("expected no model with 2 samples")
	}
}

func TestTrainerCachesUntilTTL(t *testing.T) {
	src := &fakeSamples{samples: bayesSamples()}
	trainer := NewTrainer(src, time.Minute, nil)
	now := time.Unix(1000, 0)
	trainer.now = func() time.Time { return now }

	if trainer.Model(context.Background()) == nil {
		t.Fatalf("expected model")
	}
	trainer.Model(context.Background())
	if src.calls != 1 {
		t.Fatalf("expected cached model, got %d loads", src.calls)
	}
	now = now.Add(2 * time.Minute)
	trainer.Model(context.Background())
	if src.calls != 2 {
		t.Fatalf("expected retrain after ttl, got %d loads", src.calls)
	}
	trainer.Invalidate()
	trainer.Model(context.Background())
	if src.calls != 3 {
		t.Fatalf("expected retrain after invalidate, got %d loads", src.calls)
	}
}

func TestCompositeUsesPrimaryWhenItSucceeds(t *testing.T) {
	want := domain.ClassificationResult{DocumentType: "Receipt", Confidence: 0.92}
	c := NewComposite(fakeClassifier{res: want}, nil, nil)
	got, err := c.Classify(context.Background(), domain.ClassifyInput{Text: "invoice", Types: testTypes})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got != want {
		t.Fatalf("Classify() = %+v, want %+v", got, want)
	}
}

func TestCompositeFallsBackToKeywordsOnLLMError(t *testing.T) {
	c := NewComposite(fakeClassifier{err: errors.New("connection refused")}, nil, nil)
	got, err := c.Classify(context.Background(), domain.ClassifyInput{Text: "receipt paid thank you", Types: testTypes})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got.DocumentType != "Receipt" || got.Confidence != 1.0 {
		t.Fatalf("unexpected fallback result %+v", got)
	}
}

func TestCompositeEmptyTextDegradesToUnknown(t *testing.T) {
	c := NewComposite(fakeClassifier{err: errors.New("boom")}, nil, nil)
	got, err := c.Classify(context.Background(), domain.ClassifyInput{FilePath: "/tmp/x.png", Types: testTypes})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got.DocumentType != domain.UnknownDocumentType {
		t.Fatalf("expected unknown, got %+v", got)
	}
}

func TestCompositeBlendsModelPrediction(t *testing.T) {
	trainer := NewTrainer(&fakeSamples{samples: bayesSamples()}, time.Minute, nil)
	c := NewComposite(nil, trainer, nil)

	got := c.Fallback(context.Background(), "cashier store cash", testTypes)
	if got.DocumentType != "Receipt" || got.Reasoning != "naive bayes" {
		t.Fatalf("expected model prediction, got %+v", got)
	}

	got = c.Fallback(context.Background(), "invoice bill payment due", testTypes)
	if got.DocumentType != "Invoice" || got.Confidence != 1.0 {
		t.Fatalf("expected full keyword match to win, got %+v", got)
	}
}

func TestCompositeLowModelConfidenceIsUnknown(t *testing.T) {
	// Five labels with one sample each and no overlapping vocabulary: an unseen text gets 0.2 per label.
	samples := []domain.LabeledSample{
		{Text: "alpha", DocumentType: "Invoice"},
		{Text: "bravo", DocumentType: "Receipt"},
		{Text: "charlie", DocumentType: "Letter"},
		{Text: "delta", DocumentType: "Memo"},
		{Text: "echo", DocumentType: "Contract"},
	}
	c := NewComposite(nil, NewTrainer(&fakeSamples{samples: samples}, time.Minute, nil), nil)
	got := c.Fallback(context.Background(), "zulu", testTypes)
	if got.DocumentType != domain.UnknownDocumentType {
		t.Fatalf("expected unknown, got %+v", got)
	}
	if got.Confidence < 0.19 || got.Confidence > 0.21 {
		t.Fatalf("expected model confidence to be kept, got %v", got.Confidence)
	}
}

func bayesSamples() []domain.LabeledSample {
	return []domain.LabeledSample{
		{Text: "supplier vat number total net", DocumentType: "Invoice"},
		{Text: "supplier net amount vat", DocumentType: "Invoice"},
		{Text: "vat registration supplier", DocumentType: "Invoice"},
		{Text: "cashier store cash change", DocumentType: "Receipt"},
		{Text: "store cash cashier", DocumentType: "Receipt"},
		{Text: "cash change store", DocumentType: "Receipt"},
	}
}
