package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/doc2sys/internal/core/domain"
)

type memoryRepo struct {
	mu        sync.Mutex
	docs      map[string]domain.Document
	createErr error
	saveCalls map[string]int
}

func newMemoryRepo(docs ...domain.Document) *memoryRepo {
	r := &memoryRepo{docs: make(map[string]domain.Document), saveCalls: make(map[string]int)}
	for _, d := range docs {
		r.docs[d.ID] = d
	}
	return r
}

func (r *memoryRepo) update(id, op string, fn func(*domain.Document)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, op, errors.New(id))
	}
	fn(&doc)
	r.docs[id] = doc
	r.saveCalls[op]++
	return nil
}

func (r *memoryRepo) Create(_ context.Context, doc *domain.Document) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = *doc
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get", errors.New(id))
	}
	return &doc, nil
}

func (r *memoryRepo) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, msg string) error {
	return r.update(id, "status", func(d *domain.Document) { d.Status, d.Error = status, msg })
}

func (r *memoryRepo) SaveText(_ context.Context, id, text string) error {
	return r.update(id, "text", func(d *domain.Document) { d.Text = text })
}

func (r *memoryRepo) SaveClassification(_ context.Context, id string, cls domain.ClassificationResult) error {
	return r.update(id, "classification", func(d *domain.Document) {
		d.DocumentType, d.TargetDoctype, d.Confidence = cls.DocumentType, cls.TargetDoctype, cls.Confidence
	})
}

func (r *memoryRepo) SaveExtractedData(_ context.Context, id string, data map[string]any) error {
	return r.update(id, "data", func(d *domain.Document) { d.ExtractedData = data })
}

func (r *memoryRepo) SaveUsage(_ context.Context, id string, u domain.Usage) error {
	return r.update(id, "usage", func(d *domain.Document) { d.Usage = u })
}

func (r *memoryRepo) ListLabeledSamples(context.Context, int) ([]domain.LabeledSample, error) {
	return nil, nil
}

func (r *memoryRepo) get(id string) domain.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[id]
}

type storageFake struct {
	savedKey  string
	savedBody string
	err       error
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.savedKey, f.savedBody = key, string(raw)
	return nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.savedBody)), nil
}

func (f *storageFake) Path(key string) (string, error) { return "/data/" + key, nil }

type queueFake struct {
	documentID string
	err        error
}

func (f *queueFake) PublishDocumentIngested(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.documentID = documentID
	return nil
}

func (f *queueFake) SubscribeDocumentIngested(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

type settingsFake struct {
	settings domain.UserSettings
	err      error
}

func (f settingsFake) ForUser(_ context.Context, userID string) (domain.UserSettings, error) {
	s := f.settings
	s.UserID = userID
	return s, f.err
}

type extractorFake struct {
	text  string
	err   error
	paths []string
}

func (f *extractorFake) Extract(_ context.Context, path string, _ domain.ExtractOptions) (string, error) {
	f.paths = append(f.paths, path)
	return f.text, f.err
}

type classifierFake struct {
	res   domain.ClassificationResult
	err   error
	delay time.Duration
	calls int
	last  domain.ClassifyInput
}

func (f *classifierFake) Classify(_ context.Context, in domain.ClassifyInput) (domain.ClassificationResult, error) {
	f.calls++
	f.last = in
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.res, f.err
}

type fieldsFake struct {
	res   domain.ExtractionResult
	err   error
	delay time.Duration
	calls int
}

func (f *fieldsFake) ExtractFields(context.Context, domain.ExtractInput) (domain.ExtractionResult, error) {
	f.calls++
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.res, f.err
}

type dispatcherFake struct {
	logs    []domain.IntegrationLog
	targets []domain.IntegrationSettings
	tested  domain.IntegrationSettings
}

func (f *dispatcherFake) Dispatch(_ context.Context, doc *domain.Document, targets []domain.IntegrationSettings) ([]domain.IntegrationLog, error) {
	f.targets = targets
	if f.logs != nil {
		return f.logs, nil
	}
	out := make([]domain.IntegrationLog, 0, len(targets))
	for _, t := range targets {
		out = append(out, domain.IntegrationLog{DocumentID: doc.ID, Integration: t.Name, Status: domain.IntegrationSuccess})
	}
	return out, nil
}

func (f *dispatcherFake) Test(_ context.Context, s domain.IntegrationSettings) error {
	f.tested = s
	return nil
}

func (f *dispatcherFake) Connectors() []domain.ConnectorInfo {
	return []domain.ConnectorInfo{{Name: "erpnext"}}
}

type observerFake struct {
	mu     sync.Mutex
	stages []string
	tokens int64
}

func (o *observerFake) StageFinished(stage domain.Stage, success bool, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	mark := "ok"
	if !success {
		mark = "failed"
	}
	o.stages = append(o.stages, string(stage)+":"+mark)
}

func (o *observerFake) LLMUsage(u domain.TokenUsage, _ float64) {
	o.mu.Lock()
	o.tokens += u.InputTokens + u.OutputTokens
	o.mu.Unlock()
}
