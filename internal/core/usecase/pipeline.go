package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/doc2sys/internal/core/domain"
	"github.com/kirillkom/doc2sys/internal/core/ports"
	"github.com/kirillkom/doc2sys/internal/core/session"
	"github.com/kirillkom/doc2sys/internal/core/usage"
)

// PipelineObserver receives stage outcomes and LLM usage, typically for metrics.
type PipelineObserver interface {
	StageFinished(stage domain.Stage, success bool, elapsed time.Duration)
	LLMUsage(u domain.TokenUsage, cost float64)
}

type PipelineDeps struct {
	Repo         ports.DocumentRepository
	Storage      ports.ObjectStorage
	Extractor    ports.TextExtractor
	Classifier   ports.DocumentClassifier
	Fields       ports.FieldExtractor
	Integrations ports.IntegrationDispatcher
	Settings     ports.SettingsProvider
	Observer     PipelineObserver
	Logger       *slog.Logger
}

// Pipeline runs the document stages. Every stage is re-runnable on its own; a stage failure is
// reported in the StageResult and leaves the outputs of earlier stages untouched.
type Pipeline struct {
	deps   PipelineDeps
	logger *slog.Logger
}

func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{deps: deps, logger: logger}
}

// run is the state of one pipeline invocation for one document.
type run struct {
	doc      *domain.Document
	settings domain.UserSettings
	tracker  *usage.Tracker
}

// outcome is a stage-level result. Persistence failures travel separately as errors.
type outcome struct {
	success bool
	message string
}

func failed(format string, args ...any) outcome {
	return outcome{message: fmt.Sprintf(format, args...)}
}

func (p *Pipeline) ExtractText(ctx context.Context, documentID string) (domain.StageResult, error) {
	return p.single(ctx, documentID, domain.StageExtractText, p.extractText)
}

func (p *Pipeline) Classify(ctx context.Context, documentID string) (domain.StageResult, error) {
	return p.single(ctx, documentID, domain.StageClassify, p.classify)
}

func (p *Pipeline) ExtractFields(ctx context.Context, documentID string) (domain.StageResult, error) {
	return p.single(ctx, documentID, domain.StageExtractFields, p.extractFields)
}

func (p *Pipeline) TriggerIntegrations(ctx context.Context, documentID string) (domain.StageResult, error) {
	return p.single(ctx, documentID, domain.StageIntegrations, p.triggerIntegrations)
}

// ProcessAll runs every remaining stage under one timed root, stopping at the first failure.
func (p *Pipeline) ProcessAll(ctx context.Context, documentID string) (domain.StageResult, error) {
	ctx, r, err := p.begin(ctx, documentID)
	if err != nil {
		return domain.StageResult{}, err
	}

	var result outcome
	err = r.tracker.Time(ctx, func(ctx context.Context) error {
		steps := p.remainingStages(r.doc)
		if len(steps) == 0 {
			result = outcome{success: true, message: "Nothing left to process"}
			return nil
		}
		var done []string
		for _, s := range steps {
			res, err := p.observe(ctx, r, s)
			if err != nil {
				return err
			}
			if !res.success {
				result = res
				return nil
			}
			done = append(done, string(s.stage))
			// An unknown type ends the run without field extraction.
			if s.stage == domain.StageClassify && !r.doc.HasKnownType() {
				result = failed("Document type could not be determined; field extraction skipped")
				return nil
			}
		}
		result = outcome{success: true, message: "Completed stages: " + strings.Join(done, ", ")}
		return nil
	})
	if err != nil {
		return domain.StageResult{}, err
	}
	return p.finish(ctx, r, domain.StageProcessAll, result)
}

// ProcessByID is the worker entry point; stage failures are logged, not returned.
func (p *Pipeline) ProcessByID(ctx context.Context, documentID string) error {
	res, err := p.ProcessAll(ctx, documentID)
	if err != nil {
		return err
	}
	if !res.Success {
		p.logger.Warn("pipeline.incomplete", "document_id", documentID, "message", res.Message)
	}
	return nil
}

// ResetMetrics zeroes the document's token, cost and duration totals in one write.
func (p *Pipeline) ResetMetrics(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := p.deps.Repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	tracker := usage.NewTracker(doc.Usage, p.logger)
	tracker.Reset()
	if err := p.deps.Repo.SaveUsage(ctx, documentID, tracker.Snapshot()); err != nil {
		return nil, fmt.Errorf("reset usage: %w", err)
	}
	doc.Usage = tracker.Snapshot()
	p.logger.Info("pipeline.metrics_reset", "document_id", documentID)
	return doc, nil
}

type stageFunc func(ctx context.Context, r *run) (outcome, error)

type step struct {
	stage domain.Stage
	fn    stageFunc
}

func (p *Pipeline) remainingStages(doc *domain.Document) []step {
	rank := doc.Status.Rank()
	var steps []step
	if rank < domain.StatusTextExtracted.Rank() {
		steps = append(steps, step{domain.StageExtractText, p.extractText})
	}
	if rank < domain.StatusClassified.Rank() || !doc.HasKnownType() {
		steps = append(steps, step{domain.StageClassify, p.classify})
	}
	if rank < domain.StatusDataExtracted.Rank() || len(doc.ExtractedData) == 0 {
		steps = append(steps, step{domain.StageExtractFields, p.extractFields})
	}
	if rank < domain.StatusIntegrationsTriggered.Rank() {
		steps = append(steps, step{domain.StageIntegrations, p.triggerIntegrations})
	}
	return steps
}

func (p *Pipeline) single(ctx context.Context, documentID string, stage domain.Stage, fn stageFunc) (domain.StageResult, error) {
	ctx, r, err := p.begin(ctx, documentID)
	if err != nil {
		return domain.StageResult{}, err
	}
	var res outcome
	err = r.tracker.Time(ctx, func(ctx context.Context) error {
		var stageErr error
		res, stageErr = p.observe(ctx, r, step{stage: stage, fn: fn})
		return stageErr
	})
	if err != nil {
		return domain.StageResult{}, err
	}
	return p.finish(ctx, r, stage, res)
}

func (p *Pipeline) begin(ctx context.Context, documentID string) (context.Context, *run, error) {
	doc, err := p.deps.Repo.GetByID(ctx, documentID)
	if err != nil {
		return ctx, nil, fmt.Errorf("fetch document by id: %w", err)
	}
	settings, err := p.deps.Settings.ForUser(ctx, doc.UserID)
	if err != nil {
		return ctx, nil, fmt.Errorf("resolve user settings: %w", err)
	}
	if session.FromContext(ctx) == nil {
		ctx = session.NewContext(ctx, session.New())
	}
	return ctx, &run{
		doc:      doc,
		settings: settings,
		tracker:  usage.NewTracker(doc.Usage, p.logger.With("document_id", doc.ID)),
	}, nil
}

func (p *Pipeline) observe(ctx context.Context, r *run, s step) (outcome, error) {
	start := time.Now()
	res, err := s.fn(ctx, r)
	elapsed := time.Since(start)
	if err != nil {
		p.logger.Error("pipeline.stage.persist_failed", "document_id", r.doc.ID, "stage", s.stage, "error", err)
		return res, err
	}
	if p.deps.Observer != nil {
		p.deps.Observer.StageFinished(s.stage, res.success, elapsed)
	}
	level := slog.LevelInfo
	msg := "pipeline.stage.ok"
	if !res.success {
		level, msg = slog.LevelWarn, "pipeline.stage.failed"
	}
	p.logger.Log(ctx, level, msg,
		"document_id", r.doc.ID,
		"stage", s.stage,
		"elapsed_ms", elapsed.Milliseconds(),
		"message", res.message,
	)

	if res.success {
		return res, p.deps.Repo.UpdateStatus(ctx, r.doc.ID, r.doc.Status, "")
	}
	r.doc.Error = res.message
	return res, p.deps.Repo.UpdateStatus(ctx, r.doc.ID, r.doc.Status, res.message)
}

func (p *Pipeline) finish(ctx context.Context, r *run, stage domain.Stage, res outcome) (domain.StageResult, error) {
	r.doc.Usage = r.tracker.Snapshot()
	if err := p.deps.Repo.SaveUsage(ctx, r.doc.ID, r.doc.Usage); err != nil {
		return domain.StageResult{}, fmt.Errorf("save usage: %w", err)
	}
	if res.success {
		r.doc.Error = ""
	}
	return domain.StageResult{
		Stage:    stage,
		Success:  res.success,
		Message:  res.message,
		Document: r.doc,
	}, nil
}

func (p *Pipeline) sourcePath(doc *domain.Document) (string, error) {
	if p.deps.Storage == nil {
		return doc.StoragePath, nil
	}
	return p.deps.Storage.Path(doc.StoragePath)
}

func (p *Pipeline) addTokens(ctx context.Context, r *run, u *domain.TokenUsage) {
	if u == nil {
		return
	}
	r.tracker.AddTokens(ctx, u, r.settings.Pricing)
	if p.deps.Observer != nil {
		_, _, cost := r.settings.Pricing.Cost(*u)
		p.deps.Observer.LLMUsage(*u, cost)
	}
}

func (p *Pipeline) extractText(ctx context.Context, r *run) (outcome, error) {
	path, err := p.sourcePath(r.doc)
	if err != nil {
		return failed("Text extraction failed: %v", err), nil
	}
	text, err := p.deps.Extractor.Extract(ctx, path, r.settings.ExtractOptions())
	if err != nil {
		return failed("Text extraction failed: %v", err), nil
	}
	if err := p.deps.Repo.SaveText(ctx, r.doc.ID, text); err != nil {
		return outcome{}, fmt.Errorf("save text: %w", err)
	}
	r.doc.Text = text
	r.doc.Status = r.doc.Status.Advance(domain.StatusTextExtracted)
	if strings.TrimSpace(text) == "" {
		return outcome{success: true, message: "No text could be extracted; later stages will use the file"}, nil
	}
	return outcome{success: true, message: fmt.Sprintf("Extracted %d characters", len([]rune(text)))}, nil
}

func (p *Pipeline) classify(ctx context.Context, r *run) (outcome, error) {
	types := r.settings.DocumentTypes
	if len(types) == 0 {
		return failed("Classification failed: no document types are enabled"), nil
	}
	in := domain.ClassifyInput{Text: r.doc.Text, Types: types, LLM: r.settings.LLM}
	if strings.TrimSpace(in.Text) == "" {
		path, err := p.sourcePath(r.doc)
		if err != nil {
			return failed("Classification failed: %v", err), nil
		}
		in.FilePath = path
	}

	res, err := p.deps.Classifier.Classify(ctx, in)
	p.addTokens(ctx, r, res.Usage)
	if err != nil {
		return failed("Classification failed: %v", err), nil
	}
	if err := p.deps.Repo.SaveClassification(ctx, r.doc.ID, res); err != nil {
		return outcome{}, fmt.Errorf("save classification: %w", err)
	}
	r.doc.DocumentType = res.DocumentType
	r.doc.TargetDoctype = res.TargetDoctype
	r.doc.Confidence = res.Confidence
	r.doc.Status = r.doc.Status.Advance(domain.StatusClassified)
	return outcome{success: true, message: fmt.Sprintf("Classified as %s (confidence %.2f)", res.DocumentType, res.Confidence)}, nil
}

func (p *Pipeline) extractFields(ctx context.Context, r *run) (outcome, error) {
	if !r.doc.HasKnownType() {
		return failed("Field extraction requires a classified document type"), nil
	}
	docType, ok := domain.FindType(r.settings.DocumentTypes, r.doc.DocumentType)
	if !ok {
		docType = domain.DocumentType{Name: r.doc.DocumentType, TargetDoctype: r.doc.TargetDoctype}
	}
	in := domain.ExtractInput{Text: r.doc.Text, Type: docType, LLM: r.settings.LLM}
	if strings.TrimSpace(in.Text) == "" {
		path, err := p.sourcePath(r.doc)
		if err != nil {
			return failed("Field extraction failed: %v", err), nil
		}
		in.FilePath = path
	}

	res, err := p.deps.Fields.ExtractFields(ctx, in)
	p.addTokens(ctx, r, res.Usage)
	if err != nil {
		return failed("Field extraction failed: %v", err), nil
	}
	data := res.Data
	if data == nil {
		data = map[string]any{}
	}
	if err := p.deps.Repo.SaveExtractedData(ctx, r.doc.ID, data); err != nil {
		return outcome{}, fmt.Errorf("save extracted data: %w", err)
	}
	r.doc.ExtractedData = data
	r.doc.Status = r.doc.Status.Advance(domain.StatusDataExtracted)
	return outcome{success: true, message: fmt.Sprintf("Extracted %d fields", len(data))}, nil
}

func (p *Pipeline) triggerIntegrations(ctx context.Context, r *run) (outcome, error) {
	if len(r.doc.ExtractedData) == 0 {
		return failed("No extracted data to send to integrations"), nil
	}
	if p.deps.Integrations == nil {
		return outcome{success: true, message: "Integrations are not configured"}, nil
	}
	targets := r.settings.AutoSyncIntegrations()
	if len(targets) == 0 {
		return outcome{success: true, message: "No auto-sync integrations enabled"}, nil
	}

	logs, err := p.deps.Integrations.Dispatch(ctx, r.doc, targets)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return failed("Integrations interrupted: %v", ctxErr), nil
		}
		p.logger.Warn("pipeline.integration_log_failed", "document_id", r.doc.ID, "error", err)
	}
	var failures []string
	for _, entry := range logs {
		if entry.Status != domain.IntegrationSuccess {
			failures = append(failures, entry.Integration)
		}
	}
	r.doc.Status = r.doc.Status.Advance(domain.StatusIntegrationsTriggered)
	if len(failures) > 0 {
		return outcome{
			success: false,
			message: fmt.Sprintf("Synced %d of %d integrations; failed: %s", len(logs)-len(failures), len(targets), strings.Join(failures, ", ")),
		}, nil
	}
	return outcome{success: true, message: fmt.Sprintf("Synced %d integrations", len(logs))}, nil
}
