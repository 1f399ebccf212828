package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/doc2sys/internal/config"
	"github.com/kirillkom/doc2sys/internal/core/ports"
	"github.com/kirillkom/doc2sys/internal/core/usecase"
	"github.com/kirillkom/doc2sys/internal/infrastructure/classify"
	"github.com/kirillkom/doc2sys/internal/infrastructure/extractor"
	"github.com/kirillkom/doc2sys/internal/infrastructure/fields"
	"github.com/kirillkom/doc2sys/internal/infrastructure/integration"
	"github.com/kirillkom/doc2sys/internal/infrastructure/llm/openwebui"
	"github.com/kirillkom/doc2sys/internal/infrastructure/monitor"
	"github.com/kirillkom/doc2sys/internal/infrastructure/ocr"
	"github.com/kirillkom/doc2sys/internal/infrastructure/queue/nats"
	"github.com/kirillkom/doc2sys/internal/infrastructure/repository/sqlstore"
	"github.com/kirillkom/doc2sys/internal/infrastructure/resilience"
	"github.com/kirillkom/doc2sys/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/doc2sys/internal/observability/metrics"
)

const integrationTimeout = 30 * time.Second

// Options tune how much of the stack New brings up.
type Options struct {
	Logger *slog.Logger
	// Registerer receives pipeline metrics; nil disables them.
	Registerer prometheus.Registerer
	Service    string
	// Local skips NATS: uploads are stored but not queued and the nats connector has no publisher.
	Local bool
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue   ports.MessageQueue
	Repo    ports.DocumentRepository
	Storage ports.ObjectStorage

	IngestUC     *usecase.IngestDocumentUseCase
	Pipeline     *usecase.Pipeline
	Analyzer     *usecase.Analyzer
	Integrations *usecase.IntegrationUseCase

	// PipelineMetrics is nil when Options.Registerer is nil.
	PipelineMetrics *metrics.PipelineMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	settings := config.NewSettingsProvider(cfg.UserDefaults(), catalog)

	dialect := sqlstore.Dialect(cfg.DBDriver)
	db, err := sqlstore.Open(dialect, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := sqlstore.EnsureSchema(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	store := sqlstore.New(db, dialect)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	var pipelineMetrics *metrics.PipelineMetrics
	var observer usecase.PipelineObserver
	if opts.Registerer != nil {
		service := opts.Service
		if service == "" {
			service = "doc2sys"
		}
		pipelineMetrics = metrics.NewPipelineMetrics(service, opts.Registerer)
		observer = pipelineMetrics
	}

	var (
		queue     *nats.Queue
		msgQueue  ports.MessageQueue
		publisher ports.EventPublisher
	)
	if !opts.Local {
		natsOpts := nats.Options{
			QueueGroup:         "doc2sys-workers",
			ResilienceExecutor: resilience.NewExecutor(resilience.BrokerConfig(), logger),
			Logger:             logger,
		}
		if pipelineMetrics != nil {
			natsOpts.OnLag = pipelineMetrics.ObserveQueueLag
		}
		queue, err = nats.New(cfg.NATSURL, cfg.NATSSubject, natsOpts)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		msgQueue, publisher = queue, queue
	}

	// Users may point at their own backend through the catalog, so the LLM stages are always
	// wired; a user with no usable endpoint falls through to the deterministic paths.
	llmPool := openwebui.NewPool(openwebui.Config{
		BaseURL:        cfg.LLMBaseURL,
		Model:          cfg.LLMModel,
		APIKey:         cfg.LLMAPIKey,
		ChatPath:       cfg.LLMChatPath,
		FilesPath:      cfg.LLMFilesPath,
		Temperature:    cfg.LLMTemperature,
		Timeout:        cfg.LLMTimeout,
		MaxPromptChars: cfg.LLMMaxPromptChars,
	}, func() *resilience.Executor {
		return resilience.NewExecutor(resilience.LLMConfig(), logger)
	}, logger)
	if !llmPool.Configured() {
		logger.Warn("llm.not_configured", "fallback", "keyword_ml_regex", "per_user_overrides", true)
	}
	llmClassifier := openwebui.NewClassifier(llmPool, logger)
	llmFields := openwebui.NewFieldExtractor(llmPool, logger)
	trainer := classify.NewTrainer(store, cfg.ClassifierRetrainTTL, logger)
	classifier := classify.NewComposite(llmClassifier, trainer, logger)
	fieldExtractor := fields.NewComposite(llmFields, fields.NewRegexExtractor(fields.RuleRecognizer{}, logger), logger)

	ocrCfg := ocr.Config{
		Tesseract:   cfg.TesseractBin,
		Pdftoppm:    cfg.PdftoppmBin,
		Pdftotext:   cfg.PdftotextBin,
		DPI:         cfg.OCRDPI,
		MaxPages:    cfg.OCRMaxPages,
		TessdataDir: cfg.TessdataDir,
	}
	runner := ocr.NewExecRunner(logger)
	var pdfSource extractor.PDFTextSource
	if ocr.HasBinary(cfg.PdftotextBin) {
		pdfSource = ocr.NewPoppler(ocrCfg, runner, logger)
	}
	textExtractor := extractor.New(ocr.Detect(ocrCfg, runner, logger), pdfSource, logger)

	registry := integration.NewDefaultRegistry(integration.Deps{
		HTTPClient:   &http.Client{Timeout: integrationTimeout},
		Executor:     resilience.NewExecutor(resilience.ConnectorConfig(), logger),
		Publisher:    publisher,
		EventSubject: cfg.NATSEventSubject,
		Logger:       logger,
	})
	dispatcher := integration.NewDispatcher(registry, store, logger)

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Repo:         store,
		Storage:      storage,
		Extractor:    textExtractor,
		Classifier:   classifier,
		Fields:       fieldExtractor,
		Integrations: dispatcher,
		Settings:     settings,
		Observer:     observer,
		Logger:       logger,
	})

	return &App{
		Config:  cfg,
		Logger:  logger,
		Queue:   msgQueue,
		Repo:    store,
		Storage: storage,

		IngestUC:     usecase.NewIngestDocumentUseCase(store, storage, msgQueue, logger),
		Pipeline:     pipeline,
		Analyzer:     usecase.NewAnalyzer(textExtractor, classifier, fieldExtractor, settings),
		Integrations: usecase.NewIntegrationUseCase(dispatcher, store, settings),

		PipelineMetrics: pipelineMetrics,

		closeFn: func() {
			if queue != nil {
				queue.Close()
			}
			_ = db.Close()
		},
	}, nil
}

// FolderMonitor builds the inbox poller feeding uploads into the ingest use case.
func (a *App) FolderMonitor() (*monitor.FolderMonitor, error) {
	return monitor.New(a.Config.MonitorPath, a.IngestUC, monitor.Options{
		Schedule:    a.Config.MonitorSchedule,
		Parallelism: a.Config.MonitorParallelism,
		UserID:      a.Config.MonitorUserID,
		Logger:      a.Logger,
	})
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
