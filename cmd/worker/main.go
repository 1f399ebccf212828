package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/doc2sys/internal/bootstrap"
	"github.com/kirillkom/doc2sys/internal/config"
	"github.com/kirillkom/doc2sys/internal/observability/logging"
	"github.com/kirillkom/doc2sys/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := metrics.NewRegistry()
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Logger: logger, Registerer: registry, Service: "worker"})
	if err != nil {
		logger.Error("bootstrap.failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           metrics.Handler(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker.metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker.metrics_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if cfg.MonitorEnabled {
		folder, err := app.FolderMonitor()
		if err != nil {
			logger.Error("monitor.init_failed", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := folder.Start(ctx); err != nil {
				logger.Error("monitor.failed", "error", err)
			}
		}()
	}

	pm := app.PipelineMetrics
	logger.Info("worker.subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, documentID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, cfg.WorkerProcessTimeout)
		defer cancel()

		pm.StartDocument()
		started := time.Now()
		err := app.Pipeline.ProcessByID(processCtx, documentID)
		pm.FinishDocument(time.Since(started), err)
		return err
	})
	if err != nil {
		logger.Error("worker.subscribe_failed", "error", err)
		os.Exit(1)
	}
}
