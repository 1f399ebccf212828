package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/doc2sys/internal/adapters/http"
	"github.com/kirillkom/doc2sys/internal/bootstrap"
	"github.com/kirillkom/doc2sys/internal/config"
	"github.com/kirillkom/doc2sys/internal/observability/logging"
	"github.com/kirillkom/doc2sys/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := metrics.NewRegistry()
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Logger: logger, Registerer: registry, Service: "api"})
	if err != nil {
		logger.Error("bootstrap.failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, httpadapter.Services{
		Ingest:       app.IngestUC,
		Documents:    app.Repo,
		Pipeline:     app.Pipeline,
		Analyzer:     app.Analyzer,
		Integrations: app.Integrations,
	},
		httpadapter.WithLogger(logger),
		httpadapter.WithMetrics(metrics.NewHTTPServerMetrics("api", registry), metrics.Handler(registry)),
	)
	handler, err := router.Handler()
	if err != nil {
		logger.Error("router.init_failed", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.LLMTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api.listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api.server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api.shutdown_failed", "error", err)
	}
}
