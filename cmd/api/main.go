package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpadapter "github.com/kirillkom/fin-extract/internal/adapters/http"
	"github.com/kirillkom/fin-extract/internal/bootstrap"
	"github.com/kirillkom/fin-extract/internal/config"
	"github.com/kirillkom/fin-extract/internal/observability/logging"
	"github.com/kirillkom/fin-extract/internal/observability/metrics"
	"github.com/kirillkom/fin-extract/internal/observability/tracing"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, "fin-extract-api", cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("tracing_setup_failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Observer:      httpMetrics.Extraction(),
		SeedQuiz:      true,
		QueueOptional: true,
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router, err := httpadapter.NewRouter(cfg, httpadapter.Dependencies{
		Uploader:   app.UploadUC,
		Extractor:  app.ExtractUC,
		Reader:     app.ReaderUC,
		Aggregator: app.AggregateUC,
		Quiz:       app.QuizUC,
		Files:      app.Storage,
		Metrics:    httpMetrics,
	})
	if err != nil {
		slog.Error("router_init_failed", "error", err)
		os.Exit(1)
	}

	// Synchronous extraction includes a model call, hence the long write timeout.
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      time.Duration(cfg.LLMTimeoutSeconds+cfg.FetchTimeoutSeconds+30) * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort, "llm_provider", cfg.LLMProvider, "ocr_engine", cfg.OCREngine)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
