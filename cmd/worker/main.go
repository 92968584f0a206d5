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

	"github.com/kirillkom/fin-extract/internal/bootstrap"
	"github.com/kirillkom/fin-extract/internal/config"
	"github.com/kirillkom/fin-extract/internal/observability/logging"
	"github.com/kirillkom/fin-extract/internal/observability/metrics"
	"github.com/kirillkom/fin-extract/internal/observability/tracing"
)

const (
	serviceName   = "worker"
	extractBudget = 5 * time.Minute
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, "fin-extract-worker", cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("tracing_setup_failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Observer: workerMetrics.Extraction(),
		QueueLag: func(lag time.Duration) { workerMetrics.ObserveQueueLag(serviceName, lag) },
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "metrics_port", cfg.WorkerMetricsPort)
	err = app.Queue.SubscribeExtractionRequested(ctx, func(handlerCtx context.Context, sourceRef string) error {
		extractCtx, cancel := context.WithTimeout(handlerCtx, extractBudget)
		defer cancel()

		workerMetrics.StartJob()
		start := time.Now()
		record, err := app.ExtractUC.Extract(extractCtx, sourceRef)
		workerMetrics.FinishJob(serviceName, time.Since(start), err)
		if err != nil {
			return err
		}
		slog.Info("worker_extraction_stored", "id", record.ID, "source_ref", sourceRef)
		return nil
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
