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

	"github.com/kirillkom/multimodal-rag/internal/bootstrap"
	"github.com/kirillkom/multimodal-rag/internal/config"
	"github.com/kirillkom/multimodal-rag/internal/core/domain"
	"github.com/kirillkom/multimodal-rag/internal/observability/logging"
)

const workerService = "rag-trace-worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(workerService, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker, err := bootstrap.NewWorker(ctx, cfg)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer worker.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", worker.Metrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSTraceSubject)
	err = worker.Queue.SubscribeRetrievalTraces(ctx, func(handlerCtx context.Context, trace domain.RetrievalTrace) error {
		start := time.Now()
		if !trace.CreatedAt.IsZero() {
			worker.Metrics.ObserveTraceLag(workerService, start.Sub(trace.CreatedAt))
		}
		worker.Metrics.StartTrace()

		writeCtx, cancel := context.WithTimeout(handlerCtx, 10*time.Second)
		defer cancel()
		err := worker.TraceUC.RecordTrace(writeCtx, trace)
		worker.Metrics.FinishTrace(workerService, time.Since(start), err)
		if err != nil {
			logger.Error("trace_write_failed", "trace_id", trace.ID, "error", err)
		}
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
