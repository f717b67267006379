// Package main implements the textproc worker. It consumes task messages from
// the broker, cleans the text, counts words, detects the language and stores
// the result.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/textproc/internal/config"
	"github.com/phrazzld/textproc/internal/platform/langdetect"
	"github.com/phrazzld/textproc/internal/platform/logger"
	"github.com/phrazzld/textproc/internal/platform/metrics"
	"github.com/phrazzld/textproc/internal/platform/rabbitmq"
	"github.com/phrazzld/textproc/internal/redact"
	"github.com/phrazzld/textproc/internal/task"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited with error", "error", redact.Error(err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	slog.SetDefault(log)

	log.Info("worker configuration loaded",
		"queue", cfg.Broker.Queue,
		"concurrency", cfg.Worker.Concurrency,
		"max_attempts", cfg.Worker.MaxAttempts,
		"retry_base_delay", cfg.Worker.RetryBaseDelay,
		"metrics_port", cfg.Worker.MetricsPort,
		"result_writer", cfg.Worker.ResultWriter,
		"langdetect_provider", cfg.LangDetect.Provider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	hostname, _ := os.Hostname()
	broker, err := rabbitmq.Connect(ctx, rabbitmq.NewConfig(cfg.Broker, "textproc-worker-"+hostname), log)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer func() {
		if err := broker.Close(); err != nil {
			log.Warn("failed to close broker connection", "error", err)
		}
	}()

	detector, err := langdetect.New(ctx, cfg.LangDetect, log)
	if err != nil {
		return fmt.Errorf("failed to create language detector: %w", err)
	}

	writer, cleanup, err := newResultWriter(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	m := metrics.New()
	processor, err := task.NewProcessor(detector, writer, m, log)
	if err != nil {
		return fmt.Errorf("failed to create processor: %w", err)
	}

	worker, err := task.NewWorker(broker, broker, processor, task.WorkerConfig{
		Concurrency:    cfg.Worker.Concurrency,
		MaxAttempts:    cfg.Worker.MaxAttempts,
		RetryBaseDelay: cfg.Worker.RetryBaseDelay,
		RetryMaxDelay:  cfg.Worker.RetryMaxDelay,
	}, m, log)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	ln, err := listenMetrics(cfg.Worker.MetricsPort)
	if err != nil {
		return err
	}

	// A failing metrics server stops the worker so the process exits.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	metricsErr := make(chan error, 1)
	if ln != nil {
		go func() {
			err := serveMetrics(runCtx, ln, m.Handler(), cfg.Server.ShutdownTimeout, log)
			if err != nil {
				cancel()
			}
			metricsErr <- err
		}()
	} else {
		metricsErr <- nil
	}

	runErr := worker.Run(runCtx)
	cancel()
	if err := errors.Join(runErr, <-metricsErr); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}
	log.Info("worker stopped")
	return nil
}
