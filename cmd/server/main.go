// Package main implements the textproc API server. It admits texts for
// processing, answers status queries, accepts results reported by workers and
// relays unsent outbox messages to the broker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/textproc/internal/config"
	"github.com/phrazzld/textproc/internal/platform/logger"
	"github.com/phrazzld/textproc/internal/platform/metrics"
	"github.com/phrazzld/textproc/internal/platform/postgres"
	"github.com/phrazzld/textproc/internal/platform/rabbitmq"
	"github.com/phrazzld/textproc/internal/redact"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", redact.Error(err))
		os.Exit(1)
	}
}

// run loads configuration, acquires the database pool and the broker
// connection, and serves HTTP until a signal arrives or the broker is lost.
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

	log.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"queue", cfg.Broker.Queue,
		"relay_enabled", cfg.Relay.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	pool, err := setupAppDatabase(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.Server.RunMigrations {
		if err := postgres.ApplyMigrations(ctx, pool); err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	broker, err := rabbitmq.Connect(ctx, rabbitmq.NewConfig(cfg.Broker, ""), log)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer func() {
		if err := broker.Close(); err != nil {
			log.Warn("failed to close broker connection", "error", err)
		}
	}()

	app, err := newApplication(cfg, log, pool, broker, metrics.New())
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}
