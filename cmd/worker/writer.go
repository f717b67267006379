package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phrazzld/textproc/internal/config"
	"github.com/phrazzld/textproc/internal/platform/postgres"
	"github.com/phrazzld/textproc/internal/service"
	"github.com/phrazzld/textproc/internal/task"
)

const (
	writerModeStore = "store"
	writerModeHTTP  = "http"

	httpWriterRetries = 3
	pingTimeout       = 5 * time.Second
)

// newResultWriter builds the ResultWriter selected by cfg.Worker.ResultWriter.
// The returned cleanup releases any resources the writer holds.
func newResultWriter(
	ctx context.Context,
	cfg *config.Config,
	log *slog.Logger,
) (task.ResultWriter, func(), error) {
	switch cfg.Worker.ResultWriter {
	case writerModeHTTP:
		w, err := task.NewHTTPResultWriter(task.HTTPResultWriterConfig{
			BaseURL:    cfg.Worker.APIBaseURL,
			Timeout:    cfg.Worker.HTTPTimeout,
			RetryCount: httpWriterRetries,
		}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create HTTP result writer: %w", err)
		}
		return w, func() {}, nil

	case writerModeStore, "":
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database connection: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}

		tasks, err := service.NewTaskService(postgres.NewPostgresTaskStore(pool), log)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to create task service: %w", err)
		}
		return tasks, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown result writer %q", cfg.Worker.ResultWriter)
	}
}
