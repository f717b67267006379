package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phrazzld/textproc/internal/api"
	"github.com/phrazzld/textproc/internal/config"
	"github.com/phrazzld/textproc/internal/platform/metrics"
	"github.com/phrazzld/textproc/internal/platform/postgres"
	"github.com/phrazzld/textproc/internal/platform/rabbitmq"
	"github.com/phrazzld/textproc/internal/service"
	"github.com/phrazzld/textproc/internal/task"
)

// appDependencies holds the shared resources the application is built from.
type appDependencies struct {
	Config  *config.Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Broker  *rabbitmq.Broker
	Metrics *metrics.Metrics
}

// application wires the services, the outbox relay and the HTTP handlers.
type application struct {
	config  *config.Config
	logger  *slog.Logger
	broker  *rabbitmq.Broker
	metrics *metrics.Metrics

	admission service.AdmissionService
	tasks     service.TaskService
	relay     *task.Relay
	handler   *api.TaskHandler
	health    pinger
}

func newApplication(
	cfg *config.Config,
	logger *slog.Logger,
	pool *pgxpool.Pool,
	broker *rabbitmq.Broker,
	m *metrics.Metrics,
) (*application, error) {
	return buildApplication(appDependencies{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Broker:  broker,
		Metrics: m,
	})
}

func buildApplication(deps appDependencies) (*application, error) {
	taskStore := postgres.NewPostgresTaskStore(deps.Pool)
	outboxStore := postgres.NewPostgresOutboxStore(deps.Pool)

	admission, err := service.NewAdmissionService(
		deps.Pool, taskStore, outboxStore, deps.Broker, deps.Metrics, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create admission service: %w", err)
	}

	tasks, err := service.NewTaskService(taskStore, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	var relay *task.Relay
	if deps.Config.Relay.Enabled {
		relay = task.NewRelay(deps.Pool, taskStore, outboxStore, deps.Broker, task.RelayConfig{
			Interval:    deps.Config.Relay.Interval,
			Age:         deps.Config.Relay.Age,
			BatchSize:   deps.Config.Relay.BatchSize,
			StuckAge:    deps.Config.Relay.StuckAge,
			MaxRequeues: deps.Config.Relay.MaxRequeues,
		}, deps.Metrics, deps.Logger)
	}

	return &application{
		config:    deps.Config,
		logger:    deps.Logger,
		broker:    deps.Broker,
		metrics:   deps.Metrics,
		admission: admission,
		tasks:     tasks,
		relay:     relay,
		handler:   api.NewTaskHandler(admission, tasks),
		health:    deps.Pool,
	}, nil
}

// Run starts the relay and serves HTTP until ctx is cancelled or the broker
// connection is lost.
func (app *application) Run(ctx context.Context) error {
	if app.relay != nil {
		app.relay.Start()
		defer app.relay.Stop()
	}

	var brokerDone <-chan struct{}
	if app.broker != nil {
		brokerDone = app.broker.Done()
	}

	return serve(ctx, app.config.Server, app.setupRouter(), brokerDone, app.logger)
}
