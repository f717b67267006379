package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/phrazzld/textproc/internal/domain"
	"github.com/phrazzld/textproc/internal/platform/metrics"
	"github.com/phrazzld/textproc/internal/store"
	"github.com/phrazzld/textproc/internal/task"
)

// Publisher hands a message body to the broker.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// AdmissionService accepts new texts for processing.
type AdmissionService interface {
	// Submit validates text, records a processing task and enqueues it.
	// Validation failures are returned as domain validation errors and leave
	// no trace. A publish failure returns the recorded task together with
	// ErrQueueUnavailable; its message is delivered later by the outbox relay.
	Submit(ctx context.Context, text string, taskType domain.TaskType) (*domain.Task, error)
}

type admissionServiceImpl struct {
	db        store.TxBeginner
	tasks     store.TaskStore
	outbox    store.OutboxStore
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewAdmissionService creates a new AdmissionService. m may be nil.
// It returns an error if any of the required dependencies are nil.
func NewAdmissionService(
	db store.TxBeginner,
	tasks store.TaskStore,
	outbox store.OutboxStore,
	publisher Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) (AdmissionService, error) {
	deps := []struct {
		name string
		ok   bool
	}{
		{"db", db != nil},
		{"task store", tasks != nil},
		{"outbox store", outbox != nil},
		{"publisher", publisher != nil},
	}
	for _, d := range deps {
		if !d.ok {
			return nil, &TaskServiceError{
				Operation: "create_service",
				Message:   d.name + " cannot be nil",
			}
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &admissionServiceImpl{
		db:        db,
		tasks:     tasks,
		outbox:    outbox,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With("component", "admission_service"),
	}, nil
}

// Submit records the task and its outbox message in one transaction, then
// publishes the message and marks the outbox entry sent.
func (s *admissionServiceImpl) Submit(
	ctx context.Context,
	text string,
	taskType domain.TaskType,
) (*domain.Task, error) {
	// 1. Validate and build the task
	t, err := domain.NewTask(text, taskType)
	if err != nil {
		s.metrics.ObserveAdmissionFailure("validation")
		s.logger.Debug("rejected submission", "error", err, "type", string(taskType))
		return nil, err
	}
	log := s.logger.With("task_id", t.ID, "type", string(t.Type))

	payload, err := task.NewMessage(t).Encode()
	if err != nil {
		return nil, NewTaskServiceError("submit", "failed to encode task message", err)
	}

	// 2. Save the task and its message atomically
	var outboxID int64
	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.tasks.WithTx(tx).Create(ctx, t); err != nil {
			return fmt.Errorf("failed to save task: %w", err)
		}
		id, err := s.outbox.WithTx(tx).Add(ctx, t.ID, payload)
		if err != nil {
			return fmt.Errorf("failed to save outbox message: %w", err)
		}
		outboxID = id
		return nil
	})
	if err != nil {
		s.metrics.ObserveAdmissionFailure("store")
		log.Error("failed to record task", "error", err)
		return nil, NewTaskServiceError("submit", "failed to record task", err)
	}

	// 3. Publish; the outbox relay retries if this fails
	if err := s.publisher.Publish(ctx, payload); err != nil {
		s.metrics.ObserveAdmissionFailure("broker")
		log.Error("failed to publish task message, left for outbox relay",
			"error", err,
			"outbox_id", outboxID)
		return t, fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}

	// 4. A failed mark only causes a duplicate publish, which workers tolerate
	if err := s.outbox.MarkSent(ctx, outboxID); err != nil {
		log.Warn("failed to mark outbox message sent", "error", err, "outbox_id", outboxID)
	}

	s.metrics.ObserveAdmitted(string(t.Type))
	log.Info("task admitted")
	return t, nil
}
