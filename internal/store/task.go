package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/phrazzld/textproc/internal/domain"
)

// TaskStore defines the interface for task record persistence.
type TaskStore interface {
	// Create inserts a new task record.
	// Returns ErrDuplicate if a task with the same id already exists.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its id.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id string) (*domain.Task, error)

	// Complete writes the result values and moves the task to completed, but only
	// while the task is still processing. It reports whether a row was changed.
	// A missing task or one that is already completed is a no-op returning
	// (false, nil), which makes redelivered messages harmless.
	Complete(ctx context.Context, id string, result domain.TaskResult) (bool, error)

	// GetStuckTasks returns up to limit tasks that are still processing although
	// their last queue message was published more than olderThan ago, oldest
	// first. Tasks that already have more than maxRequeues extra messages are
	// skipped. Inside a transaction the returned rows stay locked and are
	// skipped by concurrent callers.
	GetStuckTasks(ctx context.Context, olderThan time.Duration, maxRequeues, limit int) ([]*domain.Task, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	//
	// Usage example:
	//   err := store.RunInTransaction(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
	//       return taskStore.WithTx(tx).Create(ctx, task)
	//   })
	WithTx(tx pgx.Tx) TaskStore
}
