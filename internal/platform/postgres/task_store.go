package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/phrazzld/textproc/internal/domain"
	"github.com/phrazzld/textproc/internal/platform/logger"
	"github.com/phrazzld/textproc/internal/store"
)

// PostgresTaskStore implements store.TaskStore using PostgreSQL.
type PostgresTaskStore struct {
	db store.DBTX
}

var _ store.TaskStore = (*PostgresTaskStore)(nil)

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{db: db}
}

// WithTx returns a store bound to tx.
func (s *PostgresTaskStore) WithTx(tx pgx.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx}
}

// Create inserts a new task record.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO tasks (task_id, original_text, type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.Exec(ctx, query,
		task.ID,
		task.OriginalText,
		string(task.Type),
		string(task.Status),
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create task",
			"task_id", task.ID,
			"task_type", task.Type,
			"error", err)
		return store.NewStoreError("task", "create", "insert failed", MapError(err))
	}

	log.Debug("task created", "task_id", task.ID, "task_type", task.Type)
	return nil
}

const taskSelectColumns = `task_id, original_text, type, processed_text, word_count, language, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask reads one task row selected with taskSelectColumns. A row with an
// unknown type or status is reported as ErrInvalidEntity.
func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task     domain.Task
		taskType string
		status   string
	)
	if err := row.Scan(
		&task.ID,
		&task.OriginalText,
		&taskType,
		&task.ProcessedText,
		&task.WordCount,
		&task.Language,
		&status,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}

	task.Type = domain.TaskType(taskType)
	task.Status = domain.TaskStatus(status)
	if !task.Type.IsValid() || !task.Status.IsValid() {
		return nil, fmt.Errorf("%w: task %s has type %q and status %q",
			store.ErrInvalidEntity, task.ID, taskType, status)
	}
	return &task, nil
}

// GetByID retrieves a task by its id.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	log := logger.FromContext(ctx)

	query := `SELECT ` + taskSelectColumns + ` FROM tasks WHERE task_id = $1`

	task, err := scanTask(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task", "task_id", id, "error", err)
		if errors.Is(err, store.ErrInvalidEntity) {
			return nil, store.NewStoreError("task", "get", "corrupt row", err)
		}
		return nil, store.NewStoreError("task", "get", "query failed", MapError(err))
	}
	return task, nil
}

// Complete stores the result and marks the task completed if it is still
// processing. Zero affected rows is treated as a no-op.
func (s *PostgresTaskStore) Complete(
	ctx context.Context,
	id string,
	result domain.TaskResult,
) (bool, error) {
	log := logger.FromContext(ctx)

	// The WHERE clause below skips rows that are no longer processing.
	task := &domain.Task{ID: id, Status: domain.TaskStatusProcessing}
	if err := task.Complete(result); err != nil {
		return false, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	query := `
		UPDATE tasks
		SET processed_text = $2, word_count = $3, language = $4, status = $5, updated_at = $6
		WHERE task_id = $1 AND status = $7
	`

	tag, err := s.db.Exec(ctx, query,
		task.ID,
		*task.ProcessedText,
		*task.WordCount,
		*task.Language,
		string(task.Status),
		task.UpdatedAt,
		string(domain.TaskStatusProcessing),
	)
	if err != nil {
		log.Error("failed to complete task", "task_id", id, "error", err)
		return false, store.NewStoreError("task", "complete", "update failed", MapError(err))
	}

	if tag.RowsAffected() == 0 {
		log.Warn("no processing task found to complete, treating as no-op", "task_id", id)
		return false, nil
	}

	log.Debug("task completed", "task_id", id, "language", result.Language, "word_count", result.WordCount)
	return true, nil
}

// GetStuckTasks returns processing tasks whose newest outbox message was sent
// before olderThan and that have at most maxRequeues extra messages.
// FOR UPDATE SKIP LOCKED keeps concurrent sweeps apart while the caller's
// transaction is open.
func (s *PostgresTaskStore) GetStuckTasks(
	ctx context.Context,
	olderThan time.Duration,
	maxRequeues, limit int,
) ([]*domain.Task, error) {
	log := logger.FromContext(ctx)

	query := `
		SELECT ` + taskSelectColumns + `
		FROM tasks t
		WHERE t.status = $1
		  AND t.created_at < $2
		  AND NOT EXISTS (
		      SELECT 1 FROM task_outbox o
		      WHERE o.task_id = t.task_id AND (o.sent_at IS NULL OR o.sent_at >= $2)
		  )
		  AND (SELECT count(*) FROM task_outbox o WHERE o.task_id = t.task_id) <= $3
		ORDER BY t.created_at ASC
		LIMIT $4
		FOR UPDATE OF t SKIP LOCKED
	`

	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := s.db.Query(ctx, query, string(domain.TaskStatusProcessing), cutoff, maxRequeues, limit)
	if err != nil {
		log.Error("failed to query stuck tasks", "error", err)
		return nil, store.NewStoreError("task", "get_stuck", "query failed", MapError(err))
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			log.Error("failed to scan stuck task", "error", err)
			return nil, store.NewStoreError("task", "get_stuck", "scan failed", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating stuck tasks", "error", err)
		return nil, store.NewStoreError("task", "get_stuck", "iteration failed", err)
	}
	return tasks, nil
}
