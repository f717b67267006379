package service

import (
	"context"
	"log/slog"

	"github.com/phrazzld/textproc/internal/domain"
	"github.com/phrazzld/textproc/internal/store"
)

// TaskService reads tasks and applies processing results.
type TaskService interface {
	// GetTask returns the current record for id, or ErrTaskNotFound.
	GetTask(ctx context.Context, id string) (*domain.Task, error)

	// CompleteTask stores result for id if the task is still processing and
	// reports whether it did. Repeating the call is harmless.
	CompleteTask(ctx context.Context, id string, result domain.TaskResult) (bool, error)
}

type taskServiceImpl struct {
	tasks  store.TaskStore
	logger *slog.Logger
}

// NewTaskService creates a new TaskService.
// It returns an error if any of the required dependencies are nil.
func NewTaskService(tasks store.TaskStore, logger *slog.Logger) (TaskService, error) {
	if tasks == nil {
		return nil, &TaskServiceError{
			Operation: "create_service",
			Message:   "task store cannot be nil",
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &taskServiceImpl{
		tasks:  tasks,
		logger: logger.With("component", "task_service"),
	}, nil
}

// GetTask retrieves a task by its id. Every call reads the store.
func (s *taskServiceImpl) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	if id == "" {
		return nil, ErrTaskNotFound
	}

	t, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		if !store.IsNotFoundError(err) {
			s.logger.Error("failed to retrieve task", "error", err, "task_id", id)
		}
		return nil, NewTaskServiceError("get_task", "failed to retrieve task", err)
	}
	return t, nil
}

// CompleteTask applies result to a processing task.
func (s *taskServiceImpl) CompleteTask(
	ctx context.Context,
	id string,
	result domain.TaskResult,
) (bool, error) {
	if err := result.Validate(); err != nil {
		return false, err
	}

	applied, err := s.tasks.Complete(ctx, id, result)
	if err != nil {
		s.logger.Error("failed to complete task", "error", err, "task_id", id)
		return false, NewTaskServiceError("complete_task", "failed to store task result", err)
	}

	if applied {
		s.logger.Info("task completed",
			"task_id", id,
			"word_count", result.WordCount,
			"language", result.Language)
	} else {
		s.logger.Info("task completion ignored, task missing or already completed", "task_id", id)
	}
	return applied, nil
}
