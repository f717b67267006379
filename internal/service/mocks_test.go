package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/phrazzld/textproc/internal/domain"
	"github.com/phrazzld/textproc/internal/store"
	"github.com/stretchr/testify/mock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockTaskStore mocks the store.TaskStore interface
type MockTaskStore struct {
	mock.Mock
}

func (m *MockTaskStore) Create(ctx context.Context, t *domain.Task) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTaskStore) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Task), args.Error(1)
}

func (m *MockTaskStore) Complete(
	ctx context.Context,
	id string,
	result domain.TaskResult,
) (bool, error) {
	args := m.Called(ctx, id, result)
	return args.Bool(0), args.Error(1)
}

func (m *MockTaskStore) GetStuckTasks(
	ctx context.Context,
	olderThan time.Duration,
	maxRequeues, limit int,
) ([]*domain.Task, error) {
	args := m.Called(ctx, olderThan, maxRequeues, limit)
	return args.Get(0).([]*domain.Task), args.Error(1)
}

func (m *MockTaskStore) WithTx(tx pgx.Tx) store.TaskStore {
	return m
}

// MockOutboxStore mocks the store.OutboxStore interface
type MockOutboxStore struct {
	mock.Mock
}

func (m *MockOutboxStore) Add(ctx context.Context, taskID string, payload []byte) (int64, error) {
	args := m.Called(ctx, taskID, payload)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxStore) MarkSent(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxStore) MarkFailed(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxStore) ClaimPending(
	ctx context.Context,
	olderThan, lease time.Duration,
	limit int,
) ([]store.OutboxMessage, error) {
	args := m.Called(ctx, olderThan, lease, limit)
	return args.Get(0).([]store.OutboxMessage), args.Error(1)
}

func (m *MockOutboxStore) WithTx(tx pgx.Tx) store.OutboxStore {
	return m
}

// MockPublisher mocks the Publisher interface
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, body []byte) error {
	args := m.Called(ctx, body)
	return args.Error(0)
}
