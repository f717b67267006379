package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/phrazzld/textproc/internal/api"
	"github.com/phrazzld/textproc/internal/domain"
	"github.com/phrazzld/textproc/internal/platform/logger"
	"github.com/phrazzld/textproc/internal/platform/metrics"
	"github.com/phrazzld/textproc/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdmission struct {
	task *domain.Task
	err  error
}

func (s *stubAdmission) Submit(_ context.Context, text string, taskType domain.TaskType) (*domain.Task, error) {
	if s.err != nil {
		return s.task, s.err
	}
	if s.task != nil {
		return s.task, nil
	}
	return domain.NewTask(text, taskType)
}

type stubTasks struct {
	tasks map[string]*domain.Task
}

func (s *stubTasks) GetTask(_ context.Context, id string) (*domain.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, service.ErrTaskNotFound
	}
	return t, nil
}

func (s *stubTasks) CompleteTask(_ context.Context, id string, result domain.TaskResult) (bool, error) {
	t, ok := s.tasks[id]
	if !ok {
		return false, service.ErrTaskNotFound
	}
	if t.IsCompleted() {
		return false, nil
	}
	return true, t.Complete(result)
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }

func newTestApplication(t *testing.T, admission service.AdmissionService, tasks service.TaskService, health pinger) *application {
	t.Helper()
	log, _ := logger.NewTestLogger()
	return &application{
		logger:    log,
		metrics:   metrics.New(),
		admission: admission,
		tasks:     tasks,
		handler:   api.NewTaskHandler(admission, tasks),
		health:    health,
	}
}

func TestRouter_Routes(t *testing.T) {
	t.Parallel()

	existing, err := domain.NewTask("Hello world", domain.TaskTypeChatItem)
	require.NoError(t, err)
	tasks := &stubTasks{tasks: map[string]*domain.Task{existing.ID: existing}}
	router := newTestApplication(t, &stubAdmission{}, tasks, stubPinger{}).setupRouter()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"legacy submit", http.MethodPost, "/process-text", `{"text":"Hi there","type":"chat_item"}`, http.StatusOK},
		{"submit", http.MethodPost, "/api/tasks", `{"text":"Hi there","type":"chat_item"}`, http.StatusAccepted},
		{"submit invalid type", http.MethodPost, "/api/tasks", `{"text":"Hi","type":"tweet"}`, http.StatusBadRequest},
		{"legacy result", http.MethodGet, "/results/" + existing.ID, "", http.StatusOK},
		{"task result", http.MethodGet, "/api/tasks/" + existing.ID, "", http.StatusOK},
		{"unknown task", http.MethodGet, "/api/tasks/missing", "", http.StatusNotFound},
		{"health", http.MethodGet, "/health", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK},
		{"wrong method", http.MethodDelete, "/api/tasks/" + existing.ID, "", http.StatusMethodNotAllowed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestRouter_CompleteTaskThenPoll(t *testing.T) {
	t.Parallel()

	existing, err := domain.NewTask("Hello, world!@#", domain.TaskTypeChatItem)
	require.NoError(t, err)
	tasks := &stubTasks{tasks: map[string]*domain.Task{existing.ID: existing}}
	router := newTestApplication(t, &stubAdmission{}, tasks, stubPinger{}).setupRouter()

	patch := func() map[string]any {
		req := httptest.NewRequest(http.MethodPatch, "/api/tasks/"+existing.ID,
			strings.NewReader(`{"processed_text":"Hello, world!","word_count":2,"language":"en"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		return resp
	}

	first := patch()
	assert.Equal(t, true, first["applied"])
	assert.Equal(t, "completed", first["status"])

	second := patch()
	assert.Equal(t, false, second["applied"])
	assert.Equal(t, "completed", second["status"])

	req := httptest.NewRequest(http.MethodGet, "/results/"+existing.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "Hello, world!", got["processed_text"])
	assert.Equal(t, float64(2), got["word_count"])
	assert.Equal(t, "en", got["language"])
}

func TestRouter_SubmitBrokerUnavailable(t *testing.T) {
	t.Parallel()

	recorded, err := domain.NewTask("Hi", domain.TaskTypeChatItem)
	require.NoError(t, err)
	admission := &stubAdmission{task: recorded, err: service.ErrQueueUnavailable}
	router := newTestApplication(t, admission, &stubTasks{}, stubPinger{}).setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/process-text",
		strings.NewReader(`{"text":"Hi","type":"chat_item"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, recorded.ID, got["task_id"])
	assert.Equal(t, "processing", got["status"])
}

func TestRouter_HealthReportsDatabaseFailure(t *testing.T) {
	t.Parallel()

	router := newTestApplication(t, &stubAdmission{}, &stubTasks{},
		stubPinger{err: errors.New("connection refused")}).setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}
