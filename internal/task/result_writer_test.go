package task

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/textproc/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHTTPWriter(t *testing.T, handler http.HandlerFunc) *HTTPResultWriter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	w, err := NewHTTPResultWriter(HTTPResultWriterConfig{
		BaseURL:    srv.URL,
		Timeout:    2 * time.Second,
		RetryCount: 2,
	}, setupTestLogger())
	require.NoError(t, err)
	return w
}

func TestNewHTTPResultWriter_RequiresBaseURL(t *testing.T) {
	t.Parallel()

	_, err := NewHTTPResultWriter(HTTPResultWriterConfig{}, nil)
	assert.Error(t, err)
}

func TestHTTPResultWriter_CompleteTask(t *testing.T) {
	t.Parallel()

	type request struct {
		method, path string
		body         completeTaskBody
	}
	requests := make(chan request, 1)
	w := newTestHTTPWriter(t, func(rw http.ResponseWriter, r *http.Request) {
		req := request{method: r.Method, path: r.URL.Path}
		_ = json.NewDecoder(r.Body).Decode(&req.body)
		requests <- req
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`{"task_id":"task-1","status":"completed","applied":true}`))
	})

	applied, err := w.CompleteTask(context.Background(), "task-1", domain.TaskResult{
		ProcessedText: "Hello world!",
		WordCount:     2,
		Language:      "en",
	})
	require.NoError(t, err)
	assert.True(t, applied)

	req := <-requests
	assert.Equal(t, http.MethodPatch, req.method)
	assert.Equal(t, "/api/tasks/task-1", req.path)
	assert.Equal(t, completeTaskBody{ProcessedText: "Hello world!", WordCount: 2, Language: "en"}, req.body)
}

func TestHTTPResultWriter_CompleteTask_Responses(t *testing.T) {
	t.Parallel()

	result := domain.TaskResult{ProcessedText: "x", WordCount: 1, Language: "en"}

	tests := []struct {
		name        string
		status      int
		body        string
		wantApplied bool
		wantErr     error
		wantAnyErr  bool
	}{
		{name: "already completed", status: http.StatusOK, body: `{"task_id":"t","status":"completed","applied":false}`},
		{name: "unknown task", status: http.StatusNotFound, body: `{"error":"Task not found"}`},
		{name: "no content", status: http.StatusNoContent, wantApplied: true},
		{name: "rejected result", status: http.StatusBadRequest, body: `{"error":"invalid task result"}`, wantErr: domain.ErrInvalidResult},
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"boom"}`, wantAnyErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w := newTestHTTPWriter(t, func(rw http.ResponseWriter, _ *http.Request) {
				rw.Header().Set("Content-Type", "application/json")
				rw.WriteHeader(tc.status)
				if tc.body != "" {
					_, _ = rw.Write([]byte(tc.body))
				}
			})

			applied, err := w.CompleteTask(context.Background(), "t", result)
			switch {
			case tc.wantErr != nil:
				assert.ErrorIs(t, err, tc.wantErr)
			case tc.wantAnyErr:
				assert.Error(t, err)
				assert.NotErrorIs(t, err, domain.ErrValidation)
			default:
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.wantApplied, applied)
		})
	}
}

func TestHTTPResultWriter_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	w := newTestHTTPWriter(t, func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		if calls.Add(1) < 3 {
			rw.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = rw.Write([]byte(`{"task_id":"t","status":"completed","applied":true}`))
	})

	applied, err := w.CompleteTask(context.Background(), "t", domain.TaskResult{Language: "en"})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int32(3), calls.Load())
}
