package task

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/phrazzld/textproc/internal/domain"
)

// HTTPResultWriterConfig configures an HTTPResultWriter.
type HTTPResultWriterConfig struct {
	// BaseURL is the root of the API server, e.g. http://server:8080.
	BaseURL string
	// Timeout bounds a single request.
	Timeout time.Duration
	// RetryCount is the number of extra attempts for transport and 5xx errors.
	RetryCount int
}

// HTTPResultWriter reports results to the API server with
// PATCH /api/tasks/{task_id} instead of writing to the database directly.
type HTTPResultWriter struct {
	client *resty.Client
	logger *slog.Logger
}

type completeTaskBody struct {
	ProcessedText string `json:"processed_text"`
	WordCount     int    `json:"word_count"`
	Language      string `json:"language"`
}

type completeTaskReply struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Applied bool   `json:"applied"`
}

type errorReply struct {
	Error string `json:"error"`
}

// NewHTTPResultWriter creates an HTTPResultWriter.
func NewHTTPResultWriter(cfg HTTPResultWriterConfig, logger *slog.Logger) (*HTTPResultWriter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)
	client.AddRetryCondition(retryCondition)

	return &HTTPResultWriter{
		client: client,
		logger: logger.With("component", "http_result_writer"),
	}, nil
}

func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

// CompleteTask implements ResultWriter. An unknown task is a no-op; a 400
// reply is reported as domain.ErrInvalidResult so it is not retried.
func (w *HTTPResultWriter) CompleteTask(
	ctx context.Context,
	id string,
	result domain.TaskResult,
) (bool, error) {
	var reply completeTaskReply
	var errBody errorReply

	resp, err := w.client.R().
		SetContext(ctx).
		SetPathParam("task_id", id).
		SetBody(completeTaskBody{
			ProcessedText: result.ProcessedText,
			WordCount:     result.WordCount,
			Language:      result.Language,
		}).
		SetResult(&reply).
		SetError(&errBody).
		Patch("/api/tasks/{task_id}")
	if err != nil {
		return false, fmt.Errorf("failed to report result for task %s: %w", id, err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusOK:
		return reply.Applied, nil
	case code == http.StatusNoContent:
		return true, nil
	case code == http.StatusNotFound:
		w.logger.Warn("result reported for unknown task", "task_id", id)
		return false, nil
	case code == http.StatusBadRequest:
		return false, fmt.Errorf("%w: server rejected result: %s", domain.ErrInvalidResult, errBody.Error)
	default:
		return false, fmt.Errorf("server error (status %d) reporting result for task %s", code, id)
	}
}
