package api

import (
	"github.com/phrazzld/textproc/internal/domain"
)

// SubmitTaskRequest is the payload for submitting text for processing.
// Text is a pointer so that a missing field can be told apart from an empty
// string, which is a valid submission.
type SubmitTaskRequest struct {
	Text *string `json:"text" validate:"required"`
	Type string  `json:"type" validate:"required"`
}

// SubmitTaskResponse is returned once a task has been admitted.
type SubmitTaskResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// QueueUnavailableResponse is returned with 503 when a task was recorded but
// could not be queued. The task is queued later, so TaskID can be polled.
type QueueUnavailableResponse struct {
	Error   string `json:"error"`
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	TraceID string `json:"trace_id,omitempty"`
}

// TaskResponse is the full task record returned by status queries. Result
// fields are null until the task is completed.
type TaskResponse struct {
	TaskID        string  `json:"task_id"`
	OriginalText  string  `json:"original_text"`
	Type          string  `json:"type"`
	ProcessedText *string `json:"processed_text"`
	WordCount     *int    `json:"word_count"`
	Language      *string `json:"language"`
	Status        string  `json:"status"`
}

// CompleteTaskRequest is the payload a worker sends to store a result.
type CompleteTaskRequest struct {
	ProcessedText *string `json:"processed_text" validate:"required"`
	WordCount     *int    `json:"word_count"     validate:"required,min=0"`
	Language      string  `json:"language"       validate:"required,min=2,max=35"`
}

// CompleteTaskResponse reports whether a completion changed the task.
type CompleteTaskResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Applied bool   `json:"applied"`
}

func taskToResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		TaskID:        t.ID,
		OriginalText:  t.OriginalText,
		Type:          string(t.Type),
		ProcessedText: t.ProcessedText,
		WordCount:     t.WordCount,
		Language:      t.Language,
		Status:        string(t.Status),
	}
}

func (r CompleteTaskRequest) toResult() domain.TaskResult {
	return domain.TaskResult{
		ProcessedText: *r.ProcessedText,
		WordCount:     *r.WordCount,
		Language:      r.Language,
	}
}
