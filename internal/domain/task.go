package domain

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TaskType identifies what kind of text a client submitted.
type TaskType string

// Recognized task types.
const (
	TaskTypeChatItem TaskType = "chat_item"
	TaskTypeSummary  TaskType = "summary"
	TaskTypeArticle  TaskType = "article"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

// Possible task status values. A task starts in processing and transitions
// exactly once to completed.
const (
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
)

// Length bounds, in Unicode code points.
const (
	MaxChatItemLength = 300
	MaxSummaryLength  = 3000
	// MinArticleLength is a lower bound, not a cap: an article must be at least
	// this long to be admitted.
	MinArticleLength = 300000
)

// UndeterminedLanguage is the BCP 47 tag stored when no language could be
// identified for a text (empty input, symbols only).
const UndeterminedLanguage = "und"

// IsValid reports whether t is one of the recognized task types.
func (t TaskType) IsValid() bool {
	switch t {
	case TaskTypeChatItem, TaskTypeSummary, TaskTypeArticle:
		return true
	default:
		return false
	}
}

// ValidateText applies the length policy for t to text.
func (t TaskType) ValidateText(text string) error {
	n := utf8.RuneCountInString(text)
	switch t {
	case TaskTypeChatItem:
		if n > MaxChatItemLength {
			return newValidationError(ErrTextTooLong,
				"chat_item text exceeds %d characters", MaxChatItemLength)
		}
	case TaskTypeSummary:
		if n > MaxSummaryLength {
			return newValidationError(ErrTextTooLong,
				"summary text exceeds %d characters", MaxSummaryLength)
		}
	case TaskTypeArticle:
		if n < MinArticleLength {
			return newValidationError(ErrTextTooShort,
				"article text is less than %d characters", MinArticleLength)
		}
	default:
		return newValidationError(ErrInvalidType,
			"type must be one of chat_item, summary, article")
	}
	return nil
}

// IsValid reports whether s is a known status.
func (s TaskStatus) IsValid() bool {
	return s == TaskStatusProcessing || s == TaskStatusCompleted
}

// Task is one unit of submitted text plus its processing state and results.
// ProcessedText, WordCount and Language stay nil until the task is completed.
type Task struct {
	ID            string
	OriginalText  string
	Type          TaskType
	ProcessedText *string
	WordCount     *int
	Language      *string
	Status        TaskStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TaskResult holds the values the worker writes back for a task.
type TaskResult struct {
	ProcessedText string
	WordCount     int
	Language      string
}

// Validate checks that the result can be stored.
func (r TaskResult) Validate() error {
	if r.WordCount < 0 {
		return newValidationError(ErrInvalidResult, "word count must not be negative")
	}
	if r.Language == "" {
		return newValidationError(ErrInvalidResult, "language must not be empty")
	}
	return nil
}

// NewTask validates the submission and creates a task in the processing state
// with a fresh identifier.
func NewTask(text string, taskType TaskType) (*Task, error) {
	if !taskType.IsValid() {
		return nil, newValidationError(ErrInvalidType,
			"type must be one of chat_item, summary, article")
	}
	if err := taskType.ValidateText(text); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Task{
		ID:           uuid.NewString(),
		OriginalText: text,
		Type:         taskType,
		Status:       TaskStatusProcessing,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsCompleted reports whether the task has reached its terminal state.
func (t *Task) IsCompleted() bool {
	return t.Status == TaskStatusCompleted
}

// Complete applies a processing result and moves the task to completed.
// A completed task is never modified again.
func (t *Task) Complete(result TaskResult) error {
	if t.IsCompleted() {
		return ErrTaskAlreadyCompleted
	}
	if err := result.Validate(); err != nil {
		return err
	}

	processed := result.ProcessedText
	count := result.WordCount
	lang := result.Language

	t.ProcessedText = &processed
	t.WordCount = &count
	t.Language = &lang
	t.Status = TaskStatusCompleted
	t.UpdatedAt = time.Now().UTC()
	return nil
}
