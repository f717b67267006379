package task

import (
	"encoding/json"
	"fmt"

	"github.com/phrazzld/textproc/internal/domain"
)

// Message is the JSON payload placed on the queue for each admitted task.
type Message struct {
	TaskID string          `json:"task_id"`
	Text   string          `json:"text"`
	Type   domain.TaskType `json:"type"`
}

// NewMessage builds the queue message for t.
func NewMessage(t *domain.Task) Message {
	return Message{
		TaskID: t.ID,
		Text:   t.OriginalText,
		Type:   t.Type,
	}
}

// Validate checks the fields the worker relies on.
func (m Message) Validate() error {
	if m.TaskID == "" {
		return fmt.Errorf("%w: missing task_id", ErrInvalidMessage)
	}
	if !m.Type.IsValid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	return nil
}

// Encode serializes m to JSON.
func (m Message) Encode() ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task message: %w", err)
	}
	return body, nil
}

// DecodeMessage parses and validates a queue payload.
func DecodeMessage(body []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
