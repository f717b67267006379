package domain

import (
	"errors"
	"fmt"
)

// ErrValidation is the parent of every admission validation failure. Callers can
// check errors.Is(err, ErrValidation) to distinguish user input problems from
// infrastructure failures.
var ErrValidation = errors.New("validation failed")

// Validation errors. The messages are stable and safe to return to clients.
var (
	// ErrInvalidType indicates the task type is not one of the recognized tags.
	ErrInvalidType = fmt.Errorf("%w: invalid text type", ErrValidation)

	// ErrTextTooLong indicates the text exceeds the maximum length for its type.
	ErrTextTooLong = fmt.Errorf("%w: text too long", ErrValidation)

	// ErrTextTooShort indicates the text is below the minimum length for its type.
	ErrTextTooShort = fmt.Errorf("%w: text too short", ErrValidation)

	// ErrInvalidResult indicates a processing result that cannot be stored,
	// such as a negative word count or an empty language code.
	ErrInvalidResult = fmt.Errorf("%w: invalid task result", ErrValidation)
)

// ErrTaskAlreadyCompleted is returned when completing a task that has already
// reached the completed state. Completed tasks are never mutated again.
var ErrTaskAlreadyCompleted = errors.New("task already completed")

// ValidationError carries a human-readable reason alongside one of the
// validation sentinels above.
type ValidationError struct {
	// Kind is the sentinel describing the class of failure (e.g. ErrTextTooLong).
	Kind error
	// Reason is a client-facing explanation, e.g. "chat_item text exceeds 300 characters".
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
}

// Unwrap exposes the sentinel so errors.Is works against ErrTextTooLong etc.
func (e *ValidationError) Unwrap() error {
	return e.Kind
}

func newValidationError(kind error, format string, args ...any) error {
	return &ValidationError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}
