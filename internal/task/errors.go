package task

import "errors"

var (
	// ErrInvalidMessage is returned when a queue payload cannot be decoded or
	// lacks required fields. Such messages are dead-lettered.
	ErrInvalidMessage = errors.New("invalid task message")

	// ErrProcessingFailure is returned when the pipeline itself fails, for
	// example when the language classifier errors or panics.
	ErrProcessingFailure = errors.New("task processing failed")

	// ErrPersistenceFailure is returned when a computed result could not be
	// written. It is treated as transient.
	ErrPersistenceFailure = errors.New("task result could not be persisted")
)
