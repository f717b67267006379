package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// OutboxMessage is a queue message recorded in the same transaction as the
// task it belongs to. A message with a nil SentAt has not been confirmed as
// published yet.
type OutboxMessage struct {
	ID        int64
	TaskID    string
	Payload   []byte
	Attempts  int
	CreatedAt time.Time
	SentAt    *time.Time
}

// OutboxStore persists outgoing queue messages until they are published.
type OutboxStore interface {
	// Add records a pending message and returns its id.
	Add(ctx context.Context, taskID string, payload []byte) (int64, error)

	// MarkSent flags a message as published.
	// Returns ErrOutboxMessageNotFound if no such message exists.
	MarkSent(ctx context.Context, id int64) error

	// MarkFailed increments the attempt counter of a message that could not be
	// published and releases its claim.
	MarkFailed(ctx context.Context, id int64) error

	// ClaimPending claims up to limit unsent, unclaimed messages created more
	// than olderThan ago, oldest first. Claimed messages are hidden from other
	// callers for lease, so concurrent relays never pick the same message.
	ClaimPending(ctx context.Context, olderThan, lease time.Duration, limit int) ([]OutboxMessage, error)

	// WithTx returns a new OutboxStore instance that uses the provided transaction.
	WithTx(tx pgx.Tx) OutboxStore
}
