package postgres

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/phrazzld/textproc/internal/platform/logger"
	"github.com/phrazzld/textproc/internal/store"
)

// PostgresOutboxStore implements store.OutboxStore using the task_outbox table.
type PostgresOutboxStore struct {
	db store.DBTX
}

var _ store.OutboxStore = (*PostgresOutboxStore)(nil)

// NewPostgresOutboxStore creates a new PostgresOutboxStore.
func NewPostgresOutboxStore(db store.DBTX) *PostgresOutboxStore {
	return &PostgresOutboxStore{db: db}
}

// WithTx returns a store bound to tx.
func (s *PostgresOutboxStore) WithTx(tx pgx.Tx) store.OutboxStore {
	return &PostgresOutboxStore{db: tx}
}

// Add records a pending message for taskID.
func (s *PostgresOutboxStore) Add(ctx context.Context, taskID string, payload []byte) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO task_outbox (task_id, payload) VALUES ($1, $2) RETURNING id`,
		taskID, payload,
	).Scan(&id)
	if err != nil {
		logger.FromContext(ctx).Error("failed to add outbox message", "task_id", taskID, "error", err)
		return 0, store.NewStoreError("outbox", "add", "insert failed", MapError(err))
	}
	return id, nil
}

// MarkSent flags the message as published.
func (s *PostgresOutboxStore) MarkSent(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE task_outbox SET sent_at = $2 WHERE id = $1`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return store.NewStoreError("outbox", "mark_sent", "update failed", MapError(err))
	}
	return CheckRowsAffected(tag, store.ErrOutboxMessageNotFound)
}

// MarkFailed increments the attempt counter of an unpublished message and
// releases its claim so the next scan retries it.
func (s *PostgresOutboxStore) MarkFailed(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE task_outbox SET attempts = attempts + 1, claimed_until = NULL WHERE id = $1 AND sent_at IS NULL`,
		id,
	)
	if err != nil {
		return store.NewStoreError("outbox", "mark_failed", "update failed", MapError(err))
	}
	return CheckRowsAffected(tag, store.ErrOutboxMessageNotFound)
}

// ClaimPending claims up to limit unsent messages older than olderThan whose
// previous claim, if any, has expired. The claim is taken in a single
// statement with FOR UPDATE SKIP LOCKED, so relays running on several servers
// split the backlog instead of publishing the same rows.
func (s *PostgresOutboxStore) ClaimPending(
	ctx context.Context,
	olderThan, lease time.Duration,
	limit int,
) ([]store.OutboxMessage, error) {
	log := logger.FromContext(ctx)

	query := `
		UPDATE task_outbox
		SET claimed_until = $3
		WHERE id IN (
			SELECT id FROM task_outbox
			WHERE sent_at IS NULL AND created_at < $1
			  AND (claimed_until IS NULL OR claimed_until < $4)
			ORDER BY created_at ASC, id ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, task_id, payload, attempts, created_at, sent_at
	`

	now := time.Now().UTC()
	rows, err := s.db.Query(ctx, query, now.Add(-olderThan), limit, now.Add(lease), now)
	if err != nil {
		log.Error("failed to claim pending outbox messages", "error", err)
		return nil, store.NewStoreError("outbox", "claim_pending", "query failed", MapError(err))
	}
	defer rows.Close()

	var messages []store.OutboxMessage
	for rows.Next() {
		var m store.OutboxMessage
		if err := rows.Scan(&m.ID, &m.TaskID, &m.Payload, &m.Attempts, &m.CreatedAt, &m.SentAt); err != nil {
			log.Error("failed to scan outbox row", "error", err)
			return nil, store.NewStoreError("outbox", "claim_pending", "scan failed", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating outbox rows", "error", err)
		return nil, store.NewStoreError("outbox", "claim_pending", "iteration failed", err)
	}

	// RETURNING does not preserve the subquery order.
	sort.Slice(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}
