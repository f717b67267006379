package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/phrazzld/textproc/internal/platform/metrics"
	"github.com/phrazzld/textproc/internal/store"
)

// Publisher publishes a message body to the task queue.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// RelayConfig holds configuration for the outbox relay.
type RelayConfig struct {
	// Interval defines how often the outbox is scanned.
	// If zero, defaults to 30 seconds.
	Interval time.Duration

	// Age is how long a message must have been pending before the relay
	// picks it up.
	Age time.Duration

	// BatchSize caps the messages handled per scan.
	BatchSize int

	// Lease is how long a claimed message stays hidden from other relays.
	// If zero, defaults to twice the interval.
	Lease time.Duration

	// StuckAge is how long a task may stay processing after its last message
	// was published before it is queued again. Zero disables the sweep.
	StuckAge time.Duration

	// MaxRequeues caps how many times one task is queued again.
	MaxRequeues int
}

// DefaultRelayConfig returns a RelayConfig with reasonable defaults.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		Interval:    30 * time.Second,
		Age:         time.Minute,
		BatchSize:   100,
		Lease:       time.Minute,
		StuckAge:    15 * time.Minute,
		MaxRequeues: 3,
	}
}

// Relay publishes outbox messages that were committed but never confirmed as
// published, e.g. because the broker was down or the server crashed between
// commit and publish. It also queues again tasks that stayed processing long
// after their message went out, e.g. because the worker dead-lettered it.
type Relay struct {
	db         store.TxBeginner
	tasks      store.TaskStore
	outbox     store.OutboxStore
	publisher  Publisher
	config     RelayConfig
	metrics    *metrics.Metrics
	logger     *slog.Logger
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewRelay creates a Relay. m may be nil. The stuck task sweep only runs
// when db and tasks are set and config.StuckAge is positive.
func NewRelay(
	db store.TxBeginner,
	tasks store.TaskStore,
	outbox store.OutboxStore,
	publisher Publisher,
	config RelayConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Relay {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.Lease <= 0 {
		config.Lease = 2 * config.Interval
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Relay{
		db:         db,
		tasks:      tasks,
		outbox:     outbox,
		publisher:  publisher,
		config:     config,
		metrics:    m,
		logger:     logger.With("component", "outbox_relay"),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start launches the relay loop in the background.
func (r *Relay) Start() {
	r.logger.Info("starting outbox relay",
		"interval", r.config.Interval,
		"age", r.config.Age,
		"batch_size", r.config.BatchSize,
		"stuck_age", r.config.StuckAge,
		"max_requeues", r.config.MaxRequeues)

	r.wg.Add(1)
	go r.loop()
}

// Stop halts the loop and waits for a scan in progress to finish.
func (r *Relay) Stop() {
	r.cancelFunc()
	r.wg.Wait()
}

func (r *Relay) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			if _, err := r.RunOnce(r.ctx); err != nil {
				r.logger.Error("outbox scan failed", "error", err)
			}
			if _, err := r.RequeueStuck(r.ctx); err != nil {
				r.logger.Error("stuck task sweep failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single scan and returns how many messages were
// published. A publish failure increments the message's attempt counter and
// moves on to the next message.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	pending, err := r.outbox.ClaimPending(ctx, r.config.Age, r.config.Lease, r.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to claim pending outbox messages: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	r.logger.Info("found pending outbox messages", "count", len(pending))

	sent := r.publishAll(ctx, pending, "sent")

	r.logger.Info("outbox scan finished", "sent", sent, "pending", len(pending))
	return sent, nil
}

// RequeueStuck records a fresh outbox message for every stuck task and
// publishes it. It returns how many tasks were put back on the queue.
func (r *Relay) RequeueStuck(ctx context.Context) (int, error) {
	if r.db == nil || r.tasks == nil || r.config.StuckAge <= 0 {
		return 0, nil
	}

	var requeued []store.OutboxMessage
	err := store.RunInTransaction(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		stuck, err := r.tasks.WithTx(tx).GetStuckTasks(ctx, r.config.StuckAge, r.config.MaxRequeues, r.config.BatchSize)
		if err != nil {
			return err
		}

		outbox := r.outbox.WithTx(tx)
		for _, t := range stuck {
			payload, err := NewMessage(t).Encode()
			if err != nil {
				return err
			}
			id, err := outbox.Add(ctx, t.ID, payload)
			if err != nil {
				return err
			}
			requeued = append(requeued, store.OutboxMessage{ID: id, TaskID: t.ID, Payload: payload})
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stuck tasks: %w", err)
	}
	if len(requeued) == 0 {
		return 0, nil
	}

	r.logger.Warn("requeueing stuck tasks", "count", len(requeued), "stuck_age", r.config.StuckAge)

	// Messages that fail to publish here stay pending and go out with a
	// later outbox scan.
	return r.publishAll(ctx, requeued, "requeued"), nil
}

func (r *Relay) publishAll(ctx context.Context, msgs []store.OutboxMessage, result string) int {
	sent := 0
	for _, msg := range msgs {
		if ctx.Err() != nil {
			break
		}
		log := r.logger.With("outbox_id", msg.ID, "task_id", msg.TaskID, "attempts", msg.Attempts)

		if err := r.publisher.Publish(ctx, msg.Payload); err != nil {
			log.Warn("failed to publish outbox message", "error", err)
			r.metrics.ObserveRelayed("failed")
			if err := r.outbox.MarkFailed(ctx, msg.ID); err != nil {
				log.Error("failed to record outbox publish failure", "error", err)
			}
			continue
		}

		// A failed MarkSent leaves the row pending; the message is then
		// published again, which the worker tolerates.
		if err := r.outbox.MarkSent(ctx, msg.ID); err != nil {
			log.Error("failed to mark outbox message sent", "error", err)
		}
		r.metrics.ObserveRelayed(result)
		sent++
	}
	return sent
}
