package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/textproc/internal/platform/langdetect"
	"github.com/phrazzld/textproc/internal/platform/metrics"
	"github.com/phrazzld/textproc/internal/platform/rabbitmq"
	"github.com/sethvargo/go-retry"
	"github.com/streadway/amqp"
)

// AttemptHeader carries the delivery attempt number of a republished message.
// Messages without it are on their first attempt.
const AttemptHeader = "x-attempt"

// DeliverySource yields broker deliveries.
type DeliverySource interface {
	Consume(ctx context.Context) (<-chan amqp.Delivery, error)
}

// Republisher puts a message back on the queue with extra headers.
type Republisher interface {
	PublishWithHeaders(ctx context.Context, body []byte, headers amqp.Table) error
}

// WorkerConfig holds configuration for the Worker.
type WorkerConfig struct {
	// Concurrency is the number of deliveries handled in parallel.
	Concurrency int
	// MaxAttempts bounds how often a message is retried after transient
	// failures before it is dead-lettered.
	MaxAttempts int
	// RetryBaseDelay is the wait before the first retry. Each further retry
	// doubles it, up to RetryMaxDelay.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// DefaultWorkerConfig returns default configuration values.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:    4,
		MaxAttempts:    5,
		RetryBaseDelay: 2 * time.Second,
		RetryMaxDelay:  time.Minute,
	}
}

// Worker consumes task messages and drives the Processor.
type Worker struct {
	source      DeliverySource
	republisher Republisher
	processor   *Processor
	config      WorkerConfig
	metrics     *metrics.Metrics
	logger      *slog.Logger
	// wait blocks for d or until ctx is done.
	wait func(ctx context.Context, d time.Duration) error
}

// NewWorker creates a Worker. m may be nil.
func NewWorker(
	source DeliverySource,
	republisher Republisher,
	processor *Processor,
	config WorkerConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*Worker, error) {
	if source == nil {
		return nil, fmt.Errorf("delivery source cannot be nil")
	}
	if republisher == nil {
		return nil, fmt.Errorf("republisher cannot be nil")
	}
	if processor == nil {
		return nil, fmt.Errorf("processor cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "worker")

	if config.Concurrency <= 0 {
		logger.Warn("invalid concurrency, using default of 1", "provided", config.Concurrency)
		config.Concurrency = 1
	}
	if config.MaxAttempts <= 0 {
		logger.Warn("invalid max attempts, using default of 1", "provided", config.MaxAttempts)
		config.MaxAttempts = 1
	}
	defaults := DefaultWorkerConfig()
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = defaults.RetryBaseDelay
	}
	if config.RetryMaxDelay < config.RetryBaseDelay {
		config.RetryMaxDelay = config.RetryBaseDelay
	}

	return &Worker{
		source:      source,
		republisher: republisher,
		processor:   processor,
		config:      config,
		metrics:     m,
		logger:      logger,
		wait:        sleepContext,
	}, nil
}

// Run consumes deliveries until ctx is cancelled or the broker connection is
// lost. Cancellation stops the intake of new deliveries; handlers already
// running finish, including their acknowledgement, before Run returns nil.
// A lost connection makes Run return an error wrapping
// rabbitmq.ErrBrokerUnavailable.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.source.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("worker started", "concurrency", w.config.Concurrency)

	var wg sync.WaitGroup
	for i := 0; i < w.config.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.consume(ctx, id, deliveries)
		}(i)
	}
	wg.Wait()

	if ctx.Err() != nil {
		w.logger.Info("worker stopped")
		return nil
	}
	w.logger.Error("delivery channel closed, broker connection lost")
	return fmt.Errorf("%w: delivery channel closed", rabbitmq.ErrBrokerUnavailable)
}

func (w *Worker) consume(ctx context.Context, id int, deliveries <-chan amqp.Delivery) {
	log := w.logger.With("worker_id", id)
	log.Debug("worker goroutine started")
	defer log.Debug("worker goroutine stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			w.handle(ctx, log, d)
		}
	}
}

// handle settles one delivery. Processing runs on a context that survives
// cancellation of runCtx so an in-flight delivery is always settled; only a
// pending retry wait is cut short by it.
func (w *Worker) handle(runCtx context.Context, log *slog.Logger, d amqp.Delivery) {
	ctx := context.WithoutCancel(runCtx)
	log = log.With("delivery_tag", d.DeliveryTag, "redelivered", d.Redelivered)

	msg, err := DecodeMessage(d.Body)
	if err != nil {
		log.Error("discarding undecodable message", "error", err)
		w.deadLetter(log, d)
		return
	}
	log = log.With("task_id", msg.TaskID)

	outcome, err := w.processor.Process(ctx, msg)
	switch {
	case err == nil:
		if err := d.Ack(false); err != nil {
			log.Error("failed to ack delivery", "error", err)
			return
		}
		if outcome.Applied {
			w.metrics.ObserveProcessed(metrics.OutcomeCompleted)
		} else {
			w.metrics.ObserveProcessed(metrics.OutcomeNoop)
		}
	case isTransient(err):
		w.retryOrDeadLetter(runCtx, log, d, err)
	default:
		log.Error("task processing failed", "error", err)
		w.deadLetter(log, d)
	}
}

// isTransient reports whether err is worth retrying: the result could not be
// stored, or the language classifier was temporarily unreachable.
func isTransient(err error) bool {
	return errors.Is(err, ErrPersistenceFailure) || errors.Is(err, langdetect.ErrUnavailable)
}

// retryOrDeadLetter waits for the backoff of the current attempt, then
// republishes d with an incremented attempt header. Once MaxAttempts is
// reached the delivery is dead-lettered. If the wait is interrupted by
// shutdown or the republish fails, the delivery is requeued unchanged.
func (w *Worker) retryOrDeadLetter(runCtx context.Context, log *slog.Logger, d amqp.Delivery, cause error) {
	attempt := attemptOf(d.Headers)
	if attempt >= w.config.MaxAttempts {
		log.Error("retries exhausted, dead-lettering", "attempt", attempt, "error", cause)
		w.deadLetter(log, d)
		return
	}

	delay := w.retryDelay(attempt)
	log.Warn("transient failure, retrying after backoff",
		"attempt", attempt, "delay", delay, "error", cause)
	if err := w.wait(runCtx, delay); err != nil {
		log.Info("retry wait interrupted, requeueing", "error", err)
		w.requeue(log, d)
		return
	}

	headers := amqp.Table{AttemptHeader: int32(attempt + 1)}
	if err := w.republisher.PublishWithHeaders(context.WithoutCancel(runCtx), d.Body, headers); err != nil {
		log.Error("failed to republish message, requeueing", "error", err)
		w.requeue(log, d)
		return
	}
	if err := d.Ack(false); err != nil {
		log.Error("failed to ack republished delivery", "error", err)
		return
	}
	log.Info("message republished for retry", "next_attempt", attempt+1)
	w.metrics.ObserveProcessed(metrics.OutcomeRetried)
}

// retryDelay is the wait before retrying a delivery that failed on attempt:
// RetryBaseDelay doubled for every earlier attempt, capped at RetryMaxDelay.
func (w *Worker) retryDelay(attempt int) time.Duration {
	b := retry.WithCappedDuration(w.config.RetryMaxDelay, retry.NewExponential(w.config.RetryBaseDelay))
	var delay time.Duration
	for i := 0; i < attempt; i++ {
		delay, _ = b.Next()
	}
	return delay
}

func (w *Worker) requeue(log *slog.Logger, d amqp.Delivery) {
	if err := d.Nack(false, true); err != nil {
		log.Error("failed to nack delivery", "error", err)
	}
}

func (w *Worker) deadLetter(log *slog.Logger, d amqp.Delivery) {
	if err := d.Nack(false, false); err != nil {
		log.Error("failed to nack delivery", "error", err)
		return
	}
	w.metrics.ObserveProcessed(metrics.OutcomeDeadLettered)
}

// attemptOf reads the attempt header; absent or malformed values count as 1.
func attemptOf(headers amqp.Table) int {
	var n int
	switch v := headers[AttemptHeader].(type) {
	case int:
		n = v
	case int16:
		n = int(v)
	case int32:
		n = int(v)
	case int64:
		n = int(v)
	}
	if n < 1 {
		return 1
	}
	return n
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
