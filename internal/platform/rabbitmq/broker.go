package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/textproc/internal/config"
	"github.com/sethvargo/go-retry"
	"github.com/streadway/amqp"
)

// ErrBrokerUnavailable is returned when the broker cannot be reached after the
// configured number of attempts, or when the connection has been lost.
var ErrBrokerUnavailable = errors.New("message broker unavailable")

// Default connection and topology settings.
const (
	DefaultQueue           = "text_tasks"
	DefaultConnectAttempts = 5
	DefaultConnectDelay    = 5 * time.Second
	DefaultPrefetch        = 10
)

// Config describes how to reach the broker and which queues to use.
type Config struct {
	URL             string
	Queue           string
	DeadLetterQueue string
	ConnectAttempts int
	ConnectDelay    time.Duration
	Prefetch        int
	ConsumerTag     string
}

// NewConfig converts the application broker settings into a Config.
func NewConfig(cfg config.BrokerConfig, consumerTag string) Config {
	return Config{
		URL:             cfg.URL,
		Queue:           cfg.Queue,
		DeadLetterQueue: cfg.DeadLetterQueue,
		ConnectAttempts: cfg.ConnectAttempts,
		ConnectDelay:    cfg.ConnectDelay,
		Prefetch:        cfg.Prefetch,
		ConsumerTag:     consumerTag,
	}
}

func (c Config) withDefaults() Config {
	if c.Queue == "" {
		c.Queue = DefaultQueue
	}
	if c.DeadLetterQueue == "" {
		c.DeadLetterQueue = c.Queue + ".dead"
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = DefaultConnectAttempts
	}
	if c.ConnectDelay <= 0 {
		c.ConnectDelay = DefaultConnectDelay
	}
	if c.Prefetch <= 0 {
		c.Prefetch = DefaultPrefetch
	}
	return c
}

// deadLetterExchange names the direct exchange rejected messages are routed to.
func (c Config) deadLetterExchange() string {
	return c.Queue + ".dlx"
}

// Option customizes a Broker at construction.
type Option func(*Broker)

// WithDialer replaces the AMQP dialer, mainly for tests.
func WithDialer(d Dialer) Option {
	return func(b *Broker) {
		b.dial = d
	}
}

// Broker owns one connection and one channel to RabbitMQ. Publishing is safe
// for concurrent use.
type Broker struct {
	cfg  Config
	log  *slog.Logger
	dial Dialer

	conn Connection
	ch   Channel

	mu        sync.Mutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

// Connect dials the broker, retrying up to cfg.ConnectAttempts times with a
// constant cfg.ConnectDelay between attempts, then declares the topology.
// Exhausting the attempts returns an error wrapping ErrBrokerUnavailable.
func Connect(ctx context.Context, cfg Config, log *slog.Logger, opts ...Option) (*Broker, error) {
	b := &Broker{
		cfg:  cfg.withDefaults(),
		log:  log.With("component", "rabbitmq"),
		dial: DialAMQP,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	conn, err := b.dialWithRetry(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: open channel: %v", ErrBrokerUnavailable, err)
	}

	if err := declareTopology(ch, b.cfg); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare topology: %w", err)
	}

	b.conn = conn
	b.ch = ch
	go b.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))

	b.log.Info("connected to message broker",
		"queue", b.cfg.Queue,
		"dead_letter_queue", b.cfg.DeadLetterQueue,
		"prefetch", b.cfg.Prefetch)
	return b, nil
}

func (b *Broker) dialWithRetry(ctx context.Context) (Connection, error) {
	backoff := retry.WithMaxRetries(
		uint64(b.cfg.ConnectAttempts-1),
		retry.NewConstant(b.cfg.ConnectDelay),
	)

	attempt := 0
	conn, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (Connection, error) {
		attempt++
		conn, err := b.dial(b.cfg.URL)
		if err != nil {
			b.log.Warn("broker connection attempt failed",
				"attempt", attempt,
				"max_attempts", b.cfg.ConnectAttempts,
				"retry_in", b.cfg.ConnectDelay,
				"error", err)
			return nil, retry.RetryableError(err)
		}
		return conn, nil
	})
	if err != nil {
		b.log.Error("giving up connecting to message broker", "attempts", attempt, "error", err)
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrBrokerUnavailable, attempt, err)
	}
	return conn, nil
}

func declareTopology(ch Channel, cfg Config) error {
	dlx := cfg.deadLetterExchange()
	if err := ch.ExchangeDeclare(dlx, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter exchange %s: %w", dlx, err)
	}
	if _, err := ch.QueueDeclare(cfg.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter queue %s: %w", cfg.DeadLetterQueue, err)
	}
	if err := ch.QueueBind(cfg.DeadLetterQueue, cfg.DeadLetterQueue, dlx, false, nil); err != nil {
		return fmt.Errorf("bind dead-letter queue %s: %w", cfg.DeadLetterQueue, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    dlx,
		"x-dead-letter-routing-key": cfg.DeadLetterQueue,
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}
	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	return nil
}

// watch closes done when the connection goes away.
func (b *Broker) watch(closed chan *amqp.Error) {
	err, ok := <-closed
	b.mu.Lock()
	shuttingDown := b.closed
	b.mu.Unlock()

	if !shuttingDown {
		if ok && err != nil {
			b.log.Error("broker connection lost", "code", err.Code, "reason", err.Reason)
		} else {
			b.log.Error("broker connection lost")
		}
	}
	b.markDone()
}

func (b *Broker) markDone() {
	b.closeOnce.Do(func() { close(b.done) })
}

// Done is closed once the connection is lost or the broker is closed.
func (b *Broker) Done() <-chan struct{} {
	return b.done
}

// Queue returns the name of the task queue.
func (b *Broker) Queue() string {
	return b.cfg.Queue
}

func (b *Broker) available() bool {
	select {
	case <-b.done:
		return false
	default:
		return true
	}
}

// Publish sends body to the task queue as a persistent JSON message.
func (b *Broker) Publish(ctx context.Context, body []byte) error {
	return b.PublishWithHeaders(ctx, body, nil)
}

// PublishWithHeaders is Publish with extra AMQP headers.
func (b *Broker) PublishWithHeaders(ctx context.Context, body []byte, headers amqp.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || !b.available() {
		return ErrBrokerUnavailable
	}

	err := b.ch.Publish("", b.cfg.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%w: publish: %v", ErrBrokerUnavailable, err)
	}
	return nil
}

// Consume starts a manually acknowledged delivery stream on the task queue.
// The stream ends when the connection or channel closes.
func (b *Broker) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || !b.available() {
		return nil, ErrBrokerUnavailable
	}

	deliveries, err := b.ch.Consume(b.cfg.Queue, b.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: consume: %v", ErrBrokerUnavailable, err)
	}
	return deliveries, nil
}

// Close releases the channel and the connection. It is safe to call more
// than once.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	var errs []error
	if err := b.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, fmt.Errorf("close channel: %w", err))
	}
	if err := b.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, fmt.Errorf("close connection: %w", err))
	}
	b.markDone()
	return errors.Join(errs...)
}
