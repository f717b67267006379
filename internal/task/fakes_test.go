package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/phrazzld/textproc/internal/domain"
	"github.com/phrazzld/textproc/internal/store"
	"github.com/streadway/amqp"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type fakeDetector struct {
	lang    string
	err     error
	panics  bool
	mu      sync.Mutex
	gotText []string
}

func (d *fakeDetector) Detect(_ context.Context, text string) (string, error) {
	d.mu.Lock()
	d.gotText = append(d.gotText, text)
	d.mu.Unlock()
	if d.panics {
		panic("classifier exploded")
	}
	if d.err != nil {
		return "", d.err
	}
	return d.lang, nil
}

type completeCall struct {
	id     string
	result domain.TaskResult
}

// fakeWriter records completions. When block is set, CompleteTask signals
// started and waits for block to be closed.
type fakeWriter struct {
	mu      sync.Mutex
	calls   []completeCall
	applied bool
	errs    []error
	started chan struct{}
	block   chan struct{}
}

func (w *fakeWriter) CompleteTask(_ context.Context, id string, result domain.TaskResult) (bool, error) {
	if w.started != nil {
		w.started <- struct{}{}
	}
	if w.block != nil {
		<-w.block
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, completeCall{id: id, result: result})
	if len(w.errs) > 0 {
		err := w.errs[0]
		w.errs = w.errs[1:]
		if err != nil {
			return false, err
		}
	}
	return w.applied, nil
}

func (w *fakeWriter) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.calls)
}

type nackCall struct {
	tag     uint64
	requeue bool
}

type fakeAcknowledger struct {
	mu    sync.Mutex
	acks  []uint64
	nacks []nackCall
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks = append(a.acks, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks = append(a.nacks, nackCall{tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) snapshot() ([]uint64, []nackCall) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uint64(nil), a.acks...), append([]nackCall(nil), a.nacks...)
}

type fakeSource struct {
	deliveries chan amqp.Delivery
	err        error
}

func (s *fakeSource) Consume(context.Context) (<-chan amqp.Delivery, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.deliveries, nil
}

type publishCall struct {
	body    []byte
	headers amqp.Table
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
	// failBodies makes Publish fail for specific payloads.
	failBodies map[string]bool
}

func (p *fakePublisher) Publish(ctx context.Context, body []byte) error {
	return p.PublishWithHeaders(ctx, body, nil)
}

func (p *fakePublisher) PublishWithHeaders(_ context.Context, body []byte, headers amqp.Table) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if p.failBodies[string(body)] {
		return errors.New("publish failed")
	}
	p.calls = append(p.calls, publishCall{body: body, headers: headers})
	return nil
}

func (p *fakePublisher) published() []publishCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishCall(nil), p.calls...)
}

type addCall struct {
	taskID  string
	payload []byte
}

type fakeOutbox struct {
	mu        sync.Mutex
	pending   []store.OutboxMessage
	listErr   error
	addErr    error
	added     []addCall
	sent      []int64
	failed    []int64
	gotAge    time.Duration
	gotLease  time.Duration
	gotLimit  int
	markErr   error
	listCalls int
}

// Add records the message and hands out ids starting at 100.
func (o *fakeOutbox) Add(_ context.Context, taskID string, payload []byte) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.addErr != nil {
		return 0, o.addErr
	}
	o.added = append(o.added, addCall{taskID: taskID, payload: payload})
	return int64(99 + len(o.added)), nil
}

func (o *fakeOutbox) MarkSent(_ context.Context, id int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.markErr != nil {
		return o.markErr
	}
	o.sent = append(o.sent, id)
	return nil
}

func (o *fakeOutbox) MarkFailed(_ context.Context, id int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, id)
	return nil
}

func (o *fakeOutbox) ClaimPending(
	_ context.Context,
	olderThan, lease time.Duration,
	limit int,
) ([]store.OutboxMessage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listCalls++
	o.gotAge = olderThan
	o.gotLease = lease
	o.gotLimit = limit
	if o.listErr != nil {
		return nil, o.listErr
	}
	return append([]store.OutboxMessage(nil), o.pending...), nil
}

func (o *fakeOutbox) WithTx(pgx.Tx) store.OutboxStore {
	return o
}

func (o *fakeOutbox) scans() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.listCalls
}

type stuckQuery struct {
	olderThan   time.Duration
	maxRequeues int
	limit       int
}

// fakeTaskStore serves the stuck task query; the other methods are unused by
// the relay.
type fakeTaskStore struct {
	mu      sync.Mutex
	stuck   []*domain.Task
	err     error
	queries []stuckQuery
}

func (s *fakeTaskStore) Create(context.Context, *domain.Task) error {
	return errors.New("not used")
}

func (s *fakeTaskStore) GetByID(context.Context, string) (*domain.Task, error) {
	return nil, errors.New("not used")
}

func (s *fakeTaskStore) Complete(context.Context, string, domain.TaskResult) (bool, error) {
	return false, errors.New("not used")
}

func (s *fakeTaskStore) GetStuckTasks(
	_ context.Context,
	olderThan time.Duration,
	maxRequeues, limit int,
) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, stuckQuery{olderThan: olderThan, maxRequeues: maxRequeues, limit: limit})
	if s.err != nil {
		return nil, s.err
	}
	return s.stuck, nil
}

func (s *fakeTaskStore) WithTx(pgx.Tx) store.TaskStore {
	return s
}
