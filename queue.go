package xmediator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// DefaultQueueWorkers caps concurrent in-flight event processing.
const DefaultQueueWorkers = 4

// DefaultQueueBuffer is the FIFO capacity before enqueue starts dropping.
const DefaultQueueBuffer = 1024

// DefaultBackoffBase is the unit of the exponential retry delay
// (2^retry * base, using the post-increment retry count).
const DefaultBackoffBase = time.Second

// QueueStats is a snapshot of queue telemetry.
type QueueStats struct {
	Enqueued     uint64
	Processed    uint64
	Failed       uint64
	Retried      uint64
	DeadLettered uint64
	Dropped      uint64
	InFlight     int
	Depth        int
	Workers      int
}

type queueConfig struct {
	workers           int
	buffer            int
	backoffBase       time.Duration
	defaultMaxRetries int
	deadLetters       *DeadLetterStore // nil disables dead-lettering
	logger            *xlog.Logger
	clock             xclock.Clock
	notify            func(LifecycleEvent)
	process           Handler
}

// Queue decouples publish from processing: a FIFO buffer drained by a fixed
// set of worker goroutines, with retry-then-dead-letter on failure. Total
// in-flight processing never exceeds the worker count.
type Queue struct {
	cfg queueConfig

	ch chan *Event

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	closed atomic.Bool

	enqueued     atomic.Uint64
	processed    atomic.Uint64
	failed       atomic.Uint64
	retried      atomic.Uint64
	deadLettered atomic.Uint64
	dropped      atomic.Uint64
	inFlight     atomic.Int64
}

func newQueue(cfg queueConfig) *Queue {
	if cfg.workers < 1 {
		cfg.workers = DefaultQueueWorkers
	}
	if cfg.buffer < 1 {
		cfg.buffer = DefaultQueueBuffer
	}
	if cfg.backoffBase <= 0 {
		cfg.backoffBase = DefaultBackoffBase
	}
	if cfg.defaultMaxRetries < 0 {
		cfg.defaultMaxRetries = DefaultMaxRetries
	}
	if cfg.logger == nil {
		cfg.logger = xlog.Default()
	}
	if cfg.clock == nil {
		cfg.clock = xclock.Default()
	}
	if cfg.notify == nil {
		cfg.notify = func(LifecycleEvent) {}
	}
	return &Queue{
		cfg: cfg,
		ch:  make(chan *Event, cfg.buffer),
	}
}

// Start spawns the worker goroutines. Idempotent.
func (q *Queue) Start() {
	if q.closed.Load() {
		return
	}
	q.runMu.Lock()
	defer q.runMu.Unlock()
	if q.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.running = true
	for i := 0; i < q.cfg.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Stop halts draining. Buffered events stay queued and events already in
// flight run to completion. Idempotent.
func (q *Queue) Stop() {
	q.runMu.Lock()
	if !q.running {
		q.runMu.Unlock()
		return
	}
	q.running = false
	q.cancel()
	q.runMu.Unlock()
	q.wg.Wait()
}

// Close stops the queue permanently. Workers drain the buffer before exiting
// and Close waits up to timeout for that to finish.
func (q *Queue) Close(timeout time.Duration) error {
	if q.closed.Swap(true) {
		return nil
	}

	q.runMu.Lock()
	wasRunning := q.running
	if wasRunning {
		q.running = false
		q.cancel()
	}
	q.runMu.Unlock()
	if !wasRunning {
		return nil
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

// Enqueue appends the event to the FIFO without blocking. While the queue is
// stopped the event stays buffered until Start. A full buffer drops the
// event with a warning.
func (q *Queue) Enqueue(e *Event) {
	if e == nil {
		return
	}
	if q.closed.Load() {
		q.dropped.Add(1)
		q.cfg.logger.Warn().
			Str("event_id", e.ID).
			Str("event_type", e.Type).
			Msg("xmediator: enqueue on closed queue, event dropped")
		return
	}

	// A construction-time delay defers the first enqueue.
	if e.Metadata.Delay > 0 {
		deferred := e.clone()
		deferred.Metadata.Delay = 0
		time.AfterFunc(e.Metadata.Delay, func() { q.Enqueue(deferred) })
		return
	}

	select {
	case q.ch <- e:
		q.enqueued.Add(1)
	default:
		q.dropped.Add(1)
		q.cfg.notify(LifecycleEvent{Type: EventDropped, EventID: e.ID, EventType: e.Type})
		q.cfg.logger.Warn().
			Str("event_id", e.ID).
			Str("event_type", e.Type).
			Int("depth", len(q.ch)).
			Msg("xmediator: queue full, event dropped")
	}
}

// worker pulls events head-first. Strict FIFO at dequeue time; completion
// order across workers is not guaranteed. On Close the worker drains what is
// still buffered before exiting; on Stop it leaves the buffer intact.
func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			if q.closed.Load() {
				q.drain()
			}
			return
		case e := <-q.ch:
			if e != nil {
				q.handle(e)
			}
		}
	}
}

// drain consumes whatever is buffered at close time so accepted events are
// processed rather than abandoned.
func (q *Queue) drain() {
	for {
		select {
		case e := <-q.ch:
			if e != nil {
				q.handle(e)
			}
		default:
			return
		}
	}
}

// handle processes one event on a fresh context: Stop and Close signal the
// workers, they never interrupt a handler mid-flight.
func (q *Queue) handle(e *Event) {
	ctx := context.Background()
	q.inFlight.Add(1)
	defer q.inFlight.Add(-1)

	now := q.cfg.clock.Now()
	if e.Expired(now) {
		q.dropped.Add(1)
		q.cfg.notify(LifecycleEvent{Type: EventDropped, EventID: e.ID, EventType: e.Type})
		q.cfg.logger.Warn().
			Str("event_id", e.ID).
			Str("event_type", e.Type).
			Msg("xmediator: event TTL expired, dropped")
		return
	}

	err := q.cfg.process(ctx, e)
	if err == nil {
		q.processed.Add(1)
		return
	}
	q.failed.Add(1)

	maxRetries := e.Metadata.MaxRetries
	if maxRetries < 0 {
		maxRetries = q.cfg.defaultMaxRetries
	}
	if e.Metadata.Retry < maxRetries {
		retry := e.ForRetry()
		delay := q.backoff(retry.Metadata.Retry)
		q.retried.Add(1)
		q.cfg.notify(LifecycleEvent{
			Type:      RetryScheduled,
			EventID:   retry.ID,
			EventType: retry.Type,
			Attempt:   retry.Metadata.Retry,
			Err:       err,
		})
		q.cfg.logger.Debug().
			Str("event_id", retry.ID).
			Str("event_type", retry.Type).
			Int("retry", retry.Metadata.Retry).
			Dur("delay", delay).
			Err(err).
			Msg("xmediator: retry scheduled")
		time.AfterFunc(delay, func() { q.Enqueue(retry) })
		return
	}

	attempts := e.Metadata.Retry + 1
	if q.cfg.deadLetters == nil {
		q.dropped.Add(1)
		q.cfg.notify(LifecycleEvent{Type: EventDropped, EventID: e.ID, EventType: e.Type, Attempt: attempts, Err: err})
		q.cfg.logger.Warn().
			Str("event_id", e.ID).
			Str("event_type", e.Type).
			Int("attempts", attempts).
			Err(err).
			Msg("xmediator: retries exhausted and dead-lettering disabled, event dropped")
		return
	}
	q.cfg.deadLetters.Add(e, err, attempts)
	q.deadLettered.Add(1)
	q.cfg.notify(LifecycleEvent{Type: DeadLettered, EventID: e.ID, EventType: e.Type, Attempt: attempts, Err: err})
	q.cfg.logger.Warn().
		Str("event_id", e.ID).
		Str("event_type", e.Type).
		Int("attempts", attempts).
		Err(err).
		Msg("xmediator: event dead-lettered")
}

// backoff computes 2^retry * base from the post-increment retry count.
func (q *Queue) backoff(retry int) time.Duration {
	if retry > 30 {
		retry = 30
	}
	return q.cfg.backoffBase * time.Duration(int64(1)<<uint(retry))
}

// RetryDeadLetter re-enqueues the dead-lettered event with the given ID,
// resetting its retry count to zero.
func (q *Queue) RetryDeadLetter(eventID string) error {
	if q.cfg.deadLetters == nil {
		return ErrDeadLetterDisabled
	}
	if q.closed.Load() {
		return ErrQueueClosed
	}
	entry, ok := q.cfg.deadLetters.take(eventID)
	if !ok {
		return ErrDeadLetterNotFound
	}
	q.Enqueue(resetRetry(entry.Event))
	return nil
}

// RetryAllDeadLetters re-enqueues every dead-lettered event with retry counts
// reset, returning how many were requeued.
func (q *Queue) RetryAllDeadLetters() (int, error) {
	if q.cfg.deadLetters == nil {
		return 0, ErrDeadLetterDisabled
	}
	if q.closed.Load() {
		return 0, ErrQueueClosed
	}
	entries := q.cfg.deadLetters.takeAll()
	for _, entry := range entries {
		q.Enqueue(resetRetry(entry.Event))
	}
	return len(entries), nil
}

// Stats returns a snapshot of queue telemetry.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Enqueued:     q.enqueued.Load(),
		Processed:    q.processed.Load(),
		Failed:       q.failed.Load(),
		Retried:      q.retried.Load(),
		DeadLettered: q.deadLettered.Load(),
		Dropped:      q.dropped.Load(),
		InFlight:     int(q.inFlight.Load()),
		Depth:        len(q.ch),
		Workers:      q.cfg.workers,
	}
}

func resetRetry(e *Event) *Event {
	out := e.clone()
	out.Metadata.Retry = 0
	out.acked = false
	return out
}
