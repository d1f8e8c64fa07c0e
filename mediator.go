package xmediator

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// GlobalPattern subscribes to every event type.
const GlobalPattern = "*"

// SubscribeOption customizes a registration.
type SubscribeOption func(*registration)

// WithSubscriberPriority sets the delivery priority for the registration.
// Higher priorities are invoked first; ties keep registration order.
func WithSubscriberPriority(priority int) SubscribeOption {
	return func(r *registration) { r.priority = priority }
}

// WithSubscriberID overrides the generated subscriber identity used in logs
// and metrics.
func WithSubscriberID(id string) SubscribeOption {
	return func(r *registration) {
		if id != "" {
			r.subscriberID = id
		}
	}
}

// registration binds one Subscribe call to the dispatch index. The same
// registration under several patterns collapses to a single invocation per
// event.
type registration struct {
	id           string
	seq          uint64
	subscriberID string
	priority     int
	subscriber   Subscriber
	subscription *Subscription
}

// Mediator owns the subscriber index and orchestrates delivery: it resolves
// the interested subscribers for each event (exact type, global wildcard,
// namespace wildcard), invokes them in priority order with per-subscriber
// isolation, and records outcomes.
type Mediator struct {
	logger         *xlog.Logger
	clock          xclock.Clock
	enrichment     *EnrichmentPipeline
	metrics        *MetricsRecorder
	deadLetters    *DeadLetterStore
	queue          *Queue
	handlerTimeout time.Duration
	syncMode       bool

	mu    sync.RWMutex
	seq   uint64
	index map[string]map[string]*registration // pattern -> registration id -> registration

	observersMu sync.RWMutex
	observers   []Observer

	closed    atomic.Bool
	closeOnce sync.Once
}

// Subscribe registers the subscriber under every listed pattern: an exact
// type, a namespace wildcard ("user.*"), or the global wildcard ("*").
// Duplicate patterns in one call collapse; separate calls are additive.
func (m *Mediator) Subscribe(eventTypes []string, s Subscriber, opts ...SubscribeOption) (*Subscription, error) {
	if m.closed.Load() {
		return nil, ErrMediatorClosed
	}
	if s == nil {
		return nil, ErrNilSubscriber
	}
	patterns := dedupePatterns(eventTypes)
	if len(patterns) == 0 {
		return nil, ErrNoEventTypes
	}

	reg := &registration{
		id:           uuid.NewString(),
		subscriberID: uuid.NewString(),
		subscriber:   s,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(reg)
		}
	}

	sub := newSubscription(reg.subscriberID, patterns, m.clock.Now(), func() {
		m.unsubscribe(reg, patterns)
	})
	reg.subscription = sub

	m.mu.Lock()
	m.seq++
	reg.seq = m.seq
	for _, pattern := range patterns {
		set, ok := m.index[pattern]
		if !ok {
			set = make(map[string]*registration)
			m.index[pattern] = set
		}
		set[reg.id] = reg
	}
	m.mu.Unlock()

	m.logger.Debug().
		Str("subscriber", reg.subscriberID).
		Int("patterns", len(patterns)).
		Msg("xmediator: subscriber registered")
	return sub, nil
}

// unsubscribe removes the registration from every index entry. Runs before
// Subscription.Cancel returns; an event already in flight still completes.
func (m *Mediator) unsubscribe(reg *registration, patterns []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pattern := range patterns {
		if set, ok := m.index[pattern]; ok {
			delete(set, reg.id)
			if len(set) == 0 {
				delete(m.index, pattern)
			}
		}
	}
}

// Publish hands the event over for delivery. In async mode (the default) it
// enqueues and returns immediately; subscriber failures never reach the
// caller. In sync mode it processes inline and surfaces processing errors.
func (m *Mediator) Publish(ctx context.Context, e *Event) error {
	if m.closed.Load() {
		return ErrMediatorClosed
	}
	if e == nil {
		return ErrMalformedEvent
	}

	m.metrics.RecordPublished(e.Type)
	m.notify(LifecycleEvent{Type: PublishStart, EventID: e.ID, EventType: e.Type})

	if m.syncMode || m.queue == nil {
		err := m.Process(ctx, e)
		m.notify(LifecycleEvent{Type: PublishDone, EventID: e.ID, EventType: e.Type, Err: err})
		return err
	}

	// Enrich before enqueueing: ambient context (actor/session/trace) lives
	// in the caller's ctx, which queue workers do not see.
	enriched := m.enrichment.Enrich(ctx, e)
	if enriched == e {
		// Workers ack and derive from the event; never hand them the
		// caller's instance.
		enriched = e.clone()
	}
	m.queue.Enqueue(enriched)
	m.notify(LifecycleEvent{Type: PublishDone, EventID: e.ID, EventType: e.Type})
	return nil
}

// Process runs one delivery pass: enrichment, subscriber resolution, and
// sequential priority-ordered invocation with per-subscriber isolation.
// Subscriber errors are logged and do not fail the pass; only mediator-level
// failures (closed, cancelled context) return an error, which the queue
// answers with its retry policy.
func (m *Mediator) Process(ctx context.Context, e *Event) error {
	return m.dispatch(ctx, m.enrichment.Enrich(ctx, e))
}

// dispatch is the queue-facing delivery pass over an already-enriched event.
func (m *Mediator) dispatch(ctx context.Context, enriched *Event) error {
	if m.closed.Load() {
		return ErrMediatorClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	regs := m.resolve(enriched.Type)

	m.notify(LifecycleEvent{Type: ProcessStart, EventID: enriched.ID, EventType: enriched.Type})
	start := m.clock.Now()

	failures := 0
	for _, reg := range regs {
		if !reg.subscription.Active() {
			continue
		}
		if err := m.deliver(ctx, reg, enriched); err != nil {
			failures++
			m.notify(LifecycleEvent{
				Type:         SubscriberError,
				EventID:      enriched.ID,
				EventType:    enriched.Type,
				SubscriberID: reg.subscriberID,
				Err:          err,
			})
			m.logger.Warn().
				Str("event_id", enriched.ID).
				Str("event_type", enriched.Type).
				Str("subscriber", reg.subscriberID).
				Err(err).
				Msg("xmediator: subscriber failed, continuing delivery")
		}
	}

	duration := m.clock.Since(start)
	enriched.Ack()
	m.metrics.RecordProcessed(enriched.Type, duration, failures > 0)
	m.notify(LifecycleEvent{Type: ProcessDone, EventID: enriched.ID, EventType: enriched.Type, Duration: duration})
	return nil
}

// deliver invokes a single subscriber with panic recovery and the optional
// handler timeout, and records per-subscriber metrics.
func (m *Mediator) deliver(ctx context.Context, reg *registration, e *Event) error {
	handler := Chain(reg.subscriber.HandleEvent, TimeoutMiddleware(m.handlerTimeout), RecoveryMiddleware())

	start := m.clock.Now()
	err := handler(ctx, e)
	m.metrics.RecordSubscriber(reg.subscriberID, m.clock.Since(start), err)
	return err
}

// resolve returns the deduplicated union of registrations for the exact
// type, the global wildcard, and the type's namespace wildcard, sorted by
// descending priority with registration order breaking ties.
func (m *Mediator) resolve(eventType string) []*registration {
	m.mu.RLock()
	seen := make(map[string]*registration)
	for _, pattern := range []string{eventType, GlobalPattern, namespacePattern(eventType)} {
		if pattern == "" {
			continue
		}
		for id, reg := range m.index[pattern] {
			seen[id] = reg
		}
	}
	m.mu.RUnlock()

	regs := make([]*registration, 0, len(seen))
	for _, reg := range seen {
		regs = append(regs, reg)
	}
	sort.SliceStable(regs, func(i, j int) bool {
		if regs[i].priority != regs[j].priority {
			return regs[i].priority > regs[j].priority
		}
		return regs[i].seq < regs[j].seq
	})
	return regs
}

// Metrics returns the mediator's metrics recorder.
func (m *Mediator) Metrics() *MetricsRecorder { return m.metrics }

// Enrichment returns the pipeline for registering enrichers.
func (m *Mediator) Enrichment() *EnrichmentPipeline { return m.enrichment }

// DeadLetters returns the dead-letter store, or nil when disabled.
func (m *Mediator) DeadLetters() *DeadLetterStore { return m.deadLetters }

// Queue returns the async processing queue, or nil in sync mode.
func (m *Mediator) Queue() *Queue { return m.queue }

// AddObserver registers a lifecycle observer.
func (m *Mediator) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	m.observersMu.Lock()
	m.observers = append(m.observers, obs)
	m.observersMu.Unlock()
}

// RemoveObserver removes a previously added observer.
func (m *Mediator) RemoveObserver(obs Observer) {
	if obs == nil {
		return
	}
	m.observersMu.Lock()
	defer m.observersMu.Unlock()
	for i, o := range m.observers {
		if o == obs {
			m.observers = append(m.observers[:i], m.observers[i+1:]...)
			break
		}
	}
}

func (m *Mediator) notify(e LifecycleEvent) {
	m.observersMu.RLock()
	obs := make([]Observer, len(m.observers))
	copy(obs, m.observers)
	m.observersMu.RUnlock()
	for _, o := range obs {
		o.OnLifecycleEvent(e)
	}
}

// Close shuts the mediator down: no new publishes or subscriptions, queue
// drained up to a 5s grace. Idempotent.
func (m *Mediator) Close(ctx context.Context) error {
	var closeErr error
	m.closeOnce.Do(func() {
		// Drain the queue before refusing dispatch, so buffered events are
		// still delivered during the grace period.
		if m.queue != nil {
			if err := m.queue.Close(5 * time.Second); err != nil {
				m.logger.Warn().Err(err).Msg("xmediator: queue shutdown timeout")
				closeErr = err
			}
		}
		m.closed.Store(true)
	})
	return closeErr
}

func namespacePattern(eventType string) string {
	for i := 0; i < len(eventType); i++ {
		if eventType[i] == '.' {
			return eventType[:i] + ".*"
		}
	}
	return ""
}

func dedupePatterns(eventTypes []string) []string {
	out := make([]string, 0, len(eventTypes))
	seen := make(map[string]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
