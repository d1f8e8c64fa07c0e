package xmediator

import (
	"context"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// MediatorBuilder constructs mediators and their publisher facade.
type MediatorBuilder struct {
	logger *xlog.Logger
	clock  xclock.Clock

	workers         int
	queueSize       int
	maxRetries      int
	backoffBase     time.Duration
	deadLetterLimit int
	noDeadLetters   bool
	syncMode        bool
	handlerTimeout  time.Duration
	historyLimit    int
	noAmbient       bool
	source          string

	observers []Observer
	validator Validator

	distributedName string
	distributedCfg  map[string]any
	distributedInst DistributedPublisher
}

// NewMediatorBuilder returns a builder with production defaults: async
// processing with DefaultQueueWorkers workers, DefaultMaxRetries retries at
// DefaultBackoffBase backoff, and a DefaultDeadLetterLimit dead-letter store.
func NewMediatorBuilder() *MediatorBuilder {
	return &MediatorBuilder{
		workers:         DefaultQueueWorkers,
		queueSize:       DefaultQueueBuffer,
		maxRetries:      DefaultMaxRetries,
		backoffBase:     DefaultBackoffBase,
		deadLetterLimit: DefaultDeadLetterLimit,
		historyLimit:    DefaultHistoryLimit,
	}
}

func (b *MediatorBuilder) WithLogger(l *xlog.Logger) *MediatorBuilder {
	b.logger = l
	return b
}

func (b *MediatorBuilder) WithClock(c xclock.Clock) *MediatorBuilder {
	b.clock = c
	return b
}

// WithWorkers caps concurrent in-flight event processing.
func (b *MediatorBuilder) WithWorkers(n int) *MediatorBuilder {
	if n > 0 {
		b.workers = n
	}
	return b
}

func (b *MediatorBuilder) WithQueueSize(n int) *MediatorBuilder {
	if n > 0 {
		b.queueSize = n
	}
	return b
}

// WithMaxRetries sets the queue-level retry cap for events that do not carry
// their own.
func (b *MediatorBuilder) WithMaxRetries(n int) *MediatorBuilder {
	if n >= 0 {
		b.maxRetries = n
	}
	return b
}

// WithBackoffBase sets the unit of the exponential retry delay.
func (b *MediatorBuilder) WithBackoffBase(d time.Duration) *MediatorBuilder {
	if d > 0 {
		b.backoffBase = d
	}
	return b
}

func (b *MediatorBuilder) WithDeadLetterLimit(n int) *MediatorBuilder {
	if n > 0 {
		b.deadLetterLimit = n
	}
	return b
}

// WithDeadLettersDisabled drops events that exhaust retries instead of
// retaining them.
func (b *MediatorBuilder) WithDeadLettersDisabled() *MediatorBuilder {
	b.noDeadLetters = true
	return b
}

// WithSyncMode processes events inline on Publish instead of through the
// queue; processing errors surface to the caller.
func (b *MediatorBuilder) WithSyncMode() *MediatorBuilder {
	b.syncMode = true
	return b
}

// WithHandlerTimeout bounds each subscriber invocation. Zero disables the
// bound: a hung handler then stalls its worker slot indefinitely.
func (b *MediatorBuilder) WithHandlerTimeout(d time.Duration) *MediatorBuilder {
	if d > 0 {
		b.handlerTimeout = d
	}
	return b
}

func (b *MediatorBuilder) WithHistoryLimit(n int) *MediatorBuilder {
	if n > 0 {
		b.historyLimit = n
	}
	return b
}

// WithoutAmbientContext disables the context-provider enrichment step.
func (b *MediatorBuilder) WithoutAmbientContext() *MediatorBuilder {
	b.noAmbient = true
	return b
}

// WithDefaultSource stamps events constructed through the publisher.
func (b *MediatorBuilder) WithDefaultSource(source string) *MediatorBuilder {
	b.source = source
	return b
}

func (b *MediatorBuilder) WithObserver(obs ...Observer) *MediatorBuilder {
	for _, o := range obs {
		if o != nil {
			b.observers = append(b.observers, o)
		}
	}
	return b
}

// WithRegistry attaches a payload validator; validation stays advisory.
func (b *MediatorBuilder) WithRegistry(v Validator) *MediatorBuilder {
	b.validator = v
	return b
}

// WithDistributed routes published events to a broker adapter by registered
// name (see RegisterDistributed).
func (b *MediatorBuilder) WithDistributed(name string, cfg map[string]any) *MediatorBuilder {
	b.distributedName = name
	b.distributedCfg = cfg
	return b
}

// WithDistributedInstance accepts a ready DistributedPublisher (e.g. from an
// adapter Use()).
func (b *MediatorBuilder) WithDistributedInstance(dp DistributedPublisher) *MediatorBuilder {
	b.distributedInst = dp
	return b
}

// Build assembles the mediator, its queue, and the publisher facade. The
// queue starts draining immediately unless sync mode is selected.
func (b *MediatorBuilder) Build() (*Publisher, error) {
	logger := b.logger
	if logger == nil {
		logger = xlog.Default()
	}
	clock := b.clock
	if clock == nil {
		clock = xclock.Default()
	}

	pipeline := NewEnrichmentPipeline(logger)
	if b.noAmbient {
		pipeline.DisableAmbientContext()
	}

	var deadLetters *DeadLetterStore
	if !b.noDeadLetters {
		deadLetters = NewDeadLetterStore(b.deadLetterLimit, logger, clock)
	}

	m := &Mediator{
		logger:         logger,
		clock:          clock,
		enrichment:     pipeline,
		metrics:        NewMetricsRecorder(b.historyLimit, logger, clock),
		deadLetters:    deadLetters,
		handlerTimeout: b.handlerTimeout,
		syncMode:       b.syncMode,
		index:          make(map[string]map[string]*registration),
	}

	if !b.syncMode {
		m.queue = newQueue(queueConfig{
			workers:           b.workers,
			buffer:            b.queueSize,
			backoffBase:       b.backoffBase,
			defaultMaxRetries: b.maxRetries,
			deadLetters:       deadLetters,
			logger:            logger,
			clock:             clock,
			notify:            m.notify,
			process:           m.dispatch,
		})
		m.queue.Start()
	}

	// Attach a logging observer first unless one was supplied externally.
	hasLogging := false
	for _, o := range b.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLogging = true
			break
		}
	}
	if !hasLogging {
		m.AddObserver(LoggingObserver{Logger: logger})
	}
	for _, o := range b.observers {
		m.AddObserver(o)
	}

	var distributed DistributedPublisher
	switch {
	case b.distributedInst != nil:
		distributed = b.distributedInst
	case b.distributedName != "":
		dp, err := NewDistributed(b.distributedName, b.distributedCfg)
		if err != nil {
			_ = m.Close(context.Background())
			return nil, err
		}
		distributed = dp
	}

	opts := []PublisherOption{}
	if b.validator != nil {
		opts = append(opts, WithValidator(b.validator))
	}
	if distributed != nil {
		opts = append(opts, WithDistributed(distributed))
	}
	if b.source != "" {
		opts = append(opts, WithDefaultSource(b.source))
	}
	return NewPublisher(m, opts...), nil
}

// New constructs a Publisher via the builder and returns a close func for
// convenience.
func New(init func(b *MediatorBuilder)) (*Publisher, func() error, error) {
	b := NewMediatorBuilder()
	if init != nil {
		init(b)
	}
	p, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() error { return p.Close(context.Background()) }
	return p, closeFn, nil
}
