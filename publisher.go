package xmediator

import (
	"context"
	"strings"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// BatchEvent describes a single event in a batch publish call.
type BatchEvent struct {
	Type    string
	Payload map[string]any
	Opts    []EventOption
}

// Publisher is the convenience layer in front of the mediator: it constructs
// events, validates them against an optional registry (advisory only), hands
// them to the mediator, and mirrors them to an optional distributed broker.
type Publisher struct {
	mediator    *Mediator
	validator   Validator
	distributed DistributedPublisher
	logger      *xlog.Logger
	clock       xclock.Clock
	source      string
}

// PublisherOption customizes a Publisher.
type PublisherOption func(*Publisher)

// WithValidator attaches a payload validator (typically a *Registry).
// Validation failures are logged and never block publication.
func WithValidator(v Validator) PublisherOption {
	return func(p *Publisher) { p.validator = v }
}

// WithDistributed mirrors published events to an external broker. Broker
// failures are logged and never block local delivery.
func WithDistributed(dp DistributedPublisher) PublisherOption {
	return func(p *Publisher) { p.distributed = dp }
}

// WithDefaultSource stamps events that do not set their own source.
func WithDefaultSource(source string) PublisherOption {
	return func(p *Publisher) { p.source = source }
}

// NewPublisher wraps a mediator.
func NewPublisher(m *Mediator, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		mediator: m,
		logger:   m.logger,
		clock:    m.clock,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// CreateEvent constructs an event and runs advisory validation. Only
// construction errors (such as an empty type) are returned.
func (p *Publisher) CreateEvent(eventType string, payload map[string]any, opts ...EventOption) (*Event, error) {
	all := make([]EventOption, 0, len(opts)+2)
	all = append(all, WithEventClock(p.clock))
	if p.source != "" {
		all = append(all, WithSource(p.source))
	}
	all = append(all, opts...)

	e, err := NewEvent(eventType, payload, all...)
	if err != nil {
		return nil, err
	}

	if p.validator != nil {
		if res := p.validator.ValidateEvent(e); !res.Valid {
			// Delivery availability wins over contract enforcement: log and
			// continue.
			p.logger.Warn().
				Str("event_id", e.ID).
				Str("event_type", e.Type).
				Str("errors", strings.Join(res.Errors, "; ")).
				Msg("xmediator: event failed validation, publishing anyway")
		}
	}
	return e, nil
}

// Publish constructs and publishes an event. Delivery is fire-and-forget:
// downstream subscriber failures never surface here.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload map[string]any, opts ...EventOption) error {
	e, err := p.CreateEvent(eventType, payload, opts...)
	if err != nil {
		return err
	}
	return p.PublishEvent(ctx, e)
}

// PublishSync constructs the event and processes it inline, surfacing
// processing errors to the caller regardless of the mediator's async mode.
func (p *Publisher) PublishSync(ctx context.Context, eventType string, payload map[string]any, opts ...EventOption) error {
	e, err := p.CreateEvent(eventType, payload, opts...)
	if err != nil {
		return err
	}
	p.mediator.metrics.RecordPublished(e.Type)
	p.mirror(ctx, e)
	return p.mediator.Process(ctx, e)
}

// PublishEvent hands a pre-built event to the mediator and mirrors it to the
// distributed broker when one is configured.
func (p *Publisher) PublishEvent(ctx context.Context, e *Event) error {
	if e == nil {
		return ErrMalformedEvent
	}
	if err := p.mediator.Publish(ctx, e); err != nil {
		return err
	}
	p.mirror(ctx, e)
	return nil
}

// PublishBatch constructs and publishes several events. The first
// construction error aborts the remainder; delivery errors never surface.
func (p *Publisher) PublishBatch(ctx context.Context, events ...BatchEvent) error {
	for _, be := range events {
		if err := p.Publish(ctx, be.Type, be.Payload, be.Opts...); err != nil {
			return err
		}
	}
	return nil
}

// mirror forwards the event to the distributed broker. Channel is the
// routing key or the type's namespace; failures are logged only.
func (p *Publisher) mirror(ctx context.Context, e *Event) {
	if p.distributed == nil {
		return
	}
	channel := channelFor(e)
	if err := p.distributed.PublishToChannel(ctx, channel, e); err != nil {
		p.logger.Warn().
			Str("event_id", e.ID).
			Str("event_type", e.Type).
			Str("channel", channel).
			Err(err).
			Msg("xmediator: distributed publish failed")
	}
}

// Subscribe proxies to the mediator.
func (p *Publisher) Subscribe(eventTypes []string, s Subscriber, opts ...SubscribeOption) (*Subscription, error) {
	return p.mediator.Subscribe(eventTypes, s, opts...)
}

// Mediator returns the wrapped mediator.
func (p *Publisher) Mediator() *Mediator { return p.mediator }

// Close shuts down the mediator and the distributed publisher.
func (p *Publisher) Close(ctx context.Context) error {
	err := p.mediator.Close(ctx)
	if p.distributed != nil {
		if derr := p.distributed.Close(ctx); derr != nil && err == nil {
			err = derr
		}
	}
	return err
}
