package xmediator

import (
	"context"
)

// Subscriber handles events it registered for. Return error to have the
// failure logged and counted; delivery to other subscribers is unaffected.
type Subscriber interface {
	HandleEvent(ctx context.Context, e *Event) error
}

// SubscriberFunc is an Adapter that lets a plain function satisfy Subscriber.
type SubscriberFunc func(ctx context.Context, e *Event) error

func (f SubscriberFunc) HandleEvent(ctx context.Context, e *Event) error { return f(ctx, e) }

// Handler is the unit the middleware chain composes around.
type Handler func(ctx context.Context, e *Event) error

// Middleware composes processing concerns around a Handler.
type Middleware func(next Handler) Handler

// Enricher augments an event with additional context before delivery.
// Implementations must not mutate the input; return a derived event.
type Enricher interface {
	Enrich(ctx context.Context, e *Event) (*Event, error)
}

// EnricherFunc is an Adapter that lets a plain function satisfy Enricher.
type EnricherFunc func(ctx context.Context, e *Event) (*Event, error)

func (f EnricherFunc) Enrich(ctx context.Context, e *Event) (*Event, error) { return f(ctx, e) }

// Observer receives mediator lifecycle events. Implementations should be
// non-blocking.
type Observer interface {
	OnLifecycleEvent(e LifecycleEvent)
}

// DistributedPublisher is the Strategy interface for routing events to an
// external broker alongside in-process delivery.
type DistributedPublisher interface {
	PublishToChannel(ctx context.Context, channel string, e *Event) error
	Close(ctx context.Context) error
}

// Validator is the contract the publisher consults before dispatch.
// Validation is advisory: failures are logged, never block publication.
type Validator interface {
	ValidateEvent(e *Event) ValidationResult
}

// API is the complete mediator surface for extensibility.
type API interface {
	Subscribe(eventTypes []string, s Subscriber, opts ...SubscribeOption) (*Subscription, error)
	Publish(ctx context.Context, e *Event) error
	Process(ctx context.Context, e *Event) error
	Close(ctx context.Context) error
	Metrics() *MetricsRecorder
	DeadLetters() *DeadLetterStore
	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
}

var _ API = (*Mediator)(nil)
