package xmediator

import (
	"context"
	"fmt"
	"sync"
)

var (
	defaultPublisher   *Publisher
	defaultPublisherMu sync.Mutex
)

// Default returns the process-wide Publisher, building one with defaults on
// first use.
func Default() *Publisher {
	defaultPublisherMu.Lock()
	defer defaultPublisherMu.Unlock()

	if defaultPublisher != nil {
		return defaultPublisher
	}
	p, err := NewMediatorBuilder().Build()
	if err != nil {
		panic(fmt.Sprintf("xmediator: failed to initialize default publisher: %v", err))
	}
	defaultPublisher = p
	return defaultPublisher
}

// SetDefault replaces the process-wide default Publisher.
func SetDefault(p *Publisher) {
	if p == nil {
		panic("xmediator: SetDefault called with nil Publisher")
	}
	defaultPublisherMu.Lock()
	defaultPublisher = p
	defaultPublisherMu.Unlock()
}

// Publish is the Facade using the default publisher (fire-and-forget).
func Publish(ctx context.Context, eventType string, payload map[string]any, opts ...EventOption) error {
	return Default().Publish(ctx, eventType, payload, opts...)
}

// PublishSync is the Facade for inline processing on the default publisher.
func PublishSync(ctx context.Context, eventType string, payload map[string]any, opts ...EventOption) error {
	return Default().PublishSync(ctx, eventType, payload, opts...)
}

// Subscribe is the Facade using the default publisher.
func Subscribe(eventTypes []string, s Subscriber, opts ...SubscribeOption) (*Subscription, error) {
	return Default().Subscribe(eventTypes, s, opts...)
}
