package xmediator

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyEventType     = errors.New("xmediator: event type must not be empty")
	ErrMalformedEvent     = errors.New("xmediator: malformed event")
	ErrNilSubscriber      = errors.New("xmediator: subscriber must not be nil")
	ErrNoEventTypes       = errors.New("xmediator: at least one event type pattern is required")
	ErrMediatorClosed     = errors.New("xmediator: mediator is closed")
	ErrQueueClosed        = errors.New("xmediator: queue is closed")
	ErrHandlerPanic       = errors.New("xmediator: subscriber panic (recovered)")
	ErrShutdownTimeout    = errors.New("xmediator: shutdown timeout")
	ErrDeadLetterDisabled = errors.New("xmediator: dead-lettering is disabled")
	ErrDeadLetterNotFound = errors.New("xmediator: no dead-letter entry for event")
)

// ErrUnknownDistributed reports a distributed publisher name with no
// registered factory.
type ErrUnknownDistributed struct{ name string }

func (e ErrUnknownDistributed) Error() string {
	return fmt.Sprintf("xmediator: unknown distributed publisher: %s", e.name)
}

// ErrDuplicateEventType reports a second registration of an event type.
type ErrDuplicateEventType struct{ name string }

func (e ErrDuplicateEventType) Error() string {
	return fmt.Sprintf("xmediator: event type %q already registered", e.name)
}

// ErrInvalidDefinition reports a structurally invalid event type definition.
type ErrInvalidDefinition struct {
	name   string
	reason string
}

func (e ErrInvalidDefinition) Error() string {
	return fmt.Sprintf("xmediator: invalid definition for %q: %s", e.name, e.reason)
}
