package xmediator

import (
	"time"

	"github.com/trickstertwo/xlog"
)

// LifecycleEventType enumerates internal mediator events for the Observer
// pattern.
type LifecycleEventType string

const (
	PublishStart    LifecycleEventType = "publish_start"
	PublishDone     LifecycleEventType = "publish_done"
	ProcessStart    LifecycleEventType = "process_start"
	ProcessDone     LifecycleEventType = "process_done"
	SubscriberError LifecycleEventType = "subscriber_error"
	RetryScheduled  LifecycleEventType = "retry_scheduled"
	DeadLettered    LifecycleEventType = "dead_lettered"
	EventDropped    LifecycleEventType = "event_dropped"
)

// LifecycleEvent carries telemetry for observers.
type LifecycleEvent struct {
	Type         LifecycleEventType
	EventID      string
	EventType    string
	SubscriberID string
	Attempt      int
	Duration     time.Duration
	Err          error
}

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(e LifecycleEvent)

func (f ObserverFunc) OnLifecycleEvent(e LifecycleEvent) { f(e) }

// LoggingObserver emits lifecycle events via xlog.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnLifecycleEvent(e LifecycleEvent) {
	if o.Logger == nil {
		return
	}
	switch e.Type {
	case SubscriberError, DeadLettered, EventDropped:
		o.Logger.Warn().
			Str("type", string(e.Type)).
			Str("event_id", e.EventID).
			Str("event_type", e.EventType).
			Str("subscriber", e.SubscriberID).
			Int("attempt", e.Attempt).
			Err(e.Err).
			Msg("xmediator event")
	default:
		ev := o.Logger.Debug().
			Str("type", string(e.Type)).
			Str("event_id", e.EventID).
			Str("event_type", e.EventType)
		if e.Duration > 0 {
			ev = ev.Dur("duration", e.Duration)
		}
		ev.Msg("xmediator event")
	}
}
