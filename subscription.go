package xmediator

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Subscription is the live registration binding a subscriber to a set of
// event type patterns. Cancel is idempotent and removes the registration
// from every mediator index entry before returning.
type Subscription struct {
	ID           string
	SubscriberID string
	EventTypes   []string
	CreatedAt    time.Time

	cancelOnce sync.Once
	cancelFn   func()
	activeMu   sync.RWMutex
	active     bool
}

func newSubscription(subscriberID string, eventTypes []string, createdAt time.Time, cancel func()) *Subscription {
	return &Subscription{
		ID:           uuid.NewString(),
		SubscriberID: subscriberID,
		EventTypes:   append([]string(nil), eventTypes...),
		CreatedAt:    createdAt,
		cancelFn:     cancel,
		active:       true,
	}
}

// Active reports whether the subscription still receives events.
func (s *Subscription) Active() bool {
	s.activeMu.RLock()
	defer s.activeMu.RUnlock()
	return s.active
}

// Cancel removes the subscription from all dispatch indices. Safe to call
// more than once; an event already in flight still completes.
func (s *Subscription) Cancel() {
	s.cancelOnce.Do(func() {
		s.activeMu.Lock()
		s.active = false
		s.activeMu.Unlock()
		if s.cancelFn != nil {
			s.cancelFn()
		}
	})
}
