package xmediator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// DefaultDeadLetterLimit bounds the dead-letter store unless overridden.
const DefaultDeadLetterLimit = 1000

// DeadLetterEntry is the terminal record of an event that exhausted its
// retry budget: the event, its last error, when it failed, and how many
// processing attempts were made.
type DeadLetterEntry struct {
	Event    *Event
	Err      string
	FailedAt time.Time
	Attempts int
}

// DeadLetterStore is a bounded FIFO of failed events. Overflow evicts the
// oldest entry with a warning.
type DeadLetterStore struct {
	logger *xlog.Logger
	clock  xclock.Clock
	limit  int

	mu      sync.Mutex
	entries []DeadLetterEntry
	evicted atomic.Uint64
}

// NewDeadLetterStore returns a store bounded to limit entries
// (DefaultDeadLetterLimit when limit < 1).
func NewDeadLetterStore(limit int, logger *xlog.Logger, clock xclock.Clock) *DeadLetterStore {
	if limit < 1 {
		limit = DefaultDeadLetterLimit
	}
	if logger == nil {
		logger = xlog.Default()
	}
	if clock == nil {
		clock = xclock.Default()
	}
	return &DeadLetterStore{logger: logger, clock: clock, limit: limit}
}

// Add records a terminally failed event. Attempts is the total number of
// processing attempts made.
func (s *DeadLetterStore) Add(e *Event, cause error, attempts int) {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	entry := DeadLetterEntry{
		Event:    e,
		Err:      reason,
		FailedAt: s.clock.Now(),
		Attempts: attempts,
	}

	var evictedEvent *Event
	s.mu.Lock()
	if len(s.entries) >= s.limit {
		evictedEvent = s.entries[0].Event
		s.entries = s.entries[1:]
		s.evicted.Add(1)
	}
	s.entries = append(s.entries, entry)
	s.mu.Unlock()

	if evictedEvent != nil {
		s.logger.Warn().
			Str("event_id", evictedEvent.ID).
			Str("event_type", evictedEvent.Type).
			Msg("xmediator: dead-letter store full, oldest entry evicted")
	}
}

// List returns a snapshot of all entries, oldest first.
func (s *DeadLetterStore) List() []DeadLetterEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DeadLetterEntry(nil), s.entries...)
}

// Len returns the current entry count.
func (s *DeadLetterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Evicted returns how many entries were dropped to overflow.
func (s *DeadLetterStore) Evicted() uint64 { return s.evicted.Load() }

// take removes and returns the entry for eventID.
func (s *DeadLetterStore) take(eventID string) (DeadLetterEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, entry := range s.entries {
		if entry.Event.ID == eventID {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return entry, true
		}
	}
	return DeadLetterEntry{}, false
}

// takeAll removes and returns every entry, oldest first.
func (s *DeadLetterStore) takeAll() []DeadLetterEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.entries
	s.entries = nil
	return out
}

// Purge drops all entries and returns how many were removed.
func (s *DeadLetterStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	s.entries = nil
	return n
}
