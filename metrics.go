package xmediator

import (
	"sync"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// DefaultHistoryLimit bounds the per-type processing-time history.
const DefaultHistoryLimit = 100

// slowFloor is the lower bound of the slow-event threshold.
const slowFloor = time.Second

// rollingWindow is the span kept for "events in the last minute" queries.
const rollingWindow = time.Minute

// TypeStats aggregates per-event-type telemetry.
type TypeStats struct {
	Published   uint64
	Processed   uint64
	Errors      uint64
	AvgDuration time.Duration
	MaxDuration time.Duration
}

// SubscriberStats aggregates per-subscriber telemetry.
type SubscriberStats struct {
	Handled     uint64
	Errors      uint64
	AvgDuration time.Duration
}

// MetricsSnapshot is a point-in-time view of all counters.
type MetricsSnapshot struct {
	TotalPublished uint64
	TotalProcessed uint64
	TotalErrors    uint64
	PerType        map[string]TypeStats
	PerSubscriber  map[string]SubscriberStats
}

type typeCounters struct {
	published uint64
	processed uint64
	errors    uint64
	durations []time.Duration // FIFO-bounded history
	durSum    time.Duration   // sum over durations
	maxDur    time.Duration
}

type subscriberCounters struct {
	handled uint64
	errors  uint64
	durSum  time.Duration
}

type windowSample struct {
	at        time.Time
	eventType string
	isError   bool
}

// MetricsRecorder tracks publish/process/error volume and latency, per type
// and per subscriber, plus a rolling one-minute window.
type MetricsRecorder struct {
	logger       *xlog.Logger
	clock        xclock.Clock
	historyLimit int

	mu             sync.Mutex
	totalPublished uint64
	totalProcessed uint64
	totalErrors    uint64
	perType        map[string]*typeCounters
	perSubscriber  map[string]*subscriberCounters
	window         []windowSample
}

// NewMetricsRecorder returns a recorder keeping historyLimit duration samples
// per event type (DefaultHistoryLimit when historyLimit < 1).
func NewMetricsRecorder(historyLimit int, logger *xlog.Logger, clock xclock.Clock) *MetricsRecorder {
	if historyLimit < 1 {
		historyLimit = DefaultHistoryLimit
	}
	if logger == nil {
		logger = xlog.Default()
	}
	if clock == nil {
		clock = xclock.Default()
	}
	return &MetricsRecorder{
		logger:        logger,
		clock:         clock,
		historyLimit:  historyLimit,
		perType:       make(map[string]*typeCounters),
		perSubscriber: make(map[string]*subscriberCounters),
	}
}

// RecordPublished counts one published event of the given type.
func (m *MetricsRecorder) RecordPublished(eventType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalPublished++
	m.counters(eventType).published++
}

// RecordProcessed counts one processing pass over an event, tracks its
// duration history, trims the rolling window, flags slow events, and logs
// count milestones.
func (m *MetricsRecorder) RecordProcessed(eventType string, d time.Duration, isError bool) {
	now := m.clock.Now()

	m.mu.Lock()
	m.totalProcessed++
	if isError {
		m.totalErrors++
	}
	tc := m.counters(eventType)
	tc.processed++
	if isError {
		tc.errors++
	}

	// Slow threshold is relative to the history before this sample.
	threshold := slowThreshold(tc)
	slow := d > threshold

	tc.durations = append(tc.durations, d)
	tc.durSum += d
	if len(tc.durations) > m.historyLimit {
		tc.durSum -= tc.durations[0]
		tc.durations = tc.durations[1:]
	}
	if d > tc.maxDur {
		tc.maxDur = d
	}

	m.window = append(m.window, windowSample{at: now, eventType: eventType, isError: isError})
	m.trimWindowLocked(now)

	milestone := isMilestone(tc.processed)
	count := tc.processed
	m.mu.Unlock()

	if slow {
		m.logger.Warn().
			Str("event_type", eventType).
			Dur("duration", d).
			Dur("threshold", threshold).
			Msg("xmediator: slow event")
	}
	if milestone {
		m.logger.Info().
			Str("event_type", eventType).
			Int("count", int(count)).
			Msg("xmediator: event count milestone")
	}
}

// slowThreshold is the boundary above which a duration counts as slow: three
// times the historical average for the type, floored at one second.
func slowThreshold(tc *typeCounters) time.Duration {
	threshold := slowFloor
	if n := len(tc.durations); n > 0 {
		avg := tc.durSum / time.Duration(n)
		if rel := 3 * avg; rel > threshold {
			threshold = rel
		}
	}
	return threshold
}

// RecordSubscriber counts one handler invocation for a subscriber.
func (m *MetricsRecorder) RecordSubscriber(subscriberID string, d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.perSubscriber[subscriberID]
	if !ok {
		sc = &subscriberCounters{}
		m.perSubscriber[subscriberID] = sc
	}
	sc.handled++
	sc.durSum += d
	if err != nil {
		sc.errors++
	}
}

// WindowCounts returns total and error counts over the last minute.
func (m *MetricsRecorder) WindowCounts() (total, errors int) {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trimWindowLocked(now)
	for _, s := range m.window {
		total++
		if s.isError {
			errors++
		}
	}
	return total, errors
}

// AverageDuration returns the mean over the retained history for eventType.
func (m *MetricsRecorder) AverageDuration(eventType string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	tc, ok := m.perType[eventType]
	if !ok || len(tc.durations) == 0 {
		return 0
	}
	return tc.durSum / time.Duration(len(tc.durations))
}

// MaxDuration returns the largest processing duration seen for eventType.
func (m *MetricsRecorder) MaxDuration(eventType string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tc, ok := m.perType[eventType]; ok {
		return tc.maxDur
	}
	return 0
}

// Snapshot returns a copy of all aggregates.
func (m *MetricsRecorder) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		TotalPublished: m.totalPublished,
		TotalProcessed: m.totalProcessed,
		TotalErrors:    m.totalErrors,
		PerType:        make(map[string]TypeStats, len(m.perType)),
		PerSubscriber:  make(map[string]SubscriberStats, len(m.perSubscriber)),
	}
	for name, tc := range m.perType {
		stats := TypeStats{
			Published:   tc.published,
			Processed:   tc.processed,
			Errors:      tc.errors,
			MaxDuration: tc.maxDur,
		}
		if n := len(tc.durations); n > 0 {
			stats.AvgDuration = tc.durSum / time.Duration(n)
		}
		snap.PerType[name] = stats
	}
	for id, sc := range m.perSubscriber {
		stats := SubscriberStats{Handled: sc.handled, Errors: sc.errors}
		if sc.handled > 0 {
			stats.AvgDuration = sc.durSum / time.Duration(sc.handled)
		}
		snap.PerSubscriber[id] = stats
	}
	return snap
}

func (m *MetricsRecorder) counters(eventType string) *typeCounters {
	tc, ok := m.perType[eventType]
	if !ok {
		tc = &typeCounters{}
		m.perType[eventType] = tc
	}
	return tc
}

func (m *MetricsRecorder) trimWindowLocked(now time.Time) {
	cutoff := now.Add(-rollingWindow)
	i := 0
	for i < len(m.window) && !m.window[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		m.window = append([]windowSample(nil), m.window[i:]...)
	}
}

// isMilestone reports threshold counts worth surfacing: 1, 10, 100, 1000,
// then every 10000.
func isMilestone(n uint64) bool {
	switch n {
	case 1, 10, 100, 1000:
		return true
	}
	return n > 0 && n%10000 == 0
}
