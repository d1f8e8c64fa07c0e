package xmediator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver bridges lifecycle events to Prometheus collectors.
// Attach it with AddObserver (or the builder's WithObserver).
type PrometheusObserver struct {
	published *prometheus.CounterVec
	processed *prometheus.CounterVec
	errored   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

var _ Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver registers the xmediator collectors with reg
// (prometheus.DefaultRegisterer when nil).
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xmediator_events_published_total",
			Help: "Events handed to the mediator, by event type.",
		}, []string{"type"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xmediator_events_processed_total",
			Help: "Processing passes completed, by event type.",
		}, []string{"type"}),
		errored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xmediator_events_errors_total",
			Help: "Subscriber and processing errors, by event type.",
		}, []string{"type"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "xmediator_processing_duration_seconds",
			Help:    "End-to-end processing duration per event, by event type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
	}
	for _, c := range []prometheus.Collector{o.published, o.processed, o.errored, o.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *PrometheusObserver) OnLifecycleEvent(e LifecycleEvent) {
	switch e.Type {
	case PublishDone:
		o.published.WithLabelValues(e.EventType).Inc()
	case ProcessDone:
		o.processed.WithLabelValues(e.EventType).Inc()
		o.duration.WithLabelValues(e.EventType).Observe(e.Duration.Seconds())
		if e.Err != nil {
			o.errored.WithLabelValues(e.EventType).Inc()
		}
	case SubscriberError, DeadLettered:
		o.errored.WithLabelValues(e.EventType).Inc()
	}
}
