package xmediator

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := NewPrometheusObserver(reg)
	require.NoError(t, err)

	obs.OnLifecycleEvent(LifecycleEvent{Type: PublishDone, EventType: "user.created"})
	obs.OnLifecycleEvent(LifecycleEvent{Type: ProcessDone, EventType: "user.created", Duration: 5 * time.Millisecond})
	obs.OnLifecycleEvent(LifecycleEvent{Type: SubscriberError, EventType: "user.created", Err: errors.New("boom")})
	obs.OnLifecycleEvent(LifecycleEvent{Type: DeadLettered, EventType: "user.created", Err: errors.New("boom")})

	assert.Equal(t, 1.0, testutil.ToFloat64(obs.published.WithLabelValues("user.created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.processed.WithLabelValues("user.created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(obs.errored.WithLabelValues("user.created")))
}

func TestPrometheusObserver_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusObserver(reg)
	require.NoError(t, err)

	_, err = NewPrometheusObserver(reg)
	assert.Error(t, err)
}
