package xmediator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Defaults(t *testing.T) {
	p, err := NewMediatorBuilder().Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	m := p.Mediator()
	require.NotNil(t, m.Queue(), "async mode by default")
	require.NotNil(t, m.DeadLetters())
	require.NotNil(t, m.Metrics())
	require.NotNil(t, m.Enrichment())
}

func TestBuilder_SyncModeHasNoQueue(t *testing.T) {
	p := syncPublisher(t)
	assert.Nil(t, p.Mediator().Queue())
}

func TestBuilder_DeadLettersDisabled(t *testing.T) {
	p, err := NewMediatorBuilder().WithDeadLettersDisabled().Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	assert.Nil(t, p.Mediator().DeadLetters())
}

func TestBuilder_UnknownDistributedFails(t *testing.T) {
	_, err := NewMediatorBuilder().WithDistributed("no-such-broker", nil).Build()
	require.Error(t, err)
	var unknown ErrUnknownDistributed
	assert.ErrorAs(t, err, &unknown)
}

func TestBuilder_DistributedInstance(t *testing.T) {
	dist := &fakeDistributed{}
	p, err := NewMediatorBuilder().WithSyncMode().WithDistributedInstance(dist).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	require.NoError(t, p.Publish(context.Background(), "order.placed", nil))
	dist.mu.Lock()
	defer dist.mu.Unlock()
	require.Len(t, dist.channels, 1)
	assert.Equal(t, "order", dist.channels[0])
}

func TestBuilder_ObserversAttached(t *testing.T) {
	var events atomic.Int64
	obs := ObserverFunc(func(LifecycleEvent) { events.Add(1) })

	p, err := NewMediatorBuilder().WithSyncMode().WithObserver(obs).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	require.NoError(t, p.Publish(context.Background(), "a.b", nil))
	assert.Positive(t, events.Load())
}

func TestNew_ConvenienceClose(t *testing.T) {
	p, closeFn, err := New(func(b *MediatorBuilder) {
		b.WithSyncMode().WithDefaultSource("checkout")
	})
	require.NoError(t, err)
	require.NotNil(t, p)

	e, err := p.CreateEvent("order.placed", nil)
	require.NoError(t, err)
	assert.Equal(t, "checkout", e.Source)

	require.NoError(t, closeFn())
	assert.ErrorIs(t, p.Publish(context.Background(), "order.placed", nil), ErrMediatorClosed)
}

func TestBuilder_HandlerTimeoutApplied(t *testing.T) {
	p, err := NewMediatorBuilder().WithSyncMode().WithHandlerTimeout(20 * time.Millisecond).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	assert.Equal(t, 20*time.Millisecond, p.Mediator().handlerTimeout)
}
