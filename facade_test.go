package xmediator

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFacade_SetDefaultAndPublish(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	p := syncPublisher(t)
	SetDefault(p)
	require.Same(t, p, Default())

	var count atomic.Int64
	sub, err := Subscribe([]string{"user.created"}, countingSubscriber(&count))
	require.NoError(t, err)
	t.Cleanup(sub.Cancel)

	require.NoError(t, Publish(context.Background(), "user.created", nil))
	require.NoError(t, PublishSync(context.Background(), "user.created", map[string]any{"id": "u1"}))
	assert.Equal(t, int64(2), count.Load())
}

func TestFacade_SetDefaultNilPanics(t *testing.T) {
	assert.Panics(t, func() { SetDefault(nil) })
}
