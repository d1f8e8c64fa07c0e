package xmediator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent_Defaults(t *testing.T) {
	e, err := NewEvent("user.created", map[string]any{"userId": "u1"})
	require.NoError(t, err)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "user.created", e.Type)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, PriorityNormal, e.Metadata.Priority)
	assert.Equal(t, 0, e.Metadata.Retry)
	assert.Equal(t, DefaultMaxRetries, e.Metadata.MaxRetries)
	assert.Equal(t, KindGeneric, e.Kind)
	assert.Equal(t, "user", e.Namespace())
	assert.False(t, e.Acked())
}

func TestNewEvent_EmptyTypeRejected(t *testing.T) {
	_, err := NewEvent("", nil)
	require.ErrorIs(t, err, ErrEmptyEventType)

	_, err = NewEvent("   ", nil)
	require.ErrorIs(t, err, ErrEmptyEventType)
}

func TestNewDomainEvent_DerivesType(t *testing.T) {
	e, err := NewDomainEvent("order", "o1", "created", "u1", map[string]any{"total": 42})
	require.NoError(t, err)

	assert.Equal(t, "order.created", e.Type)
	assert.Equal(t, KindDomain, e.Kind)
	require.NotNil(t, e.Domain)
	assert.Equal(t, "order", e.Domain.EntityType)
	assert.Equal(t, "o1", e.Domain.EntityID)
	assert.Equal(t, "created", e.Domain.Action)
	assert.Equal(t, "u1", e.Domain.UserID)

	_, err = NewDomainEvent("", "o1", "created", "", nil)
	require.Error(t, err)
}

func TestNewSystemAndAuthEvents(t *testing.T) {
	se, err := NewSystemEvent("scheduler", "started", nil)
	require.NoError(t, err)
	assert.Equal(t, "system.started", se.Type)
	assert.Equal(t, KindSystem, se.Kind)
	assert.Equal(t, "scheduler", se.Source)

	ae, err := NewAuthEvent("login", "u1", "10.0.0.1", nil)
	require.NoError(t, err)
	assert.Equal(t, "auth.login", ae.Type)
	assert.Equal(t, KindAuth, ae.Kind)
	require.NotNil(t, ae.Auth)
	assert.Equal(t, "u1", ae.Auth.UserID)
}

func TestEvent_WithDoesNotMutateReceiver(t *testing.T) {
	original, err := NewEvent("user.created", map[string]any{"k": "v"},
		WithPriority(PriorityLow), WithCorrelationID("c1"))
	require.NoError(t, err)

	derived := original.With(WithPriority(PriorityHigh), WithRoutingKey("users"))

	assert.NotSame(t, original, derived)
	assert.Equal(t, original.ID, derived.ID)
	assert.Equal(t, PriorityLow, original.Metadata.Priority)
	assert.Equal(t, PriorityHigh, derived.Metadata.Priority)
	assert.Empty(t, original.Metadata.RoutingKey)
	assert.Equal(t, "users", derived.Metadata.RoutingKey)

	// Payload maps are independent copies.
	derived.Payload["k"] = "changed"
	assert.Equal(t, "v", original.Payload["k"])
}

func TestEvent_ForRetry(t *testing.T) {
	original, err := NewEvent("user.created", nil)
	require.NoError(t, err)
	original.Ack()

	derived := original.ForRetry()

	assert.NotSame(t, original, derived)
	assert.Equal(t, original.ID, derived.ID)
	assert.Equal(t, 0, original.Metadata.Retry)
	assert.Equal(t, 1, derived.Metadata.Retry)
	assert.True(t, original.Acked())
	assert.False(t, derived.Acked())

	assert.Equal(t, 2, derived.ForRetry().Metadata.Retry)
}

func TestEvent_JSONRoundTrip(t *testing.T) {
	e, err := NewDomainEvent("order", "o1", "created", "u1",
		map[string]any{"total": "42"},
		WithPriority(PriorityHigh),
		WithCorrelationID("corr-1"),
		WithRoutingKey("orders"),
		WithEventContext(EventContext{ActorID: "a1", TraceID: "t1"}),
	)
	require.NoError(t, err)

	data, err := e.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"timestamp"`)

	decoded, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, e.Type, decoded.Type)
	assert.Equal(t, e.Kind, decoded.Kind)
	assert.Equal(t, e.Metadata.Priority, decoded.Metadata.Priority)
	assert.Equal(t, e.Metadata.RoutingKey, decoded.Metadata.RoutingKey)
	assert.Equal(t, "corr-1", decoded.CorrelationID)
	require.NotNil(t, decoded.Context)
	assert.Equal(t, "a1", decoded.Context.ActorID)
	require.NotNil(t, decoded.Domain)
	assert.Equal(t, "o1", decoded.Domain.EntityID)
	assert.WithinDuration(t, e.Timestamp, decoded.Timestamp, time.Millisecond)
}

func TestFromJSON_Malformed(t *testing.T) {
	_, err := FromJSON([]byte(`{"timestamp":"2026-01-01T00:00:00Z"}`))
	require.ErrorIs(t, err, ErrMalformedEvent)

	_, err = FromJSON([]byte(`not json`))
	require.Error(t, err)
}

func TestEvent_Expired(t *testing.T) {
	e, err := NewEvent("user.created", nil, WithTTL(time.Minute))
	require.NoError(t, err)

	assert.False(t, e.Expired(e.Timestamp.Add(30*time.Second)))
	assert.True(t, e.Expired(e.Timestamp.Add(2*time.Minute)))

	noTTL, err := NewEvent("user.created", nil)
	require.NoError(t, err)
	assert.False(t, noTTL.Expired(noTTL.Timestamp.Add(24*time.Hour)))
}

func TestPriority_String(t *testing.T) {
	assert.Equal(t, "low", PriorityLow.String())
	assert.Equal(t, "normal", PriorityNormal.String())
	assert.Equal(t, "high", PriorityHigh.String())
	assert.Equal(t, "critical", PriorityCritical.String())
}
