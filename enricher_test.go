package xmediator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendingEnricher(key, value string) Enricher {
	return EnricherFunc(func(_ context.Context, e *Event) (*Event, error) {
		out := e.With()
		if out.Payload == nil {
			out.Payload = map[string]any{}
		}
		out.Payload[key] = value
		return out, nil
	})
}

func orderTagger(tag string, order *[]string) Enricher {
	return EnricherFunc(func(_ context.Context, e *Event) (*Event, error) {
		*order = append(*order, tag)
		return e, nil
	})
}

func TestEnrichmentPipeline_Order(t *testing.T) {
	p := NewEnrichmentPipeline(nil)

	var order []string
	p.RegisterForType("user.*", orderTagger("namespace", &order))
	p.RegisterForType("user.created", orderTagger("exact", &order))
	p.RegisterGlobal(orderTagger("global", &order))

	e := mustEvent(t, "user.created")
	p.Enrich(context.Background(), e)

	assert.Equal(t, []string{"global", "exact", "namespace"}, order)
}

func TestEnrichmentPipeline_AmbientContext(t *testing.T) {
	p := NewEnrichmentPipeline(nil)

	ctx := WithActorID(context.Background(), "actor-1")
	ctx = WithSessionID(ctx, "sess-1")
	ctx = WithTraceID(ctx, "trace-1")

	out := p.Enrich(ctx, mustEvent(t, "user.created"))
	require.NotNil(t, out.Context)
	assert.Equal(t, "actor-1", out.Context.ActorID)
	assert.Equal(t, "sess-1", out.Context.SessionID)
	assert.Equal(t, "trace-1", out.Context.TraceID)
}

func TestEnrichmentPipeline_AmbientContextDoesNotOverride(t *testing.T) {
	p := NewEnrichmentPipeline(nil)

	ctx := WithActorID(context.Background(), "ambient")
	e := mustEvent(t, "user.created", WithEventContext(EventContext{ActorID: "explicit"}))

	out := p.Enrich(ctx, e)
	require.NotNil(t, out.Context)
	assert.Equal(t, "explicit", out.Context.ActorID)
}

func TestEnrichmentPipeline_AmbientDisabled(t *testing.T) {
	p := NewEnrichmentPipeline(nil)
	p.DisableAmbientContext()

	ctx := WithActorID(context.Background(), "actor-1")
	out := p.Enrich(ctx, mustEvent(t, "user.created"))
	assert.Nil(t, out.Context)
}

func TestEnrichmentPipeline_FailSoft(t *testing.T) {
	p := NewEnrichmentPipeline(nil)

	p.RegisterGlobal(appendingEnricher("first", "ok"))
	p.RegisterGlobal(EnricherFunc(func(_ context.Context, e *Event) (*Event, error) {
		bad := e.With()
		bad.Payload = map[string]any{"poison": true}
		return bad, errors.New("enricher broke")
	}))
	p.RegisterGlobal(EnricherFunc(func(context.Context, *Event) (*Event, error) {
		panic("enricher exploded")
	}))
	p.RegisterGlobal(appendingEnricher("last", "ok"))

	out := p.Enrich(context.Background(), mustEvent(t, "user.created"))

	// The failing steps' outputs are discarded; the rest of the pipeline ran.
	assert.Equal(t, "ok", out.Payload["first"])
	assert.Equal(t, "ok", out.Payload["last"])
	assert.NotContains(t, out.Payload, "poison")
}

func TestEnrichmentPipeline_NeverMutatesInput(t *testing.T) {
	p := NewEnrichmentPipeline(nil)
	p.RegisterGlobal(appendingEnricher("added", "yes"))

	in := mustEvent(t, "user.created")
	out := p.Enrich(context.Background(), in)

	assert.NotContains(t, in.Payload, "added")
	assert.Equal(t, "yes", out.Payload["added"])
	assert.Equal(t, in.ID, out.ID)
}

func TestEnrichmentPipeline_Unregister(t *testing.T) {
	p := NewEnrichmentPipeline(nil)

	remove := p.RegisterGlobal(appendingEnricher("k", "v"))
	removeTyped := p.RegisterForType("user.created", appendingEnricher("typed", "v"))

	out := p.Enrich(context.Background(), mustEvent(t, "user.created"))
	assert.Equal(t, "v", out.Payload["k"])
	assert.Equal(t, "v", out.Payload["typed"])

	remove()
	removeTyped()
	removeTyped() // idempotent

	out = p.Enrich(context.Background(), mustEvent(t, "user.created"))
	assert.NotContains(t, out.Payload, "k")
	assert.NotContains(t, out.Payload, "typed")
}
