package xmediator

import (
	"context"
)

// ctxKey is the base for all context keys in xmediator (prevents collisions).
type ctxKey string

const (
	actorCtxKey   ctxKey = "xmediator:actor"
	sessionCtxKey ctxKey = "xmediator:session"
	traceCtxKey   ctxKey = "xmediator:trace"
)

// WithActorID attaches the acting user/service identity to the context.
// The context-provider enrichment step copies it onto published events.
func WithActorID(ctx context.Context, actorID string) context.Context {
	if actorID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorCtxKey, actorID)
}

// ActorIDFromContext retrieves a previously attached actor identity.
func ActorIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(actorCtxKey).(string)
	return v, ok && v != ""
}

// WithSessionID attaches a session identifier to the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionCtxKey, sessionID)
}

// SessionIDFromContext retrieves a previously attached session identifier.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionCtxKey).(string)
	return v, ok && v != ""
}

// WithTraceID attaches a trace identifier to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, traceCtxKey, traceID)
}

// TraceIDFromContext retrieves a previously attached trace identifier.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(traceCtxKey).(string)
	return v, ok && v != ""
}

// eventContextFromContext collects ambient identifiers, or nil when none are
// present.
func eventContextFromContext(ctx context.Context) *EventContext {
	var ec EventContext
	found := false
	if v, ok := ActorIDFromContext(ctx); ok {
		ec.ActorID = v
		found = true
	}
	if v, ok := SessionIDFromContext(ctx); ok {
		ec.SessionID = v
		found = true
	}
	if v, ok := TraceIDFromContext(ctx); ok {
		ec.TraceID = v
		found = true
	}
	if !found {
		return nil
	}
	return &ec
}
