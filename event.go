package xmediator

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/trickstertwo/xclock"
)

// Priority orders subscriber delivery and classifies events.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 5
	PriorityHigh     Priority = 10
	PriorityCritical Priority = 20
)

func (p Priority) String() string {
	switch {
	case p >= PriorityCritical:
		return "critical"
	case p >= PriorityHigh:
		return "high"
	case p >= PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// Kind discriminates event specializations without a type hierarchy.
type Kind string

const (
	KindGeneric Kind = "generic"
	KindDomain  Kind = "domain"
	KindSystem  Kind = "system"
	KindAuth    Kind = "auth"
)

// Metadata rides along with every event. Treated as immutable: derive a new
// event via With/ForRetry instead of mutating in place.
type Metadata struct {
	Priority   Priority      `json:"priority"`
	Origin     string        `json:"origin,omitempty"`
	Version    string        `json:"version,omitempty"`
	Retry      int           `json:"retry"`
	MaxRetries int           `json:"maxRetries"`
	Delay      time.Duration `json:"delay,omitempty"`
	RoutingKey string        `json:"routingKey,omitempty"`
	TTL        time.Duration `json:"ttl,omitempty"`
}

// EventContext carries ambient identifiers for tracing a causal chain.
type EventContext struct {
	ActorID   string `json:"actorId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	TraceID   string `json:"traceId,omitempty"`
}

// DomainDetails are the fixed fields of a domain-scoped event.
type DomainDetails struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Action     string `json:"action"`
	UserID     string `json:"userId,omitempty"`
}

// SystemDetails are the fixed fields of a system-scoped event.
type SystemDetails struct {
	Component string `json:"component"`
	Action    string `json:"action"`
}

// AuthDetails are the fixed fields of an auth-scoped event.
type AuthDetails struct {
	Action   string `json:"action"`
	UserID   string `json:"userId"`
	ClientIP string `json:"clientIp,omitempty"`
}

// Event is the immutable envelope traveling the mediator. All derivations
// (With, ForRetry, enrichment) return a new instance; only the internal
// acknowledgment flag may change on the receiver.
type Event struct {
	ID            string
	Type          string
	Timestamp     time.Time
	Payload       map[string]any
	Metadata      Metadata
	Source        string
	CorrelationID string
	Context       *EventContext
	Version       string
	Kind          Kind
	Domain        *DomainDetails
	System        *SystemDetails
	Auth          *AuthDetails

	acked bool
}

// EventOption customizes an event at construction or derivation time.
type EventOption func(*Event)

func WithPriority(p Priority) EventOption {
	return func(e *Event) { e.Metadata.Priority = p }
}

func WithSource(source string) EventOption {
	return func(e *Event) { e.Source = source }
}

func WithCorrelationID(id string) EventOption {
	return func(e *Event) { e.CorrelationID = id }
}

func WithOrigin(origin string) EventOption {
	return func(e *Event) { e.Metadata.Origin = origin }
}

func WithMaxRetries(n int) EventOption {
	return func(e *Event) {
		if n >= 0 {
			e.Metadata.MaxRetries = n
		}
	}
}

func WithRoutingKey(key string) EventOption {
	return func(e *Event) { e.Metadata.RoutingKey = key }
}

func WithDelay(d time.Duration) EventOption {
	return func(e *Event) { e.Metadata.Delay = d }
}

func WithTTL(d time.Duration) EventOption {
	return func(e *Event) { e.Metadata.TTL = d }
}

func WithEventContext(ec EventContext) EventOption {
	return func(e *Event) { c := ec; e.Context = &c }
}

func WithEventVersion(v string) EventOption {
	return func(e *Event) { e.Version = v }
}

// WithEventClock stamps the event using the given clock instead of the default.
func WithEventClock(c xclock.Clock) EventOption {
	return func(e *Event) {
		if c != nil {
			e.Timestamp = c.Now()
		}
	}
}

// DefaultMaxRetries bounds retry attempts when an event does not override it.
const DefaultMaxRetries = 3

// NewEvent constructs a generic event. The type must be a non-empty
// dot-namespaced string such as "user.created".
func NewEvent(eventType string, payload map[string]any, opts ...EventOption) (*Event, error) {
	if strings.TrimSpace(eventType) == "" {
		return nil, ErrEmptyEventType
	}
	e := &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: xclock.Default().Now(),
		Payload:   copyPayload(payload),
		Metadata: Metadata{
			Priority:   PriorityNormal,
			Retry:      0,
			MaxRetries: DefaultMaxRetries,
		},
		Version: "1.0.0",
		Kind:    KindGeneric,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// NewDomainEvent constructs a domain-scoped event with the derived type
// "{entityType}.{action}".
func NewDomainEvent(entityType, entityID, action, userID string, payload map[string]any, opts ...EventOption) (*Event, error) {
	if strings.TrimSpace(entityType) == "" || strings.TrimSpace(action) == "" {
		return nil, fmt.Errorf("domain event: entity type and action are required: %w", ErrEmptyEventType)
	}
	e, err := NewEvent(entityType+"."+action, payload, opts...)
	if err != nil {
		return nil, err
	}
	e.Kind = KindDomain
	e.Domain = &DomainDetails{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		UserID:     userID,
	}
	return e, nil
}

// NewSystemEvent constructs a system-scoped event typed "system.{action}".
func NewSystemEvent(component, action string, payload map[string]any, opts ...EventOption) (*Event, error) {
	if strings.TrimSpace(action) == "" {
		return nil, fmt.Errorf("system event: action is required: %w", ErrEmptyEventType)
	}
	e, err := NewEvent("system."+action, payload, opts...)
	if err != nil {
		return nil, err
	}
	e.Kind = KindSystem
	e.System = &SystemDetails{Component: component, Action: action}
	if e.Source == "" {
		e.Source = component
	}
	return e, nil
}

// NewAuthEvent constructs an auth-scoped event typed "auth.{action}".
func NewAuthEvent(action, userID, clientIP string, payload map[string]any, opts ...EventOption) (*Event, error) {
	if strings.TrimSpace(action) == "" {
		return nil, fmt.Errorf("auth event: action is required: %w", ErrEmptyEventType)
	}
	e, err := NewEvent("auth."+action, payload, opts...)
	if err != nil {
		return nil, err
	}
	e.Kind = KindAuth
	e.Auth = &AuthDetails{Action: action, UserID: userID, ClientIP: clientIP}
	return e, nil
}

// Namespace returns the first dot segment of the event type.
func (e *Event) Namespace() string {
	if i := strings.IndexByte(e.Type, '.'); i > 0 {
		return e.Type[:i]
	}
	return e.Type
}

// With derives a new event with the given options applied. The receiver is
// never mutated; ID and timestamp carry over.
func (e *Event) With(opts ...EventOption) *Event {
	out := e.clone()
	for _, opt := range opts {
		if opt != nil {
			opt(out)
		}
	}
	return out
}

// ForRetry derives a new event with the retry count incremented. Same ID,
// acknowledgment flag reset.
func (e *Event) ForRetry() *Event {
	out := e.clone()
	out.Metadata.Retry++
	out.acked = false
	return out
}

// Ack marks the event as delivered. The flag is the single mutable field.
func (e *Event) Ack() { e.acked = true }

// Acked reports whether the event was marked delivered.
func (e *Event) Acked() bool { return e.acked }

// Expired reports whether the event outlived its TTL at the given instant.
func (e *Event) Expired(now time.Time) bool {
	return e.Metadata.TTL > 0 && now.Sub(e.Timestamp) > e.Metadata.TTL
}

func (e *Event) clone() *Event {
	out := *e
	out.Payload = copyPayload(e.Payload)
	if e.Context != nil {
		c := *e.Context
		out.Context = &c
	}
	if e.Domain != nil {
		d := *e.Domain
		out.Domain = &d
	}
	if e.System != nil {
		s := *e.System
		out.System = &s
	}
	if e.Auth != nil {
		a := *e.Auth
		out.Auth = &a
	}
	return &out
}

func copyPayload(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// eventJSON is the plain-object projection used for cross-process transport.
// Timestamp travels as RFC 3339; everything else passes through structurally.
type eventJSON struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Timestamp     string         `json:"timestamp"`
	Payload       map[string]any `json:"payload,omitempty"`
	Metadata      Metadata       `json:"metadata"`
	Source        string         `json:"source,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Context       *EventContext  `json:"context,omitempty"`
	Version       string         `json:"version,omitempty"`
	Kind          Kind           `json:"kind"`
	Domain        *DomainDetails `json:"domain,omitempty"`
	System        *SystemDetails `json:"system,omitempty"`
	Auth          *AuthDetails   `json:"auth,omitempty"`
}

func (e *Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		ID:            e.ID,
		Type:          e.Type,
		Timestamp:     e.Timestamp.UTC().Format(time.RFC3339Nano),
		Payload:       e.Payload,
		Metadata:      e.Metadata,
		Source:        e.Source,
		CorrelationID: e.CorrelationID,
		Context:       e.Context,
		Version:       e.Version,
		Kind:          e.Kind,
		Domain:        e.Domain,
		System:        e.System,
		Auth:          e.Auth,
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		return fmt.Errorf("event timestamp: %w", err)
	}
	*e = Event{
		ID:            raw.ID,
		Type:          raw.Type,
		Timestamp:     ts,
		Payload:       raw.Payload,
		Metadata:      raw.Metadata,
		Source:        raw.Source,
		CorrelationID: raw.CorrelationID,
		Context:       raw.Context,
		Version:       raw.Version,
		Kind:          raw.Kind,
		Domain:        raw.Domain,
		System:        raw.System,
		Auth:          raw.Auth,
	}
	if e.Kind == "" {
		e.Kind = KindGeneric
	}
	return nil
}

// FromJSON decodes an event previously produced by MarshalJSON.
func FromJSON(data []byte) (*Event, error) {
	var e Event
	if err := e.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	if e.ID == "" || e.Type == "" {
		return nil, ErrMalformedEvent
	}
	return &e, nil
}
