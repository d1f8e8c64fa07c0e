package xmediator

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
)

// EventDefinition is the typed contract for an event type's payload.
// Schema holds validator rules per payload field (nested maps for nested
// payloads), in the form accepted by validator.ValidateMap.
type EventDefinition struct {
	Schema      map[string]any
	Groups      []string
	Version     string
	Description string
}

// ValidationResult is the structured outcome of payload validation.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Registry is an optional schema/type catalog. Registration is one-shot; the
// publisher treats validation failures as advisory.
type Registry struct {
	validate *validator.Validate

	mu          sync.RWMutex
	definitions map[string]EventDefinition
	groups      map[string][]string
}

var _ Validator = (*Registry)(nil)

// NewRegistry returns an empty event type catalog.
func NewRegistry() *Registry {
	return &Registry{
		validate:    validator.New(),
		definitions: make(map[string]EventDefinition),
		groups:      make(map[string][]string),
	}
}

// RegisterEventType registers a definition under name. It fails when the name
// is already registered, the schema is missing, a group name is empty, or the
// version is not a valid semver string. There is no implicit overwrite.
func (r *Registry) RegisterEventType(name string, def EventDefinition) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidDefinition{name: name, reason: "event type name must not be empty"}
	}
	if len(def.Schema) == 0 {
		return ErrInvalidDefinition{name: name, reason: "schema is required"}
	}
	for _, g := range def.Groups {
		if strings.TrimSpace(g) == "" {
			return ErrInvalidDefinition{name: name, reason: "group names must not be empty"}
		}
	}
	if def.Version != "" {
		if _, err := semver.NewVersion(def.Version); err != nil {
			return ErrInvalidDefinition{name: name, reason: fmt.Sprintf("version %q is not semver: %v", def.Version, err)}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.definitions[name]; exists {
		return ErrDuplicateEventType{name: name}
	}
	r.definitions[name] = def
	for _, g := range def.Groups {
		r.groups[g] = append(r.groups[g], name)
	}
	return nil
}

// Definition returns the registered definition for name.
func (r *Registry) Definition(name string) (EventDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[name]
	return def, ok
}

// Types returns all registered event type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// TypesInGroup returns the event types registered under group, sorted.
func (r *Registry) TypesInGroup(group string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]string(nil), r.groups[group]...)
	sort.Strings(out)
	return out
}

// ValidateEvent checks the event payload against the registered schema.
// Unknown event types are reported as invalid rather than silently passing.
func (r *Registry) ValidateEvent(e *Event) ValidationResult {
	if e == nil {
		return ValidationResult{Valid: false, Errors: []string{"event is nil"}}
	}

	r.mu.RLock()
	def, ok := r.definitions[e.Type]
	r.mu.RUnlock()

	if !ok {
		return ValidationResult{
			Valid:  false,
			Errors: []string{fmt.Sprintf("event type %q is not registered", e.Type)},
		}
	}

	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	failures := r.validate.ValidateMap(payload, def.Schema)
	if len(failures) == 0 {
		return ValidationResult{Valid: true}
	}

	errs := make([]string, 0, len(failures))
	for field, ferr := range failures {
		errs = append(errs, fmt.Sprintf("field %q: %v", field, ferr))
	}
	sort.Strings(errs)
	return ValidationResult{Valid: false, Errors: errs}
}
