package xmediator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userCreatedDefinition() EventDefinition {
	return EventDefinition{
		Schema: map[string]any{
			"userId": "required",
			"email":  "required,email",
		},
		Groups:  []string{"user", "audit"},
		Version: "1.2.0",
	}
}

func TestRegistry_RegisterEventType(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterEventType("user.created", userCreatedDefinition()))

	def, ok := r.Definition("user.created")
	require.True(t, ok)
	assert.Equal(t, "1.2.0", def.Version)
	assert.Equal(t, []string{"user.created"}, r.Types())
}

func TestRegistry_RegistrationIsOneShot(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterEventType("user.created", userCreatedDefinition()))

	err := r.RegisterEventType("user.created", userCreatedDefinition())
	require.Error(t, err)
	var dup ErrDuplicateEventType
	assert.ErrorAs(t, err, &dup)
}

func TestRegistry_RejectsInvalidDefinitions(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.RegisterEventType("", userCreatedDefinition()), "empty name")

	assert.Error(t, r.RegisterEventType("a.b", EventDefinition{}), "missing schema")

	def := userCreatedDefinition()
	def.Groups = []string{"ok", " "}
	assert.Error(t, r.RegisterEventType("a.b", def), "blank group name")

	def = userCreatedDefinition()
	def.Version = "not-a-version"
	assert.Error(t, r.RegisterEventType("a.b", def), "malformed version")

	// Version is optional.
	def = userCreatedDefinition()
	def.Version = ""
	assert.NoError(t, r.RegisterEventType("a.b", def))
}

func TestRegistry_ValidateEvent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterEventType("user.created", userCreatedDefinition()))

	valid := mustEvent(t, "user.created")
	valid.Payload = map[string]any{"userId": "u1", "email": "u1@example.com"}
	res := r.ValidateEvent(valid)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)

	invalid := mustEvent(t, "user.created")
	invalid.Payload = map[string]any{"email": "not-an-email"}
	res = r.ValidateEvent(invalid)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Errors)
}

func TestRegistry_UnknownTypeIsInvalid(t *testing.T) {
	r := NewRegistry()
	res := r.ValidateEvent(mustEvent(t, "never.registered"))
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "not registered")
}

func TestRegistry_Groups(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterEventType("user.created", userCreatedDefinition()))

	updated := userCreatedDefinition()
	updated.Groups = []string{"user"}
	require.NoError(t, r.RegisterEventType("user.updated", updated))

	assert.Equal(t, []string{"user.created", "user.updated"}, r.TypesInGroup("user"))
	assert.Equal(t, []string{"user.created"}, r.TypesInGroup("audit"))
	assert.Empty(t, r.TypesInGroup("nonexistent"))
}

func TestRegistry_NilEvent(t *testing.T) {
	r := NewRegistry()
	res := r.ValidateEvent(nil)
	assert.False(t, res.Valid)
}
