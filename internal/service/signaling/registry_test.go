package signaling

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRegistry_RegisterAndLookupByConnection(t *testing.T) {
	r := NewRegistry()
	userID := uuid.New()

	r.Register("conn-1", userID)

	ident, ok := r.GetByConnectionID("conn-1")
	assert.True(t, ok)
	assert.Equal(t, "conn-1", ident.ConnectionID)
	assert.Equal(t, userID, ident.UserID)
}

func TestRegistry_LookupByUserID(t *testing.T) {
	r := NewRegistry()
	userID := uuid.New()
	r.Register("conn-1", userID)

	ident, ok := r.Lookup(userID.String())
	assert.True(t, ok)
	assert.Equal(t, "conn-1", ident.ConnectionID)
}

func TestRegistry_LookupPrefersConnectionID(t *testing.T) {
	r := NewRegistry()
	userID := uuid.New()
	// A connection whose ID happens to be a UUID string must resolve as a
	// connection, not fall through to the user scan.
	connID := uuid.New().String()
	r.Register(connID, userID)

	ident, ok := r.Lookup(connID)
	assert.True(t, ok)
	assert.Equal(t, connID, ident.ConnectionID)
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Lookup("no-such-conn")
	assert.False(t, ok)

	_, ok = r.Lookup(uuid.New().String())
	assert.False(t, ok)
}

func TestRegistry_ReRegisterOverwrites(t *testing.T) {
	r := NewRegistry()
	first := uuid.New()
	second := uuid.New()

	r.Register("conn-1", first)
	r.Register("conn-1", second)

	ident, ok := r.GetByConnectionID("conn-1")
	assert.True(t, ok)
	assert.Equal(t, second, ident.UserID)
	assert.Len(t, r.ListAll(), 1)
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	userID := uuid.New()
	r.Register("conn-1", userID)

	ident, ok := r.Unregister("conn-1")
	assert.True(t, ok)
	assert.Equal(t, userID, ident.UserID)

	_, ok = r.GetByConnectionID("conn-1")
	assert.False(t, ok)

	// Second unregister is a no-op
	_, ok = r.Unregister("conn-1")
	assert.False(t, ok)
}

func TestRegistry_MultipleConnectionsSameUser(t *testing.T) {
	r := NewRegistry()
	userID := uuid.New()
	r.Register("conn-1", userID)
	r.Register("conn-2", userID)

	assert.Len(t, r.ListAll(), 2)

	// Lookup by user resolves to one of the live connections
	ident, ok := r.Lookup(userID.String())
	assert.True(t, ok)
	assert.Contains(t, []string{"conn-1", "conn-2"}, ident.ConnectionID)

	// Dropping one connection leaves the other resolvable
	r.Unregister(ident.ConnectionID)
	other, ok := r.Lookup(userID.String())
	assert.True(t, ok)
	assert.NotEqual(t, ident.ConnectionID, other.ConnectionID)
}
