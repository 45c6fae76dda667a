package signaling

import (
	"sync"

	"github.com/google/uuid"
)

// Identity binds a live connection to an authenticated user for the
// lifetime of that connection.
type Identity struct {
	ConnectionID string    `json:"connection_id"`
	UserID       uuid.UUID `json:"user_id"`
}

// Registry is the in-memory connection identity table. It is owned and
// mutated exclusively by the signaling service; instances are injectable
// so tests can run against isolated registries.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]Identity
}

// NewRegistry creates an empty identity registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]Identity),
	}
}

// Register inserts or overwrites the mapping for a connection. Idempotent.
func (r *Registry) Register(connectionID string, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byConn[connectionID] = Identity{ConnectionID: connectionID, UserID: userID}
}

// Unregister removes and returns the identity for a connection.
func (r *Registry) Unregister(connectionID string) (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ident, ok := r.byConn[connectionID]
	if ok {
		delete(r.byConn, connectionID)
	}
	return ident, ok
}

// Lookup resolves an identifier that may be either a connection ID or a
// user ID. Connection IDs resolve in O(1); user IDs fall back to a linear
// scan, which is acceptable at the scale of concurrently connected users.
func (r *Registry) Lookup(id string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ident, ok := r.byConn[id]; ok {
		return ident, true
	}
	userID, err := uuid.Parse(id)
	if err != nil {
		return Identity{}, false
	}
	for _, ident := range r.byConn {
		if ident.UserID == userID {
			return ident, true
		}
	}
	return Identity{}, false
}

// GetByConnectionID resolves strictly by connection ID.
func (r *Registry) GetByConnectionID(connectionID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ident, ok := r.byConn[connectionID]
	return ident, ok
}

// ListAll returns a snapshot of all registered identities.
func (r *Registry) ListAll() []Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Identity, 0, len(r.byConn))
	for _, ident := range r.byConn {
		out = append(out, ident)
	}
	return out
}
