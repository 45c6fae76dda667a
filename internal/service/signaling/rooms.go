package signaling

import "sync"

// Rooms is the in-memory room membership table used for relay fan-out.
// It deliberately lives beside, not inside, the persisted group call
// store: payloads are relayed from this table even when a roster update
// in the store fails, favoring live-call continuity over bookkeeping.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[string]bool // roomID -> set of connectionIDs
	joined  map[string]map[string]bool // connectionID -> set of roomIDs
}

// NewRooms creates an empty membership table.
func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]map[string]bool),
		joined:  make(map[string]map[string]bool),
	}
}

// Join adds a connection to a room.
func (r *Rooms) Join(roomID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[roomID] == nil {
		r.members[roomID] = make(map[string]bool)
	}
	r.members[roomID][connectionID] = true
	if r.joined[connectionID] == nil {
		r.joined[connectionID] = make(map[string]bool)
	}
	r.joined[connectionID][roomID] = true
}

// Leave removes a connection from a room.
func (r *Rooms) Leave(roomID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leave(roomID, connectionID)
}

// LeaveAll removes a connection from every room and returns the rooms
// it was in, for disconnect notifications.
func (r *Rooms) LeaveAll(connectionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rooms []string
	for roomID := range r.joined[connectionID] {
		rooms = append(rooms, roomID)
		r.leave(roomID, connectionID)
	}
	return rooms
}

func (r *Rooms) leave(roomID, connectionID string) {
	if set, ok := r.members[roomID]; ok {
		delete(set, connectionID)
		if len(set) == 0 {
			delete(r.members, roomID)
		}
	}
	if set, ok := r.joined[connectionID]; ok {
		delete(set, roomID)
		if len(set) == 0 {
			delete(r.joined, connectionID)
		}
	}
}

// Members returns the connections in a room, excluding one connection
// (typically the sender).
func (r *Rooms) Members(roomID, exclude string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for conn := range r.members[roomID] {
		if conn != exclude {
			out = append(out, conn)
		}
	}
	return out
}

// Contains reports whether a connection is currently in a room.
func (r *Rooms) Contains(roomID, connectionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.members[roomID][connectionID]
}

// RoomsOf returns the rooms a connection is currently in.
func (r *Rooms) RoomsOf(connectionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for roomID := range r.joined[connectionID] {
		out = append(out, roomID)
	}
	return out
}
