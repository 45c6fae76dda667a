package domain

import (
	"time"

	"github.com/google/uuid"
)

// Call event kinds recorded in the history log
const (
	CallEventStarted    = "call_started"
	CallEventAnswered   = "call_answered"
	CallEventRejected   = "call_rejected"
	CallEventEnded      = "call_ended"
	CallEventGroupJoin  = "group_joined"
	CallEventGroupLeave = "group_left"
)

// CallEvent is an append-only history record of call activity.
// Maps to the Cassandra call_events table, partitioned by user and
// day bucket so per-user history queries stay bounded.
type CallEvent struct {
	EventID   uuid.UUID `json:"event_id" cql:"event_id"`
	UserID    uuid.UUID `json:"user_id" cql:"user_id"`
	Bucket    int       `json:"bucket" cql:"bucket"`
	Kind      string    `json:"kind" cql:"kind"` // call_started, call_ended, ...
	PeerID    uuid.UUID `json:"peer_id,omitempty" cql:"peer_id"`
	RoomID    string    `json:"room_id,omitempty" cql:"room_id"`
	CallType  string    `json:"call_type,omitempty" cql:"call_type"`
	Duration  int       `json:"duration,omitempty" cql:"duration"` // in seconds
	CreatedAt time.Time `json:"created_at" cql:"created_at"`
}

// CalculateBucket derives the day bucket for a timestamp (days since epoch).
func CalculateBucket(t time.Time) int {
	return int(t.UTC().Unix() / 86400)
}
