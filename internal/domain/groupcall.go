package domain

import (
	"time"

	"github.com/google/uuid"
)

// Group call session status values
const (
	GroupCallStatusWaiting = "waiting"
	GroupCallStatusActive  = "active"
	GroupCallStatusEnded   = "ended"
)

// Call type values
const (
	CallTypeAudio = "audio"
	CallTypeVideo = "video"
)

// GroupCallSession represents a persisted multi-party call room.
// The participant roster is append-only: a user who leaves is marked
// inactive, never removed.
type GroupCallSession struct {
	RoomID          string        `json:"room_id"`
	CallType        string        `json:"call_type"` // audio, video
	CreatorID       uuid.UUID     `json:"creator_id"`
	Participants    []Participant `json:"participants"`
	MaxParticipants int           `json:"max_participants"`
	Status          string        `json:"status"` // waiting, active, ended
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	Duration        int           `json:"duration,omitempty"` // in seconds
	CreatedAt       time.Time     `json:"created_at"`
}

// Participant is one roster entry of a group call session.
// ConnectionID is set while the participant has a live signaling
// connection bound to the room and cleared on leave/disconnect.
type Participant struct {
	RoomID       string     `json:"room_id"`
	UserID       uuid.UUID  `json:"user_id"`
	ConnectionID string     `json:"connection_id,omitempty"`
	JoinedAt     time.Time  `json:"joined_at"`
	LeftAt       *time.Time `json:"left_at,omitempty"`
	IsActive     bool       `json:"is_active"`
	IsMuted      bool       `json:"is_muted"`
	IsVideoOff   bool       `json:"is_video_off"`
}

// ActiveParticipants returns the roster entries still in the room.
func (s *GroupCallSession) ActiveParticipants() []Participant {
	var active []Participant
	for _, p := range s.Participants {
		if p.IsActive {
			active = append(active, p)
		}
	}
	return active
}

// HasFreeSlot reports whether another participant may join.
func (s *GroupCallSession) HasFreeSlot() bool {
	return len(s.ActiveParticipants()) < s.MaxParticipants
}
