package signaling

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Client-to-server event names. These are the wire contract and must not
// be renamed without a coordinated client release.
const (
	EventCallInitiate    = "call-initiate"
	EventCallAccept      = "call-accept"
	EventCallReject      = "call-reject"
	EventICECandidate    = "ice-candidate"
	EventCallEnd         = "call-end"
	EventJoinGroupCall   = "join-group-call"
	EventGroupCallOffer  = "group-call-offer"
	EventGroupCallAnswer = "group-call-answer"
	EventGroupICE        = "group-ice-candidate"
	EventMuteToggle      = "participant-mute-toggle"
	EventVideoToggle     = "participant-video-toggle"
	EventLeaveGroupCall  = "leave-group-call"
)

// Server-to-client event names.
const (
	EventIncomingCall     = "incoming-call"
	EventCallFailed       = "call-failed"
	EventCallAnswered     = "call-answered"
	EventCallDenied       = "call-denied"
	EventCallEnded        = "call-ended"
	EventJoinedGroupCall  = "joined-group-call"
	EventUserJoinedGroup  = "user-joined-group-call"
	EventParticipantMuted = "participant-muted"
	EventParticipantVideo = "participant-video-toggled"
	EventUserLeftGroup    = "user-left-group-call"
	EventGroupCallError   = "group-call-error"
	EventProtocolError    = "protocol-error"
)

// Envelope frames every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Inbound payloads.

type CallInitiatePayload struct {
	TargetUserID string          `json:"targetUserId"`
	Offer        json.RawMessage `json:"offer"`
	CallType     string          `json:"callType"`
}

type CallAcceptPayload struct {
	CallerUserID string          `json:"callerUserId"`
	Answer       json.RawMessage `json:"answer"`
}

type CallRejectPayload struct {
	CallerUserID string `json:"callerUserId"`
}

type ICECandidatePayload struct {
	TargetUserID string          `json:"targetUserId"`
	Candidate    json.RawMessage `json:"candidate"`
}

type CallEndPayload struct {
	OtherUserID string `json:"otherUserId"`
}

type JoinGroupCallPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type GroupSDPPayload struct {
	RoomID       string          `json:"roomId"`
	TargetUserID string          `json:"targetUserId"`
	SDP          json.RawMessage `json:"sdp"`
}

type GroupICEPayload struct {
	RoomID       string          `json:"roomId"`
	TargetUserID string          `json:"targetUserId"`
	Candidate    json.RawMessage `json:"candidate"`
}

type MuteTogglePayload struct {
	RoomID  string `json:"roomId"`
	IsMuted bool   `json:"isMuted"`
}

type VideoTogglePayload struct {
	RoomID     string `json:"roomId"`
	IsVideoOff bool   `json:"isVideoOff"`
}

type LeaveGroupCallPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// Outbound payloads.

type IncomingCallPayload struct {
	CallerUserID uuid.UUID       `json:"callerUserId"`
	Offer        json.RawMessage `json:"offer"`
	CallType     string          `json:"callType"`
}

type CallFailedPayload struct {
	Reason string `json:"reason"`
}

type CallAnsweredPayload struct {
	CalleeUserID uuid.UUID       `json:"calleeUserId"`
	Answer       json.RawMessage `json:"answer"`
}

type CallDeniedPayload struct {
	CalleeUserID uuid.UUID `json:"calleeUserId"`
}

type ICECandidateOut struct {
	SenderUserID uuid.UUID       `json:"senderUserId"`
	Candidate    json.RawMessage `json:"candidate"`
}

type CallEndedPayload struct {
	InitiatorUserID uuid.UUID `json:"initiatorUserId"`
	Reason          string    `json:"reason,omitempty"`
}

type JoinedGroupCallPayload struct {
	RoomID string `json:"roomId"`
}

type UserJoinedGroupPayload struct {
	UserID       uuid.UUID `json:"userId"`
	ConnectionID string    `json:"connectionId"`
}

type GroupSDPOut struct {
	FromUserID   uuid.UUID       `json:"fromUserId"`
	TargetUserID string          `json:"targetUserId"`
	SDP          json.RawMessage `json:"sdp"`
}

type GroupICEOut struct {
	FromUserID   uuid.UUID       `json:"fromUserId"`
	TargetUserID string          `json:"targetUserId"`
	Candidate    json.RawMessage `json:"candidate"`
}

type ParticipantMutedPayload struct {
	UserID  uuid.UUID `json:"userId"`
	IsMuted bool      `json:"isMuted"`
}

type ParticipantVideoPayload struct {
	UserID     uuid.UUID `json:"userId"`
	IsVideoOff bool      `json:"isVideoOff"`
}

type UserLeftGroupPayload struct {
	UserID uuid.UUID `json:"userId"`
	Reason string    `json:"reason,omitempty"`
}

type GroupCallErrorPayload struct {
	Message string `json:"message"`
}

type ProtocolErrorPayload struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}
