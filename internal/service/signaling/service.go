package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"heartlink-backend/internal/domain"
	"heartlink-backend/internal/service/groupcall"
	"heartlink-backend/pkg/metrics"
)

// DefaultRingTimeout bounds how long a call attempt may ring unanswered
// before the tentative link is torn down and the caller notified.
const DefaultRingTimeout = 45 * time.Second

// Sender delivers an event to a live connection. Implemented by the
// WebSocket hub.
type Sender interface {
	Send(connectionID, event string, data interface{}) error
}

// GroupCalls is the persisted group call session manager consumed by the
// protocol service.
type GroupCalls interface {
	AttachConnection(ctx context.Context, roomID string, userID uuid.UUID, connectionID string) (*domain.GroupCallSession, error)
	DetachConnection(ctx context.Context, roomID string, userID uuid.UUID) (*domain.GroupCallSession, error)
	FindSessionsByConnection(ctx context.Context, connectionID string) ([]*domain.GroupCallSession, error)
	SetMuted(ctx context.Context, roomID string, userID uuid.UUID, isMuted bool) error
	SetVideoOff(ctx context.Context, roomID string, userID uuid.UUID, isVideoOff bool) error
}

// EventLog appends call activity to the history store. Best-effort.
type EventLog interface {
	Record(ctx context.Context, event *domain.CallEvent) error
}

// Presence marks users online/offline while they hold a live connection.
type Presence interface {
	SetUserOnline(ctx context.Context, userID uuid.UUID) error
	SetUserOffline(ctx context.Context, userID uuid.UUID) error
	RefreshPresence(ctx context.Context, userID uuid.UUID) error
}

// CallLedger is notified when a call's duration is finalized so coins
// can be debited and earnings credited. The core's responsibility ends
// at reporting identities and duration.
type CallLedger interface {
	OneToOneEnded(ctx context.Context, callerID, calleeID uuid.UUID, callType string, seconds int) error
	GroupEnded(ctx context.Context, session *domain.GroupCallSession) error
}

// Publisher fans call lifecycle events out to external collaborators
// (Redis Pub/Sub in production).
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// LifecycleChannel carries finalized call lifecycle notifications.
const LifecycleChannel = "calls:lifecycle"

// Options wires the protocol service's collaborators. Sender, GroupCalls
// and Logger are required; the rest are optional (nil disables them).
type Options struct {
	Sender      Sender
	GroupCalls  GroupCalls
	EventLog    EventLog
	Presence    Presence
	Ledger      CallLedger
	Publisher   Publisher
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
	RingTimeout time.Duration
}

// callMeta tracks the supplementary state of a pairwise link: ring timer
// for tentative links, timing and identities for billing once confirmed.
type callMeta struct {
	callerConn  string
	calleeConn  string
	callerID    uuid.UUID
	calleeID    uuid.UUID
	callType    string
	ringTimer   *time.Timer
	confirmedAt time.Time
}

// Service is the event-driven signaling orchestrator. It owns the
// connection identity registry, the pairwise call coordinator and the
// in-memory room table; events for a single connection are handled
// strictly in arrival order by the transport layer.
type Service struct {
	registry *Registry
	calls    *PairwiseCalls
	rooms    *Rooms

	sender      Sender
	groups      GroupCalls
	eventLog    EventLog
	presence    Presence
	ledger      CallLedger
	publisher   Publisher
	metrics     *metrics.Metrics
	log         *zap.Logger
	ringTimeout time.Duration

	metaMu sync.Mutex
	meta   map[string]*callMeta
}

// NewService creates a signaling service with isolated registries.
func NewService(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RingTimeout <= 0 {
		opts.RingTimeout = DefaultRingTimeout
	}
	s := &Service{
		registry:    NewRegistry(),
		calls:       NewPairwiseCalls(),
		rooms:       NewRooms(),
		sender:      opts.Sender,
		groups:      opts.GroupCalls,
		eventLog:    opts.EventLog,
		presence:    opts.Presence,
		ledger:      opts.Ledger,
		publisher:   opts.Publisher,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		ringTimeout: opts.RingTimeout,
		meta:        make(map[string]*callMeta),
	}
	return s
}

// Registry exposes the identity registry (read paths and tests).
func (s *Service) Registry() *Registry { return s.registry }

// Calls exposes the pairwise coordinator (read paths and tests).
func (s *Service) Calls() *PairwiseCalls { return s.calls }

// Rooms exposes the in-memory room table (read paths and tests).
func (s *Service) Rooms() *Rooms { return s.rooms }

func (s *Service) lock()   { s.metaMu.Lock() }
func (s *Service) unlock() { s.metaMu.Unlock() }

// Connect binds an authenticated user identity to a new connection.
// No call-control event is accepted for a connection that was never
// registered here.
func (s *Service) Connect(ctx context.Context, connectionID string, userID uuid.UUID) {
	s.registry.Register(connectionID, userID)
	if s.presence != nil {
		if err := s.presence.SetUserOnline(ctx, userID); err != nil {
			s.log.Warn("presence update failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
	}
	if s.metrics != nil {
		s.metrics.IncWebSocketConnections()
	}
	s.log.Info("connection registered",
		zap.String("connection_id", connectionID),
		zap.String("user_id", userID.String()))
}

// Heartbeat refreshes the user's presence TTL. The transport calls this
// on pong frames so presence expires with the connection.
func (s *Service) Heartbeat(ctx context.Context, connID string) {
	if s.presence == nil {
		return
	}
	self, ok := s.registry.GetByConnectionID(connID)
	if !ok {
		return
	}
	if err := s.presence.RefreshPresence(ctx, self.UserID); err != nil {
		s.log.Debug("presence refresh failed", zap.String("user_id", self.UserID.String()), zap.Error(err))
	}
}

// HandleEvent dispatches one inbound envelope for a connection.
func (s *Service) HandleEvent(ctx context.Context, connID string, env Envelope) {
	if s.metrics != nil {
		s.metrics.IncSignalingEvent(env.Event)
	}

	self, ok := s.registry.GetByConnectionID(connID)
	if !ok {
		// Connection was never authenticated/registered; refuse everything.
		s.emit(connID, EventProtocolError, ProtocolErrorPayload{Event: env.Event, Message: "connection not registered"})
		return
	}

	switch env.Event {
	case EventCallInitiate:
		var p CallInitiatePayload
		if !s.decode(connID, env, &p) {
			return
		}
		if p.TargetUserID == "" {
			s.protocolError(connID, env.Event, "targetUserId is required")
			return
		}
		s.handleCallInitiate(ctx, self, p)

	case EventCallAccept:
		var p CallAcceptPayload
		if !s.decode(connID, env, &p) {
			return
		}
		if p.CallerUserID == "" {
			s.protocolError(connID, env.Event, "callerUserId is required")
			return
		}
		s.handleCallAccept(ctx, self, p)

	case EventCallReject:
		var p CallRejectPayload
		if !s.decode(connID, env, &p) {
			return
		}
		if p.CallerUserID == "" {
			s.protocolError(connID, env.Event, "callerUserId is required")
			return
		}
		s.handleCallReject(ctx, self, p)

	case EventICECandidate:
		var p ICECandidatePayload
		if !s.decode(connID, env, &p) {
			return
		}
		if p.TargetUserID == "" || len(p.Candidate) == 0 {
			s.protocolError(connID, env.Event, "targetUserId and candidate are required")
			return
		}
		s.handleICECandidate(self, p)

	case EventCallEnd:
		var p CallEndPayload
		if !s.decode(connID, env, &p) {
			return
		}
		if p.OtherUserID == "" {
			s.protocolError(connID, env.Event, "otherUserId is required")
			return
		}
		s.handleCallEnd(ctx, self, p)

	case EventJoinGroupCall:
		var p JoinGroupCallPayload
		if !s.decode(connID, env, &p) {
			return
		}
		if p.RoomID == "" || p.UserID == "" {
			s.protocolError(connID, env.Event, "roomId and userId are required")
			return
		}
		if !s.assertSelf(self, p.UserID, env.Event) {
			return
		}
		s.handleJoinGroupCall(ctx, self, p.RoomID)

	case EventGroupCallOffer, EventGroupCallAnswer:
		var p GroupSDPPayload
		if !s.decode(connID, env, &p) {
			return
		}
		if p.RoomID == "" || len(p.SDP) == 0 {
			s.protocolError(connID, env.Event, "roomId and sdp are required")
			return
		}
		s.relayToRoom(self, p.RoomID, p.TargetUserID, env.Event, GroupSDPOut{
			FromUserID:   self.UserID,
			TargetUserID: p.TargetUserID,
			SDP:          p.SDP,
		})

	case EventGroupICE:
		var p GroupICEPayload
		if !s.decode(connID, env, &p) {
			return
		}
		if p.RoomID == "" || len(p.Candidate) == 0 {
			s.protocolError(connID, env.Event, "roomId and candidate are required")
			return
		}
		s.relayToRoom(self, p.RoomID, p.TargetUserID, env.Event, GroupICEOut{
			FromUserID:   self.UserID,
			TargetUserID: p.TargetUserID,
			Candidate:    p.Candidate,
		})

	case EventMuteToggle:
		var p MuteTogglePayload
		if !s.decode(connID, env, &p) {
			return
		}
		if p.RoomID == "" {
			s.protocolError(connID, env.Event, "roomId is required")
			return
		}
		if s.groups != nil {
			if err := s.groups.SetMuted(ctx, p.RoomID, self.UserID, p.IsMuted); err != nil {
				s.noteBookkeepingFailure("persist mute state", p.RoomID, err)
			}
		}
		s.broadcast(p.RoomID, self.ConnectionID, EventParticipantMuted, ParticipantMutedPayload{
			UserID:  self.UserID,
			IsMuted: p.IsMuted,
		})

	case EventVideoToggle:
		var p VideoTogglePayload
		if !s.decode(connID, env, &p) {
			return
		}
		if p.RoomID == "" {
			s.protocolError(connID, env.Event, "roomId is required")
			return
		}
		if s.groups != nil {
			if err := s.groups.SetVideoOff(ctx, p.RoomID, self.UserID, p.IsVideoOff); err != nil {
				s.noteBookkeepingFailure("persist video state", p.RoomID, err)
			}
		}
		s.broadcast(p.RoomID, self.ConnectionID, EventParticipantVideo, ParticipantVideoPayload{
			UserID:     self.UserID,
			IsVideoOff: p.IsVideoOff,
		})

	case EventLeaveGroupCall:
		var p LeaveGroupCallPayload
		if !s.decode(connID, env, &p) {
			return
		}
		if p.RoomID == "" || p.UserID == "" {
			s.protocolError(connID, env.Event, "roomId and userId are required")
			return
		}
		if !s.assertSelf(self, p.UserID, env.Event) {
			return
		}
		s.handleLeaveGroupCall(ctx, self, p.RoomID, "")

	default:
		s.protocolError(connID, env.Event, "unknown event")
	}
}

// HandleDisconnect runs the exhaustive cleanup path for a closed
// connection: pairwise link, group sessions, identity, presence.
func (s *Service) HandleDisconnect(ctx context.Context, connID string) {
	self, ok := s.registry.GetByConnectionID(connID)
	if !ok {
		return
	}

	// 1) One-to-one call: notify the peer and tear the link down.
	if peerConn, inCall := s.calls.GetPeer(connID); inCall {
		s.emit(peerConn, EventCallEnded, CallEndedPayload{
			InitiatorUserID: self.UserID,
			Reason:          "disconnected",
		})
		s.endPairwise(ctx, connID)
	}

	// 2) Group sessions: detach every roster entry bound to this
	// connection and notify the rooms. The in-memory table and the
	// persisted store are both consulted so cleanup stays exhaustive
	// even when one of them missed an update.
	roomIDs := make(map[string]bool)
	for _, roomID := range s.rooms.LeaveAll(connID) {
		roomIDs[roomID] = true
	}
	if s.groups != nil {
		if sessions, err := s.groups.FindSessionsByConnection(ctx, connID); err != nil {
			s.log.Warn("disconnect: session scan failed", zap.String("connection_id", connID), zap.Error(err))
		} else {
			for _, session := range sessions {
				roomIDs[session.RoomID] = true
			}
		}
	}
	for roomID := range roomIDs {
		s.detachAndNotify(ctx, self, roomID, "disconnected")
	}

	// 3) Identity and presence.
	s.registry.Unregister(connID)
	if s.presence != nil {
		if err := s.presence.SetUserOffline(ctx, self.UserID); err != nil {
			s.log.Warn("presence update failed", zap.String("user_id", self.UserID.String()), zap.Error(err))
		}
	}
	if s.metrics != nil {
		s.metrics.DecWebSocketConnections()
	}
	s.log.Info("connection cleaned up",
		zap.String("connection_id", connID),
		zap.String("user_id", self.UserID.String()))
}

// ---- one-to-one handlers ----

func (s *Service) handleCallInitiate(ctx context.Context, self Identity, p CallInitiatePayload) {
	callType := p.CallType
	if callType == "" {
		callType = domain.CallTypeVideo
	}

	target, ok := s.registry.Lookup(p.TargetUserID)
	if !ok || target.ConnectionID == self.ConnectionID {
		s.emit(self.ConnectionID, EventCallFailed, CallFailedPayload{Reason: "User not available or invalid user."})
		if s.metrics != nil {
			s.metrics.IncCallFailed("target_unavailable")
		}
		return
	}

	s.emit(target.ConnectionID, EventIncomingCall, IncomingCallPayload{
		CallerUserID: self.UserID,
		Offer:        p.Offer,
		CallType:     callType,
	})

	// Record the tentative link. Last caller wins; any displaced link's
	// supplementary state is dropped with it.
	s.calls.StartAttempt(self.ConnectionID, target.ConnectionID)

	s.lock()
	s.dropMetaLocked(self.ConnectionID)
	s.dropMetaLocked(target.ConnectionID)
	m := &callMeta{
		callerConn: self.ConnectionID,
		calleeConn: target.ConnectionID,
		callerID:   self.UserID,
		calleeID:   target.UserID,
		callType:   callType,
	}
	callerConn := self.ConnectionID
	m.ringTimer = time.AfterFunc(s.ringTimeout, func() { s.onRingTimeout(callerConn) })
	s.meta[m.callerConn] = m
	s.meta[m.calleeConn] = m
	s.unlock()

	s.record(ctx, &domain.CallEvent{
		UserID:   self.UserID,
		Kind:     domain.CallEventStarted,
		PeerID:   target.UserID,
		CallType: callType,
	})
	s.log.Info("call initiated",
		zap.String("caller", self.UserID.String()),
		zap.String("callee", target.UserID.String()),
		zap.String("call_type", callType))
}

func (s *Service) handleCallAccept(ctx context.Context, self Identity, p CallAcceptPayload) {
	caller, ok := s.registry.Lookup(p.CallerUserID)
	if !ok {
		// Accept with no matching attempt: ignored by design, to avoid
		// leaking timing information to the accepting side.
		s.log.Info("call-accept for unknown caller", zap.String("caller_user_id", p.CallerUserID))
		return
	}

	s.calls.Confirm(self.ConnectionID, caller.ConnectionID)

	s.lock()
	m := s.meta[self.ConnectionID]
	if m != nil && m.callerConn == caller.ConnectionID {
		if m.ringTimer != nil {
			m.ringTimer.Stop()
			m.ringTimer = nil
		}
		m.confirmedAt = time.Now()
	} else {
		// Confirm arrived without a tracked attempt (e.g. restart); keep
		// billing state from now.
		s.dropMetaLocked(self.ConnectionID)
		s.dropMetaLocked(caller.ConnectionID)
		m = &callMeta{
			callerConn:  caller.ConnectionID,
			calleeConn:  self.ConnectionID,
			callerID:    caller.UserID,
			calleeID:    self.UserID,
			callType:    domain.CallTypeVideo,
			confirmedAt: time.Now(),
		}
		s.meta[m.callerConn] = m
		s.meta[m.calleeConn] = m
	}
	s.unlock()

	s.emit(caller.ConnectionID, EventCallAnswered, CallAnsweredPayload{
		CalleeUserID: self.UserID,
		Answer:       p.Answer,
	})
	if s.metrics != nil {
		s.metrics.IncCallsActive()
	}

	s.record(ctx, &domain.CallEvent{
		UserID: self.UserID,
		Kind:   domain.CallEventAnswered,
		PeerID: caller.UserID,
	})
}

func (s *Service) handleCallReject(ctx context.Context, self Identity, p CallRejectPayload) {
	caller, ok := s.registry.Lookup(p.CallerUserID)
	if !ok {
		s.log.Info("call-reject for unknown caller", zap.String("caller_user_id", p.CallerUserID))
		return
	}

	if peer, inCall := s.calls.GetPeer(self.ConnectionID); inCall && peer == caller.ConnectionID {
		s.calls.End(self.ConnectionID)
		s.lock()
		s.dropMetaLocked(self.ConnectionID)
		s.unlock()
	}

	s.emit(caller.ConnectionID, EventCallDenied, CallDeniedPayload{CalleeUserID: self.UserID})

	s.record(ctx, &domain.CallEvent{
		UserID: self.UserID,
		Kind:   domain.CallEventRejected,
		PeerID: caller.UserID,
	})
}

func (s *Service) handleICECandidate(self Identity, p ICECandidatePayload) {
	peerConn, inCall := s.calls.GetPeer(self.ConnectionID)
	target, found := s.registry.Lookup(p.TargetUserID)

	var targetConn string
	switch {
	case inCall && found && peerConn == target.ConnectionID:
		targetConn = peerConn
	case found:
		targetConn = target.ConnectionID
	}

	if targetConn == "" || targetConn == self.ConnectionID {
		s.log.Debug("ice-candidate target not resolvable", zap.String("target_user_id", p.TargetUserID))
		return
	}

	s.emit(targetConn, EventICECandidate, ICECandidateOut{
		SenderUserID: self.UserID,
		Candidate:    p.Candidate,
	})
}

func (s *Service) handleCallEnd(ctx context.Context, self Identity, p CallEndPayload) {
	peerConn, inCall := s.calls.GetPeer(self.ConnectionID)
	other, found := s.registry.Lookup(p.OtherUserID)

	switch {
	case inCall && found && peerConn == other.ConnectionID:
		s.emit(peerConn, EventCallEnded, CallEndedPayload{InitiatorUserID: self.UserID})
	case found:
		// Best-effort: tell the named user even if no link matched.
		s.emit(other.ConnectionID, EventCallEnded, CallEndedPayload{InitiatorUserID: self.UserID})
	}

	s.endPairwise(ctx, self.ConnectionID)
}

// endPairwise tears down the link for a connection, finalizes billing
// for confirmed calls and records history. No-op when there is no link.
func (s *Service) endPairwise(ctx context.Context, connID string) {
	s.calls.End(connID)

	s.lock()
	m := s.dropMetaLocked(connID)
	s.unlock()
	if m == nil {
		return
	}

	if m.confirmedAt.IsZero() {
		return // never answered, nothing to bill
	}

	seconds := int(time.Since(m.confirmedAt) / time.Second)
	if s.metrics != nil {
		s.metrics.DecCallsActive()
		s.metrics.ObserveCallDuration(m.callType, time.Since(m.confirmedAt))
	}
	if s.ledger != nil {
		if err := s.ledger.OneToOneEnded(ctx, m.callerID, m.calleeID, m.callType, seconds); err != nil {
			s.log.Error("call ledger notification failed",
				zap.String("caller", m.callerID.String()),
				zap.String("callee", m.calleeID.String()),
				zap.Error(err))
		}
	}
	s.publishLifecycle(ctx, map[string]interface{}{
		"kind":     "call_ended",
		"caller":   m.callerID,
		"callee":   m.calleeID,
		"callType": m.callType,
		"duration": seconds,
	})
	s.record(ctx, &domain.CallEvent{
		UserID:   m.callerID,
		Kind:     domain.CallEventEnded,
		PeerID:   m.calleeID,
		CallType: m.callType,
		Duration: seconds,
	})
}

// onRingTimeout expires a still-tentative attempt. Accept, reject, end
// and disconnect all cancel the timer first, so firing means the callee
// never responded.
func (s *Service) onRingTimeout(callerConn string) {
	s.lock()
	m := s.meta[callerConn]
	if m == nil || !m.confirmedAt.IsZero() {
		s.unlock()
		return
	}
	s.dropMetaLocked(callerConn)
	s.unlock()

	s.calls.End(callerConn)
	s.emit(callerConn, EventCallFailed, CallFailedPayload{Reason: "ring timeout"})
	if s.metrics != nil {
		s.metrics.IncCallFailed("ring_timeout")
	}
	s.log.Info("ring timeout",
		zap.String("caller", m.callerID.String()),
		zap.String("callee", m.calleeID.String()))
}

// dropMetaLocked removes both meta entries for a connection's link and
// stops its ring timer. Caller holds the meta lock.
func (s *Service) dropMetaLocked(connID string) *callMeta {
	m := s.meta[connID]
	if m == nil {
		return nil
	}
	if m.ringTimer != nil {
		m.ringTimer.Stop()
		m.ringTimer = nil
	}
	delete(s.meta, m.callerConn)
	delete(s.meta, m.calleeConn)
	return m
}

// ---- group handlers ----

func (s *Service) handleJoinGroupCall(ctx context.Context, self Identity, roomID string) {
	if s.groups != nil {
		_, err := s.groups.AttachConnection(ctx, roomID, self.UserID, self.ConnectionID)
		switch {
		case err == nil:
			// bound
		case errors.Is(err, groupcall.ErrSessionNotFound), errors.Is(err, groupcall.ErrSessionEnded):
			// Definitive: the room does not accept members. Do not join.
			s.emit(self.ConnectionID, EventGroupCallError, GroupCallErrorPayload{Message: "Failed to join group call"})
			s.log.Info("join-group-call refused",
				zap.String("room_id", roomID),
				zap.String("user_id", self.UserID.String()),
				zap.Error(err))
			return
		default:
			// Transient store failure: relay proceeds, bookkeeping catches
			// up later. Live-call continuity beats roster accuracy here.
			if s.metrics != nil {
				s.metrics.IncRelayBookkeepingFailure()
			}
			s.log.Error("group attach failed, joining best-effort",
				zap.String("room_id", roomID),
				zap.String("user_id", self.UserID.String()),
				zap.Error(err))
		}
	}

	s.rooms.Join(roomID, self.ConnectionID)

	s.emit(self.ConnectionID, EventJoinedGroupCall, JoinedGroupCallPayload{RoomID: roomID})
	s.broadcast(roomID, self.ConnectionID, EventUserJoinedGroup, UserJoinedGroupPayload{
		UserID:       self.UserID,
		ConnectionID: self.ConnectionID,
	})

	s.record(ctx, &domain.CallEvent{
		UserID: self.UserID,
		Kind:   domain.CallEventGroupJoin,
		RoomID: roomID,
	})
}

func (s *Service) handleLeaveGroupCall(ctx context.Context, self Identity, roomID, reason string) {
	s.rooms.Leave(roomID, self.ConnectionID)
	s.detachAndNotify(ctx, self, roomID, reason)
}

// detachAndNotify detaches the user's roster entry (best-effort) and
// notifies the remaining room members. Finalizes the session when the
// detach drops the active count to zero.
func (s *Service) detachAndNotify(ctx context.Context, self Identity, roomID, reason string) {
	if s.groups != nil {
		session, err := s.groups.DetachConnection(ctx, roomID, self.UserID)
		switch {
		case err == nil:
			if session != nil && session.Status == domain.GroupCallStatusEnded {
				s.finalizeGroupSession(ctx, session)
			}
		case errors.Is(err, groupcall.ErrSessionNotFound), errors.Is(err, groupcall.ErrNotParticipant):
			s.log.Info("detach: no active roster entry",
				zap.String("room_id", roomID),
				zap.String("user_id", self.UserID.String()))
		default:
			if s.metrics != nil {
				s.metrics.IncRelayBookkeepingFailure()
			}
			s.log.Error("group detach failed",
				zap.String("room_id", roomID),
				zap.String("user_id", self.UserID.String()),
				zap.Error(err))
		}
	}

	s.broadcast(roomID, self.ConnectionID, EventUserLeftGroup, UserLeftGroupPayload{
		UserID: self.UserID,
		Reason: reason,
	})

	s.record(ctx, &domain.CallEvent{
		UserID: self.UserID,
		Kind:   domain.CallEventGroupLeave,
		RoomID: roomID,
	})
}

func (s *Service) finalizeGroupSession(ctx context.Context, session *domain.GroupCallSession) {
	if s.metrics != nil && session.StartedAt != nil {
		s.metrics.ObserveCallDuration(session.CallType, time.Duration(session.Duration)*time.Second)
	}
	if s.ledger != nil {
		if err := s.ledger.GroupEnded(ctx, session); err != nil {
			s.log.Error("group ledger notification failed", zap.String("room_id", session.RoomID), zap.Error(err))
		}
	}
	s.publishLifecycle(ctx, map[string]interface{}{
		"kind":     "group_call_ended",
		"roomId":   session.RoomID,
		"callType": session.CallType,
		"duration": session.Duration,
	})
	s.log.Info("group call ended",
		zap.String("room_id", session.RoomID),
		zap.Int("duration_s", session.Duration))
}

// relayToRoom routes a group SDP/ICE payload. When the target user
// resolves to a connection inside the room it is delivered point-to-point;
// otherwise the payload is broadcast to the room (excluding the sender)
// and receivers filter on targetUserId themselves.
func (s *Service) relayToRoom(self Identity, roomID, targetUserID, event string, payload interface{}) {
	if targetUserID != "" {
		if target, ok := s.registry.Lookup(targetUserID); ok &&
			target.ConnectionID != self.ConnectionID &&
			s.rooms.Contains(roomID, target.ConnectionID) {
			s.emit(target.ConnectionID, event, payload)
			return
		}
	}
	s.broadcast(roomID, self.ConnectionID, event, payload)
}

// broadcast fans an event out to all room members except one connection.
func (s *Service) broadcast(roomID, excludeConn, event string, payload interface{}) {
	for _, conn := range s.rooms.Members(roomID, excludeConn) {
		s.emit(conn, event, payload)
	}
}

// ---- plumbing ----

func (s *Service) decode(connID string, env Envelope, out interface{}) bool {
	if len(env.Data) == 0 {
		s.protocolError(connID, env.Event, "missing payload")
		return false
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		s.protocolError(connID, env.Event, "malformed payload")
		return false
	}
	return true
}

// assertSelf rejects payloads claiming a userId other than the one the
// connection authenticated as.
func (s *Service) assertSelf(self Identity, claimedUserID, event string) bool {
	userID, err := uuid.Parse(claimedUserID)
	if err != nil || userID != self.UserID {
		s.protocolError(self.ConnectionID, event, "userId does not match authenticated user")
		return false
	}
	return true
}

// noteBookkeepingFailure logs and counts a non-fatal store failure on
// the relay path.
func (s *Service) noteBookkeepingFailure(action, roomID string, err error) {
	if s.metrics != nil {
		s.metrics.IncRelayBookkeepingFailure()
	}
	s.log.Error("group bookkeeping failed",
		zap.String("action", action),
		zap.String("room_id", roomID),
		zap.Error(err))
}

func (s *Service) protocolError(connID, event, message string) {
	if s.metrics != nil {
		s.metrics.IncProtocolError(event)
	}
	s.emit(connID, EventProtocolError, ProtocolErrorPayload{Event: event, Message: message})
}

func (s *Service) emit(connID, event string, data interface{}) {
	if err := s.sender.Send(connID, event, data); err != nil {
		s.log.Warn("emit failed",
			zap.String("connection_id", connID),
			zap.String("event", event),
			zap.Error(err))
	}
}

func (s *Service) record(ctx context.Context, event *domain.CallEvent) {
	if s.eventLog == nil {
		return
	}
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	event.Bucket = domain.CalculateBucket(event.CreatedAt)
	if err := s.eventLog.Record(ctx, event); err != nil {
		// History is best-effort; never fail the live path over it.
		s.log.Warn("call event log failed", zap.String("kind", event.Kind), zap.Error(err))
	}
}

func (s *Service) publishLifecycle(ctx context.Context, message map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return
	}
	if err := s.publisher.Publish(ctx, LifecycleChannel, payload); err != nil {
		s.log.Warn("lifecycle publish failed", zap.Error(err))
	}
}
