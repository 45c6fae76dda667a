package groupcall

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"heartlink-backend/internal/domain"
)

// Sentinel errors surfaced to callers (REST handlers and the signaling
// protocol service both branch on these).
var (
	ErrSessionNotFound = errors.New("group call not found")
	ErrSessionEnded    = errors.New("group call has ended")
	ErrSessionFull     = errors.New("group call is full")
	ErrAlreadyInCall   = errors.New("already in this call")
	ErrNotParticipant  = errors.New("not an active participant")
	ErrNotCreator      = errors.New("only the creator can end the call")
)

// Repository is the persisted group call store.
type Repository interface {
	Create(ctx context.Context, session *domain.GroupCallSession) error
	GetByRoomID(ctx context.Context, roomID string) (*domain.GroupCallSession, error)
	ListOpen(ctx context.Context, callType string, limit, offset int) ([]*domain.GroupCallSession, int64, error)
	AddParticipant(ctx context.Context, p *domain.Participant) error
	// AttachParticipant sets the connection id on the active roster entry
	// matching (roomID, userID) in one statement; returns false when no
	// such entry exists.
	AttachParticipant(ctx context.Context, roomID string, userID uuid.UUID, connectionID string) (bool, error)
	// DetachParticipant marks the active roster entry inactive, stamps
	// left_at and clears the connection id; returns false when no active
	// entry matched.
	DetachParticipant(ctx context.Context, roomID string, userID uuid.UUID) (bool, error)
	DetachAllParticipants(ctx context.Context, roomID string) error
	CountActive(ctx context.Context, roomID string) (int, error)
	// MarkActive transitions waiting->active and stamps started_at; the
	// WHERE status='waiting' guard makes the transition happen exactly once.
	MarkActive(ctx context.Context, roomID string, startedAt time.Time) error
	// MarkEnded transitions to ended, stamps ended_at and computes the
	// duration; guarded so an ended session is never reactivated or
	// re-finalized.
	MarkEnded(ctx context.Context, roomID string) error
	FindByActiveConnection(ctx context.Context, connectionID string) ([]*domain.GroupCallSession, error)
	SetParticipantMuted(ctx context.Context, roomID string, userID uuid.UUID, isMuted bool) error
	SetParticipantVideoOff(ctx context.Context, roomID string, userID uuid.UUID, isVideoOff bool) error
}

// CoinCharger debits the join fee. Implemented by the wallet service.
type CoinCharger interface {
	ChargeGroupJoin(ctx context.Context, userID uuid.UUID, roomID, callType string) error
}

// Service coordinates group call rooms: REST lifecycle (create, join,
// leave, end, list) and the realtime attach/detach contract consumed by
// the signaling core.
type Service struct {
	repo    Repository
	charger CoinCharger
	log     *zap.Logger
}

// NewService creates a group call service. charger may be nil (joins
// are then free, used in tests).
func NewService(repo Repository, charger CoinCharger, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, charger: charger, log: log}
}

// Limits mirrored from the persisted schema.
const (
	DefaultMaxParticipants = 8
	MaxParticipantsCap     = 20
	MinParticipants        = 2
)

// Create opens a new room with the creator as its first roster entry.
func (s *Service) Create(ctx context.Context, creatorID uuid.UUID, callType string, maxParticipants int) (*domain.GroupCallSession, error) {
	if callType != domain.CallTypeAudio && callType != domain.CallTypeVideo {
		return nil, fmt.Errorf("invalid call type %q", callType)
	}
	if maxParticipants == 0 {
		maxParticipants = DefaultMaxParticipants
	}
	if maxParticipants < MinParticipants || maxParticipants > MaxParticipantsCap {
		return nil, fmt.Errorf("maxParticipants must be between %d and %d", MinParticipants, MaxParticipantsCap)
	}

	now := time.Now()
	session := &domain.GroupCallSession{
		RoomID:          newRoomID(callType, now),
		CallType:        callType,
		CreatorID:       creatorID,
		MaxParticipants: maxParticipants,
		Status:          domain.GroupCallStatusWaiting,
		CreatedAt:       now,
		Participants: []domain.Participant{{
			UserID:   creatorID,
			JoinedAt: now,
			IsActive: true,
		}},
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create group call: %w", err)
	}
	session.Participants[0].RoomID = session.RoomID

	s.log.Info("group call created",
		zap.String("room_id", session.RoomID),
		zap.String("creator", creatorID.String()),
		zap.String("call_type", callType))
	return session, nil
}

// newRoomID mirrors the historical room id format so existing clients
// can keep parsing it: group_<type>_<unix-ms>_<rand>.
func newRoomID(callType string, now time.Time) string {
	buf := make([]byte, 5)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("group_%s_%d_%s", callType, now.UnixMilli(), hex.EncodeToString(buf))
}

// Join adds a user to an open room via the REST collaborator path.
// The roster entry is created here; the realtime connection is bound
// later through AttachConnection.
func (s *Service) Join(ctx context.Context, roomID string, userID uuid.UUID) (*domain.GroupCallSession, error) {
	session, err := s.get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.GroupCallStatusEnded {
		return nil, ErrSessionEnded
	}
	for _, p := range session.Participants {
		if p.UserID == userID && p.IsActive {
			return nil, ErrAlreadyInCall
		}
	}
	if !session.HasFreeSlot() {
		return nil, ErrSessionFull
	}

	if s.charger != nil {
		if err := s.charger.ChargeGroupJoin(ctx, userID, roomID, session.CallType); err != nil {
			return nil, err
		}
	}

	participant := &domain.Participant{
		RoomID:   roomID,
		UserID:   userID,
		JoinedAt: time.Now(),
		IsActive: true,
	}
	if err := s.repo.AddParticipant(ctx, participant); err != nil {
		return nil, fmt.Errorf("failed to add participant: %w", err)
	}

	return s.get(ctx, roomID)
}

// Leave marks the user's roster entry inactive via the REST path.
func (s *Service) Leave(ctx context.Context, roomID string, userID uuid.UUID) (*domain.GroupCallSession, error) {
	return s.DetachConnection(ctx, roomID, userID)
}

// End terminates a room on the creator's explicit request, detaching
// every active participant.
func (s *Service) End(ctx context.Context, roomID string, userID uuid.UUID) (*domain.GroupCallSession, error) {
	session, err := s.get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.GroupCallStatusEnded {
		return nil, ErrSessionEnded
	}
	if session.CreatorID != userID {
		return nil, ErrNotCreator
	}

	if err := s.repo.DetachAllParticipants(ctx, roomID); err != nil {
		return nil, fmt.Errorf("failed to detach participants: %w", err)
	}
	if err := s.repo.MarkEnded(ctx, roomID); err != nil {
		return nil, fmt.Errorf("failed to end group call: %w", err)
	}

	s.log.Info("group call ended by creator", zap.String("room_id", roomID))
	return s.get(ctx, roomID)
}

// ListOpen returns waiting/active rooms that still have a free slot.
func (s *Service) ListOpen(ctx context.Context, callType string, limit, offset int) ([]*domain.GroupCallSession, int64, error) {
	sessions, total, err := s.repo.ListOpen(ctx, callType, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	available := make([]*domain.GroupCallSession, 0, len(sessions))
	for _, session := range sessions {
		if session.HasFreeSlot() {
			available = append(available, session)
		}
	}
	return available, total, nil
}

// GetByRoomID fetches one session.
func (s *Service) GetByRoomID(ctx context.Context, roomID string) (*domain.GroupCallSession, error) {
	return s.get(ctx, roomID)
}

// get maps the repository's not-found into the service sentinel.
func (s *Service) get(ctx context.Context, roomID string) (*domain.GroupCallSession, error) {
	session, err := s.repo.GetByRoomID(ctx, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// AttachConnection binds a realtime connection to the user's active
// roster entry ("joined via REST, now binding realtime transport").
// The first successful attach after creation transitions the session
// waiting -> active.
func (s *Service) AttachConnection(ctx context.Context, roomID string, userID uuid.UUID, connectionID string) (*domain.GroupCallSession, error) {
	session, err := s.get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.GroupCallStatusEnded {
		// ended is terminal; attaching must never reactivate a session
		return nil, ErrSessionEnded
	}

	matched, err := s.repo.AttachParticipant(ctx, roomID, userID, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to attach connection: %w", err)
	}
	if !matched {
		return nil, ErrNotParticipant
	}

	if session.Status == domain.GroupCallStatusWaiting {
		if err := s.repo.MarkActive(ctx, roomID, time.Now()); err != nil {
			return nil, fmt.Errorf("failed to activate session: %w", err)
		}
	}

	return s.get(ctx, roomID)
}

// DetachConnection marks the user's roster entry inactive, clears the
// bound connection and finalizes the session when the active count
// drops to zero.
func (s *Service) DetachConnection(ctx context.Context, roomID string, userID uuid.UUID) (*domain.GroupCallSession, error) {
	matched, err := s.repo.DetachParticipant(ctx, roomID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to detach connection: %w", err)
	}
	if !matched {
		return nil, ErrNotParticipant
	}

	active, err := s.repo.CountActive(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to count participants: %w", err)
	}
	if active == 0 {
		if err := s.repo.MarkEnded(ctx, roomID); err != nil {
			return nil, fmt.Errorf("failed to end group call: %w", err)
		}
	}

	return s.get(ctx, roomID)
}

// FindSessionsByConnection returns open sessions holding a roster entry
// bound to the connection. Used for disconnect cleanup; in practice a
// connection is bound to at most one room.
func (s *Service) FindSessionsByConnection(ctx context.Context, connectionID string) ([]*domain.GroupCallSession, error) {
	return s.repo.FindByActiveConnection(ctx, connectionID)
}

// SetMuted persists a participant's mute flag on the roster.
func (s *Service) SetMuted(ctx context.Context, roomID string, userID uuid.UUID, isMuted bool) error {
	return s.repo.SetParticipantMuted(ctx, roomID, userID, isMuted)
}

// SetVideoOff persists a participant's video flag on the roster.
func (s *Service) SetVideoOff(ctx context.Context, roomID string, userID uuid.UUID, isVideoOff bool) error {
	return s.repo.SetParticipantVideoOff(ctx, roomID, userID, isVideoOff)
}
