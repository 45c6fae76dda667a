package groupcall

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"heartlink-backend/internal/domain"
)

// MockRepository is a mock implementation of Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, session *domain.GroupCallSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockRepository) GetByRoomID(ctx context.Context, roomID string) (*domain.GroupCallSession, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GroupCallSession), args.Error(1)
}

func (m *MockRepository) ListOpen(ctx context.Context, callType string, limit, offset int) ([]*domain.GroupCallSession, int64, error) {
	args := m.Called(ctx, callType, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*domain.GroupCallSession), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) AddParticipant(ctx context.Context, p *domain.Participant) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockRepository) AttachParticipant(ctx context.Context, roomID string, userID uuid.UUID, connectionID string) (bool, error) {
	args := m.Called(ctx, roomID, userID, connectionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) DetachParticipant(ctx context.Context, roomID string, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) DetachAllParticipants(ctx context.Context, roomID string) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

func (m *MockRepository) CountActive(ctx context.Context, roomID string) (int, error) {
	args := m.Called(ctx, roomID)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) MarkActive(ctx context.Context, roomID string, startedAt time.Time) error {
	args := m.Called(ctx, roomID, startedAt)
	return args.Error(0)
}

func (m *MockRepository) MarkEnded(ctx context.Context, roomID string) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

func (m *MockRepository) FindByActiveConnection(ctx context.Context, connectionID string) ([]*domain.GroupCallSession, error) {
	args := m.Called(ctx, connectionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.GroupCallSession), args.Error(1)
}

func (m *MockRepository) SetParticipantMuted(ctx context.Context, roomID string, userID uuid.UUID, isMuted bool) error {
	args := m.Called(ctx, roomID, userID, isMuted)
	return args.Error(0)
}

func (m *MockRepository) SetParticipantVideoOff(ctx context.Context, roomID string, userID uuid.UUID, isVideoOff bool) error {
	args := m.Called(ctx, roomID, userID, isVideoOff)
	return args.Error(0)
}

// MockCharger is a mock implementation of CoinCharger
type MockCharger struct {
	mock.Mock
}

func (m *MockCharger) ChargeGroupJoin(ctx context.Context, userID uuid.UUID, roomID, callType string) error {
	args := m.Called(ctx, userID, roomID, callType)
	return args.Error(0)
}

func waitingSession(roomID string, creatorID uuid.UUID, maxParticipants int) *domain.GroupCallSession {
	return &domain.GroupCallSession{
		RoomID:          roomID,
		CallType:        domain.CallTypeVideo,
		CreatorID:       creatorID,
		MaxParticipants: maxParticipants,
		Status:          domain.GroupCallStatusWaiting,
		CreatedAt:       time.Now(),
		Participants: []domain.Participant{{
			RoomID:   roomID,
			UserID:   creatorID,
			JoinedAt: time.Now(),
			IsActive: true,
		}},
	}
}

// ---- Create ----

func TestCreate_Success(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil, nil)
	creatorID := uuid.New()

	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.GroupCallSession")).Return(nil)

	session, err := svc.Create(context.Background(), creatorID, domain.CallTypeAudio, 0)

	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(session.RoomID, "group_audio_"))
	assert.Equal(t, DefaultMaxParticipants, session.MaxParticipants)
	assert.Equal(t, domain.GroupCallStatusWaiting, session.Status)
	assert.Len(t, session.Participants, 1)
	assert.Equal(t, creatorID, session.Participants[0].UserID)
	assert.Equal(t, session.RoomID, session.Participants[0].RoomID)
	repo.AssertExpectations(t)
}

func TestCreate_InvalidCallType(t *testing.T) {
	svc := NewService(new(MockRepository), nil, nil)

	_, err := svc.Create(context.Background(), uuid.New(), "screen-share", 0)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid call type")
}

func TestCreate_MaxParticipantsOutOfRange(t *testing.T) {
	svc := NewService(new(MockRepository), nil, nil)

	_, err := svc.Create(context.Background(), uuid.New(), domain.CallTypeVideo, 1)
	assert.Error(t, err)

	_, err = svc.Create(context.Background(), uuid.New(), domain.CallTypeVideo, MaxParticipantsCap+1)
	assert.Error(t, err)
}

func TestCreate_RepositoryError(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil, nil)

	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))

	_, err := svc.Create(context.Background(), uuid.New(), domain.CallTypeVideo, 4)
	assert.Error(t, err)
}

// ---- Join ----

func TestJoin_Success(t *testing.T) {
	repo := new(MockRepository)
	charger := new(MockCharger)
	svc := NewService(repo, charger, nil)

	creatorID, joinerID := uuid.New(), uuid.New()
	session := waitingSession("room-1", creatorID, 4)

	repo.On("GetByRoomID", mock.Anything, "room-1").Return(session, nil)
	charger.On("ChargeGroupJoin", mock.Anything, joinerID, "room-1", domain.CallTypeVideo).Return(nil)
	repo.On("AddParticipant", mock.Anything, mock.MatchedBy(func(p *domain.Participant) bool {
		return p.RoomID == "room-1" && p.UserID == joinerID && p.IsActive
	})).Return(nil)

	_, err := svc.Join(context.Background(), "room-1", joinerID)

	assert.NoError(t, err)
	repo.AssertExpectations(t)
	charger.AssertExpectations(t)
}

func TestJoin_SessionNotFound(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil, nil)

	repo.On("GetByRoomID", mock.Anything, "room-x").Return(nil, domain.ErrNotFound)

	_, err := svc.Join(context.Background(), "room-x", uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestJoin_SessionEnded(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil, nil)

	session := waitingSession("room-1", uuid.New(), 4)
	session.Status = domain.GroupCallStatusEnded
	repo.On("GetByRoomID", mock.Anything, "room-1").Return(session, nil)

	_, err := svc.Join(context.Background(), "room-1", uuid.New())
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestJoin_AlreadyInCall(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil, nil)

	creatorID := uuid.New()
	session := waitingSession("room-1", creatorID, 4)
	repo.On("GetByRoomID", mock.Anything, "room-1").Return(session, nil)

	_, err := svc.Join(context.Background(), "room-1", creatorID)
	assert.ErrorIs(t, err, ErrAlreadyInCall)
}

func TestJoin_SessionFull(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil, nil)

	session := waitingSession("room-1", uuid.New(), 2)
	session.Participants = append(session.Participants, domain.Participant{
		RoomID:   "room-1",
		UserID:   uuid.New(),
		IsActive: true,
	})
	repo.On("GetByRoomID", mock.Anything, "room-1").Return(session, nil)

	_, err := svc.Join(context.Background(), "room-1", uuid.New())
	assert.ErrorIs(t, err, ErrSessionFull)
}

func TestJoin_ChargerErrorPropagates(t *testing.T) {
	repo := new(MockRepository)
	charger := new(MockCharger)
	svc := NewService(repo, charger, nil)

	joinerID := uuid.New()
	session := waitingSession("room-1", uuid.New(), 4)
	repo.On("GetByRoomID", mock.Anything, "room-1").Return(session, nil)

	chargeErr := errors.New("insufficient coins")
	charger.On("ChargeGroupJoin", mock.Anything, joinerID, "room-1", domain.CallTypeVideo).Return(chargeErr)

	_, err := svc.Join(context.Background(), "room-1", joinerID)

	assert.ErrorIs(t, err, chargeErr)
	repo.AssertNotCalled(t, "AddParticipant", mock.Anything, mock.Anything)
}

// ---- AttachConnection ----

func TestAttachConnection_ActivatesWaitingSession(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil, nil)

	userID := uuid.New()
	session := waitingSession("room-1", userID, 4)
	repo.On("GetByRoomID", mock.Anything, "room-1").Return(session, nil)
	repo.On("AttachParticipant", mock.Anything, "room-1", userID, "conn-1").Return(true, nil)
	repo.On("MarkActive", mock.Anything, "room-1", mock.AnythingOfType("time.Time")).Return(nil)

	_, err := svc.AttachConnection(context.Background(), "room-1", userID, "conn-1")

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestAttachConnection_ActiveSessionNotReactivated(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil, nil)

	userID := uuid.New()
	session := waitingSession("room-1", userID, 4)
	session.Status = domain.GroupCallStatusActive
	repo.On("GetByRoomID", mock.Anything, "room-1").Return(session, nil)
	repo.On("AttachParticipant", mock.Anything, "room-1", userID, "conn-1").Return(true, nil)

	_, err := svc.AttachConnection(context.Background(), "room-1", userID, "conn-1")

	assert.NoError(t, err)
	repo.AssertNotCalled(t, "MarkActive", mock.Anything, mock.Anything, mock.Anything)
}

func TestAttachConnection_EndedSessionRefused(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil, nil)

	session := waitingSession("room-1", uuid.New(), 4)
	session.Status = domain.GroupCallStatusEnded
	repo.On("GetByRoomID", mock.Anything, "room-1").Return(session, nil)

	_, err := svc.AttachConnection(context.Background(), "room-1", uuid.New(), "conn-1")
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestAttachConnection_NoRosterEntry(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil, nil)

	userID := uuid.New()
	session := waitingSession("room-1", uuid.New(), 4)
	repo.On("GetByRoomID", mock.Anything, "room-1").Return(session, nil)
	repo.On("AttachParticipant", mock.Anything, "room-1", userID, "conn-1").Return(false, nil)

	_, err := svc.AttachConnection(context.Background(), "room-1", userID, "conn-1")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

// ---- DetachConnection ----

func TestDetachConnection_LastParticipantEndsSession(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil, nil)

	userID := uuid.New()
	ended := waitingSession("room-1", userID, 4)
	ended.Status = domain.GroupCallStatusEnded

	repo.On("DetachParticipant", mock.Anything, "room-1", userID).Return(true, nil)
	repo.On("CountActive", mock.Anything, "room-1").Return(0, nil)
	repo.On("MarkEnded", mock.Anything, "room-1").Return(nil)
	repo.On("GetByRoomID", mock.Anything, "room-1").Return(ended, nil)

	session, err := svc.DetachConnection(context.Background(), "room-1", userID)

	assert.NoError(t, err)
	assert.Equal(t, domain.GroupCallStatusEnded, session.Status)
	repo.AssertExpectations(t)
}

func TestDetachConnection_OthersRemain(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil, nil)

	userID := uuid.New()
	session := waitingSession("room-1", uuid.New(), 4)
	session.Status = domain.GroupCallStatusActive

	repo.On("DetachParticipant", mock.Anything, "room-1", userID).Return(true, nil)
	repo.On("CountActive", mock.Anything, "room-1").Return(2, nil)
	repo.On("GetByRoomID", mock.Anything, "room-1").Return(session, nil)

	_, err := svc.DetachConnection(context.Background(), "room-1", userID)

	assert.NoError(t, err)
	repo.AssertNotCalled(t, "MarkEnded", mock.Anything, mock.Anything)
}

func TestDetachConnection_NotParticipant(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil, nil)

	userID := uuid.New()
	repo.On("DetachParticipant", mock.Anything, "room-1", userID).Return(false, nil)

	_, err := svc.DetachConnection(context.Background(), "room-1", userID)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

// ---- End ----

func TestEnd_OnlyCreatorMayEnd(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil, nil)

	session := waitingSession("room-1", uuid.New(), 4)
	repo.On("GetByRoomID", mock.Anything, "room-1").Return(session, nil)

	_, err := svc.End(context.Background(), "room-1", uuid.New())
	assert.ErrorIs(t, err, ErrNotCreator)
}

func TestEnd_ByCreator(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil, nil)

	creatorID := uuid.New()
	session := waitingSession("room-1", creatorID, 4)
	repo.On("GetByRoomID", mock.Anything, "room-1").Return(session, nil)
	repo.On("DetachAllParticipants", mock.Anything, "room-1").Return(nil)
	repo.On("MarkEnded", mock.Anything, "room-1").Return(nil)

	_, err := svc.End(context.Background(), "room-1", creatorID)

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestEnd_AlreadyEnded(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil, nil)

	session := waitingSession("room-1", uuid.New(), 4)
	session.Status = domain.GroupCallStatusEnded
	repo.On("GetByRoomID", mock.Anything, "room-1").Return(session, nil)

	_, err := svc.End(context.Background(), "room-1", session.CreatorID)
	assert.ErrorIs(t, err, ErrSessionEnded)
}

// ---- ListOpen ----

func TestListOpen_FiltersFullRooms(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil, nil)

	open := waitingSession("room-open", uuid.New(), 4)
	full := waitingSession("room-full", uuid.New(), 1)

	repo.On("ListOpen", mock.Anything, domain.CallTypeVideo, 10, 0).
		Return([]*domain.GroupCallSession{open, full}, int64(2), nil)

	sessions, total, err := svc.ListOpen(context.Background(), domain.CallTypeVideo, 10, 0)

	assert.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, sessions, 1)
	assert.Equal(t, "room-open", sessions[0].RoomID)
}
