package user

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"heartlink-backend/internal/domain"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type MockPresence struct {
	mock.Mock
}

func (m *MockPresence) IsUserOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPresence) ListOnline(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) GetByUser(ctx context.Context, userID uuid.UUID, bucket, limit int) ([]*domain.CallEvent, error) {
	args := m.Called(ctx, userID, bucket, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CallEvent), args.Error(1)
}

func TestListOnline_ProfileLoadIsBestEffort(t *testing.T) {
	repo := new(MockRepository)
	presence := new(MockPresence)
	svc := NewService(repo, presence, nil, nil)

	known := uuid.New()
	unknown := uuid.New()
	presence.On("ListOnline", mock.Anything).Return([]uuid.UUID{known, unknown}, nil)
	repo.On("GetByID", mock.Anything, known).Return(&domain.User{
		UserID:   known,
		Username: "user_ab12cd34",
	}, nil)
	repo.On("GetByID", mock.Anything, unknown).Return(nil, domain.ErrNotFound)

	users, err := svc.ListOnline(context.Background())

	assert.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, "user_ab12cd34", users[0].Profile.Username)
	assert.Nil(t, users[1].Profile)
	assert.True(t, users[1].IsOnline)
}

func TestHistory_DefaultsBucketAndLimit(t *testing.T) {
	repo := new(MockRepository)
	presence := new(MockPresence)
	history := new(MockHistory)
	svc := NewService(repo, presence, history, nil)

	userID := uuid.New()
	today := domain.CalculateBucket(time.Now().UTC())
	history.On("GetByUser", mock.Anything, userID, today, 20).
		Return([]*domain.CallEvent{{UserID: userID, Kind: domain.CallEventEnded}}, nil)

	events, err := svc.History(context.Background(), userID, 0, 0)

	assert.NoError(t, err)
	assert.Len(t, events, 1)
	history.AssertExpectations(t)
}

func TestHistory_LimitCapped(t *testing.T) {
	repo := new(MockRepository)
	presence := new(MockPresence)
	history := new(MockHistory)
	svc := NewService(repo, presence, history, nil)

	userID := uuid.New()
	history.On("GetByUser", mock.Anything, userID, 20500, 100).
		Return([]*domain.CallEvent{}, nil)

	_, err := svc.History(context.Background(), userID, 20500, 500)

	assert.NoError(t, err)
	history.AssertExpectations(t)
}

func TestHistory_UnavailableWithoutStore(t *testing.T) {
	repo := new(MockRepository)
	presence := new(MockPresence)
	svc := NewService(repo, presence, nil, nil)

	_, err := svc.History(context.Background(), uuid.New(), 0, 0)

	assert.ErrorIs(t, err, ErrHistoryUnavailable)
}
