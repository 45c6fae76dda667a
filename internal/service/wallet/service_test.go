package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"heartlink-backend/internal/domain"
)

// MockBalances is a mock implementation of UserBalances
type MockBalances struct {
	mock.Mock
}

func (m *MockBalances) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockBalances) DebitCoins(ctx context.Context, userID uuid.UUID, amount int64) (bool, error) {
	args := m.Called(ctx, userID, amount)
	return args.Bool(0), args.Error(1)
}

func (m *MockBalances) CreditEarnings(ctx context.Context, userID uuid.UUID, amount int64) error {
	args := m.Called(ctx, userID, amount)
	return args.Error(0)
}

// MockLedger is a mock implementation of Ledger
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockLedger) GetUserTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Transaction), args.Error(1)
}

// ---- ChargeGroupJoin ----

func TestChargeGroupJoin_Success(t *testing.T) {
	balances := new(MockBalances)
	ledger := new(MockLedger)
	svc := NewService(balances, ledger, nil)

	userID := uuid.New()
	balances.On("GetByID", mock.Anything, userID).Return(&domain.User{UserID: userID, Coins: 50}, nil)
	balances.On("DebitCoins", mock.Anything, userID, int64(GroupJoinCost)).Return(true, nil)
	ledger.On("CreateTransaction", mock.Anything, mock.MatchedBy(func(tx *domain.Transaction) bool {
		return tx.UserID == userID &&
			tx.Type == domain.TransactionDeduction &&
			tx.Purpose == "group_video_call" &&
			tx.Amount == int64(GroupJoinCost) &&
			tx.BalanceBefore == 50 &&
			tx.BalanceAfter == 45 &&
			tx.RoomID == "room-1"
	})).Return(nil)

	err := svc.ChargeGroupJoin(context.Background(), userID, "room-1", domain.CallTypeVideo)

	assert.NoError(t, err)
	balances.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestChargeGroupJoin_InsufficientCoins(t *testing.T) {
	balances := new(MockBalances)
	ledger := new(MockLedger)
	svc := NewService(balances, ledger, nil)

	userID := uuid.New()
	balances.On("GetByID", mock.Anything, userID).Return(&domain.User{UserID: userID, Coins: 2}, nil)
	balances.On("DebitCoins", mock.Anything, userID, int64(GroupJoinCost)).Return(false, nil)

	err := svc.ChargeGroupJoin(context.Background(), userID, "room-1", domain.CallTypeAudio)

	assert.ErrorIs(t, err, ErrInsufficientCoins)
	ledger.AssertNotCalled(t, "CreateTransaction", mock.Anything, mock.Anything)
}

// ---- OneToOneEnded ----

func TestOneToOneEnded_VideoMinuteRounding(t *testing.T) {
	balances := new(MockBalances)
	ledger := new(MockLedger)
	svc := NewService(balances, ledger, nil)

	callerID, calleeID := uuid.New(), uuid.New()

	// 61 seconds rounds up to 2 minutes: caller pays 10, callee earns 4
	balances.On("GetByID", mock.Anything, callerID).Return(&domain.User{UserID: callerID, Coins: 100}, nil)
	balances.On("DebitCoins", mock.Anything, callerID, int64(10)).Return(true, nil)
	balances.On("CreditEarnings", mock.Anything, calleeID, int64(4)).Return(nil)
	ledger.On("CreateTransaction", mock.Anything, mock.Anything).Return(nil).Twice()

	err := svc.OneToOneEnded(context.Background(), callerID, calleeID, domain.CallTypeVideo, 61)

	assert.NoError(t, err)
	balances.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestOneToOneEnded_MinimumOneMinute(t *testing.T) {
	balances := new(MockBalances)
	ledger := new(MockLedger)
	svc := NewService(balances, ledger, nil)

	callerID, calleeID := uuid.New(), uuid.New()

	// A confirmed call that lasted zero seconds still bills one minute
	balances.On("GetByID", mock.Anything, callerID).Return(&domain.User{UserID: callerID, Coins: 100}, nil)
	balances.On("DebitCoins", mock.Anything, callerID, int64(CoinsPerMinuteAudio)).Return(true, nil)
	balances.On("CreditEarnings", mock.Anything, calleeID, int64(EarnPerMinuteAudio)).Return(nil)
	ledger.On("CreateTransaction", mock.Anything, mock.Anything).Return(nil)

	err := svc.OneToOneEnded(context.Background(), callerID, calleeID, domain.CallTypeAudio, 0)

	assert.NoError(t, err)
	balances.AssertExpectations(t)
}

func TestOneToOneEnded_CallerShortfallDrainsBalance(t *testing.T) {
	balances := new(MockBalances)
	ledger := new(MockLedger)
	svc := NewService(balances, ledger, nil)

	callerID, calleeID := uuid.New(), uuid.New()

	// 10 minutes of video costs 50 but the caller only has 7 left
	balances.On("GetByID", mock.Anything, callerID).Return(&domain.User{UserID: callerID, Coins: 7}, nil)
	balances.On("DebitCoins", mock.Anything, callerID, int64(50)).Return(false, nil)
	balances.On("DebitCoins", mock.Anything, callerID, int64(7)).Return(true, nil)
	balances.On("CreditEarnings", mock.Anything, calleeID, int64(20)).Return(nil)
	ledger.On("CreateTransaction", mock.Anything, mock.MatchedBy(func(tx *domain.Transaction) bool {
		return tx.Type == domain.TransactionDeduction && tx.Amount == 7 && tx.BalanceAfter == 0
	})).Return(nil)
	ledger.On("CreateTransaction", mock.Anything, mock.MatchedBy(func(tx *domain.Transaction) bool {
		return tx.Type == domain.TransactionEarning && tx.Amount == 20
	})).Return(nil)

	err := svc.OneToOneEnded(context.Background(), callerID, calleeID, domain.CallTypeVideo, 600)

	assert.NoError(t, err)
	balances.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestOneToOneEnded_CalleeCreditedDespiteCallerFailure(t *testing.T) {
	balances := new(MockBalances)
	ledger := new(MockLedger)
	svc := NewService(balances, ledger, nil)

	callerID, calleeID := uuid.New(), uuid.New()

	balances.On("GetByID", mock.Anything, callerID).Return(nil, errors.New("db down"))
	balances.On("CreditEarnings", mock.Anything, calleeID, int64(EarnPerMinuteAudio)).Return(nil)
	ledger.On("CreateTransaction", mock.Anything, mock.MatchedBy(func(tx *domain.Transaction) bool {
		return tx.UserID == calleeID && tx.Type == domain.TransactionEarning
	})).Return(nil)

	err := svc.OneToOneEnded(context.Background(), callerID, calleeID, domain.CallTypeAudio, 30)

	assert.Error(t, err)
	balances.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

// ---- GroupEnded ----

func TestGroupEnded_CreditsCreator(t *testing.T) {
	balances := new(MockBalances)
	ledger := new(MockLedger)
	svc := NewService(balances, ledger, nil)

	creatorID := uuid.New()
	started := time.Now().Add(-3 * time.Minute)
	session := &domain.GroupCallSession{
		RoomID:    "room-1",
		CallType:  domain.CallTypeVideo,
		CreatorID: creatorID,
		Status:    domain.GroupCallStatusEnded,
		StartedAt: &started,
		Duration:  150, // rounds up to 3 minutes
	}

	balances.On("CreditEarnings", mock.Anything, creatorID, int64(6)).Return(nil)
	ledger.On("CreateTransaction", mock.Anything, mock.MatchedBy(func(tx *domain.Transaction) bool {
		return tx.UserID == creatorID &&
			tx.Purpose == "group_video_call" &&
			tx.Amount == 6 &&
			tx.RoomID == "room-1"
	})).Return(nil)

	err := svc.GroupEnded(context.Background(), session)

	assert.NoError(t, err)
	balances.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestGroupEnded_ZeroDurationSkipped(t *testing.T) {
	balances := new(MockBalances)
	ledger := new(MockLedger)
	svc := NewService(balances, ledger, nil)

	err := svc.GroupEnded(context.Background(), &domain.GroupCallSession{
		RoomID:    "room-1",
		CallType:  domain.CallTypeAudio,
		CreatorID: uuid.New(),
		Status:    domain.GroupCallStatusEnded,
	})

	assert.NoError(t, err)
	balances.AssertNotCalled(t, "CreditEarnings", mock.Anything, mock.Anything, mock.Anything)
}

// ---- GetTransactions ----

func TestGetTransactions_LimitDefaults(t *testing.T) {
	ledger := new(MockLedger)
	svc := NewService(new(MockBalances), ledger, nil)

	userID := uuid.New()
	ledger.On("GetUserTransactions", mock.Anything, userID, 20, 0).
		Return([]*domain.Transaction{}, nil)

	_, err := svc.GetTransactions(context.Background(), userID, 0, 0)

	assert.NoError(t, err)
	ledger.AssertExpectations(t)
}

func TestGetTransactions_LimitCapped(t *testing.T) {
	ledger := new(MockLedger)
	svc := NewService(new(MockBalances), ledger, nil)

	userID := uuid.New()
	ledger.On("GetUserTransactions", mock.Anything, userID, 100, 10).
		Return([]*domain.Transaction{}, nil)

	_, err := svc.GetTransactions(context.Background(), userID, 500, 10)

	assert.NoError(t, err)
	ledger.AssertExpectations(t)
}
