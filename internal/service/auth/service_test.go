package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"heartlink-backend/internal/domain"
	"heartlink-backend/pkg/jwt"
)

// MockOTPStore is a mock implementation of OTPStore
type MockOTPStore struct {
	mock.Mock
}

func (m *MockOTPStore) Store(ctx context.Context, phone, hash string) error {
	args := m.Called(ctx, phone, hash)
	return args.Error(0)
}

func (m *MockOTPStore) Get(ctx context.Context, phone string) (string, error) {
	args := m.Called(ctx, phone)
	return args.String(0), args.Error(1)
}

func (m *MockOTPStore) Delete(ctx context.Context, phone string) error {
	args := m.Called(ctx, phone)
	return args.Error(0)
}

func (m *MockOTPStore) RegisterAttempt(ctx context.Context, phone string) (bool, error) {
	args := m.Called(ctx, phone)
	return args.Bool(0), args.Error(1)
}

// MockUsers is a mock implementation of Users
type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUsers) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// MockSMSSender is a mock implementation of SMSSender
type MockSMSSender struct {
	mock.Mock
}

func (m *MockSMSSender) Send(ctx context.Context, phone, code string) error {
	args := m.Called(ctx, phone, code)
	return args.Error(0)
}

// MockRevoker is a mock implementation of TokenRevoker
type MockRevoker struct {
	mock.Mock
}

func (m *MockRevoker) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	args := m.Called(ctx, token, ttl)
	return args.Error(0)
}

func testTokens() *jwt.JWTManager {
	return jwt.NewJWTManager("test-secret-key-at-least-32-chars!!", 15*time.Minute, 30*24*time.Hour)
}

const testPhone = "+4915112345678"

func hashCode(t *testing.T, code string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	assert.NoError(t, err)
	return string(hash)
}

// ---- RequestOTP ----

func TestRequestOTP_Success(t *testing.T) {
	otps := new(MockOTPStore)
	sms := new(MockSMSSender)
	svc := NewService(otps, new(MockUsers), sms, testTokens(), nil, nil)

	var sentCode string
	otps.On("Store", mock.Anything, testPhone, mock.AnythingOfType("string")).Return(nil)
	sms.On("Send", mock.Anything, testPhone, mock.MatchedBy(func(code string) bool {
		sentCode = code
		return len(code) == 6
	})).Return(nil)

	err := svc.RequestOTP(context.Background(), testPhone)

	assert.NoError(t, err)
	assert.Len(t, sentCode, 6)
	otps.AssertExpectations(t)
	sms.AssertExpectations(t)
}

func TestRequestOTP_InvalidPhone(t *testing.T) {
	svc := NewService(new(MockOTPStore), new(MockUsers), new(MockSMSSender), testTokens(), nil, nil)

	for _, phone := range []string{"", "12345", "+0491511234", "not-a-phone", "+49 151 1234567"} {
		err := svc.RequestOTP(context.Background(), phone)
		assert.ErrorIs(t, err, ErrInvalidPhone, "phone %q", phone)
	}
}

func TestRequestOTP_StoreFailure(t *testing.T) {
	otps := new(MockOTPStore)
	svc := NewService(otps, new(MockUsers), new(MockSMSSender), testTokens(), nil, nil)

	otps.On("Store", mock.Anything, testPhone, mock.Anything).Return(errors.New("redis down"))

	err := svc.RequestOTP(context.Background(), testPhone)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidPhone)
}

// ---- VerifyOTP ----

func TestVerifyOTP_ExistingUser(t *testing.T) {
	otps := new(MockOTPStore)
	users := new(MockUsers)
	svc := NewService(otps, users, new(MockSMSSender), testTokens(), nil, nil)

	existing := &domain.User{UserID: uuid.New(), Phone: testPhone, Username: "alice"}

	otps.On("RegisterAttempt", mock.Anything, testPhone).Return(true, nil)
	otps.On("Get", mock.Anything, testPhone).Return(hashCode(t, "123456"), nil)
	otps.On("Delete", mock.Anything, testPhone).Return(nil)
	users.On("GetByPhone", mock.Anything, testPhone).Return(existing, nil)

	user, pair, err := svc.VerifyOTP(context.Background(), testPhone, "123456")

	assert.NoError(t, err)
	assert.Equal(t, existing.UserID, user.UserID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64((15 * time.Minute).Seconds()), pair.ExpiresIn)
	users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestVerifyOTP_ProvisionsNewUser(t *testing.T) {
	otps := new(MockOTPStore)
	users := new(MockUsers)
	svc := NewService(otps, users, new(MockSMSSender), testTokens(), nil, nil)

	otps.On("RegisterAttempt", mock.Anything, testPhone).Return(true, nil)
	otps.On("Get", mock.Anything, testPhone).Return(hashCode(t, "123456"), nil)
	otps.On("Delete", mock.Anything, testPhone).Return(nil)
	users.On("GetByPhone", mock.Anything, testPhone).Return(nil, domain.ErrNotFound)
	users.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Phone == testPhone && strings.HasPrefix(u.Username, "user_")
	})).Return(nil)

	user, pair, err := svc.VerifyOTP(context.Background(), testPhone, "123456")

	assert.NoError(t, err)
	assert.NotNil(t, user)
	assert.NotNil(t, pair)
	users.AssertExpectations(t)
}

func TestVerifyOTP_WrongCode(t *testing.T) {
	otps := new(MockOTPStore)
	svc := NewService(otps, new(MockUsers), new(MockSMSSender), testTokens(), nil, nil)

	otps.On("RegisterAttempt", mock.Anything, testPhone).Return(true, nil)
	otps.On("Get", mock.Anything, testPhone).Return(hashCode(t, "123456"), nil)

	_, _, err := svc.VerifyOTP(context.Background(), testPhone, "654321")

	assert.ErrorIs(t, err, ErrInvalidOTP)
	otps.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestVerifyOTP_NoPendingCode(t *testing.T) {
	otps := new(MockOTPStore)
	svc := NewService(otps, new(MockUsers), new(MockSMSSender), testTokens(), nil, nil)

	otps.On("RegisterAttempt", mock.Anything, testPhone).Return(true, nil)
	otps.On("Get", mock.Anything, testPhone).Return("", nil)

	_, _, err := svc.VerifyOTP(context.Background(), testPhone, "123456")
	assert.ErrorIs(t, err, ErrInvalidOTP)
}

func TestVerifyOTP_AttemptsExhausted(t *testing.T) {
	otps := new(MockOTPStore)
	svc := NewService(otps, new(MockUsers), new(MockSMSSender), testTokens(), nil, nil)

	otps.On("RegisterAttempt", mock.Anything, testPhone).Return(false, nil)

	_, _, err := svc.VerifyOTP(context.Background(), testPhone, "123456")

	assert.ErrorIs(t, err, ErrTooManyAttempts)
	otps.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

// ---- Refresh ----

func TestRefresh_Success(t *testing.T) {
	users := new(MockUsers)
	tokens := testTokens()
	svc := NewService(new(MockOTPStore), users, new(MockSMSSender), tokens, nil, nil)

	user := &domain.User{UserID: uuid.New(), Phone: testPhone, Username: "alice"}
	refresh, err := tokens.GenerateRefreshToken(user.UserID.String(), user.Phone, user.Username)
	assert.NoError(t, err)

	users.On("GetByPhone", mock.Anything, testPhone).Return(user, nil)

	pair, err := svc.Refresh(context.Background(), refresh)

	assert.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
}

func TestRefresh_InvalidToken(t *testing.T) {
	svc := NewService(new(MockOTPStore), new(MockUsers), new(MockSMSSender), testTokens(), nil, nil)

	_, err := svc.Refresh(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_UserMismatch(t *testing.T) {
	users := new(MockUsers)
	tokens := testTokens()
	svc := NewService(new(MockOTPStore), users, new(MockSMSSender), tokens, nil, nil)

	tokenUser := &domain.User{UserID: uuid.New(), Phone: testPhone}
	refresh, err := tokens.GenerateRefreshToken(tokenUser.UserID.String(), tokenUser.Phone, "")
	assert.NoError(t, err)

	// The phone now resolves to a different account
	users.On("GetByPhone", mock.Anything, testPhone).
		Return(&domain.User{UserID: uuid.New(), Phone: testPhone}, nil)

	_, err = svc.Refresh(context.Background(), refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

// ---- Logout ----

func TestLogout_RevokesRemainingLifetime(t *testing.T) {
	revoker := new(MockRevoker)
	tokens := testTokens()
	svc := NewService(new(MockOTPStore), new(MockUsers), new(MockSMSSender), tokens, revoker, nil)

	access, err := tokens.GenerateAccessToken(uuid.New().String(), testPhone, "alice")
	assert.NoError(t, err)

	revoker.On("Revoke", mock.Anything, access, mock.MatchedBy(func(ttl time.Duration) bool {
		return ttl > 0 && ttl <= 15*time.Minute
	})).Return(nil)

	assert.NoError(t, svc.Logout(context.Background(), access))
	revoker.AssertExpectations(t)
}

func TestLogout_InvalidToken(t *testing.T) {
	revoker := new(MockRevoker)
	svc := NewService(new(MockOTPStore), new(MockUsers), new(MockSMSSender), testTokens(), revoker, nil)

	err := svc.Logout(context.Background(), "not-a-token")

	assert.ErrorIs(t, err, ErrInvalidToken)
	revoker.AssertNotCalled(t, "Revoke", mock.Anything, mock.Anything, mock.Anything)
}

func TestLogout_NoRevokerConfigured(t *testing.T) {
	tokens := testTokens()
	svc := NewService(new(MockOTPStore), new(MockUsers), new(MockSMSSender), tokens, nil, nil)

	access, err := tokens.GenerateAccessToken(uuid.New().String(), testPhone, "alice")
	assert.NoError(t, err)

	assert.NoError(t, svc.Logout(context.Background(), access))
}
