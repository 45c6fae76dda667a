package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"heartlink-backend/internal/domain"
	"heartlink-backend/pkg/jwt"
)

var (
	ErrInvalidPhone    = errors.New("invalid phone number")
	ErrInvalidOTP      = errors.New("invalid or expired code")
	ErrTooManyAttempts = errors.New("too many verification attempts")
	ErrInvalidToken    = errors.New("invalid or expired token")
)

var phonePattern = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

// OTPStore keeps hashed one-time codes with their attempt counters.
type OTPStore interface {
	Store(ctx context.Context, phone, hash string) error
	Get(ctx context.Context, phone string) (string, error)
	Delete(ctx context.Context, phone string) error
	RegisterAttempt(ctx context.Context, phone string) (bool, error)
}

// Users resolves and provisions accounts by phone number.
type Users interface {
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
}

// SMSSender delivers a one-time code to a phone number.
type SMSSender interface {
	Send(ctx context.Context, phone, code string) error
}

// TokenRevoker blacklists issued tokens until they expire naturally.
type TokenRevoker interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
}

// LoggedSMSSender writes codes to the log instead of a gateway,
// for development and test deployments.
type LoggedSMSSender struct {
	Log *zap.Logger
}

func (s *LoggedSMSSender) Send(_ context.Context, phone, code string) error {
	s.Log.Info("simulated SMS delivery",
		zap.String("phone", phone),
		zap.String("code", code))
	return nil
}

// TokenPair is the result of a successful verification or refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Service implements phone-number login with one-time codes.
type Service struct {
	otps    OTPStore
	users   Users
	sms     SMSSender
	tokens  *jwt.JWTManager
	revoker TokenRevoker
	log     *zap.Logger
}

// NewService creates an auth service. revoker may be nil; logout is
// then a no-op on the server side.
func NewService(otps OTPStore, users Users, sms SMSSender, tokens *jwt.JWTManager, revoker TokenRevoker, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{otps: otps, users: users, sms: sms, tokens: tokens, revoker: revoker, log: log}
}

// RequestOTP generates a six digit code, stores its bcrypt hash and
// hands the plaintext to the SMS sender. The response never reveals
// whether the phone belongs to an existing account.
func (s *Service) RequestOTP(ctx context.Context, phone string) error {
	if !phonePattern.MatchString(phone) {
		return ErrInvalidPhone
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash code: %w", err)
	}

	if err := s.otps.Store(ctx, phone, string(hash)); err != nil {
		return fmt.Errorf("failed to store code: %w", err)
	}

	if err := s.sms.Send(ctx, phone, code); err != nil {
		return fmt.Errorf("failed to send code: %w", err)
	}

	s.log.Info("OTP issued", zap.String("phone", phone))
	return nil
}

// VerifyOTP checks the submitted code, provisions the account on first
// login and returns a token pair.
func (s *Service) VerifyOTP(ctx context.Context, phone, code string) (*domain.User, *TokenPair, error) {
	if !phonePattern.MatchString(phone) {
		return nil, nil, ErrInvalidPhone
	}

	allowed, err := s.otps.RegisterAttempt(ctx, phone)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to register attempt: %w", err)
	}
	if !allowed {
		return nil, nil, ErrTooManyAttempts
	}

	hash, err := s.otps.Get(ctx, phone)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load code: %w", err)
	}
	if hash == "" {
		return nil, nil, ErrInvalidOTP
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
		return nil, nil, ErrInvalidOTP
	}

	// Burn the code before issuing tokens
	if err := s.otps.Delete(ctx, phone); err != nil {
		s.log.Warn("failed to delete used OTP", zap.String("phone", phone), zap.Error(err))
	}

	user, err := s.users.GetByPhone(ctx, phone)
	if errors.Is(err, domain.ErrNotFound) {
		user = &domain.User{
			UserID:   uuid.New(),
			Phone:    phone,
			Username: fmt.Sprintf("user_%s", uuid.New().String()[:8]),
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, nil, fmt.Errorf("failed to create user: %w", err)
		}
		s.log.Info("account provisioned", zap.String("user_id", user.UserID.String()))
	} else if err != nil {
		return nil, nil, fmt.Errorf("failed to load user: %w", err)
	}

	pair, err := s.issue(user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh exchanges a valid refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.ValidateToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByPhone(ctx, claims.Phone)
	if err != nil || user.UserID != userID {
		return nil, ErrInvalidToken
	}

	return s.issue(user)
}

// Logout revokes the presented access token for its remaining lifetime.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.tokens.ValidateToken(accessToken)
	if err != nil {
		return ErrInvalidToken
	}
	if s.revoker == nil {
		return nil
	}

	ttl := s.tokens.AccessTTL()
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return nil
	}

	if err := s.revoker.Revoke(ctx, accessToken, ttl); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	s.log.Info("user logged out", zap.String("user_id", claims.UserID))
	return nil
}

func (s *Service) issue(user *domain.User) (*TokenPair, error) {
	access, err := s.tokens.GenerateAccessToken(user.UserID.String(), user.Phone, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refresh, err := s.tokens.GenerateRefreshToken(user.UserID.String(), user.Phone, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
