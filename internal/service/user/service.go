package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"heartlink-backend/internal/domain"
)

// Repository reads user accounts.
type Repository interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// PresenceReader answers whether users currently hold a live connection.
type PresenceReader interface {
	IsUserOnline(ctx context.Context, userID uuid.UUID) (bool, error)
	ListOnline(ctx context.Context) ([]uuid.UUID, error)
}

// HistoryReader loads a user's recorded call events.
type HistoryReader interface {
	GetByUser(ctx context.Context, userID uuid.UUID, bucket, limit int) ([]*domain.CallEvent, error)
}

// ErrHistoryUnavailable is returned when the deployment runs without a
// call history store.
var ErrHistoryUnavailable = errors.New("call history is not available")

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Service exposes profile, presence and call-history reads.
type Service struct {
	repo     Repository
	presence PresenceReader
	history  HistoryReader
	log      *zap.Logger
}

// NewService creates a user service. history may be nil when no call
// event store is configured.
func NewService(repo Repository, presence PresenceReader, history HistoryReader, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, presence: presence, history: history, log: log}
}

// GetProfile loads a user account.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// OnlineUser pairs a user ID with its profile when the profile loads.
type OnlineUser struct {
	UserID   uuid.UUID            `json:"userId"`
	Profile  *domain.UserResponse `json:"profile,omitempty"`
	IsOnline bool                 `json:"isOnline"`
}

// ListOnline returns the currently connected users. Profile loads are
// best-effort; a user whose row cannot be read still appears online.
func (s *Service) ListOnline(ctx context.Context) ([]OnlineUser, error) {
	ids, err := s.presence.ListOnline(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list online users: %w", err)
	}

	out := make([]OnlineUser, 0, len(ids))
	for _, id := range ids {
		entry := OnlineUser{UserID: id, IsOnline: true}
		if u, err := s.repo.GetByID(ctx, id); err == nil {
			entry.Profile = u.ToResponse()
		} else {
			s.log.Debug("profile load failed for online user",
				zap.String("user_id", id.String()), zap.Error(err))
		}
		out = append(out, entry)
	}
	return out, nil
}

// IsOnline reports whether a single user holds a live connection.
func (s *Service) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.presence.IsUserOnline(ctx, userID)
}

// History returns the user's call events for one day bucket, newest
// first. A bucket of zero or less means today.
func (s *Service) History(ctx context.Context, userID uuid.UUID, bucket, limit int) ([]*domain.CallEvent, error) {
	if s.history == nil {
		return nil, ErrHistoryUnavailable
	}
	if bucket <= 0 {
		bucket = domain.CalculateBucket(time.Now().UTC())
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	events, err := s.history.GetByUser(ctx, userID, bucket, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load call history: %w", err)
	}
	return events, nil
}
