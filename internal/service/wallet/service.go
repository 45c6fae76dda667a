package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"heartlink-backend/internal/domain"
)

// ErrInsufficientCoins is returned when a debit would overdraw a balance.
var ErrInsufficientCoins = errors.New("insufficient coins")

// Per-call pricing. The wider coin economy is out of scope; these flat
// rates are what the signaling core's end-of-call report settles against.
const (
	GroupJoinCost       = 5
	CoinsPerMinuteAudio = 2
	CoinsPerMinuteVideo = 5
	EarnPerMinuteAudio  = 1
	EarnPerMinuteVideo  = 2
)

// UserBalances mutates coin and earnings balances.
type UserBalances interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	DebitCoins(ctx context.Context, userID uuid.UUID, amount int64) (bool, error)
	CreditEarnings(ctx context.Context, userID uuid.UUID, amount int64) error
}

// Ledger appends and reads transaction history.
type Ledger interface {
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	GetUserTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error)
}

// Service settles call costs against user balances and keeps the
// transaction ledger. It implements the coin charger consumed by the
// group call service and the call ledger consumed by the signaling core.
type Service struct {
	users  UserBalances
	ledger Ledger
	log    *zap.Logger
}

// NewService creates a wallet service
func NewService(users UserBalances, ledger Ledger, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{users: users, ledger: ledger, log: log}
}

// ChargeGroupJoin debits the flat join fee and records the transaction.
func (s *Service) ChargeGroupJoin(ctx context.Context, userID uuid.UUID, roomID, callType string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	ok, err := s.users.DebitCoins(ctx, userID, GroupJoinCost)
	if err != nil {
		return fmt.Errorf("failed to debit join fee: %w", err)
	}
	if !ok {
		return ErrInsufficientCoins
	}

	s.append(ctx, &domain.Transaction{
		UserID:        userID,
		Type:          domain.TransactionDeduction,
		Purpose:       fmt.Sprintf("group_%s_call", callType),
		Amount:        GroupJoinCost,
		BalanceBefore: user.Coins,
		BalanceAfter:  user.Coins - GroupJoinCost,
		RoomID:        roomID,
	})

	return nil
}

// OneToOneEnded settles a finished one-to-one call: the caller pays per
// started minute, the callee earns. The signaling core only reports
// identities and duration; pricing is decided here.
func (s *Service) OneToOneEnded(ctx context.Context, callerID, calleeID uuid.UUID, callType string, seconds int) error {
	minutes := int64((seconds + 59) / 60)
	if minutes < 1 {
		minutes = 1 // a confirmed call bills at least one minute
	}

	costRate, earnRate := int64(CoinsPerMinuteAudio), int64(EarnPerMinuteAudio)
	if callType == domain.CallTypeVideo {
		costRate, earnRate = CoinsPerMinuteVideo, EarnPerMinuteVideo
	}
	cost := minutes * costRate
	earn := minutes * earnRate

	var firstErr error

	caller, err := s.users.GetByID(ctx, callerID)
	if err != nil {
		firstErr = fmt.Errorf("failed to load caller: %w", err)
	} else {
		ok, err := s.users.DebitCoins(ctx, callerID, cost)
		switch {
		case err != nil:
			firstErr = fmt.Errorf("failed to debit caller: %w", err)
		case !ok:
			// Balance went short mid-call. Drain what is left and record
			// the shortfall; the call already happened.
			remaining := caller.Coins
			if remaining > 0 {
				if _, err := s.users.DebitCoins(ctx, callerID, remaining); err != nil {
					firstErr = fmt.Errorf("failed to drain caller balance: %w", err)
				}
			}
			s.log.Warn("caller balance short at settlement",
				zap.String("caller", callerID.String()),
				zap.Int64("cost", cost),
				zap.Int64("balance", remaining))
			cost = remaining
			fallthrough
		default:
			s.append(ctx, &domain.Transaction{
				UserID:        callerID,
				Type:          domain.TransactionDeduction,
				Purpose:       fmt.Sprintf("%s_call", callType),
				Amount:        cost,
				BalanceBefore: caller.Coins,
				BalanceAfter:  caller.Coins - cost,
			})
		}
	}

	// The callee is credited even when the caller's debit came up short.
	if err := s.users.CreditEarnings(ctx, calleeID, earn); err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("failed to credit callee: %w", err)
		}
	} else {
		s.append(ctx, &domain.Transaction{
			UserID:  calleeID,
			Type:    domain.TransactionEarning,
			Purpose: fmt.Sprintf("%s_call", callType),
			Amount:  earn,
		})
	}

	return firstErr
}

// GroupEnded settles a finished group session. Join fees were already
// collected on entry, so only the creator's time-based earnings accrue
// here.
func (s *Service) GroupEnded(ctx context.Context, session *domain.GroupCallSession) error {
	if session.Duration <= 0 {
		return nil
	}
	minutes := int64((session.Duration + 59) / 60)

	earnRate := int64(EarnPerMinuteAudio)
	if session.CallType == domain.CallTypeVideo {
		earnRate = EarnPerMinuteVideo
	}
	earn := minutes * earnRate

	if err := s.users.CreditEarnings(ctx, session.CreatorID, earn); err != nil {
		return fmt.Errorf("failed to credit creator: %w", err)
	}
	s.append(ctx, &domain.Transaction{
		UserID:  session.CreatorID,
		Type:    domain.TransactionEarning,
		Purpose: fmt.Sprintf("group_%s_call", session.CallType),
		Amount:  earn,
		RoomID:  session.RoomID,
	})

	return nil
}

// GetTransactions reads a user's ledger page.
func (s *Service) GetTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	if limit == 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.ledger.GetUserTransactions(ctx, userID, limit, offset)
}

// append writes a ledger entry; ledger failures are logged, not fatal,
// because balances have already moved.
func (s *Service) append(ctx context.Context, tx *domain.Transaction) {
	tx.TransactionID = uuid.New()
	tx.CreatedAt = time.Now()
	if err := s.ledger.CreateTransaction(ctx, tx); err != nil {
		s.log.Error("ledger append failed",
			zap.String("user_id", tx.UserID.String()),
			zap.String("purpose", tx.Purpose),
			zap.Error(err))
	}
}
