package cockroach

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"heartlink-backend/internal/domain"
)

// UserRepository handles user data operations
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts a new user row.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (user_id, phone, username, coins, earnings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		user.UserID,
		user.Phone,
		user.Username,
		user.Coins,
		user.Earnings,
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return r.getBy(ctx, "user_id = $1", userID)
}

// GetByPhone retrieves a user by phone number
func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return r.getBy(ctx, "phone = $1", phone)
}

func (r *UserRepository) getBy(ctx context.Context, where string, arg interface{}) (*domain.User, error) {
	query := fmt.Sprintf(`
		SELECT user_id, phone, username, coins, earnings, created_at, updated_at
		FROM users
		WHERE %s
	`, where)

	user := &domain.User{}
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.UserID,
		&user.Phone,
		&user.Username,
		&user.Coins,
		&user.Earnings,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("user: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// DebitCoins atomically deducts coins from a balance; returns false when
// the balance is insufficient.
func (r *UserRepository) DebitCoins(ctx context.Context, userID uuid.UUID, amount int64) (bool, error) {
	query := `
		UPDATE users
		SET coins = coins - $2, updated_at = $3
		WHERE user_id = $1 AND coins >= $2
	`

	tag, err := r.pool.Exec(ctx, query, userID, amount, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to debit coins: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// CreditEarnings atomically adds to a user's earnings balance.
func (r *UserRepository) CreditEarnings(ctx context.Context, userID uuid.UUID, amount int64) error {
	query := `
		UPDATE users
		SET earnings = earnings + $2, updated_at = $3
		WHERE user_id = $1
	`

	_, err := r.pool.Exec(ctx, query, userID, amount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to credit earnings: %w", err)
	}

	return nil
}
