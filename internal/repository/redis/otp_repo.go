package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	otpTTL         = 5 * time.Minute
	otpMaxAttempts = 5
)

// OTPRepository stores one-time login codes in Redis. Only the bcrypt
// hash of the code is stored; attempts are capped per code.
type OTPRepository struct {
	client *redis.Client
}

// NewOTPRepository creates a new OTPRepository
func NewOTPRepository(client *redis.Client) *OTPRepository {
	return &OTPRepository{client: client}
}

// Store saves the hashed code for a phone number, replacing any prior
// code and resetting the attempt counter.
func (r *OTPRepository) Store(ctx context.Context, phone, codeHash string) error {
	key := fmt.Sprintf("otp:%s", phone)
	attemptsKey := fmt.Sprintf("otp:attempts:%s", phone)

	if err := r.client.Set(ctx, key, codeHash, otpTTL).Err(); err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}
	if err := r.client.Del(ctx, attemptsKey).Err(); err != nil {
		return fmt.Errorf("failed to reset otp attempts: %w", err)
	}

	return nil
}

// Get returns the stored hash for a phone number, or "" when none exists.
func (r *OTPRepository) Get(ctx context.Context, phone string) (string, error) {
	key := fmt.Sprintf("otp:%s", phone)

	hash, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get otp: %w", err)
	}

	return hash, nil
}

// Delete removes the code after a successful verification.
func (r *OTPRepository) Delete(ctx context.Context, phone string) error {
	key := fmt.Sprintf("otp:%s", phone)
	attemptsKey := fmt.Sprintf("otp:attempts:%s", phone)

	if err := r.client.Del(ctx, key, attemptsKey).Err(); err != nil {
		return fmt.Errorf("failed to delete otp: %w", err)
	}

	return nil
}

// RegisterAttempt counts a failed verification; returns false once the
// cap is exceeded, at which point the code is burned.
func (r *OTPRepository) RegisterAttempt(ctx context.Context, phone string) (bool, error) {
	attemptsKey := fmt.Sprintf("otp:attempts:%s", phone)

	attempts, err := r.client.Incr(ctx, attemptsKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to count otp attempt: %w", err)
	}
	if err := r.client.Expire(ctx, attemptsKey, otpTTL).Err(); err != nil {
		return false, fmt.Errorf("failed to expire otp attempts: %w", err)
	}

	if attempts >= otpMaxAttempts {
		if err := r.Delete(ctx, phone); err != nil {
			return false, err
		}
		return false, nil
	}

	return true, nil
}
