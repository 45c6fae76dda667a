package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents a user entity in the system
// Maps to CockroachDB users table
type User struct {
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Phone     string    `json:"phone" db:"phone"`
	Username  string    `json:"username" db:"username"`
	Coins     int64     `json:"coins" db:"coins"`
	Earnings  int64     `json:"earnings" db:"earnings"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// UserResponse is the safe user representation returned to clients
type UserResponse struct {
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	Coins     int64     `json:"coins"`
	CreatedAt time.Time `json:"created_at"`
}

// ToResponse converts User to UserResponse (hides the phone number)
func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		UserID:    u.UserID,
		Username:  u.Username,
		Coins:     u.Coins,
		CreatedAt: u.CreatedAt,
	}
}
