package domain

import (
	"time"

	"github.com/google/uuid"
)

// Transaction types
const (
	TransactionDeduction = "deduction"
	TransactionEarning   = "earning"
)

// Transaction is one entry in a user's coin ledger.
type Transaction struct {
	TransactionID uuid.UUID `json:"transaction_id" db:"transaction_id"`
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	Type          string    `json:"type" db:"type"` // deduction, earning
	Purpose       string    `json:"purpose" db:"purpose"`
	Amount        int64     `json:"amount" db:"amount"`
	BalanceBefore int64     `json:"balance_before" db:"balance_before"`
	BalanceAfter  int64     `json:"balance_after" db:"balance_after"`
	RoomID        string    `json:"room_id,omitempty" db:"room_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
