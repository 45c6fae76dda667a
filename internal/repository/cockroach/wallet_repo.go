package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"heartlink-backend/internal/domain"
)

// WalletRepository appends and reads coin ledger transactions.
type WalletRepository struct {
	pool *pgxpool.Pool
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

// CreateTransaction appends one ledger entry.
func (r *WalletRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			transaction_id, user_id, type, purpose, amount,
			balance_before, balance_after, room_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		tx.TransactionID,
		tx.UserID,
		tx.Type,
		tx.Purpose,
		tx.Amount,
		tx.BalanceBefore,
		tx.BalanceAfter,
		tx.RoomID,
		tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// GetUserTransactions retrieves a user's ledger, newest first.
func (r *WalletRepository) GetUserTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	query := `
		SELECT transaction_id, user_id, type, purpose, amount,
		       balance_before, balance_after, room_id, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		tx := &domain.Transaction{}
		var roomID *string
		err := rows.Scan(
			&tx.TransactionID,
			&tx.UserID,
			&tx.Type,
			&tx.Purpose,
			&tx.Amount,
			&tx.BalanceBefore,
			&tx.BalanceAfter,
			&roomID,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if roomID != nil {
			tx.RoomID = *roomID
		}
		txs = append(txs, tx)
	}

	return txs, nil
}
