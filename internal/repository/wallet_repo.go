package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/errandhub/backend/internal/apperr"
	"github.com/errandhub/backend/internal/models"
)

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletColumns = `id, user_id, balance, escrow_balance, total_earned, total_spent, version, created_at, updated_at`

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.EscrowBalance, &w.TotalEarned, &w.TotalSpent, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "wallet")
	}
	return &w, nil
}

// CreateTx inserts a zero wallet for w.UserID inside the given transaction.
func (r *WalletRepo) CreateTx(ctx context.Context, tx pgx.Tx, w *models.Wallet) error {
	return tx.QueryRow(ctx, `
		INSERT INTO wallets (id, user_id, balance, escrow_balance, total_earned, total_spent, version)
		VALUES ($1, $2, 0, 0, 0, 0, 0)
		RETURNING created_at, updated_at
	`, w.ID, w.UserID).Scan(&w.CreatedAt, &w.UpdatedAt)
}

func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return scanWallet(r.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
}

// GetByUserIDForUpdate locks the wallet row for update. Call within a transaction.
func (r *WalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	return scanWallet(tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID))
}

// UpdateTx writes all balance fields if the stored version still equals w.Version,
// then bumps w.Version. A stale version yields apperr.ErrConflict.
func (r *WalletRepo) UpdateTx(ctx context.Context, tx pgx.Tx, w *models.Wallet) error {
	err := tx.QueryRow(ctx, `
		UPDATE wallets
		SET balance = $3, escrow_balance = $4, total_earned = $5, total_spent = $6, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`, w.ID, w.Version, w.Balance, w.EscrowBalance, w.TotalEarned, w.TotalSpent).Scan(&w.Version, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrConflict
	}
	return err
}
