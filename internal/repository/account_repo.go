package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/errandhub/backend/internal/models"
)

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

// CreateTx inserts a. A taken email yields apperr.ErrConflict.
func (r *AccountRepo) CreateTx(ctx context.Context, tx pgx.Tx, a *models.Account) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO accounts (id, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, a.ID, a.Email, a.PasswordHash).Scan(&a.CreatedAt)
	return duplicate(err, "account")
}

// GetByEmail returns apperr.ErrNotFound when no account uses email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at FROM accounts WHERE email = $1
	`, email).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		return nil, notFound(err, "account")
	}
	return &a, nil
}
