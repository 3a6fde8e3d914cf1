package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/errandhub/backend/internal/apperr"
	"github.com/errandhub/backend/internal/models"
)

type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

const transactionColumns = `id, user_id, task_id, type, amount, status, description, payment_method, external_ref, balance_after, created_at, updated_at`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.TaskID, &t.Type, &t.Amount, &t.Status, &t.Description, &t.PaymentMethod, &t.ExternalRef, &t.BalanceAfter, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "transaction")
	}
	return &t, nil
}

func collectTransactions(rows pgx.Rows) ([]*models.Transaction, error) {
	defer rows.Close()
	var list []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// CreateTx inserts a transaction record inside the given transaction.
func (r *TransactionRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO transactions (id, user_id, task_id, type, amount, status, description, payment_method, external_ref, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, t.ID, t.UserID, t.TaskID, t.Type, t.Amount, t.Status, t.Description, t.PaymentMethod, t.ExternalRef, t.BalanceAfter).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

// GetByIDForUpdate locks the transaction row. Call within a transaction.
func (r *TransactionRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Transaction, error) {
	return scanTransaction(tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
}

// FinalizeTx moves a pending transaction to a terminal status exactly once.
// If the row is no longer pending it returns apperr.ErrInvalidTransition.
func (r *TransactionRepo) FinalizeTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	err := tx.QueryRow(ctx, `
		UPDATE transactions SET status = $2, external_ref = $3, balance_after = $4, description = $5, updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING updated_at
	`, t.ID, t.Status, t.ExternalRef, t.BalanceAfter, t.Description).Scan(&t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrInvalidTransition
	}
	return err
}

func (r *TransactionRepo) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (r *TransactionRepo) ListByTaskID(ctx context.Context, taskID uuid.UUID) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions WHERE task_id = $1 ORDER BY created_at ASC
	`, taskID)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// ListStalePending returns pending transactions of txType created before cutoff.
func (r *TransactionRepo) ListStalePending(ctx context.Context, txType string, cutoff time.Time, limit int) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions WHERE type = $1 AND status = 'pending' AND created_at < $2
		ORDER BY created_at ASC LIMIT $3
	`, txType, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}
