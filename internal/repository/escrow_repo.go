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

type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

const escrowColumns = `id, task_id, requester_id, runner_id, amount, commission_amount, runner_amount, runner_stake, status, closed_at, created_at, updated_at`

func scanEscrow(row pgx.Row) (*models.Escrow, error) {
	var e models.Escrow
	err := row.Scan(&e.ID, &e.TaskID, &e.RequesterID, &e.RunnerID, &e.Amount, &e.CommissionAmount, &e.RunnerAmount, &e.RunnerStake, &e.Status, &e.ClosedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "escrow")
	}
	return &e, nil
}

// CreateTx inserts an escrow. The unique index on task_id rejects a second escrow for a task.
func (r *EscrowRepo) CreateTx(ctx context.Context, tx pgx.Tx, e *models.Escrow) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO escrows (id, task_id, requester_id, runner_id, amount, commission_amount, runner_amount, runner_stake, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, e.ID, e.TaskID, e.RequesterID, e.RunnerID, e.Amount, e.CommissionAmount, e.RunnerAmount, e.RunnerStake, e.Status).Scan(&e.CreatedAt, &e.UpdatedAt)
	return duplicate(err, "escrow")
}

func (r *EscrowRepo) GetByTaskID(ctx context.Context, taskID uuid.UUID) (*models.Escrow, error) {
	return scanEscrow(r.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE task_id = $1`, taskID))
}

// GetByTaskIDForUpdate locks the escrow row. Call within a transaction.
func (r *EscrowRepo) GetByTaskIDForUpdate(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) (*models.Escrow, error) {
	return scanEscrow(tx.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE task_id = $1 FOR UPDATE`, taskID))
}

// UpdateTx writes e only while the stored escrow is still active; otherwise it
// returns apperr.ErrAlreadyClosed.
func (r *EscrowRepo) UpdateTx(ctx context.Context, tx pgx.Tx, e *models.Escrow) error {
	err := tx.QueryRow(ctx, `
		UPDATE escrows SET runner_id = $2, runner_stake = $3, status = $4, closed_at = $5, updated_at = now()
		WHERE id = $1 AND status = 'active'
		RETURNING updated_at
	`, e.ID, e.RunnerID, e.RunnerStake, e.Status, e.ClosedAt).Scan(&e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrAlreadyClosed
	}
	return err
}
