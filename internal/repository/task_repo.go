package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/errandhub/backend/internal/apperr"
	"github.com/errandhub/backend/internal/models"
)

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

// TaskFilter narrows List. Zero fields are ignored.
type TaskFilter struct {
	RequesterID *uuid.UUID
	RunnerID    *uuid.UUID
	Status      string
	Category    string
	Limit       int
	Offset      int
}

const taskColumns = `id, requester_id, runner_id, title, description, category, status, reward_amount, commission_amount, runner_amount,
	pickup_location, delivery_location, deadline, cancellation_reason, accepted_at, started_at, completed_at, cancelled_at, created_at, updated_at`

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.RequesterID, &t.RunnerID, &t.Title, &t.Description, &t.Category, &t.Status, &t.RewardAmount, &t.CommissionAmount, &t.RunnerAmount,
		&t.PickupLocation, &t.DeliveryLocation, &t.Deadline, &t.CancellationReason, &t.AcceptedAt, &t.StartedAt, &t.CompletedAt, &t.CancelledAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "task")
	}
	return &t, nil
}

func (r *TaskRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error {
	return tx.QueryRow(ctx, `
		INSERT INTO tasks (id, requester_id, title, description, category, status, reward_amount, commission_amount, runner_amount, pickup_location, delivery_location, deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`, t.ID, t.RequesterID, t.Title, t.Description, t.Category, t.Status, t.RewardAmount, t.CommissionAmount, t.RunnerAmount, t.PickupLocation, t.DeliveryLocation, t.Deadline).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
}

// GetByIDForUpdate locks the task row. Call within a transaction.
func (r *TaskRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error) {
	return scanTask(tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id))
}

// TransitionTx writes t's mutable fields only if the stored status still equals
// fromStatus (compare-and-swap). A lost race yields apperr.ErrInvalidTransition.
func (r *TaskRepo) TransitionTx(ctx context.Context, tx pgx.Tx, t *models.Task, fromStatus string) error {
	err := tx.QueryRow(ctx, `
		UPDATE tasks SET status = $3, runner_id = $4, cancellation_reason = $5,
			accepted_at = $6, started_at = $7, completed_at = $8, cancelled_at = $9, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING updated_at
	`, t.ID, fromStatus, t.Status, t.RunnerID, t.CancellationReason, t.AcceptedAt, t.StartedAt, t.CompletedAt, t.CancelledAt).Scan(&t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("task %s no longer %s: %w", t.ID, fromStatus, apperr.ErrInvalidTransition)
	}
	return err
}

func (r *TaskRepo) List(ctx context.Context, f TaskFilter) ([]*models.Task, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.RequesterID != nil {
		add("requester_id = $%d", *f.RequesterID)
	}
	if f.RunnerID != nil {
		add("runner_id = $%d", *f.RunnerID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	q := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}
