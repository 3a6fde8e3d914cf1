// Package escrow tracks the one escrow record each task owns. It never moves
// money; the wallet ledger does that under the same database transaction.
package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/errandhub/backend/internal/apperr"
	"github.com/errandhub/backend/internal/models"
)

// Repo is the minimal escrow persistence the manager needs.
type Repo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, e *models.Escrow) error
	GetByTaskID(ctx context.Context, taskID uuid.UUID) (*models.Escrow, error)
	GetByTaskIDForUpdate(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) (*models.Escrow, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, e *models.Escrow) error
}

type Manager struct {
	Repo Repo
	Now  func() time.Time
}

func NewManager(repo Repo) *Manager {
	return &Manager{Repo: repo, Now: time.Now}
}

// Open creates the active escrow for a freshly created task. Call within a transaction.
func (m *Manager) Open(ctx context.Context, tx pgx.Tx, task *models.Task) (*models.Escrow, error) {
	if task.RewardAmount <= 0 || task.CommissionAmount+task.RunnerAmount != task.RewardAmount {
		return nil, fmt.Errorf("%w: reward %d != commission %d + runner %d",
			apperr.ErrInvalidAmount, task.RewardAmount, task.CommissionAmount, task.RunnerAmount)
	}
	e := &models.Escrow{
		ID:               uuid.New(),
		TaskID:           task.ID,
		RequesterID:      task.RequesterID,
		Amount:           task.RewardAmount,
		CommissionAmount: task.CommissionAmount,
		RunnerAmount:     task.RunnerAmount,
		Status:           models.EscrowStatusActive,
	}
	if err := m.Repo.CreateTx(ctx, tx, e); err != nil {
		return nil, fmt.Errorf("open escrow for task %s: %w", task.ID, err)
	}
	return e, nil
}

// AttachRunner records the runner and the stake held from their wallet. A
// runner is attached at most once. Call within a transaction.
func (m *Manager) AttachRunner(ctx context.Context, tx pgx.Tx, taskID, runnerID uuid.UUID, stake int64) (*models.Escrow, error) {
	if stake < 0 {
		return nil, fmt.Errorf("%w: stake %d", apperr.ErrInvalidAmount, stake)
	}
	e, err := m.active(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	if e.RunnerID != nil {
		return nil, fmt.Errorf("escrow for task %s already has runner %s: %w", taskID, *e.RunnerID, apperr.ErrInvalidTransition)
	}
	e.RunnerID = &runnerID
	e.RunnerStake = stake
	if err := m.Repo.UpdateTx(ctx, tx, e); err != nil {
		return nil, fmt.Errorf("attach runner to escrow %s: %w", e.ID, err)
	}
	return e, nil
}

// Close moves the escrow to released or refunded. Closing a closed escrow
// fails with apperr.ErrAlreadyClosed. Call within a transaction.
func (m *Manager) Close(ctx context.Context, tx pgx.Tx, taskID uuid.UUID, outcome string) (*models.Escrow, error) {
	if outcome != models.EscrowStatusReleased && outcome != models.EscrowStatusRefunded {
		return nil, fmt.Errorf("%w: escrow outcome %q", apperr.ErrInvalidInput, outcome)
	}
	e, err := m.active(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	now := m.Now().UTC()
	e.Status = outcome
	e.ClosedAt = &now
	if err := m.Repo.UpdateTx(ctx, tx, e); err != nil {
		return nil, fmt.Errorf("close escrow %s: %w", e.ID, err)
	}
	return e, nil
}

func (m *Manager) Get(ctx context.Context, taskID uuid.UUID) (*models.Escrow, error) {
	return m.Repo.GetByTaskID(ctx, taskID)
}

func (m *Manager) active(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) (*models.Escrow, error) {
	e, err := m.Repo.GetByTaskIDForUpdate(ctx, tx, taskID)
	if err != nil {
		return nil, fmt.Errorf("escrow for task %s: %w", taskID, err)
	}
	if e.Status != models.EscrowStatusActive {
		return nil, fmt.Errorf("escrow for task %s is %s: %w", taskID, e.Status, apperr.ErrAlreadyClosed)
	}
	return e, nil
}
