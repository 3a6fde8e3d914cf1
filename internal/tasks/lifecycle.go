// Package tasks is the task lifecycle state machine. Each transition runs in a
// single database transaction that also moves the money held for the task.
//
//	pending -> accepted -> in_progress -> completed
//	pending | accepted | in_progress -> cancelled
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/errandhub/backend/internal/apperr"
	"github.com/errandhub/backend/internal/commission"
	"github.com/errandhub/backend/internal/jobs"
	"github.com/errandhub/backend/internal/metrics"
	"github.com/errandhub/backend/internal/models"
	"github.com/errandhub/backend/internal/repository"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type TaskRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error)
	TransitionTx(ctx context.Context, tx pgx.Tx, t *models.Task, fromStatus string) error
	List(ctx context.Context, f repository.TaskFilter) ([]*models.Task, error)
}

type ProfileRepo interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	RecordCompletionTx(ctx context.Context, tx pgx.Tx, runnerID uuid.UUID) error
}

type ReviewRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, rv *models.Review) error
}

type SettingsSource interface {
	Get(ctx context.Context) (*models.PlatformSettings, error)
}

// WalletLedger is the set of in-transaction wallet operations a transition uses.
type WalletLedger interface {
	LockWallets(ctx context.Context, tx pgx.Tx, userIDs ...uuid.UUID) error
	MoveToEscrow(ctx context.Context, tx pgx.Tx, userID, taskID uuid.UUID, amount int64) (*models.Wallet, error)
	ReleaseFromEscrow(ctx context.Context, tx pgx.Tx, userID, taskID uuid.UUID, amount int64, credit bool) (*models.Wallet, error)
	RefundFromEscrow(ctx context.Context, tx pgx.Tx, userID, taskID uuid.UUID, amount int64) (*models.Wallet, error)
	CreditEarning(ctx context.Context, tx pgx.Tx, userID, taskID uuid.UUID, amount int64) (*models.Wallet, error)
	CreditCommission(ctx context.Context, tx pgx.Tx, taskID uuid.UUID, amount int64) (*models.Wallet, error)
	Publish(wallets ...*models.Wallet)
}

type EscrowManager interface {
	Open(ctx context.Context, tx pgx.Tx, task *models.Task) (*models.Escrow, error)
	AttachRunner(ctx context.Context, tx pgx.Tx, taskID, runnerID uuid.UUID, stake int64) (*models.Escrow, error)
	Close(ctx context.Context, tx pgx.Tx, taskID uuid.UUID, outcome string) (*models.Escrow, error)
}

// Lifecycle drives task transitions.
type Lifecycle struct {
	Pool     TxBeginner
	Tasks    TaskRepo
	Profiles ProfileRepo
	Reviews  ReviewRepo
	Escrows  EscrowManager
	Ledger   WalletLedger
	Settings SettingsSource
	// Notify enqueues a notification inside the transition's transaction. Optional.
	Notify jobs.InsertTaskNotificationTxFunc
	Logger *slog.Logger
	Now    func() time.Time
}

// CreateInput is what a requester supplies to post a task.
type CreateInput struct {
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Category         string           `json:"category"`
	RewardAmount     int64            `json:"reward_amount"`
	PickupLocation   *models.Location `json:"pickup_location,omitempty"`
	DeliveryLocation *models.Location `json:"delivery_location,omitempty"`
	Deadline         *time.Time       `json:"deadline,omitempty"`
}

func (l *Lifecycle) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l *Lifecycle) now() time.Time {
	if l.Now == nil {
		return time.Now().UTC()
	}
	return l.Now().UTC()
}

// activeSettings returns settings, refusing mutations during maintenance.
func (l *Lifecycle) activeSettings(ctx context.Context) (*models.PlatformSettings, error) {
	s, err := l.Settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if s.MaintenanceMode {
		return nil, apperr.ErrMaintenance
	}
	return s, nil
}

func (l *Lifecycle) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := l.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (l *Lifecycle) notify(ctx context.Context, tx pgx.Tx, t *models.Task, event string, users ...uuid.UUID) error {
	if l.Notify == nil {
		return nil
	}
	for _, u := range users {
		args := jobs.TaskNotificationArgs{TaskID: t.ID, UserID: u, Event: event, Status: t.Status}
		if err := l.Notify(ctx, tx, args); err != nil {
			return fmt.Errorf("enqueue %s notification: %w", event, err)
		}
	}
	return nil
}

// Create posts a task and holds its full reward in the requester's escrow.
// Nothing is written when the requester cannot cover the reward.
func (l *Lifecycle) Create(ctx context.Context, requesterID uuid.UUID, in CreateInput) (task *models.Task, err error) {
	defer func() { metrics.RecordTaskTransition("create", err) }()

	s, err := l.activeSettings(ctx)
	if err != nil {
		return nil, err
	}
	if err := l.validateCreate(s, in); err != nil {
		return nil, err
	}
	split, err := commission.Calculate(in.RewardAmount, s.CommissionPercentage)
	if err != nil {
		return nil, err
	}

	task = &models.Task{
		ID:               uuid.New(),
		RequesterID:      requesterID,
		Title:            strings.TrimSpace(in.Title),
		Description:      in.Description,
		Category:         in.Category,
		Status:           models.TaskStatusPending,
		RewardAmount:     in.RewardAmount,
		CommissionAmount: split.CommissionAmount,
		RunnerAmount:     split.RunnerAmount,
		PickupLocation:   in.PickupLocation,
		DeliveryLocation: in.DeliveryLocation,
		Deadline:         in.Deadline,
	}

	var requesterWallet *models.Wallet
	err = l.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		requesterWallet, err = l.Ledger.MoveToEscrow(ctx, tx, requesterID, task.ID, task.RewardAmount)
		if err != nil {
			return err
		}
		if err := l.Tasks.CreateTx(ctx, tx, task); err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		_, err = l.Escrows.Open(ctx, tx, task)
		return err
	})
	if err != nil {
		l.logger().Warn("create task rejected", "requester_id", requesterID, "reward_amount", in.RewardAmount, "error", err)
		return nil, err
	}
	l.Ledger.Publish(requesterWallet)
	l.logger().Info("task created", "task_id", task.ID, "requester_id", requesterID,
		"reward_amount", task.RewardAmount, "commission_amount", task.CommissionAmount)
	return task, nil
}

func (l *Lifecycle) validateCreate(s *models.PlatformSettings, in CreateInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", apperr.ErrInvalidInput)
	}
	if in.RewardAmount <= 0 {
		return fmt.Errorf("%w: reward_amount must be > 0", apperr.ErrInvalidAmount)
	}
	if in.RewardAmount < s.MinimumTaskAmount || in.RewardAmount > s.MaximumTaskAmount {
		return fmt.Errorf("%w: reward_amount %d outside [%d, %d]",
			apperr.ErrInvalidAmount, in.RewardAmount, s.MinimumTaskAmount, s.MaximumTaskAmount)
	}
	if !s.AllowsCategory(in.Category) {
		return fmt.Errorf("%w: category %q not allowed", apperr.ErrInvalidInput, in.Category)
	}
	if in.Deadline != nil && !in.Deadline.After(l.now()) {
		return fmt.Errorf("%w: deadline must be in the future", apperr.ErrInvalidInput)
	}
	return nil
}

// Accept assigns runnerID to a pending task. Under the stake policy the
// runner's payout is held from their own balance until the task resolves.
// Of two racing accepts exactly one wins; the other gets ErrInvalidTransition.
func (l *Lifecycle) Accept(ctx context.Context, taskID, runnerID uuid.UUID) (task *models.Task, err error) {
	defer func() { metrics.RecordTaskTransition("accept", err) }()

	s, err := l.activeSettings(ctx)
	if err != nil {
		return nil, err
	}

	var runnerWallet *models.Wallet
	err = l.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		task, err = l.Tasks.GetByIDForUpdate(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if task.Status != models.TaskStatusPending {
			return fmt.Errorf("accept task in status %s: %w", task.Status, apperr.ErrInvalidTransition)
		}
		if runnerID == task.RequesterID {
			return fmt.Errorf("requester cannot accept own task: %w", apperr.ErrUnauthorized)
		}
		profile, err := l.Profiles.GetByUserID(ctx, runnerID)
		if err != nil {
			return fmt.Errorf("runner profile: %w", err)
		}
		if !profile.CanRun() {
			return fmt.Errorf("user %s is not a runner: %w", runnerID, apperr.ErrUnauthorized)
		}

		var stake int64
		if s.RunnerStakeRequired && task.RunnerAmount > 0 {
			stake = task.RunnerAmount
			runnerWallet, err = l.Ledger.MoveToEscrow(ctx, tx, runnerID, task.ID, stake)
			if err != nil {
				return err
			}
		}

		now := l.now()
		task.Status = models.TaskStatusAccepted
		task.RunnerID = &runnerID
		task.AcceptedAt = &now
		if err := l.Tasks.TransitionTx(ctx, tx, task, models.TaskStatusPending); err != nil {
			return err
		}
		if _, err := l.Escrows.AttachRunner(ctx, tx, task.ID, runnerID, stake); err != nil {
			return err
		}
		return l.notify(ctx, tx, task, jobs.EventTaskAccepted, task.RequesterID)
	})
	if err != nil {
		l.logger().Warn("accept task rejected", "task_id", taskID, "runner_id", runnerID, "error", err)
		return nil, err
	}
	l.Ledger.Publish(runnerWallet)
	l.logger().Info("task accepted", "task_id", taskID, "runner_id", runnerID)
	return task, nil
}

// Start marks an accepted task as in progress. Only the assigned runner may start it.
func (l *Lifecycle) Start(ctx context.Context, taskID, callerID uuid.UUID) (task *models.Task, err error) {
	defer func() { metrics.RecordTaskTransition("start", err) }()

	if _, err := l.activeSettings(ctx); err != nil {
		return nil, err
	}
	err = l.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		task, err = l.Tasks.GetByIDForUpdate(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if task.Status != models.TaskStatusAccepted {
			return fmt.Errorf("start task in status %s: %w", task.Status, apperr.ErrInvalidTransition)
		}
		if task.RunnerID == nil || *task.RunnerID != callerID {
			return fmt.Errorf("only the assigned runner can start: %w", apperr.ErrUnauthorized)
		}
		now := l.now()
		task.Status = models.TaskStatusInProgress
		task.StartedAt = &now
		if err := l.Tasks.TransitionTx(ctx, tx, task, models.TaskStatusAccepted); err != nil {
			return err
		}
		return l.notify(ctx, tx, task, jobs.EventTaskStarted, task.RequesterID)
	})
	if err != nil {
		return nil, err
	}
	l.logger().Info("task started", "task_id", taskID, "runner_id", callerID)
	return task, nil
}

// Complete settles a task in favour of the runner. Only the requester may
// complete it. The requester's hold leaves the system, the runner is paid
// and the commission goes to the platform wallet. A default review is left
// for the runner and their rating recomputed.
func (l *Lifecycle) Complete(ctx context.Context, taskID, callerID uuid.UUID) (task *models.Task, err error) {
	defer func() { metrics.RecordTaskTransition("complete", err) }()

	if _, err := l.activeSettings(ctx); err != nil {
		return nil, err
	}

	var changed []*models.Wallet
	err = l.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		task, err = l.Tasks.GetByIDForUpdate(ctx, tx, taskID)
		if err != nil {
			return err
		}
		from := task.Status
		if from != models.TaskStatusAccepted && from != models.TaskStatusInProgress {
			return fmt.Errorf("complete task in status %s: %w", from, apperr.ErrInvalidTransition)
		}
		if callerID != task.RequesterID {
			return fmt.Errorf("only the requester can complete: %w", apperr.ErrUnauthorized)
		}
		if task.RunnerID == nil {
			return fmt.Errorf("task %s has no runner: %w", task.ID, apperr.ErrInvalidTransition)
		}
		runnerID := *task.RunnerID

		e, err := l.Escrows.Close(ctx, tx, task.ID, models.EscrowStatusReleased)
		if err != nil {
			return err
		}
		if err := l.Ledger.LockWallets(ctx, tx, task.RequesterID, runnerID, models.PlatformUserID); err != nil {
			return err
		}
		changed, err = l.settleCompletion(ctx, tx, task, e)
		if err != nil {
			return err
		}

		now := l.now()
		task.Status = models.TaskStatusCompleted
		task.CompletedAt = &now
		if err := l.Tasks.TransitionTx(ctx, tx, task, from); err != nil {
			return err
		}
		review := &models.Review{
			ID:         uuid.New(),
			TaskID:     task.ID,
			ReviewerID: task.RequesterID,
			RevieweeID: runnerID,
			Rating:     models.DefaultReviewRating,
		}
		if err := l.Reviews.CreateTx(ctx, tx, review); err != nil {
			return fmt.Errorf("create review: %w", err)
		}
		if err := l.Profiles.RecordCompletionTx(ctx, tx, runnerID); err != nil {
			return fmt.Errorf("update runner rating: %w", err)
		}
		return l.notify(ctx, tx, task, jobs.EventTaskCompleted, runnerID)
	})
	if err != nil {
		l.logger().Warn("complete task rejected", "task_id", taskID, "caller_id", callerID, "error", err)
		return nil, err
	}
	l.Ledger.Publish(changed...)
	l.logger().Info("task completed", "task_id", taskID, "runner_id", *task.RunnerID,
		"runner_amount", task.RunnerAmount, "commission_amount", task.CommissionAmount)
	return task, nil
}

// settleCompletion moves the money for a completed task. When the runner
// staked their payout, the stake is released back to them as earnings;
// otherwise the payout is credited directly.
func (l *Lifecycle) settleCompletion(ctx context.Context, tx pgx.Tx, task *models.Task, e *models.Escrow) ([]*models.Wallet, error) {
	runnerID := *task.RunnerID
	var changed []*models.Wallet

	w, err := l.Ledger.ReleaseFromEscrow(ctx, tx, task.RequesterID, task.ID, e.Amount, false)
	if err != nil {
		return nil, err
	}
	changed = append(changed, w)

	switch {
	case e.RunnerStake > 0:
		w, err = l.Ledger.ReleaseFromEscrow(ctx, tx, runnerID, task.ID, e.RunnerStake, true)
	case e.RunnerAmount > 0:
		w, err = l.Ledger.CreditEarning(ctx, tx, runnerID, task.ID, e.RunnerAmount)
	default:
		w = nil
	}
	if err != nil {
		return nil, err
	}
	changed = append(changed, w)

	if e.CommissionAmount > 0 {
		w, err = l.Ledger.CreditCommission(ctx, tx, task.ID, e.CommissionAmount)
		if err != nil {
			return nil, err
		}
		changed = append(changed, w)
	}
	return changed, nil
}

// Cancel refunds every hold on the task. The requester or the assigned
// runner may cancel any non-terminal task.
func (l *Lifecycle) Cancel(ctx context.Context, taskID, callerID uuid.UUID, reason string) (task *models.Task, err error) {
	defer func() { metrics.RecordTaskTransition("cancel", err) }()

	if _, err := l.activeSettings(ctx); err != nil {
		return nil, err
	}

	var changed []*models.Wallet
	err = l.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		task, err = l.Tasks.GetByIDForUpdate(ctx, tx, taskID)
		if err != nil {
			return err
		}
		from := task.Status
		switch from {
		case models.TaskStatusPending, models.TaskStatusAccepted, models.TaskStatusInProgress:
		default:
			return fmt.Errorf("cancel task in status %s: %w", from, apperr.ErrInvalidTransition)
		}
		isRunner := task.RunnerID != nil && *task.RunnerID == callerID
		if callerID != task.RequesterID && !isRunner {
			return fmt.Errorf("only the requester or runner can cancel: %w", apperr.ErrUnauthorized)
		}

		e, err := l.Escrows.Close(ctx, tx, task.ID, models.EscrowStatusRefunded)
		if err != nil {
			return err
		}
		parties := []uuid.UUID{task.RequesterID}
		if task.RunnerID != nil {
			parties = append(parties, *task.RunnerID)
		}
		if err := l.Ledger.LockWallets(ctx, tx, parties...); err != nil {
			return err
		}

		w, err := l.Ledger.RefundFromEscrow(ctx, tx, task.RequesterID, task.ID, e.Amount)
		if err != nil {
			return err
		}
		changed = append(changed, w)
		if e.RunnerID != nil && e.RunnerStake > 0 {
			w, err = l.Ledger.RefundFromEscrow(ctx, tx, *e.RunnerID, task.ID, e.RunnerStake)
			if err != nil {
				return err
			}
			changed = append(changed, w)
		}

		now := l.now()
		task.Status = models.TaskStatusCancelled
		task.CancelledAt = &now
		if reason = strings.TrimSpace(reason); reason != "" {
			task.CancellationReason = &reason
		}
		if err := l.Tasks.TransitionTx(ctx, tx, task, from); err != nil {
			return err
		}
		return l.notify(ctx, tx, task, jobs.EventTaskCancelled, parties...)
	})
	if err != nil {
		l.logger().Warn("cancel task rejected", "task_id", taskID, "caller_id", callerID, "error", err)
		return nil, err
	}
	l.Ledger.Publish(changed...)
	l.logger().Info("task cancelled", "task_id", taskID, "caller_id", callerID)
	return task, nil
}

// Get returns one task.
func (l *Lifecycle) Get(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	return l.Tasks.GetByID(ctx, taskID)
}

// List returns tasks matching f, newest first.
func (l *Lifecycle) List(ctx context.Context, f repository.TaskFilter) ([]*models.Task, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return l.Tasks.List(ctx, f)
}
