package testkit

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/errandhub/backend/internal/apperr"
	"github.com/errandhub/backend/internal/models"
	"github.com/errandhub/backend/internal/repository"
)

func notFound(entity string) error {
	return fmt.Errorf("%s: %w", entity, apperr.ErrNotFound)
}

// --- accounts ---

type AccountRepo struct{ s *Store }

func (r *AccountRepo) CreateTx(_ context.Context, _ pgx.Tx, a *models.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("accounts.CreateTx"); err != nil {
		return err
	}
	for _, existing := range r.s.data.accounts {
		if existing.Email == a.Email {
			return fmt.Errorf("account already exists: %w", apperr.ErrConflict)
		}
	}
	a.CreatedAt = r.s.Now()
	r.s.data.accounts[a.ID] = *a
	return nil
}

func (r *AccountRepo) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.data.accounts {
		if a.Email == email {
			return &a, nil
		}
	}
	return nil, notFound("account")
}

// --- wallets ---

type WalletRepo struct{ s *Store }

func (r *WalletRepo) CreateTx(_ context.Context, _ pgx.Tx, w *models.Wallet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("wallets.CreateTx"); err != nil {
		return err
	}
	if _, ok := r.s.data.wallets[w.UserID]; ok {
		return fmt.Errorf("wallet already exists: %w", apperr.ErrConflict)
	}
	now := r.s.Now()
	w.Balance, w.EscrowBalance, w.TotalEarned, w.TotalSpent, w.Version = 0, 0, 0, 0, 0
	w.CreatedAt, w.UpdatedAt = now, now
	r.s.data.wallets[w.UserID] = *w
	return nil
}

func (r *WalletRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.data.wallets[userID]
	if !ok {
		return nil, notFound("wallet")
	}
	return &w, nil
}

func (r *WalletRepo) GetByUserIDForUpdate(ctx context.Context, _ pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	return r.GetByUserID(ctx, userID)
}

func (r *WalletRepo) UpdateTx(_ context.Context, _ pgx.Tx, w *models.Wallet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("wallets.UpdateTx"); err != nil {
		return err
	}
	cur, ok := r.s.data.wallets[w.UserID]
	if !ok || cur.Version != w.Version {
		return apperr.ErrConflict
	}
	if w.Balance < 0 || w.EscrowBalance < 0 || w.TotalEarned < 0 || w.TotalSpent < 0 {
		return fmt.Errorf("wallets check constraint violated for %s", w.UserID)
	}
	w.Version++
	w.UpdatedAt = r.s.Now()
	r.s.data.wallets[w.UserID] = *w
	return nil
}

// --- transactions ---

type TransactionRepo struct{ s *Store }

func (r *TransactionRepo) CreateTx(_ context.Context, _ pgx.Tx, t *models.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("transactions.CreateTx"); err != nil {
		return err
	}
	if t.Amount <= 0 {
		return fmt.Errorf("transactions check constraint violated: amount %d", t.Amount)
	}
	now := r.s.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	r.s.data.transactions[t.ID] = *t
	r.s.data.txOrder = append(r.s.data.txOrder, t.ID)
	return nil
}

func (r *TransactionRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.data.transactions[id]
	if !ok {
		return nil, notFound("transaction")
	}
	return &t, nil
}

func (r *TransactionRepo) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Transaction, error) {
	return r.GetByID(ctx, id)
}

func (r *TransactionRepo) FinalizeTx(_ context.Context, _ pgx.Tx, t *models.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("transactions.FinalizeTx"); err != nil {
		return err
	}
	cur, ok := r.s.data.transactions[t.ID]
	if !ok || cur.Status != models.TxStatusPending {
		return apperr.ErrInvalidTransition
	}
	cur.Status = t.Status
	cur.ExternalRef = t.ExternalRef
	cur.BalanceAfter = t.BalanceAfter
	cur.Description = t.Description
	cur.UpdatedAt = r.s.Now()
	t.UpdatedAt = cur.UpdatedAt
	r.s.data.transactions[t.ID] = cur
	return nil
}

// ListByUserID returns newest first.
func (r *TransactionRepo) ListByUserID(_ context.Context, userID uuid.UUID, limit, offset int) ([]*models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Transaction
	for _, id := range slices.Backward(r.s.data.txOrder) {
		if t := r.s.data.transactions[id]; t.UserID == userID {
			out = append(out, &t)
		}
	}
	return page(out, limit, offset), nil
}

func (r *TransactionRepo) ListByTaskID(_ context.Context, taskID uuid.UUID) ([]*models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Transaction
	for _, id := range r.s.data.txOrder {
		if t := r.s.data.transactions[id]; t.TaskID != nil && *t.TaskID == taskID {
			out = append(out, &t)
		}
	}
	return out, nil
}

func (r *TransactionRepo) ListStalePending(_ context.Context, txType string, cutoff time.Time, limit int) ([]*models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Transaction
	for _, id := range r.s.data.txOrder {
		t := r.s.data.transactions[id]
		if t.Type == txType && t.Status == models.TxStatusPending && t.CreatedAt.Before(cutoff) {
			out = append(out, &t)
		}
	}
	return page(out, limit, 0), nil
}

// SetCreatedAt backdates a transaction, for exercising the stale sweep.
func (r *TransactionRepo) SetCreatedAt(id uuid.UUID, at time.Time) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t, ok := r.s.data.transactions[id]; ok {
		t.CreatedAt = at
		r.s.data.transactions[id] = t
	}
}

// --- tasks ---

type TaskRepo struct{ s *Store }

func (r *TaskRepo) CreateTx(_ context.Context, _ pgx.Tx, t *models.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("tasks.CreateTx"); err != nil {
		return err
	}
	if t.RewardAmount != t.CommissionAmount+t.RunnerAmount {
		return fmt.Errorf("tasks check constraint violated: reward split")
	}
	now := r.s.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	r.s.data.tasks[t.ID] = *t
	r.s.data.taskOrder = append(r.s.data.taskOrder, t.ID)
	return nil
}

func (r *TaskRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.data.tasks[id]
	if !ok {
		return nil, notFound("task")
	}
	return &t, nil
}

func (r *TaskRepo) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Task, error) {
	return r.GetByID(ctx, id)
}

func (r *TaskRepo) TransitionTx(_ context.Context, _ pgx.Tx, t *models.Task, fromStatus string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("tasks.TransitionTx"); err != nil {
		return err
	}
	cur, ok := r.s.data.tasks[t.ID]
	if !ok || cur.Status != fromStatus {
		return fmt.Errorf("task %s no longer %s: %w", t.ID, fromStatus, apperr.ErrInvalidTransition)
	}
	cur.Status = t.Status
	cur.RunnerID = t.RunnerID
	cur.CancellationReason = t.CancellationReason
	cur.AcceptedAt, cur.StartedAt, cur.CompletedAt, cur.CancelledAt = t.AcceptedAt, t.StartedAt, t.CompletedAt, t.CancelledAt
	cur.UpdatedAt = r.s.Now()
	t.UpdatedAt = cur.UpdatedAt
	r.s.data.tasks[t.ID] = cur
	return nil
}

// List returns newest first.
func (r *TaskRepo) List(_ context.Context, f repository.TaskFilter) ([]*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Task
	for _, id := range slices.Backward(r.s.data.taskOrder) {
		t := r.s.data.tasks[id]
		switch {
		case f.RequesterID != nil && t.RequesterID != *f.RequesterID,
			f.RunnerID != nil && (t.RunnerID == nil || *t.RunnerID != *f.RunnerID),
			f.Status != "" && t.Status != f.Status,
			f.Category != "" && t.Category != f.Category:
			continue
		}
		out = append(out, &t)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	return page(out, limit, f.Offset), nil
}

// --- escrows ---

type EscrowRepo struct{ s *Store }

func (r *EscrowRepo) CreateTx(_ context.Context, _ pgx.Tx, e *models.Escrow) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("escrows.CreateTx"); err != nil {
		return err
	}
	if _, ok := r.s.data.escrows[e.TaskID]; ok {
		return fmt.Errorf("escrow already exists: %w", apperr.ErrConflict)
	}
	now := r.s.Now()
	e.CreatedAt, e.UpdatedAt = now, now
	r.s.data.escrows[e.TaskID] = *e
	return nil
}

func (r *EscrowRepo) GetByTaskID(_ context.Context, taskID uuid.UUID) (*models.Escrow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.data.escrows[taskID]
	if !ok {
		return nil, notFound("escrow")
	}
	return &e, nil
}

func (r *EscrowRepo) GetByTaskIDForUpdate(ctx context.Context, _ pgx.Tx, taskID uuid.UUID) (*models.Escrow, error) {
	return r.GetByTaskID(ctx, taskID)
}

func (r *EscrowRepo) UpdateTx(_ context.Context, _ pgx.Tx, e *models.Escrow) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("escrows.UpdateTx"); err != nil {
		return err
	}
	cur, ok := r.s.data.escrows[e.TaskID]
	if !ok || cur.Status != models.EscrowStatusActive {
		return apperr.ErrAlreadyClosed
	}
	cur.RunnerID, cur.RunnerStake, cur.Status, cur.ClosedAt = e.RunnerID, e.RunnerStake, e.Status, e.ClosedAt
	cur.UpdatedAt = r.s.Now()
	e.UpdatedAt = cur.UpdatedAt
	r.s.data.escrows[e.TaskID] = cur
	return nil
}

// --- profiles ---

type ProfileRepo struct{ s *Store }

func (r *ProfileRepo) CreateTx(_ context.Context, _ pgx.Tx, p *models.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("profiles.CreateTx"); err != nil {
		return err
	}
	now := r.s.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	r.s.data.profiles[p.UserID] = *p
	return nil
}

func (r *ProfileRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*models.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.data.profiles[userID]
	if !ok {
		return nil, notFound("profile")
	}
	return &p, nil
}

func (r *ProfileRepo) UpdateRole(_ context.Context, userID uuid.UUID, role string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.data.profiles[userID]
	if !ok {
		return notFound("profile")
	}
	p.Role = role
	p.UpdatedAt = r.s.Now()
	r.s.data.profiles[userID] = p
	return nil
}

func (r *ProfileRepo) RecordCompletionTx(_ context.Context, _ pgx.Tx, runnerID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("profiles.RecordCompletionTx"); err != nil {
		return err
	}
	p, ok := r.s.data.profiles[runnerID]
	if !ok {
		return nil
	}
	var sum, n int
	for _, rv := range r.s.data.reviews {
		if rv.RevieweeID == runnerID {
			sum += rv.Rating
			n++
		}
	}
	p.Rating = 0
	if n > 0 {
		p.Rating = float64(sum) / float64(n)
	}
	p.ReviewCount = n
	p.CompletedTasks++
	p.UpdatedAt = r.s.Now()
	r.s.data.profiles[runnerID] = p
	return nil
}

// --- reviews ---

type ReviewRepo struct{ s *Store }

func (r *ReviewRepo) CreateTx(_ context.Context, _ pgx.Tx, rv *models.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("reviews.CreateTx"); err != nil {
		return err
	}
	for _, existing := range r.s.data.reviews {
		if existing.TaskID == rv.TaskID {
			return fmt.Errorf("review already exists: %w", apperr.ErrConflict)
		}
	}
	rv.CreatedAt = r.s.Now()
	r.s.data.reviews[rv.ID] = *rv
	return nil
}

// --- settings ---

type SettingsRepo struct{ s *Store }

func (r *SettingsRepo) Get(_ context.Context) (*models.PlatformSettings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.data.settings == nil {
		return nil, notFound("platform settings")
	}
	cp := *r.s.data.settings
	return &cp, nil
}

func (r *SettingsRepo) Upsert(_ context.Context, ps *models.PlatformSettings) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ps.UpdatedAt = r.s.Now()
	cp := *ps
	r.s.data.settings = &cp
	return nil
}

func page[T any](list []T, limit, offset int) []T {
	if offset >= len(list) {
		return nil
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}
