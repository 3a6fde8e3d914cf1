// Package ledger is the wallet ledger: the only code allowed to change wallet
// balances. Every change is paired with a transaction record.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/errandhub/backend/internal/apperr"
	"github.com/errandhub/backend/internal/metrics"
	"github.com/errandhub/backend/internal/models"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WalletRepo is the wallet persistence the ledger needs.
type WalletRepo interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, w *models.Wallet) error
}

// TransactionRepo is the transaction-record persistence the ledger needs.
type TransactionRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Transaction, error)
	FinalizeTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Transaction, error)
}

// SettingsSource supplies the current platform settings.
type SettingsSource interface {
	Get(ctx context.Context) (*models.PlatformSettings, error)
}

type Ledger struct {
	pool     TxBeginner
	wallets  WalletRepo
	txns     TransactionRepo
	settings SettingsSource
	log      *slog.Logger
	obs      observers
}

func New(pool TxBeginner, wallets WalletRepo, txns TransactionRepo, settings SettingsSource, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{pool: pool, wallets: wallets, txns: txns, settings: settings, log: log}
}

func (l *Ledger) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func validAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", apperr.ErrInvalidAmount, amount)
	}
	return nil
}

// apply locks the wallet, lets fn mutate it, writes it back and appends rec
// (when non-nil) stamped with the resulting balance.
func (l *Ledger) apply(ctx context.Context, tx pgx.Tx, userID uuid.UUID, rec *models.Transaction, fn func(w *models.Wallet) error) (*models.Wallet, error) {
	w, err := l.wallets.GetByUserIDForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock wallet %s: %w", userID, err)
	}
	if err := fn(w); err != nil {
		return nil, err
	}
	if w.Balance < 0 || w.EscrowBalance < 0 {
		return nil, fmt.Errorf("wallet %s would go negative: %w", userID, apperr.ErrInsufficientFunds)
	}
	if err := l.wallets.UpdateTx(ctx, tx, w); err != nil {
		return nil, fmt.Errorf("update wallet %s: %w", userID, err)
	}
	if rec != nil {
		rec.ID = uuid.New()
		rec.UserID = userID
		if rec.Status == "" {
			rec.Status = models.TxStatusCompleted
		}
		bal := w.Balance
		rec.BalanceAfter = &bal
		if err := l.txns.CreateTx(ctx, tx, rec); err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.Type, err)
		}
	}
	return w, nil
}

// LockWallets takes row locks on the given users' wallets in a deterministic
// order so that multi-wallet transitions cannot deadlock. Duplicates are ignored.
func (l *Ledger) LockWallets(ctx context.Context, tx pgx.Tx, userIDs ...uuid.UUID) error {
	ids := make([]uuid.UUID, 0, len(userIDs))
	seen := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		if _, err := l.wallets.GetByUserIDForUpdate(ctx, tx, id); err != nil {
			return fmt.Errorf("lock wallet %s: %w", id, err)
		}
	}
	return nil
}

// MoveToEscrow moves amount from balance into escrow_balance. Call within a transaction.
func (l *Ledger) MoveToEscrow(ctx context.Context, tx pgx.Tx, userID, taskID uuid.UUID, amount int64) (w *models.Wallet, err error) {
	defer func() { metrics.RecordLedgerOp("move_to_escrow", err) }()
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	rec := &models.Transaction{
		TaskID:      &taskID,
		Type:        models.TxTypeEscrowHold,
		Amount:      amount,
		Description: "escrow hold for task",
	}
	return l.apply(ctx, tx, userID, rec, func(w *models.Wallet) error {
		if w.Balance < amount {
			return fmt.Errorf("hold %d with balance %d: %w", amount, w.Balance, apperr.ErrInsufficientFunds)
		}
		w.Balance -= amount
		w.EscrowBalance += amount
		return nil
	})
}

// ReleaseFromEscrow takes amount out of escrow_balance. With credit the funds
// land in balance and count as earned (task_earning); without, they leave the
// wallet and count as spent (escrow_release). Call within a transaction.
func (l *Ledger) ReleaseFromEscrow(ctx context.Context, tx pgx.Tx, userID, taskID uuid.UUID, amount int64, credit bool) (w *models.Wallet, err error) {
	defer func() { metrics.RecordLedgerOp("release_from_escrow", err) }()
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	rec := &models.Transaction{TaskID: &taskID, Amount: amount}
	if credit {
		rec.Type, rec.Description = models.TxTypeTaskEarning, "earning for completed task"
	} else {
		rec.Type, rec.Description = models.TxTypeEscrowRelease, "escrow released for completed task"
	}
	return l.apply(ctx, tx, userID, rec, func(w *models.Wallet) error {
		if w.EscrowBalance < amount {
			return fmt.Errorf("release %d with escrow %d: %w", amount, w.EscrowBalance, apperr.ErrInvalidAmount)
		}
		w.EscrowBalance -= amount
		if credit {
			w.Balance += amount
			w.TotalEarned += amount
		} else {
			w.TotalSpent += amount
		}
		return nil
	})
}

// RefundFromEscrow returns amount from escrow_balance to balance. Call within a transaction.
func (l *Ledger) RefundFromEscrow(ctx context.Context, tx pgx.Tx, userID, taskID uuid.UUID, amount int64) (w *models.Wallet, err error) {
	defer func() { metrics.RecordLedgerOp("refund_from_escrow", err) }()
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	rec := &models.Transaction{
		TaskID:      &taskID,
		Type:        models.TxTypeRefund,
		Amount:      amount,
		Description: "escrow refunded for cancelled task",
	}
	return l.apply(ctx, tx, userID, rec, func(w *models.Wallet) error {
		if w.EscrowBalance < amount {
			return fmt.Errorf("refund %d with escrow %d: %w", amount, w.EscrowBalance, apperr.ErrInvalidAmount)
		}
		w.EscrowBalance -= amount
		w.Balance += amount
		return nil
	})
}

// CreditEarning pays amount straight into a runner's balance. Call within a transaction.
func (l *Ledger) CreditEarning(ctx context.Context, tx pgx.Tx, userID, taskID uuid.UUID, amount int64) (w *models.Wallet, err error) {
	defer func() { metrics.RecordLedgerOp("credit_earning", err) }()
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	rec := &models.Transaction{
		TaskID:      &taskID,
		Type:        models.TxTypeTaskEarning,
		Amount:      amount,
		Description: "earning for completed task",
	}
	return l.apply(ctx, tx, userID, rec, func(w *models.Wallet) error {
		w.Balance += amount
		w.TotalEarned += amount
		return nil
	})
}

// CreditCommission books amount to the platform revenue wallet. Call within a transaction.
func (l *Ledger) CreditCommission(ctx context.Context, tx pgx.Tx, taskID uuid.UUID, amount int64) (w *models.Wallet, err error) {
	defer func() { metrics.RecordLedgerOp("credit_commission", err) }()
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	rec := &models.Transaction{
		TaskID:      &taskID,
		Type:        models.TxTypeCommission,
		Amount:      amount,
		Description: "platform commission",
	}
	return l.apply(ctx, tx, models.PlatformUserID, rec, func(w *models.Wallet) error {
		w.Balance += amount
		w.TotalEarned += amount
		return nil
	})
}

// Wallet returns the user's wallet.
func (l *Ledger) Wallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return l.wallets.GetByUserID(ctx, userID)
}

// Transactions lists the user's transactions, newest first.
func (l *Ledger) Transactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return l.txns.ListByUserID(ctx, userID, limit, offset)
}

func (l *Ledger) checkMaintenance(ctx context.Context) (*models.PlatformSettings, error) {
	s, err := l.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if s.MaintenanceMode {
		return nil, apperr.ErrMaintenance
	}
	return s, nil
}
