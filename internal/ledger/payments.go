package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/errandhub/backend/internal/apperr"
	"github.com/errandhub/backend/internal/metrics"
	"github.com/errandhub/backend/internal/models"
)

// BankDetails identifies the payout destination of a withdrawal.
type BankDetails struct {
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

func (b BankDetails) validate() error {
	if strings.TrimSpace(b.BankName) == "" || strings.TrimSpace(b.AccountNumber) == "" || strings.TrimSpace(b.AccountName) == "" {
		return fmt.Errorf("%w: bank_name, account_number and account_name are required", apperr.ErrInvalidInput)
	}
	return nil
}

// masked keeps only the last four digits of the account number.
func (b BankDetails) masked() string {
	n := b.AccountNumber
	if len(n) > 4 {
		n = strings.Repeat("*", len(n)-4) + n[len(n)-4:]
	}
	return b.BankName + " " + n
}

// Deposit adds funds to the user's wallet. The internal method settles at once
// and is for in-process callers only; payment.Intake never passes it. Any other
// method must be allowed by the platform settings and returns a pending
// transaction that CompleteDeposit or FailDeposit finishes when the gateway
// reports back.
func (l *Ledger) Deposit(ctx context.Context, userID uuid.UUID, amount int64, method string) (*models.Transaction, error) {
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	if method == "" {
		method = models.PaymentMethodInternal
	}
	s, err := l.checkMaintenance(ctx)
	if err != nil {
		return nil, err
	}
	if method != models.PaymentMethodInternal && !s.AllowsPaymentMethod(method) {
		return nil, fmt.Errorf("%w: payment method %q not allowed", apperr.ErrInvalidInput, method)
	}

	rec := &models.Transaction{
		Type:          models.TxTypeDeposit,
		Amount:        amount,
		Description:   "wallet top-up",
		PaymentMethod: method,
	}
	var w *models.Wallet
	err = l.inTx(ctx, func(tx pgx.Tx) error {
		if method != models.PaymentMethodInternal {
			if _, err := l.wallets.GetByUserIDForUpdate(ctx, tx, userID); err != nil {
				return fmt.Errorf("lock wallet %s: %w", userID, err)
			}
			rec.ID = uuid.New()
			rec.UserID = userID
			rec.Status = models.TxStatusPending
			return l.txns.CreateTx(ctx, tx, rec)
		}
		var err error
		w, err = l.apply(ctx, tx, userID, rec, func(w *models.Wallet) error {
			w.Balance += amount
			return nil
		})
		return err
	})
	metrics.RecordLedgerOp("deposit", err)
	if err != nil {
		return nil, err
	}
	if w != nil {
		metrics.RecordDeposit(method, rec.Status)
		l.Publish(w)
	}
	l.log.Info("deposit created", "user_id", userID, "transaction_id", rec.ID, "amount", amount, "method", method, "status", rec.Status)
	return rec, nil
}

// CompleteDeposit credits a pending deposit once the gateway confirms it. If the
// confirmed amount differs from the requested one the deposit is failed and
// apperr.ErrExternalPaymentFailed is returned alongside the failed record.
func (l *Ledger) CompleteDeposit(ctx context.Context, txID uuid.UUID, externalRef string, amount int64) (*models.Transaction, error) {
	var (
		rec      *models.Transaction
		w        *models.Wallet
		mismatch bool
	)
	err := l.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		rec, err = l.pendingOfType(ctx, tx, txID, models.TxTypeDeposit)
		if err != nil {
			return err
		}
		if externalRef != "" {
			rec.ExternalRef = &externalRef
		}
		if amount != rec.Amount {
			mismatch = true
			rec.Status = models.TxStatusFailed
			rec.Description = fmt.Sprintf("gateway confirmed %d, expected %d", amount, rec.Amount)
			return l.txns.FinalizeTx(ctx, tx, rec)
		}
		w, err = l.apply(ctx, tx, rec.UserID, nil, func(w *models.Wallet) error {
			w.Balance += rec.Amount
			return nil
		})
		if err != nil {
			return err
		}
		bal := w.Balance
		rec.Status = models.TxStatusCompleted
		rec.BalanceAfter = &bal
		return l.txns.FinalizeTx(ctx, tx, rec)
	})
	metrics.RecordLedgerOp("complete_deposit", err)
	if err != nil {
		return nil, err
	}
	metrics.RecordDeposit(rec.PaymentMethod, rec.Status)
	if mismatch {
		l.log.Warn("deposit amount mismatch", "transaction_id", txID, "confirmed", amount, "expected", rec.Amount)
		return rec, fmt.Errorf("deposit %s: %w", txID, apperr.ErrExternalPaymentFailed)
	}
	l.Publish(w)
	l.log.Info("deposit completed", "user_id", rec.UserID, "transaction_id", txID, "amount", rec.Amount)
	return rec, nil
}

// FailDeposit marks a pending deposit failed. The wallet is untouched.
func (l *Ledger) FailDeposit(ctx context.Context, txID uuid.UUID, reason string) (*models.Transaction, error) {
	var rec *models.Transaction
	err := l.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		rec, err = l.pendingOfType(ctx, tx, txID, models.TxTypeDeposit)
		if err != nil {
			return err
		}
		rec.Status = models.TxStatusFailed
		if reason != "" {
			rec.Description = reason
		}
		return l.txns.FinalizeTx(ctx, tx, rec)
	})
	metrics.RecordLedgerOp("fail_deposit", err)
	if err != nil {
		return nil, err
	}
	metrics.RecordDeposit(rec.PaymentMethod, rec.Status)
	l.log.Info("deposit failed", "user_id", rec.UserID, "transaction_id", txID, "reason", reason)
	return rec, nil
}

// Withdraw debits balance right away and records a pending withdrawal that the
// payout provider later confirms or rejects.
func (l *Ledger) Withdraw(ctx context.Context, userID uuid.UUID, amount int64, bank BankDetails) (*models.Transaction, error) {
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	if err := bank.validate(); err != nil {
		return nil, err
	}
	if _, err := l.checkMaintenance(ctx); err != nil {
		return nil, err
	}
	rec := &models.Transaction{
		Type:          models.TxTypeWithdrawal,
		Amount:        amount,
		Status:        models.TxStatusPending,
		Description:   "withdrawal to " + bank.masked(),
		PaymentMethod: "bank_transfer",
	}
	var w *models.Wallet
	err := l.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		w, err = l.apply(ctx, tx, userID, rec, func(w *models.Wallet) error {
			if w.Balance < amount {
				return fmt.Errorf("withdraw %d with balance %d: %w", amount, w.Balance, apperr.ErrInsufficientFunds)
			}
			w.Balance -= amount
			return nil
		})
		return err
	})
	metrics.RecordLedgerOp("withdraw", err)
	if err != nil {
		return nil, err
	}
	l.Publish(w)
	l.log.Info("withdrawal requested", "user_id", userID, "transaction_id", rec.ID, "amount", amount)
	return rec, nil
}

// CompleteWithdrawal marks a pending withdrawal paid out.
func (l *Ledger) CompleteWithdrawal(ctx context.Context, txID uuid.UUID, externalRef string) (*models.Transaction, error) {
	var rec *models.Transaction
	err := l.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		rec, err = l.pendingOfType(ctx, tx, txID, models.TxTypeWithdrawal)
		if err != nil {
			return err
		}
		rec.Status = models.TxStatusCompleted
		if externalRef != "" {
			rec.ExternalRef = &externalRef
		}
		return l.txns.FinalizeTx(ctx, tx, rec)
	})
	metrics.RecordLedgerOp("complete_withdrawal", err)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// FailWithdrawal marks a pending withdrawal failed and puts the funds back.
func (l *Ledger) FailWithdrawal(ctx context.Context, txID uuid.UUID, reason string) (*models.Transaction, error) {
	var (
		rec *models.Transaction
		w   *models.Wallet
	)
	err := l.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		rec, err = l.pendingOfType(ctx, tx, txID, models.TxTypeWithdrawal)
		if err != nil {
			return err
		}
		w, err = l.apply(ctx, tx, rec.UserID, nil, func(w *models.Wallet) error {
			w.Balance += rec.Amount
			return nil
		})
		if err != nil {
			return err
		}
		bal := w.Balance
		rec.Status = models.TxStatusFailed
		rec.BalanceAfter = &bal
		if reason != "" {
			rec.Description = reason
		}
		return l.txns.FinalizeTx(ctx, tx, rec)
	})
	metrics.RecordLedgerOp("fail_withdrawal", err)
	if err != nil {
		return nil, err
	}
	l.Publish(w)
	l.log.Info("withdrawal failed", "user_id", rec.UserID, "transaction_id", txID, "reason", reason)
	return rec, nil
}

func (l *Ledger) pendingOfType(ctx context.Context, tx pgx.Tx, txID uuid.UUID, txType string) (*models.Transaction, error) {
	rec, err := l.txns.GetByIDForUpdate(ctx, tx, txID)
	if err != nil {
		return nil, err
	}
	if rec.Type != txType {
		return nil, fmt.Errorf("transaction %s is a %s: %w", txID, rec.Type, apperr.ErrNotFound)
	}
	if rec.Status != models.TxStatusPending {
		return nil, fmt.Errorf("transaction %s already %s: %w", txID, rec.Status, apperr.ErrInvalidTransition)
	}
	return rec, nil
}
