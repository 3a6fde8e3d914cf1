package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/errandhub/backend/internal/apperr"
	"github.com/errandhub/backend/internal/models"
)

// DepositLedger is the part of the wallet ledger that settles deposits.
type DepositLedger interface {
	Deposit(ctx context.Context, userID uuid.UUID, amount int64, method string) (*models.Transaction, error)
	CompleteDeposit(ctx context.Context, txID uuid.UUID, externalRef string, amount int64) (*models.Transaction, error)
	FailDeposit(ctx context.Context, txID uuid.UUID, reason string) (*models.Transaction, error)
}

// Intake starts gateway deposits and settles them when the payer returns.
type Intake struct {
	Ledger  DepositLedger
	Gateway Gateway
	Logger  *slog.Logger
}

func NewIntake(l DepositLedger, g Gateway, log *slog.Logger) *Intake {
	if log == nil {
		log = slog.Default()
	}
	return &Intake{Ledger: l, Gateway: g, Logger: log}
}

// StartDeposit records a pending deposit and opens a checkout whose order ID
// is the transaction's ID. Only gateway methods are accepted: the balance is
// credited later by HandleReturn, never here.
func (in *Intake) StartDeposit(ctx context.Context, userID uuid.UUID, amount int64, method string) (*models.Transaction, *Checkout, error) {
	method = strings.TrimSpace(method)
	if method == "" || method == models.PaymentMethodInternal {
		return nil, nil, fmt.Errorf("%w: payment_method must name a gateway method", apperr.ErrInvalidInput)
	}
	rec, err := in.Ledger.Deposit(ctx, userID, amount, method)
	if err != nil {
		return nil, nil, err
	}
	if rec.Status != models.TxStatusPending {
		return nil, nil, fmt.Errorf("deposit %s settled without a gateway: %w", rec.ID, apperr.ErrInvalidTransition)
	}

	co, err := in.Gateway.Initiate(ctx, CheckoutRequest{OrderID: rec.ID, Amount: rec.Amount, Method: rec.PaymentMethod})
	if err != nil {
		in.Logger.Error("checkout initiation failed", "transaction_id", rec.ID, "error", err)
		if _, ferr := in.Ledger.FailDeposit(ctx, rec.ID, "checkout initiation failed"); ferr != nil {
			in.Logger.Error("fail deposit after checkout error", "transaction_id", rec.ID, "error", ferr)
		}
		if errors.Is(err, apperr.ErrExternalPaymentFailed) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("initiate checkout: %w: %v", apperr.ErrExternalPaymentFailed, err)
	}
	return rec, co, nil
}

// HandleReturn verifies the gateway return and completes or fails the pending
// deposit it names. A declined payment returns the failed record together
// with apperr.ErrExternalPaymentFailed.
func (in *Intake) HandleReturn(ctx context.Context, values url.Values) (*models.Transaction, error) {
	res, err := in.Gateway.ParseReturn(values)
	if err != nil {
		in.Logger.Warn("rejected payment return", "error", err)
		return nil, err
	}
	if !res.Success {
		reason := res.Reason
		if reason == "" {
			reason = "declined by gateway"
		}
		rec, err := in.Ledger.FailDeposit(ctx, res.OrderID, reason)
		if err != nil {
			return nil, err
		}
		return rec, fmt.Errorf("deposit %s: %s: %w", res.OrderID, reason, apperr.ErrExternalPaymentFailed)
	}
	return in.Ledger.CompleteDeposit(ctx, res.OrderID, res.ExternalRef, res.Amount)
}
