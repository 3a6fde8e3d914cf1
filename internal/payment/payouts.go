package payment

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/google/uuid"

	"github.com/errandhub/backend/internal/models"
)

// PayoutLedger finishes withdrawals once the payout provider reports back.
type PayoutLedger interface {
	CompleteWithdrawal(ctx context.Context, txID uuid.UUID, externalRef string) (*models.Transaction, error)
	FailWithdrawal(ctx context.Context, txID uuid.UUID, reason string) (*models.Transaction, error)
}

// Payouts settles pending withdrawals from the provider's signed callback.
// The callback carries the withdrawal's transaction ID as order_id and is
// signed the same way as a checkout return.
type Payouts struct {
	Ledger  PayoutLedger
	Gateway Gateway
	Logger  *slog.Logger
}

func NewPayouts(l PayoutLedger, g Gateway, log *slog.Logger) *Payouts {
	if log == nil {
		log = slog.Default()
	}
	return &Payouts{Ledger: l, Gateway: g, Logger: log}
}

// HandleCallback verifies the callback and completes or fails the withdrawal.
// A failed payout restores the user's balance.
func (p *Payouts) HandleCallback(ctx context.Context, values url.Values) (*models.Transaction, error) {
	res, err := p.Gateway.ParseReturn(values)
	if err != nil {
		p.Logger.Warn("rejected payout callback", "error", err)
		return nil, err
	}
	if !res.Success {
		reason := res.Reason
		if reason == "" {
			reason = "payout rejected by provider"
		}
		return p.Ledger.FailWithdrawal(ctx, res.OrderID, reason)
	}
	return p.Ledger.CompleteWithdrawal(ctx, res.OrderID, res.ExternalRef)
}
