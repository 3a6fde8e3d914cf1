package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction type enums.
const (
	TxTypeDeposit       = "deposit"
	TxTypeWithdrawal    = "withdrawal"
	TxTypeTaskPayment   = "task_payment"
	TxTypeTaskEarning   = "task_earning"
	TxTypeCommission    = "commission"
	TxTypeRefund        = "refund"
	TxTypeEscrowHold    = "escrow_hold"
	TxTypeEscrowRelease = "escrow_release"
)

// Transaction status enums. A transaction leaves pending at most once.
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
	TxStatusCancelled = "cancelled"
)

// PaymentMethodInternal settles synchronously without an external gateway.
const PaymentMethodInternal = "internal"

type Transaction struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	TaskID        *uuid.UUID `json:"task_id,omitempty"`
	Type          string     `json:"type"`
	Amount        int64      `json:"amount"`
	Status        string     `json:"status"`
	Description   string     `json:"description"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	ExternalRef   *string    `json:"external_ref,omitempty"`
	BalanceAfter  *int64     `json:"balance_after,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
