package models

import (
	"time"

	"github.com/google/uuid"
)

// Escrow status enums. Status only moves active -> released | refunded.
const (
	EscrowStatusActive   = "active"
	EscrowStatusReleased = "released"
	EscrowStatusRefunded = "refunded"
)

// Escrow links a task to the money the wallet ledger holds for it.
// RunnerStake is the amount held from the runner's own wallet at acceptance (0 when
// the stake policy is off).
type Escrow struct {
	ID               uuid.UUID  `json:"id"`
	TaskID           uuid.UUID  `json:"task_id"`
	RequesterID      uuid.UUID  `json:"requester_id"`
	RunnerID         *uuid.UUID `json:"runner_id,omitempty"`
	Amount           int64      `json:"amount"`
	CommissionAmount int64      `json:"commission_amount"`
	RunnerAmount     int64      `json:"runner_amount"`
	RunnerStake      int64      `json:"runner_stake"`
	Status           string     `json:"status"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
