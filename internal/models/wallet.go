package models

import (
	"time"

	"github.com/google/uuid"
)

// PlatformUserID owns the platform revenue wallet that receives commission.
var PlatformUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Wallet holds a user's spendable balance and the funds currently held in escrow.
// Amounts are minor currency units.
type Wallet struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	Balance       int64     `json:"balance"`
	EscrowBalance int64     `json:"escrow_balance"`
	TotalEarned   int64     `json:"total_earned"`
	TotalSpent    int64     `json:"total_spent"`
	Version       int64     `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
