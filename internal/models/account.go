package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is a login identity. Its ID is the user ID used by wallets, tasks and profiles.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
