package models

import (
	"time"

	"github.com/google/uuid"
)

// Task status enums.
const (
	TaskStatusPending    = "pending"
	TaskStatusAccepted   = "accepted"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusCancelled  = "cancelled"
	TaskStatusDisputed   = "disputed"
)

// Location is a pickup or delivery point.
type Location struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

type Task struct {
	ID                 uuid.UUID  `json:"id"`
	RequesterID        uuid.UUID  `json:"requester_id"`
	RunnerID           *uuid.UUID `json:"runner_id,omitempty"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Category           string     `json:"category"`
	Status             string     `json:"status"`
	RewardAmount       int64      `json:"reward_amount"`
	CommissionAmount   int64      `json:"commission_amount"`
	RunnerAmount       int64      `json:"runner_amount"`
	PickupLocation     *Location  `json:"pickup_location,omitempty"`
	DeliveryLocation   *Location  `json:"delivery_location,omitempty"`
	Deadline           *time.Time `json:"deadline,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	AcceptedAt         *time.Time `json:"accepted_at,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// IsTerminal reports whether no further lifecycle transition is allowed.
func (t *Task) IsTerminal() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusCancelled, TaskStatusDisputed:
		return true
	}
	return false
}
