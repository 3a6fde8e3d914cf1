package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile role enums.
const (
	RoleRequester = "requester"
	RoleRunner    = "runner"
	RoleBoth      = "both"
)

type Profile struct {
	UserID         uuid.UUID `json:"user_id"`
	DisplayName    string    `json:"display_name"`
	Role           string    `json:"role"`
	Rating         float64   `json:"rating"`
	ReviewCount    int       `json:"review_count"`
	CompletedTasks int       `json:"completed_tasks"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CanRun reports whether the profile may accept tasks.
func (p *Profile) CanRun() bool {
	return p.Role == RoleRunner || p.Role == RoleBoth
}
