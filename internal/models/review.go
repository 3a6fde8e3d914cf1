package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultReviewRating is given to the runner when a requester completes a task.
const DefaultReviewRating = 5

type Review struct {
	ID         uuid.UUID `json:"id"`
	TaskID     uuid.UUID `json:"task_id"`
	ReviewerID uuid.UUID `json:"reviewer_id"`
	RevieweeID uuid.UUID `json:"reviewee_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}
