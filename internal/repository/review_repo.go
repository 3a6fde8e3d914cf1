package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/errandhub/backend/internal/models"
)

type ReviewRepo struct {
	pool *pgxpool.Pool
}

func NewReviewRepo(pool *pgxpool.Pool) *ReviewRepo {
	return &ReviewRepo{pool: pool}
}

// CreateTx inserts rv. A second review for the same task yields apperr.ErrConflict.
func (r *ReviewRepo) CreateTx(ctx context.Context, tx pgx.Tx, rv *models.Review) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO reviews (id, task_id, reviewer_id, reviewee_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, rv.ID, rv.TaskID, rv.ReviewerID, rv.RevieweeID, rv.Rating, rv.Comment).Scan(&rv.CreatedAt)
	return duplicate(err, "review")
}
