package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/errandhub/backend/internal/models"
)

type ProfileRepo struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

func (r *ProfileRepo) CreateTx(ctx context.Context, tx pgx.Tx, p *models.Profile) error {
	return tx.QueryRow(ctx, `
		INSERT INTO profiles (user_id, display_name, role)
		VALUES ($1, $2, $3)
		RETURNING rating, review_count, completed_tasks, created_at, updated_at
	`, p.UserID, p.DisplayName, p.Role).Scan(&p.Rating, &p.ReviewCount, &p.CompletedTasks, &p.CreatedAt, &p.UpdatedAt)
}

func (r *ProfileRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, display_name, role, rating, review_count, completed_tasks, created_at, updated_at
		FROM profiles WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.DisplayName, &p.Role, &p.Rating, &p.ReviewCount, &p.CompletedTasks, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "profile")
	}
	return &p, nil
}

func (r *ProfileRepo) UpdateRole(ctx context.Context, userID uuid.UUID, role string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE profiles SET role = $2, updated_at = now() WHERE user_id = $1`, userID, role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(pgx.ErrNoRows, "profile")
	}
	return nil
}

// RecordCompletionTx recomputes the runner's rating from all reviews and counts
// one more completed task.
func (r *ProfileRepo) RecordCompletionTx(ctx context.Context, tx pgx.Tx, runnerID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE profiles SET
			rating = COALESCE((SELECT AVG(rating)::float8 FROM reviews WHERE reviewee_id = $1), 0),
			review_count = (SELECT COUNT(*) FROM reviews WHERE reviewee_id = $1),
			completed_tasks = completed_tasks + 1,
			updated_at = now()
		WHERE user_id = $1
	`, runnerID)
	return err
}
