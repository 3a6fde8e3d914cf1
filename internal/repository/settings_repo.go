package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/errandhub/backend/internal/models"
)

type SettingsRepo struct {
	pool *pgxpool.Pool
}

func NewSettingsRepo(pool *pgxpool.Pool) *SettingsRepo {
	return &SettingsRepo{pool: pool}
}

// Get returns the singleton settings row or apperr.ErrNotFound.
func (r *SettingsRepo) Get(ctx context.Context) (*models.PlatformSettings, error) {
	var s models.PlatformSettings
	err := r.pool.QueryRow(ctx, `
		SELECT commission_percentage, minimum_task_amount, maximum_task_amount, allowed_payment_methods,
			allowed_categories, maintenance_mode, runner_stake_required, updated_at
		FROM platform_settings WHERE id = 1
	`).Scan(&s.CommissionPercentage, &s.MinimumTaskAmount, &s.MaximumTaskAmount, &s.AllowedPaymentMethods,
		&s.AllowedCategories, &s.MaintenanceMode, &s.RunnerStakeRequired, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "platform settings")
	}
	return &s, nil
}

func (r *SettingsRepo) Upsert(ctx context.Context, s *models.PlatformSettings) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO platform_settings (id, commission_percentage, minimum_task_amount, maximum_task_amount,
			allowed_payment_methods, allowed_categories, maintenance_mode, runner_stake_required)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			commission_percentage = EXCLUDED.commission_percentage,
			minimum_task_amount = EXCLUDED.minimum_task_amount,
			maximum_task_amount = EXCLUDED.maximum_task_amount,
			allowed_payment_methods = EXCLUDED.allowed_payment_methods,
			allowed_categories = EXCLUDED.allowed_categories,
			maintenance_mode = EXCLUDED.maintenance_mode,
			runner_stake_required = EXCLUDED.runner_stake_required,
			updated_at = now()
		RETURNING updated_at
	`, s.CommissionPercentage, s.MinimumTaskAmount, s.MaximumTaskAmount, s.AllowedPaymentMethods,
		s.AllowedCategories, s.MaintenanceMode, s.RunnerStakeRequired).Scan(&s.UpdatedAt)
}
