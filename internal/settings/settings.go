// Package settings serves the platform-wide configuration singleton.
package settings

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/errandhub/backend/internal/apperr"
	"github.com/errandhub/backend/internal/commission"
	"github.com/errandhub/backend/internal/models"
)

// Repo persists the settings row.
type Repo interface {
	Get(ctx context.Context) (*models.PlatformSettings, error)
	Upsert(ctx context.Context, s *models.PlatformSettings) error
}

// Provider reads settings, falling back to Defaults when none are stored.
type Provider struct {
	Repo     Repo
	Defaults models.PlatformSettings
}

func NewProvider(repo Repo, defaults models.PlatformSettings) *Provider {
	return &Provider{Repo: repo, Defaults: defaults}
}

// Get returns a validated copy of the current settings.
func (p *Provider) Get(ctx context.Context) (*models.PlatformSettings, error) {
	s, err := p.Repo.Get(ctx)
	if errors.Is(err, apperr.ErrNotFound) {
		cp := p.Defaults
		s = &cp
	} else if err != nil {
		return nil, fmt.Errorf("load platform settings: %w", err)
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Update validates and stores s.
func (p *Provider) Update(ctx context.Context, s *models.PlatformSettings) error {
	if err := Validate(s); err != nil {
		return err
	}
	return p.Repo.Upsert(ctx, s)
}

// Validate checks the commission range and task amount bounds.
func Validate(s *models.PlatformSettings) error {
	if math.IsNaN(s.CommissionPercentage) || s.CommissionPercentage < 0 || s.CommissionPercentage > 100 {
		return fmt.Errorf("%w: commission_percentage %v outside [0, 100]", apperr.ErrInvalidSettings, s.CommissionPercentage)
	}
	if s.MinimumTaskAmount <= 0 {
		return fmt.Errorf("%w: minimum_task_amount must be > 0", apperr.ErrInvalidSettings)
	}
	if s.MaximumTaskAmount < s.MinimumTaskAmount {
		return fmt.Errorf("%w: maximum_task_amount %d below minimum %d", apperr.ErrInvalidSettings, s.MaximumTaskAmount, s.MinimumTaskAmount)
	}
	if s.MaximumTaskAmount > commission.MaxReward {
		return fmt.Errorf("%w: maximum_task_amount %d above %d", apperr.ErrInvalidSettings, s.MaximumTaskAmount, int64(commission.MaxReward))
	}
	return nil
}
