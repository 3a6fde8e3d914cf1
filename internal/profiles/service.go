// Package profiles manages public user profiles and the runner capability.
package profiles

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/errandhub/backend/internal/models"
)

type Repo interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	UpdateRole(ctx context.Context, userID uuid.UUID, role string) error
}

type Service struct {
	repo Repo
	log  *slog.Logger
}

func NewService(repo Repo, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log}
}

func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// BecomeRunner lets a requester also accept tasks. Profiles that can already
// run are returned unchanged.
func (s *Service) BecomeRunner(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	p, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p.CanRun() {
		return p, nil
	}
	if err := s.repo.UpdateRole(ctx, userID, models.RoleBoth); err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	p.Role = models.RoleBoth
	s.log.Info("profile upgraded to runner", "user_id", userID)
	return p, nil
}
