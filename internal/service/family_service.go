package service

import (
	"context"
	"log/slog"

	"household-missions/internal/model"
	"household-missions/internal/repository"
)

// FamilyService manages household membership.
type FamilyService struct {
	repo *repository.FamilyRepository
	log  *slog.Logger
}

func NewFamilyService(repo *repository.FamilyRepository, logger *slog.Logger) *FamilyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FamilyService{repo: repo, log: logger}
}

// Join adds userID to the family with the invite code, creating the family if needed.
func (s *FamilyService) Join(ctx context.Context, userID uint, code, name string) (*model.Family, error) {
	family, err := s.repo.GetOrCreate(ctx, code, name)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Join(ctx, family.ID, userID); err != nil {
		return nil, err
	}
	s.log.Info("joined family", slog.Uint64("user_id", uint64(userID)), slog.String("family", family.Code))
	return family, nil
}

func (s *FamilyService) Roster(ctx context.Context, userID uint) ([]uint, error) {
	return s.repo.Roster(ctx, userID)
}
