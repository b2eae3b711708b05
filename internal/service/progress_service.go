package service

import (
	"context"
	"time"

	"household-missions/internal/datekey"
	"household-missions/internal/model"
	"household-missions/internal/progression"
	"household-missions/internal/repository"
)

// ProgressView is what a user sees about their level.
type ProgressView struct {
	progression.Progress
	Streak        int        `json:"streak"`
	LastLevelUpAt *time.Time `json:"lastLevelUpAt,omitempty"`
}

// ProgressService reads levels and streaks.
type ProgressService struct {
	users    *repository.UserRepository
	grants   *repository.GrantRepository
	lookback int
	opts     Options
}

func NewProgressService(users *repository.UserRepository, grants *repository.GrantRepository, lookbackDays int, opts Options) *ProgressService {
	if lookbackDays <= 0 {
		lookbackDays = progression.DefaultStreakLookback
	}
	return &ProgressService{users: users, grants: grants, lookback: lookbackDays, opts: opts.withDefaults()}
}

// Progress returns the level, EXP within the level and current streak of userID.
func (s *ProgressService) Progress(ctx context.Context, userID uint) (ProgressView, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return ProgressView{}, err
	}
	streak, err := s.Streak(ctx, user)
	if err != nil {
		return ProgressView{}, err
	}
	return ProgressView{
		Progress:      progression.ProgressOf(progression.State{TotalExp: user.TotalExp, Level: user.Level}),
		Streak:        streak,
		LastLevelUpAt: user.LastLevelUpAt,
	}, nil
}

// Streak counts consecutive days, ending today, on which user was credited for at
// least one occurrence.
func (s *ProgressService) Streak(ctx context.Context, user *model.User) (int, error) {
	today := datekey.Midnight(s.opts.Now().In(s.opts.Location))
	from := datekey.AddDays(today, -s.lookback)
	days, err := s.grants.ActiveDays(ctx, user.ID, datekey.Of(from), datekey.Of(today))
	if err != nil {
		return 0, err
	}
	return progression.Streak(func(day time.Time) bool {
		return days.Contains(datekey.Of(day))
	}, today, s.lookback), nil
}
