package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"household-missions/internal/datekey"
	"household-missions/internal/model"
	"household-missions/internal/progression"
)

// GrantRepository owns the EXP ledger and the progression columns of users.
type GrantRepository struct {
	db *gorm.DB
}

func NewGrantRepository(db *gorm.DB) *GrantRepository {
	return &GrantRepository{db: db}
}

// Apply records grant and applies it to the credited user in one transaction. A grant
// for an occurrence that already paid out is ignored and reported as applied=false.
func (r *GrantRepository) Apply(ctx context.Context, grant model.ExpGrant, apply func(progression.State) progression.State) (before, after progression.State, applied bool, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&grant)
		if res.Error != nil {
			return fmt.Errorf("insert grant: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var user model.User
		if err := tx.First(&user, grant.UserID).Error; err != nil {
			return notFound(err)
		}
		before = progression.State{TotalExp: user.TotalExp, Level: user.Level}
		after = apply(before)
		applied = true
		if after == before {
			return nil
		}

		updates := map[string]interface{}{"total_exp": after.TotalExp, "level": after.Level}
		if after.Level > before.Level {
			at := grant.CreatedAt
			if at.IsZero() {
				at = time.Now()
			}
			updates["last_level_up_at"] = at
		}
		if err := tx.Model(&model.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update progression: %w", err)
		}
		return nil
	})
	return before, after, applied, err
}

// Granted returns the occurrences of each task that already paid out.
func (r *GrantRepository) Granted(ctx context.Context, taskIDs []uint) (map[uint]datekey.Set, error) {
	out := make(map[uint]datekey.Set, len(taskIDs))
	if len(taskIDs) == 0 {
		return out, nil
	}
	var grants []model.ExpGrant
	if err := r.db.WithContext(ctx).Where("task_id IN ?", taskIDs).Find(&grants).Error; err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	for _, g := range grants {
		out[g.TaskID] = out[g.TaskID].With(g.OccurrenceKey)
	}
	return out, nil
}

// ActiveDays returns the occurrence days in [from, to] on which userID was credited.
func (r *GrantRepository) ActiveDays(ctx context.Context, userID uint, from, to datekey.Key) (datekey.Set, error) {
	var keys []datekey.Key
	if err := r.db.WithContext(ctx).Model(&model.ExpGrant{}).
		Distinct("occurrence_key").
		Where("user_id = ? AND occurrence_key BETWEEN ? AND ?", userID, from, to).
		Pluck("occurrence_key", &keys).Error; err != nil {
		return nil, fmt.Errorf("list active days: %w", err)
	}
	var out datekey.Set
	for _, k := range keys {
		out = out.With(k)
	}
	return out, nil
}
