package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"household-missions/internal/datekey"
	"household-missions/internal/model"
)

// SuggestionRepository persists daily challenge batches and their transitions.
type SuggestionRepository struct {
	db *gorm.DB
}

func NewSuggestionRepository(db *gorm.DB) *SuggestionRepository {
	return &SuggestionRepository{db: db}
}

func (r *SuggestionRepository) FindUser(ctx context.Context, userID uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *SuggestionRepository) FindByID(ctx context.Context, id string) (*model.Suggestion, error) {
	var s model.Suggestion
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// Pending returns the user's PENDING suggestions, oldest first.
func (r *SuggestionRepository) Pending(ctx context.Context, userID uint) ([]model.Suggestion, error) {
	var out []model.Suggestion
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.SuggestionPending).
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list pending suggestions: %w", err)
	}
	return out, nil
}

// OfferBatch replaces the user's PENDING suggestions with batch and stamps
// last_offer_day, all in one transaction.
func (r *SuggestionRepository) OfferBatch(ctx context.Context, userID uint, day datekey.Key, batch []model.Suggestion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND status = ?", userID, model.SuggestionPending).
			Delete(&model.Suggestion{}).Error; err != nil {
			return fmt.Errorf("delete pending suggestions: %w", err)
		}
		if len(batch) > 0 {
			if err := tx.Create(&batch).Error; err != nil {
				return fmt.Errorf("create suggestions: %w", err)
			}
		}
		if err := tx.Model(&model.User{}).Where("id = ?", userID).
			Update("last_offer_day", day).Error; err != nil {
			return fmt.Errorf("stamp offer day: %w", err)
		}
		return nil
	})
}

// Accept moves a PENDING suggestion to ACCEPTED. Only the call that performs the
// transition creates task and resets the template cooldown; later calls report
// applied=false.
func (r *SuggestionRepository) Accept(ctx context.Context, id string, now time.Time, task *model.Task) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Suggestion{}).
			Where("id = ? AND status = ?", id, model.SuggestionPending).
			Updates(map[string]interface{}{"status": model.SuggestionAccepted, "accepted_at": now})
		if res.Error != nil {
			return fmt.Errorf("accept suggestion: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var s model.Suggestion
		if err := tx.Where("id = ?", id).First(&s).Error; err != nil {
			return notFound(err)
		}

		task.SuggestionID = &s.ID
		if task.RecurType == "" {
			task.RecurType = model.RecurNone
		}
		if err := tx.Create(task).Error; err != nil {
			return fmt.Errorf("create task for suggestion: %w", err)
		}
		if err := tx.Model(&model.Suggestion{}).Where("id = ?", id).Update("task_id", task.ID).Error; err != nil {
			return fmt.Errorf("link suggestion task: %w", err)
		}

		var user model.User
		if err := tx.First(&user, s.UserID).Error; err != nil {
			return notFound(err)
		}
		if user.LastAcceptedAt == nil {
			user.LastAcceptedAt = make(map[string]time.Time)
		}
		user.LastAcceptedAt[s.Key] = now
		if err := tx.Model(&user).Select("last_accepted_at").Updates(&user).Error; err != nil {
			return fmt.Errorf("reset cooldown: %w", err)
		}

		applied = true
		return nil
	})
	return applied, err
}

// Decline moves a PENDING suggestion to DECLINED. applied=false means it was not pending.
func (r *SuggestionRepository) Decline(ctx context.Context, id string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Suggestion{}).
		Where("id = ? AND status = ?", id, model.SuggestionPending).
		Updates(map[string]interface{}{"status": model.SuggestionDeclined, "declined_at": now})
	if res.Error != nil {
		return false, fmt.Errorf("decline suggestion: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ExpireBefore marks PENDING suggestions offered before day as EXPIRED.
func (r *SuggestionRepository) ExpireBefore(ctx context.Context, day datekey.Key) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Suggestion{}).
		Where("status = ? AND day_offer < ?", model.SuggestionPending, day).
		Update("status", model.SuggestionExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("expire suggestions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
