package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"household-missions/internal/model"
)

// FamilyRepository manages household rosters.
type FamilyRepository struct {
	db *gorm.DB
}

func NewFamilyRepository(db *gorm.DB) *FamilyRepository {
	return &FamilyRepository{db: db}
}

// GetOrCreate returns the family with the invite code, creating it on first use.
func (r *FamilyRepository) GetOrCreate(ctx context.Context, code, name string) (*model.Family, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("family code is required")
	}

	var family model.Family
	db := r.db.WithContext(ctx)
	err := db.Where("code = ?", code).First(&family).Error
	switch {
	case err == nil:
		return &family, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		family = model.Family{Code: code, Name: name}
		if err := db.Create(&family).Error; err != nil {
			return nil, fmt.Errorf("create family: %w", err)
		}
		return &family, nil
	default:
		return nil, fmt.Errorf("find family: %w", err)
	}
}

// Join adds userID to the family. Joining twice is a no-op.
func (r *FamilyRepository) Join(ctx context.Context, familyID, userID uint) error {
	m := model.Membership{FamilyID: familyID, UserID: userID}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
		return fmt.Errorf("join family: %w", err)
	}
	return nil
}

// Roster returns the ids of everyone sharing a family with userID, userID included.
func (r *FamilyRepository) Roster(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	sub := r.db.Model(&model.Membership{}).Select("family_id").Where("user_id = ?", userID)
	if err := r.db.WithContext(ctx).Model(&model.Membership{}).
		Distinct("user_id").
		Where("family_id IN (?)", sub).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	for _, id := range ids {
		if id == userID {
			return ids, nil
		}
	}
	return append([]uint{userID}, ids...), nil
}
