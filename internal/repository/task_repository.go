package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"household-missions/internal/model"
)

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if task.RecurType == "" {
		task.RecurType = model.RecurNone
	}
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, taskID).Error; err != nil {
		return nil, notFound(err)
	}
	return &task, nil
}

// ListForUsers returns live tasks created by or assigned to any of userIDs.
func (r *TaskRepository) ListForUsers(ctx context.Context, userIDs []uint) ([]model.Task, error) {
	var tasks []model.Task
	if len(userIDs) == 0 {
		return tasks, nil
	}
	if err := r.db.WithContext(ctx).
		Where("archived = ? AND (created_by_user_id IN ? OR assigned_to_user_id IN ?)", false, userIDs, userIDs).
		Order("due_date NULLS LAST, created_at DESC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ListWithCompletions returns every task that carries at least one completion fact.
func (r *TaskRepository) ListWithCompletions(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("completed = ? OR completed_at IS NOT NULL OR (completed_dates IS NOT NULL AND completed_dates NOT IN ?)", true, []string{"", "null", "[]"}).
		Order("id ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list completed tasks: %w", err)
	}
	return tasks, nil
}

// Update loads a task, lets fn modify it and saves it in one transaction. When fn
// returns changed=false nothing is written.
func (r *TaskRepository) Update(ctx context.Context, taskID uint, fn func(task *model.Task) (changed bool, err error)) (*model.Task, bool, error) {
	var (
		task    model.Task
		changed bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&task, taskID).Error; err != nil {
			return notFound(err)
		}
		var err error
		changed, err = fn(&task)
		if err != nil || !changed {
			return err
		}
		if err := tx.Save(&task).Error; err != nil {
			return fmt.Errorf("save task: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &task, changed, nil
}
