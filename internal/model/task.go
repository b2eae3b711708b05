package model

import (
	"time"

	"household-missions/internal/datekey"
)

// MaxExpValue caps the EXP a single task or challenge template may award.
const MaxExpValue = 10_000

// RecurrenceType is persisted as repeat_type.
type RecurrenceType string

const (
	RecurNone    RecurrenceType = "none"
	RecurDaily   RecurrenceType = "daily"
	RecurWeekly  RecurrenceType = "weekly"
	RecurMonthly RecurrenceType = "monthly"
)

// ParseRecurrence maps user input to a RecurrenceType. Unknown values are not recurring.
func ParseRecurrence(s string) (RecurrenceType, bool) {
	switch RecurrenceType(s) {
	case RecurNone, "":
		return RecurNone, true
	case RecurDaily, RecurWeekly, RecurMonthly:
		return RecurrenceType(s), true
	default:
		return RecurNone, false
	}
}

// CompletionStamp records who completed one occurrence of a recurring task.
type CompletionStamp struct {
	UserID uint      `json:"userId"`
	Name   string    `json:"name"`
	At     time.Time `json:"timestamp"`
}

// Task is a mission template. A one-off task has a single occurrence on DueDate;
// a recurring task occurs from DueDate onward according to RecurType.
type Task struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	CreatedByUserID  uint           `gorm:"index" json:"createdByUserId"`
	AssignedByUserID *uint          `json:"assignedByUserId,omitempty"`
	AssignedToUserID *uint          `gorm:"index" json:"assignedToUserId,omitempty"`
	SuggestionID     *string        `gorm:"uniqueIndex" json:"suggestionId,omitempty"`
	Title            string         `json:"title"`
	Description      string         `json:"description,omitempty"`
	DueDate          *time.Time     `json:"dueDate"`
	RecurType        RecurrenceType `gorm:"column:repeat_type;default:none" json:"repeatType"`
	SkipDates        datekey.Set    `gorm:"serializer:json" json:"skipDates"`
	Archived         bool           `gorm:"default:false;index" json:"archived"`
	ExpValue         int            `gorm:"default:0" json:"expValue"`

	// One-off completion. CompletedAt and CompletedByUserID double as the legacy
	// single-completion record of recurring tasks created before CompletedDates existed.
	Completed         bool       `gorm:"default:false" json:"completed"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	CompletedByUserID *uint      `json:"completedByUserId,omitempty"`
	CompletedByName   string     `json:"completedByName,omitempty"`

	// Recurring completion, one entry per occurrence.
	CompletedDates    datekey.Set                     `gorm:"serializer:json" json:"completedDates"`
	CompletedByByDate map[datekey.Key]CompletionStamp `gorm:"serializer:json" json:"completedByByDate,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsRecurring reports whether the task repeats.
func (t *Task) IsRecurring() bool {
	switch t.RecurType {
	case RecurDaily, RecurWeekly, RecurMonthly:
		return true
	default:
		return false
	}
}

// Assignee returns the user credited for completions: the assignee when set,
// otherwise the creator.
func (t *Task) Assignee() uint {
	if t.AssignedToUserID != nil && *t.AssignedToUserID != 0 {
		return *t.AssignedToUserID
	}
	return t.CreatedByUserID
}
