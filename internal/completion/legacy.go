package completion

import (
	"time"

	"household-missions/internal/datekey"
	"household-missions/internal/model"
)

// Recurring tasks written before CompletedDates existed kept one CompletedAt for the
// whole series. Delete this file once every record carries CompletedDates.

func legacyDoneOn(task *model.Task, day time.Time) bool {
	if task.CompletedAt == nil {
		return false
	}
	return datekey.Of(task.CompletedAt.In(day.Location())) == datekey.Of(day)
}

func legacyStamp(task *model.Task) model.CompletionStamp {
	stamp := model.CompletionStamp{Name: task.CompletedByName}
	if task.CompletedByUserID != nil {
		stamp.UserID = *task.CompletedByUserID
	}
	if task.CompletedAt != nil {
		stamp.At = *task.CompletedAt
	}
	return stamp
}

// LegacyKeys returns the occurrence keys implied by a legacy single completion, so
// reconciliation can treat old records like new ones.
func LegacyKeys(task *model.Task, loc *time.Location) datekey.Set {
	if ModeOf(task) != PerDate || len(task.CompletedDates) > 0 || task.CompletedAt == nil {
		return nil
	}
	return datekey.Set{datekey.Of(task.CompletedAt.In(loc))}
}
