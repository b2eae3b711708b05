// Package completion records and answers whether an occurrence of a task was completed.
//
// One-off tasks carry a single completion flag. Recurring tasks carry one entry per
// occurrence date-key. The representation is picked once per task by ModeOf.
package completion

import (
	"time"

	"household-missions/internal/datekey"
	"household-missions/internal/model"
)

// Mode is the completion representation used by a task.
type Mode int

const (
	// Single is the one-off representation: Completed/CompletedAt/CompletedBy*.
	Single Mode = iota
	// PerDate is the recurring representation: CompletedDates/CompletedByByDate.
	PerDate
)

func (m Mode) String() string {
	if m == PerDate {
		return "per_date"
	}
	return "single"
}

// ModeOf selects the representation from the recurrence type.
func ModeOf(task *model.Task) Mode {
	if task.IsRecurring() {
		return PerDate
	}
	return Single
}

// Actor is whoever marks the occurrence done.
type Actor struct {
	UserID uint
	Name   string
}

// ExpGain is the reward owed for one completed occurrence. It is consumed exactly
// once by the level trigger.
type ExpGain struct {
	TaskID     uint
	UserID     uint
	ActorID    uint
	Exp        int
	Occurrence datekey.Key
}

type tracker interface {
	isDoneOn(task *model.Task, day time.Time) bool
	markDone(task *model.Task, key datekey.Key, actor Actor, now time.Time)
	completedBy(task *model.Task, key datekey.Key) (model.CompletionStamp, bool)
}

func trackerFor(task *model.Task) tracker {
	if ModeOf(task) == PerDate {
		return perDate{}
	}
	return single{}
}

// IsDoneOn reports whether the occurrence of task on date is completed.
func IsDoneOn(task *model.Task, date time.Time) bool {
	if task == nil {
		return false
	}
	return trackerFor(task).isDoneOn(task, datekey.Midnight(date))
}

// MarkDone records the completion of the occurrence on date and returns the EXP owed.
// Callers must check IsDoneOn first: the record itself is idempotent, the reward is not.
func MarkDone(task *model.Task, date time.Time, actor Actor, now time.Time) ExpGain {
	key := datekey.Of(date)
	trackerFor(task).markDone(task, key, actor, now)
	return Owed(task, key, actor.UserID)
}

// Owed computes the reward for the occurrence key completed by actorID. The assignee is
// credited when the task has one, otherwise the actor.
func Owed(task *model.Task, key datekey.Key, actorID uint) ExpGain {
	credited := actorID
	if task.AssignedToUserID != nil && *task.AssignedToUserID != 0 {
		credited = *task.AssignedToUserID
	}
	exp := min(max(task.ExpValue, 0), model.MaxExpValue)
	return ExpGain{
		TaskID:     task.ID,
		UserID:     credited,
		ActorID:    actorID,
		Exp:        exp,
		Occurrence: key,
	}
}

// CompletedBy returns who completed the occurrence on date, if anyone did.
func CompletedBy(task *model.Task, date time.Time) (model.CompletionStamp, bool) {
	if !IsDoneOn(task, date) {
		return model.CompletionStamp{}, false
	}
	return trackerFor(task).completedBy(task, datekey.Of(date))
}

// SkipOccurrence removes a single occurrence from the series. The template survives.
func SkipOccurrence(task *model.Task, date time.Time) {
	task.SkipDates = task.SkipDates.With(datekey.Of(date))
}

// DeleteSeries archives the whole template so no date occurs any more.
func DeleteSeries(task *model.Task) {
	task.Archived = true
}

type single struct{}

func (single) isDoneOn(task *model.Task, _ time.Time) bool {
	return task.Completed
}

func (single) markDone(task *model.Task, _ datekey.Key, actor Actor, now time.Time) {
	at := now
	task.Completed = true
	task.CompletedAt = &at
	if actor.UserID != 0 {
		id := actor.UserID
		task.CompletedByUserID = &id
	}
	task.CompletedByName = actor.Name
}

func (single) completedBy(task *model.Task, _ datekey.Key) (model.CompletionStamp, bool) {
	stamp := model.CompletionStamp{Name: task.CompletedByName}
	if task.CompletedByUserID != nil {
		stamp.UserID = *task.CompletedByUserID
	}
	if task.CompletedAt != nil {
		stamp.At = *task.CompletedAt
	}
	return stamp, true
}

type perDate struct{}

func (perDate) isDoneOn(task *model.Task, day time.Time) bool {
	if len(task.CompletedDates) == 0 {
		return legacyDoneOn(task, day)
	}
	return task.CompletedDates.Contains(datekey.Of(day))
}

// markDone is a set insert into CompletedDates, so retries converge. The stamp map
// is last-write-wins when two actors complete the same occurrence.
func (perDate) markDone(task *model.Task, key datekey.Key, actor Actor, now time.Time) {
	task.CompletedDates = task.CompletedDates.With(key)
	if task.CompletedByByDate == nil {
		task.CompletedByByDate = make(map[datekey.Key]model.CompletionStamp)
	}
	task.CompletedByByDate[key] = model.CompletionStamp{UserID: actor.UserID, Name: actor.Name, At: now}
}

func (perDate) completedBy(task *model.Task, key datekey.Key) (model.CompletionStamp, bool) {
	if stamp, ok := task.CompletedByByDate[key]; ok {
		return stamp, true
	}
	if len(task.CompletedDates) == 0 {
		return legacyStamp(task), true
	}
	return model.CompletionStamp{}, true
}
