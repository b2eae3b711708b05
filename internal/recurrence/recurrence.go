// Package recurrence decides whether a task template occurs on a calendar day.
package recurrence

import (
	"time"

	"household-missions/internal/datekey"
	"household-missions/internal/model"
)

// OccursOn reports whether task has an occurrence on date. date is read in its own
// location and the anchor is converted into that location first.
//
// A task without a usable DueDate never occurs. Monthly series anchored on a day the
// month lacks (e.g. the 31st in April) have no occurrence that month.
func OccursOn(task *model.Task, date time.Time) bool {
	if task == nil || task.Archived {
		return false
	}
	anchor, ok := anchorOf(task, date.Location())
	if !ok {
		return false
	}

	day := datekey.Midnight(date)
	if task.SkipDates.Contains(datekey.Of(day)) {
		return false
	}

	switch task.RecurType {
	case model.RecurNone, "":
		return datekey.Of(day) == datekey.Of(anchor)
	}

	if day.Before(anchor) {
		return false
	}

	switch task.RecurType {
	case model.RecurDaily:
		return true
	case model.RecurWeekly:
		return day.Weekday() == anchor.Weekday()
	case model.RecurMonthly:
		return day.Day() == anchor.Day()
	default:
		return false
	}
}

// Next returns the first day strictly after `after` on which task occurs, searching at
// most horizon days ahead.
func Next(task *model.Task, after time.Time, horizon int) (time.Time, bool) {
	day := datekey.Midnight(after)
	for i := 1; i <= horizon; i++ {
		d := datekey.AddDays(day, i)
		if OccursOn(task, d) {
			return d, true
		}
	}
	return time.Time{}, false
}

// Between lists every occurrence of task in [from, to], both inclusive.
func Between(task *model.Task, from, to time.Time) []time.Time {
	var out []time.Time
	from = datekey.Midnight(from)
	to = datekey.Midnight(to.In(from.Location()))
	for d := from; !d.After(to); d = datekey.AddDays(d, 1) {
		if OccursOn(task, d) {
			out = append(out, d)
		}
	}
	return out
}

func anchorOf(task *model.Task, loc *time.Location) (time.Time, bool) {
	if task.DueDate == nil || task.DueDate.IsZero() {
		return time.Time{}, false
	}
	return datekey.Midnight(task.DueDate.In(loc)), true
}
