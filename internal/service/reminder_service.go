package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"household-missions/internal/model"
)

const upcomingHorizonDays = 7

// ReminderService builds human-readable summaries for daily notifications.
type ReminderService struct {
	tasks    *TaskService
	progress *ProgressService
	users    userLookup
}

type userLookup interface {
	FindByIDs(ctx context.Context, ids []uint) (map[uint]model.User, error)
}

func NewReminderService(tasks *TaskService, progress *ProgressService, users userLookup) *ReminderService {
	return &ReminderService{tasks: tasks, progress: progress, users: users}
}

// DailySummary renders today's occurrences, the week ahead and the user's level as
// Telegram HTML.
func (s *ReminderService) DailySummary(ctx context.Context, user model.User, now time.Time) (string, error) {
	items, err := s.tasks.Agenda(ctx, user.ID, now)
	if err != nil {
		return "", err
	}
	upcoming, err := s.tasks.Upcoming(ctx, user.ID, now, upcomingHorizonDays)
	if err != nil {
		return "", err
	}
	view, err := s.progress.Progress(ctx, user.ID)
	if err != nil {
		return "", err
	}
	names, err := s.assigneeNames(ctx, items)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("📋 <b>Daily missions</b>\n")
	fmt.Fprintf(&b, "🗓 %s\n\n", now.Format("Mon, 02 Jan 2006"))

	b.WriteString("🔥 <b>Today</b>\n")
	mine := 0
	for _, item := range items {
		if item.Mine {
			b.WriteString(formatAgendaItem(item, ""))
			mine++
		}
	}
	if mine == 0 {
		b.WriteString("— nothing due today\n")
	}

	if mine < len(items) {
		b.WriteString("\n👪 <b>Family</b>\n")
		for _, item := range items {
			if !item.Mine {
				b.WriteString(formatAgendaItem(item, names[item.Task.Assignee()]))
			}
		}
	}

	if len(upcoming) > 0 {
		b.WriteString("\n♻️ <b>Coming up</b>\n")
		for _, u := range upcoming {
			fmt.Fprintf(&b, "• %s — %s", html.EscapeString(strings.TrimSpace(u.Task.Title)), u.Date.Format("Mon 02 Jan"))
			if u.Count > 1 {
				fmt.Fprintf(&b, " (%d× this week)", u.Count)
			}
			b.WriteByte('\n')
		}
	}

	fmt.Fprintf(&b, "\n⭐ Level %d · %d EXP · %d to next", view.Level, view.TotalExp, view.ToNextLevel)
	if view.Streak > 0 {
		fmt.Fprintf(&b, "\n🔥 Streak: %d day(s)", view.Streak)
	}
	return strings.TrimSpace(b.String()), nil
}

func (s *ReminderService) assigneeNames(ctx context.Context, items []AgendaItem) (map[uint]string, error) {
	var ids []uint
	for _, item := range items {
		if !item.Mine {
			ids = append(ids, item.Task.Assignee())
		}
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[uint]string, len(users))
	for id, u := range users {
		names[id] = u.DisplayName()
	}
	return names, nil
}

func formatAgendaItem(item AgendaItem, owner string) string {
	var sb strings.Builder

	icon := "🟢"
	if item.Done {
		icon = "✅"
	}
	fmt.Fprintf(&sb, "%s #%d %s", icon, item.Task.ID, html.EscapeString(strings.TrimSpace(item.Task.Title)))
	if item.Task.ExpValue > 0 {
		fmt.Fprintf(&sb, " <i>(+%d EXP)</i>", item.Task.ExpValue)
	}
	if owner != "" {
		fmt.Fprintf(&sb, " · %s", html.EscapeString(owner))
	}
	if item.Done && item.CompletedBy != nil && item.CompletedBy.Name != "" {
		fmt.Fprintf(&sb, "\n   done by %s", html.EscapeString(item.CompletedBy.Name))
	}
	if item.Task.Description != "" {
		fmt.Fprintf(&sb, "\n   📝 %s", html.EscapeString(strings.TrimSpace(item.Task.Description)))
	}
	sb.WriteByte('\n')
	return sb.String()
}
