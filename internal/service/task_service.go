package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"household-missions/internal/completion"
	"household-missions/internal/datekey"
	"household-missions/internal/events"
	"household-missions/internal/metrics"
	"household-missions/internal/model"
	"household-missions/internal/recurrence"
	"household-missions/internal/repository"
)

var (
	// ErrNoOccurrence is returned when a task does not occur on the requested date.
	ErrNoOccurrence = errors.New("task does not occur on that date")
	// ErrForbidden is returned when the actor shares no family with the task's owners.
	ErrForbidden = errors.New("task belongs to another household")
	// ErrInvalidTask is returned for task input that cannot be stored.
	ErrInvalidTask = errors.New("invalid task")
)

// Publisher receives domain events.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event)
}

// Options carries the ambient collaborators shared by services.
type Options struct {
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title       string
	Description string
	DueDate     *time.Time
	Recurrence  string
	ExpValue    int
	AssignTo    *uint
}

// CompleteResult reports the outcome of MarkDone. Applied is false when the
// occurrence was already done.
type CompleteResult struct {
	Task    *model.Task
	Applied bool
	Gain    *completion.ExpGain
}

// AgendaItem is one occurrence on a user's day.
type AgendaItem struct {
	Task        model.Task             `json:"task"`
	Date        datekey.Key            `json:"date"`
	Mine        bool                   `json:"mine"`
	Done        bool                   `json:"done"`
	CompletedBy *model.CompletionStamp `json:"completedBy,omitempty"`
}

// Upcoming pairs a task with its next occurrence and how often it occurs in the window.
type Upcoming struct {
	Task  model.Task
	Date  time.Time
	Count int
}

// TaskService wraps task-related business logic.
type TaskService struct {
	tasks    *repository.TaskRepository
	families *repository.FamilyRepository
	users    *repository.UserRepository
	pub      Publisher
	opts     Options
}

func NewTaskService(tasks *repository.TaskRepository, families *repository.FamilyRepository, users *repository.UserRepository, pub Publisher, opts Options) *TaskService {
	return &TaskService{tasks: tasks, families: families, users: users, pub: pub, opts: opts.withDefaults()}
}

func (s *TaskService) today() time.Time {
	return datekey.Midnight(s.opts.Now().In(s.opts.Location))
}

// CreateTask stores a new task for creatorID. Without a due date the task is anchored
// on today.
func (s *TaskService) CreateTask(ctx context.Context, creatorID uint, input TaskInput) (*model.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	kind, ok := model.ParseRecurrence(strings.ToLower(strings.TrimSpace(input.Recurrence)))
	if !ok {
		return nil, fmt.Errorf("%w: unknown recurrence %q", ErrInvalidTask, input.Recurrence)
	}
	if input.ExpValue < 0 || input.ExpValue > model.MaxExpValue {
		return nil, fmt.Errorf("%w: exp must be between 0 and %d", ErrInvalidTask, model.MaxExpValue)
	}

	due := s.today()
	if input.DueDate != nil && !input.DueDate.IsZero() {
		due = datekey.Midnight(input.DueDate.In(s.opts.Location))
	}

	task := model.Task{
		CreatedByUserID: creatorID,
		Title:           title,
		Description:     strings.TrimSpace(input.Description),
		DueDate:         &due,
		RecurType:       kind,
		ExpValue:        input.ExpValue,
	}

	if input.AssignTo != nil && *input.AssignTo != creatorID {
		roster, err := s.families.Roster(ctx, creatorID)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(roster, *input.AssignTo) {
			return nil, ErrForbidden
		}
		assignee := *input.AssignTo
		task.AssignedToUserID = &assignee
		task.AssignedByUserID = &creatorID
	}

	if err := s.tasks.Create(ctx, &task); err != nil {
		return nil, err
	}
	s.opts.Logger.Info("task created", slog.Uint64("task_id", uint64(task.ID)), slog.String("recurrence", string(kind)))
	return &task, nil
}

func (s *TaskService) GetTask(ctx context.Context, taskID uint) (*model.Task, error) {
	return s.tasks.FindByID(ctx, taskID)
}

// OccursOn reports whether the task occurs on date.
func (s *TaskService) OccursOn(ctx context.Context, taskID uint, date time.Time) (bool, error) {
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return false, err
	}
	return recurrence.OccursOn(task, date.In(s.opts.Location)), nil
}

// MarkDone completes the occurrence of a task on date for actorID. Completing an
// occurrence that is already done is not an error and grants nothing.
func (s *TaskService) MarkDone(ctx context.Context, taskID uint, date time.Time, actorID uint) (CompleteResult, error) {
	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return CompleteResult{}, err
	}
	if err := s.authorize(ctx, taskID, actorID); err != nil {
		return CompleteResult{}, err
	}

	date = date.In(s.opts.Location)
	var gain completion.ExpGain
	task, changed, err := s.tasks.Update(ctx, taskID, func(task *model.Task) (bool, error) {
		if !recurrence.OccursOn(task, date) {
			return false, ErrNoOccurrence
		}
		if completion.IsDoneOn(task, date) {
			return false, nil
		}
		gain = completion.MarkDone(task, date, actor, s.opts.Now())
		return true, nil
	})
	if err != nil {
		return CompleteResult{}, err
	}
	if !changed {
		s.opts.Logger.Info("occurrence already done", slog.Uint64("task_id", uint64(taskID)), slog.String("date", string(datekey.Of(date))))
		return CompleteResult{Task: task}, nil
	}

	mode := completion.ModeOf(task)
	s.opts.Metrics.Completed(mode.String())
	s.opts.Logger.Info("occurrence completed",
		slog.Uint64("task_id", uint64(taskID)),
		slog.String("date", string(gain.Occurrence)),
		slog.String("mode", mode.String()),
		slog.Uint64("actor_id", uint64(actorID)))
	if s.pub != nil {
		s.pub.Publish(ctx, events.NewOccurrenceCompleted(gain, s.opts.Now()))
	}
	return CompleteResult{Task: task, Applied: true, Gain: &gain}, nil
}

// SkipOccurrence removes the occurrence on date from the series.
func (s *TaskService) SkipOccurrence(ctx context.Context, taskID uint, date time.Time, actorID uint) (*model.Task, bool, error) {
	if err := s.authorize(ctx, taskID, actorID); err != nil {
		return nil, false, err
	}
	date = date.In(s.opts.Location)
	return s.tasks.Update(ctx, taskID, func(task *model.Task) (bool, error) {
		if task.SkipDates.Contains(datekey.Of(date)) {
			return false, nil
		}
		if !recurrence.OccursOn(task, date) {
			return false, ErrNoOccurrence
		}
		completion.SkipOccurrence(task, date)
		return true, nil
	})
}

// DeleteSeries archives the task so none of its dates occur any more.
func (s *TaskService) DeleteSeries(ctx context.Context, taskID uint, actorID uint) (*model.Task, bool, error) {
	if err := s.authorize(ctx, taskID, actorID); err != nil {
		return nil, false, err
	}
	return s.tasks.Update(ctx, taskID, func(task *model.Task) (bool, error) {
		if task.Archived {
			return false, nil
		}
		completion.DeleteSeries(task)
		return true, nil
	})
}

// Agenda lists every occurrence on date visible to userID: their own tasks and those
// of their family. Mine marks occurrences the user is responsible for.
func (s *TaskService) Agenda(ctx context.Context, userID uint, date time.Time) ([]AgendaItem, error) {
	tasks, err := s.visible(ctx, userID)
	if err != nil {
		return nil, err
	}
	date = date.In(s.opts.Location)
	key := datekey.Of(date)

	var items []AgendaItem
	for _, task := range tasks {
		if !recurrence.OccursOn(&task, date) {
			continue
		}
		item := AgendaItem{
			Task: task,
			Date: key,
			Mine: task.Assignee() == userID,
			Done: completion.IsDoneOn(&task, date),
		}
		if stamp, ok := completion.CompletedBy(&task, date); ok {
			item.CompletedBy = &stamp
		}
		items = append(items, item)
	}
	slices.SortStableFunc(items, func(a, b AgendaItem) int {
		switch {
		case a.Mine != b.Mine:
			if a.Mine {
				return -1
			}
			return 1
		case a.Done != b.Done:
			if !a.Done {
				return -1
			}
			return 1
		default:
			return strings.Compare(a.Task.Title, b.Task.Title)
		}
	})
	return items, nil
}

// Upcoming returns the next occurrence after from for each recurring task of userID
// that occurs within horizon days.
func (s *TaskService) Upcoming(ctx context.Context, userID uint, from time.Time, horizon int) ([]Upcoming, error) {
	tasks, err := s.visible(ctx, userID)
	if err != nil {
		return nil, err
	}
	from = from.In(s.opts.Location)
	var out []Upcoming
	for _, task := range tasks {
		if !task.IsRecurring() || task.Assignee() != userID {
			continue
		}
		next, ok := recurrence.Next(&task, from, horizon)
		if !ok {
			continue
		}
		start := datekey.Midnight(from)
		window := recurrence.Between(&task, datekey.AddDays(start, 1), datekey.AddDays(start, horizon))
		out = append(out, Upcoming{Task: task, Date: next, Count: len(window)})
	}
	slices.SortStableFunc(out, func(a, b Upcoming) int { return a.Date.Compare(b.Date) })
	return out, nil
}

func (s *TaskService) visible(ctx context.Context, userID uint) ([]model.Task, error) {
	roster, err := s.families.Roster(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.tasks.ListForUsers(ctx, roster)
}

func (s *TaskService) actor(ctx context.Context, userID uint) (completion.Actor, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return completion.Actor{}, err
	}
	return completion.Actor{UserID: user.ID, Name: user.DisplayName()}, nil
}

// authorize lets actorID act on a task created by or assigned to someone in their
// family roster.
func (s *TaskService) authorize(ctx context.Context, taskID, actorID uint) error {
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return err
	}
	if task.CreatedByUserID == actorID || task.Assignee() == actorID {
		return nil
	}
	roster, err := s.families.Roster(ctx, actorID)
	if err != nil {
		return err
	}
	if slices.Contains(roster, task.CreatedByUserID) || slices.Contains(roster, task.Assignee()) {
		return nil
	}
	return ErrForbidden
}
