// Package trigger applies EXP gains to users exactly once per completed occurrence and
// announces level changes.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"household-missions/internal/completion"
	"household-missions/internal/datekey"
	"household-missions/internal/events"
	"household-missions/internal/metrics"
	"household-missions/internal/model"
	"household-missions/internal/progression"
	"household-missions/internal/repository"
)

// Publisher receives level and replayed completion events.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event)
}

// Ledger is the grant store backing exactly-once application.
type Ledger interface {
	Apply(ctx context.Context, grant model.ExpGrant, apply func(progression.State) progression.State) (before, after progression.State, applied bool, err error)
	Granted(ctx context.Context, taskIDs []uint) (map[uint]datekey.Set, error)
}

// CompletedTasks lists tasks carrying completion facts.
type CompletedTasks interface {
	ListWithCompletions(ctx context.Context) ([]model.Task, error)
}

// Result describes one handled gain.
type Result struct {
	Applied bool
	Before  progression.State
	After   progression.State
}

// LeveledUp reports whether the gain moved the user to a higher level.
func (r Result) LeveledUp() bool {
	return r.Applied && r.After.Level > r.Before.Level
}

type Options struct {
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// LevelTrigger consumes OccurrenceCompleted events.
type LevelTrigger struct {
	ledger  Ledger
	tasks   CompletedTasks
	engine  *progression.Engine
	pub     Publisher
	loc     *time.Location
	now     func() time.Time
	log     *slog.Logger
	metrics *metrics.Metrics
}

func New(ledger Ledger, tasks CompletedTasks, engine *progression.Engine, pub Publisher, opts Options) *LevelTrigger {
	t := &LevelTrigger{
		ledger:  ledger,
		tasks:   tasks,
		engine:  engine,
		pub:     pub,
		loc:     opts.Location,
		now:     opts.Now,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
	if t.loc == nil {
		t.loc = time.Local
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.log == nil {
		t.log = slog.Default()
	}
	if t.engine == nil {
		t.engine = progression.NewEngine(t.log)
	}
	return t
}

// Attach subscribes the trigger to completions on bus.
func (t *LevelTrigger) Attach(bus *events.Bus) {
	bus.Subscribe(events.OccurrenceCompleted, t.Handle)
}

// Handle is the bus handler. Errors are logged; Reconcile heals anything lost here.
func (t *LevelTrigger) Handle(ctx context.Context, ev events.Event) {
	if _, err := t.Apply(ctx, ev); err != nil {
		t.log.Error("apply exp gain", slog.String("event_id", ev.ID), slog.String("error", err.Error()))
	}
}

// Apply credits the gain carried by ev unless its occurrence already paid out.
func (t *LevelTrigger) Apply(ctx context.Context, ev events.Event) (Result, error) {
	if ev.Type != events.OccurrenceCompleted || ev.Gain == nil {
		return Result{}, fmt.Errorf("event %s carries no exp gain", ev.ID)
	}
	gain := *ev.Gain
	at := ev.At
	if at.IsZero() {
		at = t.now()
	}

	grant := model.ExpGrant{
		TaskID:        gain.TaskID,
		OccurrenceKey: gain.Occurrence,
		UserID:        gain.UserID,
		Amount:        gain.Exp,
		EventID:       ev.ID,
		CreatedAt:     at,
	}
	before, after, applied, err := t.ledger.Apply(ctx, grant, func(s progression.State) progression.State {
		return t.engine.ApplyExpGain(s, gain.Exp)
	})
	if err != nil {
		return Result{}, fmt.Errorf("apply grant for task %d on %s: %w", gain.TaskID, gain.Occurrence, err)
	}
	res := Result{Applied: applied, Before: before, After: after}

	if !applied {
		t.metrics.Duplicate()
		t.log.Info("exp gain already granted",
			slog.Uint64("task_id", uint64(gain.TaskID)),
			slog.String("occurrence", string(gain.Occurrence)),
			slog.String("event_id", ev.ID))
		return res, nil
	}

	t.metrics.Granted(after.TotalExp - before.TotalExp)
	if res.LeveledUp() {
		t.metrics.LeveledUp(after.Level - before.Level)
		t.log.Info("level up",
			slog.Uint64("user_id", uint64(gain.UserID)),
			slog.Int("from", before.Level),
			slog.Int("to", after.Level),
			slog.Int("total_exp", after.TotalExp))
		if t.pub != nil {
			t.pub.Publish(ctx, events.NewLevelChanged(gain.UserID, before.Level, after.Level, after.TotalExp, at))
		}
	}
	return res, nil
}

// Reconcile republishes OccurrenceCompleted for every recorded completion that has no
// grant yet. It returns the number of events republished.
func (t *LevelTrigger) Reconcile(ctx context.Context) (int, error) {
	tasks, err := t.tasks.ListWithCompletions(ctx)
	if err != nil {
		return 0, err
	}
	ids := make([]uint, len(tasks))
	for i := range tasks {
		ids[i] = tasks[i].ID
	}
	granted, err := t.ledger.Granted(ctx, ids)
	if err != nil {
		return 0, err
	}

	replayed := 0
	for i := range tasks {
		task := &tasks[i]
		for _, key := range CompletedKeys(task, t.loc) {
			if granted[task.ID].Contains(key) {
				continue
			}
			day, err := key.Time(t.loc)
			if err != nil {
				continue
			}
			stamp, _ := completion.CompletedBy(task, day)
			gain := completion.Owed(task, key, stamp.UserID)
			if gain.UserID == 0 {
				t.log.Warn("completion without credited user", slog.Uint64("task_id", uint64(task.ID)), slog.String("occurrence", string(key)))
				continue
			}
			at := stamp.At
			if at.IsZero() {
				at = t.now()
			}
			if t.pub != nil {
				t.pub.Publish(ctx, events.NewOccurrenceCompleted(gain, at))
			}
			replayed++
		}
	}
	if replayed > 0 {
		t.log.Info("replayed missing grants", slog.Int("count", replayed))
	}
	return replayed, nil
}

// CompletedKeys lists the occurrence keys a task records as completed, including the
// day implied by a legacy completion timestamp.
func CompletedKeys(task *model.Task, loc *time.Location) datekey.Set {
	if completion.ModeOf(task) == completion.PerDate {
		return task.CompletedDates.Union(completion.LegacyKeys(task, loc))
	}
	if !task.Completed {
		return nil
	}
	switch {
	case task.DueDate != nil && !task.DueDate.IsZero():
		return datekey.Set{datekey.Of(task.DueDate.In(loc))}
	case task.CompletedAt != nil:
		return datekey.Set{datekey.Of(task.CompletedAt.In(loc))}
	}
	return nil
}

var _ Ledger = (*repository.GrantRepository)(nil)
