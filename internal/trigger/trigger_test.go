package trigger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"household-missions/internal/completion"
	"household-missions/internal/datekey"
	"household-missions/internal/events"
	"household-missions/internal/model"
	"household-missions/internal/progression"
	"household-missions/internal/repository"
	"household-missions/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofType(t events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

var at = time.Date(2026, 8, 3, 20, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*gorm.DB, *LevelTrigger, *recorder) {
	t.Helper()
	db := testutil.NewDB(t)
	pub := &recorder{}
	trg := New(repository.NewGrantRepository(db), repository.NewTaskRepository(db), progression.NewEngine(nil), pub,
		Options{Location: time.UTC, Now: func() time.Time { return at }})
	return db, trg, pub
}

func loadUser(t *testing.T, db *gorm.DB, id uint) model.User {
	t.Helper()
	var u model.User
	require.NoError(t, db.First(&u, id).Error)
	return u
}

func TestApplyCreditsOnceAndAnnouncesLevelUp(t *testing.T) {
	db, trg, pub := setup(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "Kai")

	gain := completion.ExpGain{TaskID: 1, UserID: user.ID, ActorID: user.ID, Exp: 130, Occurrence: "2026-08-03"}
	ev := events.NewOccurrenceCompleted(gain, at)

	res, err := trg.Apply(ctx, ev)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.True(t, res.LeveledUp())

	// Redelivery of the same event, and a fresh event for the same occurrence.
	res, err = trg.Apply(ctx, ev)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	res, err = trg.Apply(ctx, events.NewOccurrenceCompleted(gain, at))
	require.NoError(t, err)
	assert.False(t, res.Applied)

	u := loadUser(t, db, user.ID)
	assert.Equal(t, 130, u.TotalExp)
	assert.Equal(t, 2, u.Level)

	levels := pub.ofType(events.LevelChanged)
	require.Len(t, levels, 1)
	assert.Equal(t, events.LevelChange{From: 1, To: 2, TotalExp: 130}, *levels[0].Level)
}

func TestApplyConcurrentDeliveriesCreditOnce(t *testing.T) {
	db, trg, _ := setup(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "Noa")
	gain := completion.ExpGain{TaskID: 4, UserID: user.ID, Exp: 40, Occurrence: "2026-08-01"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := trg.Apply(ctx, events.NewOccurrenceCompleted(gain, at))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 40, loadUser(t, db, user.ID).TotalExp)
}

func TestApplyZeroExpRecordsGrantWithoutChange(t *testing.T) {
	db, trg, pub := setup(t)
	user := testutil.CreateUser(t, db, "Ivo")

	res, err := trg.Apply(context.Background(), events.NewOccurrenceCompleted(
		completion.ExpGain{TaskID: 2, UserID: user.ID, Exp: 0, Occurrence: "2026-08-02"}, at))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, res.Before, res.After)
	assert.Empty(t, pub.ofType(events.LevelChanged))

	var count int64
	require.NoError(t, db.Model(&model.ExpGrant{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestApplyRejectsEventsWithoutGain(t *testing.T) {
	_, trg, _ := setup(t)
	_, err := trg.Apply(context.Background(), events.NewLevelChanged(1, 1, 2, 100, at))
	assert.Error(t, err)
}

func TestReconcileReplaysMissingGrants(t *testing.T) {
	db, trg, pub := setup(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "Ada")
	tasks := repository.NewTaskRepository(db)

	due := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	daily := &model.Task{CreatedByUserID: user.ID, Title: "feed cat", RecurType: model.RecurDaily, DueDate: &due, ExpValue: 10}
	require.NoError(t, tasks.Create(ctx, daily))
	actor := completion.Actor{UserID: user.ID, Name: "Ada"}
	_, _, err := tasks.Update(ctx, daily.ID, func(tk *model.Task) (bool, error) {
		completion.MarkDone(tk, due, actor, at)
		completion.MarkDone(tk, due.AddDate(0, 0, 1), actor, at)
		return true, nil
	})
	require.NoError(t, err)

	oneOff := &model.Task{CreatedByUserID: user.ID, Title: "fix shelf", DueDate: &due, ExpValue: 25}
	require.NoError(t, tasks.Create(ctx, oneOff))
	_, _, err = tasks.Update(ctx, oneOff.ID, func(tk *model.Task) (bool, error) {
		completion.MarkDone(tk, due, actor, at)
		return true, nil
	})
	require.NoError(t, err)

	// One of the three completions already paid out.
	_, err = trg.Apply(ctx, events.NewOccurrenceCompleted(completion.Owed(daily, "2026-08-01", user.ID), at))
	require.NoError(t, err)

	n, err := trg.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	replayed := pub.ofType(events.OccurrenceCompleted)
	require.Len(t, replayed, 2)
	for _, ev := range replayed {
		_, err := trg.Apply(ctx, ev)
		require.NoError(t, err)
	}
	assert.Equal(t, 45, loadUser(t, db, user.ID).TotalExp)

	n, err = trg.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCompletedKeys(t *testing.T) {
	due := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	legacyAt := time.Date(2026, 8, 4, 9, 0, 0, 0, time.UTC)

	weekly := &model.Task{RecurType: model.RecurWeekly, DueDate: &due, CompletedAt: &legacyAt}
	assert.Equal(t, datekey.Set{"2026-08-04"}, CompletedKeys(weekly, time.UTC))

	weekly.CompletedDates = datekey.Set{"2026-08-08"}
	assert.Equal(t, datekey.Set{"2026-08-08"}, CompletedKeys(weekly, time.UTC))

	single := &model.Task{DueDate: &due}
	assert.Nil(t, CompletedKeys(single, time.UTC))
	single.Completed = true
	assert.Equal(t, datekey.Set{"2026-08-01"}, CompletedKeys(single, time.UTC))
}

func TestAttachRoutesBusEvents(t *testing.T) {
	db, trg, _ := setup(t)
	user := testutil.CreateUser(t, db, "Bo")
	bus := events.NewBus(nil)
	trg.Attach(bus)

	bus.Publish(context.Background(), events.NewOccurrenceCompleted(
		completion.ExpGain{TaskID: 9, UserID: user.ID, Exp: 15, Occurrence: "2026-08-03"}, at))
	bus.Drain()

	assert.Equal(t, 15, loadUser(t, db, user.ID).TotalExp)
}
