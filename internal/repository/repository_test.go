package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"household-missions/internal/datekey"
	"household-missions/internal/model"
	"household-missions/internal/progression"
	"household-missions/internal/repository"
	"household-missions/internal/testutil"
)

func TestTaskRepository_RoundTripsSetsAndMaps(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewTaskRepository(db)
	ctx := context.Background()

	due := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	task := &model.Task{
		CreatedByUserID: 1,
		Title:           "take out trash",
		DueDate:         &due,
		RecurType:       model.RecurWeekly,
		SkipDates:       datekey.Set{"2026-09-08"},
		ExpValue:        10,
		CompletedDates:  datekey.Set{"2026-09-01"},
		CompletedByByDate: map[datekey.Key]model.CompletionStamp{
			"2026-09-01": {UserID: 1, Name: "Ann", At: due.Add(time.Hour)},
		},
	}
	require.NoError(t, repo.Create(ctx, task))

	found, err := repo.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecurWeekly, found.RecurType)
	assert.Equal(t, task.SkipDates, found.SkipDates)
	assert.Equal(t, task.CompletedDates, found.CompletedDates)
	assert.Equal(t, "Ann", found.CompletedByByDate["2026-09-01"].Name)

	_, err = repo.FindByID(ctx, 999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTaskRepository_UpdateIsSerialised(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewTaskRepository(db)
	ctx := context.Background()

	task := &model.Task{CreatedByUserID: 1, Title: "dishes", RecurType: model.RecurDaily}
	require.NoError(t, repo.Create(ctx, task))

	keys := []datekey.Key{"2026-01-01", "2026-01-02", "2026-01-03", "2026-01-01"}
	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		go func(k datekey.Key) {
			defer wg.Done()
			_, _, err := repo.Update(ctx, task.ID, func(tk *model.Task) (bool, error) {
				tk.CompletedDates = tk.CompletedDates.With(k)
				return true, nil
			})
			assert.NoError(t, err)
		}(k)
	}
	wg.Wait()

	found, err := repo.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, datekey.Set{"2026-01-01", "2026-01-02", "2026-01-03"}, found.CompletedDates)
}

func TestTaskRepository_ListQueries(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewTaskRepository(db)
	ctx := context.Background()

	assignee := uint(2)
	mine := &model.Task{CreatedByUserID: 1, Title: "mine"}
	delegated := &model.Task{CreatedByUserID: 3, AssignedToUserID: &assignee, Title: "for 2"}
	archived := &model.Task{CreatedByUserID: 1, Title: "gone", Archived: true}
	done := &model.Task{CreatedByUserID: 4, Title: "done", Completed: true}
	for _, task := range []*model.Task{mine, delegated, archived, done} {
		require.NoError(t, repo.Create(ctx, task))
	}

	list, err := repo.ListForUsers(ctx, []uint{1, 2})
	require.NoError(t, err)
	var titles []string
	for _, task := range list {
		titles = append(titles, task.Title)
	}
	assert.ElementsMatch(t, []string{"mine", "for 2"}, titles)

	completed, err := repo.ListWithCompletions(ctx)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "done", completed[0].Title)
}

func TestFamilyRepository_Roster(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewFamilyRepository(db)
	ctx := context.Background()

	fam, err := repo.GetOrCreate(ctx, " Smiths ", "The Smiths")
	require.NoError(t, err)
	again, err := repo.GetOrCreate(ctx, "smiths", "")
	require.NoError(t, err)
	assert.Equal(t, fam.ID, again.ID)

	require.NoError(t, repo.Join(ctx, fam.ID, 1))
	require.NoError(t, repo.Join(ctx, fam.ID, 2))
	require.NoError(t, repo.Join(ctx, fam.ID, 2))

	roster, err := repo.Roster(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2}, roster)

	alone, err := repo.Roster(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, []uint{9}, alone)
}

func TestSuggestionRepository_AcceptOnce(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewSuggestionRepository(db)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "Kim")

	s := model.Suggestion{ID: uuid.NewString(), UserID: user.ID, Key: "vacuum", Title: "Vacuum", ExpValue: 30, Status: model.SuggestionPending, DayOffer: "2026-05-05"}
	require.NoError(t, repo.OfferBatch(ctx, user.ID, "2026-05-05", []model.Suggestion{s}))

	now := time.Date(2026, 5, 5, 9, 0, 0, 0, time.UTC)
	applied, err := repo.Accept(ctx, s.ID, now, &model.Task{CreatedByUserID: user.ID, Title: s.Title, ExpValue: s.ExpValue})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.Accept(ctx, s.ID, now, &model.Task{CreatedByUserID: user.ID, Title: s.Title})
	require.NoError(t, err)
	assert.False(t, applied)

	var count int64
	require.NoError(t, db.Model(&model.Task{}).Where("suggestion_id = ?", s.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	got, err := repo.FindUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, datekey.Key("2026-05-05"), got.LastOfferDay)
	assert.True(t, got.LastAcceptedAt["vacuum"].Equal(now))

	declined, err := repo.Decline(ctx, s.ID, now)
	require.NoError(t, err)
	assert.False(t, declined, "accepted suggestions cannot be declined")
}

func TestSuggestionRepository_ExpireBefore(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewSuggestionRepository(db)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "Kim")

	old := model.Suggestion{ID: uuid.NewString(), UserID: user.ID, Key: "a", Status: model.SuggestionPending, DayOffer: "2026-05-04"}
	require.NoError(t, db.Create(&old).Error)
	fresh := model.Suggestion{ID: uuid.NewString(), UserID: user.ID, Key: "b", Status: model.SuggestionPending, DayOffer: "2026-05-05"}
	require.NoError(t, db.Create(&fresh).Error)

	n, err := repo.ExpireBefore(ctx, "2026-05-05")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.FindByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionExpired, got.Status)
}

func TestGrantRepository_ApplyOncePerOccurrence(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewGrantRepository(db)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "Lee")
	engine := progression.NewEngine(nil)

	grant := model.ExpGrant{TaskID: 5, OccurrenceKey: "2026-02-02", UserID: user.ID, Amount: 120}
	apply := func(s progression.State) progression.State { return engine.ApplyExpGain(s, grant.Amount) }

	before, after, applied, err := repo.Apply(ctx, grant, apply)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, progression.State{TotalExp: 0, Level: 1}, before)
	assert.Equal(t, progression.State{TotalExp: 120, Level: 2}, after)

	_, _, applied, err = repo.Apply(ctx, grant, apply)
	require.NoError(t, err)
	assert.False(t, applied)

	var stored model.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	assert.Equal(t, 120, stored.TotalExp)
	assert.Equal(t, 2, stored.Level)
	assert.NotNil(t, stored.LastLevelUpAt)

	granted, err := repo.Granted(ctx, []uint{5, 6})
	require.NoError(t, err)
	assert.Equal(t, datekey.Set{"2026-02-02"}, granted[5])
	assert.Empty(t, granted[6])

	days, err := repo.ActiveDays(ctx, user.ID, "2026-02-01", "2026-02-28")
	require.NoError(t, err)
	assert.Equal(t, datekey.Set{"2026-02-02"}, days)
}

func TestUserRepository_UpsertFromTelegram(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewUserRepository(db)
	ctx := context.Background()

	_, err := repo.FindByTelegramID(ctx, 555)
	require.ErrorIs(t, err, repository.ErrNotFound)

	created, err := repo.UpsertFromTelegram(ctx, 555, "Ann", "", "ann")
	require.NoError(t, err)
	assert.Equal(t, 1, created.Level)

	updated, err := repo.UpsertFromTelegram(ctx, 555, "Anna", "Lee", "anna")
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)

	found, err := repo.FindByTelegramID(ctx, 555)
	require.NoError(t, err)
	assert.Equal(t, "Anna", found.FirstName)
	assert.Equal(t, "Lee", found.LastName)
	assert.Equal(t, "anna", found.Username)

	var count int64
	require.NoError(t, db.Model(&model.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
