package bot

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"household-missions/internal/events"
	"household-missions/internal/model"
	"household-missions/internal/repository"
	"household-missions/internal/service"
	"household-missions/internal/suggestion"
	"household-missions/internal/testutil"
)

type fakeSender struct {
	mu       sync.Mutex
	messages []tgbotapi.MessageConfig
	acks     []tgbotapi.CallbackConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.messages = append(f.messages, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		f.acks = append(f.acks, cb)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.messages)
	return f.messages[len(f.messages)-1]
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type botEnv struct {
	db    *gorm.DB
	api   *fakeSender
	bot   *Bot
	tasks *service.TaskService
	gen   *suggestion.Generator
	users *repository.UserRepository
	from  *tgbotapi.User
}

const chatID = 5001

func newBotEnv(t *testing.T) *botEnv {
	t.Helper()
	db := testutil.NewDB(t)
	clock := testutil.NewClock(time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC))
	opts := service.Options{Location: time.UTC, Now: clock.Now}
	bus := events.NewBus(nil)
	t.Cleanup(bus.Drain)

	users := repository.NewUserRepository(db)
	families := repository.NewFamilyRepository(db)
	grants := repository.NewGrantRepository(db)
	tasks := service.NewTaskService(repository.NewTaskRepository(db), families, users, bus, opts)
	progress := service.NewProgressService(users, grants, 30, opts)
	gen := suggestion.NewGenerator(repository.NewSuggestionRepository(db), suggestion.Pool{
		{Key: "windows", Title: "Wash the windows", ExpValue: 30},
		{Key: "fridge", Title: "Clean the fridge", ExpValue: 20},
	}, bus, suggestion.Options{PoolSize: 2, Location: time.UTC, Now: clock.Now, Rand: rand.New(rand.NewPCG(5, 6))})

	api := &fakeSender{}
	b := newBot(api, Deps{
		Users:       users,
		Tasks:       tasks,
		Progress:    progress,
		Families:    service.NewFamilyService(families, nil),
		Reminders:   service.NewReminderService(tasks, progress, users),
		Suggestions: gen,
		Location:    time.UTC,
		Now:         clock.Now,
	})
	return &botEnv{
		db:    db,
		api:   api,
		bot:   b,
		tasks: tasks,
		gen:   gen,
		users: users,
		from:  &tgbotapi.User{ID: chatID, FirstName: "Ann", UserName: "ann"},
	}
}

func (e *botEnv) say(t *testing.T, text string) tgbotapi.MessageConfig {
	t.Helper()
	msg := &tgbotapi.Message{
		From: e.from,
		Chat: &tgbotapi.Chat{ID: chatID, Type: "private"},
		Text: text,
	}
	if strings.HasPrefix(text, "/") {
		cmd := strings.Fields(text)[0]
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	e.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: msg})
	return e.api.last(t)
}

func (e *botEnv) press(t *testing.T, data string) {
	t.Helper()
	e.pressAs(t, e.from, data)
}

func (e *botEnv) pressAs(t *testing.T, from *tgbotapi.User, data string) {
	t.Helper()
	cb := &tgbotapi.CallbackQuery{
		ID:      "cb-" + data,
		From:    from,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID, Type: "private"}},
		Data:    data,
	}
	e.bot.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: cb})
}

func (e *botEnv) user(t *testing.T) *model.User {
	t.Helper()
	u, err := e.users.FindByTelegramID(context.Background(), chatID)
	require.NoError(t, err)
	return u
}

func inlineData(t *testing.T, msg tgbotapi.MessageConfig) []string {
	t.Helper()
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok, "expected inline keyboard")
	var out []string
	for _, row := range markup.InlineKeyboard {
		for _, btn := range row {
			if btn.CallbackData != nil {
				out = append(out, *btn.CallbackData)
			}
		}
	}
	return out
}

func TestStartRegistersUser(t *testing.T) {
	e := newBotEnv(t)

	reply := e.say(t, "/start")
	assert.Contains(t, reply.Text, "Hi, Ann!")
	assert.Equal(t, tgbotapi.ModeHTML, reply.ParseMode)

	u := e.user(t)
	require.NotNil(t, u.TelegramID)
	assert.Equal(t, int64(chatID), *u.TelegramID)
}

func TestNewTaskConversation(t *testing.T) {
	e := newBotEnv(t)

	assert.Contains(t, e.say(t, "/newtask").Text, "Step 1")
	assert.Contains(t, e.say(t, "water plants").Text, "description")
	assert.Contains(t, e.say(t, btnSkip).Text, "First day")
	assert.Contains(t, e.say(t, "31/12").Text, "could not read")
	assert.Contains(t, e.say(t, "skip").Text, "How often")
	assert.Contains(t, e.say(t, "hourly").Text, "Pick one")
	assert.Contains(t, e.say(t, btnDaily).Text, "How much EXP")
	assert.Contains(t, e.say(t, "lots").Text, "number")

	reply := e.say(t, "25")
	assert.Contains(t, reply.Text, "Mission saved")
	assert.Contains(t, reply.Text, "Water plants")
	assert.Contains(t, reply.Text, "every day")
	assert.Contains(t, reply.Text, "2026-06-10")

	var task model.Task
	require.NoError(t, e.db.First(&task).Error)
	assert.Equal(t, model.RecurDaily, task.RecurType)
	assert.Equal(t, 25, task.ExpValue)
	assert.Equal(t, e.user(t).ID, task.CreatedByUserID)
	assert.False(t, e.bot.hasConversation(chatID))
}

func TestCancelDropsConversation(t *testing.T) {
	e := newBotEnv(t)

	e.say(t, "/newtask")
	assert.Contains(t, e.say(t, btnCancelDialog).Text, "Cancelled")
	assert.False(t, e.bot.hasConversation(chatID))
	assert.Contains(t, e.say(t, "hello").Text, "did not get that")
}

func TestTodayAndDoneCallback(t *testing.T) {
	e := newBotEnv(t)
	e.say(t, "/start")
	task, err := e.tasks.CreateTask(context.Background(), e.user(t).ID, service.TaskInput{Title: "dishes", Recurrence: "daily", ExpValue: 15})
	require.NoError(t, err)

	agenda := e.say(t, "/today")
	assert.Contains(t, agenda.Text, "Missions for 2026-06-10")
	assert.Contains(t, agenda.Text, "Dishes (+15 EXP)")
	doneData := fmt.Sprintf("done:%d:2026-06-10", task.ID)
	assert.Equal(t, []string{doneData, fmt.Sprintf("skip:%d:2026-06-10", task.ID)}, inlineData(t, agenda))

	e.press(t, doneData)
	assert.Contains(t, e.api.last(t).Text, "+15 EXP")

	e.press(t, doneData)
	assert.Contains(t, e.api.last(t).Text, "already done")

	again := e.say(t, "/today")
	assert.Contains(t, again.Text, "✅ #")
	assert.Nil(t, again.ReplyMarkup, "no buttons once everything is done")
}

func TestDoneAndSkipCommands(t *testing.T) {
	e := newBotEnv(t)
	e.say(t, "/start")
	task, err := e.tasks.CreateTask(context.Background(), e.user(t).ID, service.TaskInput{Title: "trash", Recurrence: "weekly", ExpValue: 5})
	require.NoError(t, err)

	assert.Contains(t, e.say(t, "/done").Text, "Usage")
	assert.Contains(t, e.say(t, "/done abc").Text, "must be a number")
	assert.Contains(t, e.say(t, fmt.Sprintf("/done %d 2026-06-11", task.ID)).Text, "does not happen")
	assert.Contains(t, e.say(t, "/done 999").Text, "not found")

	assert.Contains(t, e.say(t, fmt.Sprintf("/skip %d 2026-06-17", task.ID)).Text, "skipped on 2026-06-17")
	assert.Contains(t, e.say(t, fmt.Sprintf("/skip %d 2026-06-17", task.ID)).Text, "already skipped")
	assert.Contains(t, e.say(t, fmt.Sprintf("/done %d", task.ID)).Text, "+5 EXP")
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	e := newBotEnv(t)
	e.say(t, "/start")
	task, err := e.tasks.CreateTask(context.Background(), e.user(t).ID, service.TaskInput{Title: "laundry", Recurrence: "weekly"})
	require.NoError(t, err)

	prompt := e.say(t, fmt.Sprintf("/delete %d", task.ID))
	assert.Contains(t, prompt.Text, "Delete the whole series")
	assert.Contains(t, e.say(t, "maybe").Text, "Confirm or cancel")
	assert.Contains(t, e.say(t, btnCancel).Text, "Kept it")

	e.say(t, fmt.Sprintf("/delete %d", task.ID))
	assert.Contains(t, e.say(t, btnConfirm).Text, "deleted")

	stored, err := e.tasks.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.True(t, stored.Archived)
}

func TestChallengesAcceptAndDecline(t *testing.T) {
	e := newBotEnv(t)
	e.say(t, "/start")

	offer := e.say(t, "/challenges")
	assert.Contains(t, offer.Text, "Today's challenges")
	data := inlineData(t, offer)
	require.Len(t, data, 4)

	// Rows are [accept, decline] per challenge.
	accept, decline := data[0], data[3]
	require.True(t, strings.HasPrefix(accept, cbAcceptPrefix))
	require.True(t, strings.HasPrefix(decline, cbDeclinePrefix))

	e.press(t, accept)
	assert.Contains(t, e.api.last(t).Text, "Challenge accepted")

	sent := e.api.count()
	e.press(t, accept)
	assert.Equal(t, sent, e.api.count(), "a second tap only acks")

	e.press(t, decline)
	assert.Contains(t, e.api.last(t).Text, "Skipped")

	var tasks []model.Task
	require.NoError(t, e.db.Find(&tasks).Error)
	assert.Len(t, tasks, 1)

	assert.Contains(t, e.say(t, "/challenges").Text, "No challenges left")
}

func TestChallengeButtonsOnlyWorkForTheirOwner(t *testing.T) {
	e := newBotEnv(t)
	e.say(t, "/start")

	data := inlineData(t, e.say(t, "/challenges"))
	require.Len(t, data, 4)

	stranger := &tgbotapi.User{ID: 7007, FirstName: "Max"}
	e.pressAs(t, stranger, data[0])
	assert.Contains(t, e.api.last(t).Text, "offered to someone else")
	e.pressAs(t, stranger, data[1])
	assert.Contains(t, e.api.last(t).Text, "offered to someone else")

	var tasks int64
	require.NoError(t, e.db.Model(&model.Task{}).Count(&tasks).Error)
	assert.Zero(t, tasks)

	pending, err := e.gen.Pending(context.Background(), e.user(t).ID)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestLevelAndJoin(t *testing.T) {
	e := newBotEnv(t)

	level := e.say(t, "/level")
	assert.Contains(t, level.Text, "Level 1")
	assert.Contains(t, level.Text, "To level 2: 100 EXP")

	assert.Contains(t, e.say(t, "/join").Text, "family code")
	assert.Contains(t, e.say(t, "/join Smiths The Smiths").Text, "<b>smiths</b> with 1 member(s)")
}

func TestMenuAliases(t *testing.T) {
	e := newBotEnv(t)
	assert.Contains(t, e.say(t, menuLabelLevel).Text, "Level 1")
	assert.Contains(t, e.say(t, menuLabelToday).Text, "Nothing planned")
	assert.Contains(t, e.say(t, menuLabelNewTask).Text, "Step 1")
}

func TestLevelChangedNotice(t *testing.T) {
	e := newBotEnv(t)
	e.say(t, "/start")
	before := e.api.count()

	e.bot.handleLevelChanged(context.Background(), events.NewLevelChanged(e.user(t).ID, 1, 2, 120, time.Now()))
	require.Equal(t, before+1, e.api.count())
	notice := e.api.last(t)
	assert.Equal(t, int64(chatID), notice.ChatID)
	assert.Contains(t, notice.Text, "level 2 with 120 EXP")

	offline := testutil.CreateUser(t, e.db, "Bob")
	e.bot.handleLevelChanged(context.Background(), events.NewLevelChanged(offline.ID, 1, 2, 100, time.Now()))
	assert.Equal(t, before+1, e.api.count())
}

func TestSendDailyReportsSkipsUsersWithoutTelegram(t *testing.T) {
	e := newBotEnv(t)
	e.say(t, "/start")
	testutil.CreateUser(t, e.db, "Bob")
	before := e.api.count()

	require.NoError(t, e.bot.SendDailyReports(context.Background()))
	assert.Equal(t, before+1, e.api.count())
	assert.Contains(t, e.api.last(t).Text, "Level 1")
}

func TestParseOccurrenceData(t *testing.T) {
	id, key, err := parseOccurrenceData("done:12:2026-01-31", cbDonePrefix)
	require.NoError(t, err)
	assert.Equal(t, uint(12), id)
	assert.Equal(t, "2026-01-31", string(key))

	for _, bad := range []string{"done:12", "done:x:2026-01-31", "done:3:31-01-2026"} {
		_, _, err := parseOccurrenceData(bad, cbDonePrefix)
		assert.Error(t, err, bad)
	}
}
