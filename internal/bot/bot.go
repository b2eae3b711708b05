// Package bot is the Telegram front end of the planner.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"household-missions/internal/events"
	"household-missions/internal/model"
	"household-missions/internal/repository"
	"household-missions/internal/service"
	"household-missions/internal/suggestion"
)

// sender is the part of the Telegram API the bot talks to.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Deps are the services behind the chat commands.
type Deps struct {
	Users       *repository.UserRepository
	Tasks       *service.TaskService
	Progress    *service.ProgressService
	Families    *service.FamilyService
	Reminders   *service.ReminderService
	Suggestions *suggestion.Generator
	Location    *time.Location
	Now         func() time.Time
	Logger      *slog.Logger
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api    sender
	poller *tgbotapi.BotAPI
	deps   Deps
	log    *slog.Logger

	mu            sync.Mutex
	conversations map[int64]*conversationState
	confirmations map[int64]uint
}

func New(token string, deps Deps) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	b := newBot(api, deps)
	b.poller = api
	b.log.Info("bot authorized", slog.String("account", api.Self.UserName))
	return b, nil
}

func newBot(api sender, deps Deps) *Bot {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Bot{
		api:           api,
		deps:          deps,
		log:           deps.Logger,
		conversations: make(map[int64]*conversationState),
		confirmations: make(map[int64]uint),
	}
}

// Attach subscribes the bot to events it announces in chat.
func (b *Bot) Attach(bus *events.Bus) {
	bus.Subscribe(events.LevelChanged, b.handleLevelChanged)
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if b.poller == nil {
		return fmt.Errorf("bot has no telegram connection")
	}
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.poller.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.poller.StopReceivingUpdates()
	}()

	for update := range updates {
		b.handleUpdate(ctx, update)
	}
	return nil
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
			b.log.Error("handle callback", slog.String("error", err.Error()))
		}
	case update.Message != nil:
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			return
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.log.Error("handle message", slog.String("error", err.Error()))
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Cancelled.")
	}

	if msg.IsCommand() {
		b.log.Debug("command", slog.Int64("from", msg.From.ID), slog.String("command", msg.Command()))
		return b.handleCommand(ctx, msg)
	}

	if !b.hasConversation(msg.From.ID) {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if taskID, ok := b.getConfirmation(msg.From.ID); ok {
		return b.handleDeleteConfirmation(ctx, msg, taskID)
	}

	if b.hasConversation(msg.From.ID) {
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "I did not get that. Try /newtask to add a mission or /help for the command list.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "today":
		return b.handleToday(ctx, msg)
	case "done":
		return b.handleDone(ctx, msg)
	case "skip":
		return b.handleSkip(ctx, msg)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "newtask":
		return b.startNewTaskConversation(ctx, msg)
	case "level":
		return b.handleLevel(ctx, msg)
	case "challenges":
		return b.handleChallenges(ctx, msg)
	case "join":
		return b.handleJoin(ctx, msg)
	case "report":
		return b.handleReport(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

// SendDailyReports sends a summary to every user reachable on Telegram.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	users, err := b.deps.Users.ListAll(ctx)
	if err != nil {
		return err
	}
	now := b.now()
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if user.TelegramID == nil {
			continue
		}
		text, err := b.deps.Reminders.DailySummary(ctx, user, now)
		if err != nil {
			b.log.Warn("build summary", slog.Uint64("user_id", uint64(user.ID)), slog.String("error", err.Error()))
			continue
		}
		if err := b.sendText(*user.TelegramID, text); err != nil {
			b.log.Warn("send summary", slog.Uint64("user_id", uint64(user.ID)), slog.String("error", err.Error()))
		}
	}
	return nil
}

func (b *Bot) handleLevelChanged(ctx context.Context, ev events.Event) {
	if ev.Level == nil {
		return
	}
	user, err := b.deps.Users.FindByID(ctx, ev.UserID)
	if err != nil || user.TelegramID == nil {
		return
	}
	text := fmt.Sprintf("🎉 <b>Level up!</b> You reached level %d with %d EXP.", ev.Level.To, ev.Level.TotalExp)
	if err := b.sendText(*user.TelegramID, text); err != nil {
		b.log.Warn("send level-up notice", slog.Uint64("user_id", uint64(user.ID)), slog.String("error", err.Error()))
	}
}

func (b *Bot) now() time.Time {
	return b.deps.Now().In(b.deps.Location)
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.deps.Users.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

func (b *Bot) sendText(chatID int64, text string) error {
	return b.sendWithReplyMarkup(chatID, text, mainMenuKeyboard())
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(text))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) ack(cb *tgbotapi.CallbackQuery, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, text)); err != nil {
		b.log.Debug("callback ack", slog.String("error", err.Error()))
	}
}

func (b *Bot) getConfirmation(userID int64) (uint, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	taskID, ok := b.confirmations[userID]
	return taskID, ok
}

func (b *Bot) setConfirmation(userID int64, taskID uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmations[userID] = taskID
}

func (b *Bot) clearConfirmation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.confirmations, userID)
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}
