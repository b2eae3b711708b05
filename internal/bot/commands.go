package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"household-missions/internal/datekey"
	"household-missions/internal/model"
	"household-missions/internal/repository"
	"household-missions/internal/service"
	"household-missions/internal/suggestion"
)

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("👋 Hi, %s!\n<b>I keep track of household missions and your level.</b>\n\n%s", escape(name), commandList)
	return b.sendText(msg.Chat.ID, text)
}

const commandList = "Commands:\n" +
	"• /today [date] — today's missions\n" +
	"• /newtask — add a mission step by step\n" +
	"• /done &lt;id&gt; [date] — complete an occurrence\n" +
	"• /skip &lt;id&gt; [date] — skip one occurrence\n" +
	"• /delete &lt;id&gt; — delete the whole series\n" +
	"• /level — level, EXP and streak\n" +
	"• /challenges — today's optional challenges\n" +
	"• /join &lt;code&gt; [name] — join a family\n" +
	"• /report — daily summary\n" +
	"• /cancel — cancel the current dialog"

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	return b.sendText(msg.Chat.ID, "ℹ️ <b>Help</b>\n"+commandList+"\n\nDates use the <code>2026-01-31</code> format.")
}

func (b *Bot) handleToday(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	date := datekey.Midnight(b.now())
	if args := strings.TrimSpace(msg.CommandArguments()); args != "" {
		if date, err = datekey.Parse(args, b.deps.Location); err != nil {
			return b.sendText(msg.Chat.ID, "Use the <code>2026-01-31</code> date format.")
		}
	}
	return b.sendAgenda(ctx, msg.Chat.ID, user, date)
}

func (b *Bot) sendAgenda(ctx context.Context, chatID int64, user *model.User, date time.Time) error {
	items, err := b.deps.Tasks.Agenda(ctx, user.ID, date)
	if err != nil {
		return b.sendText(chatID, "Could not load missions: "+escape(err.Error()))
	}
	if len(items) == 0 {
		return b.sendText(chatID, fmt.Sprintf("Nothing planned for %s. Add a mission with /newtask.", datekey.Of(date)))
	}

	text, buttons := formatAgenda(items, datekey.Of(date))
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if len(buttons) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	}
	_, err = b.api.Send(msg)
	return err
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, date, ok, err := b.occurrenceArgs(msg, "/done 12")
	if !ok || err != nil {
		return err
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, b.complete(ctx, user, taskID, date))
}

// complete marks the occurrence done and describes the outcome.
func (b *Bot) complete(ctx context.Context, user *model.User, taskID uint, date time.Time) string {
	res, err := b.deps.Tasks.MarkDone(ctx, taskID, date, user.ID)
	if err != nil {
		return describeErr(err)
	}
	title := escape(normalizeTitle(res.Task.Title))
	if !res.Applied {
		return fmt.Sprintf("«%s» is already done for %s.", title, datekey.Of(date))
	}
	if res.Gain != nil && res.Gain.Exp > 0 {
		return fmt.Sprintf("✅ «%s» done for %s. +%d EXP", title, datekey.Of(date), res.Gain.Exp)
	}
	return fmt.Sprintf("✅ «%s» done for %s.", title, datekey.Of(date))
}

func (b *Bot) handleSkip(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, date, ok, err := b.occurrenceArgs(msg, "/skip 12 2026-01-31")
	if !ok || err != nil {
		return err
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, b.skip(ctx, user, taskID, date))
}

func (b *Bot) skip(ctx context.Context, user *model.User, taskID uint, date time.Time) string {
	task, applied, err := b.deps.Tasks.SkipOccurrence(ctx, taskID, date, user.ID)
	if err != nil {
		return describeErr(err)
	}
	if !applied {
		return fmt.Sprintf("%s is already skipped.", datekey.Of(date))
	}
	return fmt.Sprintf("⏭ «%s» skipped on %s. The series continues.", escape(normalizeTitle(task.Title)), datekey.Of(date))
}

// handleDelete asks for confirmation before archiving the whole series.
func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, err := parseID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give the mission id: /delete 12")
	}
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	return b.askDeleteConfirmation(ctx, msg.Chat.ID, msg.From, taskID)
}

func (b *Bot) askDeleteConfirmation(ctx context.Context, chatID int64, from *tgbotapi.User, taskID uint) error {
	task, err := b.deps.Tasks.GetTask(ctx, taskID)
	if err != nil {
		return b.sendText(chatID, describeErr(err))
	}
	text := fmt.Sprintf("Delete the whole series «%s» (#%d)? Use /skip to drop a single day instead.", escape(normalizeTitle(task.Title)), task.ID)
	b.setConfirmation(from.ID, task.ID)
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) handleDeleteConfirmation(ctx context.Context, msg *tgbotapi.Message, taskID uint) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearConfirmation(msg.From.ID)
		user, err := b.ensureUser(ctx, msg.From)
		if err != nil {
			return err
		}
		task, _, err := b.deps.Tasks.DeleteSeries(ctx, taskID, user.ID)
		if err != nil {
			return b.sendText(msg.Chat.ID, describeErr(err))
		}
		return b.sendText(msg.Chat.ID, fmt.Sprintf("🗑 «%s» deleted.", escape(normalizeTitle(task.Title))))
	case isBackInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Kept it.")
	default:
		return b.sendWithReplyMarkup(msg.Chat.ID, "Confirm or cancel the deletion.", confirmKeyboard())
	}
}

func (b *Bot) handleLevel(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	view, err := b.deps.Progress.Progress(ctx, user.ID)
	if err != nil {
		return b.sendText(msg.Chat.ID, describeErr(err))
	}
	return b.sendText(msg.Chat.ID, formatProgress(view))
}

func (b *Bot) handleChallenges(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	batch, err := b.deps.Suggestions.Generate(ctx, user.ID)
	if err != nil {
		return b.sendText(msg.Chat.ID, describeErr(err))
	}
	return b.sendChallenges(msg.Chat.ID, batch)
}

func (b *Bot) sendChallenges(chatID int64, batch []model.Suggestion) error {
	if len(batch) == 0 {
		return b.sendText(chatID, "No challenges left for today. Come back tomorrow!")
	}
	text, buttons := formatChallenges(batch)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) handleJoin(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		return b.sendText(msg.Chat.ID, "Give the family code: /join smiths")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	family, err := b.deps.Families.Join(ctx, user.ID, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return b.sendText(msg.Chat.ID, describeErr(err))
	}
	roster, err := b.deps.Families.Roster(ctx, user.ID)
	if err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("👪 You are in family <b>%s</b> with %d member(s).", escape(family.Code), len(roster)))
}

func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text, err := b.deps.Reminders.DailySummary(ctx, *user, b.now())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Could not build the report: "+escape(err.Error()))
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(msg.Text)) {
	case strings.ToLower(menuLabelToday):
		return true, b.handleToday(ctx, msg)
	case strings.ToLower(menuLabelNewTask):
		return true, b.startNewTaskConversation(ctx, msg)
	case strings.ToLower(menuLabelLevel):
		return true, b.handleLevel(ctx, msg)
	case strings.ToLower(menuLabelChallenges):
		return true, b.handleChallenges(ctx, msg)
	default:
		return false, nil
	}
}

// occurrenceArgs parses "<id> [date]". ok is false when a usage hint was sent instead.
func (b *Bot) occurrenceArgs(msg *tgbotapi.Message, usage string) (uint, time.Time, bool, error) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 || len(args) > 2 {
		return 0, time.Time{}, false, b.sendText(msg.Chat.ID, "Usage: "+usage)
	}
	taskID, err := parseID(args[0])
	if err != nil {
		return 0, time.Time{}, false, b.sendText(msg.Chat.ID, "The mission id must be a number.")
	}
	date := datekey.Midnight(b.now())
	if len(args) == 2 {
		if date, err = datekey.Parse(args[1], b.deps.Location); err != nil {
			return 0, time.Time{}, false, b.sendText(msg.Chat.ID, "Use the <code>2026-01-31</code> date format.")
		}
	}
	return taskID, date, true, nil
}

func parseID(raw string) (uint, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(value), nil
}

// describeErr turns service errors into chat replies.
func describeErr(err error) string {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return "Mission not found."
	case errors.Is(err, suggestion.ErrNotFound):
		return "That challenge is gone."
	case errors.Is(err, suggestion.ErrForbidden):
		return "That challenge was offered to someone else."
	case errors.Is(err, service.ErrNoOccurrence):
		return "That mission does not happen on this day."
	case errors.Is(err, service.ErrForbidden):
		return "That mission belongs to another household."
	case errors.Is(err, service.ErrInvalidTask):
		return escape(err.Error())
	default:
		return "Something went wrong: " + escape(err.Error())
	}
}
