package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"household-missions/internal/datekey"
	"household-missions/internal/model"
	"household-missions/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageDescription
	stageDueDate
	stageRecurrence
	stageExp
)

const defaultTaskExp = 10

type conversationState struct {
	stage conversationStage
	input service.TaskInput
}

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	b.setConversation(msg.From.ID, &conversationState{stage: stageTitle})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 New mission.\n<b>Step 1:</b> what should it be called?", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageTitle:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "The title cannot be empty.", cancelKeyboard())
		}
		state.input.Title = text
		state.stage = stageDescription
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ Add a short description (or press «Skip»).", skipKeyboard())
	case stageDescription:
		if !isSkipInput(text) {
			state.input.Description = text
		}
		state.stage = stageDueDate
		return b.sendWithReplyMarkup(msg.Chat.ID, "📅 First day, as <code>2026-01-31</code> (or «Skip» for today).", skipKeyboard())
	case stageDueDate:
		if !isSkipInput(text) {
			due, err := datekey.Parse(text, b.deps.Location)
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "I could not read that date. Use <code>2026-01-31</code> or «Skip».", skipKeyboard())
			}
			state.input.DueDate = &due
		}
		state.stage = stageRecurrence
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔁 How often does it repeat?", recurrenceKeyboard())
	case stageRecurrence:
		kind, ok := recurrenceFromInput(text)
		if !ok {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Pick one of the buttons.", recurrenceKeyboard())
		}
		state.input.Recurrence = string(kind)
		state.stage = stageExp
		return b.sendWithReplyMarkup(msg.Chat.ID, fmt.Sprintf("⭐ How much EXP is it worth? (or «Skip» for %d)", defaultTaskExp), skipKeyboard())
	case stageExp:
		state.input.ExpValue = defaultTaskExp
		if !isSkipInput(text) {
			exp, err := strconv.Atoi(text)
			if err != nil || exp < 0 || exp > model.MaxExpValue {
				return b.sendWithReplyMarkup(msg.Chat.ID, fmt.Sprintf("EXP must be a number from 0 to %d.", model.MaxExpValue), skipKeyboard())
			}
			state.input.ExpValue = exp
		}
		err := b.finishTaskCreation(ctx, msg.From, state.input, msg.Chat.ID)
		b.clearConversation(msg.From.ID)
		return err
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "The dialog was reset. Start again with /newtask.")
	}
}

func (b *Bot) finishTaskCreation(ctx context.Context, from *tgbotapi.User, input service.TaskInput, chatID int64) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}
	task, err := b.deps.Tasks.CreateTask(ctx, user.ID, input)
	if err != nil {
		return b.sendText(chatID, "Could not save the mission: "+describeErr(err))
	}

	var summary strings.Builder
	summary.WriteString("✅ <b>Mission saved</b>\n")
	fmt.Fprintf(&summary, "• <b>ID:</b> %d\n", task.ID)
	fmt.Fprintf(&summary, "• <b>Title:</b> %s\n", escape(normalizeTitle(task.Title)))
	if task.Description != "" {
		fmt.Fprintf(&summary, "• <b>Description:</b> %s\n", escape(task.Description))
	}
	if task.DueDate != nil {
		fmt.Fprintf(&summary, "• <b>Starts:</b> %s\n", datekey.Of(task.DueDate.In(b.deps.Location)))
	}
	fmt.Fprintf(&summary, "• <b>Repeats:</b> %s\n", recurrenceLabel(task.RecurType))
	fmt.Fprintf(&summary, "• <b>EXP:</b> %d", task.ExpValue)
	return b.sendText(chatID, summary.String())
}

func recurrenceFromInput(text string) (model.RecurrenceType, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case strings.ToLower(btnOnce), "none", "once":
		return model.RecurNone, true
	case strings.ToLower(btnDaily), "daily":
		return model.RecurDaily, true
	case strings.ToLower(btnWeekly), "weekly":
		return model.RecurWeekly, true
	case strings.ToLower(btnMonthly), "monthly":
		return model.RecurMonthly, true
	default:
		return model.RecurNone, false
	}
}
