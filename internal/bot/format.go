package bot

import (
	"fmt"
	"html"
	"strings"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"household-missions/internal/datekey"
	"household-missions/internal/model"
	"household-missions/internal/service"
)

const (
	btnSkip         = "⏭️ Skip"
	btnConfirm      = "✅ Confirm"
	btnCancel       = "↩️ Keep it"
	btnCancelDialog = "⏪ Cancel input"

	btnOnce    = "Once"
	btnDaily   = "Daily"
	btnWeekly  = "Weekly"
	btnMonthly = "Monthly"

	menuLabelToday      = "📋 Today"
	menuLabelNewTask    = "➕ New mission"
	menuLabelLevel      = "⭐ Level"
	menuLabelChallenges = "🎯 Challenges"
)

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelToday),
			tgbotapi.NewKeyboardButton(menuLabelNewTask),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelLevel),
			tgbotapi.NewKeyboardButton(menuLabelChallenges),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func confirmKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnConfirm),
			tgbotapi.NewKeyboardButton(btnCancel),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func recurrenceKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnOnce),
			tgbotapi.NewKeyboardButton(btnDaily),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnWeekly),
			tgbotapi.NewKeyboardButton(btnMonthly),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func isCancelInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "cancel"
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "skip"
}

func isConfirmInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnConfirm) || value == "confirm" || value == "yes"
}

func isBackInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancel) || value == "no" || value == "keep"
}

func escape(s string) string {
	return html.EscapeString(s)
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func shortTitle(title string, maxLen int) string {
	clean := normalizeTitle(strings.ReplaceAll(title, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func recurrenceLabel(kind model.RecurrenceType) string {
	switch kind {
	case model.RecurDaily:
		return "every day"
	case model.RecurWeekly:
		return "every week"
	case model.RecurMonthly:
		return "every month"
	default:
		return "once"
	}
}

// occurrenceData encodes a callback payload such as "done:12:2026-01-31".
func occurrenceData(prefix string, taskID uint, key datekey.Key) string {
	return fmt.Sprintf("%s%d:%s", prefix, taskID, key)
}

func parseOccurrenceData(data, prefix string) (uint, datekey.Key, error) {
	rest := strings.TrimPrefix(data, prefix)
	idPart, keyPart, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, "", fmt.Errorf("malformed callback %q", data)
	}
	taskID, err := parseID(idPart)
	if err != nil {
		return 0, "", fmt.Errorf("parse callback id: %w", err)
	}
	key := datekey.Key(keyPart)
	if !key.Valid() {
		return 0, "", fmt.Errorf("malformed callback date %q", keyPart)
	}
	return taskID, key, nil
}

// formatAgenda renders the day's missions with one button row per open occurrence.
func formatAgenda(items []service.AgendaItem, date datekey.Key) (string, [][]tgbotapi.InlineKeyboardButton) {
	var builder strings.Builder
	fmt.Fprintf(&builder, "📋 <b>Missions for %s</b>\n\n", date)

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, item := range items {
		builder.WriteString(formatAgendaLine(item))
		builder.WriteByte('\n')
		if item.Done {
			continue
		}
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("✅ #%d · %s", item.Task.ID, shortTitle(item.Task.Title, 20)),
				occurrenceData(cbDonePrefix, item.Task.ID, item.Date),
			),
			tgbotapi.NewInlineKeyboardButtonData("⏭ Skip", occurrenceData(cbSkipPrefix, item.Task.ID, item.Date)),
		))
	}
	return strings.TrimRight(builder.String(), "\n"), buttons
}

func formatAgendaLine(item service.AgendaItem) string {
	icon := "▫️"
	if item.Done {
		icon = "✅"
	}
	line := fmt.Sprintf("%s #%d %s", icon, item.Task.ID, escape(normalizeTitle(item.Task.Title)))
	if item.Task.ExpValue > 0 {
		line += fmt.Sprintf(" (+%d EXP)", item.Task.ExpValue)
	}
	if item.Task.IsRecurring() {
		line += " 🔁"
	}
	if !item.Mine {
		line += " 👪"
	}
	if item.Done && item.CompletedBy != nil && item.CompletedBy.Name != "" {
		line += " — " + escape(item.CompletedBy.Name)
	}
	return line
}

func formatChallenges(batch []model.Suggestion) (string, [][]tgbotapi.InlineKeyboardButton) {
	var builder strings.Builder
	builder.WriteString("🎯 <b>Today's challenges</b>\nAccept the ones you like, they go straight to today's list.\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for i, s := range batch {
		fmt.Fprintf(&builder, "%d. %s (+%d EXP)", i+1, escape(s.Title), s.ExpValue)
		if s.Status != model.SuggestionPending {
			fmt.Fprintf(&builder, " · %s", strings.ToLower(string(s.Status)))
		}
		builder.WriteByte('\n')
		if s.Status != model.SuggestionPending {
			continue
		}
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("👍 %d. %s", i+1, shortTitle(s.Title, 18)), cbAcceptPrefix+s.ID),
			tgbotapi.NewInlineKeyboardButtonData("👎", cbDeclinePrefix+s.ID),
		))
	}
	return strings.TrimRight(builder.String(), "\n"), buttons
}

func formatProgress(view service.ProgressView) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "⭐ <b>Level %d</b>\n", view.Level)
	fmt.Fprintf(&builder, "• Total: %d EXP\n", view.TotalExp)
	fmt.Fprintf(&builder, "• This level: %d / %d\n", view.IntoLevel, view.NextLevelExp-view.LevelFloor)
	fmt.Fprintf(&builder, "• To level %d: %d EXP\n", view.Level+1, view.ToNextLevel)
	if view.Streak > 0 {
		fmt.Fprintf(&builder, "• 🔥 Streak: %d day(s)", view.Streak)
	} else {
		builder.WriteString("• No streak yet. Finish a mission today!")
	}
	return builder.String()
}
