package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"household-missions/internal/datekey"
)

const (
	cbDonePrefix    = "done:"
	cbSkipPrefix    = "skip:"
	cbAcceptPrefix  = "accept:"
	cbDeclinePrefix = "decline:"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	chatID := cb.Message.Chat.ID
	data := cb.Data
	b.log.Debug("callback", slog.Int64("from", cb.From.ID), slog.String("data", data))

	switch {
	case strings.HasPrefix(data, cbDonePrefix), strings.HasPrefix(data, cbSkipPrefix):
		b.ack(cb, "")
		done := strings.HasPrefix(data, cbDonePrefix)
		prefix := cbSkipPrefix
		if done {
			prefix = cbDonePrefix
		}
		taskID, key, err := parseOccurrenceData(data, prefix)
		if err != nil {
			return nil
		}
		date, err := datekey.Parse(string(key), b.deps.Location)
		if err != nil {
			return nil
		}
		user, err := b.ensureUser(ctx, cb.From)
		if err != nil {
			return err
		}
		if done {
			return b.sendText(chatID, b.complete(ctx, user, taskID, date))
		}
		return b.sendText(chatID, b.skip(ctx, user, taskID, date))

	case strings.HasPrefix(data, cbAcceptPrefix):
		user, err := b.ensureUser(ctx, cb.From)
		if err != nil {
			b.ack(cb, "")
			return err
		}
		s, applied, err := b.deps.Suggestions.Accept(ctx, strings.TrimPrefix(data, cbAcceptPrefix), user.ID)
		if err != nil {
			b.ack(cb, "")
			return b.sendText(chatID, describeErr(err))
		}
		if !applied {
			b.ack(cb, "Already answered")
			return nil
		}
		b.ack(cb, "Accepted!")
		text := fmt.Sprintf("🎯 Challenge accepted: «%s». It is on today's list as #%d.", escape(s.Title), derefID(s.TaskID))
		return b.sendText(chatID, text)

	case strings.HasPrefix(data, cbDeclinePrefix):
		user, err := b.ensureUser(ctx, cb.From)
		if err != nil {
			b.ack(cb, "")
			return err
		}
		s, applied, err := b.deps.Suggestions.Decline(ctx, strings.TrimPrefix(data, cbDeclinePrefix), user.ID)
		if err != nil {
			b.ack(cb, "")
			return b.sendText(chatID, describeErr(err))
		}
		if !applied {
			b.ack(cb, "Already answered")
			return nil
		}
		b.ack(cb, "Declined")
		return b.sendText(chatID, fmt.Sprintf("👌 Skipped «%s» for today.", escape(s.Title)))

	default:
		b.ack(cb, "")
		return nil
	}
}

func derefID(id *uint) uint {
	if id == nil {
		return 0
	}
	return *id
}
