package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"comingsoon/internal/model"
)

const (
	cmdStats  = "stats"
	cmdLatest = "latest"
	cmdLead   = "lead"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Request(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, arg, ok := strings.Cut(cb.Data, ":")
	if !ok {
		return
	}

	var userID int64
	var userName string
	if cb.From != nil {
		userID, userName = cb.From.ID, cb.From.UserName
	}
	b.log.Info("callback",
		"action", action,
		"arg", arg,
		"chat_id", chatID,
		"user_id", userID,
		"username", userName,
	)

	switch action {
	case cmdLead:
		b.handleLead(ctx, chatID, arg)
	case cmdStats:
		b.handleStats(ctx, chatID)
	}
}

// leadKeyboard builds one "details" button per record.
func leadKeyboard(records []model.DisplayRecord) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(records) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(records))
	for i, r := range records {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d. %s", i+1, r.Email), cmdLead+":"+r.ID),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}
