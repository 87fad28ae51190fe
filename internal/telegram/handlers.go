package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"comingsoon/internal/feed"
	"comingsoon/internal/storage"
	"comingsoon/internal/view"
)

const (
	defaultLatest = 5
	maxLatest     = 20
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to the launch page bot!

New subscribers from the coming-soon page are posted to the notification chats.

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Commands:
/stats — subscriber and country totals
/latest [n] — newest subscribers (default 5, max 20)
/lead <id> — full details of one subscriber`)
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	snap, err := feed.Load(ctx, b.store)
	if err != nil {
		b.log.Error("load stats", "error", err)
		b.reply(chatID, "Subscriber data is unavailable right now.")
		return
	}
	b.reply(chatID, FormatStats(snap))
}

func (b *Bot) handleLatest(ctx context.Context, chatID int64, args string) {
	n, err := ParseCountArg(args, defaultLatest, maxLatest)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	snap, err := feed.Load(ctx, b.store)
	if err != nil {
		b.log.Error("load latest", "error", err)
		b.reply(chatID, "Subscriber data is unavailable right now.")
		return
	}

	records := snap.Records
	if len(records) > n {
		records = records[:n]
	}

	msg := tgbotapi.NewMessage(chatID, FormatLatest(records))
	msg.DisableWebPagePreview = true
	if kb, ok := leadKeyboard(records); ok {
		msg.ReplyMarkup = kb
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send latest", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleLead(ctx context.Context, chatID int64, args string) {
	id, err := ParseLeadArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /lead <id>")
		return
	}

	doc, err := b.store.GetDocument(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, fmt.Sprintf("Subscriber %s not found.", id))
		return
	}
	if err != nil {
		b.log.Error("get lead", "id", id, "error", err)
		b.reply(chatID, "Subscriber data is unavailable right now.")
		return
	}

	rec := feed.Decode(*doc)
	b.reply(chatID, FormatDetail(view.NewDetail(&rec)))
}
