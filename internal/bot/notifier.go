// Package bot wires the Telegram front-end: user commands for leasing
// numbers, the admin dashboard, and outbound notifications.
package bot

import (
	"context"
	"log/slog"

	"otprelay/core/logger"
	"otprelay/core/telegram/sender"
	"otprelay/internal/otp"

	tele "gopkg.in/telebot.v4"
)

// Notifier pushes messages originating outside handler context (panel
// deliveries, sweep notices, broadcasts) through the async dispatcher.
type Notifier struct {
	Bot        *tele.Bot
	Dispatcher *sender.Dispatcher
	LogChatIDs []int64
}

func (n *Notifier) send(ctx context.Context, chatID int64, text string, opts *tele.SendOptions) {
	run := func() error {
		var err error
		if opts != nil {
			_, err = n.Bot.Send(&tele.Chat{ID: chatID}, text, opts)
		} else {
			_, err = n.Bot.Send(&tele.Chat{ID: chatID}, text)
		}
		return err
	}
	if n.Dispatcher == nil {
		if err := run(); err != nil {
			logger.Warn(ctx, "tg", "notify.fail",
				slog.Int64("chat_id", chatID),
				slog.String("err", logger.Sanitize(err.Error())),
			)
		}
		return
	}
	if err := n.Dispatcher.Enqueue(ctx, "notify", "sendMessage", run); err != nil {
		logger.Warn(ctx, "tg", "notify.enqueue.fail",
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
	}
}

// NotifyHolder sends an HTML message to the lease holder's private chat.
func (n *Notifier) NotifyHolder(ctx context.Context, holder int64, text string) {
	n.send(ctx, holder, text, &tele.SendOptions{ParseMode: tele.ModeHTML})
}

// NotifyLog mirrors an HTML message to every configured log chat.
func (n *Notifier) NotifyLog(ctx context.Context, text string) {
	for _, id := range n.LogChatIDs {
		n.send(ctx, id, text, &tele.SendOptions{ParseMode: tele.ModeHTML})
	}
}

// NotifyText sends a plain-text message to one chat.
func (n *Notifier) NotifyText(ctx context.Context, chatID int64, text string) {
	n.send(ctx, chatID, text, nil)
}

// NotifyReclaimed tells the log chats which numbers a sweep returned to the
// pool.
func (n *Notifier) NotifyReclaimed(ctx context.Context, values []string) {
	if len(values) == 0 {
		return
	}
	text := "⏳ Leases expired, numbers returned to pool:\n"
	for _, v := range values {
		text += "• <code>" + otp.MaskNumber(v) + "</code>\n"
	}
	n.NotifyLog(ctx, text)
}
