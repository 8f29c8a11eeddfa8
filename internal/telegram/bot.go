// Package telegram connects the dialog to the Telegram Bot API over long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Veraticus/pricebot/internal/common"
	"github.com/Veraticus/pricebot/internal/dialog"
	"github.com/Veraticus/pricebot/internal/metrics"
)

// ErrMissingToken is returned when the bot token is not configured.
var ErrMissingToken = fmt.Errorf("%w: telegram bot token", common.ErrMissingConfig)

// Client is the subset of tgbotapi.BotAPI used to send replies.
type Client interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Dispatcher accepts decoded events.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev dialog.Event)
}

// Options configures polling.
type Options struct {
	Token       string
	PollTimeout int
	Debug       bool
}

// Bot receives updates and delivers replies.
type Bot struct {
	api    *tgbotapi.BotAPI
	client Client
	logger common.Logger
	opts   Options
}

// NewBot authenticates against the Bot API.
func NewBot(opts Options, logger common.Logger) (*Bot, error) {
	if opts.Token == "" {
		return nil, ErrMissingToken
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 60
	}

	api, err := tgbotapi.NewBotAPI(opts.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	api.Debug = opts.Debug

	logger.Info("Authorized on Telegram", common.Fields{"username": api.Self.UserName})

	return &Bot{api: api, client: api, logger: logger, opts: opts}, nil
}

// NewSender builds a Bot that can only deliver replies through client.
func NewSender(client Client, logger common.Logger) *Bot {
	return &Bot{client: client, logger: logger}
}

// Run polls for updates until ctx is cancelled, handing each one to d.
func (b *Bot) Run(ctx context.Context, d Dispatcher) error {
	if b.api == nil {
		return errors.New("telegram: bot was created without an API connection")
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = b.opts.PollTimeout
	updates := b.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			ev, ok := EventFromUpdate(update)
			if !ok {
				metrics.UpdatesReceived.WithLabelValues("ignored").Inc()
				continue
			}
			metrics.UpdatesReceived.WithLabelValues(ev.Kind.String()).Inc()
			d.Dispatch(ctx, ev)
		}
	}
}

// EventFromUpdate decodes a Telegram update. Updates the dialog has no use
// for (edits, channel posts, messages from nobody) are reported as not ok.
func EventFromUpdate(update tgbotapi.Update) (dialog.Event, bool) {
	switch {
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		if q.From == nil {
			return dialog.Event{}, false
		}
		ev := dialog.NewButtonEvent(q.From.ID, q.Data)
		ev.CallbackID = q.ID
		if q.Message != nil {
			ev.MessageID = q.Message.MessageID
			if q.Message.Chat != nil {
				ev.ChatID = q.Message.Chat.ID
			}
		}
		if ev.ChatID == 0 {
			ev.ChatID = q.From.ID
		}
		return ev, true

	case update.Message != nil:
		m := update.Message
		if m.From == nil || m.Chat == nil {
			return dialog.Event{}, false
		}
		var ev dialog.Event
		if m.IsCommand() {
			ev = dialog.ParseLine(m.From.ID, "/"+m.Command()+" "+m.CommandArguments())
		} else {
			ev = dialog.NewTextEvent(m.From.ID, m.Text)
		}
		ev.ChatID = m.Chat.ID
		ev.MessageID = m.MessageID
		return ev, true
	}

	return dialog.Event{}, false
}

// Deliver implements dispatch.Sink. Button presses are acknowledged and
// answered by editing the chooser message in place.
func (b *Bot) Deliver(_ context.Context, ev dialog.Event, reply dialog.Reply) error {
	if ev.CallbackID != "" {
		if _, err := b.client.Request(tgbotapi.NewCallback(ev.CallbackID, "")); err != nil {
			b.logger.Warn("Failed to answer callback", common.Fields{"error": err, "user_id": ev.UserID})
		}
	}

	var msg tgbotapi.Chattable
	if ev.Kind == dialog.EventButton && ev.MessageID != 0 {
		edit := tgbotapi.NewEditMessageText(ev.ChatID, ev.MessageID, reply.Text)
		if reply.HasChooser() {
			markup := keyboard(reply.Rows)
			edit.ReplyMarkup = &markup
		}
		msg = edit
	} else {
		out := tgbotapi.NewMessage(ev.ChatID, reply.Text)
		if reply.HasChooser() {
			out.ReplyMarkup = keyboard(reply.Rows)
		}
		msg = out
	}

	if _, err := b.client.Send(msg); err != nil {
		return fmt.Errorf("failed to send reply to chat %d: %w", ev.ChatID, err)
	}
	return nil
}

// keyboard lays chooser rows out one button per line.
func keyboard(rows []dialog.Row) tgbotapi.InlineKeyboardMarkup {
	buttons := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(row.Label, row.Payload),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(buttons...)
}
