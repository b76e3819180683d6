package telegram

import (
	"context"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/bandcoach/bandcoach/internal/transport"
)

// Sink receives converted events. It returns false when the event was
// dropped, e.g. by the rate limiter or after shutdown.
type Sink func(ctx context.Context, ev transport.Event) bool

// Poll long-polls for updates until ctx is cancelled.
func (b *Bot) Poll(ctx context.Context, sink Sink) error {
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("telegram: delete webhook before polling: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(u)
	b.log.Info("long polling started", zap.Int("timeout_s", b.pollTimeout))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.log.Info("long polling stopped")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.deliver(ctx, sink, upd)
		}
	}
}

// SetWebhook registers url with Telegram.
func (b *Bot) SetWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("telegram: webhook url: %w", err)
	}
	if _, err := b.api.Request(wh); err != nil {
		return fmt.Errorf("telegram: set webhook: %w", err)
	}
	b.log.Info("webhook registered")
	return nil
}

// HandleWebhook decodes one webhook request and passes it to sink.
func (b *Bot) HandleWebhook(ctx context.Context, r *http.Request, sink Sink) error {
	upd, err := b.api.HandleUpdate(r)
	if err != nil {
		return fmt.Errorf("telegram: decode update: %w", err)
	}
	b.deliver(ctx, sink, *upd)
	return nil
}

func (b *Bot) deliver(ctx context.Context, sink Sink, upd tgbotapi.Update) {
	ev, ok := Event(upd)
	if !ok {
		b.log.Debug("ignoring update", zap.Int("update_id", upd.UpdateID))
		return
	}
	if !sink(ctx, ev) {
		b.log.Debug("update dropped", zap.Int("update_id", upd.UpdateID), zap.Int64("user_id", ev.User.ID))
	}
}

// Event converts an update to a transport event. Updates the engine has
// no use for (edits, channel posts, stickers) report false.
func Event(upd tgbotapi.Update) (transport.Event, bool) {
	if cq := upd.CallbackQuery; cq != nil {
		if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
			return transport.Event{}, false
		}
		return transport.Event{
			Kind:       transport.KindCallback,
			User:       user(cq.From),
			ChatID:     cq.Message.Chat.ID,
			CallbackID: cq.ID,
			Data:       cq.Data,
		}, true
	}

	m := upd.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return transport.Event{}, false
	}
	ev := transport.Event{User: user(m.From), ChatID: m.Chat.ID}
	switch {
	case m.IsCommand():
		ev.Kind = transport.KindCommand
		ev.Command = m.Command()
		ev.Args = m.CommandArguments()
	case m.Voice != nil:
		ev.Kind = transport.KindVoice
		ev.Voice = &transport.Voice{FileID: m.Voice.FileID, Duration: m.Voice.Duration, MimeType: m.Voice.MimeType}
	case m.Text != "":
		ev.Kind = transport.KindText
		ev.Text = m.Text
	default:
		return transport.Event{}, false
	}
	return ev, true
}

func user(u *tgbotapi.User) transport.User {
	return transport.User{
		ID:           u.ID,
		FirstName:    u.FirstName,
		Username:     u.UserName,
		LanguageCode: u.LanguageCode,
	}
}
