// Package telegram adapts the Telegram Bot API to the transport interfaces
// the practice engine talks to.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/bandcoach/bandcoach/internal/transport"
)

// Config holds bot credentials and delivery settings.
type Config struct {
	Token string `mapstructure:"token"`
	// WebhookURL switches delivery from long polling to a webhook.
	WebhookURL    string `mapstructure:"webhook_url"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	PollTimeout   int    `mapstructure:"poll_timeout"`
	Debug         bool   `mapstructure:"debug"`

	// APIEndpoint and FileEndpoint are format strings taking the token and
	// the method or file path. Empty means the public Bot API.
	APIEndpoint  string `mapstructure:"api_endpoint"`
	FileEndpoint string `mapstructure:"file_endpoint"`
}

// DefaultConfig returns polling defaults against the public Bot API.
func DefaultConfig() Config {
	return Config{
		PollTimeout:  60,
		APIEndpoint:  tgbotapi.APIEndpoint,
		FileEndpoint: tgbotapi.FileEndpoint,
	}
}

// Bot is a transport.Messenger backed by the Bot API.
type Bot struct {
	api          *tgbotapi.BotAPI
	client       *http.Client
	fileEndpoint string
	pollTimeout  int
	log          *zap.Logger
}

var _ transport.Messenger = (*Bot)(nil)

// New connects to the Bot API and verifies the token.
func New(cfg Config, client *http.Client, log *zap.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	if client == nil {
		client = &http.Client{Timeout: time.Duration(cfg.PollTimeout+15) * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = def.APIEndpoint
	}
	if cfg.FileEndpoint == "" {
		cfg.FileEndpoint = def.FileEndpoint
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	api.Debug = cfg.Debug
	log.Info("telegram bot authorized", zap.String("username", api.Self.UserName))

	return &Bot{
		api:          api,
		client:       client,
		fileEndpoint: cfg.FileEndpoint,
		pollTimeout:  cfg.PollTimeout,
		log:          log,
	}, nil
}

// Username returns the bot's @name.
func (b *Bot) Username() string { return b.api.Self.UserName }

func (b *Bot) Send(_ context.Context, chatID int64, msg transport.Message) error {
	out := tgbotapi.NewMessage(chatID, msg.Text)
	if markup, ok := inlineKeyboard(msg.Keyboard); ok {
		out.ReplyMarkup = markup
	}
	if _, err := b.api.Send(out); err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

func (b *Bot) SendPhoto(_ context.Context, chatID int64, photo transport.Media, caption string) error {
	file, err := requestFile(photo)
	if err != nil {
		return err
	}
	out := tgbotapi.NewPhoto(chatID, file)
	out.Caption = caption
	if _, err := b.api.Send(out); err != nil {
		return fmt.Errorf("telegram: send photo: %w", err)
	}
	return nil
}

func (b *Bot) SendAudio(_ context.Context, chatID int64, audio transport.Media, caption string) error {
	file, err := requestFile(audio)
	if err != nil {
		return err
	}
	out := tgbotapi.NewAudio(chatID, file)
	out.Caption = caption
	if _, err := b.api.Send(out); err != nil {
		return fmt.Errorf("telegram: send audio: %w", err)
	}
	return nil
}

func (b *Bot) AnswerCallback(_ context.Context, callbackID string) error {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		return fmt.Errorf("telegram: answer callback: %w", err)
	}
	return nil
}

// Download saves the file behind fileID to dst.
func (b *Bot) Download(ctx context.Context, fileID, dst string) error {
	f, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return fmt.Errorf("telegram: get file %s: %w", fileID, err)
	}
	link := fmt.Sprintf(b.fileEndpoint, b.api.Token, f.FilePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: download %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: download %s: status %d", fileID, resp.StatusCode)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return fmt.Errorf("telegram: write %s: %w", dst, err)
	}
	return out.Close()
}

// SetCommands publishes the command menu shown by Telegram clients.
func (b *Bot) SetCommands(commands map[string]string, order ...string) error {
	list := make([]tgbotapi.BotCommand, 0, len(order))
	for _, name := range order {
		list = append(list, tgbotapi.BotCommand{Command: name, Description: commands[name]})
	}
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(list...)); err != nil {
		return fmt.Errorf("telegram: set commands: %w", err)
	}
	return nil
}

func inlineKeyboard(kb transport.Keyboard) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(kb) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

func requestFile(m transport.Media) (tgbotapi.RequestFileData, error) {
	switch {
	case m.URL != "":
		return tgbotapi.FileURL(m.URL), nil
	case m.Path != "":
		return tgbotapi.FilePath(m.Path), nil
	}
	return nil, errors.New("telegram: media has neither URL nor path")
}
