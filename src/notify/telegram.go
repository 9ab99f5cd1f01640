package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	logger "github.com/sirupsen/logrus"
)

// TelegramSender posts notifications to a single chat.
type TelegramSender struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSender connects the bot. endpoint follows tgbotapi.APIEndpoint's
// "%s token, %s method" format.
func NewTelegramSender(token string, chatID int64, endpoint string, client *http.Client) (*TelegramSender, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram: empty bot token")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect bot: %w", err)
	}

	logger.WithField("username", bot.Self.UserName).Info("telegram bot connected")

	return &TelegramSender{bot: bot, chatID: chatID}, nil
}

func (t *TelegramSender) Name() string { return "telegram" }

func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, title+"\n"+message)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

// SendersFromConfig builds the configured senders. A failing sink is logged
// and skipped so the engine still runs without it.
func SendersFromConfig(cfg Config) []Sender {
	var senders []Sender
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != 0 {
		tg, err := NewTelegramSender(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.TelegramAPIEndpoint, nil)
		if err != nil {
			logger.WithError(err).Error("telegram sink disabled")
		} else {
			senders = append(senders, tg)
		}
	}
	return senders
}
