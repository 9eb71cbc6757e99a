package notify

import (
	"context"
	"fmt"
	"strings"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender posts alerts through the Telegram Bot API.
type TelegramSender struct {
	endpoint string
	chatID   string
	wh       webhook
}

// NewTelegramSender creates a sender for one chat. An empty baseURL uses
// the public Bot API.
func NewTelegramSender(baseURL, token, chatID string) *TelegramSender {
	if baseURL == "" {
		baseURL = telegramAPI
	}
	return &TelegramSender{
		endpoint: strings.TrimRight(baseURL, "/") + "/bot" + token + "/sendMessage",
		chatID:   chatID,
		wh:       newWebhook(),
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	msg := telegramMessage{
		ChatID:    t.chatID,
		Text:      "*" + title + "*\n" + message,
		ParseMode: "Markdown",
	}
	if err := t.wh.post(ctx, t.endpoint, msg); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

func (t *TelegramSender) Name() string { return "telegram" }
