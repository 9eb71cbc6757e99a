package notify

import (
	"context"
	"fmt"
)

// discordLimit is the longest message content Discord accepts.
const discordLimit = 2000

// DiscordSender posts alerts to a Discord webhook.
type DiscordSender struct {
	url string
	wh  webhook
}

// NewDiscordSender creates a sender for webhookURL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{url: webhookURL, wh: newWebhook()}
}

func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	content := "**" + title + "**\n" + message
	if r := []rune(content); len(r) > discordLimit {
		content = string(r[:discordLimit-1]) + "…"
	}
	if err := d.wh.post(ctx, d.url, struct {
		Content string `json:"content"`
	}{content}); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

func (d *DiscordSender) Name() string { return "discord" }
