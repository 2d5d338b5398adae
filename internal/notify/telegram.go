package notify

import (
	"context"
	"log"

	"alertbot-systemv1/pkg/telegram"
)

// TelegramSender delivers messages through the Telegram Bot API.
type TelegramSender struct {
	client *telegram.Client
}

// NewTelegramSender wraps a Telegram client as a Sender.
func NewTelegramSender(client *telegram.Client) *TelegramSender {
	return &TelegramSender{client: client}
}

func (t *TelegramSender) Send(ctx context.Context, chatID int64, threadID int, text string) error {
	return t.client.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:   chatID,
		ThreadID: threadID,
		Text:     text,
	})
}

// LogSender logs instead of sending (useful for development).
type LogSender struct{}

func (LogSender) Send(_ context.Context, chatID int64, threadID int, text string) error {
	log.Printf("[notify] chat=%d thread=%d: %s", chatID, threadID, text)
	return nil
}
