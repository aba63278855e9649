package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sendable is the part of *tgbotapi.BotAPI used to send messages.
type Sendable interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender implements MessageSender using tgbotapi.
type TelegramSender struct {
	api Sendable
}

// NewTelegramSender creates a new sender.
func NewTelegramSender(api Sendable) *TelegramSender {
	return &TelegramSender{api: api}
}

// Reply sends text to chatID as a reply to message replyTo. Markdown replies
// use Telegram's legacy Markdown mode; others are sent as plain text.
func (s *TelegramSender) Reply(_ context.Context, chatID int64, replyTo int, text string, markdown bool) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	msg.DisableWebPagePreview = true
	if markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	_, err := s.api.Send(msg)
	return err
}
