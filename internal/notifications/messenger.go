package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Messenger delivers outbound chat messages.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendKeyboard(ctx context.Context, chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error
}

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramMessenger sends messages through the Telegram Bot API.
type TelegramMessenger struct {
	api telegramSender
}

var _ Messenger = (*TelegramMessenger)(nil)

// NewTelegramMessenger wraps a configured bot API client.
func NewTelegramMessenger(api telegramSender) (*TelegramMessenger, error) {
	if api == nil {
		return nil, errors.New("notifications: telegram api client is required")
	}
	return &TelegramMessenger{api: api}, nil
}

// SendMessage delivers the text as an HTML-formatted chat message. The bot
// API client has no context support, so cancellation is checked up front.
func (m *TelegramMessenger) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("notifications: message text is empty")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := m.api.Send(msg); err != nil {
		return fmt.Errorf("notifications: send to chat %d: %w", chatID, err)
	}
	return nil
}

// SendKeyboard delivers the text with an inline keyboard attached.
func (m *TelegramMessenger) SendKeyboard(ctx context.Context, chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("notifications: message text is empty")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = keyboard
	if _, err := m.api.Send(msg); err != nil {
		return fmt.Errorf("notifications: send to chat %d: %w", chatID, err)
	}
	return nil
}
