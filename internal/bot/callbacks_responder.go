package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type telegramRequester interface {
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// TelegramCallbackResponder answers callback queries through the bot API.
type TelegramCallbackResponder struct {
	api telegramRequester
}

var _ CallbackResponder = (*TelegramCallbackResponder)(nil)

func NewTelegramCallbackResponder(api telegramRequester) (*TelegramCallbackResponder, error) {
	if api == nil {
		return nil, errors.New("bot: telegram api client is required")
	}
	return &TelegramCallbackResponder{api: api}, nil
}

// AnswerCallback acknowledges the callback so the chat client stops showing a
// spinner. The bot API client has no context support, so cancellation is
// checked up front.
func (r *TelegramCallbackResponder) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := r.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("bot: answer callback: %w", err)
	}
	return nil
}
