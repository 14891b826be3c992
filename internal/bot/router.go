package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/oklog/ulid/v2"

	"github.com/teleshop/bot/internal/notifications"
	"github.com/teleshop/bot/internal/platform/observability"
	"github.com/teleshop/bot/internal/platform/ratelimit"
	"github.com/teleshop/bot/internal/repositories"
	"github.com/teleshop/bot/internal/services"
)

// CallbackResponder acknowledges callback queries so the client stops showing
// the progress spinner.
type CallbackResponder interface {
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Deps collects the collaborators the update router requires.
type Deps struct {
	Carts      services.CartService
	Orders     services.OrderService
	Payments   services.PaymentService
	Promotions services.PromotionService
	Products   repositories.ProductRepository
	Users      repositories.UserRepository
	Messenger  notifications.Messenger
	Callbacks  CallbackResponder
	Notifier   services.NotificationDispatcher
	Limiter    *ratelimit.Limiter
	Currency   string
	IDGen      func() string
	Clock      func() time.Time
	Logger     services.Logger
}

// Router dispatches inbound Telegram updates to service calls. It is the
// single error boundary for chat interactions: typed domain errors map to
// specific user messages, anything else to an apology with a reference code.
type Router struct {
	carts      services.CartService
	orders     services.OrderService
	payments   services.PaymentService
	promotions services.PromotionService
	products   repositories.ProductRepository
	users      repositories.UserRepository
	messenger  notifications.Messenger
	callbacks  CallbackResponder
	notifier   services.NotificationDispatcher
	limiter    *ratelimit.Limiter
	currency   string
	idGen      func() string
	clock      func() time.Time
	logger     services.Logger
}

// NewRouter validates dependencies and builds a Router.
func NewRouter(deps Deps) (*Router, error) {
	if deps.Carts == nil {
		return nil, errors.New("bot: cart service is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("bot: order service is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("bot: payment service is required")
	}
	if deps.Promotions == nil {
		return nil, errors.New("bot: promotion service is required")
	}
	if deps.Products == nil {
		return nil, errors.New("bot: product repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("bot: user repository is required")
	}
	if deps.Messenger == nil {
		return nil, errors.New("bot: messenger is required")
	}

	currency := strings.TrimSpace(deps.Currency)
	if currency == "" {
		currency = "USD"
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Router{
		carts:      deps.Carts,
		orders:     deps.Orders,
		payments:   deps.Payments,
		promotions: deps.Promotions,
		products:   deps.Products,
		users:      deps.Users,
		messenger:  deps.Messenger,
		callbacks:  deps.Callbacks,
		notifier:   deps.Notifier,
		limiter:    deps.Limiter,
		currency:   currency,
		idGen:      idGen,
		clock:      clock,
		logger:     deps.Logger,
	}, nil
}

// HandleUpdate routes one inbound update. It never returns an error; failures
// are reported to the user and logged.
func (r *Router) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		r.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		r.handleMessage(ctx, update.Message)
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	userID := strconv.FormatInt(msg.From.ID, 10)
	chatID := msg.Chat.ID

	if !r.limiter.Allow(userID) {
		r.send(ctx, chatID, "You're sending commands too quickly. Please wait a moment.")
		return
	}

	if !msg.IsCommand() {
		r.send(ctx, chatID, "I didn't understand that. Send /help for the list of commands.")
		return
	}

	var err error
	switch msg.Command() {
	case "start":
		err = r.cmdStart(ctx, msg)
	case "help":
		r.send(ctx, chatID, helpText())
	case "shop":
		err = r.cmdShop(ctx, chatID, strings.TrimSpace(msg.CommandArguments()))
	case "cart":
		err = r.cmdCart(ctx, chatID, userID)
	case "promo":
		err = r.cmdPromo(ctx, chatID, userID, strings.TrimSpace(msg.CommandArguments()))
	case "checkout":
		err = r.cmdCheckout(ctx, chatID, userID)
	case "orders":
		err = r.cmdOrders(ctx, chatID, userID)
	case "cancel":
		err = r.cmdCancel(ctx, chatID, userID, strings.TrimSpace(msg.CommandArguments()))
	case "pending":
		err = r.cmdPending(ctx, chatID, userID)
	default:
		r.send(ctx, chatID, "Unknown command. Send /help for the list of commands.")
	}
	if err != nil {
		r.fail(ctx, chatID, userID, msg.Command(), err)
	}
}

func (r *Router) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.From == nil || query.Message == nil {
		return
	}
	userID := strconv.FormatInt(query.From.ID, 10)
	chatID := query.Message.Chat.ID

	r.answerCallback(ctx, query.ID)

	if !r.limiter.Allow(userID) {
		r.send(ctx, chatID, "You're tapping too quickly. Please wait a moment.")
		return
	}

	if err := r.dispatchCallback(ctx, chatID, userID, query.Data); err != nil {
		r.fail(ctx, chatID, userID, query.Data, err)
	}
}

func (r *Router) dispatchCallback(ctx context.Context, chatID int64, userID, data string) error {
	parts := strings.Split(strings.TrimSpace(data), ":")
	if len(parts) < 2 {
		return nil
	}

	switch parts[0] {
	case "shop":
		return r.cmdShop(ctx, chatID, "")
	case "cart":
		switch parts[1] {
		case "add":
			if len(parts) < 3 {
				return nil
			}
			return r.cbAddToCart(ctx, chatID, userID, parts[2])
		case "qty":
			if len(parts) < 4 {
				return nil
			}
			delta, err := strconv.ParseInt(parts[3], 10, 64)
			if err != nil {
				return nil
			}
			return r.cbAdjustQuantity(ctx, chatID, userID, parts[2], delta)
		case "rm":
			if len(parts) < 3 {
				return nil
			}
			return r.cbRemoveItem(ctx, chatID, userID, parts[2])
		case "clear":
			return r.cbClearCart(ctx, chatID, userID)
		case "checkout":
			return r.cmdCheckout(ctx, chatID, userID)
		}
	case "checkout":
		switch parts[1] {
		case "method":
			if len(parts) < 3 {
				return nil
			}
			return r.cbSelectMethod(ctx, chatID, userID, parts[2])
		case "confirm":
			return r.cbConfirmOrder(ctx, chatID, userID)
		}
	case "pay":
		if parts[1] == "check" && len(parts) >= 3 {
			return r.cbCheckPayment(ctx, chatID, parts[2])
		}
	case "order":
		if parts[1] == "cancel" && len(parts) >= 3 {
			return r.cbCancelOrder(ctx, chatID, userID, parts[2])
		}
	}
	return nil
}

// fail is the chat error boundary. Known domain errors become targeted user
// messages; anything else gets an apology with an opaque reference code and
// raises an admin alert.
func (r *Router) fail(ctx context.Context, chatID int64, userID, action string, err error) {
	if msg, ok := userFacingMessage(err); ok {
		r.send(ctx, chatID, msg)
		return
	}

	ref := r.idGen()
	r.log(ctx, "bot.unexpected_error", map[string]any{
		"userId": userID,
		"action": action,
		"ref":    ref,
		"error":  err.Error(),
	})
	if r.notifier != nil {
		r.notifier.AdminAlert(ctx, fmt.Sprintf("Bot error %s for user %s during %q: %v", ref, userID, action, err))
	}
	r.send(ctx, chatID, fmt.Sprintf("Something went wrong on our side. Please try again later. (ref %s)", ref))
}

func userFacingMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, services.ErrCartEmpty):
		return "Your cart is empty. Browse /shop to add something first.", true
	case errors.Is(err, services.ErrCartItemNotFound):
		return "That item is not in your cart anymore.", true
	case errors.Is(err, services.ErrCartNotAvailable),
		errors.Is(err, services.ErrCartProductUnavailable):
		return "Sorry, that product is currently unavailable.", true
	case errors.Is(err, services.ErrCartNotActive):
		return "Your cart was already checked out. Start a new one with /shop.", true
	case errors.Is(err, services.ErrPromotionInvalid):
		return "That promo code is not valid: " + trimErrorDetail(err), true
	case errors.Is(err, services.ErrPromotionIneligible):
		return "Your cart does not qualify for that promo: " + trimErrorDetail(err), true
	case errors.Is(err, services.ErrOrderNotFound):
		return "I couldn't find that order.", true
	case errors.Is(err, services.ErrOrderCancelNotAllowed):
		return "That order can no longer be cancelled. Contact support if you need help.", true
	case errors.Is(err, services.ErrOrderInvalidTransition):
		return "That order can't change to the requested status.", true
	case errors.Is(err, services.ErrPaymentNotFound):
		return "I couldn't find that payment.", true
	case errors.Is(err, services.ErrPaymentInvalidState):
		return "That payment is not in a state that allows this.", true
	case errors.Is(err, services.ErrCartInvalidInput),
		errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrPaymentInvalidInput),
		errors.Is(err, services.ErrValidation):
		return "That request doesn't look right: " + trimErrorDetail(err), true
	}
	return "", false
}

// trimErrorDetail strips the sentinel prefix so users see only the detail.
func trimErrorDetail(err error) string {
	text := err.Error()
	if idx := strings.Index(text, ": "); idx >= 0 {
		return text[idx+2:]
	}
	return text
}

func (r *Router) send(ctx context.Context, chatID int64, text string) {
	if err := r.messenger.SendMessage(ctx, chatID, text); err != nil {
		r.log(ctx, "bot.send_failed", map[string]any{"chatId": chatID, "error": observability.RedactBotToken(err.Error())})
	}
}

func (r *Router) sendKeyboard(ctx context.Context, chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	if err := r.messenger.SendKeyboard(ctx, chatID, text, keyboard); err != nil {
		r.log(ctx, "bot.send_failed", map[string]any{"chatId": chatID, "error": observability.RedactBotToken(err.Error())})
	}
}

func (r *Router) answerCallback(ctx context.Context, callbackID string) {
	if r.callbacks == nil {
		return
	}
	if err := r.callbacks.AnswerCallback(ctx, callbackID, ""); err != nil {
		r.log(ctx, "bot.callback_answer_failed", map[string]any{"error": err.Error()})
	}
}

func (r *Router) log(ctx context.Context, event string, fields map[string]any) {
	if r.logger == nil {
		return
	}
	r.logger(ctx, event, fields)
}
