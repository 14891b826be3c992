package notifications

import (
	"context"
	"errors"
	"strings"

	domain "github.com/teleshop/bot/internal/domain"
	"github.com/teleshop/bot/internal/platform/observability"
	"github.com/teleshop/bot/internal/repositories"
	"github.com/teleshop/bot/internal/services"
)

// DispatcherDeps wires the collaborators for NewDispatcher.
type DispatcherDeps struct {
	Messenger Messenger
	Users     repositories.UserRepository
	Currency  string
	Logger    services.Logger
}

// Dispatcher turns service-layer events into chat messages. Every method is
// fire-and-forget: delivery failures are logged and never bubble back into
// the state machine that triggered them.
type Dispatcher struct {
	messenger Messenger
	users     repositories.UserRepository
	currency  string
	logger    services.Logger
}

var _ services.NotificationDispatcher = (*Dispatcher)(nil)

// NewDispatcher validates dependencies and returns the dispatcher.
func NewDispatcher(deps DispatcherDeps) (*Dispatcher, error) {
	if deps.Messenger == nil {
		return nil, errors.New("notifications: messenger is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	currency := strings.TrimSpace(deps.Currency)
	if currency == "" {
		currency = "USD"
	}
	return &Dispatcher{
		messenger: deps.Messenger,
		users:     deps.Users,
		currency:  currency,
		logger:    logger,
	}, nil
}

func (d *Dispatcher) OrderCreated(ctx context.Context, order domain.Order) {
	d.sendToOrder(ctx, order, orderCreatedText(order, d.currency))
}

func (d *Dispatcher) OrderStatusChanged(ctx context.Context, order domain.Order, entry domain.TimelineEntry) {
	d.sendToOrder(ctx, order, orderStatusText(order, entry))
}

func (d *Dispatcher) PaymentCompleted(ctx context.Context, tx domain.Transaction) {
	d.sendToUser(ctx, tx.UserID, paymentCompletedText(tx, d.currency))
}

func (d *Dispatcher) PaymentRefunded(ctx context.Context, tx domain.Transaction) {
	d.sendToUser(ctx, tx.UserID, paymentRefundedText(tx, d.currency))
}

// AdminAlert fans the message out to every admin chat.
func (d *Dispatcher) AdminAlert(ctx context.Context, text string) {
	if d.users == nil {
		return
	}
	admins, err := d.users.ListAdmins(ctx)
	if err != nil {
		d.logger(ctx, "notifications.admin_lookup_failed", map[string]any{"error": err.Error()})
		return
	}
	for _, admin := range admins {
		if admin.ChatID == 0 {
			continue
		}
		d.send(ctx, admin.ChatID, "⚠️ "+text)
	}
}

func (d *Dispatcher) sendToOrder(ctx context.Context, order domain.Order, text string) {
	if order.ChatID != 0 {
		d.send(ctx, order.ChatID, text)
		return
	}
	d.sendToUser(ctx, order.UserID, text)
}

func (d *Dispatcher) sendToUser(ctx context.Context, userID string, text string) {
	if d.users == nil {
		return
	}
	user, err := d.users.FindByID(ctx, userID)
	if err != nil {
		d.logger(ctx, "notifications.user_lookup_failed", map[string]any{
			"userId": userID,
			"error":  err.Error(),
		})
		return
	}
	if user.ChatID == 0 {
		return
	}
	d.send(ctx, user.ChatID, text)
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, text string) {
	if err := d.messenger.SendMessage(ctx, chatID, text); err != nil {
		d.logger(ctx, "notifications.send_failed", map[string]any{
			"chatId": chatID,
			"error":  observability.RedactBotToken(err.Error()),
		})
	}
}
