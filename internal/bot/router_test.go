package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	domain "github.com/teleshop/bot/internal/domain"
	"github.com/teleshop/bot/internal/platform/ratelimit"
	"github.com/teleshop/bot/internal/repositories"
	"github.com/teleshop/bot/internal/services"
)

type stubCartService struct {
	cart       domain.Cart
	order      domain.Order
	applyErr   error
	convertErr error
	applied    []services.ApplyPromotionCommand
	added      []services.AddItemCommand
}

func (s *stubCartService) GetOrCreate(ctx context.Context, userID string) (domain.Cart, error) {
	return s.cart, nil
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddItemCommand) (domain.Cart, error) {
	s.added = append(s.added, cmd)
	return s.cart, nil
}

func (s *stubCartService) UpdateQuantity(ctx context.Context, cmd services.UpdateQuantityCommand) (domain.Cart, error) {
	return s.cart, nil
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveItemCommand) (domain.Cart, error) {
	return s.cart, nil
}

func (s *stubCartService) Clear(ctx context.Context, userID string) (domain.Cart, error) {
	return domain.Cart{UserID: userID}, nil
}

func (s *stubCartService) ApplyPromotion(ctx context.Context, cmd services.ApplyPromotionCommand) (domain.Cart, error) {
	s.applied = append(s.applied, cmd)
	if s.applyErr != nil {
		return domain.Cart{}, s.applyErr
	}
	return s.cart, nil
}

func (s *stubCartService) SetPaymentMethod(ctx context.Context, cmd services.SetPaymentMethodCommand) (domain.Cart, error) {
	cart := s.cart
	cart.PaymentMethod = cmd.Method
	return cart, nil
}

func (s *stubCartService) ConvertToOrder(ctx context.Context, cmd services.ConvertToOrderCommand) (domain.Order, error) {
	if s.convertErr != nil {
		return domain.Order{}, s.convertErr
	}
	return s.order, nil
}

type stubOrderService struct {
	page      domain.CursorPage[domain.Order]
	cancelled []services.CancelOrderCommand
}

func (s *stubOrderService) Get(ctx context.Context, orderID string) (domain.Order, error) {
	return domain.Order{}, services.ErrOrderNotFound
}

func (s *stubOrderService) List(ctx context.Context, cmd services.ListOrdersCommand) (domain.CursorPage[domain.Order], error) {
	return s.page, nil
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.OrderStatusCommand) (domain.Order, error) {
	return domain.Order{}, nil
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
	s.cancelled = append(s.cancelled, cmd)
	return domain.Order{ID: cmd.OrderID, OrderNumber: "TS-2025-000007", Status: domain.OrderStatusCancelled}, nil
}

func (s *stubOrderService) MarkRefunded(ctx context.Context, cmd services.MarkRefundedCommand) (domain.Order, error) {
	return domain.Order{}, nil
}

type stubPaymentService struct {
	instructions services.PaymentInstructions
	status       services.PaymentStatusResult
	initErr      error
	initialized  []services.InitializePaymentCommand
}

func (s *stubPaymentService) InitializePayment(ctx context.Context, cmd services.InitializePaymentCommand) (services.PaymentInstructions, error) {
	s.initialized = append(s.initialized, cmd)
	if s.initErr != nil {
		return services.PaymentInstructions{}, s.initErr
	}
	return s.instructions, nil
}

func (s *stubPaymentService) CheckStatus(ctx context.Context, paymentID string) (services.PaymentStatusResult, error) {
	return s.status, nil
}

func (s *stubPaymentService) ValidateManualPayment(ctx context.Context, cmd services.ValidateManualPaymentCommand) (domain.Transaction, error) {
	return domain.Transaction{}, nil
}

func (s *stubPaymentService) ProcessRefund(ctx context.Context, cmd services.RefundCommand) (domain.Transaction, error) {
	return domain.Transaction{}, nil
}

type stubPromotionService struct{}

func (s *stubPromotionService) GetByCode(ctx context.Context, code string) (domain.Promotion, error) {
	return domain.Promotion{}, services.ErrPromotionInvalid
}

func (s *stubPromotionService) Create(ctx context.Context, cmd services.UpsertPromotionCommand) (domain.Promotion, error) {
	return domain.Promotion{}, nil
}

func (s *stubPromotionService) Update(ctx context.Context, cmd services.UpsertPromotionCommand) (domain.Promotion, error) {
	return domain.Promotion{}, nil
}

func (s *stubPromotionService) Deactivate(ctx context.Context, promotionID, actorID string) error {
	return nil
}

func (s *stubPromotionService) List(ctx context.Context, activeOnly bool) (domain.CursorPage[domain.Promotion], error) {
	return domain.CursorPage[domain.Promotion]{}, nil
}

func (s *stubPromotionService) RecordUsage(ctx context.Context, promotionID, userID string) error {
	return nil
}

type stubProductRepo struct {
	page domain.CursorPage[domain.Product]
}

func (s *stubProductRepo) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	return domain.Product{}, nil
}

func (s *stubProductRepo) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	return s.page, nil
}

func (s *stubProductRepo) AdjustStock(ctx context.Context, productID string, delta int64) error {
	return nil
}

type stubUserRepo struct {
	user     domain.User
	findErr  error
	upserted []domain.User
}

func (s *stubUserRepo) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if s.findErr != nil {
		return domain.User{}, s.findErr
	}
	return s.user, nil
}

func (s *stubUserRepo) Upsert(ctx context.Context, user domain.User) (domain.User, error) {
	s.upserted = append(s.upserted, user)
	return user, nil
}

func (s *stubUserRepo) CreditBalance(ctx context.Context, userID string, delta int64) error {
	return nil
}

func (s *stubUserRepo) ListAdmins(ctx context.Context) ([]domain.User, error) {
	return nil, nil
}

type recordedMessage struct {
	chatID   int64
	text     string
	keyboard *tgbotapi.InlineKeyboardMarkup
}

type stubMessenger struct {
	sent []recordedMessage
}

func (s *stubMessenger) SendMessage(ctx context.Context, chatID int64, text string) error {
	s.sent = append(s.sent, recordedMessage{chatID: chatID, text: text})
	return nil
}

func (s *stubMessenger) SendKeyboard(ctx context.Context, chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	s.sent = append(s.sent, recordedMessage{chatID: chatID, text: text, keyboard: &keyboard})
	return nil
}

type stubAlerts struct {
	alerts []string
}

func (s *stubAlerts) OrderCreated(ctx context.Context, order domain.Order) {}
func (s *stubAlerts) OrderStatusChanged(ctx context.Context, order domain.Order, entry domain.TimelineEntry) {
}
func (s *stubAlerts) PaymentCompleted(ctx context.Context, tx domain.Transaction) {}
func (s *stubAlerts) PaymentRefunded(ctx context.Context, tx domain.Transaction)  {}
func (s *stubAlerts) AdminAlert(ctx context.Context, message string) {
	s.alerts = append(s.alerts, message)
}

type routerFixture struct {
	router    *Router
	carts     *stubCartService
	orders    *stubOrderService
	payments  *stubPaymentService
	users     *stubUserRepo
	messenger *stubMessenger
	alerts    *stubAlerts
}

func newRouterFixture(t *testing.T, mutate func(*Deps)) *routerFixture {
	t.Helper()

	fixture := &routerFixture{
		carts: &stubCartService{
			cart: domain.Cart{
				UserID: "42",
				Status: domain.CartStatusActive,
				Items: []domain.CartItem{
					{ProductID: "prod-1", Name: "Espresso Beans", Quantity: 2, UnitPrice: 1250, FinalPrice: 2500},
				},
				Summary:       domain.CartSummary{Subtotal: 2500, Total: 2500},
				PaymentMethod: domain.PaymentMethodCryptoBTC,
			},
			order: domain.Order{
				ID:          "ord_1",
				OrderNumber: "TS-2025-000042",
				UserID:      "42",
				Status:      domain.OrderStatusPending,
				Payment:     domain.OrderPayment{Method: domain.PaymentMethodCryptoBTC, Total: 2500},
			},
		},
		orders: &stubOrderService{},
		payments: &stubPaymentService{
			instructions: services.PaymentInstructions{
				Transaction:           domain.Transaction{ID: "tx_1"},
				Method:                domain.PaymentMethodCryptoBTC,
				Address:               "bc1qexample",
				RequiredConfirmations: 3,
			},
		},
		users:     &stubUserRepo{},
		messenger: &stubMessenger{},
		alerts:    &stubAlerts{},
	}

	deps := Deps{
		Carts:      fixture.carts,
		Orders:     fixture.orders,
		Payments:   fixture.payments,
		Promotions: &stubPromotionService{},
		Products:   &stubProductRepo{},
		Users:      fixture.users,
		Messenger:  fixture.messenger,
		Notifier:   fixture.alerts,
		Currency:   "USD",
		IDGen:      func() string { return "REF123" },
		Clock: func() time.Time {
			return time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
		},
	}
	if mutate != nil {
		mutate(&deps)
	}

	router, err := NewRouter(deps)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	fixture.router = router
	return fixture
}

func commandUpdate(text string) tgbotapi.Update {
	cmdLen := len(text)
	if idx := strings.Index(text, " "); idx >= 0 {
		cmdLen = idx
	}
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			Text:     text,
			From:     &tgbotapi.User{ID: 42, FirstName: "Ana", UserName: "ana"},
			Chat:     &tgbotapi.Chat{ID: 100},
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
		},
	}
}

func callbackUpdate(data string) tgbotapi.Update {
	return tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb-1",
			From:    &tgbotapi.User{ID: 42},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
			Data:    data,
		},
	}
}

func TestRouterStartRegistersUser(t *testing.T) {
	fixture := newRouterFixture(t, nil)
	fixture.users.findErr = notFoundError{}

	fixture.router.HandleUpdate(context.Background(), commandUpdate("/start"))

	if len(fixture.users.upserted) != 1 {
		t.Fatalf("expected user upsert, got %d", len(fixture.users.upserted))
	}
	saved := fixture.users.upserted[0]
	if saved.ID != "42" || saved.ChatID != 100 || saved.Username != "ana" {
		t.Fatalf("unexpected user saved: %+v", saved)
	}
	if len(fixture.messenger.sent) != 1 || !strings.Contains(fixture.messenger.sent[0].text, "Welcome") {
		t.Fatalf("expected welcome message, got %+v", fixture.messenger.sent)
	}
}

func TestRouterCartCommandRendersCart(t *testing.T) {
	fixture := newRouterFixture(t, nil)

	fixture.router.HandleUpdate(context.Background(), commandUpdate("/cart"))

	if len(fixture.messenger.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(fixture.messenger.sent))
	}
	text := fixture.messenger.sent[0].text
	if !strings.Contains(text, "Espresso Beans") || !strings.Contains(text, "25.00 USD") {
		t.Fatalf("cart rendering missing content: %q", text)
	}
	if fixture.messenger.sent[0].keyboard == nil {
		t.Fatalf("expected cart keyboard")
	}
}

func TestRouterRateLimitThrottles(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	fixture := newRouterFixture(t, func(deps *Deps) {
		deps.Limiter = ratelimit.New(1, 1, func() time.Time { return now })
	})

	fixture.router.HandleUpdate(context.Background(), commandUpdate("/cart"))
	fixture.router.HandleUpdate(context.Background(), commandUpdate("/cart"))

	if len(fixture.messenger.sent) != 2 {
		t.Fatalf("expected two messages, got %d", len(fixture.messenger.sent))
	}
	if !strings.Contains(fixture.messenger.sent[1].text, "too quickly") {
		t.Fatalf("expected throttle message, got %q", fixture.messenger.sent[1].text)
	}
}

func TestRouterPromoErrorsBecomeUserMessages(t *testing.T) {
	fixture := newRouterFixture(t, nil)
	fixture.carts.applyErr = fmt.Errorf("%w: promotion expired", services.ErrPromotionInvalid)

	fixture.router.HandleUpdate(context.Background(), commandUpdate("/promo SPRING20"))

	if len(fixture.messenger.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(fixture.messenger.sent))
	}
	text := fixture.messenger.sent[0].text
	if !strings.Contains(text, "not valid") || !strings.Contains(text, "promotion expired") {
		t.Fatalf("unexpected promo error message: %q", text)
	}
	if len(fixture.alerts.alerts) != 0 {
		t.Fatalf("domain errors must not raise admin alerts")
	}
}

func TestRouterUnexpectedErrorAlertsAdmins(t *testing.T) {
	fixture := newRouterFixture(t, nil)
	fixture.carts.applyErr = errors.New("firestore exploded")

	fixture.router.HandleUpdate(context.Background(), commandUpdate("/promo SPRING20"))

	if len(fixture.messenger.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(fixture.messenger.sent))
	}
	if !strings.Contains(fixture.messenger.sent[0].text, "REF123") {
		t.Fatalf("expected reference code in apology: %q", fixture.messenger.sent[0].text)
	}
	if len(fixture.alerts.alerts) != 1 || !strings.Contains(fixture.alerts.alerts[0], "REF123") {
		t.Fatalf("expected admin alert with reference, got %+v", fixture.alerts.alerts)
	}
}

func TestRouterCheckoutConfirmInitializesPayment(t *testing.T) {
	fixture := newRouterFixture(t, nil)

	fixture.router.HandleUpdate(context.Background(), callbackUpdate("checkout:confirm"))

	if len(fixture.payments.initialized) != 1 {
		t.Fatalf("expected payment initialization, got %d", len(fixture.payments.initialized))
	}
	cmd := fixture.payments.initialized[0]
	if cmd.OrderID != "ord_1" || cmd.Method != domain.PaymentMethodCryptoBTC {
		t.Fatalf("unexpected init command: %+v", cmd)
	}

	if len(fixture.messenger.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(fixture.messenger.sent))
	}
	text := fixture.messenger.sent[0].text
	if !strings.Contains(text, "TS-2025-000042") || !strings.Contains(text, "bc1qexample") || !strings.Contains(text, "3 confirmation") {
		t.Fatalf("instruction text missing content: %q", text)
	}
}

func TestRouterCancelCallback(t *testing.T) {
	fixture := newRouterFixture(t, nil)

	fixture.router.HandleUpdate(context.Background(), callbackUpdate("order:cancel:ord_7"))

	if len(fixture.orders.cancelled) != 1 {
		t.Fatalf("expected cancel call, got %d", len(fixture.orders.cancelled))
	}
	cmd := fixture.orders.cancelled[0]
	if cmd.OrderID != "ord_7" || cmd.ActorID != "42" || cmd.ActorAdmin {
		t.Fatalf("unexpected cancel command: %+v", cmd)
	}
	if !strings.Contains(fixture.messenger.sent[0].text, "cancelled") {
		t.Fatalf("expected cancellation confirmation, got %q", fixture.messenger.sent[0].text)
	}
}

type notFoundError struct{}

func (notFoundError) Error() string       { return "not found" }
func (notFoundError) IsNotFound() bool    { return true }
func (notFoundError) IsConflict() bool    { return false }
func (notFoundError) IsUnavailable() bool { return false }
