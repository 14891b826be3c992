package services

import (
	"context"
	"time"

	domain "github.com/teleshop/bot/internal/domain"
)

// Type aliases keep service signatures terse while the canonical definitions
// live in the domain package.
type (
	Cart              = domain.Cart
	CartItem          = domain.CartItem
	CartSummary       = domain.CartSummary
	Order             = domain.Order
	OrderItem         = domain.OrderItem
	OrderStatus       = domain.OrderStatus
	TimelineEntry     = domain.TimelineEntry
	Transaction       = domain.Transaction
	Promotion         = domain.Promotion
	PromotionType     = domain.PromotionType
	PaymentMethod     = domain.PaymentMethod
	Product           = domain.Product
	User              = domain.User
	CustomFieldAnswer = domain.CustomFieldAnswer
)

// CartService owns the per-user cart aggregate.
type CartService interface {
	GetOrCreate(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddItemCommand) (Cart, error)
	UpdateQuantity(ctx context.Context, cmd UpdateQuantityCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveItemCommand) (Cart, error)
	Clear(ctx context.Context, userID string) (Cart, error)
	ApplyPromotion(ctx context.Context, cmd ApplyPromotionCommand) (Cart, error)
	SetPaymentMethod(ctx context.Context, cmd SetPaymentMethodCommand) (Cart, error)
	ConvertToOrder(ctx context.Context, cmd ConvertToOrderCommand) (Order, error)
}

// OrderService drives the order status state machine.
type OrderService interface {
	Get(ctx context.Context, orderID string) (Order, error)
	List(ctx context.Context, cmd ListOrdersCommand) (domain.CursorPage[Order], error)
	UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	// MarkRefunded moves an order to refunded outside the public transition
	// table. Only the payment refund path calls it.
	MarkRefunded(ctx context.Context, cmd MarkRefundedCommand) (Order, error)
}

// PromotionService manages promotion definitions and redemption records.
type PromotionService interface {
	GetByCode(ctx context.Context, code string) (Promotion, error)
	Create(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error)
	Update(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error)
	Deactivate(ctx context.Context, promotionID string, actorID string) error
	List(ctx context.Context, activeOnly bool) (domain.CursorPage[Promotion], error)
	RecordUsage(ctx context.Context, promotionID string, userID string) error
}

// PaymentService tracks payment attempts and drives order transitions on
// confirmation, validation and refund.
type PaymentService interface {
	InitializePayment(ctx context.Context, cmd InitializePaymentCommand) (PaymentInstructions, error)
	CheckStatus(ctx context.Context, paymentID string) (PaymentStatusResult, error)
	ValidateManualPayment(ctx context.Context, cmd ValidateManualPaymentCommand) (Transaction, error)
	ProcessRefund(ctx context.Context, cmd RefundCommand) (Transaction, error)
}

// AuditLogService records admin-side mutations.
type AuditLogService interface {
	Record(ctx context.Context, cmd AuditRecordCommand) error
}

// EventPublisher fans domain events out to interested consumers.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
	PublishPaymentEvent(ctx context.Context, event PaymentEvent) error
}

// NotificationDispatcher translates domain events into outbound chat messages.
// Implementations are fire-and-forget: failures are logged, never surfaced to
// the state machine.
type NotificationDispatcher interface {
	OrderCreated(ctx context.Context, order Order)
	OrderStatusChanged(ctx context.Context, order Order, entry TimelineEntry)
	PaymentCompleted(ctx context.Context, tx Transaction)
	PaymentRefunded(ctx context.Context, tx Transaction)
	AdminAlert(ctx context.Context, message string)
}

// DeferredScheduler runs a function after a delay, keyed so a later state
// change can cancel the pending action.
type DeferredScheduler interface {
	Schedule(key string, delay time.Duration, fn func(context.Context))
	Cancel(key string) bool
}

// Logger is the structured event logging callback injected into services.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Commands -------------------------------------------------------------------

type AddItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int64
	Answers   []CustomFieldAnswer
}

type UpdateQuantityCommand struct {
	UserID    string
	ProductID string
	Quantity  int64
}

type RemoveItemCommand struct {
	UserID    string
	ProductID string
}

type ApplyPromotionCommand struct {
	UserID string
	Code   string
}

type SetPaymentMethodCommand struct {
	UserID string
	Method PaymentMethod
}

type ConvertToOrderCommand struct {
	UserID string
	ChatID int64
	Method PaymentMethod
}

type ListOrdersCommand struct {
	UserID    string
	Status    []OrderStatus
	PageSize  int
	PageToken string
}

type OrderStatusCommand struct {
	OrderID    string
	Target     OrderStatus
	Note       string
	ActorID    string
	ActorAdmin bool
}

type CancelOrderCommand struct {
	OrderID    string
	ActorID    string
	ActorAdmin bool
	Reason     string
}

type MarkRefundedCommand struct {
	OrderID string
	ActorID string
	Note    string
}

type UpsertPromotionCommand struct {
	Promotion Promotion
	ActorID   string
}

type InitializePaymentCommand struct {
	OrderID string
	Method  PaymentMethod
	ActorID string
}

type ValidateManualPaymentCommand struct {
	PaymentID string
	AdminID   string
	ProofRef  string
	Approve   bool
	Note      string
}

type RefundCommand struct {
	TransactionID string
	Amount        int64
	Reason        string
	AdminID       string
}

type AuditRecordCommand struct {
	ActorID   string
	Action    string
	TargetRef string
	Details   map[string]any
}

// Results --------------------------------------------------------------------

// PaymentInstructions is what the user is shown after initialising a payment.
type PaymentInstructions struct {
	Transaction Transaction
	Method      PaymentMethod
	// RedirectURL is set for provider-hosted flows (PayPal/card).
	RedirectURL string
	// Address and RequiredConfirmations are set for crypto methods.
	Address               string
	RequiredConfirmations int
	// Text carries the human instructions for manual methods.
	Text      string
	ExpiresAt time.Time
}

// PaymentStatusResult reports the outcome of a status poll.
type PaymentStatusResult struct {
	Transaction   Transaction
	Status        domain.TransactionStatus
	Confirmations int
	// Message carries user-facing progress text such as the remaining
	// confirmation count.
	Message string
}

// PromotionViolation is one reason a promotion does not apply to a cart.
type PromotionViolation struct {
	Code    string
	Message string
}

// PromotionValidation is the collected outcome of validating a promotion
// against a cart. Violations are gathered, not short-circuited.
type PromotionValidation struct {
	Eligible   bool
	Violations []PromotionViolation
	Discount   int64
}

// Events ---------------------------------------------------------------------

const (
	OrderEventCreated       = "order.created"
	OrderEventStatusChanged = "order.status_changed"
	OrderEventCancelled     = "order.cancelled"
	OrderEventRefunded      = "order.refunded"

	PaymentEventInitialized = "payment.initialized"
	PaymentEventCompleted   = "payment.completed"
	PaymentEventValidated   = "payment.validated"
	PaymentEventRejected    = "payment.rejected"
	PaymentEventRefunded    = "payment.refunded"
	PaymentEventExpired     = "payment.expired"
)

// OrderEvent describes an order lifecycle change.
type OrderEvent struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	OrderNumber    string         `json:"orderNumber,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	PreviousStatus OrderStatus    `json:"previousStatus,omitempty"`
	CurrentStatus  OrderStatus    `json:"currentStatus,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// PaymentEvent describes a payment attempt lifecycle change.
type PaymentEvent struct {
	Type          string                   `json:"type"`
	TransactionID string                   `json:"transactionId"`
	OrderID       string                   `json:"orderId"`
	UserID        string                   `json:"userId,omitempty"`
	Method        PaymentMethod            `json:"method,omitempty"`
	Status        domain.TransactionStatus `json:"status,omitempty"`
	Amount        int64                    `json:"amount,omitempty"`
	ActorID       string                   `json:"actorId,omitempty"`
	OccurredAt    time.Time                `json:"occurredAt"`
}
