package repositories

import (
	"context"
	"errors"
	"time"

	domain "github.com/teleshop/bot/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
	Transactions() TransactionRepository
	Promotions() PromotionRepository
	Users() UserRepository
	AuditLogs() AuditLogRepository
	Counters() CounterRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository reads catalog entries. Product writes happen through an
// out-of-band admin pipeline; the bot only consumes the catalog.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	AdjustStock(ctx context.Context, productID string, delta int64) error
}

// CartRepository owns cart persistence. The document id is the user id, so a
// user has exactly one cart document at a time.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Upsert(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	ListStale(ctx context.Context, idleSince time.Time, limit int) ([]domain.Cart, error)
}

// OrderRepository persists order headers and provides query helpers for users and admins.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	ListStalePending(ctx context.Context, pendingSince time.Time, limit int) ([]domain.Order, error)
}

// TransactionRepository stores payment attempt records.
type TransactionRepository interface {
	Insert(ctx context.Context, tx domain.Transaction) error
	Update(ctx context.Context, tx domain.Transaction) error
	FindByID(ctx context.Context, txID string) (domain.Transaction, error)
	FindByOrder(ctx context.Context, orderID string) (domain.Transaction, error)
}

// PromotionRepository maintains promotion definitions, usage history and the
// atomically incremented redemption counter.
type PromotionRepository interface {
	Insert(ctx context.Context, promotion domain.Promotion) error
	Update(ctx context.Context, promotion domain.Promotion) error
	Deactivate(ctx context.Context, promotionID string, at time.Time) error
	FindByID(ctx context.Context, promotionID string) (domain.Promotion, error)
	FindByCode(ctx context.Context, code string) (domain.Promotion, error)
	List(ctx context.Context, filter PromotionListFilter) (domain.CursorPage[domain.Promotion], error)
	// RecordUsage appends a usage entry and increments the usage counter via
	// the store's atomic increment. Safe under concurrent redemption.
	RecordUsage(ctx context.Context, promotionID string, usage domain.PromotionUsage) error
}

// UserRepository stores shop users keyed by Telegram user id.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.User, error)
	Upsert(ctx context.Context, user domain.User) (domain.User, error)
	// CreditBalance adds delta to the user's internal balance atomically.
	CreditBalance(ctx context.Context, userID string, delta int64) error
	ListAdmins(ctx context.Context) ([]domain.User, error)
}

// AuditLogRepository persists immutable audit trail entries for admin actions.
type AuditLogRepository interface {
	Append(ctx context.Context, entry AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// AuditLogEntry records one admin-side mutation for traceability.
type AuditLogEntry struct {
	ID        string         `firestore:"id" json:"id"`
	ActorID   string         `firestore:"actorId" json:"actorId"`
	Action    string         `firestore:"action" json:"action"`
	TargetRef string         `firestore:"targetRef" json:"targetRef"`
	Details   map[string]any `firestore:"details,omitempty" json:"details,omitempty"`
	CreatedAt time.Time      `firestore:"createdAt" json:"createdAt"`
}

// Filter DTOs shared across repositories ------------------------------------

type ProductListFilter struct {
	Category   string
	ActiveOnly bool
	Pagination domain.Pagination
}

type OrderListFilter struct {
	UserID     string
	Status     []domain.OrderStatus
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type PromotionListFilter struct {
	ActiveOnly bool
	Pagination domain.Pagination
}

type AuditLogFilter struct {
	ActorID    string
	TargetRef  string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// ErrCounterExhausted is returned when a counter has reached its configured
// maximum value.
var ErrCounterExhausted = errors.New("counter exhausted")
