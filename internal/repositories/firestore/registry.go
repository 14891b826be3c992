package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/teleshop/bot/internal/platform/firestore"
	"github.com/teleshop/bot/internal/repositories"
)

// Registry bundles the Firestore repositories behind the repositories.Registry
// interface.
type Registry struct {
	provider *pfirestore.Provider

	products     *ProductRepository
	carts        *CartRepository
	orders       *OrderRepository
	transactions *TransactionRepository
	promotions   *PromotionRepository
	users        *UserRepository
	auditLogs    *AuditLogRepository
	counters     *CounterRepository
}

// NewRegistry wires every repository against the shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	transactions, err := NewTransactionRepository(provider)
	if err != nil {
		return nil, err
	}
	promotions, err := NewPromotionRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}
	auditLogs, err := NewAuditLogRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:     provider,
		products:     products,
		carts:        carts,
		orders:       orders,
		transactions: transactions,
		promotions:   promotions,
		users:        users,
		auditLogs:    auditLogs,
		counters:     counters,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Products() repositories.ProductRepository         { return r.products }
func (r *Registry) Carts() repositories.CartRepository               { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository             { return r.orders }
func (r *Registry) Transactions() repositories.TransactionRepository { return r.transactions }
func (r *Registry) Promotions() repositories.PromotionRepository     { return r.promotions }
func (r *Registry) Users() repositories.UserRepository               { return r.users }
func (r *Registry) AuditLogs() repositories.AuditLogRepository       { return r.auditLogs }
func (r *Registry) Counters() repositories.CounterRepository         { return r.counters }

// RunInTx runs fn sequentially. Cross-document writes here are deliberately
// not transactional; the store's per-document atomicity is the only guarantee
// relied upon, and staleness windows make the remaining races benign.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("registry: tx function is nil")
	}
	return fn(ctx)
}

var _ repositories.Registry = (*Registry)(nil)
