package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/teleshop/bot/internal/domain"
	"github.com/teleshop/bot/internal/notifications"
	"github.com/teleshop/bot/internal/payments"
	"github.com/teleshop/bot/internal/platform/config"
	"github.com/teleshop/bot/internal/platform/jobs"
	"github.com/teleshop/bot/internal/repositories"
	"github.com/teleshop/bot/internal/services"
)

// Services bundles the service-layer contracts the chat router and admin
// handlers rely upon.
type Services struct {
	Carts      services.CartService
	Orders     services.OrderService
	Payments   services.PaymentService
	Promotions services.PromotionService
	Audit      services.AuditLogService
}

// Deps carries externally constructed collaborators into NewContainer. The
// container owns service assembly; clients (Firestore, Pub/Sub, Telegram)
// stay with the caller so tests can substitute fakes.
type Deps struct {
	Registry  repositories.Registry
	Messenger notifications.Messenger
	// Publisher fans order and payment events out to Pub/Sub. Optional;
	// services skip publishing when nil.
	Publisher services.EventPublisher
	Logger    services.Logger
	Clock     func() time.Time
}

// Container wires repositories, services, and background infrastructure.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Gateway      *payments.Manager
	Notifier     *notifications.Dispatcher
	Scheduler    *jobs.TimerScheduler
}

// NewContainer constructs the runtime dependency graph.
func NewContainer(ctx context.Context, cfg config.Config, deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Messenger == nil {
		return nil, errors.New("messenger is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	reg := deps.Registry

	notifier, err := notifications.NewDispatcher(notifications.DispatcherDeps{
		Messenger: deps.Messenger,
		Users:     reg.Users(),
		Currency:  cfg.Payments.Currency,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build notification dispatcher: %w", err)
	}

	scheduler := jobs.NewTimerScheduler(logger)

	auditSvc, err := services.NewAuditLogService(services.AuditLogServiceDeps{
		AuditLogs: reg.AuditLogs(),
		Clock:     clock,
	})
	if err != nil {
		return nil, fmt.Errorf("build audit log service: %w", err)
	}

	engine := services.NewPricingEngine(feeRules(cfg.Payments.Fees))

	promotionSvc, err := services.NewPromotionService(services.PromotionServiceDeps{
		Promotions: reg.Promotions(),
		Audit:      auditSvc,
		Clock:      clock,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build promotion service: %w", err)
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:       reg.Orders(),
		Events:       deps.Publisher,
		Notifier:     notifier,
		Audit:        auditSvc,
		Scheduler:    scheduler,
		ArchiveDelay: cfg.Sweeps.ArchiveAfter,
		Clock:        clock,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}

	gateway, err := buildGateway(cfg.Payments, logger, clock)
	if err != nil {
		return nil, fmt.Errorf("build payment gateway: %w", err)
	}

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Transactions: reg.Transactions(),
		Users:        reg.Users(),
		Orders:       orderSvc,
		Gateway:      gateway,
		Audit:        auditSvc,
		Events:       deps.Publisher,
		Notifier:     notifier,
		Config: services.PaymentConfig{
			Expiry:   cfg.Payments.Expiry,
			Currency: cfg.Payments.Currency,
			Confirmations: map[domain.PaymentMethod]int{
				domain.PaymentMethodCryptoBTC: cfg.Payments.ConfirmationsBTC,
				domain.PaymentMethodCryptoETH: cfg.Payments.ConfirmationsETH,
			},
			SuccessURL: cfg.Payments.SuccessURL,
			CancelURL:  cfg.Payments.CancelURL,
		},
		Clock:  clock,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build payment service: %w", err)
	}

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:      reg.Carts(),
		Products:   reg.Products(),
		Promotions: reg.Promotions(),
		Orders:     reg.Orders(),
		Counters:   reg.Counters(),
		UnitOfWork: reg,
		Engine:     engine,
		Events:     deps.Publisher,
		Notifier:   notifier,
		Clock:      clock,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build cart service: %w", err)
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services: Services{
			Carts:      cartSvc,
			Orders:     orderSvc,
			Payments:   paymentSvc,
			Promotions: promotionSvc,
			Audit:      auditSvc,
		},
		Gateway:   gateway,
		Notifier:  notifier,
		Scheduler: scheduler,
	}, nil
}

// Close releases the scheduler and repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.Scheduler != nil {
		c.Scheduler.Close()
	}
	if c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

// buildGateway assembles the provider manager from configuration. Providers
// are registered only when their credentials are present; voucher and cash
// stay manual and need no provider.
func buildGateway(cfg config.PaymentsConfig, logger services.Logger, clock func() time.Time) (*payments.Manager, error) {
	providers := make(map[string]payments.Provider)

	if cfg.StripeAPIKey != "" {
		stripe, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:    cfg.StripeAPIKey,
			AccountID: cfg.StripeAccountID,
			Logger:    payments.StripeLogger(logger),
			Clock:     clock,
		})
		if err != nil {
			return nil, err
		}
		providers["stripe"] = stripe
	}

	if cfg.ExplorerBaseURL != "" {
		explorer, err := payments.NewExplorerProvider(payments.ExplorerProviderConfig{
			BaseURL: cfg.ExplorerBaseURL,
			APIKey:  cfg.ExplorerAPIKey,
			Logger:  payments.ExplorerLogger(logger),
		})
		if err != nil {
			return nil, err
		}
		providers["explorer"] = explorer
	}

	if len(providers) == 0 {
		return nil, nil
	}

	return payments.NewManager(providers, payments.WithBreaker(gobreaker.Settings{
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
	}))
}

func feeRules(fees map[domain.PaymentMethod]config.FeeRule) map[services.PaymentMethod]services.FeeRule {
	rules := make(map[services.PaymentMethod]services.FeeRule, len(fees))
	for method, rule := range fees {
		rules[method] = services.FeeRule{PercentBps: rule.PercentBps, Fixed: rule.Fixed}
	}
	return rules
}
