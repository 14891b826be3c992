package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/teleshop/bot/internal/platform/httpx"
)

const basePath = "/api/v1"

// RouteRegistrar mounts a group of routes onto a chi router.
type RouteRegistrar func(r chi.Router)

// Option customises router construction.
type Option func(*routerConfig)

type routerConfig struct {
	middlewares        []func(http.Handler) http.Handler
	health             *HealthHandlers
	webhookRoutes      []RouteRegistrar
	webhookMiddlewares []func(http.Handler) http.Handler
	adminRoutes        []RouteRegistrar
	adminMiddlewares   []func(http.Handler) http.Handler
}

// WithMiddlewares appends router wide middlewares in execution order.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers registers liveness and readiness endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithWebhookRoutes registers Telegram webhook routes.
func WithWebhookRoutes(regs ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.webhookRoutes = append(cfg.webhookRoutes, regs...)
	}
}

// WithWebhookMiddlewares wraps the webhook group with the provided middlewares.
func WithWebhookMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.webhookMiddlewares = append(cfg.webhookMiddlewares, mw...)
	}
}

// WithAdminRoutes registers authenticated back office routes.
func WithAdminRoutes(regs ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.adminRoutes = append(cfg.adminRoutes, regs...)
	}
}

// WithAdminMiddlewares wraps the admin group with the provided middlewares.
func WithAdminMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.adminMiddlewares = append(cfg.adminMiddlewares, mw...)
	}
}

// NewRouter builds the HTTP router for the service.
func NewRouter(opts ...Option) http.Handler {
	cfg := &routerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.Error{
			Status:  http.StatusNotFound,
			Code:    "not_found",
			Message: "resource not found",
		})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.Error{
			Status:  http.StatusMethodNotAllowed,
			Code:    "method_not_allowed",
			Message: "method not allowed",
		})
	})

	if cfg.health != nil {
		r.Get("/healthz", cfg.health.Liveness)
		r.Get("/readyz", cfg.health.Readiness)
	}

	if len(cfg.webhookRoutes) > 0 {
		r.Group(func(group chi.Router) {
			for _, mw := range cfg.webhookMiddlewares {
				group.Use(mw)
			}
			for _, reg := range cfg.webhookRoutes {
				reg(group)
			}
		})
	}

	if len(cfg.adminRoutes) > 0 {
		r.Route(basePath+"/admin", func(group chi.Router) {
			for _, mw := range cfg.adminMiddlewares {
				group.Use(mw)
			}
			for _, reg := range cfg.adminRoutes {
				reg(group)
			}
		})
	}

	return r
}
