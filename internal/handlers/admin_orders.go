package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/teleshop/bot/internal/domain"
	"github.com/teleshop/bot/internal/platform/auth"
	"github.com/teleshop/bot/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

// AdminOrderHandlers exposes the back office order endpoints.
type AdminOrderHandlers struct {
	orders services.OrderService
}

// NewAdminOrderHandlers constructs the admin order surface.
func NewAdminOrderHandlers(orders services.OrderService) (*AdminOrderHandlers, error) {
	if orders == nil {
		return nil, errors.New("handlers: order service is required")
	}
	return &AdminOrderHandlers{orders: orders}, nil
}

// Register mounts the order routes onto the admin group.
func (h *AdminOrderHandlers) Register(r chi.Router) {
	r.Get("/orders", h.list)
	r.Get("/orders/{orderID}", h.get)
	r.Post("/orders/{orderID}/status", h.updateStatus)
	r.Post("/orders/{orderID}/cancel", h.cancel)
}

func (h *AdminOrderHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cmd := services.ListOrdersCommand{
		UserID:    strings.TrimSpace(r.URL.Query().Get("user_id")),
		PageToken: strings.TrimSpace(r.URL.Query().Get("page_token")),
		PageSize:  defaultOrderPageSize,
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			writeInvalidRequest(ctx, w, "page_size must be a positive integer")
			return
		}
		if size > maxOrderPageSize {
			size = maxOrderPageSize
		}
		cmd.PageSize = size
	}

	statuses, err := parseStatusParam(r.URL.Query()["status"])
	if err != nil {
		writeInvalidRequest(ctx, w, err.Error())
		return
	}
	cmd.Status = statuses

	page, err := h.orders.List(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, page)
}

func (h *AdminOrderHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID := chi.URLParam(r, "orderID")
	order, err := h.orders.Get(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, order)
}

type orderStatusRequest struct {
	Target string `json:"target"`
	Note   string `json:"note"`
}

func (h *AdminOrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req orderStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	target, err := parseOrderStatus(req.Target)
	if err != nil {
		writeInvalidRequest(ctx, w, err.Error())
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.OrderStatusCommand{
		OrderID:    chi.URLParam(r, "orderID"),
		Target:     target,
		Note:       strings.TrimSpace(req.Note),
		ActorID:    actorID(ctx),
		ActorAdmin: true,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, order)
}

type orderCancelRequest struct {
	Reason string `json:"reason"`
}

func (h *AdminOrderHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req orderCancelRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID:    chi.URLParam(r, "orderID"),
		ActorID:    actorID(ctx),
		ActorAdmin: true,
		Reason:     strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, order)
}

// actorID resolves the authenticated subject for audit attribution.
func actorID(ctx context.Context) string {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return ""
	}
	return identity.UID
}

func parseStatusParam(raw []string) ([]domain.OrderStatus, error) {
	var statuses []domain.OrderStatus
	for _, chunk := range raw {
		for _, part := range strings.Split(chunk, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			status, err := parseOrderStatus(part)
			if err != nil {
				return nil, err
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}

func parseOrderStatus(raw string) (domain.OrderStatus, error) {
	status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case domain.OrderStatusPending, domain.OrderStatusProcessing, domain.OrderStatusReady,
		domain.OrderStatusDelivered, domain.OrderStatusCompleted, domain.OrderStatusCancelled,
		domain.OrderStatusRejected, domain.OrderStatusRefunded:
		return status, nil
	}
	return "", errors.New("unknown order status " + strconv.Quote(raw))
}
