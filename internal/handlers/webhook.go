package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/teleshop/bot/internal/services"
)

// UpdateHandler consumes one Telegram update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

// WebhookHandlers ingests Telegram updates pushed to the webhook endpoint.
type WebhookHandlers struct {
	router UpdateHandler
	logger services.Logger
}

// NewWebhookHandlers wires the update router behind the webhook route.
func NewWebhookHandlers(router UpdateHandler, logger services.Logger) *WebhookHandlers {
	return &WebhookHandlers{router: router, logger: logger}
}

// Register mounts the webhook route.
func (h *WebhookHandlers) Register(r chi.Router) {
	r.Post("/telegram/webhook", h.handleUpdate)
}

// handleUpdate always acknowledges with 200 once the payload parses. Telegram
// retries non-2xx responses, and update handling failures are already reported
// through the bot's own error boundary.
func (h *WebhookHandlers) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var update tgbotapi.Update
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeInvalidRequest(ctx, w, "request body must be a Telegram update")
		return
	}

	if h.logger != nil {
		h.logger(ctx, "webhook.update_received", map[string]any{
			"updateId": update.UpdateID,
		})
	}

	h.router.HandleUpdate(ctx, update)
	w.WriteHeader(http.StatusOK)
}
