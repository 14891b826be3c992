package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/teleshop/bot/internal/platform/httpx"
	"github.com/teleshop/bot/internal/services"
)

const maxRequestBodyBytes = 1 << 20

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httpx.WriteError(r.Context(), w, httpx.Error{
			Status:  http.StatusBadRequest,
			Code:    "invalid_request",
			Message: "request body must be valid JSON",
		})
		return false
	}
	return true
}

func writeInvalidRequest(ctx context.Context, w http.ResponseWriter, message string) {
	httpx.WriteError(ctx, w, httpx.Error{
		Status:  http.StatusBadRequest,
		Code:    "invalid_request",
		Message: message,
	})
}

// writeServiceError maps service sentinels onto the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var mapped httpx.Error
	switch {
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrPaymentInvalidInput),
		errors.Is(err, services.ErrCartInvalidInput):
		mapped = httpx.Error{Status: http.StatusBadRequest, Code: "invalid_request", Message: err.Error()}
	case errors.Is(err, services.ErrOrderNotFound):
		mapped = httpx.Error{Status: http.StatusNotFound, Code: "order_not_found", Message: "order not found"}
	case errors.Is(err, services.ErrPaymentNotFound):
		mapped = httpx.Error{Status: http.StatusNotFound, Code: "payment_not_found", Message: "payment not found"}
	case errors.Is(err, services.ErrOrderInvalidTransition):
		mapped = httpx.Error{Status: http.StatusConflict, Code: "invalid_transition", Message: err.Error()}
	case errors.Is(err, services.ErrOrderCancelNotAllowed):
		mapped = httpx.Error{Status: http.StatusConflict, Code: "cancel_not_allowed", Message: err.Error()}
	case errors.Is(err, services.ErrPaymentInvalidState):
		mapped = httpx.Error{Status: http.StatusConflict, Code: "payment_invalid_state", Message: err.Error()}
	case errors.Is(err, services.ErrPaymentAmountExceeded):
		mapped = httpx.Error{Status: http.StatusUnprocessableEntity, Code: "refund_amount_exceeded", Message: err.Error()}
	case errors.Is(err, services.ErrPromotionConflict):
		mapped = httpx.Error{Status: http.StatusConflict, Code: "promotion_conflict", Message: err.Error()}
	case errors.Is(err, services.ErrPromotionInvalid):
		mapped = httpx.Error{Status: http.StatusNotFound, Code: "promotion_not_found", Message: err.Error()}
	case errors.Is(err, services.ErrPaymentProvider):
		mapped = httpx.Error{Status: http.StatusBadGateway, Code: "payment_provider_error", Message: "payment provider failure"}
	case errors.Is(err, services.ErrOrderUnavailable),
		errors.Is(err, services.ErrPaymentUnavailable),
		errors.Is(err, services.ErrPromotionUnavailable),
		errors.Is(err, services.ErrCartUnavailable):
		mapped = httpx.Error{Status: http.StatusServiceUnavailable, Code: "service_unavailable", Message: "storage temporarily unavailable"}
	default:
		mapped = httpx.Error{Status: http.StatusInternalServerError, Code: "internal_error", Message: "internal error"}
	}
	httpx.WriteError(ctx, w, mapped)
}
