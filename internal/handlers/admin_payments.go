package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/teleshop/bot/internal/platform/httpx"
	"github.com/teleshop/bot/internal/services"
)

// ProofArchive is the slice of proof storage the payment endpoints need.
type ProofArchive interface {
	Archive(ctx context.Context, proofRef string) (string, error)
	DownloadURL(ctx context.Context, proofRef string) (string, error)
}

// AdminPaymentHandlers exposes payment review, refund and proof endpoints.
type AdminPaymentHandlers struct {
	payments    services.PaymentService
	proofs      ProofArchive
	refundGuard func(http.Handler) http.Handler
	logger      services.Logger
}

// AdminPaymentHandlersDeps carries the dependencies for NewAdminPaymentHandlers.
type AdminPaymentHandlersDeps struct {
	Payments services.PaymentService
	Proofs   ProofArchive
	// RefundGuard wraps the refund route, typically with idempotency
	// key handling. Optional.
	RefundGuard func(http.Handler) http.Handler
	Logger      services.Logger
}

// NewAdminPaymentHandlers constructs the admin payment surface.
func NewAdminPaymentHandlers(deps AdminPaymentHandlersDeps) (*AdminPaymentHandlers, error) {
	if deps.Payments == nil {
		return nil, errors.New("handlers: payment service is required")
	}
	return &AdminPaymentHandlers{
		payments:    deps.Payments,
		proofs:      deps.Proofs,
		refundGuard: deps.RefundGuard,
		logger:      deps.Logger,
	}, nil
}

// Register mounts the payment routes onto the admin group.
func (h *AdminPaymentHandlers) Register(r chi.Router) {
	r.Get("/payments/{paymentID}", h.status)
	r.Post("/payments/{paymentID}/validate", h.validate)
	r.Get("/payments/{paymentID}/proof", h.proofURL)
	if h.refundGuard != nil {
		r.With(h.refundGuard).Post("/payments/{paymentID}/refund", h.refund)
		return
	}
	r.Post("/payments/{paymentID}/refund", h.refund)
}

func (h *AdminPaymentHandlers) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.payments.CheckStatus(ctx, chi.URLParam(r, "paymentID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, result)
}

type validatePaymentRequest struct {
	Approve  bool   `json:"approve"`
	ProofRef string `json:"proofRef"`
	Note     string `json:"note"`
}

func (h *AdminPaymentHandlers) validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req validatePaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tx, err := h.payments.ValidateManualPayment(ctx, services.ValidateManualPaymentCommand{
		PaymentID: chi.URLParam(r, "paymentID"),
		AdminID:   actorID(ctx),
		ProofRef:  strings.TrimSpace(req.ProofRef),
		Approve:   req.Approve,
		Note:      strings.TrimSpace(req.Note),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	// Approved proofs move to the validated prefix. The transaction already
	// records the original reference, so a failed copy only costs tidiness.
	if req.Approve && tx.Verification.ProofRef != "" && h.proofs != nil {
		if archived, archiveErr := h.proofs.Archive(ctx, tx.Verification.ProofRef); archiveErr != nil {
			if h.logger != nil {
				h.logger(ctx, "payments.proof_archive_failed", map[string]any{
					"transactionId": tx.ID,
					"error":         archiveErr.Error(),
				})
			}
		} else if h.logger != nil {
			h.logger(ctx, "payments.proof_archived", map[string]any{
				"transactionId": tx.ID,
				"proofRef":      archived,
			})
		}
	}

	writeJSONResponse(w, http.StatusOK, tx)
}

type refundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (h *AdminPaymentHandlers) refund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req refundRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Amount <= 0 {
		writeInvalidRequest(ctx, w, "amount must be a positive number of minor units")
		return
	}

	tx, err := h.payments.ProcessRefund(ctx, services.RefundCommand{
		TransactionID: chi.URLParam(r, "paymentID"),
		Amount:        req.Amount,
		Reason:        strings.TrimSpace(req.Reason),
		AdminID:       actorID(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, tx)
}

func (h *AdminPaymentHandlers) proofURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.proofs == nil {
		writeInvalidRequest(ctx, w, "proof storage is not configured")
		return
	}

	result, err := h.payments.CheckStatus(ctx, chi.URLParam(r, "paymentID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	proofRef := result.Transaction.Verification.ProofRef
	if proofRef == "" {
		httpx.WriteError(ctx, w, httpx.Error{
			Status:  http.StatusNotFound,
			Code:    "proof_not_found",
			Message: "no payment proof has been submitted",
		})
		return
	}

	url, err := h.proofs.DownloadURL(ctx, proofRef)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"url": url,
	})
}
