package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/teleshop/bot/internal/domain"
	"github.com/teleshop/bot/internal/services"
)

type stubPaymentService struct {
	initFn     func(context.Context, services.InitializePaymentCommand) (services.PaymentInstructions, error)
	statusFn   func(context.Context, string) (services.PaymentStatusResult, error)
	validateFn func(context.Context, services.ValidateManualPaymentCommand) (services.Transaction, error)
	refundFn   func(context.Context, services.RefundCommand) (services.Transaction, error)
}

func (s *stubPaymentService) InitializePayment(ctx context.Context, cmd services.InitializePaymentCommand) (services.PaymentInstructions, error) {
	if s.initFn != nil {
		return s.initFn(ctx, cmd)
	}
	return services.PaymentInstructions{}, errors.New("not implemented")
}

func (s *stubPaymentService) CheckStatus(ctx context.Context, paymentID string) (services.PaymentStatusResult, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx, paymentID)
	}
	return services.PaymentStatusResult{}, errors.New("not implemented")
}

func (s *stubPaymentService) ValidateManualPayment(ctx context.Context, cmd services.ValidateManualPaymentCommand) (services.Transaction, error) {
	if s.validateFn != nil {
		return s.validateFn(ctx, cmd)
	}
	return services.Transaction{}, errors.New("not implemented")
}

func (s *stubPaymentService) ProcessRefund(ctx context.Context, cmd services.RefundCommand) (services.Transaction, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, cmd)
	}
	return services.Transaction{}, errors.New("not implemented")
}

type stubProofArchive struct {
	archived    []string
	archiveErr  error
	downloadURL string
	downloadErr error
}

func (s *stubProofArchive) Archive(ctx context.Context, proofRef string) (string, error) {
	if s.archiveErr != nil {
		return "", s.archiveErr
	}
	s.archived = append(s.archived, proofRef)
	return strings.Replace(proofRef, "/incoming/", "/validated/", 1), nil
}

func (s *stubProofArchive) DownloadURL(ctx context.Context, proofRef string) (string, error) {
	if s.downloadErr != nil {
		return "", s.downloadErr
	}
	return s.downloadURL, nil
}

func newPaymentTestRouter(t *testing.T, service services.PaymentService, proofs ProofArchive) chi.Router {
	t.Helper()
	handler, err := NewAdminPaymentHandlers(AdminPaymentHandlersDeps{
		Payments: service,
		Proofs:   proofs,
	})
	if err != nil {
		t.Fatalf("NewAdminPaymentHandlers: %v", err)
	}
	router := chi.NewRouter()
	handler.Register(router)
	return router
}

func TestAdminPaymentHandlersStatus(t *testing.T) {
	service := &stubPaymentService{
		statusFn: func(ctx context.Context, paymentID string) (services.PaymentStatusResult, error) {
			if paymentID != "tx_1" {
				t.Fatalf("unexpected payment id %q", paymentID)
			}
			return services.PaymentStatusResult{
				Transaction:   services.Transaction{ID: "tx_1", Status: domain.TransactionStatusPending},
				Status:        domain.TransactionStatusPending,
				Confirmations: 1,
				Message:       "2 more confirmation(s) required",
			}, nil
		},
	}

	router := newPaymentTestRouter(t, service, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/payments/tx_1", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var result services.PaymentStatusResult
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if result.Confirmations != 1 || result.Status != domain.TransactionStatusPending {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestAdminPaymentHandlersValidateApproveArchivesProof(t *testing.T) {
	var captured services.ValidateManualPaymentCommand
	service := &stubPaymentService{
		validateFn: func(ctx context.Context, cmd services.ValidateManualPaymentCommand) (services.Transaction, error) {
			captured = cmd
			return services.Transaction{
				ID:     cmd.PaymentID,
				Status: domain.TransactionStatusCompleted,
				Verification: domain.Verification{
					State:    domain.VerificationVerified,
					ProofRef: "proofs/ord_1/tx_1/incoming/receipt.jpg",
				},
			}, nil
		},
	}
	proofs := &stubProofArchive{}

	router := newPaymentTestRouter(t, service, proofs)
	body := []byte(`{"approve":true,"proofRef":"proofs/ord_1/tx_1/incoming/receipt.jpg","note":"matches invoice"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPost, "/payments/tx_1/validate", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !captured.Approve || captured.PaymentID != "tx_1" || captured.AdminID != "svc-backoffice" {
		t.Fatalf("unexpected command: %+v", captured)
	}
	if len(proofs.archived) != 1 || proofs.archived[0] != "proofs/ord_1/tx_1/incoming/receipt.jpg" {
		t.Fatalf("expected incoming proof archived, got %v", proofs.archived)
	}
}

func TestAdminPaymentHandlersValidateRejectSkipsArchive(t *testing.T) {
	service := &stubPaymentService{
		validateFn: func(ctx context.Context, cmd services.ValidateManualPaymentCommand) (services.Transaction, error) {
			return services.Transaction{
				ID:     cmd.PaymentID,
				Status: domain.TransactionStatusFailed,
				Verification: domain.Verification{
					State:    domain.VerificationRejected,
					ProofRef: "proofs/ord_1/tx_1/incoming/receipt.jpg",
				},
			}, nil
		},
	}
	proofs := &stubProofArchive{}

	router := newPaymentTestRouter(t, service, proofs)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPost, "/payments/tx_1/validate", []byte(`{"approve":false,"note":"blurry"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if len(proofs.archived) != 0 {
		t.Fatalf("expected no archive on rejection, got %v", proofs.archived)
	}
}

func TestAdminPaymentHandlersRefund(t *testing.T) {
	var captured services.RefundCommand
	service := &stubPaymentService{
		refundFn: func(ctx context.Context, cmd services.RefundCommand) (services.Transaction, error) {
			captured = cmd
			return services.Transaction{ID: cmd.TransactionID, Status: domain.TransactionStatusRefunded}, nil
		},
	}

	router := newPaymentTestRouter(t, service, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPost, "/payments/tx_2/refund", []byte(`{"amount":1500,"reason":"damaged goods"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.TransactionID != "tx_2" || captured.Amount != 1500 || captured.Reason != "damaged goods" {
		t.Fatalf("unexpected command: %+v", captured)
	}
	if captured.AdminID != "svc-backoffice" {
		t.Fatalf("expected admin attribution, got %q", captured.AdminID)
	}
}

func TestAdminPaymentHandlersRefundRejectsBadAmount(t *testing.T) {
	router := newPaymentTestRouter(t, &stubPaymentService{}, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPost, "/payments/tx_2/refund", []byte(`{"amount":0}`)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminPaymentHandlersRefundAmountExceeded(t *testing.T) {
	service := &stubPaymentService{
		refundFn: func(ctx context.Context, cmd services.RefundCommand) (services.Transaction, error) {
			return services.Transaction{}, fmt.Errorf("%w: 5000 > 1300", services.ErrPaymentAmountExceeded)
		},
	}

	router := newPaymentTestRouter(t, service, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPost, "/payments/tx_2/refund", []byte(`{"amount":5000}`)))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
}

func TestAdminPaymentHandlersProofURL(t *testing.T) {
	service := &stubPaymentService{
		statusFn: func(ctx context.Context, paymentID string) (services.PaymentStatusResult, error) {
			return services.PaymentStatusResult{
				Transaction: services.Transaction{
					ID: paymentID,
					Verification: domain.Verification{
						ProofRef: "proofs/ord_1/tx_1/validated/receipt.jpg",
					},
				},
			}, nil
		},
	}
	proofs := &stubProofArchive{downloadURL: "https://storage.example.com/signed"}

	router := newPaymentTestRouter(t, service, proofs)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/payments/tx_1/proof", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["url"] != "https://storage.example.com/signed" {
		t.Fatalf("unexpected url %q", payload["url"])
	}
}

func TestAdminPaymentHandlersProofURLMissingProof(t *testing.T) {
	service := &stubPaymentService{
		statusFn: func(ctx context.Context, paymentID string) (services.PaymentStatusResult, error) {
			return services.PaymentStatusResult{Transaction: services.Transaction{ID: paymentID}}, nil
		},
	}

	router := newPaymentTestRouter(t, service, &stubProofArchive{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodGet, "/payments/tx_1/proof", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
