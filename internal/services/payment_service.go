package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/teleshop/bot/internal/domain"
	"github.com/teleshop/bot/internal/payments"
	"github.com/teleshop/bot/internal/repositories"
)

// Payment service errors.
var (
	ErrPaymentInvalidInput = errors.New("payment input invalid")
	ErrPaymentNotFound     = errors.New("payment not found")
	// ErrPaymentInvalidState rejects operations the transaction's current
	// status does not allow, such as refunding an uncompleted payment.
	ErrPaymentInvalidState   = errors.New("payment state does not allow this operation")
	ErrPaymentAmountExceeded = errors.New("refund amount exceeds payment total")
	ErrPaymentProvider       = errors.New("payment provider failure")
	ErrPaymentUnavailable    = errors.New("payment storage unavailable")
)

// defaultPaymentExpiry is how long a payment attempt stays collectable.
const defaultPaymentExpiry = time.Hour

// PaymentGateway is the provider routing surface the payment service talks
// to. *payments.Manager satisfies it.
type PaymentGateway interface {
	Supports(method domain.PaymentMethod) bool
	CreateCheckoutSession(ctx context.Context, method domain.PaymentMethod, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	LookupPayment(ctx context.Context, method domain.PaymentMethod, req payments.LookupRequest) (payments.PaymentDetails, error)
	Refund(ctx context.Context, method domain.PaymentMethod, req payments.RefundRequest) (payments.PaymentDetails, error)
	GenerateAddress(ctx context.Context, method domain.PaymentMethod, req payments.AddressRequest) (string, error)
}

var _ PaymentGateway = (*payments.Manager)(nil)

// PaymentConfig carries the method-level knobs for payment tracking.
type PaymentConfig struct {
	// Expiry bounds how long a transaction stays collectable. Zero means the
	// one hour default.
	Expiry   time.Duration
	Currency string
	// Confirmations maps each chain method to its required confirmation
	// count. Missing entries fall back to 3 for BTC and 12 for ETH.
	Confirmations map[domain.PaymentMethod]int
	// ManualInstructions is the text shown after initialising a voucher or
	// cash payment.
	ManualInstructions map[domain.PaymentMethod]string
	SuccessURL         string
	CancelURL          string
}

func (c PaymentConfig) expiry() time.Duration {
	if c.Expiry > 0 {
		return c.Expiry
	}
	return defaultPaymentExpiry
}

func (c PaymentConfig) currency() string {
	if strings.TrimSpace(c.Currency) != "" {
		return c.Currency
	}
	return "USD"
}

func (c PaymentConfig) confirmations(method domain.PaymentMethod) int {
	if n, ok := c.Confirmations[method]; ok && n > 0 {
		return n
	}
	switch method {
	case domain.PaymentMethodCryptoBTC:
		return 3
	case domain.PaymentMethodCryptoETH:
		return 12
	}
	return 0
}

func (c PaymentConfig) manualInstructions(method domain.PaymentMethod) string {
	if text, ok := c.ManualInstructions[method]; ok && strings.TrimSpace(text) != "" {
		return text
	}
	switch method {
	case domain.PaymentMethodVoucher:
		return "Send a photo of your voucher code. An admin will validate it shortly."
	case domain.PaymentMethodCash:
		return "Pay cash on delivery. An admin will confirm receipt."
	}
	return ""
}

// PaymentServiceDeps wires the collaborators for NewPaymentService.
type PaymentServiceDeps struct {
	Transactions repositories.TransactionRepository
	Users        repositories.UserRepository
	Orders       OrderService
	Gateway      PaymentGateway
	Audit        AuditLogService
	Events       EventPublisher
	Notifier     NotificationDispatcher
	Config       PaymentConfig
	Clock        func() time.Time
	IDGen        func() string
	Logger       Logger
}

type paymentService struct {
	transactions repositories.TransactionRepository
	users        repositories.UserRepository
	orders       OrderService
	gateway      PaymentGateway
	audit        AuditLogService
	events       EventPublisher
	notifier     NotificationDispatcher
	cfg          PaymentConfig
	clock        func() time.Time
	idGen        func() string
	logger       Logger
}

// NewPaymentService validates dependencies and returns the payment tracking
// service.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Transactions == nil {
		return nil, errors.New("payment service requires transaction repository")
	}
	if deps.Orders == nil {
		return nil, errors.New("payment service requires order service")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		transactions: deps.Transactions,
		users:        deps.Users,
		orders:       deps.Orders,
		gateway:      deps.Gateway,
		audit:        deps.Audit,
		events:       deps.Events,
		notifier:     deps.Notifier,
		cfg:          deps.Config,
		clock:        func() time.Time { return clock().UTC() },
		idGen:        idGen,
		logger:       logger,
	}, nil
}

var _ PaymentService = (*paymentService)(nil)

// InitializePayment opens a payment attempt for a pending order and returns
// the method-specific instructions the user needs to pay it.
func (s *paymentService) InitializePayment(ctx context.Context, cmd InitializePaymentCommand) (PaymentInstructions, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PaymentInstructions{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	if err := ValidatePaymentMethod(cmd.Method); err != nil {
		return PaymentInstructions{}, fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return PaymentInstructions{}, err
	}
	if order.Status != domain.OrderStatusPending {
		return PaymentInstructions{}, fmt.Errorf("%w: order is %s, payment opens on pending orders only", ErrPaymentInvalidState, order.Status)
	}

	now := s.clock()
	tx := Transaction{
		ID:      "tx_" + s.idGen(),
		OrderID: order.ID,
		UserID:  order.UserID,
		Method:  cmd.Method,
		Amount: domain.TransactionAmount{
			Subtotal: order.Payment.Subtotal,
			Discount: order.Payment.Discount,
			Fees:     order.Payment.Fees,
			Total:    order.Payment.Total,
		},
		Status:       domain.TransactionStatusPending,
		Verification: domain.Verification{State: domain.VerificationPending},
		RiskScore:    riskScore(order, cmd.Method),
		ExpiresAt:    now.Add(s.cfg.expiry()),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	instructions := PaymentInstructions{
		Method:    cmd.Method,
		ExpiresAt: tx.ExpiresAt,
	}

	switch cmd.Method {
	case domain.PaymentMethodPayPal:
		session, err := s.createCheckout(ctx, order, tx)
		if err != nil {
			return PaymentInstructions{}, err
		}
		tx.Provider = session.Provider
		tx.ProviderRef = session.IntentID
		if tx.ProviderRef == "" {
			tx.ProviderRef = session.ID
		}
		instructions.RedirectURL = session.RedirectURL
	case domain.PaymentMethodCryptoBTC, domain.PaymentMethodCryptoETH:
		address, err := s.generateAddress(ctx, tx)
		if err != nil {
			return PaymentInstructions{}, err
		}
		tx.Provider = "explorer"
		tx.Address = address
		instructions.Address = address
		instructions.RequiredConfirmations = s.cfg.confirmations(cmd.Method)
	case domain.PaymentMethodVoucher, domain.PaymentMethodCash:
		instructions.Text = s.cfg.manualInstructions(cmd.Method)
	}

	if err := s.transactions.Insert(ctx, tx); err != nil {
		return PaymentInstructions{}, s.translateRepoError(err)
	}
	instructions.Transaction = tx

	s.publishPaymentEvent(ctx, tx, PaymentEventInitialized, cmd.ActorID)
	s.logger(ctx, "payment.initialized", map[string]any{
		"transactionId": tx.ID,
		"orderId":       tx.OrderID,
		"method":        string(tx.Method),
		"total":         tx.Amount.Total,
	})
	return instructions, nil
}

// CheckStatus polls the current state of a payment attempt. Expiry is lazy:
// an overdue pending transaction is marked expired on the first poll that
// notices it.
func (s *paymentService) CheckStatus(ctx context.Context, paymentID string) (PaymentStatusResult, error) {
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return PaymentStatusResult{}, fmt.Errorf("%w: payment id is required", ErrPaymentInvalidInput)
	}

	tx, err := s.transactions.FindByID(ctx, id)
	if err != nil {
		return PaymentStatusResult{}, s.translateRepoError(err)
	}

	switch tx.Status {
	case domain.TransactionStatusCompleted:
		return PaymentStatusResult{Transaction: tx, Status: tx.Status, Message: "payment completed"}, nil
	case domain.TransactionStatusFailed:
		return PaymentStatusResult{Transaction: tx, Status: tx.Status, Message: "payment failed"}, nil
	case domain.TransactionStatusRefunded:
		return PaymentStatusResult{Transaction: tx, Status: tx.Status, Message: "payment refunded"}, nil
	case domain.TransactionStatusExpired:
		return PaymentStatusResult{Transaction: tx, Status: tx.Status, Message: "payment window expired"}, nil
	}

	now := s.clock()
	if tx.Status == domain.TransactionStatusPending && now.After(tx.ExpiresAt) {
		tx.Status = domain.TransactionStatusExpired
		tx.UpdatedAt = now
		if err := s.transactions.Update(ctx, tx); err != nil {
			return PaymentStatusResult{}, s.translateRepoError(err)
		}
		s.publishPaymentEvent(ctx, tx, PaymentEventExpired, "")
		s.logger(ctx, "payment.expired", map[string]any{"transactionId": tx.ID})
		return PaymentStatusResult{Transaction: tx, Status: tx.Status, Message: "payment window expired"}, nil
	}

	switch tx.Method {
	case domain.PaymentMethodCryptoBTC, domain.PaymentMethodCryptoETH:
		return s.checkChainStatus(ctx, tx)
	case domain.PaymentMethodPayPal:
		return s.checkProviderStatus(ctx, tx)
	case domain.PaymentMethodVoucher, domain.PaymentMethodCash:
		if tx.Status == domain.TransactionStatusPending {
			tx.Status = domain.TransactionStatusPendingValidation
			tx.UpdatedAt = now
			if err := s.transactions.Update(ctx, tx); err != nil {
				return PaymentStatusResult{}, s.translateRepoError(err)
			}
		}
		return PaymentStatusResult{
			Transaction: tx,
			Status:      tx.Status,
			Message:     "awaiting validation by an admin",
		}, nil
	}
	return PaymentStatusResult{Transaction: tx, Status: tx.Status}, nil
}

func (s *paymentService) checkChainStatus(ctx context.Context, tx Transaction) (PaymentStatusResult, error) {
	if s.gateway == nil {
		return PaymentStatusResult{}, fmt.Errorf("%w: no chain gateway configured", ErrPaymentProvider)
	}
	details, err := s.gateway.LookupPayment(ctx, tx.Method, payments.LookupRequest{Address: tx.Address})
	if err != nil {
		return PaymentStatusResult{}, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}

	if details.Status == payments.StatusFailed {
		return s.markFailed(ctx, tx, "transfer failed on chain")
	}

	required := s.cfg.confirmations(tx.Method)
	if details.Confirmations >= required && (details.Status == payments.StatusSucceeded || details.Confirmations > 0) {
		if details.IntentID != "" {
			tx.ProviderRef = details.IntentID
		}
		completed, err := s.complete(ctx, tx, "chain transfer confirmed")
		if err != nil {
			return PaymentStatusResult{}, err
		}
		return PaymentStatusResult{
			Transaction:   completed,
			Status:        completed.Status,
			Confirmations: details.Confirmations,
			Message:       "payment completed",
		}, nil
	}

	remaining := required - details.Confirmations
	return PaymentStatusResult{
		Transaction:   tx,
		Status:        tx.Status,
		Confirmations: details.Confirmations,
		Message:       fmt.Sprintf("%d more confirmation(s) required", remaining),
	}, nil
}

func (s *paymentService) checkProviderStatus(ctx context.Context, tx Transaction) (PaymentStatusResult, error) {
	if s.gateway == nil {
		return PaymentStatusResult{}, fmt.Errorf("%w: no provider gateway configured", ErrPaymentProvider)
	}
	details, err := s.gateway.LookupPayment(ctx, tx.Method, payments.LookupRequest{IntentID: tx.ProviderRef})
	if err != nil {
		return PaymentStatusResult{}, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}

	switch details.Status {
	case payments.StatusSucceeded:
		completed, err := s.complete(ctx, tx, "provider confirmed payment")
		if err != nil {
			return PaymentStatusResult{}, err
		}
		return PaymentStatusResult{Transaction: completed, Status: completed.Status, Message: "payment completed"}, nil
	case payments.StatusFailed:
		return s.markFailed(ctx, tx, "provider reported failure")
	}
	return PaymentStatusResult{
		Transaction: tx,
		Status:      tx.Status,
		Message:     "waiting for the provider to confirm",
	}, nil
}

// ValidateManualPayment is the admin decision point for voucher and cash
// payments. Approval completes the payment; rejection fails it. Either way
// the verifier and proof are recorded on the transaction.
func (s *paymentService) ValidateManualPayment(ctx context.Context, cmd ValidateManualPaymentCommand) (Transaction, error) {
	id := strings.TrimSpace(cmd.PaymentID)
	if id == "" {
		return Transaction{}, fmt.Errorf("%w: payment id is required", ErrPaymentInvalidInput)
	}
	if strings.TrimSpace(cmd.AdminID) == "" {
		return Transaction{}, fmt.Errorf("%w: admin id is required", ErrPaymentInvalidInput)
	}

	tx, err := s.transactions.FindByID(ctx, id)
	if err != nil {
		return Transaction{}, s.translateRepoError(err)
	}
	if tx.Method != domain.PaymentMethodVoucher && tx.Method != domain.PaymentMethodCash {
		return Transaction{}, fmt.Errorf("%w: %s payments are not validated manually", ErrPaymentInvalidState, tx.Method)
	}
	switch tx.Status {
	case domain.TransactionStatusPending, domain.TransactionStatusPendingValidation:
	default:
		return Transaction{}, fmt.Errorf("%w: transaction is %s", ErrPaymentInvalidState, tx.Status)
	}

	now := s.clock()
	verifiedAt := now
	tx.Verification = domain.Verification{
		VerifierID: cmd.AdminID,
		VerifiedAt: &verifiedAt,
		ProofRef:   strings.TrimSpace(cmd.ProofRef),
	}

	if !cmd.Approve {
		tx.Verification.State = domain.VerificationRejected
		tx.Status = domain.TransactionStatusFailed
		tx.UpdatedAt = now
		if err := s.transactions.Update(ctx, tx); err != nil {
			return Transaction{}, s.translateRepoError(err)
		}
		s.publishPaymentEvent(ctx, tx, PaymentEventRejected, cmd.AdminID)
		s.recordAudit(ctx, cmd.AdminID, "payment.reject", tx.ID, map[string]any{"note": cmd.Note})
		s.logger(ctx, "payment.rejected", map[string]any{
			"transactionId": tx.ID,
			"adminId":       cmd.AdminID,
		})
		return tx, nil
	}

	tx.Verification.State = domain.VerificationVerified
	completed, err := s.complete(ctx, tx, "manual payment verified")
	if err != nil {
		return Transaction{}, err
	}
	s.publishPaymentEvent(ctx, completed, PaymentEventValidated, cmd.AdminID)
	s.recordAudit(ctx, cmd.AdminID, "payment.validate", completed.ID, map[string]any{"note": cmd.Note})
	return completed, nil
}

// ProcessRefund refunds part or all of a completed payment. The refunded
// amount is credited to the user's balance; provider-side reversal happens
// first where the method supports it.
func (s *paymentService) ProcessRefund(ctx context.Context, cmd RefundCommand) (Transaction, error) {
	id := strings.TrimSpace(cmd.TransactionID)
	if id == "" {
		return Transaction{}, fmt.Errorf("%w: transaction id is required", ErrPaymentInvalidInput)
	}
	if strings.TrimSpace(cmd.AdminID) == "" {
		return Transaction{}, fmt.Errorf("%w: admin id is required", ErrPaymentInvalidInput)
	}

	tx, err := s.transactions.FindByID(ctx, id)
	if err != nil {
		return Transaction{}, s.translateRepoError(err)
	}
	if tx.Status != domain.TransactionStatusCompleted {
		return Transaction{}, fmt.Errorf("%w: only completed payments can be refunded, transaction is %s", ErrPaymentInvalidState, tx.Status)
	}

	amount := cmd.Amount
	if amount <= 0 {
		amount = tx.Amount.Total
	}
	if amount > tx.Amount.Total {
		return Transaction{}, fmt.Errorf("%w: %d over a total of %d", ErrPaymentAmountExceeded, amount, tx.Amount.Total)
	}

	if tx.Method == domain.PaymentMethodPayPal && s.gateway != nil {
		refundAmount := amount
		_, err := s.gateway.Refund(ctx, tx.Method, payments.RefundRequest{
			IntentID:       tx.ProviderRef,
			Amount:         &refundAmount,
			Reason:         cmd.Reason,
			IdempotencyKey: "refund-" + tx.ID,
		})
		if err != nil {
			return Transaction{}, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
		}
	}

	now := s.clock()
	tx.Refund = &domain.Refund{
		Amount:     amount,
		Reason:     strings.TrimSpace(cmd.Reason),
		AdminID:    cmd.AdminID,
		RefundedAt: now,
	}
	tx.Status = domain.TransactionStatusRefunded
	tx.UpdatedAt = now
	if err := s.transactions.Update(ctx, tx); err != nil {
		return Transaction{}, s.translateRepoError(err)
	}

	if _, err := s.orders.MarkRefunded(ctx, MarkRefundedCommand{
		OrderID: tx.OrderID,
		ActorID: cmd.AdminID,
		Note:    tx.Refund.Reason,
	}); err != nil {
		s.logger(ctx, "payment.refund_order_update_failed", map[string]any{
			"transactionId": tx.ID,
			"orderId":       tx.OrderID,
			"error":         err.Error(),
		})
	}

	if s.users != nil {
		if err := s.users.CreditBalance(ctx, tx.UserID, amount); err != nil {
			s.logger(ctx, "payment.refund_credit_failed", map[string]any{
				"transactionId": tx.ID,
				"userId":        tx.UserID,
				"error":         err.Error(),
			})
		}
	}

	s.publishPaymentEvent(ctx, tx, PaymentEventRefunded, cmd.AdminID)
	if s.notifier != nil {
		s.notifier.PaymentRefunded(ctx, tx)
	}
	s.recordAudit(ctx, cmd.AdminID, "payment.refund", tx.ID, map[string]any{
		"amount": amount,
		"reason": cmd.Reason,
	})
	s.logger(ctx, "payment.refunded", map[string]any{
		"transactionId": tx.ID,
		"amount":        amount,
		"adminId":       cmd.AdminID,
	})
	return tx, nil
}

// complete settles the transaction and pushes the order from pending into
// processing. A stale order state is logged, not fatal: the payment itself
// is settled regardless.
func (s *paymentService) complete(ctx context.Context, tx Transaction, note string) (Transaction, error) {
	now := s.clock()
	tx.Status = domain.TransactionStatusCompleted
	tx.UpdatedAt = now
	if err := s.transactions.Update(ctx, tx); err != nil {
		return Transaction{}, s.translateRepoError(err)
	}

	if _, err := s.orders.UpdateStatus(ctx, OrderStatusCommand{
		OrderID: tx.OrderID,
		Target:  domain.OrderStatusProcessing,
		Note:    note,
		ActorID: "system",
	}); err != nil {
		s.logger(ctx, "payment.order_update_failed", map[string]any{
			"transactionId": tx.ID,
			"orderId":       tx.OrderID,
			"error":         err.Error(),
		})
	}

	s.publishPaymentEvent(ctx, tx, PaymentEventCompleted, "")
	if s.notifier != nil {
		s.notifier.PaymentCompleted(ctx, tx)
	}
	s.logger(ctx, "payment.completed", map[string]any{
		"transactionId": tx.ID,
		"orderId":       tx.OrderID,
		"method":        string(tx.Method),
	})
	return tx, nil
}

func (s *paymentService) markFailed(ctx context.Context, tx Transaction, message string) (PaymentStatusResult, error) {
	tx.Status = domain.TransactionStatusFailed
	tx.UpdatedAt = s.clock()
	if err := s.transactions.Update(ctx, tx); err != nil {
		return PaymentStatusResult{}, s.translateRepoError(err)
	}
	s.publishPaymentEvent(ctx, tx, PaymentEventRejected, "")
	s.logger(ctx, "payment.failed", map[string]any{
		"transactionId": tx.ID,
		"reason":        message,
	})
	return PaymentStatusResult{Transaction: tx, Status: tx.Status, Message: message}, nil
}

func (s *paymentService) createCheckout(ctx context.Context, order Order, tx Transaction) (payments.CheckoutSession, error) {
	if s.gateway == nil {
		return payments.CheckoutSession{}, fmt.Errorf("%w: no provider gateway configured", ErrPaymentProvider)
	}
	items := make([]payments.CheckoutLineItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, payments.CheckoutLineItem{
			Name:     item.Name,
			SKU:      item.ProductID,
			Quantity: item.Quantity,
			Amount:   item.UnitPrice,
		})
	}
	session, err := s.gateway.CreateCheckoutSession(ctx, tx.Method, payments.CheckoutSessionRequest{
		Amount:         tx.Amount.Total,
		Currency:       s.cfg.currency(),
		CustomerRef:    order.UserID,
		SuccessURL:     s.cfg.SuccessURL,
		CancelURL:      s.cfg.CancelURL,
		IdempotencyKey: "checkout-" + tx.ID,
		Metadata: map[string]string{
			"orderId":       order.ID,
			"orderNumber":   order.OrderNumber,
			"transactionId": tx.ID,
		},
		Items: items,
	})
	if err != nil {
		return payments.CheckoutSession{}, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}
	return session, nil
}

func (s *paymentService) generateAddress(ctx context.Context, tx Transaction) (string, error) {
	if s.gateway == nil {
		return "", fmt.Errorf("%w: no chain gateway configured", ErrPaymentProvider)
	}
	address, err := s.gateway.GenerateAddress(ctx, tx.Method, payments.AddressRequest{
		PaymentID: tx.ID,
		OrderID:   tx.OrderID,
		Method:    tx.Method,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}
	return address, nil
}

func (s *paymentService) publishPaymentEvent(ctx context.Context, tx Transaction, eventType, actorID string) {
	if s.events == nil {
		return
	}
	event := PaymentEvent{
		Type:          eventType,
		TransactionID: tx.ID,
		OrderID:       tx.OrderID,
		UserID:        tx.UserID,
		Method:        tx.Method,
		Status:        tx.Status,
		Amount:        tx.Amount.Total,
		ActorID:       actorID,
		OccurredAt:    s.clock(),
	}
	if err := s.events.PublishPaymentEvent(ctx, event); err != nil {
		s.logger(ctx, "payment.event_publish_failed", map[string]any{
			"transactionId": tx.ID,
			"type":          eventType,
			"error":         err.Error(),
		})
	}
}

func (s *paymentService) recordAudit(ctx context.Context, actorID, action, targetRef string, details map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, AuditRecordCommand{
		ActorID:   actorID,
		Action:    action,
		TargetRef: targetRef,
		Details:   details,
	}); err != nil {
		s.logger(ctx, "payment.audit_failed", map[string]any{
			"action": action,
			"error":  err.Error(),
		})
	}
}

// riskScore is a coarse 0..1 heuristic recorded on the transaction for admin
// triage. High totals and weakly verifiable methods raise it.
func riskScore(order Order, method domain.PaymentMethod) float64 {
	score := 0.1
	switch {
	case order.Payment.Total >= 100_000:
		score += 0.4
	case order.Payment.Total >= 20_000:
		score += 0.2
	}
	switch method {
	case domain.PaymentMethodCryptoBTC, domain.PaymentMethodCryptoETH:
		score += 0.2
	case domain.PaymentMethodCash:
		score += 0.3
	}
	if score > 1 {
		score = 1
	}
	return score
}

func (s *paymentService) translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPaymentNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
		}
	}
	return err
}
