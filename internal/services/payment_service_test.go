package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/teleshop/bot/internal/domain"
	"github.com/teleshop/bot/internal/payments"
)

type memTransactionRepo struct {
	txs     map[string]domain.Transaction
	updated int
}

func newMemTransactionRepo(txs ...domain.Transaction) *memTransactionRepo {
	r := &memTransactionRepo{txs: map[string]domain.Transaction{}}
	for _, tx := range txs {
		r.txs[tx.ID] = tx
	}
	return r
}

func (r *memTransactionRepo) Insert(ctx context.Context, tx domain.Transaction) error {
	r.txs[tx.ID] = tx
	return nil
}

func (r *memTransactionRepo) Update(ctx context.Context, tx domain.Transaction) error {
	if _, ok := r.txs[tx.ID]; !ok {
		return repoNotFound{"transaction " + tx.ID + " not found"}
	}
	r.txs[tx.ID] = tx
	r.updated++
	return nil
}

func (r *memTransactionRepo) FindByID(ctx context.Context, txID string) (domain.Transaction, error) {
	tx, ok := r.txs[txID]
	if !ok {
		return domain.Transaction{}, repoNotFound{"transaction " + txID + " not found"}
	}
	return tx, nil
}

func (r *memTransactionRepo) FindByOrder(ctx context.Context, orderID string) (domain.Transaction, error) {
	for _, tx := range r.txs {
		if tx.OrderID == orderID {
			return tx, nil
		}
	}
	return domain.Transaction{}, repoNotFound{"transaction for order " + orderID + " not found"}
}

type creditCall struct {
	userID string
	delta  int64
}

type memUserRepo struct {
	users   map[string]domain.User
	credits []creditCall
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[string]domain.User{}}
}

func (r *memUserRepo) FindByID(ctx context.Context, userID string) (domain.User, error) {
	u, ok := r.users[userID]
	if !ok {
		return domain.User{}, repoNotFound{"user " + userID + " not found"}
	}
	return u, nil
}

func (r *memUserRepo) Upsert(ctx context.Context, user domain.User) (domain.User, error) {
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) CreditBalance(ctx context.Context, userID string, delta int64) error {
	r.credits = append(r.credits, creditCall{userID: userID, delta: delta})
	return nil
}

func (r *memUserRepo) ListAdmins(ctx context.Context) ([]domain.User, error) {
	return nil, nil
}

type stubGateway struct {
	session    payments.CheckoutSession
	sessionErr error
	details    payments.PaymentDetails
	lookupErr  error
	refundErr  error
	address    string
	addressErr error
	lookups    []payments.LookupRequest
	refunds    []payments.RefundRequest
}

func (g *stubGateway) Supports(method domain.PaymentMethod) bool { return true }

func (g *stubGateway) CreateCheckoutSession(ctx context.Context, method domain.PaymentMethod, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	if g.sessionErr != nil {
		return payments.CheckoutSession{}, g.sessionErr
	}
	return g.session, nil
}

func (g *stubGateway) LookupPayment(ctx context.Context, method domain.PaymentMethod, req payments.LookupRequest) (payments.PaymentDetails, error) {
	g.lookups = append(g.lookups, req)
	if g.lookupErr != nil {
		return payments.PaymentDetails{}, g.lookupErr
	}
	return g.details, nil
}

func (g *stubGateway) Refund(ctx context.Context, method domain.PaymentMethod, req payments.RefundRequest) (payments.PaymentDetails, error) {
	g.refunds = append(g.refunds, req)
	if g.refundErr != nil {
		return payments.PaymentDetails{}, g.refundErr
	}
	return g.details, nil
}

func (g *stubGateway) GenerateAddress(ctx context.Context, method domain.PaymentMethod, req payments.AddressRequest) (string, error) {
	if g.addressErr != nil {
		return "", g.addressErr
	}
	return g.address, nil
}

type paymentFixture struct {
	svc      PaymentService
	txs      *memTransactionRepo
	orders   *memOrderRepo
	users    *memUserRepo
	gateway  *stubGateway
	events   *captureEvents
	notifier *captureNotifier
	audit    *stubAudit
	now      time.Time
}

func newPaymentFixture(t *testing.T, orders []domain.Order, txs ...domain.Transaction) *paymentFixture {
	t.Helper()
	f := &paymentFixture{
		txs:      newMemTransactionRepo(txs...),
		orders:   newMemOrderRepo(orders...),
		users:    newMemUserRepo(),
		gateway:  &stubGateway{},
		events:   &captureEvents{},
		notifier: &captureNotifier{},
		audit:    &stubAudit{},
		now:      time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC),
	}
	orderSvc, err := NewOrderService(OrderServiceDeps{
		Orders: f.orders,
		Clock:  func() time.Time { return f.now },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	svc, err := NewPaymentService(PaymentServiceDeps{
		Transactions: f.txs,
		Users:        f.users,
		Orders:       orderSvc,
		Gateway:      f.gateway,
		Audit:        f.audit,
		Events:       f.events,
		Notifier:     f.notifier,
		Config: PaymentConfig{
			Expiry:   30 * time.Minute,
			Currency: "USD",
			Confirmations: map[domain.PaymentMethod]int{
				domain.PaymentMethodCryptoBTC: 3,
				domain.PaymentMethodCryptoETH: 12,
			},
		},
		Clock: func() time.Time { return f.now },
		IDGen: func() string { return "01TESTULID" },
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}
	f.svc = svc
	return f
}

func payableOrder() domain.Order {
	return domain.Order{
		ID:          "ord_1",
		OrderNumber: "TS-2025-000001",
		UserID:      "user-1",
		Status:      domain.OrderStatusPending,
		Items:       []domain.OrderItem{{ProductID: "prod_tea", Name: "Green Tea", Quantity: 2, UnitPrice: 500, Total: 1000}},
		Payment:     domain.OrderPayment{Method: domain.PaymentMethodCryptoBTC, Subtotal: 1000, Total: 1000},
	}
}

func btcTransaction(status domain.TransactionStatus) domain.Transaction {
	return domain.Transaction{
		ID:           "tx_1",
		OrderID:      "ord_1",
		UserID:       "user-1",
		Method:       domain.PaymentMethodCryptoBTC,
		Address:      "bc1qexisting",
		Amount:       domain.TransactionAmount{Subtotal: 1000, Total: 1000},
		Status:       status,
		Verification: domain.Verification{State: domain.VerificationPending},
		ExpiresAt:    time.Date(2025, 7, 1, 13, 0, 0, 0, time.UTC),
	}
}

func TestPaymentInitializeCrypto(t *testing.T) {
	f := newPaymentFixture(t, []domain.Order{payableOrder()})
	f.gateway.address = "bc1qfresh"

	instr, err := f.svc.InitializePayment(context.Background(), InitializePaymentCommand{
		OrderID: "ord_1",
		Method:  domain.PaymentMethodCryptoBTC,
		ActorID: "user-1",
	})
	if err != nil {
		t.Fatalf("InitializePayment: %v", err)
	}
	if instr.Address != "bc1qfresh" || instr.RequiredConfirmations != 3 {
		t.Fatalf("unexpected instructions: %+v", instr)
	}
	if instr.Transaction.ID != "tx_01TESTULID" {
		t.Fatalf("unexpected transaction id %s", instr.Transaction.ID)
	}
	if instr.Transaction.Provider != "explorer" || instr.Transaction.Address != "bc1qfresh" {
		t.Fatalf("unexpected transaction: %+v", instr.Transaction)
	}
	wantExpiry := f.now.Add(30 * time.Minute)
	if !instr.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expected expiry %s, got %s", wantExpiry, instr.ExpiresAt)
	}
	if len(f.events.paymentEvents) != 1 || f.events.paymentEvents[0].Type != PaymentEventInitialized {
		t.Fatalf("expected initialized event, got %+v", f.events.paymentEvents)
	}
	if _, ok := f.txs.txs["tx_01TESTULID"]; !ok {
		t.Fatalf("expected transaction persisted")
	}
}

func TestPaymentInitializeProviderHosted(t *testing.T) {
	order := payableOrder()
	order.Payment.Method = domain.PaymentMethodPayPal
	f := newPaymentFixture(t, []domain.Order{order})
	f.gateway.session = payments.CheckoutSession{
		ID:          "cs_1",
		Provider:    "stripe",
		RedirectURL: "https://pay.example/cs_1",
		IntentID:    "pi_123",
	}

	instr, err := f.svc.InitializePayment(context.Background(), InitializePaymentCommand{
		OrderID: "ord_1",
		Method:  domain.PaymentMethodPayPal,
	})
	if err != nil {
		t.Fatalf("InitializePayment: %v", err)
	}
	if instr.RedirectURL != "https://pay.example/cs_1" {
		t.Fatalf("expected redirect url, got %q", instr.RedirectURL)
	}
	if instr.Transaction.Provider != "stripe" || instr.Transaction.ProviderRef != "pi_123" {
		t.Fatalf("unexpected transaction: %+v", instr.Transaction)
	}
}

func TestPaymentInitializeRejectsNonPendingOrder(t *testing.T) {
	order := payableOrder()
	order.Status = domain.OrderStatusProcessing
	f := newPaymentFixture(t, []domain.Order{order})

	_, err := f.svc.InitializePayment(context.Background(), InitializePaymentCommand{
		OrderID: "ord_1",
		Method:  domain.PaymentMethodCash,
	})
	if !errors.Is(err, ErrPaymentInvalidState) {
		t.Fatalf("expected ErrPaymentInvalidState, got %v", err)
	}
}

func TestPaymentInitializeRejectsUnknownMethod(t *testing.T) {
	f := newPaymentFixture(t, []domain.Order{payableOrder()})

	_, err := f.svc.InitializePayment(context.Background(), InitializePaymentCommand{
		OrderID: "ord_1",
		Method:  "wire",
	})
	if !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected ErrPaymentInvalidInput, got %v", err)
	}
}

func TestPaymentCheckStatusReportsRemainingConfirmations(t *testing.T) {
	f := newPaymentFixture(t, []domain.Order{payableOrder()}, btcTransaction(domain.TransactionStatusPending))
	f.gateway.details = payments.PaymentDetails{Status: payments.StatusPending, Confirmations: 1}

	result, err := f.svc.CheckStatus(context.Background(), "tx_1")
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if result.Status != domain.TransactionStatusPending {
		t.Fatalf("expected pending, got %s", result.Status)
	}
	if result.Confirmations != 1 || result.Message != "2 more confirmation(s) required" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(f.gateway.lookups) != 1 || f.gateway.lookups[0].Address != "bc1qexisting" {
		t.Fatalf("expected lookup by address, got %+v", f.gateway.lookups)
	}
}

func TestPaymentCheckStatusCompletesAtThreshold(t *testing.T) {
	f := newPaymentFixture(t, []domain.Order{payableOrder()}, btcTransaction(domain.TransactionStatusPending))
	f.gateway.details = payments.PaymentDetails{Status: payments.StatusSucceeded, Confirmations: 3}

	result, err := f.svc.CheckStatus(context.Background(), "tx_1")
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if result.Status != domain.TransactionStatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	// A settled payment pushes the order from pending into processing.
	if f.orders.orders["ord_1"].Status != domain.OrderStatusProcessing {
		t.Fatalf("expected order processing, got %s", f.orders.orders["ord_1"].Status)
	}
	if len(f.notifier.completed) != 1 {
		t.Fatalf("expected completion notification, got %d", len(f.notifier.completed))
	}
}

func TestPaymentCheckStatusLazyExpiry(t *testing.T) {
	tx := btcTransaction(domain.TransactionStatusPending)
	tx.ExpiresAt = time.Date(2025, 7, 1, 11, 0, 0, 0, time.UTC)
	f := newPaymentFixture(t, []domain.Order{payableOrder()}, tx)

	result, err := f.svc.CheckStatus(context.Background(), "tx_1")
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if result.Status != domain.TransactionStatusExpired {
		t.Fatalf("expected expired, got %s", result.Status)
	}
	if f.txs.txs["tx_1"].Status != domain.TransactionStatusExpired {
		t.Fatalf("expected expiry persisted, got %s", f.txs.txs["tx_1"].Status)
	}
	if len(f.gateway.lookups) != 0 {
		t.Fatalf("expected no provider lookup for an expired payment")
	}
	if len(f.events.paymentEvents) != 1 || f.events.paymentEvents[0].Type != PaymentEventExpired {
		t.Fatalf("expected expired event, got %+v", f.events.paymentEvents)
	}
}

func TestPaymentCheckStatusManualAwaitsValidation(t *testing.T) {
	tx := btcTransaction(domain.TransactionStatusPending)
	tx.Method = domain.PaymentMethodCash
	f := newPaymentFixture(t, []domain.Order{payableOrder()}, tx)

	result, err := f.svc.CheckStatus(context.Background(), "tx_1")
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if result.Status != domain.TransactionStatusPendingValidation {
		t.Fatalf("expected pending_validation, got %s", result.Status)
	}
	if result.Message != "awaiting validation by an admin" {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestPaymentValidateManualApprove(t *testing.T) {
	tx := btcTransaction(domain.TransactionStatusPendingValidation)
	tx.Method = domain.PaymentMethodVoucher
	f := newPaymentFixture(t, []domain.Order{payableOrder()}, tx)

	validated, err := f.svc.ValidateManualPayment(context.Background(), ValidateManualPaymentCommand{
		PaymentID: "tx_1",
		AdminID:   "admin-1",
		ProofRef:  "proofs/ord_1/tx_1/incoming/voucher.jpg",
		Approve:   true,
	})
	if err != nil {
		t.Fatalf("ValidateManualPayment: %v", err)
	}
	if validated.Status != domain.TransactionStatusCompleted {
		t.Fatalf("expected completed, got %s", validated.Status)
	}
	v := validated.Verification
	if v.State != domain.VerificationVerified || v.VerifierID != "admin-1" || v.VerifiedAt == nil {
		t.Fatalf("unexpected verification: %+v", v)
	}
	if v.ProofRef != "proofs/ord_1/tx_1/incoming/voucher.jpg" {
		t.Fatalf("expected proof recorded, got %q", v.ProofRef)
	}
	if f.orders.orders["ord_1"].Status != domain.OrderStatusProcessing {
		t.Fatalf("expected order processing, got %s", f.orders.orders["ord_1"].Status)
	}
	if len(f.audit.recorded) != 1 || f.audit.recorded[0].Action != "payment.validate" {
		t.Fatalf("expected validate audit entry, got %+v", f.audit.recorded)
	}
}

func TestPaymentValidateManualReject(t *testing.T) {
	tx := btcTransaction(domain.TransactionStatusPendingValidation)
	tx.Method = domain.PaymentMethodCash
	f := newPaymentFixture(t, []domain.Order{payableOrder()}, tx)

	rejected, err := f.svc.ValidateManualPayment(context.Background(), ValidateManualPaymentCommand{
		PaymentID: "tx_1",
		AdminID:   "admin-1",
		Approve:   false,
		Note:      "voucher already used",
	})
	if err != nil {
		t.Fatalf("ValidateManualPayment: %v", err)
	}
	if rejected.Status != domain.TransactionStatusFailed {
		t.Fatalf("expected failed, got %s", rejected.Status)
	}
	if rejected.Verification.State != domain.VerificationRejected {
		t.Fatalf("expected rejected verification, got %s", rejected.Verification.State)
	}
	// Rejection settles nothing; the order stays pending.
	if f.orders.orders["ord_1"].Status != domain.OrderStatusPending {
		t.Fatalf("expected order pending, got %s", f.orders.orders["ord_1"].Status)
	}
}

func TestPaymentValidateManualWrongMethod(t *testing.T) {
	f := newPaymentFixture(t, []domain.Order{payableOrder()}, btcTransaction(domain.TransactionStatusPendingValidation))

	_, err := f.svc.ValidateManualPayment(context.Background(), ValidateManualPaymentCommand{
		PaymentID: "tx_1",
		AdminID:   "admin-1",
		Approve:   true,
	})
	if !errors.Is(err, ErrPaymentInvalidState) {
		t.Fatalf("expected ErrPaymentInvalidState, got %v", err)
	}
}

func TestPaymentRefundFullAmount(t *testing.T) {
	order := payableOrder()
	order.Status = domain.OrderStatusCompleted
	f := newPaymentFixture(t, []domain.Order{order}, btcTransaction(domain.TransactionStatusCompleted))

	refunded, err := f.svc.ProcessRefund(context.Background(), RefundCommand{
		TransactionID: "tx_1",
		AdminID:       "admin-1",
		Reason:        "damaged goods",
	})
	if err != nil {
		t.Fatalf("ProcessRefund: %v", err)
	}
	if refunded.Status != domain.TransactionStatusRefunded {
		t.Fatalf("expected refunded, got %s", refunded.Status)
	}
	if refunded.Refund == nil || refunded.Refund.Amount != 1000 || refunded.Refund.AdminID != "admin-1" {
		t.Fatalf("unexpected refund record: %+v", refunded.Refund)
	}
	if f.orders.orders["ord_1"].Status != domain.OrderStatusRefunded {
		t.Fatalf("expected order refunded, got %s", f.orders.orders["ord_1"].Status)
	}
	if len(f.users.credits) != 1 || f.users.credits[0] != (creditCall{userID: "user-1", delta: 1000}) {
		t.Fatalf("expected balance credit, got %+v", f.users.credits)
	}
	if len(f.notifier.refunded) != 1 {
		t.Fatalf("expected refund notification, got %d", len(f.notifier.refunded))
	}
}

func TestPaymentRefundPartialAmount(t *testing.T) {
	f := newPaymentFixture(t, []domain.Order{payableOrder()}, btcTransaction(domain.TransactionStatusCompleted))

	refunded, err := f.svc.ProcessRefund(context.Background(), RefundCommand{
		TransactionID: "tx_1",
		Amount:        400,
		AdminID:       "admin-1",
	})
	if err != nil {
		t.Fatalf("ProcessRefund: %v", err)
	}
	if refunded.Refund.Amount != 400 {
		t.Fatalf("expected partial refund of 400, got %d", refunded.Refund.Amount)
	}
	if f.users.credits[0].delta != 400 {
		t.Fatalf("expected credit of 400, got %d", f.users.credits[0].delta)
	}
}

func TestPaymentRefundAmountExceeded(t *testing.T) {
	f := newPaymentFixture(t, []domain.Order{payableOrder()}, btcTransaction(domain.TransactionStatusCompleted))

	_, err := f.svc.ProcessRefund(context.Background(), RefundCommand{
		TransactionID: "tx_1",
		Amount:        1500,
		AdminID:       "admin-1",
	})
	if !errors.Is(err, ErrPaymentAmountExceeded) {
		t.Fatalf("expected ErrPaymentAmountExceeded, got %v", err)
	}
	if f.txs.txs["tx_1"].Status != domain.TransactionStatusCompleted {
		t.Fatalf("expected transaction untouched, got %s", f.txs.txs["tx_1"].Status)
	}
}

func TestPaymentRefundRequiresCompletedPayment(t *testing.T) {
	f := newPaymentFixture(t, []domain.Order{payableOrder()}, btcTransaction(domain.TransactionStatusPending))

	_, err := f.svc.ProcessRefund(context.Background(), RefundCommand{
		TransactionID: "tx_1",
		AdminID:       "admin-1",
	})
	if !errors.Is(err, ErrPaymentInvalidState) {
		t.Fatalf("expected ErrPaymentInvalidState, got %v", err)
	}
}

func TestPaymentRefundReversesProviderCharge(t *testing.T) {
	tx := btcTransaction(domain.TransactionStatusCompleted)
	tx.Method = domain.PaymentMethodPayPal
	tx.ProviderRef = "pi_123"
	f := newPaymentFixture(t, []domain.Order{payableOrder()}, tx)

	if _, err := f.svc.ProcessRefund(context.Background(), RefundCommand{
		TransactionID: "tx_1",
		Amount:        250,
		AdminID:       "admin-1",
	}); err != nil {
		t.Fatalf("ProcessRefund: %v", err)
	}
	if len(f.gateway.refunds) != 1 {
		t.Fatalf("expected provider refund call, got %d", len(f.gateway.refunds))
	}
	req := f.gateway.refunds[0]
	if req.IntentID != "pi_123" || req.Amount == nil || *req.Amount != 250 {
		t.Fatalf("unexpected refund request: %+v", req)
	}
}
