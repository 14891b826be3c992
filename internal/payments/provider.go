package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	domain "github.com/teleshop/bot/internal/domain"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or
	// provider confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the provider reports the payment as settled.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the provider reports a failure and no further
	// action is possible.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the payment has been refunded.
	StatusRefunded Status = "refunded"
)

// ErrUnsupportedMethod is returned when the manager has no provider route for
// a payment method.
var ErrUnsupportedMethod = errors.New("payments: unsupported payment method")

// ErrNoAddressSupport is returned when the routed provider cannot generate
// deposit addresses.
var ErrNoAddressSupport = errors.New("payments: provider does not generate addresses")

// CheckoutLineItem describes a single line item to include in a checkout session.
type CheckoutLineItem struct {
	Name     string
	SKU      string
	Quantity int64
	Amount   int64
	Currency string
}

// CheckoutSessionRequest captures the payload required to create a checkout session.
type CheckoutSessionRequest struct {
	Amount         int64
	Currency       string
	CustomerRef    string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
	Items          []CheckoutLineItem
}

// CheckoutSession represents the provider-hosted session returned to the client.
type CheckoutSession struct {
	ID          string
	Provider    string
	RedirectURL string
	IntentID    string
	ExpiresAt   time.Time
	Raw         map[string]any
}

// RefundRequest defines a provider refund attempt.
type RefundRequest struct {
	IntentID       string
	Amount         *int64
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
}

// LookupRequest identifies a payment for status reconciliation. IntentID is
// the provider reference for hosted flows; Address is the deposit address for
// chain-watching providers.
type LookupRequest struct {
	IntentID string
	Address  string
}

// PaymentDetails normalises provider specific fields for storage.
type PaymentDetails struct {
	Provider      string
	IntentID      string
	Status        Status
	Amount        int64
	Currency      string
	Confirmations int
	Raw           map[string]any
}

// Provider defines the contract for payment provider adapters.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error)
	Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error)
}

// AddressRequest asks a chain provider for a fresh deposit address.
type AddressRequest struct {
	PaymentID string
	OrderID   string
	Method    domain.PaymentMethod
	Metadata  map[string]string
}

// AddressGenerator is implemented by providers that hand out per-payment
// deposit addresses.
type AddressGenerator interface {
	GenerateAddress(ctx context.Context, req AddressRequest) (string, error)
}

// Manager routes payment operations to the provider registered for each
// payment method.
type Manager struct {
	providers map[string]Provider
	routes    map[domain.PaymentMethod]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithMethodRoutes maps payment methods onto registered provider names.
func WithMethodRoutes(routes map[domain.PaymentMethod]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.routes == nil {
			m.routes = make(map[domain.PaymentMethod]string, len(routes))
		}
		for method, name := range routes {
			m.routes[method] = strings.TrimSpace(strings.ToLower(name))
		}
	}
}

// WithBreaker wraps every registered provider in a circuit breaker so a
// flapping provider fails fast instead of holding up chat interactions.
func WithBreaker(settings gobreaker.Settings) ManagerOption {
	return func(m *Manager) {
		for name, p := range m.providers {
			s := settings
			if s.Name == "" {
				s.Name = "payments." + name
			}
			m.providers[name] = &breakerProvider{
				next: p,
				cb:   gobreaker.NewCircuitBreaker(s),
			}
		}
	}
}

// NewManager constructs a Manager over the supplied providers. Default routes
// send paypal to the provider named "stripe" and the crypto methods to the
// provider named "explorer" when those registrations exist.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}

	m := &Manager{
		providers: copyMap,
		routes:    make(map[domain.PaymentMethod]string),
	}
	if _, ok := copyMap["stripe"]; ok {
		m.routes[domain.PaymentMethodPayPal] = "stripe"
	}
	if _, ok := copyMap["explorer"]; ok {
		m.routes[domain.PaymentMethodCryptoBTC] = "explorer"
		m.routes[domain.PaymentMethodCryptoETH] = "explorer"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) resolve(method domain.PaymentMethod) (string, Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	name, ok := m.routes[method]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	p, ok := m.providers[name]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s routes to unknown provider %q", ErrUnsupportedMethod, method, name)
	}
	return name, p, nil
}

// Supports reports whether a provider route exists for the method.
func (m *Manager) Supports(method domain.PaymentMethod) bool {
	_, _, err := m.resolve(method)
	return err == nil
}

// CreateCheckoutSession delegates to the provider routed for the method.
func (m *Manager) CreateCheckoutSession(ctx context.Context, method domain.PaymentMethod, req CheckoutSessionRequest) (CheckoutSession, error) {
	name, provider, err := m.resolve(method)
	if err != nil {
		return CheckoutSession{}, err
	}
	session, err := provider.CreateCheckoutSession(ctx, req)
	if err != nil {
		return CheckoutSession{}, err
	}
	session.Provider = name
	return session, nil
}

// LookupPayment delegates to the provider routed for the method.
func (m *Manager) LookupPayment(ctx context.Context, method domain.PaymentMethod, req LookupRequest) (PaymentDetails, error) {
	_, provider, err := m.resolve(method)
	if err != nil {
		return PaymentDetails{}, err
	}
	return provider.LookupPayment(ctx, req)
}

// Refund delegates to the provider routed for the method.
func (m *Manager) Refund(ctx context.Context, method domain.PaymentMethod, req RefundRequest) (PaymentDetails, error) {
	_, provider, err := m.resolve(method)
	if err != nil {
		return PaymentDetails{}, err
	}
	return provider.Refund(ctx, req)
}

// GenerateAddress delegates to the routed provider when it hands out deposit
// addresses.
func (m *Manager) GenerateAddress(ctx context.Context, method domain.PaymentMethod, req AddressRequest) (string, error) {
	name, provider, err := m.resolve(method)
	if err != nil {
		return "", err
	}
	gen, ok := unwrapAddressGenerator(provider)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoAddressSupport, name)
	}
	return gen.GenerateAddress(ctx, req)
}

func unwrapAddressGenerator(p Provider) (AddressGenerator, bool) {
	for {
		if gen, ok := p.(AddressGenerator); ok {
			return gen, true
		}
		bp, ok := p.(*breakerProvider)
		if !ok {
			return nil, false
		}
		p = bp.next
	}
}

// breakerProvider decorates a Provider with a circuit breaker. Address
// generation is intentionally left outside the breaker: it runs once per
// payment, while lookups poll in a loop and are the calls that trip.
type breakerProvider struct {
	next Provider
	cb   *gobreaker.CircuitBreaker
}

func (b *breakerProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.next.CreateCheckoutSession(ctx, req)
	})
	if err != nil {
		return CheckoutSession{}, err
	}
	return out.(CheckoutSession), nil
}

func (b *breakerProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.next.LookupPayment(ctx, req)
	})
	if err != nil {
		return PaymentDetails{}, err
	}
	return out.(PaymentDetails), nil
}

func (b *breakerProvider) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.next.Refund(ctx, req)
	})
	if err != nil {
		return PaymentDetails{}, err
	}
	return out.(PaymentDetails), nil
}
