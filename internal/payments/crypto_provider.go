package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domain "github.com/teleshop/bot/internal/domain"
)

// ErrRefundUnsupported is returned for on-chain payments: there is no
// provider-side refund, the shop credits the user's balance instead.
var ErrRefundUnsupported = errors.New("payments: on-chain refunds are not supported")

// ExplorerLogger defines the logging contract for explorer operations.
type ExplorerLogger func(ctx context.Context, event string, fields map[string]any)

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ExplorerProviderConfig configures the ExplorerProvider.
type ExplorerProviderConfig struct {
	// BaseURL is the root of the address/watch API, e.g. https://watch.example.com.
	BaseURL string
	APIKey  string
	Client  httpDoer
	Timeout time.Duration
	Logger  ExplorerLogger
}

// ExplorerProvider implements crypto payment tracking against a chain watch
// service: it allocates per-payment deposit addresses and reports the
// confirmation count of the incoming transfer.
type ExplorerProvider struct {
	baseURL string
	apiKey  string
	client  httpDoer
	logger  ExplorerLogger
}

var (
	_ Provider         = (*ExplorerProvider)(nil)
	_ AddressGenerator = (*ExplorerProvider)(nil)
)

// NewExplorerProvider constructs an ExplorerProvider using the given configuration.
func NewExplorerProvider(cfg ExplorerProviderConfig) (*ExplorerProvider, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("explorer: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("explorer: invalid base url: %w", err)
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &ExplorerProvider{
		baseURL: base,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  client,
		logger:  logger,
	}, nil
}

type explorerAddressRequest struct {
	PaymentID string `json:"paymentId"`
	OrderID   string `json:"orderId"`
	Chain     string `json:"chain"`
}

type explorerAddressResponse struct {
	Address string `json:"address"`
}

type explorerPaymentResponse struct {
	Address       string `json:"address"`
	TxID          string `json:"txid"`
	AmountSats    int64  `json:"amount"`
	Confirmations int    `json:"confirmations"`
	Status        string `json:"status"`
}

// GenerateAddress allocates a fresh deposit address for the payment.
func (p *ExplorerProvider) GenerateAddress(ctx context.Context, req AddressRequest) (string, error) {
	chain, err := chainFor(req.Method)
	if err != nil {
		return "", err
	}

	var resp explorerAddressResponse
	err = p.do(ctx, http.MethodPost, "/v1/addresses", explorerAddressRequest{
		PaymentID: req.PaymentID,
		OrderID:   req.OrderID,
		Chain:     chain,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("explorer: generate address: %w", err)
	}
	if strings.TrimSpace(resp.Address) == "" {
		return "", errors.New("explorer: empty address in response")
	}

	p.logger(ctx, "payments.explorer.address.created", map[string]any{
		"paymentId": req.PaymentID,
		"chain":     chain,
	})
	return resp.Address, nil
}

// LookupPayment reports the incoming transfer on the payment's deposit
// address. A payment with no transfer yet comes back pending with zero
// confirmations.
func (p *ExplorerProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	address := strings.TrimSpace(req.Address)
	if address == "" {
		address = strings.TrimSpace(req.IntentID)
	}
	if address == "" {
		return PaymentDetails{}, errors.New("explorer: deposit address is required")
	}

	var resp explorerPaymentResponse
	if err := p.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(address), nil, &resp); err != nil {
		return PaymentDetails{}, fmt.Errorf("explorer: lookup payment: %w", err)
	}

	status := StatusPending
	switch strings.ToLower(resp.Status) {
	case "confirmed":
		status = StatusSucceeded
	case "failed", "reorged":
		status = StatusFailed
	}

	return PaymentDetails{
		Provider:      "explorer",
		IntentID:      resp.TxID,
		Status:        status,
		Amount:        resp.AmountSats,
		Confirmations: resp.Confirmations,
	}, nil
}

// Refund always fails: chain transfers cannot be reversed by the watch
// service.
func (p *ExplorerProvider) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	return PaymentDetails{}, ErrRefundUnsupported
}

func (p *ExplorerProvider) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func chainFor(method domain.PaymentMethod) (string, error) {
	switch method {
	case domain.PaymentMethodCryptoBTC:
		return "btc", nil
	case domain.PaymentMethodCryptoETH:
		return "eth", nil
	default:
		return "", fmt.Errorf("%w: %s is not a chain method", ErrUnsupportedMethod, method)
	}
}
