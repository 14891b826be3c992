package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	defaultDialTimeout = 10 * time.Second
	envEmulatorHost    = "FIRESTORE_EMULATOR_HOST"
	envGoogleProject   = "GOOGLE_CLOUD_PROJECT"
)

// ErrProviderClosed is returned after Close has been called.
var ErrProviderClosed = errors.New("firestore: provider is closed")

// Settings carries the connection parameters for the Firestore client.
type Settings struct {
	ProjectID    string
	DatabaseID   string
	EmulatorHost string
	DialTimeout  time.Duration
	ClientOpts   []option.ClientOption
}

// Provider lazily initialises a shared Firestore client and hands it out to
// repositories. Initialisation happens once; concurrent callers wait for the
// first attempt to settle.
type Provider struct {
	settings Settings

	mu     sync.Mutex
	initCh chan struct{}
	client *firestore.Client
	err    error
	closed bool
}

// NewProvider constructs a Provider from the supplied settings.
func NewProvider(settings Settings) *Provider {
	if settings.DialTimeout <= 0 {
		settings.DialTimeout = defaultDialTimeout
	}
	return &Provider{settings: settings}
}

// Client returns the shared Firestore client, dialling it on first use.
func (p *Provider) Client(ctx context.Context) (*firestore.Client, error) {
	if ctx == nil {
		return nil, errors.New("firestore: context is required")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrProviderClosed
	}
	if p.client != nil || p.err != nil {
		client, err := p.client, p.err
		p.mu.Unlock()
		return client, err
	}
	if p.initCh != nil {
		waitCh := p.initCh
		p.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-waitCh:
			return p.Client(ctx)
		}
	}
	p.initCh = make(chan struct{})
	waitCh := p.initCh
	p.mu.Unlock()

	client, err := p.dial(ctx)

	p.mu.Lock()
	p.client, p.err = client, err
	p.initCh = nil
	p.mu.Unlock()
	close(waitCh)

	return client, err
}

func (p *Provider) dial(ctx context.Context) (*firestore.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, p.settings.DialTimeout)
	defer cancel()

	projectID := strings.TrimSpace(p.settings.ProjectID)
	if projectID == "" {
		projectID = strings.TrimSpace(os.Getenv(envGoogleProject))
	}
	if projectID == "" {
		return nil, errors.New("firestore: project id is required")
	}

	opts := append([]option.ClientOption(nil), p.settings.ClientOpts...)
	if host := p.emulatorHost(); host != "" {
		if os.Getenv(envEmulatorHost) == "" {
			_ = os.Setenv(envEmulatorHost, host)
		}
		opts = append(opts,
			option.WithoutAuthentication(),
			option.WithEndpoint(host),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	var (
		client *firestore.Client
		err    error
	)
	if db := strings.TrimSpace(p.settings.DatabaseID); db != "" {
		client, err = firestore.NewClientWithDatabase(dialCtx, projectID, db, opts...)
	} else {
		client, err = firestore.NewClient(dialCtx, projectID, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("firestore: create client: %w", err)
	}
	return client, nil
}

func (p *Provider) emulatorHost() string {
	if host := strings.TrimSpace(p.settings.EmulatorHost); host != "" {
		return host
	}
	return strings.TrimSpace(os.Getenv(envEmulatorHost))
}

// Close releases the underlying client. The Provider cannot be reused.
func (p *Provider) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	client := p.client
	p.client = nil
	p.mu.Unlock()

	if client == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- client.Close() }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// RunTransaction executes fn inside a Firestore transaction on the shared client.
func (p *Provider) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx *firestore.Transaction) error) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	if fn == nil {
		return errors.New("firestore: transaction function is nil")
	}
	return WrapError("transaction", client.RunTransaction(ctx, fn, firestore.MaxAttempts(5)))
}
