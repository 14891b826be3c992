package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	domain "github.com/teleshop/bot/internal/domain"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultCurrency             = "USD"
	defaultPaymentExpiry        = time.Hour
	defaultConfirmationsBTC     = 3
	defaultConfirmationsETH     = 12
	defaultRateLimitPerMinute   = 30
	defaultRateLimitBurst       = 10
	defaultCartIdleAfter        = 24 * time.Hour
	defaultCartSweepInterval    = time.Hour
	defaultPendingOrderAfter    = 24 * time.Hour
	defaultPendingSweepInterval = 15 * time.Minute
	defaultArchiveAfter         = 24 * time.Hour
	defaultSecurityEnvironment  = "local"
	defaultJWTIssuer            = "teleshop-bot"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Telegram   TelegramConfig
	Firebase   FirebaseConfig
	Firestore  FirestoreConfig
	Storage    StorageConfig
	Payments   PaymentsConfig
	Events     EventsConfig
	RateLimits RateLimitConfig
	Sweeps     SweepConfig
	Features   FeatureFlags
	Security   SecurityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// TelegramConfig stores bot credentials and webhook settings.
type TelegramConfig struct {
	Token         string
	WebhookURL    string
	WebhookSecret string
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	DatabaseID   string
	EmulatorHost string
}

// StorageConfig lists bucket names used by the application.
type StorageConfig struct {
	ProofsBucket string
	// SignerKey is the service account JSON used to mint signed download
	// URLs for payment proofs. Optional; without it proof links are off.
	SignerKey string
}

// PaymentsConfig collects provider credentials and method-level knobs.
type PaymentsConfig struct {
	StripeAPIKey     string
	StripeAccountID  string
	ExplorerBaseURL  string
	ExplorerAPIKey   string
	Currency         string
	Expiry           time.Duration
	ConfirmationsBTC int
	ConfirmationsETH int
	SuccessURL       string
	CancelURL        string
	// Fees maps payment methods to their fee rule, parsed from
	// "method=bps:fixed" pairs, e.g. "paypal=290:30,crypto_btc=100:0".
	Fees map[domain.PaymentMethod]FeeRule
}

// FeeRule is a percentage (basis points) plus fixed minor-unit surcharge.
type FeeRule struct {
	PercentBps int64
	Fixed      int64
}

// EventsConfig names the Pub/Sub topics domain events fan out to.
type EventsConfig struct {
	ProjectID    string
	OrderTopic   string
	PaymentTopic string
}

// RateLimitConfig controls per-user chat command throttling.
type RateLimitConfig struct {
	PerUserPerMinute int
	Burst            int
}

// SweepConfig controls the background maintenance loops.
type SweepConfig struct {
	CartIdleAfter        time.Duration
	CartSweepInterval    time.Duration
	PendingOrderAfter    time.Duration
	PendingSweepInterval time.Duration
	ArchiveAfter         time.Duration
}

// FeatureFlags toggle optional behaviour without redeploying.
type FeatureFlags struct {
	EnablePromotions    bool
	EnableNotifications bool
}

// SecurityConfig groups admin API authentication settings.
type SecurityConfig struct {
	Environment string
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	secrets []missingSecret
}

type missingSecret struct {
	name     string
	redacted string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.secrets) == 0 {
		return "missing required secrets"
	}
	names := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		names = append(names, secret.redacted)
	}
	sort.Strings(names)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(names, ", "))
}

// RedactedNames returns a copy of the redacted secret identifiers.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.redacted)
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.name)
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

// EnvironmentValues returns the effective key/value environment map after applying the same precedence
// rules as Load (dotenv < OS env < explicit env map). Callers can use the result to initialise
// dependencies before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	merge := func(source map[string]string) {
		if source == nil {
			return
		}
		for key, value := range source {
			values[key] = value
		}
	}

	merge(dotEnvValues)

	if options.useSystemEnv {
		system := make(map[string]string)
		for _, entry := range os.Environ() {
			if entry == "" {
				continue
			}
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			if key == "" {
				continue
			}
			system[key] = parts[1]
		}
		merge(system)
	}

	merge(options.envMap)

	return values, nil
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory.
// Identifiers should match the config field names recorded by the loader
// (e.g. "Telegram.Token" or "Payments.StripeAPIKey").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// WithPanicOnMissingSecrets causes Load to panic when required secrets are missing.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) {
		o.panicOnMissingSecrets = true
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "BOT_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "BOT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "BOT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "BOT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Telegram: TelegramConfig{
			Token:         stringWithDefault(lookup, "BOT_TELEGRAM_TOKEN", ""),
			WebhookURL:    stringWithDefault(lookup, "BOT_TELEGRAM_WEBHOOK_URL", ""),
			WebhookSecret: stringWithDefault(lookup, "BOT_TELEGRAM_WEBHOOK_SECRET", ""),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "BOT_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "BOT_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "BOT_FIRESTORE_PROJECT_ID", ""),
			DatabaseID:   stringWithDefault(lookup, "BOT_FIRESTORE_DATABASE_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "BOT_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			ProofsBucket: stringWithDefault(lookup, "BOT_STORAGE_PROOFS_BUCKET", ""),
			SignerKey:    stringWithDefault(lookup, "BOT_STORAGE_SIGNER_KEY", ""),
		},
		Payments: PaymentsConfig{
			StripeAPIKey:     stringWithDefault(lookup, "BOT_PAYMENTS_STRIPE_API_KEY", ""),
			StripeAccountID:  stringWithDefault(lookup, "BOT_PAYMENTS_STRIPE_ACCOUNT_ID", ""),
			ExplorerBaseURL:  stringWithDefault(lookup, "BOT_PAYMENTS_EXPLORER_BASE_URL", ""),
			ExplorerAPIKey:   stringWithDefault(lookup, "BOT_PAYMENTS_EXPLORER_API_KEY", ""),
			Currency:         stringWithDefault(lookup, "BOT_PAYMENTS_CURRENCY", defaultCurrency),
			Expiry:           durationWithDefault(lookup, "BOT_PAYMENTS_EXPIRY", defaultPaymentExpiry),
			ConfirmationsBTC: intWithDefault(lookup, "BOT_PAYMENTS_CONFIRMATIONS_BTC", defaultConfirmationsBTC),
			ConfirmationsETH: intWithDefault(lookup, "BOT_PAYMENTS_CONFIRMATIONS_ETH", defaultConfirmationsETH),
			SuccessURL:       stringWithDefault(lookup, "BOT_PAYMENTS_SUCCESS_URL", ""),
			CancelURL:        stringWithDefault(lookup, "BOT_PAYMENTS_CANCEL_URL", ""),
			Fees:             feeRules(lookup, "BOT_PAYMENTS_FEES"),
		},
		Events: EventsConfig{
			ProjectID:    stringWithDefault(lookup, "BOT_EVENTS_PROJECT_ID", ""),
			OrderTopic:   stringWithDefault(lookup, "BOT_EVENTS_ORDER_TOPIC", "order-events"),
			PaymentTopic: stringWithDefault(lookup, "BOT_EVENTS_PAYMENT_TOPIC", "payment-events"),
		},
		RateLimits: RateLimitConfig{
			PerUserPerMinute: intWithDefault(lookup, "BOT_RATELIMIT_PER_USER_PER_MIN", defaultRateLimitPerMinute),
			Burst:            intWithDefault(lookup, "BOT_RATELIMIT_BURST", defaultRateLimitBurst),
		},
		Sweeps: SweepConfig{
			CartIdleAfter:        durationWithDefault(lookup, "BOT_SWEEP_CART_IDLE_AFTER", defaultCartIdleAfter),
			CartSweepInterval:    durationWithDefault(lookup, "BOT_SWEEP_CART_INTERVAL", defaultCartSweepInterval),
			PendingOrderAfter:    durationWithDefault(lookup, "BOT_SWEEP_PENDING_ORDER_AFTER", defaultPendingOrderAfter),
			PendingSweepInterval: durationWithDefault(lookup, "BOT_SWEEP_PENDING_INTERVAL", defaultPendingSweepInterval),
			ArchiveAfter:         durationWithDefault(lookup, "BOT_SWEEP_ARCHIVE_AFTER", defaultArchiveAfter),
		},
		Features: FeatureFlags{
			EnablePromotions:    boolWithDefault(lookup, "BOT_FEATURE_PROMOTIONS", true),
			EnableNotifications: boolWithDefault(lookup, "BOT_FEATURE_NOTIFICATIONS", true),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "BOT_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			JWTSecret:   stringWithDefault(lookup, "BOT_SECURITY_JWT_SECRET", ""),
			JWTIssuer:   stringWithDefault(lookup, "BOT_SECURITY_JWT_ISSUER", defaultJWTIssuer),
			JWTAudience: stringWithDefault(lookup, "BOT_SECURITY_JWT_AUDIENCE", ""),
		},
	}

	resolvedSecrets := make(map[string]string)
	resolveField := func(name string, field *string) error {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return err
		}
		*field = resolved
		resolvedSecrets[name] = strings.TrimSpace(resolved)
		return nil
	}

	// Firestore and events projects default to the Firebase project.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Events.ProjectID == "" {
		cfg.Events.ProjectID = cfg.Firebase.ProjectID
	}

	// Resolve secrets when values reference Secret Manager.
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Telegram.Token", &cfg.Telegram.Token},
		{"Telegram.WebhookSecret", &cfg.Telegram.WebhookSecret},
		{"Storage.SignerKey", &cfg.Storage.SignerKey},
		{"Payments.StripeAPIKey", &cfg.Payments.StripeAPIKey},
		{"Payments.ExplorerAPIKey", &cfg.Payments.ExplorerAPIKey},
		{"Security.JWTSecret", &cfg.Security.JWTSecret},
	}
	for _, target := range secretFields {
		if err := resolveField(target.name, target.field); err != nil {
			return Config{}, err
		}
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolvedSecrets); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" {
		return value, nil
	}
	if !isSecretReference(value) {
		return value, nil
	}
	if resolver == nil {
		normalized := normalizeSecretReference(value)
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	normalized := normalizeSecretReference(value)
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Telegram.Token == "" {
		missing = append(missing, "Telegram.Token")
	}
	if cfg.Firebase.ProjectID == "" {
		missing = append(missing, "Firebase.ProjectID")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if cfg.Payments.Expiry <= 0 {
		missing = append(missing, "Payments.Expiry")
	}
	if cfg.Payments.ConfirmationsBTC <= 0 {
		missing = append(missing, "Payments.ConfirmationsBTC")
	}
	if cfg.Payments.ConfirmationsETH <= 0 {
		missing = append(missing, "Payments.ConfirmationsETH")
	}
	if cfg.Sweeps.CartSweepInterval <= 0 {
		missing = append(missing, "Sweeps.CartSweepInterval")
	}
	if cfg.Sweeps.PendingSweepInterval <= 0 {
		missing = append(missing, "Sweeps.PendingSweepInterval")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	if len(required) == 0 {
		return nil
	}
	missing := make([]missingSecret, 0, len(required))
	seen := make(map[string]struct{})
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if value := strings.TrimSpace(resolved[trimmed]); value != "" {
			continue
		}
		missing = append(missing, missingSecret{
			name:     trimmed,
			redacted: redactSecretName(trimmed),
		})
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{secrets: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

// feeRules parses "method=bps:fixed" pairs, e.g. "paypal=290:30,crypto_btc=100:0".
func feeRules(lookup func(string) (string, bool), key string) map[domain.PaymentMethod]FeeRule {
	rules := make(map[domain.PaymentMethod]FeeRule)
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return rules
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(parts[0])))
		spec := strings.SplitN(strings.TrimSpace(parts[1]), ":", 2)
		bps, err := strconv.ParseInt(strings.TrimSpace(spec[0]), 10, 64)
		if err != nil || bps < 0 {
			continue
		}
		var fixed int64
		if len(spec) == 2 {
			fixed, err = strconv.ParseInt(strings.TrimSpace(spec[1]), 10, 64)
			if err != nil || fixed < 0 {
				continue
			}
		}
		rules[method] = FeeRule{PercentBps: bps, Fixed: fixed}
	}
	return rules
}
