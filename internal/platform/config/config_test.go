package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	domain "github.com/teleshop/bot/internal/domain"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"BOT_TELEGRAM_TOKEN":      "123456:test-token",
		"BOT_FIREBASE_PROJECT_ID": "teleshop-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "teleshop-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Events.ProjectID != "teleshop-dev" {
		t.Errorf("expected events project to default to firebase project, got %s", cfg.Events.ProjectID)
	}
	if cfg.Payments.Currency != "USD" {
		t.Errorf("unexpected default currency: %s", cfg.Payments.Currency)
	}
	if cfg.Payments.Expiry != time.Hour {
		t.Errorf("unexpected default payment expiry: %s", cfg.Payments.Expiry)
	}
	if cfg.Payments.ConfirmationsBTC != 3 {
		t.Errorf("unexpected default BTC confirmations: %d", cfg.Payments.ConfirmationsBTC)
	}
	if cfg.Payments.ConfirmationsETH != 12 {
		t.Errorf("unexpected default ETH confirmations: %d", cfg.Payments.ConfirmationsETH)
	}
	if cfg.RateLimits.PerUserPerMinute != 30 {
		t.Errorf("unexpected default rate limit: %d", cfg.RateLimits.PerUserPerMinute)
	}
	if cfg.Sweeps.CartIdleAfter != 24*time.Hour {
		t.Errorf("unexpected default cart idle threshold: %s", cfg.Sweeps.CartIdleAfter)
	}
	if cfg.Sweeps.ArchiveAfter != 24*time.Hour {
		t.Errorf("unexpected default archive delay: %s", cfg.Sweeps.ArchiveAfter)
	}
	if !cfg.Features.EnablePromotions {
		t.Errorf("expected promotions flag enabled by default")
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if cfg.Security.JWTIssuer != defaultJWTIssuer {
		t.Errorf("expected default jwt issuer, got %s", cfg.Security.JWTIssuer)
	}
	if cfg.Events.OrderTopic != "order-events" {
		t.Errorf("unexpected default order topic: %s", cfg.Events.OrderTopic)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"BOT_SERVER_PORT":                "9090",
		"BOT_SERVER_READ_TIMEOUT":        "20s",
		"BOT_SERVER_IDLE_TIMEOUT":        "2m",
		"BOT_TELEGRAM_TOKEN":             "secret://telegram/token",
		"BOT_TELEGRAM_WEBHOOK_URL":       "https://bot.example.com/telegram",
		"BOT_TELEGRAM_WEBHOOK_SECRET":    "secret://telegram/webhook",
		"BOT_FIREBASE_PROJECT_ID":        "teleshop-prod",
		"BOT_FIRESTORE_PROJECT_ID":       "teleshop-fire",
		"BOT_FIRESTORE_DATABASE_ID":      "orders",
		"BOT_STORAGE_PROOFS_BUCKET":      "proofs-prod",
		"BOT_PAYMENTS_STRIPE_API_KEY":    "secret://stripe/api",
		"BOT_PAYMENTS_EXPLORER_BASE_URL": "https://watch.example.com",
		"BOT_PAYMENTS_EXPLORER_API_KEY":  "secret://explorer/key",
		"BOT_PAYMENTS_CURRENCY":          "EUR",
		"BOT_PAYMENTS_EXPIRY":            "45m",
		"BOT_PAYMENTS_CONFIRMATIONS_BTC": "6",
		"BOT_PAYMENTS_FEES":              "paypal=290:30,crypto_btc=100",
		"BOT_RATELIMIT_PER_USER_PER_MIN": "60",
		"BOT_SWEEP_CART_IDLE_AFTER":      "12h",
		"BOT_SWEEP_PENDING_INTERVAL":     "5m",
		"BOT_FEATURE_PROMOTIONS":         "false",
		"BOT_SECURITY_ENVIRONMENT":       "prod",
		"BOT_SECURITY_JWT_SECRET":        "secret://jwt/secret",
		"BOT_SECURITY_JWT_AUDIENCE":      "teleshop-admin",
	}

	secrets := map[string]string{
		"secret://telegram/token":   "123456:prod-token",
		"secret://telegram/webhook": "webhook-shared",
		"secret://stripe/api":       "stripe-key",
		"secret://explorer/key":     "explorer-key",
		"secret://jwt/secret":       "jwt-signing",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Telegram.Token != "123456:prod-token" {
		t.Errorf("expected resolved telegram token, got %s", cfg.Telegram.Token)
	}
	if cfg.Telegram.WebhookSecret != "webhook-shared" {
		t.Errorf("expected resolved webhook secret, got %s", cfg.Telegram.WebhookSecret)
	}
	if cfg.Firestore.ProjectID != "teleshop-fire" {
		t.Errorf("unexpected firestore project %s", cfg.Firestore.ProjectID)
	}
	if cfg.Firestore.DatabaseID != "orders" {
		t.Errorf("unexpected firestore database %s", cfg.Firestore.DatabaseID)
	}
	if cfg.Payments.StripeAPIKey != "stripe-key" {
		t.Errorf("expected resolved stripe api key, got %s", cfg.Payments.StripeAPIKey)
	}
	if cfg.Payments.ExplorerAPIKey != "explorer-key" {
		t.Errorf("expected resolved explorer key, got %s", cfg.Payments.ExplorerAPIKey)
	}
	if cfg.Payments.Currency != "EUR" {
		t.Errorf("unexpected currency %s", cfg.Payments.Currency)
	}
	if cfg.Payments.Expiry != 45*time.Minute {
		t.Errorf("unexpected payment expiry %s", cfg.Payments.Expiry)
	}
	if cfg.Payments.ConfirmationsBTC != 6 {
		t.Errorf("unexpected BTC confirmations %d", cfg.Payments.ConfirmationsBTC)
	}
	if rule := cfg.Payments.Fees[domain.PaymentMethodPayPal]; rule.PercentBps != 290 || rule.Fixed != 30 {
		t.Errorf("unexpected paypal fee rule %+v", rule)
	}
	if rule := cfg.Payments.Fees[domain.PaymentMethodCryptoBTC]; rule.PercentBps != 100 || rule.Fixed != 0 {
		t.Errorf("unexpected crypto fee rule %+v", rule)
	}
	if cfg.RateLimits.PerUserPerMinute != 60 {
		t.Errorf("unexpected rate limit %d", cfg.RateLimits.PerUserPerMinute)
	}
	if cfg.Sweeps.CartIdleAfter != 12*time.Hour {
		t.Errorf("unexpected cart idle threshold %s", cfg.Sweeps.CartIdleAfter)
	}
	if cfg.Sweeps.PendingSweepInterval != 5*time.Minute {
		t.Errorf("unexpected pending sweep interval %s", cfg.Sweeps.PendingSweepInterval)
	}
	if cfg.Features.EnablePromotions {
		t.Errorf("expected promotions flag disabled")
	}
	if cfg.Security.JWTSecret != "jwt-signing" {
		t.Errorf("expected resolved jwt secret, got %s", cfg.Security.JWTSecret)
	}
	if cfg.Security.JWTAudience != "teleshop-admin" {
		t.Errorf("unexpected jwt audience %s", cfg.Security.JWTAudience)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "BOT_SERVER_PORT=7070\nBOT_TELEGRAM_TOKEN=123456:dot-token\nBOT_FIREBASE_PROJECT_ID=teleshop-dot\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "teleshop-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"BOT_TELEGRAM_TOKEN":          "123456:test-token",
		"BOT_FIREBASE_PROJECT_ID":     "teleshop-dev",
		"BOT_PAYMENTS_STRIPE_API_KEY": "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "BOT_FIREBASE_PROJECT_ID=dot-project\nBOT_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("BOT_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("BOT_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"BOT_FIREBASE_PROJECT_ID": "override-project",
		"BOT_SECRET_VERSION_PINS": "secret://stripe/api=5",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["BOT_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["BOT_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["BOT_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
	if got := values["BOT_SECRET_VERSION_PINS"]; got != "secret://stripe/api=5" {
		t.Fatalf("expected override version pin, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"BOT_TELEGRAM_TOKEN":      "123456:test-token",
		"BOT_FIREBASE_PROJECT_ID": "teleshop-dev",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Security.JWTSecret"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("Security.JWTSecret")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	env := map[string]string{
		"BOT_TELEGRAM_TOKEN":      "123456:test-token",
		"BOT_FIREBASE_PROJECT_ID": "teleshop-dev",
	}

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "Security.JWTSecret" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Security.JWTSecret"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"BOT_TELEGRAM_TOKEN":      "sm://telegram/token",
		"BOT_FIREBASE_PROJECT_ID": "teleshop-dev",
	}

	secrets := map[string]string{
		"secret://telegram/token": "123456:legacy-token",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Telegram.Token != "123456:legacy-token" {
		t.Fatalf("expected legacy-resolved token, got %s", cfg.Telegram.Token)
	}
}
