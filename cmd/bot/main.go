package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/teleshop/bot/internal/bot"
	"github.com/teleshop/bot/internal/di"
	"github.com/teleshop/bot/internal/handlers"
	"github.com/teleshop/bot/internal/notifications"
	"github.com/teleshop/bot/internal/platform/auth"
	"github.com/teleshop/bot/internal/platform/config"
	pfirestore "github.com/teleshop/bot/internal/platform/firestore"
	"github.com/teleshop/bot/internal/platform/idempotency"
	"github.com/teleshop/bot/internal/platform/jobs"
	"github.com/teleshop/bot/internal/platform/observability"
	"github.com/teleshop/bot/internal/platform/ratelimit"
	"github.com/teleshop/bot/internal/platform/secrets"
	platformstorage "github.com/teleshop/bot/internal/platform/storage"
	firestoreRepo "github.com/teleshop/bot/internal/repositories/firestore"
	"github.com/teleshop/bot/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("bot")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets("Telegram.Token"),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	publisher, pubsubClient := newEventPublisher(ctx, logger, cfg.Events)
	if pubsubClient != nil {
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
	}

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal("failed to initialise telegram client", zap.Error(err))
	}
	messenger, err := notifications.NewTelegramMessenger(api)
	if err != nil {
		logger.Fatal("failed to initialise telegram messenger", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, di.Deps{
		Registry:  registry,
		Messenger: messenger,
		Publisher: publisher,
		Logger:    observability.EventLogger(logger.Named("services")),
		Clock:     time.Now,
	})
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	callbacks, err := bot.NewTelegramCallbackResponder(api)
	if err != nil {
		logger.Fatal("failed to initialise callback responder", zap.Error(err))
	}
	botRouter, err := bot.NewRouter(bot.Deps{
		Carts:      container.Services.Carts,
		Orders:     container.Services.Orders,
		Payments:   container.Services.Payments,
		Promotions: container.Services.Promotions,
		Products:   registry.Products(),
		Users:      registry.Users(),
		Messenger:  messenger,
		Callbacks:  callbacks,
		Notifier:   container.Notifier,
		Limiter:    ratelimit.New(cfg.RateLimits.PerUserPerMinute, cfg.RateLimits.Burst, time.Now),
		Currency:   cfg.Payments.Currency,
		Logger:     observability.EventLogger(logger.Named("chat")),
	})
	if err != nil {
		logger.Fatal("failed to build chat router", zap.Error(err))
	}

	proofStore := newProofStore(ctx, logger, cfg.Storage)

	sweepLogger := observability.EventLogger(logger.Named("sweeps"))
	cartSweep := jobs.AbandonedCartSweep(registry.Carts(), cfg.Sweeps.CartIdleAfter, time.Now, sweepLogger)
	cartSweep.Interval = cfg.Sweeps.CartSweepInterval
	pendingSweep := jobs.StalePendingOrderSweep(registry.Orders(), container.Notifier, cfg.Sweeps.PendingOrderAfter, time.Now, sweepLogger)
	pendingSweep.Interval = cfg.Sweeps.PendingSweepInterval
	sweeper := jobs.NewSweeper(sweepLogger, cartSweep, pendingSweep)
	sweeper.Start()
	defer sweeper.Stop()

	router, err := buildHTTPRouter(logger, cfg, container, botRouter, firestoreClient, proofStore, startedAt)
	if err != nil {
		logger.Fatal("failed to build http router", zap.Error(err))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("teleshop bot listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()
	if strings.TrimSpace(cfg.Telegram.WebhookURL) == "" {
		go runLongPolling(pollCtx, logger.Named("poll"), api, botRouter)
	} else {
		logger.Info("webhook mode; expecting updates at /telegram/webhook",
			zap.String("webhookUrl", cfg.Telegram.WebhookURL))
	}

	<-shutdown
	logger.Info("shutdown signal received; draining")

	stopPolling()
	api.StopReceivingUpdates()
	sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// runLongPolling consumes updates through getUpdates when no webhook is
// configured, which is the usual local and staging setup.
func runLongPolling(ctx context.Context, logger *zap.Logger, api *tgbotapi.BotAPI, router *bot.Router) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := api.GetUpdatesChan(u)
	logger.Info("long polling started")
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			router.HandleUpdate(ctx, update)
		case <-ctx.Done():
			return
		}
	}
}

func buildHTTPRouter(
	logger *zap.Logger,
	cfg config.Config,
	container *di.Container,
	botRouter *bot.Router,
	firestoreClient *firestore.Client,
	proofStore *platformstorage.ProofStore,
	startedAt time.Time,
) (http.Handler, error) {
	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	ready := func() error {
		checkCtx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
		defer cancel()
		iter := firestoreClient.Collections(checkCtx)
		if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
			return err
		}
		return nil
	}

	version := strings.TrimSpace(os.Getenv("BOT_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(version, startedAt, ready)),
	}

	webhookHandlers := handlers.NewWebhookHandlers(botRouter, observability.EventLogger(logger.Named("webhook")))
	opts = append(opts, handlers.WithWebhookRoutes(webhookHandlers.Register))
	if secret := strings.TrimSpace(cfg.Telegram.WebhookSecret); secret != "" {
		opts = append(opts, handlers.WithWebhookMiddlewares(auth.RequireTelegramSecret(secret)))
	}

	adminAuth, err := adminAuthMiddleware(logger, cfg)
	if err != nil {
		return nil, err
	}
	if adminAuth != nil {
		opts = append(opts, handlers.WithAdminMiddlewares(adminAuth))

		orderHandlers, err := handlers.NewAdminOrderHandlers(container.Services.Orders)
		if err != nil {
			return nil, err
		}
		refundGuard := idempotency.Middleware(
			idempotency.NewFirestoreStore(firestoreClient),
			idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
		)
		paymentHandlers, err := handlers.NewAdminPaymentHandlers(handlers.AdminPaymentHandlersDeps{
			Payments:    container.Services.Payments,
			Proofs:      proofArchive(proofStore),
			RefundGuard: refundGuard,
			Logger:      observability.EventLogger(logger.Named("payments")),
		})
		if err != nil {
			return nil, err
		}
		promotionHandlers, err := handlers.NewAdminPromotionHandlers(container.Services.Promotions)
		if err != nil {
			return nil, err
		}
		opts = append(opts, handlers.WithAdminRoutes(
			orderHandlers.Register,
			paymentHandlers.Register,
			promotionHandlers.Register,
		))
	} else {
		logger.Warn("admin api disabled; no admin authentication configured")
	}

	return handlers.NewRouter(opts...), nil
}

// adminAuthMiddleware picks the back office authentication scheme: service
// tokens for machine clients when a shared secret is configured, otherwise
// Firebase ID tokens restricted to staff and admin roles.
func adminAuthMiddleware(logger *zap.Logger, cfg config.Config) (func(http.Handler) http.Handler, error) {
	if strings.TrimSpace(cfg.Security.JWTSecret) != "" {
		validator, err := auth.NewServiceTokenValidator(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.JWTAudience)
		if err != nil {
			return nil, fmt.Errorf("build service token validator: %w", err)
		}
		return validator.RequireServiceToken(), nil
	}

	if strings.TrimSpace(cfg.Firebase.ProjectID) != "" {
		verifier, err := auth.NewFirebaseVerifier(context.Background(), cfg.Firebase)
		if err != nil {
			return nil, fmt.Errorf("build firebase verifier: %w", err)
		}
		authenticator := auth.NewAuthenticator(verifier)
		logger.Info("admin api using firebase id tokens")
		return authenticator.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin), nil
	}

	return nil, nil
}

// proofArchive keeps the typed-nil pointer out of the handlers interface.
func proofArchive(store *platformstorage.ProofStore) handlers.ProofArchive {
	if store == nil {
		return nil
	}
	return store
}

func newEventPublisher(ctx context.Context, logger *zap.Logger, cfg config.EventsConfig) (services.EventPublisher, *pubsub.Client) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		logger.Info("event publishing disabled; no pubsub project configured")
		return nil, nil
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		logger.Warn("pubsub client init failed; events disabled", zap.Error(err))
		return nil, nil
	}

	publisher, err := jobs.NewPubSubEventPublisher(client.Topic(cfg.OrderTopic), client.Topic(cfg.PaymentTopic))
	if err != nil {
		logger.Warn("event publisher init failed; events disabled", zap.Error(err))
		_ = client.Close()
		return nil, nil
	}
	return publisher, client
}

func newProofStore(ctx context.Context, logger *zap.Logger, cfg config.StorageConfig) *platformstorage.ProofStore {
	bucket := strings.TrimSpace(cfg.ProofsBucket)
	if bucket == "" {
		logger.Info("proof storage disabled; no bucket configured")
		return nil
	}

	client, err := cloudstorage.NewClient(ctx)
	if err != nil {
		logger.Warn("storage client init failed; proof storage disabled", zap.Error(err))
		return nil
	}

	var urls *platformstorage.Client
	if key := strings.TrimSpace(cfg.SignerKey); key != "" {
		signer, err := platformstorage.NewServiceAccountSignerFromJSON([]byte(key))
		if err != nil {
			logger.Warn("storage signer key invalid; proof links disabled", zap.Error(err))
		} else if urls, err = platformstorage.NewClient(signer); err != nil {
			logger.Warn("signed url client init failed; proof links disabled", zap.Error(err))
			urls = nil
		}
	}

	store, err := platformstorage.NewProofStore(client, urls, bucket)
	if err != nil {
		logger.Warn("proof store init failed; proof storage disabled", zap.Error(err))
		return nil
	}
	return store
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("BOT_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("BOT_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("BOT_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("BOT_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}

	return secrets.NewFetcher(ctx, opts...)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
