package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/evergrove/storefront/internal/di"
	"github.com/evergrove/storefront/internal/handlers"
	"github.com/evergrove/storefront/internal/platform/auth"
	"github.com/evergrove/storefront/internal/platform/config"
	"github.com/evergrove/storefront/internal/platform/jobs"
	"github.com/evergrove/storefront/internal/platform/observability"
	"github.com/evergrove/storefront/internal/platform/secrets"
	"github.com/evergrove/storefront/internal/repositories"
	"github.com/evergrove/storefront/internal/repositories/localstore"
	"github.com/evergrove/storefront/internal/repositories/redisstore"
	"github.com/evergrove/storefront/internal/services"
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

	logger := baseLogger.Named("storefront")
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
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	registry, err := newGuestCartRegistry(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise guest cart store", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("guest cart store close error", zap.Error(err))
		}
	}()

	var authenticator *auth.Authenticator
	if cfg.Firebase.ProjectID != "" {
		firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
		}
		authenticator = auth.NewAuthenticator(firebaseVerifier)
	} else {
		logger.Warn("firebase project not configured; authenticated endpoints will reject requests")
	}

	var reporter services.SyncReporter
	var pubsubClient *pubsub.Client
	if cfg.PubSub.Topic != "" && cfg.PubSub.ProjectID != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Warn("pubsub client unavailable; sync drop reports disabled", zap.Error(err))
		} else {
			publisher, err := jobs.NewPubSubSyncReportPublisher(pubsubClient.Topic(cfg.PubSub.Topic))
			if err != nil {
				logger.Warn("sync report publisher init failed", zap.Error(err))
			} else {
				reporter = publisher
			}
		}
	}
	if pubsubClient != nil {
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
	}

	healthRepo, err := newHealthRepository(cfg, registry, fetcher)
	if err != nil {
		logger.Warn("health: dependency checks init failed", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, registry,
		di.WithLogger(logger.Named("services")),
		di.WithSyncReporter(reporter),
		di.WithHealthRepository(healthRepo),
	)
	if err != nil {
		logger.Fatal("failed to assemble container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	guestLimiter := newRateLimiter(cfg.RateLimits.GuestPerMinute)
	syncLimiter := newRateLimiter(cfg.RateLimits.SyncPerMinute)

	guestCartHandlers := handlers.NewGuestCartHandlers(container.Services.GuestCarts,
		handlers.WithGuestRateLimiter(guestLimiter))
	cartHandlers := handlers.NewCartHandlers(authenticator, container.Services.ServerCart)
	sessionHandlers := handlers.NewSessionHandlers(authenticator, container.Services.Sync,
		handlers.WithSyncRateLimiter(syncLimiter))
	productHandlers := handlers.NewProductHandlers(container.Services.Catalog)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(container.Services.System),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(cfg.Firebase.ProjectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(cfg.Firebase.ProjectID),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithGuestCartRoutes(guestCartHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithSessionRoutes(sessionHandlers.Routes),
		handlers.WithProductRoutes(productHandlers.Routes),
	)

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
		serverLogger.Info("storefront session service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["STORE_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["STORE_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newGuestCartRegistry(cfg config.Config, logger *zap.Logger) (repositories.Registry, error) {
	switch cfg.GuestStore.Kind {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return redisstore.New(client, logger.Named("guestcarts"), redisstore.WithTTL(cfg.GuestStore.TTL))
	case "file":
		return localstore.New(cfg.GuestStore.Dir, logger.Named("guestcarts"))
	default:
		return nil, fmt.Errorf("unsupported guest store kind %q", cfg.GuestStore.Kind)
	}
}

func newHealthRepository(cfg config.Config, registry repositories.Registry, fetcher *secrets.Fetcher) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 3)

	if registry != nil {
		guests := registry.GuestCarts()
		checks = append(checks, repositories.DependencyCheck{
			Name:    "guestCartStore",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := guests.Load(ctx, "healthcheck")
				return err
			},
		})
	}

	if backendURL := strings.TrimSpace(cfg.Backend.BaseURL); backendURL != "" {
		probe, err := url.JoinPath(backendURL, "healthz")
		if err == nil {
			client := &http.Client{Timeout: 2 * time.Second}
			checks = append(checks, repositories.DependencyCheck{
				Name:    "commerceBackend",
				Timeout: 2 * time.Second,
				Check: func(ctx context.Context) error {
					req, err := http.NewRequestWithContext(ctx, http.MethodGet, probe, nil)
					if err != nil {
						return err
					}
					resp, err := client.Do(req)
					if err != nil {
						return err
					}
					defer resp.Body.Close()
					if resp.StatusCode >= 500 {
						return fmt.Errorf("backend health returned status %d", resp.StatusCode)
					}
					return nil
				},
			})
		}
	}

	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}

	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	return repositories.NewDependencyHealthRepository(checks)
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

	envLabel := strings.ToLower(lookup("STORE_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("STORE_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("STORE_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("STORE_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("STORE_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

func requiredSecretNames(env map[string]string) []string {
	var required []string
	if env != nil {
		if ref := strings.TrimSpace(env["STORE_BACKEND_SERVICE_TOKEN"]); strings.HasPrefix(ref, "secret://") || strings.HasPrefix(ref, "sm://") {
			required = append(required, "Backend.ServiceToken")
		}
		if ref := strings.TrimSpace(env["STORE_REDIS_PASSWORD"]); strings.HasPrefix(ref, "secret://") || strings.HasPrefix(ref, "sm://") {
			required = append(required, "Redis.Password")
		}
	}
	sort.Strings(required)
	return required
}

func newRateLimiter(perMinute int) handlers.RateLimiter {
	return handlers.NewSimpleRateLimiter(perMinute, time.Minute, nil)
}
