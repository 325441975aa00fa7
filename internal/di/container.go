package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/evergrove/storefront/internal/backend"
	"github.com/evergrove/storefront/internal/platform/config"
	"github.com/evergrove/storefront/internal/repositories"
	"github.com/evergrove/storefront/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	GuestCarts services.GuestCartService
	ServerCart services.ServerCartClient
	Sync       services.CartSyncService
	Catalog    services.ProductFinder
	System     services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Locks        *services.SessionLocks
}

// ContainerOption customises container assembly.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	httpClient backend.HTTPClient
	reporter   services.SyncReporter
	logger     *zap.Logger
	health     repositories.HealthRepository
	clock      func() time.Time
}

// WithHTTPClient overrides the HTTP client used for backend calls.
func WithHTTPClient(client backend.HTTPClient) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.httpClient = client
	}
}

// WithSyncReporter injects the publisher notified about dropped sync lines.
func WithSyncReporter(reporter services.SyncReporter) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.reporter = reporter
	}
}

// WithLogger sets the logger handed to services.
func WithLogger(logger *zap.Logger) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.logger = logger
	}
}

// WithHealthRepository injects the dependency probe set used for readiness.
func WithHealthRepository(health repositories.HealthRepository) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.health = health
	}
}

// WithClock injects a custom clock primarily for tests.
func WithClock(clock func() time.Time) ContainerOption {
	return func(cfg *containerConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...ContainerOption) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	options := containerConfig{
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.logger == nil {
		options.logger = zap.NewNop()
	}
	if options.httpClient == nil {
		options.httpClient = &http.Client{Timeout: cfg.Backend.Timeout}
	}

	locks := services.NewSessionLocks()

	svc, err := buildServices(cfg, reg, locks, options)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
		Locks:        locks,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, locks *services.SessionLocks, options containerConfig) (Services, error) {
	var svc Services

	guestRepo := reg.GuestCarts()
	if guestRepo == nil {
		return Services{}, errors.New("guest cart repository is required")
	}

	guestSvc, err := services.NewGuestCartService(services.GuestCartServiceDeps{
		Repository: guestRepo,
		Locks:      locks,
		Logger:     serviceLogger(options.logger),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build guest cart service: %w", err)
	}
	svc.GuestCarts = guestSvc

	cartClient, err := backend.NewCartClient(cfg.Backend.BaseURL, options.httpClient)
	if err != nil {
		return Services{}, fmt.Errorf("build backend cart client: %w", err)
	}
	svc.ServerCart = cartClient

	catalogClient, err := backend.NewCatalogClient(cfg.Backend.BaseURL, options.httpClient,
		backend.WithServiceToken(cfg.Backend.ServiceToken))
	if err != nil {
		return Services{}, fmt.Errorf("build backend catalog client: %w", err)
	}
	svc.Catalog = catalogClient

	syncSvc, err := services.NewCartSyncService(services.CartSyncServiceDeps{
		GuestCarts: guestRepo,
		Backend:    cartClient,
		Locks:      locks,
		Reporter:   options.reporter,
		Logger:     serviceLogger(options.logger),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart sync service: %w", err)
	}
	svc.Sync = syncSvc

	if options.health != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: options.health,
			Clock:            options.clock,
			Build: services.BuildInfo{
				Environment: cfg.Environment,
				StartedAt:   options.clock().UTC(),
			},
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

func serviceLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(ctx context.Context, msg string, fields map[string]any) {
		if logger == nil {
			return
		}
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(msg, zapFields...)
	}
}
