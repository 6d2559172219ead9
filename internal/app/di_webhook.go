package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/breaker"
	webhookHTTP "github.com/bowerbird-app/captain-hook-sub004/internal/webhook/http"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/ratelimit"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/registry"
	webhookRepository "github.com/bowerbird-app/captain-hook-sub004/internal/webhook/repository"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/service"
	webhookUseCase "github.com/bowerbird-app/captain-hook-sub004/internal/webhook/usecase"
	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/verifier"
)

const (
	dbDriverPostgres = "postgres"
	dbDriverMySQL    = "mysql"
)

// WebhookFile returns the parsed webhook configuration file.
// A missing file yields an empty configuration so the gateway can start before one is written.
func (c *Container) WebhookFile() (*registry.File, error) {
	c.webhookConfigOnce.Do(func() {
		file, err := registry.LoadFile(c.config.WebhookConfigFile)
		if errors.Is(err, fs.ErrNotExist) {
			c.Logger().Warn("webhook config file not found, starting without providers or bindings",
				slog.String("path", c.config.WebhookConfigFile))
			c.webhookFile = &registry.File{}
			return
		}
		if err != nil {
			c.setInitError("webhookFile", err)
			return
		}
		c.webhookFile = file
	})
	if storedErr := c.initError("webhookFile"); storedErr != nil {
		return nil, storedErr
	}
	return c.webhookFile, nil
}

// WebhookDefaults returns the settings applied to configuration entries that leave them out.
func (c *Container) WebhookDefaults() registry.Defaults {
	return registry.Defaults{
		MaxPayloadSize:     c.config.DefaultMaxPayloadSize,
		TimestampTolerance: c.config.DefaultTimestampTolerance,
		RateLimitRequests:  c.config.DefaultRateLimitRequests,
		RateLimitPeriod:    c.config.DefaultRateLimitPeriod,
		MaxAttempts:        c.config.DefaultMaxAttempts,
		RetryDelays:        c.config.DefaultRetryDelays,
	}
}

// ProviderRegistry returns the in-memory provider registry. It starts empty; see LoadProviderRegistry.
func (c *Container) ProviderRegistry() *registry.ProviderRegistry {
	c.providerRegistryInit.Do(func() {
		c.providerRegistry = registry.NewProviderRegistry()
	})
	return c.providerRegistry
}

// LoadProviderRegistry fills the provider registry from the providers table.
func (c *Container) LoadProviderRegistry(ctx context.Context) error {
	providerRepo, err := c.ProviderRepository()
	if err != nil {
		return err
	}
	if err := c.ProviderRegistry().Load(ctx, providerRepo); err != nil {
		return fmt.Errorf("failed to load providers: %w", err)
	}
	return nil
}

// EndpointRegistry returns the outgoing endpoint registry filled from the webhook configuration file.
func (c *Container) EndpointRegistry() (*registry.EndpointRegistry, error) {
	var err error
	c.endpointRegistryInit.Do(func() {
		var file *registry.File
		file, err = c.WebhookFile()
		if err != nil {
			err = fmt.Errorf("failed to get webhook config for endpoint registry: %w", err)
			c.setInitError("endpointRegistry", err)
			return
		}
		endpoints := registry.NewEndpointRegistry()
		endpoints.Replace(file.EndpointsToDomain(c.WebhookDefaults()))
		c.endpointRegistry = endpoints
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("endpointRegistry"); storedErr != nil {
		return nil, storedErr
	}
	return c.endpointRegistry, nil
}

// HandlerRegistry returns the handler registry with built-in handlers registered and
// bindings from the webhook configuration file applied.
func (c *Container) HandlerRegistry() (*registry.HandlerRegistry, error) {
	var err error
	c.handlerRegistryInit.Do(func() {
		c.handlerRegistry, err = c.initHandlerRegistry()
		if err != nil {
			c.setInitError("handlerRegistry", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("handlerRegistry"); storedErr != nil {
		return nil, storedErr
	}
	return c.handlerRegistry, nil
}

// VerifierRegistry returns the signature verifiers keyed by name.
func (c *Container) VerifierRegistry() *verifier.Registry {
	c.verifierRegistryInit.Do(func() {
		c.verifierRegistry = verifier.NewDefaultRegistry()
	})
	return c.verifierRegistry
}

// RateLimiter returns the per-provider sliding window limiter.
func (c *Container) RateLimiter() *ratelimit.Limiter {
	c.rateLimiterInit.Do(func() {
		c.rateLimiter = ratelimit.New()
	})
	return c.rateLimiter
}

// BreakerRegistry returns the per-endpoint circuit breakers.
func (c *Container) BreakerRegistry() *breaker.Registry {
	c.breakerRegistryInit.Do(func() {
		c.breakerRegistry = breaker.NewRegistry()
	})
	return c.breakerRegistry
}

// Sender returns the outgoing HTTP sender guarded against private network targets.
func (c *Container) Sender() *service.Sender {
	c.senderInit.Do(func() {
		guard := service.NewURLGuard(nil, c.config.DeliveryAllowPrivateNetworks)
		c.sender = service.NewSender(service.SenderConfig{
			ConnectTimeout:  c.config.DeliveryConnectTimeout,
			Timeout:         c.config.DeliveryTimeout,
			MaxResponseBody: c.config.DeliveryMaxResponseBody,
		}, guard)
	})
	return c.sender
}

// IncomingEventRepository returns the incoming event repository for the configured driver.
func (c *Container) IncomingEventRepository() (webhookUseCase.IncomingEventRepository, error) {
	var err error
	c.incomingEventRepoInit.Do(func() {
		c.incomingEventRepo, err = c.initIncomingEventRepository()
		if err != nil {
			c.setInitError("incomingEventRepo", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("incomingEventRepo"); storedErr != nil {
		return nil, storedErr
	}
	return c.incomingEventRepo, nil
}

// ActionRepository returns the action repository for the configured driver.
func (c *Container) ActionRepository() (webhookUseCase.ActionRepository, error) {
	var err error
	c.actionRepoInit.Do(func() {
		c.actionRepo, err = c.initActionRepository()
		if err != nil {
			c.setInitError("actionRepo", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("actionRepo"); storedErr != nil {
		return nil, storedErr
	}
	return c.actionRepo, nil
}

// OutgoingEventRepository returns the outgoing event repository for the configured driver.
func (c *Container) OutgoingEventRepository() (webhookUseCase.OutgoingEventRepository, error) {
	var err error
	c.outgoingEventRepoInit.Do(func() {
		c.outgoingEventRepo, err = c.initOutgoingEventRepository()
		if err != nil {
			c.setInitError("outgoingEventRepo", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("outgoingEventRepo"); storedErr != nil {
		return nil, storedErr
	}
	return c.outgoingEventRepo, nil
}

// ProviderRepository returns the provider repository for the configured driver.
func (c *Container) ProviderRepository() (webhookUseCase.ProviderRepository, error) {
	var err error
	c.providerRepoInit.Do(func() {
		c.providerRepo, err = c.initProviderRepository()
		if err != nil {
			c.setInitError("providerRepo", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("providerRepo"); storedErr != nil {
		return nil, storedErr
	}
	return c.providerRepo, nil
}

// DispatchUseCase returns the action dispatcher wrapped with metrics.
func (c *Container) DispatchUseCase() (webhookUseCase.DispatchUseCase, error) {
	var err error
	c.dispatchUseCaseInit.Do(func() {
		c.dispatchUseCase, err = c.initDispatchUseCase()
		if err != nil {
			c.setInitError("dispatchUseCase", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("dispatchUseCase"); storedErr != nil {
		return nil, storedErr
	}
	return c.dispatchUseCase, nil
}

// IntakeUseCase returns the webhook intake use case wrapped with metrics.
func (c *Container) IntakeUseCase() (webhookUseCase.IntakeUseCase, error) {
	var err error
	c.intakeUseCaseInit.Do(func() {
		c.intakeUseCase, err = c.initIntakeUseCase()
		if err != nil {
			c.setInitError("intakeUseCase", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("intakeUseCase"); storedErr != nil {
		return nil, storedErr
	}
	return c.intakeUseCase, nil
}

// DeliveryUseCase returns the outgoing delivery use case wrapped with metrics.
func (c *Container) DeliveryUseCase() (webhookUseCase.DeliveryUseCase, error) {
	var err error
	c.deliveryUseCaseInit.Do(func() {
		c.deliveryUseCase, err = c.initDeliveryUseCase()
		if err != nil {
			c.setInitError("deliveryUseCase", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("deliveryUseCase"); storedErr != nil {
		return nil, storedErr
	}
	return c.deliveryUseCase, nil
}

// EventUseCase returns the event query and replay use case.
func (c *Container) EventUseCase() (webhookUseCase.EventUseCase, error) {
	var err error
	c.eventUseCaseInit.Do(func() {
		c.eventUseCase, err = c.initEventUseCase()
		if err != nil {
			c.setInitError("eventUseCase", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("eventUseCase"); storedErr != nil {
		return nil, storedErr
	}
	return c.eventUseCase, nil
}

// MaintenanceUseCase returns the archival use case.
func (c *Container) MaintenanceUseCase() (webhookUseCase.MaintenanceUseCase, error) {
	var err error
	c.maintenanceUseCaseInit.Do(func() {
		c.maintenanceUseCase, err = c.initMaintenanceUseCase()
		if err != nil {
			c.setInitError("maintenanceUseCase", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("maintenanceUseCase"); storedErr != nil {
		return nil, storedErr
	}
	return c.maintenanceUseCase, nil
}

// ProviderUseCase returns the provider management use case.
func (c *Container) ProviderUseCase() (webhookUseCase.ProviderUseCase, error) {
	var err error
	c.providerUseCaseInit.Do(func() {
		c.providerUseCase, err = c.initProviderUseCase()
		if err != nil {
			c.setInitError("providerUseCase", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("providerUseCase"); storedErr != nil {
		return nil, storedErr
	}
	return c.providerUseCase, nil
}

// IntakeHandler returns the HTTP handler for inbound webhooks.
func (c *Container) IntakeHandler() (*webhookHTTP.IntakeHandler, error) {
	var err error
	c.intakeHandlerInit.Do(func() {
		var useCase webhookUseCase.IntakeUseCase
		useCase, err = c.IntakeUseCase()
		if err != nil {
			err = fmt.Errorf("failed to get intake use case for intake handler: %w", err)
			c.setInitError("intakeHandler", err)
			return
		}
		c.intakeHandler = webhookHTTP.NewIntakeHandler(
			useCase,
			c.ProviderRegistry(),
			c.config.DefaultMaxPayloadSize,
			c.Logger(),
		)
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("intakeHandler"); storedErr != nil {
		return nil, storedErr
	}
	return c.intakeHandler, nil
}

// EventHandler returns the HTTP handler for incoming and outgoing event administration.
func (c *Container) EventHandler() (*webhookHTTP.EventHandler, error) {
	var err error
	c.eventHandlerInit.Do(func() {
		c.eventHandler, err = c.initEventHandler()
		if err != nil {
			c.setInitError("eventHandler", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("eventHandler"); storedErr != nil {
		return nil, storedErr
	}
	return c.eventHandler, nil
}

// ProviderHandler returns the HTTP handler for provider administration.
func (c *Container) ProviderHandler() (*webhookHTTP.ProviderHandler, error) {
	var err error
	c.providerHandlerInit.Do(func() {
		var useCase webhookUseCase.ProviderUseCase
		useCase, err = c.ProviderUseCase()
		if err != nil {
			err = fmt.Errorf("failed to get provider use case for provider handler: %w", err)
			c.setInitError("providerHandler", err)
			return
		}
		c.providerHandler = webhookHTTP.NewProviderHandler(useCase, c.Logger())
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("providerHandler"); storedErr != nil {
		return nil, storedErr
	}
	return c.providerHandler, nil
}

// initHandlerRegistry registers the built-in handlers and applies the configured bindings.
func (c *Container) initHandlerRegistry() (*registry.HandlerRegistry, error) {
	file, err := c.WebhookFile()
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook config for handler registry: %w", err)
	}

	endpoints, err := c.EndpointRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to get endpoint registry for handler registry: %w", err)
	}

	delivery, err := c.DeliveryUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery use case for handler registry: %w", err)
	}

	handlers := registry.NewHandlerRegistry()
	if err := webhookUseCase.RegisterBuiltinHandlers(handlers, endpoints, delivery, c.Logger()); err != nil {
		return nil, fmt.Errorf("failed to register built-in handlers: %w", err)
	}
	if err := file.Apply(handlers, endpoints, c.WebhookDefaults()); err != nil {
		return nil, fmt.Errorf("failed to apply webhook config: %w", err)
	}

	return handlers, nil
}

// initIncomingEventRepository creates the incoming event repository based on the database driver.
func (c *Container) initIncomingEventRepository() (webhookUseCase.IncomingEventRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for incoming event repository: %w", err)
	}

	switch c.config.DBDriver {
	case dbDriverMySQL:
		return webhookRepository.NewMySQLIncomingEventRepository(db), nil
	case dbDriverPostgres:
		return webhookRepository.NewPostgreSQLIncomingEventRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initActionRepository creates the action repository based on the database driver.
func (c *Container) initActionRepository() (webhookUseCase.ActionRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for action repository: %w", err)
	}

	switch c.config.DBDriver {
	case dbDriverMySQL:
		return webhookRepository.NewMySQLActionRepository(db), nil
	case dbDriverPostgres:
		return webhookRepository.NewPostgreSQLActionRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initOutgoingEventRepository creates the outgoing event repository based on the database driver.
func (c *Container) initOutgoingEventRepository() (webhookUseCase.OutgoingEventRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for outgoing event repository: %w", err)
	}

	switch c.config.DBDriver {
	case dbDriverMySQL:
		return webhookRepository.NewMySQLOutgoingEventRepository(db), nil
	case dbDriverPostgres:
		return webhookRepository.NewPostgreSQLOutgoingEventRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initProviderRepository creates the provider repository based on the database driver.
func (c *Container) initProviderRepository() (webhookUseCase.ProviderRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for provider repository: %w", err)
	}

	switch c.config.DBDriver {
	case dbDriverMySQL:
		return webhookRepository.NewMySQLProviderRepository(db), nil
	case dbDriverPostgres:
		return webhookRepository.NewPostgreSQLProviderRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initDispatchUseCase creates the dispatcher for bound handler actions.
func (c *Container) initDispatchUseCase() (webhookUseCase.DispatchUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for dispatch use case: %w", err)
	}

	eventRepo, err := c.IncomingEventRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get incoming event repository for dispatch use case: %w", err)
	}

	actionRepo, err := c.ActionRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get action repository for dispatch use case: %w", err)
	}

	handlers, err := c.HandlerRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to get handler registry for dispatch use case: %w", err)
	}

	scheduler, err := c.Scheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to get scheduler for dispatch use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for dispatch use case: %w", err)
	}

	useCase := webhookUseCase.NewDispatchUseCase(
		txManager,
		eventRepo,
		actionRepo,
		handlers,
		scheduler,
		c.config.WorkerID,
		c.Logger(),
	)
	return webhookUseCase.NewDispatchUseCaseWithMetrics(useCase, businessMetrics), nil
}

// initIntakeUseCase creates the intake pipeline.
func (c *Container) initIntakeUseCase() (webhookUseCase.IntakeUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for intake use case: %w", err)
	}

	eventRepo, err := c.IncomingEventRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get incoming event repository for intake use case: %w", err)
	}

	actionRepo, err := c.ActionRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get action repository for intake use case: %w", err)
	}

	handlers, err := c.HandlerRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to get handler registry for intake use case: %w", err)
	}

	dispatcher, err := c.DispatchUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatch use case for intake use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for intake use case: %w", err)
	}

	useCase := webhookUseCase.NewIntakeUseCase(
		txManager,
		c.ProviderRegistry(),
		c.VerifierRegistry(),
		handlers,
		c.RateLimiter(),
		eventRepo,
		actionRepo,
		dispatcher,
		c.Logger(),
	)
	return webhookUseCase.NewIntakeUseCaseWithMetrics(useCase, businessMetrics), nil
}

// initDeliveryUseCase creates the outgoing delivery use case.
func (c *Container) initDeliveryUseCase() (webhookUseCase.DeliveryUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for delivery use case: %w", err)
	}

	outgoingRepo, err := c.OutgoingEventRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outgoing event repository for delivery use case: %w", err)
	}

	endpoints, err := c.EndpointRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to get endpoint registry for delivery use case: %w", err)
	}

	scheduler, err := c.Scheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to get scheduler for delivery use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for delivery use case: %w", err)
	}

	useCase := webhookUseCase.NewDeliveryUseCase(
		txManager,
		outgoingRepo,
		endpoints,
		c.BreakerRegistry(),
		c.Sender(),
		scheduler,
		c.Logger(),
	)
	return webhookUseCase.NewDeliveryUseCaseWithMetrics(useCase, businessMetrics), nil
}

// initEventUseCase creates the event query and replay use case.
func (c *Container) initEventUseCase() (webhookUseCase.EventUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for event use case: %w", err)
	}

	eventRepo, err := c.IncomingEventRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get incoming event repository for event use case: %w", err)
	}

	actionRepo, err := c.ActionRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get action repository for event use case: %w", err)
	}

	outgoingRepo, err := c.OutgoingEventRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outgoing event repository for event use case: %w", err)
	}

	handlers, err := c.HandlerRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to get handler registry for event use case: %w", err)
	}

	dispatcher, err := c.DispatchUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatch use case for event use case: %w", err)
	}

	return webhookUseCase.NewEventUseCase(
		txManager,
		eventRepo,
		actionRepo,
		outgoingRepo,
		handlers,
		dispatcher,
		c.Logger(),
	), nil
}

// initMaintenanceUseCase creates the archival use case.
func (c *Container) initMaintenanceUseCase() (webhookUseCase.MaintenanceUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for maintenance use case: %w", err)
	}

	eventRepo, err := c.IncomingEventRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get incoming event repository for maintenance use case: %w", err)
	}

	outgoingRepo, err := c.OutgoingEventRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outgoing event repository for maintenance use case: %w", err)
	}

	return webhookUseCase.NewMaintenanceUseCase(txManager, eventRepo, outgoingRepo, c.Logger()), nil
}

// initProviderUseCase creates the provider management use case.
func (c *Container) initProviderUseCase() (webhookUseCase.ProviderUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for provider use case: %w", err)
	}

	providerRepo, err := c.ProviderRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get provider repository for provider use case: %w", err)
	}

	return webhookUseCase.NewProviderUseCase(txManager, providerRepo, c.ProviderRegistry(), c.Logger()), nil
}

// initEventHandler creates the event administration handler.
func (c *Container) initEventHandler() (*webhookHTTP.EventHandler, error) {
	eventUseCase, err := c.EventUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get event use case for event handler: %w", err)
	}

	deliveryUseCase, err := c.DeliveryUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery use case for event handler: %w", err)
	}

	return webhookHTTP.NewEventHandler(eventUseCase, deliveryUseCase, c.Logger()), nil
}
