package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cancelflow-be/internal/config"
	"cancelflow-be/internal/controller"
	"cancelflow-be/internal/handler"
	"cancelflow-be/internal/pkg/lock"
	"cancelflow-be/internal/pkg/logger"
	"cancelflow-be/internal/pkg/mailer"
	"cancelflow-be/internal/pkg/serverutils"
	"cancelflow-be/internal/repository/implementation"
	"cancelflow-be/internal/repository/memory"
	"cancelflow-be/internal/repository/redisstore"
	"cancelflow-be/internal/repository/unitofwork"
	"cancelflow-be/internal/service"
	"cancelflow-be/internal/websocket"
	"cancelflow-be/pkg/audit"
	"cancelflow-be/pkg/cancellation"
	"cancelflow-be/pkg/events"
	pktNats "cancelflow-be/pkg/nats"
	"cancelflow-be/pkg/notify"
	"cancelflow-be/pkg/provider"
	"cancelflow-be/pkg/queue"
	"cancelflow-be/pkg/webhook"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// forwardedEvents leave the process over NATS when it is configured.
var forwardedEvents = []string{
	events.CancellationRequested,
	events.CancellationProcessing,
	events.CancellationCompleted,
	events.CancellationFailed,
	events.CancellationManualRequired,
	events.CancellationRetried,
	events.AnalyticsTracked,
}

type Container struct {
	// Controllers
	CancellationController controller.ICancellationController
	AdminController        controller.IAdminController
	WebhookController      controller.IWebhookController
	HealthController       controller.IHealthController
	NotificationHandler    *handler.NotificationHandler

	// Auth middleware shared by user and admin routes
	Auth fiber.Handler

	// Background components (started by main.go)
	Queue           *queue.Queue
	ConsumerService service.IConsumerService
	WebSocketHub    *websocket.Hub
	Notifier        *notify.Notifier
	Bus             events.Bus
	Logger          logger.ILogger

	closers []func()
}

func NewContainer(db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	webhookLogger := logger.NewIsolatedLogger(cfg.App.WebhookLogFilePath)

	c := &Container{Logger: sysLogger}

	// 2. Redis (optional)
	var rdb redis.UniversalClient
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			sysLogger.Warn("BOOTSTRAP", "Failed to parse Redis URL, using it as an address", map[string]interface{}{"error": err.Error()})
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		client := redis.NewClient(opt)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			sysLogger.Warn("BOOTSTRAP", "Redis unreachable, falling back to in-process coordination", map[string]interface{}{"error": err.Error()})
			_ = client.Close()
		} else {
			rdb = client
			c.closers = append(c.closers, func() { _ = client.Close() })
		}
	}

	// 3. Event Bus and Audit
	bus := events.NewWatermillBus(sysLogger)
	trail := audit.NewTrail(uowFactory, bus, sysLogger)
	c.Bus = bus

	// 4. Job Queue
	var store queue.Store = queue.NewMemoryStore()
	if cfg.Queue.Store == "postgres" {
		store = implementation.NewJobRepository(db)
	}
	jobQueue := queue.New(store, sysLogger, queue.Config{
		Concurrency:        cfg.Queue.Concurrency,
		PollInterval:       cfg.Queue.PollInterval,
		JobTimeout:         cfg.Queue.JobTimeout,
		DefaultMaxAttempts: cfg.Queue.DefaultMaxAttempts,
		Observer:           trail,
	})
	c.Queue = jobQueue

	var locker lock.Locker = lock.NewMemoryLocker()
	if cfg.App.LockBackend == "redis" && rdb != nil {
		locker = lock.NewRedisLocker(rdb, "cancelflow:lock:")
	}

	// 5. Webhook Ingestion
	var ledger webhook.Ledger
	if cfg.Webhook.Ledger == "redis" && rdb != nil {
		ledger = redisstore.NewReplayLedger(rdb)
	} else {
		ledger = memory.NewReplayLedger(2*cfg.Webhook.ReplayWindow, time.Minute)
	}

	// 6. Providers and Strategies
	registry, err := provider.LoadRegistry(context.Background(), uowFactory.NewUnitOfWork(context.Background()).ProviderRepository())
	if err != nil {
		return nil, err
	}
	sysLogger.Info("BOOTSTRAP", "Provider registry loaded", map[string]interface{}{"providers": len(registry.All())})

	httpClient := provider.NewClient(provider.ClientConfig{
		Timeout:         cfg.Provider.APITimeout,
		RatePerSecond:   cfg.Provider.RateLimitPerSec,
		Burst:           cfg.Provider.RateLimitBurst,
		BreakerFailures: cfg.Provider.BreakerFailures,
		BreakerOpenFor:  cfg.Provider.BreakerOpenFor,
	})

	var browser provider.Browser
	if cfg.Automation.Enabled {
		browser = provider.NewChromeBrowser(cfg.Automation.ChromePath, cfg.Automation.Headless, cfg.Automation.ScreenshotDir)
	}

	selector := provider.NewSelector(
		provider.NewManualStrategy(),
		provider.NewAPIStrategy(provider.NewHTTPOutcomeSource(httpClient, provider.EnvCredentials, cfg.Provider.CredentialHeader)),
		provider.NewWebhookStrategy(provider.NewHTTPIntentSender(httpClient), cfg.App.BaseURL, cfg.Webhook.Timeout),
		provider.NewWebAutomationStrategy(browser, provider.AutomationConfig{
			StepTimeout:  cfg.Automation.StepTimeout,
			TotalTimeout: cfg.Automation.TotalTimeout,
		}, sysLogger),
	)

	// 7. Notifications
	wsLogger := logger.NewIsolatedLogger("logs/notification.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	c.WebSocketHub = wsHub

	notifier := notify.NewNotifier(10*time.Second, sysLogger)
	notifier.Register(notify.ChannelPush, notify.NewPushSender(wsHub))
	if cfg.SMTP.Host != "" {
		emailService := mailer.NewEmailService(
			cfg.SMTP.Host,
			cfg.SMTP.Port,
			cfg.SMTP.Email,
			cfg.SMTP.Password,
			cfg.SMTP.Email,
			sysLogger,
		)
		notifier.Register(notify.ChannelEmail, notify.NewEmailSender(emailService, cfg.App.BaseURL))
	}
	c.Notifier = notifier

	// 8. NATS (optional)
	var natsSub *pktNats.Subscriber
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn("BOOTSTRAP", "Failed to connect NATS publisher", map[string]interface{}{"error": err.Error()})
		} else {
			c.closers = append(c.closers, natsPub.Close)
			notifier.Register(notify.ChannelEvent, notify.NewEventSender(natsPub))
			if err := events.Forward(bus, natsPub, sysLogger, forwardedEvents...); err != nil {
				return nil, err
			}
		}

		natsSub, err = pktNats.NewSubscriber(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn("BOOTSTRAP", "Failed to connect NATS subscriber", map[string]interface{}{"error": err.Error()})
			natsSub = nil
		} else {
			c.closers = append(c.closers, natsSub.Close)
		}
	}

	// 9. Workflow Engine
	engine := cancellation.New(cancellation.Deps{
		UOWFactory: uowFactory,
		Queue:      jobQueue,
		Selector:   selector,
		Registry:   registry,
		Trail:      trail,
		Bus:        bus,
		Notifier:   notifier,
		Locker:     locker,
		Logger:     sysLogger,
	}, cancellation.Config{
		DefaultMaxAttempts:       cfg.Workflow.DefaultMaxAttempts,
		LockTTL:                  cfg.Workflow.LockTTL,
		JobTimeout:               cfg.Queue.JobTimeout,
		WebhookTimeout:           cfg.Webhook.Timeout,
		ManualConfirmationWindow: cfg.Workflow.ManualConfirmationWindow,
	})
	if err := engine.Register(); err != nil {
		return nil, fmt.Errorf("register workflow: %w", err)
	}

	processor := webhook.NewProcessor(webhook.Config{
		Secrets:      cfg.Webhook.Secrets,
		ReplayWindow: cfg.Webhook.ReplayWindow,
		Sink:         engine,
	}, ledger, bus, trail, webhookLogger)

	// 10. Services
	cancellationService := service.NewCancellationService(uowFactory, engine, sysLogger)
	adminService := service.NewAdminService(uowFactory, jobQueue, engine, registry, sysLogger)
	webhookService := service.NewWebhookService(processor)
	if natsSub != nil {
		c.ConsumerService = service.NewConsumerService(natsSub, cancellationService, sysLogger)
	}

	// 11. Controllers
	checks := map[string]controller.Pinger{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	c.Auth = serverutils.JwtMiddleware(cfg.App.JwtSecret)
	c.CancellationController = controller.NewCancellationController(cancellationService)
	c.AdminController = controller.NewAdminController(adminService)
	c.WebhookController = controller.NewWebhookController(webhookService)
	c.HealthController = controller.NewHealthController(checks)
	c.NotificationHandler = handler.NewNotificationHandler(wsHub, cfg.App.JwtSecret, wsLogger)

	return c, nil
}

// Shutdown drains the queue, pending notifications and the bus, then closes
// external connections.
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error
	if err := c.Queue.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop queue: %w", err))
	}
	if err := c.Notifier.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain notifications: %w", err))
	}
	if err := c.Bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close bus: %w", err))
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	return errors.Join(errs...)
}
