package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/queue-service/internal/api/http"
	"github.com/spec-kit/queue-service/internal/api/http/handlers"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/cache"
	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/persistence"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/internal/service"
	"github.com/spec-kit/queue-service/internal/worker"
)

const shutdownTimeout = 10 * time.Second

type stores struct {
	queue    repository.QueueRepository
	services repository.ServiceRepository
	staff    repository.StaffRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.App, cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	rds := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer rds.Close()

	repos := buildStores(pg, cfg.Queue, logger)
	stateCache := cache.NewStateCache(rds.UniversalClient(), cfg.Queue.StateCacheTTL())

	dispatcher := events.NewInMemoryDispatcher(func(event events.Event, err error) {
		logger.Warn("event handler failed",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.Error(err))
	})
	hub := events.NewHub()

	notificationService := service.NewNotificationService(service.NotificationDependencies{
		Dispatcher: dispatcher,
		Publisher:  rds.UniversalClient(),
		Hub:        hub,
		Logger:     logger,
	}, cfg.Notification)
	worker.StartNotificationWorker(notificationService)
	if client := rds.UniversalClient(); client != nil {
		worker.StartBroadcastRelay(ctx, client, cfg.Notification.Channel, hub, logger)
	}

	queueService := service.NewQueueService(service.QueueDependencies{
		QueueRepo:  repos.queue,
		Cache:      stateCache,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		QueueRepo:   repos.queue,
		Cache:       stateCache,
		Dispatcher:  dispatcher,
		Logger:      logger,
		MaxAttempts: cfg.Queue.IssueMaxAttempts,
	})
	catalogService := service.NewCatalogService(repos.services)
	authService := service.NewAuthService(*cfg, service.AuthDependencies{StaffRepo: repos.staff})

	created, err := authService.EnsureBootstrapAdmin(ctx, cfg.Auth.BootstrapAdminEmail, cfg.Auth.BootstrapAdminPass)
	if err != nil {
		logger.Fatal("failed to bootstrap admin", zap.Error(err))
	}
	if created {
		logger.Info("bootstrap admin created", zap.String("email", cfg.Auth.BootstrapAdminEmail))
	}

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, rds, metrics),
		Queue:          handlers.NewQueueHandler(queueService, ticketService),
		Stream:         handlers.NewStreamHandler(ctx, queueService, hub, logger),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Services:       handlers.NewServicesHandler(catalogService),
		Staff:          handlers.NewStaffHandler(authService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), repos.staff),
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.Bool("postgres", pg.Enabled()), zap.Bool("redis", rds != nil))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	// Ends open event streams before the server drains connections.
	cancel()
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

// buildStores picks Postgres when configured, otherwise a single-process
// in-memory store seeded with the configured service names.
func buildStores(pg *persistence.Postgres, cfg config.QueueConfig, logger *zap.Logger) stores {
	if pg.Enabled() {
		pool := pg.PoolHandle()
		return stores{
			queue:    repository.NewQueueRepository(pool),
			services: repository.NewServiceRepository(pool),
			staff:    repository.NewStaffRepository(pool),
		}
	}

	services := repository.NewMemoryServiceRepository()
	for _, name := range cfg.SeedServices {
		services.Add(domain.Service{Name: name, DurationMinutes: 30, Active: true})
	}
	logger.Warn("running with in-memory store; state is lost on restart", zap.Int("services", len(cfg.SeedServices)))
	return stores{
		queue:    repository.NewMemoryQueueRepository(services),
		services: services,
		staff:    repository.NewMemoryStaffRepository(),
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
