package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/ticketflow/helpdesk/internal/api/http"
	"github.com/ticketflow/helpdesk/internal/api/http/handlers"
	"github.com/ticketflow/helpdesk/internal/auth"
	"github.com/ticketflow/helpdesk/internal/config"
	"github.com/ticketflow/helpdesk/internal/events"
	"github.com/ticketflow/helpdesk/internal/mailer"
	"github.com/ticketflow/helpdesk/internal/observability"
	"github.com/ticketflow/helpdesk/internal/persistence"
	"github.com/ticketflow/helpdesk/internal/repository"
	"github.com/ticketflow/helpdesk/internal/service"
	"github.com/ticketflow/helpdesk/internal/storage"
	"github.com/ticketflow/helpdesk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
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
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	resetRepo := repository.NewPasswordResetRepository(pool)

	policy := auth.NewAuthorizationPolicy(cfg.Auth.AdminEmails)
	outbox := persistence.NewOutbox(redis, cfg.Notify.QueueKey)
	dispatcher := events.NewInMemoryDispatcher()

	notifications := service.NewNotificationService(dispatcher, outbox, logger, cfg.Mailer)
	notifications.RegisterHandlers()

	notificationWorker := worker.NewNotificationWorker(outbox, mailer.NewClient(cfg.Mailer), logger, metrics, cfg.Notify)
	notificationWorker.Start(ctx)

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:          userRepo,
		PasswordResetRepo: resetRepo,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		Uploader:   storage.NewHTTPUploader(cfg.Uploads, logger),
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	})
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo, policy)

	app := fiber.New(fiber.Config{DisableStartupMessage: cfg.App.Env == "production"})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:          handlers.NewUsersHandler(authService, policy),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
