package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"shambascan/internal/app"
	"shambascan/internal/config"
	"shambascan/internal/handler"
	"shambascan/internal/logging"
	"shambascan/internal/media"
	"shambascan/internal/mpesa"
	internalRedis "shambascan/internal/redis"
	"shambascan/internal/repository/postgres"
	"shambascan/internal/service"
)

func main() {
	// .env is optional; real deployments set variables in the environment.
	_ = godotenv.Load()

	cfg := config.Load()

	logger, err := logging.NewLogger()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", zap.Error(err))
		} else {
			logger.Info("New Relic enabled", zap.String("app", cfg.NewRelic.AppName))
		}
	}

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL")

	if err := app.RunMigrations(ctx, db, cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("failed to apply migrations", zap.Error(err))
	}

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	// Wire dependencies.
	server, paymentService := wireServer(db, redisClient, nrApp, cfg, logger)

	// Start server in goroutine.
	go func() {
		logger.Info("starting server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Dispose every live confirmation session before the HTTP server stops
	// so no countdown or poll timer outlives the process.
	paymentService.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

// wireServer wires all dependencies and returns the HTTP server plus the
// payment service, which needs explicit teardown on shutdown.
func wireServer(db *sql.DB, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.Config, logger *zap.Logger) (*http.Server, *service.PaymentService) {
	// Initialize Redis stores.
	lockStore := internalRedis.NewLockStore(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient)
	historyStore := internalRedis.NewHistoryStore(redisClient)

	// Initialize repositories.
	txRepo := postgres.NewTransactionRepository(db)
	scanRepo := postgres.NewScanRepository(db)
	subscriptionRepo := postgres.NewSubscriptionRepository(db)

	// Initialize media storage.
	var mediaStore media.Store = media.NoopStore{}
	if cfg.Cloudinary.Enabled {
		store, err := media.NewCloudinaryStore(cfg.Cloudinary)
		if err != nil {
			logger.Warn("cloudinary unavailable, storing scans without image URLs", zap.Error(err))
		} else {
			mediaStore = store
		}
	}

	// Initialize services.
	notificationService := service.NewNotificationService(historyStore, logger)
	gateway := mpesa.NewClient(cfg.Mpesa, logger)
	checker := service.NewRepoStatusChecker(txRepo)
	paymentService := service.NewPaymentService(
		gateway,
		txRepo,
		checker,
		lockStore,
		notificationService,
		service.SessionConfig(cfg.Payment),
		logger,
	)
	subscriptionService := service.NewSubscriptionService(subscriptionRepo, txRepo, cacheStore, paymentService, logger)
	scanService := service.NewScanService(scanRepo, mediaStore, cacheStore, historyStore, notificationService, 2*time.Second, logger)

	// Initialize handlers.
	scanHandler := handler.NewScanHandler(scanService)
	paymentHandler := handler.NewPaymentHandler(paymentService, logger)
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionService)
	notificationHandler := handler.NewNotificationHandler(notificationService)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		ScanHandler:         scanHandler,
		PaymentHandler:      paymentHandler,
		SubscriptionHandler: subscriptionHandler,
		NotificationHandler: notificationHandler,
		RedisClient:         redisClient,
		NewRelicApp:         nrApp,
		Auth:                cfg.Auth,
	})

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, paymentService
}
