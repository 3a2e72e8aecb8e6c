package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradinglab/internal/adapters/backend"
	"tradinglab/internal/adapters/config"
	"tradinglab/internal/adapters/errors/noop"
	"tradinglab/internal/adapters/errors/sentry"
	"tradinglab/internal/adapters/kafka"
	"tradinglab/internal/adapters/postgres"
	"tradinglab/internal/adapters/redis"
	"tradinglab/internal/api"
	"tradinglab/internal/api/health"
	"tradinglab/internal/api/stream"
	"tradinglab/internal/events"
	"tradinglab/internal/metrics"
	pgrepo "tradinglab/internal/repository/postgres"
	redisrepo "tradinglab/internal/repository/redis"
	activationsvc "tradinglab/internal/services/activation"
	networksvc "tradinglab/internal/services/network"
	onboardingsvc "tradinglab/internal/services/onboarding"
	"tradinglab/internal/workers"
	"tradinglab/pkg/errors"
	"tradinglab/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	metrics.Init()

	// Databases
	pgClient, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer pgClient.Close()

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	metrics.RegisterCustomCollector(
		metrics.NewCustomCollector(log, pgClient.DB(), redisClient.Client()))

	// Event publishing: Kafka for downstream consumers, WebSocket for the UI
	producer := kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers})
	defer producer.Close()

	hub := stream.NewHub()
	publisher := events.NewMultiPublisher(
		events.NewKafkaPublisher(producer),
		hub,
	)

	// Repositories
	stateRepo := redisrepo.NewOnboardingStateRepository(redisClient.Client(), cfg.Onboarding.StateTTL)
	accountRepo := pgrepo.NewAccountRepository(pgClient.DB())

	// Backend client covers broker connections, manual-mode lookups and
	// strategy submission behind one rate-limited HTTP surface
	backendClient := backend.NewClient(cfg.Backend)

	// Services
	onboardingManager := onboardingsvc.NewManager(stateRepo, publisher)
	networkService := networksvc.NewService(accountRepo, backendClient, publisher)
	coordinator := activationsvc.NewCoordinator(backendClient, backendClient, publisher)
	sequencer := activationsvc.NewSequencer(coordinator, publisher,
		activationsvc.NewIntervalTicker(cfg.Sequencer.TickInterval), cfg.Sequencer.StageHold)

	// Background workers
	scheduler := workers.NewScheduler()
	scheduler.RegisterWorker(workers.NewAccountSyncWorker(
		networkService,
		cfg.Workers.AccountSyncInterval,
		cfg.Workers.AccountSyncEnabled,
	))

	// HTTP API
	healthHandler := health.New(log, pgClient.DB(), redisClient.Client(), cfg.App.Name, cfg.Server.Version)
	handlers := api.NewHandlers(onboardingManager, networkService, coordinator, sequencer)
	server := api.NewServer(api.ServerConfig{
		Port:        cfg.Server.Port,
		ServiceName: cfg.App.Name,
		Version:     cfg.Server.Version,
	}, healthHandler, hub, handlers, log)

	log.Info("System initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start worker scheduler: %v", err)
	}

	go func() {
		if err := server.Start(); err != nil {
			log.Errorf("HTTP server error: %v", err)
			cancel()
		}
	}()

	waitForShutdown(ctx, cancel, server, scheduler, errorTracker, log)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// waitForShutdown blocks until a termination signal, then stops components in order
func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	server *api.Server,
	scheduler *workers.Scheduler,
	errorTracker errors.Tracker,
	log *logger.Logger,
) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infof("Received signal: %v", sig)
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	log.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP server shutdown error: %v", err)
	}

	if err := scheduler.Stop(); err != nil {
		log.Errorf("Worker scheduler stop error: %v", err)
	}

	if err := errorTracker.Flush(shutdownCtx); err != nil {
		log.Errorf("Error tracker flush error: %v", err)
	}

	log.Info("Shutdown complete")
}
