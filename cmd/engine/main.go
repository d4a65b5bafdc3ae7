package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/inklane/artist-match-engine/config/logger"
	postgres "github.com/inklane/artist-match-engine/config/storage/postgresql"
	redis "github.com/inklane/artist-match-engine/config/storage/redis"
	config "github.com/inklane/artist-match-engine/config/utils"
	"github.com/inklane/artist-match-engine/internal/adapter/queue/rabbitmq"
	pgstore "github.com/inklane/artist-match-engine/internal/adapter/storage/postgres"
	redisstore "github.com/inklane/artist-match-engine/internal/adapter/storage/redis"
	"github.com/inklane/artist-match-engine/internal/core/domain"
	"github.com/inklane/artist-match-engine/internal/core/service"
	"github.com/inklane/artist-match-engine/internal/metrics"
)

// _shutdownPeriod is time to wait for in-flight actors before force closing
// _readinessDrainDelay is time to sleep while context shutdown message propagate
const (
	_shutdownPeriod      = 10 * time.Second
	_readinessDrainDelay = 5 * time.Second
	_metricsAddr         = ":9090"
)

func main() {
	rootCtx, rootCtxCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCtxCancel()

	// Init config
	appConfig := config.New()
	baseLogger := logger.Build(appConfig.Logger)
	zap.L().Debug("Logger Builded successfully")

	zap.L().Info("Starting the application", zap.String("app", appConfig.App.Name), zap.String("env", appConfig.App.Env), zap.String("owner", appConfig.App.Owner))

	// Init database service
	dbLogger := baseLogger.Named("DB")
	dbService, err := postgres.New(rootCtx, appConfig.DB, dbLogger)
	if err != nil {
		zap.L().Error("Error initializing database connection", zap.Error(err))
		os.Exit(1)
	}
	defer dbService.Close()
	zap.L().Info("Successfully connected to the database", zap.String("db", appConfig.DB.Connection))

	// Migrate database
	if err := dbService.Migrate(); err != nil {
		zap.L().Error("Error migrating database", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("Successfully migrated the database")

	// Init cache service
	cacheService, err := redis.New(rootCtx, appConfig.Redis)
	if err != nil {
		zap.L().Error("Error initializing cache connection", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("Successfully connected to the cache server", zap.String("address", appConfig.Redis.Addr))

	// Init message broker
	mqURL := fmt.Sprintf("amqp://%s:%s@%s:%s/%s",
		appConfig.MQ.User,
		appConfig.MQ.Password,
		appConfig.MQ.Host,
		appConfig.MQ.Port,
		appConfig.MQ.VHost,
	)
	mqLogger := baseLogger.Named("MQ")
	eventService, err := rabbitmq.NewEventService(mqURL, mqLogger)
	if err != nil {
		zap.L().Error("Error initializing message broker connection", zap.Error(err))
		os.Exit(1)
	}
	defer eventService.Close()
	zap.L().Info("Successfully connected to the message broker", zap.String("host", appConfig.MQ.Host))

	// Repositories
	configRepo := pgstore.NewConfigRepository(dbService.Pool, dbLogger)
	offerRepo := pgstore.NewOfferRepository(dbService.Pool, dbLogger)
	stateRepo := pgstore.NewEscalationRepository(dbService.Pool, dbLogger)
	directory := redisstore.NewArtistDirectory(cacheService.Conn, baseLogger.Named("Directory"))

	// Core services
	configService := service.NewConfigService(configRepo, baseLogger.Named("Config"))
	if err := configService.Load(rootCtx); err != nil {
		zap.L().Error("Error loading active algorithm config", zap.Error(err))
		os.Exit(1)
	}
	if _, err := configService.GetActive(); err == domain.ErrNoActiveConfig {
		// Fresh deployment, seed and publish the stock rules
		draftID, err := configService.CreateVersion(rootCtx, domain.DefaultConfig())
		if err != nil {
			zap.L().Error("Error seeding default algorithm config", zap.Error(err))
			os.Exit(1)
		}
		if _, err := configService.Publish(rootCtx, draftID); err != nil {
			zap.L().Error("Error publishing default algorithm config", zap.Error(err))
			os.Exit(1)
		}
		zap.L().Info("Seeded default algorithm config", zap.String("id", draftID))
	}

	poolBuilder := service.NewPoolBuilder(directory, baseLogger.Named("Pool"))
	offerScheduler := service.NewOfferScheduler(offerRepo, baseLogger.Named("Scheduler"))
	engine := service.NewEngine(
		configService,
		poolBuilder,
		offerRepo,
		stateRepo,
		eventService,
		offerScheduler,
		baseLogger.Named("Engine"),
	)

	// Rebuild actors for tasks that were mid-escalation when the previous
	// process stopped, then re-arm their acceptance timers
	if err := engine.Resume(rootCtx); err != nil {
		zap.L().Error("Error resuming mid-flight escalations", zap.Error(err))
		os.Exit(1)
	}
	if err := offerScheduler.Recover(rootCtx); err != nil {
		zap.L().Error("Error recovering pending offer timers", zap.Error(err))
		os.Exit(1)
	}

	// Start consuming newly created tasks
	if err := eventService.ConsumeTasks(rootCtx, func(task *domain.Task) error {
		return engine.Submit(rootCtx, task)
	}); err != nil {
		zap.L().Error("Error starting task consumer", zap.Error(err))
		os.Exit(1)
	}

	// Expose prometheus metrics
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(_metricsAddr, mux); err != nil {
			zap.L().Error("Metrics server stopped", zap.Error(err))
		}
	}()
	zap.L().Info("Metrics exposed", zap.String("address", _metricsAddr))

	// Wait for ctx cancelation
	<-rootCtx.Done()
	rootCtxCancel()

	// Wait for signal propagation
	time.Sleep(_readinessDrainDelay)
	zap.L().Info("Readiness check propagated, now draining in-flight escalations")

	done := make(chan struct{})
	go func() {
		engine.Shutdown()
		offerScheduler.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(_shutdownPeriod):
		zap.L().Warn("Shutdown period elapsed before all actors drained")
	}

	zap.L().Info("Graceful shutdown complete.")
}
