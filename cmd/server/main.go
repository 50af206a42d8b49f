package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/roadsync/tracking-system/internal/api"
	"github.com/roadsync/tracking-system/internal/core/service"
	"github.com/roadsync/tracking-system/internal/infrastructure/config"
	"github.com/roadsync/tracking-system/internal/infrastructure/db/mongo"
	"github.com/roadsync/tracking-system/internal/infrastructure/db/redis"
	"github.com/roadsync/tracking-system/internal/infrastructure/directory"
	"github.com/roadsync/tracking-system/internal/infrastructure/mq"
	"github.com/roadsync/tracking-system/internal/infrastructure/queue"
	"github.com/roadsync/tracking-system/internal/jobs"
	"github.com/roadsync/tracking-system/internal/proximity"
	"github.com/roadsync/tracking-system/internal/stream"
	"github.com/roadsync/tracking-system/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Storage ---
	mongoClient, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connection failed")
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(disconnectCtx)
	}()

	locationRepo := mongo.NewLocationRepository(db)
	incidentRepo := mongo.NewIncidentRepository(db)
	if err := locationRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("location index creation failed")
	}
	if err := incidentRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("incident index creation failed")
	}

	rdb, err := redis.Connect(ctx, redis.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer func() { _ = rdb.Close() }()

	// --- Event bus ---
	bus, err := mq.Connect(mq.Config{URL: cfg.AMQP.URL, Exchange: cfg.AMQP.Exchange}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("event bus connection failed")
	}
	defer bus.Close()

	// --- Upstream directories ---
	dirCfg := directory.Config{
		OrdersBaseURL:  cfg.Directory.OrdersBaseURL,
		DriversBaseURL: cfg.Directory.DriversBaseURL,
		Timeout:        cfg.Directory.Timeout,
	}
	orderDir := directory.NewOrdersClient(dirCfg)
	driverDir := directory.NewDriversClient(dirCfg)

	// --- Core services ---
	index := proximity.NewIndex()
	rebuildIndex(ctx, index, locationRepo, log)

	registry := stream.NewRegistry(log)

	trackingSvc := service.NewTrackingService(
		locationRepo, orderDir, driverDir, bus,
		index, registry, redis.NewLatestCache(rdb), log,
	)
	incidentSvc := service.NewIncidentService(
		incidentRepo, index, driverDir, bus, redis.NewAlertDedup(rdb), log,
	)

	// --- Ingest workers ---
	dispatcher := queue.NewDispatcher(cfg.IngestWorkers, trackingSvc, log)
	dispatcher.Start(ctx)

	// --- Background sweeps ---
	jobManager := jobs.NewJobManager(trackingSvc, incidentSvc, jobs.Config{
		OrderTimeoutInterval:   cfg.Sweeps.OrderTimeoutInterval,
		OrderStaleAfter:        cfg.Sweeps.OrderStaleAfter,
		IncidentExpiryInterval: cfg.Sweeps.IncidentExpiryInterval,
	}, log)
	if err := jobManager.StartAll(); err != nil {
		log.Fatal().Err(err).Msg("background jobs failed to start")
	}
	defer jobManager.StopAll()

	// --- HTTP ---
	e := api.NewRouter(api.RouterDeps{
		Tracking:      trackingSvc,
		Incidents:     incidentSvc,
		Dispatcher:    dispatcher,
		Registry:      registry,
		Mongo:         db,
		Redis:         rdb,
		GatewaySecret: cfg.GatewaySecret,
		Log:           log,
	})

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()
	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("tracking service started")

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
}

// rebuildIndex warms the in-memory proximity index from each driver's newest
// stored point. A cold index only means proximity results stay empty until
// fresh reports arrive, so failures are logged and tolerated.
func rebuildIndex(ctx context.Context, index *proximity.Index, repo *mongo.LocationRepository, log zerolog.Logger) {
	points, err := repo.LatestPerDriver(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("proximity index rebuild failed, starting cold")
		return
	}
	for _, p := range points {
		index.Upsert(p)
	}
	log.Info().Int("drivers", len(points)).Msg("proximity index rebuilt")
}
