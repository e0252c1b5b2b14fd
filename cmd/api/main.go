package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ekomarket_backend/internal/adapters/storage"
	"ekomarket_backend/internal/analytics"
	"ekomarket_backend/internal/classification"
	"ekomarket_backend/internal/events"
	"ekomarket_backend/internal/hotspots"
	apphttp "ekomarket_backend/internal/http"
	"ekomarket_backend/internal/http/router"
	"ekomarket_backend/internal/maps"
	"ekomarket_backend/internal/messaging"
	"ekomarket_backend/internal/orders"
	"ekomarket_backend/internal/pickups"
	"ekomarket_backend/internal/profiles"
	"ekomarket_backend/internal/scheduler"
	"ekomarket_backend/internal/tokens"
	"ekomarket_backend/internal/transactions"
	"ekomarket_backend/migrations"
	"ekomarket_backend/platform/ai/vision"
	"ekomarket_backend/platform/config"
	"ekomarket_backend/platform/db"
	"ekomarket_backend/platform/logger"
	"ekomarket_backend/platform/metrics"
	"ekomarket_backend/platform/validator"

	"google.golang.org/adk/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()

	val := validator.New()
	registry := metrics.New()

	storageSvc, err := storage.NewMinIOService(cfg)
	if err != nil {
		log.Error("failed to initialize storage service", "error", err)
		panic("failed to initialize storage service: " + err.Error())
	}
	if err := withRetry(ctx, log, "ensure photos bucket", 5, 2*time.Second, func() error {
		return storageSvc.EnsureBucketExists(ctx)
	}); err != nil {
		log.Error("failed to ensure storage bucket exists", "error", err, "bucket", cfg.GetMinIOBucketPhotos())
		panic("failed to ensure storage bucket exists: " + err.Error())
	}
	log.Info("storage service initialized", "photosBucket", cfg.GetMinIOBucketPhotos())

	classifier := classification.NewFromConfig(visionModel(cfg, log), cfg, registry, log)

	expiryScheduler, closeScheduler := initExpiryScheduler(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}

	statsCache, closeCache := initStatsCache(cfg, log)
	if closeCache != nil {
		defer closeCache()
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	pickupsModule := pickups.NewModule(pool, storageSvc, classifier, eventBus, val, cfg.GetPolicy(), registry, log)
	tokensModule := tokens.NewModule(pool, eventBus, val, registry, log)
	pickupsModule.Service().SetRewardLedger(tokensModule.Service())

	ordersModule := orders.NewModule(pool, pickupsModule.Repository(), eventBus, val, registry, log)
	transactionsModule := transactions.NewModule(pool, pickupsModule.Repository(), pickupsModule.Service(), ordersModule.Service(), eventBus, val, registry, log)
	messagingModule := messaging.NewModule(pool, eventBus, val, log)

	profilesModule := profiles.NewModule(pool, statsCache, profiles.Config{
		StatsTTL:    cfg.GetStatsCacheTTL(),
		PhoneRegion: cfg.GetPhoneDefaultRegion(),
	}, val, log)
	profilesModule.RegisterHandlers(eventBus)

	hotspotsModule := hotspots.NewModule(pool, expiryScheduler, eventBus, cfg.GetHotspotDefaultTTL(), val, registry, log)
	analyticsModule := analytics.NewModule(pool, val)
	mapsModule := maps.NewModule(cfg, val, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		EventBus: eventBus,
		Metrics:  registry,
		Modules: []apphttp.Module{
			pickupsModule,
			ordersModule,
			transactionsModule,
			tokensModule,
			messagingModule,
			profilesModule,
			hotspotsModule,
			analyticsModule,
			mapsModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// visionModel returns nil when no API key is configured; the classifier then
// always reports the fallback result.
func visionModel(cfg *config.Config, log *logger.Logger) model.LLM {
	if !cfg.IsVisionEnabled() {
		log.Warn("VISION_API_KEY not configured; photo classification disabled")
		return nil
	}
	return vision.NewModel(vision.Config{
		APIKey:   cfg.GetVisionAPIKey(),
		BaseURL:  cfg.GetVisionBaseURL(),
		Model:    cfg.GetVisionModel(),
		JSONMode: true,
	})
}

func initExpiryScheduler(cfg config.SchedulerConfig, log *logger.Logger) (hotspots.ExpiryScheduler, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; hotspot expiry relies on the scheduler sweep")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize expiry scheduler client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func initStatsCache(cfg config.CacheConfig, log *logger.Logger) (profiles.StatsCache, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; profile stats are read uncached")
		return nil, nil
	}

	client, err := profiles.NewRedisClient(cfg.GetRedisURL())
	if err != nil {
		log.Error("failed to initialize stats cache", "error", err)
		return nil, nil
	}

	return profiles.NewRedisCache(client), func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
