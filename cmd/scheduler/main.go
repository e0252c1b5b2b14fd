package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ekomarket_backend/internal/events"
	"ekomarket_backend/internal/hotspots"
	"ekomarket_backend/internal/profiles"
	"ekomarket_backend/internal/scheduler"
	"ekomarket_backend/platform/config"
	"ekomarket_backend/platform/db"
	"ekomarket_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()

	var statsCache profiles.StatsCache
	if cfg.GetRedisURL() != "" {
		client, err := profiles.NewRedisClient(cfg.GetRedisURL())
		if err != nil {
			log.Error("failed to initialize stats cache", "error", err)
		} else {
			defer func() { _ = client.Close() }()
			statsCache = profiles.NewRedisCache(client)
		}
	}

	hotspotSvc := hotspots.NewService(hotspots.NewRepository(pool), nil, eventBus, cfg.GetHotspotDefaultTTL(), nil, log)
	profileSvc := profiles.NewService(profiles.NewRepository(pool), statsCache, profiles.Config{
		StatsTTL:    cfg.GetStatsCacheTTL(),
		PhoneRegion: cfg.GetPhoneDefaultRegion(),
	}, log)

	maintenance := scheduler.NewMaintenance(
		hotspotSvc,
		profileSvc,
		log,
		getDurationEnv("HOTSPOT_SWEEP_INTERVAL", 5*time.Minute),
		getDurationEnv("STATS_REFRESH_INTERVAL", 6*time.Hour),
	)
	go maintenance.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, hotspotSvc, profileSvc, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
