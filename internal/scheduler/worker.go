package scheduler

import (
	"context"
	"fmt"

	"ekomarket_backend/platform/config"
	"ekomarket_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// HotspotExpirer is satisfied by hotspots.Service.
type HotspotExpirer interface {
	Expire(ctx context.Context, id uuid.UUID) (bool, error)
	ExpireDue(ctx context.Context) (int64, error)
}

// StatsRecomputer is satisfied by profiles.Service.
type StatsRecomputer interface {
	RecomputeAll(ctx context.Context) (int, error)
	RecomputeUser(ctx context.Context, id uuid.UUID, role string) error
}

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	hotspots HotspotExpirer
	stats    StatsRecomputer
	log      *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, hotspots HotspotExpirer, stats StatsRecomputer, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := newWorker(hotspots, stats, log)
	w.server = server
	return w, nil
}

func newWorker(hotspots HotspotExpirer, stats StatsRecomputer, log *logger.Logger) *Worker {
	mux := asynq.NewServeMux()
	w := &Worker{
		mux:      mux,
		hotspots: hotspots,
		stats:    stats,
		log:      log,
	}

	mux.HandleFunc(TaskHotspotExpire, w.handleHotspotExpire)
	mux.HandleFunc(TaskHotspotSweep, w.handleHotspotSweep)
	mux.HandleFunc(TaskStatsRecompute, w.handleStatsRecompute)
	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleHotspotExpire(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseHotspotExpirePayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	id, err := uuid.Parse(payload.HotspotID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	expired, err := w.hotspots.Expire(ctx, id)
	if err != nil {
		return err
	}
	if expired {
		w.log.Info("hotspot expired", "hotspotId", id)
	}
	return nil
}

func (w *Worker) handleHotspotSweep(ctx context.Context, _ *asynq.Task) error {
	n, err := w.hotspots.ExpireDue(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.Info("hotspot sweep expired hotspots", "count", n)
	}
	return nil
}

func (w *Worker) handleStatsRecompute(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseStatsRecomputePayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	if payload.UserID == "" {
		n, err := w.stats.RecomputeAll(ctx)
		if err != nil {
			return err
		}
		w.log.Info("profile stats recomputed", "count", n)
		return nil
	}

	id, err := uuid.Parse(payload.UserID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return w.stats.RecomputeUser(ctx, id, payload.Role)
}
