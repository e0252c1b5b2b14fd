package scheduler

import (
	"context"
	"time"

	"ekomarket_backend/platform/logger"
)

const (
	defaultHotspotSweepInterval = 5 * time.Minute
	defaultStatsRefreshInterval = 6 * time.Hour
)

// Maintenance periodically expires overdue hotspots and refreshes profile
// stats alongside the one-shot expiry tasks.
type Maintenance struct {
	hotspots      HotspotExpirer
	stats         StatsRecomputer
	log           *logger.Logger
	sweepInterval time.Duration
	statsInterval time.Duration
}

func NewMaintenance(hotspots HotspotExpirer, stats StatsRecomputer, log *logger.Logger, sweepInterval, statsInterval time.Duration) *Maintenance {
	if sweepInterval <= 0 {
		sweepInterval = defaultHotspotSweepInterval
	}
	if statsInterval <= 0 {
		statsInterval = defaultStatsRefreshInterval
	}

	return &Maintenance{
		hotspots:      hotspots,
		stats:         stats,
		log:           log,
		sweepInterval: sweepInterval,
		statsInterval: statsInterval,
	}
}

func (m *Maintenance) Run(ctx context.Context) {
	if m == nil {
		return
	}

	m.sweep(ctx)

	sweepTicker := time.NewTicker(m.sweepInterval)
	defer sweepTicker.Stop()
	statsTicker := time.NewTicker(m.statsInterval)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweepTicker.C:
			m.sweep(ctx)
		case <-statsTicker.C:
			m.refreshStats(ctx)
		}
	}
}

func (m *Maintenance) sweep(ctx context.Context) {
	if m.hotspots == nil {
		return
	}

	n, err := m.hotspots.ExpireDue(ctx)
	if err != nil {
		m.log.Warn("hotspot sweep failed", "error", err)
		return
	}

	if n > 0 {
		m.log.Info("hotspot sweep expired hotspots", "count", n)
	}
}

func (m *Maintenance) refreshStats(ctx context.Context) {
	if m.stats == nil {
		return
	}

	n, err := m.stats.RecomputeAll(ctx)
	if err != nil {
		m.log.Warn("profile stats refresh failed", "error", err, "refreshed", n)
		return
	}
	m.log.Info("profile stats refreshed", "count", n)
}
