package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ekomarket_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type fakeHotspots struct {
	mu       sync.Mutex
	expired  []uuid.UUID
	sweeps   int
	sweepErr error
}

func (f *fakeHotspots) Expire(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, seen := range f.expired {
		if seen == id {
			return false, nil
		}
	}
	f.expired = append(f.expired, id)
	return true, nil
}

func (f *fakeHotspots) ExpireDue(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return 2, f.sweepErr
}

type fakeStats struct {
	all   int
	users map[uuid.UUID]string
}

func (f *fakeStats) RecomputeAll(context.Context) (int, error) {
	f.all++
	return 4, nil
}

func (f *fakeStats) RecomputeUser(_ context.Context, id uuid.UUID, role string) error {
	if f.users == nil {
		f.users = map[uuid.UUID]string{}
	}
	f.users[id] = role
	return nil
}

func TestHandleHotspotExpireIsIdempotent(t *testing.T) {
	hotspots := &fakeHotspots{}
	w := newWorker(hotspots, &fakeStats{}, logger.Nop())

	id := uuid.New()
	task, err := NewHotspotExpireTask(HotspotExpirePayload{HotspotID: id.String()})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := w.mux.ProcessTask(context.Background(), task); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if len(hotspots.expired) != 1 || hotspots.expired[0] != id {
		t.Fatalf("expected a single expiry of %s, got %v", id, hotspots.expired)
	}
}

func TestHandleHotspotExpireRejectsBadPayload(t *testing.T) {
	w := newWorker(&fakeHotspots{}, &fakeStats{}, logger.Nop())

	tests := []struct {
		name    string
		payload []byte
	}{
		{"not json", []byte("{")},
		{"bad id", []byte(`{"hotspotId":"nope"}`)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := w.mux.ProcessTask(context.Background(), asynq.NewTask(TaskHotspotExpire, tc.payload))
			if !errors.Is(err, asynq.SkipRetry) {
				t.Fatalf("expected SkipRetry, got %v", err)
			}
		})
	}
}

func TestHandleStatsRecompute(t *testing.T) {
	stats := &fakeStats{}
	w := newWorker(&fakeHotspots{}, stats, logger.Nop())

	all, _ := NewStatsRecomputeTask(StatsRecomputePayload{})
	if err := w.mux.ProcessTask(context.Background(), all); err != nil {
		t.Fatalf("recompute all: %v", err)
	}
	if stats.all != 1 {
		t.Fatalf("RecomputeAll calls = %d, want 1", stats.all)
	}

	id := uuid.New()
	one, _ := NewStatsRecomputeTask(StatsRecomputePayload{UserID: id.String(), Role: "brand"})
	if err := w.mux.ProcessTask(context.Background(), one); err != nil {
		t.Fatalf("recompute user: %v", err)
	}
	if stats.users[id] != "brand" {
		t.Fatalf("expected brand recompute for %s, got %v", id, stats.users)
	}
}

func TestHandleHotspotSweep(t *testing.T) {
	hotspots := &fakeHotspots{}
	w := newWorker(hotspots, &fakeStats{}, logger.Nop())

	if err := w.mux.ProcessTask(context.Background(), NewHotspotSweepTask()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	hotspots.sweepErr = errors.New("db down")
	if err := w.mux.ProcessTask(context.Background(), NewHotspotSweepTask()); err == nil {
		t.Fatal("expected sweep error to be retried")
	}
}

func TestMaintenanceSweepsUntilCancelled(t *testing.T) {
	hotspots := &fakeHotspots{}
	m := NewMaintenance(hotspots, nil, logger.Nop(), 5*time.Millisecond, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	m.Run(ctx)

	hotspots.mu.Lock()
	defer hotspots.mu.Unlock()
	if hotspots.sweeps < 2 {
		t.Fatalf("expected repeated sweeps, got %d", hotspots.sweeps)
	}
}

func TestRedisClientOpt(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		insecure bool
		wantTLS  bool
		wantSkip bool
	}{
		{"plain", "redis://:secret@localhost:6379/2", false, false, false},
		{"tls", "rediss://localhost:6380/0", false, true, false},
		{"insecure tls", "rediss://localhost:6380/0", true, true, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opt, err := redisClientOpt(tc.url, tc.insecure)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if (opt.TLSConfig != nil) != tc.wantTLS {
				t.Fatalf("tls config present = %v, want %v", opt.TLSConfig != nil, tc.wantTLS)
			}
			if tc.wantTLS && opt.TLSConfig.InsecureSkipVerify != tc.wantSkip {
				t.Fatalf("InsecureSkipVerify = %v, want %v", opt.TLSConfig.InsecureSkipVerify, tc.wantSkip)
			}
		})
	}

	opt, _ := redisClientOpt("redis://:secret@localhost:6379/2", false)
	if opt.Password != "secret" || opt.DB != 2 {
		t.Fatalf("unexpected options %+v", opt)
	}
}

func TestNilClientIsNoop(t *testing.T) {
	var c *Client
	if err := c.ScheduleHotspotExpiry(context.Background(), uuid.New(), time.Now()); err != nil {
		t.Fatalf("nil client: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
