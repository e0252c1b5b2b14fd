package hotspots

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pickupdomain "ekomarket_backend/internal/pickups/domain"
	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/httpkit"
	"ekomarket_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func kg(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApplyCollection(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	base := Hotspot{
		Status:    StatusActive,
		ExpiresAt: now.Add(time.Hour),
		EstimatedAvailable: []Availability{
			{Category: pickupdomain.CategoryPET, Weight: kg("10")},
			{Category: pickupdomain.CategoryPP, Weight: kg("2")},
		},
	}
	petOnly := base
	petOnly.EstimatedAvailable = []Availability{{Category: pickupdomain.CategoryPET, Weight: kg("3")}}
	depleted := base
	depleted.Status = StatusDepleted
	lapsed := base
	lapsed.ExpiresAt = now

	tests := []struct {
		name      string
		hotspot   Hotspot
		category  pickupdomain.Category
		weight    string
		remaining string
		status    Status
		conflict  bool
	}{
		{"partial", base, pickupdomain.CategoryPET, "4", "6", StatusActive, false},
		{"clamped at zero", base, pickupdomain.CategoryPP, "5", "0", StatusActive, false},
		{"last category depletes", petOnly, pickupdomain.CategoryPET, "3.5", "0", StatusDepleted, false},
		{"unlisted category", petOnly, pickupdomain.CategoryHDPE, "1", "0", StatusActive, false},
		{"depleted refuses", depleted, pickupdomain.CategoryPET, "1", "", "", true},
		{"past expiry refuses", lapsed, pickupdomain.CategoryPET, "1", "", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := ApplyCollection(tc.hotspot, tc.category, kg(tc.weight), now)
			if tc.conflict {
				if !apperr.HasCode(err, apperr.CodeInvalidTransition) {
					t.Fatalf("expected invalid_transition, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !res.Remaining.Equal(kg(tc.remaining)) || res.Status != tc.status {
				t.Fatalf("got remaining %s status %s, want %s %s", res.Remaining, res.Status, tc.remaining, tc.status)
			}
		})
	}
}

func TestMergeAvailability(t *testing.T) {
	got, err := MergeAvailability([]AvailabilityInput{
		{Category: "pet", Weight: kg("1.5")},
		{Category: "PET", Weight: kg("2")},
		{Category: "hdpe", Weight: kg("0")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Category != pickupdomain.CategoryHDPE || !got[1].Weight.Equal(kg("3.5")) {
		t.Fatalf("unexpected merge %+v", got)
	}

	if _, err := MergeAvailability([]AvailabilityInput{{Category: "glass", Weight: kg("1")}, {Category: "PP", Weight: kg("-1")}}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type fakeRepo struct {
	mu       sync.Mutex
	hotspots map[uuid.UUID]Hotspot
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{hotspots: map[uuid.UUID]Hotspot{}}
}

func (r *fakeRepo) Create(_ context.Context, h Hotspot) (Hotspot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h.Status = StatusActive
	r.hotspots[h.ID] = h
	return h, nil
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (Hotspot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hotspots[id]
	if !ok {
		return Hotspot{}, apperr.NotFound(hotspotNotFoundMsg)
	}
	return h, nil
}

func (r *fakeRepo) List(_ context.Context, params ListParams) ([]Hotspot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Hotspot
	for _, h := range r.hotspots {
		if params.Status != nil && h.Status != *params.Status {
			continue
		}
		if b := params.Bounds; b != nil && (h.Location.Lat < b.MinLat || h.Location.Lat > b.MaxLat || h.Location.Lng < b.MinLng || h.Location.Lng > b.MaxLng) {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

func (r *fakeRepo) RecordCollection(_ context.Context, id uuid.UUID, c NewCollection) (Hotspot, Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hotspots[id]
	if !ok {
		return Hotspot{}, "", apperr.NotFound(hotspotNotFoundMsg)
	}
	before := h.Status
	res, err := ApplyCollection(h, c.Category, c.Weight, c.CollectedAt)
	if err != nil {
		return Hotspot{}, "", err
	}
	available := make([]Availability, 0, len(h.EstimatedAvailable))
	for _, a := range h.EstimatedAvailable {
		if a.Category == c.Category {
			a.Weight = res.Remaining
		}
		available = append(available, a)
	}
	h.EstimatedAvailable = available
	h.Status = res.Status
	h.CollectionHistory = append(h.CollectionHistory, Collection{
		Seq: len(h.CollectionHistory), Category: c.Category, Weight: c.Weight, CollectorID: c.CollectorID, PickupID: c.PickupID, CollectedAt: c.CollectedAt,
	})
	r.hotspots[id] = h
	return h, before, nil
}

func (r *fakeRepo) Expire(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hotspots[id]
	if !ok || h.Status != StatusActive || now.Before(h.ExpiresAt) {
		return false, nil
	}
	h.Status = StatusExpired
	r.hotspots[id] = h
	return true, nil
}

func (r *fakeRepo) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	ids := make([]uuid.UUID, 0, len(r.hotspots))
	for id := range r.hotspots {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	var n int64
	for _, id := range ids {
		if ok, _ := r.Expire(ctx, id, now); ok {
			n++
		}
	}
	return n, nil
}

type fakeScheduler struct {
	scheduled map[uuid.UUID]time.Time
	err       error
}

func (s *fakeScheduler) ScheduleHotspotExpiry(_ context.Context, id uuid.UUID, runAt time.Time) error {
	if s.err != nil {
		return s.err
	}
	s.scheduled[id] = runAt
	return nil
}

func withClock(t *testing.T, now time.Time) *time.Time {
	t.Helper()
	current := now
	timeNow = func() time.Time { return current }
	t.Cleanup(func() { timeNow = time.Now })
	return &current
}

func report(lat, lng float64, weight string) ReportHotspotRequest {
	return ReportHotspotRequest{
		Name:               "Pasar Minggu",
		Lat:                &lat,
		Lng:                &lng,
		EstimatedAvailable: []AvailabilityInput{{Category: "PET", Weight: kg(weight)}},
	}
}

func TestReportSchedulesExpiry(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	withClock(t, now)
	sched := &fakeScheduler{scheduled: map[uuid.UUID]time.Time{}}
	svc := NewService(newFakeRepo(), sched, nil, 72*time.Hour, nil, logger.Nop())
	user := httpkit.NewIdentity(uuid.New(), httpkit.RoleBrand)

	h, err := svc.Report(context.Background(), user, report(-6.2, 106.8, "25"))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if h.Status != StatusActive || !h.ExpiresAt.Equal(now.Add(72*time.Hour)) {
		t.Fatalf("unexpected hotspot %+v", h)
	}
	if runAt, ok := sched.scheduled[h.ID]; !ok || !runAt.Equal(h.ExpiresAt) {
		t.Fatalf("expiry task not scheduled at expiresAt: %v", sched.scheduled)
	}

	hours := 6
	req := report(-6.2, 106.8, "5")
	req.TTLHours = &hours
	sched.err = errors.New("redis down")
	short, err := svc.Report(context.Background(), user, req)
	if err != nil {
		t.Fatalf("scheduler failure must not fail the report: %v", err)
	}
	if !short.ExpiresAt.Equal(now.Add(6 * time.Hour)) {
		t.Fatalf("ttlHours ignored: %s", short.ExpiresAt)
	}

	if _, err := svc.Report(context.Background(), user, report(-6.2, 106.8, "0")); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("empty hotspot: expected validation, got %v", err)
	}
}

func TestCollectionsDepleteHotspot(t *testing.T) {
	withClock(t, time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	svc := NewService(newFakeRepo(), nil, nil, 0, nil, logger.Nop())
	ctx := context.Background()
	collector := httpkit.NewIdentity(uuid.New(), httpkit.RoleCollector)

	h, err := svc.Report(ctx, collector, report(-6.2, 106.8, "10"))
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	brand := httpkit.NewIdentity(uuid.New(), httpkit.RoleBrand)
	if _, err := svc.RecordCollection(ctx, brand, h.ID, RecordCollectionRequest{Category: "PET", Weight: kg("1")}); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("brand collection: expected forbidden, got %v", err)
	}

	after, err := svc.RecordCollection(ctx, collector, h.ID, RecordCollectionRequest{Category: "PET", Weight: kg("6")})
	if err != nil {
		t.Fatalf("first collection: %v", err)
	}
	if after.Status != StatusActive || !after.TotalAvailable().Equal(kg("4")) {
		t.Fatalf("after first collection: status %s available %s", after.Status, after.TotalAvailable())
	}

	after, err = svc.RecordCollection(ctx, collector, h.ID, RecordCollectionRequest{Category: "pet", Weight: kg("7")})
	if err != nil {
		t.Fatalf("second collection: %v", err)
	}
	if after.Status != StatusDepleted || !after.TotalAvailable().IsZero() {
		t.Fatalf("expected depleted at zero, got %s %s", after.Status, after.TotalAvailable())
	}
	if len(after.CollectionHistory) != 2 || after.CollectionHistory[1].Seq != 1 {
		t.Fatalf("history not appended: %+v", after.CollectionHistory)
	}

	_, err = svc.RecordCollection(ctx, collector, h.ID, RecordCollectionRequest{Category: "PET", Weight: kg("1")})
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Code != apperr.CodeInvalidTransition {
		t.Fatalf("depleted hotspot: expected invalid_transition, got %v", err)
	}
	if d, ok := appErr.Details.(apperr.TransitionDetails); !ok || d.Current != string(StatusDepleted) {
		t.Fatalf("unexpected details %+v", appErr.Details)
	}
}

func TestListFiltersByRadius(t *testing.T) {
	withClock(t, time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	svc := NewService(newFakeRepo(), nil, nil, 0, nil, logger.Nop())
	ctx := context.Background()
	user := httpkit.NewIdentity(uuid.New(), httpkit.RoleCollector)

	for _, p := range [][2]float64{{-6.2000, 106.8000}, {-6.2300, 106.8300}, {-6.9, 107.6}} {
		if _, err := svc.Report(ctx, user, report(p[0], p[1], "1")); err != nil {
			t.Fatalf("report: %v", err)
		}
	}

	lat, lng := -6.2, 106.8
	resp, err := svc.List(ctx, ListHotspotsRequest{Lat: &lat, Lng: &lng, RadiusKm: 5})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 hotspots within 5km, got %d", len(resp.Items))
	}
	if resp.PollIntervalSeconds != 120 {
		t.Fatalf("pollIntervalSeconds = %d, want 120", resp.PollIntervalSeconds)
	}
	if _, err := svc.List(ctx, ListHotspotsRequest{Status: "gone"}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("bad status: expected validation, got %v", err)
	}
}

func TestExpiryIsIdempotent(t *testing.T) {
	clock := withClock(t, time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	svc := NewService(newFakeRepo(), nil, nil, time.Hour, nil, logger.Nop())
	ctx := context.Background()
	user := httpkit.NewIdentity(uuid.New(), httpkit.RoleCollector)

	h, err := svc.Report(ctx, user, report(-6.2, 106.8, "3"))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if ok, _ := svc.Expire(ctx, h.ID); ok {
		t.Fatal("hotspot expired before its ttl")
	}

	*clock = clock.Add(2 * time.Hour)
	if ok, err := svc.Expire(ctx, h.ID); !ok || err != nil {
		t.Fatalf("expected expiry, got %v %v", ok, err)
	}
	if ok, _ := svc.Expire(ctx, h.ID); ok {
		t.Fatal("second expiry must be a no-op")
	}
	if n, _ := svc.ExpireDue(ctx); n != 0 {
		t.Fatalf("sweep expired %d, want 0", n)
	}
	if _, err := svc.RecordCollection(ctx, user, h.ID, RecordCollectionRequest{Category: "PET", Weight: kg("1")}); !apperr.HasCode(err, apperr.CodeInvalidTransition) {
		t.Fatalf("expired hotspot: expected invalid_transition, got %v", err)
	}
}
