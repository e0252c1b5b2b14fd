package profiles

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ekomarket_backend/internal/events"
	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/httpkit"
	"ekomarket_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type fakeRepo struct {
	mu         sync.Mutex
	collectors map[uuid.UUID]Profile
	brands     map[uuid.UUID]Profile
	// source is what a recompute would read from the marketplace tables.
	source     map[uuid.UUID]CollectorStats
	recomputed []uuid.UUID
	failOn     uuid.UUID
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		collectors: map[uuid.UUID]Profile{},
		brands:     map[uuid.UUID]Profile{},
		source:     map[uuid.UUID]CollectorStats{},
	}
}

func (r *fakeRepo) GetCollector(_ context.Context, id uuid.UUID) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.collectors[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *fakeRepo) GetBrand(_ context.Context, id uuid.UUID) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.brands[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func apply(p *Profile, f Fields) {
	if f.DisplayName != nil {
		p.DisplayName = *f.DisplayName
	}
	if f.CompanyName != nil {
		p.CompanyName = *f.CompanyName
	}
	if f.Phone != nil {
		p.Phone = f.Phone
	}
	if f.Address != nil {
		p.Address = f.Address
	}
}

func (r *fakeRepo) UpsertCollector(_ context.Context, id uuid.UUID, f Fields) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.collectors[id]
	if !ok {
		p = Profile{UserID: id, Role: RoleCollector, CollectorStats: &CollectorStats{}}
	}
	apply(&p, f)
	r.collectors[id] = p
	return p, nil
}

func (r *fakeRepo) UpsertBrand(_ context.Context, id uuid.UUID, f Fields) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.brands[id]
	if !ok {
		p = Profile{UserID: id, Role: RoleBrand, BrandStats: &BrandStats{}}
	}
	apply(&p, f)
	r.brands[id] = p
	return p, nil
}

func (r *fakeRepo) RecomputeCollectorStats(_ context.Context, id uuid.UUID) (CollectorStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == r.failOn {
		return CollectorStats{}, errors.New("connection reset")
	}
	r.recomputed = append(r.recomputed, id)
	stats := r.source[id]
	p, ok := r.collectors[id]
	if !ok {
		p = Profile{UserID: id, Role: RoleCollector}
	}
	p.CollectorStats = &stats
	r.collectors[id] = p
	return stats, nil
}

func (r *fakeRepo) RecomputeBrandStats(_ context.Context, id uuid.UUID) (BrandStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recomputed = append(r.recomputed, id)
	return BrandStats{}, nil
}

func (r *fakeRepo) CollectorIDs(context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(r.collectors))
	for id := range r.collectors {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *fakeRepo) BrandIDs(context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(r.brands))
	for id := range r.brands {
		ids = append(ids, id)
	}
	return ids, nil
}

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client), mr
}

func TestRedisCacheRoundTripAndExpiry(t *testing.T) {
	cache, mr := newRedisCache(t)
	ctx := context.Background()
	key := statsKey(RoleCollector, uuid.New())

	var miss CollectorStats
	if ok, err := cache.Get(ctx, key, &miss); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	want := CollectorStats{TotalPickups: 3, TotalWeight: decimal.RequireFromString("12.5")}
	if err := cache.Set(ctx, key, want, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got CollectorStats
	if ok, err := cache.Get(ctx, key, &got); !ok || err != nil {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.TotalPickups != 3 || !got.TotalWeight.Equal(want.TotalWeight) {
		t.Fatalf("unexpected cached stats %+v", got)
	}

	mr.FastForward(2 * time.Minute)
	if ok, _ := cache.Get(ctx, key, &got); ok {
		t.Fatal("entry must expire after its ttl")
	}
}

func TestStatsReadThroughCache(t *testing.T) {
	repo := newFakeRepo()
	cache, mr := newRedisCache(t)
	svc := NewService(repo, cache, Config{StatsTTL: time.Minute}, logger.Nop())
	ctx := context.Background()
	collector := httpkit.NewIdentity(uuid.New(), httpkit.RoleCollector)

	repo.source[collector.UserID()] = CollectorStats{TotalPickups: 1}
	if _, err := svc.RecomputeCollector(ctx, collector.UserID()); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	// The stored row changes behind the cache's back.
	repo.mu.Lock()
	p := repo.collectors[collector.UserID()]
	p.CollectorStats = &CollectorStats{TotalPickups: 9}
	repo.collectors[collector.UserID()] = p
	repo.mu.Unlock()

	me, err := svc.Me(ctx, collector)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if me.CollectorStats.TotalPickups != 1 {
		t.Fatalf("expected cached stats within ttl, got %d pickups", me.CollectorStats.TotalPickups)
	}

	mr.FastForward(2 * time.Minute)
	me, _ = svc.Me(ctx, collector)
	if me.CollectorStats.TotalPickups != 9 {
		t.Fatalf("expected stored row after expiry, got %d pickups", me.CollectorStats.TotalPickups)
	}
}

func TestStatsFallBackWhenRedisIsDown(t *testing.T) {
	repo := newFakeRepo()
	cache, mr := newRedisCache(t)
	svc := NewService(repo, cache, Config{}, logger.Nop())
	id := uuid.New()
	repo.collectors[id] = Profile{UserID: id, Role: RoleCollector, DisplayName: "Sari", CollectorStats: &CollectorStats{VerifiedPickups: 4}}

	mr.Close()
	p, err := svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get with redis down: %v", err)
	}
	if p.CollectorStats.VerifiedPickups != 4 {
		t.Fatalf("expected stored stats, got %+v", p.CollectorStats)
	}
}

func TestUpdateMeNormalisesInput(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, Config{PhoneRegion: "ID"}, logger.Nop())
	ctx := context.Background()
	brand := httpkit.NewIdentity(uuid.New(), httpkit.RoleBrand)
	collector := httpkit.NewIdentity(uuid.New(), httpkit.RoleCollector)

	strPtr := func(s string) *string { return &s }

	p, err := svc.UpdateMe(ctx, brand, UpdateProfileRequest{
		DisplayName: strPtr("  <b>Rina</b> "),
		Phone:       strPtr("0812-3456-7890"),
		CompanyName: strPtr("PT Daur Ulang"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.DisplayName != "Rina" || p.Phone == nil || *p.Phone != "+6281234567890" || p.CompanyName != "PT Daur Ulang" {
		t.Fatalf("unexpected profile %+v", p)
	}

	tests := []struct {
		name     string
		identity httpkit.Identity
		req      UpdateProfileRequest
		kind     apperr.Kind
	}{
		{"bad phone", collector, UpdateProfileRequest{Phone: strPtr("12")}, apperr.KindValidation},
		{"collector company", collector, UpdateProfileRequest{CompanyName: strPtr("Acme")}, apperr.KindValidation},
		{"blank name", collector, UpdateProfileRequest{DisplayName: strPtr("<i></i>")}, apperr.KindValidation},
		{"admin", httpkit.NewIdentity(uuid.New(), httpkit.RoleAdmin), UpdateProfileRequest{}, apperr.KindForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.UpdateMe(ctx, tc.identity, tc.req); !apperr.Is(err, tc.kind) {
				t.Fatalf("expected kind %v, got %v", tc.kind, err)
			}
		})
	}
}

func TestGetHidesContactDetails(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, Config{}, logger.Nop())
	id := uuid.New()
	phoneNumber := "+6281234567890"
	repo.brands[id] = Profile{UserID: id, Role: RoleBrand, Phone: &phoneNumber, BrandStats: &BrandStats{}}

	p, err := svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Phone != nil || p.Role != RoleBrand {
		t.Fatalf("public view leaked contact details: %+v", p)
	}
	if _, err := svc.Get(context.Background(), uuid.New()); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHandleRecomputesAffectedProfiles(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, Config{}, logger.Nop())
	collector, brand := uuid.New(), uuid.New()

	err := svc.Handle(context.Background(), events.TransactionCompleted{
		BaseEvent: events.NewBaseEvent(),
		PayerID:   brand,
		PayeeID:   collector,
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(repo.recomputed) != 2 || repo.recomputed[0] != collector || repo.recomputed[1] != brand {
		t.Fatalf("expected collector then brand recompute, got %v", repo.recomputed)
	}

	if err := svc.Handle(context.Background(), events.MessageSent{BaseEvent: events.NewBaseEvent()}); err != nil {
		t.Fatalf("unrelated event: %v", err)
	}
	if len(repo.recomputed) != 2 {
		t.Fatal("unrelated events must not recompute")
	}

	repo.failOn = collector
	if err := svc.Handle(context.Background(), events.PickupPaid{BaseEvent: events.NewBaseEvent(), CollectorID: collector}); err == nil {
		t.Fatal("expected recompute failure to surface")
	}
}

func TestRecomputeAll(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, Config{}, logger.Nop())
	repo.collectors[uuid.New()] = Profile{}
	repo.collectors[uuid.New()] = Profile{}
	repo.brands[uuid.New()] = Profile{}

	n, err := svc.RecomputeAll(context.Background())
	if err != nil {
		t.Fatalf("recompute all: %v", err)
	}
	if n != 3 {
		t.Fatalf("refreshed %d profiles, want 3", n)
	}
}

func TestRecomputeUserByRole(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, Config{}, logger.Nop())
	id := uuid.New()

	if err := svc.RecomputeUser(context.Background(), id, RoleBrand); err != nil {
		t.Fatalf("brand recompute: %v", err)
	}
	if len(repo.recomputed) != 1 {
		t.Fatalf("recomputed %d, want 1", len(repo.recomputed))
	}
	if err := svc.RecomputeUser(context.Background(), id, ""); err != nil {
		t.Fatalf("recompute both: %v", err)
	}
	if len(repo.recomputed) != 3 {
		t.Fatalf("recomputed %d, want 3", len(repo.recomputed))
	}
	if err := svc.RecomputeUser(context.Background(), id, "admin"); err == nil {
		t.Fatal("expected unknown role to fail")
	}
}
