package hotspots

import (
	"context"
	"time"

	"ekomarket_backend/internal/events"
	pickupdomain "ekomarket_backend/internal/pickups/domain"
	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/geo"
	"ekomarket_backend/platform/httpkit"
	"ekomarket_backend/platform/logger"
	"ekomarket_backend/platform/metrics"
	"ekomarket_backend/platform/sanitize"

	"github.com/google/uuid"
)

const (
	defaultTTL      = 72 * time.Hour
	defaultRadiusKm = 10.0
)

var timeNow = time.Now

// ExpiryScheduler enqueues the delayed expiry of a hotspot.
type ExpiryScheduler interface {
	ScheduleHotspotExpiry(ctx context.Context, hotspotID uuid.UUID, runAt time.Time) error
}

// Service runs the hotspot lifecycle.
type Service struct {
	repo       Repository
	scheduler  ExpiryScheduler
	bus        events.Bus
	defaultTTL time.Duration
	metrics    *metrics.Registry
	log        *logger.Logger
}

// NewService creates the hotspot service. scheduler may be nil, in which
// case expiry relies on the periodic sweep.
func NewService(repo Repository, scheduler ExpiryScheduler, bus events.Bus, ttl time.Duration, m *metrics.Registry, log *logger.Logger) *Service {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Service{repo: repo, scheduler: scheduler, bus: bus, defaultTTL: ttl, metrics: m, log: log}
}

// Report stores a new active hotspot and schedules its expiry.
func (s *Service) Report(ctx context.Context, identity httpkit.Identity, req ReportHotspotRequest) (Hotspot, error) {
	if req.Lat == nil || req.Lng == nil || !geo.ValidCoordinates(*req.Lat, *req.Lng) {
		return Hotspot{}, apperr.Fields([]apperr.FieldError{{Field: "lat", Message: "coordinates are out of range"}})
	}
	name := sanitize.Text(req.Name)
	if name == "" {
		return Hotspot{}, apperr.Fields([]apperr.FieldError{{Field: "name", Message: "must not be empty"}})
	}
	available, err := MergeAvailability(req.EstimatedAvailable)
	if err != nil {
		return Hotspot{}, err
	}
	h := Hotspot{
		ID:                 uuid.New(),
		ReportedBy:         identity.UserID(),
		Name:               name,
		Location:           Location{Lat: *req.Lat, Lng: *req.Lng, Address: sanitize.Text(req.Address)},
		EstimatedAvailable: available,
	}
	if !h.TotalAvailable().IsPositive() {
		return Hotspot{}, apperr.Fields([]apperr.FieldError{{Field: "estimatedAvailable", Message: "must contain some weight"}})
	}
	if req.Description != nil {
		description := sanitize.Body(*req.Description)
		h.Description = &description
	}
	ttl := s.defaultTTL
	if req.TTLHours != nil {
		ttl = time.Duration(*req.TTLHours) * time.Hour
	}
	h.ExpiresAt = timeNow().UTC().Add(ttl)

	created, err := s.repo.Create(ctx, h)
	if err != nil {
		return Hotspot{}, err
	}

	if s.scheduler != nil {
		if err := s.scheduler.ScheduleHotspotExpiry(ctx, created.ID, created.ExpiresAt); err != nil {
			s.log.Warn("hotspot expiry not scheduled, sweep will catch it", "hotspotId", created.ID, "error", err)
		}
	}
	if s.bus != nil {
		s.bus.Publish(ctx, events.HotspotReported{
			BaseEvent:  events.NewBaseEvent(),
			HotspotID:  created.ID,
			ReportedBy: created.ReportedBy,
		})
	}
	return created, nil
}

// List runs the map query. Without a centre every hotspot matching the
// status filter is returned; the default filter is active.
func (s *Service) List(ctx context.Context, req ListHotspotsRequest) (HotspotListResponse, error) {
	status := StatusActive
	if req.Status != "" {
		parsed, ok := ParseStatus(req.Status)
		if !ok {
			return HotspotListResponse{}, apperr.Fields([]apperr.FieldError{{Field: "status", Message: "is invalid"}})
		}
		status = parsed
	}
	params := ListParams{Status: &status}

	radius := req.RadiusKm
	if radius <= 0 {
		radius = defaultRadiusKm
	}
	centred := req.Lat != nil && req.Lng != nil
	if centred {
		box := geo.BoundingBox(*req.Lat, *req.Lng, radius)
		params.Bounds = &box
	}

	items, err := s.repo.List(ctx, params)
	if err != nil {
		return HotspotListResponse{}, err
	}
	out := HotspotListResponse{Items: make([]Hotspot, 0, len(items)), PollIntervalSeconds: PollIntervalSeconds}
	for _, h := range items {
		if centred && geo.DistanceKm(*req.Lat, *req.Lng, h.Location.Lat, h.Location.Lng) > radius {
			continue
		}
		out.Items = append(out.Items, h)
	}
	return out, nil
}

// Get returns a hotspot with its collection history.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Hotspot, error) {
	return s.repo.GetByID(ctx, id)
}

// RecordCollection appends a collection by the calling collector.
func (s *Service) RecordCollection(ctx context.Context, identity httpkit.Identity, id uuid.UUID, req RecordCollectionRequest) (Hotspot, error) {
	if !identity.HasRole(httpkit.RoleCollector) {
		return Hotspot{}, apperr.Forbidden("only collectors record hotspot collections")
	}
	category, ok := pickupdomain.ParseCategory(req.Category)
	if !ok {
		return Hotspot{}, apperr.Fields([]apperr.FieldError{{Field: "category", Message: "is invalid"}})
	}
	weight := req.Weight.Round(3)
	if !weight.IsPositive() {
		return Hotspot{}, apperr.Fields([]apperr.FieldError{{Field: "weight", Message: "must be positive"}})
	}
	var pickupID *uuid.UUID
	if req.PickupID != nil && *req.PickupID != "" {
		parsed, err := uuid.Parse(*req.PickupID)
		if err != nil {
			return Hotspot{}, apperr.Fields([]apperr.FieldError{{Field: "pickupId", Message: "must be a uuid"}})
		}
		pickupID = &parsed
	}

	h, before, err := s.repo.RecordCollection(ctx, id, NewCollection{
		Category:    category,
		Weight:      weight,
		CollectorID: identity.UserID(),
		PickupID:    pickupID,
		CollectedAt: timeNow().UTC(),
	})
	if err != nil {
		return Hotspot{}, err
	}
	if h.Status != before {
		s.metrics.ObserveTransition("hotspot", string(h.Status))
		s.log.Transition("hotspot", h.ID.String(), string(before), string(h.Status), identity.Role())
	}
	return h, nil
}

// Expire marks one hotspot expired when it is due. Running it again is a no-op.
func (s *Service) Expire(ctx context.Context, id uuid.UUID) (bool, error) {
	expired, err := s.repo.Expire(ctx, id, timeNow().UTC())
	if err != nil {
		return false, err
	}
	if expired {
		s.metrics.ObserveTransition("hotspot", string(StatusExpired))
		s.log.Transition("hotspot", id.String(), string(StatusActive), string(StatusExpired), "system")
	}
	return expired, nil
}

// ExpireDue sweeps every active hotspot past its expiry.
func (s *Service) ExpireDue(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireDue(ctx, timeNow().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("expired hotspots", "count", n)
	}
	return n, nil
}
