// Package service implements the pickup lifecycle and the submission pipeline.
package service

import (
	"context"
	"fmt"

	"ekomarket_backend/internal/adapters/storage"
	"ekomarket_backend/internal/classification"
	"ekomarket_backend/internal/events"
	"ekomarket_backend/internal/pickups/domain"
	"ekomarket_backend/internal/pickups/ports"
	"ekomarket_backend/internal/pickups/repository"
	"ekomarket_backend/internal/pickups/transport"
	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/config"
	"ekomarket_backend/platform/geo"
	"ekomarket_backend/platform/httpkit"
	"ekomarket_backend/platform/logger"
	"ekomarket_backend/platform/metrics"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

const (
	pickupNotFoundMsg = "pickup not found"
	labelSize         = 256
)

// Service owns pickup state changes.
type Service struct {
	repo       repository.Repository
	blobs      storage.BlobStore
	classifier classification.Classifier
	ledger     ports.RewardLedger
	bus        events.Bus
	policy     config.Policy
	metrics    *metrics.Registry
	log        *logger.Logger
}

// Deps groups the collaborators of the pickup service.
type Deps struct {
	Repo       repository.Repository
	Blobs      storage.BlobStore
	Classifier classification.Classifier
	Ledger     ports.RewardLedger
	Bus        events.Bus
	Policy     config.Policy
	Metrics    *metrics.Registry
	Log        *logger.Logger
}

// New creates the pickup service.
func New(deps Deps) *Service {
	return &Service{
		repo:       deps.Repo,
		blobs:      deps.Blobs,
		classifier: deps.Classifier,
		ledger:     deps.Ledger,
		bus:        deps.Bus,
		policy:     deps.Policy,
		metrics:    deps.Metrics,
		log:        deps.Log,
	}
}

// SetRewardLedger wires the token ledger after construction. The tokens
// module is built after pickups in the composition root.
func (s *Service) SetRewardLedger(ledger ports.RewardLedger) {
	s.ledger = ledger
}

// Get returns a pickup. Collectors only see their own pickups.
func (s *Service) Get(ctx context.Context, identity httpkit.Identity, id uuid.UUID) (transport.PickupResponse, error) {
	pickup, err := s.load(ctx, identity, id)
	if err != nil {
		return transport.PickupResponse{}, err
	}
	return transport.ToPickupResponse(pickup), nil
}

func (s *Service) load(ctx context.Context, identity httpkit.Identity, id uuid.UUID) (domain.Pickup, error) {
	pickup, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Pickup{}, err
	}
	if identity.HasRole(httpkit.RoleCollector) && pickup.CollectorID != identity.UserID() {
		return domain.Pickup{}, apperr.NotFound(pickupNotFoundMsg)
	}
	return pickup, nil
}

// List returns pickups visible to the caller. Collectors are scoped to their
// own records; brands and admins browse the marketplace.
func (s *Service) List(ctx context.Context, identity httpkit.Identity, req transport.ListPickupsRequest) (transport.PickupListResponse, error) {
	params := repository.ListParams{Page: req.Page, PageSize: req.PageSize}
	if identity.HasRole(httpkit.RoleCollector) {
		id := identity.UserID()
		params.CollectorID = &id
	}
	if req.Status != "" {
		status, ok := domain.ParseStatus(req.Status)
		if !ok {
			return transport.PickupListResponse{}, apperr.Fields([]apperr.FieldError{{Field: "status", Message: "is invalid"}})
		}
		params.Status = &status
	}
	if req.Category != "" {
		category, ok := domain.ParseCategory(req.Category)
		if !ok {
			return transport.PickupListResponse{}, apperr.Fields([]apperr.FieldError{{Field: "category", Message: "is invalid"}})
		}
		params.Category = &category
	}

	var centre *[2]float64
	if req.Lat != nil && req.Lng != nil && req.RadiusKm > 0 {
		box := geo.BoundingBox(*req.Lat, *req.Lng, req.RadiusKm)
		params.Bounds = &repository.Bounds{MinLat: box.MinLat, MaxLat: box.MaxLat, MinLng: box.MinLng, MaxLng: box.MaxLng}
		centre = &[2]float64{*req.Lat, *req.Lng}
	}

	items, total, err := s.repo.List(ctx, params)
	if err != nil {
		return transport.PickupListResponse{}, err
	}

	out := transport.PickupListResponse{Items: make([]transport.PickupResponse, 0, len(items)), Total: total, Page: params.Page, PageSize: params.PageSize}
	for _, item := range items {
		if centre != nil && geo.DistanceKm(centre[0], centre[1], item.Location.Lat, item.Location.Lng) > req.RadiusKm {
			continue
		}
		out.Items = append(out.Items, transport.ToPickupResponse(item))
	}
	if out.Page < 1 {
		out.Page = 1
	}
	if out.PageSize < 1 {
		out.PageSize = 20
	}
	return out, nil
}

// Label renders a QR code identifying the pickup for the physical batch.
func (s *Service) Label(ctx context.Context, identity httpkit.Identity, id uuid.UUID) ([]byte, error) {
	pickup, err := s.load(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	content := fmt.Sprintf("EKOMARKET|%s|%s|%skg|%s", pickup.ID, pickup.Category, pickup.BaseWeight().String(), pickup.Status)
	png, err := qrcode.Encode(content, qrcode.Medium, labelSize)
	if err != nil {
		return nil, fmt.Errorf("encode pickup label: %w", err)
	}
	return png, nil
}

// PhotoURL returns a short-lived download link for the before or after photo.
func (s *Service) PhotoURL(ctx context.Context, identity httpkit.Identity, id uuid.UUID, kind string) (*storage.PresignedURL, error) {
	pickup, err := s.load(ctx, identity, id)
	if err != nil {
		return nil, err
	}

	var blobID string
	switch kind {
	case "before":
		blobID = pickup.Photos.Before.BlobID
	case "after":
		if pickup.Photos.After != nil {
			blobID = pickup.Photos.After.BlobID
		}
	default:
		return nil, apperr.Fields([]apperr.FieldError{{Field: "kind", Message: "must be before or after"}})
	}
	if blobID == "" {
		return nil, apperr.NotFound("photo not found")
	}

	link, err := s.blobs.GenerateDownloadURL(ctx, blobID)
	if err != nil {
		return nil, fmt.Errorf("presign %s photo: %w", kind, err)
	}
	return link, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.bus != nil {
		s.bus.Publish(ctx, event)
	}
}

func (s *Service) logTransition(id uuid.UUID, from, to domain.Status, role string) {
	s.metrics.ObserveTransition("pickup", string(to))
	if s.log != nil {
		s.log.Transition("pickup", id.String(), string(from), string(to), role)
	}
}
