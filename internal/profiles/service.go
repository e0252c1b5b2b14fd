package profiles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ekomarket_backend/internal/events"
	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/httpkit"
	"ekomarket_backend/platform/logger"
	"ekomarket_backend/platform/phone"
	"ekomarket_backend/platform/sanitize"

	"github.com/google/uuid"
)

const defaultStatsTTL = 60 * time.Second

// Config tunes the profile service.
type Config struct {
	StatsTTL    time.Duration
	PhoneRegion string
}

// Service serves profiles and keeps their stats current.
type Service struct {
	repo   Repository
	cache  StatsCache
	config Config
	log    *logger.Logger
}

// NewService creates the profile service. cache may be nil.
func NewService(repo Repository, cache StatsCache, cfg Config, log *logger.Logger) *Service {
	if cfg.StatsTTL <= 0 {
		cfg.StatsTTL = defaultStatsTTL
	}
	if cfg.PhoneRegion == "" {
		cfg.PhoneRegion = "ID"
	}
	return &Service{repo: repo, cache: cache, config: cfg, log: log}
}

// Me returns the caller's own profile. A caller without a stored row gets an
// empty profile with zero stats.
func (s *Service) Me(ctx context.Context, identity httpkit.Identity) (Profile, error) {
	switch identity.Role() {
	case httpkit.RoleCollector:
		p, err := s.repo.GetCollector(ctx, identity.UserID())
		if err != nil {
			return Profile{}, err
		}
		if p == nil {
			p = &Profile{UserID: identity.UserID(), Role: RoleCollector, CollectorStats: &CollectorStats{}}
		}
		return s.withCollectorStats(ctx, *p), nil
	case httpkit.RoleBrand:
		p, err := s.repo.GetBrand(ctx, identity.UserID())
		if err != nil {
			return Profile{}, err
		}
		if p == nil {
			p = &Profile{UserID: identity.UserID(), Role: RoleBrand, BrandStats: &BrandStats{}}
		}
		return s.withBrandStats(ctx, *p), nil
	}
	return Profile{}, apperr.Forbidden("admins have no marketplace profile")
}

// Get returns the public view of any collector or brand.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Profile, error) {
	collector, err := s.repo.GetCollector(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if collector != nil {
		return s.withCollectorStats(ctx, *collector).Public(), nil
	}
	brand, err := s.repo.GetBrand(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if brand != nil {
		return s.withBrandStats(ctx, *brand).Public(), nil
	}
	return Profile{}, apperr.NotFound("profile not found")
}

// UpdateMe edits the caller's profile. Phone numbers are stored in E.164.
func (s *Service) UpdateMe(ctx context.Context, identity httpkit.Identity, req UpdateProfileRequest) (Profile, error) {
	role := identity.Role()
	if role != httpkit.RoleCollector && role != httpkit.RoleBrand {
		return Profile{}, apperr.Forbidden("admins have no marketplace profile")
	}

	fields := Fields{
		DisplayName: sanitize.TextPtr(req.DisplayName),
		Address:     sanitize.TextPtr(req.Address),
	}
	var problems []apperr.FieldError
	if fields.DisplayName != nil && *fields.DisplayName == "" {
		problems = append(problems, apperr.FieldError{Field: "displayName", Message: "must not be empty"})
	}
	if req.Phone != nil {
		normalized, err := phone.Normalize(*req.Phone, s.config.PhoneRegion)
		if errors.Is(err, phone.ErrInvalid) {
			problems = append(problems, apperr.FieldError{Field: "phone", Message: "is not a valid phone number"})
		} else if normalized != "" {
			fields.Phone = &normalized
		}
	}
	if req.CompanyName != nil {
		if role != httpkit.RoleBrand {
			problems = append(problems, apperr.FieldError{Field: "companyName", Message: "only brands have a company name"})
		}
		fields.CompanyName = sanitize.TextPtr(req.CompanyName)
	}
	if len(problems) > 0 {
		return Profile{}, apperr.Fields(problems)
	}

	if role == httpkit.RoleBrand {
		p, err := s.repo.UpsertBrand(ctx, identity.UserID(), fields)
		if err != nil {
			return Profile{}, err
		}
		return s.withBrandStats(ctx, p), nil
	}
	p, err := s.repo.UpsertCollector(ctx, identity.UserID(), fields)
	if err != nil {
		return Profile{}, err
	}
	return s.withCollectorStats(ctx, p), nil
}

// RecomputeCollector rebuilds and re-caches a collector's stats.
func (s *Service) RecomputeCollector(ctx context.Context, id uuid.UUID) (CollectorStats, error) {
	stats, err := s.repo.RecomputeCollectorStats(ctx, id)
	if err != nil {
		return CollectorStats{}, err
	}
	s.storeStats(ctx, statsKey(RoleCollector, id), stats)
	return stats, nil
}

// RecomputeBrand rebuilds and re-caches a brand's stats.
func (s *Service) RecomputeBrand(ctx context.Context, id uuid.UUID) (BrandStats, error) {
	stats, err := s.repo.RecomputeBrandStats(ctx, id)
	if err != nil {
		return BrandStats{}, err
	}
	s.storeStats(ctx, statsKey(RoleBrand, id), stats)
	return stats, nil
}

// RecomputeUser rebuilds stats for one user. Without a role both sides are
// refreshed.
func (s *Service) RecomputeUser(ctx context.Context, id uuid.UUID, role string) error {
	switch role {
	case RoleCollector:
		_, err := s.RecomputeCollector(ctx, id)
		return err
	case RoleBrand:
		_, err := s.RecomputeBrand(ctx, id)
		return err
	case "":
		if _, err := s.RecomputeCollector(ctx, id); err != nil {
			return err
		}
		_, err := s.RecomputeBrand(ctx, id)
		return err
	default:
		return fmt.Errorf("unknown profile role %q", role)
	}
}

// RecomputeAll rebuilds stats for every known collector and brand and
// returns how many profiles were refreshed.
func (s *Service) RecomputeAll(ctx context.Context) (int, error) {
	collectors, err := s.repo.CollectorIDs(ctx)
	if err != nil {
		return 0, err
	}
	brands, err := s.repo.BrandIDs(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, id := range collectors {
		if _, err := s.RecomputeCollector(ctx, id); err != nil {
			return n, fmt.Errorf("collector %s: %w", id, err)
		}
		n++
	}
	for _, id := range brands {
		if _, err := s.RecomputeBrand(ctx, id); err != nil {
			return n, fmt.Errorf("brand %s: %w", id, err)
		}
		n++
	}
	return n, nil
}

// RegisterHandlers subscribes to the events that change stats.
func (s *Service) RegisterHandlers(bus events.Bus) {
	for _, name := range []string{
		events.NamePickupCreated,
		events.NamePickupVerified,
		events.NamePickupRejected,
		events.NamePickupPaid,
		events.NameOrderCreated,
		events.NameOrderStatusChanged,
		events.NameTransactionCompleted,
		events.NameTokensCredited,
	} {
		bus.Subscribe(name, s)
	}
}

// Handle recomputes the stats of every profile an event touches.
func (s *Service) Handle(ctx context.Context, event events.Event) error {
	var collectors, brands []uuid.UUID
	switch e := event.(type) {
	case events.PickupCreated:
		collectors = append(collectors, e.CollectorID)
	case events.PickupVerified:
		collectors = append(collectors, e.CollectorID)
	case events.PickupRejected:
		collectors = append(collectors, e.CollectorID)
	case events.PickupPaid:
		collectors = append(collectors, e.CollectorID)
	case events.OrderCreated:
		brands = append(brands, e.BrandID)
	case events.OrderStatusChanged:
		brands = append(brands, e.BrandID)
	case events.TransactionCompleted:
		collectors = append(collectors, e.PayeeID)
		brands = append(brands, e.PayerID)
	case events.TokensCredited:
		collectors = append(collectors, e.CollectorID)
	default:
		return nil
	}

	var errs []error
	for _, id := range collectors {
		if _, err := s.RecomputeCollector(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range brands {
		if _, err := s.RecomputeBrand(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// withCollectorStats prefers a cached copy over the stored row and seeds the
// cache on a miss. Cache failures only cost freshness.
func (s *Service) withCollectorStats(ctx context.Context, p Profile) Profile {
	key := statsKey(RoleCollector, p.UserID)
	var cached CollectorStats
	if s.loadStats(ctx, key, &cached) {
		p.CollectorStats = &cached
		return p
	}
	if p.CollectorStats != nil {
		s.storeStats(ctx, key, *p.CollectorStats)
	}
	return p
}

func (s *Service) withBrandStats(ctx context.Context, p Profile) Profile {
	key := statsKey(RoleBrand, p.UserID)
	var cached BrandStats
	if s.loadStats(ctx, key, &cached) {
		p.BrandStats = &cached
		return p
	}
	if p.BrandStats != nil {
		s.storeStats(ctx, key, *p.BrandStats)
	}
	return p
}

func (s *Service) loadStats(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		s.log.Warn("stats cache read failed", "key", key, "error", err)
		return false
	}
	return ok
}

func (s *Service) storeStats(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.config.StatsTTL); err != nil {
		s.log.Warn("stats cache write failed", "key", key, "error", err)
	}
}
