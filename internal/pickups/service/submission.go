package service

import (
	"context"
	"fmt"
	"strings"

	"ekomarket_backend/internal/adapters/storage"
	"ekomarket_backend/internal/classification"
	"ekomarket_backend/internal/events"
	"ekomarket_backend/internal/pickups/domain"
	"ekomarket_backend/internal/pickups/repository"
	"ekomarket_backend/internal/pickups/transport"
	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/geo"
	"ekomarket_backend/platform/httpkit"
	"ekomarket_backend/platform/sanitize"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

const (
	maxNotesLength   = 1000
	maxAddressLength = 500
	maxWeightKg      = 100000
)

// roundWeight rounds kilograms to grams. A non-empty message means the
// weight is out of range once rounded.
func roundWeight(kg float64) (decimal.Decimal, string) {
	if kg > maxWeightKg {
		return decimal.Zero, fmt.Sprintf("must be at most %d kg", maxWeightKg)
	}
	weight := decimal.NewFromFloat(kg).Round(3)
	if !weight.IsPositive() {
		return decimal.Zero, "must be greater than 0"
	}
	return weight, ""
}

// Detect classifies a photo for the submission form. Provider failures yield
// the fallback result, never an error.
func (s *Service) Detect(ctx context.Context, photo transport.Upload, hint *classification.Hint) (transport.DetectResponse, error) {
	result, err := s.classifier.Classify(ctx, photo.Data, photo.ContentType, hint)
	if err != nil {
		return transport.DetectResponse{}, err
	}
	return transport.DetectResponse{
		Classification: result,
		AutoFill:       classification.ShouldAutoFill(result, s.policy.Classification),
		ManualReview:   classification.NeedsManualReview(result, s.policy.Classification),
	}, nil
}

// submission is a validated CreatePickupForm.
type submission struct {
	category     domain.Category
	weight       decimal.Decimal
	notes        string
	location     domain.Location
	aiConfidence *float64
	aiCategory   *domain.Category
	aiWeight     *decimal.Decimal
	manualReview bool
	beforeType   string
	afterType    string
}

// validateSubmission re-checks every stage rule. All failures are collected
// so the client can show them together.
func (s *Service) validateSubmission(form transport.CreatePickupForm) (submission, []apperr.FieldError) {
	var (
		out  submission
		errs []apperr.FieldError
	)
	fail := func(field, msg string) {
		errs = append(errs, apperr.FieldError{Field: field, Message: msg})
	}

	if form.Before == nil || len(form.Before.Data) == 0 {
		fail("before", "a before photo is required")
	} else if mime, err := storage.ValidateImage(form.Before.Data, storage.DefaultMaxPhotoSize); err != nil {
		fail("before", err.Error())
	} else {
		out.beforeType = mime
	}
	if form.After != nil && len(form.After.Data) > 0 {
		if mime, err := storage.ValidateImage(form.After.Data, storage.DefaultMaxPhotoSize); err != nil {
			fail("after", err.Error())
		} else {
			out.afterType = mime
		}
	}

	if strings.TrimSpace(form.Category) == "" {
		fail("category", "is required")
	} else if category, ok := domain.ParseCategory(form.Category); !ok {
		fail("category", "must be one of PET, HDPE, LDPE, PP, PS, Other")
	} else {
		out.category = category
	}

	rawWeight := strings.TrimSpace(form.EstimatedWeight)
	if rawWeight == "" {
		fail("estimatedWeight", "is required")
	} else if weight, err := cast.ToFloat64E(rawWeight); err != nil {
		fail("estimatedWeight", "must be a number")
	} else if rounded, problem := roundWeight(weight); problem != "" {
		fail("estimatedWeight", problem)
	} else {
		out.weight = rounded
	}

	out.notes = sanitize.Body(form.Notes)
	if len(out.notes) > maxNotesLength {
		fail("notes", fmt.Sprintf("must be at most %d characters", maxNotesLength))
	}

	out.location.Address = sanitize.Text(form.Address)
	if out.location.Address == "" {
		fail("address", "is required")
	} else if len(out.location.Address) > maxAddressLength {
		fail("address", fmt.Sprintf("must be at most %d characters", maxAddressLength))
	}
	lat, latErr := cast.ToFloat64E(strings.TrimSpace(form.Lat))
	lng, lngErr := cast.ToFloat64E(strings.TrimSpace(form.Lng))
	switch {
	case strings.TrimSpace(form.Lat) == "" || latErr != nil:
		fail("lat", "is required")
	case strings.TrimSpace(form.Lng) == "" || lngErr != nil:
		fail("lng", "is required")
	case !geo.ValidCoordinates(lat, lng):
		fail("location", "coordinates are out of range")
	default:
		out.location.Lat, out.location.Lng = lat, lng
	}

	if raw := strings.TrimSpace(form.AIConfidence); raw != "" {
		if confidence, err := cast.ToFloat64E(raw); err != nil || confidence < 0 || confidence > 1 {
			fail("aiConfidence", "must be between 0 and 1")
		} else {
			out.aiConfidence = &confidence
		}
	}
	if raw := strings.TrimSpace(form.AICategory); raw != "" {
		if category, ok := domain.ParseCategory(raw); ok {
			out.aiCategory = &category
		}
	}
	if raw := strings.TrimSpace(form.AIWeight); raw != "" {
		if weight, err := cast.ToFloat64E(raw); err != nil || weight < 0 {
			fail("aiWeight", "must be zero or more")
		} else {
			w := decimal.NewFromFloat(weight).Round(3)
			out.aiWeight = &w
		}
	}
	if raw := strings.TrimSpace(form.ManualReviewRequired); raw != "" {
		flag, err := cast.ToBoolE(raw)
		if err != nil {
			fail("manualReviewRequired", "must be true or false")
		}
		out.manualReview = flag
	}

	// Without an AI read a human has to confirm the claim.
	threshold := s.policy.Classification.ManualReviewThreshold
	if out.aiConfidence == nil || *out.aiConfidence < threshold {
		out.manualReview = true
	}

	return out, errs
}

// Submit validates the form, stores the photos and creates the pickup. Photos
// uploaded for a submission that fails to persist are deleted again.
func (s *Service) Submit(ctx context.Context, identity httpkit.Identity, form transport.CreatePickupForm) (transport.PickupResponse, error) {
	if !identity.HasRole(httpkit.RoleCollector) {
		return transport.PickupResponse{}, apperr.Forbidden("only collectors can submit pickups")
	}

	sub, fieldErrs := s.validateSubmission(form)
	if len(fieldErrs) > 0 {
		return transport.PickupResponse{}, apperr.Fields(fieldErrs)
	}

	namespace := fmt.Sprintf("pickups/%s", identity.UserID())
	var uploaded []string
	cleanup := func() {
		bg := context.WithoutCancel(ctx)
		for _, id := range uploaded {
			if err := s.blobs.Delete(bg, id); err != nil && s.log != nil {
				s.log.Error("failed to delete orphaned pickup photo", "blobId", id, "error", err)
			}
		}
	}

	before, err := s.storePhoto(ctx, namespace, *form.Before, sub.beforeType)
	if err != nil {
		return transport.PickupResponse{}, err
	}
	uploaded = append(uploaded, before.BlobID)

	var after *domain.Photo
	if sub.afterType != "" {
		photo, err := s.storePhoto(ctx, namespace, *form.After, sub.afterType)
		if err != nil {
			cleanup()
			return transport.PickupResponse{}, err
		}
		uploaded = append(uploaded, photo.BlobID)
		after = &photo
	}

	pickup := domain.Pickup{
		ID:              uuid.New(),
		CollectorID:     identity.UserID(),
		Category:        sub.category,
		EstimatedWeight: sub.weight,
		CommittedWeight: decimal.Zero,
		Status:          domain.StatusPending,
		Location:        sub.location,
		Photos:          domain.Photos{Before: before, After: after},
		Verification: domain.Verification{
			AIConfidence: sub.aiConfidence,
			AICategory:   sub.aiCategory,
			AIWeight:     sub.aiWeight,
			ManualReview: sub.manualReview,
		},
		Notes: sub.notes,
	}

	created, err := s.repo.Create(ctx, pickup)
	if err != nil {
		cleanup()
		return transport.PickupResponse{}, err
	}

	s.metrics.ObserveTransition("pickup", string(domain.StatusPending))
	s.publish(ctx, events.PickupCreated{
		BaseEvent:    events.NewBaseEvent(),
		PickupID:     created.ID,
		CollectorID:  created.CollectorID,
		Category:     string(created.Category),
		ManualReview: created.Verification.ManualReview,
	})
	return transport.ToPickupResponse(created), nil
}

func (s *Service) storePhoto(ctx context.Context, namespace string, upload transport.Upload, contentType string) (domain.Photo, error) {
	blob, err := s.blobs.Upload(ctx, namespace, upload.FileName, contentType, upload.Data)
	if err != nil {
		return domain.Photo{}, fmt.Errorf("upload pickup photo: %w", err)
	}
	meta := storage.InspectPhoto(upload.Data)
	return domain.Photo{
		BlobID:      blob.ID,
		URL:         blob.URL,
		Width:       blob.Width,
		Height:      blob.Height,
		Format:      blob.Format,
		Bytes:       blob.Bytes,
		ContentHash: meta.ContentHash,
		CapturedAt:  meta.CapturedAt,
		GPSLat:      meta.GPSLat,
		GPSLng:      meta.GPSLng,
	}, nil
}

// Update applies owner edits while the pickup is pending.
func (s *Service) Update(ctx context.Context, identity httpkit.Identity, id uuid.UUID, req transport.UpdatePickupRequest) (transport.PickupResponse, error) {
	if !identity.HasRole(httpkit.RoleCollector) {
		return transport.PickupResponse{}, apperr.Forbidden("only the owning collector can edit a pickup")
	}

	params := repository.UpdateDetailsParams{ID: id, CollectorID: identity.UserID()}
	if req.Category != nil {
		category, ok := domain.ParseCategory(*req.Category)
		if !ok {
			return transport.PickupResponse{}, apperr.Fields([]apperr.FieldError{{Field: "category", Message: "is invalid"}})
		}
		params.Category = &category
	}
	if req.EstimatedWeight != nil {
		weight, problem := roundWeight(*req.EstimatedWeight)
		if problem != "" {
			return transport.PickupResponse{}, apperr.Fields([]apperr.FieldError{{Field: "estimatedWeight", Message: problem}})
		}
		current, err := s.load(ctx, identity, id)
		if err != nil {
			return transport.PickupResponse{}, err
		}
		if current.Status == domain.StatusPending && !current.CoversCommitted(weight) {
			return transport.PickupResponse{}, repository.BelowCommitted("estimatedWeight", weight, current.CommittedWeight)
		}
		params.EstimatedWeight = &weight
	}
	if req.Notes != nil {
		notes := sanitize.Body(*req.Notes)
		params.Notes = &notes
	}
	if req.Lat != nil || req.Lng != nil || req.Address != nil {
		if req.Lat == nil || req.Lng == nil || req.Address == nil || sanitize.Text(*req.Address) == "" {
			return transport.PickupResponse{}, apperr.Fields([]apperr.FieldError{{Field: "location", Message: "lat, lng and address must be sent together"}})
		}
		params.Location = &domain.Location{Lat: *req.Lat, Lng: *req.Lng, Address: sanitize.Text(*req.Address)}
	}

	updated, err := s.repo.UpdateDetails(ctx, params)
	if err != nil {
		return transport.PickupResponse{}, err
	}
	return transport.ToPickupResponse(updated), nil
}

// ReplaceAfterPhoto stores a new after photo for the owner's pickup and
// removes the replaced blob.
func (s *Service) ReplaceAfterPhoto(ctx context.Context, identity httpkit.Identity, id uuid.UUID, upload transport.Upload) (transport.PickupResponse, error) {
	if !identity.HasRole(httpkit.RoleCollector) {
		return transport.PickupResponse{}, apperr.Forbidden("only the owning collector can add photos")
	}
	mime, err := storage.ValidateImage(upload.Data, storage.DefaultMaxPhotoSize)
	if err != nil {
		return transport.PickupResponse{}, apperr.Fields([]apperr.FieldError{{Field: "after", Message: err.Error()}})
	}
	if _, err := s.load(ctx, identity, id); err != nil {
		return transport.PickupResponse{}, err
	}

	photo, err := s.storePhoto(ctx, fmt.Sprintf("pickups/%s", identity.UserID()), upload, mime)
	if err != nil {
		return transport.PickupResponse{}, err
	}

	previous, err := s.repo.SetAfterPhoto(ctx, id, identity.UserID(), photo)
	if err != nil {
		_ = s.blobs.Delete(context.WithoutCancel(ctx), photo.BlobID)
		return transport.PickupResponse{}, err
	}
	if previous != nil && previous.BlobID != "" {
		if err := s.blobs.Delete(ctx, previous.BlobID); err != nil && s.log != nil {
			s.log.Warn("failed to delete replaced after photo", "blobId", previous.BlobID, "error", err)
		}
	}
	return s.Get(ctx, identity, id)
}
