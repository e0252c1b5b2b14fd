package service

import (
	"context"
	"fmt"

	"ekomarket_backend/internal/classification"
	"ekomarket_backend/internal/events"
	"ekomarket_backend/internal/pickups/domain"
	"ekomarket_backend/internal/pickups/repository"
	"ekomarket_backend/internal/pickups/transport"
	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/config"
	"ekomarket_backend/platform/httpkit"
	"ekomarket_backend/platform/sanitize"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// AI verification outcomes.
const (
	OutcomeVerified     = "verified"
	OutcomeRejected     = "rejected"
	OutcomeManualReview = "manual_review"
)

func requireVerifier(identity httpkit.Identity) error {
	if identity.HasRole(httpkit.RoleBrand) || identity.HasRole(httpkit.RoleAdmin) {
		return nil
	}
	return apperr.Forbidden("only brands and admins can verify pickups")
}

// Verify moves a pending pickup to verified with the measured weight.
func (s *Service) Verify(ctx context.Context, identity httpkit.Identity, id uuid.UUID, req transport.VerifyPickupRequest) (transport.PickupResponse, error) {
	if err := requireVerifier(identity); err != nil {
		return transport.PickupResponse{}, err
	}
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.PickupResponse{}, err
	}
	if !domain.CanTransitionPickup(current.Status, domain.StatusVerified) {
		return transport.PickupResponse{}, apperr.InvalidTransition("pickup", string(current.Status), string(domain.StatusVerified))
	}

	weight, problem := roundWeight(req.ActualWeight)
	if problem != "" {
		return transport.PickupResponse{}, apperr.Fields([]apperr.FieldError{{Field: "actualWeight", Message: problem}})
	}
	if !current.CoversCommitted(weight) {
		return transport.PickupResponse{}, repository.BelowCommitted("actualWeight", weight, current.CommittedWeight)
	}
	actor := identity.UserID()
	params := repository.TransitionParams{
		PickupID:     id,
		From:         domain.StatusPending,
		To:           domain.StatusVerified,
		ChangedBy:    &actor,
		Notes:        sanitize.Body(req.Notes),
		ActualWeight: &weight,
		VerifiedBy:   &actor,
	}
	if req.Category != nil {
		category, ok := domain.ParseCategory(*req.Category)
		if !ok {
			return transport.PickupResponse{}, apperr.Fields([]apperr.FieldError{{Field: "category", Message: "is invalid"}})
		}
		params.Category = &category
	}

	verified, err := s.repo.Transition(ctx, params)
	if err != nil {
		return transport.PickupResponse{}, err
	}
	s.logTransition(id, domain.StatusPending, domain.StatusVerified, identity.Role())
	s.publish(ctx, events.PickupVerified{
		BaseEvent:   events.NewBaseEvent(),
		PickupID:    id,
		CollectorID: verified.CollectorID,
		VerifiedBy:  actor,
	})
	return transport.ToPickupResponse(verified), nil
}

// Reject moves a pending pickup to rejected. A reason is required.
func (s *Service) Reject(ctx context.Context, identity httpkit.Identity, id uuid.UUID, req transport.RejectPickupRequest) (transport.PickupResponse, error) {
	if err := requireVerifier(identity); err != nil {
		return transport.PickupResponse{}, err
	}
	reason := sanitize.Text(req.Reason)
	if reason == "" {
		return transport.PickupResponse{}, apperr.Fields([]apperr.FieldError{{Field: "reason", Message: "is required"}})
	}
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.PickupResponse{}, err
	}
	if !domain.CanTransitionPickup(current.Status, domain.StatusRejected) {
		return transport.PickupResponse{}, apperr.InvalidTransition("pickup", string(current.Status), string(domain.StatusRejected))
	}

	actor := identity.UserID()
	rejected, err := s.repo.Transition(ctx, repository.TransitionParams{
		PickupID:        id,
		From:            domain.StatusPending,
		To:              domain.StatusRejected,
		ChangedBy:       &actor,
		Notes:           sanitize.Body(req.Notes),
		RejectionReason: &reason,
	})
	if err != nil {
		return transport.PickupResponse{}, err
	}
	s.logTransition(id, domain.StatusPending, domain.StatusRejected, identity.Role())
	s.publish(ctx, events.PickupRejected{
		BaseEvent:   events.NewBaseEvent(),
		PickupID:    id,
		CollectorID: rejected.CollectorID,
		Reason:      reason,
	})
	return transport.ToPickupResponse(rejected), nil
}

// aiDecision is the policy verdict for one classification of a pickup.
type aiDecision struct {
	outcome      string
	actualWeight decimal.Decimal
	reason       string
}

// decideVerification applies the auto-verify and auto-reject thresholds.
// Anything in between is left for a human, as is an auto-verify weight that
// would not cover the weight already committed to orders.
func decideVerification(p domain.Pickup, result classification.Result, policy config.ClassificationPolicy) aiDecision {
	if result.Fallback || result.DetectedCategory == nil {
		return aiDecision{outcome: OutcomeManualReview}
	}

	detected := *result.DetectedCategory
	switch {
	case detected == p.Category && result.Confidence >= policy.AutoVerifyThreshold:
		weight := p.EstimatedWeight
		if result.EstimatedWeight > 0 {
			weight = decimal.NewFromFloat(result.EstimatedWeight).Round(3)
		}
		if !weight.IsPositive() || !p.CoversCommitted(weight) {
			return aiDecision{outcome: OutcomeManualReview}
		}
		return aiDecision{outcome: OutcomeVerified, actualWeight: weight}
	case detected != p.Category && result.Confidence >= policy.AutoRejectThreshold:
		return aiDecision{
			outcome: OutcomeRejected,
			reason:  fmt.Sprintf("category mismatch: submitted %s, detected %s", p.Category, detected),
		}
	default:
		return aiDecision{outcome: OutcomeManualReview}
	}
}

// AIVerify classifies the stored before photo and applies the verification
// policy. Undecided results keep the pickup pending with manual review set.
func (s *Service) AIVerify(ctx context.Context, identity httpkit.Identity, id uuid.UUID) (transport.AIVerifyResponse, error) {
	if err := requireVerifier(identity); err != nil {
		return transport.AIVerifyResponse{}, err
	}
	pickup, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.AIVerifyResponse{}, err
	}
	if pickup.Status != domain.StatusPending {
		return transport.AIVerifyResponse{}, apperr.InvalidTransition("pickup", string(pickup.Status), string(domain.StatusVerified))
	}

	data, err := s.blobs.Download(ctx, pickup.Photos.Before.BlobID)
	if err != nil {
		return transport.AIVerifyResponse{}, fmt.Errorf("download before photo: %w", err)
	}
	weightHint := pickup.EstimatedWeight.InexactFloat64()
	category := pickup.Category
	result, err := s.classifier.Classify(ctx, data, "", &classification.Hint{Category: &category, Weight: &weightHint})
	if err != nil {
		return transport.AIVerifyResponse{}, err
	}

	decision := decideVerification(pickup, result, s.policy.Classification)
	confidence := result.Confidence
	var aiWeight *decimal.Decimal
	if result.EstimatedWeight > 0 {
		w := decimal.NewFromFloat(result.EstimatedWeight).Round(3)
		aiWeight = &w
	}
	actor := identity.UserID()

	var updated domain.Pickup
	switch decision.outcome {
	case OutcomeVerified:
		updated, err = s.repo.Transition(ctx, repository.TransitionParams{
			PickupID:     id,
			From:         domain.StatusPending,
			To:           domain.StatusVerified,
			ChangedBy:    &actor,
			Notes:        fmt.Sprintf("verified automatically (confidence %.2f)", confidence),
			ActualWeight: &decision.actualWeight,
			VerifiedBy:   &actor,
			AIConfidence: &confidence,
			AICategory:   result.DetectedCategory,
			AIWeight:     aiWeight,
		})
		if err != nil {
			return transport.AIVerifyResponse{}, err
		}
		s.logTransition(id, domain.StatusPending, domain.StatusVerified, identity.Role())
		s.publish(ctx, events.PickupVerified{BaseEvent: events.NewBaseEvent(), PickupID: id, CollectorID: updated.CollectorID, VerifiedBy: actor, ByAI: true})
	case OutcomeRejected:
		updated, err = s.repo.Transition(ctx, repository.TransitionParams{
			PickupID:        id,
			From:            domain.StatusPending,
			To:              domain.StatusRejected,
			ChangedBy:       &actor,
			Notes:           fmt.Sprintf("rejected automatically (confidence %.2f)", confidence),
			RejectionReason: &decision.reason,
			AIConfidence:    &confidence,
			AICategory:      result.DetectedCategory,
			AIWeight:        aiWeight,
		})
		if err != nil {
			return transport.AIVerifyResponse{}, err
		}
		s.logTransition(id, domain.StatusPending, domain.StatusRejected, identity.Role())
		s.publish(ctx, events.PickupRejected{BaseEvent: events.NewBaseEvent(), PickupID: id, CollectorID: updated.CollectorID, Reason: decision.reason})
	default:
		if err := s.repo.FlagManualReview(ctx, repository.ManualReviewParams{
			ID:           id,
			AIConfidence: confidence,
			AICategory:   result.DetectedCategory,
			AIWeight:     aiWeight,
		}); err != nil {
			return transport.AIVerifyResponse{}, err
		}
		if updated, err = s.repo.GetByID(ctx, id); err != nil {
			return transport.AIVerifyResponse{}, err
		}
	}

	return transport.AIVerifyResponse{
		Outcome:        decision.outcome,
		Pickup:         transport.ToPickupResponse(updated),
		Classification: result,
	}, nil
}

// MarkPaid moves a verified pickup to paid inside the caller's transaction
// and credits the collector's token reward in the same transaction. The
// returned event must be published once the transaction commits.
func (s *Service) MarkPaid(ctx context.Context, tx pgx.Tx, pickupID, transactionID uuid.UUID) (events.PickupPaid, error) {
	paid, err := s.repo.TransitionTx(ctx, tx, repository.TransitionParams{
		PickupID: pickupID,
		From:     domain.StatusVerified,
		To:       domain.StatusPaid,
		Notes:    fmt.Sprintf("payment %s completed", transactionID),
	})
	if err != nil {
		return events.PickupPaid{}, err
	}

	reward := RewardFor(paid, s.policy)
	if reward.IsPositive() && s.ledger != nil {
		if err := s.ledger.CreditPickupReward(ctx, tx, paid.CollectorID, paid.ID, reward); err != nil {
			return events.PickupPaid{}, fmt.Errorf("credit pickup reward: %w", err)
		}
	}

	s.logTransition(pickupID, domain.StatusVerified, domain.StatusPaid, "system")
	return events.PickupPaid{
		BaseEvent:     events.NewBaseEvent(),
		PickupID:      paid.ID,
		CollectorID:   paid.CollectorID,
		TransactionID: transactionID,
		RewardTokens:  reward.String(),
	}, nil
}

// RewardFor is the token reward of a paid pickup: verified weight times the
// category rate, rounded to cents.
func RewardFor(p domain.Pickup, policy config.Policy) decimal.Decimal {
	rate := decimal.NewFromFloat(policy.RewardRate(string(p.Category)))
	return p.BaseWeight().Mul(rate).Round(2)
}
