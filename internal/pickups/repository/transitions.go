package repository

import (
	"context"
	"errors"
	"fmt"

	"ekomarket_backend/internal/pickups/domain"
	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	// transitionQuery is a check-and-set on the current status. Zero rows
	// means another writer moved the pickup first or the new weight would no
	// longer cover committed orders.
	transitionQuery = `
		UPDATE pickups SET
			status = $3,
			actual_weight = COALESCE($4::numeric, actual_weight),
			category = COALESCE($5, category),
			verified_by = COALESCE($6, verified_by),
			verified_at = CASE WHEN $3 = 'verified' THEN now() ELSE verified_at END,
			rejection_reason = COALESCE($7, rejection_reason),
			ai_confidence = COALESCE($8, ai_confidence),
			ai_category = COALESCE($9, ai_category),
			ai_weight = COALESCE($10::numeric, ai_weight),
			updated_at = now()
		WHERE id = $1 AND status = $2
		  AND COALESCE($4::numeric, actual_weight, estimated_weight) >= committed_weight
		RETURNING id`

	selectStatusQuery = `SELECT status, committed_weight::text FROM pickups WHERE id = $1`

	// reserveQuery is the atomic decrement-if-sufficient on available weight.
	reserveQuery = `
		UPDATE pickups SET
			committed_weight = committed_weight + $2::numeric,
			updated_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'verified')
		  AND COALESCE(actual_weight, estimated_weight) - committed_weight >= $2::numeric
		RETURNING id`

	releaseQuery = `
		UPDATE pickups SET
			committed_weight = GREATEST(committed_weight - $2::numeric, 0),
			updated_at = now()
		WHERE id = $1`
)

// Transition runs TransitionTx in its own transaction.
func (r *Repo) Transition(ctx context.Context, params TransitionParams) (domain.Pickup, error) {
	var out domain.Pickup
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		p, err := r.TransitionTx(ctx, tx, params)
		out = p
		return err
	})
	return out, err
}

// TransitionTx applies the check-and-set update and appends exactly one
// history entry. A rejected move writes nothing and reports the current state.
func (r *Repo) TransitionTx(ctx context.Context, tx pgx.Tx, params TransitionParams) (domain.Pickup, error) {
	if !domain.CanTransitionPickup(params.From, params.To) {
		return domain.Pickup{}, apperr.InvalidTransition("pickup", string(params.From), string(params.To))
	}

	var id uuid.UUID
	err := tx.QueryRow(ctx, transitionQuery,
		params.PickupID, string(params.From), string(params.To),
		decimalArg(params.ActualWeight), categoryArg(params.Category), params.VerifiedBy,
		params.RejectionReason, params.AIConfidence, categoryArg(params.AICategory), decimalArg(params.AIWeight),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Pickup{}, transitionConflict(ctx, tx, params)
	}
	if err != nil {
		return domain.Pickup{}, fmt.Errorf("transition pickup: %w", err)
	}

	if _, err := insertHistory(ctx, tx, params.PickupID, params.To, params.Notes, params.ChangedBy); err != nil {
		return domain.Pickup{}, err
	}
	return getByID(ctx, tx, params.PickupID)
}

func transitionConflict(ctx context.Context, q db.Querier, params TransitionParams) error {
	var current, committed string
	err := q.QueryRow(ctx, selectStatusQuery, params.PickupID).Scan(&current, &committed)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(pickupNotFoundMsg)
	}
	if err != nil {
		return fmt.Errorf("read pickup status: %w", err)
	}
	if current == string(params.From) && params.ActualWeight != nil {
		committedWeight, err := decimal.NewFromString(committed)
		if err != nil {
			return fmt.Errorf("parse committed weight %q: %w", committed, err)
		}
		return BelowCommitted("actualWeight", *params.ActualWeight, committedWeight)
	}
	return apperr.InvalidTransition("pickup", current, string(params.To))
}

// BelowCommitted reports a weight that would leave committed orders
// uncovered.
func BelowCommitted(field string, weight, committed decimal.Decimal) error {
	return apperr.InsufficientInventory(
		fmt.Sprintf("%s %s kg is below the %s kg already committed to orders", field, weight.String(), committed.String())).
		WithDetails([]apperr.FieldError{{Field: field, Message: fmt.Sprintf("must be at least %s", committed.String())}})
}

// Reserve commits quantity against the pickup's available weight. It fails
// with InsufficientInventory when the remaining weight is too small.
func (r *Repo) Reserve(ctx context.Context, q db.Querier, pickupID uuid.UUID, quantity decimal.Decimal) (domain.Pickup, error) {
	var id uuid.UUID
	err := q.QueryRow(ctx, reserveQuery, pickupID, quantity.String()).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := getByID(ctx, q, pickupID)
		if getErr != nil {
			return domain.Pickup{}, getErr
		}
		if !current.Status.IsOrderable() {
			return domain.Pickup{}, apperr.Conflict(fmt.Sprintf("pickup is %s and cannot be ordered", current.Status))
		}
		return domain.Pickup{}, apperr.InsufficientInventory(
			fmt.Sprintf("requested %s kg but only %s kg is available", quantity.String(), current.AvailableWeight().String()))
	}
	if err != nil {
		return domain.Pickup{}, fmt.Errorf("reserve pickup weight: %w", err)
	}
	return getByID(ctx, q, pickupID)
}

// Release returns quantity to the pickup's available weight.
func (r *Repo) Release(ctx context.Context, q db.Querier, pickupID uuid.UUID, quantity decimal.Decimal) error {
	tag, err := q.Exec(ctx, releaseQuery, pickupID, quantity.String())
	if err != nil {
		return fmt.Errorf("release pickup weight: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(pickupNotFoundMsg)
	}
	return nil
}
