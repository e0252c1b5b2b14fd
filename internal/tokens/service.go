package tokens

import (
	"context"
	"fmt"

	"ekomarket_backend/internal/events"
	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/httpkit"
	"ekomarket_backend/platform/logger"
	"ekomarket_backend/platform/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const defaultLedgerLimit = 50

// Service owns the EkoToken ledger.
type Service struct {
	repo    Repository
	bus     events.Bus
	metrics *metrics.Registry
	log     *logger.Logger
}

// NewService creates the ledger service.
func NewService(repo Repository, bus events.Bus, m *metrics.Registry, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, metrics: m, log: log}
}

// CreditPickupReward appends the reward for a paid pickup inside the payment
// transaction. The ledger enforces one reward per pickup.
func (s *Service) CreditPickupReward(ctx context.Context, tx pgx.Tx, collectorID, pickupID uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}
	pid := pickupID
	entry, err := s.repo.Append(ctx, tx, NewEntry{
		CollectorID: collectorID,
		Amount:      amount,
		Reason:      ReasonPickupReward,
		PickupID:    &pid,
	})
	if err != nil {
		return fmt.Errorf("credit pickup reward: %w", err)
	}
	s.metrics.ObserveTokenEntry(string(ReasonPickupReward))
	s.log.Info("tokens credited", "collectorId", collectorID, "pickupId", pickupID, "amount", amount.String(), "balanceAfter", entry.BalanceAfter.String())
	return nil
}

// Balance returns the running balance of the caller.
func (s *Service) Balance(ctx context.Context, identity httpkit.Identity) (BalanceResponse, error) {
	if !identity.HasRole(httpkit.RoleCollector) {
		return BalanceResponse{}, apperr.Forbidden("only collectors hold EkoTokens")
	}
	last, err := s.repo.Latest(ctx, identity.UserID())
	if err != nil {
		return BalanceResponse{}, err
	}
	resp := BalanceResponse{CollectorID: identity.UserID(), Balance: decimal.Zero}
	if last != nil {
		resp.Balance = last.BalanceAfter
		resp.LastSeq = last.Seq
		resp.UpdatedAt = &last.CreatedAt
	}
	return resp, nil
}

// Ledger pages through the caller's entries.
func (s *Service) Ledger(ctx context.Context, identity httpkit.Identity, req ListLedgerRequest) (LedgerResponse, error) {
	if !identity.HasRole(httpkit.RoleCollector) {
		return LedgerResponse{}, apperr.Forbidden("only collectors hold EkoTokens")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLedgerLimit
	}
	items, err := s.repo.List(ctx, identity.UserID(), limit, req.Offset)
	if err != nil {
		return LedgerResponse{}, err
	}
	return LedgerResponse{Items: items, Limit: limit, Offset: req.Offset}, nil
}

// Redeem spends tokens. Spending more than the balance is refused with
// insufficient_balance.
func (s *Service) Redeem(ctx context.Context, identity httpkit.Identity, req RedeemRequest) (Entry, error) {
	if !identity.HasRole(httpkit.RoleCollector) {
		return Entry{}, apperr.Forbidden("only collectors can redeem EkoTokens")
	}
	amount := decimal.NewFromFloat(req.Amount).Round(2)
	if !amount.IsPositive() {
		return Entry{}, apperr.Fields([]apperr.FieldError{{Field: "amount", Message: "must be positive"}})
	}

	entry, err := s.repo.Record(ctx, NewEntry{
		CollectorID: identity.UserID(),
		Amount:      amount.Neg(),
		Reason:      ReasonRedemption,
		Notes:       req.Notes,
	})
	if err != nil {
		return Entry{}, err
	}

	s.metrics.ObserveTokenEntry(string(ReasonRedemption))
	if s.bus != nil {
		s.bus.Publish(ctx, events.TokensCredited{
			BaseEvent:    events.NewBaseEvent(),
			CollectorID:  entry.CollectorID,
			Amount:       entry.Amount.String(),
			BalanceAfter: entry.BalanceAfter.String(),
			Reason:       string(entry.Reason),
		})
	}
	return entry, nil
}

// Reconcile checks that the latest balance equals the sum of all amounts.
func (s *Service) Reconcile(ctx context.Context, collectorID uuid.UUID) (ReconcileResult, error) {
	sum, count, err := s.repo.Sum(ctx, collectorID)
	if err != nil {
		return ReconcileResult{}, err
	}
	last, err := s.repo.Latest(ctx, collectorID)
	if err != nil {
		return ReconcileResult{}, err
	}

	res := ReconcileResult{CollectorID: collectorID, Sum: sum, Entries: count, LatestBalance: decimal.Zero}
	if last != nil {
		res.LatestBalance = last.BalanceAfter
	}
	res.Consistent = res.LatestBalance.Equal(sum) && (last == nil || last.Seq == count)
	if !res.Consistent {
		s.log.Warn("token ledger out of balance", "collectorId", collectorID, "latest", res.LatestBalance.String(), "sum", sum.String())
	}
	return res, nil
}

// ReconcileAll reconciles every collector that has a ledger.
func (s *Service) ReconcileAll(ctx context.Context) ([]ReconcileResult, error) {
	collectors, err := s.repo.Collectors(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]ReconcileResult, 0, len(collectors))
	for _, id := range collectors {
		res, err := s.Reconcile(ctx, id)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}
