package transactions

import (
	"context"
	"fmt"
	"time"

	"ekomarket_backend/internal/events"
	orderdomain "ekomarket_backend/internal/orders/domain"
	pickupdomain "ekomarket_backend/internal/pickups/domain"
	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/httpkit"
	"ekomarket_backend/platform/logger"
	"ekomarket_backend/platform/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Service records payment attempts and applies completed ones.
type Service struct {
	repo     Repository
	pickups  Pickups
	payments PickupPayments
	orders   Orders
	bus      events.Bus
	metrics  *metrics.Registry
	log      *logger.Logger
}

// Deps groups the collaborators of the transaction service.
type Deps struct {
	Repo     Repository
	Pickups  Pickups
	Payments PickupPayments
	Orders   Orders
	Bus      events.Bus
	Metrics  *metrics.Registry
	Log      *logger.Logger
}

// NewService creates the transaction service.
func NewService(deps Deps) *Service {
	return &Service{
		repo:     deps.Repo,
		pickups:  deps.Pickups,
		payments: deps.Payments,
		orders:   deps.Orders,
		bus:      deps.Bus,
		metrics:  deps.Metrics,
		log:      deps.Log,
	}
}

// Create opens a pending payment attempt for an order the brand owns, or for
// a verified pickup it holds an active order on. Admins may pay anything.
func (s *Service) Create(ctx context.Context, identity httpkit.Identity, req CreateTransactionRequest) (Transaction, error) {
	isAdmin := identity.HasRole(httpkit.RoleAdmin)
	if !isAdmin && !identity.HasRole(httpkit.RoleBrand) {
		return Transaction{}, apperr.Forbidden("only brands can create transactions")
	}
	if (req.OrderID == nil) == (req.PickupID == nil) {
		return Transaction{}, apperr.Fields([]apperr.FieldError{{Field: "orderId", Message: "exactly one of orderId and pickupId is required"}})
	}

	var amount *decimal.Decimal
	if req.Amount != nil {
		rounded := req.Amount.Round(2)
		if !rounded.IsPositive() {
			return Transaction{}, apperr.Fields([]apperr.FieldError{{Field: "amount", Message: "must be greater than 0"}})
		}
		amount = &rounded
	}

	t := Transaction{
		ID:            uuid.New(),
		TransactionID: req.TransactionID,
		PaymentMethod: req.PaymentMethod,
		Status:        StatusPending,
		Notes:         req.Notes,
	}
	if t.TransactionID == "" {
		t.TransactionID = NewReference(time.Now())
	}

	var err error
	if req.OrderID != nil {
		err = s.forOrder(ctx, identity, isAdmin, *req.OrderID, amount, &t)
	} else {
		err = s.forPickup(ctx, identity, isAdmin, *req.PickupID, amount, &t)
	}
	if err != nil {
		return Transaction{}, err
	}

	created, err := s.repo.Create(ctx, t)
	if err != nil {
		return Transaction{}, err
	}
	s.logTransition(created.ID, "", StatusPending, identity.Role())
	return created, nil
}

func (s *Service) forOrder(ctx context.Context, identity httpkit.Identity, isAdmin bool, rawID string, amount *decimal.Decimal, t *Transaction) error {
	orderID, err := uuid.Parse(rawID)
	if err != nil {
		return apperr.Fields([]apperr.FieldError{{Field: "orderId", Message: "is invalid"}})
	}
	order, err := s.orders.Lookup(ctx, orderID)
	if err != nil {
		return err
	}
	if !isAdmin && order.BrandID != identity.UserID() {
		return apperr.NotFound("order not found")
	}
	if order.Status == orderdomain.StatusCancelled {
		return apperr.Conflict("order is cancelled")
	}

	t.OrderID = &order.ID
	t.PayerID = order.BrandID
	t.PayeeID = order.CollectorID
	t.Amount = order.TotalAmount
	if amount != nil {
		t.Amount = *amount
	}
	return nil
}

func (s *Service) forPickup(ctx context.Context, identity httpkit.Identity, isAdmin bool, rawID string, amount *decimal.Decimal, t *Transaction) error {
	pickupID, err := uuid.Parse(rawID)
	if err != nil {
		return apperr.Fields([]apperr.FieldError{{Field: "pickupId", Message: "is invalid"}})
	}
	if amount == nil {
		return apperr.Fields([]apperr.FieldError{{Field: "amount", Message: "is required for pickup payments"}})
	}
	pickup, err := s.pickups.GetByID(ctx, pickupID)
	if err != nil {
		return err
	}
	if pickup.Status != pickupdomain.StatusVerified {
		return apperr.Conflict(fmt.Sprintf("pickup is %s; only verified pickups can be paid", pickup.Status))
	}
	if !isAdmin {
		ordered, err := s.orders.HasActiveOrder(ctx, identity.UserID(), pickupID)
		if err != nil {
			return err
		}
		if !ordered {
			return apperr.Forbidden("no active order on this pickup")
		}
	}

	t.PickupID = &pickup.ID
	t.PayerID = identity.UserID()
	t.PayeeID = pickup.CollectorID
	t.Amount = *amount
	return nil
}

// Get returns a transaction visible to the caller.
func (s *Service) Get(ctx context.Context, identity httpkit.Identity, id uuid.UUID) (Transaction, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if !identity.HasRole(httpkit.RoleAdmin) && !t.IsParticipant(identity.UserID()) {
		return Transaction{}, apperr.NotFound(transactionNotFoundMsg)
	}
	return t, nil
}

// List returns what the caller paid (brand) or received (collector).
func (s *Service) List(ctx context.Context, identity httpkit.Identity, req ListTransactionsRequest) (ListResponse, error) {
	params := ListParams{Page: req.Page, PageSize: req.PageSize}
	id := identity.UserID()
	switch identity.Role() {
	case httpkit.RoleBrand:
		params.PayerID = &id
	case httpkit.RoleCollector:
		params.PayeeID = &id
	}
	if req.Status != "" {
		status, ok := ParseStatus(req.Status)
		if !ok {
			return ListResponse{}, apperr.Fields([]apperr.FieldError{{Field: "status", Message: "is invalid"}})
		}
		params.Status = &status
	}

	items, total, err := s.repo.List(ctx, params)
	if err != nil {
		return ListResponse{}, err
	}
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = 20
	}
	return ListResponse{Items: items, Total: total, Page: params.Page, PageSize: params.PageSize}, nil
}

// UpdateStatus moves the attempt. Completion marks the pickup paid or the
// order's payment paid in the same database transaction; events are
// published only after commit.
func (s *Service) UpdateStatus(ctx context.Context, identity httpkit.Identity, id uuid.UUID, req UpdateTransactionRequest) (Transaction, error) {
	to, ok := ParseStatus(req.Status)
	if !ok {
		return Transaction{}, apperr.Fields([]apperr.FieldError{{Field: "status", Message: "is invalid"}})
	}

	current, err := s.Get(ctx, identity, id)
	if err != nil {
		return Transaction{}, err
	}
	if !identity.HasRole(httpkit.RoleAdmin) && current.PayerID != identity.UserID() {
		return Transaction{}, apperr.Forbidden("only the payer can update a transaction")
	}
	if !CanTransition(current.Status, to) {
		return Transaction{}, apperr.InvalidTransition("transaction", string(current.Status), string(to))
	}

	var effects []events.Event
	hook := func(ctx context.Context, tx pgx.Tx, t Transaction) error {
		if to != StatusCompleted {
			return nil
		}
		switch {
		case t.PickupID != nil:
			ev, err := s.payments.MarkPaid(ctx, tx, *t.PickupID, t.ID)
			if err != nil {
				return err
			}
			effects = append(effects, ev)
		case t.OrderID != nil:
			ev, err := s.orders.SettlePayment(ctx, tx, *t.OrderID, t.ID)
			if err != nil {
				return err
			}
			effects = append(effects, ev)
		}
		return nil
	}

	params := TransitionParams{ID: id, From: current.Status, To: to}
	if req.Notes != "" {
		params.Notes = &req.Notes
	}
	updated, err := s.repo.Transition(ctx, params, hook)
	if err != nil {
		return Transaction{}, err
	}

	s.logTransition(id, current.Status, to, identity.Role())
	if to == StatusCompleted {
		effects = append(effects, events.TransactionCompleted{
			BaseEvent:     events.NewBaseEvent(),
			TransactionID: updated.ID,
			PayerID:       updated.PayerID,
			PayeeID:       updated.PayeeID,
			PickupID:      updated.PickupID,
			OrderID:       updated.OrderID,
			Amount:        updated.Amount.String(),
		})
	}
	if s.bus != nil {
		for _, ev := range effects {
			s.bus.Publish(ctx, ev)
		}
	}
	return updated, nil
}

func (s *Service) logTransition(id uuid.UUID, from, to Status, role string) {
	s.metrics.ObserveTransition("transaction", string(to))
	if s.log != nil {
		s.log.Transition("transaction", id.String(), string(from), string(to), role)
	}
}
