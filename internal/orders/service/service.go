// Package service implements the order lifecycle.
package service

import (
	"context"
	"fmt"

	"ekomarket_backend/internal/events"
	"ekomarket_backend/internal/orders/domain"
	"ekomarket_backend/internal/orders/repository"
	"ekomarket_backend/internal/orders/transport"
	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/httpkit"
	"ekomarket_backend/platform/logger"
	"ekomarket_backend/platform/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const orderNotFoundMsg = "order not found"

// Service owns order state changes.
type Service struct {
	repo    repository.Repository
	bus     events.Bus
	metrics *metrics.Registry
	log     *logger.Logger
}

// New creates the order service.
func New(repo repository.Repository, bus events.Bus, m *metrics.Registry, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, metrics: m, log: log}
}

// TransitionInput is a fulfilment action with its side data.
type TransitionInput struct {
	Action             domain.Action
	Notes              string
	CancellationReason string
	TrackingNumber     string
}

// Create places an order. Inventory is reserved atomically with the insert so
// concurrent orders can never oversell a pickup.
func (s *Service) Create(ctx context.Context, identity httpkit.Identity, req transport.CreateOrderRequest) (transport.OrderResponse, error) {
	if !identity.HasRole(httpkit.RoleBrand) {
		return transport.OrderResponse{}, apperr.Forbidden("only brands can place orders")
	}

	unitPrice := req.UnitPrice.Round(2)
	if !unitPrice.IsPositive() {
		s.metrics.ObserveOrderRejection(apperr.CodeInvalidPrice)
		return transport.OrderResponse{}, apperr.InvalidPrice("unitPrice must be greater than 0")
	}
	quantity := req.Quantity.Round(3)
	if !quantity.IsPositive() {
		return transport.OrderResponse{}, apperr.Fields([]apperr.FieldError{{Field: "quantity", Message: "must be greater than 0"}})
	}
	pickupID, err := uuid.Parse(req.PickupID)
	if err != nil {
		return transport.OrderResponse{}, apperr.Fields([]apperr.FieldError{{Field: "pickupId", Message: "is invalid"}})
	}

	order, err := s.repo.Create(ctx, repository.CreateParams{
		ID:              uuid.New(),
		OrderNumber:     domain.NewOrderNumber(timeNow()),
		BrandID:         identity.UserID(),
		PickupID:        pickupID,
		Quantity:        quantity,
		UnitPrice:       unitPrice,
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
	})
	if err != nil {
		if domainErr, ok := apperr.As(err); ok {
			s.metrics.ObserveOrderRejection(domainErr.Code)
		}
		return transport.OrderResponse{}, err
	}

	s.logTransition(order.ID, "", domain.StatusPending, domain.RoleBrand)
	s.publish(ctx, events.OrderCreated{
		BaseEvent:   events.NewBaseEvent(),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		BrandID:     order.BrandID,
		CollectorID: order.CollectorID,
		PickupID:    order.PickupID,
	})
	return transport.ToOrderResponse(order), nil
}

// Get returns an order visible to the caller.
func (s *Service) Get(ctx context.Context, identity httpkit.Identity, id uuid.UUID) (transport.OrderResponse, error) {
	actor, err := actorFor(identity)
	if err != nil {
		return transport.OrderResponse{}, err
	}
	order, err := s.load(ctx, actor, id)
	if err != nil {
		return transport.OrderResponse{}, err
	}
	return transport.ToOrderResponse(order), nil
}

// Lookup loads an order without access checks. Used by the transactions
// module, which applies its own.
func (s *Service) Lookup(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns the caller's orders: brands see what they bought, collectors
// what was ordered from them.
func (s *Service) List(ctx context.Context, identity httpkit.Identity, req transport.ListOrdersRequest) (transport.OrderListResponse, error) {
	params := repository.ListParams{Page: req.Page, PageSize: req.PageSize}
	id := identity.UserID()
	switch identity.Role() {
	case httpkit.RoleBrand:
		params.BrandID = &id
	case httpkit.RoleCollector:
		params.CollectorID = &id
	}
	if req.Status != "" {
		status, ok := domain.ParseStatus(req.Status)
		if !ok {
			return transport.OrderListResponse{}, apperr.Fields([]apperr.FieldError{{Field: "status", Message: "is invalid"}})
		}
		params.Status = &status
	}
	if req.PickupID != "" {
		pickupID, err := uuid.Parse(req.PickupID)
		if err != nil {
			return transport.OrderListResponse{}, apperr.Fields([]apperr.FieldError{{Field: "pickupId", Message: "is invalid"}})
		}
		params.PickupID = &pickupID
	}

	orders, total, err := s.repo.List(ctx, params)
	if err != nil {
		return transport.OrderListResponse{}, err
	}
	out := transport.OrderListResponse{Items: make([]transport.OrderResponse, 0, len(orders)), Total: total, Page: params.Page, PageSize: params.PageSize}
	for _, o := range orders {
		out.Items = append(out.Items, transport.ToOrderResponse(o))
	}
	if out.Page < 1 {
		out.Page = 1
	}
	if out.PageSize < 1 {
		out.PageSize = 20
	}
	return out, nil
}

// Update applies an action and a payment change atomically. Both halves are
// checked against the same loaded order before anything is written.
func (s *Service) Update(ctx context.Context, identity httpkit.Identity, id uuid.UUID, req transport.UpdateOrderRequest) (transport.OrderResponse, error) {
	if req.Action == nil && req.PaymentStatus == nil {
		return transport.OrderResponse{}, apperr.Fields([]apperr.FieldError{{Field: "action", Message: "action or paymentStatus is required"}})
	}

	var (
		action  domain.Action
		payment domain.PaymentStatus
		ok      bool
	)
	if req.Action != nil {
		if action, ok = domain.ParseAction(*req.Action); !ok {
			return transport.OrderResponse{}, apperr.Fields([]apperr.FieldError{{Field: "action", Message: "is invalid"}})
		}
	}
	if req.PaymentStatus != nil {
		if payment, ok = domain.ParsePaymentStatus(*req.PaymentStatus); !ok {
			return transport.OrderResponse{}, apperr.Fields([]apperr.FieldError{{Field: "paymentStatus", Message: "is invalid"}})
		}
	}

	actor, err := actorFor(identity)
	if err != nil {
		return transport.OrderResponse{}, err
	}
	order, err := s.load(ctx, actor, id)
	if err != nil {
		return transport.OrderResponse{}, err
	}

	var (
		transition  *repository.TransitionParams
		paymentMove *repository.PaymentParams
	)
	if req.Action != nil {
		params, err := transitionParams(actor, order, TransitionInput{
			Action:             action,
			Notes:              req.Notes,
			CancellationReason: deref(req.CancellationReason),
			TrackingNumber:     deref(req.TrackingNumber),
		})
		if err != nil {
			return transport.OrderResponse{}, err
		}
		transition = &params
	}
	if req.PaymentStatus != nil {
		params, err := paymentParams(actor, order, payment, req.Notes)
		if err != nil {
			return transport.OrderResponse{}, err
		}
		paymentMove = &params
	}

	updated, err := s.repo.Apply(ctx, transition, paymentMove)
	if err != nil {
		return transport.OrderResponse{}, err
	}
	if transition != nil {
		s.logTransition(id, order.Status, updated.Status, actor.Role())
	}
	if paymentMove != nil {
		s.metrics.ObserveTransition("order_payment", string(payment))
	}
	s.publishChanged(ctx, updated, actor.Role())
	return transport.ToOrderResponse(updated), nil
}

// Transition moves the order along its fulfilment graph.
func (s *Service) Transition(ctx context.Context, identity httpkit.Identity, id uuid.UUID, in TransitionInput) (domain.Order, error) {
	actor, err := actorFor(identity)
	if err != nil {
		return domain.Order{}, err
	}
	if _, ok := domain.EdgeFor(in.Action); !ok {
		return domain.Order{}, apperr.Fields([]apperr.FieldError{{Field: "action", Message: "is invalid"}})
	}

	order, err := s.load(ctx, actor, id)
	if err != nil {
		return domain.Order{}, err
	}
	params, err := transitionParams(actor, order, in)
	if err != nil {
		return domain.Order{}, err
	}

	updated, err := s.repo.Transition(ctx, params)
	if err != nil {
		return domain.Order{}, err
	}

	s.logTransition(id, order.Status, updated.Status, actor.Role())
	s.publishChanged(ctx, updated, actor.Role())
	return updated, nil
}

// transitionParams checks the actor's capability and the fulfilment edge.
func transitionParams(actor domain.Actor, order domain.Order, in TransitionInput) (repository.TransitionParams, error) {
	edge, ok := domain.EdgeFor(in.Action)
	if !ok {
		return repository.TransitionParams{}, apperr.Fields([]apperr.FieldError{{Field: "action", Message: "is invalid"}})
	}
	if !actor.CanTake(in.Action) {
		return repository.TransitionParams{}, apperr.Forbidden(fmt.Sprintf("%s cannot %s an order", actor.Role(), in.Action))
	}
	if !edge.Allows(order.Status) {
		return repository.TransitionParams{}, apperr.InvalidTransition("order", string(order.Status), string(edge.To))
	}

	params := repository.TransitionParams{
		OrderID:       order.ID,
		From:          order.Status,
		To:            edge.To,
		Notes:         in.Notes,
		ChangedBy:     actor.ID(),
		ChangedByRole: actor.Role(),
	}
	switch in.Action {
	case domain.ActionCancel:
		if in.CancellationReason == "" {
			return repository.TransitionParams{}, apperr.Fields([]apperr.FieldError{{Field: "cancellationReason", Message: "is required"}})
		}
		params.CancellationReason = &in.CancellationReason
	case domain.ActionShip:
		if in.TrackingNumber != "" {
			params.TrackingNumber = &in.TrackingNumber
		}
	}
	return params, nil
}

// UpdatePaymentStatus moves the payment dimension. Fulfilment is untouched.
func (s *Service) UpdatePaymentStatus(ctx context.Context, identity httpkit.Identity, id uuid.UUID, status domain.PaymentStatus, notes string) (domain.Order, error) {
	actor, err := actorFor(identity)
	if err != nil {
		return domain.Order{}, err
	}
	order, err := s.load(ctx, actor, id)
	if err != nil {
		return domain.Order{}, err
	}
	params, err := paymentParams(actor, order, status, notes)
	if err != nil {
		return domain.Order{}, err
	}

	updated, err := s.repo.UpdatePayment(ctx, params)
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.ObserveTransition("order_payment", string(status))
	s.publishChanged(ctx, updated, actor.Role())
	return updated, nil
}

func paymentParams(actor domain.Actor, order domain.Order, status domain.PaymentStatus, notes string) (repository.PaymentParams, error) {
	if !actor.CanUpdatePayment() {
		return repository.PaymentParams{}, apperr.Forbidden(fmt.Sprintf("%s cannot change payment status", actor.Role()))
	}
	if !domain.CanTransitionPayment(order.PaymentStatus, status) {
		return repository.PaymentParams{}, apperr.InvalidTransition("order payment", string(order.PaymentStatus), string(status))
	}
	changedBy := actor.ID()
	return repository.PaymentParams{
		OrderID:       order.ID,
		From:          order.PaymentStatus,
		To:            status,
		Notes:         notes,
		ChangedBy:     &changedBy,
		ChangedByRole: actor.Role(),
	}, nil
}

// SettlePayment marks the order paid inside the transaction that completes
// its payment. The returned event is published by the caller after commit.
func (s *Service) SettlePayment(ctx context.Context, tx pgx.Tx, orderID, transactionID uuid.UUID) (events.OrderStatusChanged, error) {
	order, err := s.repo.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		return events.OrderStatusChanged{}, err
	}
	if !domain.CanTransitionPayment(order.PaymentStatus, domain.PaymentPaid) {
		return events.OrderStatusChanged{}, apperr.InvalidTransition("order payment", string(order.PaymentStatus), string(domain.PaymentPaid))
	}

	updated, err := s.repo.UpdatePaymentTx(ctx, tx, repository.PaymentParams{
		OrderID:       orderID,
		From:          order.PaymentStatus,
		To:            domain.PaymentPaid,
		Notes:         fmt.Sprintf("payment %s completed", transactionID),
		ChangedByRole: domain.RoleSystem,
	})
	if err != nil {
		return events.OrderStatusChanged{}, err
	}

	s.metrics.ObserveTransition("order_payment", string(domain.PaymentPaid))
	return changedEvent(updated, domain.RoleSystem), nil
}

// HasActiveOrder reports whether the brand holds a non-cancelled order on the
// pickup.
func (s *Service) HasActiveOrder(ctx context.Context, brandID, pickupID uuid.UUID) (bool, error) {
	orders, _, err := s.repo.List(ctx, repository.ListParams{BrandID: &brandID, PickupID: &pickupID, PageSize: 100})
	if err != nil {
		return false, err
	}
	for _, o := range orders {
		if o.Status != domain.StatusCancelled {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) load(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.Owns(order) {
		return domain.Order{}, apperr.NotFound(orderNotFoundMsg)
	}
	return order, nil
}

func actorFor(identity httpkit.Identity) (domain.Actor, error) {
	actor, err := domain.ResolveActor(identity.UserID(), identity.Role())
	if err != nil {
		return nil, apperr.Forbidden(err.Error())
	}
	return actor, nil
}

func changedEvent(o domain.Order, role domain.Role) events.OrderStatusChanged {
	return events.OrderStatusChanged{
		BaseEvent:     events.NewBaseEvent(),
		OrderID:       o.ID,
		BrandID:       o.BrandID,
		CollectorID:   o.CollectorID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		ChangedByRole: string(role),
	}
}

func (s *Service) publishChanged(ctx context.Context, o domain.Order, role domain.Role) {
	s.publish(ctx, changedEvent(o, role))
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.bus != nil {
		s.bus.Publish(ctx, event)
	}
}

func (s *Service) logTransition(id uuid.UUID, from, to domain.Status, role domain.Role) {
	s.metrics.ObserveTransition("order", string(to))
	if s.log != nil {
		s.log.Transition("order", id.String(), string(from), string(to), string(role))
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

