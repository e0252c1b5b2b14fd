// Package orders is the order bounded context: brands buying weight from
// pickups, fulfilment and payment status.
package orders

import (
	"ekomarket_backend/internal/events"
	apphttp "ekomarket_backend/internal/http"
	"ekomarket_backend/internal/orders/handler"
	"ekomarket_backend/internal/orders/ports"
	"ekomarket_backend/internal/orders/repository"
	"ekomarket_backend/internal/orders/service"
	"ekomarket_backend/platform/logger"
	"ekomarket_backend/platform/metrics"
	"ekomarket_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the orders bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule wires the orders module. inventory is the pickups repository.
func NewModule(pool *pgxpool.Pool, inventory ports.Inventory, eventBus events.Bus, val *validator.Validator, m *metrics.Registry, log *logger.Logger) *Module {
	svc := service.New(repository.New(pool, inventory), eventBus, m, log)
	return &Module{handler: handler.New(svc, val), service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "orders"
}

// Service exposes payment settlement to the transactions module.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts order routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/orders"))
}

var _ apphttp.Module = (*Module)(nil)
