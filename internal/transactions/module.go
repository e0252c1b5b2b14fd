// Package transactions records payment attempts for pickups and orders.
package transactions

import (
	"ekomarket_backend/internal/events"
	apphttp "ekomarket_backend/internal/http"
	"ekomarket_backend/platform/httpkit"
	"ekomarket_backend/platform/logger"
	"ekomarket_backend/platform/metrics"
	"ekomarket_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the transactions bounded context module implementing http.Module.
type Module struct {
	handler *Handler
}

// NewModule wires the transactions module.
func NewModule(pool *pgxpool.Pool, pickups Pickups, payments PickupPayments, orders Orders, eventBus events.Bus, val *validator.Validator, m *metrics.Registry, log *logger.Logger) *Module {
	svc := NewService(Deps{
		Repo:     NewRepository(pool),
		Pickups:  pickups,
		Payments: payments,
		Orders:   orders,
		Bus:      eventBus,
		Metrics:  m,
		Log:      log,
	})
	return &Module{handler: NewHandler(svc, val)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "transactions"
}

// RegisterRoutes mounts transaction routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/transactions")
	payer := httpkit.RequireRole(httpkit.RoleBrand, httpkit.RoleAdmin)
	group.POST("", payer, m.handler.Create)
	group.GET("", m.handler.List)
	group.GET("/:id", m.handler.Get)
	group.PUT("/:id", payer, m.handler.Update)
}

var _ apphttp.Module = (*Module)(nil)
