// Package tokens keeps the append-only EkoToken ledger.
package tokens

import (
	"ekomarket_backend/internal/events"
	apphttp "ekomarket_backend/internal/http"
	"ekomarket_backend/platform/httpkit"
	"ekomarket_backend/platform/logger"
	"ekomarket_backend/platform/metrics"
	"ekomarket_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the tokens bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
}

// NewModule wires the ledger.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, val *validator.Validator, m *metrics.Registry, log *logger.Logger) *Module {
	svc := NewService(NewRepository(pool), eventBus, m, log)
	return &Module{handler: NewHandler(svc, val), service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "tokens"
}

// Service exposes the ledger as the pickups reward sink.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterRoutes mounts ledger routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/tokens", httpkit.RequireRole(httpkit.RoleCollector))
	group.GET("/balance", m.handler.GetBalance)
	group.GET("/ledger", m.handler.ListLedger)
	group.POST("/redeem", m.handler.Redeem)

	if ctx.Admin != nil {
		ctx.Admin.GET("/tokens/reconcile/:collectorId", m.handler.Reconcile)
	}
}

var _ apphttp.Module = (*Module)(nil)
