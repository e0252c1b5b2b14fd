// Package analytics serves collector, brand and inventory dashboards.
package analytics

import (
	apphttp "ekomarket_backend/internal/http"
	"ekomarket_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the analytics module implementing http.Module.
type Module struct {
	handler *Handler
}

// NewModule wires analytics.
func NewModule(pool *pgxpool.Pool, val *validator.Validator) *Module {
	return &Module{handler: NewHandler(NewService(NewRepository(pool)), val)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "analytics"
}

// RegisterRoutes mounts analytics routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/analytics")
	group.GET("/collector", m.handler.Collector)
	group.GET("/brand", m.handler.Brand)
	group.GET("/inventory", m.handler.Inventory)

	if ctx.Admin != nil {
		ctx.Admin.GET("/analytics/brand/:id", m.handler.BrandFor)
	}
}

var _ apphttp.Module = (*Module)(nil)
