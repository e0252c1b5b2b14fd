// Package hotspots tracks community-reported waste hotspots.
package hotspots

import (
	"time"

	"ekomarket_backend/internal/events"
	apphttp "ekomarket_backend/internal/http"
	"ekomarket_backend/platform/httpkit"
	"ekomarket_backend/platform/logger"
	"ekomarket_backend/platform/metrics"
	"ekomarket_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the hotspots bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
}

// NewModule wires hotspots. scheduler may be nil.
func NewModule(pool *pgxpool.Pool, scheduler ExpiryScheduler, eventBus events.Bus, ttl time.Duration, val *validator.Validator, m *metrics.Registry, log *logger.Logger) *Module {
	svc := NewService(NewRepository(pool), scheduler, eventBus, ttl, m, log)
	return &Module{handler: NewHandler(svc, val), service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "hotspots"
}

// Service exposes expiry to the scheduler worker and ekoctl.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterRoutes mounts hotspot routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/hotspots")
	group.POST("", m.handler.Report)
	group.GET("", m.handler.List)
	group.GET("/:id", m.handler.Get)
	group.POST("/:id/collections", httpkit.RequireRole(httpkit.RoleCollector), m.handler.RecordCollection)
}

var _ apphttp.Module = (*Module)(nil)
