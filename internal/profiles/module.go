// Package profiles serves collector and brand profiles with cached stats.
package profiles

import (
	"ekomarket_backend/internal/events"
	apphttp "ekomarket_backend/internal/http"
	"ekomarket_backend/platform/logger"
	"ekomarket_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the profiles bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
}

// NewModule wires profiles. cache may be nil when Redis is not configured.
func NewModule(pool *pgxpool.Pool, cache StatsCache, cfg Config, val *validator.Validator, log *logger.Logger) *Module {
	svc := NewService(NewRepository(pool), cache, cfg, log)
	return &Module{handler: NewHandler(svc, val), service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "profiles"
}

// Service exposes stats recomputation to the scheduler and ekoctl.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterHandlers subscribes stats recomputation to domain events.
func (m *Module) RegisterHandlers(bus events.Bus) {
	m.service.RegisterHandlers(bus)
}

// RegisterRoutes mounts profile routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/profiles")
	group.GET("/me", m.handler.GetMe)
	group.PUT("/me", m.handler.UpdateMe)
	group.GET("/:id", m.handler.Get)

	if ctx.Admin != nil {
		ctx.Admin.POST("/profiles/:id/recompute", m.handler.Recompute)
	}
}

var _ apphttp.Module = (*Module)(nil)
