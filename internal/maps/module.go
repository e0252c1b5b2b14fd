package maps

import (
	apphttp "ekomarket_backend/internal/http"
	"ekomarket_backend/platform/config"
	"ekomarket_backend/platform/logger"
	"ekomarket_backend/platform/validator"
)

// Module wires the geocoding HTTP routes.
type Module struct {
	handler *Handler
}

func NewModule(cfg config.GeocodingConfig, val *validator.Validator, log *logger.Logger) *Module {
	return &Module{handler: NewHandler(NewService(cfg, log), val)}
}

func (m *Module) Name() string {
	return "maps"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/maps")
	group.GET("/geocode", m.handler.Geocode)
	group.GET("/reverse", m.handler.Reverse)
}

var _ apphttp.Module = (*Module)(nil)
