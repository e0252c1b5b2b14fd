// Package pickups is the pickup bounded context: submission, lifecycle and
// AI-assisted verification.
package pickups

import (
	"ekomarket_backend/internal/adapters/storage"
	"ekomarket_backend/internal/classification"
	"ekomarket_backend/internal/events"
	apphttp "ekomarket_backend/internal/http"
	"ekomarket_backend/internal/pickups/handler"
	"ekomarket_backend/internal/pickups/repository"
	"ekomarket_backend/internal/pickups/service"
	"ekomarket_backend/platform/config"
	"ekomarket_backend/platform/logger"
	"ekomarket_backend/platform/metrics"
	"ekomarket_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the pickups bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repo
}

// NewModule wires the pickups module.
func NewModule(pool *pgxpool.Pool, blobs storage.BlobStore, classifier classification.Classifier, eventBus events.Bus, val *validator.Validator, policy config.Policy, m *metrics.Registry, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(service.Deps{
		Repo:       repo,
		Blobs:      blobs,
		Classifier: classifier,
		Bus:        eventBus,
		Policy:     policy,
		Metrics:    m,
		Log:        log,
	})
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "pickups"
}

// Service exposes the lifecycle engine to the transactions module.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository exposes the inventory store to the orders module.
func (m *Module) Repository() *repository.Repo {
	return m.repo
}

// RegisterRoutes mounts pickup routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	limiter := ctx.ClassificationRateLimiter
	group := ctx.Protected.Group("/pickups")
	if limiter != nil {
		m.handler.RegisterRoutes(group, limiter.RateLimit())
		return
	}
	m.handler.RegisterRoutes(group, nil)
}

var _ apphttp.Module = (*Module)(nil)
