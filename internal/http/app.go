// Package http provides HTTP server infrastructure including module registration.
package http

import (
	"context"

	"ekomarket_backend/internal/events"
	"ekomarket_backend/platform/config"
	"ekomarket_backend/platform/logger"
	"ekomarket_backend/platform/metrics"
)

// RouterConfig combines the config interfaces needed by the HTTP router.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App holds the fully initialized application dependencies.
// This is populated by main.go (the composition root) and passed to the router.
type App struct {
	Config RouterConfig
	Logger *logger.Logger
	// Health is pinged by GET /api/health; nil reports healthy.
	Health   HealthChecker
	EventBus events.Bus
	// Metrics is served on GET /metrics when set.
	Metrics *metrics.Registry
	Modules []Module
}
