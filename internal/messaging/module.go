// Package messaging provides polled chat between collectors and brands.
package messaging

import (
	"ekomarket_backend/internal/events"
	apphttp "ekomarket_backend/internal/http"
	"ekomarket_backend/platform/httpkit"
	"ekomarket_backend/platform/logger"
	"ekomarket_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the messaging bounded context module implementing http.Module.
type Module struct {
	handler *Handler
}

// NewModule wires the chat stack.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	svc := NewService(NewRepository(pool), eventBus, log)
	return &Module{handler: NewHandler(svc, val)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "messaging"
}

// RegisterRoutes mounts chat routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/messages", httpkit.RequireRole(httpkit.RoleCollector, httpkit.RoleBrand))
	group.POST("/conversations", m.handler.StartConversation)
	group.GET("/conversations", m.handler.ListConversations)
	group.GET("/conversations/:id", m.handler.GetConversation)
	group.GET("/conversations/:id/messages", m.handler.ListMessages)
	group.POST("/conversations/:id/messages", m.handler.SendMessage)
	group.PUT("/conversations/:id/read", m.handler.MarkRead)
	group.GET("/unread-count", m.handler.UnreadCount)
}

var _ apphttp.Module = (*Module)(nil)
