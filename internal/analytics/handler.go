package analytics

import (
	"net/http"

	"ekomarket_backend/platform/httpkit"
	"ekomarket_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler serves the dashboards.
type Handler struct {
	svc *Service
	val *validator.Validator
}

// NewHandler creates the analytics handler.
func NewHandler(svc *Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) bind(c *gin.Context) (DashboardRequest, bool) {
	var req DashboardRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return req, false
	}
	if httpkit.HandleError(c, h.val.Struct(req)) {
		return req, false
	}
	return req, true
}

// GET /api/v1/analytics/collector
func (h *Handler) Collector(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	req, ok := h.bind(c)
	if !ok {
		return
	}
	resp, err := h.svc.Collector(c.Request.Context(), identity, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// GET /api/v1/analytics/brand
func (h *Handler) Brand(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	req, ok := h.bind(c)
	if !ok {
		return
	}
	resp, err := h.svc.Brand(c.Request.Context(), identity, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// GET /api/v1/admin/analytics/brand/:id
func (h *Handler) BrandFor(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid brand id", nil)
		return
	}
	req, ok := h.bind(c)
	if !ok {
		return
	}
	resp, err := h.svc.BrandFor(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// GET /api/v1/analytics/inventory
func (h *Handler) Inventory(c *gin.Context) {
	resp, err := h.svc.Inventory(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}
