package maps

import (
	"net/http"

	"ekomarket_backend/platform/httpkit"
	"ekomarket_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Handler exposes the geocoding endpoints.
type Handler struct {
	svc *Service
	val *validator.Validator
}

func NewHandler(svc *Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// Geocode handles GET /api/v1/maps/geocode?q=...
func (h *Handler) Geocode(c *gin.Context) {
	var req GeocodeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "query 'q' is required (min 3 chars)", nil)
		return
	}
	if httpkit.HandleError(c, h.val.Struct(req)) {
		return
	}

	places, err := h.svc.Geocode(c.Request.Context(), req.Query)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": places})
}

// Reverse handles GET /api/v1/maps/reverse?lat=...&lng=...
func (h *Handler) Reverse(c *gin.Context) {
	var req ReverseRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "lat and lng are required", nil)
		return
	}
	if httpkit.HandleError(c, h.val.Struct(req)) {
		return
	}

	place, err := h.svc.Reverse(c.Request.Context(), *req.Lat, *req.Lng)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"place": place})
}
