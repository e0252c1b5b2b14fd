package hotspots

import (
	"net/http"

	"ekomarket_backend/platform/httpkit"
	"ekomarket_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const msgInvalidRequest = "invalid request"

// Handler serves the hotspot endpoints.
type Handler struct {
	svc *Service
	val *validator.Validator
}

// NewHandler creates the hotspot handler.
func NewHandler(svc *Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// POST /api/v1/hotspots
func (h *Handler) Report(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	var req ReportHotspotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if httpkit.HandleError(c, h.val.Struct(req)) {
		return
	}
	hotspot, err := h.svc.Report(c.Request.Context(), identity, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, gin.H{"hotspot": hotspot})
}

// GET /api/v1/hotspots
func (h *Handler) List(c *gin.Context) {
	var req ListHotspotsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if httpkit.HandleError(c, h.val.Struct(req)) {
		return
	}
	resp, err := h.svc.List(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// GET /api/v1/hotspots/:id
func (h *Handler) Get(c *gin.Context) {
	id, ok := hotspotID(c)
	if !ok {
		return
	}
	hotspot, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"hotspot": hotspot, "pollIntervalSeconds": PollIntervalSeconds})
}

// POST /api/v1/hotspots/:id/collections
func (h *Handler) RecordCollection(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := hotspotID(c)
	if !ok {
		return
	}
	var req RecordCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if httpkit.HandleError(c, h.val.Struct(req)) {
		return
	}
	hotspot, err := h.svc.RecordCollection(c.Request.Context(), identity, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, gin.H{"hotspot": hotspot})
}

func hotspotID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid hotspot id", nil)
		return uuid.UUID{}, false
	}
	return id, true
}
