// Package handler exposes the pickups module over HTTP.
package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"ekomarket_backend/internal/adapters/storage"
	"ekomarket_backend/internal/classification"
	"ekomarket_backend/internal/pickups/domain"
	"ekomarket_backend/internal/pickups/service"
	"ekomarket_backend/internal/pickups/transport"
	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/httpkit"
	"ekomarket_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cast"
)

const (
	msgInvalidRequest = "invalid request"
	msgInvalidID      = "invalid pickup id"
)

// Handler handles pickup HTTP requests.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a pickups handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts the pickup routes on rg (/pickups). detect is wrapped
// by limiter when one is given.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, limiter gin.HandlerFunc) {
	collector := httpkit.RequireRole(httpkit.RoleCollector)
	verifier := httpkit.RequireRole(httpkit.RoleBrand, httpkit.RoleAdmin)

	detect := []gin.HandlerFunc{}
	if limiter != nil {
		detect = append(detect, limiter)
	}
	detect = append(detect, h.Detect)

	rg.POST("/detect", detect...)
	rg.POST("/create", collector, h.Create)
	rg.POST("", collector, h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", collector, h.Update)
	rg.POST("/:id/photos/after", collector, h.UploadAfterPhoto)
	rg.GET("/:id/label.png", h.Label)
	rg.GET("/:id/photos/:kind", h.PhotoURL)
	rg.POST("/:id/verify", verifier, h.Verify)
	rg.POST("/:id/reject", verifier, h.Reject)
	rg.POST("/:id/ai-verify", verifier, h.AIVerify)
}

// POST /api/v1/pickups/detect
func (h *Handler) Detect(c *gin.Context) {
	if httpkit.MustGetIdentity(c) == nil {
		return
	}
	photo, err := readUpload(c, "photo")
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	if photo == nil {
		httpkit.HandleError(c, apperr.Fields([]apperr.FieldError{{Field: "photo", Message: "is required"}}))
		return
	}

	resp, err := h.svc.Detect(c.Request.Context(), *photo, hintFromForm(c))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// POST /api/v1/pickups/create
func (h *Handler) Create(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	form, err := formFromRequest(c)
	if httpkit.HandleError(c, err) {
		return
	}

	resp, err := h.svc.Submit(c.Request.Context(), identity, form)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, resp)
}

// GET /api/v1/pickups
func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	var req transport.ListPickupsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if httpkit.HandleError(c, h.val.Struct(req)) {
		return
	}

	resp, err := h.svc.List(c.Request.Context(), identity, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// GET /api/v1/pickups/:id
func (h *Handler) Get(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	resp, err := h.svc.Get(c.Request.Context(), identity, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// PUT /api/v1/pickups/:id
func (h *Handler) Update(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.UpdatePickupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if httpkit.HandleError(c, h.val.Struct(req)) {
		return
	}

	resp, err := h.svc.Update(c.Request.Context(), identity, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// POST /api/v1/pickups/:id/photos/after
func (h *Handler) UploadAfterPhoto(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	photo, err := readUpload(c, "after")
	if httpkit.HandleError(c, err) {
		return
	}
	if photo == nil {
		httpkit.HandleError(c, apperr.Fields([]apperr.FieldError{{Field: "after", Message: "is required"}}))
		return
	}

	resp, err := h.svc.ReplaceAfterPhoto(c.Request.Context(), identity, id, *photo)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// GET /api/v1/pickups/:id/label.png
func (h *Handler) Label(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	png, err := h.svc.Label(c.Request.Context(), identity, id)
	if httpkit.HandleError(c, err) {
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=pickup-%s.png", id))
	c.Data(http.StatusOK, "image/png", png)
}

// GET /api/v1/pickups/:id/photos/:kind
func (h *Handler) PhotoURL(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	link, err := h.svc.PhotoURL(c.Request.Context(), identity, id, c.Param("kind"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"url": link.URL, "expiresAt": link.ExpiresAt})
}

// POST /api/v1/pickups/:id/verify
func (h *Handler) Verify(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.VerifyPickupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if httpkit.HandleError(c, h.val.Struct(req)) {
		return
	}

	resp, err := h.svc.Verify(c.Request.Context(), identity, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// POST /api/v1/pickups/:id/reject
func (h *Handler) Reject(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.RejectPickupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if httpkit.HandleError(c, h.val.Struct(req)) {
		return
	}

	resp, err := h.svc.Reject(c.Request.Context(), identity, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// POST /api/v1/pickups/:id/ai-verify
func (h *Handler) AIVerify(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	resp, err := h.svc.AIVerify(c.Request.Context(), identity, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.UUID{}, false
	}
	return id, true
}

// formFromRequest collects the multipart submission. Field values stay raw;
// the service coerces and validates them.
func formFromRequest(c *gin.Context) (transport.CreatePickupForm, error) {
	before, err := readUpload(c, "before")
	if err != nil {
		return transport.CreatePickupForm{}, err
	}
	after, err := readUpload(c, "after")
	if err != nil {
		return transport.CreatePickupForm{}, err
	}
	return transport.CreatePickupForm{
		Before:               before,
		After:                after,
		Category:             c.PostForm("category"),
		EstimatedWeight:      c.PostForm("estimatedWeight"),
		Notes:                c.PostForm("notes"),
		Address:              c.PostForm("address"),
		Lat:                  c.PostForm("lat"),
		Lng:                  c.PostForm("lng"),
		AIConfidence:         c.PostForm("aiConfidence"),
		AICategory:           c.PostForm("aiCategory"),
		AIWeight:             c.PostForm("aiWeight"),
		ManualReviewRequired: c.PostForm("manualReviewRequired"),
	}, nil
}

// readUpload reads an optional multipart file. A missing file is nil; an
// oversized one is a field error.
func readUpload(c *gin.Context, field string) (*transport.Upload, error) {
	header, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.BadRequest("could not read multipart form")
	}
	if header.Size > storage.DefaultMaxPhotoSize {
		return nil, apperr.Fields([]apperr.FieldError{{Field: field, Message: fmt.Sprintf("must be at most %d MB", storage.DefaultMaxPhotoSize>>20)}})
	}
	data, err := readFile(header)
	if err != nil {
		return nil, fmt.Errorf("read %s upload: %w", field, err)
	}
	return &transport.Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func readFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, storage.DefaultMaxPhotoSize+1))
}

// hintFromForm reads the optional category/weight hint sent with detect.
func hintFromForm(c *gin.Context) *classification.Hint {
	var hint classification.Hint
	if category, ok := domain.ParseCategory(c.PostForm("category")); ok {
		hint.Category = &category
	}
	if raw := strings.TrimSpace(c.PostForm("weight")); raw != "" {
		if weight, err := cast.ToFloat64E(raw); err == nil && weight > 0 {
			hint.Weight = &weight
		}
	}
	if hint.Category == nil && hint.Weight == nil {
		return nil
	}
	return &hint
}
