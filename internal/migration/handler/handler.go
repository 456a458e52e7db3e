package handler

import (
	"net/http"

	"github.com/SubscriberSync/portal-sub000/internal/migration/service"
	"github.com/SubscriberSync/portal-sub000/internal/migration/transport"
	"github.com/SubscriberSync/portal-sub000/platform/httpkit"
	"github.com/SubscriberSync/portal-sub000/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for migration runs.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new migration handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers migration run routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	runs := rg.Group("/migration-runs")
	runs.POST("", h.Start)
	runs.GET("", h.List)
	runs.GET("/:id", h.Get)
	runs.POST("/:id/cancel", h.Cancel)
}

// POST /api/v1/migration-runs
func (h *Handler) Start(c *gin.Context) {
	identity, merchantID, ok := httpkit.MustGetMerchant(c)
	if !ok {
		return
	}

	result, err := h.svc.Start(c.Request.Context(), merchantID, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Accepted(c, result)
}

// GET /api/v1/migration-runs
func (h *Handler) List(c *gin.Context) {
	var req transport.ListRunsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	_, merchantID, ok := httpkit.MustGetMerchant(c)
	if !ok {
		return
	}

	result, err := h.svc.List(c.Request.Context(), merchantID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GET /api/v1/migration-runs/:id
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	_, merchantID, ok := httpkit.MustGetMerchant(c)
	if !ok {
		return
	}

	result, err := h.svc.Get(c.Request.Context(), merchantID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// POST /api/v1/migration-runs/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	_, merchantID, ok := httpkit.MustGetMerchant(c)
	if !ok {
		return
	}

	result, err := h.svc.Cancel(c.Request.Context(), merchantID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}
