package handler

import (
	"context"
	"net/http"

	"github.com/SubscriberSync/portal-sub000/internal/subscribers/service"
	"github.com/SubscriberSync/portal-sub000/internal/subscribers/transport"
	"github.com/SubscriberSync/portal-sub000/platform/apperr"
	"github.com/SubscriberSync/portal-sub000/platform/httpkit"
	"github.com/SubscriberSync/portal-sub000/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// ImportQueue hands subscriber imports to the background worker.
type ImportQueue interface {
	EnqueueSubscriberImport(ctx context.Context, merchantID uuid.UUID) error
}

// Handler handles HTTP requests for subscribers.
type Handler struct {
	svc     *service.Service
	imports ImportQueue
	val     *validator.Validator
}

// New creates a new subscribers handler.
func New(svc *service.Service, imports ImportQueue, val *validator.Validator) *Handler {
	return &Handler{svc: svc, imports: imports, val: val}
}

// RegisterRoutes registers subscriber routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	subscribers := rg.Group("/subscribers")
	subscribers.GET("", h.List)
	subscribers.POST("/imports", h.StartImport)
	subscribers.POST("/charges", h.RecordCharge)
	subscribers.GET("/:id", h.GetByID)
	subscribers.GET("/:id/history", h.History)
	subscribers.POST("/:id/upgrades", h.RecordUpgrade)
	subscribers.PUT("/:id/series/:seriesId/position", h.OverridePosition)
}

// GET /api/v1/subscribers
func (h *Handler) List(c *gin.Context) {
	var req transport.ListSubscribersRequest
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

	result, err := h.svc.ListSubscribers(c.Request.Context(), merchantID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GET /api/v1/subscribers/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	_, merchantID, ok := httpkit.MustGetMerchant(c)
	if !ok {
		return
	}

	result, err := h.svc.GetSubscriber(c.Request.Context(), merchantID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GET /api/v1/subscribers/:id/history
func (h *Handler) History(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	_, merchantID, ok := httpkit.MustGetMerchant(c)
	if !ok {
		return
	}

	result, err := h.svc.History(c.Request.Context(), merchantID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": result})
}

// POST /api/v1/subscribers/charges
func (h *Handler) RecordCharge(c *gin.Context) {
	var req transport.RecordChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
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

	result, err := h.svc.RecordCharge(c.Request.Context(), merchantID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// POST /api/v1/subscribers/:id/upgrades
func (h *Handler) RecordUpgrade(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	var req transport.RecordUpgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
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

	result, err := h.svc.RecordUpgrade(c.Request.Context(), merchantID, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// PUT /api/v1/subscribers/:id/series/:seriesId/position
func (h *Handler) OverridePosition(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	seriesID, err := uuid.Parse(c.Param("seriesId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	var req transport.ManualOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	identity, merchantID, ok := httpkit.MustGetMerchant(c)
	if !ok {
		return
	}

	result, err := h.svc.ManualOverride(c.Request.Context(), merchantID, identity.UserID(), id, seriesID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// POST /api/v1/subscribers/imports
func (h *Handler) StartImport(c *gin.Context) {
	_, merchantID, ok := httpkit.MustGetMerchant(c)
	if !ok {
		return
	}
	if h.imports == nil {
		httpkit.HandleError(c, apperr.Precondition("background worker is not configured"))
		return
	}
	if err := h.imports.EnqueueSubscriberImport(c.Request.Context(), merchantID); httpkit.HandleError(c, err) {
		return
	}
	httpkit.Accepted(c, gin.H{"status": "queued"})
}
