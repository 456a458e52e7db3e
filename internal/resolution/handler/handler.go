package handler

import (
	"net/http"

	"github.com/SubscriberSync/portal-sub000/internal/resolution/service"
	"github.com/SubscriberSync/portal-sub000/internal/resolution/transport"
	"github.com/SubscriberSync/portal-sub000/platform/httpkit"
	"github.com/SubscriberSync/portal-sub000/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler serves the review queue.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers audit entry routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	entries := rg.Group("/audit-entries")
	entries.GET("", h.Queue)
	entries.GET("/summary", h.Summary)
	entries.GET("/:id", h.Get)
	entries.POST("/:id/resolve", h.Resolve)
	entries.POST("/:id/skip", h.Skip)
}

// GET /api/v1/audit-entries
func (h *Handler) Queue(c *gin.Context) {
	var req transport.ListEntriesRequest
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

	result, err := h.svc.Queue(c.Request.Context(), merchantID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GET /api/v1/audit-entries/summary
func (h *Handler) Summary(c *gin.Context) {
	_, merchantID, ok := httpkit.MustGetMerchant(c)
	if !ok {
		return
	}

	result, err := h.svc.Summary(c.Request.Context(), merchantID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GET /api/v1/audit-entries/:id
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

// POST /api/v1/audit-entries/:id/resolve
func (h *Handler) Resolve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	var req transport.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
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

	result, err := h.svc.Resolve(c.Request.Context(), merchantID, identity.UserID(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// POST /api/v1/audit-entries/:id/skip
func (h *Handler) Skip(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	var req transport.SkipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
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

	result, err := h.svc.Skip(c.Request.Context(), merchantID, identity.UserID(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}
