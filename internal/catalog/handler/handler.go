package handler

import (
	"context"
	"net/http"

	"github.com/SubscriberSync/portal-sub000/internal/catalog/service"
	"github.com/SubscriberSync/portal-sub000/internal/catalog/transport"
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

// ScanQueue hands catalog scans to the background worker.
type ScanQueue interface {
	EnqueueCatalogScan(ctx context.Context, merchantID uuid.UUID) error
}

// Handler handles HTTP requests for product classification.
type Handler struct {
	svc   *service.Service
	scans ScanQueue
	val   *validator.Validator
}

// New creates a new catalog handler. scans may be nil when no worker is configured.
func New(svc *service.Service, scans ScanQueue, val *validator.Validator) *Handler {
	return &Handler{svc: svc, scans: scans, val: val}
}

// RegisterRoutes registers catalog routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	catalog := rg.Group("/catalog")
	catalog.GET("/variations", h.ListVariations)
	catalog.GET("/variations/summary", h.Summary)
	catalog.GET("/variations/:id", h.GetVariation)
	catalog.PUT("/variations/:id/classification", h.Classify)
	catalog.PUT("/variations/:id/tier", h.AssignTier)
	catalog.POST("/variations/classify", h.BulkClassify)

	catalog.POST("/suggestions/run", h.RunSuggestions)
	catalog.GET("/suggestions", h.ListSuggestions)
	catalog.POST("/suggestions/confirm", h.ConfirmSuggestions)
	catalog.POST("/suggestions/reject", h.RejectSuggestions)

	catalog.POST("/scans", h.StartScan)
}

// GET /api/v1/catalog/variations
func (h *Handler) ListVariations(c *gin.Context) {
	var req transport.ListVariationsRequest
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

	result, err := h.svc.ListVariations(c.Request.Context(), merchantID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GET /api/v1/catalog/variations/summary
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

// GET /api/v1/catalog/variations/:id
func (h *Handler) GetVariation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	_, merchantID, ok := httpkit.MustGetMerchant(c)
	if !ok {
		return
	}

	result, err := h.svc.GetVariation(c.Request.Context(), merchantID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// PUT /api/v1/catalog/variations/:id/classification
func (h *Handler) Classify(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	var req transport.ClassifyRequest
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

	result, err := h.svc.Classify(c.Request.Context(), merchantID, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// POST /api/v1/catalog/variations/classify
func (h *Handler) BulkClassify(c *gin.Context) {
	var req transport.BulkClassifyRequest
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

	result, err := h.svc.BulkClassify(c.Request.Context(), merchantID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// PUT /api/v1/catalog/variations/:id/tier
func (h *Handler) AssignTier(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	var req transport.AssignTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	_, merchantID, ok := httpkit.MustGetMerchant(c)
	if !ok {
		return
	}

	result, err := h.svc.AssignTier(c.Request.Context(), merchantID, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// POST /api/v1/catalog/suggestions/run
func (h *Handler) RunSuggestions(c *gin.Context) {
	var req transport.RunSuggestionsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	_, merchantID, ok := httpkit.MustGetMerchant(c)
	if !ok {
		return
	}

	result, err := h.svc.RunSuggestions(c.Request.Context(), merchantID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GET /api/v1/catalog/suggestions
func (h *Handler) ListSuggestions(c *gin.Context) {
	var req transport.ListSuggestionsRequest
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

	result, err := h.svc.ListSuggestions(c.Request.Context(), merchantID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// POST /api/v1/catalog/suggestions/confirm
func (h *Handler) ConfirmSuggestions(c *gin.Context) {
	var req transport.ConfirmSuggestionsRequest
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

	result, err := h.svc.ConfirmSuggestions(c.Request.Context(), merchantID, identity.UserID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// POST /api/v1/catalog/suggestions/reject
func (h *Handler) RejectSuggestions(c *gin.Context) {
	var req transport.RejectSuggestionsRequest
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

	result, err := h.svc.RejectSuggestions(c.Request.Context(), merchantID, identity.UserID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// POST /api/v1/catalog/scans
func (h *Handler) StartScan(c *gin.Context) {
	_, merchantID, ok := httpkit.MustGetMerchant(c)
	if !ok {
		return
	}
	if h.scans == nil {
		httpkit.HandleError(c, apperr.Precondition("background worker is not configured"))
		return
	}
	if err := h.scans.EnqueueCatalogScan(c.Request.Context(), merchantID); httpkit.HandleError(c, err) {
		return
	}
	httpkit.Accepted(c, gin.H{"status": "queued"})
}
