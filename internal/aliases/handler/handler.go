package handler

import (
	"net/http"

	"github.com/SubscriberSync/portal-sub000/internal/aliases/service"
	"github.com/SubscriberSync/portal-sub000/internal/aliases/transport"
	"github.com/SubscriberSync/portal-sub000/platform/httpkit"
	"github.com/SubscriberSync/portal-sub000/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for series, tiers and SKU aliases.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new aliases handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers alias table routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/series", h.ListSeries)
	rg.POST("/series", h.CreateSeries)
	rg.GET("/series/:id/tiers", h.ListTiers)
	rg.POST("/series/:id/tiers", h.CreateTier)
	rg.DELETE("/tiers/:id", h.DeleteTier)
	rg.POST("/tiers/:id/merge", h.MergeTier)

	rg.GET("/sku-aliases", h.ListAliases)
	rg.PUT("/sku-aliases", h.UpsertAlias)
	rg.POST("/sku-aliases/bulk", h.BulkUpsertAliases)
	rg.DELETE("/sku-aliases/:sku", h.DeleteAlias)
	rg.GET("/sku-aliases/count", h.CountAliases)
	rg.GET("/unknown-skus", h.UnknownSKUs)
}

// GET /api/v1/series
func (h *Handler) ListSeries(c *gin.Context) {
	_, merchantID, ok := httpkit.MustGetMerchant(c)
	if !ok {
		return
	}
	result, err := h.svc.ListSeries(c.Request.Context(), merchantID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// POST /api/v1/series
func (h *Handler) CreateSeries(c *gin.Context) {
	var req transport.CreateSeriesRequest
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

	result, err := h.svc.CreateSeries(c.Request.Context(), merchantID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// GET /api/v1/series/:id/tiers
func (h *Handler) ListTiers(c *gin.Context) {
	seriesID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	_, merchantID, ok := httpkit.MustGetMerchant(c)
	if !ok {
		return
	}
	result, err := h.svc.ListTiers(c.Request.Context(), merchantID, seriesID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// POST /api/v1/series/:id/tiers
func (h *Handler) CreateTier(c *gin.Context) {
	seriesID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	var req transport.CreateTierRequest
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

	result, err := h.svc.CreateTier(c.Request.Context(), merchantID, seriesID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// DELETE /api/v1/tiers/:id?confirm=true
func (h *Handler) DeleteTier(c *gin.Context) {
	tierID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	var req transport.DeleteTierRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	_, merchantID, ok := httpkit.MustGetMerchant(c)
	if !ok {
		return
	}

	if err := h.svc.DeleteTier(c.Request.Context(), merchantID, tierID, req.Confirm); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/v1/tiers/:id/merge
func (h *Handler) MergeTier(c *gin.Context) {
	tierID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	var req transport.MergeTierRequest
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

	if err := h.svc.MergeTier(c.Request.Context(), merchantID, tierID, req); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/v1/sku-aliases
func (h *Handler) ListAliases(c *gin.Context) {
	var req transport.ListAliasesRequest
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

	var seriesID *uuid.UUID
	if req.SeriesID != "" {
		parsed := uuid.MustParse(req.SeriesID)
		seriesID = &parsed
	}
	result, err := h.svc.ListAliases(c.Request.Context(), merchantID, seriesID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// PUT /api/v1/sku-aliases
func (h *Handler) UpsertAlias(c *gin.Context) {
	var req transport.UpsertAliasRequest
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

	result, err := h.svc.UpsertAlias(c.Request.Context(), merchantID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// POST /api/v1/sku-aliases/bulk
func (h *Handler) BulkUpsertAliases(c *gin.Context) {
	var req transport.BulkUpsertAliasesRequest
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

	if err := h.svc.UpsertAliases(c.Request.Context(), merchantID, req.Aliases); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"upserted": len(req.Aliases)})
}

// DELETE /api/v1/sku-aliases/:sku
func (h *Handler) DeleteAlias(c *gin.Context) {
	_, merchantID, ok := httpkit.MustGetMerchant(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteAlias(c.Request.Context(), merchantID, c.Param("sku")); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/v1/sku-aliases/count
func (h *Handler) CountAliases(c *gin.Context) {
	_, merchantID, ok := httpkit.MustGetMerchant(c)
	if !ok {
		return
	}
	count, err := h.svc.CountAliases(c.Request.Context(), merchantID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.AliasCountResponse{Count: count})
}

// GET /api/v1/unknown-skus
func (h *Handler) UnknownSKUs(c *gin.Context) {
	var req transport.UnknownSKUsRequest
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

	result, err := h.svc.UnknownSKUs(c.Request.Context(), merchantID, req.Limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}
