package reports

import (
	"net/http"

	"github.com/SubscriberSync/portal-sub000/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler serves run reports.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// GET /api/v1/migration-runs/:id/report
func (h *Handler) Generate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	_, merchantID, ok := httpkit.MustGetMerchant(c)
	if !ok {
		return
	}

	result, err := h.svc.Generate(c.Request.Context(), merchantID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}
