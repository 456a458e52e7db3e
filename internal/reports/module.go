package reports

import (
	"github.com/SubscriberSync/portal-sub000/internal/adapters/storage"
	apphttp "github.com/SubscriberSync/portal-sub000/internal/http"
	"github.com/SubscriberSync/portal-sub000/platform/logger"
)

// Module is the reports module implementing http.Module.
type Module struct {
	handler *Handler
}

// NewModule creates the reports module. A nil store leaves the route in place
// and answers it with a precondition error.
func NewModule(runs RunStore, entries EntryLister, store storage.ObjectStore, bucket string, log *logger.Logger) *Module {
	return &Module{handler: NewHandler(NewService(runs, entries, store, bucket, log))}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "reports"
}

// RegisterRoutes mounts the report route on the protected group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/migration-runs/:id/report", m.handler.Generate)
}

var _ apphttp.Module = (*Module)(nil)
