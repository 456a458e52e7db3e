// Package aliases provides the SKU alias table bounded context module:
// installment series, their tiers and the SKU aliases pointing at them.
package aliases

import (
	"github.com/SubscriberSync/portal-sub000/internal/aliases/handler"
	"github.com/SubscriberSync/portal-sub000/internal/aliases/repository"
	"github.com/SubscriberSync/portal-sub000/internal/aliases/service"
	"github.com/SubscriberSync/portal-sub000/internal/events"
	apphttp "github.com/SubscriberSync/portal-sub000/internal/http"
	"github.com/SubscriberSync/portal-sub000/platform/logger"
	"github.com/SubscriberSync/portal-sub000/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the aliases bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the aliases module with all its dependencies.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, eventBus, log)
	return &Module{handler: handler.New(svc, val), service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "aliases"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts alias table routes on the protected group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
