// Package subscribers provides the subscribers bounded context module: imported
// billing customers, their subscriptions and per-series sequence positions.
package subscribers

import (
	"github.com/SubscriberSync/portal-sub000/internal/billing"
	"github.com/SubscriberSync/portal-sub000/internal/events"
	apphttp "github.com/SubscriberSync/portal-sub000/internal/http"
	"github.com/SubscriberSync/portal-sub000/internal/subscribers/handler"
	"github.com/SubscriberSync/portal-sub000/internal/subscribers/repository"
	"github.com/SubscriberSync/portal-sub000/internal/subscribers/service"
	"github.com/SubscriberSync/portal-sub000/platform/logger"
	"github.com/SubscriberSync/portal-sub000/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the subscribers bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

// NewModule creates and initializes the subscribers module. adapter and
// imports may be nil; imports are then refused with a precondition failure.
func NewModule(pool *pgxpool.Pool, adapter billing.Adapter, series service.SeriesSource, imports handler.ImportQueue, eventBus events.Bus, val *validator.Validator, phoneRegion string, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, adapter, series, eventBus, phoneRegion, log)
	return &Module{
		handler: handler.New(svc, imports, val),
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "subscribers"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository exposes subscriber persistence to the migration and resolution modules.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts subscriber routes on the protected group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
