// Package migration provides the migration run bounded context module: batch
// reconciliation of a merchant's subscribers against their order history.
package migration

import (
	"github.com/SubscriberSync/portal-sub000/internal/events"
	apphttp "github.com/SubscriberSync/portal-sub000/internal/http"
	"github.com/SubscriberSync/portal-sub000/internal/migration/handler"
	"github.com/SubscriberSync/portal-sub000/internal/migration/repository"
	"github.com/SubscriberSync/portal-sub000/internal/migration/service"
	"github.com/SubscriberSync/portal-sub000/internal/orders"
	"github.com/SubscriberSync/portal-sub000/platform/config"
	"github.com/SubscriberSync/portal-sub000/platform/logger"
	"github.com/SubscriberSync/portal-sub000/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the migration bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

// Deps are the collaborators a run needs. Queue is set in the API process,
// Locker and Orders in the worker.
type Deps struct {
	Aliases     service.AliasTable
	Subscribers service.Subscribers
	Orders      orders.Provider
	Queue       service.RunQueue
	Locker      service.Locker
}

// NewModule creates and initializes the migration module.
func NewModule(pool *pgxpool.Pool, deps Deps, eventBus events.Bus, val *validator.Validator, cfg config.MigrationConfig, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, deps.Aliases, deps.Subscribers, deps.Orders, deps.Queue, deps.Locker, eventBus, service.Settings{
		BatchSize:  cfg.GetMigrationBatchSize(),
		BatchDelay: cfg.GetMigrationBatchDelay(),
	}, log)
	return &Module{handler: handler.New(svc, val), service: svc, repo: repo}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "migration"
}

// Service returns the service layer for the scheduler worker.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository exposes run persistence to the reports module.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts migration run routes on the protected group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
