// Package catalog provides the product classification bounded context module.
package catalog

import (
	"github.com/SubscriberSync/portal-sub000/internal/catalog/handler"
	"github.com/SubscriberSync/portal-sub000/internal/catalog/repository"
	"github.com/SubscriberSync/portal-sub000/internal/catalog/service"
	"github.com/SubscriberSync/portal-sub000/internal/catalog/suggest"
	"github.com/SubscriberSync/portal-sub000/internal/events"
	apphttp "github.com/SubscriberSync/portal-sub000/internal/http"
	"github.com/SubscriberSync/portal-sub000/platform/ai/moonshot"
	"github.com/SubscriberSync/portal-sub000/platform/config"
	"github.com/SubscriberSync/portal-sub000/platform/logger"
	"github.com/SubscriberSync/portal-sub000/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the catalog bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the catalog module. scans may be nil.
func NewModule(pool *pgxpool.Pool, scans handler.ScanQueue, eventBus events.Bus, val *validator.Validator, cfg config.AIConfig, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, NewSuggester(cfg, log), eventBus, log)

	return &Module{
		handler: handler.New(svc, scans, val),
		service: svc,
	}
}

// NewSuggester returns the agent backed by the heuristic when an AI key is
// configured, and the heuristic alone otherwise.
func NewSuggester(cfg config.AIConfig, log *logger.Logger) suggest.Suggester {
	heuristic := suggest.NewHeuristic()
	if !cfg.IsSuggestionAgentEnabled() {
		return heuristic
	}

	agent, err := suggest.NewAgent(moonshot.NewModel(moonshot.Config{
		APIKey: cfg.GetMoonshotAPIKey(),
		Model:  cfg.GetMoonshotModel(),
	}))
	if err != nil {
		log.Warn("classification agent unavailable, using keyword heuristic", "error", err)
		return heuristic
	}
	return suggest.Fallback{Primary: agent, Secondary: heuristic}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "catalog"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts catalog routes on the protected group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
