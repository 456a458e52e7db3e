package service

import (
	"context"
	"time"

	aliasrepo "github.com/SubscriberSync/portal-sub000/internal/aliases/repository"
	"github.com/SubscriberSync/portal-sub000/internal/aliases/snapshot"
	"github.com/SubscriberSync/portal-sub000/internal/audit"
	"github.com/SubscriberSync/portal-sub000/internal/events"
	"github.com/SubscriberSync/portal-sub000/internal/migration/domain"
	"github.com/SubscriberSync/portal-sub000/internal/migration/runlock"
	"github.com/SubscriberSync/portal-sub000/internal/migration/transport"
	"github.com/SubscriberSync/portal-sub000/internal/orders"
	subsrepo "github.com/SubscriberSync/portal-sub000/internal/subscribers/repository"
	"github.com/SubscriberSync/portal-sub000/platform/apperr"
	"github.com/SubscriberSync/portal-sub000/platform/logger"

	"github.com/google/uuid"
)

// RunStore persists runs and their per-subscriber outcomes.
type RunStore interface {
	Create(ctx context.Context, run domain.Run) error
	Get(ctx context.Context, merchantID, id uuid.UUID) (domain.Run, error)
	List(ctx context.Context, merchantID uuid.UUID, offset, limit int) ([]domain.Run, int, error)
	MarkRunning(ctx context.Context, merchantID, id uuid.UUID, now time.Time) (time.Time, error)
	SaveProgress(ctx context.Context, merchantID, id uuid.UUID, c domain.Counters) error
	Finish(ctx context.Context, merchantID, id uuid.UUID, status domain.Status, reason string, now time.Time) error
	RequestCancel(ctx context.Context, merchantID, id uuid.UUID, now time.Time) (domain.Run, error)
	CancelRequested(ctx context.Context, merchantID, id uuid.UUID) (bool, error)
	SaveOutcome(ctx context.Context, entry audit.Entry, auto *subsrepo.AutoCommit) (audit.Stored, subsrepo.AutoOutcome, error)
}

// AliasTable is the alias configuration a run reads.
type AliasTable interface {
	CountAliases(ctx context.Context, merchantID uuid.UUID) (int, error)
	LoadSnapshot(ctx context.Context, merchantID uuid.UUID) (*snapshot.Snapshot, error)
	RecordUnknownSKUs(ctx context.Context, merchantID uuid.UUID, sightings []aliasrepo.UnknownSighting) error
}

// Subscribers is the subscriber population a run reconciles.
type Subscribers interface {
	ListSubscriberIDs(ctx context.Context, merchantID uuid.UUID) ([]uuid.UUID, error)
	LoadProfile(ctx context.Context, merchantID, subscriberID uuid.UUID) (subsrepo.Profile, error)
}

// RunQueue hands a started run to the background worker.
type RunQueue interface {
	EnqueueMigrationRun(ctx context.Context, merchantID, runID uuid.UUID) error
}

// Locker serializes execution per merchant across workers.
type Locker interface {
	Acquire(ctx context.Context, merchantID uuid.UUID) (*runlock.Lease, error)
}

// Settings tunes run execution.
type Settings struct {
	BatchSize  int
	BatchDelay time.Duration
}

const defaultBatchSize = 5

// Service starts, executes and reports migration runs.
type Service struct {
	store       RunStore
	aliases     AliasTable
	subscribers Subscribers
	orders      orders.Provider
	queue       RunQueue
	locker      Locker
	eventBus    events.Bus
	settings    Settings
	log         *logger.Logger
	now         func() time.Time
}

// New creates a new migration service. queue is only needed to start runs
// and locker only to execute them; either may be nil in the other process.
func New(store RunStore, aliases AliasTable, subscribers Subscribers, provider orders.Provider, queue RunQueue, locker Locker, eventBus events.Bus, settings Settings, log *logger.Logger) *Service {
	if settings.BatchSize < 1 {
		settings.BatchSize = defaultBatchSize
	}
	return &Service{
		store:       store,
		aliases:     aliases,
		subscribers: subscribers,
		orders:      provider,
		queue:       queue,
		locker:      locker,
		eventBus:    eventBus,
		settings:    settings,
		log:         log,
		now:         time.Now,
	}
}

// Start captures the merchant's current subscribers into a pending run and
// queues it. A merchant without a single SKU alias cannot start a run.
func (s *Service) Start(ctx context.Context, merchantID, actorID uuid.UUID) (transport.RunResponse, error) {
	aliases, err := s.aliases.CountAliases(ctx, merchantID)
	if err != nil {
		return transport.RunResponse{}, err
	}
	if aliases == 0 {
		return transport.RunResponse{}, apperr.Precondition("no SKU aliases are defined; map SKUs to installments before starting a migration run")
	}
	if s.queue == nil {
		return transport.RunResponse{}, apperr.Precondition("background worker is not configured")
	}

	ids, err := s.subscribers.ListSubscriberIDs(ctx, merchantID)
	if err != nil {
		return transport.RunResponse{}, err
	}

	run := domain.Run{
		ID:            uuid.New(),
		MerchantID:    merchantID,
		Status:        domain.StatusPending,
		SubscriberIDs: ids,
		Total:         len(ids),
		CreatedBy:     actorID,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.Create(ctx, run); err != nil {
		return transport.RunResponse{}, err
	}

	if err := s.queue.EnqueueMigrationRun(ctx, merchantID, run.ID); err != nil {
		_ = s.store.Finish(ctx, merchantID, run.ID, domain.StatusFailed, "could not queue run", s.now().UTC())
		return transport.RunResponse{}, err
	}

	s.log.WithRun(run.ID.String()).Info("migration run queued", "merchantId", merchantID, "subscribers", run.Total, "actorId", actorID)
	return toRunResponse(run), nil
}

// Cancel stops a run after its in-flight batch. Processed subscribers keep
// their outcomes; a new run picks up the rest.
func (s *Service) Cancel(ctx context.Context, merchantID, runID uuid.UUID) (transport.RunResponse, error) {
	run, err := s.store.RequestCancel(ctx, merchantID, runID, s.now().UTC())
	if err != nil {
		return transport.RunResponse{}, err
	}
	s.log.WithRun(runID.String()).Info("migration run cancellation requested", "status", run.Status)
	if run.Status == domain.StatusFailed {
		s.publishFinished(ctx, run)
	}
	return toRunResponse(run), nil
}

func (s *Service) Get(ctx context.Context, merchantID, runID uuid.UUID) (transport.RunResponse, error) {
	run, err := s.store.Get(ctx, merchantID, runID)
	if err != nil {
		return transport.RunResponse{}, err
	}
	return toRunResponse(run), nil
}

func (s *Service) List(ctx context.Context, merchantID uuid.UUID, req transport.ListRunsRequest) (transport.RunListResponse, error) {
	page := req.Page
	pageSize := req.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	runs, total, err := s.store.List(ctx, merchantID, (page-1)*pageSize, pageSize)
	if err != nil {
		return transport.RunListResponse{}, err
	}

	items := make([]transport.RunResponse, 0, len(runs))
	for _, run := range runs {
		items = append(items, toRunResponse(run))
	}
	return transport.RunListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

func (s *Service) publishFinished(ctx context.Context, run domain.Run) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.Publish(ctx, events.MigrationRunFinished{
		BaseEvent:     events.NewBaseEvent(),
		RunID:         run.ID,
		MerchantID:    run.MerchantID,
		Status:        string(run.Status),
		Total:         run.Total,
		Processed:     run.Counters.Processed,
		CleanCount:    run.Counters.CleanCount,
		FlaggedCount:  run.Counters.FlaggedCount,
		FailureReason: run.FailureReason,
	})
}

func toRunResponse(run domain.Run) transport.RunResponse {
	return transport.RunResponse{
		ID:              run.ID,
		Status:          string(run.Status),
		Total:           run.Total,
		Processed:       run.Counters.Processed,
		CleanCount:      run.Counters.CleanCount,
		FlaggedCount:    run.Counters.FlaggedCount,
		FailureReason:   run.FailureReason,
		CancelRequested: run.CancelRequested,
		HasReport:       run.ReportKey != nil,
		CreatedBy:       run.CreatedBy,
		CreatedAt:       run.CreatedAt,
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
	}
}
