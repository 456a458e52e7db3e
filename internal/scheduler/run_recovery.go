package scheduler

import (
	"context"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/migration/domain"
	"github.com/SubscriberSync/portal-sub000/platform/logger"

	"github.com/google/uuid"
)

const (
	recoveryInterval   = time.Minute
	recoveryStaleAfter = 2 * time.Minute
	recoveryBatch      = 50
)

// StaleRunLister finds runs that were created but never picked up.
type StaleRunLister interface {
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Run, error)
}

// RunEnqueuer queues a migration run.
type RunEnqueuer interface {
	EnqueueMigrationRun(ctx context.Context, merchantID, runID uuid.UUID) error
}

// RunRecovery re-enqueues pending runs whose task was lost, for example when
// the API stopped between creating the run and enqueueing it. A pending run
// otherwise blocks the merchant from starting another.
type RunRecovery struct {
	runs  StaleRunLister
	queue RunEnqueuer
	log   *logger.Logger
	now   func() time.Time
}

func NewRunRecovery(runs StaleRunLister, queue RunEnqueuer, log *logger.Logger) *RunRecovery {
	return &RunRecovery{runs: runs, queue: queue, log: log, now: time.Now}
}

func (r *RunRecovery) Run(ctx context.Context) {
	if r == nil || r.runs == nil || r.queue == nil {
		return
	}

	ticker := time.NewTicker(recoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		r.requeue(ctx)
	}
}

func (r *RunRecovery) requeue(ctx context.Context) int {
	runs, err := r.runs.ListStalePending(ctx, r.now().Add(-recoveryStaleAfter), recoveryBatch)
	if err != nil {
		r.log.Warn("run recovery: list stale runs failed", "error", err)
		return 0
	}

	requeued := 0
	for _, run := range runs {
		if err := r.queue.EnqueueMigrationRun(ctx, run.MerchantID, run.ID); err != nil {
			r.log.Warn("run recovery: enqueue failed", "runId", run.ID, "error", err)
			continue
		}
		requeued++
	}
	if requeued > 0 {
		r.log.Info("run recovery re-enqueued pending runs", "runs", requeued)
	}
	return requeued
}
