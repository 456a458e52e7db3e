package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	aliasrepo "github.com/SubscriberSync/portal-sub000/internal/aliases/repository"
	"github.com/SubscriberSync/portal-sub000/internal/aliases/snapshot"
	"github.com/SubscriberSync/portal-sub000/internal/events"
	"github.com/SubscriberSync/portal-sub000/internal/migration/domain"
	"github.com/SubscriberSync/portal-sub000/internal/orders"
	"github.com/SubscriberSync/portal-sub000/platform/apperr"
	"github.com/SubscriberSync/portal-sub000/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Execute runs a queued migration run to completion. Batches run one after
// another; subscribers inside a batch are reconciled concurrently, at most
// BatchSize at a time. Counters are stored after every batch.
//
// A worker shutdown (ctx cancelled) leaves the run running so a retry
// resumes after the last stored batch. Operator cancellation and
// unrecoverable errors fail the run.
func (s *Service) Execute(ctx context.Context, merchantID, runID uuid.UUID) error {
	log := s.log.WithRun(runID.String()).WithMerchant(merchantID.String())
	if s.orders == nil {
		return apperr.Precondition("order history provider is not configured")
	}

	run, err := s.store.Get(ctx, merchantID, runID)
	if err != nil {
		return err
	}
	if !domain.IsActive(run.Status) {
		log.Info("migration run already finished, nothing to execute", "status", run.Status)
		return nil
	}

	if s.locker != nil {
		lease, err := s.locker.Acquire(ctx, merchantID)
		if err != nil {
			return err
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("release run lock failed", "error", err)
			}
		}()
	}

	startedAt, err := s.store.MarkRunning(ctx, merchantID, runID, s.now().UTC())
	if err != nil {
		return err
	}
	run.Status = domain.StatusRunning
	run.StartedAt = &startedAt
	if run.Counters.Processed == 0 && s.eventBus != nil {
		s.eventBus.Publish(ctx, events.MigrationRunStarted{
			BaseEvent:  events.NewBaseEvent(),
			RunID:      runID,
			MerchantID: merchantID,
			Total:      run.Total,
		})
	}
	log.Info("migration run started", "total", run.Total, "resumeAt", run.Counters.Processed, "batchSize", s.settings.BatchSize)

	snap, err := s.aliases.LoadSnapshot(ctx, merchantID)
	if err != nil {
		return s.fail(ctx, log, run, fmt.Errorf("load alias snapshot: %w", err))
	}

	for i, batch := range domain.Batches(run.Remaining(), s.settings.BatchSize) {
		cancelled, err := s.store.CancelRequested(ctx, merchantID, runID)
		if err != nil {
			return s.fail(ctx, log, run, err)
		}
		if cancelled {
			run.FailureReason = domain.FailureCancelled
			return s.finish(ctx, log, run, domain.StatusFailed)
		}
		if i > 0 && s.settings.BatchDelay > 0 {
			if err := sleep(ctx, s.settings.BatchDelay); err != nil {
				return err
			}
		}

		counts, err := s.processBatch(ctx, log, run, snap, batch)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return s.fail(ctx, log, run, err)
		}
		run.Counters = run.Counters.Add(counts)
		if err := s.store.SaveProgress(ctx, merchantID, runID, run.Counters); err != nil {
			return s.fail(ctx, log, run, err)
		}
		log.Debug("migration batch done", "processed", run.Counters.Processed, "clean", run.Counters.CleanCount,
			"flagged", run.Counters.FlaggedCount)
	}

	return s.finish(ctx, log, run, domain.StatusCompleted)
}

// tally is what one subscriber adds to the batch counters.
type tally struct {
	clean   bool
	unknown []aliasrepo.UnknownSighting
}

// processBatch reconciles one batch. A subscriber whose order history cannot
// be read still gets a flagged entry; only persistence failures abort.
func (s *Service) processBatch(ctx context.Context, log *logger.Logger, run domain.Run, snap *snapshot.Snapshot, batch []uuid.UUID) (domain.Counters, error) {
	results := make([]tally, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.settings.BatchSize)
	for i, subscriberID := range batch {
		g.Go(func() error {
			t, err := s.reconcileOne(gctx, log, run, snap, subscriberID)
			if err != nil {
				return fmt.Errorf("subscriber %s: %w", subscriberID, err)
			}
			results[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Counters{}, err
	}

	counts := domain.Counters{Processed: len(batch)}
	var unknown []aliasrepo.UnknownSighting
	for _, t := range results {
		if t.clean {
			counts.CleanCount++
		} else {
			counts.FlaggedCount++
		}
		unknown = append(unknown, t.unknown...)
	}
	if len(unknown) > 0 {
		if err := s.aliases.RecordUnknownSKUs(ctx, run.MerchantID, unknown); err != nil {
			log.Warn("record unknown skus failed", "error", err)
		}
	}
	return counts, nil
}

// reconcileOne stores the subscriber's entry and reports how it counts.
// A subscriber deleted since the run started counts as flagged without an
// entry, since its audit rows go with it. On a resumed batch the entry the
// earlier attempt stored decides the count.
func (s *Service) reconcileOne(ctx context.Context, log *logger.Logger, run domain.Run, snap *snapshot.Snapshot, subscriberID uuid.UUID) (tally, error) {
	profile, err := s.subscribers.LoadProfile(ctx, run.MerchantID, subscriberID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			log.Warn("subscriber vanished during run", "subscriberId", subscriberID)
			return tally{}, nil
		}
		return tally{}, err
	}

	in := Input{RunID: run.ID, Profile: profile, Now: s.now().UTC()}
	if run.StartedAt != nil {
		in.RunStartedAt = *run.StartedAt
	}
	if customerID := profile.Subscriber.CommerceCustomerID; customerID != "" {
		in.History, in.FetchErr = s.orders.ListOrders(ctx, customerID, orders.DateRange{})
		if in.FetchErr != nil {
			if ctx.Err() != nil {
				return tally{}, ctx.Err()
			}
			log.Warn("order history fetch failed", "subscriberId", subscriberID, "error", in.FetchErr)
		}
	}

	out := Reconcile(in, snap)
	stored, applied, err := s.store.SaveOutcome(ctx, out.Entry, out.Commit)
	if err != nil {
		return tally{}, err
	}
	if stored.Replayed {
		log.Debug("audit entry already stored by this run", "subscriberId", subscriberID, "entryId", stored.ID)
		return tally{clean: stored.Clean()}, nil
	}
	if out.Commit != nil && !applied.Applied {
		log.Debug("automatic commit skipped", "subscriberId", subscriberID, "reason", applied.Skipped)
	}
	return tally{clean: stored.Clean(), unknown: out.Unknown}, nil
}

func (s *Service) fail(ctx context.Context, log *logger.Logger, run domain.Run, cause error) error {
	run.FailureReason = cause.Error()
	if err := s.finish(ctx, log, run, domain.StatusFailed); err != nil {
		return errors.Join(cause, err)
	}
	return nil
}

func (s *Service) finish(ctx context.Context, log *logger.Logger, run domain.Run, status domain.Status) error {
	if err := domain.Transition(run.Status, status); err != nil {
		return apperr.Conflict(err.Error())
	}
	now := s.now().UTC()
	if err := s.store.Finish(context.WithoutCancel(ctx), run.MerchantID, run.ID, status, run.FailureReason, now); err != nil {
		return err
	}
	run.Status = status
	run.FinishedAt = &now

	if status == domain.StatusCompleted {
		log.Info("migration run completed", "processed", run.Counters.Processed, "clean", run.Counters.CleanCount,
			"flagged", run.Counters.FlaggedCount)
	} else {
		log.Warn("migration run failed", "reason", run.FailureReason, "processed", run.Counters.Processed)
	}
	s.publishFinished(ctx, run)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
