package scheduler

import (
	"context"
	"time"

	"github.com/SubscriberSync/portal-sub000/platform/logger"

	"github.com/google/uuid"
)

const defaultImportInterval = 6 * time.Hour

// MerchantLister lists merchants that have imported subscribers before.
type MerchantLister interface {
	ListMerchantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// ImportEnqueuer queues a subscriber import.
type ImportEnqueuer interface {
	EnqueueSubscriberImport(ctx context.Context, merchantID uuid.UUID) error
}

// ImportRefresher periodically re-imports every known merchant so lifecycle
// status and prepaid counts follow the billing platform between runs.
type ImportRefresher struct {
	merchants MerchantLister
	queue     ImportEnqueuer
	log       *logger.Logger
	interval  time.Duration
}

func NewImportRefresher(merchants MerchantLister, queue ImportEnqueuer, log *logger.Logger, interval time.Duration) *ImportRefresher {
	if interval <= 0 {
		interval = defaultImportInterval
	}
	return &ImportRefresher{merchants: merchants, queue: queue, log: log, interval: interval}
}

func (r *ImportRefresher) Run(ctx context.Context) {
	if r == nil || r.merchants == nil || r.queue == nil {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *ImportRefresher) refresh(ctx context.Context) int {
	merchantIDs, err := r.merchants.ListMerchantIDs(ctx)
	if err != nil {
		r.log.Warn("import refresh: list merchants failed", "error", err)
		return 0
	}

	queued := 0
	for _, id := range merchantIDs {
		if err := r.queue.EnqueueSubscriberImport(ctx, id); err != nil {
			r.log.Warn("import refresh: enqueue failed", "merchantId", id, "error", err)
			continue
		}
		queued++
	}
	if queued > 0 {
		r.log.Info("import refresh queued subscriber imports", "merchants", queued)
	}
	return queued
}
