package repository

import (
	"context"
	"fmt"

	"github.com/SubscriberSync/portal-sub000/internal/audit"
	auditrepo "github.com/SubscriberSync/portal-sub000/internal/audit/repository"
	subsrepo "github.com/SubscriberSync/portal-sub000/internal/subscribers/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Decide turns a locked flagged entry into its closed form.
type Decide func(audit.Entry) (audit.Entry, error)

// Repository closes audit entries and writes the human-chosen position.
type Repository struct {
	*auditrepo.Repository
	pool *pgxpool.Pool
}

// New creates a new resolution repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{Repository: auditrepo.New(pool), pool: pool}
}

// Close locks the entry, applies decide and stores the result. A resolved
// entry also commits its sequence as a manual position in the same
// transaction; the previous position is returned.
func (r *Repository) Close(ctx context.Context, merchantID, entryID uuid.UUID, decide Decide, reason string) (audit.Entry, int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return audit.Entry{}, 0, fmt.Errorf("begin resolution tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	entry, err := auditrepo.GetForUpdate(ctx, tx, merchantID, entryID)
	if err != nil {
		return audit.Entry{}, 0, err
	}
	closed, err := decide(entry)
	if err != nil {
		return audit.Entry{}, 0, err
	}
	if err := auditrepo.Close(ctx, tx, closed); err != nil {
		return audit.Entry{}, 0, err
	}

	var from int
	if closed.Status == audit.StatusResolved {
		entryID := closed.ID
		from, err = subsrepo.CommitManualTx(ctx, tx, subsrepo.ManualCommit{
			MerchantID:   closed.MerchantID,
			SubscriberID: closed.SubscriberID,
			SeriesID:     *closed.SeriesID,
			Position:     *closed.ResolvedSequence,
			ActorID:      *closed.ClosedBy,
			Reason:       reason,
			AuditEntryID: &entryID,
		})
		if err != nil {
			return audit.Entry{}, 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return audit.Entry{}, 0, fmt.Errorf("commit resolution tx: %w", err)
	}
	return closed, from, nil
}
