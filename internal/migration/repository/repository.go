package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/audit"
	auditrepo "github.com/SubscriberSync/portal-sub000/internal/audit/repository"
	"github.com/SubscriberSync/portal-sub000/internal/migration/domain"
	subsrepo "github.com/SubscriberSync/portal-sub000/internal/subscribers/repository"
	"github.com/SubscriberSync/portal-sub000/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	runNotFoundMsg = "migration run not found"

	pgUniqueViolation = "23505"
)

// Repository provides database operations for migration runs.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new migration repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const runColumns = `id, merchant_id, status, subscriber_ids, total, processed, clean_count, flagged_count,
	failure_reason, cancel_requested, report_key, created_by, created_at, started_at, finished_at`

// Create stores a pending run. The partial unique index allows one pending or
// running run per merchant.
func (r *Repository) Create(ctx context.Context, run domain.Run) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO migration_runs (id, merchant_id, status, subscriber_ids, total, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, run.ID, run.MerchantID, string(run.Status), nonNilIDs(run.SubscriberIDs), run.Total, run.CreatedBy, run.CreatedAt)
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return apperr.Conflict("a migration run is already pending or running for this merchant")
		}
		return fmt.Errorf("insert migration run: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, merchantID, id uuid.UUID) (domain.Run, error) {
	run, err := scanRun(r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM migration_runs
		WHERE id = $1 AND merchant_id = $2`, id, merchantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Run{}, apperr.NotFound(runNotFoundMsg)
		}
		return domain.Run{}, fmt.Errorf("get migration run: %w", err)
	}
	return run, nil
}

// List returns runs newest first. Subscriber ID lists are not loaded.
func (r *Repository) List(ctx context.Context, merchantID uuid.UUID, offset, limit int) ([]domain.Run, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM migration_runs WHERE merchant_id = $1`, merchantID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count migration runs: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, merchant_id, status, '{}'::uuid[], total, processed, clean_count, flagged_count,
			failure_reason, cancel_requested, report_key, created_by, created_at, started_at, finished_at
		FROM migration_runs
		WHERE merchant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, merchantID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list migration runs: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan migration run: %w", err)
		}
		items = append(items, run)
	}
	return items, total, rows.Err()
}

// ListStalePending returns pending runs created before cutoff, oldest first.
// A run stays pending when its task was lost between creation and enqueue.
func (r *Repository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Run, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, merchant_id, status, '{}'::uuid[], total, processed, clean_count, flagged_count,
			failure_reason, cancel_requested, report_key, created_by, created_at, started_at, finished_at
		FROM migration_runs
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale migration runs: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan migration run: %w", err)
		}
		items = append(items, run)
	}
	return items, rows.Err()
}

// MarkRunning moves a pending run to running. A run already running is
// resumed and keeps its first start time, which is returned.
func (r *Repository) MarkRunning(ctx context.Context, merchantID, id uuid.UUID, now time.Time) (time.Time, error) {
	var startedAt time.Time
	err := r.pool.QueryRow(ctx, `
		UPDATE migration_runs
		SET status = 'running', started_at = COALESCE(started_at, $3)
		WHERE id = $1 AND merchant_id = $2 AND status IN ('pending', 'running')
		RETURNING started_at
	`, id, merchantID, now).Scan(&startedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, apperr.Conflict("migration run is not pending")
		}
		return time.Time{}, fmt.Errorf("start migration run: %w", err)
	}
	return startedAt, nil
}

// SaveProgress stores the counters after a batch. Stored counters never go down.
func (r *Repository) SaveProgress(ctx context.Context, merchantID, id uuid.UUID, c domain.Counters) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE migration_runs
		SET processed = GREATEST(processed, $3),
			clean_count = GREATEST(clean_count, $4),
			flagged_count = GREATEST(flagged_count, $5)
		WHERE id = $1 AND merchant_id = $2
	`, id, merchantID, c.Processed, c.CleanCount, c.FlaggedCount)
	if err != nil {
		return fmt.Errorf("save run progress: %w", err)
	}
	return nil
}

// Finish moves an active run to a terminal status.
func (r *Repository) Finish(ctx context.Context, merchantID, id uuid.UUID, status domain.Status, reason string, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE migration_runs
		SET status = $3, failure_reason = $4, finished_at = $5
		WHERE id = $1 AND merchant_id = $2 AND status IN ('pending', 'running')
	`, id, merchantID, string(status), reason, now)
	if err != nil {
		return fmt.Errorf("finish migration run: %w", err)
	}
	return nil
}

// RequestCancel flags an active run for cancellation. A run that never
// started fails immediately; a running run stops after its current batch.
func (r *Repository) RequestCancel(ctx context.Context, merchantID, id uuid.UUID, now time.Time) (domain.Run, error) {
	run, err := scanRun(r.pool.QueryRow(ctx, `
		UPDATE migration_runs
		SET cancel_requested = TRUE,
			status = CASE WHEN status = 'pending' THEN 'failed' ELSE status END,
			failure_reason = CASE WHEN status = 'pending' THEN $3 ELSE failure_reason END,
			finished_at = CASE WHEN status = 'pending' THEN $4 ELSE finished_at END
		WHERE id = $1 AND merchant_id = $2 AND status IN ('pending', 'running')
		RETURNING `+runColumns, id, merchantID, domain.FailureCancelled, now))
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Run{}, fmt.Errorf("cancel migration run: %w", err)
	}
	if _, getErr := r.Get(ctx, merchantID, id); getErr != nil {
		return domain.Run{}, getErr
	}
	return domain.Run{}, apperr.Conflict("migration run has already finished")
}

func (r *Repository) CancelRequested(ctx context.Context, merchantID, id uuid.UUID) (bool, error) {
	var requested bool
	err := r.pool.QueryRow(ctx, `SELECT cancel_requested FROM migration_runs WHERE id = $1 AND merchant_id = $2`,
		id, merchantID).Scan(&requested)
	if err != nil {
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return requested, nil
}

func (r *Repository) SetReportKey(ctx context.Context, merchantID, id uuid.UUID, key string) error {
	_, err := r.pool.Exec(ctx, `UPDATE migration_runs SET report_key = $3 WHERE id = $1 AND merchant_id = $2`,
		id, merchantID, key)
	if err != nil {
		return fmt.Errorf("set report key: %w", err)
	}
	return nil
}

// SaveOutcome stores one subscriber's audit entry and, for clean outcomes,
// the automatic position commit in the same transaction. When the run
// already stored an entry for the subscriber, that entry is returned and
// no commit is attempted.
func (r *Repository) SaveOutcome(ctx context.Context, entry audit.Entry, auto *subsrepo.AutoCommit) (audit.Stored, subsrepo.AutoOutcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return audit.Stored{}, subsrepo.AutoOutcome{}, fmt.Errorf("begin outcome tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stored, err := auditrepo.Insert(ctx, tx, entry)
	if err != nil {
		return audit.Stored{}, subsrepo.AutoOutcome{}, err
	}

	var outcome subsrepo.AutoOutcome
	if auto != nil && !stored.Replayed {
		outcome, err = subsrepo.CommitAutoTx(ctx, tx, *auto)
		if err != nil {
			return audit.Stored{}, subsrepo.AutoOutcome{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return audit.Stored{}, subsrepo.AutoOutcome{}, fmt.Errorf("commit outcome tx: %w", err)
	}
	return stored, outcome, nil
}

func scanRun(row pgx.Row) (domain.Run, error) {
	var (
		run    domain.Run
		status string
	)
	if err := row.Scan(
		&run.ID,
		&run.MerchantID,
		&status,
		&run.SubscriberIDs,
		&run.Total,
		&run.Counters.Processed,
		&run.Counters.CleanCount,
		&run.Counters.FlaggedCount,
		&run.FailureReason,
		&run.CancelRequested,
		&run.ReportKey,
		&run.CreatedBy,
		&run.CreatedAt,
		&run.StartedAt,
		&run.FinishedAt,
	); err != nil {
		return domain.Run{}, err
	}
	run.Status = domain.Status(status)
	return run, nil
}

func nonNilIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
