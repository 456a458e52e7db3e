package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/anomaly"
	"github.com/SubscriberSync/portal-sub000/internal/audit"
	"github.com/SubscriberSync/portal-sub000/internal/sequence"
	"github.com/SubscriberSync/portal-sub000/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const entryNotFoundMsg = "audit log entry not found"

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx so writes can join a caller's transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides database operations for audit log entries.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new audit repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Pool exposes the pool for callers that open their own transaction.
func (r *Repository) Pool() *pgxpool.Pool { return r.pool }

type ListParams struct {
	MerchantID uuid.UUID
	Status     *audit.Status
	RunID      *uuid.UUID
	Flag       *anomaly.Flag
	Page       int
	PageSize   int
}

type ListResult struct {
	Items      []audit.Entry
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

const entryColumns = `id, merchant_id, run_id, subscriber_id, series_id, status,
	sequence_dates, observed, missing, flags, proposed_next, notes,
	resolved_sequence, skip_reason, closed_by, closed_at, created_at`

// Insert stores an entry. A second entry for the same run and subscriber is
// ignored and the first one is returned with Replayed set.
func Insert(ctx context.Context, db DBTX, e audit.Entry) (audit.Stored, error) {
	events, err := json.Marshal(e.Events)
	if err != nil {
		return audit.Stored{}, fmt.Errorf("encode sequence dates: %w", err)
	}
	missing := e.Missing
	if missing == nil {
		missing = []sequence.MissingPoint{}
	}
	missingJSON, err := json.Marshal(missing)
	if err != nil {
		return audit.Stored{}, fmt.Errorf("encode missing points: %w", err)
	}
	flags := make([]string, len(e.Flags))
	for i, f := range e.Flags {
		flags[i] = string(f)
	}
	observed := make([]int32, len(e.Observed))
	for i, n := range e.Observed {
		observed[i] = int32(n)
	}

	// A resumed run finds the row its earlier attempt wrote.
	var (
		stored   audit.Stored
		status   string
		inserted bool
	)
	err = db.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO audit_log_entries (
				id, merchant_id, run_id, subscriber_id, series_id, status,
				sequence_dates, observed, missing, flags, proposed_next, notes, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (run_id, subscriber_id) DO NOTHING
			RETURNING id, status
		)
		SELECT id, status, true FROM ins
		UNION ALL
		SELECT id, status, false FROM audit_log_entries
		WHERE run_id = $3 AND subscriber_id = $4 AND NOT EXISTS (SELECT 1 FROM ins)
	`, e.ID, e.MerchantID, e.RunID, e.SubscriberID, e.SeriesID, string(e.Status),
		events, observed, missingJSON, flags, e.ProposedNext, e.Notes, e.CreatedAt).
		Scan(&stored.ID, &status, &inserted)
	if err != nil {
		return audit.Stored{}, fmt.Errorf("insert audit entry: %w", err)
	}
	stored.Status = audit.Status(status)
	stored.Replayed = !inserted
	return stored, nil
}

// GetForUpdate locks an entry inside tx.
func GetForUpdate(ctx context.Context, tx pgx.Tx, merchantID, id uuid.UUID) (audit.Entry, error) {
	row := tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM audit_log_entries
		WHERE id = $1 AND merchant_id = $2 FOR UPDATE`, id, merchantID)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return audit.Entry{}, apperr.NotFound(entryNotFoundMsg)
		}
		return audit.Entry{}, fmt.Errorf("lock audit entry: %w", err)
	}
	return e, nil
}

// Close records the terminal decision on a flagged entry. It only touches
// entries still flagged, so a concurrent second close fails.
func Close(ctx context.Context, db DBTX, e audit.Entry) error {
	c := e.Closure()
	tag, err := db.Exec(ctx, `
		UPDATE audit_log_entries
		SET status = $3, resolved_sequence = $4, skip_reason = $5, closed_by = $6, closed_at = $7,
			series_id = COALESCE(series_id, $8)
		WHERE id = $1 AND merchant_id = $2 AND status = 'flagged'
	`, e.ID, e.MerchantID, string(c.Status), c.ResolvedSequence, c.SkipReason, c.ClosedBy, c.ClosedAt, c.SeriesID)
	if err != nil {
		return fmt.Errorf("close audit entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("audit log entry is already closed")
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, merchantID, id uuid.UUID) (audit.Entry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM audit_log_entries
		WHERE id = $1 AND merchant_id = $2`, id, merchantID)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return audit.Entry{}, apperr.NotFound(entryNotFoundMsg)
		}
		return audit.Entry{}, fmt.Errorf("get audit entry: %w", err)
	}
	return e, nil
}

func (r *Repository) List(ctx context.Context, params ListParams) (ListResult, error) {
	var status, flag *string
	if params.Status != nil {
		s := string(*params.Status)
		status = &s
	}
	if params.Flag != nil {
		f := string(*params.Flag)
		flag = &f
	}

	baseQuery := `
		FROM audit_log_entries
		WHERE merchant_id = $1
			AND ($2::text IS NULL OR status = $2)
			AND ($3::uuid IS NULL OR run_id = $3)
			AND ($4::text IS NULL OR $4 = ANY(flags))
	`
	args := []interface{}{params.MerchantID, status, params.RunID, flag}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return ListResult{}, fmt.Errorf("count audit entries: %w", err)
	}

	page, pageSize := normalizePage(params.Page, params.PageSize)
	offset := (page - 1) * pageSize

	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+baseQuery+`
		ORDER BY created_at ASC, id ASC
		LIMIT $5 OFFSET $6`, append(args, pageSize, offset)...)
	if err != nil {
		return ListResult{}, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	items := make([]audit.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return ListResult{}, fmt.Errorf("scan audit entry: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, fmt.Errorf("iterate audit entries: %w", err)
	}

	return ListResult{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// ListByRun returns every entry of a run, oldest first.
func (r *Repository) ListByRun(ctx context.Context, merchantID, runID uuid.UUID) ([]audit.Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM audit_log_entries
		WHERE merchant_id = $1 AND run_id = $2
		ORDER BY created_at ASC, id ASC`, merchantID, runID)
	if err != nil {
		return nil, fmt.Errorf("list run entries: %w", err)
	}
	defer rows.Close()

	items := make([]audit.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run entries: %w", err)
	}
	return items, nil
}

// CountByStatus returns entry counts per status for the merchant.
func (r *Repository) CountByStatus(ctx context.Context, merchantID uuid.UUID) (map[audit.Status]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM audit_log_entries
		WHERE merchant_id = $1 GROUP BY status`, merchantID)
	if err != nil {
		return nil, fmt.Errorf("count audit entries by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[audit.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[audit.Status(status)] = n
	}
	return counts, rows.Err()
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func scanEntry(row pgx.Row) (audit.Entry, error) {
	var (
		e        audit.Entry
		status   string
		events   []byte
		missing  []byte
		observed []int32
		flags    []string
		closedAt *time.Time
	)
	if err := row.Scan(
		&e.ID,
		&e.MerchantID,
		&e.RunID,
		&e.SubscriberID,
		&e.SeriesID,
		&status,
		&events,
		&observed,
		&missing,
		&flags,
		&e.ProposedNext,
		&e.Notes,
		&e.ResolvedSequence,
		&e.SkipReason,
		&e.ClosedBy,
		&closedAt,
		&e.CreatedAt,
	); err != nil {
		return audit.Entry{}, err
	}

	e.Status = audit.Status(status)
	e.ClosedAt = closedAt
	if err := json.Unmarshal(events, &e.Events); err != nil {
		return audit.Entry{}, fmt.Errorf("decode sequence dates: %w", err)
	}
	if err := json.Unmarshal(missing, &e.Missing); err != nil {
		return audit.Entry{}, fmt.Errorf("decode missing points: %w", err)
	}
	e.Observed = make([]int, len(observed))
	for i, n := range observed {
		e.Observed[i] = int(n)
	}
	e.Flags = make([]anomaly.Flag, len(flags))
	for i, f := range flags {
		e.Flags[i] = anomaly.Flag(f)
	}
	return e, nil
}
