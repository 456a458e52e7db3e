package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/aliases/snapshot"
	"github.com/SubscriberSync/portal-sub000/internal/catalog/domain"
	"github.com/SubscriberSync/portal-sub000/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	seriesNotFoundMsg = "series not found"
	tierNotFoundMsg   = "tier not found"
	aliasNotFoundMsg  = "sku alias not found"

	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Repository provides database operations for series, tiers and SKU aliases.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new aliases repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Series struct {
	ID                uuid.UUID
	MerchantID        uuid.UUID
	Name              string
	Sequential        bool
	TotalInstallments *int
	ExternalProductID *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Tier struct {
	ID             uuid.UUID
	MerchantID     uuid.UUID
	SeriesID       uuid.UUID
	SequenceNumber int
	Label          string
	CreatedAt      time.Time
}

type Alias struct {
	MerchantID     uuid.UUID
	SKU            string
	SKUNormalized  string
	TierID         uuid.UUID
	SeriesID       uuid.UUID
	SequenceNumber int
	UpdatedAt      time.Time
}

type TierReferences struct {
	Aliases    int `json:"aliases"`
	Variations int `json:"variations"`
}

// Total is the number of rows pointing at the tier.
func (t TierReferences) Total() int { return t.Aliases + t.Variations }

type UnknownSKU struct {
	SKU         string
	ProductName string
	Occurrences int
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// UnknownSighting is one unresolved SKU observed in an order.
type UnknownSighting struct {
	SKU         string
	ProductName string
	SeenAt      time.Time
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func (r *Repository) CreateSeries(ctx context.Context, s Series) (Series, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO series (id, merchant_id, name, sequential, total_installments, external_product_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING created_at, updated_at
	`, s.ID, s.MerchantID, s.Name, s.Sequential, s.TotalInstallments, s.ExternalProductID, s.CreatedAt).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return Series{}, apperr.Conflict("a series with this name already exists")
		}
		return Series{}, fmt.Errorf("create series: %w", err)
	}
	return s, nil
}

func (r *Repository) GetSeries(ctx context.Context, merchantID, id uuid.UUID) (Series, error) {
	var s Series
	err := r.pool.QueryRow(ctx, `
		SELECT id, merchant_id, name, sequential, total_installments, external_product_id, created_at, updated_at
		FROM series WHERE id = $1 AND merchant_id = $2
	`, id, merchantID).Scan(&s.ID, &s.MerchantID, &s.Name, &s.Sequential, &s.TotalInstallments, &s.ExternalProductID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Series{}, apperr.NotFound(seriesNotFoundMsg)
		}
		return Series{}, fmt.Errorf("get series: %w", err)
	}
	return s, nil
}

func (r *Repository) ListSeries(ctx context.Context, merchantID uuid.UUID) ([]Series, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, merchant_id, name, sequential, total_installments, external_product_id, created_at, updated_at
		FROM series WHERE merchant_id = $1
		ORDER BY name ASC, id ASC
	`, merchantID)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	defer rows.Close()

	items := make([]Series, 0)
	for rows.Next() {
		var s Series
		if err := rows.Scan(&s.ID, &s.MerchantID, &s.Name, &s.Sequential, &s.TotalInstallments, &s.ExternalProductID, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan series: %w", err)
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate series: %w", err)
	}
	return items, nil
}

func (r *Repository) CreateTier(ctx context.Context, t Tier) (Tier, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO tiers (id, merchant_id, series_id, sequence_number, label, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, t.ID, t.MerchantID, t.SeriesID, t.SequenceNumber, t.Label, t.CreatedAt).Scan(&t.CreatedAt)
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return Tier{}, apperr.Conflict("a tier with this sequence number already exists in the series")
		}
		return Tier{}, fmt.Errorf("create tier: %w", err)
	}
	return t, nil
}

func (r *Repository) GetTier(ctx context.Context, merchantID, id uuid.UUID) (Tier, error) {
	var t Tier
	err := r.pool.QueryRow(ctx, `
		SELECT id, merchant_id, series_id, sequence_number, label, created_at
		FROM tiers WHERE id = $1 AND merchant_id = $2
	`, id, merchantID).Scan(&t.ID, &t.MerchantID, &t.SeriesID, &t.SequenceNumber, &t.Label, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tier{}, apperr.NotFound(tierNotFoundMsg)
		}
		return Tier{}, fmt.Errorf("get tier: %w", err)
	}
	return t, nil
}

func (r *Repository) ListTiers(ctx context.Context, merchantID, seriesID uuid.UUID) ([]Tier, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, merchant_id, series_id, sequence_number, label, created_at
		FROM tiers WHERE merchant_id = $1 AND series_id = $2
		ORDER BY sequence_number ASC
	`, merchantID, seriesID)
	if err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	defer rows.Close()

	items := make([]Tier, 0)
	for rows.Next() {
		var t Tier
		if err := rows.Scan(&t.ID, &t.MerchantID, &t.SeriesID, &t.SequenceNumber, &t.Label, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tiers: %w", err)
	}
	return items, nil
}

func (r *Repository) TierReferences(ctx context.Context, merchantID, tierID uuid.UUID) (TierReferences, error) {
	var refs TierReferences
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM sku_aliases WHERE merchant_id = $1 AND tier_id = $2),
			(SELECT COUNT(*) FROM product_variations WHERE merchant_id = $1 AND tier_id = $2)
	`, merchantID, tierID).Scan(&refs.Aliases, &refs.Variations)
	if err != nil {
		return TierReferences{}, fmt.Errorf("count tier references: %w", err)
	}
	return refs, nil
}

// DeleteTier removes the tier with its aliases and unassigns variations pointing at it.
func (r *Repository) DeleteTier(ctx context.Context, merchantID, tierID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete tier: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE product_variations SET tier_id = NULL, updated_at = now()
		WHERE merchant_id = $1 AND tier_id = $2`, merchantID, tierID); err != nil {
		return fmt.Errorf("unassign variations: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM sku_aliases WHERE merchant_id = $1 AND tier_id = $2`, merchantID, tierID); err != nil {
		return fmt.Errorf("delete tier aliases: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM tiers WHERE id = $1 AND merchant_id = $2`, tierID, merchantID)
	if err != nil {
		return fmt.Errorf("delete tier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(tierNotFoundMsg)
	}
	return tx.Commit(ctx)
}

// MergeTier repoints everything referencing from to into, then deletes from.
func (r *Repository) MergeTier(ctx context.Context, merchantID, from, into uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin merge tier: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE sku_aliases SET tier_id = $3, updated_at = now()
		WHERE merchant_id = $1 AND tier_id = $2`, merchantID, from, into); err != nil {
		return fmt.Errorf("repoint aliases: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE product_variations SET tier_id = $3, updated_at = now()
		WHERE merchant_id = $1 AND tier_id = $2`, merchantID, from, into); err != nil {
		return fmt.Errorf("repoint variations: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM tiers WHERE id = $1 AND merchant_id = $2`, from, merchantID)
	if err != nil {
		return fmt.Errorf("delete merged tier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(tierNotFoundMsg)
	}
	return tx.Commit(ctx)
}

// UpsertAliases writes aliases keyed by (merchant, normalized SKU). The last
// write for a key wins.
func (r *Repository) UpsertAliases(ctx context.Context, aliases []Alias) error {
	if len(aliases) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range aliases {
		batch.Queue(`
			INSERT INTO sku_aliases (merchant_id, sku_normalized, sku, tier_id, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (merchant_id, sku_normalized)
			DO UPDATE SET sku = EXCLUDED.sku, tier_id = EXCLUDED.tier_id, updated_at = EXCLUDED.updated_at
		`, a.MerchantID, a.SKUNormalized, a.SKU, a.TierID, a.UpdatedAt)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range aliases {
		if _, err := results.Exec(); err != nil {
			if isPgCode(err, pgForeignKeyViolation) {
				return apperr.Validation("tier does not exist")
			}
			return fmt.Errorf("upsert sku alias: %w", err)
		}
	}
	return nil
}

func (r *Repository) DeleteAlias(ctx context.Context, merchantID uuid.UUID, skuNormalized string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sku_aliases WHERE merchant_id = $1 AND sku_normalized = $2`, merchantID, skuNormalized)
	if err != nil {
		return fmt.Errorf("delete sku alias: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(aliasNotFoundMsg)
	}
	return nil
}

func (r *Repository) ListAliases(ctx context.Context, merchantID uuid.UUID, seriesID *uuid.UUID) ([]Alias, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.merchant_id, a.sku, a.sku_normalized, a.tier_id, t.series_id, t.sequence_number, a.updated_at
		FROM sku_aliases a
		JOIN tiers t ON t.id = a.tier_id
		WHERE a.merchant_id = $1 AND ($2::uuid IS NULL OR t.series_id = $2)
		ORDER BY t.series_id, t.sequence_number, a.sku_normalized
	`, merchantID, seriesID)
	if err != nil {
		return nil, fmt.Errorf("list sku aliases: %w", err)
	}
	defer rows.Close()

	items := make([]Alias, 0)
	for rows.Next() {
		var a Alias
		if err := rows.Scan(&a.MerchantID, &a.SKU, &a.SKUNormalized, &a.TierID, &a.SeriesID, &a.SequenceNumber, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan sku alias: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sku aliases: %w", err)
	}
	return items, nil
}

func (r *Repository) CountAliases(ctx context.Context, merchantID uuid.UUID) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sku_aliases WHERE merchant_id = $1`, merchantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sku aliases: %w", err)
	}
	return n, nil
}

// RecordUnknownSKUs bumps occurrence counters for unresolved SKUs.
func (r *Repository) RecordUnknownSKUs(ctx context.Context, merchantID uuid.UUID, sightings []UnknownSighting) error {
	if len(sightings) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, s := range sightings {
		key := domain.Normalize(s.SKU)
		if key == "" {
			continue
		}
		batch.Queue(`
			INSERT INTO unknown_skus (merchant_id, sku_normalized, sku, product_name, occurrences, first_seen_at, last_seen_at)
			VALUES ($1, $2, $3, $4, 1, $5, $5)
			ON CONFLICT (merchant_id, sku_normalized) DO UPDATE SET
				occurrences = unknown_skus.occurrences + 1,
				product_name = CASE WHEN EXCLUDED.product_name <> '' THEN EXCLUDED.product_name ELSE unknown_skus.product_name END,
				first_seen_at = LEAST(unknown_skus.first_seen_at, EXCLUDED.first_seen_at),
				last_seen_at = GREATEST(unknown_skus.last_seen_at, EXCLUDED.last_seen_at)
		`, merchantID, key, s.SKU, s.ProductName, s.SeenAt)
	}
	queued := batch.Len()
	if queued == 0 {
		return nil
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < queued; i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("record unknown sku: %w", err)
		}
	}
	return nil
}

// ListUnknownSKUs returns unresolved SKUs that still have no alias, most frequent first.
func (r *Repository) ListUnknownSKUs(ctx context.Context, merchantID uuid.UUID, limit int) ([]UnknownSKU, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.sku, u.product_name, u.occurrences, u.first_seen_at, u.last_seen_at
		FROM unknown_skus u
		WHERE u.merchant_id = $1
			AND NOT EXISTS (
				SELECT 1 FROM sku_aliases a
				WHERE a.merchant_id = u.merchant_id AND a.sku_normalized = u.sku_normalized
			)
		ORDER BY u.occurrences DESC, u.sku_normalized ASC
		LIMIT $2
	`, merchantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list unknown skus: %w", err)
	}
	defer rows.Close()

	items := make([]UnknownSKU, 0)
	for rows.Next() {
		var u UnknownSKU
		if err := rows.Scan(&u.SKU, &u.ProductName, &u.Occurrences, &u.FirstSeenAt, &u.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan unknown sku: %w", err)
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unknown skus: %w", err)
	}
	return items, nil
}

// LoadSnapshot reads the merchant's alias table and variation rules in one
// repeatable-read transaction.
func (r *Repository) LoadSnapshot(ctx context.Context, merchantID uuid.UUID) (*snapshot.Snapshot, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	series, err := loadSnapshotSeries(ctx, tx, merchantID)
	if err != nil {
		return nil, err
	}
	aliases, err := loadSnapshotAliases(ctx, tx, merchantID)
	if err != nil {
		return nil, err
	}
	rules, err := loadSnapshotRules(ctx, tx, merchantID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit snapshot: %w", err)
	}
	return snapshot.New(merchantID, series, aliases, rules), nil
}

func loadSnapshotSeries(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID) ([]snapshot.Series, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, name, sequential, total_installments, COALESCE(external_product_id, '')
		FROM series WHERE merchant_id = $1
	`, merchantID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot series: %w", err)
	}
	defer rows.Close()

	var out []snapshot.Series
	for rows.Next() {
		var s snapshot.Series
		if err := rows.Scan(&s.ID, &s.Name, &s.Sequential, &s.TotalInstallments, &s.ExternalProductID); err != nil {
			return nil, fmt.Errorf("scan snapshot series: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func loadSnapshotAliases(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID) ([]snapshot.Alias, error) {
	rows, err := tx.Query(ctx, `
		SELECT a.sku_normalized, t.series_id, t.sequence_number
		FROM sku_aliases a JOIN tiers t ON t.id = a.tier_id
		WHERE a.merchant_id = $1
	`, merchantID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot aliases: %w", err)
	}
	defer rows.Close()

	var out []snapshot.Alias
	for rows.Next() {
		var a snapshot.Alias
		if err := rows.Scan(&a.Key, &a.Target.SeriesID, &a.Target.Sequence); err != nil {
			return nil, fmt.Errorf("scan snapshot alias: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func loadSnapshotRules(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID) ([]snapshot.VariationRule, error) {
	rows, err := tx.Query(ctx, `
		SELECT v.product_name, v.variant_title, v.sku, v.classification, t.series_id, t.sequence_number
		FROM product_variations v
		LEFT JOIN tiers t ON t.id = v.tier_id
		WHERE v.merchant_id = $1
	`, merchantID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot rules: %w", err)
	}
	defer rows.Close()

	var out []snapshot.VariationRule
	for rows.Next() {
		var (
			rule           snapshot.VariationRule
			classification string
			seriesID       *uuid.UUID
			seq            *int
		)
		if err := rows.Scan(&rule.ProductName, &rule.VariantTitle, &rule.SKU, &classification, &seriesID, &seq); err != nil {
			return nil, fmt.Errorf("scan snapshot rule: %w", err)
		}
		rule.Classification = domain.Classification(classification)
		if seriesID != nil && seq != nil {
			rule.Assigned = &snapshot.Target{SeriesID: *seriesID, Sequence: *seq}
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}
