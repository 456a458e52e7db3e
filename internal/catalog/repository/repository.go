package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/catalog/domain"
	"github.com/SubscriberSync/portal-sub000/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	variationNotFoundMessage = "product variation not found"
	tierNotFoundMessage      = "variation or tier not found"
)

// Repo implements the catalog repository.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new catalog repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

const variationColumns = `id, merchant_id, product_name, variant_title, variation_key, sku, classification,
	tier_id, order_count, first_seen_at, last_seen_at, created_at, updated_at`

// RecordSightings upserts variations by natural key and returns how many were new.
// Order counts keep the largest full-history total seen so rescans do not inflate them.
func (r *Repo) RecordSightings(ctx context.Context, merchantID uuid.UUID, sightings []Sighting) (int, error) {
	if len(sightings) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO product_variations (
			id, merchant_id, product_name, variant_title, variation_key, sku, order_count, first_seen_at, last_seen_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (merchant_id, variation_key) DO UPDATE SET
			sku = CASE WHEN product_variations.sku = '' THEN EXCLUDED.sku ELSE product_variations.sku END,
			order_count = GREATEST(product_variations.order_count, EXCLUDED.order_count),
			first_seen_at = LEAST(product_variations.first_seen_at, EXCLUDED.first_seen_at),
			last_seen_at = GREATEST(product_variations.last_seen_at, EXCLUDED.last_seen_at),
			updated_at = now()
		RETURNING (xmax = 0)`

	batch := &pgx.Batch{}
	for _, s := range sightings {
		batch.Queue(query,
			uuid.New(), merchantID, strings.TrimSpace(s.ProductName), strings.TrimSpace(s.VariantTitle),
			domain.VariationKey(s.ProductName, s.VariantTitle), strings.TrimSpace(s.SKU),
			s.Orders, s.FirstSeenAt, s.LastSeenAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	created := 0
	for range sightings {
		var inserted bool
		if err := results.QueryRow().Scan(&inserted); err != nil {
			return created, fmt.Errorf("record sighting: %w", err)
		}
		if inserted {
			created++
		}
	}
	return created, nil
}

// GetVariation retrieves a variation by ID.
func (r *Repo) GetVariation(ctx context.Context, merchantID, id uuid.UUID) (Variation, error) {
	query := `SELECT ` + variationColumns + ` FROM product_variations WHERE id = $1 AND merchant_id = $2`

	v, err := scanVariation(r.pool.QueryRow(ctx, query, id, merchantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Variation{}, apperr.NotFound(variationNotFoundMessage)
		}
		return Variation{}, fmt.Errorf("get variation: %w", err)
	}
	return v, nil
}

// ListVariations returns variations with filters and pagination, most ordered first.
func (r *Repo) ListVariations(ctx context.Context, params ListVariationsParams) ([]Variation, int, error) {
	whereClauses := []string{"merchant_id = $1"}
	args := []interface{}{params.MerchantID}
	argIdx := 2

	if params.Classification != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("classification = $%d", argIdx))
		args = append(args, string(*params.Classification))
		argIdx++
	}
	if params.Search != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("(product_name ILIKE $%d OR variant_title ILIKE $%d OR sku ILIKE $%d)", argIdx, argIdx, argIdx))
		args = append(args, "%"+params.Search+"%")
		argIdx++
	}

	whereClause := strings.Join(whereClauses, " AND ")

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM product_variations WHERE %s", whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count variations: %w", err)
	}

	args = append(args, params.Limit, params.Offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM product_variations
		WHERE %s
		ORDER BY order_count DESC, variation_key ASC
		LIMIT $%d OFFSET $%d
	`, variationColumns, whereClause, argIdx, argIdx+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list variations: %w", err)
	}
	defer rows.Close()

	items := make([]Variation, 0)
	for rows.Next() {
		v, err := scanVariation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan variation: %w", err)
		}
		items = append(items, v)
	}
	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("iterate variations: %w", rows.Err())
	}

	return items, total, nil
}

// ListUnclassified returns unreviewed variations that have no pending suggestion.
func (r *Repo) ListUnclassified(ctx context.Context, merchantID uuid.UUID, limit int) ([]Variation, error) {
	query := `
		SELECT ` + variationColumns + `
		FROM product_variations v
		WHERE v.merchant_id = $1
			AND v.classification = ''
			AND NOT EXISTS (
				SELECT 1 FROM classification_suggestions s
				WHERE s.variation_id = v.id AND s.status = 'pending'
			)
		ORDER BY v.order_count DESC, v.variation_key ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, merchantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list unclassified variations: %w", err)
	}
	defer rows.Close()

	items := make([]Variation, 0)
	for rows.Next() {
		v, err := scanVariation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan variation: %w", err)
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

// SetClassification applies c to every listed variation. Rows that already
// carry c are left untouched, so reapplying is a no-op.
func (r *Repo) SetClassification(ctx context.Context, merchantID uuid.UUID, ids []uuid.UUID, c domain.Classification) (ClassifyResult, error) {
	query := `
		WITH target AS (
			SELECT id FROM product_variations WHERE merchant_id = $1 AND id = ANY($2)
		), changed AS (
			UPDATE product_variations v
			SET classification = $3, updated_at = now()
			FROM target
			WHERE v.id = target.id AND v.classification <> $3
			RETURNING v.id
		)
		SELECT (SELECT COUNT(*) FROM target), (SELECT COUNT(*) FROM changed)`

	var res ClassifyResult
	if err := r.pool.QueryRow(ctx, query, merchantID, ids, string(c)).Scan(&res.Matched, &res.Changed); err != nil {
		return ClassifyResult{}, fmt.Errorf("set classification: %w", err)
	}
	return res, nil
}

// AssignTier links a variation to a tier of the same merchant, or clears the link when tierID is nil.
func (r *Repo) AssignTier(ctx context.Context, merchantID, id uuid.UUID, tierID *uuid.UUID) (Variation, error) {
	query := `
		UPDATE product_variations
		SET tier_id = $3, updated_at = now()
		WHERE id = $1 AND merchant_id = $2
			AND ($3::uuid IS NULL OR EXISTS (SELECT 1 FROM tiers WHERE id = $3 AND merchant_id = $2))
		RETURNING ` + variationColumns

	v, err := scanVariation(r.pool.QueryRow(ctx, query, id, merchantID, tierID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Variation{}, apperr.NotFound(tierNotFoundMessage)
		}
		return Variation{}, fmt.Errorf("assign tier: %w", err)
	}
	return v, nil
}

// ClassificationCounts returns variation counts per classification.
func (r *Repo) ClassificationCounts(ctx context.Context, merchantID uuid.UUID) (map[domain.Classification]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT classification, COUNT(*) FROM product_variations
		WHERE merchant_id = $1
		GROUP BY classification`, merchantID)
	if err != nil {
		return nil, fmt.Errorf("count classifications: %w", err)
	}
	defer rows.Close()

	counts := map[domain.Classification]int{}
	for rows.Next() {
		var (
			c string
			n int
		)
		if err := rows.Scan(&c, &n); err != nil {
			return nil, fmt.Errorf("scan classification count: %w", err)
		}
		counts[domain.Classification(c)] = n
	}
	return counts, rows.Err()
}

// CreateSuggestions queues suggestions; a variation keeps at most one pending suggestion.
func (r *Repo) CreateSuggestions(ctx context.Context, suggestions []Suggestion) (int, error) {
	if len(suggestions) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO classification_suggestions (
			id, merchant_id, variation_id, classification, confidence, rationale, source
		)
		SELECT $1, $2, v.id, $4, $5, $6, $7
		FROM product_variations v
		WHERE v.id = $3 AND v.merchant_id = $2
		ON CONFLICT (variation_id) WHERE status = 'pending' DO NOTHING`

	batch := &pgx.Batch{}
	for _, s := range suggestions {
		batch.Queue(query, uuid.New(), s.MerchantID, s.VariationID, string(s.Classification), s.Confidence.Round(3), s.Rationale, s.Source)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	created := 0
	for range suggestions {
		tag, err := results.Exec()
		if err != nil {
			return created, fmt.Errorf("create suggestion: %w", err)
		}
		created += int(tag.RowsAffected())
	}
	return created, nil
}

// ListSuggestions returns the suggestion queue, highest confidence first.
func (r *Repo) ListSuggestions(ctx context.Context, params ListSuggestionsParams) ([]Suggestion, error) {
	whereClauses := []string{"s.merchant_id = $1", "s.status = $2"}
	args := []interface{}{params.MerchantID, string(params.Status)}
	if params.Classification != nil {
		whereClauses = append(whereClauses, "s.classification = $3")
		args = append(args, string(*params.Classification))
	}
	args = append(args, params.Limit)

	query := fmt.Sprintf(`
		SELECT s.id, s.merchant_id, s.variation_id, s.classification, s.confidence, s.rationale, s.source,
			s.status, s.decided_by, s.decided_at, s.created_at, v.product_name, v.variant_title, v.sku
		FROM classification_suggestions s
		JOIN product_variations v ON v.id = s.variation_id
		WHERE %s
		ORDER BY s.confidence DESC, v.order_count DESC, s.id ASC
		LIMIT $%d
	`, strings.Join(whereClauses, " AND "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	items := make([]Suggestion, 0)
	for rows.Next() {
		var (
			s              Suggestion
			classification string
			status         string
		)
		if err := rows.Scan(
			&s.ID, &s.MerchantID, &s.VariationID, &classification, &s.Confidence, &s.Rationale, &s.Source,
			&status, &s.DecidedBy, &s.DecidedAt, &s.CreatedAt, &s.ProductName, &s.VariantTitle, &s.SKU,
		); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		s.Classification = domain.Classification(classification)
		s.Status = SuggestionStatus(status)
		items = append(items, s)
	}
	return items, rows.Err()
}

// ConfirmSuggestions closes pending suggestions of one classification and writes
// that classification to their variations. An empty ids list confirms all of them.
func (r *Repo) ConfirmSuggestions(ctx context.Context, merchantID uuid.UUID, c domain.Classification, ids []uuid.UUID, actor uuid.UUID) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin confirm suggestions: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		UPDATE classification_suggestions
		SET status = 'confirmed', decided_by = $4, decided_at = $5
		WHERE merchant_id = $1 AND status = 'pending' AND classification = $2
			AND ($6 OR id = ANY($3))
		RETURNING variation_id`,
		merchantID, string(c), nonNilIDs(ids), actor, time.Now().UTC(), len(ids) == 0)
	if err != nil {
		return 0, fmt.Errorf("confirm suggestions: %w", err)
	}
	variationIDs, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return 0, fmt.Errorf("collect confirmed suggestions: %w", err)
	}

	if len(variationIDs) > 0 {
		if _, err := tx.Exec(ctx, `
			UPDATE product_variations
			SET classification = $3, updated_at = now()
			WHERE merchant_id = $1 AND id = ANY($2) AND classification <> $3`,
			merchantID, variationIDs, string(c)); err != nil {
			return 0, fmt.Errorf("apply confirmed suggestions: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit confirm suggestions: %w", err)
	}
	return len(variationIDs), nil
}

// RejectSuggestions closes pending suggestions without touching variations.
func (r *Repo) RejectSuggestions(ctx context.Context, merchantID uuid.UUID, ids []uuid.UUID, actor uuid.UUID) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE classification_suggestions
		SET status = 'rejected', decided_by = $3, decided_at = $4
		WHERE merchant_id = $1 AND status = 'pending' AND id = ANY($2)`,
		merchantID, nonNilIDs(ids), actor, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("reject suggestions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func nonNilIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

func scanVariation(row pgx.Row) (Variation, error) {
	var (
		v              Variation
		classification string
	)
	err := row.Scan(
		&v.ID, &v.MerchantID, &v.ProductName, &v.VariantTitle, &v.VariationKey, &v.SKU, &classification,
		&v.TierID, &v.OrderCount, &v.FirstSeenAt, &v.LastSeenAt, &v.CreatedAt, &v.UpdatedAt,
	)
	v.Classification = domain.Classification(classification)
	return v, err
}
