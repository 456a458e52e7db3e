package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SubscriberSync/portal-sub000/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	subscriberNotFoundMsg   = "subscriber not found"
	subscriptionNotFoundMsg = "subscription not found"
	seriesNotFoundMsg       = "series not found"

	pgForeignKeyViolation = "23503"
)

// Repository provides database operations for subscribers, their billing
// subscriptions and sequence states.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new subscribers repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Pool exposes the pool for callers composing transactions with CommitAutoTx
// and CommitManualTx.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

const subscriberColumns = `id, merchant_id, external_customer_id, commerce_customer_id, email, first_name, last_name,
	phone, created_at, updated_at`

const subscriptionColumns = `id, merchant_id, subscriber_id, external_id, external_product_id, product_title, sku,
	billing_status, status, charge_unit, charge_frequency, order_unit, order_frequency, price, is_prepaid,
	prepaid_total, prepaid_total_source, delivered_count, delivered_source, prepaid_remaining, started_at,
	cancelled_at, cancellation_reason, next_charge_at, updated_at`

const stateColumns = `merchant_id, subscriber_id, series_id, position, status, is_prepaid, prepaid_total,
	prepaid_remaining, last_writer, manual_at, last_reconciled_at, updated_at`

// UpsertSubscriber inserts or refreshes a subscriber keyed by external customer ID.
func (r *Repository) UpsertSubscriber(ctx context.Context, s Subscriber) (Subscriber, error) {
	query := `
		INSERT INTO subscribers (
			id, merchant_id, external_customer_id, commerce_customer_id, email, first_name, last_name, phone
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (merchant_id, external_customer_id) DO UPDATE SET
			commerce_customer_id = EXCLUDED.commerce_customer_id,
			email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			phone = EXCLUDED.phone,
			updated_at = now()
		RETURNING ` + subscriberColumns

	out, err := scanSubscriber(r.pool.QueryRow(ctx, query,
		s.ID, s.MerchantID, s.ExternalCustomerID, s.CommerceCustomerID, s.Email, s.FirstName, s.LastName, s.Phone,
	))
	if err != nil {
		return Subscriber{}, fmt.Errorf("upsert subscriber: %w", err)
	}
	return out, nil
}

// GetSubscriber retrieves a subscriber by ID.
func (r *Repository) GetSubscriber(ctx context.Context, merchantID, id uuid.UUID) (Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE id = $1 AND merchant_id = $2`
	s, err := scanSubscriber(r.pool.QueryRow(ctx, query, id, merchantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subscriber{}, apperr.NotFound(subscriberNotFoundMsg)
		}
		return Subscriber{}, fmt.Errorf("get subscriber: %w", err)
	}
	return s, nil
}

// ListSubscribers returns subscribers with search and pagination.
func (r *Repository) ListSubscribers(ctx context.Context, params ListParams) ([]Subscriber, int, error) {
	where := "merchant_id = $1"
	args := []interface{}{params.MerchantID}
	if params.Search != "" {
		where += " AND (email ILIKE $2 OR first_name ILIKE $2 OR last_name ILIKE $2 OR external_customer_id = $3)"
		args = append(args, "%"+params.Search+"%", params.Search)
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM subscribers WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count subscribers: %w", err)
	}

	args = append(args, params.Limit, params.Offset)
	query := fmt.Sprintf(`
		SELECT %s FROM subscribers
		WHERE %s
		ORDER BY created_at ASC, id ASC
		LIMIT $%d OFFSET $%d`, subscriberColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	items := make([]Subscriber, 0)
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan subscriber: %w", err)
		}
		items = append(items, s)
	}
	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("iterate subscribers: %w", rows.Err())
	}
	return items, total, nil
}

// ListSubscriberIDs returns every subscriber of the merchant in a stable order.
func (r *Repository) ListSubscriberIDs(ctx context.Context, merchantID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM subscribers WHERE merchant_id = $1 ORDER BY created_at, id`, merchantID)
	if err != nil {
		return nil, fmt.Errorf("list subscriber ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("collect subscriber ids: %w", err)
	}
	return ids, nil
}

// ListMerchantIDs returns every merchant with at least one imported subscriber.
func (r *Repository) ListMerchantIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT merchant_id FROM subscribers ORDER BY merchant_id`)
	if err != nil {
		return nil, fmt.Errorf("list merchants: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("collect merchants: %w", err)
	}
	return ids, nil
}

// ListCommerceCustomerIDs returns the distinct order-history customer IDs of the merchant.
func (r *Repository) ListCommerceCustomerIDs(ctx context.Context, merchantID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT commerce_customer_id FROM subscribers
		WHERE merchant_id = $1 AND commerce_customer_id <> ''
		ORDER BY commerce_customer_id`, merchantID)
	if err != nil {
		return nil, fmt.Errorf("list commerce customers: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect commerce customers: %w", err)
	}
	return ids, nil
}

// UpsertSubscription inserts or refreshes a subscription keyed by external ID.
// A live delivered count is never replaced by an estimate.
func (r *Repository) UpsertSubscription(ctx context.Context, s Subscription) error {
	query := `
		INSERT INTO billing_subscriptions (
			id, merchant_id, subscriber_id, external_id, external_product_id, product_title, sku,
			billing_status, status, charge_unit, charge_frequency, order_unit, order_frequency, price, is_prepaid,
			prepaid_total, prepaid_total_source, delivered_count, delivered_source, prepaid_remaining, started_at,
			cancelled_at, cancellation_reason, next_charge_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		ON CONFLICT (merchant_id, external_id) DO UPDATE SET
			subscriber_id = EXCLUDED.subscriber_id,
			external_product_id = EXCLUDED.external_product_id,
			product_title = EXCLUDED.product_title,
			sku = EXCLUDED.sku,
			billing_status = EXCLUDED.billing_status,
			status = EXCLUDED.status,
			charge_unit = EXCLUDED.charge_unit,
			charge_frequency = EXCLUDED.charge_frequency,
			order_unit = EXCLUDED.order_unit,
			order_frequency = EXCLUDED.order_frequency,
			price = EXCLUDED.price,
			is_prepaid = EXCLUDED.is_prepaid,
			prepaid_total = EXCLUDED.prepaid_total,
			prepaid_total_source = EXCLUDED.prepaid_total_source,
			delivered_count = CASE
				WHEN billing_subscriptions.delivered_source = 'live' AND EXCLUDED.delivered_source = 'estimate'
				THEN billing_subscriptions.delivered_count ELSE EXCLUDED.delivered_count END,
			delivered_source = CASE
				WHEN billing_subscriptions.delivered_source = 'live' THEN 'live' ELSE EXCLUDED.delivered_source END,
			prepaid_remaining = EXCLUDED.prepaid_remaining,
			started_at = EXCLUDED.started_at,
			cancelled_at = EXCLUDED.cancelled_at,
			cancellation_reason = EXCLUDED.cancellation_reason,
			next_charge_at = EXCLUDED.next_charge_at,
			updated_at = now()`

	_, err := r.pool.Exec(ctx, query,
		s.ID, s.MerchantID, s.SubscriberID, s.ExternalID, s.ExternalProductID, s.ProductTitle, s.SKU,
		s.BillingStatus, s.Status, s.ChargeUnit, s.ChargeFrequency, s.OrderUnit, s.OrderFrequency, s.Price, s.IsPrepaid,
		s.PrepaidTotal, s.PrepaidTotalSource, s.DeliveredCount, string(s.DeliveredSource), s.PrepaidRemaining, s.StartedAt,
		s.CancelledAt, s.CancellationReason, s.NextChargeAt,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// LiveDelivered returns delivered counts reported by live charge events, by external subscription ID.
func (r *Repository) LiveDelivered(ctx context.Context, merchantID uuid.UUID) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT external_id, delivered_count FROM billing_subscriptions
		WHERE merchant_id = $1 AND delivered_source = 'live'`, merchantID)
	if err != nil {
		return nil, fmt.Errorf("list live delivered counts: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan live delivered count: %w", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}

// GetSubscriptionByExternalID retrieves a subscription by its billing platform ID.
func (r *Repository) GetSubscriptionByExternalID(ctx context.Context, merchantID uuid.UUID, externalID string) (Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM billing_subscriptions WHERE merchant_id = $1 AND external_id = $2`
	s, err := scanSubscription(r.pool.QueryRow(ctx, query, merchantID, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subscription{}, apperr.NotFound(subscriptionNotFoundMsg)
		}
		return Subscription{}, fmt.Errorf("get subscription: %w", err)
	}
	return s, nil
}

// UpdateDelivery stores a live delivered count with its derived remaining count and status.
func (r *Repository) UpdateDelivery(ctx context.Context, s Subscription) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE billing_subscriptions
		SET delivered_count = $3, delivered_source = $4, prepaid_remaining = $5, status = $6, updated_at = now()
		WHERE merchant_id = $1 AND id = $2`,
		s.MerchantID, s.ID, s.DeliveredCount, string(s.DeliveredSource), s.PrepaidRemaining, s.Status)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(subscriptionNotFoundMsg)
	}
	return nil
}

// ListSubscriptions returns a subscriber's subscriptions, oldest first.
func (r *Repository) ListSubscriptions(ctx context.Context, merchantID, subscriberID uuid.UUID) ([]Subscription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+subscriptionColumns+` FROM billing_subscriptions
		WHERE merchant_id = $1 AND subscriber_id = $2
		ORDER BY started_at, external_id`, merchantID, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	items := make([]Subscription, 0)
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

// SeedStates creates sequence states at position 0 where none exist yet and
// refreshes lifecycle fields on existing ones. Positions are never touched.
func (r *Repository) SeedStates(ctx context.Context, seeds []SeedState) error {
	if len(seeds) == 0 {
		return nil
	}
	query := `
		INSERT INTO subscriber_sequence_states (
			merchant_id, subscriber_id, series_id, status, is_prepaid, prepaid_total, prepaid_remaining
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (subscriber_id, series_id) DO UPDATE SET
			status = EXCLUDED.status,
			is_prepaid = EXCLUDED.is_prepaid,
			prepaid_total = EXCLUDED.prepaid_total,
			prepaid_remaining = EXCLUDED.prepaid_remaining,
			updated_at = now()`

	batch := &pgx.Batch{}
	for _, s := range seeds {
		batch.Queue(query, s.MerchantID, s.SubscriberID, s.SeriesID, s.Status, s.IsPrepaid, s.PrepaidTotal, s.PrepaidRemaining)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range seeds {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("seed sequence state: %w", err)
		}
	}
	return nil
}

// ListStates returns a subscriber's sequence states.
func (r *Repository) ListStates(ctx context.Context, merchantID, subscriberID uuid.UUID) ([]SequenceState, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+stateColumns+` FROM subscriber_sequence_states
		WHERE merchant_id = $1 AND subscriber_id = $2
		ORDER BY series_id`, merchantID, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("list sequence states: %w", err)
	}
	defer rows.Close()

	items := make([]SequenceState, 0)
	for rows.Next() {
		s, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sequence state: %w", err)
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

// GetState retrieves one sequence state.
func (r *Repository) GetState(ctx context.Context, merchantID, subscriberID, seriesID uuid.UUID) (SequenceState, error) {
	s, err := scanState(r.pool.QueryRow(ctx, `
		SELECT `+stateColumns+` FROM subscriber_sequence_states
		WHERE merchant_id = $1 AND subscriber_id = $2 AND series_id = $3`, merchantID, subscriberID, seriesID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SequenceState{}, apperr.NotFound("sequence state not found")
		}
		return SequenceState{}, fmt.Errorf("get sequence state: %w", err)
	}
	return s, nil
}

// ListHistory returns position changes for a subscriber, newest first.
func (r *Repository) ListHistory(ctx context.Context, merchantID, subscriberID uuid.UUID) ([]HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, merchant_id, subscriber_id, series_id, from_position, to_position, writer, actor_id, reason,
			audit_entry_id, created_at
		FROM sequence_state_history
		WHERE merchant_id = $1 AND subscriber_id = $2
		ORDER BY created_at DESC, id`, merchantID, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("list sequence history: %w", err)
	}
	defer rows.Close()

	items := make([]HistoryEntry, 0)
	for rows.Next() {
		var (
			h      HistoryEntry
			writer string
		)
		if err := rows.Scan(&h.ID, &h.MerchantID, &h.SubscriberID, &h.SeriesID, &h.FromPosition, &h.ToPosition,
			&writer, &h.ActorID, &h.Reason, &h.AuditEntryID, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sequence history: %w", err)
		}
		h.Writer = Writer(writer)
		items = append(items, h)
	}
	return items, rows.Err()
}

// CreateUpgrade stores a subscriber-initiated tier upgrade.
func (r *Repository) CreateUpgrade(ctx context.Context, u TierUpgrade) (TierUpgrade, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO tier_upgrades (id, merchant_id, subscriber_id, from_tier, to_tier, effective_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		u.ID, u.MerchantID, u.SubscriberID, u.FromTier, u.ToTier, u.EffectiveAt,
	).Scan(&u.CreatedAt)
	if err != nil {
		if isPgCode(err, pgForeignKeyViolation) {
			return TierUpgrade{}, apperr.NotFound(subscriberNotFoundMsg)
		}
		return TierUpgrade{}, fmt.Errorf("create tier upgrade: %w", err)
	}
	return u, nil
}

// ListUpgrades returns a subscriber's tier upgrades in effective order.
func (r *Repository) ListUpgrades(ctx context.Context, merchantID, subscriberID uuid.UUID) ([]TierUpgrade, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, merchant_id, subscriber_id, from_tier, to_tier, effective_at, created_at
		FROM tier_upgrades
		WHERE merchant_id = $1 AND subscriber_id = $2
		ORDER BY effective_at, id`, merchantID, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("list tier upgrades: %w", err)
	}
	defer rows.Close()

	items := make([]TierUpgrade, 0)
	for rows.Next() {
		var u TierUpgrade
		if err := rows.Scan(&u.ID, &u.MerchantID, &u.SubscriberID, &u.FromTier, &u.ToTier, &u.EffectiveAt, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tier upgrade: %w", err)
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

// LoadProfile gathers the subscriber, subscriptions and upgrades used by reconstruction.
func (r *Repository) LoadProfile(ctx context.Context, merchantID, subscriberID uuid.UUID) (Profile, error) {
	sub, err := r.GetSubscriber(ctx, merchantID, subscriberID)
	if err != nil {
		return Profile{}, err
	}
	subs, err := r.ListSubscriptions(ctx, merchantID, subscriberID)
	if err != nil {
		return Profile{}, err
	}
	upgrades, err := r.ListUpgrades(ctx, merchantID, subscriberID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{Subscriber: sub, Subscriptions: subs, Upgrades: upgrades}, nil
}

// CommitManual applies a human-chosen position in its own transaction.
func (r *Repository) CommitManual(ctx context.Context, c ManualCommit) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin manual commit: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	from, err := CommitManualTx(ctx, tx, c)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit manual position: %w", err)
	}
	return from, nil
}

// CommitAutoTx applies a clean migration outcome inside tx. The position only
// moves forward, and a manual edit made since the run started is left alone.
func CommitAutoTx(ctx context.Context, tx pgx.Tx, c AutoCommit) (AutoOutcome, error) {
	now := time.Now().UTC()
	if err := requireSeriesTx(ctx, tx, c.MerchantID, c.SeriesID); err != nil {
		return AutoOutcome{}, err
	}

	var (
		position   int
		lastWriter string
		manualAt   *time.Time
	)
	err := tx.QueryRow(ctx, `
		SELECT position, last_writer, manual_at FROM subscriber_sequence_states
		WHERE merchant_id = $1 AND subscriber_id = $2 AND series_id = $3
		FOR UPDATE`, c.MerchantID, c.SubscriberID, c.SeriesID,
	).Scan(&position, &lastWriter, &manualAt)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := tx.Exec(ctx, `
			INSERT INTO subscriber_sequence_states (
				merchant_id, subscriber_id, series_id, position, last_writer, last_reconciled_at
			) VALUES ($1, $2, $3, $4, 'auto', $5)`,
			c.MerchantID, c.SubscriberID, c.SeriesID, c.Position, now); err != nil {
			if isPgCode(err, pgForeignKeyViolation) {
				return AutoOutcome{}, apperr.NotFound(seriesNotFoundMsg)
			}
			return AutoOutcome{}, fmt.Errorf("insert sequence state: %w", err)
		}
	case err != nil:
		return AutoOutcome{}, fmt.Errorf("lock sequence state: %w", err)
	default:
		if Writer(lastWriter) == WriterManual && manualAt != nil && !manualAt.Before(c.RunStartedAt) {
			return AutoOutcome{From: position, Skipped: "manual_override"}, nil
		}
		if c.Position <= position {
			if _, err := tx.Exec(ctx, `
				UPDATE subscriber_sequence_states SET last_reconciled_at = $4
				WHERE merchant_id = $1 AND subscriber_id = $2 AND series_id = $3`,
				c.MerchantID, c.SubscriberID, c.SeriesID, now); err != nil {
				return AutoOutcome{}, fmt.Errorf("touch sequence state: %w", err)
			}
			return AutoOutcome{From: position, Skipped: "not_forward"}, nil
		}
		if _, err := tx.Exec(ctx, `
			UPDATE subscriber_sequence_states
			SET position = $4, last_writer = 'auto', last_reconciled_at = $5, updated_at = $5
			WHERE merchant_id = $1 AND subscriber_id = $2 AND series_id = $3`,
			c.MerchantID, c.SubscriberID, c.SeriesID, c.Position, now); err != nil {
			return AutoOutcome{}, fmt.Errorf("update sequence state: %w", err)
		}
	}

	if err := insertHistory(ctx, tx, HistoryEntry{
		MerchantID:   c.MerchantID,
		SubscriberID: c.SubscriberID,
		SeriesID:     c.SeriesID,
		FromPosition: position,
		ToPosition:   c.Position,
		Writer:       WriterAuto,
		Reason:       c.Reason,
		AuditEntryID: c.AuditEntryID,
	}); err != nil {
		return AutoOutcome{}, err
	}
	return AutoOutcome{Applied: true, From: position}, nil
}

// CommitManualTx writes a human-chosen position inside tx and returns the
// previous position. It always wins, including over a higher automatic position.
func CommitManualTx(ctx context.Context, tx pgx.Tx, c ManualCommit) (int, error) {
	now := time.Now().UTC()
	if err := requireSeriesTx(ctx, tx, c.MerchantID, c.SeriesID); err != nil {
		return 0, err
	}

	var from int
	err := tx.QueryRow(ctx, `
		SELECT position FROM subscriber_sequence_states
		WHERE merchant_id = $1 AND subscriber_id = $2 AND series_id = $3
		FOR UPDATE`, c.MerchantID, c.SubscriberID, c.SeriesID,
	).Scan(&from)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("lock sequence state: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO subscriber_sequence_states (
			merchant_id, subscriber_id, series_id, position, last_writer, manual_at, last_reconciled_at
		) VALUES ($1, $2, $3, $4, 'manual', $5, $5)
		ON CONFLICT (subscriber_id, series_id) DO UPDATE SET
			position = EXCLUDED.position,
			last_writer = 'manual',
			manual_at = EXCLUDED.manual_at,
			last_reconciled_at = EXCLUDED.last_reconciled_at,
			updated_at = EXCLUDED.manual_at`,
		c.MerchantID, c.SubscriberID, c.SeriesID, c.Position, now); err != nil {
		if isPgCode(err, pgForeignKeyViolation) {
			return 0, apperr.NotFound("subscriber or series not found")
		}
		return 0, fmt.Errorf("write manual position: %w", err)
	}

	actor := c.ActorID
	if err := insertHistory(ctx, tx, HistoryEntry{
		MerchantID:   c.MerchantID,
		SubscriberID: c.SubscriberID,
		SeriesID:     c.SeriesID,
		FromPosition: from,
		ToPosition:   c.Position,
		Writer:       WriterManual,
		ActorID:      &actor,
		Reason:       strings.TrimSpace(c.Reason),
		AuditEntryID: c.AuditEntryID,
	}); err != nil {
		return 0, err
	}
	return from, nil
}

// requireSeriesTx rejects a series that does not belong to the merchant. The
// foreign key alone only proves the series exists.
func requireSeriesTx(ctx context.Context, tx pgx.Tx, merchantID, seriesID uuid.UUID) error {
	var owned bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM series WHERE id = $1 AND merchant_id = $2)`,
		seriesID, merchantID).Scan(&owned); err != nil {
		return fmt.Errorf("check series: %w", err)
	}
	if !owned {
		return apperr.NotFound(seriesNotFoundMsg)
	}
	return nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, h HistoryEntry) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO sequence_state_history (
			id, merchant_id, subscriber_id, series_id, from_position, to_position, writer, actor_id, reason, audit_entry_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.New(), h.MerchantID, h.SubscriberID, h.SeriesID, h.FromPosition, h.ToPosition, string(h.Writer),
		h.ActorID, h.Reason, h.AuditEntryID); err != nil {
		return fmt.Errorf("insert sequence history: %w", err)
	}
	return nil
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func scanSubscriber(row pgx.Row) (Subscriber, error) {
	var s Subscriber
	err := row.Scan(&s.ID, &s.MerchantID, &s.ExternalCustomerID, &s.CommerceCustomerID, &s.Email, &s.FirstName,
		&s.LastName, &s.Phone, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func scanSubscription(row pgx.Row) (Subscription, error) {
	var (
		s               Subscription
		deliveredSource string
	)
	err := row.Scan(&s.ID, &s.MerchantID, &s.SubscriberID, &s.ExternalID, &s.ExternalProductID, &s.ProductTitle, &s.SKU,
		&s.BillingStatus, &s.Status, &s.ChargeUnit, &s.ChargeFrequency, &s.OrderUnit, &s.OrderFrequency, &s.Price,
		&s.IsPrepaid, &s.PrepaidTotal, &s.PrepaidTotalSource, &s.DeliveredCount, &deliveredSource, &s.PrepaidRemaining,
		&s.StartedAt, &s.CancelledAt, &s.CancellationReason, &s.NextChargeAt, &s.UpdatedAt)
	s.DeliveredSource = DeliveredSource(deliveredSource)
	return s, err
}

func scanState(row pgx.Row) (SequenceState, error) {
	var (
		s      SequenceState
		writer string
	)
	err := row.Scan(&s.MerchantID, &s.SubscriberID, &s.SeriesID, &s.Position, &s.Status, &s.IsPrepaid,
		&s.PrepaidTotal, &s.PrepaidRemaining, &writer, &s.ManualAt, &s.LastReconciledAt, &s.UpdatedAt)
	s.LastWriter = Writer(writer)
	return s, err
}
