package repository

import (
	"context"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/catalog/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Variation is a distinct (product, variant) pair observed in order history.
type Variation struct {
	ID             uuid.UUID             `db:"id"`
	MerchantID     uuid.UUID             `db:"merchant_id"`
	ProductName    string                `db:"product_name"`
	VariantTitle   string                `db:"variant_title"`
	VariationKey   string                `db:"variation_key"`
	SKU            string                `db:"sku"`
	Classification domain.Classification `db:"classification"`
	TierID         *uuid.UUID            `db:"tier_id"`
	OrderCount     int                   `db:"order_count"`
	FirstSeenAt    time.Time             `db:"first_seen_at"`
	LastSeenAt     time.Time             `db:"last_seen_at"`
	CreatedAt      time.Time             `db:"created_at"`
	UpdatedAt      time.Time             `db:"updated_at"`
}

// Sighting is one aggregated observation of a variation during a scan.
type Sighting struct {
	ProductName  string
	VariantTitle string
	SKU          string
	Orders       int
	FirstSeenAt  time.Time
	LastSeenAt   time.Time
}

// SuggestionStatus tracks a suggestion through the review queue.
type SuggestionStatus string

const (
	SuggestionPending   SuggestionStatus = "pending"
	SuggestionConfirmed SuggestionStatus = "confirmed"
	SuggestionRejected  SuggestionStatus = "rejected"
)

// Suggestion is a proposed classification awaiting human review.
type Suggestion struct {
	ID             uuid.UUID             `db:"id"`
	MerchantID     uuid.UUID             `db:"merchant_id"`
	VariationID    uuid.UUID             `db:"variation_id"`
	Classification domain.Classification `db:"classification"`
	Confidence     decimal.Decimal       `db:"confidence"`
	Rationale      string                `db:"rationale"`
	Source         string                `db:"source"`
	Status         SuggestionStatus      `db:"status"`
	DecidedBy      *uuid.UUID            `db:"decided_by"`
	DecidedAt      *time.Time            `db:"decided_at"`
	CreatedAt      time.Time             `db:"created_at"`

	// Joined from the variation for display.
	ProductName  string `db:"product_name"`
	VariantTitle string `db:"variant_title"`
	SKU          string `db:"sku"`
}

// ListVariationsParams defines filters for listing variations.
type ListVariationsParams struct {
	MerchantID uuid.UUID
	// Classification filters when set; a pointer to Unclassified lists the review backlog.
	Classification *domain.Classification
	Search         string
	Offset         int
	Limit          int
}

// ListSuggestionsParams defines filters for the suggestion queue.
type ListSuggestionsParams struct {
	MerchantID     uuid.UUID
	Status         SuggestionStatus
	Classification *domain.Classification
	Limit          int
}

// ClassifyResult reports how many variations matched and how many actually changed.
type ClassifyResult struct {
	Matched int
	Changed int
}

// Repository defines the catalog data access contract.
type Repository interface {
	RecordSightings(ctx context.Context, merchantID uuid.UUID, sightings []Sighting) (int, error)
	GetVariation(ctx context.Context, merchantID, id uuid.UUID) (Variation, error)
	ListVariations(ctx context.Context, params ListVariationsParams) ([]Variation, int, error)
	ListUnclassified(ctx context.Context, merchantID uuid.UUID, limit int) ([]Variation, error)
	SetClassification(ctx context.Context, merchantID uuid.UUID, ids []uuid.UUID, c domain.Classification) (ClassifyResult, error)
	AssignTier(ctx context.Context, merchantID, id uuid.UUID, tierID *uuid.UUID) (Variation, error)
	ClassificationCounts(ctx context.Context, merchantID uuid.UUID) (map[domain.Classification]int, error)

	CreateSuggestions(ctx context.Context, suggestions []Suggestion) (int, error)
	ListSuggestions(ctx context.Context, params ListSuggestionsParams) ([]Suggestion, error)
	ConfirmSuggestions(ctx context.Context, merchantID uuid.UUID, c domain.Classification, ids []uuid.UUID, actor uuid.UUID) (int, error)
	RejectSuggestions(ctx context.Context, merchantID uuid.UUID, ids []uuid.UUID, actor uuid.UUID) (int, error)
}
