package transport

import (
	"time"

	"github.com/google/uuid"
)

// Variations

type ListVariationsRequest struct {
	// Classification filters by category; "unclassified" lists the review backlog.
	Classification string `form:"classification" validate:"omitempty,oneof=subscription addon ignored unclassified"`
	Search         string `form:"search" validate:"max=100"`
	Page           int    `form:"page" validate:"omitempty,min=1"`
	PageSize       int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

type VariationResponse struct {
	ID             uuid.UUID  `json:"id"`
	ProductName    string     `json:"productName"`
	VariantTitle   string     `json:"variantTitle"`
	SKU            string     `json:"sku,omitempty"`
	Classification string     `json:"classification"`
	TierID         *uuid.UUID `json:"tierId,omitempty"`
	OrderCount     int        `json:"orderCount"`
	FirstSeenAt    time.Time  `json:"firstSeenAt"`
	LastSeenAt     time.Time  `json:"lastSeenAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

type VariationListResponse struct {
	Items      []VariationResponse `json:"items"`
	Total      int                 `json:"total"`
	Page       int                 `json:"page"`
	PageSize   int                 `json:"pageSize"`
	TotalPages int                 `json:"totalPages"`
}

type ClassifyRequest struct {
	Classification string `json:"classification" validate:"required,classification"`
}

type BulkClassifyRequest struct {
	VariationIDs   []uuid.UUID `json:"variationIds" validate:"required,min=1,max=500,dive,required"`
	Classification string      `json:"classification" validate:"required,classification"`
}

type BulkClassifyResponse struct {
	Matched int `json:"matched"`
	Changed int `json:"changed"`
}

type AssignTierRequest struct {
	// TierID nil unassigns the variation.
	TierID *uuid.UUID `json:"tierId"`
}

type ClassificationSummaryResponse struct {
	Subscription int `json:"subscription"`
	Addon        int `json:"addon"`
	Ignored      int `json:"ignored"`
	Unclassified int `json:"unclassified"`
}

// Suggestions

type RunSuggestionsRequest struct {
	Limit int `json:"limit" validate:"omitempty,min=1,max=500"`
}

type RunSuggestionsResponse struct {
	Candidates int    `json:"candidates"`
	Queued     int    `json:"queued"`
	Strategy   string `json:"strategy"`
}

type ListSuggestionsRequest struct {
	Status         string `form:"status" validate:"omitempty,oneof=pending confirmed rejected"`
	Classification string `form:"classification" validate:"omitempty,classification"`
	Limit          int    `form:"limit" validate:"omitempty,min=1,max=500"`
}

type SuggestionResponse struct {
	ID             uuid.UUID  `json:"id"`
	VariationID    uuid.UUID  `json:"variationId"`
	ProductName    string     `json:"productName"`
	VariantTitle   string     `json:"variantTitle"`
	SKU            string     `json:"sku,omitempty"`
	Classification string     `json:"classification"`
	Confidence     string     `json:"confidence"`
	Rationale      string     `json:"rationale"`
	Source         string     `json:"source"`
	Status         string     `json:"status"`
	DecidedBy      *uuid.UUID `json:"decidedBy,omitempty"`
	DecidedAt      *time.Time `json:"decidedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// ConfirmSuggestionsRequest confirms pending suggestions of one category.
// Empty SuggestionIDs confirms every pending suggestion of that category.
type ConfirmSuggestionsRequest struct {
	Classification string      `json:"classification" validate:"required,classification"`
	SuggestionIDs  []uuid.UUID `json:"suggestionIds" validate:"omitempty,max=500,dive,required"`
}

type RejectSuggestionsRequest struct {
	SuggestionIDs []uuid.UUID `json:"suggestionIds" validate:"required,min=1,max=500,dive,required"`
}

type DecisionResponse struct {
	Count int `json:"count"`
}

// Scans

type ScanResponse struct {
	Customers       int `json:"customers"`
	Orders          int `json:"orders"`
	Variations      int `json:"variations"`
	NewVariations   int `json:"newVariations"`
	UnknownSKUs     int `json:"unknownSkus"`
	FailedCustomers int `json:"failedCustomers"`
}
