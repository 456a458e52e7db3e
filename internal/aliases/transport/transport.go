package transport

import (
	"time"

	"github.com/google/uuid"
)

type CreateSeriesRequest struct {
	Name              string  `json:"name" validate:"required,notblank,max=200"`
	Sequential        *bool   `json:"sequential,omitempty"`
	TotalInstallments *int    `json:"totalInstallments,omitempty" validate:"omitempty,min=1,max=1000"`
	ExternalProductID *string `json:"externalProductId,omitempty" validate:"omitempty,max=120"`
}

type SeriesResponse struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Sequential        bool      `json:"sequential"`
	TotalInstallments *int      `json:"totalInstallments,omitempty"`
	ExternalProductID *string   `json:"externalProductId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

type CreateTierRequest struct {
	SequenceNumber int    `json:"sequenceNumber" validate:"required,min=1"`
	Label          string `json:"label" validate:"omitempty,max=200"`
}

type TierResponse struct {
	ID             uuid.UUID `json:"id"`
	SeriesID       uuid.UUID `json:"seriesId"`
	SequenceNumber int       `json:"sequenceNumber"`
	Label          string    `json:"label"`
}

type DeleteTierRequest struct {
	Confirm bool `form:"confirm"`
}

type MergeTierRequest struct {
	IntoTierID uuid.UUID `json:"intoTierId" validate:"required"`
}

type UpsertAliasRequest struct {
	SKU    string    `json:"sku" validate:"required,notblank,max=200"`
	TierID uuid.UUID `json:"tierId" validate:"required"`
}

type BulkUpsertAliasesRequest struct {
	Aliases []UpsertAliasRequest `json:"aliases" validate:"required,min=1,max=1000,dive"`
}

type ListAliasesRequest struct {
	SeriesID string `form:"seriesId" validate:"omitempty,uuid"`
}

type AliasResponse struct {
	SKU            string    `json:"sku"`
	TierID         uuid.UUID `json:"tierId"`
	SeriesID       uuid.UUID `json:"seriesId"`
	SequenceNumber int       `json:"sequenceNumber"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type UnknownSKUsRequest struct {
	Limit int `form:"limit" validate:"omitempty,min=1,max=500"`
}

type UnknownSKUResponse struct {
	SKU         string    `json:"sku"`
	ProductName string    `json:"productName"`
	Occurrences int       `json:"occurrences"`
	FirstSeenAt time.Time `json:"firstSeenAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

type AliasCountResponse struct {
	Count int `json:"count"`
}
