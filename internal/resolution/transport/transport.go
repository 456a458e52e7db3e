package transport

import (
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/sequence"

	"github.com/google/uuid"
)

// ListEntriesRequest filters the review queue. Status defaults to flagged.
type ListEntriesRequest struct {
	Status   string `form:"status" validate:"omitempty,oneof=clean flagged resolved skipped"`
	RunID    string `form:"runId" validate:"omitempty,uuid"`
	Flag     string `form:"flag" validate:"omitempty,max=50"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

type EntryResponse struct {
	ID               uuid.UUID               `json:"id"`
	RunID            uuid.UUID               `json:"runId"`
	SubscriberID     uuid.UUID               `json:"subscriberId"`
	SeriesID         *uuid.UUID              `json:"seriesId,omitempty"`
	Status           string                  `json:"status"`
	SequenceDates    []sequence.Event        `json:"sequenceDates"`
	Observed         []int                   `json:"observed"`
	Missing          []sequence.MissingPoint `json:"missing"`
	Flags            []string                `json:"flags"`
	PrimaryFlag      string                  `json:"primaryFlag,omitempty"`
	ProposedNext     int                     `json:"proposedNext"`
	Notes            string                  `json:"notes,omitempty"`
	ResolvedSequence *int                    `json:"resolvedSequence,omitempty"`
	SkipReason       *string                 `json:"skipReason,omitempty"`
	ClosedBy         *uuid.UUID              `json:"closedBy,omitempty"`
	ClosedAt         *time.Time              `json:"closedAt,omitempty"`
	CreatedAt        time.Time               `json:"createdAt"`
}

type EntryListResponse struct {
	Items      []EntryResponse `json:"items"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	TotalPages int             `json:"totalPages"`
}

type QueueSummaryResponse struct {
	Clean    int `json:"clean"`
	Flagged  int `json:"flagged"`
	Resolved int `json:"resolved"`
	Skipped  int `json:"skipped"`
}

// ResolveRequest carries the reviewer's chosen position. Clients prefill
// Sequence with the entry's proposedNext.
type ResolveRequest struct {
	Sequence *int       `json:"sequence" validate:"required,min=0"`
	SeriesID *uuid.UUID `json:"seriesId,omitempty"`
	Note     string `json:"note" validate:"max=500"`
}

type SkipRequest struct {
	Reason string `json:"reason" validate:"required,notblank,max=500"`
}
