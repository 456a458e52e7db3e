package transport

import (
	"time"

	"github.com/google/uuid"
)

type ListRunsRequest struct {
	Page     int `form:"page" validate:"omitempty,min=1"`
	PageSize int `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

type RunResponse struct {
	ID              uuid.UUID  `json:"id"`
	Status          string     `json:"status"`
	Total           int        `json:"total"`
	Processed       int        `json:"processed"`
	CleanCount      int        `json:"cleanCount"`
	FlaggedCount    int        `json:"flaggedCount"`
	FailureReason   string     `json:"failureReason,omitempty"`
	CancelRequested bool       `json:"cancelRequested"`
	HasReport       bool       `json:"hasReport"`
	CreatedBy       uuid.UUID  `json:"createdBy"`
	CreatedAt       time.Time  `json:"createdAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
}

type RunListResponse struct {
	Items      []RunResponse `json:"items"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	TotalPages int           `json:"totalPages"`
}
