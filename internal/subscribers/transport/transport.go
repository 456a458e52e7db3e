package transport

import (
	"time"

	"github.com/google/uuid"
)

type ListSubscribersRequest struct {
	Search   string `form:"search" validate:"max=100"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

type SubscriberResponse struct {
	ID                 uuid.UUID `json:"id"`
	ExternalCustomerID string    `json:"externalCustomerId"`
	CommerceCustomerID string    `json:"commerceCustomerId,omitempty"`
	Email              string    `json:"email"`
	FirstName          string    `json:"firstName"`
	LastName           string    `json:"lastName"`
	Phone              *string   `json:"phone,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

type SubscriberListResponse struct {
	Items      []SubscriberResponse `json:"items"`
	Total      int                  `json:"total"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"pageSize"`
	TotalPages int                  `json:"totalPages"`
}

type SubscriptionResponse struct {
	ID                 uuid.UUID  `json:"id"`
	ExternalID         string     `json:"externalId"`
	ExternalProductID  string     `json:"externalProductId,omitempty"`
	ProductTitle       string     `json:"productTitle"`
	BillingStatus      string     `json:"billingStatus"`
	Status             string     `json:"status"`
	Price              string     `json:"price"`
	IsPrepaid          bool       `json:"isPrepaid"`
	PrepaidTotal       *int       `json:"prepaidTotal,omitempty"`
	PrepaidTotalSource *string    `json:"prepaidTotalSource,omitempty"`
	DeliveredCount     int        `json:"deliveredCount"`
	DeliveredSource    string     `json:"deliveredSource"`
	PrepaidRemaining   *int       `json:"prepaidRemaining,omitempty"`
	StartedAt          time.Time  `json:"startedAt"`
	CancelledAt        *time.Time `json:"cancelledAt,omitempty"`
	NextChargeAt       *time.Time `json:"nextChargeAt,omitempty"`
}

type SequenceStateResponse struct {
	SeriesID         uuid.UUID  `json:"seriesId"`
	Position         int        `json:"position"`
	Status           string     `json:"status"`
	IsPrepaid        bool       `json:"isPrepaid"`
	PrepaidTotal     *int       `json:"prepaidTotal,omitempty"`
	PrepaidRemaining *int       `json:"prepaidRemaining,omitempty"`
	LastWriter       string     `json:"lastWriter"`
	LastReconciledAt *time.Time `json:"lastReconciledAt,omitempty"`
}

type SubscriberDetailResponse struct {
	SubscriberResponse
	Subscriptions []SubscriptionResponse  `json:"subscriptions"`
	States        []SequenceStateResponse `json:"sequenceStates"`
}

type HistoryEntryResponse struct {
	SeriesID     uuid.UUID  `json:"seriesId"`
	FromPosition int        `json:"fromPosition"`
	ToPosition   int        `json:"toPosition"`
	Writer       string     `json:"writer"`
	ActorID      *uuid.UUID `json:"actorId,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	AuditEntryID *uuid.UUID `json:"auditEntryId,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// RecordChargeRequest reports a successful live charge. Without DeliveredCount
// the stored count is incremented by one.
type RecordChargeRequest struct {
	SubscriptionExternalID string `json:"subscriptionExternalId" validate:"required,max=100"`
	DeliveredCount         *int   `json:"deliveredCount,omitempty" validate:"omitempty,min=0"`
}

type RecordUpgradeRequest struct {
	FromTier    string    `json:"fromTier" validate:"max=100"`
	ToTier      string    `json:"toTier" validate:"required,notblank,max=100"`
	EffectiveAt time.Time `json:"effectiveAt" validate:"required"`
}

type TierUpgradeResponse struct {
	ID          uuid.UUID `json:"id"`
	FromTier    string    `json:"fromTier,omitempty"`
	ToTier      string    `json:"toTier"`
	EffectiveAt time.Time `json:"effectiveAt"`
}

type ManualOverrideRequest struct {
	Position *int   `json:"position" validate:"required,min=0"`
	Reason   string `json:"reason" validate:"required,notblank,max=500"`
}

type ImportResponse struct {
	Customers     int `json:"customers"`
	Subscriptions int `json:"subscriptions"`
	Skipped       int `json:"skipped"`
	States        int `json:"sequenceStates"`
}
