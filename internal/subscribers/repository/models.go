package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Writer identifies who last moved a sequence position.
type Writer string

const (
	WriterAuto   Writer = "auto"
	WriterManual Writer = "manual"
)

// DeliveredSource tells whether a delivered count is an import estimate or
// came from live charge events. Live always wins.
type DeliveredSource string

const (
	DeliveredEstimate DeliveredSource = "estimate"
	DeliveredLive     DeliveredSource = "live"
)

type Subscriber struct {
	ID                 uuid.UUID
	MerchantID         uuid.UUID
	ExternalCustomerID string
	CommerceCustomerID string
	Email              string
	FirstName          string
	LastName           string
	Phone              *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Subscription struct {
	ID                 uuid.UUID
	MerchantID         uuid.UUID
	SubscriberID       uuid.UUID
	ExternalID         string
	ExternalProductID  string
	ProductTitle       string
	SKU                string
	BillingStatus      string
	Status             string
	ChargeUnit         string
	ChargeFrequency    int
	OrderUnit          string
	OrderFrequency     int
	Price              decimal.Decimal
	IsPrepaid          bool
	PrepaidTotal       *int
	PrepaidTotalSource *string
	DeliveredCount     int
	DeliveredSource    DeliveredSource
	PrepaidRemaining   *int
	StartedAt          time.Time
	CancelledAt        *time.Time
	CancellationReason string
	NextChargeAt       *time.Time
	UpdatedAt          time.Time
}

// SequenceState is the authoritative position of a subscriber in one series.
type SequenceState struct {
	MerchantID       uuid.UUID
	SubscriberID     uuid.UUID
	SeriesID         uuid.UUID
	Position         int
	Status           string
	IsPrepaid        bool
	PrepaidTotal     *int
	PrepaidRemaining *int
	LastWriter       Writer
	ManualAt         *time.Time
	LastReconciledAt *time.Time
	UpdatedAt        time.Time
}

// HistoryEntry records one change of a sequence position.
type HistoryEntry struct {
	ID           uuid.UUID
	MerchantID   uuid.UUID
	SubscriberID uuid.UUID
	SeriesID     uuid.UUID
	FromPosition int
	ToPosition   int
	Writer       Writer
	ActorID      *uuid.UUID
	Reason       string
	AuditEntryID *uuid.UUID
	CreatedAt    time.Time
}

type TierUpgrade struct {
	ID           uuid.UUID
	MerchantID   uuid.UUID
	SubscriberID uuid.UUID
	FromTier     string
	ToTier       string
	EffectiveAt  time.Time
	CreatedAt    time.Time
}

// Profile is everything reconstruction needs to know about one subscriber.
type Profile struct {
	Subscriber    Subscriber
	Subscriptions []Subscription
	Upgrades      []TierUpgrade
}

// SeedState is the initial sequence state for a (subscriber, series) pair.
type SeedState struct {
	MerchantID       uuid.UUID
	SubscriberID     uuid.UUID
	SeriesID         uuid.UUID
	Status           string
	IsPrepaid        bool
	PrepaidTotal     *int
	PrepaidRemaining *int
}

// AutoCommit is a position proposed by a clean migration outcome.
type AutoCommit struct {
	MerchantID   uuid.UUID
	SubscriberID uuid.UUID
	SeriesID     uuid.UUID
	Position     int
	// RunStartedAt guards manual edits made while the run was in flight.
	RunStartedAt time.Time
	AuditEntryID *uuid.UUID
	Reason       string
}

// AutoOutcome reports whether an automatic commit changed the position.
type AutoOutcome struct {
	Applied bool
	From    int
	// Skipped explains a non-applied commit: "manual_override" or "not_forward".
	Skipped string
}

// ManualCommit is a human-chosen position. It always wins and may go backwards.
type ManualCommit struct {
	MerchantID   uuid.UUID
	SubscriberID uuid.UUID
	SeriesID     uuid.UUID
	Position     int
	ActorID      uuid.UUID
	Reason       string
	AuditEntryID *uuid.UUID
}

// ListParams defines filters for listing subscribers.
type ListParams struct {
	MerchantID uuid.UUID
	Search     string
	Offset     int
	Limit      int
}
