// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"github.com/SubscriberSync/portal-sub000/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Alias Table Events
// =============================================================================

// AliasTableChanged is published after aliases, tiers or series are written.
type AliasTableChanged struct {
	BaseEvent
	MerchantID uuid.UUID `json:"merchantId"`
	Reason     string    `json:"reason"`
}

func (e AliasTableChanged) EventName() string { return "aliases.table.changed" }

// =============================================================================
// Catalog Events
// =============================================================================

// SuggestionsCreated is published when a suggestion pass queued new suggestions.
type SuggestionsCreated struct {
	BaseEvent
	MerchantID uuid.UUID `json:"merchantId"`
	Count      int       `json:"count"`
	Source     string    `json:"source"`
}

func (e SuggestionsCreated) EventName() string { return "catalog.suggestions.created" }

// =============================================================================
// Subscriber Events
// =============================================================================

// SubscribersImported is published after a bulk import from the billing platform.
type SubscribersImported struct {
	BaseEvent
	MerchantID    uuid.UUID `json:"merchantId"`
	Customers     int       `json:"customers"`
	Subscriptions int       `json:"subscriptions"`
	Skipped       int       `json:"skipped"`
}

func (e SubscribersImported) EventName() string { return "subscribers.imported" }

// SequencePositionChanged is published whenever a subscriber's authoritative
// position is written.
type SequencePositionChanged struct {
	BaseEvent
	MerchantID   uuid.UUID  `json:"merchantId"`
	SubscriberID uuid.UUID  `json:"subscriberId"`
	SeriesID     uuid.UUID  `json:"seriesId"`
	From         int        `json:"from"`
	To           int        `json:"to"`
	Writer       string     `json:"writer"`
	ActorID      *uuid.UUID `json:"actorId,omitempty"`
}

func (e SequencePositionChanged) EventName() string { return "subscribers.position.changed" }

// =============================================================================
// Migration Run Events
// =============================================================================

// MigrationRunStarted is published when a run moves to running.
type MigrationRunStarted struct {
	BaseEvent
	RunID      uuid.UUID `json:"runId"`
	MerchantID uuid.UUID `json:"merchantId"`
	Total      int       `json:"total"`
}

func (e MigrationRunStarted) EventName() string { return "migration.run.started" }

// MigrationRunFinished is published when a run reaches completed or failed.
type MigrationRunFinished struct {
	BaseEvent
	RunID         uuid.UUID `json:"runId"`
	MerchantID    uuid.UUID `json:"merchantId"`
	Status        string    `json:"status"`
	Total         int       `json:"total"`
	Processed     int       `json:"processed"`
	CleanCount    int       `json:"cleanCount"`
	FlaggedCount  int       `json:"flaggedCount"`
	FailureReason string    `json:"failureReason,omitempty"`
}

func (e MigrationRunFinished) EventName() string { return "migration.run.finished" }

// =============================================================================
// Resolution Events
// =============================================================================

// AuditEntryResolved is published when a reviewer commits a position.
type AuditEntryResolved struct {
	BaseEvent
	EntryID      uuid.UUID `json:"entryId"`
	MerchantID   uuid.UUID `json:"merchantId"`
	SubscriberID uuid.UUID `json:"subscriberId"`
	Sequence     int       `json:"sequence"`
	ActorID      uuid.UUID `json:"actorId"`
}

func (e AuditEntryResolved) EventName() string { return "resolution.entry.resolved" }

// AuditEntrySkipped is published when a reviewer defers an entry.
type AuditEntrySkipped struct {
	BaseEvent
	EntryID      uuid.UUID `json:"entryId"`
	MerchantID   uuid.UUID `json:"merchantId"`
	SubscriberID uuid.UUID `json:"subscriberId"`
	Reason       string    `json:"reason"`
	ActorID      uuid.UUID `json:"actorId"`
}

func (e AuditEntrySkipped) EventName() string { return "resolution.entry.skipped" }
