// Package audit holds the Audit Log Entry: the persisted outcome of one
// reconciliation of one subscriber, and the only object a reviewer acts on.
package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/anomaly"
	"github.com/SubscriberSync/portal-sub000/internal/sequence"
	"github.com/SubscriberSync/portal-sub000/platform/apperr"

	"github.com/google/uuid"
)

// Status of an audit entry.
type Status string

const (
	StatusClean    Status = "clean"
	StatusFlagged  Status = "flagged"
	StatusResolved Status = "resolved"
	StatusSkipped  Status = "skipped"
)

// ParseStatus accepts the four known statuses.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusClean, StatusFlagged, StatusResolved, StatusSkipped:
		return Status(s), true
	}
	return "", false
}

// Transition table: from -> allowed tos
var validTransitions = map[Status][]Status{
	StatusClean:    {},
	StatusFlagged:  {StatusResolved, StatusSkipped},
	StatusResolved: {},
	StatusSkipped:  {},
}

// CanTransition checks if transitioning between entry statuses is valid.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates a status change.
func Transition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal reports whether an entry can no longer change.
func IsTerminal(s Status) bool {
	return s != StatusFlagged
}

// Entry is one audit log entry.
type Entry struct {
	ID           uuid.UUID
	MerchantID   uuid.UUID
	RunID        uuid.UUID
	SubscriberID uuid.UUID
	SeriesID     *uuid.UUID
	Status       Status
	// Events is the full derived timeline ("sequence_dates").
	Events       []sequence.Event
	Observed     []int
	Missing      []sequence.MissingPoint
	Flags        []anomaly.Flag
	ProposedNext int
	Notes        string

	ResolvedSequence *int
	SkipReason       *string
	ClosedBy         *uuid.UUID
	ClosedAt         *time.Time
	CreatedAt        time.Time
}

// NewEntry records a detector verdict. Entries with flags start flagged,
// the rest clean.
func NewEntry(merchantID, runID, subscriberID uuid.UUID, seriesID *uuid.UUID, tl sequence.Timeline, res anomaly.Result, notes string, now time.Time) Entry {
	status := StatusClean
	if !res.Clean() {
		status = StatusFlagged
	}
	flags := res.Flags
	if flags == nil {
		flags = []anomaly.Flag{}
	}
	return Entry{
		ID:           uuid.New(),
		MerchantID:   merchantID,
		RunID:        runID,
		SubscriberID: subscriberID,
		SeriesID:     seriesID,
		Status:       status,
		Events:       tl.Events,
		Observed:     tl.Observed,
		Missing:      tl.Missing,
		Flags:        flags,
		ProposedNext: res.ProposedNext,
		Notes:        notes,
		CreatedAt:    now,
	}
}

// PrimaryFlag is the flag shown first in the review queue.
func (e Entry) PrimaryFlag() anomaly.Flag {
	if len(e.Flags) == 0 {
		return ""
	}
	return e.Flags[0]
}

// Resolve closes a flagged entry with the position a reviewer chose.
// seriesID is required when the entry has no series of its own.
func (e Entry) Resolve(sequence int, seriesID *uuid.UUID, actorID uuid.UUID, now time.Time) (Entry, error) {
	if err := e.closable(StatusResolved); err != nil {
		return Entry{}, err
	}
	if sequence < 0 {
		return Entry{}, apperr.Validation("sequence must be zero or greater")
	}
	if e.SeriesID == nil {
		if seriesID == nil {
			return Entry{}, apperr.Validation("entry has no series; choose the series to resolve it in")
		}
		id := *seriesID
		e.SeriesID = &id
	}
	e.Status = StatusResolved
	e.ResolvedSequence = &sequence
	e.close(actorID, now)
	return e, nil
}

// Skip defers a flagged entry without touching the subscriber's position.
func (e Entry) Skip(reason string, actorID uuid.UUID, now time.Time) (Entry, error) {
	if err := e.closable(StatusSkipped); err != nil {
		return Entry{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Entry{}, apperr.Validation("a reason is required to skip an entry")
	}
	e.Status = StatusSkipped
	e.SkipReason = &reason
	e.close(actorID, now)
	return e, nil
}

// Closure is the part of an entry that closing it persists.
type Closure struct {
	Status           Status
	SeriesID         *uuid.UUID
	ResolvedSequence *int
	SkipReason       *string
	ClosedBy         *uuid.UUID
	ClosedAt         *time.Time
}

func (e Entry) Closure() Closure {
	return Closure{
		Status:           e.Status,
		SeriesID:         e.SeriesID,
		ResolvedSequence: e.ResolvedSequence,
		SkipReason:       e.SkipReason,
		ClosedBy:         e.ClosedBy,
		ClosedAt:         e.ClosedAt,
	}
}

// WithClosure applies a stored closure. A series chosen at resolution fills
// in a missing one and never replaces the series the run derived.
func (e Entry) WithClosure(c Closure) Entry {
	e.Status = c.Status
	if e.SeriesID == nil {
		e.SeriesID = c.SeriesID
	}
	e.ResolvedSequence = c.ResolvedSequence
	e.SkipReason = c.SkipReason
	e.ClosedBy = c.ClosedBy
	e.ClosedAt = c.ClosedAt
	return e
}

// Stored is the entry a run keeps for a subscriber. Replayed is set when an
// earlier attempt of the same run already wrote it.
type Stored struct {
	ID       uuid.UUID
	Status   Status
	Replayed bool
}

// Clean reports whether the entry counts as clean in run counters.
func (s Stored) Clean() bool { return s.Status == StatusClean }

func (e Entry) closable(to Status) error {
	if err := Transition(e.Status, to); err != nil {
		return apperr.Conflict(fmt.Sprintf("audit log entry is %s and cannot be %s", e.Status, to)).
			WithDetails(map[string]string{"status": string(e.Status)})
	}
	return nil
}

func (e *Entry) close(actorID uuid.UUID, now time.Time) {
	at := now.UTC()
	e.ClosedBy = &actorID
	e.ClosedAt = &at
}
