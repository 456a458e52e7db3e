// Package domain holds the Migration Run: one batch reconciliation of a
// merchant's subscriber base against their order history.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status of a migration run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// FailureCancelled is the failure reason of a run abandoned by the operator.
const FailureCancelled = "cancelled"

// Transition table: from -> allowed tos
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusRunning, StatusFailed},
	StatusRunning:   {StatusCompleted, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
}

// ParseStatus accepts the four known statuses.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return Status(s), true
	}
	return "", false
}

// CanTransition checks if transitioning between run statuses is valid.
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

// IsActive reports whether a run still blocks a new run for its merchant.
func IsActive(s Status) bool {
	return s == StatusPending || s == StatusRunning
}

// Counters is the progress of a run. Every field only grows within a run.
type Counters struct {
	Processed    int `json:"processed"`
	CleanCount   int `json:"cleanCount"`
	FlaggedCount int `json:"flaggedCount"`
}

// Add folds one batch into the totals.
func (c Counters) Add(batch Counters) Counters {
	return Counters{
		Processed:    c.Processed + batch.Processed,
		CleanCount:   c.CleanCount + batch.CleanCount,
		FlaggedCount: c.FlaggedCount + batch.FlaggedCount,
	}
}

// Run is one migration run. SubscriberIDs is the population captured at
// start; subscribers added later belong to the next run.
type Run struct {
	ID              uuid.UUID
	MerchantID      uuid.UUID
	Status          Status
	SubscriberIDs   []uuid.UUID
	Total           int
	Counters        Counters
	FailureReason   string
	CancelRequested bool
	ReportKey       *string
	CreatedBy       uuid.UUID
	CreatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
}

// Remaining returns the captured subscribers not processed yet. Subscribers
// are processed in capture order, so the processed count is a resume offset.
func (r Run) Remaining() []uuid.UUID {
	if r.Counters.Processed >= len(r.SubscriberIDs) {
		return nil
	}
	return r.SubscriberIDs[r.Counters.Processed:]
}

// Batches splits ids into consecutive slices of at most size.
func Batches(ids []uuid.UUID, size int) [][]uuid.UUID {
	if size < 1 {
		size = 1
	}
	out := make([][]uuid.UUID, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}
