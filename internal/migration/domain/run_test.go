package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusPending, false},
		{StatusCompleted, StatusRunning, false},
		{StatusFailed, StatusRunning, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to))
			if tt.ok {
				assert.NoError(t, Transition(tt.from, tt.to))
			} else {
				assert.Error(t, Transition(tt.from, tt.to))
			}
		})
	}
}

func TestBatches(t *testing.T) {
	ids := make([]uuid.UUID, 37)
	for i := range ids {
		ids[i] = uuid.New()
	}

	batches := Batches(ids, 5)
	require.Len(t, batches, 8)
	total := 0
	for i, b := range batches {
		if i < 7 {
			assert.Len(t, b, 5)
		}
		total += len(b)
	}
	assert.Len(t, batches[7], 2)
	assert.Equal(t, 37, total)
	assert.Equal(t, ids[35], batches[7][0])

	assert.Empty(t, Batches(nil, 5))
	assert.Len(t, Batches(ids[:3], 0), 3)
}

func TestRemainingResumesAfterProcessed(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	run := Run{SubscriberIDs: ids, Counters: Counters{Processed: 2}}
	assert.Equal(t, ids[2:], run.Remaining())

	run.Counters.Processed = 3
	assert.Empty(t, run.Remaining())
}

func TestCountersAdd(t *testing.T) {
	c := Counters{Processed: 5, CleanCount: 3, FlaggedCount: 2}.Add(Counters{Processed: 2, CleanCount: 2})
	assert.Equal(t, Counters{Processed: 7, CleanCount: 5, FlaggedCount: 2}, c)
}
