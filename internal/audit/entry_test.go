package audit

import (
	"testing"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/anomaly"
	"github.com/SubscriberSync/portal-sub000/internal/sequence"
	"github.com/SubscriberSync/portal-sub000/platform/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusFlagged, StatusResolved, true},
		{StatusFlagged, StatusSkipped, true},
		{StatusResolved, StatusSkipped, false},
		{StatusSkipped, StatusResolved, false},
		{StatusClean, StatusResolved, false},
		{StatusFlagged, StatusClean, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
		if tt.want {
			assert.NoError(t, Transition(tt.from, tt.to))
		} else {
			assert.Error(t, Transition(tt.from, tt.to))
		}
	}
	assert.False(t, IsTerminal(StatusFlagged))
	assert.True(t, IsTerminal(StatusResolved))
	assert.True(t, IsTerminal(StatusSkipped))
}

func TestNewEntry(t *testing.T) {
	now := time.Now()
	tl := sequence.Timeline{Events: []sequence.Event{{Sequence: 1}}, Observed: []int{1}}

	clean := NewEntry(uuid.New(), uuid.New(), uuid.New(), nil, tl, anomaly.Result{ProposedNext: 2}, "", now)
	assert.Equal(t, StatusClean, clean.Status)
	assert.Equal(t, []anomaly.Flag{}, clean.Flags)
	assert.Equal(t, anomaly.Flag(""), clean.PrimaryFlag())

	flagged := NewEntry(uuid.New(), uuid.New(), uuid.New(), nil, tl, anomaly.Result{
		Flags:        []anomaly.Flag{anomaly.GapDetected, anomaly.TimeTraveler},
		ProposedNext: 5,
	}, "", now)
	assert.Equal(t, StatusFlagged, flagged.Status)
	assert.Equal(t, anomaly.GapDetected, flagged.PrimaryFlag())
	assert.Equal(t, 5, flagged.ProposedNext)
}

func flaggedEntry(seriesID *uuid.UUID) Entry {
	return NewEntry(uuid.New(), uuid.New(), uuid.New(), seriesID, sequence.Timeline{Observed: []int{1, 2, 4}}, anomaly.Result{
		Flags:        []anomaly.Flag{anomaly.GapDetected},
		ProposedNext: 5,
	}, "", time.Now())
}

func TestResolve(t *testing.T) {
	series := uuid.New()
	actor := uuid.New()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	resolved, err := flaggedEntry(&series).Resolve(3, nil, actor, now)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedSequence)
	assert.Equal(t, 3, *resolved.ResolvedSequence)
	assert.Equal(t, actor, *resolved.ClosedBy)
	assert.Equal(t, now, *resolved.ClosedAt)

	_, err = resolved.Resolve(4, nil, actor, now)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	_, err = resolved.Skip("later", actor, now)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestResolveNeedsSeries(t *testing.T) {
	entry := flaggedEntry(nil)
	_, err := entry.Resolve(1, nil, uuid.New(), time.Now())
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	series := uuid.New()
	resolved, err := entry.Resolve(1, &series, uuid.New(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, series, *resolved.SeriesID)
	assert.Nil(t, entry.SeriesID)
}

func TestSkip(t *testing.T) {
	entry := flaggedEntry(nil)

	_, err := entry.Skip("   ", uuid.New(), time.Now())
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	skipped, err := entry.Skip(" waiting on merchant ", uuid.New(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, skipped.Status)
	assert.Equal(t, "waiting on merchant", *skipped.SkipReason)
	assert.Nil(t, skipped.ResolvedSequence)
}

func TestCleanEntryCannotBeClosed(t *testing.T) {
	clean := NewEntry(uuid.New(), uuid.New(), uuid.New(), nil, sequence.Timeline{}, anomaly.Result{ProposedNext: 1}, "", time.Now())
	_, err := clean.Resolve(1, nil, uuid.New(), time.Now())
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestClosureKeepsDerivedSeries(t *testing.T) {
	now := time.Now()
	derived, chosen := uuid.New(), uuid.New()

	stored := NewEntry(uuid.New(), uuid.New(), uuid.New(), nil, sequence.Timeline{},
		anomaly.Result{Flags: []anomaly.Flag{anomaly.NoHistory}, ProposedNext: 1}, "", now)
	resolved, err := stored.Resolve(1, &chosen, uuid.New(), now)
	require.NoError(t, err)
	got := stored.WithClosure(resolved.Closure())
	require.NotNil(t, got.SeriesID)
	assert.Equal(t, chosen, *got.SeriesID)
	assert.Equal(t, StatusResolved, got.Status)

	withSeries := NewEntry(uuid.New(), uuid.New(), uuid.New(), &derived, sequence.Timeline{Observed: []int{1, 3}},
		anomaly.Result{Flags: []anomaly.Flag{anomaly.GapDetected}, ProposedNext: 4}, "", now)
	resolved, err = withSeries.Resolve(4, &chosen, uuid.New(), now)
	require.NoError(t, err)
	got = withSeries.WithClosure(resolved.Closure())
	assert.Equal(t, derived, *got.SeriesID)
}

func TestStoredCountsOnlyCleanEntriesAsClean(t *testing.T) {
	assert.True(t, Stored{Status: StatusClean}.Clean())
	assert.False(t, Stored{Status: StatusFlagged}.Clean())
	assert.False(t, Stored{Status: StatusResolved, Replayed: true}.Clean())
	assert.False(t, Stored{Status: StatusSkipped, Replayed: true}.Clean())
}
