package reports

import (
	"testing"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/anomaly"
	"github.com/SubscriberSync/portal-sub000/internal/audit"
	"github.com/SubscriberSync/portal-sub000/internal/migration/domain"
	"github.com/SubscriberSync/portal-sub000/internal/sequence"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleEntries(merchantID, runID uuid.UUID) []audit.Entry {
	series := uuid.New()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clean := audit.NewEntry(merchantID, runID, uuid.New(), &series,
		sequence.Timeline{Observed: []int{1, 2, 3}}, anomaly.Result{ProposedNext: 4}, "", now)
	gap := audit.NewEntry(merchantID, runID, uuid.New(), &series,
		sequence.Timeline{
			Observed: []int{1, 2, 4},
			Missing:  []sequence.MissingPoint{{OrderID: "o-9", SKU: "BOX-X"}},
		},
		anomaly.Result{Flags: []anomaly.Flag{anomaly.GapDetected, anomaly.PrepaidAssumed}, ProposedNext: 5}, "", now)
	resolved, err := gap.Resolve(3, nil, uuid.New(), now.Add(time.Hour))
	if err != nil {
		panic(err)
	}
	return []audit.Entry{clean, resolved}
}

func TestBuildWorkbook(t *testing.T) {
	merchantID, runID := uuid.New(), uuid.New()
	run := domain.Run{
		ID:       runID,
		Status:   domain.StatusCompleted,
		Total:    2,
		Counters: domain.Counters{Processed: 2, CleanCount: 1, FlaggedCount: 1},
	}

	buf, err := BuildWorkbook(run, sampleEntries(merchantID, runID))
	require.NoError(t, err)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{sheetSummary, sheetEntries}, f.GetSheetList())

	status, err := f.GetCellValue(sheetSummary, "B2")
	require.NoError(t, err)
	assert.Equal(t, "completed", status)
	resolved, err := f.GetCellValue(sheetSummary, "B11")
	require.NoError(t, err)
	assert.Equal(t, "1", resolved)

	rows, err := f.GetRows(sheetEntries)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Subscriber ID", rows[0][0])

	assert.Equal(t, "clean", rows[1][2])
	assert.Equal(t, "1, 2, 3", rows[1][4])
	assert.Equal(t, "4", rows[1][6])

	assert.Equal(t, "resolved", rows[2][2])
	assert.Equal(t, "gap_detected, prepaid_assumed", rows[2][3])
	assert.Equal(t, "1, 2, 4", rows[2][4])
	assert.Equal(t, "BOX-X", rows[2][5])
	assert.Equal(t, "5", rows[2][6])
	assert.Equal(t, "3", rows[2][7])
	assert.Equal(t, "2025-03-01T13:00:00Z", rows[2][9])
}

func TestBuildWorkbookWithoutEntries(t *testing.T) {
	buf, err := BuildWorkbook(domain.Run{ID: uuid.New(), Status: domain.StatusFailed, FailureReason: domain.FailureCancelled}, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(sheetEntries)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	reason, err := f.GetCellValue(sheetSummary, "B3")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", reason)
}
