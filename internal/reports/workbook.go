package reports

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/audit"
	"github.com/SubscriberSync/portal-sub000/internal/migration/domain"

	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary = "Summary"
	sheetEntries = "Entries"

	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var entryHeadings = []interface{}{
	"Subscriber ID", "Series ID", "Status", "Flags", "Observed Sequences",
	"Unresolved SKUs", "Proposed Next", "Resolved Sequence", "Skip Reason", "Closed At", "Notes",
}

// BuildWorkbook renders a run and its audit entries as an xlsx document.
func BuildWorkbook(run domain.Run, entries []audit.Entry) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, fmt.Errorf("rename summary sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetEntries); err != nil {
		return nil, fmt.Errorf("create entries sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create heading style: %w", err)
	}

	if err := writeSummary(f, run, entries, bold); err != nil {
		return nil, err
	}
	if err := writeEntries(f, entries, bold); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf, nil
}

func writeSummary(f *excelize.File, run domain.Run, entries []audit.Entry, bold int) error {
	counts := map[audit.Status]int{}
	for _, e := range entries {
		counts[e.Status]++
	}

	rows := [][]interface{}{
		{"Run ID", run.ID.String()},
		{"Status", string(run.Status)},
		{"Failure Reason", run.FailureReason},
		{"Subscribers", run.Total},
		{"Processed", run.Counters.Processed},
		{"Clean", run.Counters.CleanCount},
		{"Flagged", run.Counters.FlaggedCount},
		{"Started At", formatTime(run.StartedAt)},
		{"Finished At", formatTime(run.FinishedAt)},
		{"Open For Review", counts[audit.StatusFlagged]},
		{"Resolved", counts[audit.StatusResolved]},
		{"Skipped", counts[audit.StatusSkipped]},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetSummary, cell, &row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}
	if err := f.SetColStyle(sheetSummary, "A", bold); err != nil {
		return fmt.Errorf("style summary: %w", err)
	}
	return f.SetColWidth(sheetSummary, "A", "B", 24)
}

func writeEntries(f *excelize.File, entries []audit.Entry, bold int) error {
	if err := f.SetSheetRow(sheetEntries, "A1", &entryHeadings); err != nil {
		return fmt.Errorf("write headings: %w", err)
	}
	if err := f.SetRowStyle(sheetEntries, 1, 1, bold); err != nil {
		return fmt.Errorf("style headings: %w", err)
	}

	for i, e := range entries {
		row := entryRow(e)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetEntries, cell, &row); err != nil {
			return fmt.Errorf("write entry row: %w", err)
		}
	}
	return f.SetColWidth(sheetEntries, "A", "K", 20)
}

func entryRow(e audit.Entry) []interface{} {
	series := ""
	if e.SeriesID != nil {
		series = e.SeriesID.String()
	}
	flags := make([]string, 0, len(e.Flags))
	for _, flag := range e.Flags {
		flags = append(flags, string(flag))
	}
	observed := make([]string, 0, len(e.Observed))
	for _, n := range e.Observed {
		observed = append(observed, strconv.Itoa(n))
	}
	skus := make([]string, 0, len(e.Missing))
	for _, m := range e.Missing {
		skus = append(skus, m.SKU)
	}
	resolved := ""
	if e.ResolvedSequence != nil {
		resolved = strconv.Itoa(*e.ResolvedSequence)
	}
	skip := ""
	if e.SkipReason != nil {
		skip = *e.SkipReason
	}

	return []interface{}{
		e.SubscriberID.String(),
		series,
		string(e.Status),
		strings.Join(flags, ", "),
		strings.Join(observed, ", "),
		strings.Join(skus, ", "),
		e.ProposedNext,
		resolved,
		skip,
		formatTime(e.ClosedAt),
		e.Notes,
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
