package service

import (
	"context"
	"testing"
	"time"

	aliasrepo "github.com/SubscriberSync/portal-sub000/internal/aliases/repository"
	"github.com/SubscriberSync/portal-sub000/internal/anomaly"
	"github.com/SubscriberSync/portal-sub000/internal/audit"
	auditrepo "github.com/SubscriberSync/portal-sub000/internal/audit/repository"
	"github.com/SubscriberSync/portal-sub000/internal/resolution/repository"
	"github.com/SubscriberSync/portal-sub000/internal/resolution/transport"
	"github.com/SubscriberSync/portal-sub000/internal/sequence"
	"github.com/SubscriberSync/portal-sub000/platform/apperr"
	"github.com/SubscriberSync/portal-sub000/platform/logger"

	"github.com/google/uuid"
)

// fakeStore keeps entries and the authoritative positions they write.
type fakeStore struct {
	entries   map[uuid.UUID]audit.Entry
	positions map[uuid.UUID]int
	lastList  auditrepo.ListParams
}

func newFakeStore(entries ...audit.Entry) *fakeStore {
	f := &fakeStore{entries: map[uuid.UUID]audit.Entry{}, positions: map[uuid.UUID]int{}}
	for _, e := range entries {
		f.entries[e.ID] = e
	}
	return f
}

func (f *fakeStore) GetByID(_ context.Context, merchantID, id uuid.UUID) (audit.Entry, error) {
	e, ok := f.entries[id]
	if !ok || e.MerchantID != merchantID {
		return audit.Entry{}, apperr.NotFound("audit log entry not found")
	}
	return e, nil
}

func (f *fakeStore) List(_ context.Context, params auditrepo.ListParams) (auditrepo.ListResult, error) {
	f.lastList = params
	var items []audit.Entry
	for _, e := range f.entries {
		if params.Status == nil || e.Status == *params.Status {
			items = append(items, e)
		}
	}
	return auditrepo.ListResult{Items: items, Total: len(items), Page: 1, PageSize: 20, TotalPages: 1}, nil
}

func (f *fakeStore) CountByStatus(context.Context, uuid.UUID) (map[audit.Status]int, error) {
	counts := map[audit.Status]int{}
	for _, e := range f.entries {
		counts[e.Status]++
	}
	return counts, nil
}

func (f *fakeStore) Close(ctx context.Context, merchantID, entryID uuid.UUID, decide repository.Decide, _ string) (audit.Entry, int, error) {
	e, err := f.GetByID(ctx, merchantID, entryID)
	if err != nil {
		return audit.Entry{}, 0, err
	}
	closed, err := decide(e)
	if err != nil {
		return audit.Entry{}, 0, err
	}
	// Only the closure columns reach storage.
	f.entries[closed.ID] = e.WithClosure(closed.Closure())
	from := f.positions[closed.SubscriberID]
	if closed.Status == audit.StatusResolved {
		f.positions[closed.SubscriberID] = *closed.ResolvedSequence
	}
	return closed, from, nil
}

// fakeSeries maps series to the merchant owning them.
type fakeSeries map[uuid.UUID]uuid.UUID

func (f fakeSeries) GetSeries(_ context.Context, merchantID, id uuid.UUID) (aliasrepo.Series, error) {
	if owner, ok := f[id]; !ok || owner != merchantID {
		return aliasrepo.Series{}, apperr.NotFound("series not found")
	}
	return aliasrepo.Series{ID: id, MerchantID: merchantID}, nil
}

func flagged(merchantID uuid.UUID) audit.Entry {
	series := uuid.New()
	return audit.NewEntry(merchantID, uuid.New(), uuid.New(), &series,
		sequence.Timeline{Observed: []int{1, 2, 4}},
		anomaly.Result{Flags: []anomaly.Flag{anomaly.GapDetected}, ProposedNext: 5}, "", time.Now())
}

func intPtr(v int) *int { return &v }

func TestResolveRoundTrip(t *testing.T) {
	merchantID, actor := uuid.New(), uuid.New()
	entry := flagged(merchantID)
	store := newFakeStore(entry)
	store.positions[entry.SubscriberID] = 2
	svc := New(store, fakeSeries{}, nil, logger.Discard())

	resp, err := svc.Resolve(context.Background(), merchantID, actor, entry.ID, transport.ResolveRequest{Sequence: intPtr(3)})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resp.Status != string(audit.StatusResolved) || *resp.ResolvedSequence != 3 {
		t.Fatalf("resolve response = %+v", resp)
	}

	got, err := svc.Get(context.Background(), merchantID, entry.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != string(audit.StatusResolved) || got.ResolvedSequence == nil || *got.ResolvedSequence != 3 {
		t.Fatalf("fetched entry = %+v", got)
	}
	if store.positions[entry.SubscriberID] != 3 {
		t.Fatalf("position = %d, want 3", store.positions[entry.SubscriberID])
	}
	if got.ClosedBy == nil || *got.ClosedBy != actor {
		t.Fatalf("closedBy = %v, want %s", got.ClosedBy, actor)
	}

	_, err = svc.Resolve(context.Background(), merchantID, actor, entry.ID, transport.ResolveRequest{Sequence: intPtr(4)})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("second resolve: expected conflict, got %v", err)
	}
}

func TestSkipLeavesPositionUnchanged(t *testing.T) {
	merchantID := uuid.New()
	entry := flagged(merchantID)
	store := newFakeStore(entry)
	store.positions[entry.SubscriberID] = 2
	svc := New(store, fakeSeries{}, nil, logger.Discard())

	resp, err := svc.Skip(context.Background(), merchantID, uuid.New(), entry.ID, transport.SkipRequest{Reason: "merchant checking"})
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if resp.Status != string(audit.StatusSkipped) || resp.SkipReason == nil {
		t.Fatalf("skip response = %+v", resp)
	}
	if store.positions[entry.SubscriberID] != 2 {
		t.Fatalf("position moved to %d", store.positions[entry.SubscriberID])
	}

	queue, err := svc.Queue(context.Background(), merchantID, transport.ListEntriesRequest{Status: "skipped"})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if queue.Total != 1 || queue.Items[0].ID != entry.ID {
		t.Fatalf("skipped queue = %+v", queue)
	}

	_, err = svc.Resolve(context.Background(), merchantID, uuid.New(), entry.ID, transport.ResolveRequest{Sequence: intPtr(3)})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("resolving a skipped entry: expected conflict, got %v", err)
	}
}

func TestQueueDefaultsToFlagged(t *testing.T) {
	merchantID := uuid.New()
	store := newFakeStore(flagged(merchantID))
	svc := New(store, fakeSeries{}, nil, logger.Discard())

	resp, err := svc.Queue(context.Background(), merchantID, transport.ListEntriesRequest{Flag: "gap_detected"})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if store.lastList.Status == nil || *store.lastList.Status != audit.StatusFlagged {
		t.Fatalf("status filter = %v, want flagged", store.lastList.Status)
	}
	if store.lastList.Flag == nil || *store.lastList.Flag != anomaly.GapDetected {
		t.Fatalf("flag filter = %v", store.lastList.Flag)
	}
	if resp.Total != 1 || resp.Items[0].PrimaryFlag != "gap_detected" {
		t.Fatalf("queue = %+v", resp)
	}

	if _, err := svc.Queue(context.Background(), merchantID, transport.ListEntriesRequest{Flag: "nope"}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("unknown flag: expected validation error, got %v", err)
	}
}

func TestResolveUnknownEntry(t *testing.T) {
	svc := New(newFakeStore(), fakeSeries{}, nil, logger.Discard())
	_, err := svc.Resolve(context.Background(), uuid.New(), uuid.New(), uuid.New(), transport.ResolveRequest{Sequence: intPtr(1)})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSkipReasonIsSanitized(t *testing.T) {
	merchantID := uuid.New()
	entry := flagged(merchantID)
	svc := New(newFakeStore(entry), fakeSeries{}, nil, logger.Discard())

	_, err := svc.Skip(context.Background(), merchantID, uuid.New(), entry.ID, transport.SkipRequest{Reason: "<br/>"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("markup-only reason: want validation error, got %v", err)
	}

	resp, err := svc.Skip(context.Background(), merchantID, uuid.New(), entry.ID, transport.SkipRequest{Reason: "<b>ask</b>  the merchant"})
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if *resp.SkipReason != "ask the merchant" {
		t.Fatalf("skip reason = %q", *resp.SkipReason)
	}
}

func seriesless(merchantID uuid.UUID) audit.Entry {
	return audit.NewEntry(merchantID, uuid.New(), uuid.New(), nil, sequence.Timeline{},
		anomaly.Result{Flags: []anomaly.Flag{anomaly.NoHistory}, ProposedNext: 1}, "", time.Now())
}

func TestResolveSeriesless(t *testing.T) {
	merchantID := uuid.New()
	entry := seriesless(merchantID)
	store := newFakeStore(entry)
	chosen := uuid.New()
	svc := New(store, fakeSeries{chosen: merchantID}, nil, logger.Discard())

	_, err := svc.Resolve(context.Background(), merchantID, uuid.New(), entry.ID, transport.ResolveRequest{Sequence: intPtr(1)})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("resolve without series: want validation error, got %v", err)
	}

	if _, err := svc.Resolve(context.Background(), merchantID, uuid.New(), entry.ID, transport.ResolveRequest{Sequence: intPtr(1), SeriesID: &chosen}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got, err := svc.Get(context.Background(), merchantID, entry.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SeriesID == nil || *got.SeriesID != chosen {
		t.Fatalf("fetched series = %v, want %s", got.SeriesID, chosen)
	}
}

func TestResolveRejectsForeignSeries(t *testing.T) {
	merchantID := uuid.New()
	entry := seriesless(merchantID)
	store := newFakeStore(entry)
	foreign := uuid.New()
	svc := New(store, fakeSeries{foreign: uuid.New()}, nil, logger.Discard())

	_, err := svc.Resolve(context.Background(), merchantID, uuid.New(), entry.ID, transport.ResolveRequest{Sequence: intPtr(1), SeriesID: &foreign})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("foreign series: want not found, got %v", err)
	}
	if store.entries[entry.ID].Status != audit.StatusFlagged {
		t.Fatalf("entry closed with a foreign series: %+v", store.entries[entry.ID])
	}
	if _, moved := store.positions[entry.SubscriberID]; moved {
		t.Fatal("position written for a foreign series")
	}
}
