package service

import (
	"context"
	"errors"
	"testing"
	"time"

	aliasrepo "github.com/SubscriberSync/portal-sub000/internal/aliases/repository"
	"github.com/SubscriberSync/portal-sub000/internal/aliases/snapshot"
	"github.com/SubscriberSync/portal-sub000/internal/catalog/domain"
	"github.com/SubscriberSync/portal-sub000/internal/catalog/repository"
	"github.com/SubscriberSync/portal-sub000/internal/catalog/suggest"
	"github.com/SubscriberSync/portal-sub000/internal/catalog/transport"
	"github.com/SubscriberSync/portal-sub000/internal/orders"
	"github.com/SubscriberSync/portal-sub000/platform/apperr"
	"github.com/SubscriberSync/portal-sub000/platform/logger"

	"github.com/google/uuid"
)

type fakeRepo struct {
	variations  map[uuid.UUID]*repository.Variation
	suggestions map[uuid.UUID]*repository.Suggestion
	sightings   []repository.Sighting
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		variations:  map[uuid.UUID]*repository.Variation{},
		suggestions: map[uuid.UUID]*repository.Suggestion{},
	}
}

func (f *fakeRepo) add(merchantID uuid.UUID, product string) uuid.UUID {
	id := uuid.New()
	f.variations[id] = &repository.Variation{ID: id, MerchantID: merchantID, ProductName: product}
	return id
}

func (f *fakeRepo) RecordSightings(_ context.Context, _ uuid.UUID, s []repository.Sighting) (int, error) {
	f.sightings = append(f.sightings, s...)
	return len(s), nil
}

func (f *fakeRepo) GetVariation(_ context.Context, merchantID, id uuid.UUID) (repository.Variation, error) {
	v, ok := f.variations[id]
	if !ok || v.MerchantID != merchantID {
		return repository.Variation{}, apperr.NotFound("product variation not found")
	}
	return *v, nil
}

func (f *fakeRepo) ListVariations(context.Context, repository.ListVariationsParams) ([]repository.Variation, int, error) {
	return nil, 0, nil
}

func (f *fakeRepo) ListUnclassified(_ context.Context, merchantID uuid.UUID, _ int) ([]repository.Variation, error) {
	var out []repository.Variation
	for _, v := range f.variations {
		if v.MerchantID == merchantID && v.Classification == domain.Unclassified {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (f *fakeRepo) SetClassification(_ context.Context, merchantID uuid.UUID, ids []uuid.UUID, c domain.Classification) (repository.ClassifyResult, error) {
	var res repository.ClassifyResult
	for _, id := range ids {
		v, ok := f.variations[id]
		if !ok || v.MerchantID != merchantID {
			continue
		}
		res.Matched++
		if v.Classification != c {
			v.Classification = c
			res.Changed++
		}
	}
	return res, nil
}

func (f *fakeRepo) AssignTier(_ context.Context, merchantID, id uuid.UUID, tierID *uuid.UUID) (repository.Variation, error) {
	v, ok := f.variations[id]
	if !ok || v.MerchantID != merchantID {
		return repository.Variation{}, apperr.NotFound("variation or tier not found")
	}
	v.TierID = tierID
	return *v, nil
}

func (f *fakeRepo) ClassificationCounts(_ context.Context, merchantID uuid.UUID) (map[domain.Classification]int, error) {
	counts := map[domain.Classification]int{}
	for _, v := range f.variations {
		if v.MerchantID == merchantID {
			counts[v.Classification]++
		}
	}
	return counts, nil
}

func (f *fakeRepo) CreateSuggestions(_ context.Context, rows []repository.Suggestion) (int, error) {
	for _, r := range rows {
		r := r
		r.ID = uuid.New()
		r.Status = repository.SuggestionPending
		f.suggestions[r.ID] = &r
	}
	return len(rows), nil
}

func (f *fakeRepo) ListSuggestions(context.Context, repository.ListSuggestionsParams) ([]repository.Suggestion, error) {
	return nil, nil
}

func (f *fakeRepo) ConfirmSuggestions(_ context.Context, merchantID uuid.UUID, c domain.Classification, ids []uuid.UUID, actor uuid.UUID) (int, error) {
	want := map[uuid.UUID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	n := 0
	for id, s := range f.suggestions {
		if s.MerchantID != merchantID || s.Status != repository.SuggestionPending || s.Classification != c {
			continue
		}
		if len(ids) > 0 && !want[id] {
			continue
		}
		s.Status = repository.SuggestionConfirmed
		s.DecidedBy = &actor
		f.variations[s.VariationID].Classification = c
		n++
	}
	return n, nil
}

func (f *fakeRepo) RejectSuggestions(_ context.Context, merchantID uuid.UUID, ids []uuid.UUID, actor uuid.UUID) (int, error) {
	n := 0
	for _, id := range ids {
		if s, ok := f.suggestions[id]; ok && s.MerchantID == merchantID && s.Status == repository.SuggestionPending {
			s.Status = repository.SuggestionRejected
			n++
		}
	}
	return n, nil
}

func TestBulkClassifyIsIdempotent(t *testing.T) {
	merchantID := uuid.New()
	repo := newFakeRepo()
	a, b := repo.add(merchantID, "Book Box"), repo.add(merchantID, "Book Box Deluxe")
	svc := New(repo, nil, nil, logger.Discard())

	req := transport.BulkClassifyRequest{VariationIDs: []uuid.UUID{a, b, a}, Classification: "Subscription"}
	first, err := svc.BulkClassify(context.Background(), merchantID, req)
	if err != nil {
		t.Fatalf("first classify: %v", err)
	}
	if first.Matched != 2 || first.Changed != 2 {
		t.Fatalf("first classify = %+v, want 2 matched 2 changed", first)
	}

	second, err := svc.BulkClassify(context.Background(), merchantID, req)
	if err != nil {
		t.Fatalf("second classify: %v", err)
	}
	if second.Changed != 0 {
		t.Fatalf("second classify changed %d variations, want 0", second.Changed)
	}
	if repo.variations[a].Classification != domain.Subscription {
		t.Fatalf("classification = %q", repo.variations[a].Classification)
	}
}

func TestBulkClassifyUnknownVariation(t *testing.T) {
	merchantID := uuid.New()
	repo := newFakeRepo()
	a := repo.add(merchantID, "Book Box")
	other := repo.add(uuid.New(), "Someone else's box")
	svc := New(repo, nil, nil, logger.Discard())

	_, err := svc.BulkClassify(context.Background(), merchantID, transport.BulkClassifyRequest{
		VariationIDs:   []uuid.UUID{a, other},
		Classification: "addon",
	})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRunSuggestionsWithoutStrategy(t *testing.T) {
	svc := New(newFakeRepo(), nil, nil, logger.Discard())
	_, err := svc.RunSuggestions(context.Background(), uuid.New(), transport.RunSuggestionsRequest{})
	if !apperr.Is(err, apperr.KindPrecondition) {
		t.Fatalf("expected precondition failure, got %v", err)
	}
}

func TestSuggestionsNeedConfirmation(t *testing.T) {
	merchantID, actor := uuid.New(), uuid.New()
	repo := newFakeRepo()
	tote := repo.add(merchantID, "Canvas Tote")
	gift := repo.add(merchantID, "Gift Card")
	svc := New(repo, suggest.NewHeuristic(), nil, logger.Discard())

	resp, err := svc.RunSuggestions(context.Background(), merchantID, transport.RunSuggestionsRequest{})
	if err != nil {
		t.Fatalf("run suggestions: %v", err)
	}
	if resp.Candidates != 2 || resp.Queued != 2 {
		t.Fatalf("run suggestions = %+v, want 2 candidates 2 queued", resp)
	}
	if repo.variations[tote].Classification != domain.Unclassified {
		t.Fatal("suggestion pass must not classify")
	}

	confirmed, err := svc.ConfirmSuggestions(context.Background(), merchantID, actor, transport.ConfirmSuggestionsRequest{Classification: "addon"})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Count != 1 {
		t.Fatalf("confirmed %d suggestions, want 1", confirmed.Count)
	}
	if repo.variations[tote].Classification != domain.Addon {
		t.Fatalf("tote classification = %q, want addon", repo.variations[tote].Classification)
	}
	if repo.variations[gift].Classification != domain.Unclassified {
		t.Fatal("confirming addon suggestions must leave other categories pending")
	}
}

type failingSuggester struct{}

func (failingSuggester) Name() string { return "broken" }
func (failingSuggester) Suggest(context.Context, []suggest.Candidate) ([]suggest.Verdict, error) {
	return nil, errors.New("upstream unavailable")
}

func TestRunSuggestionsStrategyFailure(t *testing.T) {
	merchantID := uuid.New()
	repo := newFakeRepo()
	repo.add(merchantID, "Mystery")
	svc := New(repo, failingSuggester{}, nil, logger.Discard())

	if _, err := svc.RunSuggestions(context.Background(), merchantID, transport.RunSuggestionsRequest{}); err == nil {
		t.Fatal("expected error from failing strategy")
	}
	if len(repo.suggestions) != 0 {
		t.Fatal("no suggestions should be queued")
	}
}

type fakeCustomers []string

func (f fakeCustomers) ListCommerceCustomerIDs(context.Context, uuid.UUID) ([]string, error) {
	return f, nil
}

type fakeOrders map[string][]orders.Order

func (f fakeOrders) ListOrders(_ context.Context, customerID string, _ orders.DateRange) ([]orders.Order, error) {
	history, ok := f[customerID]
	if !ok {
		return nil, errors.New("customer lookup failed")
	}
	return history, nil
}

type fakeAliasIndex struct {
	snap    *snapshot.Snapshot
	unknown []aliasrepo.UnknownSighting
}

func (f *fakeAliasIndex) LoadSnapshot(context.Context, uuid.UUID) (*snapshot.Snapshot, error) {
	return f.snap, nil
}

func (f *fakeAliasIndex) RecordUnknownSKUs(_ context.Context, _ uuid.UUID, s []aliasrepo.UnknownSighting) error {
	f.unknown = append(f.unknown, s...)
	return nil
}

func TestScanAggregatesSightings(t *testing.T) {
	merchantID := uuid.New()
	series := snapshot.Series{ID: uuid.New(), Name: "Book Box", Sequential: true}
	snap := snapshot.New(merchantID, []snapshot.Series{series},
		[]snapshot.Alias{{Key: "BOX-01", Target: snapshot.Target{SeriesID: series.ID, Sequence: 1}}}, nil)
	aliases := &fakeAliasIndex{snap: snap}

	jan := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	feb := jan.AddDate(0, 1, 0)
	history := fakeOrders{
		"c1": {
			{ID: "o1", OrderNumber: "1001", CreatedAt: feb, LineItems: []orders.LineItem{
				{ProductName: "Book Box", VariantTitle: "Month 1", SKU: "BOX-01", Quantity: 1},
				{ProductName: "Book Box", VariantTitle: "Month 1", SKU: "BOX-01", Quantity: 1},
			}},
			{ID: "o2", OrderNumber: "1002", CreatedAt: jan, FinancialStatus: "refunded", LineItems: []orders.LineItem{
				{ProductName: "Book Box", VariantTitle: "Month 1", SKU: "BOX-01", Quantity: 1},
			}},
		},
		"c2": {
			{ID: "o3", OrderNumber: "1003", CreatedAt: jan, LineItems: []orders.LineItem{
				{ProductName: "book box", VariantTitle: "month 1", SKU: "BOX-01", Quantity: 1},
				{ProductName: "Book Box", VariantTitle: "Month 2", SKU: "BOX-02", Quantity: 1},
			}},
		},
	}

	repo := newFakeRepo()
	scanner := NewScanner(New(repo, nil, nil, logger.Discard()), fakeCustomers{"c1", "c2", "c3"}, history, aliases, logger.Discard())

	resp, err := scanner.Scan(context.Background(), merchantID)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if resp.FailedCustomers != 1 {
		t.Fatalf("failed customers = %d, want 1", resp.FailedCustomers)
	}
	if resp.Variations != 2 {
		t.Fatalf("variations = %d, want 2", resp.Variations)
	}

	month1 := repo.sightings[0]
	if month1.Orders != 2 {
		t.Fatalf("month 1 orders = %d, want 2 (voided order skipped, duplicate line counted once)", month1.Orders)
	}
	if !month1.FirstSeenAt.Equal(jan) || !month1.LastSeenAt.Equal(feb) {
		t.Fatalf("month 1 seen window = %v..%v", month1.FirstSeenAt, month1.LastSeenAt)
	}

	if len(aliases.unknown) != 1 || aliases.unknown[0].SKU != "BOX-02" {
		t.Fatalf("unknown skus = %+v, want BOX-02 only", aliases.unknown)
	}
}
