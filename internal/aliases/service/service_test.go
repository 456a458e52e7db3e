package service

import (
	"context"
	"testing"

	"github.com/SubscriberSync/portal-sub000/internal/aliases/repository"
	"github.com/SubscriberSync/portal-sub000/internal/aliases/snapshot"
	"github.com/SubscriberSync/portal-sub000/internal/aliases/transport"
	"github.com/SubscriberSync/portal-sub000/platform/apperr"
	"github.com/SubscriberSync/portal-sub000/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	series  map[uuid.UUID]repository.Series
	tiers   map[uuid.UUID]repository.Tier
	aliases map[string]repository.Alias
	refs    map[uuid.UUID]repository.TierReferences

	deleted []uuid.UUID
	merged  [][2]uuid.UUID
	batches [][]repository.Alias
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		series:  map[uuid.UUID]repository.Series{},
		tiers:   map[uuid.UUID]repository.Tier{},
		aliases: map[string]repository.Alias{},
		refs:    map[uuid.UUID]repository.TierReferences{},
	}
}

func (f *fakeStore) CreateSeries(_ context.Context, s repository.Series) (repository.Series, error) {
	f.series[s.ID] = s
	return s, nil
}

func (f *fakeStore) GetSeries(_ context.Context, merchantID, id uuid.UUID) (repository.Series, error) {
	s, ok := f.series[id]
	if !ok || s.MerchantID != merchantID {
		return repository.Series{}, apperr.NotFound("series not found")
	}
	return s, nil
}

func (f *fakeStore) ListSeries(_ context.Context, merchantID uuid.UUID) ([]repository.Series, error) {
	var out []repository.Series
	for _, s := range f.series {
		if s.MerchantID == merchantID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateTier(_ context.Context, t repository.Tier) (repository.Tier, error) {
	f.tiers[t.ID] = t
	return t, nil
}

func (f *fakeStore) GetTier(_ context.Context, merchantID, id uuid.UUID) (repository.Tier, error) {
	t, ok := f.tiers[id]
	if !ok || t.MerchantID != merchantID {
		return repository.Tier{}, apperr.NotFound("tier not found")
	}
	return t, nil
}

func (f *fakeStore) ListTiers(_ context.Context, _ uuid.UUID, seriesID uuid.UUID) ([]repository.Tier, error) {
	var out []repository.Tier
	for _, t := range f.tiers {
		if t.SeriesID == seriesID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) TierReferences(_ context.Context, _ uuid.UUID, tierID uuid.UUID) (repository.TierReferences, error) {
	return f.refs[tierID], nil
}

func (f *fakeStore) DeleteTier(_ context.Context, _ uuid.UUID, tierID uuid.UUID) error {
	f.deleted = append(f.deleted, tierID)
	delete(f.tiers, tierID)
	return nil
}

func (f *fakeStore) MergeTier(_ context.Context, _ uuid.UUID, from, into uuid.UUID) error {
	f.merged = append(f.merged, [2]uuid.UUID{from, into})
	return nil
}

func (f *fakeStore) UpsertAliases(_ context.Context, aliases []repository.Alias) error {
	f.batches = append(f.batches, aliases)
	for _, a := range aliases {
		f.aliases[a.SKUNormalized] = a
	}
	return nil
}

func (f *fakeStore) DeleteAlias(_ context.Context, _ uuid.UUID, key string) error {
	if _, ok := f.aliases[key]; !ok {
		return apperr.NotFound("sku alias not found")
	}
	delete(f.aliases, key)
	return nil
}

func (f *fakeStore) ListAliases(context.Context, uuid.UUID, *uuid.UUID) ([]repository.Alias, error) {
	return nil, nil
}

func (f *fakeStore) CountAliases(context.Context, uuid.UUID) (int, error) {
	return len(f.aliases), nil
}

func (f *fakeStore) RecordUnknownSKUs(context.Context, uuid.UUID, []repository.UnknownSighting) error {
	return nil
}

func (f *fakeStore) ListUnknownSKUs(context.Context, uuid.UUID, int) ([]repository.UnknownSKU, error) {
	return nil, nil
}

func (f *fakeStore) LoadSnapshot(_ context.Context, merchantID uuid.UUID) (*snapshot.Snapshot, error) {
	return snapshot.New(merchantID, nil, nil, nil), nil
}

func seed(t *testing.T, store *fakeStore, merchantID uuid.UUID) (uuid.UUID, uuid.UUID, uuid.UUID) {
	t.Helper()
	seriesID := uuid.New()
	store.series[seriesID] = repository.Series{ID: seriesID, MerchantID: merchantID, Name: "Box", Sequential: true}
	first, second := uuid.New(), uuid.New()
	store.tiers[first] = repository.Tier{ID: first, MerchantID: merchantID, SeriesID: seriesID, SequenceNumber: 1}
	store.tiers[second] = repository.Tier{ID: second, MerchantID: merchantID, SeriesID: seriesID, SequenceNumber: 2}
	return seriesID, first, second
}

func TestDeleteReferencedTierRequiresConfirmation(t *testing.T) {
	store := newFakeStore()
	merchantID := uuid.New()
	_, tierID, _ := seed(t, store, merchantID)
	store.refs[tierID] = repository.TierReferences{Aliases: 2, Variations: 1}
	svc := New(store, nil, logger.Discard())

	err := svc.DeleteTier(context.Background(), merchantID, tierID, false)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(store.deleted) != 0 {
		t.Fatal("tier must not be deleted without confirmation")
	}

	if err := svc.DeleteTier(context.Background(), merchantID, tierID, true); err != nil {
		t.Fatalf("confirmed delete failed: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != tierID {
		t.Fatalf("unexpected deletions: %v", store.deleted)
	}
}

func TestDeleteUnreferencedTierNeedsNoConfirmation(t *testing.T) {
	store := newFakeStore()
	merchantID := uuid.New()
	_, tierID, _ := seed(t, store, merchantID)
	svc := New(store, nil, logger.Discard())

	if err := svc.DeleteTier(context.Background(), merchantID, tierID, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMergeTierRejectsOtherSeries(t *testing.T) {
	store := newFakeStore()
	merchantID := uuid.New()
	_, first, second := seed(t, store, merchantID)
	foreign := uuid.New()
	store.tiers[foreign] = repository.Tier{ID: foreign, MerchantID: merchantID, SeriesID: uuid.New(), SequenceNumber: 1}
	svc := New(store, nil, logger.Discard())

	err := svc.MergeTier(context.Background(), merchantID, first, transport.MergeTierRequest{IntoTierID: foreign})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	err = svc.MergeTier(context.Background(), merchantID, first, transport.MergeTierRequest{IntoTierID: first})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for self merge, got %v", err)
	}

	if err := svc.MergeTier(context.Background(), merchantID, first, transport.MergeTierRequest{IntoTierID: second}); err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if len(store.merged) != 1 || store.merged[0] != [2]uuid.UUID{first, second} {
		t.Fatalf("unexpected merges: %v", store.merged)
	}
}

func TestUpsertAliasesNormalizesAndLastWriteWins(t *testing.T) {
	store := newFakeStore()
	merchantID := uuid.New()
	_, first, second := seed(t, store, merchantID)
	svc := New(store, nil, logger.Discard())

	err := svc.UpsertAliases(context.Background(), merchantID, []transport.UpsertAliasRequest{
		{SKU: " box-01 ", TierID: first},
		{SKU: "BOX-01", TierID: second},
		{SKU: "BOX-02", TierID: second},
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if len(store.batches) != 1 || len(store.batches[0]) != 2 {
		t.Fatalf("expected one batch of two aliases, got %v", store.batches)
	}
	if got := store.aliases["box-01"].TierID; got != second {
		t.Fatalf("expected last write to win, got tier %s", got)
	}
}

func TestUpsertAliasUnknownTier(t *testing.T) {
	store := newFakeStore()
	svc := New(store, nil, logger.Discard())

	err := svc.UpsertAliases(context.Background(), uuid.New(), []transport.UpsertAliasRequest{{SKU: "X", TierID: uuid.New()}})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateTierBeyondSeriesLength(t *testing.T) {
	store := newFakeStore()
	merchantID := uuid.New()
	seriesID, _, _ := seed(t, store, merchantID)
	total := 3
	s := store.series[seriesID]
	s.TotalInstallments = &total
	store.series[seriesID] = s
	svc := New(store, nil, logger.Discard())

	_, err := svc.CreateTier(context.Background(), merchantID, seriesID, transport.CreateTierRequest{SequenceNumber: 4})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
