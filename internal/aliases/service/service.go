package service

import (
	"context"
	"strings"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/aliases/repository"
	"github.com/SubscriberSync/portal-sub000/internal/aliases/snapshot"
	"github.com/SubscriberSync/portal-sub000/internal/aliases/transport"
	"github.com/SubscriberSync/portal-sub000/internal/catalog/domain"
	"github.com/SubscriberSync/portal-sub000/internal/events"
	"github.com/SubscriberSync/portal-sub000/platform/apperr"
	"github.com/SubscriberSync/portal-sub000/platform/logger"

	"github.com/google/uuid"
)

const defaultUnknownLimit = 100

// Store is the persistence the alias service needs.
type Store interface {
	CreateSeries(ctx context.Context, s repository.Series) (repository.Series, error)
	GetSeries(ctx context.Context, merchantID, id uuid.UUID) (repository.Series, error)
	ListSeries(ctx context.Context, merchantID uuid.UUID) ([]repository.Series, error)
	CreateTier(ctx context.Context, t repository.Tier) (repository.Tier, error)
	GetTier(ctx context.Context, merchantID, id uuid.UUID) (repository.Tier, error)
	ListTiers(ctx context.Context, merchantID, seriesID uuid.UUID) ([]repository.Tier, error)
	TierReferences(ctx context.Context, merchantID, tierID uuid.UUID) (repository.TierReferences, error)
	DeleteTier(ctx context.Context, merchantID, tierID uuid.UUID) error
	MergeTier(ctx context.Context, merchantID, from, into uuid.UUID) error
	UpsertAliases(ctx context.Context, aliases []repository.Alias) error
	DeleteAlias(ctx context.Context, merchantID uuid.UUID, skuNormalized string) error
	ListAliases(ctx context.Context, merchantID uuid.UUID, seriesID *uuid.UUID) ([]repository.Alias, error)
	CountAliases(ctx context.Context, merchantID uuid.UUID) (int, error)
	RecordUnknownSKUs(ctx context.Context, merchantID uuid.UUID, sightings []repository.UnknownSighting) error
	ListUnknownSKUs(ctx context.Context, merchantID uuid.UUID, limit int) ([]repository.UnknownSKU, error)
	LoadSnapshot(ctx context.Context, merchantID uuid.UUID) (*snapshot.Snapshot, error)
}

// Service provides business logic for the SKU alias table.
type Service struct {
	repo     Store
	eventBus events.Bus
	log      *logger.Logger
}

// New creates a new aliases service.
func New(repo Store, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, eventBus: eventBus, log: log}
}

func (s *Service) CreateSeries(ctx context.Context, merchantID uuid.UUID, req transport.CreateSeriesRequest) (transport.SeriesResponse, error) {
	sequential := true
	if req.Sequential != nil {
		sequential = *req.Sequential
	}
	series := repository.Series{
		ID:                uuid.New(),
		MerchantID:        merchantID,
		Name:              strings.TrimSpace(req.Name),
		Sequential:        sequential,
		TotalInstallments: req.TotalInstallments,
		ExternalProductID: trimOptional(req.ExternalProductID),
		CreatedAt:         time.Now().UTC(),
	}
	created, err := s.repo.CreateSeries(ctx, series)
	if err != nil {
		return transport.SeriesResponse{}, err
	}
	s.log.Info("series created", "merchantId", merchantID, "seriesId", created.ID, "name", created.Name)
	s.tableChanged(ctx, merchantID, "series created")
	return mapSeries(created), nil
}

func (s *Service) ListSeries(ctx context.Context, merchantID uuid.UUID) ([]transport.SeriesResponse, error) {
	items, err := s.repo.ListSeries(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	out := make([]transport.SeriesResponse, 0, len(items))
	for _, item := range items {
		out = append(out, mapSeries(item))
	}
	return out, nil
}

func (s *Service) CreateTier(ctx context.Context, merchantID, seriesID uuid.UUID, req transport.CreateTierRequest) (transport.TierResponse, error) {
	series, err := s.repo.GetSeries(ctx, merchantID, seriesID)
	if err != nil {
		return transport.TierResponse{}, err
	}
	if series.TotalInstallments != nil && req.SequenceNumber > *series.TotalInstallments {
		return transport.TierResponse{}, apperr.Validation("sequence number exceeds the series length")
	}
	created, err := s.repo.CreateTier(ctx, repository.Tier{
		ID:             uuid.New(),
		MerchantID:     merchantID,
		SeriesID:       seriesID,
		SequenceNumber: req.SequenceNumber,
		Label:          strings.TrimSpace(req.Label),
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return transport.TierResponse{}, err
	}
	s.tableChanged(ctx, merchantID, "tier created")
	return mapTier(created), nil
}

func (s *Service) ListTiers(ctx context.Context, merchantID, seriesID uuid.UUID) ([]transport.TierResponse, error) {
	if _, err := s.repo.GetSeries(ctx, merchantID, seriesID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListTiers(ctx, merchantID, seriesID)
	if err != nil {
		return nil, err
	}
	out := make([]transport.TierResponse, 0, len(items))
	for _, item := range items {
		out = append(out, mapTier(item))
	}
	return out, nil
}

// DeleteTier refuses to drop a referenced tier unless the caller confirmed it.
func (s *Service) DeleteTier(ctx context.Context, merchantID, tierID uuid.UUID, confirm bool) error {
	if _, err := s.repo.GetTier(ctx, merchantID, tierID); err != nil {
		return err
	}
	refs, err := s.repo.TierReferences(ctx, merchantID, tierID)
	if err != nil {
		return err
	}
	if refs.Total() > 0 && !confirm {
		return apperr.Conflict("tier is still referenced; confirm to delete it with its aliases").
			WithOp("aliases.DeleteTier").
			WithDetails(refs)
	}
	if err := s.repo.DeleteTier(ctx, merchantID, tierID); err != nil {
		return err
	}
	s.log.Info("tier deleted", "merchantId", merchantID, "tierId", tierID, "aliases", refs.Aliases, "variations", refs.Variations)
	s.tableChanged(ctx, merchantID, "tier deleted")
	return nil
}

// MergeTier folds one tier into another of the same series.
func (s *Service) MergeTier(ctx context.Context, merchantID, tierID uuid.UUID, req transport.MergeTierRequest) error {
	if tierID == req.IntoTierID {
		return apperr.Validation("cannot merge a tier into itself")
	}
	from, err := s.repo.GetTier(ctx, merchantID, tierID)
	if err != nil {
		return err
	}
	into, err := s.repo.GetTier(ctx, merchantID, req.IntoTierID)
	if err != nil {
		return err
	}
	if from.SeriesID != into.SeriesID {
		return apperr.Validation("tiers belong to different series")
	}
	if err := s.repo.MergeTier(ctx, merchantID, from.ID, into.ID); err != nil {
		return err
	}
	s.log.Info("tier merged", "merchantId", merchantID, "from", from.ID, "into", into.ID)
	s.tableChanged(ctx, merchantID, "tier merged")
	return nil
}

func (s *Service) UpsertAlias(ctx context.Context, merchantID uuid.UUID, req transport.UpsertAliasRequest) (transport.AliasResponse, error) {
	if err := s.UpsertAliases(ctx, merchantID, []transport.UpsertAliasRequest{req}); err != nil {
		return transport.AliasResponse{}, err
	}
	tier, err := s.repo.GetTier(ctx, merchantID, req.TierID)
	if err != nil {
		return transport.AliasResponse{}, err
	}
	return transport.AliasResponse{
		SKU:            strings.TrimSpace(req.SKU),
		TierID:         tier.ID,
		SeriesID:       tier.SeriesID,
		SequenceNumber: tier.SequenceNumber,
		UpdatedAt:      time.Now().UTC(),
	}, nil
}

// UpsertAliases writes a batch of aliases. Duplicate SKUs within the batch
// collapse to the last one.
func (s *Service) UpsertAliases(ctx context.Context, merchantID uuid.UUID, reqs []transport.UpsertAliasRequest) error {
	now := time.Now().UTC()
	tiers := make(map[uuid.UUID]bool)
	byKey := make(map[string]int)
	aliases := make([]repository.Alias, 0, len(reqs))

	for _, req := range reqs {
		key := domain.Normalize(req.SKU)
		if key == "" {
			return apperr.Validation("sku is required")
		}
		if !tiers[req.TierID] {
			if _, err := s.repo.GetTier(ctx, merchantID, req.TierID); err != nil {
				return err
			}
			tiers[req.TierID] = true
		}
		alias := repository.Alias{
			MerchantID:    merchantID,
			SKU:           strings.TrimSpace(req.SKU),
			SKUNormalized: key,
			TierID:        req.TierID,
			UpdatedAt:     now,
		}
		if i, ok := byKey[key]; ok {
			aliases[i] = alias
			continue
		}
		byKey[key] = len(aliases)
		aliases = append(aliases, alias)
	}

	if err := s.repo.UpsertAliases(ctx, aliases); err != nil {
		return err
	}
	s.log.Info("sku aliases upserted", "merchantId", merchantID, "count", len(aliases))
	s.tableChanged(ctx, merchantID, "aliases upserted")
	return nil
}

func (s *Service) DeleteAlias(ctx context.Context, merchantID uuid.UUID, sku string) error {
	key := domain.Normalize(sku)
	if key == "" {
		return apperr.Validation("sku is required")
	}
	if err := s.repo.DeleteAlias(ctx, merchantID, key); err != nil {
		return err
	}
	s.tableChanged(ctx, merchantID, "alias deleted")
	return nil
}

func (s *Service) ListAliases(ctx context.Context, merchantID uuid.UUID, seriesID *uuid.UUID) ([]transport.AliasResponse, error) {
	items, err := s.repo.ListAliases(ctx, merchantID, seriesID)
	if err != nil {
		return nil, err
	}
	out := make([]transport.AliasResponse, 0, len(items))
	for _, a := range items {
		out = append(out, transport.AliasResponse{
			SKU:            a.SKU,
			TierID:         a.TierID,
			SeriesID:       a.SeriesID,
			SequenceNumber: a.SequenceNumber,
			UpdatedAt:      a.UpdatedAt,
		})
	}
	return out, nil
}

func (s *Service) CountAliases(ctx context.Context, merchantID uuid.UUID) (int, error) {
	return s.repo.CountAliases(ctx, merchantID)
}

func (s *Service) UnknownSKUs(ctx context.Context, merchantID uuid.UUID, limit int) ([]transport.UnknownSKUResponse, error) {
	if limit <= 0 {
		limit = defaultUnknownLimit
	}
	items, err := s.repo.ListUnknownSKUs(ctx, merchantID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]transport.UnknownSKUResponse, 0, len(items))
	for _, u := range items {
		out = append(out, transport.UnknownSKUResponse{
			SKU:         u.SKU,
			ProductName: u.ProductName,
			Occurrences: u.Occurrences,
			FirstSeenAt: u.FirstSeenAt,
			LastSeenAt:  u.LastSeenAt,
		})
	}
	return out, nil
}

// RecordUnknownSKUs feeds the unknown SKU queue.
func (s *Service) RecordUnknownSKUs(ctx context.Context, merchantID uuid.UUID, sightings []repository.UnknownSighting) error {
	return s.repo.RecordUnknownSKUs(ctx, merchantID, sightings)
}

// LoadSnapshot returns the read model used by reconstruction.
func (s *Service) LoadSnapshot(ctx context.Context, merchantID uuid.UUID) (*snapshot.Snapshot, error) {
	return s.repo.LoadSnapshot(ctx, merchantID)
}

func (s *Service) tableChanged(ctx context.Context, merchantID uuid.UUID, reason string) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.Publish(ctx, events.AliasTableChanged{
		BaseEvent:  events.NewBaseEvent(),
		MerchantID: merchantID,
		Reason:     reason,
	})
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func mapSeries(s repository.Series) transport.SeriesResponse {
	return transport.SeriesResponse{
		ID:                s.ID,
		Name:              s.Name,
		Sequential:        s.Sequential,
		TotalInstallments: s.TotalInstallments,
		ExternalProductID: s.ExternalProductID,
		CreatedAt:         s.CreatedAt,
	}
}

func mapTier(t repository.Tier) transport.TierResponse {
	return transport.TierResponse{
		ID:             t.ID,
		SeriesID:       t.SeriesID,
		SequenceNumber: t.SequenceNumber,
		Label:          t.Label,
	}
}
