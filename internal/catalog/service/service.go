package service

import (
	"context"
	"strings"

	"github.com/SubscriberSync/portal-sub000/internal/catalog/domain"
	"github.com/SubscriberSync/portal-sub000/internal/catalog/repository"
	"github.com/SubscriberSync/portal-sub000/internal/catalog/suggest"
	"github.com/SubscriberSync/portal-sub000/internal/catalog/transport"
	"github.com/SubscriberSync/portal-sub000/internal/events"
	"github.com/SubscriberSync/portal-sub000/platform/apperr"
	"github.com/SubscriberSync/portal-sub000/platform/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultSuggestionBatch = 100
	unclassifiedFilter     = "unclassified"
)

// Service provides business logic for product classification.
type Service struct {
	repo      repository.Repository
	suggester suggest.Suggester
	eventBus  events.Bus
	log       *logger.Logger
}

// New creates a new catalog service. suggester may be nil, in which case
// classification is manual only.
func New(repo repository.Repository, suggester suggest.Suggester, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, suggester: suggester, eventBus: eventBus, log: log}
}

// GetVariation retrieves a variation by ID.
func (s *Service) GetVariation(ctx context.Context, merchantID, id uuid.UUID) (transport.VariationResponse, error) {
	v, err := s.repo.GetVariation(ctx, merchantID, id)
	if err != nil {
		return transport.VariationResponse{}, err
	}
	return toVariationResponse(v), nil
}

// ListVariations retrieves variations with filters and pagination.
func (s *Service) ListVariations(ctx context.Context, merchantID uuid.UUID, req transport.ListVariationsRequest) (transport.VariationListResponse, error) {
	page := req.Page
	pageSize := req.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	params := repository.ListVariationsParams{
		MerchantID: merchantID,
		Search:     strings.TrimSpace(req.Search),
		Offset:     (page - 1) * pageSize,
		Limit:      pageSize,
	}
	if req.Classification != "" {
		c := domain.Unclassified
		if req.Classification != unclassifiedFilter {
			parsed, ok := domain.ParseClassification(req.Classification)
			if !ok {
				return transport.VariationListResponse{}, apperr.Validation("unknown classification")
			}
			c = parsed
		}
		params.Classification = &c
	}

	items, total, err := s.repo.ListVariations(ctx, params)
	if err != nil {
		return transport.VariationListResponse{}, err
	}

	resp := transport.VariationListResponse{
		Items:    make([]transport.VariationResponse, 0, len(items)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for _, v := range items {
		resp.Items = append(resp.Items, toVariationResponse(v))
	}
	resp.TotalPages = (total + pageSize - 1) / pageSize
	return resp, nil
}

// Classify sets the classification of one variation.
func (s *Service) Classify(ctx context.Context, merchantID, id uuid.UUID, req transport.ClassifyRequest) (transport.VariationResponse, error) {
	if _, err := s.BulkClassify(ctx, merchantID, transport.BulkClassifyRequest{
		VariationIDs:   []uuid.UUID{id},
		Classification: req.Classification,
	}); err != nil {
		return transport.VariationResponse{}, err
	}
	return s.GetVariation(ctx, merchantID, id)
}

// BulkClassify applies one classification to a set of variations. Reapplying
// the same classification changes nothing.
func (s *Service) BulkClassify(ctx context.Context, merchantID uuid.UUID, req transport.BulkClassifyRequest) (transport.BulkClassifyResponse, error) {
	c, ok := domain.ParseClassification(req.Classification)
	if !ok {
		return transport.BulkClassifyResponse{}, apperr.Validation("unknown classification")
	}

	ids := dedupeIDs(req.VariationIDs)
	res, err := s.repo.SetClassification(ctx, merchantID, ids, c)
	if err != nil {
		return transport.BulkClassifyResponse{}, err
	}
	if res.Matched != len(ids) {
		return transport.BulkClassifyResponse{}, apperr.NotFound("one or more product variations not found").
			WithDetails(map[string]int{"requested": len(ids), "matched": res.Matched})
	}

	if res.Changed > 0 {
		s.log.Info("variations classified", "merchantId", merchantID, "classification", c, "changed", res.Changed)
		s.classificationChanged(ctx, merchantID)
	}
	return transport.BulkClassifyResponse{Matched: res.Matched, Changed: res.Changed}, nil
}

// AssignTier sets or clears the explicit sequence assignment of a variation.
func (s *Service) AssignTier(ctx context.Context, merchantID, id uuid.UUID, req transport.AssignTierRequest) (transport.VariationResponse, error) {
	v, err := s.repo.AssignTier(ctx, merchantID, id, req.TierID)
	if err != nil {
		return transport.VariationResponse{}, err
	}
	s.classificationChanged(ctx, merchantID)
	return toVariationResponse(v), nil
}

// Summary counts variations per classification.
func (s *Service) Summary(ctx context.Context, merchantID uuid.UUID) (transport.ClassificationSummaryResponse, error) {
	counts, err := s.repo.ClassificationCounts(ctx, merchantID)
	if err != nil {
		return transport.ClassificationSummaryResponse{}, err
	}
	return transport.ClassificationSummaryResponse{
		Subscription: counts[domain.Subscription],
		Addon:        counts[domain.Addon],
		Ignored:      counts[domain.Ignored],
		Unclassified: counts[domain.Unclassified],
	}, nil
}

// RecordSightings upserts observed variations and returns how many are new.
func (s *Service) RecordSightings(ctx context.Context, merchantID uuid.UUID, sightings []repository.Sighting) (int, error) {
	return s.repo.RecordSightings(ctx, merchantID, sightings)
}

// RunSuggestions asks the configured strategy about unclassified variations
// and queues what it proposes. Nothing is classified here.
func (s *Service) RunSuggestions(ctx context.Context, merchantID uuid.UUID, req transport.RunSuggestionsRequest) (transport.RunSuggestionsResponse, error) {
	if s.suggester == nil {
		return transport.RunSuggestionsResponse{}, apperr.Precondition("no suggestion strategy is configured")
	}

	limit := req.Limit
	if limit < 1 {
		limit = defaultSuggestionBatch
	}

	variations, err := s.repo.ListUnclassified(ctx, merchantID, limit)
	if err != nil {
		return transport.RunSuggestionsResponse{}, err
	}
	resp := transport.RunSuggestionsResponse{Candidates: len(variations), Strategy: s.suggester.Name()}
	if len(variations) == 0 {
		return resp, nil
	}

	candidates := make([]suggest.Candidate, 0, len(variations))
	for _, v := range variations {
		candidates = append(candidates, suggest.Candidate{
			VariationID:  v.ID,
			ProductName:  v.ProductName,
			VariantTitle: v.VariantTitle,
			SKU:          v.SKU,
			OrderCount:   v.OrderCount,
		})
	}

	verdicts, err := s.suggester.Suggest(ctx, candidates)
	if err != nil && len(verdicts) == 0 {
		return transport.RunSuggestionsResponse{}, err
	}
	if err != nil {
		s.log.Warn("suggestion pass partially failed", "merchantId", merchantID, "error", err)
	}

	rows := make([]repository.Suggestion, 0, len(verdicts))
	for _, v := range verdicts {
		if v.Classification == domain.Unclassified {
			continue
		}
		rows = append(rows, repository.Suggestion{
			MerchantID:     merchantID,
			VariationID:    v.VariationID,
			Classification: v.Classification,
			Confidence:     decimal.NewFromFloat(v.Confidence),
			Rationale:      v.Rationale,
			Source:         v.Source,
		})
	}

	queued, err := s.repo.CreateSuggestions(ctx, rows)
	if err != nil {
		return transport.RunSuggestionsResponse{}, err
	}
	resp.Queued = queued

	s.log.Info("suggestion pass finished", "merchantId", merchantID, "strategy", resp.Strategy, "candidates", resp.Candidates, "queued", queued)
	if queued > 0 && s.eventBus != nil {
		s.eventBus.Publish(ctx, events.SuggestionsCreated{
			BaseEvent:  events.NewBaseEvent(),
			MerchantID: merchantID,
			Count:      queued,
			Source:     resp.Strategy,
		})
	}
	return resp, nil
}

// ListSuggestions returns the review queue, pending by default.
func (s *Service) ListSuggestions(ctx context.Context, merchantID uuid.UUID, req transport.ListSuggestionsRequest) ([]transport.SuggestionResponse, error) {
	params := repository.ListSuggestionsParams{
		MerchantID: merchantID,
		Status:     repository.SuggestionPending,
		Limit:      req.Limit,
	}
	if req.Status != "" {
		params.Status = repository.SuggestionStatus(req.Status)
	}
	if params.Limit < 1 {
		params.Limit = defaultSuggestionBatch
	}
	if req.Classification != "" {
		c, ok := domain.ParseClassification(req.Classification)
		if !ok {
			return nil, apperr.Validation("unknown classification")
		}
		params.Classification = &c
	}

	items, err := s.repo.ListSuggestions(ctx, params)
	if err != nil {
		return nil, err
	}
	out := make([]transport.SuggestionResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toSuggestionResponse(item))
	}
	return out, nil
}

// ConfirmSuggestions writes the classification of pending suggestions of one
// category, as decided by actor.
func (s *Service) ConfirmSuggestions(ctx context.Context, merchantID, actor uuid.UUID, req transport.ConfirmSuggestionsRequest) (transport.DecisionResponse, error) {
	c, ok := domain.ParseClassification(req.Classification)
	if !ok {
		return transport.DecisionResponse{}, apperr.Validation("unknown classification")
	}

	n, err := s.repo.ConfirmSuggestions(ctx, merchantID, c, dedupeIDs(req.SuggestionIDs), actor)
	if err != nil {
		return transport.DecisionResponse{}, err
	}
	if n > 0 {
		s.log.Info("suggestions confirmed", "merchantId", merchantID, "classification", c, "count", n, "actorId", actor)
		s.classificationChanged(ctx, merchantID)
	}
	return transport.DecisionResponse{Count: n}, nil
}

// RejectSuggestions drops pending suggestions from the queue.
func (s *Service) RejectSuggestions(ctx context.Context, merchantID, actor uuid.UUID, req transport.RejectSuggestionsRequest) (transport.DecisionResponse, error) {
	n, err := s.repo.RejectSuggestions(ctx, merchantID, dedupeIDs(req.SuggestionIDs), actor)
	if err != nil {
		return transport.DecisionResponse{}, err
	}
	return transport.DecisionResponse{Count: n}, nil
}

func (s *Service) classificationChanged(ctx context.Context, merchantID uuid.UUID) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.Publish(ctx, events.AliasTableChanged{
		BaseEvent:  events.NewBaseEvent(),
		MerchantID: merchantID,
		Reason:     "classification changed",
	})
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func toVariationResponse(v repository.Variation) transport.VariationResponse {
	classification := string(v.Classification)
	if v.Classification == domain.Unclassified {
		classification = unclassifiedFilter
	}
	return transport.VariationResponse{
		ID:             v.ID,
		ProductName:    v.ProductName,
		VariantTitle:   v.VariantTitle,
		SKU:            v.SKU,
		Classification: classification,
		TierID:         v.TierID,
		OrderCount:     v.OrderCount,
		FirstSeenAt:    v.FirstSeenAt,
		LastSeenAt:     v.LastSeenAt,
		UpdatedAt:      v.UpdatedAt,
	}
}

func toSuggestionResponse(s repository.Suggestion) transport.SuggestionResponse {
	return transport.SuggestionResponse{
		ID:             s.ID,
		VariationID:    s.VariationID,
		ProductName:    s.ProductName,
		VariantTitle:   s.VariantTitle,
		SKU:            s.SKU,
		Classification: string(s.Classification),
		Confidence:     s.Confidence.StringFixed(3),
		Rationale:      s.Rationale,
		Source:         s.Source,
		Status:         string(s.Status),
		DecidedBy:      s.DecidedBy,
		DecidedAt:      s.DecidedAt,
		CreatedAt:      s.CreatedAt,
	}
}
