package service

import (
	"context"
	"strings"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/aliases/snapshot"
	"github.com/SubscriberSync/portal-sub000/internal/billing"
	"github.com/SubscriberSync/portal-sub000/internal/events"
	"github.com/SubscriberSync/portal-sub000/internal/prepaid"
	"github.com/SubscriberSync/portal-sub000/internal/subscribers/repository"
	"github.com/SubscriberSync/portal-sub000/internal/subscribers/transport"
	"github.com/SubscriberSync/portal-sub000/platform/apperr"
	"github.com/SubscriberSync/portal-sub000/platform/logger"

	"github.com/google/uuid"
)

// Store is the persistence the subscribers service needs.
type Store interface {
	UpsertSubscriber(ctx context.Context, s repository.Subscriber) (repository.Subscriber, error)
	GetSubscriber(ctx context.Context, merchantID, id uuid.UUID) (repository.Subscriber, error)
	ListSubscribers(ctx context.Context, params repository.ListParams) ([]repository.Subscriber, int, error)
	UpsertSubscription(ctx context.Context, s repository.Subscription) error
	LiveDelivered(ctx context.Context, merchantID uuid.UUID) (map[string]int, error)
	GetSubscriptionByExternalID(ctx context.Context, merchantID uuid.UUID, externalID string) (repository.Subscription, error)
	UpdateDelivery(ctx context.Context, s repository.Subscription) error
	ListSubscriptions(ctx context.Context, merchantID, subscriberID uuid.UUID) ([]repository.Subscription, error)
	SeedStates(ctx context.Context, seeds []repository.SeedState) error
	ListStates(ctx context.Context, merchantID, subscriberID uuid.UUID) ([]repository.SequenceState, error)
	ListHistory(ctx context.Context, merchantID, subscriberID uuid.UUID) ([]repository.HistoryEntry, error)
	CreateUpgrade(ctx context.Context, u repository.TierUpgrade) (repository.TierUpgrade, error)
	CommitManual(ctx context.Context, c repository.ManualCommit) (int, error)
}

// SeriesSource provides the alias snapshot used to bind subscriptions to series.
type SeriesSource interface {
	LoadSnapshot(ctx context.Context, merchantID uuid.UUID) (*snapshot.Snapshot, error)
}

// Service provides business logic for subscribers and their sequence states.
type Service struct {
	repo     Store
	billing  billing.Adapter
	series   SeriesSource
	eventBus events.Bus
	region   string
	log      *logger.Logger
	now      func() time.Time
}

// New creates a new subscribers service. adapter may be nil when no billing
// platform is configured; imports are then refused.
func New(repo Store, adapter billing.Adapter, series SeriesSource, eventBus events.Bus, phoneRegion string, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		billing:  adapter,
		series:   series,
		eventBus: eventBus,
		region:   phoneRegion,
		log:      log,
		now:      time.Now,
	}
}

// ListSubscribers retrieves subscribers with search and pagination.
func (s *Service) ListSubscribers(ctx context.Context, merchantID uuid.UUID, req transport.ListSubscribersRequest) (transport.SubscriberListResponse, error) {
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

	items, total, err := s.repo.ListSubscribers(ctx, repository.ListParams{
		MerchantID: merchantID,
		Search:     strings.TrimSpace(req.Search),
		Offset:     (page - 1) * pageSize,
		Limit:      pageSize,
	})
	if err != nil {
		return transport.SubscriberListResponse{}, err
	}

	resp := transport.SubscriberListResponse{
		Items:      make([]transport.SubscriberResponse, 0, len(items)),
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}
	for _, item := range items {
		resp.Items = append(resp.Items, toSubscriberResponse(item))
	}
	return resp, nil
}

// GetSubscriber returns a subscriber with subscriptions and sequence states.
func (s *Service) GetSubscriber(ctx context.Context, merchantID, id uuid.UUID) (transport.SubscriberDetailResponse, error) {
	sub, err := s.repo.GetSubscriber(ctx, merchantID, id)
	if err != nil {
		return transport.SubscriberDetailResponse{}, err
	}
	subs, err := s.repo.ListSubscriptions(ctx, merchantID, id)
	if err != nil {
		return transport.SubscriberDetailResponse{}, err
	}
	states, err := s.repo.ListStates(ctx, merchantID, id)
	if err != nil {
		return transport.SubscriberDetailResponse{}, err
	}

	resp := transport.SubscriberDetailResponse{
		SubscriberResponse: toSubscriberResponse(sub),
		Subscriptions:      make([]transport.SubscriptionResponse, 0, len(subs)),
		States:             make([]transport.SequenceStateResponse, 0, len(states)),
	}
	for _, item := range subs {
		resp.Subscriptions = append(resp.Subscriptions, toSubscriptionResponse(item))
	}
	for _, st := range states {
		resp.States = append(resp.States, transport.SequenceStateResponse{
			SeriesID:         st.SeriesID,
			Position:         st.Position,
			Status:           st.Status,
			IsPrepaid:        st.IsPrepaid,
			PrepaidTotal:     st.PrepaidTotal,
			PrepaidRemaining: st.PrepaidRemaining,
			LastWriter:       string(st.LastWriter),
			LastReconciledAt: st.LastReconciledAt,
		})
	}
	return resp, nil
}

// History lists position changes of a subscriber.
func (s *Service) History(ctx context.Context, merchantID, subscriberID uuid.UUID) ([]transport.HistoryEntryResponse, error) {
	if _, err := s.repo.GetSubscriber(ctx, merchantID, subscriberID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListHistory(ctx, merchantID, subscriberID)
	if err != nil {
		return nil, err
	}
	out := make([]transport.HistoryEntryResponse, 0, len(items))
	for _, h := range items {
		out = append(out, transport.HistoryEntryResponse{
			SeriesID:     h.SeriesID,
			FromPosition: h.FromPosition,
			ToPosition:   h.ToPosition,
			Writer:       string(h.Writer),
			ActorID:      h.ActorID,
			Reason:       h.Reason,
			AuditEntryID: h.AuditEntryID,
			CreatedAt:    h.CreatedAt,
		})
	}
	return out, nil
}

// RecordCharge applies a live charge event. Live counts replace the import
// estimate from here on.
func (s *Service) RecordCharge(ctx context.Context, merchantID uuid.UUID, req transport.RecordChargeRequest) (transport.SubscriptionResponse, error) {
	sub, err := s.repo.GetSubscriptionByExternalID(ctx, merchantID, strings.TrimSpace(req.SubscriptionExternalID))
	if err != nil {
		return transport.SubscriptionResponse{}, err
	}

	delivered := sub.DeliveredCount + 1
	if req.DeliveredCount != nil {
		delivered = *req.DeliveredCount
	}
	applyLiveDelivery(&sub, delivered)

	if err := s.repo.UpdateDelivery(ctx, sub); err != nil {
		return transport.SubscriptionResponse{}, err
	}
	s.log.Info("live charge recorded", "merchantId", merchantID, "subscription", sub.ExternalID, "delivered", delivered)
	return toSubscriptionResponse(sub), nil
}

// applyLiveDelivery sets a live delivered count and re-derives remaining and status.
func applyLiveDelivery(sub *repository.Subscription, delivered int) {
	sub.DeliveredCount = delivered
	sub.DeliveredSource = repository.DeliveredLive
	if sub.IsPrepaid && sub.PrepaidTotal != nil {
		source := prepaid.SourceProperty
		if sub.PrepaidTotalSource != nil {
			source = prepaid.TotalSource(*sub.PrepaidTotalSource)
		}
		remaining := prepaid.Remaining(prepaid.Total{Count: *sub.PrepaidTotal, Source: source}, delivered)
		sub.PrepaidRemaining = &remaining
	}
	sub.Status = string(prepaid.EffectiveStatus(billing.ParseStatus(sub.BillingStatus), sub.PrepaidRemaining))
}

// RecordUpgrade stores a subscriber-initiated tier change, which explains a
// tier change in later reconstructions.
func (s *Service) RecordUpgrade(ctx context.Context, merchantID, subscriberID uuid.UUID, req transport.RecordUpgradeRequest) (transport.TierUpgradeResponse, error) {
	if _, err := s.repo.GetSubscriber(ctx, merchantID, subscriberID); err != nil {
		return transport.TierUpgradeResponse{}, err
	}
	u, err := s.repo.CreateUpgrade(ctx, repository.TierUpgrade{
		ID:           uuid.New(),
		MerchantID:   merchantID,
		SubscriberID: subscriberID,
		FromTier:     strings.TrimSpace(req.FromTier),
		ToTier:       strings.TrimSpace(req.ToTier),
		EffectiveAt:  req.EffectiveAt.UTC(),
	})
	if err != nil {
		return transport.TierUpgradeResponse{}, err
	}
	return transport.TierUpgradeResponse{ID: u.ID, FromTier: u.FromTier, ToTier: u.ToTier, EffectiveAt: u.EffectiveAt}, nil
}

// ManualOverride sets a subscriber's position by hand. Manual writes always
// win and may move the position backwards.
func (s *Service) ManualOverride(ctx context.Context, merchantID, actorID, subscriberID, seriesID uuid.UUID, req transport.ManualOverrideRequest) (transport.SequenceStateResponse, error) {
	if req.Position == nil || *req.Position < 0 {
		return transport.SequenceStateResponse{}, apperr.Validation("position must be zero or greater")
	}
	if _, err := s.repo.GetSubscriber(ctx, merchantID, subscriberID); err != nil {
		return transport.SequenceStateResponse{}, err
	}
	snap, err := s.series.LoadSnapshot(ctx, merchantID)
	if err != nil {
		return transport.SequenceStateResponse{}, err
	}
	if _, ok := snap.Series(seriesID); !ok {
		return transport.SequenceStateResponse{}, apperr.NotFound("series not found")
	}

	from, err := s.repo.CommitManual(ctx, repository.ManualCommit{
		MerchantID:   merchantID,
		SubscriberID: subscriberID,
		SeriesID:     seriesID,
		Position:     *req.Position,
		ActorID:      actorID,
		Reason:       req.Reason,
	})
	if err != nil {
		return transport.SequenceStateResponse{}, err
	}

	s.log.Info("sequence position overridden", "merchantId", merchantID, "subscriberId", subscriberID,
		"seriesId", seriesID, "from", from, "to", *req.Position, "actorId", actorID)
	if s.eventBus != nil {
		actor := actorID
		s.eventBus.Publish(ctx, events.SequencePositionChanged{
			BaseEvent:    events.NewBaseEvent(),
			MerchantID:   merchantID,
			SubscriberID: subscriberID,
			SeriesID:     seriesID,
			From:         from,
			To:           *req.Position,
			Writer:       string(repository.WriterManual),
			ActorID:      &actor,
		})
	}
	return transport.SequenceStateResponse{SeriesID: seriesID, Position: *req.Position, LastWriter: string(repository.WriterManual)}, nil
}

func toSubscriberResponse(s repository.Subscriber) transport.SubscriberResponse {
	return transport.SubscriberResponse{
		ID:                 s.ID,
		ExternalCustomerID: s.ExternalCustomerID,
		CommerceCustomerID: s.CommerceCustomerID,
		Email:              s.Email,
		FirstName:          s.FirstName,
		LastName:           s.LastName,
		Phone:              s.Phone,
		CreatedAt:          s.CreatedAt,
	}
}

func toSubscriptionResponse(s repository.Subscription) transport.SubscriptionResponse {
	return transport.SubscriptionResponse{
		ID:                 s.ID,
		ExternalID:         s.ExternalID,
		ExternalProductID:  s.ExternalProductID,
		ProductTitle:       s.ProductTitle,
		BillingStatus:      s.BillingStatus,
		Status:             s.Status,
		Price:              s.Price.StringFixed(2),
		IsPrepaid:          s.IsPrepaid,
		PrepaidTotal:       s.PrepaidTotal,
		PrepaidTotalSource: s.PrepaidTotalSource,
		DeliveredCount:     s.DeliveredCount,
		DeliveredSource:    string(s.DeliveredSource),
		PrepaidRemaining:   s.PrepaidRemaining,
		StartedAt:          s.StartedAt,
		CancelledAt:        s.CancelledAt,
		NextChargeAt:       s.NextChargeAt,
	}
}
