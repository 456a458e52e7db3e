package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/aliases/snapshot"
	"github.com/SubscriberSync/portal-sub000/internal/billing"
	"github.com/SubscriberSync/portal-sub000/internal/events"
	"github.com/SubscriberSync/portal-sub000/internal/prepaid"
	"github.com/SubscriberSync/portal-sub000/internal/subscribers/repository"
	"github.com/SubscriberSync/portal-sub000/internal/subscribers/transport"
	"github.com/SubscriberSync/portal-sub000/platform/apperr"
	"github.com/SubscriberSync/portal-sub000/platform/phone"

	"github.com/google/uuid"
)

// Import pages every customer and subscription from the billing platform and
// stores them enriched with prepaid facts. Delivered counts are estimated,
// except where live charge events already reported one.
func (s *Service) Import(ctx context.Context, merchantID uuid.UUID) (transport.ImportResponse, error) {
	if s.billing == nil {
		return transport.ImportResponse{}, apperr.Precondition("billing platform is not configured")
	}
	log := s.log.WithMerchant(merchantID.String())
	now := s.now().UTC()

	snap, err := s.series.LoadSnapshot(ctx, merchantID)
	if err != nil {
		return transport.ImportResponse{}, fmt.Errorf("load alias snapshot: %w", err)
	}

	var resp transport.ImportResponse
	subscriberIDs := map[string]uuid.UUID{}
	err = billing.WalkCustomers(ctx, s.billing, func(customers []billing.Customer) error {
		for _, c := range customers {
			stored, err := s.repo.UpsertSubscriber(ctx, s.toSubscriber(merchantID, c))
			if err != nil {
				return err
			}
			subscriberIDs[c.ID] = stored.ID
			resp.Customers++
		}
		return nil
	})
	if err != nil {
		return resp, fmt.Errorf("import customers: %w", err)
	}

	live, err := s.repo.LiveDelivered(ctx, merchantID)
	if err != nil {
		return resp, err
	}

	err = billing.WalkSubscriptions(ctx, s.billing, "", func(subs []billing.Subscription) error {
		var seeds []repository.SeedState
		for _, sub := range subs {
			subscriberID, ok := subscriberIDs[sub.CustomerID]
			if !ok {
				resp.Skipped++
				continue
			}

			var liveCount *int
			if n, ok := live[sub.ID]; ok {
				liveCount = &n
			}
			row := Enrich(merchantID, subscriberID, sub, liveCount, now)
			if err := s.repo.UpsertSubscription(ctx, row); err != nil {
				return err
			}
			resp.Subscriptions++

			if series, ok := snap.SeriesForProduct(sub.ExternalProductID); ok {
				seeds = append(seeds, seedFor(row, series))
			}
		}
		if err := s.repo.SeedStates(ctx, seeds); err != nil {
			return err
		}
		resp.States += len(seeds)
		return nil
	})
	if err != nil {
		return resp, fmt.Errorf("import subscriptions: %w", err)
	}

	log.Info("subscriber import finished", "customers", resp.Customers, "subscriptions", resp.Subscriptions,
		"skipped", resp.Skipped, "sequenceStates", resp.States)
	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.SubscribersImported{
			BaseEvent:     events.NewBaseEvent(),
			MerchantID:    merchantID,
			Customers:     resp.Customers,
			Subscriptions: resp.Subscriptions,
			Skipped:       resp.Skipped,
		})
	}
	return resp, nil
}

func (s *Service) toSubscriber(merchantID uuid.UUID, c billing.Customer) repository.Subscriber {
	sub := repository.Subscriber{
		ID:                 uuid.New(),
		MerchantID:         merchantID,
		ExternalCustomerID: c.ID,
		CommerceCustomerID: strings.TrimSpace(c.CommerceCustomerID),
		Email:              strings.ToLower(strings.TrimSpace(c.Email)),
		FirstName:          strings.TrimSpace(c.FirstName),
		LastName:           strings.TrimSpace(c.LastName),
	}
	if p := phone.NormalizeE164(c.Phone, s.region); p != "" {
		sub.Phone = &p
	}
	return sub
}

// Enrich turns a billing subscription into a stored row with prepaid facts.
// liveDelivered, when set, replaces the estimate.
func Enrich(merchantID, subscriberID uuid.UUID, sub billing.Subscription, liveDelivered *int, now time.Time) repository.Subscription {
	row := repository.Subscription{
		ID:                 uuid.New(),
		MerchantID:         merchantID,
		SubscriberID:       subscriberID,
		ExternalID:         sub.ID,
		ExternalProductID:  sub.ExternalProductID,
		ProductTitle:       sub.ProductTitle,
		SKU:                sub.SKU,
		BillingStatus:      string(sub.Status),
		ChargeUnit:         string(sub.ChargeInterval.Unit),
		ChargeFrequency:    sub.ChargeInterval.Frequency,
		OrderUnit:          string(sub.OrderInterval.Unit),
		OrderFrequency:     sub.OrderInterval.Frequency,
		Price:              sub.Price,
		StartedAt:          sub.CreatedAt,
		CancelledAt:        sub.CancelledAt,
		CancellationReason: sub.CancellationReason,
		NextChargeAt:       sub.NextChargeAt,
		DeliveredCount:     prepaid.EstimateDelivered(sub, now),
		DeliveredSource:    repository.DeliveredEstimate,
	}
	if liveDelivered != nil {
		row.DeliveredCount = *liveDelivered
		row.DeliveredSource = repository.DeliveredLive
	}

	if prepaid.IsPrepaid(sub) {
		total := prepaid.PrepaidTotal(sub)
		remaining := prepaid.Remaining(total, row.DeliveredCount)
		source := string(total.Source)
		row.IsPrepaid = true
		row.PrepaidTotal = &total.Count
		row.PrepaidTotalSource = &source
		row.PrepaidRemaining = &remaining
	}
	row.Status = string(prepaid.EffectiveStatus(sub.Status, row.PrepaidRemaining))
	return row
}

func seedFor(row repository.Subscription, series snapshot.Series) repository.SeedState {
	return repository.SeedState{
		MerchantID:       row.MerchantID,
		SubscriberID:     row.SubscriberID,
		SeriesID:         series.ID,
		Status:           row.Status,
		IsPrepaid:        row.IsPrepaid,
		PrepaidTotal:     row.PrepaidTotal,
		PrepaidRemaining: row.PrepaidRemaining,
	}
}
