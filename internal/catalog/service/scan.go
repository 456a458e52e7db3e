package service

import (
	"context"
	"fmt"
	"strings"

	aliasrepo "github.com/SubscriberSync/portal-sub000/internal/aliases/repository"
	"github.com/SubscriberSync/portal-sub000/internal/aliases/snapshot"
	"github.com/SubscriberSync/portal-sub000/internal/catalog/domain"
	"github.com/SubscriberSync/portal-sub000/internal/catalog/repository"
	"github.com/SubscriberSync/portal-sub000/internal/catalog/transport"
	"github.com/SubscriberSync/portal-sub000/internal/orders"
	"github.com/SubscriberSync/portal-sub000/platform/apperr"
	"github.com/SubscriberSync/portal-sub000/platform/logger"

	"github.com/google/uuid"
)

const sightingChunk = 500

// CustomerSource lists the commerce customer IDs of a merchant's subscribers.
type CustomerSource interface {
	ListCommerceCustomerIDs(ctx context.Context, merchantID uuid.UUID) ([]string, error)
}

// AliasIndex is the slice of the alias table a scan needs.
type AliasIndex interface {
	LoadSnapshot(ctx context.Context, merchantID uuid.UUID) (*snapshot.Snapshot, error)
	RecordUnknownSKUs(ctx context.Context, merchantID uuid.UUID, sightings []aliasrepo.UnknownSighting) error
}

// Scanner walks every subscriber's order history, records variation sightings
// and feeds unresolved SKUs to the unknown SKU queue.
type Scanner struct {
	catalog   *Service
	customers CustomerSource
	orders    orders.Provider
	aliases   AliasIndex
	log       *logger.Logger
}

func NewScanner(catalog *Service, customers CustomerSource, provider orders.Provider, aliases AliasIndex, log *logger.Logger) *Scanner {
	return &Scanner{catalog: catalog, customers: customers, orders: provider, aliases: aliases, log: log}
}

// Scan runs one catalog scan. A customer whose history cannot be fetched is
// counted and skipped.
func (s *Scanner) Scan(ctx context.Context, merchantID uuid.UUID) (transport.ScanResponse, error) {
	log := s.log.WithMerchant(merchantID.String())
	if s.orders == nil {
		return transport.ScanResponse{}, apperr.Precondition("order history provider is not configured")
	}

	snap, err := s.aliases.LoadSnapshot(ctx, merchantID)
	if err != nil {
		return transport.ScanResponse{}, fmt.Errorf("load alias snapshot: %w", err)
	}
	customerIDs, err := s.customers.ListCommerceCustomerIDs(ctx, merchantID)
	if err != nil {
		return transport.ScanResponse{}, fmt.Errorf("list customers: %w", err)
	}

	agg := newSightingAggregator(snap)
	resp := transport.ScanResponse{Customers: len(customerIDs)}
	for _, customerID := range customerIDs {
		history, err := s.orders.ListOrders(ctx, customerID, orders.DateRange{})
		if err != nil {
			if ctx.Err() != nil {
				return resp, ctx.Err()
			}
			resp.FailedCustomers++
			log.Warn("catalog scan skipped customer", "customerId", customerID, "error", err)
			continue
		}
		for _, o := range history {
			agg.add(o)
		}
		resp.Orders += len(history)
	}

	sightings := agg.sightings()
	resp.Variations = len(sightings)
	for start := 0; start < len(sightings); start += sightingChunk {
		end := min(start+sightingChunk, len(sightings))
		created, err := s.catalog.RecordSightings(ctx, merchantID, sightings[start:end])
		if err != nil {
			return resp, err
		}
		resp.NewVariations += created
	}

	unknown := agg.unknown
	resp.UnknownSKUs = len(unknown)
	if len(unknown) > 0 {
		if err := s.aliases.RecordUnknownSKUs(ctx, merchantID, unknown); err != nil {
			return resp, err
		}
	}

	log.Info("catalog scan finished",
		"customers", resp.Customers, "orders", resp.Orders, "variations", resp.Variations,
		"newVariations", resp.NewVariations, "unknownSkus", resp.UnknownSKUs, "failedCustomers", resp.FailedCustomers)
	return resp, nil
}

type sightingAggregator struct {
	snap    *snapshot.Snapshot
	byKey   map[string]*repository.Sighting
	keys    []string
	unknown []aliasrepo.UnknownSighting
}

func newSightingAggregator(snap *snapshot.Snapshot) *sightingAggregator {
	return &sightingAggregator{snap: snap, byKey: map[string]*repository.Sighting{}}
}

// add counts each variation once per order. Voided orders never shipped and are skipped.
func (a *sightingAggregator) add(o orders.Order) {
	if o.Voided() {
		return
	}
	inOrder := map[string]bool{}
	for _, li := range o.LineItems {
		if strings.TrimSpace(li.ProductName) == "" {
			continue
		}
		key := domain.VariationKey(li.ProductName, li.VariantTitle)
		if !inOrder[key] {
			inOrder[key] = true
			a.observe(key, li, o)
		}
		if _, outcome := a.snap.Resolve(li.SKU, li.ProductName, li.VariantTitle); outcome == snapshot.Unresolved && strings.TrimSpace(li.SKU) != "" {
			a.unknown = append(a.unknown, aliasrepo.UnknownSighting{SKU: li.SKU, ProductName: li.ProductName, SeenAt: o.CreatedAt})
		}
	}
}

func (a *sightingAggregator) observe(key string, li orders.LineItem, o orders.Order) {
	s, ok := a.byKey[key]
	if !ok {
		s = &repository.Sighting{
			ProductName:  li.ProductName,
			VariantTitle: li.VariantTitle,
			FirstSeenAt:  o.CreatedAt,
			LastSeenAt:   o.CreatedAt,
		}
		a.byKey[key] = s
		a.keys = append(a.keys, key)
	}
	s.Orders++
	if s.SKU == "" {
		s.SKU = strings.TrimSpace(li.SKU)
	}
	if o.CreatedAt.Before(s.FirstSeenAt) {
		s.FirstSeenAt = o.CreatedAt
	}
	if o.CreatedAt.After(s.LastSeenAt) {
		s.LastSeenAt = o.CreatedAt
	}
}

func (a *sightingAggregator) sightings() []repository.Sighting {
	out := make([]repository.Sighting, 0, len(a.keys))
	for _, k := range a.keys {
		out = append(out, *a.byKey[k])
	}
	return out
}
