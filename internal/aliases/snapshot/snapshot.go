// Package snapshot is the read model of a merchant's alias table and product
// classifications, loaded once per migration run and shared read-only by every
// reconstruction in that run.
package snapshot

import (
	"github.com/SubscriberSync/portal-sub000/internal/catalog/domain"

	"github.com/google/uuid"
)

// Series is an installment series as seen by reconstruction.
type Series struct {
	ID         uuid.UUID
	Name       string
	Sequential bool
	// TotalInstallments is set for fixed-length series.
	TotalInstallments *int
	ExternalProductID string
}

// Target is where a SKU or variation lands: installment Sequence of SeriesID.
type Target struct {
	SeriesID uuid.UUID
	Sequence int
}

// Alias maps a raw SKU or product name to a target.
type Alias struct {
	Key    string
	Target Target
}

// VariationRule is the classifier's verdict for one product variation.
type VariationRule struct {
	ProductName    string
	VariantTitle   string
	SKU            string
	Classification domain.Classification
	// Assigned is the explicit per-variation sequence assignment, if any.
	Assigned *Target
}

// Outcome of resolving one line item.
type Outcome int

const (
	// Resolved means the item is a subscription installment with a known target.
	Resolved Outcome = iota
	// Excluded means the item is an addon or ignored product.
	Excluded
	// Unresolved means the item may count but no alias or assignment exists.
	Unresolved
)

// Snapshot is immutable after New and safe for concurrent use.
type Snapshot struct {
	merchantID uuid.UUID
	aliases    map[string]Target
	byKey      map[string]VariationRule
	bySKU      map[string]VariationRule
	series     map[uuid.UUID]Series
	aliasCount int
}

// New builds a snapshot. Keys are normalized here, so callers may pass raw values.
func New(merchantID uuid.UUID, series []Series, aliases []Alias, rules []VariationRule) *Snapshot {
	s := &Snapshot{
		merchantID: merchantID,
		aliases:    make(map[string]Target, len(aliases)),
		byKey:      make(map[string]VariationRule, len(rules)),
		bySKU:      make(map[string]VariationRule, len(rules)),
		series:     make(map[uuid.UUID]Series, len(series)),
	}
	for _, ser := range series {
		s.series[ser.ID] = ser
	}
	for _, a := range aliases {
		key := domain.Normalize(a.Key)
		if key == "" {
			continue
		}
		s.aliases[key] = a.Target
	}
	s.aliasCount = len(s.aliases)
	for _, r := range rules {
		s.byKey[domain.VariationKey(r.ProductName, r.VariantTitle)] = r
		if sku := domain.Normalize(r.SKU); sku != "" {
			s.bySKU[sku] = r
		}
	}
	return s
}

// MerchantID is the merchant the snapshot was loaded for.
func (s *Snapshot) MerchantID() uuid.UUID { return s.merchantID }

// AliasCount is the number of distinct alias keys.
func (s *Snapshot) AliasCount() int { return s.aliasCount }

// Series looks up a series by ID.
func (s *Snapshot) Series(id uuid.UUID) (Series, bool) {
	ser, ok := s.series[id]
	return ser, ok
}

// AllSeries returns every series in the snapshot.
func (s *Snapshot) AllSeries() []Series {
	out := make([]Series, 0, len(s.series))
	for _, ser := range s.series {
		out = append(out, ser)
	}
	return out
}

// SeriesForProduct finds the series bound to an external billing product.
// A merchant with a single series gets it for every product.
func (s *Snapshot) SeriesForProduct(externalProductID string) (Series, bool) {
	if externalProductID != "" {
		for _, ser := range s.series {
			if ser.ExternalProductID == externalProductID {
				return ser, true
			}
		}
	}
	if len(s.series) == 1 {
		for _, ser := range s.series {
			return ser, true
		}
	}
	return Series{}, false
}

// Classification returns the classifier's verdict for a line item, matching
// the variation first and falling back to its SKU.
func (s *Snapshot) Classification(sku, productName, variantTitle string) domain.Classification {
	if rule, ok := s.rule(sku, productName, variantTitle); ok {
		return rule.Classification
	}
	return domain.Unclassified
}

func (s *Snapshot) rule(sku, productName, variantTitle string) (VariationRule, bool) {
	if rule, ok := s.byKey[domain.VariationKey(productName, variantTitle)]; ok {
		return rule, true
	}
	if key := domain.Normalize(sku); key != "" {
		rule, ok := s.bySKU[key]
		return rule, ok
	}
	return VariationRule{}, false
}

// Resolve maps a line item to an installment. The normalized SKU alias wins,
// then an alias on the product name, then the variation's explicit assignment.
// Addon and ignored items are Excluded whatever aliases exist.
func (s *Snapshot) Resolve(sku, productName, variantTitle string) (Target, Outcome) {
	rule, hasRule := s.rule(sku, productName, variantTitle)
	if hasRule && rule.Classification.Excluded() {
		return Target{}, Excluded
	}

	if key := domain.Normalize(sku); key != "" {
		if t, ok := s.aliases[key]; ok {
			return t, Resolved
		}
	}
	if key := domain.Normalize(productName); key != "" {
		if t, ok := s.aliases[key]; ok {
			return t, Resolved
		}
	}
	if hasRule && rule.Assigned != nil {
		return *rule.Assigned, Resolved
	}
	return Target{}, Unresolved
}
