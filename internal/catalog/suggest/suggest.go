// Package suggest proposes classifications for product variations. Suggestions
// only ever land in a review queue; nothing here writes a classification.
package suggest

import (
	"context"
	"errors"

	"github.com/SubscriberSync/portal-sub000/internal/catalog/domain"

	"github.com/google/uuid"
)

// Candidate is an unclassified variation offered to a suggester.
type Candidate struct {
	VariationID  uuid.UUID
	ProductName  string
	VariantTitle string
	SKU          string
	OrderCount   int
}

// Verdict is one proposed classification.
type Verdict struct {
	VariationID    uuid.UUID
	Classification domain.Classification
	// Confidence is in [0, 1].
	Confidence float64
	Rationale  string
	Source     string
}

// Suggester is a swappable classification strategy. It may return verdicts
// for a subset of the candidates.
type Suggester interface {
	Name() string
	Suggest(ctx context.Context, candidates []Candidate) ([]Verdict, error)
}

// ErrUnavailable is returned by strategies that are not configured.
var ErrUnavailable = errors.New("suggester unavailable")

// Fallback runs primary and lets secondary cover whatever primary left out
// or failed on.
type Fallback struct {
	Primary   Suggester
	Secondary Suggester
}

func (f Fallback) Name() string {
	return f.Primary.Name() + "+" + f.Secondary.Name()
}

func (f Fallback) Suggest(ctx context.Context, candidates []Candidate) ([]Verdict, error) {
	verdicts, err := f.Primary.Suggest(ctx, candidates)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		verdicts = nil
	}

	covered := make(map[uuid.UUID]bool, len(verdicts))
	for _, v := range verdicts {
		covered[v.VariationID] = true
	}
	var rest []Candidate
	for _, c := range candidates {
		if !covered[c.VariationID] {
			rest = append(rest, c)
		}
	}
	if len(rest) == 0 {
		return verdicts, nil
	}

	more, serr := f.Secondary.Suggest(ctx, rest)
	if serr != nil {
		return verdicts, errors.Join(err, serr)
	}
	return append(verdicts, more...), nil
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
