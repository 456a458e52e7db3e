package suggest

import (
	"context"
	"fmt"
	"strings"

	"github.com/SubscriberSync/portal-sub000/internal/catalog/domain"
)

const heuristicSource = "heuristic"

type keywordRule struct {
	classification domain.Classification
	confidence     float64
	keywords       []string
}

// Rules are checked in order; the first hit wins.
var defaultRules = []keywordRule{
	{domain.Ignored, 0.9, []string{"gift card", "giftcard", "shipping protection", "route package", "tip", "donation", "test product"}},
	{domain.Addon, 0.75, []string{"add-on", "addon", "add on", "upgrade", "extra", "sticker", "pin", "bookmark", "tote", "mug", "candle", "bundle"}},
	{domain.Subscription, 0.7, []string{"subscription", "box", "episode", "chapter", "issue", "installment", "volume", "month", "quarterly", "club"}},
}

// Heuristic classifies by keywords in the product name, variant title and SKU.
type Heuristic struct {
	rules []keywordRule
}

// NewHeuristic returns the keyword suggester with the built-in rules.
func NewHeuristic() *Heuristic {
	return &Heuristic{rules: defaultRules}
}

func (h *Heuristic) Name() string { return heuristicSource }

func (h *Heuristic) Suggest(ctx context.Context, candidates []Candidate) ([]Verdict, error) {
	out := make([]Verdict, 0, len(candidates))
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		words := tokens(c.ProductName + " " + c.VariantTitle + " " + c.SKU)
		if v, ok := h.match(c, words); ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (h *Heuristic) match(c Candidate, words string) (Verdict, bool) {
	for _, rule := range h.rules {
		for _, kw := range rule.keywords {
			if strings.Contains(words, " "+kw+" ") {
				return Verdict{
					VariationID:    c.VariationID,
					Classification: rule.classification,
					Confidence:     rule.confidence,
					Rationale:      fmt.Sprintf("matched keyword %q", kw),
					Source:         heuristicSource,
				}, true
			}
		}
	}
	return Verdict{}, false
}

// tokens normalizes s to space-separated words padded on both ends, so
// keyword matching happens on word boundaries.
func tokens(s string) string {
	norm := domain.Normalize(s)
	norm = strings.Map(func(r rune) rune {
		switch r {
		case '/', '|', ',', '(', ')', '[', ']', ':', '_', '#':
			return ' '
		}
		return r
	}, norm)
	return " " + strings.Join(strings.Fields(norm), " ") + " "
}
