package suggest

import (
	"context"
	"errors"
	"testing"

	"github.com/SubscriberSync/portal-sub000/internal/catalog/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicSuggest(t *testing.T) {
	tests := []struct {
		name    string
		product string
		variant string
		want    domain.Classification
		hit     bool
	}{
		{"gift card ignored", "Digital Gift Card", "$25", domain.Ignored, true},
		{"shipping protection ignored", "Shipping Protection by Route", "", domain.Ignored, true},
		{"enamel pin addon", "Enamel Pin", "Default Title", domain.Addon, true},
		{"monthly box subscription", "Mystery Book Box", "Month 3", domain.Subscription, true},
		{"episode subscription", "Season One: Episode 4", "", domain.Subscription, true},
		{"word boundary", "Pinecone Candle Holder Set", "", domain.Addon, true},
		{"no keyword", "Mystery Item", "", "", false},
	}

	h := NewHeuristic()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := uuid.New()
			got, err := h.Suggest(context.Background(), []Candidate{{VariationID: id, ProductName: tt.product, VariantTitle: tt.variant}})
			require.NoError(t, err)
			if !tt.hit {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, id, got[0].VariationID)
			assert.Equal(t, tt.want, got[0].Classification)
			assert.Equal(t, "heuristic", got[0].Source)
		})
	}
}

type stubSuggester struct {
	name     string
	verdicts []Verdict
	err      error
	seen     []Candidate
}

func (s *stubSuggester) Name() string { return s.name }

func (s *stubSuggester) Suggest(_ context.Context, c []Candidate) ([]Verdict, error) {
	s.seen = c
	return s.verdicts, s.err
}

func TestFallbackCoversGaps(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	primary := &stubSuggester{name: "agent", verdicts: []Verdict{{VariationID: a, Classification: domain.Addon}}}
	secondary := &stubSuggester{name: "heuristic", verdicts: []Verdict{{VariationID: b, Classification: domain.Ignored}}}

	got, err := Fallback{Primary: primary, Secondary: secondary}.Suggest(context.Background(), []Candidate{{VariationID: a}, {VariationID: b}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Len(t, secondary.seen, 1)
	assert.Equal(t, b, secondary.seen[0].VariationID)
}

func TestFallbackAfterPrimaryError(t *testing.T) {
	a := uuid.New()
	primary := &stubSuggester{name: "agent", err: errors.New("model down")}
	secondary := &stubSuggester{name: "heuristic", verdicts: []Verdict{{VariationID: a, Classification: domain.Subscription}}}

	got, err := Fallback{Primary: primary, Secondary: secondary}.Suggest(context.Background(), []Candidate{{VariationID: a}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "agent+heuristic", Fallback{Primary: primary, Secondary: secondary}.Name())
}
