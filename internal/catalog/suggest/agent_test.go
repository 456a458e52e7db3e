package suggest

import (
	"testing"

	"github.com/SubscriberSync/portal-sub000/internal/catalog/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSuggestionCollects(t *testing.T) {
	known, other := uuid.New(), uuid.New()
	c := &suggestionCollector{}
	c.reset([]Candidate{{VariationID: known}})

	out, err := c.handleRecordSuggestion(nil, RecordSuggestionInput{VariationID: other.String(), Classification: "addon"})
	require.NoError(t, err)
	assert.False(t, out.Success)

	out, err = c.handleRecordSuggestion(nil, RecordSuggestionInput{VariationID: known.String(), Classification: "bogus"})
	require.NoError(t, err)
	assert.False(t, out.Success)

	out, err = c.handleRecordSuggestion(nil, RecordSuggestionInput{VariationID: "not-a-uuid", Classification: "addon"})
	require.NoError(t, err)
	assert.False(t, out.Success)

	out, err = c.handleRecordSuggestion(nil, RecordSuggestionInput{VariationID: known.String(), Classification: "Addon", Confidence: 1.7, Rationale: " merch "})
	require.NoError(t, err)
	assert.True(t, out.Success)

	// a later call for the same variation replaces the first
	_, err = c.handleRecordSuggestion(nil, RecordSuggestionInput{VariationID: known.String(), Classification: "ignored", Confidence: 0.4})
	require.NoError(t, err)

	got := c.drain()
	require.Len(t, got, 1)
	assert.Equal(t, domain.Ignored, got[0].Classification)
	assert.InDelta(t, 0.4, got[0].Confidence, 1e-9)
	assert.Equal(t, "agent", got[0].Source)
}

func TestRecordSuggestionClampsConfidence(t *testing.T) {
	id := uuid.New()
	c := &suggestionCollector{}
	c.reset([]Candidate{{VariationID: id}})

	_, err := c.handleRecordSuggestion(nil, RecordSuggestionInput{VariationID: id.String(), Classification: "subscription", Confidence: 3, Rationale: " box "})
	require.NoError(t, err)

	got := c.drain()
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].Confidence)
	assert.Equal(t, "box", got[0].Rationale)
}

func TestBuildPromptListsEveryCandidate(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	p := buildPrompt([]Candidate{
		{VariationID: a, ProductName: "Book Box", VariantTitle: "Month 1", SKU: "BOX-01", OrderCount: 12},
		{VariationID: b, ProductName: "Tote", SKU: "TOTE"},
	})
	assert.Contains(t, p, a.String())
	assert.Contains(t, p, b.String())
	assert.Contains(t, p, `sku="BOX-01"`)
}
