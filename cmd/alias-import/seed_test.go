package main

import (
	"context"
	"testing"

	"github.com/SubscriberSync/portal-sub000/internal/aliases/transport"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
series:
  - name: Mystery Box
    totalInstallments: 12
    tiers:
      - sequence: 1
        label: Box 1
        skus: [MB-01, MB-01-GIFT]
      - sequence: 2
        skus: [MB-02]
`

type memAliases struct {
	series  []transport.SeriesResponse
	tiers   map[uuid.UUID][]transport.TierResponse
	upserts []transport.UpsertAliasRequest
}

func newMemAliases() *memAliases {
	return &memAliases{tiers: map[uuid.UUID][]transport.TierResponse{}}
}

func (m *memAliases) ListSeries(context.Context, uuid.UUID) ([]transport.SeriesResponse, error) {
	return m.series, nil
}

func (m *memAliases) CreateSeries(_ context.Context, _ uuid.UUID, req transport.CreateSeriesRequest) (transport.SeriesResponse, error) {
	s := transport.SeriesResponse{ID: uuid.New(), Name: req.Name, TotalInstallments: req.TotalInstallments}
	m.series = append(m.series, s)
	return s, nil
}

func (m *memAliases) ListTiers(_ context.Context, _ uuid.UUID, seriesID uuid.UUID) ([]transport.TierResponse, error) {
	return m.tiers[seriesID], nil
}

func (m *memAliases) CreateTier(_ context.Context, _ uuid.UUID, seriesID uuid.UUID, req transport.CreateTierRequest) (transport.TierResponse, error) {
	t := transport.TierResponse{ID: uuid.New(), SeriesID: seriesID, SequenceNumber: req.SequenceNumber, Label: req.Label}
	m.tiers[seriesID] = append(m.tiers[seriesID], t)
	return t, nil
}

func (m *memAliases) UpsertAliases(_ context.Context, _ uuid.UUID, reqs []transport.UpsertAliasRequest) error {
	m.upserts = append(m.upserts, reqs...)
	return nil
}

func TestSeedIsRepeatable(t *testing.T) {
	file, err := parseCatalog([]byte(sampleYAML))
	require.NoError(t, err)

	svc := newMemAliases()
	merchantID := uuid.New()

	first, err := seed(context.Background(), svc, merchantID, file)
	require.NoError(t, err)
	assert.Equal(t, seedStats{SeriesCreated: 1, TiersCreated: 2, Aliases: 3}, first)

	second, err := seed(context.Background(), svc, merchantID, file)
	require.NoError(t, err)
	assert.Equal(t, seedStats{Aliases: 3}, second)

	require.Len(t, svc.series, 1)
	tiers := svc.tiers[svc.series[0].ID]
	require.Len(t, tiers, 2)
	assert.Equal(t, svc.upserts[0].TierID, svc.upserts[3].TierID)
}

func TestParseCatalogRejectsConflicts(t *testing.T) {
	cases := map[string]string{
		"empty":        "series: []",
		"no name":      "series:\n  - tiers: []",
		"zero tier":    "series:\n  - name: A\n    tiers:\n      - sequence: 0",
		"past the end": "series:\n  - name: A\n    totalInstallments: 2\n    tiers:\n      - sequence: 3",
		"double tier":  "series:\n  - name: A\n    tiers:\n      - sequence: 1\n      - sequence: 1",
		"sku twice": "series:\n  - name: A\n    tiers:\n      - sequence: 1\n        skus: [X]\n" +
			"      - sequence: 2\n        skus: [x]",
		"bad yaml": "series: [",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseCatalog([]byte(raw))
			assert.Error(t, err)
		})
	}
}
