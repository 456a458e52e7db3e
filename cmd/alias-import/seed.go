package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/SubscriberSync/portal-sub000/internal/aliases/transport"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// catalogFile is the YAML layout:
//
//	series:
//	  - name: Mystery Box
//	    totalInstallments: 12
//	    tiers:
//	      - sequence: 1
//	        label: Box 1
//	        skus: [MB-01, MB-01-GIFT]
type catalogFile struct {
	Series []seriesEntry `yaml:"series"`
}

type seriesEntry struct {
	Name              string     `yaml:"name"`
	Sequential        *bool      `yaml:"sequential"`
	TotalInstallments *int       `yaml:"totalInstallments"`
	ExternalProductID *string    `yaml:"externalProductId"`
	Tiers             []tierEntry `yaml:"tiers"`
}

type tierEntry struct {
	Sequence int      `yaml:"sequence"`
	Label    string   `yaml:"label"`
	SKUs     []string `yaml:"skus"`
}

type seedStats struct {
	SeriesCreated int
	TiersCreated  int
	Aliases       int
}

// aliasWriter is the part of the aliases service the import drives.
type aliasWriter interface {
	ListSeries(ctx context.Context, merchantID uuid.UUID) ([]transport.SeriesResponse, error)
	CreateSeries(ctx context.Context, merchantID uuid.UUID, req transport.CreateSeriesRequest) (transport.SeriesResponse, error)
	ListTiers(ctx context.Context, merchantID, seriesID uuid.UUID) ([]transport.TierResponse, error)
	CreateTier(ctx context.Context, merchantID, seriesID uuid.UUID, req transport.CreateTierRequest) (transport.TierResponse, error)
	UpsertAliases(ctx context.Context, merchantID uuid.UUID, reqs []transport.UpsertAliasRequest) error
}

func parseCatalog(raw []byte) (catalogFile, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return catalogFile{}, fmt.Errorf("parse yaml: %w", err)
	}
	if len(file.Series) == 0 {
		return catalogFile{}, errors.New("no series defined")
	}

	seen := make(map[string]string)
	for _, s := range file.Series {
		if strings.TrimSpace(s.Name) == "" {
			return catalogFile{}, errors.New("series name is required")
		}
		sequences := make(map[int]bool)
		for _, t := range s.Tiers {
			if t.Sequence < 1 {
				return catalogFile{}, fmt.Errorf("series %q: tier sequence must be at least 1", s.Name)
			}
			if s.TotalInstallments != nil && t.Sequence > *s.TotalInstallments {
				return catalogFile{}, fmt.Errorf("series %q: tier %d exceeds %d installments", s.Name, t.Sequence, *s.TotalInstallments)
			}
			if sequences[t.Sequence] {
				return catalogFile{}, fmt.Errorf("series %q: tier %d defined twice", s.Name, t.Sequence)
			}
			sequences[t.Sequence] = true
			for _, sku := range t.SKUs {
				key := strings.ToUpper(strings.TrimSpace(sku))
				if key == "" {
					return catalogFile{}, fmt.Errorf("series %q: empty sku in tier %d", s.Name, t.Sequence)
				}
				where := fmt.Sprintf("%s/%d", s.Name, t.Sequence)
				if prev, ok := seen[key]; ok && prev != where {
					return catalogFile{}, fmt.Errorf("sku %q mapped to both %s and %s", sku, prev, where)
				}
				seen[key] = where
			}
		}
	}
	return file, nil
}

// seed creates missing series and tiers, matching existing ones by name and
// sequence number, then upserts every alias in one batch.
func seed(ctx context.Context, svc aliasWriter, merchantID uuid.UUID, file catalogFile) (seedStats, error) {
	var stats seedStats

	existing, err := svc.ListSeries(ctx, merchantID)
	if err != nil {
		return stats, fmt.Errorf("list series: %w", err)
	}
	seriesByName := make(map[string]uuid.UUID, len(existing))
	for _, s := range existing {
		seriesByName[strings.ToLower(s.Name)] = s.ID
	}

	var upserts []transport.UpsertAliasRequest
	for _, want := range file.Series {
		name := strings.TrimSpace(want.Name)
		seriesID, ok := seriesByName[strings.ToLower(name)]
		if !ok {
			created, err := svc.CreateSeries(ctx, merchantID, transport.CreateSeriesRequest{
				Name:              name,
				Sequential:        want.Sequential,
				TotalInstallments: want.TotalInstallments,
				ExternalProductID: want.ExternalProductID,
			})
			if err != nil {
				return stats, fmt.Errorf("create series %q: %w", name, err)
			}
			seriesID = created.ID
			seriesByName[strings.ToLower(name)] = seriesID
			stats.SeriesCreated++
		}

		tiers, err := svc.ListTiers(ctx, merchantID, seriesID)
		if err != nil {
			return stats, fmt.Errorf("list tiers of %q: %w", name, err)
		}
		tierBySequence := make(map[int]uuid.UUID, len(tiers))
		for _, t := range tiers {
			tierBySequence[t.SequenceNumber] = t.ID
		}

		for _, t := range want.Tiers {
			tierID, ok := tierBySequence[t.Sequence]
			if !ok {
				created, err := svc.CreateTier(ctx, merchantID, seriesID, transport.CreateTierRequest{
					SequenceNumber: t.Sequence,
					Label:          t.Label,
				})
				if err != nil {
					return stats, fmt.Errorf("create tier %d of %q: %w", t.Sequence, name, err)
				}
				tierID = created.ID
				tierBySequence[t.Sequence] = tierID
				stats.TiersCreated++
			}
			for _, sku := range t.SKUs {
				upserts = append(upserts, transport.UpsertAliasRequest{SKU: sku, TierID: tierID})
			}
		}
	}

	if len(upserts) == 0 {
		return stats, nil
	}
	if err := svc.UpsertAliases(ctx, merchantID, upserts); err != nil {
		return stats, fmt.Errorf("upsert aliases: %w", err)
	}
	stats.Aliases = len(upserts)
	return stats, nil
}
