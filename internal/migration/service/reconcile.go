package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	aliasrepo "github.com/SubscriberSync/portal-sub000/internal/aliases/repository"
	"github.com/SubscriberSync/portal-sub000/internal/aliases/snapshot"
	"github.com/SubscriberSync/portal-sub000/internal/anomaly"
	"github.com/SubscriberSync/portal-sub000/internal/audit"
	"github.com/SubscriberSync/portal-sub000/internal/billing"
	"github.com/SubscriberSync/portal-sub000/internal/orders"
	"github.com/SubscriberSync/portal-sub000/internal/prepaid"
	"github.com/SubscriberSync/portal-sub000/internal/sequence"
	subsrepo "github.com/SubscriberSync/portal-sub000/internal/subscribers/repository"

	"github.com/google/uuid"
)

// Outcome is the verdict for one subscriber before it is persisted.
type Outcome struct {
	Entry audit.Entry
	// Commit is set for clean outcomes bound to a series.
	Commit *subsrepo.AutoCommit
	// Unknown are the unresolved line items, for the unknown SKU queue.
	Unknown []aliasrepo.UnknownSighting
}

// Input is everything known about one subscriber when reconciling.
type Input struct {
	RunID        uuid.UUID
	RunStartedAt time.Time
	Profile      subsrepo.Profile
	History      []orders.Order
	// FetchErr is set when the order history could not be read.
	FetchErr error
	Now      time.Time
}

// Reconcile reconstructs the timeline of the subscriber's best matching
// series, runs the detector over it and builds the audit entry. It performs
// no I/O.
func Reconcile(in Input, snap *snapshot.Snapshot) Outcome {
	sub := in.Profile.Subscriber
	notes := ""
	history := in.History
	switch {
	case in.FetchErr != nil:
		notes = fmt.Sprintf("order history unavailable: %v", in.FetchErr)
		history = nil
	case strings.TrimSpace(sub.CommerceCustomerID) == "":
		notes = "no commerce customer linked to this subscriber"
	}

	series, tl, bound := pickSeries(history, snap, candidateSeries(in.Profile.Subscriptions, snap))

	ctx := anomaly.Context{Series: series, Upgrades: toUpgrades(in.Profile.Upgrades)}
	if bound {
		for _, s := range in.Profile.Subscriptions {
			ser, ok := snap.SeriesForProduct(s.ExternalProductID)
			if !ok || ser.ID != series.ID {
				continue
			}
			if s.Status == string(billing.StatusActive) {
				ctx.ActiveSubscriptions++
			}
			if s.IsPrepaid && s.PrepaidTotalSource != nil && prepaid.TotalSource(*s.PrepaidTotalSource) == prepaid.SourceAssumed {
				ctx.PrepaidAssumed = true
			}
		}
	}
	res := anomaly.Detect(tl, ctx)

	var seriesID *uuid.UUID
	if bound {
		id := series.ID
		seriesID = &id
	}
	entry := audit.NewEntry(sub.MerchantID, in.RunID, sub.ID, seriesID, tl, res, notes, in.Now)

	out := Outcome{Entry: entry}
	if res.Clean() && bound {
		entryID := entry.ID
		out.Commit = &subsrepo.AutoCommit{
			MerchantID:   sub.MerchantID,
			SubscriberID: sub.ID,
			SeriesID:     series.ID,
			Position:     res.ProposedNext,
			RunStartedAt: in.RunStartedAt,
			AuditEntryID: &entryID,
			Reason:       "migration run " + in.RunID.String(),
		}
	}
	for _, m := range tl.Missing {
		out.Unknown = append(out.Unknown, aliasrepo.UnknownSighting{
			SKU:         m.SKU,
			ProductName: m.ProductName,
			SeenAt:      in.Now,
		})
	}
	return out
}

// candidateSeries are the series bound to the subscriber's subscriptions, or
// every series when none binds.
func candidateSeries(subs []subsrepo.Subscription, snap *snapshot.Snapshot) []snapshot.Series {
	seen := map[uuid.UUID]bool{}
	var out []snapshot.Series
	for _, s := range subs {
		ser, ok := snap.SeriesForProduct(s.ExternalProductID)
		if ok && !seen[ser.ID] {
			seen[ser.ID] = true
			out = append(out, ser)
		}
	}
	if len(out) == 0 {
		out = snap.AllSeries()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// pickSeries reconstructs every candidate and keeps the one with the most
// events; candidates are pre-sorted so ties go to the first. bound is false
// when the merchant has no series at all.
func pickSeries(history []orders.Order, snap *snapshot.Snapshot, candidates []snapshot.Series) (snapshot.Series, sequence.Timeline, bool) {
	if len(candidates) == 0 {
		return snapshot.Series{}, sequence.Reconstruct(history, snap, snapshot.Series{}), false
	}
	best := candidates[0]
	bestTL := sequence.Reconstruct(history, snap, best)
	for _, ser := range candidates[1:] {
		tl := sequence.Reconstruct(history, snap, ser)
		if len(tl.Events) > len(bestTL.Events) {
			best, bestTL = ser, tl
		}
	}
	return best, bestTL, true
}

func toUpgrades(in []subsrepo.TierUpgrade) []anomaly.TierUpgrade {
	out := make([]anomaly.TierUpgrade, 0, len(in))
	for _, u := range in {
		out = append(out, anomaly.TierUpgrade{FromTier: u.FromTier, ToTier: u.ToTier, EffectiveAt: u.EffectiveAt})
	}
	return out
}
