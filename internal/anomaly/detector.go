// Package anomaly evaluates a reconstructed timeline and decides whether the
// proposed sequence position can be applied without a human looking at it.
package anomaly

import (
	"sort"
	"strings"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/aliases/snapshot"
	"github.com/SubscriberSync/portal-sub000/internal/sequence"
)

// Flag is a review reason code.
type Flag string

const (
	NoHistory      Flag = "no_history"
	GapDetected    Flag = "gap_detected"
	DuplicateBox   Flag = "duplicate_box"
	TimeTraveler   Flag = "time_traveler"
	TierChange     Flag = "tier_change"
	MultipleSubs   Flag = "multiple_subs"
	PrepaidAssumed Flag = "prepaid_assumed"
)

// Order is the display priority of flags. Detect always reports in this order.
var Order = []Flag{NoHistory, GapDetected, DuplicateBox, TimeTraveler, TierChange, MultipleSubs, PrepaidAssumed}

// ParseFlag accepts known reason codes only.
func ParseFlag(s string) (Flag, bool) {
	for _, f := range Order {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// TierUpgrade is a subscriber-initiated tier change on record.
type TierUpgrade struct {
	FromTier    string
	ToTier      string
	EffectiveAt time.Time
}

// Context is the lifecycle metadata the detector needs beside the timeline.
type Context struct {
	Series snapshot.Series
	// ActiveSubscriptions is the number of active billing subscriptions of the
	// subscriber that belong to Series.
	ActiveSubscriptions int
	Upgrades            []TierUpgrade
	// PrepaidAssumed is set when the prepaid total fell back to the default.
	PrepaidAssumed bool
}

// Result is the detector's verdict for one subscriber.
type Result struct {
	Flags        []Flag `json:"flags"`
	ProposedNext int    `json:"proposedNext"`
}

// Clean reports whether the proposal may be applied automatically.
func (r Result) Clean() bool { return len(r.Flags) == 0 }

// Detect returns every applicable flag plus the proposed next position.
func Detect(tl sequence.Timeline, ctx Context) Result {
	res := Result{Flags: []Flag{}, ProposedNext: sequence.ProposeNext(tl, ctx.Series)}

	checks := []struct {
		flag Flag
		hit  bool
	}{
		{NoHistory, len(tl.Events) == 0},
		{GapDetected, ctx.Series.Sequential && hasGap(tl.Observed)},
		{DuplicateBox, len(tl.Events) > len(tl.Observed)},
		{TimeTraveler, outOfOrder(tl.Events)},
		{TierChange, unexplainedTierChange(tl.Events, ctx.Upgrades)},
		{MultipleSubs, ctx.ActiveSubscriptions > 1},
		{PrepaidAssumed, ctx.PrepaidAssumed},
	}
	for _, c := range checks {
		if c.hit {
			res.Flags = append(res.Flags, c.flag)
		}
	}
	return res
}

// hasGap expects observed sorted and distinct.
func hasGap(observed []int) bool {
	for i := 1; i < len(observed); i++ {
		if observed[i]-observed[i-1] > 1 {
			return true
		}
	}
	return false
}

// outOfOrder reports whether a lower installment was delivered after a higher
// one. Events are sorted by sequence, then date.
func outOfOrder(events []sequence.Event) bool {
	var latestLower time.Time
	for i := 0; i < len(events); {
		j := i
		for j < len(events) && events[j].Sequence == events[i].Sequence {
			j++
		}
		// events[i] is the earliest delivery of this installment.
		if !latestLower.IsZero() && latestLower.After(events[i].DeliveredAt) {
			return true
		}
		for _, ev := range events[i:j] {
			if ev.DeliveredAt.After(latestLower) {
				latestLower = ev.DeliveredAt
			}
		}
		i = j
	}
	return false
}

// unexplainedTierChange walks events in delivery order and checks each switch
// between two known tiers against the upgrade records.
func unexplainedTierChange(events []sequence.Event, upgrades []TierUpgrade) bool {
	chrono := make([]sequence.Event, 0, len(events))
	for _, ev := range events {
		if strings.TrimSpace(ev.Tier) != "" {
			chrono = append(chrono, ev)
		}
	}
	sortChronological(chrono)

	for i := 1; i < len(chrono); i++ {
		prev, cur := chrono[i-1], chrono[i]
		if strings.EqualFold(strings.TrimSpace(prev.Tier), strings.TrimSpace(cur.Tier)) {
			continue
		}
		if !upgradeExplains(upgrades, prev.Tier, cur.Tier, cur.DeliveredAt) {
			return true
		}
	}
	return false
}

func upgradeExplains(upgrades []TierUpgrade, from, to string, at time.Time) bool {
	for _, u := range upgrades {
		if !strings.EqualFold(strings.TrimSpace(u.ToTier), strings.TrimSpace(to)) {
			continue
		}
		if u.FromTier != "" && !strings.EqualFold(strings.TrimSpace(u.FromTier), strings.TrimSpace(from)) {
			continue
		}
		if u.EffectiveAt.IsZero() || !u.EffectiveAt.After(at) {
			return true
		}
	}
	return false
}

func sortChronological(events []sequence.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].DeliveredAt.Before(events[j].DeliveredAt)
	})
}
