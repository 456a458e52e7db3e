package anomaly

import (
	"testing"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/aliases/snapshot"
	"github.com/SubscriberSync/portal-sub000/internal/sequence"

	"github.com/stretchr/testify/assert"
)

func at(month int) time.Time {
	return time.Date(2024, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}

func ev(seq, month int, order, tier string) sequence.Event {
	return sequence.Event{Sequence: seq, DeliveredAt: at(month), OrderID: order, OrderNumber: order, Tier: tier}
}

func timeline(events ...sequence.Event) sequence.Timeline {
	tl := sequence.Timeline{Events: events, Observed: []int{}}
	for i, e := range events {
		if i == 0 || e.Sequence != events[i-1].Sequence {
			tl.Observed = append(tl.Observed, e.Sequence)
		}
	}
	return tl
}

var monthly = snapshot.Series{Name: "Monthly Box", Sequential: true}

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		tl       sequence.Timeline
		ctx      Context
		want     []Flag
		wantNext int
	}{
		{
			name:     "clean run",
			tl:       timeline(ev(1, 1, "a", ""), ev(2, 2, "b", ""), ev(3, 3, "c", "")),
			ctx:      Context{Series: monthly, ActiveSubscriptions: 1},
			want:     []Flag{},
			wantNext: 4,
		},
		{
			name:     "gap",
			tl:       timeline(ev(1, 1, "a", ""), ev(2, 2, "b", ""), ev(4, 3, "c", "")),
			ctx:      Context{Series: monthly, ActiveSubscriptions: 1},
			want:     []Flag{GapDetected},
			wantNext: 5,
		},
		{
			name:     "gap ignored for non-sequential series",
			tl:       timeline(ev(1, 1, "a", ""), ev(4, 3, "c", "")),
			ctx:      Context{Series: snapshot.Series{Name: "Curated"}, ActiveSubscriptions: 1},
			want:     []Flag{},
			wantNext: 5,
		},
		{
			name:     "duplicate installment in two orders",
			tl:       timeline(ev(1, 1, "a", ""), ev(2, 2, "b", ""), ev(3, 3, "c", ""), ev(3, 4, "d", "")),
			ctx:      Context{Series: monthly, ActiveSubscriptions: 1},
			want:     []Flag{DuplicateBox},
			wantNext: 4,
		},
		{
			name:     "higher installment shipped first",
			tl:       timeline(ev(3, 6, "b", ""), ev(4, 7, "c", ""), ev(5, 2, "a", "")),
			ctx:      Context{Series: monthly, ActiveSubscriptions: 1},
			want:     []Flag{TimeTraveler},
			wantNext: 6,
		},
		{
			name:     "no history",
			tl:       timeline(),
			ctx:      Context{Series: monthly},
			want:     []Flag{NoHistory},
			wantNext: 1,
		},
		{
			name:     "tier change without upgrade",
			tl:       timeline(ev(1, 1, "a", "Standard"), ev(2, 2, "b", "Deluxe")),
			ctx:      Context{Series: monthly, ActiveSubscriptions: 1},
			want:     []Flag{TierChange},
			wantNext: 3,
		},
		{
			name: "tier change explained by upgrade",
			tl:   timeline(ev(1, 1, "a", "Standard"), ev(2, 2, "b", "Deluxe")),
			ctx: Context{Series: monthly, ActiveSubscriptions: 1, Upgrades: []TierUpgrade{
				{FromTier: "standard", ToTier: "DELUXE", EffectiveAt: at(1).AddDate(0, 0, 10)},
			}},
			want:     []Flag{},
			wantNext: 3,
		},
		{
			name: "upgrade recorded after the shipment does not explain it",
			tl:   timeline(ev(1, 1, "a", "Standard"), ev(2, 2, "b", "Deluxe")),
			ctx: Context{Series: monthly, ActiveSubscriptions: 1, Upgrades: []TierUpgrade{
				{ToTier: "Deluxe", EffectiveAt: at(5)},
			}},
			want:     []Flag{TierChange},
			wantNext: 3,
		},
		{
			name:     "missing tier is not a change",
			tl:       timeline(ev(1, 1, "a", "Standard"), ev(2, 2, "b", ""), ev(3, 3, "c", "standard")),
			ctx:      Context{Series: monthly, ActiveSubscriptions: 1},
			want:     []Flag{},
			wantNext: 4,
		},
		{
			name:     "every applicable flag in display order",
			tl:       timeline(ev(1, 5, "a", "Standard"), ev(3, 2, "b", "Deluxe"), ev(3, 3, "c", "Deluxe")),
			ctx:      Context{Series: monthly, ActiveSubscriptions: 2, PrepaidAssumed: true},
			want:     []Flag{GapDetected, DuplicateBox, TimeTraveler, TierChange, MultipleSubs, PrepaidAssumed},
			wantNext: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.tl, tt.ctx)
			assert.Equal(t, tt.want, got.Flags)
			assert.Equal(t, tt.wantNext, got.ProposedNext)
			assert.Equal(t, len(tt.want) == 0, got.Clean())
		})
	}
}

func TestDetectDoesNotReorderTimeline(t *testing.T) {
	tl := timeline(ev(1, 3, "a", "Gold"), ev(2, 1, "b", "Silver"))
	before := append([]sequence.Event(nil), tl.Events...)
	Detect(tl, Context{Series: monthly, ActiveSubscriptions: 1})
	assert.Equal(t, before, tl.Events)
}

func TestParseFlag(t *testing.T) {
	f, ok := ParseFlag("time_traveler")
	assert.True(t, ok)
	assert.Equal(t, TimeTraveler, f)

	_, ok = ParseFlag("bogus")
	assert.False(t, ok)
}
