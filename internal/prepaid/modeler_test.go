package prepaid

import (
	"testing"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/billing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monthly(n int) billing.Interval { return billing.Interval{Unit: billing.UnitMonth, Frequency: n} }

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func TestIsPrepaid(t *testing.T) {
	tests := []struct {
		name string
		sub  billing.Subscription
		want bool
	}{
		{
			name: "yearly charge monthly ship",
			sub:  billing.Subscription{ChargeInterval: monthly(12), OrderInterval: monthly(1)},
			want: true,
		},
		{
			name: "year unit against months",
			sub:  billing.Subscription{ChargeInterval: billing.Interval{Unit: billing.UnitYear, Frequency: 1}, OrderInterval: monthly(3)},
			want: true,
		},
		{
			name: "property marks prepaid",
			sub: billing.Subscription{
				ChargeInterval: monthly(1),
				OrderInterval:  monthly(1),
				Properties:     billing.Properties{{Name: "Subscription_Type", Value: "PREPAID"}},
			},
			want: true,
		},
		{
			name: "property name without prepaid value",
			sub: billing.Subscription{
				ChargeInterval: monthly(1),
				OrderInterval:  monthly(1),
				Properties:     billing.Properties{{Name: "is_prepaid", Value: "no"}},
			},
			want: false,
		},
		{
			name: "value mentions prepaid under unrelated name",
			sub: billing.Subscription{
				ChargeInterval: monthly(1),
				OrderInterval:  monthly(1),
				Properties:     billing.Properties{{Name: "gift_note", Value: "prepaid by grandma"}},
			},
			want: false,
		},
		{
			name: "charge finer than ship",
			sub:  billing.Subscription{ChargeInterval: monthly(1), OrderInterval: monthly(2)},
			want: false,
		},
		{
			name: "missing intervals",
			sub:  billing.Subscription{},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPrepaid(tt.sub))
		})
	}
}

func TestIsPrepaidFalseForEqualIntervals(t *testing.T) {
	units := []billing.IntervalUnit{billing.UnitDay, billing.UnitWeek, billing.UnitMonth, billing.UnitYear}
	for _, unit := range units {
		for freq := 1; freq <= 12; freq++ {
			interval := billing.Interval{Unit: unit, Frequency: freq}
			sub := billing.Subscription{ChargeInterval: interval, OrderInterval: interval}
			assert.False(t, IsPrepaid(sub), "unit=%s freq=%d", unit, freq)
		}
	}
}

func TestPrepaidTotal(t *testing.T) {
	tests := []struct {
		name string
		sub  billing.Subscription
		want Total
	}{
		{
			name: "yearly over monthly",
			sub:  billing.Subscription{ChargeInterval: monthly(12), OrderInterval: monthly(1)},
			want: Total{Count: 12, Source: SourceInterval},
		},
		{
			name: "six months over two",
			sub:  billing.Subscription{ChargeInterval: monthly(6), OrderInterval: monthly(2)},
			want: Total{Count: 3, Source: SourceInterval},
		},
		{
			name: "quarter charge weekly ship floors",
			sub: billing.Subscription{
				ChargeInterval: monthly(3),
				OrderInterval:  billing.Interval{Unit: billing.UnitWeek, Frequency: 1},
			},
			want: Total{Count: 13, Source: SourceInterval},
		},
		{
			name: "first integer property wins",
			sub: billing.Subscription{
				ChargeInterval: monthly(12),
				OrderInterval:  monthly(1),
				Properties: billing.Properties{
					{Name: "total_shipments", Value: "six"},
					{Name: "Episodes", Value: " 6 "},
					{Name: "prepaid_total", Value: "9"},
				},
			},
			want: Total{Count: 6, Source: SourceProperty},
		},
		{
			name: "prepaid by property only",
			sub: billing.Subscription{
				ChargeInterval: monthly(1),
				OrderInterval:  monthly(1),
				Properties:     billing.Properties{{Name: "subscription_type", Value: "prepaid"}},
			},
			want: Total{Count: DefaultTotal, Source: SourceAssumed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PrepaidTotal(tt.sub)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Source == SourceAssumed, got.Assumed())
		})
	}
}

func TestEstimateDelivered(t *testing.T) {
	created := date(2024, time.January, 31)
	cancelledAt := date(2024, time.April, 15)

	tests := []struct {
		name string
		sub  billing.Subscription
		now  time.Time
		want int
	}{
		{
			name: "same day ships first installment",
			sub:  billing.Subscription{CreatedAt: created, OrderInterval: monthly(1)},
			now:  created,
			want: 1,
		},
		{
			name: "short february is not a whole month",
			sub:  billing.Subscription{CreatedAt: created, OrderInterval: monthly(1)},
			now:  date(2024, time.February, 28),
			want: 1,
		},
		{
			name: "month-end anniversary",
			sub:  billing.Subscription{CreatedAt: created, OrderInterval: monthly(1)},
			now:  date(2024, time.March, 31),
			want: 2,
		},
		{
			name: "calendar months not thirty days",
			sub:  billing.Subscription{CreatedAt: date(2024, time.January, 1), OrderInterval: monthly(1)},
			now:  date(2024, time.July, 1),
			want: 6,
		},
		{
			name: "bi-monthly",
			sub:  billing.Subscription{CreatedAt: date(2024, time.January, 1), OrderInterval: monthly(2)},
			now:  date(2024, time.December, 31),
			want: 5,
		},
		{
			name: "weeks floor",
			sub:  billing.Subscription{CreatedAt: date(2024, time.January, 1), OrderInterval: billing.Interval{Unit: billing.UnitWeek, Frequency: 2}},
			now:  date(2024, time.February, 5),
			want: 2,
		},
		{
			name: "cancellation stops the clock",
			sub: billing.Subscription{
				CreatedAt:     date(2024, time.January, 1),
				OrderInterval: monthly(1),
				Status:        billing.StatusCancelled,
				CancelledAt:   &cancelledAt,
			},
			now:  date(2025, time.January, 1),
			want: 3,
		},
		{
			name: "no usable interval",
			sub:  billing.Subscription{CreatedAt: date(2020, time.January, 1)},
			now:  date(2024, time.January, 1),
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateDelivered(tt.sub, tt.now))
		})
	}
}

func TestEstimateDeliveredMonotonic(t *testing.T) {
	subs := []billing.Subscription{
		{CreatedAt: date(2023, time.January, 31), OrderInterval: monthly(1)},
		{CreatedAt: date(2023, time.March, 15), OrderInterval: monthly(3)},
		{CreatedAt: date(2023, time.March, 15), OrderInterval: billing.Interval{Unit: billing.UnitWeek, Frequency: 1}},
		{CreatedAt: date(2023, time.March, 15), OrderInterval: billing.Interval{Unit: billing.UnitDay, Frequency: 10}},
		{CreatedAt: date(2023, time.March, 15), OrderInterval: billing.Interval{Unit: billing.UnitYear, Frequency: 1}},
	}

	for _, sub := range subs {
		prev := 0
		for now := sub.CreatedAt.AddDate(0, 0, -3); now.Before(sub.CreatedAt.AddDate(3, 0, 0)); now = now.Add(13 * time.Hour) {
			got := EstimateDelivered(sub, now)
			require.GreaterOrEqual(t, got, 1)
			require.GreaterOrEqual(t, got, prev, "estimate decreased at %s for %+v", now, sub.OrderInterval)
			prev = got
		}
	}
}

func TestRemainingAndEffectiveStatus(t *testing.T) {
	total := Total{Count: 12, Source: SourceInterval}
	assert.Equal(t, 7, Remaining(total, 5))
	assert.Equal(t, 0, Remaining(total, 15))

	positive, zero := 3, 0
	assert.Equal(t, billing.StatusCancelled, EffectiveStatus(billing.StatusCancelled, &positive))
	assert.Equal(t, billing.StatusActive, EffectiveStatus(billing.StatusExpired, &positive))
	assert.Equal(t, billing.StatusExpired, EffectiveStatus(billing.StatusExpired, &zero))
	assert.Equal(t, billing.StatusExpired, EffectiveStatus(billing.StatusExpired, nil))
	assert.Equal(t, billing.StatusPaused, EffectiveStatus(billing.StatusPaused, nil))
	assert.Equal(t, billing.StatusActive, EffectiveStatus(billing.StatusActive, nil))
}
