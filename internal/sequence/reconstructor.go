// Package sequence projects a subscriber's classified order history onto an
// ordered installment timeline. Reconstruction is pure: same orders and
// snapshot in, same timeline out.
package sequence

import (
	"sort"
	"strconv"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/aliases/snapshot"
	"github.com/SubscriberSync/portal-sub000/internal/orders"

	"github.com/google/uuid"
)

// Event is one delivered installment.
type Event struct {
	Sequence    int       `json:"sequence"`
	DeliveredAt time.Time `json:"deliveredAt"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	SKU         string    `json:"sku"`
	Tier        string    `json:"tier,omitempty"`
}

// MissingPoint is a line item that could count but did not resolve to an installment.
type MissingPoint struct {
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
	SKU         string `json:"sku"`
	ProductName string `json:"productName"`
}

// Timeline is the reconstructed history of one subscriber in one series.
type Timeline struct {
	SeriesID uuid.UUID      `json:"seriesId"`
	Events   []Event        `json:"events"`
	Observed []int          `json:"observed"`
	Missing  []MissingPoint `json:"missing,omitempty"`
}

// MaxSequence is the highest observed installment, 0 when there is none.
func (t Timeline) MaxSequence() int {
	if len(t.Observed) == 0 {
		return 0
	}
	return t.Observed[len(t.Observed)-1]
}

// Reconstruct builds the timeline of series from history. Voided orders,
// addon and ignored items and items of other series are dropped; unresolved
// items are kept as missing points. Several lines of one order resolving to
// the same installment count once.
func Reconstruct(history []orders.Order, snap *snapshot.Snapshot, series snapshot.Series) Timeline {
	tl := Timeline{SeriesID: series.ID, Events: []Event{}, Observed: []int{}}

	for _, order := range history {
		if order.Voided() {
			continue
		}
		seen := make(map[int]bool)
		for _, item := range order.LineItems {
			target, outcome := snap.Resolve(item.SKU, item.ProductName, item.VariantTitle)
			switch outcome {
			case snapshot.Excluded:
				continue
			case snapshot.Unresolved:
				tl.Missing = append(tl.Missing, MissingPoint{
					OrderID:     order.ID,
					OrderNumber: order.OrderNumber,
					SKU:         item.SKU,
					ProductName: item.ProductName,
				})
				continue
			}
			if target.SeriesID != series.ID || seen[target.Sequence] {
				continue
			}
			seen[target.Sequence] = true
			tl.Events = append(tl.Events, Event{
				Sequence:    target.Sequence,
				DeliveredAt: order.CreatedAt.UTC(),
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				SKU:         item.SKU,
				Tier:        item.Tier,
			})
		}
	}

	sort.SliceStable(tl.Events, func(i, j int) bool {
		return eventLess(tl.Events[i], tl.Events[j])
	})
	sort.SliceStable(tl.Missing, func(i, j int) bool {
		return missingLess(tl.Missing[i], tl.Missing[j])
	})

	for i, ev := range tl.Events {
		if i == 0 || ev.Sequence != tl.Events[i-1].Sequence {
			tl.Observed = append(tl.Observed, ev.Sequence)
		}
	}
	return tl
}

// ProposeNext is the highest observed installment plus one, held at the last
// installment of a fixed-length sequential series. An empty timeline proposes 1.
func ProposeNext(tl Timeline, series snapshot.Series) int {
	next := tl.MaxSequence() + 1
	if series.Sequential && series.TotalInstallments != nil && *series.TotalInstallments > 0 && next > *series.TotalInstallments {
		return *series.TotalInstallments
	}
	return next
}

func eventLess(a, b Event) bool {
	if a.Sequence != b.Sequence {
		return a.Sequence < b.Sequence
	}
	if !a.DeliveredAt.Equal(b.DeliveredAt) {
		return a.DeliveredAt.Before(b.DeliveredAt)
	}
	if a.OrderNumber != b.OrderNumber {
		return orderNumberLess(a.OrderNumber, b.OrderNumber)
	}
	return a.OrderID < b.OrderID
}

func missingLess(a, b MissingPoint) bool {
	switch {
	case a.OrderNumber != b.OrderNumber:
		return orderNumberLess(a.OrderNumber, b.OrderNumber)
	case a.OrderID != b.OrderID:
		return a.OrderID < b.OrderID
	case a.SKU != b.SKU:
		return a.SKU < b.SKU
	default:
		return a.ProductName < b.ProductName
	}
}

// orderNumberLess compares numerically when both numbers are integers.
func orderNumberLess(a, b string) bool {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	if aErr == nil && bErr == nil {
		return ai < bi
	}
	return a < b
}
