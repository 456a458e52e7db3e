// Package prepaid derives prepaid facts from a billing subscription record:
// whether one charge funds several shipments, how many, and how many have
// probably shipped already.
package prepaid

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/SubscriberSync/portal-sub000/internal/billing"
)

// DefaultTotal is assumed for prepaid plans that state no length anywhere.
// Merchants must confirm it, so it is reported with SourceAssumed.
const DefaultTotal = 12

const (
	daysPerYear  = 365.2425
	daysPerMonth = daysPerYear / 12
)

// TotalSource records where a prepaid total came from.
type TotalSource string

const (
	SourceProperty TotalSource = "property"
	SourceInterval TotalSource = "interval"
	SourceAssumed  TotalSource = "assumed"
)

// Total is the number of installments one prepaid charge funds.
type Total struct {
	Count  int         `json:"count"`
	Source TotalSource `json:"source"`
}

// Assumed reports whether the count is the unverified default.
func (t Total) Assumed() bool { return t.Source == SourceAssumed }

var (
	prepaidNameFragments = []string{"prepaid", "subscription_type"}
	totalNameFragments   = []string{"total", "episodes", "shipments"}
)

// IsPrepaid reports whether the subscription is prepaid: a custom property
// says so, or the charge cadence is coarser than the ship cadence.
func IsPrepaid(sub billing.Subscription) bool {
	if sub.Properties.NameContains(prepaidNameFragments...).AnyValueContains("prepaid") {
		return true
	}
	ratio, ok := intervalRatio(sub.ChargeInterval, sub.OrderInterval)
	return ok && ratio > 1
}

// PrepaidTotal returns the explicit total from properties, else the number of
// ship intervals inside one charge interval, else DefaultTotal.
func PrepaidTotal(sub billing.Subscription) Total {
	for _, prop := range sub.Properties.NameContains(totalNameFragments...) {
		if n, err := strconv.Atoi(strings.TrimSpace(prop.Value)); err == nil && n > 0 {
			return Total{Count: n, Source: SourceProperty}
		}
	}

	if ratio, ok := intervalRatio(sub.ChargeInterval, sub.OrderInterval); ok && ratio > 1 {
		return Total{Count: int(math.Floor(ratio + 1e-9)), Source: SourceInterval}
	}

	return Total{Count: DefaultTotal, Source: SourceAssumed}
}

// EstimateDelivered estimates shipped installments from elapsed whole ship
// intervals between creation and now (or cancellation, if earlier).
// Month and year intervals use calendar months. The result is at least 1.
func EstimateDelivered(sub billing.Subscription, now time.Time) int {
	end := now.UTC()
	if sub.Status == billing.StatusCancelled && sub.CancelledAt != nil && sub.CancelledAt.Before(end) {
		end = sub.CancelledAt.UTC()
	}
	start := sub.CreatedAt.UTC()
	if !end.After(start) {
		return 1
	}

	interval := sub.OrderInterval
	if !interval.Valid() {
		interval = sub.ChargeInterval
	}
	if !interval.Valid() {
		return 1
	}

	var elapsed int
	switch interval.Unit {
	case billing.UnitMonth:
		elapsed = wholeMonths(start, end) / interval.Frequency
	case billing.UnitYear:
		elapsed = wholeMonths(start, end) / (12 * interval.Frequency)
	case billing.UnitWeek:
		elapsed = wholeDays(start, end) / (7 * interval.Frequency)
	case billing.UnitDay:
		elapsed = wholeDays(start, end) / interval.Frequency
	}

	if elapsed < 1 {
		return 1
	}
	return elapsed
}

// Remaining is the unshipped part of a prepaid total, never negative.
func Remaining(total Total, delivered int) int {
	if left := total.Count - delivered; left > 0 {
		return left
	}
	return 0
}

// EffectiveStatus maps the platform status to the fulfillment lifecycle.
// "expired" only means billing stopped; while prepaid installments remain the
// subscriber is still active.
func EffectiveStatus(status billing.Status, prepaidRemaining *int) billing.Status {
	switch status {
	case billing.StatusCancelled:
		return billing.StatusCancelled
	case billing.StatusExpired:
		if prepaidRemaining != nil && *prepaidRemaining > 0 {
			return billing.StatusActive
		}
		return billing.StatusExpired
	case billing.StatusPaused:
		return billing.StatusPaused
	default:
		return billing.StatusActive
	}
}

// intervalRatio returns charge/ship. Month and year compare exactly in months,
// day and week exactly in days; mixed families go through average day lengths.
func intervalRatio(charge, ship billing.Interval) (float64, bool) {
	if !charge.Valid() || !ship.Valid() {
		return 0, false
	}
	if calendarUnit(charge.Unit) && calendarUnit(ship.Unit) {
		return float64(inMonths(charge)) / float64(inMonths(ship)), true
	}
	return inDays(charge) / inDays(ship), true
}

func calendarUnit(u billing.IntervalUnit) bool {
	return u == billing.UnitMonth || u == billing.UnitYear
}

func inMonths(i billing.Interval) int {
	if i.Unit == billing.UnitYear {
		return 12 * i.Frequency
	}
	return i.Frequency
}

func inDays(i billing.Interval) float64 {
	f := float64(i.Frequency)
	switch i.Unit {
	case billing.UnitWeek:
		return 7 * f
	case billing.UnitMonth:
		return daysPerMonth * f
	case billing.UnitYear:
		return daysPerYear * f
	default:
		return f
	}
}

func wholeDays(start, end time.Time) int {
	return int(end.Sub(start).Hours() / 24)
}

// wholeMonths counts month anniversaries of start that are not after end.
// Anniversaries clamp to the last day of shorter months (Jan 31 -> Feb 29).
func wholeMonths(start, end time.Time) int {
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if months <= 0 {
		return 0
	}
	if anniversary(start, months).After(end) {
		months--
	}
	return months
}

func anniversary(start time.Time, months int) time.Time {
	firstOfMonth := time.Date(start.Year(), start.Month(), 1, start.Hour(), start.Minute(), start.Second(), start.Nanosecond(), time.UTC)
	target := firstOfMonth.AddDate(0, months, 0)
	lastDay := target.AddDate(0, 1, -1).Day()
	day := start.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(target.Year(), target.Month(), day, start.Hour(), start.Minute(), start.Second(), start.Nanosecond(), time.UTC)
}
