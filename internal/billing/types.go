// Package billing reads customers and subscriptions from the recurring-billing platform.
package billing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// IntervalUnit is the calendar unit of a charge or fulfillment cadence.
type IntervalUnit string

const (
	UnitDay   IntervalUnit = "day"
	UnitWeek  IntervalUnit = "week"
	UnitMonth IntervalUnit = "month"
	UnitYear  IntervalUnit = "year"
)

// ParseIntervalUnit accepts singular, plural and mixed-case spellings.
func ParseIntervalUnit(raw string) IntervalUnit {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), "s") {
	case "day":
		return UnitDay
	case "week":
		return UnitWeek
	case "month":
		return UnitMonth
	case "year":
		return UnitYear
	default:
		return ""
	}
}

// Interval is "every Frequency Units", e.g. every 3 months.
type Interval struct {
	Unit      IntervalUnit `json:"unit"`
	Frequency int          `json:"frequency"`
}

// Valid reports whether the interval can be used for arithmetic.
func (i Interval) Valid() bool {
	if i.Frequency < 1 {
		return false
	}
	switch i.Unit {
	case UnitDay, UnitWeek, UnitMonth, UnitYear:
		return true
	}
	return false
}

// Status is the subscription status as reported by the billing platform.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// ParseStatus normalizes platform spellings ("ACTIVE", "canceled").
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active":
		return StatusActive
	case "paused", "onhold", "on_hold":
		return StatusPaused
	case "cancelled", "canceled":
		return StatusCancelled
	case "expired":
		return StatusExpired
	default:
		return Status(strings.ToLower(strings.TrimSpace(raw)))
	}
}

// Property is one name/value pair from a subscription's custom properties.
type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Properties keeps the platform's order. Name and value matching is
// case-insensitive substring matching.
type Properties []Property

// NameContains returns properties whose name contains any of the fragments, in order.
func (p Properties) NameContains(fragments ...string) Properties {
	var out Properties
	for _, prop := range p {
		name := strings.ToLower(prop.Name)
		for _, fragment := range fragments {
			if strings.Contains(name, strings.ToLower(fragment)) {
				out = append(out, prop)
				break
			}
		}
	}
	return out
}

// AnyValueContains reports whether any property value contains fragment.
func (p Properties) AnyValueContains(fragment string) bool {
	fragment = strings.ToLower(fragment)
	for _, prop := range p {
		if strings.Contains(strings.ToLower(prop.Value), fragment) {
			return true
		}
	}
	return false
}

// Customer is a billing platform customer.
type Customer struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
	// CommerceCustomerID links the customer to the order history provider.
	CommerceCustomerID string `json:"commerceCustomerId"`
}

// Subscription is a billing platform subscription record.
type Subscription struct {
	ID                 string          `json:"id"`
	CustomerID         string          `json:"customerId"`
	ExternalProductID  string          `json:"externalProductId"`
	ProductTitle       string          `json:"productTitle"`
	SKU                string          `json:"sku"`
	Status             Status          `json:"status"`
	CreatedAt          time.Time       `json:"createdAt"`
	CancelledAt        *time.Time      `json:"cancelledAt,omitempty"`
	CancellationReason string          `json:"cancellationReason,omitempty"`
	NextChargeAt       *time.Time      `json:"nextChargeAt,omitempty"`
	ChargeInterval     Interval        `json:"chargeInterval"`
	OrderInterval      Interval        `json:"orderInterval"`
	Price              decimal.Decimal `json:"price"`
	Properties         Properties      `json:"properties"`
}

// CustomerPage is one page of customers plus the cursor for the next one.
type CustomerPage struct {
	Customers  []Customer
	NextCursor string
}

// SubscriptionPage is one page of subscriptions plus the cursor for the next one.
type SubscriptionPage struct {
	Subscriptions []Subscription
	NextCursor    string
}
