package billing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SubscriberSync/portal-sub000/platform/upstream"

	"github.com/shopspring/decimal"
)

const subscriptionsPage1 = `{
  "subscriptions": [{
    "id": 101,
    "customer_id": "c-1",
    "external_product_id": 555,
    "product_title": "Mystery Book Box",
    "sku": "BOX-PREPAID",
    "status": "ACTIVE",
    "created_at": "2024-01-15T10:00:00Z",
    "charge_interval_frequency": "12",
    "order_interval_frequency": 1,
    "order_interval_unit": "months",
    "price": "299.99",
    "properties": [{"name": "Subscription_Type", "value": "Prepaid 12"}]
  }],
  "next_cursor": "page-2"
}`

const subscriptionsPage2 = `{
  "subscriptions": [{
    "id": "102",
    "customer_id": "c-2",
    "status": "canceled",
    "created_at": "2023-05-01T00:00:00Z",
    "cancelled_at": "2024-02-01T00:00:00Z",
    "charge_interval_frequency": "1",
    "order_interval_frequency": "1",
    "order_interval_unit": "month",
    "price": 24.5
  }],
  "next_cursor": ""
}`

func TestWalkSubscriptionsFollowsCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/subscriptions" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("status") != "" {
			t.Errorf("unexpected status filter %q", r.URL.Query().Get("status"))
		}
		switch r.URL.Query().Get("cursor") {
		case "":
			_, _ = w.Write([]byte(subscriptionsPage1))
		case "page-2":
			_, _ = w.Write([]byte(subscriptionsPage2))
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	}))
	defer srv.Close()

	client := NewClientWith(upstream.New(upstream.Config{
		Service: "billing",
		BaseURL: srv.URL,
		Retry:   upstream.RetryPolicy{MaxAttempts: 1},
	}, nil))

	var subs []Subscription
	err := WalkSubscriptions(context.Background(), client, "", func(page []Subscription) error {
		subs = append(subs, page...)
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", len(subs))
	}

	first := subs[0]
	if first.ID != "101" || first.ExternalProductID != "555" {
		t.Errorf("numeric ids not normalized: %+v", first)
	}
	if first.Status != StatusActive {
		t.Errorf("status = %q, want active", first.Status)
	}
	if first.ChargeInterval != (Interval{Unit: UnitMonth, Frequency: 12}) {
		t.Errorf("charge interval = %+v", first.ChargeInterval)
	}
	if first.OrderInterval != (Interval{Unit: UnitMonth, Frequency: 1}) {
		t.Errorf("order interval = %+v", first.OrderInterval)
	}
	if !first.Price.Equal(decimal.RequireFromString("299.99")) {
		t.Errorf("price = %s", first.Price)
	}
	if len(first.Properties.NameContains("subscription_type")) != 1 {
		t.Errorf("properties not decoded: %+v", first.Properties)
	}

	second := subs[1]
	if second.Status != StatusCancelled {
		t.Errorf("status = %q, want cancelled", second.Status)
	}
	if second.CancelledAt == nil {
		t.Fatalf("cancelled_at not decoded")
	}
	if !second.Price.Equal(decimal.RequireFromString("24.5")) {
		t.Errorf("numeric price = %s", second.Price)
	}
}

func TestPropertiesMatching(t *testing.T) {
	props := Properties{
		{Name: "Gift Note", Value: "Happy birthday"},
		{Name: "Total_Episodes", Value: "6"},
		{Name: "shipments_total", Value: "n/a"},
	}

	matched := props.NameContains("episodes", "shipments")
	if len(matched) != 2 || matched[0].Name != "Total_Episodes" {
		t.Fatalf("unexpected match order: %+v", matched)
	}
	if !props.AnyValueContains("BIRTHDAY") {
		t.Fatalf("value match should be case-insensitive")
	}
	if props.AnyValueContains("prepaid") {
		t.Fatalf("unexpected value match")
	}
}
