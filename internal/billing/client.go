package billing

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/SubscriberSync/portal-sub000/platform/config"
	"github.com/SubscriberSync/portal-sub000/platform/logger"
	"github.com/SubscriberSync/portal-sub000/platform/upstream"

	"github.com/shopspring/decimal"
)

const pageLimit = "250"

// Client is the HTTP implementation of Adapter.
type Client struct {
	api *upstream.Client
}

var _ Adapter = (*Client)(nil)

// NewClient creates a billing platform client from configuration.
func NewClient(cfg config.BillingConfig, log *logger.Logger) *Client {
	return &Client{
		api: upstream.New(upstream.Config{
			Service:           "billing",
			BaseURL:           cfg.GetBillingAPIURL(),
			Token:             cfg.GetBillingAPIToken(),
			RequestsPerSecond: cfg.GetBillingRequestsPerSecond(),
			Timeout:           30 * time.Second,
		}, log),
	}
}

// NewClientWith wraps an already configured upstream client.
func NewClientWith(api *upstream.Client) *Client {
	return &Client{api: api}
}

// ListCustomers returns one page of customers.
func (c *Client) ListCustomers(ctx context.Context, cursor string) (CustomerPage, error) {
	query := url.Values{"limit": {pageLimit}}
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	var resp apiCustomerPage
	if err := c.api.GetJSON(ctx, "/customers", query, &resp); err != nil {
		return CustomerPage{}, err
	}

	page := CustomerPage{NextCursor: resp.NextCursor, Customers: make([]Customer, 0, len(resp.Customers))}
	for _, raw := range resp.Customers {
		page.Customers = append(page.Customers, raw.toDomain())
	}
	return page, nil
}

// ListSubscriptions returns one page of subscriptions filtered by status.
func (c *Client) ListSubscriptions(ctx context.Context, status Status, cursor string) (SubscriptionPage, error) {
	query := url.Values{"limit": {pageLimit}}
	if status != "" {
		query.Set("status", string(status))
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	var resp apiSubscriptionPage
	if err := c.api.GetJSON(ctx, "/subscriptions", query, &resp); err != nil {
		return SubscriptionPage{}, err
	}

	page := SubscriptionPage{NextCursor: resp.NextCursor, Subscriptions: make([]Subscription, 0, len(resp.Subscriptions))}
	for _, raw := range resp.Subscriptions {
		page.Subscriptions = append(page.Subscriptions, raw.toDomain())
	}
	return page, nil
}

type apiCustomerPage struct {
	Customers  []apiCustomer `json:"customers"`
	NextCursor string        `json:"next_cursor"`
}

type apiCustomer struct {
	ID                 flexString `json:"id"`
	Email              string     `json:"email"`
	FirstName          string     `json:"first_name"`
	LastName           string     `json:"last_name"`
	Phone              string     `json:"phone"`
	CreatedAt          time.Time  `json:"created_at"`
	ExternalCustomerID flexString `json:"external_customer_id"`
}

func (a apiCustomer) toDomain() Customer {
	return Customer{
		ID:                 string(a.ID),
		Email:              strings.TrimSpace(a.Email),
		FirstName:          strings.TrimSpace(a.FirstName),
		LastName:           strings.TrimSpace(a.LastName),
		Phone:              strings.TrimSpace(a.Phone),
		CreatedAt:          a.CreatedAt.UTC(),
		CommerceCustomerID: string(a.ExternalCustomerID),
	}
}

type apiSubscriptionPage struct {
	Subscriptions []apiSubscription `json:"subscriptions"`
	NextCursor    string            `json:"next_cursor"`
}

type apiSubscription struct {
	ID                      flexString  `json:"id"`
	CustomerID              flexString  `json:"customer_id"`
	ExternalProductID       flexString  `json:"external_product_id"`
	ProductTitle            string      `json:"product_title"`
	SKU                     string      `json:"sku"`
	Status                  string      `json:"status"`
	CreatedAt               time.Time   `json:"created_at"`
	CancelledAt             *time.Time  `json:"cancelled_at"`
	CancellationReason      string      `json:"cancellation_reason"`
	NextChargeScheduledAt   *time.Time  `json:"next_charge_scheduled_at"`
	ChargeIntervalFrequency flexString  `json:"charge_interval_frequency"`
	OrderIntervalFrequency  flexString  `json:"order_interval_frequency"`
	OrderIntervalUnit       string      `json:"order_interval_unit"`
	ChargeIntervalUnit      string      `json:"charge_interval_unit"`
	Price                   flexString  `json:"price"`
	Properties              []Property  `json:"properties"`
}

func (a apiSubscription) toDomain() Subscription {
	orderUnit := ParseIntervalUnit(a.OrderIntervalUnit)
	chargeUnit := ParseIntervalUnit(a.ChargeIntervalUnit)
	if chargeUnit == "" {
		// Most platforms express both cadences in the order unit.
		chargeUnit = orderUnit
	}

	price, err := decimal.NewFromString(string(a.Price))
	if err != nil {
		price = decimal.Zero
	}

	sub := Subscription{
		ID:                 string(a.ID),
		CustomerID:         string(a.CustomerID),
		ExternalProductID:  string(a.ExternalProductID),
		ProductTitle:       strings.TrimSpace(a.ProductTitle),
		SKU:                strings.TrimSpace(a.SKU),
		Status:             ParseStatus(a.Status),
		CreatedAt:          a.CreatedAt.UTC(),
		CancellationReason: a.CancellationReason,
		ChargeInterval:     Interval{Unit: chargeUnit, Frequency: a.ChargeIntervalFrequency.Int()},
		OrderInterval:      Interval{Unit: orderUnit, Frequency: a.OrderIntervalFrequency.Int()},
		Price:              price,
		Properties:         Properties(a.Properties),
	}
	if a.CancelledAt != nil {
		t := a.CancelledAt.UTC()
		sub.CancelledAt = &t
	}
	if a.NextChargeScheduledAt != nil {
		t := a.NextChargeScheduledAt.UTC()
		sub.NextChargeAt = &t
	}
	return sub
}

// flexString accepts JSON strings and numbers; billing platforms disagree on ID types.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// Int parses the value as an integer, returning 0 when it is not one.
func (f flexString) Int() int {
	n, err := strconv.Atoi(string(f))
	if err != nil {
		return 0
	}
	return n
}
