package orders

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/SubscriberSync/portal-sub000/platform/config"
	"github.com/SubscriberSync/portal-sub000/platform/logger"
	"github.com/SubscriberSync/portal-sub000/platform/upstream"

	"github.com/shopspring/decimal"
)

const (
	pageLimit = "250"
	// maxPages guards against an upstream that keeps returning the same cursor.
	maxPages = 200
)

// Client is the HTTP implementation of Provider.
type Client struct {
	api *upstream.Client
	log *logger.Logger
}

var _ Provider = (*Client)(nil)

// NewClient creates an order history client from configuration.
func NewClient(cfg config.OrdersConfig, log *logger.Logger) *Client {
	return &Client{
		api: upstream.New(upstream.Config{
			Service:           "orders",
			BaseURL:           cfg.GetOrdersAPIURL(),
			Token:             cfg.GetOrdersAPIToken(),
			RequestsPerSecond: cfg.GetOrdersRequestsPerSecond(),
			Timeout:           30 * time.Second,
		}, log),
		log: log,
	}
}

// NewClientWith wraps an already configured upstream client.
func NewClientWith(api *upstream.Client, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	return &Client{api: api, log: log}
}

// ListOrders returns every order of the customer inside r, following pagination.
func (c *Client) ListOrders(ctx context.Context, customerID string, r DateRange) ([]Order, error) {
	query := url.Values{
		"customer_id": {customerID},
		"status":      {"any"},
		"limit":       {pageLimit},
	}
	if !r.From.IsZero() {
		query.Set("created_at_min", r.From.UTC().Format(time.RFC3339))
	}
	if !r.To.IsZero() {
		query.Set("created_at_max", r.To.UTC().Format(time.RFC3339))
	}

	var out []Order
	cursor := ""
	for page := 0; page < maxPages; page++ {
		if cursor != "" {
			query.Set("page_info", cursor)
		}

		var resp apiOrderPage
		if err := c.api.GetJSON(ctx, "/orders", query, &resp); err != nil {
			return nil, err
		}
		for _, raw := range resp.Orders {
			out = append(out, raw.toDomain())
		}

		if resp.NextPageInfo == "" || resp.NextPageInfo == cursor {
			return out, nil
		}
		cursor = resp.NextPageInfo
	}

	c.log.Warn("order pagination truncated", "customerId", customerID, "pages", maxPages)
	return out, nil
}

type apiOrderPage struct {
	Orders       []apiOrder `json:"orders"`
	NextPageInfo string     `json:"next_page_info"`
}

type apiOrder struct {
	ID              any           `json:"id"`
	Name            string        `json:"name"`
	OrderNumber     any           `json:"order_number"`
	CreatedAt       time.Time     `json:"created_at"`
	FinancialStatus string        `json:"financial_status"`
	TotalPrice      string        `json:"total_price"`
	LineItems       []apiLineItem `json:"line_items"`
}

type apiLineItem struct {
	Title        string `json:"title"`
	VariantTitle string `json:"variant_title"`
	SKU          string `json:"sku"`
	Quantity     int    `json:"quantity"`
	Price        string `json:"price"`
	Properties   []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"properties"`
}

func (a apiOrder) toDomain() Order {
	number := stringify(a.OrderNumber)
	if number == "" {
		number = strings.TrimPrefix(a.Name, "#")
	}

	order := Order{
		ID:              stringify(a.ID),
		OrderNumber:     number,
		CreatedAt:       a.CreatedAt.UTC(),
		FinancialStatus: strings.ToLower(a.FinancialStatus),
		TotalPrice:      parseMoney(a.TotalPrice),
		LineItems:       make([]LineItem, 0, len(a.LineItems)),
	}
	for _, li := range a.LineItems {
		item := LineItem{
			ProductName:  strings.TrimSpace(li.Title),
			VariantTitle: strings.TrimSpace(li.VariantTitle),
			SKU:          strings.TrimSpace(li.SKU),
			Quantity:     li.Quantity,
			Price:        parseMoney(li.Price),
		}
		for _, p := range li.Properties {
			if strings.EqualFold(strings.TrimSpace(p.Name), "tier") {
				item.Tier = strings.TrimSpace(p.Value)
			}
		}
		order.LineItems = append(order.LineItems, item)
	}
	return order
}

func parseMoney(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return decimal.NewFromFloat(t).String()
	default:
		return ""
	}
}
