// Package orders reads a merchant's historical orders from the commerce platform.
package orders

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one product line of an order.
type LineItem struct {
	ProductName  string          `json:"productName"`
	VariantTitle string          `json:"variantTitle"`
	SKU          string          `json:"sku"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	// Tier is the pricing tier when the merchant sells tiered plans.
	Tier string `json:"tier,omitempty"`
}

// Order is a historical commerce order.
type Order struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"orderNumber"`
	CreatedAt       time.Time       `json:"createdAt"`
	FinancialStatus string          `json:"financialStatus"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	LineItems       []LineItem      `json:"lineItems"`
}

// Voided reports whether the order never resulted in a shipment.
func (o Order) Voided() bool {
	switch strings.ToLower(o.FinancialStatus) {
	case "refunded", "voided":
		return true
	}
	return false
}

// DateRange bounds an order query. Zero times leave that side open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Provider is the read contract the engine needs from the commerce platform.
type Provider interface {
	ListOrders(ctx context.Context, customerID string, r DateRange) ([]Order, error)
}
