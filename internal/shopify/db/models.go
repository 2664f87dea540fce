package db

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
	StatusExpired   OrderStatus = "expired"
)

// Order maps a Shopify checkout to the Lightning invoice generated for
// it. InvoiceID is the payment hash used to correlate engine
// notifications back to the checkout.
type Order struct {
	bun.BaseModel `bun:"table:shopify_orders"`

	ID             string      `bun:"id,pk" json:"id"`
	CheckoutToken  string      `bun:"checkout_token,notnull,unique" json:"checkout_token"`
	ShopifyOrderID string      `bun:"shopify_order_id,nullzero" json:"shopify_order_id,omitempty"`
	InvoiceID      string      `bun:"invoice_id,nullzero" json:"invoice_id,omitempty"`
	Invoice        string      `bun:"invoice,nullzero" json:"invoice,omitempty"`
	AmountSat      uint64      `bun:"amount_sat,notnull" json:"amount_sat"`
	CurrencyAmount float64     `bun:"currency_amount,notnull" json:"currency_amount"`
	Currency       string      `bun:"currency,notnull" json:"currency"`
	Status         OrderStatus `bun:"status,notnull" json:"status"`
	CreatedAt      time.Time   `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt      time.Time   `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}
