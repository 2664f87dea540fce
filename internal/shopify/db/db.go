package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

type DB struct {
	Bun *bun.DB
}

// Open connects to the SQLite order store at path and ensures the
// schema exists.
func Open(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single pooled connection also keeps
	// in-memory databases coherent.
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	d := &DB{Bun: bunDB}
	if err := d.Init(); err != nil {
		_ = bunDB.Close()
		return nil, err
	}
	return d, nil
}

// Init creates the orders table if missing.
func (d *DB) Init() error {
	_, err := d.Bun.NewCreateTable().
		Model((*Order)(nil)).
		IfNotExists().
		Exec(context.Background())
	return err
}

// CreateOrder → insert new order
func (d *DB) CreateOrder(order Order) error {
	_, err := d.Bun.NewInsert().Model(&order).Exec(context.Background())
	return err
}

// GetOrderByCheckoutToken → fetch one order by its checkout token
func (d *DB) GetOrderByCheckoutToken(token string) (*Order, error) {
	var order Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("checkout_token = ?", token).
		Limit(1).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByInvoiceID → fetch the order holding a given payment hash
func (d *DB) GetOrderByInvoiceID(invoiceID string) (*Order, error) {
	var order Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("invoice_id = ?", invoiceID).
		Limit(1).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByShopifyID → fetch the order linked to a Shopify order id
func (d *DB) GetOrderByShopifyID(shopifyOrderID string) (*Order, error) {
	var order Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("shopify_order_id = ?", shopifyOrderID).
		Limit(1).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrder → update the mutable fields
func (d *DB) UpdateOrder(order Order) error {
	order.UpdatedAt = time.Now()
	_, err := d.Bun.NewUpdate().
		Model(&order).
		Column("shopify_order_id", "invoice_id", "invoice", "amount_sat", "status", "updated_at").
		Where("checkout_token = ?", order.CheckoutToken).
		Exec(context.Background())
	return err
}

// UpdateOrderStatus → move one order to a new status
func (d *DB) UpdateOrderStatus(checkoutToken string, status OrderStatus) error {
	_, err := d.Bun.NewUpdate().
		Model((*Order)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("checkout_token = ?", checkoutToken).
		Exec(context.Background())
	return err
}

// ListOrdersByStatus → fetch all orders in a given status
func (d *DB) ListOrdersByStatus(status OrderStatus) ([]Order, error) {
	var orders []Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("status = ?", status).
		Order("created_at DESC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return orders, nil
}
