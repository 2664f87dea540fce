package shopify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/breez/payments-rest-api/internal/breez"
	"github.com/breez/payments-rest-api/internal/logger"
	"github.com/breez/payments-rest-api/internal/shopify/db"
)

var (
	ErrCheckoutInProgress = errors.New("another request is already processing this checkout")
	ErrOrderNotFound      = errors.New("order not found")
)

// PaymentProvider is the slice of the payment handler the checkout flow
// needs. Satisfied by *breez.Handler.
type PaymentProvider interface {
	ReceivePayment(ctx context.Context, amountSat uint64, method, description, assetID string) (*breez.ReceiveResult, error)
	ExchangeRate(currency string) (map[string]float64, error)
	ParseInput(input string) (*breez.ParsedInput, error)
}

// PaymentSource yields the current payment provider. Indirect because
// the handler can be rebuilt behind the manager at any time.
type PaymentSource func() (PaymentProvider, error)

// ShopClient is the Admin API surface the service calls on payment.
type ShopClient interface {
	MarkOrderPaid(orderID string, amount float64, currency string) error
	CancelOrder(orderID, reason string) error
}

// CheckoutLocker serializes checkout processing. Satisfied by the
// Redis lock.
type CheckoutLocker interface {
	AcquireCheckout(token string) (bool, error)
	ReleaseCheckout(token string) error
}

// CheckoutRequest is the inbound checkout to invoice.
type CheckoutRequest struct {
	Token      string  `json:"checkout_token"`
	TotalPrice float64 `json:"total_price"`
	Currency   string  `json:"currency"`
}

// CheckoutResponse carries the Lightning invoice for the checkout.
type CheckoutResponse struct {
	Invoice   string         `json:"invoice"`
	InvoiceID string         `json:"invoice_id"`
	AmountSat uint64         `json:"amount_sat"`
	Status    db.OrderStatus `json:"status"`
}

// Service turns Shopify checkouts into Lightning invoices and settles
// the shop order when the invoice is paid. Also implements
// breez.Notifier so payment transitions reach it directly.
type Service struct {
	db       *db.DB
	client   ShopClient
	lock     CheckoutLocker
	payments PaymentSource
	log      *logger.Logger
}

func NewService(store *db.DB, client ShopClient, lock CheckoutLocker, payments PaymentSource, log *logger.Logger) *Service {
	return &Service{
		db:       store,
		client:   client,
		lock:     lock,
		payments: payments,
		log:      log,
	}
}

// ProcessCheckout creates (or reuses) the invoice for a checkout. The
// per-token lock keeps a double-delivered checkout webhook from minting
// two invoices for one cart.
func (s *Service) ProcessCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	if req.Token == "" {
		return nil, fmt.Errorf("checkout_token must be a non-empty string")
	}
	if req.TotalPrice <= 0 {
		return nil, fmt.Errorf("total_price must be positive")
	}
	if req.Currency == "" {
		return nil, fmt.Errorf("currency must be a non-empty string")
	}

	acquired, err := s.lock.AcquireCheckout(req.Token)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrCheckoutInProgress
	}
	defer func() {
		if err := s.lock.ReleaseCheckout(req.Token); err != nil {
			s.log.Warn("ORDER", fmt.Sprintf("failed to release checkout lock for %s: %v", req.Token, err))
		}
	}()

	if existing, err := s.db.GetOrderByCheckoutToken(req.Token); err == nil {
		if existing.Status == db.StatusPending && existing.Invoice != "" {
			s.log.LogOrder("CHECKOUT", req.Token, "reusing pending invoice")
			return &CheckoutResponse{
				Invoice:   existing.Invoice,
				InvoiceID: existing.InvoiceID,
				AmountSat: existing.AmountSat,
				Status:    existing.Status,
			}, nil
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("look up checkout: %w", err)
	}

	provider, err := s.payments()
	if err != nil {
		return nil, fmt.Errorf("payment engine unavailable: %w", err)
	}

	amountSat, err := s.convertToSats(provider, req.TotalPrice, req.Currency)
	if err != nil {
		return nil, err
	}

	received, err := provider.ReceivePayment(ctx, amountSat, "LIGHTNING", "Checkout "+req.Token, "")
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	invoiceID := s.resolveInvoiceID(provider, received.Destination)

	order := db.Order{
		ID:             uuid.New().String(),
		CheckoutToken:  req.Token,
		InvoiceID:      invoiceID,
		Invoice:        received.Destination,
		AmountSat:      amountSat,
		CurrencyAmount: req.TotalPrice,
		Currency:       strings.ToUpper(req.Currency),
		Status:         db.StatusPending,
		CreatedAt:      time.Now(),
	}
	if err := s.db.CreateOrder(order); err != nil {
		return nil, fmt.Errorf("store order: %w", err)
	}

	s.log.LogOrder("CHECKOUT", req.Token, fmt.Sprintf("invoice for %d sat created", amountSat))
	return &CheckoutResponse{
		Invoice:   order.Invoice,
		InvoiceID: order.InvoiceID,
		AmountSat: order.AmountSat,
		Status:    order.Status,
	}, nil
}

// convertToSats prices the fiat total in satoshis at the current rate.
func (s *Service) convertToSats(provider PaymentProvider, amount float64, currency string) (uint64, error) {
	rates, err := provider.ExchangeRate(currency)
	if err != nil {
		return 0, fmt.Errorf("fetch exchange rate: %w", err)
	}
	rate := rates[strings.ToUpper(currency)]
	if rate <= 0 {
		return 0, fmt.Errorf("no usable exchange rate for %s", currency)
	}
	return uint64(math.Round(amount / rate * 1e8)), nil
}

// resolveInvoiceID extracts the payment hash from a bolt11 invoice so
// engine notifications correlate to the order. Falls back to the
// destination string itself, which the tracker also accepts as an
// identifier.
func (s *Service) resolveInvoiceID(provider PaymentProvider, destination string) string {
	parsed, err := provider.ParseInput(destination)
	if err == nil && parsed.Type == "bolt11" {
		if hash, ok := parsed.Data["PaymentHash"].(string); ok && hash != "" {
			return hash
		}
	}
	return destination
}

// NotifyPayment reacts to payment transitions for tracked invoices: a
// paid invoice settles its order, a failed or refunded one expires it
// and cancels the linked Shopify order. Transitions for identifiers
// with no matching order are ignored.
func (s *Service) NotifyPayment(identifier string, status breez.PaymentState, payment *breez.PaymentRecord, errMsg string) {
	switch {
	case status.IsPaidState():
		s.settleOrder(identifier)
	case status == breez.StateFailed || status == breez.StateRefunded:
		s.expireOrder(identifier)
	}
}

func (s *Service) settleOrder(identifier string) {
	order, err := s.db.GetOrderByInvoiceID(identifier)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn("ORDER", fmt.Sprintf("order lookup failed for invoice %s: %v", identifier, err))
		}
		return
	}
	if order.Status != db.StatusPending {
		return
	}

	if err := s.db.UpdateOrderStatus(order.CheckoutToken, db.StatusPaid); err != nil {
		s.log.Error("ORDER", fmt.Sprintf("Error marking checkout %s paid: %v", order.CheckoutToken, err))
		return
	}
	s.log.LogOrder("PAID", order.CheckoutToken, fmt.Sprintf("settled by invoice %s", identifier))

	if order.ShopifyOrderID != "" {
		if err := s.client.MarkOrderPaid(order.ShopifyOrderID, order.CurrencyAmount, order.Currency); err != nil {
			s.log.Error("ORDER", fmt.Sprintf("Error capturing shopify order %s: %v", order.ShopifyOrderID, err))
		}
	}
}

func (s *Service) expireOrder(identifier string) {
	order, err := s.db.GetOrderByInvoiceID(identifier)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn("ORDER", fmt.Sprintf("order lookup failed for invoice %s: %v", identifier, err))
		}
		return
	}
	if order.Status != db.StatusPending {
		return
	}

	if err := s.db.UpdateOrderStatus(order.CheckoutToken, db.StatusExpired); err != nil {
		s.log.Error("ORDER", fmt.Sprintf("Error expiring checkout %s: %v", order.CheckoutToken, err))
		return
	}
	s.log.LogOrder("EXPIRE", order.CheckoutToken, fmt.Sprintf("invoice %s was not paid", identifier))

	if order.ShopifyOrderID != "" {
		if err := s.client.CancelOrder(order.ShopifyOrderID, "Lightning invoice was not paid"); err != nil {
			s.log.Error("ORDER", fmt.Sprintf("Error cancelling shopify order %s: %v", order.ShopifyOrderID, err))
		}
	}
}

// LinkShopifyOrder attaches the Shopify order id once the shop creates
// the order, and captures immediately when payment already landed.
func (s *Service) LinkShopifyOrder(checkoutToken, shopifyOrderID string) error {
	order, err := s.db.GetOrderByCheckoutToken(checkoutToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("look up checkout: %w", err)
	}

	order.ShopifyOrderID = shopifyOrderID
	if err := s.db.UpdateOrder(*order); err != nil {
		return fmt.Errorf("link shopify order: %w", err)
	}

	if order.Status == db.StatusPaid {
		if err := s.client.MarkOrderPaid(shopifyOrderID, order.CurrencyAmount, order.Currency); err != nil {
			s.log.Error("ORDER", fmt.Sprintf("Error capturing shopify order %s: %v", shopifyOrderID, err))
		}
	}
	return nil
}

// HandleOrderPaid processes the orders/paid webhook: the shop confirmed
// settlement, close out our record.
func (s *Service) HandleOrderPaid(shopifyOrderID string) error {
	order, err := s.db.GetOrderByShopifyID(shopifyOrderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("look up shopify order: %w", err)
	}
	if err := s.db.UpdateOrderStatus(order.CheckoutToken, db.StatusCompleted); err != nil {
		return fmt.Errorf("complete order: %w", err)
	}
	s.log.LogOrder("COMPLETE", order.CheckoutToken, fmt.Sprintf("completed via shopify order %s", shopifyOrderID))
	return nil
}

// HandleOrderCancelled processes the orders/cancelled webhook.
func (s *Service) HandleOrderCancelled(shopifyOrderID string) error {
	order, err := s.db.GetOrderByShopifyID(shopifyOrderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("look up shopify order: %w", err)
	}
	if err := s.db.UpdateOrderStatus(order.CheckoutToken, db.StatusCancelled); err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	s.log.LogOrder("CANCEL", order.CheckoutToken, fmt.Sprintf("cancelled via shopify order %s", shopifyOrderID))
	return nil
}

// GetOrder returns the stored record for a checkout token.
func (s *Service) GetOrder(checkoutToken string) (*db.Order, error) {
	order, err := s.db.GetOrderByCheckoutToken(checkoutToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}
