package shopify_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/breez/payments-rest-api/internal/breez"
	"github.com/breez/payments-rest-api/internal/logger"
	"github.com/breez/payments-rest-api/internal/shopify"
	"github.com/breez/payments-rest-api/internal/shopify/db"
)

// Mock implementations
type MockShopClient struct {
	mock.Mock
}

func (m *MockShopClient) MarkOrderPaid(orderID string, amount float64, currency string) error {
	args := m.Called(orderID, amount, currency)
	return args.Error(0)
}

func (m *MockShopClient) CancelOrder(orderID, reason string) error {
	args := m.Called(orderID, reason)
	return args.Error(0)
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) ReceivePayment(ctx context.Context, amountSat uint64, method, description, assetID string) (*breez.ReceiveResult, error) {
	args := m.Called(ctx, amountSat, method, description, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breez.ReceiveResult), args.Error(1)
}

func (m *MockProvider) ExchangeRate(currency string) (map[string]float64, error) {
	args := m.Called(currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]float64), args.Error(1)
}

func (m *MockProvider) ParseInput(input string) (*breez.ParsedInput, error) {
	args := m.Called(input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breez.ParsedInput), args.Error(1)
}

// fakeLocker grants the lock unless told otherwise.
type fakeLocker struct {
	denied bool
}

func (f *fakeLocker) AcquireCheckout(token string) (bool, error) { return !f.denied, nil }
func (f *fakeLocker) ReleaseCheckout(token string) error         { return nil }

func setupService(t *testing.T, client *MockShopClient, provider *MockProvider, locker *fakeLocker) *shopify.Service {
	store, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory order store: %v", err)
	}
	t.Cleanup(func() { store.Bun.Close() })

	return shopify.NewService(store, client, locker, func() (shopify.PaymentProvider, error) {
		return provider, nil
	}, logger.NewLogger())
}

func expectInvoice(provider *MockProvider, amountSat uint64, destination, hash string) {
	provider.On("ReceivePayment", mock.Anything, amountSat, "LIGHTNING", mock.Anything, "").
		Return(&breez.ReceiveResult{Destination: destination, FeesSat: 3}, nil)
	provider.On("ParseInput", destination).Return(&breez.ParsedInput{
		Type: "bolt11",
		Data: map[string]interface{}{"PaymentHash": hash},
	}, nil)
}

func TestProcessCheckoutCreatesInvoice(t *testing.T) {
	client := new(MockShopClient)
	provider := new(MockProvider)
	service := setupService(t, client, provider, &fakeLocker{})

	// 5 USD at 50000 USD/BTC is 10000 sats.
	provider.On("ExchangeRate", "USD").Return(map[string]float64{"USD": 50000}, nil)
	expectInvoice(provider, 10000, "lnbc10u...", "hash1")

	resp, err := service.ProcessCheckout(context.Background(), shopify.CheckoutRequest{
		Token:      "tok1",
		TotalPrice: 5,
		Currency:   "USD",
	})

	assert.NoError(t, err)
	assert.Equal(t, "lnbc10u...", resp.Invoice)
	assert.Equal(t, "hash1", resp.InvoiceID)
	assert.Equal(t, uint64(10000), resp.AmountSat)
	assert.Equal(t, db.StatusPending, resp.Status)
}

func TestProcessCheckoutReusesPendingInvoice(t *testing.T) {
	client := new(MockShopClient)
	provider := new(MockProvider)
	service := setupService(t, client, provider, &fakeLocker{})

	provider.On("ExchangeRate", "USD").Return(map[string]float64{"USD": 50000}, nil)
	expectInvoice(provider, 10000, "lnbc10u...", "hash1")

	req := shopify.CheckoutRequest{Token: "tok1", TotalPrice: 5, Currency: "USD"}

	first, err := service.ProcessCheckout(context.Background(), req)
	assert.NoError(t, err)

	// Redelivered checkout webhook gets the same invoice back.
	second, err := service.ProcessCheckout(context.Background(), req)
	assert.NoError(t, err)
	assert.Equal(t, first.Invoice, second.Invoice)
	provider.AssertNumberOfCalls(t, "ReceivePayment", 1)
}

func TestProcessCheckoutLocked(t *testing.T) {
	client := new(MockShopClient)
	provider := new(MockProvider)
	service := setupService(t, client, provider, &fakeLocker{denied: true})

	_, err := service.ProcessCheckout(context.Background(), shopify.CheckoutRequest{
		Token:      "tok1",
		TotalPrice: 5,
		Currency:   "USD",
	})

	assert.ErrorIs(t, err, shopify.ErrCheckoutInProgress)
	provider.AssertNotCalled(t, "ReceivePayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessCheckoutValidation(t *testing.T) {
	client := new(MockShopClient)
	provider := new(MockProvider)
	service := setupService(t, client, provider, &fakeLocker{})

	_, err := service.ProcessCheckout(context.Background(), shopify.CheckoutRequest{TotalPrice: 5, Currency: "USD"})
	assert.Error(t, err)

	_, err = service.ProcessCheckout(context.Background(), shopify.CheckoutRequest{Token: "tok", Currency: "USD"})
	assert.Error(t, err)

	_, err = service.ProcessCheckout(context.Background(), shopify.CheckoutRequest{Token: "tok", TotalPrice: 5})
	assert.Error(t, err)
}

func TestNotifyPaymentSettlesOrder(t *testing.T) {
	client := new(MockShopClient)
	provider := new(MockProvider)
	service := setupService(t, client, provider, &fakeLocker{})

	provider.On("ExchangeRate", "USD").Return(map[string]float64{"USD": 50000}, nil)
	expectInvoice(provider, 10000, "lnbc10u...", "hash1")

	_, err := service.ProcessCheckout(context.Background(), shopify.CheckoutRequest{
		Token:      "tok1",
		TotalPrice: 5,
		Currency:   "USD",
	})
	assert.NoError(t, err)

	// Link the shop order, then settle the invoice.
	client.On("MarkOrderPaid", "9001", 5.0, "USD").Return(nil)
	assert.NoError(t, service.LinkShopifyOrder("tok1", "9001"))

	service.NotifyPayment("hash1", breez.StateSucceeded, nil, "")

	order, err := service.GetOrder("tok1")
	assert.NoError(t, err)
	assert.Equal(t, db.StatusPaid, order.Status)
	client.AssertExpectations(t)
}

func TestNotifyPaymentIgnoresUnknownInvoice(t *testing.T) {
	client := new(MockShopClient)
	provider := new(MockProvider)
	service := setupService(t, client, provider, &fakeLocker{})

	// Nothing to settle, nothing to capture.
	service.NotifyPayment("unknown-hash", breez.StateSucceeded, nil, "")
	client.AssertNotCalled(t, "MarkOrderPaid", mock.Anything, mock.Anything, mock.Anything)
}

func TestNotifyPaymentIgnoresInFlightStates(t *testing.T) {
	client := new(MockShopClient)
	provider := new(MockProvider)
	service := setupService(t, client, provider, &fakeLocker{})

	provider.On("ExchangeRate", "USD").Return(map[string]float64{"USD": 50000}, nil)
	expectInvoice(provider, 10000, "lnbc10u...", "hash1")

	_, err := service.ProcessCheckout(context.Background(), shopify.CheckoutRequest{
		Token:      "tok1",
		TotalPrice: 5,
		Currency:   "USD",
	})
	assert.NoError(t, err)

	service.NotifyPayment("hash1", breez.StatePending, nil, "")

	order, err := service.GetOrder("tok1")
	assert.NoError(t, err)
	assert.Equal(t, db.StatusPending, order.Status)
}

func TestNotifyPaymentExpiresUnpaidOrder(t *testing.T) {
	client := new(MockShopClient)
	provider := new(MockProvider)
	service := setupService(t, client, provider, &fakeLocker{})

	provider.On("ExchangeRate", "USD").Return(map[string]float64{"USD": 50000}, nil)
	expectInvoice(provider, 10000, "lnbc10u...", "hash1")

	_, err := service.ProcessCheckout(context.Background(), shopify.CheckoutRequest{
		Token:      "tok1",
		TotalPrice: 5,
		Currency:   "USD",
	})
	assert.NoError(t, err)
	assert.NoError(t, service.LinkShopifyOrder("tok1", "9001"))

	// Invoice failure expires the order and cancels it in the shop.
	client.On("CancelOrder", "9001", mock.Anything).Return(nil)
	service.NotifyPayment("hash1", breez.StateFailed, nil, "invoice expired")

	order, err := service.GetOrder("tok1")
	assert.NoError(t, err)
	assert.Equal(t, db.StatusExpired, order.Status)
	client.AssertExpectations(t)

	// A late success must not resurrect an expired order.
	service.NotifyPayment("hash1", breez.StateSucceeded, nil, "")
	order, _ = service.GetOrder("tok1")
	assert.Equal(t, db.StatusExpired, order.Status)
	client.AssertNotCalled(t, "MarkOrderPaid", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleOrderWebhooks(t *testing.T) {
	client := new(MockShopClient)
	provider := new(MockProvider)
	service := setupService(t, client, provider, &fakeLocker{})

	provider.On("ExchangeRate", "USD").Return(map[string]float64{"USD": 50000}, nil)
	expectInvoice(provider, 10000, "lnbc10u...", "hash1")

	_, err := service.ProcessCheckout(context.Background(), shopify.CheckoutRequest{
		Token:      "tok1",
		TotalPrice: 5,
		Currency:   "USD",
	})
	assert.NoError(t, err)
	assert.NoError(t, service.LinkShopifyOrder("tok1", "9001"))

	assert.NoError(t, service.HandleOrderPaid("9001"))
	order, _ := service.GetOrder("tok1")
	assert.Equal(t, db.StatusCompleted, order.Status)

	assert.NoError(t, service.HandleOrderCancelled("9001"))
	order, _ = service.GetOrder("tok1")
	assert.Equal(t, db.StatusCancelled, order.Status)

	assert.ErrorIs(t, service.HandleOrderPaid("no-such-order"), shopify.ErrOrderNotFound)
}
