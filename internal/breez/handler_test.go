package breez_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/breez/payments-rest-api/internal/breez"
	"github.com/breez/payments-rest-api/internal/config"
	"github.com/breez/payments-rest-api/internal/logger"
)

// MockEngine implements breez.Engine for handler tests.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) AddListener(handler breez.EventHandler) error {
	args := m.Called(handler)
	return args.Error(0)
}

func (m *MockEngine) Disconnect() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockEngine) GetInfo() (*breez.WalletInfo, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breez.WalletInfo), args.Error(1)
}

func (m *MockEngine) GetPaymentByHash(hash string) (*breez.PaymentRecord, error) {
	args := m.Called(hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breez.PaymentRecord), args.Error(1)
}

func (m *MockEngine) GetPaymentBySwapID(swapID string) (*breez.PaymentRecord, error) {
	args := m.Called(swapID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breez.PaymentRecord), args.Error(1)
}

func (m *MockEngine) ListPayments(filter breez.ListFilter) ([]breez.PaymentRecord, error) {
	args := m.Called(filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]breez.PaymentRecord), args.Error(1)
}

func (m *MockEngine) SendPayment(ctx context.Context, req breez.SendRequest) (*breez.SendResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breez.SendResult), args.Error(1)
}

func (m *MockEngine) ReceivePayment(ctx context.Context, req breez.ReceiveRequest) (*breez.ReceiveResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breez.ReceiveResult), args.Error(1)
}

func (m *MockEngine) PreparePayOnchain(req breez.OnchainPrepareRequest) (*breez.OnchainPrepareResult, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breez.OnchainPrepareResult), args.Error(1)
}

func (m *MockEngine) PayOnchain(address string, prepared *breez.OnchainPrepareResult) error {
	args := m.Called(address, prepared)
	return args.Error(0)
}

func (m *MockEngine) ListRefundables() ([]breez.RefundableSwap, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]breez.RefundableSwap), args.Error(1)
}

func (m *MockEngine) Refund(req breez.RefundRequest) error {
	args := m.Called(req)
	return args.Error(0)
}

func (m *MockEngine) RescanSwaps() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockEngine) FetchLightningLimits() (*breez.Limits, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breez.Limits), args.Error(1)
}

func (m *MockEngine) FetchOnchainLimits() (*breez.Limits, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breez.Limits), args.Error(1)
}

func (m *MockEngine) RecommendedFees() (map[string]uint64, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]uint64), args.Error(1)
}

func (m *MockEngine) Parse(input string) (*breez.ParsedInput, error) {
	args := m.Called(input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breez.ParsedInput), args.Error(1)
}

func (m *MockEngine) PrepareLnurlPay(req breez.LnurlPayRequest) (*breez.LnurlPayPrepared, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breez.LnurlPayPrepared), args.Error(1)
}

func (m *MockEngine) LnurlPay(prepared *breez.LnurlPayPrepared) (map[string]interface{}, error) {
	args := m.Called(prepared)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

func (m *MockEngine) LnurlAuth(input *breez.ParsedInput) (bool, error) {
	args := m.Called(input)
	return args.Bool(0), args.Error(1)
}

func (m *MockEngine) LnurlWithdraw(input *breez.ParsedInput, amountMsat uint64, comment string) (map[string]interface{}, error) {
	args := m.Called(input, amountMsat, comment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

func (m *MockEngine) PrepareBuyBitcoin(provider string, amountSat uint64) (*breez.BuyBitcoinPrepared, error) {
	args := m.Called(provider, amountSat)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breez.BuyBitcoinPrepared), args.Error(1)
}

func (m *MockEngine) BuyBitcoin(prepared *breez.BuyBitcoinPrepared) (string, error) {
	args := m.Called(prepared)
	return args.String(0), args.Error(1)
}

func (m *MockEngine) FetchFiatRates() ([]breez.FiatRate, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]breez.FiatRate), args.Error(1)
}

func (m *MockEngine) ListFiatCurrencies() ([]string, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockEngine) FetchProposedFees(swapID string) (*breez.ProposedFees, error) {
	args := m.Called(swapID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breez.ProposedFees), args.Error(1)
}

func (m *MockEngine) AcceptProposedFees(fees *breez.ProposedFees) error {
	args := m.Called(fees)
	return args.Error(0)
}

func (m *MockEngine) SignMessage(message string) (*breez.SignedMessage, error) {
	args := m.Called(message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*breez.SignedMessage), args.Error(1)
}

func (m *MockEngine) CheckMessage(message, pubkey, signature string) (bool, error) {
	args := m.Called(message, pubkey, signature)
	return args.Bool(0), args.Error(1)
}

func (m *MockEngine) RegisterWebhook(url string) error {
	args := m.Called(url)
	return args.Error(0)
}

func (m *MockEngine) UnregisterWebhook() error {
	args := m.Called()
	return args.Error(0)
}

func testBreezConfig(t *testing.T) config.BreezConfig {
	return config.BreezConfig{
		APIKey:     "test-api-key",
		Mnemonic:   "test mnemonic words",
		Network:    "testnet",
		WorkingDir: t.TempDir(),
	}
}

// newTestHandler builds a handler over the mock engine. AddListener
// fires a SYNCED event immediately so construction does not sit in the
// initial sync wait.
func newTestHandler(t *testing.T, engine *MockEngine) *breez.Handler {
	engine.On("AddListener", mock.Anything).Run(func(args mock.Arguments) {
		handler := args.Get(0).(breez.EventHandler)
		handler.OnEvent(breez.Event{Kind: breez.EventSynced})
	}).Return(nil)

	connect := func(apiKey, mnemonic, network, workingDir string) (breez.Engine, error) {
		return engine, nil
	}

	handler, err := breez.NewHandler(testBreezConfig(t), connect, logger.NewLogger())
	assert.NoError(t, err)
	return handler
}

func TestNewHandlerMissingCredentials(t *testing.T) {
	connect := func(apiKey, mnemonic, network, workingDir string) (breez.Engine, error) {
		t.Fatal("connect must not be called without credentials")
		return nil, nil
	}
	log := logger.NewLogger()

	cfg := testBreezConfig(t)
	cfg.APIKey = ""
	_, err := breez.NewHandler(cfg, connect, log)
	assert.ErrorIs(t, err, breez.ErrMissingAPIKey)

	cfg = testBreezConfig(t)
	cfg.Mnemonic = ""
	_, err = breez.NewHandler(cfg, connect, log)
	assert.ErrorIs(t, err, breez.ErrMissingMnemonic)
}

func TestSendPaymentAmountValidation(t *testing.T) {
	engine := new(MockEngine)
	handler := newTestHandler(t, engine)
	amount := uint64(1000)
	assetAmount := 1.5

	cases := []struct {
		name string
		req  breez.SendRequest
	}{
		{"no amount mode", breez.SendRequest{Destination: "dest"}},
		{"amount and drain", breez.SendRequest{Destination: "dest", AmountSat: &amount, Drain: true}},
		{"asset amount without asset id", breez.SendRequest{Destination: "dest", AmountAsset: &assetAmount}},
		{"asset id without asset amount", breez.SendRequest{Destination: "dest", AssetID: "asset"}},
		{"asset and bitcoin amounts", breez.SendRequest{Destination: "dest", AmountSat: &amount, AmountAsset: &assetAmount, AssetID: "asset"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := handler.SendPayment(context.Background(), tc.req)
			assert.ErrorIs(t, err, breez.ErrInvalidAmount)
		})
	}

	// None of the invalid requests may reach the engine.
	engine.AssertNotCalled(t, "SendPayment", mock.Anything, mock.Anything)
}

func TestSendPaymentSuccess(t *testing.T) {
	engine := new(MockEngine)
	handler := newTestHandler(t, engine)

	amount := uint64(2500)
	req := breez.SendRequest{Destination: "lnbc1...", AmountSat: &amount}
	engine.On("SendPayment", mock.Anything, req).Return(&breez.SendResult{
		Status:      breez.StatePending,
		Destination: "lnbc1...",
		FeesSat:     12,
		PaymentHash: "hash",
	}, nil)

	result, err := handler.SendPayment(context.Background(), req)
	assert.NoError(t, err)
	assert.Equal(t, breez.StatePending, result.Status)
	assert.Equal(t, uint64(12), result.FeesSat)
	engine.AssertExpectations(t)
}

func TestReceivePaymentInvalidMethod(t *testing.T) {
	engine := new(MockEngine)
	handler := newTestHandler(t, engine)

	_, err := handler.ReceivePayment(context.Background(), 1000, "CARRIER_PIGEON", "", "")
	assert.ErrorIs(t, err, breez.ErrInvalidPaymentMethod)
	engine.AssertNotCalled(t, "ReceivePayment", mock.Anything, mock.Anything)
}

func TestReceivePaymentMethodIsCaseInsensitive(t *testing.T) {
	engine := new(MockEngine)
	handler := newTestHandler(t, engine)

	engine.On("ReceivePayment", mock.Anything, breez.ReceiveRequest{
		AmountSat: 1000,
		Method:    breez.MethodLightning,
	}).Return(&breez.ReceiveResult{Destination: "lnbc1...", FeesSat: 3}, nil)

	result, err := handler.ReceivePayment(context.Background(), 1000, "lightning", "", "")
	assert.NoError(t, err)
	assert.Equal(t, "lnbc1...", result.Destination)
	engine.AssertExpectations(t)
}

func TestCheckPaymentStatusFreshLookupByHash(t *testing.T) {
	engine := new(MockEngine)
	handler := newTestHandler(t, engine)

	record := &breez.PaymentRecord{
		Timestamp:   1700000000,
		AmountSat:   5000,
		FeesSat:     10,
		Status:      breez.StateSucceeded,
		PaymentHash: "hash",
	}
	engine.On("GetPaymentByHash", "hash").Return(record, nil)

	result, err := handler.CheckPaymentStatus("hash")
	assert.NoError(t, err)
	assert.Equal(t, breez.StateSucceeded, result.Status)
	assert.Equal(t, record, result.Payment)
	assert.Equal(t, uint64(5000), *result.AmountSat)

	// The fresh lookup lands in the tracker too.
	assert.True(t, handler.Tracker().IsPaid("hash"))
}

func TestCheckPaymentStatusFallsBackToSwapID(t *testing.T) {
	engine := new(MockEngine)
	handler := newTestHandler(t, engine)

	record := &breez.PaymentRecord{Status: breez.StatePending, SwapID: "swap"}
	engine.On("GetPaymentByHash", "swap").Return(nil, nil)
	engine.On("GetPaymentBySwapID", "swap").Return(record, nil)

	result, err := handler.CheckPaymentStatus("swap")
	assert.NoError(t, err)
	assert.Equal(t, breez.StatePending, result.Status)
	assert.Equal(t, record, result.Payment)
}

func TestCheckPaymentStatusPaidSetFallback(t *testing.T) {
	engine := new(MockEngine)
	handler := newTestHandler(t, engine)

	engine.On("GetPaymentByHash", "hash").Return(nil, nil)
	engine.On("GetPaymentBySwapID", "hash").Return(nil, nil)
	handler.Tracker().MarkPaid("hash")

	result, err := handler.CheckPaymentStatus("hash")
	assert.NoError(t, err)
	assert.Equal(t, breez.StateSucceeded, result.Status)
	assert.Nil(t, result.Payment)
}

func TestCheckPaymentStatusCachedFallback(t *testing.T) {
	engine := new(MockEngine)
	handler := newTestHandler(t, engine)

	engine.On("GetPaymentByHash", "hash").Return(nil, nil)
	engine.On("GetPaymentBySwapID", "hash").Return(nil, nil)
	handler.Tracker().UpdateState("hash", breez.StateFailed, nil, "route not found")

	result, err := handler.CheckPaymentStatus("hash")
	assert.NoError(t, err)
	assert.Equal(t, breez.StateFailed, result.Status)
	assert.Equal(t, "route not found", result.Error)
}

func TestCheckPaymentStatusUnknown(t *testing.T) {
	engine := new(MockEngine)
	handler := newTestHandler(t, engine)

	engine.On("GetPaymentByHash", "nothing").Return(nil, nil)
	engine.On("GetPaymentBySwapID", "nothing").Return(nil, nil)

	result, err := handler.CheckPaymentStatus("nothing")
	assert.NoError(t, err)
	assert.Equal(t, breez.StateUnknown, result.Status)
	assert.Equal(t, "Payment not found", result.Error)
}

func TestCheckPaymentStatusEmptyIdentifier(t *testing.T) {
	engine := new(MockEngine)
	handler := newTestHandler(t, engine)

	_, err := handler.CheckPaymentStatus("")
	assert.ErrorIs(t, err, breez.ErrInvalidIdentifier)
}

func TestHandleWaitingFeeAcceptance(t *testing.T) {
	engine := new(MockEngine)
	handler := newTestHandler(t, engine)

	waiting := []breez.PaymentRecord{
		{Status: breez.StateWaitingFeeAcceptance, SwapID: "swap1"},
		{Status: breez.StateWaitingFeeAcceptance}, // no swap id, skipped
	}
	engine.On("ListPayments", breez.ListFilter{
		States: []breez.PaymentState{breez.StateWaitingFeeAcceptance},
	}).Return(waiting, nil)

	fees := &breez.ProposedFees{SwapID: "swap1", PayerAmountSat: 10000, FeesSat: 50}
	engine.On("FetchProposedFees", "swap1").Return(fees, nil)
	engine.On("AcceptProposedFees", fees).Return(nil)

	handled, err := handler.HandleWaitingFeeAcceptance()
	assert.NoError(t, err)
	assert.Equal(t, 1, handled)
	engine.AssertExpectations(t)
}

func TestExchangeRate(t *testing.T) {
	engine := new(MockEngine)
	handler := newTestHandler(t, engine)

	engine.On("FetchFiatRates").Return([]breez.FiatRate{
		{Coin: "USD", Value: 64000},
		{Coin: "EUR", Value: 59000},
	}, nil)

	rates, err := handler.ExchangeRate("usd")
	assert.NoError(t, err)
	assert.Equal(t, map[string]float64{"USD": 64000}, rates)

	all, err := handler.ExchangeRate("")
	assert.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = handler.ExchangeRate("XYZ")
	assert.ErrorIs(t, err, breez.ErrInvalidArgument)
}

func TestPrepareLnurlPayQuotesWithoutPaying(t *testing.T) {
	engine := new(MockEngine)
	handler := newTestHandler(t, engine)

	parsed := &breez.ParsedInput{Type: "lnurl_pay"}
	engine.On("Parse", "lnurl1abc").Return(parsed, nil)
	engine.On("PrepareLnurlPay", breez.LnurlPayRequest{
		Input:     parsed,
		AmountSat: 5000,
	}).Return(&breez.LnurlPayPrepared{FeesSat: 42}, nil)

	prepared, err := handler.PrepareLnurlPay("lnurl1abc", 5000, "", false)
	assert.NoError(t, err)
	assert.Equal(t, uint64(42), prepared.FeesSat)

	// A quote must never execute the payment.
	engine.AssertNotCalled(t, "LnurlPay", mock.Anything)
	engine.AssertExpectations(t)
}

func TestPrepareLnurlPayRejectsNonPayInput(t *testing.T) {
	engine := new(MockEngine)
	handler := newTestHandler(t, engine)

	engine.On("Parse", "lnurl1w").Return(&breez.ParsedInput{Type: "lnurl_withdraw"}, nil)

	_, err := handler.PrepareLnurlPay("lnurl1w", 5000, "", false)
	assert.ErrorIs(t, err, breez.ErrInvalidArgument)
	engine.AssertNotCalled(t, "PrepareLnurlPay", mock.Anything)
}

func TestRegisterWebhookRequiresHTTPS(t *testing.T) {
	engine := new(MockEngine)
	handler := newTestHandler(t, engine)

	err := handler.RegisterWebhook("http://insecure.example.com/hook")
	assert.ErrorIs(t, err, breez.ErrInvalidArgument)
	engine.AssertNotCalled(t, "RegisterWebhook", mock.Anything)

	engine.On("RegisterWebhook", "https://example.com/hook").Return(nil)
	assert.NoError(t, handler.RegisterWebhook("https://example.com/hook"))
	engine.AssertExpectations(t)
}

func TestManagerReinitializeBuildsFreshHandler(t *testing.T) {
	buildEngine := func() *MockEngine {
		engine := new(MockEngine)
		engine.On("AddListener", mock.Anything).Run(func(args mock.Arguments) {
			args.Get(0).(breez.EventHandler).OnEvent(breez.Event{Kind: breez.EventSynced})
		}).Return(nil)
		engine.On("Disconnect").Return(nil)
		return engine
	}

	connects := 0
	connect := func(apiKey, mnemonic, network, workingDir string) (breez.Engine, error) {
		connects++
		return buildEngine(), nil
	}

	manager := breez.NewManager(testBreezConfig(t), connect, logger.NewLogger())

	first, err := manager.Handler()
	assert.NoError(t, err)
	assert.Equal(t, 1, connects)

	// Second call reuses the existing handler.
	again, err := manager.Handler()
	assert.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 1, connects)

	rebuilt, err := manager.Reinitialize()
	assert.NoError(t, err)
	assert.NotSame(t, first, rebuilt)
	assert.Equal(t, 2, connects)
}
