package breez

import "context"

// EventHandler receives asynchronous engine events. The engine invokes
// it from its own delivery goroutine, concurrently with request traffic.
type EventHandler interface {
	OnEvent(event Event)
}

// Engine is the narrow surface this service consumes from the payment
// SDK. The real implementation wraps the Breez Liquid bindings; tests
// substitute a mock.
type Engine interface {
	AddListener(handler EventHandler) error
	Disconnect() error

	GetInfo() (*WalletInfo, error)
	GetPaymentByHash(hash string) (*PaymentRecord, error)
	GetPaymentBySwapID(swapID string) (*PaymentRecord, error)
	ListPayments(filter ListFilter) ([]PaymentRecord, error)

	SendPayment(ctx context.Context, req SendRequest) (*SendResult, error)
	ReceivePayment(ctx context.Context, req ReceiveRequest) (*ReceiveResult, error)

	PreparePayOnchain(req OnchainPrepareRequest) (*OnchainPrepareResult, error)
	PayOnchain(address string, prepared *OnchainPrepareResult) error
	ListRefundables() ([]RefundableSwap, error)
	Refund(req RefundRequest) error
	RescanSwaps() error

	FetchLightningLimits() (*Limits, error)
	FetchOnchainLimits() (*Limits, error)
	RecommendedFees() (map[string]uint64, error)

	Parse(input string) (*ParsedInput, error)
	PrepareLnurlPay(req LnurlPayRequest) (*LnurlPayPrepared, error)
	LnurlPay(prepared *LnurlPayPrepared) (map[string]interface{}, error)
	LnurlAuth(input *ParsedInput) (bool, error)
	LnurlWithdraw(input *ParsedInput, amountMsat uint64, comment string) (map[string]interface{}, error)

	PrepareBuyBitcoin(provider string, amountSat uint64) (*BuyBitcoinPrepared, error)
	BuyBitcoin(prepared *BuyBitcoinPrepared) (string, error)

	FetchFiatRates() ([]FiatRate, error)
	ListFiatCurrencies() ([]string, error)

	FetchProposedFees(swapID string) (*ProposedFees, error)
	AcceptProposedFees(fees *ProposedFees) error

	SignMessage(message string) (*SignedMessage, error)
	CheckMessage(message, pubkey, signature string) (bool, error)

	RegisterWebhook(url string) error
	UnregisterWebhook() error
}

// ConnectFunc opens a connection to the payment engine. Injected into
// the Manager so tests and the watchdog's reinitialization path share
// one construction route.
type ConnectFunc func(apiKey, mnemonic, network, workingDir string) (Engine, error)
