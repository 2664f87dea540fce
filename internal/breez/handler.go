package breez

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/breez/payments-rest-api/internal/config"
	"github.com/breez/payments-rest-api/internal/logger"
)

const initialSyncTimeout = 10 * time.Second

// Handler wraps one live engine connection, wires the Tracker into its
// event stream, and exposes the request/response operations the HTTP
// layer consumes. Lifecycle (construct, reconnect, disconnect) is owned
// by the Manager.
type Handler struct {
	engine  Engine
	tracker *Tracker
	log     *logger.Logger
}

// NewHandler validates credentials, prepares the working directory,
// opens the engine connection and registers the tracker as the sole
// event listener. The initial sync wait is best effort: a timeout is
// logged, not fatal. Keeping the connection synced is the watchdog's
// job from here on.
func NewHandler(cfg config.BreezConfig, connect ConnectFunc, log *logger.Logger) (*Handler, error) {
	if cfg.APIKey == "" {
		log.Error("BREEZ", "BREEZ_API_KEY not found in environment")
		return nil, ErrMissingAPIKey
	}
	if cfg.Mnemonic == "" {
		log.Error("BREEZ", "BREEZ_SEED_PHRASE not found in environment")
		return nil, ErrMissingMnemonic
	}
	log.Info("BREEZ", "Retrieved credentials from environment successfully")

	workingDir := expandHome(cfg.WorkingDir)
	if err := os.MkdirAll(workingDir, 0700); err != nil {
		log.Error("BREEZ", fmt.Sprintf("Failed to create working directory %s: %v", workingDir, err))
		return nil, fmt.Errorf("create working directory: %w", err)
	}

	engine, err := connect(cfg.APIKey, cfg.Mnemonic, cfg.Network, workingDir)
	if err != nil {
		log.Error("BREEZ", fmt.Sprintf("Failed to connect to engine: %v", err))
		return nil, fmt.Errorf("connect: %w", err)
	}

	h := &Handler{
		engine:  engine,
		tracker: NewTracker(log),
		log:     log,
	}

	if err := engine.AddListener(h.tracker); err != nil {
		_ = engine.Disconnect()
		return nil, fmt.Errorf("register event listener: %w", err)
	}
	log.Info("BREEZ", "Engine connected successfully")

	if !h.WaitForSync(context.Background(), initialSyncTimeout) {
		log.Warn("BREEZ", "initial sync timed out, continuing unsynced")
	}

	return h, nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// Tracker exposes the state tracker for the watchdog and tests.
func (h *Handler) Tracker() *Tracker {
	return h.tracker
}

// IsSynced reports the tracker's sync flag for health checks.
func (h *Handler) IsSynced() bool {
	return h.tracker.IsSynced()
}

// WaitForSync blocks until the tracker sees a SYNCED event, the timeout
// elapses, or ctx is cancelled.
func (h *Handler) WaitForSync(ctx context.Context, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if h.tracker.IsSynced() {
			return true
		}
		if time.Now().After(deadline) {
			h.log.Warn("SYNC", "sync wait timed out")
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// WaitForPayment blocks until the identifier reaches SUCCEEDED or
// PENDING (true), a dead end (FAILED/REFUNDED, false), or the timeout.
func (h *Handler) WaitForPayment(ctx context.Context, identifier string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		if status, ok := h.tracker.Status(identifier); ok {
			switch status {
			case StateSucceeded, StatePending:
				return true
			case StateFailed:
				h.log.LogPayment("WAIT", identifier, "payment failed during wait")
				return false
			case StateRefunded:
				h.log.LogPayment("WAIT", identifier, "swap refunded during wait")
				return false
			}
		}
		if time.Now().After(deadline) {
			h.log.LogPayment("WAIT", identifier, "wait for payment timed out")
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// SendPayment validates the amount mode, prepares and executes the
// send. Exactly one of amount_sat, (amount_asset, asset_id) or drain
// must be supplied; conflicts fail before any engine call.
func (h *Handler) SendPayment(ctx context.Context, req SendRequest) (*SendResult, error) {
	modes := 0
	if req.Drain {
		modes++
	}
	if req.AmountSat != nil {
		modes++
	}
	if req.AmountAsset != nil || req.AssetID != "" {
		if req.AmountAsset == nil || req.AssetID == "" {
			h.log.Warn("PAYMENT", "asset sends require both amount_asset and asset_id")
			return nil, ErrInvalidAmount
		}
		modes++
	}
	if modes != 1 {
		h.log.Warn("PAYMENT", "missing or conflicting amount arguments")
		return nil, ErrInvalidAmount
	}
	if req.Destination == "" {
		return nil, fmt.Errorf("%w: destination must be a non-empty string", ErrInvalidArgument)
	}

	result, err := h.engine.SendPayment(ctx, req)
	if err != nil {
		h.log.Error("PAYMENT", fmt.Sprintf("Error sending payment to %s: %v", req.Destination, err))
		return nil, fmt.Errorf("send payment: %w", err)
	}

	h.log.LogPayment("SEND", req.Destination, fmt.Sprintf("initiated with status %s, fees %d sat", result.Status, result.FeesSat))
	return result, nil
}

// ReceivePayment validates the method, prepares and executes, returning
// the generated destination and the quoted fees.
func (h *Handler) ReceivePayment(ctx context.Context, amountSat uint64, method, description, assetID string) (*ReceiveResult, error) {
	parsed, err := ParsePaymentMethod(method)
	if err != nil {
		h.log.Warn("PAYMENT", fmt.Sprintf("invalid payment method: %s", method))
		return nil, err
	}

	result, err := h.engine.ReceivePayment(ctx, ReceiveRequest{
		AmountSat:   amountSat,
		Method:      parsed,
		Description: description,
		AssetID:     assetID,
	})
	if err != nil {
		h.log.Error("PAYMENT", fmt.Sprintf("Error receiving payment (%s) for amount %d: %v", method, amountSat, err))
		return nil, fmt.Errorf("receive payment: %w", err)
	}

	h.log.LogPayment("RECEIVE", result.Destination, fmt.Sprintf("destination generated, fees %d sat", result.FeesSat))
	return result, nil
}

// ListPayments passes the filter through to the engine.
func (h *Handler) ListPayments(filter ListFilter) ([]PaymentRecord, error) {
	payments, err := h.engine.ListPayments(filter)
	if err != nil {
		h.log.Error("PAYMENT", fmt.Sprintf("Error listing payments: %v", err))
		return nil, fmt.Errorf("list payments: %w", err)
	}
	h.log.Debug("PAYMENT", fmt.Sprintf("listed %d payments", len(payments)))
	return payments, nil
}

// CheckPaymentStatus resolves a payment by identifier. A fresh engine
// lookup is attempted first, by payment hash then swap id, and its
// result written back into the tracker. When both lookups fail the
// fallback order is: paid set (report SUCCEEDED, no details), cached
// status, then UNKNOWN with an explicit not-found error. Not-found is a
// normal result, never an error return.
func (h *Handler) CheckPaymentStatus(identifier string) (*StatusResult, error) {
	if identifier == "" {
		return nil, ErrInvalidIdentifier
	}

	if payment, err := h.engine.GetPaymentByHash(identifier); err == nil && payment != nil {
		return h.freshStatus(identifier, payment), nil
	} else if err != nil {
		h.log.Debug("PAYMENT", fmt.Sprintf("payment hash lookup failed for %s: %v", identifier, err))
	}

	if payment, err := h.engine.GetPaymentBySwapID(identifier); err == nil && payment != nil {
		return h.freshStatus(identifier, payment), nil
	} else if err != nil {
		h.log.Debug("PAYMENT", fmt.Sprintf("swap id lookup failed for %s: %v", identifier, err))
	}

	// Lookups can fail transiently even for payments the tracker has
	// already seen via events.
	if h.tracker.IsPaid(identifier) {
		h.log.LogPayment("STATUS", identifier, "found in paid set, reporting SUCCEEDED")
		return &StatusResult{Status: StateSucceeded}, nil
	}

	if cached, ok := h.tracker.Status(identifier); ok {
		h.log.LogPayment("STATUS", identifier, fmt.Sprintf("using cached status %s", cached))
		result := &StatusResult{Status: cached}
		if cached == StateFailed {
			if msg := h.tracker.Error(identifier); msg != "" {
				result.Error = msg
			} else {
				result.Error = "Payment failed"
			}
		}
		return result, nil
	}

	h.log.LogPayment("STATUS", identifier, "no payment found")
	return &StatusResult{Status: StateUnknown, Error: "Payment not found"}, nil
}

func (h *Handler) freshStatus(identifier string, payment *PaymentRecord) *StatusResult {
	h.tracker.UpdateState(identifier, payment.Status, payment, "")
	if payment.Status.IsPaidState() {
		h.tracker.MarkPaid(identifier)
	}

	result := &StatusResult{
		Status:    payment.Status,
		Payment:   payment,
		Timestamp: &payment.Timestamp,
		AmountSat: &payment.AmountSat,
		FeesSat:   &payment.FeesSat,
	}
	if payment.Status == StateFailed {
		result.Error = "Payment failed"
	}
	return result
}

// --- Wallet operations ---

func (h *Handler) GetInfo() (*WalletInfo, error) {
	info, err := h.engine.GetInfo()
	if err != nil {
		h.log.Error("WALLET", fmt.Sprintf("Error getting info: %v", err))
		return nil, fmt.Errorf("get info: %w", err)
	}
	return info, nil
}

func (h *Handler) FetchAssetBalances() ([]AssetBalance, error) {
	info, err := h.GetInfo()
	if err != nil {
		return nil, err
	}
	return info.AssetBalances, nil
}

func (h *Handler) FetchLightningLimits() (*Limits, error) {
	limits, err := h.engine.FetchLightningLimits()
	if err != nil {
		h.log.Error("WALLET", fmt.Sprintf("Error fetching lightning limits: %v", err))
		return nil, fmt.Errorf("fetch lightning limits: %w", err)
	}
	return limits, nil
}

func (h *Handler) FetchOnchainLimits() (*Limits, error) {
	limits, err := h.engine.FetchOnchainLimits()
	if err != nil {
		h.log.Error("WALLET", fmt.Sprintf("Error fetching onchain limits: %v", err))
		return nil, fmt.Errorf("fetch onchain limits: %w", err)
	}
	return limits, nil
}

func (h *Handler) RecommendedFees() (map[string]uint64, error) {
	fees, err := h.engine.RecommendedFees()
	if err != nil {
		h.log.Error("WALLET", fmt.Sprintf("Error fetching recommended fees: %v", err))
		return nil, fmt.Errorf("recommended fees: %w", err)
	}
	return fees, nil
}

// --- Onchain operations ---

func (h *Handler) PreparePayOnchain(req OnchainPrepareRequest) (*OnchainPrepareResult, error) {
	if !req.Drain && req.AmountSat == nil {
		h.log.Warn("ONCHAIN", "amount is missing for non-drain pay onchain")
		return nil, fmt.Errorf("%w: amount must be provided for non-drain payments", ErrInvalidArgument)
	}
	if req.FeeRateSatPerVbyte != nil && *req.FeeRateSatPerVbyte == 0 {
		return nil, fmt.Errorf("%w: fee rate must be a positive integer", ErrInvalidArgument)
	}

	prepared, err := h.engine.PreparePayOnchain(req)
	if err != nil {
		h.log.Error("ONCHAIN", fmt.Sprintf("Error preparing pay onchain: %v", err))
		return nil, fmt.Errorf("prepare pay onchain: %w", err)
	}
	h.log.Info("ONCHAIN", fmt.Sprintf("prepared pay onchain, total fees %d sat", prepared.TotalFeesSat))
	return prepared, nil
}

func (h *Handler) PayOnchain(address string, prepared *OnchainPrepareResult) error {
	if prepared == nil {
		return fmt.Errorf("%w: pay onchain requires the prepared response", ErrInvalidArgument)
	}
	if address == "" {
		return fmt.Errorf("%w: destination address must be a non-empty string", ErrInvalidArgument)
	}

	if err := h.engine.PayOnchain(address, prepared); err != nil {
		h.log.Error("ONCHAIN", fmt.Sprintf("Error executing pay onchain to %s: %v", address, err))
		return fmt.Errorf("pay onchain: %w", err)
	}
	h.log.Info("ONCHAIN", fmt.Sprintf("onchain payment initiated to %s", address))
	return nil
}

func (h *Handler) ListRefundables() ([]RefundableSwap, error) {
	refundables, err := h.engine.ListRefundables()
	if err != nil {
		h.log.Error("ONCHAIN", fmt.Sprintf("Error listing refundable payments: %v", err))
		return nil, fmt.Errorf("list refundables: %w", err)
	}
	return refundables, nil
}

func (h *Handler) ExecuteRefund(req RefundRequest) error {
	if req.SwapAddress == "" {
		return fmt.Errorf("%w: swap address must be a non-empty string", ErrInvalidArgument)
	}
	if req.RefundAddress == "" {
		return fmt.Errorf("%w: refund address must be a non-empty string", ErrInvalidArgument)
	}
	if req.FeeRateSatPerVbyte == 0 {
		return fmt.Errorf("%w: fee rate must be a positive integer", ErrInvalidArgument)
	}

	if err := h.engine.Refund(req); err != nil {
		h.log.Error("ONCHAIN", fmt.Sprintf("Error executing refund for swap %s: %v", req.SwapAddress, err))
		return fmt.Errorf("refund: %w", err)
	}
	h.log.Info("ONCHAIN", fmt.Sprintf("refund initiated for swap %s to %s", req.SwapAddress, req.RefundAddress))
	return nil
}

func (h *Handler) RescanSwaps() error {
	if err := h.engine.RescanSwaps(); err != nil {
		h.log.Error("ONCHAIN", fmt.Sprintf("Error rescanning swaps: %v", err))
		return fmt.Errorf("rescan swaps: %w", err)
	}
	h.log.Info("ONCHAIN", "onchain swaps rescan initiated")
	return nil
}

// --- LNURL operations ---

func (h *Handler) ParseInput(input string) (*ParsedInput, error) {
	parsed, err := h.engine.Parse(input)
	if err != nil {
		h.log.Error("LNURL", fmt.Sprintf("Error parsing input: %v", err))
		return nil, fmt.Errorf("parse input: %w", err)
	}
	return parsed, nil
}

// PrepareLnurlPay resolves an LNURL or lightning address and quotes the
// fee for paying amountSat to it, without executing the payment.
func (h *Handler) PrepareLnurlPay(lnurl string, amountSat uint64, comment string, validateSuccessURL bool) (*LnurlPayPrepared, error) {
	if lnurl == "" {
		return nil, fmt.Errorf("%w: lnurl must be a non-empty string", ErrInvalidArgument)
	}
	if amountSat == 0 {
		return nil, fmt.Errorf("%w: amount_sat must be a positive integer", ErrInvalidArgument)
	}

	parsed, err := h.ParseInput(lnurl)
	if err != nil {
		return nil, err
	}
	if parsed.Type != "lnurl_pay" {
		h.log.Warn("LNURL", fmt.Sprintf("input parsed as %s, not an LNURL-Pay endpoint", parsed.Type))
		return nil, fmt.Errorf("%w: input is not an LNURL-Pay endpoint", ErrInvalidArgument)
	}

	prepared, err := h.engine.PrepareLnurlPay(LnurlPayRequest{
		Input:                    parsed,
		AmountSat:                amountSat,
		Comment:                  comment,
		ValidateSuccessActionURL: validateSuccessURL,
	})
	if err != nil {
		h.log.Error("LNURL", fmt.Sprintf("Error preparing LNURL-Pay: %v", err))
		return nil, fmt.Errorf("prepare lnurl pay: %w", err)
	}
	h.log.Info("LNURL", fmt.Sprintf("LNURL-Pay prepared, fees %d sat", prepared.FeesSat))
	return prepared, nil
}

// LnurlPay quotes and pays in one pass.
func (h *Handler) LnurlPay(lnurl string, amountSat uint64, comment string, validateSuccessURL bool) (map[string]interface{}, error) {
	prepared, err := h.PrepareLnurlPay(lnurl, amountSat, comment, validateSuccessURL)
	if err != nil {
		return nil, err
	}

	result, err := h.engine.LnurlPay(prepared)
	if err != nil {
		h.log.Error("LNURL", fmt.Sprintf("Error executing LNURL-Pay: %v", err))
		return nil, fmt.Errorf("lnurl pay: %w", err)
	}
	h.log.Info("LNURL", "executed LNURL-Pay")
	return result, nil
}

// LnurlAuth parses an LNURL-Auth callback and authenticates with the
// wallet key.
func (h *Handler) LnurlAuth(lnurl string) (bool, error) {
	if lnurl == "" {
		return false, fmt.Errorf("%w: lnurl must be a non-empty string", ErrInvalidArgument)
	}
	parsed, err := h.ParseInput(lnurl)
	if err != nil {
		return false, err
	}
	if parsed.Type != "lnurl_auth" {
		return false, fmt.Errorf("%w: input is not an LNURL-Auth endpoint", ErrInvalidArgument)
	}

	ok, err := h.engine.LnurlAuth(parsed)
	if err != nil {
		h.log.Error("LNURL", fmt.Sprintf("Error performing LNURL-Auth: %v", err))
		return false, fmt.Errorf("lnurl auth: %w", err)
	}
	h.log.Info("LNURL", fmt.Sprintf("LNURL-Auth result: %v", ok))
	return ok, nil
}

// LnurlWithdraw parses an LNURL-Withdraw voucher and pulls amountMsat
// from it into the wallet.
func (h *Handler) LnurlWithdraw(lnurl string, amountMsat uint64, comment string) (map[string]interface{}, error) {
	if lnurl == "" {
		return nil, fmt.Errorf("%w: lnurl must be a non-empty string", ErrInvalidArgument)
	}
	if amountMsat == 0 {
		return nil, fmt.Errorf("%w: amount_msat must be a positive integer", ErrInvalidArgument)
	}
	parsed, err := h.ParseInput(lnurl)
	if err != nil {
		return nil, err
	}
	if parsed.Type != "lnurl_withdraw" {
		return nil, fmt.Errorf("%w: input is not an LNURL-Withdraw endpoint", ErrInvalidArgument)
	}

	result, err := h.engine.LnurlWithdraw(parsed, amountMsat, comment)
	if err != nil {
		h.log.Error("LNURL", fmt.Sprintf("Error executing LNURL-Withdraw: %v", err))
		return nil, fmt.Errorf("lnurl withdraw: %w", err)
	}
	h.log.Info("LNURL", "executed LNURL-Withdraw")
	return result, nil
}

// --- Buy bitcoin ---

// BuyBitcoin prepares and executes a buy through the given provider,
// returning the provider URL the caller must open to complete payment.
func (h *Handler) BuyBitcoin(provider string, amountSat uint64) (string, uint64, error) {
	if provider == "" {
		return "", 0, fmt.Errorf("%w: buy provider must be a non-empty string", ErrInvalidArgument)
	}
	if amountSat == 0 {
		return "", 0, fmt.Errorf("%w: amount_sat must be a positive integer", ErrInvalidArgument)
	}

	prepared, err := h.engine.PrepareBuyBitcoin(strings.ToUpper(provider), amountSat)
	if err != nil {
		h.log.Error("BUY", fmt.Sprintf("Error preparing buy bitcoin for %d with %s: %v", amountSat, provider, err))
		return "", 0, fmt.Errorf("prepare buy bitcoin: %w", err)
	}

	url, err := h.engine.BuyBitcoin(prepared)
	if err != nil {
		h.log.Error("BUY", fmt.Sprintf("Error executing buy bitcoin: %v", err))
		return "", 0, fmt.Errorf("buy bitcoin: %w", err)
	}
	h.log.Info("BUY", fmt.Sprintf("buy bitcoin URL generated via %s, fees %d sat", provider, prepared.FeesSat))
	return url, prepared.FeesSat, nil
}

// --- Fiat ---

func (h *Handler) FetchFiatRates() ([]FiatRate, error) {
	rates, err := h.engine.FetchFiatRates()
	if err != nil {
		h.log.Error("FIAT", fmt.Sprintf("Error fetching fiat rates: %v", err))
		return nil, fmt.Errorf("fetch fiat rates: %w", err)
	}
	return rates, nil
}

func (h *Handler) ListFiatCurrencies() ([]string, error) {
	currencies, err := h.engine.ListFiatCurrencies()
	if err != nil {
		h.log.Error("FIAT", fmt.Sprintf("Error listing fiat currencies: %v", err))
		return nil, fmt.Errorf("list fiat currencies: %w", err)
	}
	return currencies, nil
}

// ExchangeRate returns the rate for one currency, or all rates when
// currency is empty. An unknown currency is a caller error.
func (h *Handler) ExchangeRate(currency string) (map[string]float64, error) {
	rates, err := h.FetchFiatRates()
	if err != nil {
		return nil, err
	}

	all := make(map[string]float64, len(rates))
	for _, rate := range rates {
		all[rate.Coin] = rate.Value
	}

	if currency == "" {
		return all, nil
	}

	currency = strings.ToUpper(currency)
	value, ok := all[currency]
	if !ok {
		h.log.Warn("FIAT", fmt.Sprintf("requested currency %s not found in available rates", currency))
		return nil, fmt.Errorf("%w: exchange rate not available for currency %s", ErrInvalidArgument, currency)
	}
	return map[string]float64{currency: value}, nil
}

// --- Fee acceptance ---

// HandleWaitingFeeAcceptance sweeps payments stuck in
// WAITING_FEE_ACCEPTANCE and accepts the proposed fees. Returns the
// number of swaps handled.
func (h *Handler) HandleWaitingFeeAcceptance() (int, error) {
	waiting, err := h.engine.ListPayments(ListFilter{States: []PaymentState{StateWaitingFeeAcceptance}})
	if err != nil {
		h.log.Error("FEES", fmt.Sprintf("Error listing payments waiting fee acceptance: %v", err))
		return 0, fmt.Errorf("list waiting fee acceptance: %w", err)
	}

	handled := 0
	for _, payment := range waiting {
		if payment.SwapID == "" {
			h.log.Warn("FEES", fmt.Sprintf("skipping waiting payment without swap id: %s", payment.Destination))
			continue
		}

		fees, err := h.engine.FetchProposedFees(payment.SwapID)
		if err != nil {
			h.log.Error("FEES", fmt.Sprintf("Error fetching proposed fees for swap %s: %v", payment.SwapID, err))
			continue
		}
		h.log.Info("FEES", fmt.Sprintf("payer sent %d, proposed fees %d for swap %s", fees.PayerAmountSat, fees.FeesSat, payment.SwapID))

		if err := h.engine.AcceptProposedFees(fees); err != nil {
			h.log.Error("FEES", fmt.Sprintf("Error accepting proposed fees for swap %s: %v", payment.SwapID, err))
			continue
		}
		h.log.Info("FEES", fmt.Sprintf("accepted proposed fees for swap %s", payment.SwapID))
		handled++
	}
	return handled, nil
}

// --- Message signing ---

func (h *Handler) SignMessage(message string) (*SignedMessage, error) {
	if message == "" {
		return nil, fmt.Errorf("%w: message to sign must be a non-empty string", ErrInvalidArgument)
	}
	signed, err := h.engine.SignMessage(message)
	if err != nil {
		h.log.Error("SIGN", fmt.Sprintf("Error signing message: %v", err))
		return nil, fmt.Errorf("sign message: %w", err)
	}
	h.log.Info("SIGN", "message signed")
	return signed, nil
}

func (h *Handler) CheckMessage(message, pubkey, signature string) (bool, error) {
	if message == "" || pubkey == "" || signature == "" {
		return false, fmt.Errorf("%w: message, pubkey and signature must be non-empty", ErrInvalidArgument)
	}
	valid, err := h.engine.CheckMessage(message, pubkey, signature)
	if err != nil {
		h.log.Error("SIGN", fmt.Sprintf("Error checking message signature: %v", err))
		return false, fmt.Errorf("check message: %w", err)
	}
	h.log.Info("SIGN", fmt.Sprintf("message signature check result: %v", valid))
	return valid, nil
}

// --- Webhook registration ---

func (h *Handler) RegisterWebhook(url string) error {
	if !strings.HasPrefix(url, "https://") {
		h.log.Warn("WEBHOOK", fmt.Sprintf("invalid webhook url: %s", url))
		return fmt.Errorf("%w: webhook URL must be a valid HTTPS URL", ErrInvalidArgument)
	}
	if err := h.engine.RegisterWebhook(url); err != nil {
		h.log.Error("WEBHOOK", fmt.Sprintf("Error registering webhook %s: %v", url, err))
		return fmt.Errorf("register webhook: %w", err)
	}
	h.log.LogWebhook("REGISTER", url, "webhook registered")
	return nil
}

func (h *Handler) UnregisterWebhook() error {
	if err := h.engine.UnregisterWebhook(); err != nil {
		h.log.Error("WEBHOOK", fmt.Sprintf("Error unregistering webhook: %v", err))
		return fmt.Errorf("unregister webhook: %w", err)
	}
	h.log.LogWebhook("UNREGISTER", "", "webhook unregistered")
	return nil
}

// Disconnect tears down the tracker and the engine connection. Safe to
// call multiple times; partial failures are logged and cleanup
// continues.
func (h *Handler) Disconnect() {
	if h.tracker != nil {
		h.tracker.Reset()
	}
	if h.engine != nil {
		if err := h.engine.Disconnect(); err != nil {
			h.log.Error("BREEZ", fmt.Sprintf("Error during engine disconnect: %v", err))
		} else {
			h.log.Info("BREEZ", "engine disconnected")
		}
		h.engine = nil
	}
}
