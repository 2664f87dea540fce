package breez

import (
	"errors"
	"strings"
)

// PaymentState mirrors the SDK payment lifecycle:
//
//	PENDING                - swap service holds the payment, lockup tx broadcast
//	WAITING_CONFIRMATION   - claim tx broadcast or direct Liquid tx seen
//	SUCCEEDED              - claim tx or direct Liquid tx confirmed
//	FAILED                 - swap failed (expired or lockup tx failed)
//	WAITING_FEE_ACCEPTANCE - payment requires fee acceptance
//	REFUNDED               - swap refunded to sender
//	UNKNOWN                - payment not found, never emitted by the engine
type PaymentState string

const (
	StatePending              PaymentState = "PENDING"
	StateWaitingConfirmation  PaymentState = "WAITING_CONFIRMATION"
	StateSucceeded            PaymentState = "SUCCEEDED"
	StateFailed               PaymentState = "FAILED"
	StateWaitingFeeAcceptance PaymentState = "WAITING_FEE_ACCEPTANCE"
	StateRefunded             PaymentState = "REFUNDED"
	StateUnknown              PaymentState = "UNKNOWN"
)

// IsTerminal reports whether the engine can still move the payment.
func (s PaymentState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateRefunded
}

// IsPaidState reports whether the state counts as paid for merchants.
// WAITING_CONFIRMATION is irreversible, it only waits for confirmation.
func (s PaymentState) IsPaidState() bool {
	return s == StateWaitingConfirmation || s == StateSucceeded
}

type EventKind int

const (
	EventSynced EventKind = iota
	EventPaymentPending
	EventPaymentWaitingConfirmation
	EventPaymentSucceeded
	EventPaymentFailed
	EventPaymentWaitingFeeAcceptance
	EventPaymentRefunded
)

func (k EventKind) State() PaymentState {
	switch k {
	case EventPaymentPending:
		return StatePending
	case EventPaymentWaitingConfirmation:
		return StateWaitingConfirmation
	case EventPaymentSucceeded:
		return StateSucceeded
	case EventPaymentFailed:
		return StateFailed
	case EventPaymentWaitingFeeAcceptance:
		return StateWaitingFeeAcceptance
	case EventPaymentRefunded:
		return StateRefunded
	default:
		return StateUnknown
	}
}

// EventDetails is the payload attached to payment events. Any of the
// identifier fields may be empty depending on the payment kind.
type EventDetails struct {
	PaymentHash string
	Destination string
	SwapID      string
	Error       string
}

// Identifier resolves the tracking key for the event payload, trying
// payment hash, destination, then swap id. Empty means untrackable.
func (d EventDetails) Identifier() string {
	if d.PaymentHash != "" {
		return d.PaymentHash
	}
	if d.Destination != "" {
		return d.Destination
	}
	return d.SwapID
}

// Event is the tagged union delivered by the engine's listener callback.
// SYNCED events carry no details.
type Event struct {
	Kind    EventKind
	Details EventDetails
	Payment *PaymentRecord
}

// PaymentRecord is the flattened, transport-friendly view of an engine
// payment, details reduced to primitives.
type PaymentRecord struct {
	Timestamp   int64                  `json:"timestamp"`
	AmountSat   uint64                 `json:"amount_sat"`
	FeesSat     uint64                 `json:"fees_sat"`
	PaymentType string                 `json:"payment_type"`
	Status      PaymentState           `json:"status"`
	Destination string                 `json:"destination,omitempty"`
	TxID        string                 `json:"tx_id,omitempty"`
	PaymentHash string                 `json:"payment_hash,omitempty"`
	SwapID      string                 `json:"swap_id,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// PaymentMethod is the set of receive methods the engine supports.
type PaymentMethod string

const (
	MethodLightning      PaymentMethod = "LIGHTNING"
	MethodBitcoinAddress PaymentMethod = "BITCOIN_ADDRESS"
	MethodLiquidAddress  PaymentMethod = "LIQUID_ADDRESS"
)

// ParsePaymentMethod validates a caller-supplied method string,
// case-insensitively.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(strings.ToUpper(s)) {
	case MethodLightning:
		return MethodLightning, nil
	case MethodBitcoinAddress:
		return MethodBitcoinAddress, nil
	case MethodLiquidAddress:
		return MethodLiquidAddress, nil
	default:
		return "", ErrInvalidPaymentMethod
	}
}

// SendRequest carries the amount modes for an outgoing payment.
// Exactly one of AmountSat, (AmountAsset+AssetID), or Drain must be set.
type SendRequest struct {
	Destination string
	AmountSat   *uint64
	AmountAsset *float64
	AssetID     string
	Drain       bool
}

type SendResult struct {
	Status      PaymentState `json:"status"`
	Destination string       `json:"destination,omitempty"`
	FeesSat     uint64       `json:"fees_sat"`
	PaymentHash string       `json:"payment_hash,omitempty"`
	SwapID      string       `json:"swap_id,omitempty"`
}

type ReceiveRequest struct {
	AmountSat   uint64
	Method      PaymentMethod
	Description string
	AssetID     string
}

type ReceiveResult struct {
	Destination string `json:"destination"`
	FeesSat     uint64 `json:"fees_sat"`
}

// ListFilter is passed through to the engine's payment listing.
type ListFilter struct {
	FromTimestamp *int64
	ToTimestamp   *int64
	Offset        *uint32
	Limit         *uint32
	Types         []string
	States        []PaymentState
}

// StatusResult is the answer to a payment status check. Never an error
// for "not found": that comes back as StateUnknown with Error set.
type StatusResult struct {
	Status    PaymentState   `json:"status"`
	Payment   *PaymentRecord `json:"payment_details,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp *int64         `json:"timestamp,omitempty"`
	AmountSat *uint64        `json:"amount_sat,omitempty"`
	FeesSat   *uint64        `json:"fees_sat,omitempty"`
}

type Limits struct {
	Receive LimitRange `json:"receive"`
	Send    LimitRange `json:"send"`
}

type LimitRange struct {
	MinSat uint64 `json:"min_sat"`
	MaxSat uint64 `json:"max_sat"`
}

type RefundableSwap struct {
	SwapAddress string `json:"swap_address"`
	Timestamp   int64  `json:"timestamp"`
	AmountSat   uint64 `json:"amount_sat"`
}

type RefundRequest struct {
	SwapAddress        string
	RefundAddress      string
	FeeRateSatPerVbyte uint32
}

type OnchainPrepareRequest struct {
	AmountSat          *uint64
	Drain              bool
	FeeRateSatPerVbyte *uint32
}

type OnchainPrepareResult struct {
	ReceiverAmountSat uint64 `json:"receiver_amount_sat"`
	ClaimFeesSat      uint64 `json:"claim_fees_sat"`
	TotalFeesSat      uint64 `json:"total_fees_sat"`

	raw interface{}
}

type SignedMessage struct {
	Signature string `json:"signature"`
	Pubkey    string `json:"pubkey"`
}

type FiatRate struct {
	Coin  string  `json:"coin"`
	Value float64 `json:"value"`
}

type WalletInfo struct {
	BalanceSat        uint64                 `json:"balance_sat"`
	PendingSendSat    uint64                 `json:"pending_send_sat"`
	PendingReceiveSat uint64                 `json:"pending_receive_sat"`
	Pubkey            string                 `json:"pubkey"`
	AssetBalances     []AssetBalance         `json:"asset_balances,omitempty"`
	Blockchain        map[string]interface{} `json:"blockchain_info,omitempty"`
}

type AssetBalance struct {
	AssetID    string   `json:"asset_id"`
	BalanceSat uint64   `json:"balance_sat"`
	Name       string   `json:"name,omitempty"`
	Ticker     string   `json:"ticker,omitempty"`
	Balance    *float64 `json:"balance,omitempty"`
}

// ParsedInput is the flattened result of parsing an arbitrary payment
// input (bolt11, LNURL, addresses, BIP21). raw carries the binding's
// typed value so LNURL flows can hand it back without re-parsing.
type ParsedInput struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data,omitempty"`

	raw interface{}
}

type LnurlPayRequest struct {
	Input                    *ParsedInput
	AmountSat                uint64
	Comment                  string
	ValidateSuccessActionURL bool
}

// LnurlPayPrepared is an opaque LNURL-Pay fee quote. Execute it with
// Engine.LnurlPay.
type LnurlPayPrepared struct {
	FeesSat uint64 `json:"fees_sat"`

	raw interface{}
}

// BuyBitcoinPrepared is an opaque buy quote for a fiat on-ramp.
type BuyBitcoinPrepared struct {
	Provider  string `json:"provider"`
	AmountSat uint64 `json:"amount_sat"`
	FeesSat   uint64 `json:"fees_sat"`

	raw interface{}
}

// ProposedFees is the quote for a payment stuck waiting fee acceptance.
type ProposedFees struct {
	SwapID         string `json:"swap_id"`
	PayerAmountSat uint64 `json:"payer_amount_sat"`
	FeesSat        uint64 `json:"fees_sat"`

	raw interface{}
}

// Validation and configuration errors, raised before any engine call.
var (
	ErrMissingAPIKey        = errors.New("missing Breez API key in environment")
	ErrMissingMnemonic      = errors.New("missing seed phrase in environment")
	ErrInvalidAmount        = errors.New("provide exactly one of amount_sat, (amount_asset and asset_id), or drain")
	ErrInvalidPaymentMethod = errors.New("payment method must be LIGHTNING, BITCOIN_ADDRESS or LIQUID_ADDRESS")
	ErrInvalidIdentifier    = errors.New("invalid payment identifier")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrNotConnected         = errors.New("payment engine is not connected")
)
