package breez

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/breez/breez-sdk-liquid-go/breez_sdk_liquid"
)

// sdkEngine adapts the Breez Liquid bindings to the Engine interface.
// All binding-specific types stay inside this file.
type sdkEngine struct {
	client     *sdk.BindingLiquidSdk
	listenerID string
}

// ConnectSDK opens a real engine connection. Satisfies ConnectFunc.
func ConnectSDK(apiKey, mnemonic, network, workingDir string) (Engine, error) {
	liquidNetwork, err := parseNetwork(network)
	if err != nil {
		return nil, err
	}

	config, err := sdk.DefaultConfig(liquidNetwork, &apiKey)
	if err != nil {
		return nil, fmt.Errorf("build default config: %w", err)
	}
	config.WorkingDir = workingDir

	client, err := sdk.Connect(sdk.ConnectRequest{
		Config:   config,
		Mnemonic: &mnemonic,
	})
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	return &sdkEngine{client: client}, nil
}

func parseNetwork(network string) (sdk.LiquidNetwork, error) {
	switch strings.ToLower(network) {
	case "", "mainnet":
		return sdk.LiquidNetworkMainnet, nil
	case "testnet":
		return sdk.LiquidNetworkTestnet, nil
	case "regtest":
		return sdk.LiquidNetworkRegtest, nil
	default:
		return sdk.LiquidNetworkMainnet, fmt.Errorf("%w: unknown network %q", ErrInvalidArgument, network)
	}
}

// sdkListener bridges the binding's callback interface to EventHandler.
type sdkListener struct {
	handler EventHandler
}

func (l *sdkListener) OnEvent(e sdk.SdkEvent) {
	switch event := e.(type) {
	case sdk.SdkEventSynced:
		l.handler.OnEvent(Event{Kind: EventSynced})
	case sdk.SdkEventPaymentPending:
		l.deliver(EventPaymentPending, event.Details)
	case sdk.SdkEventPaymentWaitingConfirmation:
		l.deliver(EventPaymentWaitingConfirmation, event.Details)
	case sdk.SdkEventPaymentSucceeded:
		l.deliver(EventPaymentSucceeded, event.Details)
	case sdk.SdkEventPaymentFailed:
		l.deliver(EventPaymentFailed, event.Details)
	case sdk.SdkEventPaymentWaitingFeeAcceptance:
		l.deliver(EventPaymentWaitingFeeAcceptance, event.Details)
	case sdk.SdkEventPaymentRefunded:
		l.deliver(EventPaymentRefunded, event.Details)
	}
}

func (l *sdkListener) deliver(kind EventKind, payment sdk.Payment) {
	record := flattenPayment(payment)
	l.handler.OnEvent(Event{
		Kind: kind,
		Details: EventDetails{
			PaymentHash: record.PaymentHash,
			Destination: record.Destination,
			SwapID:      record.SwapID,
		},
		Payment: record,
	})
}

func (e *sdkEngine) AddListener(handler EventHandler) error {
	id, err := e.client.AddEventListener(&sdkListener{handler: handler})
	if err != nil {
		return err
	}
	e.listenerID = id
	return nil
}

func (e *sdkEngine) Disconnect() error {
	if e.listenerID != "" {
		_ = e.client.RemoveEventListener(e.listenerID)
		e.listenerID = ""
	}
	return e.client.Disconnect()
}

func (e *sdkEngine) GetInfo() (*WalletInfo, error) {
	info, err := e.client.GetInfo()
	if err != nil {
		return nil, err
	}

	result := &WalletInfo{
		BalanceSat:        info.WalletInfo.BalanceSat,
		PendingSendSat:    info.WalletInfo.PendingSendSat,
		PendingReceiveSat: info.WalletInfo.PendingReceiveSat,
		Pubkey:            info.WalletInfo.Pubkey,
		Blockchain: map[string]interface{}{
			"liquid_tip":  info.BlockchainInfo.LiquidTip,
			"bitcoin_tip": info.BlockchainInfo.BitcoinTip,
		},
	}
	for _, balance := range info.WalletInfo.AssetBalances {
		ab := AssetBalance{
			AssetID:    balance.AssetId,
			BalanceSat: balance.BalanceSat,
			Balance:    balance.Balance,
		}
		if balance.Name != nil {
			ab.Name = *balance.Name
		}
		if balance.Ticker != nil {
			ab.Ticker = *balance.Ticker
		}
		result.AssetBalances = append(result.AssetBalances, ab)
	}
	return result, nil
}

func (e *sdkEngine) GetPaymentByHash(hash string) (*PaymentRecord, error) {
	payment, err := e.client.GetPayment(sdk.GetPaymentRequestPaymentHash{PaymentHash: hash})
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, nil
	}
	return flattenPayment(*payment), nil
}

func (e *sdkEngine) GetPaymentBySwapID(swapID string) (*PaymentRecord, error) {
	payment, err := e.client.GetPayment(sdk.GetPaymentRequestSwapId{SwapId: swapID})
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, nil
	}
	return flattenPayment(*payment), nil
}

func (e *sdkEngine) ListPayments(filter ListFilter) ([]PaymentRecord, error) {
	req := sdk.ListPaymentsRequest{
		FromTimestamp: filter.FromTimestamp,
		ToTimestamp:   filter.ToTimestamp,
		Offset:        filter.Offset,
		Limit:         filter.Limit,
	}

	if len(filter.Types) > 0 {
		var types []sdk.PaymentType
		for _, t := range filter.Types {
			switch strings.ToLower(t) {
			case "send":
				types = append(types, sdk.PaymentTypeSend)
			case "receive":
				types = append(types, sdk.PaymentTypeReceive)
			default:
				return nil, fmt.Errorf("%w: unknown payment type %q", ErrInvalidArgument, t)
			}
		}
		req.Filters = &types
	}

	if len(filter.States) > 0 {
		var states []sdk.PaymentState
		for _, s := range filter.States {
			states = append(states, sdkStates(s)...)
		}
		req.States = &states
	}

	payments, err := e.client.ListPayments(req)
	if err != nil {
		return nil, err
	}

	records := make([]PaymentRecord, 0, len(payments))
	for _, payment := range payments {
		records = append(records, *flattenPayment(payment))
	}
	return records, nil
}

func (e *sdkEngine) SendPayment(ctx context.Context, req SendRequest) (*SendResult, error) {
	var amount sdk.PayAmount
	switch {
	case req.Drain:
		amount = sdk.PayAmountDrain{}
	case req.AmountAsset != nil:
		amount = sdk.PayAmountAsset{
			AssetId:        req.AssetID,
			ReceiverAmount: *req.AmountAsset,
		}
	case req.AmountSat != nil:
		amount = sdk.PayAmountBitcoin{ReceiverAmountSat: *req.AmountSat}
	}

	prepareReq := sdk.PrepareSendRequest{Destination: req.Destination}
	if amount != nil {
		prepareReq.Amount = &amount
	}

	prepared, err := e.client.PrepareSendPayment(prepareReq)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	response, err := e.client.SendPayment(sdk.SendPaymentRequest{PrepareResponse: prepared})
	if err != nil {
		return nil, err
	}

	record := flattenPayment(response.Payment)
	result := &SendResult{
		Status:      record.Status,
		Destination: record.Destination,
		FeesSat:     record.FeesSat,
		PaymentHash: record.PaymentHash,
		SwapID:      record.SwapID,
	}
	if prepared.FeesSat != nil {
		result.FeesSat = *prepared.FeesSat
	}
	return result, nil
}

func (e *sdkEngine) ReceivePayment(ctx context.Context, req ReceiveRequest) (*ReceiveResult, error) {
	var method sdk.PaymentMethod
	switch req.Method {
	case MethodLightning:
		method = sdk.PaymentMethodBolt11Invoice
	case MethodBitcoinAddress:
		method = sdk.PaymentMethodBitcoinAddress
	case MethodLiquidAddress:
		method = sdk.PaymentMethodLiquidAddress
	default:
		return nil, ErrInvalidPaymentMethod
	}

	prepareReq := sdk.PrepareReceiveRequest{PaymentMethod: method}
	var amount sdk.ReceiveAmount
	switch {
	case req.AssetID != "":
		assetAmount := sdk.ReceiveAmountAsset{AssetId: req.AssetID}
		if req.AmountSat > 0 {
			payerAmount := float64(req.AmountSat)
			assetAmount.PayerAmount = &payerAmount
		}
		amount = assetAmount
	case req.AmountSat > 0:
		amount = sdk.ReceiveAmountBitcoin{PayerAmountSat: req.AmountSat}
	}
	if amount != nil {
		prepareReq.Amount = &amount
	}

	prepared, err := e.client.PrepareReceivePayment(prepareReq)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	receiveReq := sdk.ReceivePaymentRequest{PrepareResponse: prepared}
	if req.Description != "" {
		receiveReq.Description = &req.Description
	}

	response, err := e.client.ReceivePayment(receiveReq)
	if err != nil {
		return nil, err
	}

	return &ReceiveResult{
		Destination: response.Destination,
		FeesSat:     prepared.FeesSat,
	}, nil
}

func (e *sdkEngine) PreparePayOnchain(req OnchainPrepareRequest) (*OnchainPrepareResult, error) {
	var amount sdk.PayAmount
	if req.Drain {
		amount = sdk.PayAmountDrain{}
	} else {
		amount = sdk.PayAmountBitcoin{ReceiverAmountSat: *req.AmountSat}
	}

	prepared, err := e.client.PreparePayOnchain(sdk.PreparePayOnchainRequest{
		Amount:             amount,
		FeeRateSatPerVbyte: req.FeeRateSatPerVbyte,
	})
	if err != nil {
		return nil, err
	}

	return &OnchainPrepareResult{
		ReceiverAmountSat: prepared.ReceiverAmountSat,
		ClaimFeesSat:      prepared.ClaimFeesSat,
		TotalFeesSat:      prepared.TotalFeesSat,
		raw:               prepared,
	}, nil
}

func (e *sdkEngine) PayOnchain(address string, prepared *OnchainPrepareResult) error {
	raw, ok := prepared.raw.(sdk.PreparePayOnchainResponse)
	if !ok {
		return fmt.Errorf("%w: prepared response did not come from this engine", ErrInvalidArgument)
	}
	_, err := e.client.PayOnchain(sdk.PayOnchainRequest{
		Address:         address,
		PrepareResponse: raw,
	})
	return err
}

func (e *sdkEngine) ListRefundables() ([]RefundableSwap, error) {
	refundables, err := e.client.ListRefundables()
	if err != nil {
		return nil, err
	}

	result := make([]RefundableSwap, 0, len(refundables))
	for _, r := range refundables {
		result = append(result, RefundableSwap{
			SwapAddress: r.SwapAddress,
			Timestamp:   int64(r.Timestamp),
			AmountSat:   r.AmountSat,
		})
	}
	return result, nil
}

func (e *sdkEngine) Refund(req RefundRequest) error {
	_, err := e.client.Refund(sdk.RefundRequest{
		SwapAddress:        req.SwapAddress,
		RefundAddress:      req.RefundAddress,
		FeeRateSatPerVbyte: req.FeeRateSatPerVbyte,
	})
	return err
}

func (e *sdkEngine) RescanSwaps() error {
	return e.client.RescanOnchainSwaps()
}

func (e *sdkEngine) FetchLightningLimits() (*Limits, error) {
	limits, err := e.client.FetchLightningLimits()
	if err != nil {
		return nil, err
	}
	return &Limits{
		Receive: LimitRange{MinSat: limits.Receive.MinSat, MaxSat: limits.Receive.MaxSat},
		Send:    LimitRange{MinSat: limits.Send.MinSat, MaxSat: limits.Send.MaxSat},
	}, nil
}

func (e *sdkEngine) FetchOnchainLimits() (*Limits, error) {
	limits, err := e.client.FetchOnchainLimits()
	if err != nil {
		return nil, err
	}
	return &Limits{
		Receive: LimitRange{MinSat: limits.Receive.MinSat, MaxSat: limits.Receive.MaxSat},
		Send:    LimitRange{MinSat: limits.Send.MinSat, MaxSat: limits.Send.MaxSat},
	}, nil
}

func (e *sdkEngine) RecommendedFees() (map[string]uint64, error) {
	fees, err := e.client.RecommendedFees()
	if err != nil {
		return nil, err
	}
	return map[string]uint64{
		"fastest_fee":   fees.FastestFee,
		"half_hour_fee": fees.HalfHourFee,
		"hour_fee":      fees.HourFee,
		"economy_fee":   fees.EconomyFee,
		"minimum_fee":   fees.MinimumFee,
	}, nil
}

func (e *sdkEngine) Parse(input string) (*ParsedInput, error) {
	parsed, err := e.client.Parse(input)
	if err != nil {
		return nil, err
	}

	result := &ParsedInput{raw: parsed}
	switch value := parsed.(type) {
	case sdk.InputTypeBitcoinAddress:
		result.Type = "bitcoin_address"
		result.Data = toMap(value.Address)
	case sdk.InputTypeLiquidAddress:
		result.Type = "liquid_address"
		result.Data = toMap(value.Address)
	case sdk.InputTypeBolt11:
		result.Type = "bolt11"
		result.Data = toMap(value.Invoice)
	case sdk.InputTypeBolt12Offer:
		result.Type = "bolt12_offer"
		result.Data = toMap(value.Offer)
	case sdk.InputTypeLnUrlPay:
		result.Type = "lnurl_pay"
		result.Data = toMap(value.Data)
	case sdk.InputTypeLnUrlWithdraw:
		result.Type = "lnurl_withdraw"
		result.Data = toMap(value.Data)
	case sdk.InputTypeLnUrlAuth:
		result.Type = "lnurl_auth"
		result.Data = toMap(value.Data)
	case sdk.InputTypeLnUrlError:
		result.Type = "lnurl_error"
		result.Data = toMap(value.Data)
	case sdk.InputTypeNodeId:
		result.Type = "node_id"
		result.Data = map[string]interface{}{"node_id": value.NodeId}
	case sdk.InputTypeUrl:
		result.Type = "url"
		result.Data = map[string]interface{}{"url": value.Url}
	default:
		result.Type = "unknown"
	}
	return result, nil
}

func (e *sdkEngine) PrepareLnurlPay(req LnurlPayRequest) (*LnurlPayPrepared, error) {
	input, ok := req.Input.raw.(sdk.InputTypeLnUrlPay)
	if !ok {
		return nil, fmt.Errorf("%w: parsed input is not an LNURL-Pay endpoint", ErrInvalidArgument)
	}

	prepareReq := sdk.PrepareLnUrlPayRequest{
		Data:          input.Data,
		Amount:        sdk.PayAmountBitcoin{ReceiverAmountSat: req.AmountSat},
		Bip353Address: input.Bip353Address,
	}
	if req.Comment != "" {
		prepareReq.Comment = &req.Comment
	}
	if req.ValidateSuccessActionURL {
		validate := true
		prepareReq.ValidateSuccessActionUrl = &validate
	}

	prepared, err := e.client.PrepareLnurlPay(prepareReq)
	if err != nil {
		return nil, err
	}
	return &LnurlPayPrepared{FeesSat: prepared.FeesSat, raw: prepared}, nil
}

func (e *sdkEngine) LnurlPay(prepared *LnurlPayPrepared) (map[string]interface{}, error) {
	raw, ok := prepared.raw.(sdk.PrepareLnUrlPayResponse)
	if !ok {
		return nil, fmt.Errorf("%w: prepared response did not come from this engine", ErrInvalidArgument)
	}
	result, err := e.client.LnurlPay(sdk.LnUrlPayRequest{PrepareResponse: raw})
	if err != nil {
		return nil, err
	}
	return toMap(result), nil
}

func (e *sdkEngine) LnurlAuth(input *ParsedInput) (bool, error) {
	auth, ok := input.raw.(sdk.InputTypeLnUrlAuth)
	if !ok {
		return false, fmt.Errorf("%w: parsed input is not an LNURL-Auth endpoint", ErrInvalidArgument)
	}
	status, err := e.client.LnurlAuth(auth.Data)
	if err != nil {
		return false, err
	}
	_, succeeded := status.(sdk.LnUrlCallbackStatusOk)
	return succeeded, nil
}

func (e *sdkEngine) LnurlWithdraw(input *ParsedInput, amountMsat uint64, comment string) (map[string]interface{}, error) {
	withdraw, ok := input.raw.(sdk.InputTypeLnUrlWithdraw)
	if !ok {
		return nil, fmt.Errorf("%w: parsed input is not an LNURL-Withdraw endpoint", ErrInvalidArgument)
	}

	req := sdk.LnUrlWithdrawRequest{
		Data:       withdraw.Data,
		AmountMsat: amountMsat,
	}
	if comment != "" {
		req.Description = &comment
	}

	result, err := e.client.LnurlWithdraw(req)
	if err != nil {
		return nil, err
	}
	return toMap(result), nil
}

func (e *sdkEngine) PrepareBuyBitcoin(provider string, amountSat uint64) (*BuyBitcoinPrepared, error) {
	var buyProvider sdk.BuyBitcoinProvider
	switch provider {
	case "MOONPAY":
		buyProvider = sdk.BuyBitcoinProviderMoonpay
	default:
		return nil, fmt.Errorf("%w: unknown buy provider %q", ErrInvalidArgument, provider)
	}

	prepared, err := e.client.PrepareBuyBitcoin(sdk.PrepareBuyBitcoinRequest{
		Provider:  buyProvider,
		AmountSat: amountSat,
	})
	if err != nil {
		return nil, err
	}
	return &BuyBitcoinPrepared{
		Provider:  provider,
		AmountSat: prepared.AmountSat,
		FeesSat:   prepared.FeesSat,
		raw:       prepared,
	}, nil
}

func (e *sdkEngine) BuyBitcoin(prepared *BuyBitcoinPrepared) (string, error) {
	raw, ok := prepared.raw.(sdk.PrepareBuyBitcoinResponse)
	if !ok {
		return "", fmt.Errorf("%w: prepared response did not come from this engine", ErrInvalidArgument)
	}
	return e.client.BuyBitcoin(sdk.BuyBitcoinRequest{PrepareResponse: raw})
}

func (e *sdkEngine) FetchFiatRates() ([]FiatRate, error) {
	rates, err := e.client.FetchFiatRates()
	if err != nil {
		return nil, err
	}
	result := make([]FiatRate, 0, len(rates))
	for _, rate := range rates {
		result = append(result, FiatRate{Coin: rate.Coin, Value: rate.Value})
	}
	return result, nil
}

func (e *sdkEngine) ListFiatCurrencies() ([]string, error) {
	currencies, err := e.client.ListFiatCurrencies()
	if err != nil {
		return nil, err
	}
	result := make([]string, 0, len(currencies))
	for _, currency := range currencies {
		result = append(result, currency.Id)
	}
	return result, nil
}

func (e *sdkEngine) FetchProposedFees(swapID string) (*ProposedFees, error) {
	response, err := e.client.FetchPaymentProposedFees(sdk.FetchPaymentProposedFeesRequest{SwapId: swapID})
	if err != nil {
		return nil, err
	}
	return &ProposedFees{
		SwapID:         response.SwapId,
		PayerAmountSat: response.PayerAmountSat,
		FeesSat:        response.FeesSat,
		raw:            response,
	}, nil
}

func (e *sdkEngine) AcceptProposedFees(fees *ProposedFees) error {
	raw, ok := fees.raw.(sdk.FetchPaymentProposedFeesResponse)
	if !ok {
		return fmt.Errorf("%w: proposed fees did not come from this engine", ErrInvalidArgument)
	}
	return e.client.AcceptPaymentProposedFees(sdk.AcceptPaymentProposedFeesRequest{Response: raw})
}

func (e *sdkEngine) SignMessage(message string) (*SignedMessage, error) {
	signed, err := e.client.SignMessage(sdk.SignMessageRequest{Message: message})
	if err != nil {
		return nil, err
	}
	info, err := e.client.GetInfo()
	if err != nil {
		return nil, err
	}
	return &SignedMessage{Signature: signed.Signature, Pubkey: info.WalletInfo.Pubkey}, nil
}

func (e *sdkEngine) CheckMessage(message, pubkey, signature string) (bool, error) {
	response, err := e.client.CheckMessage(sdk.CheckMessageRequest{
		Message:   message,
		Pubkey:    pubkey,
		Signature: signature,
	})
	if err != nil {
		return false, err
	}
	return response.IsValid, nil
}

func (e *sdkEngine) RegisterWebhook(url string) error {
	return e.client.RegisterWebhook(url)
}

func (e *sdkEngine) UnregisterWebhook() error {
	return e.client.UnregisterWebhook()
}

// flattenPayment reduces a binding payment to the transport-friendly
// record the rest of the service works with.
func flattenPayment(payment sdk.Payment) *PaymentRecord {
	record := &PaymentRecord{
		Timestamp:   int64(payment.Timestamp),
		AmountSat:   payment.AmountSat,
		FeesSat:     payment.FeesSat,
		PaymentType: paymentTypeString(payment.PaymentType),
		Status:      stateFromSDK(payment.Status),
		Details:     map[string]interface{}{},
	}
	if payment.Destination != nil {
		record.Destination = *payment.Destination
	}
	if payment.TxId != nil {
		record.TxID = *payment.TxId
	}

	switch details := payment.Details.(type) {
	case sdk.PaymentDetailsLightning:
		record.SwapID = details.SwapId
		record.Details["description"] = details.Description
		if details.PaymentHash != nil {
			record.PaymentHash = *details.PaymentHash
		}
		if details.Preimage != nil {
			record.Details["preimage"] = *details.Preimage
		}
		if details.Invoice != nil {
			record.Details["invoice"] = *details.Invoice
		}
	case sdk.PaymentDetailsLiquid:
		record.Details["description"] = details.Description
		record.Details["asset_id"] = details.AssetId
		if record.Destination == "" {
			record.Destination = details.Destination
		}
	case sdk.PaymentDetailsBitcoin:
		record.SwapID = details.SwapId
		record.Details["description"] = details.Description
	}
	if len(record.Details) == 0 {
		record.Details = nil
	}
	return record
}

func paymentTypeString(t sdk.PaymentType) string {
	if t == sdk.PaymentTypeSend {
		return "send"
	}
	return "receive"
}

// stateFromSDK folds the binding's eight lifecycle states into the
// service's seven. TimedOut counts as FAILED; Refundable and
// RefundPending count as REFUNDED since funds are on their way back.
func stateFromSDK(state sdk.PaymentState) PaymentState {
	switch state {
	case sdk.PaymentStateCreated, sdk.PaymentStatePending:
		return StatePending
	case sdk.PaymentStateComplete:
		return StateSucceeded
	case sdk.PaymentStateFailed, sdk.PaymentStateTimedOut:
		return StateFailed
	case sdk.PaymentStateRefundable, sdk.PaymentStateRefundPending:
		return StateRefunded
	case sdk.PaymentStateWaitingFeeAcceptance:
		return StateWaitingFeeAcceptance
	default:
		return StateUnknown
	}
}

// sdkStates maps a service state back to the binding states it covers,
// for list filters.
func sdkStates(state PaymentState) []sdk.PaymentState {
	switch state {
	case StatePending, StateWaitingConfirmation:
		return []sdk.PaymentState{sdk.PaymentStateCreated, sdk.PaymentStatePending}
	case StateSucceeded:
		return []sdk.PaymentState{sdk.PaymentStateComplete}
	case StateFailed:
		return []sdk.PaymentState{sdk.PaymentStateFailed, sdk.PaymentStateTimedOut}
	case StateRefunded:
		return []sdk.PaymentState{sdk.PaymentStateRefundable, sdk.PaymentStateRefundPending}
	case StateWaitingFeeAcceptance:
		return []sdk.PaymentState{sdk.PaymentStateWaitingFeeAcceptance}
	default:
		return nil
	}
}

// toMap converts a binding struct into a generic map through a JSON
// round trip, for responses the API returns verbatim.
func toMap(v interface{}) map[string]interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}
