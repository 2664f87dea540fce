package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/breez/payments-rest-api/internal/breez"
	"github.com/breez/payments-rest-api/internal/logger"
	"github.com/breez/payments-rest-api/internal/qr"
)

// Handler exposes the payment engine over REST. Every endpoint resolves
// the live handler through the manager so requests keep working across
// watchdog-triggered reconnects.
type Handler struct {
	Manager *breez.Manager
	Log     *logger.Logger
}

// Routes mounts all payment endpoints. Health stays outside the auth
// middleware so load balancers can probe without credentials.
func (h *Handler) Routes(r chi.Router, apiKey string) {
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(APIKeyAuth(apiKey, h.Log))

		r.Get("/info", h.Info)
		r.Get("/list_payments", h.ListPayments)
		r.Post("/send_payment", h.SendPayment)
		r.Post("/receive_payment", h.ReceivePayment)
		r.Post("/send_onchain", h.SendOnchain)
		r.Get("/lightning_limits", h.LightningLimits)
		r.Get("/onchain_limits", h.OnchainLimits)
		r.Get("/recommended_fees", h.RecommendedFees)
		r.Get("/check_payment_status/{identifier}", h.CheckPaymentStatus)
		r.Get("/exchange_rates", h.ExchangeRates)
		r.Get("/exchange_rates/{currency}", h.ExchangeRates)
		r.Get("/fiat_currencies", h.FiatCurrencies)
		r.Post("/sign_message", h.SignMessage)
		r.Post("/check_message", h.CheckMessage)
		r.Get("/refundables", h.Refundables)
		r.Post("/refund", h.Refund)
		r.Post("/rescan_swaps", h.RescanSwaps)
		r.Post("/buy_bitcoin", h.BuyBitcoin)
		r.Get("/invoice/{destination}/qr", h.InvoiceQR)
		r.Post("/webhook/register", h.RegisterWebhook)
		r.Post("/webhook/unregister", h.UnregisterWebhook)

		r.Route("/v1/lnurl", func(r chi.Router) {
			r.Post("/parse_input", h.ParseInput)
			r.Post("/prepare", h.LnurlPrepare)
			r.Post("/pay", h.LnurlPay)
			r.Post("/auth", h.LnurlAuth)
			r.Post("/withdraw", h.LnurlWithdraw)
		})
	})
}

// handler resolves the payment handler or answers 503.
func (h *Handler) handler(w http.ResponseWriter) (*breez.Handler, bool) {
	handler, err := h.Manager.Handler()
	if err != nil {
		http.Error(w, "Payment engine unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return nil, false
	}
	return handler, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps validation failures to 400 and engine failures to
// 502, keeping caller mistakes distinguishable from upstream trouble.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, breez.ErrInvalidArgument),
		errors.Is(err, breez.ErrInvalidAmount),
		errors.Is(err, breez.ErrInvalidPaymentMethod),
		errors.Is(err, breez.ErrInvalidIdentifier):
		status = http.StatusBadRequest
	case errors.Is(err, breez.ErrNotConnected):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	handler, err := h.Manager.Handler()
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "degraded",
			"synced": false,
			"error":  err.Error(),
		})
		return
	}
	status := "ok"
	if !handler.IsSynced() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": status,
		"synced": handler.IsSynced(),
	})
}

func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}
	info, err := handler.GetInfo()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}

	filter, err := parseListFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	payments, err := handler.ListPayments(filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if payments == nil {
		payments = []breez.PaymentRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payments": payments})
}

func parseListFilter(r *http.Request) (breez.ListFilter, error) {
	var filter breez.ListFilter
	q := r.URL.Query()

	if v := q.Get("from"); v != "" {
		from, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, errors.New("from must be a unix timestamp")
		}
		filter.FromTimestamp = &from
	}
	if v := q.Get("to"); v != "" {
		to, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, errors.New("to must be a unix timestamp")
		}
		filter.ToTimestamp = &to
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return filter, errors.New("offset must be a non-negative integer")
		}
		o := uint32(offset)
		filter.Offset = &o
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return filter, errors.New("limit must be a non-negative integer")
		}
		l := uint32(limit)
		filter.Limit = &l
	}
	if v := q.Get("type"); v != "" {
		filter.Types = strings.Split(v, ",")
	}
	if v := q.Get("state"); v != "" {
		for _, s := range strings.Split(v, ",") {
			filter.States = append(filter.States, breez.PaymentState(strings.ToUpper(s)))
		}
	}
	return filter, nil
}

type sendPaymentRequest struct {
	Destination string   `json:"destination"`
	AmountSat   *uint64  `json:"amount_sat,omitempty"`
	AmountAsset *float64 `json:"amount_asset,omitempty"`
	AssetID     string   `json:"asset_id,omitempty"`
	Drain       bool     `json:"drain,omitempty"`
}

func (h *Handler) SendPayment(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}

	var req sendPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := handler.SendPayment(r.Context(), breez.SendRequest{
		Destination: req.Destination,
		AmountSat:   req.AmountSat,
		AmountAsset: req.AmountAsset,
		AssetID:     req.AssetID,
		Drain:       req.Drain,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type receivePaymentRequest struct {
	AmountSat   uint64 `json:"amount_sat"`
	Method      string `json:"method,omitempty"`
	Description string `json:"description,omitempty"`
	AssetID     string `json:"asset_id,omitempty"`
}

func (h *Handler) ReceivePayment(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}

	var req receivePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Method == "" {
		req.Method = string(breez.MethodLightning)
	}

	result, err := handler.ReceivePayment(r.Context(), req.AmountSat, req.Method, req.Description, req.AssetID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type sendOnchainRequest struct {
	Address            string  `json:"address"`
	AmountSat          *uint64 `json:"amount_sat,omitempty"`
	Drain              bool    `json:"drain,omitempty"`
	FeeRateSatPerVbyte *uint32 `json:"fee_rate_sat_per_vbyte,omitempty"`
}

func (h *Handler) SendOnchain(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}

	var req sendOnchainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	prepared, err := handler.PreparePayOnchain(breez.OnchainPrepareRequest{
		AmountSat:          req.AmountSat,
		Drain:              req.Drain,
		FeeRateSatPerVbyte: req.FeeRateSatPerVbyte,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if err := handler.PayOnchain(req.Address, prepared); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":              "initiated",
		"receiver_amount_sat": prepared.ReceiverAmountSat,
		"total_fees_sat":      prepared.TotalFeesSat,
	})
}

func (h *Handler) LightningLimits(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}
	limits, err := handler.FetchLightningLimits()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, limits)
}

func (h *Handler) OnchainLimits(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}
	limits, err := handler.FetchOnchainLimits()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, limits)
}

func (h *Handler) RecommendedFees(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}
	fees, err := handler.RecommendedFees()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fees)
}

func (h *Handler) CheckPaymentStatus(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}

	identifier := chi.URLParam(r, "identifier")
	result, err := handler.CheckPaymentStatus(identifier)
	if err != nil {
		writeError(w, err)
		return
	}
	// Not found is a normal answer: UNKNOWN status, HTTP 200.
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) ExchangeRates(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}

	currency := chi.URLParam(r, "currency")
	rates, err := handler.ExchangeRate(currency)
	if err != nil {
		if errors.Is(err, breez.ErrInvalidArgument) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rates": rates})
}

func (h *Handler) FiatCurrencies(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}
	currencies, err := handler.ListFiatCurrencies()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"currencies": currencies})
}

func (h *Handler) SignMessage(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	signed, err := handler.SignMessage(req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, signed)
}

func (h *Handler) CheckMessage(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}

	var req struct {
		Message   string `json:"message"`
		Pubkey    string `json:"pubkey"`
		Signature string `json:"signature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	valid, err := handler.CheckMessage(req.Message, req.Pubkey, req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_valid": valid})
}

func (h *Handler) Refundables(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}
	refundables, err := handler.ListRefundables()
	if err != nil {
		writeError(w, err)
		return
	}
	if refundables == nil {
		refundables = []breez.RefundableSwap{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"refundables": refundables})
}

func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}

	var req struct {
		SwapAddress        string `json:"swap_address"`
		RefundAddress      string `json:"refund_address"`
		FeeRateSatPerVbyte uint32 `json:"fee_rate_sat_per_vbyte"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	err := handler.ExecuteRefund(breez.RefundRequest{
		SwapAddress:        req.SwapAddress,
		RefundAddress:      req.RefundAddress,
		FeeRateSatPerVbyte: req.FeeRateSatPerVbyte,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refund initiated"})
}

func (h *Handler) RescanSwaps(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}
	if err := handler.RescanSwaps(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rescan initiated"})
}

func (h *Handler) BuyBitcoin(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}

	var req struct {
		Provider  string `json:"provider"`
		AmountSat uint64 `json:"amount_sat"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Provider == "" {
		req.Provider = "MOONPAY"
	}

	url, feesSat, err := handler.BuyBitcoin(req.Provider, req.AmountSat)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"url":      url,
		"fees_sat": feesSat,
	})
}

func (h *Handler) InvoiceQR(w http.ResponseWriter, r *http.Request) {
	destination := chi.URLParam(r, "destination")

	size := 0
	if v := r.URL.Query().Get("size"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "size must be an integer", http.StatusBadRequest)
			return
		}
		size = parsed
	}

	png, err := qr.EncodeDestination(destination, size)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (h *Handler) RegisterWebhook(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := handler.RegisterWebhook(req.URL); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "webhook registered"})
}

func (h *Handler) UnregisterWebhook(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}
	if err := handler.UnregisterWebhook(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "webhook unregistered"})
}

func (h *Handler) ParseInput(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}

	var req struct {
		Input string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Input == "" {
		http.Error(w, "input must be a non-empty string", http.StatusBadRequest)
		return
	}

	parsed, err := handler.ParseInput(req.Input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, parsed)
}

// LnurlPrepare quotes the LNURL-Pay fee without executing the payment.
func (h *Handler) LnurlPrepare(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}

	var req struct {
		Lnurl              string `json:"lnurl"`
		AmountSat          uint64 `json:"amount_sat"`
		Comment            string `json:"comment,omitempty"`
		ValidateSuccessURL bool   `json:"validate_success_url,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	prepared, err := handler.PrepareLnurlPay(req.Lnurl, req.AmountSat, req.Comment, req.ValidateSuccessURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"amount_sat": req.AmountSat,
		"fees_sat":   prepared.FeesSat,
	})
}

func (h *Handler) LnurlPay(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}

	var req struct {
		Lnurl              string `json:"lnurl"`
		AmountSat          uint64 `json:"amount_sat"`
		Comment            string `json:"comment,omitempty"`
		ValidateSuccessURL bool   `json:"validate_success_url,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := handler.LnurlPay(req.Lnurl, req.AmountSat, req.Comment, req.ValidateSuccessURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) LnurlAuth(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}

	var req struct {
		Lnurl string `json:"lnurl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	okAuth, err := handler.LnurlAuth(req.Lnurl)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": okAuth})
}

func (h *Handler) LnurlWithdraw(w http.ResponseWriter, r *http.Request) {
	handler, ok := h.handler(w)
	if !ok {
		return
	}

	var req struct {
		Lnurl      string `json:"lnurl"`
		AmountMsat uint64 `json:"amount_msat"`
		Comment    string `json:"comment,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := handler.LnurlWithdraw(req.Lnurl, req.AmountMsat, req.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
