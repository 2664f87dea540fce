package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/breez/payments-rest-api/internal/shopify"
)

// WebhookVerifier authenticates raw Shopify webhook bodies.
type WebhookVerifier interface {
	VerifyWebhook(body []byte, signature string) bool
}

type Handler struct {
	Service  *shopify.Service
	Verifier WebhookVerifier
}

// Routes mounts the Shopify endpoints. Webhook routes authenticate via
// the Shopify HMAC header, not the service API key: Shopify is the
// caller.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/checkout", h.ProcessCheckout)
	r.Get("/orders/{checkoutToken}", h.GetOrder)
	r.Post("/webhooks/orders-create", h.OrderCreated)
	r.Post("/webhooks/orders-paid", h.OrderPaid)
	r.Post("/webhooks/orders-cancelled", h.OrderCancelled)
}

func (h *Handler) ProcessCheckout(w http.ResponseWriter, r *http.Request) {
	var req shopify.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.Service.ProcessCheckout(r.Context(), req)
	if err != nil {
		if errors.Is(err, shopify.ErrCheckoutInProgress) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, "Could not process checkout: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "checkoutToken")
	order, err := h.Service.GetOrder(token)
	if err != nil {
		if errors.Is(err, shopify.ErrOrderNotFound) {
			http.Error(w, "Order not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Could not fetch order: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(order)
}

// shopifyWebhookOrder is the slice of the webhook payload we read.
type shopifyWebhookOrder struct {
	ID            json.Number `json:"id"`
	CheckoutToken string      `json:"checkout_token"`
}

// readWebhook verifies the HMAC header and decodes the order payload.
func (h *Handler) readWebhook(w http.ResponseWriter, r *http.Request) (*shopifyWebhookOrder, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Could not read request body", http.StatusBadRequest)
		return nil, false
	}

	signature := r.Header.Get("X-Shopify-Hmac-Sha256")
	if signature == "" || !h.Verifier.VerifyWebhook(body, signature) {
		http.Error(w, "Invalid webhook signature", http.StatusUnauthorized)
		return nil, false
	}

	var order shopifyWebhookOrder
	if err := json.Unmarshal(body, &order); err != nil {
		http.Error(w, "Invalid webhook body: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return &order, true
}

func (h *Handler) OrderCreated(w http.ResponseWriter, r *http.Request) {
	order, ok := h.readWebhook(w, r)
	if !ok {
		return
	}

	if err := h.Service.LinkShopifyOrder(order.CheckoutToken, order.ID.String()); err != nil {
		if errors.Is(err, shopify.ErrOrderNotFound) {
			// Order for a checkout we never invoiced. Acknowledge so
			// Shopify stops retrying.
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Error(w, "Could not link order: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) OrderPaid(w http.ResponseWriter, r *http.Request) {
	order, ok := h.readWebhook(w, r)
	if !ok {
		return
	}

	if err := h.Service.HandleOrderPaid(order.ID.String()); err != nil {
		if errors.Is(err, shopify.ErrOrderNotFound) {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Error(w, "Could not process paid webhook: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) OrderCancelled(w http.ResponseWriter, r *http.Request) {
	order, ok := h.readWebhook(w, r)
	if !ok {
		return
	}

	if err := h.Service.HandleOrderCancelled(order.ID.String()); err != nil {
		if errors.Is(err, shopify.ErrOrderNotFound) {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Error(w, "Could not process cancelled webhook: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
