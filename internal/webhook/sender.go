package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/breez/payments-rest-api/internal/breez"
	"github.com/breez/payments-rest-api/internal/config"
	"github.com/breez/payments-rest-api/internal/logger"
)

// PaymentNotification is the body POSTed to the configured webhook on
// every payment state transition.
type PaymentNotification struct {
	Identifier string               `json:"identifier"`
	Status     breez.PaymentState   `json:"status"`
	Error      string               `json:"error,omitempty"`
	Timestamp  int64                `json:"timestamp"`
	Payment    *breez.PaymentRecord `json:"payment,omitempty"`
}

// Sender delivers signed payment notifications to one webhook URL.
// Implements breez.Notifier.
type Sender struct {
	client *resty.Client
	url    string
	secret string
	log    *logger.Logger
}

func NewSender(cfg config.WebhookConfig, log *logger.Logger) *Sender {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &Sender{
		client: client,
		url:    cfg.URL,
		secret: cfg.Secret,
		log:    log,
	}
}

// NotifyPayment signs and posts the transition. Delivery failures are
// logged and swallowed so the event path never blocks on a slow
// receiver beyond the client timeout.
func (s *Sender) NotifyPayment(identifier string, status breez.PaymentState, payment *breez.PaymentRecord, errMsg string) {
	notification := PaymentNotification{
		Identifier: identifier,
		Status:     status,
		Error:      errMsg,
		Timestamp:  time.Now().Unix(),
		Payment:    payment,
	}

	body, err := json.Marshal(notification)
	if err != nil {
		s.log.Error("WEBHOOK", fmt.Sprintf("Error marshaling notification for %s: %v", identifier, err))
		return
	}

	req := s.client.R().SetBody(body)
	if s.secret != "" {
		req.SetHeader("X-Webhook-Signature", Sign(body, s.secret))
	}

	resp, err := req.Post(s.url)
	if err != nil {
		s.log.Error("WEBHOOK", fmt.Sprintf("Error delivering %s notification for %s: %v", status, identifier, err))
		return
	}
	if resp.IsError() {
		s.log.Error("WEBHOOK", fmt.Sprintf("Webhook returned %d for %s notification of %s", resp.StatusCode(), status, identifier))
		return
	}
	s.log.LogWebhook("DELIVER", s.url, fmt.Sprintf("delivered %s notification for %s", status, identifier))
}

// Sign computes the hex HMAC-SHA256 of body under secret. Receivers
// recompute it over the raw bytes to authenticate the sender.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret, in
// constant time.
func Verify(body []byte, secret, signature string) bool {
	expected := Sign(body, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// MultiNotifier fans one transition out to several targets in order.
type MultiNotifier []breez.Notifier

func (m MultiNotifier) NotifyPayment(identifier string, status breez.PaymentState, payment *breez.PaymentRecord, errMsg string) {
	for _, notifier := range m {
		notifier.NotifyPayment(identifier, status, payment, errMsg)
	}
}
