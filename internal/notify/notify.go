// Package notify delivers payment lifecycle events to external subscribers.
//
// Delivery is fire-and-forget: a failed delivery is logged and never rolls
// back or retries the job's own state.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/x402"
)

const defaultTimeout = 10 * time.Second

// Event is one payment job transition of interest.
type Event struct {
	// JobID is the payment job identifier.
	JobID string `json:"jobId"`

	// OrderID is the caller-supplied correlation key.
	OrderID string `json:"orderId"`

	// Status is the job status after the transition.
	Status string `json:"status"`

	// Method is the locked payment method, when set.
	Method x402.PaymentMethod `json:"method,omitempty"`

	// Transaction is the ledger hash or fiat reference, when available.
	Transaction string `json:"transaction,omitempty"`

	// Payer is the resolved payer, when available.
	Payer string `json:"payer,omitempty"`

	// Reason carries the rejection reason on failed/expired transitions.
	Reason string `json:"reason,omitempty"`

	// ConfirmedBy records who resolved a manual confirmation.
	ConfirmedBy string `json:"confirmedBy,omitempty"`

	// Timestamp is when the transition occurred.
	Timestamp time.Time `json:"timestamp"`
}

// Notifier receives one event per transition of interest.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Nop is a Notifier that discards every event.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Event) {}

// Webhook posts events as JSON to a configured URL.
type Webhook struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhook creates a webhook notifier. A non-positive timeout falls back
// to ten seconds.
func NewWebhook(url string, timeout time.Duration, logger *slog.Logger) *Webhook {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Notify posts the event. Failures are logged and swallowed.
func (w *Webhook) Notify(ctx context.Context, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		w.logger.Error("marshaling webhook event", "jobId", event.JobID, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.Error("building webhook request", "jobId", event.JobID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("webhook delivery failed", "jobId", event.JobID, "status", event.Status, "error", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		w.logger.Warn("webhook delivery rejected",
			"jobId", event.JobID, "status", event.Status, "httpStatus", resp.StatusCode)
		return
	}

	w.logger.Debug("webhook delivered", "jobId", event.JobID, "status", event.Status)
}
