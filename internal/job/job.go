// Package job owns the payment job state machine and its registry.
//
// Jobs are kept in volatile memory; the registry is an explicitly owned
// store constructed at service start and closed at shutdown, never a
// hidden singleton.
package job

import (
	"time"

	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/x402"
)

// Status is the payment job lifecycle state.
type Status string

const (
	StatusPaymentRequired Status = "payment_required"
	StatusPaymentReceived Status = "payment_received"
	StatusVerifying       Status = "verifying"
	StatusVerified        Status = "verified"
	StatusSettling        Status = "settling"
	StatusSettled         Status = "settled"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusExpired         Status = "expired"
)

// Terminal reports whether no further transition may ever be applied.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// Live reports whether the job still occupies its order id slot: a live
// job makes creation for the same order id idempotent.
func (s Status) Live() bool {
	return !s.Terminal()
}

// next lists the statuses reachable from each non-terminal status.
// failed and expired are additionally reachable from every non-terminal
// status; see Registry transitions.
var next = map[Status][]Status{
	StatusPaymentRequired: {StatusPaymentReceived},
	StatusPaymentReceived: {StatusVerifying, StatusSettled},
	StatusVerifying:       {StatusVerified},
	StatusVerified:        {StatusSettling},
	StatusSettling:        {StatusSettled},
	StatusSettled:         {StatusCompleted},
}

// canTransition reports whether to is a legal successor of from.
// payment_received -> settled is the fiat shortcut: fiat settlement is
// evidenced externally and skips the verify/settle pipeline.
func canTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusFailed || to == StatusExpired {
		return true
	}
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PaymentJob is the central entity, exclusively owned by the Registry.
// Accessors hand out copies; only the registry mutates live instances.
type PaymentJob struct {
	// ID is the unique job identifier, generated at creation.
	ID string `json:"id"`

	// OrderID is the caller-supplied correlation key. At most one live
	// job exists per order id.
	OrderID string `json:"orderId"`

	// AmountUSD is the requested amount in USD.
	AmountUSD float64 `json:"amountUsd"`

	// AmountAtomic is the required amount in atomic units.
	AmountAtomic string `json:"amountAtomic"`

	// Resource identifies what the payment unlocks.
	Resource string `json:"resource"`

	// Description is a human-readable purpose.
	Description string `json:"description,omitempty"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// Requirements are the issued payment requirements, immutable.
	Requirements x402.PaymentRequirements `json:"requirements"`

	// Payload is the received payment proof, set at most once.
	Payload *x402.PaymentPayload `json:"payload,omitempty"`

	// VerifyResult records the verification outcome, set at most once.
	VerifyResult *x402.VerifyResponse `json:"verifyResult,omitempty"`

	// SettleResult records the settlement outcome, set at most once.
	SettleResult *x402.SettleResponse `json:"settleResult,omitempty"`

	// Method is the locked payment method, empty until a payload is
	// accepted.
	Method x402.PaymentMethod `json:"method,omitempty"`

	// RequiresManualConfirmation gates the settled -> completed
	// transition behind an explicit confirmation.
	RequiresManualConfirmation bool `json:"requiresManualConfirmation"`

	// ConfirmedBy records who confirmed, when confirmation happened.
	ConfirmedBy string `json:"confirmedBy,omitempty"`

	// ConfirmedAt records when confirmation happened.
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`

	// Error carries the rejection reason of a failed or expired job.
	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// clone returns a copy safe to hand outside the registry lock.
func (j *PaymentJob) clone() *PaymentJob {
	c := *j
	if j.Payload != nil {
		p := *j.Payload
		if j.Payload.Crypto != nil {
			cp := *j.Payload.Crypto
			p.Crypto = &cp
		}
		if j.Payload.Fiat != nil {
			fp := *j.Payload.Fiat
			p.Fiat = &fp
		}
		c.Payload = &p
	}
	if j.VerifyResult != nil {
		v := *j.VerifyResult
		c.VerifyResult = &v
	}
	if j.SettleResult != nil {
		s := *j.SettleResult
		c.SettleResult = &s
	}
	if j.ConfirmedAt != nil {
		ts := *j.ConfirmedAt
		c.ConfirmedAt = &ts
	}
	return &c
}
