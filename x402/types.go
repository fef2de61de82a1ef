// Package x402 implements the wire types of the x402 "Payment Required"
// protocol as used by the PasaTanda payment backend.
//
// Payments settle on the Stellar network. Amounts are expressed in atomic
// units (stroops, 7 decimal places) as integer strings; floating point is
// used exactly once, at requirement-creation time, with truncation toward
// zero.
package x402

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Protocol version constant.
const X402Version = 1

// SchemeExact is the only payment scheme supported: the payer transfers at
// least the exact required amount in a single payment operation.
const SchemeExact = "exact"

// Stellar network identifiers in CAIP-2 format.
const (
	NetworkStellarPubnet  = "stellar:pubnet"
	NetworkStellarTestnet = "stellar:testnet"
)

// AssetNative identifies the native ledger asset (XLM). Issued assets use
// the "CODE:ISSUER" form.
const AssetNative = "native"

// AtomicPrecision is the number of decimal places of the ledger's atomic
// unit (1 unit = 10^7 stroops).
const AtomicPrecision = 7

// PaymentMethod tags the two payload variants a job may settle through.
type PaymentMethod string

const (
	// MethodCrypto is a signed Stellar transaction.
	MethodCrypto PaymentMethod = "crypto"

	// MethodFiat is a bank transfer proof (reference/glosa).
	MethodFiat PaymentMethod = "fiat"
)

// PaymentRequirements defines a single acceptable crypto payment option.
// It is immutable once issued.
type PaymentRequirements struct {
	// Scheme is the payment scheme identifier (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network is the ledger network in CAIP-2 format (e.g., "stellar:testnet").
	Network string `json:"network"`

	// MaxAmountRequired is the required amount in atomic units (stroops),
	// as a positive integer string.
	MaxAmountRequired string `json:"maxAmountRequired"`

	// Resource identifies the resource the payment unlocks.
	Resource string `json:"resource"`

	// Description is an optional human-readable description.
	Description string `json:"description,omitempty"`

	// PayTo is the recipient Stellar account.
	PayTo string `json:"payTo"`

	// Asset is "native" or "CODE:ISSUER" for issued assets.
	Asset string `json:"asset"`

	// MaxTimeoutSeconds is the validity period of the payment obligation.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Extra contains scheme-specific flags (e.g., "feeSponsorship": true).
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// FeeSponsored reports whether the facilitator sponsors network fees for
// this option by wrapping the payer transaction in a fee-bump envelope.
func (r PaymentRequirements) FeeSponsored() bool {
	if r.Extra == nil {
		return false
	}
	v, ok := r.Extra["feeSponsorship"].(bool)
	return ok && v
}

// FiatOption describes a fiat payment alternative offered alongside the
// crypto requirements.
type FiatOption struct {
	// Currency is the ISO currency code (e.g., "BOB").
	Currency string `json:"currency"`

	// Symbol is the display symbol (e.g., "Bs").
	Symbol string `json:"symbol"`

	// Amount is the display amount in the fiat currency, two decimals.
	Amount string `json:"amount"`

	// ProofChannel names how the proof reaches the facilitator
	// (e.g., "qr", "bank_transfer").
	ProofChannel string `json:"proofChannel"`
}

// PaymentOption is one entry of the "accepts" list in a 402 response,
// tagged by payment method.
type PaymentOption struct {
	Method PaymentMethod        `json:"method"`
	Crypto *PaymentRequirements `json:"crypto,omitempty"`
	Fiat   *FiatOption          `json:"fiat,omitempty"`
}

// PaymentRequired is the 402 response body sent to payers.
type PaymentRequired struct {
	// X402Version is the protocol version.
	X402Version int `json:"x402Version"`

	// Error is a human-readable error message.
	Error string `json:"error,omitempty"`

	// Resource identifies the resource payment is required for.
	Resource string `json:"resource"`

	// Accepts lists the payment options the server will accept.
	Accepts []PaymentOption `json:"accepts"`

	// JobID correlates subsequent proof submissions with the payment job.
	JobID string `json:"jobId"`
}

// StellarPayload carries the ledger-specific signed payment data.
type StellarPayload struct {
	// TransactionXDR is the base64-encoded signed transaction envelope.
	TransactionXDR string `json:"transaction"`

	// Source is the payer account the transaction claims to originate from.
	Source string `json:"source"`

	// Amount is the claimed payment amount in atomic units.
	Amount string `json:"amount"`

	// Destination is the claimed payment destination.
	Destination string `json:"destination"`

	// Asset is "native" or "CODE:ISSUER".
	Asset string `json:"asset"`

	// ValidBefore is the unix timestamp bound of the transaction, if any.
	ValidBefore int64 `json:"validBefore,omitempty"`

	// Nonce is an optional client-chosen replay marker.
	Nonce string `json:"nonce,omitempty"`
}

// CryptoPayload is the crypto variant of a payment proof.
type CryptoPayload struct {
	// X402Version is the protocol version.
	X402Version int `json:"x402Version"`

	// Scheme is the payment scheme identifier.
	Scheme string `json:"scheme"`

	// Network is the ledger network in CAIP-2 format.
	Network string `json:"network"`

	// Stellar contains the signed transaction and its claimed parameters.
	Stellar StellarPayload `json:"payload"`
}

// FiatPayload is the fiat variant of a payment proof.
type FiatPayload struct {
	// Currency is the ISO currency code the transfer was made in.
	Currency string `json:"currency"`

	// Reference is the transfer reference (glosa) the payer used.
	Reference string `json:"reference"`

	// TransactionRef is an optional bank-side transaction identifier.
	TransactionRef string `json:"transactionRef,omitempty"`
}

// PaymentPayload is the proof a payer submits. It is an explicit sum of
// exactly two variants; Method tags which one is populated.
type PaymentPayload struct {
	Method PaymentMethod  `json:"method"`
	Crypto *CryptoPayload `json:"crypto,omitempty"`
	Fiat   *FiatPayload   `json:"fiat,omitempty"`
}

// Validate checks that exactly one variant is populated and that it matches
// the method tag.
func (p PaymentPayload) Validate() error {
	switch p.Method {
	case MethodCrypto:
		if p.Crypto == nil || p.Fiat != nil {
			return ErrInvalidPayload
		}
		if p.Crypto.Stellar.TransactionXDR == "" || p.Crypto.Stellar.Source == "" {
			return ErrInvalidPayload
		}
	case MethodFiat:
		if p.Fiat == nil || p.Crypto != nil {
			return ErrInvalidPayload
		}
		if p.Fiat.Currency == "" || p.Fiat.Reference == "" {
			return ErrInvalidPayload
		}
	default:
		return ErrInvalidPayload
	}
	return nil
}

// VerifyResponse is the outcome of payment verification.
type VerifyResponse struct {
	// IsValid indicates whether the payment proof is valid.
	IsValid bool `json:"isValid"`

	// InvalidReason provides a short error code if the proof is invalid.
	InvalidReason string `json:"invalidReason,omitempty"`

	// InvalidMessage provides a human-readable error message.
	InvalidMessage string `json:"invalidMessage,omitempty"`

	// Payer is the resolved payer account.
	Payer string `json:"payer,omitempty"`
}

// SettleResponse is the outcome of payment settlement.
type SettleResponse struct {
	// Success indicates whether the payment was settled.
	Success bool `json:"success"`

	// ErrorReason provides a short error code if settlement failed.
	ErrorReason string `json:"errorReason,omitempty"`

	// ErrorMessage provides a human-readable error message.
	ErrorMessage string `json:"errorMessage,omitempty"`

	// Transaction is the ledger transaction hash, or the fiat transfer
	// reference for fiat settlements.
	Transaction string `json:"transaction"`

	// Network is the ledger network the payment settled on (crypto only).
	Network string `json:"network,omitempty"`

	// Payer is the account or identity that made the payment.
	Payer string `json:"payer,omitempty"`

	// Method is the payment method the job settled through.
	Method PaymentMethod `json:"method"`
}

// USDToAtomic converts a USD amount to atomic units (stroops) as an integer
// string, truncating toward zero. This is the single place floating point
// enters amount handling.
func USDToAtomic(usd float64) (string, error) {
	d := decimal.NewFromFloat(usd).Shift(AtomicPrecision).Truncate(0)
	if d.Sign() <= 0 {
		return "", fmt.Errorf("%w: %v USD", ErrInvalidAmount, usd)
	}
	return d.String(), nil
}

// ParseAtomic parses an atomic unit string into stroops.
// Returns ErrInvalidAmount for non-positive or malformed values.
func ParseAtomic(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return v, nil
}

// ParseAsset splits an asset identifier into its parts.
// "native" yields native=true; issued assets must be "CODE:ISSUER".
func ParseAsset(s string) (code, issuer string, native bool, err error) {
	if s == AssetNative {
		return "", "", true, nil
	}
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false, fmt.Errorf("%w: %q", ErrInvalidAsset, s)
	}
	return parts[0], parts[1], false, nil
}
