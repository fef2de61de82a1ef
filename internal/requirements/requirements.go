// Package requirements builds canonical payment requirements from a
// requested USD amount and resource descriptor.
package requirements

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/x402"
)

// DefaultTimeoutSeconds is the payment obligation validity used when the
// configuration does not override it.
const DefaultTimeoutSeconds = 300

// Config holds the fixed parameters every issued requirement shares.
type Config struct {
	// Network is the ledger network in CAIP-2 format.
	Network string

	// Asset is "native" or "CODE:ISSUER".
	Asset string

	// TimeoutSeconds is the payment validity period.
	TimeoutSeconds int

	// FeeSponsorship enables fee-bump wrapping at settlement.
	FeeSponsorship bool
}

// FiatConfig describes the fiat payment alternative, when offered.
type FiatConfig struct {
	// Enabled turns the fiat option on.
	Enabled bool

	// Currency is the ISO currency code (e.g., "BOB").
	Currency string

	// Symbol is the display symbol (e.g., "Bs").
	Symbol string

	// ProofChannel names how proofs arrive ("qr", "bank_transfer").
	ProofChannel string

	// RateUSD is the fiat units per USD conversion rate.
	RateUSD float64
}

// Build converts a USD amount and resource descriptor into immutable
// payment requirements. The USD amount is converted to atomic units exactly
// once, truncating toward zero.
func Build(amountUSD float64, resource, description, payTo string, cfg Config) (x402.PaymentRequirements, error) {
	if payTo == "" {
		return x402.PaymentRequirements{}, x402.ErrNoPayTo
	}

	atomic, err := x402.USDToAtomic(amountUSD)
	if err != nil {
		return x402.PaymentRequirements{}, fmt.Errorf("converting %v USD: %w", amountUSD, err)
	}

	if _, _, _, err := x402.ParseAsset(cfg.Asset); err != nil {
		return x402.PaymentRequirements{}, err
	}

	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = DefaultTimeoutSeconds
	}

	req := x402.PaymentRequirements{
		Scheme:            x402.SchemeExact,
		Network:           cfg.Network,
		MaxAmountRequired: atomic,
		Resource:          resource,
		Description:       description,
		PayTo:             payTo,
		Asset:             cfg.Asset,
		MaxTimeoutSeconds: timeout,
	}
	if cfg.FeeSponsorship {
		req.Extra = map[string]interface{}{"feeSponsorship": true}
	}
	return req, nil
}

// FiatOption builds the fiat payment alternative for the given USD amount,
// or nil when fiat payments are disabled. The display amount carries two
// decimals in the configured currency.
func FiatOption(amountUSD float64, cfg FiatConfig) *x402.FiatOption {
	if !cfg.Enabled {
		return nil
	}

	rate := cfg.RateUSD
	if rate <= 0 {
		rate = 1
	}

	fiatAmount := decimal.NewFromFloat(amountUSD).
		Mul(decimal.NewFromFloat(rate)).
		StringFixed(2)

	return &x402.FiatOption{
		Currency:     cfg.Currency,
		Symbol:       cfg.Symbol,
		Amount:       fiatAmount,
		ProofChannel: cfg.ProofChannel,
	}
}
