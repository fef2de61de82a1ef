// Package facilitator implements the verify/settle protocol logic of the
// payment facilitator over the Stellar network.
//
// The engine is stateless: every call carries the payload and requirements
// it operates on. The facilitator signing key is owned exclusively by this
// package and never leaves it.
package facilitator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stellar/go/amount"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/txnbuild"

	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/x402"
)

// HorizonClient is the narrow slice of the Horizon API the engine needs.
// *horizonclient.Client satisfies it; tests inject fakes.
type HorizonClient interface {
	AccountDetail(request horizonclient.AccountRequest) (hProtocol.Account, error)
	SubmitTransaction(tx *txnbuild.Transaction) (hProtocol.Transaction, error)
	SubmitFeeBumpTransaction(tx *txnbuild.FeeBumpTransaction) (hProtocol.Transaction, error)
	TransactionDetail(txHash string) (hProtocol.Transaction, error)
}

// Options configures an Engine.
type Options struct {
	// NetworkPassphrase is the Stellar network passphrase used for
	// transaction hashing and signing.
	NetworkPassphrase string

	// Network is the CAIP-2 network identifier expected in payloads.
	Network string

	// SigningSeed is the facilitator's secret seed, required for
	// fee-sponsored settlement. Empty disables sponsorship.
	SigningSeed string

	// BaseFee is the per-operation fee offered on fee-bump envelopes.
	// Zero selects ten times the network minimum.
	BaseFee int64

	// PollInterval is the delay between settlement status polls.
	PollInterval time.Duration

	// MaxPollAttempts bounds status polling after submission.
	MaxPollAttempts int

	// Logger is used for settlement progress logging.
	Logger *slog.Logger
}

// Engine performs payment verification and settlement against Horizon.
type Engine struct {
	horizon           HorizonClient
	networkPassphrase string
	network           string
	signingKey        *keypair.Full
	baseFee           int64
	pollInterval      time.Duration
	maxPollAttempts   int
	logger            *slog.Logger
}

// NewEngine creates a facilitator engine.
func NewEngine(horizon HorizonClient, opts Options) (*Engine, error) {
	if horizon == nil {
		return nil, fmt.Errorf("facilitator: horizon client is required")
	}
	if opts.NetworkPassphrase == "" || opts.Network == "" {
		return nil, fmt.Errorf("facilitator: %w", x402.ErrInvalidNetwork)
	}

	var signingKey *keypair.Full
	if opts.SigningSeed != "" {
		kp, err := keypair.ParseFull(opts.SigningSeed)
		if err != nil {
			return nil, fmt.Errorf("facilitator: %w", x402.ErrInvalidKey)
		}
		signingKey = kp
	}

	baseFee := opts.BaseFee
	if baseFee <= 0 {
		baseFee = 10 * txnbuild.MinBaseFee
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	maxPollAttempts := opts.MaxPollAttempts
	if maxPollAttempts <= 0 {
		maxPollAttempts = 30
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		horizon:           horizon,
		networkPassphrase: opts.NetworkPassphrase,
		network:           opts.Network,
		signingKey:        signingKey,
		baseFee:           baseFee,
		pollInterval:      pollInterval,
		maxPollAttempts:   maxPollAttempts,
		logger:            logger,
	}, nil
}

// SignerAddress returns the facilitator's public signing address, or ""
// when no signing key is configured.
func (e *Engine) SignerAddress() string {
	if e.signingKey == nil {
		return ""
	}
	return e.signingKey.Address()
}

// Network returns the CAIP-2 network identifier the engine settles on.
func (e *Engine) Network() string {
	return e.network
}

// Verify checks a payment proof against the issued requirements without
// submitting anything to the ledger. Checks run in order and short-circuit
// on the first failure. A returned error means verification could not be
// performed (e.g., Horizon unreachable), not that the proof is invalid.
func (e *Engine) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	if payload.Method != x402.MethodCrypto || payload.Crypto == nil {
		return invalid(x402.ReasonInvalidPayload, "payload is not a crypto payment"), nil
	}
	cp := payload.Crypto

	if cp.X402Version != x402.X402Version {
		return invalid(x402.ReasonUnsupportedVersion,
			fmt.Sprintf("unsupported protocol version %d", cp.X402Version)), nil
	}
	if cp.Network != e.network || cp.Network != requirements.Network {
		return invalid(x402.ReasonInvalidNetwork,
			fmt.Sprintf("network %q not accepted", cp.Network)), nil
	}
	if cp.Scheme != x402.SchemeExact || cp.Scheme != requirements.Scheme {
		return invalid(x402.ReasonInvalidScheme,
			fmt.Sprintf("scheme %q not accepted", cp.Scheme)), nil
	}

	tx, err := decodeTransaction(cp.Stellar.TransactionXDR)
	if err != nil {
		return invalid(x402.ReasonMalformedTransaction, err.Error()), nil
	}

	source := tx.SourceAccount().AccountID
	if source != cp.Stellar.Source {
		return invalid(x402.ReasonSourceMismatch,
			"transaction source does not match claimed source account"), nil
	}

	ok, err := e.verifySignature(tx, source)
	if err != nil {
		return invalid(x402.ReasonInvalidSignature, err.Error()), nil
	}
	if !ok {
		return invalid(x402.ReasonInvalidSignature,
			"no signature verifies against the source account"), nil
	}

	payment := findPayment(tx)
	if payment == nil {
		return invalid(x402.ReasonMissingPaymentOp,
			"transaction carries no payment operation"), nil
	}
	if payment.Destination != requirements.PayTo {
		return invalid(x402.ReasonDestinationMismatch,
			"payment destination does not match payee"), nil
	}

	required, err := x402.ParseAtomic(requirements.MaxAmountRequired)
	if err != nil {
		return nil, fmt.Errorf("parsing required amount: %w", err)
	}
	paid, err := amount.ParseInt64(payment.Amount)
	if err != nil {
		return invalid(x402.ReasonMalformedTransaction,
			fmt.Sprintf("unparseable payment amount %q", payment.Amount)), nil
	}
	if paid < required {
		return invalid(x402.ReasonInsufficientAmount,
			fmt.Sprintf("payment of %d stroops below required %d", paid, required)), nil
	}

	matches, err := assetMatches(payment.Asset, requirements.Asset)
	if err != nil {
		return nil, err
	}
	if !matches {
		return invalid(x402.ReasonAssetMismatch,
			fmt.Sprintf("payment asset does not match required %q", requirements.Asset)), nil
	}

	// Live balance lookup. The balance can change between verify and
	// settle; the ledger's own rejection is the backstop for that race.
	account, err := e.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: source})
	if err != nil {
		return nil, fmt.Errorf("fetching account %s: %w", source, err)
	}
	balance, found, err := balanceFor(account, requirements.Asset)
	if err != nil {
		return nil, err
	}
	if !found || balance < required {
		return invalid(x402.ReasonInsufficientBalance,
			"source account balance below required amount"), nil
	}

	return &x402.VerifyResponse{IsValid: true, Payer: source}, nil
}

// Settle submits a verified payment to the ledger. When the requirements
// carry the fee sponsorship flag and a signing key is configured, the payer
// transaction is wrapped unmodified in a fee-bump envelope paid for by the
// facilitator. Submission is not idempotent for new transactions; the
// sequential queue is what prevents duplicate in-flight submissions.
func (e *Engine) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error) {
	if payload.Method != x402.MethodCrypto || payload.Crypto == nil {
		return settleFailure("", x402.ReasonInvalidPayload, "payload is not a crypto payment"), nil
	}

	tx, err := decodeTransaction(payload.Crypto.Stellar.TransactionXDR)
	if err != nil {
		return settleFailure("", x402.ReasonMalformedTransaction, err.Error()), nil
	}
	payer := tx.SourceAccount().AccountID

	var submitted hProtocol.Transaction
	if requirements.FeeSponsored() && e.signingKey != nil {
		submitted, err = e.submitFeeBumped(tx)
	} else {
		submitted, err = e.horizon.SubmitTransaction(tx)
	}
	if err != nil {
		e.logger.Warn("ledger rejected settlement submission", "payer", payer, "error", err)
		return settleFailure(payer, x402.ReasonSubmissionFailed, err.Error()), nil
	}

	if !submitted.Successful {
		confirmed, err := e.awaitConfirmation(ctx, submitted.Hash)
		if err != nil {
			e.logger.Warn("settlement confirmation failed", "hash", submitted.Hash, "error", err)
			return settleFailure(payer, x402.ReasonConfirmationTimedOut, err.Error()), nil
		}
		submitted = confirmed
	}

	e.logger.Info("payment settled", "hash", submitted.Hash, "payer", payer, "ledger", submitted.Ledger)
	return &x402.SettleResponse{
		Success:     true,
		Transaction: submitted.Hash,
		Network:     e.network,
		Payer:       payer,
		Method:      x402.MethodCrypto,
	}, nil
}

func (e *Engine) submitFeeBumped(inner *txnbuild.Transaction) (hProtocol.Transaction, error) {
	feeBump, err := txnbuild.NewFeeBumpTransaction(txnbuild.FeeBumpTransactionParams{
		Inner:      inner,
		FeeAccount: e.signingKey.Address(),
		BaseFee:    e.baseFee,
	})
	if err != nil {
		return hProtocol.Transaction{}, fmt.Errorf("building fee bump: %w", err)
	}

	feeBump, err = feeBump.Sign(e.networkPassphrase, e.signingKey)
	if err != nil {
		return hProtocol.Transaction{}, fmt.Errorf("signing fee bump: %w", err)
	}

	return e.horizon.SubmitFeeBumpTransaction(feeBump)
}

// awaitConfirmation polls transaction status at a fixed interval with an
// overall attempt ceiling.
func (e *Engine) awaitConfirmation(ctx context.Context, hash string) (hProtocol.Transaction, error) {
	for attempt := 0; attempt < e.maxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return hProtocol.Transaction{}, ctx.Err()
		case <-time.After(e.pollInterval):
		}

		tx, err := e.horizon.TransactionDetail(hash)
		if err != nil {
			// Not found yet; keep polling up to the ceiling.
			continue
		}
		if tx.Successful {
			return tx, nil
		}
	}
	return hProtocol.Transaction{}, fmt.Errorf("%w: transaction %s unconfirmed after %d polls",
		x402.ErrSettlementFailed, hash, e.maxPollAttempts)
}

func (e *Engine) verifySignature(tx *txnbuild.Transaction, source string) (bool, error) {
	hash, err := tx.Hash(e.networkPassphrase)
	if err != nil {
		return false, fmt.Errorf("hashing transaction: %w", err)
	}
	kp, err := keypair.ParseAddress(source)
	if err != nil {
		return false, fmt.Errorf("parsing source account: %w", err)
	}
	for _, sig := range tx.Signatures() {
		if kp.Verify(hash[:], sig.Signature) == nil {
			return true, nil
		}
	}
	return false, nil
}

func decodeTransaction(xdrBase64 string) (*txnbuild.Transaction, error) {
	generic, err := txnbuild.TransactionFromXDR(xdrBase64)
	if err != nil {
		return nil, fmt.Errorf("decoding transaction envelope: %w", err)
	}
	tx, ok := generic.Transaction()
	if !ok {
		return nil, fmt.Errorf("envelope is not a simple transaction")
	}
	return tx, nil
}

func findPayment(tx *txnbuild.Transaction) *txnbuild.Payment {
	for _, op := range tx.Operations() {
		if payment, ok := op.(*txnbuild.Payment); ok {
			return payment
		}
	}
	return nil
}

func assetMatches(asset txnbuild.Asset, required string) (bool, error) {
	code, issuer, native, err := x402.ParseAsset(required)
	if err != nil {
		return false, err
	}
	if native {
		return asset.IsNative(), nil
	}
	return !asset.IsNative() && asset.GetCode() == code && asset.GetIssuer() == issuer, nil
}

// balanceFor resolves the account's balance of the required asset in
// atomic units. found is false when the account holds no trustline for it.
func balanceFor(account hProtocol.Account, required string) (int64, bool, error) {
	code, issuer, native, err := x402.ParseAsset(required)
	if err != nil {
		return 0, false, err
	}
	for _, b := range account.Balances {
		if native {
			if b.Asset.Type != "native" {
				continue
			}
		} else if b.Asset.Code != code || b.Asset.Issuer != issuer {
			continue
		}
		stroops, err := amount.ParseInt64(b.Balance)
		if err != nil {
			return 0, false, fmt.Errorf("parsing balance %q: %w", b.Balance, err)
		}
		return stroops, true, nil
	}
	return 0, false, nil
}

func invalid(reason, message string) *x402.VerifyResponse {
	return &x402.VerifyResponse{
		IsValid:        false,
		InvalidReason:  reason,
		InvalidMessage: message,
	}
}

func settleFailure(payer, reason, message string) *x402.SettleResponse {
	return &x402.SettleResponse{
		Success:      false,
		ErrorReason:  reason,
		ErrorMessage: message,
		Payer:        payer,
		Method:       x402.MethodCrypto,
	}
}
