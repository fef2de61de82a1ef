package x402

import "errors"

// Sentinel errors for payment operations.
var (
	// ErrInvalidAmount indicates an invalid or non-positive amount.
	ErrInvalidAmount = errors.New("x402: invalid amount")

	// ErrInvalidAsset indicates a malformed asset identifier.
	ErrInvalidAsset = errors.New("x402: invalid asset identifier")

	// ErrInvalidPayload indicates a malformed payment payload.
	ErrInvalidPayload = errors.New("x402: invalid payment payload")

	// ErrMalformedHeader indicates the X-PAYMENT header is malformed.
	ErrMalformedHeader = errors.New("x402: malformed payment header")

	// ErrUnsupportedVersion indicates an unsupported protocol version.
	ErrUnsupportedVersion = errors.New("x402: unsupported protocol version")

	// ErrUnsupportedScheme indicates an unsupported payment scheme.
	ErrUnsupportedScheme = errors.New("x402: unsupported payment scheme")

	// ErrInvalidNetwork indicates an unsupported ledger network.
	ErrInvalidNetwork = errors.New("x402: invalid or unsupported network")

	// ErrInvalidKey indicates an invalid signing key.
	ErrInvalidKey = errors.New("x402: invalid signing key")

	// ErrNoPayTo indicates no payee address could be resolved.
	ErrNoPayTo = errors.New("x402: no payee address configured")

	// ErrJobNotFound indicates an unknown payment job id.
	ErrJobNotFound = errors.New("x402: payment job not found")

	// ErrJobExpired indicates the payment job deadline has passed.
	ErrJobExpired = errors.New("x402: payment job expired")

	// ErrMethodConflict indicates the job is locked to the other payment method.
	ErrMethodConflict = errors.New("x402: payment method conflicts with locked method")

	// ErrInvalidState indicates an operation invalid for the job's current status.
	ErrInvalidState = errors.New("x402: operation invalid in current job state")

	// ErrVerificationFailed indicates payment verification failed.
	ErrVerificationFailed = errors.New("x402: payment verification failed")

	// ErrSettlementFailed indicates payment settlement failed.
	ErrSettlementFailed = errors.New("x402: payment settlement failed")

	// ErrQueueClosed indicates the submission queue has shut down.
	ErrQueueClosed = errors.New("x402: submission queue closed")
)

// Rejection reason codes carried in VerifyResponse.InvalidReason and
// SettleResponse.ErrorReason. Stable strings; callers key retries on them.
const (
	ReasonInvalidPayload       = "invalid_payload"
	ReasonUnsupportedVersion   = "unsupported_version"
	ReasonInvalidNetwork       = "invalid_network"
	ReasonInvalidScheme        = "invalid_scheme"
	ReasonMalformedTransaction = "malformed_transaction"
	ReasonSourceMismatch       = "source_mismatch"
	ReasonInvalidSignature     = "invalid_signature"
	ReasonMissingPaymentOp     = "missing_payment_operation"
	ReasonDestinationMismatch  = "destination_mismatch"
	ReasonInsufficientAmount   = "insufficient_amount"
	ReasonAssetMismatch        = "asset_mismatch"
	ReasonInsufficientBalance  = "insufficient_balance"
	ReasonVerificationError    = "verification_error"
	ReasonSubmissionFailed     = "submission_failed"
	ReasonConfirmationTimedOut = "confirmation_timed_out"
	ReasonExpired              = "expired"
)

// ErrorCode represents payment error codes for programmatic handling.
type ErrorCode string

const (
	// ErrCodeValidation indicates a malformed request or payload.
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// ErrCodeProtocolMismatch indicates wrong version, network or scheme.
	ErrCodeProtocolMismatch ErrorCode = "PROTOCOL_MISMATCH"

	// ErrCodeVerificationFailed indicates the proof did not verify.
	ErrCodeVerificationFailed ErrorCode = "VERIFICATION_FAILED"

	// ErrCodeSettlementFailed indicates the ledger rejected the submission.
	ErrCodeSettlementFailed ErrorCode = "SETTLEMENT_FAILED"

	// ErrCodeExpired indicates the payment deadline has passed.
	ErrCodeExpired ErrorCode = "EXPIRED"

	// ErrCodeConflict indicates a method lock or state conflict.
	ErrCodeConflict ErrorCode = "CONFLICT"

	// ErrCodeNotFound indicates an unknown job.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// PaymentError provides structured error information across the
// registry boundary.
type PaymentError struct {
	// Code is the error code for programmatic handling.
	Code ErrorCode

	// Message is the human-readable error message.
	Message string

	// JobID is the affected payment job, when known.
	JobID string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *PaymentError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a new PaymentError with the given code and message.
func NewPaymentError(code ErrorCode, message string, err error) *PaymentError {
	return &PaymentError{Code: code, Message: message, Err: err}
}

// WithJob attaches the affected job id to the error.
func (e *PaymentError) WithJob(jobID string) *PaymentError {
	e.JobID = jobID
	return e
}
