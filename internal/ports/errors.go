package ports

import (
	"context"
	"errors"
	"fmt"
)

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these, and the
// position manager branches on their class rather than on messages.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Broker Errors
	ErrExchangeUnavailable  = errors.New("broker API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the broker")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("broker authentication failed (check API keys)")
	ErrInsufficientFunds    = errors.New("insufficient funds or margin for operation")
	ErrOrderNotFound        = errors.New("order not found on the broker")
	ErrOrderRejected        = errors.New("order rejected by the broker")
	ErrSymbolUnknown        = errors.New("symbol unknown to the broker")

	// Engine Errors
	ErrDataUnavailable    = errors.New("market data unavailable")
	ErrNoSignal           = errors.New("no trade signal")
	ErrAdmissionRejected  = errors.New("candidate rejected by admission")
	ErrInvariantViolation = errors.New("position invariant violated")
	ErrCloseEscalated     = errors.New("close retries exhausted")
	ErrTradingHalted      = errors.New("trading halted pending operator action")
	ErrEntryUnresolved    = errors.New("entry order state unresolved")

	// Storage Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrQueryFailed    = errors.New("database query failed")
)

// ErrorClass tells callers how to react to a failure.
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	// ClassRejected: stop retrying; the candidate or order is terminally refused.
	ClassRejected
	// ClassRetryable: transient, retry with backoff.
	ClassRetryable
	// ClassFatal: halt admissions and alert an operator.
	ClassFatal
)

// String returns the string representation of the class.
func (c ErrorClass) String() string {
	switch c {
	case ClassRejected:
		return "rejected"
	case ClassRetryable:
		return "retryable"
	case ClassFatal:
		return "fatal"
	default:
		return "none"
	}
}

// ClassifiedError tags an error with its policy class.
type ClassifiedError struct {
	Class ErrorClass
	Op    string
	Err   error
}

func (e *ClassifiedError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Class, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Class, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Rejected tags err as a terminal refusal.
func Rejected(op string, err error) error {
	return &ClassifiedError{Class: ClassRejected, Op: op, Err: err}
}

// Retryable tags err as transient.
func Retryable(op string, err error) error {
	return &ClassifiedError{Class: ClassRetryable, Op: op, Err: err}
}

// Fatal tags err as requiring operator attention.
func Fatal(op string, err error) error {
	return &ClassifiedError{Class: ClassFatal, Op: op, Err: err}
}

// ClassOf resolves the class of err. Explicit tags win; otherwise the
// wrapped sentinel decides. Unknown failures are treated as transient so
// an exit is never abandoned on an unrecognised error.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	switch {
	case errors.Is(err, ErrInvariantViolation), errors.Is(err, ErrCloseEscalated), errors.Is(err, ErrEntryUnresolved):
		return ClassFatal
	case errors.Is(err, ErrSymbolUnknown),
		errors.Is(err, ErrOrderRejected),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrAuthenticationFailed),
		errors.Is(err, ErrAdmissionRejected):
		return ClassRejected
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrConnectionFailed),
		errors.Is(err, ErrExchangeUnavailable):
		return ClassRetryable
	}
	return ClassRetryable
}

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool { return ClassOf(err) == ClassRetryable }

// IsRejected reports whether err is a terminal refusal.
func IsRejected(err error) bool { return ClassOf(err) == ClassRejected }

// IsFatal reports whether err must be escalated.
func IsFatal(err error) bool { return ClassOf(err) == ClassFatal }

// IsAmbiguous reports whether a submit failed without a definitive answer,
// meaning the broker may or may not have received the order.
func IsAmbiguous(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout)
}
