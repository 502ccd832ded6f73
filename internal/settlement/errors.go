package settlement

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Precondition failures. They are always wrapped in a *PreconditionError.
var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrBelowMinimum        = errors.New("amount below minimum trade size")
	ErrAmountPrecision     = errors.New("amount finer than the smallest unit")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientHolding = errors.New("insufficient token holding")
	ErrPoolNotFound        = errors.New("pool not found")
	ErrUnsupportedTrade    = errors.New("unsupported direction and amount currency")
	ErrInvalidSlippage     = errors.New("invalid max slippage")
	ErrInvalidDirection    = errors.New("invalid trade direction")
	ErrTradeTooSmall       = errors.New("trade output rounds to zero")
	ErrMissingUser         = errors.New("caller identity required")
)

var (
	// ErrSlippageExceeded is matched by every *SlippageError.
	ErrSlippageExceeded = errors.New("slippage tolerance exceeded")
	// ErrInternal hides invariant violations and storage faults from callers.
	ErrInternal = errors.New("internal error")
)

// PreconditionError rejects a request before anything is mutated.
// Retrying with corrected input is safe.
type PreconditionError struct {
	Err    error
	Detail string
}

func (e *PreconditionError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Detail
}

func (e *PreconditionError) Unwrap() error { return e.Err }

func reject(err error, format string, args ...any) error {
	return &PreconditionError{Err: err, Detail: fmt.Sprintf(format, args...)}
}

// SlippageError reports a trade whose fresh output fell too far below the
// quoted one. The caller may re-quote and retry.
type SlippageError struct {
	ExpectedOutput decimal.Decimal
	ActualOutput   decimal.Decimal
	SlippagePct    decimal.Decimal
	MaxSlippagePct decimal.Decimal
}

func (e *SlippageError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s (%s%% > %s%%)",
		ErrSlippageExceeded, e.ExpectedOutput, e.ActualOutput, e.SlippagePct.Round(4), e.MaxSlippagePct)
}

func (e *SlippageError) Is(target error) bool { return target == ErrSlippageExceeded }

// IsRejection reports whether err is a precondition or slippage rejection.
func IsRejection(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe) || errors.Is(err, ErrSlippageExceeded)
}
