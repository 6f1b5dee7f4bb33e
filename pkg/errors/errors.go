package errors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Domain errors
var (
	ErrLoanNotFound        = errors.New("loan not found")
	ErrValidation          = errors.New("validation failed")
	ErrInvalidState        = errors.New("loan state does not permit this transition")
	ErrConcurrencyConflict = errors.New("loan was modified concurrently")
	ErrStoreUnavailable    = errors.New("backing store unavailable")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeLoanNotFound        = "LOAN_NOT_FOUND"
	ErrCodeInvalidState        = "INVALID_STATE"
	ErrCodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	ErrCodeStoreUnavailable    = "STORE_UNAVAILABLE"
	ErrCodeDatabaseError       = "DATABASE_ERROR"
	ErrCodeCacheError          = "CACHE_ERROR"
)

// Wrap common errors with business context
func WrapLoanNotFound(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanNotFound,
		fmt.Sprintf("Loan with ID %s not found", loanID),
		ErrLoanNotFound,
	)
}

func WrapValidation(reason string) *BusinessError {
	return NewBusinessError(ErrCodeValidation, reason, ErrValidation)
}

// WrapInvalidState carries the unmet condition so an operator can see why
// the transition was refused.
func WrapInvalidState(loanID, reason string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidState,
		fmt.Sprintf("Loan %s: %s", loanID, reason),
		ErrInvalidState,
	)
}

// WrapInvalidStateDetail is WrapInvalidState plus the loan's current balance,
// interest amount and due date rendered into the message.
func WrapInvalidStateDetail(loanID, reason string, balance, interest decimal.Decimal, dueDate string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidState,
		fmt.Sprintf("Loan %s: %s (remaining balance %s, interest %s, due date %s)",
			loanID, reason, balance.StringFixed(2), interest.StringFixed(2), dueDate),
		ErrInvalidState,
	)
}

func WrapConcurrencyConflict(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeConcurrencyConflict,
		fmt.Sprintf("Loan %s was modified by another operation, please retry", loanID),
		ErrConcurrencyConflict,
	)
}

func WrapStoreUnavailable(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeStoreUnavailable,
		"Backing store temporarily unavailable",
		errors.Join(ErrStoreUnavailable, err),
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}

// Code extracts the business error code from err, or DATABASE_ERROR when no
// code is attached.
func Code(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ErrCodeDatabaseError
}
