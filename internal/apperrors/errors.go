package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ErrForbidden indicates that the caller may not perform the requested operation.
var ErrForbidden = errors.New("forbidden")

// ErrInternal indicates an unexpected failure in an underlying dependency.
var ErrInternal = errors.New("internal error")

// ErrApprovalExpired is returned when an approval is resolved after its expiry time.
var ErrApprovalExpired = errors.New("approval request has expired")

// ErrApprovalAlreadyResolved is returned when an approval is no longer pending.
var ErrApprovalAlreadyResolved = errors.New("approval request already resolved")

// ErrAlreadyReversed is returned when an audit entry already carries a reversal link.
var ErrAlreadyReversed = errors.New("audit entry already reversed")

// ErrConcurrencyLimit is returned when a user already runs the maximum number of active workflows.
var ErrConcurrencyLimit = errors.New("concurrent workflow limit reached")

// ErrInvalidTransition is returned when a workflow or step status change is not allowed.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrStaleWorkflow is returned when a workflow changed in storage after it was loaded.
var ErrStaleWorkflow = errors.New("workflow was modified concurrently")

// AppError carries an HTTP-ish status code alongside a wrapped cause.
type AppError struct {
	Code    int
	Message string
	Err     error
}

// NewAppError creates a new AppError.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// AlreadyResolved builds the "already {status}" error for a terminal approval.
func AlreadyResolved(status string) error {
	return fmt.Errorf("%w: already %s", ErrApprovalAlreadyResolved, status)
}
