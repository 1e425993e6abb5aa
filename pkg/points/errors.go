package points

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the points core.
var (
	ErrPlatformNotFound     = errors.New("platform not found")
	ErrUnknownPlatform      = errors.New("unknown platform")
	ErrUnsupportedPlatform  = errors.New("platform does not support this operation")
	ErrInvalidUserID        = errors.New("invalid user id")
	ErrInvalidLedgerName    = errors.New("invalid ledger name")
	ErrInvalidUsername      = errors.New("invalid username")
	ErrUserNotFound         = errors.New("user not found")
	ErrUnknownBalance       = errors.New("balance never assigned")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrEmptyMessage         = errors.New("message is empty")
	ErrNoEnabledActions     = errors.New("no enabled actions")
	ErrUnknownRedeemKey     = errors.New("unknown redeem key")
	ErrRedeemKeyRequired    = errors.New("redeem key required")
	ErrActionDisabled       = errors.New("action disabled")
	ErrActionFailed         = errors.New("action failed")
	ErrInvalidCatalog       = errors.New("invalid catalog")
	ErrInvalidCost          = errors.New("invalid cost")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
