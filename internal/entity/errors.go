package entity

import (
	"errors"
	"fmt"
)

// ErrorCode categorises failures that must abort the calling operation.
//
// Routine absence is never an error: lookups report it through a nil result
// or an ok flag, and rows filtered by access control look exactly the same.
type ErrorCode string

const (
	// ErrCodeUsage indicates an invalid option combination or argument.
	ErrCodeUsage ErrorCode = "USAGE_ERROR"

	// ErrCodeConfiguration indicates install corruption, such as an
	// unrecognised base type or a bound class with no factory.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"

	// ErrCodeValidation indicates a write that violates a registry contract.
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
)

// Error is a categorised failure.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewUsageError creates an Error with ErrCodeUsage.
func NewUsageError(format string, args ...any) *Error {
	return &Error{Code: ErrCodeUsage, Message: fmt.Sprintf(format, args...)}
}

// NewConfigurationError creates an Error with ErrCodeConfiguration.
func NewConfigurationError(format string, args ...any) *Error {
	return &Error{Code: ErrCodeConfiguration, Message: fmt.Sprintf(format, args...)}
}

// NewValidationError creates an Error with ErrCodeValidation.
func NewValidationError(format string, args ...any) *Error {
	return &Error{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

// IsUsageError returns true if err wraps a usage error.
func IsUsageError(err error) bool { return hasCode(err, ErrCodeUsage) }

// IsConfigurationError returns true if err wraps a configuration error.
func IsConfigurationError(err error) bool { return hasCode(err, ErrCodeConfiguration) }

// IsValidationError returns true if err wraps a validation error.
func IsValidationError(err error) bool { return hasCode(err, ErrCodeValidation) }

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
