// Package errors provides the structured error kinds returned by the pricing core.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Type identifies the category of error
type Type string

const (
	// TypeValidation indicates malformed or out-of-domain input
	TypeValidation Type = "VALIDATION_ERROR"

	// TypeAuthorization indicates the principal may not perform the operation
	TypeAuthorization Type = "AUTHORIZATION_ERROR"

	// TypeUnauthenticated indicates no valid credentials were presented
	TypeUnauthenticated Type = "UNAUTHENTICATED"

	// TypeNotFound indicates a referenced tenant, catalog or run does not exist
	TypeNotFound Type = "NOT_FOUND"

	// TypeStore indicates an opaque persistence failure
	TypeStore Type = "STORE_ERROR"

	// TypeIntegrity indicates stored audit data no longer matches its hash
	TypeIntegrity Type = "INTEGRITY_ERROR"

	// TypeConfig indicates a configuration error
	TypeConfig Type = "CONFIG_ERROR"

	// TypeInternal indicates an internal error
	TypeInternal Type = "INTERNAL_ERROR"
)

// Error represents a domain error with context
type Error struct {
	Type    Type                   `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Type.
// This lets callers use errors.Is(err, errors.New(TypeNotFound, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new error
func New(errType Type, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new formatted error
func Newf(errType Type, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with context
func Wrap(errType Type, message string, cause error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an error with formatted context
func Wrapf(errType Type, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// TypeOf returns the Type of the outermost *Error in err's chain,
// or TypeInternal when there is none.
func TypeOf(err error) Type {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return TypeInternal
}

// As is errors.As from the standard library
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// IsType checks if an error chain carries a specific type
func IsType(err error, t Type) bool {
	if err == nil {
		return false
	}
	return TypeOf(err) == t
}

// Validation creates a validation error
func Validation(message string) *Error {
	return New(TypeValidation, message)
}

// Validationf creates a formatted validation error
func Validationf(format string, args ...interface{}) *Error {
	return Newf(TypeValidation, format, args...)
}

// Unauthorized creates an authorization error
func Unauthorized(message string) *Error {
	return New(TypeAuthorization, message)
}

// Unauthenticated creates an error for missing or invalid credentials
func Unauthenticated(message string, cause error) *Error {
	return Wrap(TypeUnauthenticated, message, cause)
}

// NotFound creates a not found error
func NotFound(resourceType, identifier string) *Error {
	return Newf(TypeNotFound, "%s not found: %s", resourceType, identifier).
		WithContext("resource", resourceType)
}

// Store wraps a persistence failure without interpreting it.
// Errors that already carry a type pass through unchanged.
func Store(message string, cause error) error {
	if cause == nil {
		return nil
	}
	var e *Error
	if stderrors.As(cause, &e) {
		return cause
	}
	return Wrap(TypeStore, message, cause)
}

// Integrity creates an integrity error
func Integrity(message string) *Error {
	return New(TypeIntegrity, message)
}

// Config creates a configuration error
func Config(message string, cause error) *Error {
	return Wrap(TypeConfig, message, cause)
}

// Internal creates an internal error
func Internal(message string, cause error) *Error {
	return Wrap(TypeInternal, message, cause)
}
