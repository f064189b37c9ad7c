// Package apperr provides structured error handling with machine-readable codes.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeNotFound indicates a requested task or event does not exist.
	CodeNotFound Code = "NOT_FOUND"
	// CodeCycleDetected indicates a dependency link would create a cycle.
	CodeCycleDetected Code = "CYCLE_DETECTED"
	// CodeSafetyGateBlocked indicates an experiment apply is below the
	// confidence safety floor.
	CodeSafetyGateBlocked Code = "SAFETY_GATE_BLOCKED"
	// CodeValidationFailed indicates a malformed ingest or patch payload.
	CodeValidationFailed Code = "VALIDATION_FAILED"
	// CodeStorageContention indicates a write conflict that persisted past
	// the bounded retry budget.
	CodeStorageContention Code = "STORAGE_CONTENTION"
	// CodeCollaboratorFailure indicates an extraction or notification
	// collaborator error.
	CodeCollaboratorFailure Code = "COLLABORATOR_FAILURE"
)

// Error is a domain error carrying a code and optional metadata.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	cause    error
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a domain error wrapping an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithMetadata returns a copy of the error with metadata attached.
func (e *Error) WithMetadata(metadata map[string]string) *Error {
	clone := *e
	clone.Metadata = metadata
	return &clone
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}
