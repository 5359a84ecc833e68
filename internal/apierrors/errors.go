// Package apierrors defines the typed error taxonomy shared by every layer
// of the processing pipeline. Retryability is a property of the error type,
// not of a catch-chain at the call site.
package apierrors

import (
	"errors"
	"fmt"
)

// Classifiable is satisfied by every error in the taxonomy.
type Classifiable interface {
	error
	Retryable() bool
}

// ValidationError signals a rejected config, missing/incompatible asset, or
// parse failure. Non-retryable.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("validation: %s", e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }
func (e *ValidationError) Retryable() bool { return false }

func NewValidation(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func WrapValidation(err error, format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...), Err: err}
}

// NotFoundError signals a referenced id does not exist or is soft-deleted.
type NotFoundError struct {
	Kind string
	ID   any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Kind, e.ID)
}

func (e *NotFoundError) Retryable() bool { return false }

func NewNotFound(kind string, id any) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// AuthorizationError signals an owner mismatch.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string     { return fmt.Sprintf("authorization: %s", e.Message) }
func (e *AuthorizationError) Retryable() bool { return false }

func NewAuthorization(format string, args ...any) *AuthorizationError {
	return &AuthorizationError{Message: fmt.Sprintf(format, args...)}
}

// ProcessingError signals the external media tool returned a non-zero exit
// status. The same inputs will fail again, so it is non-retryable.
type ProcessingError struct {
	Message string
	Stderr  string
	Err     error
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("processing: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("processing: %s", e.Message)
}

func (e *ProcessingError) Unwrap() error { return e.Err }
func (e *ProcessingError) Retryable() bool { return false }

func NewProcessing(stderr string, format string, args ...any) *ProcessingError {
	return &ProcessingError{Message: fmt.Sprintf(format, args...), Stderr: stderr}
}

// TimeoutError signals the wall-clock budget for a tool invocation elapsed.
type TimeoutError struct {
	Message string
}

func (e *TimeoutError) Error() string     { return fmt.Sprintf("timeout: %s", e.Message) }
func (e *TimeoutError) Retryable() bool { return false }

func NewTimeout(format string, args ...any) *TimeoutError {
	return &TimeoutError{Message: fmt.Sprintf(format, args...)}
}

// TransientError signals an object-store 5xx, broker disconnect, or cache
// unavailability. The only member of the taxonomy that triggers a retry.
type TransientError struct {
	Message string
	Err     error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("transient: %s", e.Message)
}

func (e *TransientError) Unwrap() error { return e.Err }
func (e *TransientError) Retryable() bool { return true }

func NewTransient(err error, format string, args ...any) *TransientError {
	return &TransientError{Message: fmt.Sprintf(format, args...), Err: err}
}

// CancelledError signals cooperative cancellation was observed. Terminal as
// CANCELLED, not a failure.
type CancelledError struct {
	Message string
}

func (e *CancelledError) Error() string     { return fmt.Sprintf("cancelled: %s", e.Message) }
func (e *CancelledError) Retryable() bool { return false }

func NewCancelled(format string, args ...any) *CancelledError {
	return &CancelledError{Message: fmt.Sprintf(format, args...)}
}

// Retryable reports whether err should be retried by the dispatcher. Errors
// outside the taxonomy are treated as non-retryable. A taxonomy error wrapped
// with %w is classified by the first one found in the chain.
func Retryable(err error) bool {
	var c Classifiable
	if errors.As(err, &c) {
		return c.Retryable()
	}
	return false
}
