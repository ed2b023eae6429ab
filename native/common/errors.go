package common

import (
	"errors"
	"fmt"
)

// RejectionError is a rejected call: the caller asked for something the
// protocol refuses (bad amount, wrong state, missing authorisation). Code is a
// short machine readable reason surfaced to clients.
type RejectionError struct {
	Code    string
	Message string
}

func (e *RejectionError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Reject constructs a rejection sentinel.
func Reject(code, message string) *RejectionError {
	return &RejectionError{Code: code, Message: message}
}

// ErrInvariantViolation marks an unconditional assertion failure. The enclosing
// call is aborted and reported as a hard failure, never as a typed rejection.
var ErrInvariantViolation = errors.New("invariant violation")

// Invariant wraps ErrInvariantViolation with context.
func Invariant(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}

// Reason extracts the machine readable reason from err.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return rejection.Code
	}
	if errors.Is(err, ErrInvariantViolation) {
		return "invariant_violation"
	}
	return "internal"
}

// IsRejection reports whether err is a typed rejection.
func IsRejection(err error) bool {
	var rejection *RejectionError
	return errors.As(err, &rejection)
}
