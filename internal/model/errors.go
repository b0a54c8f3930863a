// Package model holds the error vocabulary shared by the variant-sync packages.
package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for each failure kind.
// Use errors.Is() to check against these.
var (
	ErrResolution     = errors.New("variant resolution failed")
	ErrNetwork        = errors.New("network failure")
	ErrCanceled       = errors.New("request superseded")
	ErrInvariant      = errors.New("invariant violation")
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
)

// Kind classifies an Error for propagation decisions.
type Kind string

const (
	KindResolution     Kind = "resolution_failure"
	KindNetwork        Kind = "network_failure"
	KindCancellation   Kind = "cancellation"
	KindInvariant      Kind = "invariant_violation"
	KindNotFound       Kind = "not_found"
	KindInvalidRequest Kind = "invalid_request"
	KindInternal       Kind = "internal"
)

// Error is a structured error carrying its kind, an API-facing code and
// message, and the wrapped cause.
type Error struct {
	Kind       Kind   `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"` // HTTP status, not serialized
	Err        error  `json:"-"` // Wrapped error, not serialized
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewResolutionError reports that no variant matches a selection.
func NewResolutionError(detail string) *Error {
	return &Error{
		Kind:       KindResolution,
		Code:       "VARIANT_NOT_FOUND",
		Message:    detail,
		StatusCode: 422,
		Err:        ErrResolution,
	}
}

// NewNetworkError wraps a failed fragment fetch.
func NewNetworkError(url string, err error) *Error {
	return &Error{
		Kind:       KindNetwork,
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("fetching %s failed", url),
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %v", ErrNetwork, err),
	}
}

// NewCanceledError marks a request superseded by a newer one.
func NewCanceledError(url string) *Error {
	return &Error{
		Kind:       KindCancellation,
		Code:       "CANCELED",
		Message:    fmt.Sprintf("request for %s superseded", url),
		StatusCode: 409,
		Err:        ErrCanceled,
	}
}

// NewInvariantError reports malformed input data such as duplicate keys.
func NewInvariantError(format string, args ...any) *Error {
	return &Error{
		Kind:       KindInvariant,
		Code:       "INVARIANT_VIOLATION",
		Message:    fmt.Sprintf(format, args...),
		StatusCode: 500,
		Err:        ErrInvariant,
	}
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *Error {
	return &Error{
		Kind:       KindNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
		Err:        ErrNotFound,
	}
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *Error {
	return &Error{
		Kind:       KindInvalidRequest,
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrInvalidRequest,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *Error {
	return &Error{
		Kind:       KindInternal,
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: 500,
		Err:        err,
	}
}

// IsCanceled reports whether err represents a superseded request.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
