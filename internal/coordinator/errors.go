package coordinator

import (
	"errors"
	"fmt"
)

// Error is a failure reported by the coordinator.
//
// Errors fall into two groups:
//   - Fatal to the call: NO_CONTEXT_BOUND, INVALID_REQUEST_CODE, INVALID_CAPABILITY,
//     NO_MATCHING_HANDLER, INVALID_HANDLER_SIGNATURE. The registry is untouched.
//   - Reported after the fact: MALFORMED_RESULT and HANDLER_INVOCATION_FAILURE.
//     Neither leaves the registry in a partial state.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Key is the canonical capability key involved, if known.
	Key string

	// RequestCode is the caller's request code, if relevant.
	RequestCode int

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes coordinator errors.
type ErrorCode string

const (
	// ErrCodeNoContextBound indicates no live context to issue through.
	ErrCodeNoContextBound ErrorCode = "NO_CONTEXT_BOUND"

	// ErrCodeMalformedResult indicates result names and outcomes differ in length.
	ErrCodeMalformedResult ErrorCode = "MALFORMED_RESULT"

	// ErrCodeNoMatchingHandler indicates zero or several target handlers match.
	ErrCodeNoMatchingHandler ErrorCode = "NO_MATCHING_HANDLER"

	// ErrCodeInvalidHandlerSignature indicates a handler of the wrong shape.
	ErrCodeInvalidHandlerSignature ErrorCode = "INVALID_HANDLER_SIGNATURE"

	// ErrCodeHandlerInvocationFailure indicates a handler returned an error or panicked.
	ErrCodeHandlerInvocationFailure ErrorCode = "HANDLER_INVOCATION_FAILURE"

	// ErrCodeInvalidRequestCode indicates a request code outside [1, max].
	ErrCodeInvalidRequestCode ErrorCode = "INVALID_REQUEST_CODE"

	// ErrCodeInvalidCapability indicates an empty set or an invalid name.
	ErrCodeInvalidCapability ErrorCode = "INVALID_CAPABILITY"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Key != "" {
		msg += fmt.Sprintf(" (key=%s)", e.Key)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the ErrorCode of err, or "" if err is not a coordinator error.
func CodeOf(err error) ErrorCode {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsNoContext returns true if err reports a missing context.
func IsNoContext(err error) bool {
	return CodeOf(err) == ErrCodeNoContextBound
}

// IsMalformedResult returns true if err reports a malformed result.
func IsMalformedResult(err error) bool {
	return CodeOf(err) == ErrCodeMalformedResult
}

// IsHandlerFailure returns true if err is, or joins, a handler invocation failure.
func IsHandlerFailure(err error) bool {
	return CodeOf(err) == ErrCodeHandlerInvocationFailure
}

// NewNoContextError creates an Error for a call made with nothing bound.
func NewNoContextError(op string) *Error {
	return &Error{
		Code:    ErrCodeNoContextBound,
		Message: op + ": no live context bound",
	}
}

// NewHandlerFailure creates an Error for a handler that failed during delivery.
func NewHandlerFailure(key string, index int, cause error) *Error {
	return &Error{
		Code:    ErrCodeHandlerInvocationFailure,
		Message: fmt.Sprintf("handler %d failed", index),
		Key:     key,
		Err:     cause,
	}
}
