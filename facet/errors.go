package facet

import (
	"errors"
	"fmt"
)

var (
	// ErrBadRequest is the sentinel for malformed client requests.
	ErrBadRequest = errors.New("bad request")

	// ErrInternal is the sentinel for violated internal invariants.
	ErrInternal = errors.New("internal facet error")
)

// RequestError reports a malformed facet request. Fragment names the
// offending part of the request when known.
type RequestError struct {
	Msg      string
	Fragment any
	cause    error
}

// NewRequestError creates a RequestError for fragment.
func NewRequestError(msg string, fragment any) *RequestError {
	return &RequestError{Msg: msg, Fragment: fragment}
}

// WrapRequestError creates a RequestError caused by err.
func WrapRequestError(msg string, fragment any, err error) *RequestError {
	return &RequestError{Msg: msg, Fragment: fragment, cause: err}
}

func (e *RequestError) Error() string {
	s := e.Msg
	if e.Fragment != nil {
		s = fmt.Sprintf("%s: %v", s, e.Fragment)
	}
	if e.cause != nil {
		s = fmt.Sprintf("%s -- reason: %v", s, e.cause)
	}
	return s
}

// Is reports whether target is ErrBadRequest.
func (e *RequestError) Is(target error) bool { return target == ErrBadRequest }

func (e *RequestError) Unwrap() error { return e.cause }

// InvariantError reports a broken internal invariant.
type InvariantError struct {
	Msg string
}

// Invariantf creates an InvariantError.
func Invariantf(format string, args ...any) *InvariantError {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}

func (e *InvariantError) Error() string { return "internal facet error: " + e.Msg }

// Is reports whether target is ErrInternal.
func (e *InvariantError) Is(target error) bool { return target == ErrInternal }
