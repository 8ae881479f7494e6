// Package errs provides the unified error type used across waaa.
//
// Every subsystem (pool manager, statement builder, drivers, config) wraps
// its native errors into *errs.Error before handing them to callers. Callers
// branch on the Is* predicates and read the Fatal marker to pick a status
// class, without importing driver-specific packages.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindQueryFailed, "query failed", myErr)
//
//	// In a handler, check the kind and the fatal marker:
//	if errs.IsConnectionLimit(err) {
//	    w.WriteHeader(errs.HTTPStatus(err))
//	}
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrKind categorises an error without exposing driver-specific codes.
type ErrKind int

const (
	ErrKindUnknown           ErrKind = iota
	ErrKindConnectionUnknown         // connection name never configured or not initialised
	ErrKindConnectionLimit           // overflow queue at capacity
	ErrKindBadStatement              // malformed builder input or missing where filter
	ErrKindConnectionLost            // handle died under an in-flight query
	ErrKindConnectionFailed          // cannot reach or authenticate to the backend
	ErrKindQueryFailed               // statement rejected by the database
	ErrKindTimeout                   // context deadline / cancellation
	ErrKindInvalidInput              // bad arguments outside the statement builder
	ErrKindNotFound                  // missing object or row
	ErrKindPermissionDenied          // access denied by the backend
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindConnectionUnknown:
		return "connection_unknown"
	case ErrKindConnectionLimit:
		return "connection_limit"
	case ErrKindBadStatement:
		return "bad_statement"
	case ErrKindConnectionLost:
		return "connection_lost"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindNotFound:
		return "not_found"
	case ErrKindPermissionDenied:
		return "permission_denied"
	default:
		return "unknown"
	}
}

// Machine-readable codes carried by Error.Code.
const (
	CodeConnectionUnknown = "CONNECTION_DOES_NOT_EXISTS"
	CodeConnectionLimit   = "CONNECTION_LIMIT"
	CodeBadStatement      = "BAD_STATEMENT"
	CodeConnectionLost    = "CONNECTION_LOST"
	CodeConnectionFailed  = "CONNECTION_FAILED"
	CodeQueryFailed       = "QUERY_FAILED"
	CodeTimeout           = "TIMEOUT"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeNotFound          = "NOT_FOUND"
	CodePermissionDenied  = "PERMISSION_DENIED"
)

// Error is the single error type returned by all waaa subsystems.
//
// Fatal is part of the error's data: it is set once by whoever creates the
// error and must be carried through unchanged. Upstream layers use it to pick
// a 5xx-class outcome.
type Error struct {
	Kind    ErrKind
	Code    string
	Message string
	Fatal   bool
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the kind's default code and fatal marker.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Code: defaultCode(kind), Message: msg, Fatal: defaultFatal(kind)}
}

// Newf is New with a format string.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	e := New(kind, msg)
	e.Cause = cause
	return e
}

// WithCode returns e with its code replaced. It mutates and returns e so
// drivers can chain it onto Wrap.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithFatal returns e with the fatal marker set explicitly.
func (e *Error) WithFatal(fatal bool) *Error {
	e.Fatal = fatal
	return e
}

func defaultCode(kind ErrKind) string {
	switch kind {
	case ErrKindConnectionUnknown:
		return CodeConnectionUnknown
	case ErrKindConnectionLimit:
		return CodeConnectionLimit
	case ErrKindBadStatement:
		return CodeBadStatement
	case ErrKindConnectionLost:
		return CodeConnectionLost
	case ErrKindConnectionFailed:
		return CodeConnectionFailed
	case ErrKindQueryFailed:
		return CodeQueryFailed
	case ErrKindTimeout:
		return CodeTimeout
	case ErrKindInvalidInput:
		return CodeInvalidInput
	case ErrKindNotFound:
		return CodeNotFound
	case ErrKindPermissionDenied:
		return CodePermissionDenied
	default:
		return ""
	}
}

func defaultFatal(kind ErrKind) bool {
	switch kind {
	case ErrKindConnectionUnknown, ErrKindConnectionLimit, ErrKindBadStatement, ErrKindConnectionLost:
		return true
	default:
		return false
	}
}

// --- Predicates ---

// IsConnectionUnknown reports whether err names a connection that was never
// configured or never initialised.
func IsConnectionUnknown(err error) bool {
	return kindOf(err) == ErrKindConnectionUnknown
}

// IsConnectionLimit reports whether err is a back-pressure rejection.
func IsConnectionLimit(err error) bool {
	return kindOf(err) == ErrKindConnectionLimit
}

// IsBadStatement reports whether the statement could not be built.
func IsBadStatement(err error) bool {
	return kindOf(err) == ErrKindBadStatement
}

// IsConnectionLost reports whether the handle serving the request died.
func IsConnectionLost(err error) bool {
	return kindOf(err) == ErrKindConnectionLost
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return kindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a statement execution failure.
func IsQueryFailed(err error) bool {
	return kindOf(err) == ErrKindQueryFailed
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return kindOf(err) == ErrKindTimeout
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return kindOf(err) == ErrKindInvalidInput
}

// IsNotFound reports whether err represents a missing object or row.
func IsNotFound(err error) bool {
	return kindOf(err) == ErrKindNotFound
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return kindOf(err) == ErrKindPermissionDenied
}

// IsFatal reports the fatal marker of the first *Error in the chain.
// Errors that are not *Error are never fatal.
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Fatal
	}
	return false
}

// CodeOf returns the machine-readable code of the first *Error in the chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	return kindOf(err)
}

// HTTPStatus maps err onto a status code. The fatal marker decides the class;
// the kind only refines it.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if IsFatal(err) {
		if IsConnectionLimit(err) {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
	switch kindOf(err) {
	case ErrKindBadStatement, ErrKindInvalidInput:
		return http.StatusBadRequest
	case ErrKindNotFound:
		return http.StatusNotFound
	case ErrKindPermissionDenied:
		return http.StatusForbidden
	case ErrKindTimeout:
		return http.StatusGatewayTimeout
	case ErrKindConnectionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// kindOf extracts the ErrKind from any error in the chain.
func kindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
