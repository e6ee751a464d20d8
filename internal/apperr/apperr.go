// Package apperr defines the tagged application errors shared across the
// chat delivery subsystem. Domain and auth failures are represented as
// *Error values carrying a stable machine-readable code; the WebSocket
// boundary translates them into the structured error payload sent to the
// client's private error destination.
package apperr

import "errors"

// Error codes delivered to clients. The set is closed: anything that does
// not map onto one of these is reported as UNEXPECTED_ERROR.
const (
	CodeTokenMissing        = "TOKEN_MISSING"
	CodeTokenBlacklisted    = "TOKEN_BLACKLISTED"
	CodeTokenInvalid        = "TOKEN_INVALID"
	CodeAuthFailed          = "AUTH_FAILED"
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeNotAuthenticated    = "NOT_AUTHENTICATED"
	CodeInvalidMessage      = "INVALID_MESSAGE"
	CodeNotFound            = "NOT_FOUND"
	CodeConstraintViolation = "CONSTRAINT_VIOLATION"
	CodeRuntimeError        = "RUNTIME_ERROR"
	CodeUnexpected          = "UNEXPECTED_ERROR"
)

// Error is a tagged application error. It travels through the call stack as
// a normal error value and is only rendered into a wire payload at the
// connection boundary.
type Error struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// New creates an Error with the given code and human-readable message.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// From extracts the *Error from err's chain. If err is not a tagged
// application error it is wrapped as UNEXPECTED_ERROR so that no raw internal
// error text ever reaches a client.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: CodeUnexpected, Message: "unexpected error"}
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
