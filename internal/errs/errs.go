package errs

import (
	"errors"
)

// Code classifies an engine error for the client and for logs.
type Code string

const (
	CodeValidation     Code = "validation"
	CodeAuthorization  Code = "authorization"
	CodeConflict       Code = "conflict"
	CodeInfrastructure Code = "infrastructure"
	CodeTimeout        Code = "timeout"
	CodeNotFound       Code = "not_found"
	CodeUnknown        Code = "unknown"
)

// Error is the domain error type carried through session operations.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Client-safe message
	Cause   error  // Wrapped underlying error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Validation(message string) *Error    { return New(CodeValidation, message) }
func Authorization(message string) *Error { return New(CodeAuthorization, message) }
func Conflict(message string) *Error      { return New(CodeConflict, message) }
func NotFound(message string) *Error      { return New(CodeNotFound, message) }

// Infrastructure wraps a store or transport failure.
func Infrastructure(message string, cause error) *Error {
	return Wrap(CodeInfrastructure, message, cause)
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// Message returns the client-safe message for err. Causes are not exposed.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
