// Package errors provides coded domain errors for the fsbridge watch host.
//
// Usage:
//
//	// In the watch package - return typed errors
//	if _, err := os.Stat(root); err != nil {
//	    return errors.Wrapf(err, errors.CodeRegistration, "cannot watch %q", root)
//	}
//
//	// In callers - check with errors.Is
//	if errors.Is(err, errors.ErrRegistration) {
//	    os.Exit(errors.CodeRegistration.ExitCode())
//	}
//
//	// Or switch on the Code directly
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    switch domainErr.Code {
//	    case errors.CodeConfig:
//	        log.Error("bad watch options", "error", domainErr.Message)
//	    case errors.CodeWatch:
//	        log.Error("notifier failed", "error", domainErr)
//	    }
//	}
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	// CodeConfig covers invalid or missing glob patterns and malformed option records.
	CodeConfig Code = "CONFIG"
	// CodeRegistration covers a watch root that is missing or cannot be watched.
	CodeRegistration Code = "REGISTRATION"
	// CodeWatch covers notifier failures after a session started running.
	CodeWatch         Code = "WATCH"
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	CodeValidation    Code = "VALIDATION"
	CodeInternal      Code = "INTERNAL"
)

// ExitCode returns the process exit status used by the CLI for an error code.
func (c Code) ExitCode() int {
	switch c {
	case CodeConfig, CodeValidation:
		return 2
	case CodeRegistration, CodeNotFound, CodeAlreadyExists:
		return 3
	case CodeWatch:
		return 4
	default:
		return 1
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code
	Message string
	Details any
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrConfig        = &Error{Code: CodeConfig, Message: "invalid watch configuration"}
	ErrRegistration  = &Error{Code: CodeRegistration, Message: "watch registration failed"}
	ErrWatch         = &Error{Code: CodeWatch, Message: "watcher failed"}
	ErrNotFound      = &Error{Code: CodeNotFound, Message: "not found"}
	ErrAlreadyExists = &Error{Code: CodeAlreadyExists, Message: "already exists"}
	ErrValidation    = &Error{Code: CodeValidation, Message: "validation error"}
	ErrInternal      = &Error{Code: CodeInternal, Message: "internal error"}
)

// CodeOf returns the code carried by err, or CodeInternal when err is not a domain error.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}

// Config creates a configuration error.
func Config(msg string) *Error {
	return &Error{Code: CodeConfig, Message: msg}
}

// Configf creates a configuration error with formatted message.
func Configf(format string, args ...any) *Error {
	return &Error{Code: CodeConfig, Message: fmt.Sprintf(format, args...)}
}

// Registrationf creates a registration error with formatted message.
func Registrationf(format string, args ...any) *Error {
	return &Error{Code: CodeRegistration, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// AlreadyExistsf creates an already exists error with formatted message.
func AlreadyExistsf(format string, args ...any) *Error {
	return &Error{Code: CodeAlreadyExists, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
