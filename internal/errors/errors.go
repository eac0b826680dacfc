// Package errors defines the recoverable error types returned by the store.
//
// Contract violations (out of range positional access on a Table) are not
// represented here: they panic.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode defines specific error types for the store.
type ErrorCode string

const (
	// CodeInvalidIndex is returned when a row or field position is out of range
	CodeInvalidIndex ErrorCode = "INVALID_INDEX"
	// CodeNotFound is returned when a lookup matches nothing
	CodeNotFound ErrorCode = "NOT_FOUND"
	// CodeInvalidValue is returned when a value cannot be stored or parsed
	CodeInvalidValue ErrorCode = "INVALID_VALUE"
	// CodeMissingHeader is returned when a CSV input has no header line
	CodeMissingHeader ErrorCode = "MISSING_HEADER"
	// CodeStorage is returned when reading or writing the backing file fails
	CodeStorage ErrorCode = "STORAGE_ERROR"
)

// Sentinels usable with errors.Is. Any *Error with the same code matches.
var (
	ErrInvalidIndex  = &Error{code: CodeInvalidIndex, message: "invalid index"}
	ErrNotFound      = &Error{code: CodeNotFound, message: "not found"}
	ErrInvalidValue  = &Error{code: CodeInvalidValue, message: "invalid value"}
	ErrMissingHeader = &Error{code: CodeMissingHeader, message: "missing header"}
	ErrStorage       = &Error{code: CodeStorage, message: "storage error"}
)

// Error is a concrete error type with a code, a message and optional details.
type Error struct {
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		code:    code,
		message: message,
	}
}

// WithDetail adds a single detail to the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *Error) Wrap(err error) *Error {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *Error) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *Error) Unwrap() error {
	return e.wrappedErr
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.code == e.code
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return ""
}

// Predefined error constructors for common cases

// InvalidIndex creates an error for a position outside [0, length).
func InvalidIndex(index, length int) *Error {
	return New(CodeInvalidIndex, fmt.Sprintf("invalid index %d (length %d)", index, length)).
		WithDetail("index", index).
		WithDetail("length", length)
}

// NotFound creates an error for a missing resource.
func NotFound(resource string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

// InvalidValue creates an error for a value that a column cannot hold.
func InvalidValue(column, value, reason string) *Error {
	return New(CodeInvalidValue, fmt.Sprintf("invalid %s %q: %s", column, value, reason)).
		WithDetail("column", column)
}

// Storage creates an error wrapping an I/O failure.
func Storage(message string, err error) *Error {
	return New(CodeStorage, message).Wrap(err)
}
