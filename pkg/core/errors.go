package core

import "errors"

// Error is a coded error used for construction and validation failures
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches errors by code so callers can test against the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// Error codes
const (
	CodeInvalidName     = "INVALID_NAME"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeInvalidInput    = "INVALID_INPUT"
)

// Sentinels for errors.Is comparisons
var (
	ErrInvalidName     = &Error{Code: CodeInvalidName, Message: "invalid name"}
	ErrInvalidArgument = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrInvalidInput    = &Error{Code: CodeInvalidInput, Message: "invalid input"}
)

// NewError creates a coded error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}
