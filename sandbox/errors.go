package sandbox

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is the machine-readable discriminant every sandbox failure maps to.
type Code string

const (
	CodeInvalidArg     Code = "invalid-arg"
	CodeConsumed       Code = "consumed"
	CodePoisoned       Code = "poisoned"
	CodeCancelled      Code = "cancelled"
	CodeStackOverflow  Code = "stack-overflow"
	CodeGuestAbort     Code = "guest-abort"
	CodeInternal       Code = "internal"
)

// Error is the structured error every operation in this package returns.
// Code is the primary discriminant; Message is advisory only.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets callers write `sandboxErr.Is(sandbox.CodeConsumed)`.
func (e *Error) Is(code Code) bool { return e.Code == code }

func newErr(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

func wrapErr(code Code, cause error, msg string) error {
	return &Error{Code: code, Message: msg, cause: errors.Wrap(cause, msg)}
}

// CodeOf extracts the Code from err, or CodeInternal if err does not
// originate from this package.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}
