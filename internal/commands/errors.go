package commands

import (
	"errors"
	"fmt"
)

// OperationalError is an expected, user-caused failure (missing argument,
// bad input, unsupported content, missing upstream config). Its Message is
// safe to show in the chat.
type OperationalError struct {
	Message string
	Err     error // optional cause, logged but never shown
}

func (e *OperationalError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *OperationalError) Unwrap() error { return e.Err }

// Operational builds an OperationalError with a formatted message.
func Operational(format string, args ...any) error {
	return &OperationalError{Message: fmt.Sprintf(format, args...)}
}

// WrapOperational attaches a user-facing message to cause.
func WrapOperational(cause error, format string, args ...any) error {
	return &OperationalError{Message: fmt.Sprintf(format, args...), Err: cause}
}

// AsOperational returns the OperationalError in err's chain, if any.
func AsOperational(err error) (*OperationalError, bool) {
	var op *OperationalError
	if errors.As(err, &op) {
		return op, true
	}
	return nil, false
}

// FormatError renders an operational error for the chat.
func FormatError(op *OperationalError) string {
	return "❌ " + op.Message
}
