// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnwire

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind
// when determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific ErrorKind.
const (
	// ErrUnknownCommand is returned when a command does not name any
	// message of the masternode protocol.
	ErrUnknownCommand = ErrorKind("ErrUnknownCommand")

	// ErrPayloadTooLarge is returned when a payload exceeds the maximum
	// size of its message type.
	ErrPayloadTooLarge = ErrorKind("ErrPayloadTooLarge")

	// ErrTooManyInputs is returned when a message lists more transaction
	// inputs than allowed.
	ErrTooManyInputs = ErrorKind("ErrTooManyInputs")

	// ErrTooManyOutputs is returned when a message lists more transaction
	// outputs than allowed.
	ErrTooManyOutputs = ErrorKind("ErrTooManyOutputs")

	// ErrInvalidMsg is returned for otherwise malformed messages.
	ErrInvalidMsg = ErrorKind("ErrInvalidMsg")

	// ErrMalformedStrictString is returned when a string field is not
	// strict ASCII.
	ErrMalformedStrictString = ErrorKind("ErrMalformedStrictString")

	// ErrTrailingBytes is returned when a payload holds data after the
	// final field of its message.
	ErrTrailingBytes = ErrorKind("ErrTrailingBytes")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// MessageError identifies an error related to masternode protocol messages.
// It has full support for errors.Is and errors.As, so the caller can
// ascertain the specific reason for the error by checking the underlying
// error.
type MessageError struct {
	Func        string
	Err         error
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e MessageError) Error() string {
	if e.Func == "" {
		return e.Description
	}
	return e.Func + ": " + e.Description
}

// Unwrap returns the underlying wrapped error.
func (e MessageError) Unwrap() error {
	return e.Err
}

// messageError creates a MessageError given a set of arguments.
func messageError(fn string, kind ErrorKind, desc string) MessageError {
	return MessageError{Func: fn, Err: kind, Description: desc}
}
