// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mixclient

import (
	"errors"
)

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind
// when determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific RuleError.
const (
	// ErrBusy indicates a round was requested while another one is in
	// progress.
	ErrBusy = ErrorKind("ErrBusy")

	// ErrInvalidEntry indicates the inputs and outputs offered for mixing
	// do not form a valid entry.
	ErrInvalidEntry = ErrorKind("ErrInvalidEntry")

	// ErrCollateral indicates the wallet could not create a collateral
	// transaction.
	ErrCollateral = ErrorKind("ErrCollateral")

	// ErrUnexpectedMessage indicates a session message from a peer other
	// than the masternode of the round, or in a state that does not expect
	// it.
	ErrUnexpectedMessage = ErrorKind("ErrUnexpectedMessage")

	// ErrWrongSession indicates a session message for a session other than
	// the one joined.
	ErrWrongSession = ErrorKind("ErrWrongSession")

	// ErrTxMismatch indicates the joint transaction does not carry every
	// input and output of the entry.
	ErrTxMismatch = ErrorKind("ErrTxMismatch")

	// ErrSigning indicates the wallet could not sign an input of the joint
	// transaction.
	ErrSigning = ErrorKind("ErrSigning")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// RuleError identifies a rule violation.  It has full support for errors.Is
// and errors.As, so the caller can ascertain the specific reason for the
// error by checking the underlying error.
type RuleError struct {
	Description string
	Err         error
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e RuleError) Unwrap() error {
	return e.Err
}

// ruleError creates a RuleError given a set of arguments.
func ruleError(kind ErrorKind, desc string) RuleError {
	return RuleError{Err: kind, Description: desc}
}

// BanScore returns the misbehavior score the masternode of a round earns
// for a message that failed with err.  Only a joint transaction that drops
// inputs or outputs of the entry is penalized.
func BanScore(err error) uint32 {
	if errors.Is(err, ErrTxMismatch) {
		return 100
	}
	return 0
}
