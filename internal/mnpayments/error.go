// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnpayments

import (
	"errors"
)

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind
// when determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific RuleError.
const (
	// ErrNoAuthorityKey indicates an election was requested from a node
	// that does not hold the payment authority key.
	ErrNoAuthorityKey = ErrorKind("ErrNoAuthorityKey")

	// ErrAuthorityKeyMismatch indicates the configured authority private
	// key does not match the network authority public key.
	ErrAuthorityKeyMismatch = ErrorKind("ErrAuthorityKeyMismatch")

	// ErrNoEligible indicates there is no enabled masternode to elect.
	ErrNoEligible = ErrorKind("ErrNoEligible")

	// ErrVoteOutOfWindow indicates a winner vote is for a height outside
	// of the accepted window around the best height.
	ErrVoteOutOfWindow = ErrorKind("ErrVoteOutOfWindow")

	// ErrNonFinalSequence indicates a winner vote does not carry the final
	// sequence number.
	ErrNonFinalSequence = ErrorKind("ErrNonFinalSequence")

	// ErrBadSignature indicates a winner vote is not signed by the payment
	// authority.
	ErrBadSignature = ErrorKind("ErrBadSignature")

	// ErrNoWinner indicates no winner is known for a height.
	ErrNoWinner = ErrorKind("ErrNoWinner")

	// ErrPayeeMismatch indicates the payee script of a winner does not
	// match the collateral output it names.
	ErrPayeeMismatch = ErrorKind("ErrPayeeMismatch")
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

// BanScore returns the misbehavior score a peer earns for sending a winner
// vote that failed with err.  Votes outside of the window are commonly the
// result of peers at different heights and are not penalized.
func BanScore(err error) uint32 {
	var kind ErrorKind
	if !errors.As(err, &kind) {
		return 0
	}
	switch kind {
	case ErrBadSignature:
		return 34
	case ErrNonFinalSequence:
		return 20
	}
	return 0
}
