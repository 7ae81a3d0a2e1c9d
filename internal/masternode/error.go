// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package masternode

import (
	"errors"
)

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind
// when determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific RuleError.
const (
	// ErrBadSignature indicates a message signature does not verify for
	// the key it claims.
	ErrBadSignature = ErrorKind("ErrBadSignature")

	// ErrMalformedKey indicates a public key in a message does not parse.
	ErrMalformedKey = ErrorKind("ErrMalformedKey")

	// ErrKeyMismatch indicates an announcement for a known masternode is
	// signed by a different operator key than the registered one.
	ErrKeyMismatch = ErrorKind("ErrKeyMismatch")

	// ErrStaleMessage indicates a message is not newer than what the
	// registry already holds, or is too old to be relayed.
	ErrStaleMessage = ErrorKind("ErrStaleMessage")

	// ErrFutureSigTime indicates a message is signed too far in the
	// future.
	ErrFutureSigTime = ErrorKind("ErrFutureSigTime")

	// ErrTooFrequent indicates a message arrived before the minimum update
	// interval elapsed.
	ErrTooFrequent = ErrorKind("ErrTooFrequent")

	// ErrObsoleteProtocol indicates an announcement for a protocol version
	// below the network minimum.
	ErrObsoleteProtocol = ErrorKind("ErrObsoleteProtocol")

	// ErrCollateralNotFound indicates the collateral transaction is not
	// known to the ledger.
	ErrCollateralNotFound = ErrorKind("ErrCollateralNotFound")

	// ErrCollateralMismatch indicates the collateral output does not carry
	// the collateral amount or does not pay the collateral key.
	ErrCollateralMismatch = ErrorKind("ErrCollateralMismatch")

	// ErrCollateralSpent indicates the collateral output is spent.
	ErrCollateralSpent = ErrorKind("ErrCollateralSpent")

	// ErrCollateralTooNew indicates the collateral output lacks the
	// minimum number of confirmations.
	ErrCollateralTooNew = ErrorKind("ErrCollateralTooNew")

	// ErrUnknownMasternode indicates a message references a masternode
	// that is not registered.
	ErrUnknownMasternode = ErrorKind("ErrUnknownMasternode")

	// ErrListRequestTooSoon indicates a peer asked for the full list again
	// before the list request interval elapsed.
	ErrListRequestTooSoon = ErrorKind("ErrListRequestTooSoon")
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

// banScores maps protocol violations to the misbehavior score added to the
// sending peer.  Kinds that are absent are validation failures or benign
// races and carry no penalty.
var banScores = map[ErrorKind]uint32{
	ErrBadSignature:       34,
	ErrMalformedKey:       34,
	ErrKeyMismatch:        34,
	ErrCollateralMismatch: 34,
	ErrListRequestTooSoon: 34,
	ErrFutureSigTime:      1,
	ErrStaleMessage:       1,
}

// BanScore returns the misbehavior score a peer earns for sending a message
// that failed with err.
func BanScore(err error) uint32 {
	var kind ErrorKind
	if !errors.As(err, &kind) {
		return 0
	}
	return banScores[kind]
}
