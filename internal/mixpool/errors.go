// Copyright (c) 2024-2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mixpool

import (
	"errors"
)

// RuleError represents a rejection of a mixing request.  The wrapped
// RejectReason carries the reason reported back to the participant.
type RuleError struct {
	Err error
}

func ruleError(err error) *RuleError {
	return &RuleError{Err: err}
}

func (e *RuleError) Error() string {
	return e.Err.Error()
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// RejectReason is a reason a mixing request is rejected.  The text is
// returned to the requesting participant.
type RejectReason struct {
	s        string
	banScore uint32
}

func (e *RejectReason) Error() string {
	return e.s
}

func newRejectReason(s string, banScore uint32) *RejectReason {
	return &RejectReason{s: s, banScore: banScore}
}

// Reasons wrapped by RuleError.
var (
	// ErrInvalidCollateral is returned when a collateral transaction
	// spends unknown, spent or unconfirmed outputs, pays non-standard
	// scripts, does not pay the collateral fee, or is not signed.
	ErrInvalidCollateral = newRejectReason("collateral not valid", 0)

	// ErrSessionFull is returned when the session already holds a quorum
	// of participants or entries.
	ErrSessionFull = newRejectReason("entries is full", 0)

	// ErrDuplicateInput is returned when an entry input is already part of
	// the session or repeated within the entry.
	ErrDuplicateInput = newRejectReason("already have that input", 0)

	// ErrInvalidInput is returned when an entry input is null, unknown,
	// spent, unconfirmed, or does not belong to the participant.
	ErrInvalidInput = newRejectReason("input not valid", 0)

	// ErrInvalidOutput is returned when an entry output is not a standard
	// denominated output or the outputs do not match the entry amount.
	ErrInvalidOutput = newRejectReason("output not valid", 0)

	// ErrIncompatibleMode is returned when a request does not fit the
	// current session state.
	ErrIncompatibleMode = newRejectReason("incompatible mode", 0)

	// ErrIncompatibleDenom is returned when the denominations of a request
	// differ from the denominations of the session.
	ErrIncompatibleDenom = newRejectReason("not compatible with existing "+
		"transactions", 0)

	// ErrHighFees is returned when an entry pays more than the maximum
	// fee ratio of its input value.
	ErrHighFees = newRejectReason("transaction fees are too high", 0)

	// ErrInvalidSessionID is returned when a request names another
	// session.
	ErrInvalidSessionID = newRejectReason("invalid session ID", 0)

	// ErrInvalidSignature is returned when a submitted signature script
	// does not satisfy the spent output.
	ErrInvalidSignature = newRejectReason("invalid signature", 20)
)

// Reason returns the reason reported to a participant whose request failed
// with err.
func Reason(err error) string {
	var r *RejectReason
	if errors.As(err, &r) {
		return r.s
	}
	return "internal error"
}

// BanScore returns the misbehavior score a participant earns for a request
// that failed with err.
func BanScore(err error) uint32 {
	var r *RejectReason
	if errors.As(err, &r) {
		return r.banScore
	}
	return 0
}
