// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package denom buckets mixing amounts into the fixed set of denominations
// and encodes the denominations present in a set of outputs as a bitmask.
//
// Outputs of the same denomination are indistinguishable from each other in a
// joint transaction, so participants are only grouped into the same round when
// their outputs produce the same bitmask.
package denom

import (
	"strings"

	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/wire"
)

// Denominations are the output values accepted by mixing rounds.  Bit i of a
// denomination bitmask stands for Denominations[i].  Each value carries a
// small atom offset so mixed outputs are recognizable on chain.
var Denominations = []dcrutil.Amount{
	100*dcrutil.AtomsPerCoin + 100000,
	10*dcrutil.AtomsPerCoin + 10000,
	1*dcrutil.AtomsPerCoin + 1000,
	dcrutil.AtomsPerCoin/10 + 100,
}

// Smallest returns the smallest denomination.
func Smallest() dcrutil.Amount {
	return Denominations[len(Denominations)-1]
}

// bit returns the bitmask bit of a denominated value, or 0 when the value is
// not a denomination.
func bit(value int64) uint32 {
	for i, d := range Denominations {
		if int64(d) == value {
			return 1 << uint(i)
		}
	}
	return 0
}

// IsDenominated returns whether value is exactly one of the denominations.
func IsDenominated(value int64) bool {
	return bit(value) != 0
}

// GetDenominations returns the bitmask of the denominations present in outs.
// The result only depends on the set of values, not their order.  Zero is
// returned when outs is empty or any output is not a denomination.
func GetDenominations(outs []*wire.TxOut) uint32 {
	var mask uint32
	for _, out := range outs {
		b := bit(out.Value)
		if b == 0 {
			return 0
		}
		mask |= b
	}
	return mask
}

// Split greedily splits amount into denominations, largest first.  The
// returned remainder is the part of amount below the smallest denomination.
func Split(amount dcrutil.Amount) (values []dcrutil.Amount, remainder dcrutil.Amount) {
	remainder = amount
	for _, d := range Denominations {
		for remainder >= d {
			values = append(values, d)
			remainder -= d
		}
	}
	return values, remainder
}

// GetDenominationsByAmount returns the bitmask of the denominations a greedy
// split of amount would produce.
func GetDenominationsByAmount(amount dcrutil.Amount) uint32 {
	values, _ := Split(amount)
	var mask uint32
	for _, v := range values {
		mask |= bit(int64(v))
	}
	return mask
}

// Amounts returns the denominations selected by mask, largest first.
func Amounts(mask uint32) []dcrutil.Amount {
	var amounts []dcrutil.Amount
	for i, d := range Denominations {
		if mask&(1<<uint(i)) != 0 {
			amounts = append(amounts, d)
		}
	}
	return amounts
}

// Valid returns whether mask is non-zero and only selects known
// denominations.
func Valid(mask uint32) bool {
	return mask != 0 && mask>>uint(len(Denominations)) == 0
}

// Compatible returns whether a participant requesting mask may join a round
// of the session denomination.  A zero session denomination matches any
// valid mask.
func Compatible(session, mask uint32) bool {
	if !Valid(mask) {
		return false
	}
	return session == 0 || session == mask
}

// String returns a human readable list of the denominations in mask.
func String(mask uint32) string {
	amounts := Amounts(mask)
	if len(amounts) == 0 {
		return "none"
	}
	parts := make([]string, len(amounts))
	for i, a := range amounts {
		parts[i] = a.String()
	}
	return strings.Join(parts, "+")
}
