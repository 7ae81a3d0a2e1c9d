// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package netparams houses the masternode and mixing parameters for each
// supported network on top of the base chain parameters.
package netparams

import (
	"time"

	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/dcrutil/v4"
)

// Params is used to group parameters for the various networks such as the
// main network and test networks.
type Params struct {
	*chaincfg.Params

	// CollateralAmount is the exact value an output must carry to be usable
	// as masternode collateral.
	CollateralAmount dcrutil.Amount

	// MinCollateralConfs is the number of confirmations the collateral
	// output requires before an announcement for it is accepted.
	MinCollateralConfs int64

	// MinProtocolVersion is the lowest masternode protocol version accepted
	// in announcements and considered for payment.
	MinProtocolVersion uint32

	// PaymentAuthorityPubKey is the hex encoded compressed secp256k1 public
	// key that every payment winner vote must be signed by.
	PaymentAuthorityPubKey string

	// PaymentAuthorityPrivKey is only published for test networks so local
	// nodes can produce valid winner votes.
	PaymentAuthorityPrivKey string

	// PaymentLookahead is how many blocks ahead of the tip a winner is
	// elected.
	PaymentLookahead int64

	// VoteWindowBehind and VoteWindowAhead bound the heights of accepted
	// winner votes relative to the best height.
	VoteWindowBehind int64
	VoteWindowAhead  int64

	// MinVoteRetention is the minimum number of blocks winner votes are
	// retained for.
	MinVoteRetention int64

	// MixingQuorum is the number of participants in a mixing round.
	MixingQuorum int

	// MixingCollateralFee is the minimum fee a mixing collateral
	// transaction must pay.
	MixingCollateralFee dcrutil.Amount

	// MaxEntryFeeRatio is the maximum fraction of an entry's input value
	// that may be paid as fee.
	MaxEntryFeeRatio float64

	// MaxEntryInputs limits the number of inputs of a single entry.
	MaxEntryInputs int

	// MixingQueueTimeout, MixingSigningTimeout and MixingClientGrace
	// define the mixing session timeout policy.
	MixingQueueTimeout   time.Duration
	MixingSigningTimeout time.Duration
	MixingClientGrace    time.Duration

	// Registry liveness timing.
	MinUpdateInterval   time.Duration
	PingInterval        time.Duration
	ExpirationWindow    time.Duration
	RemovalWindow       time.Duration
	CheckInterval       time.Duration
	MaxFutureDrift      time.Duration
	ListRequestInterval time.Duration
}

const coin = dcrutil.AtomsPerCoin

// MainNetParams contains parameters specific to the main network.
var MainNetParams = Params{
	Params:                 chaincfg.MainNetParams(),
	CollateralAmount:       1000 * coin,
	MinCollateralConfs:     15,
	MinProtocolVersion:     1,
	PaymentAuthorityPubKey: "0315ec583c87d8d73e95d49f0e648406d2c990408ddacd1b6235e318b1dbcf873b",
	PaymentLookahead:       10,
	VoteWindowBehind:       10,
	VoteWindowAhead:        20,
	MinVoteRetention:       5000,
	MixingQuorum:           3,
	MixingCollateralFee:    coin / 10,
	MaxEntryFeeRatio:       0.01,
	MaxEntryInputs:         20,
	MixingQueueTimeout:     120 * time.Second,
	MixingSigningTimeout:   30 * time.Second,
	MixingClientGrace:      10 * time.Second,
	MinUpdateInterval:      5 * time.Minute,
	PingInterval:           10 * time.Minute,
	ExpirationWindow:       65 * time.Minute,
	RemovalWindow:          70 * time.Minute,
	CheckInterval:          5 * time.Second,
	MaxFutureDrift:         time.Hour,
	ListRequestInterval:    3 * time.Hour,
}

// TestNet3Params contains parameters specific to the test network (version 3).
var TestNet3Params = Params{
	Params:                 chaincfg.TestNet3Params(),
	CollateralAmount:       1000 * coin,
	MinCollateralConfs:     15,
	MinProtocolVersion:     1,
	PaymentAuthorityPubKey: "031b89dda3a9f7e59da56e84706ef4a52cbe89616e1ba0a509006ecbfe5e87e1e1",
	PaymentLookahead:       10,
	VoteWindowBehind:       10,
	VoteWindowAhead:        20,
	MinVoteRetention:       5000,
	MixingQuorum:           3,
	MixingCollateralFee:    coin / 10,
	MaxEntryFeeRatio:       0.01,
	MaxEntryInputs:         20,
	MixingQueueTimeout:     120 * time.Second,
	MixingSigningTimeout:   30 * time.Second,
	MixingClientGrace:      10 * time.Second,
	MinUpdateInterval:      5 * time.Minute,
	PingInterval:           10 * time.Minute,
	ExpirationWindow:       65 * time.Minute,
	RemovalWindow:          70 * time.Minute,
	CheckInterval:          5 * time.Second,
	MaxFutureDrift:         time.Hour,
	ListRequestInterval:    time.Hour,
}

// SimNetParams contains parameters specific to the simulation test network.
var SimNetParams = Params{
	Params:                  chaincfg.SimNetParams(),
	CollateralAmount:        1000 * coin,
	MinCollateralConfs:      2,
	MinProtocolVersion:      1,
	PaymentAuthorityPubKey:  "0206a1d76b46a2f8bddfb6d143e76a598c985aa4018eb4c7e286e69477be195bed",
	PaymentAuthorityPrivKey: "f37c09b7ae4a7976477aa57511300d0bf65988d7b218bfcb7a91fb519b53e8ae",
	PaymentLookahead:        10,
	VoteWindowBehind:        10,
	VoteWindowAhead:         20,
	MinVoteRetention:        5000,
	MixingQuorum:            3,
	MixingCollateralFee:     coin / 10,
	MaxEntryFeeRatio:        0.01,
	MaxEntryInputs:          20,
	MixingQueueTimeout:      120 * time.Second,
	MixingSigningTimeout:    30 * time.Second,
	MixingClientGrace:       10 * time.Second,
	MinUpdateInterval:       5 * time.Minute,
	PingInterval:            10 * time.Minute,
	ExpirationWindow:        65 * time.Minute,
	RemovalWindow:           70 * time.Minute,
	CheckInterval:           5 * time.Second,
	MaxFutureDrift:          time.Hour,
}

// RegNetParams contains parameters specific to the regression test network.
var RegNetParams = Params{
	Params:                  chaincfg.RegNetParams(),
	CollateralAmount:        1000 * coin,
	MinCollateralConfs:      2,
	MinProtocolVersion:      1,
	PaymentAuthorityPubKey:  "03981553a9480e9e8aee86948a56e28107240767679c72c8a628c456e08112fac9",
	PaymentAuthorityPrivKey: "06499c8855cd2acf279f3212d18c46d2e08074e9919ae819bfd4edfe77a26cf9",
	PaymentLookahead:        10,
	VoteWindowBehind:        10,
	VoteWindowAhead:         20,
	MinVoteRetention:        5000,
	MixingQuorum:            3,
	MixingCollateralFee:     coin / 10,
	MaxEntryFeeRatio:        0.01,
	MaxEntryInputs:          20,
	MixingQueueTimeout:      120 * time.Second,
	MixingSigningTimeout:    30 * time.Second,
	MixingClientGrace:       10 * time.Second,
	MinUpdateInterval:       5 * time.Minute,
	PingInterval:            10 * time.Minute,
	ExpirationWindow:        65 * time.Minute,
	RemovalWindow:           70 * time.Minute,
	CheckInterval:           5 * time.Second,
	MaxFutureDrift:          time.Hour,
}
