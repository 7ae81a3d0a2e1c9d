// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package masternode

import (
	"fmt"
	"time"

	"github.com/decred/dcrd/wire"
	"github.com/mnsuite/mnd/internal/mnwire"
)

// Status describes the liveness of a masternode.
type Status uint8

// These constants define the liveness states.  The last three are only used
// by the local masternode manager to describe its own node.
const (
	StatusUnprocessed Status = iota
	StatusCapable
	StatusNotCapable
	StatusStopped
	StatusInputTooNew
	StatusPortNotOpen
	StatusPortOpen
	StatusSyncInProgress
	StatusRemotelyEnabled
)

var statusStrings = map[Status]string{
	StatusUnprocessed:     "Unprocessed",
	StatusCapable:         "Capable",
	StatusNotCapable:      "NotCapable",
	StatusStopped:         "Stopped",
	StatusInputTooNew:     "InputTooNew",
	StatusPortNotOpen:     "PortNotOpen",
	StatusPortOpen:        "PortOpen",
	StatusSyncInProgress:  "SyncInProgress",
	StatusRemotelyEnabled: "RemotelyEnabled",
}

// String returns the Status as a human-readable name.
func (s Status) String() string {
	if str, ok := statusStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("Unknown Status (%d)", uint8(s))
}

// Record is the registry's view of a masternode.
type Record struct {
	Addr               string
	CollateralOutPoint wire.OutPoint
	CollateralPubKey   [mnwire.PubKeyLen]byte
	OperatorPubKey     [mnwire.PubKeyLen]byte
	SigTime            time.Time
	LastSeen           time.Time
	LastPing           time.Time
	ProtocolVersion    uint32
	Status             Status

	// LastPaidHeight is 0 when the masternode has never been paid.
	LastPaidHeight int64
	LastPaidTime   time.Time

	StopRequested bool

	lastCheck time.Time
	removed   bool
	announce  *mnwire.MsgMNAnnounce
	ping      *mnwire.MsgMNPing
}

// IsEnabled returns whether the masternode is capable and runs at least
// protocol version minProto.
func (r *Record) IsEnabled(minProto uint32) bool {
	return r.Status == StatusCapable && r.ProtocolVersion >= minProto
}

// String returns a short description of the record for logging.
func (r *Record) String() string {
	return fmt.Sprintf("%v (%s, %v)", r.CollateralOutPoint, r.Addr, r.Status)
}
