// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package masternode

import (
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/mnsuite/mnd/internal/mnauth"
	"github.com/mnsuite/mnd/internal/mnwire"
)

// Snapshot is the persisted form of a record.  It holds the signed messages
// the record was built from so a restored record can be verified again.
type Snapshot struct {
	Announce       *mnwire.MsgMNAnnounce
	Ping           *mnwire.MsgMNPing
	LastSeen       time.Time
	LastPaidHeight int64
	LastPaidTime   time.Time
}

// Snapshot returns the persisted form of every live record.
func (r *Registry) Snapshot() []Snapshot {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	snaps := make([]Snapshot, 0, len(r.records))
	for _, rec := range r.records {
		if rec.removed || rec.announce == nil {
			continue
		}
		announce := *rec.announce
		snap := Snapshot{
			Announce:       &announce,
			LastSeen:       rec.LastSeen,
			LastPaidHeight: rec.LastPaidHeight,
			LastPaidTime:   rec.LastPaidTime,
		}
		if rec.ping != nil {
			ping := *rec.ping
			snap.Ping = &ping
		}
		snaps = append(snaps, snap)
	}
	return snaps
}

// Restore adds records from persisted snapshots.  Snapshots whose signatures
// no longer verify are skipped.  Restored records start Unprocessed and are
// only enabled by a later check against the ledger.  Records already known
// to the registry are left untouched.  It returns the number of restored
// records.
func (r *Registry) Restore(snaps []Snapshot) int {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	var restored int
	for i := range snaps {
		snap := &snaps[i]
		msg := snap.Announce
		if msg == nil {
			continue
		}
		if _, ok := r.records[msg.CollateralOutPoint]; ok {
			continue
		}
		operatorKey, err := secp256k1.ParsePubKey(msg.OperatorPubKey[:])
		if err != nil || !mnauth.VerifyKey(operatorKey, msg.Sig(), msg) {
			log.Warnf("Skipping cached masternode %v with invalid "+
				"announcement", msg.CollateralOutPoint)
			continue
		}
		announce := *msg
		rec := &Record{
			Addr:               msg.Addr,
			CollateralOutPoint: msg.CollateralOutPoint,
			CollateralPubKey:   msg.CollateralPubKey,
			OperatorPubKey:     msg.OperatorPubKey,
			SigTime:            time.Unix(msg.SigTime, 0),
			LastSeen:           snap.LastSeen,
			LastPing:           time.Unix(msg.SigTime, 0),
			ProtocolVersion:    msg.ProtocolVersion,
			Status:             StatusUnprocessed,
			LastPaidHeight:     snap.LastPaidHeight,
			LastPaidTime:       snap.LastPaidTime,
			announce:           &announce,
		}
		if ping := snap.Ping; ping != nil &&
			ping.CollateralOutPoint == msg.CollateralOutPoint &&
			mnauth.VerifyKey(operatorKey, ping.Sig(), ping) {

			p := *ping
			rec.ping = &p
			rec.LastPing = time.Unix(ping.SigTime, 0)
			rec.StopRequested = ping.Stop
		}
		r.records[msg.CollateralOutPoint] = rec
		restored++
	}
	return restored
}
