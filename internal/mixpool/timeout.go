// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mixpool

import (
	"fmt"

	"github.com/decred/dcrd/crypto/rand"
	"github.com/decred/dcrd/wire"
)

// offendersLocked returns the participants stalling the round.  While
// signing these are the participants with unsigned inputs, before that the
// participants that joined without submitting an entry.
//
// This function MUST be called with the pool mutex held.
func (p *Pool) offendersLocked() []string {
	var offenders []string
	switch p.state {
	case StateSigning:
		for _, e := range p.entries {
			for i := range e.inputs {
				if !e.inputs[i].signed {
					offenders = append(offenders, e.peer)
					break
				}
			}
		}
	case StateAcceptingEntries, StateQueue:
		submitted := make(map[string]struct{}, len(p.entries))
		for _, e := range p.entries {
			submitted[e.peer] = struct{}{}
		}
		for _, peer := range p.participantsLocked() {
			if _, ok := submitted[peer]; !ok {
				offenders = append(offenders, peer)
			}
		}
	}
	return offenders
}

// chargeLocked submits the collateral of peer to the ledger.
//
// This function MUST be called with the pool mutex held.
func (p *Pool) chargeLocked(peer string) bool {
	collateral, ok := p.participants[peer]
	if !ok {
		return false
	}
	if err := p.cfg.Chain.SubmitTransaction(collateral.Copy()); err != nil {
		log.Warnf("Unable to charge collateral %v of %s: %v",
			collateral.TxHash(), peer, err)
		return false
	}
	log.Infof("Charged collateral %v of %s", collateral.TxHash(), peer)
	return true
}

// chargeFeesLocked charges the collateral of one participant picked at
// random among those stalling the round.  It returns the charged
// participant.
//
// This function MUST be called with the pool mutex held.
func (p *Pool) chargeFeesLocked() (string, bool) {
	offenders := p.offendersLocked()
	if len(offenders) == 0 {
		return "", false
	}
	peer := offenders[rand.IntN(len(offenders))]
	return peer, p.chargeLocked(peer)
}

// ChargeFees charges the collateral of one participant stalling the round
// and returns it.
func (p *Pool) ChargeFees() (string, bool) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.chargeFeesLocked()
}

// dropEntryLocked removes the entry at idx along with its participant and
// unlocks its inputs.
//
// This function MUST be called with the pool mutex held (for writes).
func (p *Pool) dropEntryLocked(idx int) {
	e := p.entries[idx]
	for i := range e.inputs {
		op := e.inputs[i].txIn.PreviousOutPoint
		delete(p.inputs, op)
		p.cfg.Locker.UnlockCoin(op)
	}
	delete(p.participants, e.peer)
	p.entries = append(p.entries[:idx], p.entries[idx+1:]...)

	// Entries after idx moved down by one.
	for op, ref := range p.inputs {
		if ref.entry > idx {
			ref.entry--
			p.inputs[op] = ref
		}
	}
}

// CheckTimeout enforces the session timeouts.  Entries waiting longer than
// the queue timeout are dropped.  A round without progress within the queue
// timeout, or still signing after the signing timeout, is reset with an
// Error result, charging one stalling participant.  A completed round is
// cleared after the client grace period.  Calling it again without time
// passing has no further effect.
func (p *Pool) CheckTimeout() {
	now := p.cfg.Now()
	params := p.cfg.Params

	p.mtx.Lock()
	defer p.mtx.Unlock()

	idle := now.Sub(p.lastChange)
	switch p.state {
	case StateSuccess, StateError:
		if idle >= params.MixingClientGrace {
			p.resetLocked(p.lastResult, p.lastMessage)
		}

	case StateAcceptingEntries, StateQueue:
		for i := len(p.entries) - 1; i >= 0; i-- {
			if now.Sub(p.entries[i].added) > params.MixingQueueTimeout {
				log.Debugf("Dropping expired entry from %s",
					p.entries[i].peer)
				p.dropEntryLocked(i)
			}
		}
		if len(p.participants) == 0 && len(p.entries) == 0 {
			return
		}
		if idle > params.MixingQueueTimeout {
			p.chargeFeesLocked()
			p.resetLocked(StateError, "session timed out waiting for "+
				"entries")
		}

	case StateSigning:
		if idle > params.MixingSigningTimeout {
			p.chargeFeesLocked()
			p.notifyCompleteLocked(true, "signing timed out")
			p.resetLocked(StateError, "session timed out waiting for "+
				"signatures")
		}
	}
}

// RemovePeer resets the session when peer participates in a round that has
// not completed.
func (p *Pool) RemovePeer(peer string) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if _, ok := p.participants[peer]; !ok {
		return
	}
	switch p.state {
	case StateAcceptingEntries, StateQueue, StateSigning:
		p.notifyCompleteLocked(true, "participant disconnected")
		p.resetLocked(StateError, fmt.Sprintf("participant %s "+
			"disconnected", peer))
	}
}

// Reset aborts the current round and starts a new session.
func (p *Pool) Reset() {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.resetLocked(StateError, "session reset")
}

// HasInput returns whether op is held by the session.
func (p *Pool) HasInput(op wire.OutPoint) bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	_, ok := p.inputs[op]
	return ok
}
