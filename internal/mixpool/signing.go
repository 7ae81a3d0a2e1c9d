// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mixpool

import (
	"errors"
	"fmt"

	"github.com/decred/dcrd/crypto/rand"
	"github.com/decred/dcrd/wire"
	"github.com/mnsuite/mnd/internal/mnwire"
)

// buildFinalTxLocked builds the joint transaction from the inputs and
// outputs of every entry.  The order of both is shuffled so the position of
// an output does not reveal the entry it belongs to.
//
// This function MUST be called with the pool mutex held (for writes).
func (p *Pool) buildFinalTxLocked() {
	tx := wire.NewMsgTx()
	tx.Expiry = wire.NoExpiryValue
	for _, e := range p.entries {
		for i := range e.inputs {
			in := &e.inputs[i].txIn
			tx.AddTxIn(wire.NewTxIn(&in.PreviousOutPoint, in.ValueIn, nil))
		}
		for _, out := range e.outputs {
			tx.AddTxOut(wire.NewTxOut(out.Value, out.PkScript))
		}
	}
	rand.Shuffle(len(tx.TxIn), func(i, j int) {
		tx.TxIn[i], tx.TxIn[j] = tx.TxIn[j], tx.TxIn[i]
	})
	rand.Shuffle(len(tx.TxOut), func(i, j int) {
		tx.TxOut[i], tx.TxOut[j] = tx.TxOut[j], tx.TxOut[i]
	})

	p.finalTx = tx
	p.txIndex = make(map[wire.OutPoint]int, len(tx.TxIn))
	for i, in := range tx.TxIn {
		p.txIndex[in.PreviousOutPoint] = i
	}
}

// signatureValidLocked checks the signature script of in against the output
// it spends within the joint transaction.
//
// This function MUST be called with the pool mutex held.
func (p *Pool) signatureValidLocked(in *wire.TxIn) (inputRef, int, error) {
	if p.state != StateSigning {
		return inputRef{}, 0, ruleError(fmt.Errorf("%w: session is %v",
			ErrIncompatibleMode, p.state))
	}
	op := in.PreviousOutPoint
	ref, ok := p.inputs[op]
	if !ok {
		return inputRef{}, 0, ruleError(fmt.Errorf("%w: %v is not part of "+
			"the session", ErrInvalidInput, op))
	}
	idx := p.txIndex[op]
	tx := p.finalTx.Copy()
	tx.TxIn[idx].SignatureScript = in.SignatureScript
	prevScript := p.entries[ref.entry].inputs[ref.input].prevScript
	if err := verifyInputScript(tx, idx, prevScript); err != nil {
		return inputRef{}, 0, ruleError(fmt.Errorf("%w: input %v: %v",
			ErrInvalidSignature, op, err))
	}
	return ref, idx, nil
}

// SignatureValid returns nil when the signature script of in belongs to an
// input of a known entry and satisfies the output it spends.
func (p *Pool) SignatureValid(in *wire.TxIn) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	_, _, err := p.signatureValidLocked(in)
	return err
}

// checkScriptSigLocked checks that the signature script of in is valid for
// an input that is not signed yet.
//
// This function MUST be called with the pool mutex held.
func (p *Pool) checkScriptSigLocked(in *wire.TxIn) (inputRef, int, error) {
	ref, idx, err := p.signatureValidLocked(in)
	if err != nil {
		return inputRef{}, 0, err
	}
	if p.entries[ref.entry].inputs[ref.input].signed {
		return inputRef{}, 0, ruleError(fmt.Errorf("%w: %v is already "+
			"signed", ErrInvalidInput, in.PreviousOutPoint))
	}
	return ref, idx, nil
}

// applyScriptSigLocked sets the checked signature script of in on the entry
// input ref and the joint transaction input idx.
//
// This function MUST be called with the pool mutex held (for writes).
func (p *Pool) applyScriptSigLocked(ref inputRef, idx int, in *wire.TxIn) {
	input := &p.entries[ref.entry].inputs[ref.input]
	script := append([]byte(nil), in.SignatureScript...)
	input.txIn.SignatureScript = script
	input.signed = true
	p.finalTx.TxIn[idx].SignatureScript = script
}

// addScriptSigLocked applies a valid signature script to the entry input and
// the matching joint transaction input.
//
// This function MUST be called with the pool mutex held (for writes).
func (p *Pool) addScriptSigLocked(in *wire.TxIn) error {
	ref, idx, err := p.checkScriptSigLocked(in)
	if err != nil {
		return err
	}
	p.applyScriptSigLocked(ref, idx, in)
	return nil
}

// AddScriptSig applies the signature script of in to the session after
// checking it with SignatureValid.
func (p *Pool) AddScriptSig(in *wire.TxIn) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.addScriptSigLocked(in)
}

// signaturesCompleteLocked returns whether every input of every entry is
// signed.
//
// This function MUST be called with the pool mutex held.
func (p *Pool) signaturesCompleteLocked() bool {
	if len(p.entries) == 0 {
		return false
	}
	for _, e := range p.entries {
		for i := range e.inputs {
			if !e.inputs[i].signed {
				return false
			}
		}
	}
	return true
}

// SignaturesComplete returns whether every input of every entry is signed.
func (p *Pool) SignaturesComplete() bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.signaturesCompleteLocked()
}

// AddSignatures applies the signatures peer returned for its inputs of the
// joint transaction of session id.  The whole batch is checked before any
// signature is applied, so a rejected batch leaves the session unchanged.  An
// invalid signature charges the collateral of peer and aborts the round.  The
// transaction is committed once every input is signed.
func (p *Pool) AddSignatures(peer string, id [mnwire.SessionIDLen]byte, ins []*wire.TxIn) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.state != StateSigning {
		return ruleError(fmt.Errorf("%w: session is %v",
			ErrIncompatibleMode, p.state))
	}
	if id != p.id {
		return ruleError(fmt.Errorf("%w: %x", ErrInvalidSessionID, id[:4]))
	}
	if len(ins) == 0 {
		return ruleError(fmt.Errorf("%w: no signatures", ErrInvalidInput))
	}
	seen := make(map[wire.OutPoint]struct{}, len(ins))
	for _, in := range ins {
		op := in.PreviousOutPoint
		ref, ok := p.inputs[op]
		if !ok || p.entries[ref.entry].peer != peer {
			return ruleError(fmt.Errorf("%w: %v does not belong to the "+
				"participant", ErrInvalidInput, op))
		}
		if _, dup := seen[op]; dup {
			return ruleError(fmt.Errorf("%w: %v is signed twice",
				ErrInvalidInput, op))
		}
		seen[op] = struct{}{}
	}

	type checkedSig struct {
		ref inputRef
		idx int
		in  *wire.TxIn
	}
	checked := make([]checkedSig, 0, len(ins))
	for _, in := range ins {
		ref, idx, err := p.checkScriptSigLocked(in)
		if err != nil {
			if errors.Is(err, ErrInvalidSignature) {
				p.chargeLocked(peer)
				p.notifyCompleteLocked(true, Reason(err))
				p.resetLocked(StateError, fmt.Sprintf("participant %s "+
					"returned an invalid signature", peer))
			}
			return err
		}
		checked = append(checked, checkedSig{ref: ref, idx: idx, in: in})
	}
	for _, c := range checked {
		p.applyScriptSigLocked(c.ref, c.idx, c.in)
	}

	if p.signaturesCompleteLocked() {
		p.commitLocked()
	}
	return nil
}

// notifyCompleteLocked sends the result of the round to every participant.
//
// This function MUST be called with the pool mutex held.
func (p *Pool) notifyCompleteLocked(failed bool, message string) {
	for _, peer := range p.participantsLocked() {
		p.cfg.Notifier.SendMessage(peer, &mnwire.MsgMixComplete{
			SessionID: p.id,
			Error:     failed,
			Message:   message,
		})
	}
}

// commitLocked submits the fully signed joint transaction to the ledger.
// The session ends in Success, or is reset with an Error result when the
// ledger rejects the transaction.
//
// This function MUST be called with the pool mutex held (for writes).
func (p *Pool) commitLocked() {
	tx := p.finalTx.Copy()
	if err := p.cfg.Chain.SubmitTransaction(tx); err != nil {
		log.Errorf("Ledger rejected joint transaction %v: %v", tx.TxHash(),
			err)
		p.notifyCompleteLocked(true, "transaction not valid")
		p.resetLocked(StateError, "ledger rejected the joint transaction")
		return
	}

	log.Infof("Mixing session %x completed transaction %v", p.id[:4],
		tx.TxHash())
	p.notifyCompleteLocked(false, "transaction completed")
	p.releaseLocked()
	p.lastResult = StateSuccess
	p.lastMessage = "transaction completed"
	p.setStateLocked(StateSuccess)
}
