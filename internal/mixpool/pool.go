// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mixpool implements the mixing session a masternode coordinates.
//
// A session collects entries of inputs and denominated outputs from a quorum
// of participants, builds a single joint transaction from them with shuffled
// input and output order, collects each participant's signatures for its own
// inputs and submits the fully signed transaction to the ledger.  Every
// participant proves its stake with a collateral transaction that is charged
// when it stalls or spoils the round.
package mixpool

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/decred/dcrd/blockchain/standalone/v2"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/txscript/v4"
	"github.com/decred/dcrd/txscript/v4/stdscript"
	"github.com/decred/dcrd/wire"
	"github.com/google/uuid"
	"github.com/mnsuite/mnd/internal/denom"
	"github.com/mnsuite/mnd/internal/mixqueue"
	"github.com/mnsuite/mnd/internal/mnwire"
	"github.com/mnsuite/mnd/internal/netparams"
)

// minInputConfs is the number of confirmations required for entry and
// collateral inputs.
const minInputConfs = 1

// scriptFlags are the script verification flags used to check collateral
// and joint transaction signatures.
const scriptFlags = txscript.ScriptDiscourageUpgradableNops |
	txscript.ScriptVerifyCleanStack |
	txscript.ScriptVerifyCheckLockTimeVerify |
	txscript.ScriptVerifyCheckSequenceVerify

// State is the state of a mixing session.
type State uint8

// These constants define the session states.
const (
	StateAcceptingEntries State = iota
	StateQueue
	StateSigning
	StateSuccess
	StateError
)

var stateStrings = map[State]string{
	StateAcceptingEntries: "AcceptingEntries",
	StateQueue:            "Queue",
	StateSigning:          "Signing",
	StateSuccess:          "Success",
	StateError:            "Error",
}

// String returns the State as a human-readable name.
func (s State) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("Unknown State (%d)", uint8(s))
}

// Chain provides the ledger operations used by the session.
type Chain interface {
	GetTransaction(hash chainhash.Hash) (*wire.MsgTx, error)
	IsTransactionUnspent(op wire.OutPoint) bool
	GetConfirmationDepth(op wire.OutPoint) int64
	SubmitTransaction(tx *wire.MsgTx) error
}

// CoinLocker locks outputs held by the session so they are not used
// elsewhere.
type CoinLocker interface {
	LockCoin(op wire.OutPoint)
	UnlockCoin(op wire.OutPoint)
}

// Notifier delivers session messages to participants and relays queue
// announcements to the network.  Implementations must not block and must not
// call back into the pool.
type Notifier interface {
	SendMessage(peer string, msg mnwire.Message)
	RelayMessage(msg mnwire.Message)
}

// Config is the configuration struct for the pool.
type Config struct {
	Params   *netparams.Params
	Chain    Chain
	Locker   CoinLocker
	Notifier Notifier

	// OperatorKey and CollateralOutPoint identify the local masternode in
	// queue announcements.  No announcements are made when OperatorKey is
	// nil.
	OperatorKey        *secp256k1.PrivateKey
	CollateralOutPoint wire.OutPoint

	// Now returns the current time.  It defaults to time.Now.
	Now func() time.Time
}

// entryInput is an input of an entry along with the output it spends.
type entryInput struct {
	txIn       wire.TxIn
	prevScript []byte
	signed     bool
}

// entry is the accepted contribution of one participant.
type entry struct {
	peer       string
	inputs     []entryInput
	outputs    []*wire.TxOut
	collateral *wire.MsgTx
	amount     int64
	added      time.Time
}

// inputRef locates an input in the entry list.
type inputRef struct {
	entry int
	input int
}

// Pool is the mixing session coordinated by the local masternode.  It is the
// single writer of its session and is safe for concurrent access.
type Pool struct {
	cfg Config

	mtx          sync.Mutex
	id           [mnwire.SessionIDLen]byte
	state        State
	denomination uint32
	participants map[string]*wire.MsgTx
	entries      []*entry
	inputs       map[wire.OutPoint]inputRef
	finalTx      *wire.MsgTx
	txIndex      map[wire.OutPoint]int
	lastChange   time.Time
	lastResult   State
	lastMessage  string
}

// New returns a pool with an empty session accepting entries.
func New(cfg *Config) *Pool {
	c := *cfg
	if c.Now == nil {
		c.Now = time.Now
	}
	p := &Pool{cfg: c, lastResult: StateAcceptingEntries}
	p.clearLocked(c.Now())
	return p
}

// clearLocked starts a new empty session.
//
// This function MUST be called with the pool mutex held (for writes).
func (p *Pool) clearLocked(now time.Time) {
	p.id = uuid.New()
	p.state = StateAcceptingEntries
	p.denomination = 0
	p.participants = make(map[string]*wire.MsgTx)
	p.entries = nil
	p.inputs = make(map[wire.OutPoint]inputRef)
	p.finalTx = nil
	p.txIndex = nil
	p.lastChange = now
}

// releaseLocked unlocks every coin held by the session.
//
// This function MUST be called with the pool mutex held (for writes).
func (p *Pool) releaseLocked() {
	for op := range p.inputs {
		p.cfg.Locker.UnlockCoin(op)
	}
}

// resetLocked releases every coin held by the session, records the result
// of the round and starts a new session.  Every path that ends a round goes
// through it.
//
// This function MUST be called with the pool mutex held (for writes).
func (p *Pool) resetLocked(result State, message string) {
	p.releaseLocked()
	if result == StateError {
		log.Infof("Mixing session %x aborted: %s", p.id[:4], message)
	}
	p.lastResult = result
	p.lastMessage = message
	p.clearLocked(p.cfg.Now())
}

// setStateLocked moves the session to state.
//
// This function MUST be called with the pool mutex held (for writes).
func (p *Pool) setStateLocked(state State) {
	if p.state != state {
		log.Debugf("Mixing session %x %v -> %v", p.id[:4], p.state, state)
	}
	p.state = state
	p.lastChange = p.cfg.Now()
}

// announceLocked relays a queue announcement for the session.
//
// This function MUST be called with the pool mutex held.
func (p *Pool) announceLocked(ready bool) {
	if p.cfg.OperatorKey == nil {
		return
	}
	msg, err := mixqueue.NewAnnouncement(p.cfg.CollateralOutPoint,
		p.denomination, ready, p.cfg.OperatorKey, p.cfg.Now())
	if err != nil {
		log.Errorf("Unable to sign queue announcement: %v", err)
		return
	}
	p.cfg.Notifier.RelayMessage(msg)
}

// prevOutput returns the output spent by an input after checking it is
// unspent and confirmed.
func (p *Pool) prevOutput(op wire.OutPoint) (*wire.TxOut, error) {
	tx, err := p.cfg.Chain.GetTransaction(op.Hash)
	if err != nil {
		return nil, fmt.Errorf("output %v not found: %v", op, err)
	}
	if op.Index >= uint32(len(tx.TxOut)) {
		return nil, fmt.Errorf("output %v not found", op)
	}
	if !p.cfg.Chain.IsTransactionUnspent(op) {
		return nil, fmt.Errorf("output %v is not unspent", op)
	}
	if p.cfg.Chain.GetConfirmationDepth(op) < minInputConfs {
		return nil, fmt.Errorf("output %v is unconfirmed", op)
	}
	return tx.TxOut[op.Index], nil
}

// verifyInputScript runs the signature script of input idx of tx against
// the output script it spends.
func verifyInputScript(tx *wire.MsgTx, idx int, prevScript []byte) error {
	vm, err := txscript.NewEngine(prevScript, tx, idx, scriptFlags, 0, nil)
	if err != nil {
		return err
	}
	return vm.Execute()
}

// checkCollateral validates a collateral transaction.  It must spend
// confirmed unspent outputs with valid signatures, pay only standard
// scripts, and pay at least the collateral fee.
func (p *Pool) checkCollateral(tx *wire.MsgTx) error {
	if tx == nil {
		return ruleError(fmt.Errorf("%w: missing transaction",
			ErrInvalidCollateral))
	}
	maxTxSize := uint64(p.cfg.Params.MaxTxSize)
	if err := standalone.CheckTransactionSanity(tx, maxTxSize); err != nil {
		return ruleError(fmt.Errorf("%w: %v", ErrInvalidCollateral, err))
	}
	var in, out int64
	for _, txOut := range tx.TxOut {
		if !stdscript.IsPubKeyHashScriptV0(txOut.PkScript) {
			return ruleError(fmt.Errorf("%w: non-standard output script",
				ErrInvalidCollateral))
		}
		out += txOut.Value
	}
	for i, txIn := range tx.TxIn {
		prev, err := p.prevOutput(txIn.PreviousOutPoint)
		if err != nil {
			return ruleError(fmt.Errorf("%w: %v", ErrInvalidCollateral, err))
		}
		if err := verifyInputScript(tx, i, prev.PkScript); err != nil {
			return ruleError(fmt.Errorf("%w: input %d: %v",
				ErrInvalidCollateral, i, err))
		}
		in += prev.Value
	}
	fee := in - out
	if fee < int64(p.cfg.Params.MixingCollateralFee) {
		return ruleError(fmt.Errorf("%w: pays fee %d, need %d",
			ErrInvalidCollateral, fee, int64(p.cfg.Params.MixingCollateralFee)))
	}
	return nil
}

// Accept admits peer into the session for the denomination mask against
// the collateral transaction.  The first participant opens the round, which
// is announced to the network.
func (p *Pool) Accept(peer string, mask uint32, collateral *wire.MsgTx) error {
	if !denom.Valid(mask) {
		return ruleError(fmt.Errorf("%w: invalid mask %#x",
			ErrIncompatibleDenom, mask))
	}
	if err := p.checkCollateral(collateral); err != nil {
		return err
	}

	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.state != StateAcceptingEntries {
		return ruleError(fmt.Errorf("%w: session is %v",
			ErrIncompatibleMode, p.state))
	}
	_, joined := p.participants[peer]
	if !joined && len(p.participants) >= p.cfg.Params.MixingQuorum {
		return ruleError(fmt.Errorf("%w: %d participants",
			ErrSessionFull, len(p.participants)))
	}
	if !denom.Compatible(p.denomination, mask) {
		return ruleError(fmt.Errorf("%w: session mixes %s",
			ErrIncompatibleDenom, denom.String(p.denomination)))
	}

	open := len(p.participants) == 0
	p.participants[peer] = collateral.Copy()
	p.denomination = mask
	p.lastChange = p.cfg.Now()
	if open {
		log.Infof("Opening mixing session %x for %s", p.id[:4],
			denom.String(mask))
		p.announceLocked(false)
	}
	return nil
}

// checkEntry performs the checks of an entry that do not depend on the
// session.  It returns the entry inputs along with the denomination mask and
// value of its outputs.
func (p *Pool) checkEntry(msg *mnwire.MsgMixEntry) ([]entryInput, uint32, error) {
	params := p.cfg.Params
	if len(msg.Inputs) == 0 || len(msg.Inputs) > params.MaxEntryInputs {
		return nil, 0, ruleError(fmt.Errorf("%w: %d inputs",
			ErrInvalidInput, len(msg.Inputs)))
	}
	if len(msg.Outputs) == 0 {
		return nil, 0, ruleError(fmt.Errorf("%w: no outputs",
			ErrInvalidOutput))
	}

	var out int64
	for _, txOut := range msg.Outputs {
		if !stdscript.IsPubKeyHashScriptV0(txOut.PkScript) {
			return nil, 0, ruleError(fmt.Errorf("%w: non-standard script",
				ErrInvalidOutput))
		}
		out += txOut.Value
	}
	mask := denom.GetDenominations(msg.Outputs)
	if mask == 0 {
		return nil, 0, ruleError(fmt.Errorf("%w: output is not "+
			"denominated", ErrInvalidOutput))
	}
	if out != msg.Amount {
		return nil, 0, ruleError(fmt.Errorf("%w: outputs pay %d, entry "+
			"amount is %d", ErrInvalidOutput, out, msg.Amount))
	}

	if err := p.checkCollateral(msg.Collateral); err != nil {
		return nil, 0, err
	}

	var in int64
	inputs := make([]entryInput, 0, len(msg.Inputs))
	seen := make(map[wire.OutPoint]struct{}, len(msg.Inputs))
	for _, txIn := range msg.Inputs {
		op := txIn.PreviousOutPoint
		if op == (wire.OutPoint{}) {
			return nil, 0, ruleError(fmt.Errorf("%w: null input",
				ErrInvalidInput))
		}
		if _, ok := seen[op]; ok {
			return nil, 0, ruleError(fmt.Errorf("%w: %v repeated",
				ErrDuplicateInput, op))
		}
		seen[op] = struct{}{}
		prev, err := p.prevOutput(op)
		if err != nil {
			return nil, 0, ruleError(fmt.Errorf("%w: %v", ErrInvalidInput,
				err))
		}
		if !stdscript.IsPubKeyHashScriptV0(prev.PkScript) {
			return nil, 0, ruleError(fmt.Errorf("%w: %v has non-standard "+
				"script", ErrInvalidInput, op))
		}
		in += prev.Value
		inputs = append(inputs, entryInput{
			txIn:       *wire.NewTxIn(&op, prev.Value, nil),
			prevScript: prev.PkScript,
		})
	}

	if out > in {
		return nil, 0, ruleError(fmt.Errorf("%w: inputs %d do not cover "+
			"outputs %d", ErrInvalidInput, in, out))
	}
	if fee := in - out; float64(fee) > float64(in)*params.MaxEntryFeeRatio {
		return nil, 0, ruleError(fmt.Errorf("%w: fee %d of input %d",
			ErrHighFees, fee, in))
	}
	return inputs, mask, nil
}

// AddEntry adds the entry of peer to the session.  Rejected entries leave
// the session unchanged.  The inputs of an accepted entry are locked until
// the round ends.  The session starts signing once it holds a quorum of
// entries.
func (p *Pool) AddEntry(peer string, msg *mnwire.MsgMixEntry) error {
	inputs, mask, err := p.checkEntry(msg)
	if err != nil {
		return err
	}

	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.state != StateAcceptingEntries {
		return ruleError(fmt.Errorf("%w: session is %v",
			ErrIncompatibleMode, p.state))
	}
	if len(p.entries) >= p.cfg.Params.MixingQuorum {
		return ruleError(fmt.Errorf("%w: %d entries", ErrSessionFull,
			len(p.entries)))
	}
	_, joined := p.participants[peer]
	if !joined && len(p.participants) >= p.cfg.Params.MixingQuorum {
		return ruleError(fmt.Errorf("%w: %d participants", ErrSessionFull,
			len(p.participants)))
	}
	for _, e := range p.entries {
		if e.peer == peer {
			return ruleError(fmt.Errorf("%w: peer already submitted an "+
				"entry", ErrIncompatibleMode))
		}
	}
	if !denom.Compatible(p.denomination, mask) {
		return ruleError(fmt.Errorf("%w: entry mixes %s, session mixes %s",
			ErrIncompatibleDenom, denom.String(mask),
			denom.String(p.denomination)))
	}
	for i := range inputs {
		if _, ok := p.inputs[inputs[i].txIn.PreviousOutPoint]; ok {
			return ruleError(fmt.Errorf("%w: %v", ErrDuplicateInput,
				inputs[i].txIn.PreviousOutPoint))
		}
	}

	now := p.cfg.Now()
	e := &entry{
		peer:       peer,
		inputs:     inputs,
		outputs:    make([]*wire.TxOut, 0, len(msg.Outputs)),
		collateral: msg.Collateral.Copy(),
		amount:     msg.Amount,
		added:      now,
	}
	for _, txOut := range msg.Outputs {
		e.outputs = append(e.outputs, wire.NewTxOut(txOut.Value,
			txOut.PkScript))
	}
	open := len(p.participants) == 0
	idx := len(p.entries)
	p.entries = append(p.entries, e)
	for i := range inputs {
		op := inputs[i].txIn.PreviousOutPoint
		p.inputs[op] = inputRef{entry: idx, input: i}
		p.cfg.Locker.LockCoin(op)
	}
	if !joined {
		p.participants[peer] = e.collateral
	}
	p.denomination = mask
	p.lastChange = now
	log.Debugf("Accepted entry %d of session %x from %s", idx+1, p.id[:4],
		peer)
	if open {
		p.announceLocked(false)
	}

	p.checkLocked()
	return nil
}

// checkLocked advances a session holding a quorum of entries to signing.
// The denominations of all entries must agree before the joint transaction
// is built and sent to the participants.
//
// This function MUST be called with the pool mutex held (for writes).
func (p *Pool) checkLocked() {
	if p.state == StateAcceptingEntries &&
		len(p.entries) >= p.cfg.Params.MixingQuorum {

		p.setStateLocked(StateQueue)
	}
	if p.state != StateQueue {
		return
	}
	for _, e := range p.entries {
		if denom.GetDenominations(e.outputs) != p.denomination {
			p.resetLocked(StateError, "entries do not agree on "+
				"denominations")
			return
		}
	}

	p.announceLocked(true)
	p.buildFinalTxLocked()
	p.setStateLocked(StateSigning)
	for _, e := range p.entries {
		p.cfg.Notifier.SendMessage(e.peer, &mnwire.MsgMixFinalTx{
			SessionID: p.id,
			Tx:        p.finalTx.Copy(),
		})
	}
	log.Infof("Mixing session %x signing %d inputs and %d outputs",
		p.id[:4], len(p.finalTx.TxIn), len(p.finalTx.TxOut))
}

// Status is a snapshot of the session.
type Status struct {
	SessionID    [mnwire.SessionIDLen]byte
	State        State
	Denomination uint32
	Participants int
	Entries      int
	Inputs       int
	SignedInputs int
	LastChange   time.Time
	LastResult   State
	LastMessage  string
}

// Status returns a snapshot of the session.
func (p *Pool) Status() Status {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	s := Status{
		SessionID:    p.id,
		State:        p.state,
		Denomination: p.denomination,
		Participants: len(p.participants),
		Entries:      len(p.entries),
		Inputs:       len(p.inputs),
		LastChange:   p.lastChange,
		LastResult:   p.lastResult,
		LastMessage:  p.lastMessage,
	}
	for _, e := range p.entries {
		for i := range e.inputs {
			if e.inputs[i].signed {
				s.SignedInputs++
			}
		}
	}
	return s
}

// StatusMsg returns the status message answering a participant request.
func (p *Pool) StatusMsg(accepted bool, reason string) *mnwire.MsgMixStatus {
	s := p.Status()
	return &mnwire.MsgMixStatus{
		SessionID:  s.SessionID,
		State:      uint8(s.State),
		EntryCount: uint32(s.Entries),
		Accepted:   accepted,
		Message:    reason,
	}
}

// FinalTx returns a copy of the joint transaction, or nil before signing.
func (p *Pool) FinalTx() *wire.MsgTx {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.finalTx == nil {
		return nil
	}
	return p.finalTx.Copy()
}

// EntryInputs returns copies of the inputs of the entry of peer.
func (p *Pool) EntryInputs(peer string) []*wire.TxIn {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	for _, e := range p.entries {
		if e.peer != peer {
			continue
		}
		ins := make([]*wire.TxIn, 0, len(e.inputs))
		for i := range e.inputs {
			in := e.inputs[i].txIn
			in.SignatureScript = append([]byte(nil), in.SignatureScript...)
			ins = append(ins, &in)
		}
		return ins
	}
	return nil
}

// participantsLocked returns the participants in a stable order.
//
// This function MUST be called with the pool mutex held.
func (p *Pool) participantsLocked() []string {
	peers := make([]string, 0, len(p.participants))
	for peer := range p.participants {
		peers = append(peers, peer)
	}
	sort.Strings(peers)
	return peers
}
