// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mixclient implements the participant side of a mixing round.
//
// A client joins the session of one masternode with a collateral
// transaction, submits its entry once admitted, checks the joint transaction
// it receives still pays every one of its outputs, signs its own inputs and
// waits for the result.  Every coin the client locks for a round is released
// when the round ends, whatever the outcome.
package mixclient

import (
	"fmt"
	"sync"
	"time"

	"github.com/decred/dcrd/wire"
	"github.com/mnsuite/mnd/internal/denom"
	"github.com/mnsuite/mnd/internal/mnwire"
	"github.com/mnsuite/mnd/internal/netparams"
)

// State is the state of the client in a round.
type State uint8

// These constants define the client states.
const (
	StateIdle State = iota
	StateJoining
	StateEntrySent
	StateSigning
	StateSuccess
	StateError
)

var stateStrings = map[State]string{
	StateIdle:      "Idle",
	StateJoining:   "Joining",
	StateEntrySent: "EntrySent",
	StateSigning:   "Signing",
	StateSuccess:   "Success",
	StateError:     "Error",
}

// String returns the State as a human-readable name.
func (s State) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("Unknown State (%d)", uint8(s))
}

// Wallet signs inputs of the joint transaction and funds collaterals.
type Wallet interface {
	SignInput(tx *wire.MsgTx, idx int) ([]byte, error)
	CreateCollateral(fee int64) (*wire.MsgTx, error)
}

// CoinLocker reserves coins for the duration of a round.
type CoinLocker interface {
	LockCoin(op wire.OutPoint)
	UnlockCoin(op wire.OutPoint)
}

// Sender delivers messages to the masternode of a round.  Implementations
// must not block and must not call back into the client.
type Sender interface {
	SendMessage(peer string, msg mnwire.Message)
}

// Config is the configuration struct for the client.
type Config struct {
	Params *netparams.Params
	Wallet Wallet
	Locker CoinLocker
	Sender Sender

	// Now returns the current time.  It defaults to time.Now.
	Now func() time.Time
}

// Client is a mixing participant.  It takes part in at most one round at a
// time and is safe for concurrent access.
type Client struct {
	cfg Config

	mtx          sync.Mutex
	state        State
	masternode   string
	sessionID    [mnwire.SessionIDLen]byte
	denomination uint32
	inputs       []*wire.TxIn
	outputs      []*wire.TxOut
	amount       int64
	collateral   *wire.MsgTx
	locked       []wire.OutPoint
	lastChange   time.Time
	lastMessage  string
}

// New returns an idle client.
func New(cfg *Config) *Client {
	c := *cfg
	if c.Now == nil {
		c.Now = time.Now
	}
	return &Client{cfg: c, lastChange: c.Now()}
}

// setStateLocked moves the client to state.
//
// This function MUST be called with the client mutex held (for writes).
func (c *Client) setStateLocked(state State, message string) {
	if c.state != state {
		log.Debugf("Mixing client %v -> %v", c.state, state)
	}
	c.state = state
	c.lastMessage = message
	c.lastChange = c.cfg.Now()
}

// releaseLocked unlocks every coin the client holds for the round.
//
// This function MUST be called with the client mutex held (for writes).
func (c *Client) releaseLocked() {
	for _, op := range c.locked {
		c.cfg.Locker.UnlockCoin(op)
	}
	c.locked = nil
}

// failLocked ends the round with an Error result.
//
// This function MUST be called with the client mutex held (for writes).
func (c *Client) failLocked(message string) {
	log.Infof("Mixing round with %s failed: %s", c.masternode, message)
	c.releaseLocked()
	c.setStateLocked(StateError, message)
}

// Join starts a round with masternode mixing inputs into the denominated
// outputs.  The inputs must carry the value they spend.  The inputs and the
// collateral funding are locked until the round ends.
func (c *Client) Join(masternode string, inputs []*wire.TxIn, outputs []*wire.TxOut) error {
	if len(inputs) == 0 || len(outputs) == 0 {
		return ruleError(ErrInvalidEntry, "entry needs inputs and outputs")
	}
	mask := denom.GetDenominations(outputs)
	if mask == 0 {
		return ruleError(ErrInvalidEntry, "outputs are not denominated")
	}
	var in, out int64
	for _, txIn := range inputs {
		in += txIn.ValueIn
	}
	for _, txOut := range outputs {
		out += txOut.Value
	}
	if out > in {
		str := fmt.Sprintf("outputs pay %d from %d of inputs", out, in)
		return ruleError(ErrInvalidEntry, str)
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	switch c.state {
	case StateIdle, StateSuccess, StateError:
	default:
		str := fmt.Sprintf("round with %s is %v", c.masternode, c.state)
		return ruleError(ErrBusy, str)
	}

	// Lock the mixed inputs first so the wallet does not fund the
	// collateral with them.
	c.locked = c.locked[:0]
	for _, txIn := range inputs {
		c.cfg.Locker.LockCoin(txIn.PreviousOutPoint)
		c.locked = append(c.locked, txIn.PreviousOutPoint)
	}
	fee := int64(c.cfg.Params.MixingCollateralFee)
	collateral, err := c.cfg.Wallet.CreateCollateral(fee)
	if err != nil {
		c.releaseLocked()
		return ruleError(ErrCollateral, err.Error())
	}
	for _, txIn := range collateral.TxIn {
		c.cfg.Locker.LockCoin(txIn.PreviousOutPoint)
		c.locked = append(c.locked, txIn.PreviousOutPoint)
	}

	c.masternode = masternode
	c.sessionID = [mnwire.SessionIDLen]byte{}
	c.denomination = mask
	c.inputs = make([]*wire.TxIn, 0, len(inputs))
	for _, txIn := range inputs {
		c.inputs = append(c.inputs, wire.NewTxIn(&txIn.PreviousOutPoint,
			txIn.ValueIn, nil))
	}
	c.outputs = make([]*wire.TxOut, 0, len(outputs))
	for _, txOut := range outputs {
		c.outputs = append(c.outputs, wire.NewTxOut(txOut.Value,
			txOut.PkScript))
	}
	c.amount = out
	c.collateral = collateral

	log.Infof("Joining mixing session of %s for %s", masternode,
		denom.String(mask))
	c.cfg.Sender.SendMessage(masternode, &mnwire.MsgMixAccept{
		Denomination: mask,
		Collateral:   collateral.Copy(),
	})
	c.setStateLocked(StateJoining, "")
	return nil
}

// entryMsgLocked returns the entry message of the round.
//
// This function MUST be called with the client mutex held.
func (c *Client) entryMsgLocked() *mnwire.MsgMixEntry {
	msg := &mnwire.MsgMixEntry{
		Amount:     c.amount,
		Collateral: c.collateral.Copy(),
	}
	for _, txIn := range c.inputs {
		msg.Inputs = append(msg.Inputs, wire.NewTxIn(&txIn.PreviousOutPoint,
			txIn.ValueIn, nil))
	}
	for _, txOut := range c.outputs {
		msg.Outputs = append(msg.Outputs, wire.NewTxOut(txOut.Value,
			txOut.PkScript))
	}
	return msg
}

// checkPeerLocked returns an error when peer is not the masternode of the
// round.
//
// This function MUST be called with the client mutex held.
func (c *Client) checkPeerLocked(peer string) error {
	if c.state == StateIdle || peer != c.masternode {
		str := fmt.Sprintf("no round with %s", peer)
		return ruleError(ErrUnexpectedMessage, str)
	}
	return nil
}

// HandleStatus processes a status reply of the masternode.  Admission to the
// session sends the entry, and a rejection in any state before signing ends
// the round.  Statuses arriving after the entry was accepted are ignored.
func (c *Client) HandleStatus(peer string, msg *mnwire.MsgMixStatus) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if err := c.checkPeerLocked(peer); err != nil {
		return err
	}
	switch c.state {
	case StateJoining:
		if !msg.Accepted {
			c.failLocked(msg.Message)
			return nil
		}
		c.sessionID = msg.SessionID
		c.cfg.Sender.SendMessage(peer, c.entryMsgLocked())
		c.setStateLocked(StateEntrySent, "")

	case StateEntrySent:
		if !msg.Accepted {
			c.failLocked(msg.Message)
			return nil
		}
		c.sessionID = msg.SessionID
		c.lastChange = c.cfg.Now()
	}
	return nil
}

// verifyFinalTxLocked returns the indexes of the inputs of the entry in tx
// after checking tx pays every output of the entry.
//
// This function MUST be called with the client mutex held.
func (c *Client) verifyFinalTxLocked(tx *wire.MsgTx) ([]int, error) {
	idx := make([]int, 0, len(c.inputs))
	for _, own := range c.inputs {
		found := -1
		for i, txIn := range tx.TxIn {
			if txIn.PreviousOutPoint == own.PreviousOutPoint {
				found = i
				break
			}
		}
		if found < 0 {
			str := fmt.Sprintf("input %v missing", own.PreviousOutPoint)
			return nil, ruleError(ErrTxMismatch, str)
		}
		idx = append(idx, found)
	}

	// Every output of the entry must be matched by a distinct output.
	used := make([]bool, len(tx.TxOut))
	for _, own := range c.outputs {
		matched := false
		for i, txOut := range tx.TxOut {
			if used[i] || txOut.Value != own.Value ||
				string(txOut.PkScript) != string(own.PkScript) {

				continue
			}
			used[i] = true
			matched = true
			break
		}
		if !matched {
			str := fmt.Sprintf("output of %d atoms missing", own.Value)
			return nil, ruleError(ErrTxMismatch, str)
		}
	}
	return idx, nil
}

// HandleFinalTx checks the joint transaction of the session, signs the
// inputs of the entry and returns the signatures to the masternode.  A
// transaction that drops any input or output of the entry is never signed
// and ends the round.
func (c *Client) HandleFinalTx(peer string, msg *mnwire.MsgMixFinalTx) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if err := c.checkPeerLocked(peer); err != nil {
		return err
	}
	if c.state != StateEntrySent {
		str := fmt.Sprintf("final transaction while %v", c.state)
		return ruleError(ErrUnexpectedMessage, str)
	}
	if msg.SessionID != c.sessionID {
		str := fmt.Sprintf("final transaction for session %x", msg.SessionID[:4])
		return ruleError(ErrWrongSession, str)
	}
	if msg.Tx == nil {
		c.failLocked("final transaction missing")
		return ruleError(ErrTxMismatch, "final transaction missing")
	}

	idx, err := c.verifyFinalTxLocked(msg.Tx)
	if err != nil {
		c.failLocked(err.Error())
		return err
	}
	sigs := &mnwire.MsgMixSignatures{SessionID: c.sessionID}
	for _, i := range idx {
		sigScript, err := c.cfg.Wallet.SignInput(msg.Tx, i)
		if err != nil {
			c.failLocked("unable to sign")
			return ruleError(ErrSigning, err.Error())
		}
		signed := *msg.Tx.TxIn[i]
		signed.SignatureScript = sigScript
		sigs.Inputs = append(sigs.Inputs, &signed)
	}

	log.Debugf("Signed %d inputs of session %x", len(sigs.Inputs),
		c.sessionID[:4])
	c.cfg.Sender.SendMessage(peer, sigs)
	c.setStateLocked(StateSigning, "")
	return nil
}

// HandleComplete records the result of the round and releases its coins.
func (c *Client) HandleComplete(peer string, msg *mnwire.MsgMixComplete) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if err := c.checkPeerLocked(peer); err != nil {
		return err
	}
	switch c.state {
	case StateJoining:
	case StateEntrySent, StateSigning:
		if msg.SessionID != c.sessionID {
			str := fmt.Sprintf("result for session %x", msg.SessionID[:4])
			return ruleError(ErrWrongSession, str)
		}
	default:
		return nil
	}

	if msg.Error {
		c.failLocked(msg.Message)
		return nil
	}
	log.Infof("Mixing round with %s completed", peer)
	c.releaseLocked()
	c.setStateLocked(StateSuccess, msg.Message)
	return nil
}

// CheckTimeout ends a round the masternode stopped serving.  The client
// waits the session timeouts plus the grace period so the masternode times
// the round out first.  A finished round is cleared after the grace period.
func (c *Client) CheckTimeout() {
	now := c.cfg.Now()
	params := c.cfg.Params

	c.mtx.Lock()
	defer c.mtx.Unlock()

	idle := now.Sub(c.lastChange)
	switch c.state {
	case StateJoining, StateEntrySent:
		if idle > params.MixingQueueTimeout+params.MixingClientGrace {
			c.failLocked("timed out waiting for the session")
		}
	case StateSigning:
		if idle > params.MixingSigningTimeout+params.MixingClientGrace {
			c.failLocked("timed out waiting for the result")
		}
	case StateSuccess, StateError:
		if idle >= params.MixingClientGrace {
			c.setStateLocked(StateIdle, c.lastMessage)
		}
	}
}

// Reset abandons the current round.
func (c *Client) Reset() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.state != StateIdle {
		c.failLocked("round abandoned")
	}
}

// Status is a snapshot of the client.
type Status struct {
	State        State
	Masternode   string
	SessionID    [mnwire.SessionIDLen]byte
	Denomination uint32
	LockedCoins  int
	LastMessage  string
}

// Status returns a snapshot of the client.
func (c *Client) Status() Status {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return Status{
		State:        c.state,
		Masternode:   c.masternode,
		SessionID:    c.sessionID,
		Denomination: c.denomination,
		LockedCoins:  len(c.locked),
		LastMessage:  c.lastMessage,
	}
}
