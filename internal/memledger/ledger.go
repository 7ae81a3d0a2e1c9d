// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package memledger provides a process local ledger and wallet.
//
// The ledger tracks blocks, transactions and unspent outputs in memory and
// validates the scripts of submitted transactions with the consensus script
// engine.  It implements every ledger and wallet collaborator interface of the
// masternode subsystems, which makes it suitable for tests and for running a
// daemon on the simulation network without an external node.
package memledger

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/decred/dcrd/blockchain/standalone/v2"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/txscript/v4"
	"github.com/decred/dcrd/wire"
)

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind
// when determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific ErrorKind.
const (
	// ErrUnknownBlock indicates a block height above the best height.
	ErrUnknownBlock = ErrorKind("ErrUnknownBlock")

	// ErrUnknownTx indicates a transaction the ledger has never seen.
	ErrUnknownTx = ErrorKind("ErrUnknownTx")

	// ErrMissingInput indicates a transaction spends an output that is
	// unknown or already spent.
	ErrMissingInput = ErrorKind("ErrMissingInput")

	// ErrDuplicateTx indicates a transaction is already known.
	ErrDuplicateTx = ErrorKind("ErrDuplicateTx")

	// ErrOverspend indicates a transaction spends more than its inputs.
	ErrOverspend = ErrorKind("ErrOverspend")

	// ErrScriptFailure indicates an input script failed to validate.
	ErrScriptFailure = ErrorKind("ErrScriptFailure")

	// ErrNoInputs indicates a submitted transaction has no inputs.
	ErrNoInputs = ErrorKind("ErrNoInputs")

	// ErrInsaneTx indicates a submitted transaction fails the context free
	// sanity checks such as output value ranges.
	ErrInsaneTx = ErrorKind("ErrInsaneTx")

	// ErrNoKey indicates the wallet does not hold the key for a script.
	ErrNoKey = ErrorKind("ErrNoKey")

	// ErrInsufficientFunds indicates the wallet cannot fund a request.
	ErrInsufficientFunds = ErrorKind("ErrInsufficientFunds")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// LedgerError identifies a ledger rule violation.  It has full support for
// errors.Is and errors.As.
type LedgerError struct {
	Err         error
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e LedgerError) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e LedgerError) Unwrap() error {
	return e.Err
}

func ledgerError(kind ErrorKind, desc string) LedgerError {
	return LedgerError{Err: kind, Description: desc}
}

// verifyFlags are the script flags used to validate submitted transactions.
const verifyFlags = txscript.ScriptDiscourageUpgradableNops |
	txscript.ScriptVerifyCleanStack |
	txscript.ScriptVerifyCheckLockTimeVerify |
	txscript.ScriptVerifyCheckSequenceVerify

// unconfirmed is the height recorded for transactions that are not mined.
const unconfirmed = -1

// utxoEntry houses the details of an unspent output.
type utxoEntry struct {
	value    int64
	version  uint16
	pkScript []byte
	height   int64
}

// txEntry houses a known transaction and the height it was mined at.
type txEntry struct {
	tx     *wire.MsgTx
	height int64
}

// Ledger is an in-memory ledger.  It is safe for concurrent access.
type Ledger struct {
	params *chaincfg.Params

	mtx     sync.Mutex
	blocks  []chainhash.Hash
	txs     map[chainhash.Hash]*txEntry
	utxos   map[wire.OutPoint]*utxoEntry
	pending []chainhash.Hash
	locked  map[wire.OutPoint]struct{}
	current bool
}

// New returns a ledger holding only the genesis block of params.
func New(params *chaincfg.Params) *Ledger {
	return &Ledger{
		params:  params,
		blocks:  []chainhash.Hash{params.GenesisHash},
		txs:     make(map[chainhash.Hash]*txEntry),
		utxos:   make(map[wire.OutPoint]*utxoEntry),
		locked:  make(map[wire.OutPoint]struct{}),
		current: true,
	}
}

// Params returns the network parameters of the ledger.
func (l *Ledger) Params() *chaincfg.Params {
	return l.params
}

// BestHeight returns the height of the most recent block.
func (l *Ledger) BestHeight() int64 {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return int64(len(l.blocks) - 1)
}

// GetBlockHash returns the hash of the block at height.
func (l *Ledger) GetBlockHash(height int64) (chainhash.Hash, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if height < 0 || height >= int64(len(l.blocks)) {
		str := fmt.Sprintf("no block at height %d", height)
		return chainhash.Hash{}, ledgerError(ErrUnknownBlock, str)
	}
	return l.blocks[height], nil
}

// GetTransaction returns a known transaction, mined or not.
func (l *Ledger) GetTransaction(hash chainhash.Hash) (*wire.MsgTx, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	entry, ok := l.txs[hash]
	if !ok {
		str := fmt.Sprintf("transaction %v not found", hash)
		return nil, ledgerError(ErrUnknownTx, str)
	}
	return entry.tx, nil
}

// IsTransactionUnspent returns whether the output referenced by op exists and
// has not been spent.
func (l *Ledger) IsTransactionUnspent(op wire.OutPoint) bool {
	l.mtx.Lock()
	_, ok := l.utxos[op]
	l.mtx.Unlock()
	return ok
}

// GetConfirmationDepth returns the number of confirmations of the unspent
// output op.  Unconfirmed outputs have depth 0 and unknown or spent outputs
// have depth -1.
func (l *Ledger) GetConfirmationDepth(op wire.OutPoint) int64 {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	entry, ok := l.utxos[op]
	if !ok {
		return -1
	}
	if entry.height == unconfirmed {
		return 0
	}
	return int64(len(l.blocks)) - entry.height
}

// IsCurrent returns whether the ledger considers itself synced.
func (l *Ledger) IsCurrent() bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.current
}

// SetCurrent sets the value returned by IsCurrent.
func (l *Ledger) SetCurrent(current bool) {
	l.mtx.Lock()
	l.current = current
	l.mtx.Unlock()
}

// LockCoin marks an output as reserved by a mixing round.
func (l *Ledger) LockCoin(op wire.OutPoint) {
	l.mtx.Lock()
	l.locked[op] = struct{}{}
	l.mtx.Unlock()
}

// UnlockCoin releases an output reserved with LockCoin.
func (l *Ledger) UnlockCoin(op wire.OutPoint) {
	l.mtx.Lock()
	delete(l.locked, op)
	l.mtx.Unlock()
}

// IsLocked returns whether op is reserved.
func (l *Ledger) IsLocked(op wire.OutPoint) bool {
	l.mtx.Lock()
	_, ok := l.locked[op]
	l.mtx.Unlock()
	return ok
}

// LockedCount returns the number of reserved outputs.
func (l *Ledger) LockedCount() int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return len(l.locked)
}

// addTxLocked records tx and its outputs as unspent.
//
// This function MUST be called with the ledger mutex held (for writes).
func (l *Ledger) addTxLocked(tx *wire.MsgTx) chainhash.Hash {
	hash := tx.TxHash()
	l.txs[hash] = &txEntry{tx: tx, height: unconfirmed}
	for i, out := range tx.TxOut {
		op := wire.OutPoint{Hash: hash, Index: uint32(i), Tree: wire.TxTreeRegular}
		l.utxos[op] = &utxoEntry{
			value:    out.Value,
			version:  out.Version,
			pkScript: out.PkScript,
			height:   unconfirmed,
		}
	}
	l.pending = append(l.pending, hash)
	return hash
}

// AddFunding records a transaction without inputs paying the given outputs.
// It stands in for coins created outside of the ledger and is mined with the
// next block.
func (l *Ledger) AddFunding(outs ...*wire.TxOut) *wire.MsgTx {
	tx := wire.NewMsgTx()
	tx.Expiry = wire.NoExpiryValue
	l.mtx.Lock()
	defer l.mtx.Unlock()
	// Distinct lock times keep funding transactions with identical outputs
	// from sharing a hash.
	tx.LockTime = uint32(len(l.txs))
	for _, out := range outs {
		tx.AddTxOut(out)
	}
	l.addTxLocked(tx)
	return tx
}

// SubmitTransaction validates tx against the unspent output set and the
// script engine and, when valid, adds it to the pending transactions that are
// mined with the next block.
func (l *Ledger) SubmitTransaction(tx *wire.MsgTx) error {
	hash := tx.TxHash()
	if len(tx.TxIn) == 0 {
		str := fmt.Sprintf("transaction %v has no inputs", hash)
		return ledgerError(ErrNoInputs, str)
	}
	err := standalone.CheckTransactionSanity(tx, uint64(l.params.MaxTxSize))
	if err != nil {
		str := fmt.Sprintf("transaction %v: %v", hash, err)
		return ledgerError(ErrInsaneTx, str)
	}

	l.mtx.Lock()
	defer l.mtx.Unlock()

	if _, ok := l.txs[hash]; ok {
		str := fmt.Sprintf("transaction %v already known", hash)
		return ledgerError(ErrDuplicateTx, str)
	}

	var totalIn, totalOut int64
	seen := make(map[wire.OutPoint]struct{}, len(tx.TxIn))
	for i, in := range tx.TxIn {
		prev := in.PreviousOutPoint
		entry, ok := l.utxos[prev]
		if _, dup := seen[prev]; !ok || dup {
			str := fmt.Sprintf("input %d of %v spends missing or spent "+
				"output %v", i, hash, prev)
			return ledgerError(ErrMissingInput, str)
		}
		seen[prev] = struct{}{}
		totalIn += entry.value

		vm, err := txscript.NewEngine(entry.pkScript, tx, i, verifyFlags,
			entry.version, nil)
		if err != nil {
			str := fmt.Sprintf("input %d of %v: %v", i, hash, err)
			return ledgerError(ErrScriptFailure, str)
		}
		if err := vm.Execute(); err != nil {
			str := fmt.Sprintf("input %d of %v: %v", i, hash, err)
			return ledgerError(ErrScriptFailure, str)
		}
	}
	for _, out := range tx.TxOut {
		totalOut += out.Value
	}
	if totalOut > totalIn {
		str := fmt.Sprintf("transaction %v spends %d atoms from %d atoms "+
			"of inputs", hash, totalOut, totalIn)
		return ledgerError(ErrOverspend, str)
	}

	for _, in := range tx.TxIn {
		delete(l.utxos, in.PreviousOutPoint)
		delete(l.locked, in.PreviousOutPoint)
	}
	l.addTxLocked(tx)
	return nil
}

// MineBlocks connects n blocks.  Pending transactions are mined in the first
// one.  It returns the new best height.
func (l *Ledger) MineBlocks(n int) int64 {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	for i := 0; i < n; i++ {
		height := int64(len(l.blocks))
		prev := l.blocks[height-1]

		buf := make([]byte, 0, chainhash.HashSize+8+len(l.pending)*chainhash.HashSize)
		buf = append(buf, prev[:]...)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(height))
		for _, txHash := range l.pending {
			buf = append(buf, txHash[:]...)
			entry := l.txs[txHash]
			entry.height = height
			for idx := range entry.tx.TxOut {
				op := wire.OutPoint{Hash: txHash, Index: uint32(idx),
					Tree: wire.TxTreeRegular}
				if utxo, ok := l.utxos[op]; ok {
					utxo.height = height
				}
			}
		}
		l.pending = l.pending[:0]
		l.blocks = append(l.blocks, chainhash.HashH(buf))
	}
	return int64(len(l.blocks) - 1)
}

// SpendOutput removes op from the unspent output set as if it was spent by
// a transaction outside of the ledger's view.
func (l *Ledger) SpendOutput(op wire.OutPoint) {
	l.mtx.Lock()
	delete(l.utxos, op)
	l.mtx.Unlock()
}

// TxHeight returns the height a transaction was mined at, or -1 when it is
// unknown or pending.
func (l *Ledger) TxHeight(hash chainhash.Hash) int64 {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if entry, ok := l.txs[hash]; ok {
		return entry.height
	}
	return unconfirmed
}

// output returns the unspent output entry of op.
func (l *Ledger) output(op wire.OutPoint) (*utxoEntry, bool) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	entry, ok := l.utxos[op]
	return entry, ok
}

// unspentPaying returns the unspent, unlocked outputs paying script.
func (l *Ledger) unspentPaying(script []byte) []wire.OutPoint {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	var ops []wire.OutPoint
	for op, entry := range l.utxos {
		if _, locked := l.locked[op]; locked {
			continue
		}
		if string(entry.pkScript) == string(script) {
			ops = append(ops, op)
		}
	}
	return ops
}
