// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package memledger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/decred/dcrd/dcrec"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/txscript/v4"
	"github.com/decred/dcrd/txscript/v4/sign"
	"github.com/decred/dcrd/txscript/v4/stdaddr"
	"github.com/decred/dcrd/txscript/v4/stdscript"
	"github.com/decred/dcrd/wire"
)

// PayToPubKeyHashScript returns the version 0 pay-to-pubkey-hash script of
// the compressed serialization of pub.
func PayToPubKeyHashScript(pub *secp256k1.PublicKey, params stdaddr.AddressParamsV0) ([]byte, error) {
	h160 := stdaddr.Hash160(pub.SerializeCompressed())
	addr, err := stdaddr.NewAddressPubKeyHashEcdsaSecp256k1V0(h160, params)
	if err != nil {
		return nil, err
	}
	_, script := addr.PaymentScript()
	return script, nil
}

// Wallet holds private keys and signs inputs spending outputs of the ledger
// that pay to them.  It is safe for concurrent access.
type Wallet struct {
	ledger *Ledger

	mtx  sync.Mutex
	keys map[string]*secp256k1.PrivateKey // keyed by pubkey hash
}

// NewWallet returns an empty wallet bound to ledger.
func NewWallet(ledger *Ledger) *Wallet {
	return &Wallet{
		ledger: ledger,
		keys:   make(map[string]*secp256k1.PrivateKey),
	}
}

// ImportKey adds priv to the wallet and returns its payment script.
func (w *Wallet) ImportKey(priv *secp256k1.PrivateKey) ([]byte, error) {
	script, err := PayToPubKeyHashScript(priv.PubKey(), w.ledger.params)
	if err != nil {
		return nil, err
	}
	h160 := stdaddr.Hash160(priv.PubKey().SerializeCompressed())
	w.mtx.Lock()
	w.keys[string(h160)] = priv
	w.mtx.Unlock()
	return script, nil
}

// NewKey generates and imports a new key.  It returns the key and its
// payment script.
func (w *Wallet) NewKey() (*secp256k1.PrivateKey, []byte, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, nil, err
	}
	script, err := w.ImportKey(priv)
	if err != nil {
		return nil, nil, err
	}
	return priv, script, nil
}

// keyFor returns the private key able to spend the pay-to-pubkey-hash script.
func (w *Wallet) keyFor(pkScript []byte) (*secp256k1.PrivateKey, error) {
	if !stdscript.IsPubKeyHashScriptV0(pkScript) {
		return nil, ledgerError(ErrNoKey, "script is not pay-to-pubkey-hash")
	}
	h160 := stdscript.ExtractPubKeyHashV0(pkScript)
	w.mtx.Lock()
	priv, ok := w.keys[string(h160)]
	w.mtx.Unlock()
	if !ok {
		str := fmt.Sprintf("no key for pubkey hash %x", h160)
		return nil, ledgerError(ErrNoKey, str)
	}
	return priv, nil
}

// SignInput creates the signature script of input idx of tx.  The output it
// spends is looked up in the ledger.
func (w *Wallet) SignInput(tx *wire.MsgTx, idx int) ([]byte, error) {
	if idx < 0 || idx >= len(tx.TxIn) {
		return nil, fmt.Errorf("input index %d out of range", idx)
	}
	prev := tx.TxIn[idx].PreviousOutPoint
	entry, ok := w.ledger.output(prev)
	if !ok {
		str := fmt.Sprintf("output %v is missing or spent", prev)
		return nil, ledgerError(ErrMissingInput, str)
	}
	priv, err := w.keyFor(entry.pkScript)
	if err != nil {
		return nil, err
	}
	return sign.SignatureScript(tx, idx, entry.pkScript, txscript.SigHashAll,
		priv.Serialize(), dcrec.STEcdsaSecp256k1, true)
}

// Unspent returns the unspent, unlocked outputs of the ledger that pay to a
// key of the wallet along with their values, largest first.
func (w *Wallet) Unspent() ([]wire.OutPoint, []int64) {
	w.mtx.Lock()
	var scripts [][]byte
	for _, priv := range w.keys {
		script, err := PayToPubKeyHashScript(priv.PubKey(), w.ledger.params)
		if err == nil {
			scripts = append(scripts, script)
		}
	}
	w.mtx.Unlock()

	var ops []wire.OutPoint
	for _, script := range scripts {
		ops = append(ops, w.ledger.unspentPaying(script)...)
	}
	values := make(map[wire.OutPoint]int64, len(ops))
	for _, op := range ops {
		if entry, ok := w.ledger.output(op); ok {
			values[op] = entry.value
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		vi, vj := values[ops[i]], values[ops[j]]
		if vi != vj {
			return vi > vj
		}
		return ops[i].String() < ops[j].String()
	})
	amounts := make([]int64, len(ops))
	for i, op := range ops {
		amounts[i] = values[op]
	}
	return ops, amounts
}

// Spend builds and signs a transaction spending inputs to outs.  The inputs
// must pay to keys of the wallet.
func (w *Wallet) Spend(inputs []wire.OutPoint, outs []*wire.TxOut) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx()
	tx.Expiry = wire.NoExpiryValue
	for i := range inputs {
		entry, ok := w.ledger.output(inputs[i])
		if !ok {
			str := fmt.Sprintf("output %v is missing or spent", inputs[i])
			return nil, ledgerError(ErrMissingInput, str)
		}
		in := wire.NewTxIn(&inputs[i], entry.value, nil)
		tx.AddTxIn(in)
	}
	for _, out := range outs {
		tx.AddTxOut(out)
	}
	for i := range tx.TxIn {
		sigScript, err := w.SignInput(tx, i)
		if err != nil {
			return nil, err
		}
		tx.TxIn[i].SignatureScript = sigScript
	}
	return tx, nil
}

// CreateCollateral builds a signed transaction spending the smallest unlocked
// output of the wallet able to pay fee back to itself minus fee.  The
// transaction is not submitted.
func (w *Wallet) CreateCollateral(fee int64) (*wire.MsgTx, error) {
	ops, values := w.Unspent()
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		if values[i] <= fee {
			continue
		}
		entry, ok := w.ledger.output(op)
		if !ok {
			continue
		}
		out := wire.NewTxOut(values[i]-fee, entry.pkScript)
		return w.Spend([]wire.OutPoint{op}, []*wire.TxOut{out})
	}
	return nil, ledgerError(ErrInsufficientFunds, "no output can pay the "+
		"collateral fee")
}
