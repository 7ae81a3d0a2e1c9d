// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mixpool

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/wire"
	"github.com/mnsuite/mnd/internal/denom"
	"github.com/mnsuite/mnd/internal/memledger"
	"github.com/mnsuite/mnd/internal/mnwire"
	"github.com/mnsuite/mnd/internal/netparams"
)

// recorder is a Notifier that records every message.
type recorder struct {
	mtx     sync.Mutex
	sent    map[string][]mnwire.Message
	relayed []mnwire.Message
}

func (r *recorder) SendMessage(peer string, msg mnwire.Message) {
	r.mtx.Lock()
	r.sent[peer] = append(r.sent[peer], msg)
	r.mtx.Unlock()
}

func (r *recorder) RelayMessage(msg mnwire.Message) {
	r.mtx.Lock()
	r.relayed = append(r.relayed, msg)
	r.mtx.Unlock()
}

// last returns the last message of kind sent to peer.
func (r *recorder) last(peer string, kind mnwire.Kind) mnwire.Message {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	msgs := r.sent[peer]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Kind() == kind {
			return msgs[i]
		}
	}
	return nil
}

type poolHarness struct {
	t      *testing.T
	params *netparams.Params
	ledger *memledger.Ledger
	now    time.Time
	notes  *recorder
	pool   *Pool
}

func newPoolHarness(t *testing.T) *poolHarness {
	t.Helper()
	params := netparams.SimNetParams
	ledger := memledger.New(params.Params)
	ledger.MineBlocks(1)
	h := &poolHarness{
		t:      t,
		params: &params,
		ledger: ledger,
		now:    time.Unix(1700000000, 0),
		notes:  &recorder{sent: make(map[string][]mnwire.Message)},
	}
	h.pool = New(&Config{
		Params:      h.params,
		Chain:       ledger,
		Locker:      ledger,
		Notifier:    h.notes,
		OperatorKey: secp256k1.PrivKeyFromBytes([]byte{31: 42}),
		Now:         func() time.Time { return h.now },
	})
	return h
}

// testClient is a mixing participant with one funded input.
type testClient struct {
	peer       string
	wallet     *memledger.Wallet
	input      wire.OutPoint
	value      int64
	collateral *wire.MsgTx
}

// denomValue returns the value of denomination bit i.
func denomValue(i int) int64 {
	return int64(denom.Denominations[i])
}

// newClient funds a client with an input of value and an output paying its
// collateral.
func (h *poolHarness) newClient(peer string, value int64) *testClient {
	h.t.Helper()
	w := memledger.NewWallet(h.ledger)
	_, script, err := w.NewKey()
	if err != nil {
		h.t.Fatalf("unexpected error: %v", err)
	}
	tx := h.ledger.AddFunding(wire.NewTxOut(value, script),
		wire.NewTxOut(dcrutil.AtomsPerCoin/2, script))
	h.ledger.MineBlocks(1)

	// Keep the mixed input out of the collateral.
	input := wire.OutPoint{Hash: tx.TxHash()}
	h.ledger.LockCoin(input)
	collateral, err := w.CreateCollateral(int64(h.params.MixingCollateralFee))
	h.ledger.UnlockCoin(input)
	if err != nil {
		h.t.Fatalf("unexpected error: %v", err)
	}
	return &testClient{
		peer:       peer,
		wallet:     w,
		input:      input,
		value:      value,
		collateral: collateral,
	}
}

// entry returns an entry spending the client input to outputs of values.
func (h *poolHarness) entry(c *testClient, values ...int64) *mnwire.MsgMixEntry {
	h.t.Helper()
	msg := &mnwire.MsgMixEntry{
		Inputs:     []*wire.TxIn{wire.NewTxIn(&c.input, c.value, nil)},
		Collateral: c.collateral,
	}
	for _, v := range values {
		_, script, err := c.wallet.NewKey()
		if err != nil {
			h.t.Fatalf("unexpected error: %v", err)
		}
		msg.Outputs = append(msg.Outputs, wire.NewTxOut(v, script))
		msg.Amount += v
	}
	return msg
}

// signatures returns the signed inputs of the client in tx.
func (h *poolHarness) signatures(c *testClient, tx *wire.MsgTx) []*wire.TxIn {
	h.t.Helper()
	var ins []*wire.TxIn
	for i, in := range tx.TxIn {
		if in.PreviousOutPoint != c.input {
			continue
		}
		sigScript, err := c.wallet.SignInput(tx, i)
		if err != nil {
			h.t.Fatalf("unexpected error: %v", err)
		}
		signed := *in
		signed.SignatureScript = sigScript
		ins = append(ins, &signed)
	}
	return ins
}

// fill adds one single output entry of denomination bit 2 for each of a
// quorum of clients.
func (h *poolHarness) fill() []*testClient {
	h.t.Helper()
	value := denomValue(2)
	clients := make([]*testClient, h.params.MixingQuorum)
	for i := range clients {
		clients[i] = h.newClient(fmt.Sprintf("peer%d", i), value)
		if err := h.pool.AddEntry(clients[i].peer, h.entry(clients[i], value)); err != nil {
			h.t.Fatalf("client %d: unexpected error: %v", i, err)
		}
	}
	return clients
}

func serializeTxIn(t *testing.T, in *wire.TxIn) []byte {
	t.Helper()
	tx := wire.NewMsgTx()
	tx.AddTxIn(in)
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return buf.Bytes()
}

// TestMixEndToEnd runs a full round of three participants each mixing one
// input of denomination bit 2.
func TestMixEndToEnd(t *testing.T) {
	h := newPoolHarness(t)
	value := denomValue(2)
	clients := make([]*testClient, 3)
	for i := range clients {
		clients[i] = h.newClient(fmt.Sprintf("peer%d", i), value)
	}

	if err := h.pool.Accept(clients[0].peer, 1<<2, clients[0].collateral); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, c := range clients {
		if err := h.pool.AddEntry(c.peer, h.entry(c, value)); err != nil {
			t.Fatalf("client %d: unexpected error: %v", i, err)
		}
		if i < 2 && h.pool.Status().State != StateAcceptingEntries {
			t.Fatalf("client %d: unexpected state %v", i,
				h.pool.Status().State)
		}
	}
	if len(h.notes.relayed) != 2 {
		t.Fatalf("unexpected number of queue announcements %d",
			len(h.notes.relayed))
	}
	open := h.notes.relayed[0].(*mnwire.MsgMixQueue)
	ready := h.notes.relayed[1].(*mnwire.MsgMixQueue)
	if open.Ready || !ready.Ready || ready.Denomination != 1<<2 {
		t.Fatalf("unexpected queue announcements %v, %v", open, ready)
	}

	status := h.pool.Status()
	if status.State != StateSigning || h.ledger.LockedCount() != 3 {
		t.Fatalf("unexpected status %+v with %d locked coins", status,
			h.ledger.LockedCount())
	}
	for i, c := range clients {
		msg, ok := h.notes.last(c.peer, mnwire.KindMixFinalTx).(*mnwire.MsgMixFinalTx)
		if !ok {
			t.Fatalf("client %d: no final transaction", i)
		}
		if msg.SessionID != status.SessionID {
			t.Fatalf("client %d: mismatched session id", i)
		}
		if h.pool.SignaturesComplete() {
			t.Fatalf("client %d: signatures complete early", i)
		}
		ins := h.signatures(c, msg.Tx)
		for _, in := range ins {
			if err := h.pool.SignatureValid(in); err != nil {
				t.Fatalf("client %d: unexpected error: %v", i, err)
			}
		}
		if err := h.pool.AddSignatures(c.peer, msg.SessionID, ins); err != nil {
			t.Fatalf("client %d: unexpected error: %v", i, err)
		}
	}

	status = h.pool.Status()
	if status.State != StateSuccess || !h.pool.SignaturesComplete() {
		t.Fatalf("unexpected status %+v", status)
	}
	tx := h.pool.FinalTx()
	if len(tx.TxIn) != 3 || len(tx.TxOut) != 3 {
		t.Fatalf("unexpected joint transaction with %d inputs and %d "+
			"outputs", len(tx.TxIn), len(tx.TxOut))
	}
	if _, err := h.ledger.GetTransaction(tx.TxHash()); err != nil {
		t.Fatalf("joint transaction not submitted: %v", err)
	}
	if n := h.ledger.LockedCount(); n != 0 {
		t.Fatalf("%d coins still locked", n)
	}

	// Signed entry inputs match the joint transaction inputs byte for
	// byte.
	for i, c := range clients {
		ins := h.pool.EntryInputs(c.peer)
		if len(ins) != 1 {
			t.Fatalf("client %d: unexpected entry inputs %d", i, len(ins))
		}
		var found bool
		for _, in := range tx.TxIn {
			if in.PreviousOutPoint != c.input {
				continue
			}
			found = true
			if !bytes.Equal(serializeTxIn(t, ins[0]), serializeTxIn(t, in)) {
				t.Fatalf("client %d: entry input differs from joint input", i)
			}
		}
		if !found {
			t.Fatalf("client %d: input missing from joint transaction", i)
		}
		done, ok := h.notes.last(c.peer, mnwire.KindMixComplete).(*mnwire.MsgMixComplete)
		if !ok || done.Error {
			t.Fatalf("client %d: unexpected completion %v", i, done)
		}
	}

	h.now = h.now.Add(h.params.MixingClientGrace)
	h.pool.CheckTimeout()
	status = h.pool.Status()
	if status.State != StateAcceptingEntries || status.LastResult != StateSuccess {
		t.Fatalf("unexpected status after grace %+v", status)
	}
}

// TestCollateralUnderpay ensures an entry whose collateral pays less than
// the collateral fee is rejected without changing the session.
func TestCollateralUnderpay(t *testing.T) {
	h := newPoolHarness(t)
	value := denomValue(2)
	c := h.newClient("peer0", value)

	// Spend the collateral funding with half of the required fee.
	fundOp := c.collateral.TxIn[0].PreviousOutPoint
	fee := int64(h.params.MixingCollateralFee) / 2
	cheap, err := c.wallet.Spend([]wire.OutPoint{fundOp}, []*wire.TxOut{
		wire.NewTxOut(dcrutil.AtomsPerCoin/2-fee, c.collateral.TxOut[0].PkScript),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.collateral = cheap

	before := h.pool.Status()
	err = h.pool.AddEntry(c.peer, h.entry(c, value))
	if !errors.Is(err, ErrInvalidCollateral) {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := Reason(err); got != "collateral not valid" {
		t.Fatalf("unexpected reason %q", got)
	}
	if after := h.pool.Status(); after != before {
		t.Fatalf("session changed: %+v -> %+v", before, after)
	}
	if n := h.ledger.LockedCount(); n != 0 {
		t.Fatalf("%d coins locked by a rejected entry", n)
	}
}

// TestCollateralOutputRange ensures a collateral with an output value out of
// range is rejected even though its inputs exceed its outputs by more than
// the collateral fee.
func TestCollateralOutputRange(t *testing.T) {
	h := newPoolHarness(t)
	c := h.newClient("peer0", denomValue(2))

	fundOp := c.collateral.TxIn[0].PreviousOutPoint
	script := c.collateral.TxOut[0].PkScript
	bogus, err := c.wallet.Spend([]wire.OutPoint{fundOp}, []*wire.TxOut{
		wire.NewTxOut(dcrutil.AtomsPerCoin/2, script),
		wire.NewTxOut(-dcrutil.AtomsPerCoin, script),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	before := h.pool.Status()
	err = h.pool.Accept(c.peer, 1<<2, bogus)
	if !errors.Is(err, ErrInvalidCollateral) {
		t.Fatalf("unexpected error: %v", err)
	}
	if after := h.pool.Status(); after != before {
		t.Fatalf("session changed: %+v -> %+v", before, after)
	}
}

// TestEntryValidation ensures invalid entries are rejected with the reason
// reported to the participant.
func TestEntryValidation(t *testing.T) {
	h := newPoolHarness(t)
	value := denomValue(2)
	good := h.newClient("good", value)
	other := h.newClient("other", value)
	costly := h.newClient("costly", value+dcrutil.AtomsPerCoin/10)
	spent := h.newClient("spent", value)
	h.ledger.SpendOutput(spent.input)
	third := h.newClient("third", denomValue(3))

	unconfirmedFunding := h.ledger.AddFunding(wire.NewTxOut(value,
		h.entry(good, value).Outputs[0].PkScript))
	unconfirmed := *good
	unconfirmed.input = wire.OutPoint{Hash: unconfirmedFunding.TxHash()}

	nullInput := h.entry(good, value)
	nullInput.Inputs[0].PreviousOutPoint = wire.OutPoint{}

	repeated := h.entry(good, value)
	repeated.Inputs = append(repeated.Inputs, repeated.Inputs[0])

	badAmount := h.entry(good, value)
	badAmount.Amount--

	noCollateral := h.entry(good, value)
	noCollateral.Collateral = nil

	tests := []struct {
		name   string
		peer   string
		entry  *mnwire.MsgMixEntry
		err    error
		reason string
	}{
		{"null input", "good", nullInput, ErrInvalidInput, "input not valid"},
		{"repeated input", "good", repeated, ErrDuplicateInput,
			"already have that input"},
		{"not denominated", "good", h.entry(good, value-1), ErrInvalidOutput,
			"output not valid"},
		{"amount mismatch", "good", badAmount, ErrInvalidOutput,
			"output not valid"},
		{"missing collateral", "good", noCollateral, ErrInvalidCollateral,
			"collateral not valid"},
		{"outputs exceed inputs", "good", h.entry(good, denomValue(1)),
			ErrInvalidInput, "input not valid"},
		{"fees too high", "costly", h.entry(costly, value), ErrHighFees,
			"transaction fees are too high"},
		{"spent input", "spent", h.entry(spent, value), ErrInvalidInput,
			"input not valid"},
		{"unconfirmed input", "good", h.entry(&unconfirmed, value),
			ErrInvalidInput, "input not valid"},
		{"valid entry", "good", h.entry(good, value), nil, ""},
		{"input already in session", "other", h.entry(good, value),
			ErrDuplicateInput, "already have that input"},
		{"second entry of a peer", "good", h.entry(other, value),
			ErrIncompatibleMode, "incompatible mode"},
		{"other denomination", "third", h.entry(third, denomValue(3)),
			ErrIncompatibleDenom, "not compatible with existing transactions"},
	}

	for _, test := range tests {
		err := h.pool.AddEntry(test.peer, test.entry)
		if !errors.Is(err, test.err) {
			t.Errorf("%s: mismatched error -- got %v, want %v", test.name,
				err, test.err)
			continue
		}
		if err != nil && Reason(err) != test.reason {
			t.Errorf("%s: mismatched reason -- got %q, want %q", test.name,
				Reason(err), test.reason)
		}
	}
	if got := h.pool.Status().Entries; got != 1 {
		t.Fatalf("unexpected entry count %d", got)
	}
}

// TestDenominationCompatibility ensures entries bucketed to the same
// denominations join one round and others are rejected from it.
func TestDenominationCompatibility(t *testing.T) {
	h := newPoolHarness(t)
	one, ten, tenth := denomValue(2), denomValue(1), denomValue(3)

	a := h.newClient("a", one+ten)
	b := h.newClient("b", one+ten)
	c := h.newClient("c", one+tenth)

	if err := h.pool.AddEntry(a.peer, h.entry(a, one, ten)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.pool.AddEntry(b.peer, h.entry(b, ten, one)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := h.pool.AddEntry(c.peer, h.entry(c, one, tenth))
	if !errors.Is(err, ErrIncompatibleDenom) {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.pool.Accept(c.peer, 1<<2|1<<3, c.collateral); !errors.Is(err, ErrIncompatibleDenom) {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.pool.Status(); got.Entries != 2 || got.Denomination != 1<<1|1<<2 {
		t.Fatalf("unexpected status %+v", got)
	}
}

// TestAcceptQuorum ensures no more than a quorum of participants join.
func TestAcceptQuorum(t *testing.T) {
	h := newPoolHarness(t)
	value := denomValue(3)
	for i := 0; i <= h.params.MixingQuorum; i++ {
		c := h.newClient(fmt.Sprintf("peer%d", i), value)
		err := h.pool.Accept(c.peer, 1<<3, c.collateral)
		var want error
		if i == h.params.MixingQuorum {
			want = ErrSessionFull
		}
		if !errors.Is(err, want) {
			t.Fatalf("participant %d: mismatched error -- got %v, want %v",
				i, err, want)
		}
	}
	if got := Reason(ErrSessionFull); got != "entries is full" {
		t.Fatalf("unexpected reason %q", got)
	}
}

// TestSignatureFailure ensures invalid or foreign signatures are rejected,
// and an invalid signature charges the participant and aborts the round.
func TestSignatureFailure(t *testing.T) {
	h := newPoolHarness(t)
	clients := h.fill()
	status := h.pool.Status()
	tx := h.pool.FinalTx()
	a, b := clients[0], clients[1]

	foreign := h.signatures(b, tx)
	err := h.pool.AddSignatures(a.peer, status.SessionID, foreign)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unexpected error for foreign input: %v", err)
	}
	err = h.pool.AddSignatures(a.peer, [16]byte{1}, h.signatures(a, tx))
	if !errors.Is(err, ErrInvalidSessionID) {
		t.Fatalf("unexpected error for wrong session: %v", err)
	}

	// Sign a different transaction.
	altered := tx.Copy()
	altered.LockTime++
	bad := h.signatures(a, altered)
	if err := h.pool.SignatureValid(bad[0]); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("unexpected error: %v", err)
	}
	err = h.pool.AddSignatures(a.peer, status.SessionID, bad)
	if !errors.Is(err, ErrInvalidSignature) || BanScore(err) == 0 {
		t.Fatalf("unexpected error for invalid signature: %v", err)
	}

	after := h.pool.Status()
	if after.State != StateAcceptingEntries || after.LastResult != StateError {
		t.Fatalf("unexpected status %+v", after)
	}
	if after.SessionID == status.SessionID {
		t.Fatal("session id reused after an aborted round")
	}
	if _, err := h.ledger.GetTransaction(a.collateral.TxHash()); err != nil {
		t.Fatalf("collateral was not charged: %v", err)
	}
	if n := h.ledger.LockedCount(); n != 0 {
		t.Fatalf("%d coins still locked", n)
	}
	for _, c := range clients {
		done, ok := h.notes.last(c.peer, mnwire.KindMixComplete).(*mnwire.MsgMixComplete)
		if !ok || !done.Error {
			t.Fatalf("%s not notified of the failure", c.peer)
		}
	}
}

// TestSignatureBatchAtomic ensures a batch rejected for a reason other than
// an invalid signature applies none of its signatures.
func TestSignatureBatchAtomic(t *testing.T) {
	h := newPoolHarness(t)
	clients := h.fill()
	status := h.pool.Status()
	tx := h.pool.FinalTx()
	a := clients[0]

	sigs := h.signatures(a, tx)
	batch := append(sigs, sigs[0])
	err := h.pool.AddSignatures(a.peer, status.SessionID, batch)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unexpected error for repeated input: %v", err)
	}
	after := h.pool.Status()
	if after.State != StateSigning || after.SignedInputs != 0 {
		t.Fatalf("rejected batch changed the session: %+v", after)
	}
	if got := h.pool.FinalTx(); got.TxHashFull() != tx.TxHashFull() {
		t.Fatal("rejected batch changed the joint transaction")
	}

	if err := h.pool.AddSignatures(a.peer, status.SessionID, sigs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.pool.Status().SignedInputs; got != len(sigs) {
		t.Fatalf("unexpected signed inputs %d", got)
	}
}

// TestCheckTimeout ensures stalled rounds are reset with the collateral of a
// stalling participant charged, and that repeated checks are idempotent.
func TestCheckTimeout(t *testing.T) {
	t.Run("signing", func(t *testing.T) {
		h := newPoolHarness(t)
		clients := h.fill()
		status := h.pool.Status()
		tx := h.pool.FinalTx()
		for _, c := range clients[:2] {
			err := h.pool.AddSignatures(c.peer, status.SessionID,
				h.signatures(c, tx))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		h.now = h.now.Add(h.params.MixingSigningTimeout)
		h.pool.CheckTimeout()
		if got := h.pool.Status(); got.State != StateSigning {
			t.Fatalf("reset before the timeout: %+v", got)
		}

		h.now = h.now.Add(time.Second)
		h.pool.CheckTimeout()
		once := h.pool.Status()
		h.pool.CheckTimeout()
		twice := h.pool.Status()
		if once != twice {
			t.Fatalf("repeated timeout check changed state: %+v -> %+v",
				once, twice)
		}
		if once.State != StateAcceptingEntries || once.LastResult != StateError {
			t.Fatalf("unexpected status %+v", once)
		}
		staller := clients[2]
		if _, err := h.ledger.GetTransaction(staller.collateral.TxHash()); err != nil {
			t.Fatalf("collateral of the stalling participant not charged: %v",
				err)
		}
		if n := h.ledger.LockedCount(); n != 0 {
			t.Fatalf("%d coins still locked", n)
		}
	})

	t.Run("queue", func(t *testing.T) {
		h := newPoolHarness(t)
		value := denomValue(2)
		entrant := h.newClient("entrant", value)
		idle := h.newClient("idle", value)
		if err := h.pool.Accept(idle.peer, 1<<2, idle.collateral); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := h.pool.AddEntry(entrant.peer, h.entry(entrant, value)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		h.now = h.now.Add(h.params.MixingQueueTimeout + time.Second)
		h.pool.CheckTimeout()
		once := h.pool.Status()
		h.pool.CheckTimeout()
		if twice := h.pool.Status(); once != twice {
			t.Fatalf("repeated timeout check changed state: %+v -> %+v",
				once, twice)
		}
		if once.Entries != 0 || once.Participants != 0 ||
			once.LastResult != StateError {

			t.Fatalf("unexpected status %+v", once)
		}
		if _, err := h.ledger.GetTransaction(idle.collateral.TxHash()); err != nil {
			t.Fatalf("collateral of the idle participant not charged: %v", err)
		}
		if n := h.ledger.LockedCount(); n != 0 {
			t.Fatalf("%d coins still locked", n)
		}
	})
}

// TestRemovePeer ensures a participant leaving before completion resets the
// session and releases every coin.
func TestRemovePeer(t *testing.T) {
	h := newPoolHarness(t)
	value := denomValue(2)
	a := h.newClient("a", value)
	if err := h.pool.AddEntry(a.peer, h.entry(a, value)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.pool.HasInput(a.input) || h.ledger.LockedCount() != 1 {
		t.Fatal("entry input not held")
	}

	h.pool.RemovePeer("stranger")
	if got := h.pool.Status(); got.Entries != 1 {
		t.Fatalf("unrelated peer reset the session: %+v", got)
	}
	h.pool.RemovePeer(a.peer)
	if got := h.pool.Status(); got.Entries != 0 || got.LastResult != StateError {
		t.Fatalf("unexpected status %+v", got)
	}
	if h.pool.HasInput(a.input) || h.ledger.LockedCount() != 0 {
		t.Fatal("entry input still held")
	}
}
