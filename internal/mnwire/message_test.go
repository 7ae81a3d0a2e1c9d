// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnwire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/wire"
)

func testOutPoint(b byte, index uint32) wire.OutPoint {
	var h chainhash.Hash
	h[0] = b
	return wire.OutPoint{Hash: h, Index: index, Tree: wire.TxTreeRegular}
}

func testTx() *wire.MsgTx {
	tx := wire.NewMsgTx()
	prev := testOutPoint(9, 1)
	tx.AddTxIn(wire.NewTxIn(&prev, 12345, []byte{0x01, 0x02}))
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x76, 0xa9}))
	return tx
}

// TestMessagePayloads ensures every message kind survives an encode and
// decode cycle through the payload helpers and reports the expected command
// and kind.
func TestMessagePayloads(t *testing.T) {
	op := testOutPoint(1, 2)
	in := wire.NewTxIn(&op, 500, []byte{0xaa, 0xbb})
	in.BlockHeight = 7
	in.BlockIndex = 3

	tests := []struct {
		name string
		msg  Message
		kind Kind
	}{{
		name: "announce",
		msg: &MsgMNAnnounce{
			CollateralOutPoint: op,
			Addr:               "10.0.0.1:9108",
			CollateralPubKey:   [PubKeyLen]byte{0x02, 1},
			OperatorPubKey:     [PubKeyLen]byte{0x03, 2},
			SigTime:            1700000000,
			ProtocolVersion:    ProtocolVersion,
			Signature:          [SignatureLen]byte{5},
		},
		kind: KindMNAnnounce,
	}, {
		name: "ping",
		msg:  &MsgMNPing{CollateralOutPoint: op, SigTime: 1, Stop: true},
		kind: KindMNPing,
	}, {
		name: "list request",
		msg:  &MsgMNListRequest{},
		kind: KindMNListRequest,
	}, {
		name: "winner",
		msg: &MsgMNWinner{
			Height:             100,
			CollateralOutPoint: op,
			Sequence:           wire.MaxTxInSequenceNum,
			PayeeScript:        []byte{0x76, 0xa9, 0x14},
			Score:              [32]byte{0xff},
		},
		kind: KindMNWinner,
	}, {
		name: "winner sync",
		msg:  &MsgMNWinnerSync{},
		kind: KindMNWinnerSync,
	}, {
		name: "accept",
		msg:  &MsgMixAccept{Denomination: 4, Collateral: testTx()},
		kind: KindMixAccept,
	}, {
		name: "entry",
		msg: &MsgMixEntry{
			Inputs:     []*wire.TxIn{in},
			Amount:     500,
			Collateral: testTx(),
			Outputs:    []*wire.TxOut{wire.NewTxOut(100001000, []byte{1})},
		},
		kind: KindMixEntry,
	}, {
		name: "signatures",
		msg: &MsgMixSignatures{
			SessionID: [SessionIDLen]byte{1, 2, 3},
			Inputs:    []*wire.TxIn{in},
		},
		kind: KindMixSignatures,
	}, {
		name: "final tx",
		msg:  &MsgMixFinalTx{SessionID: [SessionIDLen]byte{9}, Tx: testTx()},
		kind: KindMixFinalTx,
	}, {
		name: "status",
		msg: &MsgMixStatus{
			State:      2,
			EntryCount: 3,
			Accepted:   true,
			Message:    "entries is full",
		},
		kind: KindMixStatus,
	}, {
		name: "complete",
		msg:  &MsgMixComplete{Error: true, Message: "session timed out"},
		kind: KindMixComplete,
	}, {
		name: "queue",
		msg: &MsgMixQueue{
			CollateralOutPoint: op,
			Denomination:       3,
			Time:               1700000000,
			Ready:              true,
		},
		kind: KindMixQueue,
	}}

	for _, test := range tests {
		if got := test.msg.Kind(); got != test.kind {
			t.Errorf("%s: unexpected kind -- got %v, want %v", test.name,
				got, test.kind)
			continue
		}
		if got := test.msg.Command(); got != test.kind.String() {
			t.Errorf("%s: command %q does not match kind %v", test.name,
				got, test.kind)
			continue
		}

		payload, err := EncodePayload(test.msg, ProtocolVersion)
		if err != nil {
			t.Errorf("%s: unexpected encode error: %v", test.name, err)
			continue
		}
		decoded, err := DecodePayload(test.msg.Command(), payload,
			ProtocolVersion)
		if err != nil {
			t.Errorf("%s: unexpected decode error: %v", test.name, err)
			continue
		}
		if decoded.Kind() != test.kind {
			t.Errorf("%s: decoded wrong kind %v", test.name, decoded.Kind())
			continue
		}
		reencoded, err := EncodePayload(decoded, ProtocolVersion)
		if err != nil {
			t.Errorf("%s: unexpected re-encode error: %v", test.name, err)
			continue
		}
		if !bytes.Equal(payload, reencoded) {
			t.Errorf("%s: mismatched payload -- got %s, want %s", test.name,
				spew.Sdump(reencoded), spew.Sdump(payload))
		}
	}
}

// TestSignedDataExcludesSignature ensures changing only the signature does
// not change the signed data while changing any semantic field does.
func TestSignedDataExcludesSignature(t *testing.T) {
	signedData := func(m Signable) []byte {
		var buf bytes.Buffer
		h := &bufHash{Buffer: &buf}
		m.WriteSignedData(h)
		return buf.Bytes()
	}

	msg := &MsgMixQueue{CollateralOutPoint: testOutPoint(1, 0), Denomination: 2}
	base := signedData(msg)
	msg.Signature[0] = 0xff
	if !bytes.Equal(base, signedData(msg)) {
		t.Fatal("signature changed the signed data")
	}
	msg.Ready = true
	if bytes.Equal(base, signedData(msg)) {
		t.Fatal("ready flag is not part of the signed data")
	}
}

// TestDecodeErrors ensures malformed payloads are rejected with the expected
// error kinds.
func TestDecodeErrors(t *testing.T) {
	op := testOutPoint(1, 0)
	in := wire.NewTxIn(&op, 1, []byte{1})
	tooMany := make([]*wire.TxIn, MaxEntryInputs+1)
	for i := range tooMany {
		tooMany[i] = in
	}
	var buf bytes.Buffer
	buf.Write(make([]byte, SessionIDLen))
	if err := writeTxIns(&buf, ProtocolVersion, tooMany); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tooManyPayload := buf.Bytes()

	ping, err := EncodePayload(&MsgMNPing{CollateralOutPoint: op},
		ProtocolVersion)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	badBool := append([]byte(nil), ping...)
	badBool[outPointSize+8] = 2

	tests := []struct {
		name    string
		command string
		payload []byte
		err     error
	}{{
		name:    "unknown command",
		command: "dsa",
		err:     ErrUnknownCommand,
	}, {
		name:    "trailing bytes",
		command: CmdMNPing,
		payload: append(append([]byte(nil), ping...), 0),
		err:     ErrTrailingBytes,
	}, {
		name:    "too many inputs",
		command: CmdMixSignatures,
		payload: tooManyPayload,
		err:     ErrTooManyInputs,
	}, {
		name:    "invalid bool",
		command: CmdMNPing,
		payload: badBool,
		err:     ErrInvalidMsg,
	}}

	for _, test := range tests {
		_, err := DecodePayload(test.command, test.payload, ProtocolVersion)
		if !errors.Is(err, test.err) {
			t.Errorf("%s: mismatched error -- got %v, want %v", test.name,
				err, test.err)
		}
	}
}

// TestEncodeRejectsNonASCII ensures status strings must be strict ASCII.
func TestEncodeRejectsNonASCII(t *testing.T) {
	msg := &MsgMixStatus{Message: "bad\x00message"}
	_, err := EncodePayload(msg, ProtocolVersion)
	if !errors.Is(err, ErrMalformedStrictString) {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestMessageID ensures ids commit to both the command and payload.
func TestMessageID(t *testing.T) {
	a := &MsgMNListRequest{CollateralOutPoint: testOutPoint(1, 0)}
	b := &MsgMNListRequest{CollateralOutPoint: testOutPoint(1, 1)}
	idA, err := MessageID(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idA2, _ := MessageID(a)
	idB, _ := MessageID(b)
	if idA != idA2 {
		t.Fatal("message id is not deterministic")
	}
	if idA == idB {
		t.Fatal("distinct messages share an id")
	}
	idSync, _ := MessageID(&MsgMNWinnerSync{})
	idReq, _ := MessageID(&MsgMNListRequest{})
	if idSync == idReq {
		t.Fatal("message id does not commit to the command")
	}
}

// bufHash adapts a buffer to the hash.Hash interface so tests can observe
// the signed data.
type bufHash struct {
	*bytes.Buffer
}

func (h *bufHash) Sum(b []byte) []byte { return append(b, h.Bytes()...) }
func (h *bufHash) Size() int           { return h.Len() }
func (h *bufHash) BlockSize() int      { return 1 }
