// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/decred/dcrd/wire"
)

const (
	// MaxAddrLen is the maximum length of a masternode network address.
	MaxAddrLen = 256

	// MaxScriptLen is the maximum length of any script carried by a
	// message.
	MaxScriptLen = 16384

	// MaxTxSize is the maximum serialized size of a transaction embedded in
	// a message.
	MaxTxSize = 393216

	// MaxEntryInputs is the maximum number of inputs a single mixing entry
	// or signature message may carry.
	MaxEntryInputs = 64

	// MaxEntryOutputs is the maximum number of outputs a single mixing
	// entry may carry.
	MaxEntryOutputs = 64

	// MaxStatusMessageLen is the maximum length of the human readable
	// message attached to mixing status replies.
	MaxStatusMessageLen = 256

	// PubKeyLen is the length of a compressed secp256k1 public key.
	PubKeyLen = 33

	// SignatureLen is the length of a Schnorr signature.
	SignatureLen = 64

	// maxTxInSize is an upper bound on the serialized size of a single
	// encoded input.
	maxTxInSize = 32 + 4 + 1 + 4 + 8 + 4 + 4 + 3 + MaxScriptLen

	// maxTxOutSize is an upper bound on the serialized size of a single
	// encoded output.
	maxTxOutSize = 8 + 2 + 3 + MaxScriptLen

	// outPointSize is the serialized size of an outpoint.
	outPointSize = 32 + 4 + 1
)

// txVersion is the transaction version passed to the outpoint codec.
const txVersion = wire.TxVersion

func readUint8(r io.Reader) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func writeUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func readBool(r io.Reader, op string) (bool, error) {
	v, err := readUint8(r)
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	msg := fmt.Sprintf("invalid boolean encoding %d", v)
	return false, messageError(op, ErrInvalidMsg, msg)
}

func writeBool(w io.Writer, v bool) error {
	if v {
		return writeUint8(w, 1)
	}
	return writeUint8(w, 0)
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readInt64(r io.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

func writeInt64(w io.Writer, v int64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	_, err := w.Write(b[:])
	return err
}

func readUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func writeUint16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readFixed(r io.Reader, dst []byte) error {
	_, err := io.ReadFull(r, dst)
	return err
}

func writeFixed(w io.Writer, b []byte) error {
	_, err := w.Write(b)
	return err
}

// readOutPoint reads an outpoint using the dcrd wire encoding.
func readOutPoint(r io.Reader, pver uint32, op *wire.OutPoint) error {
	return wire.ReadOutPoint(r, pver, txVersion, op)
}

// writeOutPoint writes an outpoint using the dcrd wire encoding.
func writeOutPoint(w io.Writer, pver uint32, op *wire.OutPoint) error {
	return wire.WriteOutPoint(w, pver, txVersion, op)
}

// readTxIn reads a full transaction input including its witness fields.
func readTxIn(r io.Reader, pver uint32, ti *wire.TxIn) error {
	err := readOutPoint(r, pver, &ti.PreviousOutPoint)
	if err != nil {
		return err
	}
	if ti.Sequence, err = readUint32(r); err != nil {
		return err
	}
	if ti.ValueIn, err = readInt64(r); err != nil {
		return err
	}
	if ti.BlockHeight, err = readUint32(r); err != nil {
		return err
	}
	if ti.BlockIndex, err = readUint32(r); err != nil {
		return err
	}
	ti.SignatureScript, err = wire.ReadVarBytes(r, pver, MaxScriptLen,
		"TxIn.SignatureScript")
	return err
}

// writeTxIn writes a full transaction input including its witness fields.
func writeTxIn(w io.Writer, pver uint32, ti *wire.TxIn) error {
	err := writeOutPoint(w, pver, &ti.PreviousOutPoint)
	if err != nil {
		return err
	}
	if err := writeUint32(w, ti.Sequence); err != nil {
		return err
	}
	if err := writeInt64(w, ti.ValueIn); err != nil {
		return err
	}
	if err := writeUint32(w, ti.BlockHeight); err != nil {
		return err
	}
	if err := writeUint32(w, ti.BlockIndex); err != nil {
		return err
	}
	return wire.WriteVarBytes(w, pver, ti.SignatureScript)
}

func readTxOut(r io.Reader, pver uint32, to *wire.TxOut) error {
	var err error
	if to.Value, err = readInt64(r); err != nil {
		return err
	}
	if to.Version, err = readUint16(r); err != nil {
		return err
	}
	to.PkScript, err = wire.ReadVarBytes(r, pver, MaxScriptLen,
		"TxOut.PkScript")
	return err
}

func writeTxOut(w io.Writer, pver uint32, to *wire.TxOut) error {
	if err := writeInt64(w, to.Value); err != nil {
		return err
	}
	if err := writeUint16(w, to.Version); err != nil {
		return err
	}
	return wire.WriteVarBytes(w, pver, to.PkScript)
}

// readTxIns reads a count prefixed list of inputs bounded by max.
func readTxIns(r io.Reader, pver uint32, op string, max uint64) ([]*wire.TxIn, error) {
	count, err := wire.ReadVarInt(r, pver)
	if err != nil {
		return nil, err
	}
	if count > max {
		msg := fmt.Sprintf("too many inputs in message [count %v, max %v]",
			count, max)
		return nil, messageError(op, ErrTooManyInputs, msg)
	}
	ins := make([]*wire.TxIn, count)
	for i := range ins {
		ti := new(wire.TxIn)
		if err := readTxIn(r, pver, ti); err != nil {
			return nil, err
		}
		ins[i] = ti
	}
	return ins, nil
}

func writeTxIns(w io.Writer, pver uint32, ins []*wire.TxIn) error {
	err := wire.WriteVarInt(w, pver, uint64(len(ins)))
	if err != nil {
		return err
	}
	for _, ti := range ins {
		if err := writeTxIn(w, pver, ti); err != nil {
			return err
		}
	}
	return nil
}

// readTx reads a varbytes encoded transaction.  A zero length encoding
// decodes to a nil transaction.
func readTx(r io.Reader, pver uint32, fieldName string) (*wire.MsgTx, error) {
	b, err := wire.ReadVarBytes(r, pver, MaxTxSize, fieldName)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}
	tx := new(wire.MsgTx)
	if err := tx.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return tx, nil
}

func writeTx(w io.Writer, pver uint32, tx *wire.MsgTx) error {
	if tx == nil {
		return wire.WriteVarBytes(w, pver, nil)
	}
	var buf bytes.Buffer
	buf.Grow(tx.SerializeSize())
	if err := tx.Serialize(&buf); err != nil {
		return err
	}
	return wire.WriteVarBytes(w, pver, buf.Bytes())
}

// readASCII reads a strict ASCII varstring bounded by max.
func readASCII(r io.Reader, pver uint32, max uint64) (string, error) {
	return wire.ReadAsciiVarString(r, pver, max)
}

func writeASCII(w io.Writer, pver uint32, op, s string, max int) error {
	if len(s) > max {
		msg := fmt.Sprintf("string is too long [len %d, max %d]", len(s), max)
		return messageError(op, ErrInvalidMsg, msg)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			msg := "string is not strict ASCII"
			return messageError(op, ErrMalformedStrictString, msg)
		}
	}
	return wire.WriteVarString(w, pver, s)
}
