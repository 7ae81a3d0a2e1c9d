// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnwire

import (
	"fmt"
	"io"

	"github.com/decred/dcrd/wire"
)

// MsgMixEntry submits a client's inputs and denominated outputs to the
// current mixing round along with a collateral transaction.
type MsgMixEntry struct {
	Inputs     []*wire.TxIn
	Amount     int64
	Collateral *wire.MsgTx
	Outputs    []*wire.TxOut
}

// BtcDecode decodes r using the masternode protocol encoding into the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMixEntry) BtcDecode(r io.Reader, pver uint32) error {
	const op = "MsgMixEntry.BtcDecode"
	var err error
	msg.Inputs, err = readTxIns(r, pver, op, MaxEntryInputs)
	if err != nil {
		return err
	}
	if msg.Amount, err = readInt64(r); err != nil {
		return err
	}
	if msg.Amount < 0 {
		str := fmt.Sprintf("negative entry amount %d", msg.Amount)
		return messageError(op, ErrInvalidMsg, str)
	}
	msg.Collateral, err = readTx(r, pver, "MsgMixEntry.Collateral")
	if err != nil {
		return err
	}
	count, err := wire.ReadVarInt(r, pver)
	if err != nil {
		return err
	}
	if count > MaxEntryOutputs {
		str := fmt.Sprintf("too many outputs in message [count %v, max %v]",
			count, MaxEntryOutputs)
		return messageError(op, ErrTooManyOutputs, str)
	}
	outs := make([]*wire.TxOut, count)
	for i := range outs {
		to := new(wire.TxOut)
		if err := readTxOut(r, pver, to); err != nil {
			return err
		}
		outs[i] = to
	}
	msg.Outputs = outs
	return nil
}

// BtcEncode encodes the receiver to w using the masternode protocol
// encoding.  This is part of the Message interface implementation.
func (msg *MsgMixEntry) BtcEncode(w io.Writer, pver uint32) error {
	const op = "MsgMixEntry.BtcEncode"
	if len(msg.Inputs) > MaxEntryInputs {
		str := fmt.Sprintf("too many inputs in message [%d]", len(msg.Inputs))
		return messageError(op, ErrTooManyInputs, str)
	}
	if len(msg.Outputs) > MaxEntryOutputs {
		str := fmt.Sprintf("too many outputs in message [%d]", len(msg.Outputs))
		return messageError(op, ErrTooManyOutputs, str)
	}
	if err := writeTxIns(w, pver, msg.Inputs); err != nil {
		return err
	}
	if err := writeInt64(w, msg.Amount); err != nil {
		return err
	}
	if err := writeTx(w, pver, msg.Collateral); err != nil {
		return err
	}
	err := wire.WriteVarInt(w, pver, uint64(len(msg.Outputs)))
	if err != nil {
		return err
	}
	for _, to := range msg.Outputs {
		if err := writeTxOut(w, pver, to); err != nil {
			return err
		}
	}
	return nil
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgMixEntry) Command() string { return CmdMixEntry }

// Kind returns KindMixEntry.
func (msg *MsgMixEntry) Kind() Kind { return KindMixEntry }

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMixEntry) MaxPayloadLength(pver uint32) uint32 {
	return 9 + MaxEntryInputs*maxTxInSize + 8 +
		uint32(wire.VarIntSerializeSize(MaxTxSize)) + MaxTxSize +
		9 + MaxEntryOutputs*maxTxOutSize
}

func (msg *MsgMixEntry) mnMessage() {}
