// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnwire

import (
	"io"

	"github.com/decred/dcrd/wire"
)

// MsgMixFinalTx distributes the unsigned joint transaction of a session to
// its participants for signing.
type MsgMixFinalTx struct {
	SessionID [SessionIDLen]byte
	Tx        *wire.MsgTx
}

// BtcDecode decodes r using the masternode protocol encoding into the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMixFinalTx) BtcDecode(r io.Reader, pver uint32) error {
	const op = "MsgMixFinalTx.BtcDecode"
	if err := readFixed(r, msg.SessionID[:]); err != nil {
		return err
	}
	tx, err := readTx(r, pver, "MsgMixFinalTx.Tx")
	if err != nil {
		return err
	}
	if tx == nil {
		return messageError(op, ErrInvalidMsg, "missing joint transaction")
	}
	msg.Tx = tx
	return nil
}

// BtcEncode encodes the receiver to w using the masternode protocol
// encoding.  This is part of the Message interface implementation.
func (msg *MsgMixFinalTx) BtcEncode(w io.Writer, pver uint32) error {
	if err := writeFixed(w, msg.SessionID[:]); err != nil {
		return err
	}
	return writeTx(w, pver, msg.Tx)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgMixFinalTx) Command() string { return CmdMixFinalTx }

// Kind returns KindMixFinalTx.
func (msg *MsgMixFinalTx) Kind() Kind { return KindMixFinalTx }

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMixFinalTx) MaxPayloadLength(pver uint32) uint32 {
	return SessionIDLen + uint32(wire.VarIntSerializeSize(MaxTxSize)) +
		MaxTxSize
}

func (msg *MsgMixFinalTx) mnMessage() {}
