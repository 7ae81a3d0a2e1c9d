// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnwire

import (
	"io"

	"github.com/decred/dcrd/wire"
)

// SessionIDLen is the length of a mixing session identifier.
const SessionIDLen = 16

// MsgMixAccept asks a masternode to admit the sender into its next mixing
// round for the given denomination bitmask.  The collateral transaction is
// charged if the sender misbehaves during the round.
type MsgMixAccept struct {
	Denomination uint32
	Collateral   *wire.MsgTx
}

// BtcDecode decodes r using the masternode protocol encoding into the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMixAccept) BtcDecode(r io.Reader, pver uint32) error {
	var err error
	if msg.Denomination, err = readUint32(r); err != nil {
		return err
	}
	msg.Collateral, err = readTx(r, pver, "MsgMixAccept.Collateral")
	return err
}

// BtcEncode encodes the receiver to w using the masternode protocol
// encoding.  This is part of the Message interface implementation.
func (msg *MsgMixAccept) BtcEncode(w io.Writer, pver uint32) error {
	if err := writeUint32(w, msg.Denomination); err != nil {
		return err
	}
	return writeTx(w, pver, msg.Collateral)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgMixAccept) Command() string { return CmdMixAccept }

// Kind returns KindMixAccept.
func (msg *MsgMixAccept) Kind() Kind { return KindMixAccept }

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMixAccept) MaxPayloadLength(pver uint32) uint32 {
	return 4 + uint32(wire.VarIntSerializeSize(MaxTxSize)) + MaxTxSize
}

func (msg *MsgMixAccept) mnMessage() {}
