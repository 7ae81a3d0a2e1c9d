// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnwire

import (
	"fmt"
	"io"

	"github.com/decred/dcrd/wire"
)

// MsgMixSignatures returns a participant's signed inputs of the joint
// transaction of a session.
type MsgMixSignatures struct {
	SessionID [SessionIDLen]byte
	Inputs    []*wire.TxIn
}

// BtcDecode decodes r using the masternode protocol encoding into the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMixSignatures) BtcDecode(r io.Reader, pver uint32) error {
	const op = "MsgMixSignatures.BtcDecode"
	if err := readFixed(r, msg.SessionID[:]); err != nil {
		return err
	}
	var err error
	msg.Inputs, err = readTxIns(r, pver, op, MaxEntryInputs)
	return err
}

// BtcEncode encodes the receiver to w using the masternode protocol
// encoding.  This is part of the Message interface implementation.
func (msg *MsgMixSignatures) BtcEncode(w io.Writer, pver uint32) error {
	const op = "MsgMixSignatures.BtcEncode"
	if len(msg.Inputs) > MaxEntryInputs {
		str := fmt.Sprintf("too many inputs in message [%d]", len(msg.Inputs))
		return messageError(op, ErrTooManyInputs, str)
	}
	if err := writeFixed(w, msg.SessionID[:]); err != nil {
		return err
	}
	return writeTxIns(w, pver, msg.Inputs)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgMixSignatures) Command() string { return CmdMixSignatures }

// Kind returns KindMixSignatures.
func (msg *MsgMixSignatures) Kind() Kind { return KindMixSignatures }

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMixSignatures) MaxPayloadLength(pver uint32) uint32 {
	return SessionIDLen + 9 + MaxEntryInputs*maxTxInSize
}

func (msg *MsgMixSignatures) mnMessage() {}
