// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnwire

import (
	"hash"
	"io"

	"github.com/decred/dcrd/wire"
)

// MsgMixQueue announces that a masternode is opening, or is ready to run, a
// mixing round of a denomination.
type MsgMixQueue struct {
	CollateralOutPoint wire.OutPoint
	Denomination       uint32
	Time               int64
	Ready              bool
	Signature          [SignatureLen]byte
}

// BtcDecode decodes r using the masternode protocol encoding into the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMixQueue) BtcDecode(r io.Reader, pver uint32) error {
	const op = "MsgMixQueue.BtcDecode"
	err := readOutPoint(r, pver, &msg.CollateralOutPoint)
	if err != nil {
		return err
	}
	if msg.Denomination, err = readUint32(r); err != nil {
		return err
	}
	if msg.Time, err = readInt64(r); err != nil {
		return err
	}
	if msg.Ready, err = readBool(r, op); err != nil {
		return err
	}
	return readFixed(r, msg.Signature[:])
}

// BtcEncode encodes the receiver to w using the masternode protocol
// encoding.  This is part of the Message interface implementation.
func (msg *MsgMixQueue) BtcEncode(w io.Writer, pver uint32) error {
	if err := msg.writeNoSignature(w, pver); err != nil {
		return err
	}
	return writeFixed(w, msg.Signature[:])
}

func (msg *MsgMixQueue) writeNoSignature(w io.Writer, pver uint32) error {
	err := writeOutPoint(w, pver, &msg.CollateralOutPoint)
	if err != nil {
		return err
	}
	if err := writeUint32(w, msg.Denomination); err != nil {
		return err
	}
	if err := writeInt64(w, msg.Time); err != nil {
		return err
	}
	return writeBool(w, msg.Ready)
}

// WriteSignedData writes every field except the signature to h.
func (msg *MsgMixQueue) WriteSignedData(h hash.Hash) {
	msg.writeNoSignature(h, ProtocolVersion)
}

// Sig returns the signature of the message.
func (msg *MsgMixQueue) Sig() []byte { return msg.Signature[:] }

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgMixQueue) Command() string { return CmdMixQueue }

// Kind returns KindMixQueue.
func (msg *MsgMixQueue) Kind() Kind { return KindMixQueue }

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMixQueue) MaxPayloadLength(pver uint32) uint32 {
	return outPointSize + 4 + 8 + 1 + SignatureLen
}

func (msg *MsgMixQueue) mnMessage() {}
