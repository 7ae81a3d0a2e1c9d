// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnwire

import (
	"hash"
	"io"

	"github.com/decred/dcrd/wire"
)

// MsgMNPing is a signed liveness ping of a masternode.  A ping with Stop set
// announces that the masternode is shutting down.
type MsgMNPing struct {
	CollateralOutPoint wire.OutPoint
	SigTime            int64
	Stop               bool
	Signature          [SignatureLen]byte
}

// BtcDecode decodes r using the masternode protocol encoding into the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMNPing) BtcDecode(r io.Reader, pver uint32) error {
	const op = "MsgMNPing.BtcDecode"
	err := readOutPoint(r, pver, &msg.CollateralOutPoint)
	if err != nil {
		return err
	}
	if msg.SigTime, err = readInt64(r); err != nil {
		return err
	}
	if msg.Stop, err = readBool(r, op); err != nil {
		return err
	}
	return readFixed(r, msg.Signature[:])
}

// BtcEncode encodes the receiver to w using the masternode protocol
// encoding.  This is part of the Message interface implementation.
func (msg *MsgMNPing) BtcEncode(w io.Writer, pver uint32) error {
	if err := msg.writeNoSignature(w, pver); err != nil {
		return err
	}
	return writeFixed(w, msg.Signature[:])
}

func (msg *MsgMNPing) writeNoSignature(w io.Writer, pver uint32) error {
	err := writeOutPoint(w, pver, &msg.CollateralOutPoint)
	if err != nil {
		return err
	}
	if err := writeInt64(w, msg.SigTime); err != nil {
		return err
	}
	return writeBool(w, msg.Stop)
}

// WriteSignedData writes every field except the signature to h.
func (msg *MsgMNPing) WriteSignedData(h hash.Hash) {
	msg.writeNoSignature(h, ProtocolVersion)
}

// Sig returns the signature of the message.
func (msg *MsgMNPing) Sig() []byte { return msg.Signature[:] }

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgMNPing) Command() string { return CmdMNPing }

// Kind returns KindMNPing.
func (msg *MsgMNPing) Kind() Kind { return KindMNPing }

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMNPing) MaxPayloadLength(pver uint32) uint32 {
	return outPointSize + 8 + 1 + SignatureLen
}

func (msg *MsgMNPing) mnMessage() {}
