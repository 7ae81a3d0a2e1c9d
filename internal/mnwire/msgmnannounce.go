// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnwire

import (
	"fmt"
	"hash"
	"io"

	"github.com/decred/dcrd/wire"
)

// MsgMNAnnounce announces a masternode to the network.  It binds the
// collateral output to the operator key that signs all later liveness
// messages of the masternode.
type MsgMNAnnounce struct {
	CollateralOutPoint wire.OutPoint
	Addr               string
	CollateralPubKey   [PubKeyLen]byte
	OperatorPubKey     [PubKeyLen]byte
	SigTime            int64
	ProtocolVersion    uint32
	Signature          [SignatureLen]byte
}

// BtcDecode decodes r using the masternode protocol encoding into the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMNAnnounce) BtcDecode(r io.Reader, pver uint32) error {
	err := readOutPoint(r, pver, &msg.CollateralOutPoint)
	if err != nil {
		return err
	}
	msg.Addr, err = readASCII(r, pver, MaxAddrLen)
	if err != nil {
		return err
	}
	if err := readFixed(r, msg.CollateralPubKey[:]); err != nil {
		return err
	}
	if err := readFixed(r, msg.OperatorPubKey[:]); err != nil {
		return err
	}
	if msg.SigTime, err = readInt64(r); err != nil {
		return err
	}
	if msg.ProtocolVersion, err = readUint32(r); err != nil {
		return err
	}
	return readFixed(r, msg.Signature[:])
}

// BtcEncode encodes the receiver to w using the masternode protocol
// encoding.  This is part of the Message interface implementation.
func (msg *MsgMNAnnounce) BtcEncode(w io.Writer, pver uint32) error {
	const op = "MsgMNAnnounce.BtcEncode"
	if err := msg.writeNoSignature(op, w, pver); err != nil {
		return err
	}
	return writeFixed(w, msg.Signature[:])
}

func (msg *MsgMNAnnounce) writeNoSignature(op string, w io.Writer, pver uint32) error {
	err := writeOutPoint(w, pver, &msg.CollateralOutPoint)
	if err != nil {
		return err
	}
	if err := writeASCII(w, pver, op, msg.Addr, MaxAddrLen); err != nil {
		return err
	}
	if err := writeFixed(w, msg.CollateralPubKey[:]); err != nil {
		return err
	}
	if err := writeFixed(w, msg.OperatorPubKey[:]); err != nil {
		return err
	}
	if err := writeInt64(w, msg.SigTime); err != nil {
		return err
	}
	return writeUint32(w, msg.ProtocolVersion)
}

// WriteSignedData writes every field except the signature to h.
func (msg *MsgMNAnnounce) WriteSignedData(h hash.Hash) {
	msg.writeNoSignature("", h, ProtocolVersion)
}

// Sig returns the signature of the message.
func (msg *MsgMNAnnounce) Sig() []byte { return msg.Signature[:] }

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgMNAnnounce) Command() string { return CmdMNAnnounce }

// Kind returns KindMNAnnounce.
func (msg *MsgMNAnnounce) Kind() Kind { return KindMNAnnounce }

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMNAnnounce) MaxPayloadLength(pver uint32) uint32 {
	return outPointSize + uint32(wire.VarIntSerializeSize(MaxAddrLen)) +
		MaxAddrLen + 2*PubKeyLen + 8 + 4 + SignatureLen
}

func (msg *MsgMNAnnounce) mnMessage() {}

// String returns a short description of the announcement for logging.
func (msg *MsgMNAnnounce) String() string {
	return fmt.Sprintf("mnannounce %v addr %s time %d", msg.CollateralOutPoint,
		msg.Addr, msg.SigTime)
}
