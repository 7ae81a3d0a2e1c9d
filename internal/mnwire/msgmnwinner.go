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

// MaxPayeeScriptLen is the maximum length of a winner vote payee script.
const MaxPayeeScriptLen = 128

// MsgMNWinner is a signed vote naming the masternode to be paid at a block
// height.
type MsgMNWinner struct {
	Height             int64
	CollateralOutPoint wire.OutPoint
	Sequence           uint32
	PayeeScript        []byte

	// Score is the little endian encoding of the 256-bit election score.
	Score [32]byte

	Signature [SignatureLen]byte
}

// BtcDecode decodes r using the masternode protocol encoding into the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMNWinner) BtcDecode(r io.Reader, pver uint32) error {
	const op = "MsgMNWinner.BtcDecode"
	var err error
	if msg.Height, err = readInt64(r); err != nil {
		return err
	}
	if msg.Height < 0 {
		msg := fmt.Sprintf("negative winner height %d", msg.Height)
		return messageError(op, ErrInvalidMsg, msg)
	}
	if err := readOutPoint(r, pver, &msg.CollateralOutPoint); err != nil {
		return err
	}
	if msg.Sequence, err = readUint32(r); err != nil {
		return err
	}
	msg.PayeeScript, err = wire.ReadVarBytes(r, pver, MaxPayeeScriptLen,
		"MsgMNWinner.PayeeScript")
	if err != nil {
		return err
	}
	if err := readFixed(r, msg.Score[:]); err != nil {
		return err
	}
	return readFixed(r, msg.Signature[:])
}

// BtcEncode encodes the receiver to w using the masternode protocol
// encoding.  This is part of the Message interface implementation.
func (msg *MsgMNWinner) BtcEncode(w io.Writer, pver uint32) error {
	const op = "MsgMNWinner.BtcEncode"
	if len(msg.PayeeScript) > MaxPayeeScriptLen {
		str := fmt.Sprintf("payee script is too long [len %d, max %d]",
			len(msg.PayeeScript), MaxPayeeScriptLen)
		return messageError(op, ErrInvalidMsg, str)
	}
	if err := msg.writeNoSignature(w, pver); err != nil {
		return err
	}
	return writeFixed(w, msg.Signature[:])
}

func (msg *MsgMNWinner) writeNoSignature(w io.Writer, pver uint32) error {
	if err := writeInt64(w, msg.Height); err != nil {
		return err
	}
	if err := writeOutPoint(w, pver, &msg.CollateralOutPoint); err != nil {
		return err
	}
	if err := writeUint32(w, msg.Sequence); err != nil {
		return err
	}
	if err := wire.WriteVarBytes(w, pver, msg.PayeeScript); err != nil {
		return err
	}
	return writeFixed(w, msg.Score[:])
}

// WriteSignedData writes every field except the signature to h.
func (msg *MsgMNWinner) WriteSignedData(h hash.Hash) {
	msg.writeNoSignature(h, ProtocolVersion)
}

// Sig returns the signature of the message.
func (msg *MsgMNWinner) Sig() []byte { return msg.Signature[:] }

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgMNWinner) Command() string { return CmdMNWinner }

// Kind returns KindMNWinner.
func (msg *MsgMNWinner) Kind() Kind { return KindMNWinner }

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMNWinner) MaxPayloadLength(pver uint32) uint32 {
	return 8 + outPointSize + 4 +
		uint32(wire.VarIntSerializeSize(MaxPayeeScriptLen)) +
		MaxPayeeScriptLen + 32 + SignatureLen
}

func (msg *MsgMNWinner) mnMessage() {}

// MsgMNWinnerSync requests every winner vote the receiver holds for the
// current voting window.
type MsgMNWinnerSync struct{}

// BtcDecode decodes r using the masternode protocol encoding into the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMNWinnerSync) BtcDecode(r io.Reader, pver uint32) error {
	return nil
}

// BtcEncode encodes the receiver to w using the masternode protocol
// encoding.  This is part of the Message interface implementation.
func (msg *MsgMNWinnerSync) BtcEncode(w io.Writer, pver uint32) error {
	return nil
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgMNWinnerSync) Command() string { return CmdMNWinnerSync }

// Kind returns KindMNWinnerSync.
func (msg *MsgMNWinnerSync) Kind() Kind { return KindMNWinnerSync }

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMNWinnerSync) MaxPayloadLength(pver uint32) uint32 {
	return 0
}

func (msg *MsgMNWinnerSync) mnMessage() {}
