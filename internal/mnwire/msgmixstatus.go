// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnwire

import (
	"io"

	"github.com/decred/dcrd/wire"
)

// MsgMixStatus reports the state of a session to a participant and whether
// the participant's last request was accepted.
type MsgMixStatus struct {
	SessionID  [SessionIDLen]byte
	State      uint8
	EntryCount uint32
	Accepted   bool
	Message    string
}

// BtcDecode decodes r using the masternode protocol encoding into the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMixStatus) BtcDecode(r io.Reader, pver uint32) error {
	const op = "MsgMixStatus.BtcDecode"
	if err := readFixed(r, msg.SessionID[:]); err != nil {
		return err
	}
	var err error
	if msg.State, err = readUint8(r); err != nil {
		return err
	}
	if msg.EntryCount, err = readUint32(r); err != nil {
		return err
	}
	if msg.Accepted, err = readBool(r, op); err != nil {
		return err
	}
	msg.Message, err = readASCII(r, pver, MaxStatusMessageLen)
	return err
}

// BtcEncode encodes the receiver to w using the masternode protocol
// encoding.  This is part of the Message interface implementation.
func (msg *MsgMixStatus) BtcEncode(w io.Writer, pver uint32) error {
	const op = "MsgMixStatus.BtcEncode"
	if err := writeFixed(w, msg.SessionID[:]); err != nil {
		return err
	}
	if err := writeUint8(w, msg.State); err != nil {
		return err
	}
	if err := writeUint32(w, msg.EntryCount); err != nil {
		return err
	}
	if err := writeBool(w, msg.Accepted); err != nil {
		return err
	}
	return writeASCII(w, pver, op, msg.Message, MaxStatusMessageLen)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgMixStatus) Command() string { return CmdMixStatus }

// Kind returns KindMixStatus.
func (msg *MsgMixStatus) Kind() Kind { return KindMixStatus }

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMixStatus) MaxPayloadLength(pver uint32) uint32 {
	return SessionIDLen + 1 + 4 + 1 +
		uint32(wire.VarIntSerializeSize(MaxStatusMessageLen)) +
		MaxStatusMessageLen
}

func (msg *MsgMixStatus) mnMessage() {}

// MsgMixComplete tells participants the final outcome of a session.
type MsgMixComplete struct {
	SessionID [SessionIDLen]byte
	Error     bool
	Message   string
}

// BtcDecode decodes r using the masternode protocol encoding into the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMixComplete) BtcDecode(r io.Reader, pver uint32) error {
	const op = "MsgMixComplete.BtcDecode"
	if err := readFixed(r, msg.SessionID[:]); err != nil {
		return err
	}
	var err error
	if msg.Error, err = readBool(r, op); err != nil {
		return err
	}
	msg.Message, err = readASCII(r, pver, MaxStatusMessageLen)
	return err
}

// BtcEncode encodes the receiver to w using the masternode protocol
// encoding.  This is part of the Message interface implementation.
func (msg *MsgMixComplete) BtcEncode(w io.Writer, pver uint32) error {
	const op = "MsgMixComplete.BtcEncode"
	if err := writeFixed(w, msg.SessionID[:]); err != nil {
		return err
	}
	if err := writeBool(w, msg.Error); err != nil {
		return err
	}
	return writeASCII(w, pver, op, msg.Message, MaxStatusMessageLen)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgMixComplete) Command() string { return CmdMixComplete }

// Kind returns KindMixComplete.
func (msg *MsgMixComplete) Kind() Kind { return KindMixComplete }

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMixComplete) MaxPayloadLength(pver uint32) uint32 {
	return SessionIDLen + 1 +
		uint32(wire.VarIntSerializeSize(MaxStatusMessageLen)) +
		MaxStatusMessageLen
}

func (msg *MsgMixComplete) mnMessage() {}
