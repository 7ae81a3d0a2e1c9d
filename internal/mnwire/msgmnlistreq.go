// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnwire

import (
	"io"

	"github.com/decred/dcrd/wire"
)

// MsgMNListRequest requests the announcement of a single masternode, or of
// every known masternode when CollateralOutPoint is the zero outpoint.
type MsgMNListRequest struct {
	CollateralOutPoint wire.OutPoint
}

// IsFullList returns whether the request asks for every known masternode.
func (msg *MsgMNListRequest) IsFullList() bool {
	return msg.CollateralOutPoint == (wire.OutPoint{})
}

// BtcDecode decodes r using the masternode protocol encoding into the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMNListRequest) BtcDecode(r io.Reader, pver uint32) error {
	return readOutPoint(r, pver, &msg.CollateralOutPoint)
}

// BtcEncode encodes the receiver to w using the masternode protocol
// encoding.  This is part of the Message interface implementation.
func (msg *MsgMNListRequest) BtcEncode(w io.Writer, pver uint32) error {
	return writeOutPoint(w, pver, &msg.CollateralOutPoint)
}

// Command returns the protocol command string for the message.  This is part
// of the Message interface implementation.
func (msg *MsgMNListRequest) Command() string { return CmdMNListRequest }

// Kind returns KindMNListRequest.
func (msg *MsgMNListRequest) Kind() Kind { return KindMNListRequest }

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgMNListRequest) MaxPayloadLength(pver uint32) uint32 {
	return outPointSize
}

func (msg *MsgMNListRequest) mnMessage() {}
