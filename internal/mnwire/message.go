// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnwire

import (
	"bytes"
	"fmt"
	"hash"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/wire"
	"lukechampine.com/blake3"
)

// ProtocolVersion is the latest masternode protocol version this package
// supports.
const ProtocolVersion uint32 = 1

// Commands used in message headers which describe the type of message.
const (
	CmdMNAnnounce    = "mnannounce"
	CmdMNPing        = "mnping"
	CmdMNListRequest = "mnlistreq"
	CmdMNWinner      = "mnwinner"
	CmdMNWinnerSync  = "mnwinsync"
	CmdMixAccept     = "mixaccept"
	CmdMixEntry      = "mixentry"
	CmdMixSignatures = "mixsigs"
	CmdMixFinalTx    = "mixfinaltx"
	CmdMixStatus     = "mixstatus"
	CmdMixComplete   = "mixcomplete"
	CmdMixQueue      = "mixqueue"
)

// Kind enumerates the closed set of masternode protocol messages.
type Kind uint8

// These constants define the message kinds.
const (
	KindMNAnnounce Kind = iota + 1
	KindMNPing
	KindMNListRequest
	KindMNWinner
	KindMNWinnerSync
	KindMixAccept
	KindMixEntry
	KindMixSignatures
	KindMixFinalTx
	KindMixStatus
	KindMixComplete
	KindMixQueue
)

var kindStrings = map[Kind]string{
	KindMNAnnounce:    CmdMNAnnounce,
	KindMNPing:        CmdMNPing,
	KindMNListRequest: CmdMNListRequest,
	KindMNWinner:      CmdMNWinner,
	KindMNWinnerSync:  CmdMNWinnerSync,
	KindMixAccept:     CmdMixAccept,
	KindMixEntry:      CmdMixEntry,
	KindMixSignatures: CmdMixSignatures,
	KindMixFinalTx:    CmdMixFinalTx,
	KindMixStatus:     CmdMixStatus,
	KindMixComplete:   CmdMixComplete,
	KindMixQueue:      CmdMixQueue,
}

// String returns the command name of the kind.
func (k Kind) String() string {
	if s, ok := kindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Kind (%d)", uint8(k))
}

// Message is a masternode protocol message.  The set of implementations is
// closed: only the message types of this package satisfy it, so consumers can
// switch over the concrete types exhaustively.
type Message interface {
	wire.Message

	// Kind returns the kind of the message.
	Kind() Kind

	mnMessage()
}

// Signable describes a message whose semantic fields can be written to a
// hasher in a fixed order for signing.
type Signable interface {
	Command() string
	WriteSignedData(hash.Hash)
}

// Signed describes a Signable message that carries its own signature.
type Signed interface {
	Signable
	Sig() []byte
}

// MakeEmptyMessage creates a message of the appropriate concrete type based
// on the command.
func MakeEmptyMessage(command string) (Message, error) {
	const op = "MakeEmptyMessage"

	var msg Message
	switch command {
	case CmdMNAnnounce:
		msg = &MsgMNAnnounce{}
	case CmdMNPing:
		msg = &MsgMNPing{}
	case CmdMNListRequest:
		msg = &MsgMNListRequest{}
	case CmdMNWinner:
		msg = &MsgMNWinner{}
	case CmdMNWinnerSync:
		msg = &MsgMNWinnerSync{}
	case CmdMixAccept:
		msg = &MsgMixAccept{}
	case CmdMixEntry:
		msg = &MsgMixEntry{}
	case CmdMixSignatures:
		msg = &MsgMixSignatures{}
	case CmdMixFinalTx:
		msg = &MsgMixFinalTx{}
	case CmdMixStatus:
		msg = &MsgMixStatus{}
	case CmdMixComplete:
		msg = &MsgMixComplete{}
	case CmdMixQueue:
		msg = &MsgMixQueue{}
	default:
		str := fmt.Sprintf("unhandled command [%s]", command)
		return nil, messageError(op, ErrUnknownCommand, str)
	}
	return msg, nil
}

// EncodePayload serializes msg with the given protocol version and checks the
// result against the maximum payload length of the message.
func EncodePayload(msg Message, pver uint32) ([]byte, error) {
	const op = "EncodePayload"

	var buf bytes.Buffer
	if err := msg.BtcEncode(&buf, pver); err != nil {
		return nil, err
	}
	if max := msg.MaxPayloadLength(pver); uint32(buf.Len()) > max {
		str := fmt.Sprintf("message payload is too large - encoded %d "+
			"bytes, but maximum message payload size for messages of "+
			"type [%s] is %d", buf.Len(), msg.Command(), max)
		return nil, messageError(op, ErrPayloadTooLarge, str)
	}
	return buf.Bytes(), nil
}

// DecodePayload creates the message named by command and decodes payload
// into it.  The entire payload must be consumed.
func DecodePayload(command string, payload []byte, pver uint32) (Message, error) {
	const op = "DecodePayload"

	msg, err := MakeEmptyMessage(command)
	if err != nil {
		return nil, err
	}
	if max := msg.MaxPayloadLength(pver); uint32(len(payload)) > max {
		str := fmt.Sprintf("payload exceeds max length - header indicates "+
			"%d bytes, but max message payload size for messages of "+
			"type [%s] is %d", len(payload), command, max)
		return nil, messageError(op, ErrPayloadTooLarge, str)
	}
	r := bytes.NewReader(payload)
	if err := msg.BtcDecode(r, pver); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		str := fmt.Sprintf("%d trailing bytes after %s message", r.Len(),
			command)
		return nil, messageError(op, ErrTrailingBytes, str)
	}
	return msg, nil
}

// MessageID returns a unique identifier of the message used for relay
// deduplication.  It commits to both the command and the encoded payload.
func MessageID(msg Message) (chainhash.Hash, error) {
	var buf bytes.Buffer
	buf.WriteString(msg.Command())
	buf.WriteByte(0)
	if err := msg.BtcEncode(&buf, ProtocolVersion); err != nil {
		return chainhash.Hash{}, err
	}
	return chainhash.Hash(blake3.Sum256(buf.Bytes())), nil
}
