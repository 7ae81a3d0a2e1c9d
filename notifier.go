// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"github.com/davecgh/go-spew/spew"
	"github.com/mnsuite/mnd/internal/mnwire"
)

// logNotifier is the PeerNotifier of a node that is not attached to a
// transport.  Outbound messages are encoded to ensure they are within the
// protocol limits and then logged.
type logNotifier struct{}

// logOutbound encodes msg and logs it as sent to dest.
func logOutbound(dest string, msg mnwire.Message) {
	payload, err := mnwire.EncodePayload(msg, mnwire.ProtocolVersion)
	if err != nil {
		srvrLog.Errorf("Unable to encode %v for %s: %v", msg.Kind(), dest, err)
		return
	}
	srvrLog.Debugf("Outbound %v (%d bytes) to %s", msg.Kind(), len(payload),
		dest)
	srvrLog.Tracef("%v", newLogClosure(func() string {
		return spew.Sdump(msg)
	}))
}

func (logNotifier) SendMessage(peer string, msg mnwire.Message) {
	logOutbound(peer, msg)
}

func (logNotifier) RelayMessage(msg mnwire.Message) {
	logOutbound("all peers", msg)
}

func (logNotifier) DisconnectPeer(peer string) {
	srvrLog.Infof("Disconnecting banned peer %s", peer)
}
