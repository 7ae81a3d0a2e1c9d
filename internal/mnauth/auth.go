// Copyright (c) 2023-2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mnauth signs and verifies masternode protocol messages.
//
// The signature hash commits to the message command together with a digest of
// the semantic fields of the message written in a fixed order.  A signature
// made for one message kind is therefore never valid for another kind even
// when the field encodings happen to coincide.
package mnauth

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"

	"github.com/decred/dcrd/crypto/blake256"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
	"github.com/mnsuite/mnd/internal/mnwire"
)

const tag = "mnd-message-signature"

// ErrSignatureLength is returned when a signed message does not provide room
// for a full Schnorr signature.
var ErrSignatureLength = errors.New("message signature field has wrong length")

// sigHash returns the hash that is signed for message m.
func sigHash(h hash.Hash, m mnwire.Signable) []byte {
	h.Reset()
	m.WriteSignedData(h)
	fieldsHash := h.Sum(nil)

	h.Reset()
	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, tag+",%s,%x", m.Command(), fieldsHash)
	h.Write(buf.Bytes())
	return h.Sum(nil)
}

// Sign creates a signature of message m with the private key priv.
func Sign(m mnwire.Signable, priv *secp256k1.PrivateKey) ([]byte, error) {
	sig, err := schnorr.Sign(priv, sigHash(blake256.New(), m))
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

// Verify returns whether sig is a valid signature of message m by the
// serialized public key pub.  Unparsable keys and signatures are reported as
// invalid.
func Verify(pub, sig []byte, m mnwire.Signable) bool {
	pubKey, err := secp256k1.ParsePubKey(pub)
	if err != nil {
		return false
	}
	return VerifyKey(pubKey, sig, m)
}

// VerifyKey is Verify for an already parsed public key.
func VerifyKey(pub *secp256k1.PublicKey, sig []byte, m mnwire.Signable) bool {
	parsed, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(sigHash(blake256.New(), m), pub)
}

// SignMessage creates a signature for the message m and writes the signature
// into the message.
func SignMessage(m mnwire.Signed, priv *secp256k1.PrivateKey) error {
	dst := m.Sig()
	if len(dst) != schnorr.SignatureSize {
		return ErrSignatureLength
	}
	sig, err := Sign(m, priv)
	if err != nil {
		return err
	}
	copy(dst, sig)
	return nil
}

// VerifyMessage verifies the signature carried by m against pub.
func VerifyMessage(pub []byte, m mnwire.Signed) bool {
	return Verify(pub, m.Sig(), m)
}

// ParsePrivateKeyHex parses a hex encoded 32 byte secp256k1 private key.
func ParsePrivateKeyHex(s string) (*secp256k1.PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("malformed private key: %w", err)
	}
	if len(b) != secp256k1.PrivKeyBytesLen {
		return nil, fmt.Errorf("malformed private key: got %d bytes, "+
			"want %d", len(b), secp256k1.PrivKeyBytesLen)
	}
	return secp256k1.PrivKeyFromBytes(b), nil
}

// ParsePubKeyHex parses a hex encoded serialized secp256k1 public key.
func ParsePubKeyHex(s string) (*secp256k1.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("malformed public key: %w", err)
	}
	return secp256k1.ParsePubKey(b)
}

// PubKeyArray returns the compressed serialization of pub as a fixed size
// array suitable for message fields.
func PubKeyArray(pub *secp256k1.PublicKey) [mnwire.PubKeyLen]byte {
	var a [mnwire.PubKeyLen]byte
	copy(a[:], pub.SerializeCompressed())
	return a
}
