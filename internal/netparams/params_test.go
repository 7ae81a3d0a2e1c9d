// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// TestParams ensures the parameters of every network are consistent.
func TestParams(t *testing.T) {
	tests := []struct {
		params      *Params
		wantPrivKey bool
	}{
		{params: &MainNetParams},
		{params: &TestNet3Params},
		{params: &SimNetParams, wantPrivKey: true},
		{params: &RegNetParams, wantPrivKey: true},
	}

	seenNets := make(map[string]struct{})
	for _, test := range tests {
		p := test.params
		if _, ok := seenNets[p.Name]; ok {
			t.Errorf("%s: duplicate network name", p.Name)
		}
		seenNets[p.Name] = struct{}{}

		pubBytes, err := hex.DecodeString(p.PaymentAuthorityPubKey)
		if err != nil {
			t.Errorf("%s: malformed authority key: %v", p.Name, err)
			continue
		}
		pub, err := secp256k1.ParsePubKey(pubBytes)
		if err != nil {
			t.Errorf("%s: invalid authority key: %v", p.Name, err)
			continue
		}

		if (p.PaymentAuthorityPrivKey != "") != test.wantPrivKey {
			t.Errorf("%s: unexpected published private key", p.Name)
		}
		if p.PaymentAuthorityPrivKey != "" {
			privBytes, err := hex.DecodeString(p.PaymentAuthorityPrivKey)
			if err != nil {
				t.Errorf("%s: malformed private key: %v", p.Name, err)
				continue
			}
			priv := secp256k1.PrivKeyFromBytes(privBytes)
			if !bytes.Equal(priv.PubKey().SerializeCompressed(),
				pub.SerializeCompressed()) {

				t.Errorf("%s: private key does not match the authority key",
					p.Name)
			}
		}

		if p.VoteWindowAhead < p.PaymentLookahead {
			t.Errorf("%s: elected winners fall outside the vote window",
				p.Name)
		}
		if p.MinCollateralConfs <= 0 || p.MixingQuorum < 2 {
			t.Errorf("%s: invalid collateral confirmations %d or quorum %d",
				p.Name, p.MinCollateralConfs, p.MixingQuorum)
		}
		if p.RemovalWindow <= p.ExpirationWindow {
			t.Errorf("%s: masternodes removed before they expire", p.Name)
		}
	}
}
