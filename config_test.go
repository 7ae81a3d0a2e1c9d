// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/mnsuite/mnd/internal/netparams"
)

// withArgs runs fn with the command line arguments set to args.
func withArgs(args []string, fn func()) {
	old := os.Args
	os.Args = append([]string{"mnd"}, args...)
	defer func() { os.Args = old }()
	fn()
}

func hexKey(priv *secp256k1.PrivateKey) string {
	return hex.EncodeToString(priv.Serialize())
}

func hexPubKey(pub *secp256k1.PublicKey) string {
	return hex.EncodeToString(pub.SerializeCompressed())
}

// TestLoadConfig ensures the network selection, the derived directories and
// the validation of the masternode options.
func TestLoadConfig(t *testing.T) {
	appData := t.TempDir()
	operatorKey := secp256k1.PrivKeyFromBytes([]byte{31: 1})
	collateralKey := secp256k1.PrivKeyFromBytes([]byte{31: 2}).PubKey()
	const txid = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"
	mnArgs := []string{
		"--masternode",
		"--operatorkey=" + hexKey(operatorKey),
		"--collateral=" + txid + ":1",
		"--collateralkey=" + hexPubKey(collateralKey),
		"--externalip=127.0.0.1:19560",
	}

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(t *testing.T, cfg *config)
	}{{
		name: "defaults",
		check: func(t *testing.T, cfg *config) {
			if cfg.params.Name != netparams.MainNetParams.Name {
				t.Errorf("unexpected network %s", cfg.params.Name)
			}
			want := filepath.Join(appData, defaultDataDirname,
				netparams.MainNetParams.Name)
			if cfg.DataDir != want {
				t.Errorf("unexpected data dir %s, want %s", cfg.DataDir, want)
			}
			if cfg.logSizeKiB != 10*1024 {
				t.Errorf("unexpected log size %d", cfg.logSizeKiB)
			}
		},
	}, {
		name: "simnet quorum",
		args: []string{"--simnet", "--mixingquorum=5"},
		check: func(t *testing.T, cfg *config) {
			if cfg.params.Name != netparams.SimNetParams.Name {
				t.Errorf("unexpected network %s", cfg.params.Name)
			}
			if cfg.params.MixingQuorum != 5 {
				t.Errorf("unexpected quorum %d", cfg.params.MixingQuorum)
			}
			if netparams.SimNetParams.MixingQuorum == 5 {
				t.Error("network parameters modified")
			}
		},
	}, {
		name:    "two networks",
		args:    []string{"--simnet", "--regnet"},
		wantErr: true,
	}, {
		name:    "quorum too small",
		args:    []string{"--mixingquorum=1"},
		wantErr: true,
	}, {
		name:    "mixing without masternode",
		args:    []string{"--mixing"},
		wantErr: true,
	}, {
		name:    "masternode without keys",
		args:    []string{"--masternode"},
		wantErr: true,
	}, {
		name: "masternode",
		args: append([]string{"--mixing"}, mnArgs...),
		check: func(t *testing.T, cfg *config) {
			if cfg.collateral.Index != 1 ||
				cfg.collateral.Hash.String() != txid {
				t.Errorf("unexpected collateral %v", cfg.collateral)
			}
			if !cfg.operatorKey.PubKey().IsEqual(operatorKey.PubKey()) {
				t.Error("unexpected operator key")
			}
			if !cfg.collateralKey.IsEqual(collateralKey) {
				t.Error("unexpected collateral key")
			}
		},
	}, {
		name:    "bad external address",
		args:    append(mnArgs[:4:4], "--externalip=127.0.0.1"),
		wantErr: true,
	}, {
		name:    "sim blocks on mainnet",
		args:    []string{"--simblockinterval=1s"},
		wantErr: true,
	}, {
		name:    "short ban duration",
		args:    []string{"--banduration=10ms"},
		wantErr: true,
	}, {
		name:    "remote profile address",
		args:    []string{"--profile=10.0.0.1:6060"},
		wantErr: true,
	}, {
		name: "remote profile address allowed",
		args: []string{"--profile=10.0.0.1:6060", "--profileallownonloopback"},
	}, {
		name:    "profile port out of range",
		args:    []string{"--profile=80"},
		wantErr: true,
	}, {
		name: "whitelists",
		args: []string{"--whitelist=10.0.0.0/8", "--whitelist=::1"},
		check: func(t *testing.T, cfg *config) {
			if len(cfg.whitelists) != 2 {
				t.Errorf("unexpected whitelists %v", cfg.whitelists)
			}
		},
	}}

	for _, test := range tests {
		args := append([]string{"--appdata=" + appData, "--nofilelogging"},
			test.args...)
		withArgs(args, func() {
			cfg, _, err := loadConfig("mnd")
			if test.wantErr {
				if err == nil {
					t.Errorf("%s: expected an error", test.name)
				}
				return
			}
			if err != nil {
				t.Errorf("%s: unexpected error: %v", test.name, err)
				return
			}
			if test.check != nil {
				test.check(t, cfg)
			}
		})
	}
}

// TestParseLogSize ensures log sizes are converted to KiB.
func TestParseLogSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "10M", want: 10 * 1024},
		{in: "512k", want: 512},
		{in: "1G", want: 1024 * 1024},
		{in: "3", want: 3 * 1024},
		{in: "", wantErr: true},
		{in: "0M", wantErr: true},
		{in: "-1K", wantErr: true},
		{in: "tenM", wantErr: true},
	}
	for _, test := range tests {
		got, err := parseLogSize(test.in)
		if (err != nil) != test.wantErr {
			t.Errorf("%q: unexpected error: %v", test.in, err)
			continue
		}
		if got != test.want {
			t.Errorf("%q: got %d, want %d", test.in, got, test.want)
		}
	}
}

// TestParseOutPoint ensures outpoints are parsed from txid:index form.
func TestParseOutPoint(t *testing.T) {
	const txid = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"
	tests := []struct {
		in        string
		wantIndex uint32
		wantErr   bool
	}{
		{in: txid + ":0", wantIndex: 0},
		{in: txid + ":4294967295", wantIndex: 4294967295},
		{in: txid, wantErr: true},
		{in: txid + ":4294967296", wantErr: true},
		{in: txid + ":-1", wantErr: true},
		{in: "zz:0", wantErr: true},
	}
	for _, test := range tests {
		op, err := parseOutPoint(test.in)
		if (err != nil) != test.wantErr {
			t.Errorf("%q: unexpected error: %v", test.in, err)
			continue
		}
		if test.wantErr {
			continue
		}
		if op.Hash.String() != txid || op.Index != test.wantIndex {
			t.Errorf("%q: unexpected outpoint %v", test.in, op)
		}
	}
}

// TestParseWhitelists ensures single addresses become host networks.
func TestParseWhitelists(t *testing.T) {
	nets, err := parseWhitelists([]string{"192.168.1.0/24", "10.0.0.1", "::1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []struct {
		network string
		ones    int
	}{
		{"192.168.1.0/24", 24},
		{"10.0.0.1/32", 32},
		{"::1/128", 128},
	}
	for i, w := range want {
		ones, _ := nets[i].Mask.Size()
		if nets[i].String() != w.network || ones != w.ones {
			t.Errorf("%d: got %v, want %s", i, &nets[i], w.network)
		}
	}

	if _, err := parseWhitelists([]string{"not-an-ip"}); err == nil {
		t.Fatal("invalid whitelist accepted")
	}
}

// TestParseAndSetDebugLevels ensures debug level strings are validated.
func TestParseAndSetDebugLevels(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{in: "debug"},
		{in: "SRVR=trace,MNRG=debug"},
		{in: "bogus", wantErr: true},
		{in: "SRVR", wantErr: true},
		{in: "SRVR=trace,MNRG", wantErr: true},
		{in: "NOPE=debug", wantErr: true},
		{in: "SRVR=loud", wantErr: true},
	}
	defer setLogLevels(defaultLogLevel)
	for _, test := range tests {
		err := parseAndSetDebugLevels(test.in)
		if (err != nil) != test.wantErr {
			t.Errorf("%q: unexpected error: %v", test.in, err)
		}
	}
}
