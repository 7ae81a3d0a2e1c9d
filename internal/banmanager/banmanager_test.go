// Copyright (c) 2021-2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package banmanager

import (
	"net"
	"testing"
	"time"
)

// TestBanPeer tests ban manager peer banning functionality.
func TestBanPeer(t *testing.T) {
	now := time.Unix(1700000000, 0)
	var disconnected []string
	bcfg := &Config{
		DisableBanning: false,
		BanThreshold:   100,
		BanDuration:    time.Minute,
		MaxPeers:       10,
		WhiteList:      []net.IPNet{},
		Disconnect:     func(id string) { disconnected = append(disconnected, id) },
		Now:            func() time.Time { return now },
	}

	bmgr := NewBanManager(bcfg)

	// Add peer A, B and C.
	peers := []struct{ id, addr string }{
		{"a", "10.0.0.1:9108"},
		{"b", "10.0.0.2:9108"},
		{"c", "10.0.0.3:9108"},
	}
	for _, p := range peers {
		if err := bmgr.AddPeer(p.id, p.addr, false); err != nil {
			t.Fatalf("unexpected err - %v", err)
		}
	}

	if len(bmgr.peers) != 3 {
		t.Fatalf("expected 3 tracked peers, got %d", len(bmgr.peers))
	}

	// Remove disconnected peer C.
	bmgr.RemovePeer("c")

	bmgr.mtx.Lock()
	if len(bmgr.peers) != 2 {
		bmgr.mtx.Unlock()
		t.Fatalf("expected 2 tracked peers, got %d", len(bmgr.peers))
	}
	bmgr.mtx.Unlock()

	// Ensure the ban manager updates the correct peer's ban score.
	if got := bmgr.BanScore("b"); got != 0 {
		t.Fatalf("expected an unchanged ban score for peer B, got %d", got)
	}

	expectedABanScore := uint32(50)
	if bmgr.AddBanScore("a", expectedABanScore, 0, "testing") {
		t.Fatal("peer A banned below the threshold")
	}
	if got := bmgr.BanScore("a"); got != expectedABanScore {
		t.Fatalf("expected a ban score of %d for peer A, got %d",
			expectedABanScore, got)
	}

	// Ban peer A by exceeding the ban threshold.
	if !bmgr.AddBanScore("a", 120, 0, "testing") {
		t.Fatal("peer A not banned above the threshold")
	}

	bmgr.mtx.Lock()
	peerA := bmgr.lookupPeer("a")
	bmgr.mtx.Unlock()
	if peerA != nil {
		t.Fatal("peer A still exists in the manager")
	}

	// Outrightly ban peer B.
	bmgr.BanPeer("b")

	bmgr.mtx.Lock()
	if len(bmgr.peers) != 0 {
		bmgr.mtx.Unlock()
		t.Fatalf("expected no tracked peers, got %d", len(bmgr.peers))
	}

	// Ensure there are two banned peers being tracked by the manager.
	if len(bmgr.banned) != 2 {
		bmgr.mtx.Unlock()
		t.Fatalf("expected two tracked banned peers, got %d", len(bmgr.banned))
	}
	bmgr.mtx.Unlock()

	if len(disconnected) != 2 || disconnected[0] != "a" || disconnected[1] != "b" {
		t.Fatalf("unexpected disconnections %v", disconnected)
	}
	if !bmgr.IsBanned("10.0.0.1:9108") || bmgr.IsBanned("10.0.0.3:9108") {
		t.Fatal("unexpected banned hosts")
	}

	// Ensure re-adding a banned peer fails if it is before the ban period
	// ends, even with a new id and port.
	if err := bmgr.AddPeer("a2", "10.0.0.1:5555", true); err == nil {
		t.Fatal("expected a ban error")
	}
	if len(disconnected) != 3 || disconnected[2] != "a2" {
		t.Fatalf("banned peer not disconnected: %v", disconnected)
	}

	// Ensure re-adding a banned peer succeeds after the ban period.
	now = now.Add(time.Minute)
	if err := bmgr.AddPeer("a2", "10.0.0.1:5555", true); err != nil {
		t.Fatalf("unexpected err - %v", err)
	}
	if bmgr.IsBanned("10.0.0.1:9108") {
		t.Fatal("ban did not expire")
	}

	bmgr.mtx.Lock()
	if len(bmgr.peers) != 1 {
		bmgr.mtx.Unlock()
		t.Fatalf("expected a tracked peer, got %d", len(bmgr.peers))
	}
	bmgr.mtx.Unlock()
}

// TestPeerWhitelist ensures whitelisted peers are never banned.
func TestPeerWhitelist(t *testing.T) {
	ip := net.ParseIP("10.0.0.1")
	ipnet := net.IPNet{
		IP:   ip,
		Mask: net.CIDRMask(32, 32),
	}
	whitelist := []net.IPNet{ipnet}

	bcfg := &Config{
		DisableBanning: false,
		BanThreshold:   100,
		MaxPeers:       10,
		WhiteList:      whitelist,
	}

	bmgr := NewBanManager(bcfg)
	bmgr.AddPeer("a", "10.0.0.1:9108", true)
	bmgr.AddPeer("b", "10.0.0.2:9108", true)

	// Ensure a peer not whitelisted is not marked as so.
	if bmgr.IsPeerWhitelisted("b") {
		t.Errorf("Expected peer B not to be whitelisted")
	}

	// Ensure a peer whitelisted to be marked as so.
	if !bmgr.IsPeerWhitelisted("a") {
		t.Errorf("Expected peer A to be whitelisted")
	}

	// Ensure an unknown peer is not whitelisted.
	if bmgr.IsPeerWhitelisted("c") {
		t.Errorf("Expected an unknown peer to not be whitelisted")
	}

	if bmgr.AddBanScore("a", 200, 0, "testing") {
		t.Errorf("Expected whitelisted peer A to not be banned")
	}
	if got := bmgr.BanScore("a"); got != 0 {
		t.Errorf("Expected no ban score for whitelisted peer A, got %d", got)
	}
}

// TestDisableBanning ensures no score is kept when banning is disabled.
func TestDisableBanning(t *testing.T) {
	bmgr := NewBanManager(&Config{DisableBanning: true, BanThreshold: 100})
	if err := bmgr.AddPeer("a", "10.0.0.1:9108", false); err != nil {
		t.Fatalf("unexpected err - %v", err)
	}
	if bmgr.AddBanScore("a", 200, 0, "testing") {
		t.Fatal("peer banned with banning disabled")
	}
	bmgr.BanPeer("a")
	if bmgr.IsBanned("10.0.0.1:9108") || bmgr.BanScore("a") != 0 {
		t.Fatal("peer banned with banning disabled")
	}
}
