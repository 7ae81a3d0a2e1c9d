// Copyright (c) 2021-2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package banmanager tracks the misbehavior of transport peers and bans the
// hosts of peers whose score exceeds the ban threshold.
package banmanager

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/decred/dcrd/connmgr/v3"
)

// Config is the configuration struct for the ban manager.
type Config struct {
	// DisableBanning represents the status of disabling banning of
	// misbehaving peers.
	DisableBanning bool

	// BanThreshold represents the maximum allowed ban score before
	// misbehaving peers are disconnecting and banned.
	BanThreshold uint32

	// BanDuration is the duration for which misbehaving peers stay banned for.
	BanDuration time.Duration

	// MaxPeers indicates the maximum number of peers expected to be
	// tracked.
	MaxPeers int

	// Whitelist represents the whitelisted IPs of the server.
	WhiteList []net.IPNet

	// Disconnect is invoked with the id of a peer that was banned.  It is
	// called without the ban manager mutex held.
	Disconnect func(id string)

	// Now returns the current time.  It defaults to time.Now.
	Now func() time.Time
}

// banMgrPeer houses the state maintained by the ban manager for a peer.
type banMgrPeer struct {
	id            string
	host          string
	inbound       bool
	isWhitelisted bool
	banScore      connmgr.DynamicBanScore
}

// BanManager represents a peer ban score tracking manager.
type BanManager struct {
	cfg    Config
	peers  map[string]*banMgrPeer
	banned map[string]time.Time
	mtx    sync.Mutex
}

// NewBanManager initializes a new peer banning manager.
func NewBanManager(cfg *Config) *BanManager {
	c := *cfg
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Disconnect == nil {
		c.Disconnect = func(string) {}
	}
	return &BanManager{
		cfg:    c,
		peers:  make(map[string]*banMgrPeer, cfg.MaxPeers),
		banned: make(map[string]time.Time, cfg.MaxPeers),
	}
}

// directionString is a helper function that returns a string that represents
// the direction of a connection (inbound or outbound).
func directionString(inbound bool) string {
	if inbound {
		return "inbound"
	}
	return "outbound"
}

// lookupPeer returns the ban manager state of the peer with the given id.
// In the event the mapping does not exist, a warning is logged and nil is
// returned.
//
// This function MUST be called with the ban manager mutex locked (for reads).
func (bm *BanManager) lookupPeer(id string) *banMgrPeer {
	bmp, ok := bm.peers[id]
	if !ok {
		log.Warnf("Attempt to lookup unknown peer %s", id)
		return nil
	}

	return bmp
}

// isHostWhitelisted checks if the provided host is whitelisted per the
// configured whitelist.
func (bm *BanManager) isHostWhitelisted(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		log.Errorf("Unable to parse IP '%s'", host)
		return false
	}

	for _, ipnet := range bm.cfg.WhiteList {
		if ipnet.Contains(ip) {
			return true
		}
	}

	return false
}

// IsPeerWhitelisted checks if the provided peer is whitelisted.
func (bm *BanManager) IsPeerWhitelisted(id string) bool {
	bm.mtx.Lock()
	defer bm.mtx.Unlock()
	bmp := bm.lookupPeer(id)
	if bmp == nil {
		return false
	}

	return bmp.isWhitelisted
}

// IsBanned returns whether the host of addr is currently banned.
func (bm *BanManager) IsBanned(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	bm.mtx.Lock()
	banEnd, ok := bm.banned[host]
	bm.mtx.Unlock()
	return ok && bm.cfg.Now().Before(banEnd)
}

// AddPeer adds the peer with the given id connected from addr to the ban
// manager.  An error is returned, and the peer is disconnected, when its host
// is banned.
func (bm *BanManager) AddPeer(id, addr string, inbound bool) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		bm.cfg.Disconnect(id)
		return fmt.Errorf("cannot split hostport %w", err)
	}

	now := bm.cfg.Now()
	bm.mtx.Lock()
	banEnd, ok := bm.banned[host]
	if ok {
		if now.Before(banEnd) {
			bm.mtx.Unlock()
			bm.cfg.Disconnect(id)
			return fmt.Errorf("peer %s is banned for another %v - disconnecting",
				host, banEnd.Sub(now))
		}

		log.Infof("Peer %s is no longer banned", host)
		delete(bm.banned, host)
	}

	bm.peers[id] = &banMgrPeer{
		id:            id,
		host:          host,
		inbound:       inbound,
		isWhitelisted: bm.isHostWhitelisted(host),
	}
	bm.mtx.Unlock()

	return nil
}

// RemovePeer discards the provided peer from the ban manager.
func (bm *BanManager) RemovePeer(id string) {
	bm.mtx.Lock()
	delete(bm.peers, id)
	bm.mtx.Unlock()
}

// BanPeer bans the host of the provided peer and disconnects it.
func (bm *BanManager) BanPeer(id string) {
	// Return immediately if banning is disabled.
	if bm.cfg.DisableBanning {
		return
	}

	bm.mtx.Lock()
	bmp := bm.lookupPeer(id)
	if bmp == nil || bmp.isWhitelisted {
		bm.mtx.Unlock()
		return
	}

	log.Infof("Banned peer %s (%s) for %v", bmp.host,
		directionString(bmp.inbound), bm.cfg.BanDuration)
	bm.banned[bmp.host] = bm.cfg.Now().Add(bm.cfg.BanDuration)
	delete(bm.peers, id)
	bm.mtx.Unlock()

	bm.cfg.Disconnect(id)
}

// AddBanScore increases the persistent and decaying ban scores of the
// provided peer by the values passed as parameters. If the resulting score
// exceeds half of the ban threshold, a warning is logged including the reason
// provided. Further, if the score is above the ban threshold, the peer will
// be banned.
func (bm *BanManager) AddBanScore(id string, persistent, transient uint32, reason string) bool {
	// No warning is logged and no score is calculated if banning is disabled.
	if bm.cfg.DisableBanning {
		return false
	}

	bm.mtx.Lock()
	bmp := bm.lookupPeer(id)
	bm.mtx.Unlock()
	if bmp == nil {
		return false
	}

	if bmp.isWhitelisted {
		log.Debugf("Misbehaving whitelisted peer %s: %s", id, reason)
		return false
	}

	banScore := bmp.banScore.Int()
	warnThreshold := bm.cfg.BanThreshold >> 1
	if transient == 0 && persistent == 0 {
		// The score is not being increased, but a warning message is still
		// logged if the score is above the warn threshold.
		if banScore > warnThreshold {
			log.Warnf("Misbehaving peer %s: %s -- ban score is %d, "+
				"it was not increased this time", id, reason, banScore)
		}
		return false
	}

	banScore = bmp.banScore.Increase(persistent, transient)
	if banScore > warnThreshold {
		log.Warnf("Misbehaving peer %s: %s -- ban score increased to %d",
			id, reason, banScore)
		if banScore > bm.cfg.BanThreshold {
			log.Warnf("Misbehaving peer %s -- banning and disconnecting", id)
			bm.BanPeer(id)
			return true
		}
	}

	return false
}

// BanScore returns the ban score of the provided peer.
func (bm *BanManager) BanScore(id string) uint32 {
	bm.mtx.Lock()
	bmp := bm.lookupPeer(id)
	bm.mtx.Unlock()
	if bmp == nil {
		return 0
	}
	return bmp.banScore.Int()
}
