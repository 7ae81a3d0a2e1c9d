// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package activemn manages the masternode run by the local node.
//
// The manager waits for the ledger to sync, checks that the configured
// collateral is usable and that the external address accepts connections,
// announces the masternode, and then keeps it alive with periodic pings.  A
// stop ping is sent when the node shuts down.
package activemn

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/txscript/v4/stdaddr"
	"github.com/decred/dcrd/wire"
	"github.com/decred/go-socks/socks"
	"github.com/mnsuite/mnd/internal/masternode"
	"github.com/mnsuite/mnd/internal/mnauth"
	"github.com/mnsuite/mnd/internal/mnwire"
	"github.com/mnsuite/mnd/internal/netparams"
)

// portCheckTimeout bounds the reachability dial of the external address.
const portCheckTimeout = 10 * time.Second

// Chain provides the ledger state the manager checks the collateral
// against.
type Chain interface {
	IsCurrent() bool
	GetTransaction(hash chainhash.Hash) (*wire.MsgTx, error)
	IsTransactionUnspent(op wire.OutPoint) bool
	GetConfirmationDepth(op wire.OutPoint) int64
}

// Registry is the masternode registry the local masternode is announced to.
type Registry interface {
	Find(op wire.OutPoint) (masternode.Record, bool)
	RegisterOrUpdate(msg *mnwire.MsgMNAnnounce) (*masternode.Record, bool, error)
	RecordPing(msg *mnwire.MsgMNPing) (bool, error)
}

// Relayer relays messages of the local masternode to the network.
type Relayer interface {
	RelayMessage(msg mnwire.Message)
}

// Config is the configuration struct for the manager.
type Config struct {
	Params   *netparams.Params
	Chain    Chain
	Registry Registry
	Relayer  Relayer

	// CollateralOutPoint is the output holding the collateral and
	// CollateralPubKey the key it pays to.
	CollateralOutPoint wire.OutPoint
	CollateralPubKey   *secp256k1.PublicKey

	// OperatorKey signs the announcement and pings.
	OperatorKey *secp256k1.PrivateKey

	// ExternalAddr is the host:port other nodes connect to.
	ExternalAddr string

	// Proxy, ProxyUser and ProxyPass route the reachability check
	// through a SOCKS5 proxy when Proxy is set.
	Proxy     string
	ProxyUser string
	ProxyPass string

	// Dial overrides the reachability dial.  It defaults to a direct or
	// proxied TCP dial depending on Proxy.
	Dial func(network, addr string) (net.Conn, error)

	// Now returns the current time.  It defaults to time.Now.
	Now func() time.Time
}

// Manager drives the status of the local masternode.  It is safe for
// concurrent access.
type Manager struct {
	cfg Config

	mtx      sync.Mutex
	status   masternode.Status
	message  string
	started  bool
	lastPing time.Time
}

// New returns a manager for the masternode described by cfg.
func New(cfg *Config) *Manager {
	c := *cfg
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Dial == nil {
		if c.Proxy != "" {
			proxy := &socks.Proxy{
				Addr:     c.Proxy,
				Username: c.ProxyUser,
				Password: c.ProxyPass,
			}
			c.Dial = proxy.Dial
		} else {
			d := net.Dialer{Timeout: portCheckTimeout}
			c.Dial = d.Dial
		}
	}
	return &Manager{cfg: c, status: masternode.StatusUnprocessed}
}

// setStatusLocked records status along with a human-readable explanation.
//
// This function MUST be called with the manager mutex held (for writes).
func (m *Manager) setStatusLocked(status masternode.Status, message string) {
	if m.status != status {
		log.Infof("Local masternode status %v -> %v: %s", m.status, status,
			message)
	}
	m.status = status
	m.message = message
}

// checkCollateral returns the status of the collateral output along with an
// explanation when it is not usable.
func (m *Manager) checkCollateral() (masternode.Status, string) {
	params := m.cfg.Params
	op := m.cfg.CollateralOutPoint
	tx, err := m.cfg.Chain.GetTransaction(op.Hash)
	if err != nil || op.Index >= uint32(len(tx.TxOut)) {
		return masternode.StatusNotCapable, fmt.Sprintf("collateral %v "+
			"not found", op)
	}
	out := tx.TxOut[op.Index]
	if out.Value != int64(params.CollateralAmount) {
		return masternode.StatusNotCapable, fmt.Sprintf("collateral %v "+
			"holds %d atoms, need %d", op, out.Value,
			int64(params.CollateralAmount))
	}
	addr, err := stdaddr.NewAddressPubKeyHashEcdsaSecp256k1V0(
		stdaddr.Hash160(m.cfg.CollateralPubKey.SerializeCompressed()),
		params.Params)
	if err != nil {
		return masternode.StatusNotCapable, err.Error()
	}
	_, script := addr.PaymentScript()
	if string(script) != string(out.PkScript) {
		return masternode.StatusNotCapable, fmt.Sprintf("collateral %v "+
			"does not pay the collateral key", op)
	}
	if !m.cfg.Chain.IsTransactionUnspent(op) {
		return masternode.StatusNotCapable, fmt.Sprintf("collateral %v "+
			"is spent", op)
	}
	if depth := m.cfg.Chain.GetConfirmationDepth(op); depth < params.MinCollateralConfs {
		return masternode.StatusInputTooNew, fmt.Sprintf("collateral %v "+
			"has %d of %d confirmations", op, depth, params.MinCollateralConfs)
	}
	return masternode.StatusCapable, ""
}

// checkPort dials the external address.
func (m *Manager) checkPort() error {
	conn, err := m.cfg.Dial("tcp", m.cfg.ExternalAddr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// announce signs, registers and relays the announcement of the local
// masternode.
//
// This function MUST be called with the manager mutex held (for writes).
func (m *Manager) announceLocked(now time.Time) error {
	msg := &mnwire.MsgMNAnnounce{
		CollateralOutPoint: m.cfg.CollateralOutPoint,
		Addr:               m.cfg.ExternalAddr,
		CollateralPubKey:   mnauth.PubKeyArray(m.cfg.CollateralPubKey),
		OperatorPubKey:     mnauth.PubKeyArray(m.cfg.OperatorKey.PubKey()),
		SigTime:            now.Unix(),
		ProtocolVersion:    mnwire.ProtocolVersion,
	}
	if err := mnauth.SignMessage(msg, m.cfg.OperatorKey); err != nil {
		return err
	}
	if _, _, err := m.cfg.Registry.RegisterOrUpdate(msg); err != nil {
		return err
	}
	m.cfg.Relayer.RelayMessage(msg)
	return nil
}

// pingLocked signs, records and relays a ping of the local masternode.
//
// This function MUST be called with the manager mutex held (for writes).
func (m *Manager) pingLocked(now time.Time, stop bool) error {
	msg := &mnwire.MsgMNPing{
		CollateralOutPoint: m.cfg.CollateralOutPoint,
		SigTime:            now.Unix(),
		Stop:               stop,
	}
	if err := mnauth.SignMessage(msg, m.cfg.OperatorKey); err != nil {
		return err
	}
	if _, err := m.cfg.Registry.RecordPing(msg); err != nil {
		return err
	}
	m.cfg.Relayer.RelayMessage(msg)
	m.lastPing = now
	return nil
}

// remotelyStarted returns the record of the local collateral when the
// registry holds one announced with the local operator key by another node.
func (m *Manager) remotelyStarted() (masternode.Record, bool) {
	rec, ok := m.cfg.Registry.Find(m.cfg.CollateralOutPoint)
	if !ok || rec.Status == masternode.StatusStopped || rec.StopRequested {
		return masternode.Record{}, false
	}
	if rec.OperatorPubKey != mnauth.PubKeyArray(m.cfg.OperatorKey.PubKey()) {
		return masternode.Record{}, false
	}
	return rec, true
}

// lostLocked returns whether the registry dropped, stopped or expired the
// record of a running local masternode.
//
// This function MUST be called with the manager mutex held.
func (m *Manager) lostLocked() bool {
	rec, ok := m.cfg.Registry.Find(m.cfg.CollateralOutPoint)
	if !ok {
		return true
	}
	return rec.Status == masternode.StatusStopped ||
		rec.Status == masternode.StatusNotCapable
}

// Manage advances the local masternode one step.  It is called
// periodically.  Until the masternode runs it checks the sync state, the
// collateral and the external address and announces the masternode once all
// pass.  A running masternode is pinged every ping interval and announced
// again when the registry no longer holds it as enabled.
func (m *Manager) Manage() {
	now := m.cfg.Now()

	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.started && m.lostLocked() {
		log.Infof("Local masternode %v is no longer enabled in the "+
			"registry, announcing it again", m.cfg.CollateralOutPoint)
		m.started = false
	}
	if m.started {
		if now.Sub(m.lastPing) < m.cfg.Params.PingInterval {
			return
		}
		err := m.pingLocked(now, false)
		if err == nil {
			return
		}
		if !errors.Is(err, masternode.ErrUnknownMasternode) {
			log.Warnf("Unable to ping local masternode: %v", err)
			return
		}
		log.Infof("Local masternode %v is unknown to the registry, "+
			"announcing it again", m.cfg.CollateralOutPoint)
		m.started = false
	}

	if !m.cfg.Chain.IsCurrent() {
		m.setStatusLocked(masternode.StatusSyncInProgress, "ledger is "+
			"syncing")
		return
	}
	if status, message := m.checkCollateral(); status != masternode.StatusCapable {
		m.setStatusLocked(status, message)
		return
	}
	if err := m.checkPort(); err != nil {
		m.setStatusLocked(masternode.StatusPortNotOpen, fmt.Sprintf("%s "+
			"is not reachable: %v", m.cfg.ExternalAddr, err))
		return
	}
	m.setStatusLocked(masternode.StatusPortOpen, m.cfg.ExternalAddr)

	if rec, ok := m.remotelyStarted(); ok {
		m.started = true
		m.lastPing = rec.LastPing
		m.setStatusLocked(masternode.StatusRemotelyEnabled, "started by "+
			"the collateral owner")
		return
	}
	if err := m.announceLocked(now); err != nil {
		m.setStatusLocked(masternode.StatusNotCapable, fmt.Sprintf("unable "+
			"to announce: %v", err))
		return
	}
	m.started = true
	m.lastPing = now
	m.setStatusLocked(masternode.StatusCapable, "announced")
}

// Stop sends a stop ping for a running masternode.
func (m *Manager) Stop() {
	now := m.cfg.Now()

	m.mtx.Lock()
	defer m.mtx.Unlock()

	if !m.started {
		return
	}
	if err := m.pingLocked(now, true); err != nil {
		log.Warnf("Unable to send stop ping: %v", err)
		return
	}
	m.started = false
	m.setStatusLocked(masternode.StatusStopped, "stopped")
}

// Status returns the status of the local masternode along with an
// explanation.
func (m *Manager) Status() (masternode.Status, string) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.status, m.message
}
