// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/container/apbf"
	"github.com/decred/dcrd/container/lru"
	"github.com/decred/dcrd/crypto/rand"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/wire"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/mnsuite/mnd/internal/activemn"
	"github.com/mnsuite/mnd/internal/banmanager"
	"github.com/mnsuite/mnd/internal/denom"
	"github.com/mnsuite/mnd/internal/masternode"
	"github.com/mnsuite/mnd/internal/mixclient"
	"github.com/mnsuite/mnd/internal/mixpool"
	"github.com/mnsuite/mnd/internal/mixqueue"
	"github.com/mnsuite/mnd/internal/mncache"
	"github.com/mnsuite/mnd/internal/mnpayments"
	"github.com/mnsuite/mnd/internal/mnwire"
	"github.com/mnsuite/mnd/internal/netparams"
	"github.com/mnsuite/mnd/internal/progresslog"
	"golang.org/x/sync/errgroup"
)

const (
	// maxRejectedMessages is the maximum number of relayed messages that
	// were rejected as misbehavior to remember.
	maxRejectedMessages = 50000

	// rejectedMessagesFPRate is the false positive rate of the filter of
	// rejected messages.
	rejectedMessagesFPRate = 0.0000001

	// maxSeenMessages is the maximum number of processed relayed messages
	// to remember for relay deduplication.
	maxSeenMessages = 100000

	// mixingTickInterval is the interval the mixing session and client are
	// checked for timeouts at.
	mixingTickInterval = time.Second

	// manageInterval is the interval the local masternode is managed at.
	manageInterval = time.Minute

	// maxTrackedPeers is the number of peers the ban manager is sized for.
	maxTrackedPeers = defaultMaxPeers
)

// errNotMixing is returned for mixing messages a node that does not take
// part in mixing receives.
var errNotMixing = errors.New("node does not take part in mixing")

// Ledger is the view of the ledger and the local wallet coin locks the
// subsystems of the server operate on.
type Ledger interface {
	BestHeight() int64
	GetBlockHash(height int64) (chainhash.Hash, error)
	GetTransaction(hash chainhash.Hash) (*wire.MsgTx, error)
	IsTransactionUnspent(op wire.OutPoint) bool
	GetConfirmationDepth(op wire.OutPoint) int64
	SubmitTransaction(tx *wire.MsgTx) error
	IsCurrent() bool
	LockCoin(op wire.OutPoint)
	UnlockCoin(op wire.OutPoint)
}

// PeerNotifier delivers outbound messages to the transport.  Implementations
// must not block and must not call back into the server.
type PeerNotifier interface {
	// SendMessage sends msg to a single peer.
	SendMessage(peer string, msg mnwire.Message)

	// RelayMessage sends msg to every connected peer.
	RelayMessage(msg mnwire.Message)

	// DisconnectPeer disconnects a banned peer.
	DisconnectPeer(peer string)
}

// localMasternode describes the masternode run by the local node.
type localMasternode struct {
	OperatorKey        *secp256k1.PrivateKey
	CollateralOutPoint wire.OutPoint
	CollateralPubKey   *secp256k1.PublicKey
	ExternalAddr       string
	Proxy              string
	ProxyUser          string
	ProxyPass          string

	// Dial overrides the reachability dial of the external address.
	Dial func(network, addr string) (net.Conn, error)
}

// serverConfig is the configuration struct for the server.
type serverConfig struct {
	Params   *netparams.Params
	Ledger   Ledger
	Notifier PeerNotifier

	// Cache persists the registry and winner votes across restarts when
	// set.
	Cache *mncache.Cache

	// PaymentKey is the payment authority private key.  Only the node
	// holding it elects payment winners.
	PaymentKey *secp256k1.PrivateKey

	// Masternode is nil when the node does not run a masternode.  Mixing
	// enables coordinating mixing sessions as that masternode.
	Masternode *localMasternode
	Mixing     bool

	// Wallet enables taking part in mixing rounds as a participant.
	Wallet mixclient.Wallet

	DisableBanning bool
	BanThreshold   uint32
	BanDuration    time.Duration
	Whitelists     []net.IPNet

	// MineBlock, when set, is called every BlockInterval to extend the
	// process local ledger by a block.  It returns the new best height.
	MineBlock     func() int64
	BlockInterval time.Duration

	// Now returns the current time.  It defaults to time.Now.
	Now func() time.Time
}

// server dispatches the masternode protocol messages to the subsystems and
// runs their periodic maintenance.
type server struct {
	cfg      serverConfig
	registry *masternode.Registry
	payments *mnpayments.Scheduler
	queues   *mixqueue.Tracker
	banMgr   *banmanager.BanManager
	progress *progresslog.Logger

	// These are nil when the node does not run a masternode, coordinate
	// mixing, or take part in mixing respectively.
	activeMN *activemn.Manager
	pool     *mixpool.Pool
	client   *mixclient.Client

	// rejected holds the ids of relayed messages rejected as misbehavior
	// and seen the ids of relayed messages already processed.
	rejectedMtx sync.Mutex
	rejected    *apbf.Filter
	seen        *lru.Set[chainhash.Hash]

	checkTicker  ticker.Ticker
	mixingTicker ticker.Ticker
	manageTicker ticker.Ticker
	blockTicker  ticker.Ticker
}

// newServer returns a server along with its subsystems.  The registry and
// winner votes are restored from the cache when one is configured.
func newServer(cfg *serverConfig) (*server, error) {
	c := *cfg
	if c.Now == nil {
		c.Now = time.Now
	}
	params := c.Params

	s := &server{
		cfg:          c,
		rejected:     apbf.NewFilter(maxRejectedMessages, rejectedMessagesFPRate),
		seen:         lru.NewSet[chainhash.Hash](maxSeenMessages),
		checkTicker:  ticker.New(params.CheckInterval),
		mixingTicker: ticker.New(mixingTickInterval),
		manageTicker: ticker.New(manageInterval),
		progress:     progresslog.New("Connected", srvrLog),
	}
	if c.MineBlock != nil && c.BlockInterval > 0 {
		s.blockTicker = ticker.New(c.BlockInterval)
	}

	s.registry = masternode.New(&masternode.Config{
		Params: params,
		Chain:  c.Ledger,
		Now:    c.Now,
	})
	payments, err := mnpayments.New(&mnpayments.Config{
		Params:       params,
		Registry:     s.registry,
		Chain:        c.Ledger,
		AuthorityKey: c.PaymentKey,
	})
	if err != nil {
		return nil, err
	}
	s.payments = payments
	s.queues = mixqueue.NewTracker(&mixqueue.Config{
		Params:   params,
		Registry: s.registry,
		Now:      c.Now,
	})
	s.banMgr = banmanager.NewBanManager(&banmanager.Config{
		DisableBanning: c.DisableBanning,
		BanThreshold:   c.BanThreshold,
		BanDuration:    c.BanDuration,
		MaxPeers:       maxTrackedPeers,
		WhiteList:      c.Whitelists,
		Disconnect:     c.Notifier.DisconnectPeer,
		Now:            c.Now,
	})

	if mn := c.Masternode; mn != nil {
		s.activeMN = activemn.New(&activemn.Config{
			Params:             params,
			Chain:              c.Ledger,
			Registry:           s.registry,
			Relayer:            s,
			CollateralOutPoint: mn.CollateralOutPoint,
			CollateralPubKey:   mn.CollateralPubKey,
			OperatorKey:        mn.OperatorKey,
			ExternalAddr:       mn.ExternalAddr,
			Proxy:              mn.Proxy,
			ProxyUser:          mn.ProxyUser,
			ProxyPass:          mn.ProxyPass,
			Dial:               mn.Dial,
			Now:                c.Now,
		})
		if c.Mixing {
			s.pool = mixpool.New(&mixpool.Config{
				Params:             params,
				Chain:              c.Ledger,
				Locker:             c.Ledger,
				Notifier:           s,
				OperatorKey:        mn.OperatorKey,
				CollateralOutPoint: mn.CollateralOutPoint,
				Now:                c.Now,
			})
		}
	}
	if c.Wallet != nil {
		s.client = mixclient.New(&mixclient.Config{
			Params: params,
			Wallet: c.Wallet,
			Locker: c.Ledger,
			Sender: s,
			Now:    c.Now,
		})
	}

	if c.Cache != nil {
		s.restoreCache()
	}
	return s, nil
}

// restoreCache loads the registry and the winner votes from the cache.
// Restored masternodes are rechecked before they are trusted.
func (s *server) restoreCache() {
	snaps, err := s.cfg.Cache.LoadRegistry()
	if err != nil {
		srvrLog.Warnf("Unable to load the masternode cache: %v", err)
	} else {
		n := s.registry.Restore(snaps)
		srvrLog.Infof("Restored %d %s from the cache", n,
			pickNoun(n, "masternode", "masternodes"))
	}
	winners, err := s.cfg.Cache.LoadWinners()
	if err != nil {
		srvrLog.Warnf("Unable to load the payment votes cache: %v", err)
	} else {
		n := s.payments.Restore(winners)
		srvrLog.Infof("Restored %d payment %s from the cache", n,
			pickNoun(n, "vote", "votes"))
	}
	s.registry.CheckAll()
}

// saveCache writes the registry and the winner votes to the cache.
func (s *server) saveCache() {
	if s.cfg.Cache == nil {
		return
	}
	snaps := s.registry.Snapshot()
	if err := s.cfg.Cache.SaveRegistry(snaps); err != nil {
		srvrLog.Errorf("Unable to save the masternode cache: %v", err)
	}
	winners := s.payments.Winners()
	if err := s.cfg.Cache.SaveWinners(winners); err != nil {
		srvrLog.Errorf("Unable to save the payment votes cache: %v", err)
	}
	srvrLog.Infof("Saved %d %s and %d payment %s to the cache", len(snaps),
		pickNoun(len(snaps), "masternode", "masternodes"), len(winners),
		pickNoun(len(winners), "vote", "votes"))
}

// SendMessage sends msg to peer.  It implements the notifier interfaces of
// the mixing session and client.
func (s *server) SendMessage(peer string, msg mnwire.Message) {
	s.cfg.Notifier.SendMessage(peer, msg)
}

// RelayMessage marks msg as seen and relays it to every peer.
func (s *server) RelayMessage(msg mnwire.Message) {
	if id, err := mnwire.MessageID(msg); err == nil {
		s.seen.Put(id)
	}
	s.cfg.Notifier.RelayMessage(msg)
}

// isRelayed returns whether messages of kind are relayed through the
// network as opposed to exchanged between two peers.
func isRelayed(kind mnwire.Kind) bool {
	switch kind {
	case mnwire.KindMNAnnounce, mnwire.KindMNPing, mnwire.KindMNWinner,
		mnwire.KindMixQueue:
		return true
	}
	return false
}

// banScore returns the misbehavior score peers earn for a message of kind
// that failed with err.
func banScore(kind mnwire.Kind, err error) uint32 {
	switch kind {
	case mnwire.KindMNAnnounce, mnwire.KindMNPing, mnwire.KindMNListRequest:
		return masternode.BanScore(err)
	case mnwire.KindMNWinner:
		return mnpayments.BanScore(err)
	case mnwire.KindMixQueue:
		return mixqueue.BanScore(err)
	case mnwire.KindMixAccept, mnwire.KindMixEntry, mnwire.KindMixSignatures:
		return mixpool.BanScore(err)
	case mnwire.KindMixStatus, mnwire.KindMixFinalTx, mnwire.KindMixComplete:
		return mixclient.BanScore(err)
	}
	return 0
}

// AddPeer registers a connected peer with the ban manager.  Outbound peers
// are asked for their masternode list and payment votes.
func (s *server) AddPeer(id, addr string, inbound bool) error {
	if err := s.banMgr.AddPeer(id, addr, inbound); err != nil {
		return err
	}
	if !inbound {
		s.SendMessage(id, &mnwire.MsgMNListRequest{})
		s.SendMessage(id, &mnwire.MsgMNWinnerSync{})
	}
	return nil
}

// RemovePeer forgets a disconnected peer.  Its place in the mixing session
// is released.
func (s *server) RemovePeer(id string) {
	s.banMgr.RemovePeer(id)
	if s.pool != nil {
		s.pool.RemovePeer(id)
	}
}

// HandleMessage processes a message received from peer.  Relayed messages
// already processed are ignored, as are those previously rejected as
// misbehavior.  A failed message increases the ban score of peer according
// to the subsystem that rejected it.
func (s *server) HandleMessage(peer string, msg mnwire.Message) error {
	relayed := isRelayed(msg.Kind())
	var id chainhash.Hash
	if relayed {
		var err error
		id, err = mnwire.MessageID(msg)
		if err != nil {
			return err
		}
		if s.seen.Contains(id) {
			return nil
		}
		s.rejectedMtx.Lock()
		rejected := s.rejected.Contains(id[:])
		s.rejectedMtx.Unlock()
		if rejected {
			srvrLog.Tracef("Ignoring previously rejected %v from %s",
				msg.Kind(), peer)
			return nil
		}
	}
	srvrLog.Tracef("Received %v from %s: %v", msg.Kind(), peer,
		newLogClosure(func() string { return spew.Sdump(msg) }))

	var err error
	switch m := msg.(type) {
	case *mnwire.MsgMNAnnounce:
		err = s.handleAnnounce(m)
	case *mnwire.MsgMNPing:
		err = s.handlePing(peer, m)
	case *mnwire.MsgMNListRequest:
		err = s.handleListRequest(peer, m)
	case *mnwire.MsgMNWinner:
		err = s.handleWinner(m)
	case *mnwire.MsgMNWinnerSync:
		s.handleWinnerSync(peer)
	case *mnwire.MsgMixQueue:
		err = s.handleMixQueue(m)
	case *mnwire.MsgMixAccept:
		err = s.handleMixAccept(peer, m)
	case *mnwire.MsgMixEntry:
		err = s.handleMixEntry(peer, m)
	case *mnwire.MsgMixSignatures:
		err = s.handleMixSignatures(peer, m)
	case *mnwire.MsgMixStatus:
		err = s.withClient(func(c *mixclient.Client) error {
			return c.HandleStatus(peer, m)
		})
	case *mnwire.MsgMixFinalTx:
		err = s.withClient(func(c *mixclient.Client) error {
			return c.HandleFinalTx(peer, m)
		})
	case *mnwire.MsgMixComplete:
		err = s.withClient(func(c *mixclient.Client) error {
			return c.HandleComplete(peer, m)
		})
	default:
		err = fmt.Errorf("unhandled message %T", msg)
	}
	if err == nil {
		return nil
	}

	score := banScore(msg.Kind(), err)
	if score > 0 {
		if relayed {
			s.rejectedMtx.Lock()
			s.rejected.Add(id[:])
			s.rejectedMtx.Unlock()
		}
		s.banMgr.AddBanScore(peer, score, 0, fmt.Sprintf("%v: %v",
			msg.Kind(), err))
	}
	srvrLog.Debugf("Rejected %v from %s: %v", msg.Kind(), peer, err)
	return err
}

func (s *server) handleAnnounce(msg *mnwire.MsgMNAnnounce) error {
	_, relay, err := s.registry.RegisterOrUpdate(msg)
	if err != nil {
		return err
	}
	if relay {
		s.RelayMessage(msg)
	}
	return nil
}

// handlePing records a ping.  The announcement of an unknown masternode is
// requested from the peer that sent the ping.
func (s *server) handlePing(peer string, msg *mnwire.MsgMNPing) error {
	relay, err := s.registry.RecordPing(msg)
	if errors.Is(err, masternode.ErrUnknownMasternode) {
		srvrLog.Debugf("Requesting unknown masternode %v from %s",
			msg.CollateralOutPoint, peer)
		s.SendMessage(peer, &mnwire.MsgMNListRequest{
			CollateralOutPoint: msg.CollateralOutPoint,
		})
		return nil
	}
	if err != nil {
		return err
	}
	if relay {
		s.RelayMessage(msg)
	}
	return nil
}

// handleListRequest answers a list request with the announcements and
// latest pings of the requested masternodes.  Full list requests are rate
// limited per peer.
func (s *server) handleListRequest(peer string, msg *mnwire.MsgMNListRequest) error {
	if msg.IsFullList() {
		if err := s.registry.AllowListRequest(peer); err != nil {
			return err
		}
	}
	msgs := s.registry.ListAnnouncements(msg.CollateralOutPoint)
	for _, m := range msgs {
		s.SendMessage(peer, m)
	}
	srvrLog.Debugf("Sent %d masternode %s to %s", len(msgs),
		pickNoun(len(msgs), "message", "messages"), peer)
	return nil
}

func (s *server) handleWinner(msg *mnwire.MsgMNWinner) error {
	relay, err := s.payments.ReceiveVote(msg)
	if err != nil {
		return err
	}
	if relay {
		s.RelayMessage(msg)
	}
	return nil
}

func (s *server) handleWinnerSync(peer string) {
	for _, m := range s.payments.SyncVotes(s.cfg.Ledger.BestHeight()) {
		s.SendMessage(peer, m)
	}
}

func (s *server) handleMixQueue(msg *mnwire.MsgMixQueue) error {
	relay, err := s.queues.Check(msg)
	if err != nil {
		return err
	}
	if relay {
		s.RelayMessage(msg)
	}
	return nil
}

// rejectReason returns the reason a mixing request failed with err.
func rejectReason(err error) string {
	if err == nil {
		return ""
	}
	return mixpool.Reason(err)
}

// handleMixAccept admits peer into the mixing session and answers with the
// session status.
func (s *server) handleMixAccept(peer string, msg *mnwire.MsgMixAccept) error {
	if s.pool == nil {
		return errNotMixing
	}
	err := s.pool.Accept(peer, msg.Denomination, msg.Collateral)
	s.SendMessage(peer, s.pool.StatusMsg(err == nil, rejectReason(err)))
	return err
}

// handleMixEntry adds the entry of peer to the mixing session and answers
// with the session status.
func (s *server) handleMixEntry(peer string, msg *mnwire.MsgMixEntry) error {
	if s.pool == nil {
		return errNotMixing
	}
	err := s.pool.AddEntry(peer, msg)
	s.SendMessage(peer, s.pool.StatusMsg(err == nil, rejectReason(err)))
	return err
}

// handleMixSignatures applies the signatures of peer.  Only failures are
// answered since the session reports its completion to every participant.
func (s *server) handleMixSignatures(peer string, msg *mnwire.MsgMixSignatures) error {
	if s.pool == nil {
		return errNotMixing
	}
	err := s.pool.AddSignatures(peer, msg.SessionID, msg.Inputs)
	if err != nil {
		s.SendMessage(peer, s.pool.StatusMsg(false, rejectReason(err)))
	}
	return err
}

// withClient calls fn with the mixing client.
func (s *server) withClient(fn func(c *mixclient.Client) error) error {
	if s.client == nil {
		return errNotMixing
	}
	return fn(s.client)
}

// JoinMixing starts a mixing round of the entry made of inputs and outputs.
// A masternode that announced an open session of a compatible denomination
// is preferred.  Otherwise a random enabled masternode is asked to open a new
// session.
func (s *server) JoinMixing(inputs []*wire.TxIn, outputs []*wire.TxOut) error {
	if s.client == nil {
		return errNotMixing
	}
	mask := denom.GetDenominations(outputs)
	if mask == 0 {
		return errors.New("outputs are not denominated")
	}
	minProto := s.cfg.Params.MinProtocolVersion
	for _, q := range s.queues.Open(mask) {
		rec, ok := s.registry.Find(q.CollateralOutPoint)
		if !ok || !rec.IsEnabled(minProto) {
			continue
		}
		srvrLog.Infof("Joining open mixing session of %v for %s",
			rec.CollateralOutPoint, denom.String(mask))
		return s.client.Join(rec.Addr, inputs, outputs)
	}

	var enabled []masternode.Record
	for _, rec := range s.registry.Records() {
		if rec.IsEnabled(minProto) {
			enabled = append(enabled, rec)
		}
	}
	if len(enabled) == 0 {
		return errors.New("no enabled masternode to mix with")
	}
	rec := enabled[rand.IntN(len(enabled))]
	srvrLog.Infof("Asking masternode %v to open a mixing session for %s",
		rec.CollateralOutPoint, denom.String(mask))
	return s.client.Join(rec.Addr, inputs, outputs)
}

// BlockConnected updates the payment schedule for a block connected at
// height.  The payment of height is confirmed, the winner height plus the
// payment lookahead is elected by the payment authority, and votes outside
// the retention window are pruned.
func (s *server) BlockConnected(height int64) {
	stats := progresslog.BlockStats{Height: height}
	_, stats.Paid = s.payments.Winner(height)
	s.payments.ConfirmBlock(height, s.cfg.Now())
	if s.payments.IsEnabled() {
		target := height + s.cfg.Params.PaymentLookahead
		msg, err := s.payments.ProcessBlock(target)
		switch {
		case err != nil:
			srvrLog.Warnf("Unable to elect the payee of height %d: %v",
				target, err)
		case msg != nil:
			stats.Elected = true
			s.RelayMessage(msg)
		}
	}
	stats.Pruned = s.payments.Prune(height)
	if stats.Pruned > 0 {
		srvrLog.Debugf("Pruned %d payment %s", stats.Pruned,
			pickNoun(stats.Pruned, "vote", "votes"))
	}
	s.progress.LogProgress(&stats, false)
}

// serverStatus is a read-only snapshot of the node.
type serverStatus struct {
	Height      int64
	Masternodes []masternode.Record
	Enabled     int

	// NextWinner is the winner of the next block when known.
	NextWinner *mnpayments.Winner

	// LocalStatus and LocalMessage describe the local masternode.
	LocalStatus  masternode.Status
	LocalMessage string

	// Pool and Client are nil when the node does not coordinate or take
	// part in mixing.
	Pool   *mixpool.Status
	Client *mixclient.Status
}

// Status returns a snapshot of the node.
func (s *server) Status() serverStatus {
	height := s.cfg.Ledger.BestHeight()
	status := serverStatus{
		Height:      height,
		Masternodes: s.registry.Records(),
		Enabled:     s.registry.CountEnabled(s.cfg.Params.MinProtocolVersion),
	}
	if w, ok := s.payments.Winner(height + 1); ok {
		status.NextWinner = &w
	}
	if s.activeMN != nil {
		status.LocalStatus, status.LocalMessage = s.activeMN.Status()
	}
	if s.pool != nil {
		ps := s.pool.Status()
		status.Pool = &ps
	}
	if s.client != nil {
		cs := s.client.Status()
		status.Client = &cs
	}
	return status
}

// checkMasternodes advances the liveness status of every masternode.
func (s *server) checkMasternodes() {
	n := s.registry.CheckAll()
	srvrLog.Tracef("Checked %d %s", n, pickNoun(n, "masternode",
		"masternodes"))
}

// checkMixing times out stalled mixing rounds.
func (s *server) checkMixing() {
	if s.pool != nil {
		s.pool.CheckTimeout()
	}
	if s.client != nil {
		s.client.CheckTimeout()
	}
}

// mineBlock extends the process local ledger and connects the new block.
func (s *server) mineBlock() {
	height := s.cfg.MineBlock()
	srvrLog.Debugf("Connected block at height %d", height)
	s.BlockConnected(height)
}

// runTicker calls fn on every tick of t until ctx is done.
func runTicker(ctx context.Context, t ticker.Ticker, fn func()) {
	t.Resume()
	defer t.Stop()
	for {
		select {
		case <-t.Ticks():
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// Run starts the maintenance of the subsystems and blocks until ctx is
// done.  On shutdown the local masternode sends its stop ping and the
// registry is persisted.
func (s *server) Run(ctx context.Context) error {
	srvrLog.Trace("Starting server")

	g, gctx := errgroup.WithContext(ctx)
	loop := func(t ticker.Ticker, fn func()) {
		g.Go(func() error {
			runTicker(gctx, t, fn)
			return nil
		})
	}
	loop(s.checkTicker, s.checkMasternodes)
	if s.pool != nil || s.client != nil {
		loop(s.mixingTicker, s.checkMixing)
	}
	if s.activeMN != nil {
		s.activeMN.Manage()
		loop(s.manageTicker, s.activeMN.Manage)
	}
	if s.blockTicker != nil {
		loop(s.blockTicker, s.mineBlock)
	}
	err := g.Wait()

	if s.activeMN != nil {
		s.activeMN.Stop()
	}
	if s.pool != nil {
		s.pool.Reset()
	}
	if s.client != nil {
		s.client.Reset()
	}
	s.saveCache()
	srvrLog.Trace("Server stopped")
	return err
}
