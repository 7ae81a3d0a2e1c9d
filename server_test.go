// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/wire"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/mnsuite/mnd/internal/denom"
	"github.com/mnsuite/mnd/internal/masternode"
	"github.com/mnsuite/mnd/internal/memledger"
	"github.com/mnsuite/mnd/internal/mixclient"
	"github.com/mnsuite/mnd/internal/mixpool"
	"github.com/mnsuite/mnd/internal/mncache"
	"github.com/mnsuite/mnd/internal/mnauth"
	"github.com/mnsuite/mnd/internal/mnwire"
	"github.com/mnsuite/mnd/internal/netparams"
)

// delivery is a message in flight between two nodes.  An empty destination
// relays the message to every node but the sender.
type delivery struct {
	from, to string
	msg      mnwire.Message
}

// testNetwork connects servers through a message queue so no server is
// called back while it handles a message.
type testNetwork struct {
	t            *testing.T
	nodes        map[string]*server
	queue        []delivery
	disconnected []string
}

// nodeLink is the notifier of one node of a test network.
type nodeLink struct {
	n  *testNetwork
	id string
}

func (l nodeLink) SendMessage(peer string, msg mnwire.Message) {
	l.n.queue = append(l.n.queue, delivery{l.id, peer, msg})
}

func (l nodeLink) RelayMessage(msg mnwire.Message) {
	l.n.queue = append(l.n.queue, delivery{l.id, "", msg})
}

func (l nodeLink) DisconnectPeer(peer string) {
	l.n.disconnected = append(l.n.disconnected, peer)
}

// drain delivers queued messages until none are left.  Messages to unknown
// nodes are dropped.
func (n *testNetwork) drain() {
	n.t.Helper()
	for len(n.queue) > 0 {
		d := n.queue[0]
		n.queue = n.queue[1:]
		if d.to != "" {
			n.deliver(d.from, d.to, d.msg)
			continue
		}
		ids := make([]string, 0, len(n.nodes))
		for id := range n.nodes {
			if id != d.from {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		for _, id := range ids {
			n.deliver(d.from, id, d.msg)
		}
	}
}

func (n *testNetwork) deliver(from, to string, msg mnwire.Message) {
	n.t.Helper()
	s, ok := n.nodes[to]
	if !ok {
		return
	}
	if err := s.HandleMessage(from, msg); err != nil {
		n.t.Fatalf("%s: unexpected error handling %v from %s: %v", to,
			msg.Kind(), from, err)
	}
}

// sent returns the queued messages from one node to another.  An empty
// destination matches relayed messages.
func (n *testNetwork) sent(from, to string) []mnwire.Message {
	var msgs []mnwire.Message
	for _, d := range n.queue {
		if d.from == from && d.to == to {
			msgs = append(msgs, d.msg)
		}
	}
	return msgs
}

// serverHarness provides a shared ledger and clock for the servers of a
// test.
type serverHarness struct {
	t      *testing.T
	params *netparams.Params
	ledger *memledger.Ledger
	now    time.Time
	net    *testNetwork
}

func newServerHarness(t *testing.T) *serverHarness {
	t.Helper()
	params := netparams.SimNetParams
	ledger := memledger.New(params.Params)
	ledger.MineBlocks(1)
	return &serverHarness{
		t:      t,
		params: &params,
		ledger: ledger,
		now:    time.Unix(1700000000, 0),
		net:    &testNetwork{t: t, nodes: make(map[string]*server)},
	}
}

// config returns a server configuration for the node with the provided id.
func (h *serverHarness) config(id string) *serverConfig {
	return &serverConfig{
		Params:       h.params,
		Ledger:       h.ledger,
		Notifier:     nodeLink{h.net, id},
		BanThreshold: defaultBanThreshold,
		BanDuration:  defaultBanDuration,
		Now:          func() time.Time { return h.now },
	}
}

// addNode creates a server and attaches it to the test network.
func (h *serverHarness) addNode(id string, cfg *serverConfig) *server {
	h.t.Helper()
	s, err := newServer(cfg)
	if err != nil {
		h.t.Fatalf("%s: unexpected error: %v", id, err)
	}
	h.net.nodes[id] = s
	return s
}

// masternode funds a confirmed collateral and returns the local masternode
// configuration that owns it.
func (h *serverHarness) masternode(addr string) *localMasternode {
	h.t.Helper()
	wallet := memledger.NewWallet(h.ledger)
	collateralKey, script, err := wallet.NewKey()
	if err != nil {
		h.t.Fatalf("unexpected error: %v", err)
	}
	tx := h.ledger.AddFunding(wire.NewTxOut(int64(h.params.CollateralAmount),
		script))
	h.ledger.MineBlocks(int(h.params.MinCollateralConfs))
	operatorKey, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		h.t.Fatalf("unexpected error: %v", err)
	}
	return &localMasternode{
		OperatorKey:        operatorKey,
		CollateralOutPoint: wire.OutPoint{Hash: tx.TxHash()},
		CollateralPubKey:   collateralKey.PubKey(),
		ExternalAddr:       addr,
		Dial: func(network, addr string) (net.Conn, error) {
			local, remote := net.Pipe()
			remote.Close()
			return local, nil
		},
	}
}

// announce returns an announcement of mn signed at the current time.
func (h *serverHarness) announce(mn *localMasternode) *mnwire.MsgMNAnnounce {
	h.t.Helper()
	msg := &mnwire.MsgMNAnnounce{
		CollateralOutPoint: mn.CollateralOutPoint,
		Addr:               mn.ExternalAddr,
		CollateralPubKey:   mnauth.PubKeyArray(mn.CollateralPubKey),
		OperatorPubKey:     mnauth.PubKeyArray(mn.OperatorKey.PubKey()),
		SigTime:            h.now.Unix(),
		ProtocolVersion:    mnwire.ProtocolVersion,
	}
	if err := mnauth.SignMessage(msg, mn.OperatorKey); err != nil {
		h.t.Fatalf("unexpected error: %v", err)
	}
	return msg
}

// TestRelayOnce ensures a relayed message is processed and relayed once no
// matter how many peers deliver it.
func TestRelayOnce(t *testing.T) {
	h := newServerHarness(t)
	s := h.addNode("node", h.config("node"))
	msg := h.announce(h.masternode("127.0.0.1:19560"))

	for _, peer := range []string{"p1", "p2", "p1"} {
		if err := s.HandleMessage(peer, msg); err != nil {
			t.Fatalf("%s: unexpected error: %v", peer, err)
		}
	}
	if got := len(h.net.sent("node", "")); got != 1 {
		t.Fatalf("announcement relayed %d times", got)
	}
	rec, ok := s.registry.Find(msg.CollateralOutPoint)
	if !ok || !rec.IsEnabled(h.params.MinProtocolVersion) {
		t.Fatalf("announced masternode not enabled: %v", &rec)
	}
	if got := s.Status().Enabled; got != 1 {
		t.Fatalf("unexpected enabled count %d", got)
	}
}

// TestPingUnknownMasternode ensures a ping of an unknown masternode makes the
// node request its announcement instead of penalizing the peer.
func TestPingUnknownMasternode(t *testing.T) {
	h := newServerHarness(t)
	s := h.addNode("node", h.config("node"))
	if err := s.AddPeer("p1", "10.0.0.1:19560", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mn := h.masternode("127.0.0.1:19560")
	ping := &mnwire.MsgMNPing{
		CollateralOutPoint: mn.CollateralOutPoint,
		SigTime:            h.now.Unix(),
	}
	if err := mnauth.SignMessage(ping, mn.OperatorKey); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.HandleMessage("p1", ping); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := h.net.sent("node", "p1")
	if len(msgs) != 1 {
		t.Fatalf("unexpected messages to the peer %v", msgs)
	}
	req, ok := msgs[0].(*mnwire.MsgMNListRequest)
	if !ok || req.CollateralOutPoint != mn.CollateralOutPoint {
		t.Fatalf("unexpected request %v", msgs[0])
	}
	if got := s.banMgr.BanScore("p1"); got != 0 {
		t.Fatalf("unexpected ban score %d", got)
	}
	if got := len(h.net.sent("node", "")); got != 0 {
		t.Fatalf("ping of an unknown masternode relayed")
	}
}

// TestMisbehavingPeer ensures invalid relayed messages increase the ban
// score of the sending peer once, and that the peer is banned once the
// threshold is crossed.
func TestMisbehavingPeer(t *testing.T) {
	h := newServerHarness(t)
	s := h.addNode("node", h.config("node"))
	const addr = "10.0.0.2:19560"
	if err := s.AddPeer("p1", addr, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	badAnnounce := func() *mnwire.MsgMNAnnounce {
		msg := h.announce(h.masternode("127.0.0.1:19560"))
		msg.Addr = "127.0.0.1:19561"
		return msg
	}

	first := badAnnounce()
	err := s.HandleMessage("p1", first)
	if !errors.Is(err, masternode.ErrBadSignature) {
		t.Fatalf("unexpected error: %v", err)
	}
	score := s.banMgr.BanScore("p1")
	if score == 0 {
		t.Fatal("ban score not increased")
	}

	// The same message is ignored without further penalty.
	if err := s.HandleMessage("p1", first); err != nil {
		t.Fatalf("unexpected error on redelivery: %v", err)
	}
	if got := s.banMgr.BanScore("p1"); got != score {
		t.Fatalf("ban score increased on redelivery: %d", got)
	}

	for i := 0; i < 2; i++ {
		if err := s.HandleMessage("p1", badAnnounce()); err == nil {
			t.Fatal("invalid announcement accepted")
		}
	}
	if len(h.net.disconnected) != 1 || h.net.disconnected[0] != "p1" {
		t.Fatalf("unexpected disconnected peers %v", h.net.disconnected)
	}
	if !s.banMgr.IsBanned(addr) {
		t.Fatal("misbehaving peer not banned")
	}
	if err := s.AddPeer("p2", addr, true); err == nil {
		t.Fatal("banned address accepted")
	}
}

// TestListRequest ensures list requests are answered with the known
// announcements and that full list requests are rate limited.
func TestListRequest(t *testing.T) {
	h := newServerHarness(t)
	h.params.ListRequestInterval = time.Hour
	s := h.addNode("node", h.config("node"))
	if err := s.AddPeer("p1", "10.0.0.3:19560", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	announces := []*mnwire.MsgMNAnnounce{
		h.announce(h.masternode("127.0.0.1:19560")),
		h.announce(h.masternode("127.0.0.1:19561")),
	}
	for _, msg := range announces {
		if err := s.HandleMessage("p2", msg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	h.net.queue = nil

	// A single masternode can be requested at any time.
	single := &mnwire.MsgMNListRequest{
		CollateralOutPoint: announces[1].CollateralOutPoint,
	}
	for i := 0; i < 2; i++ {
		if err := s.HandleMessage("p1", single); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := len(h.net.sent("node", "p1")); got != 2 {
		t.Fatalf("unexpected single answers %d", got)
	}
	h.net.queue = nil

	if err := s.HandleMessage("p1", &mnwire.MsgMNListRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(h.net.sent("node", "p1")); got != len(announces) {
		t.Fatalf("unexpected full answer of %d messages", got)
	}

	h.now = h.now.Add(time.Minute)
	err := s.HandleMessage("p1", &mnwire.MsgMNListRequest{})
	if !errors.Is(err, masternode.ErrListRequestTooSoon) {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.banMgr.BanScore("p1"); got == 0 {
		t.Fatal("ban score not increased")
	}

	h.now = h.now.Add(time.Hour)
	if err := s.HandleMessage("p1", &mnwire.MsgMNListRequest{}); err != nil {
		t.Fatalf("unexpected error after the interval: %v", err)
	}
}

// TestBlockConnected ensures the payment authority elects and relays the
// winner of the block a payment lookahead ahead of every connected block,
// and that connecting the winner block records the payment.
func TestBlockConnected(t *testing.T) {
	h := newServerHarness(t)
	cfg := h.config("authority")
	key, err := mnauth.ParsePrivateKeyHex(h.params.PaymentAuthorityPrivKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.PaymentKey = key
	s := h.addNode("authority", cfg)
	peer := h.addNode("peer", h.config("peer"))

	mn := h.masternode("127.0.0.1:19560")
	msg := h.announce(mn)
	for _, node := range []*server{s, peer} {
		if err := node.HandleMessage("p1", msg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	h.net.queue = nil

	best := h.ledger.BestHeight()
	s.BlockConnected(best)
	target := best + h.params.PaymentLookahead
	relayed := h.net.sent("authority", "")
	if len(relayed) != 1 {
		t.Fatalf("unexpected relayed messages %v", relayed)
	}
	vote, ok := relayed[0].(*mnwire.MsgMNWinner)
	if !ok || vote.Height != target || vote.CollateralOutPoint != mn.CollateralOutPoint {
		t.Fatalf("unexpected vote %v", relayed[0])
	}
	h.net.drain()

	w, ok := peer.payments.Winner(target)
	if !ok || w.CollateralOutPoint != mn.CollateralOutPoint {
		t.Fatalf("vote not accepted by the peer: %v", w)
	}

	// A node without the key never elects.
	peer.BlockConnected(best + 1)
	if got := len(h.net.sent("peer", "")); got != 0 {
		t.Fatalf("node without the payment key relayed %d messages", got)
	}

	peer.BlockConnected(target)
	rec, _ := peer.registry.Find(mn.CollateralOutPoint)
	if rec.LastPaidHeight != target {
		t.Fatalf("payment not recorded: last paid height %d",
			rec.LastPaidHeight)
	}
}

// TestNotMixing ensures mixing messages are refused by nodes that do not take
// part in mixing.
func TestNotMixing(t *testing.T) {
	h := newServerHarness(t)
	s := h.addNode("node", h.config("node"))

	tests := []struct {
		name string
		msg  mnwire.Message
	}{
		{"accept", &mnwire.MsgMixAccept{Denomination: 1}},
		{"entry", &mnwire.MsgMixEntry{}},
		{"signatures", &mnwire.MsgMixSignatures{}},
		{"status", &mnwire.MsgMixStatus{}},
		{"final tx", &mnwire.MsgMixFinalTx{}},
		{"complete", &mnwire.MsgMixComplete{}},
	}
	for _, test := range tests {
		err := s.HandleMessage("p1", test.msg)
		if !errors.Is(err, errNotMixing) {
			t.Errorf("%s: unexpected error: %v", test.name, err)
		}
	}
	if err := s.JoinMixing(nil, nil); !errors.Is(err, errNotMixing) {
		t.Fatalf("unexpected error: %v", err)
	}
}

// mixer is a funded wallet along with the entry it mixes.
type mixer struct {
	wallet  *memledger.Wallet
	inputs  []*wire.TxIn
	outputs []*wire.TxOut
}

// fundMixer returns a mixer of one input of value into an output of the same
// value, with a separate output to fund its collateral.
func (h *serverHarness) fundMixer(value int64) *mixer {
	h.t.Helper()
	w := memledger.NewWallet(h.ledger)
	_, script, err := w.NewKey()
	if err != nil {
		h.t.Fatalf("unexpected error: %v", err)
	}
	_, outScript, err := w.NewKey()
	if err != nil {
		h.t.Fatalf("unexpected error: %v", err)
	}
	tx := h.ledger.AddFunding(wire.NewTxOut(value, script),
		wire.NewTxOut(dcrutil.AtomsPerCoin/2, script))
	h.ledger.MineBlocks(1)
	op := wire.OutPoint{Hash: tx.TxHash()}
	return &mixer{
		wallet:  w,
		inputs:  []*wire.TxIn{wire.NewTxIn(&op, value, nil)},
		outputs: []*wire.TxOut{wire.NewTxOut(value, outScript)},
	}
}

// TestMixingRound runs a full mixing round between a mixing masternode and a
// quorum of participant nodes exchanging messages over the test network.
func TestMixingRound(t *testing.T) {
	h := newServerHarness(t)

	mnCfg := h.config("mn")
	mnCfg.Masternode = h.masternode("mn")
	mnCfg.Mixing = true
	mnNode := h.addNode("mn", mnCfg)

	value := int64(denom.Denominations[2])
	mixers := make(map[string]*mixer)
	var ids []string
	for i := 0; i < h.params.MixingQuorum; i++ {
		id := fmt.Sprintf("c%d", i)
		mixers[id] = h.fundMixer(value)
		cfg := h.config(id)
		cfg.Wallet = mixers[id].wallet
		h.addNode(id, cfg)
		ids = append(ids, id)
	}

	mnNode.activeMN.Manage()
	h.net.drain()
	if status := mnNode.Status(); status.LocalStatus != masternode.StatusCapable {
		t.Fatalf("masternode not started: %v (%s)", status.LocalStatus,
			status.LocalMessage)
	}

	for _, id := range ids {
		m := mixers[id]
		if err := h.net.nodes[id].JoinMixing(m.inputs, m.outputs); err != nil {
			t.Fatalf("%s: unexpected error: %v", id, err)
		}
		h.net.drain()
	}

	for _, id := range ids {
		status := h.net.nodes[id].Status().Client
		if status.State != mixclient.StateSuccess || status.LockedCoins != 0 {
			t.Fatalf("%s: unexpected client status %+v", id, status)
		}
	}
	if got := mnNode.Status().Pool.State; got != mixpool.StateSuccess {
		t.Fatalf("unexpected pool state %v", got)
	}
	tx := mnNode.pool.FinalTx()
	if _, err := h.ledger.GetTransaction(tx.TxHash()); err != nil {
		t.Fatalf("joint transaction not submitted: %v", err)
	}
	for id, m := range mixers {
		if h.ledger.IsTransactionUnspent(m.inputs[0].PreviousOutPoint) {
			t.Fatalf("%s: input not spent", id)
		}
	}
	if got := h.ledger.LockedCount(); got != 0 {
		t.Fatalf("%d coins still locked", got)
	}
}

// TestJoinMixingNoMasternode ensures joining fails without an enabled
// masternode and locks nothing.
func TestJoinMixingNoMasternode(t *testing.T) {
	h := newServerHarness(t)
	m := h.fundMixer(int64(denom.Denominations[2]))
	cfg := h.config("c0")
	cfg.Wallet = m.wallet
	s := h.addNode("c0", cfg)

	if err := s.JoinMixing(m.inputs, m.outputs); err == nil {
		t.Fatal("joined without an enabled masternode")
	}
	if got := h.ledger.LockedCount(); got != 0 {
		t.Fatalf("%d coins locked", got)
	}
}

// TestRunPersistsCache ensures the registry is written to the cache on
// shutdown and restored by the next server.
func TestRunPersistsCache(t *testing.T) {
	h := newServerHarness(t)
	cache, err := mncache.Open(t.TempDir(), h.params.Net)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cache.Close()

	cfg := h.config("node")
	cfg.Cache = cache
	s := h.addNode("node", cfg)
	msg := h.announce(h.masternode("127.0.0.1:19560"))
	if err := s.HandleMessage("p1", msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snaps, err := cache.LoadRegistry()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Announce.CollateralOutPoint != msg.CollateralOutPoint {
		t.Fatalf("unexpected cached registry %v", snaps)
	}

	restored := h.addNode("restored", cfg)
	rec, ok := restored.registry.Find(msg.CollateralOutPoint)
	if !ok || !rec.IsEnabled(h.params.MinProtocolVersion) {
		t.Fatalf("masternode not restored: %v", &rec)
	}
}

// TestRunMinesBlocks ensures the block loop extends the ledger on every
// tick.
func TestRunMinesBlocks(t *testing.T) {
	h := newServerHarness(t)
	mined := make(chan int64, 1)
	cfg := h.config("node")
	cfg.MineBlock = func() int64 {
		height := h.ledger.MineBlocks(1)
		mined <- height
		return height
	}
	cfg.BlockInterval = time.Hour
	s := h.addNode("node", cfg)
	force := ticker.NewForce(time.Hour)
	s.blockTicker = force

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	start := h.ledger.BestHeight()
	force.Force <- time.Now()
	select {
	case height := <-mined:
		if height != start+1 {
			t.Fatalf("unexpected mined height %d", height)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("block not mined")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
