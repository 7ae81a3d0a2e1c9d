// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package masternode implements the registry of known masternodes.
//
// The registry is the single writer of masternode liveness.  Records are
// created from signed announcements whose collateral output is verified
// against the ledger, refreshed by signed pings, and downgraded only by Check
// as time passes without pings or when the collateral is spent.
//
// The registry also provides the deterministic per-block score used to elect
// payment winners.  Every node computes the same scores from the same block
// hash and registry contents, so independent nodes agree on the winner without
// further communication.
package masternode

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/container/lru"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/txscript/v4/stdaddr"
	"github.com/decred/dcrd/wire"
	"github.com/mnsuite/mnd/internal/mnauth"
	"github.com/mnsuite/mnd/internal/mnwire"
	"github.com/mnsuite/mnd/internal/netparams"
)

// maxListRequestPeers is the number of peers whose last full list request is
// remembered.
const maxListRequestPeers = 1024

// Chain provides the ledger lookups required by the registry.
type Chain interface {
	BestHeight() int64
	GetBlockHash(height int64) (chainhash.Hash, error)
	GetTransaction(hash chainhash.Hash) (*wire.MsgTx, error)
	IsTransactionUnspent(op wire.OutPoint) bool
	GetConfirmationDepth(op wire.OutPoint) int64
}

// Config is the configuration struct for the registry.
type Config struct {
	// Params defines the network parameters and timing windows.
	Params *netparams.Params

	// Chain is the ledger used to verify collateral outputs and look up
	// block hashes.
	Chain Chain

	// Now returns the current time.  It defaults to time.Now.
	Now func() time.Time
}

// Registry is the set of known masternodes indexed by collateral outpoint.
// It is safe for concurrent access.
type Registry struct {
	cfg Config

	mtx          sync.Mutex
	records      map[wire.OutPoint]*Record
	listRequests *lru.Map[string, time.Time]
}

// New returns an empty registry.
func New(cfg *Config) *Registry {
	c := *cfg
	if c.Now == nil {
		c.Now = time.Now
	}
	return &Registry{
		cfg:          c,
		records:      make(map[wire.OutPoint]*Record),
		listRequests: lru.NewMap[string, time.Time](maxListRequestPeers),
	}
}

// checkCollateral verifies the collateral output of an announcement exists,
// carries exactly the collateral amount, pays the collateral key, is unspent,
// and has the minimum number of confirmations.
func (r *Registry) checkCollateral(op wire.OutPoint, collateralKey *secp256k1.PublicKey) error {
	tx, err := r.cfg.Chain.GetTransaction(op.Hash)
	if err != nil {
		str := fmt.Sprintf("collateral transaction %v not found: %v", op.Hash,
			err)
		return ruleError(ErrCollateralNotFound, str)
	}
	if op.Index >= uint32(len(tx.TxOut)) {
		str := fmt.Sprintf("collateral %v references missing output", op)
		return ruleError(ErrCollateralMismatch, str)
	}
	out := tx.TxOut[op.Index]
	if out.Value != int64(r.cfg.Params.CollateralAmount) {
		str := fmt.Sprintf("collateral %v has value %d, want %d", op,
			out.Value, int64(r.cfg.Params.CollateralAmount))
		return ruleError(ErrCollateralMismatch, str)
	}
	want, err := payToPubKeyHashScript(collateralKey, r.cfg.Params)
	if err != nil {
		return err
	}
	if !bytes.Equal(out.PkScript, want) {
		str := fmt.Sprintf("collateral %v does not pay the collateral key", op)
		return ruleError(ErrCollateralMismatch, str)
	}
	if !r.cfg.Chain.IsTransactionUnspent(op) {
		str := fmt.Sprintf("collateral %v is spent", op)
		return ruleError(ErrCollateralSpent, str)
	}
	if depth := r.cfg.Chain.GetConfirmationDepth(op); depth < r.cfg.Params.MinCollateralConfs {
		str := fmt.Sprintf("collateral %v has %d confirmations, need %d", op,
			depth, r.cfg.Params.MinCollateralConfs)
		return ruleError(ErrCollateralTooNew, str)
	}
	return nil
}

// payToPubKeyHashScript returns the pay-to-pubkey-hash script of pub.
func payToPubKeyHashScript(pub *secp256k1.PublicKey, params *netparams.Params) ([]byte, error) {
	h160 := stdaddr.Hash160(pub.SerializeCompressed())
	addr, err := stdaddr.NewAddressPubKeyHashEcdsaSecp256k1V0(h160, params.Params)
	if err != nil {
		return nil, err
	}
	_, script := addr.PaymentScript()
	return script, nil
}

// RegisterOrUpdate processes a masternode announcement.  A new record is
// inserted when the announcement is valid and its collateral verifies.  An
// existing record is only updated when the announcement is signed by the
// registered operator key, is newer than the registered announcement, and the
// minimum update interval elapsed.  The returned bool reports whether the
// announcement should be relayed.
func (r *Registry) RegisterOrUpdate(msg *mnwire.MsgMNAnnounce) (*Record, bool, error) {
	now := r.cfg.Now()
	params := r.cfg.Params
	sigTime := time.Unix(msg.SigTime, 0)

	if sigTime.After(now.Add(params.MaxFutureDrift)) {
		str := fmt.Sprintf("announcement for %v is signed %v in the future",
			msg.CollateralOutPoint, sigTime.Sub(now))
		return nil, false, ruleError(ErrFutureSigTime, str)
	}
	if msg.ProtocolVersion < params.MinProtocolVersion {
		str := fmt.Sprintf("announcement for %v uses obsolete protocol "+
			"version %d", msg.CollateralOutPoint, msg.ProtocolVersion)
		return nil, false, ruleError(ErrObsoleteProtocol, str)
	}
	operatorKey, err := secp256k1.ParsePubKey(msg.OperatorPubKey[:])
	if err != nil {
		str := fmt.Sprintf("announcement for %v has malformed operator "+
			"key: %v", msg.CollateralOutPoint, err)
		return nil, false, ruleError(ErrMalformedKey, str)
	}
	collateralKey, err := secp256k1.ParsePubKey(msg.CollateralPubKey[:])
	if err != nil {
		str := fmt.Sprintf("announcement for %v has malformed collateral "+
			"key: %v", msg.CollateralOutPoint, err)
		return nil, false, ruleError(ErrMalformedKey, str)
	}
	if !mnauth.VerifyKey(operatorKey, msg.Sig(), msg) {
		str := fmt.Sprintf("announcement for %v has an invalid signature",
			msg.CollateralOutPoint)
		return nil, false, ruleError(ErrBadSignature, str)
	}

	// The ledger lookups happen before taking the registry lock.
	if err := r.checkCollateral(msg.CollateralOutPoint, collateralKey); err != nil {
		return nil, false, err
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	existing := r.records[msg.CollateralOutPoint]
	if existing != nil {
		if existing.OperatorPubKey != msg.OperatorPubKey ||
			existing.CollateralPubKey != msg.CollateralPubKey {

			str := fmt.Sprintf("announcement for %v is signed by another "+
				"key than the registered one", msg.CollateralOutPoint)
			return nil, false, ruleError(ErrKeyMismatch, str)
		}
		if !sigTime.After(existing.SigTime) {
			str := fmt.Sprintf("announcement for %v is not newer than the "+
				"registered one", msg.CollateralOutPoint)
			return nil, false, ruleError(ErrStaleMessage, str)
		}
		if sigTime.Sub(existing.SigTime) < params.MinUpdateInterval {
			str := fmt.Sprintf("announcement for %v arrived %v after the "+
				"previous one", msg.CollateralOutPoint,
				sigTime.Sub(existing.SigTime))
			return nil, false, ruleError(ErrTooFrequent, str)
		}
	}

	rec := existing
	if rec == nil {
		rec = &Record{CollateralOutPoint: msg.CollateralOutPoint}
		r.records[msg.CollateralOutPoint] = rec
		log.Infof("New masternode %v at %s", msg.CollateralOutPoint, msg.Addr)
	} else {
		log.Debugf("Updated masternode %v at %s", msg.CollateralOutPoint,
			msg.Addr)
	}
	rec.Addr = msg.Addr
	rec.CollateralPubKey = msg.CollateralPubKey
	rec.OperatorPubKey = msg.OperatorPubKey
	rec.SigTime = sigTime
	rec.LastSeen = now
	if sigTime.After(rec.LastPing) {
		rec.LastPing = sigTime
	}
	rec.ProtocolVersion = msg.ProtocolVersion
	rec.StopRequested = false
	rec.removed = false
	announce := *msg
	rec.announce = &announce
	r.checkLocked(rec, true, now)

	cpy := *rec
	return &cpy, true, nil
}

// RecordPing processes a liveness ping.  Pings for unknown masternodes fail
// with ErrUnknownMasternode so the caller can request the announcement.  The
// returned bool reports whether the ping should be relayed.
func (r *Registry) RecordPing(msg *mnwire.MsgMNPing) (bool, error) {
	now := r.cfg.Now()
	params := r.cfg.Params
	sigTime := time.Unix(msg.SigTime, 0)

	if sigTime.After(now.Add(params.MaxFutureDrift)) {
		str := fmt.Sprintf("ping for %v is signed %v in the future",
			msg.CollateralOutPoint, sigTime.Sub(now))
		return false, ruleError(ErrFutureSigTime, str)
	}
	if sigTime.Before(now.Add(-params.MaxFutureDrift)) {
		str := fmt.Sprintf("ping for %v is %v old", msg.CollateralOutPoint,
			now.Sub(sigTime))
		return false, ruleError(ErrStaleMessage, str)
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	rec := r.records[msg.CollateralOutPoint]
	if rec == nil || rec.removed {
		str := fmt.Sprintf("ping for unknown masternode %v",
			msg.CollateralOutPoint)
		return false, ruleError(ErrUnknownMasternode, str)
	}
	if !mnauth.Verify(rec.OperatorPubKey[:], msg.Sig(), msg) {
		str := fmt.Sprintf("ping for %v has an invalid signature",
			msg.CollateralOutPoint)
		return false, ruleError(ErrBadSignature, str)
	}
	if !sigTime.After(rec.LastPing) {
		str := fmt.Sprintf("ping for %v is not newer than the last one",
			msg.CollateralOutPoint)
		return false, ruleError(ErrStaleMessage, str)
	}
	// Stop pings are exempt from the interval so a masternode restarted
	// shortly after a ping can still announce its shutdown.
	if !msg.Stop && sigTime.Sub(rec.LastPing) < params.MinUpdateInterval {
		str := fmt.Sprintf("ping for %v arrived %v after the previous one",
			msg.CollateralOutPoint, sigTime.Sub(rec.LastPing))
		return false, ruleError(ErrTooFrequent, str)
	}

	rec.LastPing = sigTime
	rec.LastSeen = now
	ping := *msg
	rec.ping = &ping
	if msg.Stop {
		log.Infof("Masternode %v is stopping", msg.CollateralOutPoint)
		rec.StopRequested = true
	}
	r.checkLocked(rec, true, now)
	return true, nil
}

// checkLocked advances the liveness status of rec.  It is the only place a
// status is downgraded.  Unforced checks are throttled by the check interval.
//
// This function MUST be called with the registry mutex held (for writes).
func (r *Registry) checkLocked(rec *Record, force bool, now time.Time) {
	params := r.cfg.Params
	if !force && now.Sub(rec.lastCheck) < params.CheckInterval {
		return
	}
	rec.lastCheck = now

	prev := rec.Status
	defer func() {
		if rec.Status != prev {
			log.Debugf("Masternode %v status %v -> %v",
				rec.CollateralOutPoint, prev, rec.Status)
		}
	}()

	// Records of every status are dropped once the removal window elapsed.
	idle := now.Sub(rec.LastSeen)
	rec.removed = idle >= params.RemovalWindow

	if rec.StopRequested {
		rec.Status = StatusStopped
		return
	}
	if !r.cfg.Chain.IsTransactionUnspent(rec.CollateralOutPoint) {
		rec.Status = StatusStopped
		return
	}
	if rec.removed {
		rec.Status = StatusNotCapable
		return
	}
	if idle >= params.ExpirationWindow {
		rec.Status = StatusNotCapable
		return
	}
	depth := r.cfg.Chain.GetConfirmationDepth(rec.CollateralOutPoint)
	if depth < params.MinCollateralConfs {
		rec.Status = StatusInputTooNew
		return
	}
	rec.Status = StatusCapable
}

// Check advances the liveness status of the masternode with collateral op and
// returns the resulting status.  The bool is false when the masternode is not
// registered.
func (r *Registry) Check(op wire.OutPoint, force bool) (Status, bool) {
	now := r.cfg.Now()
	r.mtx.Lock()
	defer r.mtx.Unlock()
	rec := r.records[op]
	if rec == nil {
		return StatusUnprocessed, false
	}
	r.checkLocked(rec, force, now)
	return rec.Status, true
}

// CheckAll checks every record and drops records whose removal window
// elapsed.  It returns the number of dropped records.
func (r *Registry) CheckAll() int {
	now := r.cfg.Now()
	r.mtx.Lock()
	defer r.mtx.Unlock()

	var dropped int
	for op, rec := range r.records {
		r.checkLocked(rec, false, now)
		if rec.removed {
			log.Infof("Removing inactive masternode %v", op)
			delete(r.records, op)
			dropped++
		}
	}
	return dropped
}

// Find returns a copy of the record of the masternode with collateral op.
func (r *Registry) Find(op wire.OutPoint) (Record, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	rec, ok := r.records[op]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// OperatorKey returns the operator key of a registered masternode.
func (r *Registry) OperatorKey(op wire.OutPoint) ([]byte, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	rec, ok := r.records[op]
	if !ok || rec.removed {
		return nil, false
	}
	key := rec.OperatorPubKey
	return key[:], true
}

// Count returns the number of registered masternodes.
func (r *Registry) Count() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return len(r.records)
}

// CountEnabled returns the number of enabled masternodes running at least
// protocol version minProto.
func (r *Registry) CountEnabled(minProto uint32) int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	var n int
	for _, rec := range r.records {
		if rec.IsEnabled(minProto) {
			n++
		}
	}
	return n
}

// Records returns copies of all records ordered by collateral outpoint.
func (r *Registry) Records() []Record {
	r.mtx.Lock()
	recs := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		recs = append(recs, *rec)
	}
	r.mtx.Unlock()
	sort.Slice(recs, func(i, j int) bool {
		return outPointLess(&recs[i].CollateralOutPoint,
			&recs[j].CollateralOutPoint)
	})
	return recs
}

// outPointLess orders outpoints by hash and then index.
func outPointLess(a, b *wire.OutPoint) bool {
	if c := bytes.Compare(a.Hash[:], b.Hash[:]); c != 0 {
		return c < 0
	}
	return a.Index < b.Index
}

// MarkPaid records that the masternode with collateral op was paid at height.
// Earlier payments never overwrite later ones.
func (r *Registry) MarkPaid(op wire.OutPoint, height int64, t time.Time) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	rec := r.records[op]
	if rec == nil || height <= rec.LastPaidHeight {
		return
	}
	rec.LastPaidHeight = height
	rec.LastPaidTime = t
}

// AllowListRequest reports whether a full list request from peer is allowed.
// A peer may request the full list once per list request interval.
func (r *Registry) AllowListRequest(peer string) error {
	interval := r.cfg.Params.ListRequestInterval
	if interval == 0 {
		return nil
	}
	now := r.cfg.Now()

	r.mtx.Lock()
	defer r.mtx.Unlock()
	if last, ok := r.listRequests.Get(peer); ok && now.Sub(last) < interval {
		str := fmt.Sprintf("peer %s requested the masternode list again "+
			"after %v", peer, now.Sub(last))
		return ruleError(ErrListRequestTooSoon, str)
	}
	r.listRequests.Put(peer, now)
	return nil
}

// ListAnnouncements returns the announcements and latest pings that answer a
// list request for op.  The zero outpoint requests every masternode.
func (r *Registry) ListAnnouncements(op wire.OutPoint) []mnwire.Message {
	full := op == (wire.OutPoint{})
	recs := r.Records()

	r.mtx.Lock()
	defer r.mtx.Unlock()
	var msgs []mnwire.Message
	for i := range recs {
		rec := r.records[recs[i].CollateralOutPoint]
		if rec == nil || rec.removed || rec.announce == nil {
			continue
		}
		if !full && rec.CollateralOutPoint != op {
			continue
		}
		announce := *rec.announce
		msgs = append(msgs, &announce)
		if rec.ping != nil {
			ping := *rec.ping
			msgs = append(msgs, &ping)
		}
	}
	return msgs
}
