// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mnpayments implements the masternode payment scheduler.
//
// The scheduler elects the masternode paid at each block height, signs the
// election as a winner vote with the network payment authority key, and keeps
// the accepted votes of the recent past so it can answer which masternode is
// paid at a height.  Winner votes are authenticated with a single fixed
// authority key per network rather than with masternode keys.
package mnpayments

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/container/lru"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/math/uint256"
	"github.com/decred/dcrd/wire"
	"github.com/mnsuite/mnd/internal/masternode"
	"github.com/mnsuite/mnd/internal/mnauth"
	"github.com/mnsuite/mnd/internal/mnwire"
	"github.com/mnsuite/mnd/internal/netparams"
)

// maxSeenVotes is the number of recently processed vote ids that are
// remembered to skip duplicates.
const maxSeenVotes = 8192

// VoteState describes the progress of the payment for a block height.
type VoteState uint8

// These constants define the per-height payment states.
const (
	StateUnscheduled VoteState = iota
	StateVoted
	StateConfirmed
)

// String returns the VoteState as a human-readable name.
func (s VoteState) String() string {
	switch s {
	case StateUnscheduled:
		return "Unscheduled"
	case StateVoted:
		return "Voted"
	case StateConfirmed:
		return "Confirmed"
	}
	return fmt.Sprintf("Unknown VoteState (%d)", uint8(s))
}

// Registry provides the masternode registry operations the scheduler relies
// on.  It is implemented by *masternode.Registry.
type Registry interface {
	Count() int
	RankedList(height int64, minProto uint32) ([]masternode.Ranked, error)
	MarkPaid(op wire.OutPoint, height int64, t time.Time)
}

// Chain provides the ledger lookups required by the scheduler.
type Chain interface {
	BestHeight() int64
	GetTransaction(hash chainhash.Hash) (*wire.MsgTx, error)
}

// Config is the configuration struct for the scheduler.
type Config struct {
	// Params defines the network parameters, including the payment
	// authority public key.
	Params *netparams.Params

	Registry Registry
	Chain    Chain

	// AuthorityKey is the payment authority private key.  It is nil on
	// nodes that only verify winner votes.
	AuthorityKey *secp256k1.PrivateKey
}

// Winner is an accepted winner vote along with its payment state.
type Winner struct {
	Height             int64
	CollateralOutPoint wire.OutPoint
	PayeeScript        []byte
	Score              uint256.Uint256
	Signature          [mnwire.SignatureLen]byte
	State              VoteState
}

// Msg returns the signed winner vote message of w.
func (w *Winner) Msg() *mnwire.MsgMNWinner {
	msg := &mnwire.MsgMNWinner{
		Height:             w.Height,
		CollateralOutPoint: w.CollateralOutPoint,
		Sequence:           wire.MaxTxInSequenceNum,
		PayeeScript:        append([]byte(nil), w.PayeeScript...),
		Signature:          w.Signature,
	}
	w.Score.PutBytesLE(&msg.Score)
	return msg
}

// winnerFromMsg returns the winner described by a vote.
func winnerFromMsg(msg *mnwire.MsgMNWinner) *Winner {
	return &Winner{
		Height:             msg.Height,
		CollateralOutPoint: msg.CollateralOutPoint,
		PayeeScript:        append([]byte(nil), msg.PayeeScript...),
		Score:              *new(uint256.Uint256).SetBytesLE(&msg.Score),
		Signature:          msg.Signature,
		State:              StateVoted,
	}
}

// Scheduler elects and records the masternode paid for each block height.
// It is the single writer of the winner list and is safe for concurrent
// access.
type Scheduler struct {
	cfg          Config
	authorityKey *secp256k1.PublicKey

	mtx     sync.Mutex
	winners map[int64]*Winner
	seen    *lru.Set[chainhash.Hash]
}

// New returns a scheduler for the network of cfg.Params.  It fails when the
// network authority public key is malformed or the configured authority
// private key does not match it.
func New(cfg *Config) (*Scheduler, error) {
	pub, err := mnauth.ParsePubKeyHex(cfg.Params.PaymentAuthorityPubKey)
	if err != nil {
		return nil, fmt.Errorf("invalid payment authority key: %w", err)
	}
	if cfg.AuthorityKey != nil && !cfg.AuthorityKey.PubKey().IsEqual(pub) {
		str := "configured payment key is not the network payment authority"
		return nil, ruleError(ErrAuthorityKeyMismatch, str)
	}
	return &Scheduler{
		cfg:          *cfg,
		authorityKey: pub,
		winners:      make(map[int64]*Winner),
		seen:         lru.NewSet[chainhash.Hash](maxSeenVotes),
	}, nil
}

// IsEnabled returns whether the scheduler elects winners itself.
func (s *Scheduler) IsEnabled() bool {
	return s.cfg.AuthorityKey != nil
}

// payeeScript returns the output script of the collateral output op.
func (s *Scheduler) payeeScript(op wire.OutPoint) ([]byte, error) {
	tx, err := s.cfg.Chain.GetTransaction(op.Hash)
	if err != nil {
		return nil, fmt.Errorf("unable to look up collateral %v: %w", op, err)
	}
	if op.Index >= uint32(len(tx.TxOut)) {
		return nil, fmt.Errorf("collateral %v references missing output", op)
	}
	return tx.TxOut[op.Index].PkScript, nil
}

// cycleLength returns the length of the payout cycle, which is the number of
// registered masternodes whether enabled or not.
func (s *Scheduler) cycleLength() int {
	return s.cfg.Registry.Count()
}

// excludedLocked returns the collateral outpoints elected for the cycle
// heights before height.
//
// This function MUST be called with the scheduler mutex held.
func (s *Scheduler) excludedLocked(height int64, cycle int) map[wire.OutPoint]struct{} {
	excluded := make(map[wire.OutPoint]struct{}, cycle)
	for h := height - 1; h > height-int64(cycle) && h >= 0; h-- {
		if w, ok := s.winners[h]; ok {
			excluded[w.CollateralOutPoint] = struct{}{}
		}
	}
	return excluded
}

// ProcessBlock elects the masternode paid at height, signs the election with
// the authority key, and stores it.  Masternodes elected within the most
// recent payout cycle, whose length is the registry size, are skipped in
// favor of the first remaining masternode in payment fairness order.  When
// every enabled masternode was elected within the cycle, the first one in
// fairness order, the least recently paid, is elected regardless.
//
// It returns nil without error when a winner for height is already known.
func (s *Scheduler) ProcessBlock(height int64) (*mnwire.MsgMNWinner, error) {
	if s.cfg.AuthorityKey == nil {
		str := "node does not hold the payment authority key"
		return nil, ruleError(ErrNoAuthorityKey, str)
	}

	ranked, err := s.cfg.Registry.RankedList(height,
		s.cfg.Params.MinProtocolVersion)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		str := fmt.Sprintf("no enabled masternode to pay at height %d", height)
		return nil, ruleError(ErrNoEligible, str)
	}
	cycle := s.cycleLength()

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.winners[height]; ok {
		return nil, nil
	}

	excluded := s.excludedLocked(height, cycle)
	elected := &ranked[0]
	for i := range ranked {
		if _, ok := excluded[ranked[i].Record.CollateralOutPoint]; !ok {
			elected = &ranked[i]
			break
		}
	}

	op := elected.Record.CollateralOutPoint
	payee, err := s.payeeScript(op)
	if err != nil {
		return nil, err
	}
	msg := &mnwire.MsgMNWinner{
		Height:             height,
		CollateralOutPoint: op,
		Sequence:           wire.MaxTxInSequenceNum,
		PayeeScript:        payee,
	}
	elected.Score.PutBytesLE(&msg.Score)
	if err := mnauth.SignMessage(msg, s.cfg.AuthorityKey); err != nil {
		return nil, err
	}

	s.winners[height] = winnerFromMsg(msg)
	if id, err := mnwire.MessageID(msg); err == nil {
		s.seen.Put(id)
	}
	log.Infof("Elected masternode %v for payment at height %d", op, height)
	return msg, nil
}

// ReceiveVote processes a winner vote received from the network.  The vote
// is stored when no winner is known for its height or when it carries a
// higher score than the known one.  The returned bool reports whether the
// vote was stored and should be relayed.
func (s *Scheduler) ReceiveVote(msg *mnwire.MsgMNWinner) (bool, error) {
	id, err := mnwire.MessageID(msg)
	if err != nil {
		return false, err
	}
	if s.seenVote(id) {
		return false, nil
	}

	params := s.cfg.Params
	best := s.cfg.Chain.BestHeight()
	if msg.Height < best-params.VoteWindowBehind ||
		msg.Height > best+params.VoteWindowAhead {

		str := fmt.Sprintf("winner vote for height %d is outside of the "+
			"window around best height %d", msg.Height, best)
		return false, ruleError(ErrVoteOutOfWindow, str)
	}
	if msg.Sequence != wire.MaxTxInSequenceNum {
		str := fmt.Sprintf("winner vote for height %d has non-final "+
			"sequence %d", msg.Height, msg.Sequence)
		return false, ruleError(ErrNonFinalSequence, str)
	}
	if !mnauth.VerifyKey(s.authorityKey, msg.Sig(), msg) {
		str := fmt.Sprintf("winner vote for height %d is not signed by the "+
			"payment authority", msg.Height)
		return false, ruleError(ErrBadSignature, str)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.seen.Put(id)

	vote := winnerFromMsg(msg)
	if existing, ok := s.winners[msg.Height]; ok {
		if existing.State == StateConfirmed ||
			vote.Score.Cmp(&existing.Score) <= 0 {

			return false, nil
		}
		log.Debugf("Replacing winner %v at height %d with %v",
			existing.CollateralOutPoint, msg.Height, msg.CollateralOutPoint)
	}
	s.winners[msg.Height] = vote
	return true, nil
}

// seenVote returns whether a vote with id was already processed.
func (s *Scheduler) seenVote(id chainhash.Hash) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.seen.Contains(id)
}

// Winner returns a copy of the winner known for height.
func (s *Scheduler) Winner(height int64) (Winner, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	w, ok := s.winners[height]
	if !ok {
		return Winner{}, false
	}
	return *w, true
}

// State returns the payment state of height.
func (s *Scheduler) State(height int64) VoteState {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if w, ok := s.winners[height]; ok {
		return w.State
	}
	return StateUnscheduled
}

// GetBlockPayee returns the output script paid at height.  The stored
// winner is resolved through the ledger to its collateral output script,
// which must match the payee script of the vote.
func (s *Scheduler) GetBlockPayee(height int64) ([]byte, error) {
	w, ok := s.Winner(height)
	if !ok {
		str := fmt.Sprintf("no winner known for height %d", height)
		return nil, ruleError(ErrNoWinner, str)
	}
	script, err := s.payeeScript(w.CollateralOutPoint)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(script, w.PayeeScript) {
		str := fmt.Sprintf("payee of height %d does not match collateral %v",
			height, w.CollateralOutPoint)
		return nil, ruleError(ErrPayeeMismatch, str)
	}
	return script, nil
}

// ConfirmBlock marks the payment at height as confirmed by a connected block
// and records the payment with the registry.
func (s *Scheduler) ConfirmBlock(height int64, t time.Time) {
	s.mtx.Lock()
	w, ok := s.winners[height]
	if ok {
		w.State = StateConfirmed
	}
	s.mtx.Unlock()
	if ok {
		s.cfg.Registry.MarkPaid(w.CollateralOutPoint, height, t)
	}
}

// retention returns the number of blocks winner votes are kept for.
func (s *Scheduler) retention() int64 {
	retention := 2 * int64(s.cfg.Registry.Count())
	if retention < s.cfg.Params.MinVoteRetention {
		retention = s.cfg.Params.MinVoteRetention
	}
	return retention
}

// Prune drops votes for heights older than the retention window below best
// and returns the number of dropped votes.
func (s *Scheduler) Prune(best int64) int {
	limit := best - s.retention()
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var pruned int
	for height := range s.winners {
		if height < limit {
			delete(s.winners, height)
			pruned++
		}
	}
	if pruned > 0 {
		log.Debugf("Pruned %d winner votes below height %d", pruned, limit)
	}
	return pruned
}

// SyncVotes returns the votes sent to a peer that requests winner sync,
// ordered by height.
func (s *Scheduler) SyncVotes(best int64) []*mnwire.MsgMNWinner {
	from := best - s.cfg.Params.VoteWindowBehind
	winners := s.Winners()
	var msgs []*mnwire.MsgMNWinner
	for i := range winners {
		if winners[i].Height >= from {
			msgs = append(msgs, winners[i].Msg())
		}
	}
	return msgs
}

// Winners returns copies of all known winners ordered by height.
func (s *Scheduler) Winners() []Winner {
	s.mtx.Lock()
	winners := make([]Winner, 0, len(s.winners))
	for _, w := range s.winners {
		winners = append(winners, *w)
	}
	s.mtx.Unlock()
	sort.Slice(winners, func(i, j int) bool {
		return winners[i].Height < winners[j].Height
	})
	return winners
}

// Restore adds persisted winners whose authority signature verifies and
// whose height is not known yet.  It returns the number of restored winners.
func (s *Scheduler) Restore(winners []Winner) int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var restored int
	for i := range winners {
		w := winners[i]
		if _, ok := s.winners[w.Height]; ok {
			continue
		}
		if !mnauth.VerifyKey(s.authorityKey, w.Signature[:], w.Msg()) {
			log.Warnf("Skipping cached winner for height %d with invalid "+
				"signature", w.Height)
			continue
		}
		w.PayeeScript = append([]byte(nil), w.PayeeScript...)
		s.winners[w.Height] = &w
		restored++
	}
	return restored
}
