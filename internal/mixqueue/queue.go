// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mixqueue builds and tracks the short lived announcements in which
// masternodes advertise mixing rounds.
package mixqueue

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/decred/dcrd/container/lru"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/wire"
	"github.com/mnsuite/mnd/internal/denom"
	"github.com/mnsuite/mnd/internal/mnauth"
	"github.com/mnsuite/mnd/internal/mnwire"
	"github.com/mnsuite/mnd/internal/netparams"
)

// maxTracked is the maximum number of announcements kept for clients.
const maxTracked = 1024

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind
// when determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific RuleError.
const (
	// ErrUnknownMasternode indicates the announcing masternode is not
	// registered.
	ErrUnknownMasternode = ErrorKind("ErrUnknownMasternode")

	// ErrBadSignature indicates the announcement is not signed by the
	// operator key of the announcing masternode.
	ErrBadSignature = ErrorKind("ErrBadSignature")

	// ErrExpired indicates the announcement is older than the queue
	// timeout.
	ErrExpired = ErrorKind("ErrExpired")

	// ErrFutureTime indicates the announcement is dated further in the
	// future than the queue timeout.
	ErrFutureTime = ErrorKind("ErrFutureTime")

	// ErrTooFrequent indicates the masternode announced a new round before
	// enough other masternodes did.
	ErrTooFrequent = ErrorKind("ErrTooFrequent")

	// ErrInvalidDenomination indicates the announced denomination bitmask
	// is not valid.
	ErrInvalidDenomination = ErrorKind("ErrInvalidDenomination")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// RuleError identifies a rule violation.  It has full support for errors.Is
// and errors.As, so the caller can ascertain the specific reason for the
// error by checking the underlying error.
type RuleError struct {
	Description string
	Err         error
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e RuleError) Unwrap() error {
	return e.Err
}

// ruleError creates a RuleError given a set of arguments.
func ruleError(kind ErrorKind, desc string) RuleError {
	return RuleError{Err: kind, Description: desc}
}

// BanScore returns the misbehavior score a peer earns for relaying an
// announcement that failed with err.
func BanScore(err error) uint32 {
	var kind ErrorKind
	if !errors.As(err, &kind) {
		return 0
	}
	switch kind {
	case ErrBadSignature, ErrInvalidDenomination:
		return 34
	case ErrFutureTime:
		return 1
	}
	return 0
}

// NewAnnouncement returns a queue announcement for the masternode with
// collateral op signed with its operator key.
func NewAnnouncement(op wire.OutPoint, denomination uint32, ready bool,
	operatorKey *secp256k1.PrivateKey, now time.Time) (*mnwire.MsgMixQueue, error) {

	msg := &mnwire.MsgMixQueue{
		CollateralOutPoint: op,
		Denomination:       denomination,
		Time:               now.Unix(),
		Ready:              ready,
	}
	if err := mnauth.SignMessage(msg, operatorKey); err != nil {
		return nil, err
	}
	return msg, nil
}

// Registry provides the registry lookups used to authenticate announcements.
type Registry interface {
	OperatorKey(op wire.OutPoint) ([]byte, bool)
	CountEnabled(minProto uint32) int
}

// Config is the configuration struct for the tracker.
type Config struct {
	Params   *netparams.Params
	Registry Registry

	// Now returns the current time.  It defaults to time.Now.
	Now func() time.Time
}

// Tracker validates announcements received from the network and keeps the
// accepted ones until they expire.
type Tracker struct {
	cfg Config

	mtx    sync.Mutex
	queues *lru.Map[wire.OutPoint, *mnwire.MsgMixQueue]

	// count is the number of accepted announcements of new rounds and
	// lastOpen holds its value when each masternode last opened a round.
	count    uint64
	lastOpen map[wire.OutPoint]uint64
}

// NewTracker returns an empty tracker.
func NewTracker(cfg *Config) *Tracker {
	c := *cfg
	if c.Now == nil {
		c.Now = time.Now
	}
	return &Tracker{
		cfg: c,
		queues: lru.NewMapWithDefaultTTL[wire.OutPoint, *mnwire.MsgMixQueue](
			maxTracked, c.Params.MixingQueueTimeout),
		lastOpen: make(map[wire.OutPoint]uint64),
	}
}

// expired returns whether msg is older than the queue timeout at now.
func (t *Tracker) expired(msg *mnwire.MsgMixQueue, now time.Time) bool {
	return now.Sub(time.Unix(msg.Time, 0)) > t.cfg.Params.MixingQueueTimeout
}

// pruneOpensLocked forgets the rounds opened longer than window rounds ago,
// which no longer restrict their masternode.
//
// This function MUST be called with the tracker mutex held (for writes).
func (t *Tracker) pruneOpensLocked(window uint64) {
	for op, last := range t.lastOpen {
		if last+window <= t.count {
			delete(t.lastOpen, op)
		}
	}
}

// Check validates an announcement received from the network and tracks it
// when accepted.  The returned bool reports whether the announcement is new
// and should be relayed.
func (t *Tracker) Check(msg *mnwire.MsgMixQueue) (bool, error) {
	now := t.cfg.Now()
	timeout := t.cfg.Params.MixingQueueTimeout
	sent := time.Unix(msg.Time, 0)
	op := msg.CollateralOutPoint

	if !denom.Valid(msg.Denomination) {
		str := fmt.Sprintf("queue announcement from %v has invalid "+
			"denomination %#x", op, msg.Denomination)
		return false, ruleError(ErrInvalidDenomination, str)
	}
	if t.expired(msg, now) {
		str := fmt.Sprintf("queue announcement from %v is %v old", op,
			now.Sub(sent))
		return false, ruleError(ErrExpired, str)
	}
	if sent.Sub(now) > timeout {
		str := fmt.Sprintf("queue announcement from %v is dated %v in the "+
			"future", op, sent.Sub(now))
		return false, ruleError(ErrFutureTime, str)
	}
	key, ok := t.cfg.Registry.OperatorKey(op)
	if !ok {
		str := fmt.Sprintf("queue announcement from unknown masternode %v", op)
		return false, ruleError(ErrUnknownMasternode, str)
	}
	if !mnauth.Verify(key, msg.Sig(), msg) {
		str := fmt.Sprintf("queue announcement from %v has an invalid "+
			"signature", op)
		return false, ruleError(ErrBadSignature, str)
	}
	enabled := t.cfg.Registry.CountEnabled(t.cfg.Params.MinProtocolVersion)

	t.mtx.Lock()
	defer t.mtx.Unlock()

	if prev, ok := t.queues.Peek(op); ok && prev.Ready == msg.Ready &&
		prev.Time >= msg.Time {

		return false, nil
	}

	// A masternode may only open a new round after a fifth of the enabled
	// masternodes opened one.
	if !msg.Ready {
		window := uint64(enabled / 5)
		last, ok := t.lastOpen[op]
		if ok && last+window > t.count {
			str := fmt.Sprintf("masternode %v is opening rounds too often", op)
			return false, ruleError(ErrTooFrequent, str)
		}
		t.count++
		t.lastOpen[op] = t.count
		t.pruneOpensLocked(window)
	}

	cpy := *msg
	t.queues.Put(op, &cpy)
	log.Debugf("Tracking queue from %v for %s (ready %v)", op,
		denom.String(msg.Denomination), msg.Ready)
	return true, nil
}

// matching returns the live tracked announcements compatible with the
// denomination mask and the ready flag, newest first.
func (t *Tracker) matching(mask uint32, ready bool) []*mnwire.MsgMixQueue {
	now := t.cfg.Now()
	t.mtx.Lock()
	t.queues.EvictExpiredNow()
	all := t.queues.Values()
	t.mtx.Unlock()

	var msgs []*mnwire.MsgMixQueue
	for _, msg := range all {
		if msg.Ready != ready || t.expired(msg, now) {
			continue
		}
		if !denom.Compatible(msg.Denomination, mask) {
			continue
		}
		cpy := *msg
		msgs = append(msgs, &cpy)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Time > msgs[j].Time
	})
	return msgs
}

// Open returns the announcements of rounds still accepting participants that
// are compatible with the denomination mask.
func (t *Tracker) Open(mask uint32) []*mnwire.MsgMixQueue {
	return t.matching(mask, false)
}

// Ready returns the announcements of rounds that reached their quorum and
// are compatible with the denomination mask.
func (t *Tracker) Ready(mask uint32) []*mnwire.MsgMixQueue {
	return t.matching(mask, true)
}

// Len returns the number of tracked announcements.
func (t *Tracker) Len() int {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return int(t.queues.Len())
}
