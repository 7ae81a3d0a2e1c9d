// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package masternode

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/math/uint256"
	"github.com/decred/dcrd/wire"
)

// hashToUint256 interprets a hash as a little endian 256-bit integer.
func hashToUint256(hash *chainhash.Hash) uint256.Uint256 {
	return *new(uint256.Uint256).SetBytesLE((*[32]byte)(hash))
}

// ScoreFor returns the election score of the masternode with collateral op
// for the block with hash blockHash.  The score is the distance between the
// hash of the block hash and the hash of the block hash committed together
// with the collateral outpoint.  It is a pure function of its inputs.
func ScoreFor(op wire.OutPoint, blockHash chainhash.Hash) uint256.Uint256 {
	var buf [chainhash.HashSize*2 + 4]byte
	copy(buf[:], blockHash[:])
	copy(buf[chainhash.HashSize:], op.Hash[:])
	binary.LittleEndian.PutUint32(buf[chainhash.HashSize*2:], op.Index)

	h1 := chainhash.HashH(blockHash[:])
	h2 := chainhash.HashH(buf[:])
	a, b := hashToUint256(&h1), hashToUint256(&h2)
	if a.Cmp(&b) >= 0 {
		return *new(uint256.Uint256).Sub2(&a, &b)
	}
	return *new(uint256.Uint256).Sub2(&b, &a)
}

// scoreBlockHash returns the hash of the block that seeds the scores for
// payment at height.  The seed block trails the paid height by the payment
// lookahead, so scores are known when the winner is elected and are the same
// on every node regardless of its current tip.
func (r *Registry) scoreBlockHash(height int64) (chainhash.Hash, error) {
	seed := height - r.cfg.Params.PaymentLookahead
	if seed < 0 {
		seed = 0
	}
	hash, err := r.cfg.Chain.GetBlockHash(seed)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("unable to fetch score block "+
			"for height %d: %w", height, err)
	}
	return hash, nil
}

// CalculateScore returns the score of the masternode with collateral op for
// payment at height.
func (r *Registry) CalculateScore(op wire.OutPoint, height int64) (uint256.Uint256, error) {
	blockHash, err := r.scoreBlockHash(height)
	if err != nil {
		return uint256.Uint256{}, err
	}
	return ScoreFor(op, blockHash), nil
}

// Ranked is a record along with its score for a height.
type Ranked struct {
	Record Record
	Score  uint256.Uint256
}

// enabledScored returns the enabled records and their scores for height.
func (r *Registry) enabledScored(height int64, minProto uint32) ([]Ranked, error) {
	blockHash, err := r.scoreBlockHash(height)
	if err != nil {
		return nil, err
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()
	ranked := make([]Ranked, 0, len(r.records))
	for _, rec := range r.records {
		if !rec.IsEnabled(minProto) {
			continue
		}
		ranked = append(ranked, Ranked{
			Record: *rec,
			Score:  ScoreFor(rec.CollateralOutPoint, blockHash),
		})
	}
	return ranked, nil
}

// CurrentWinner returns the enabled record with the highest score for
// payment at height.  The result does not depend on the iteration order of
// the registry.
func (r *Registry) CurrentWinner(height int64, minProto uint32) (*Ranked, error) {
	ranked, err := r.enabledScored(height, minProto)
	if err != nil {
		return nil, err
	}
	var best *Ranked
	for i := range ranked {
		cand := &ranked[i]
		if best == nil {
			best = cand
			continue
		}
		switch cand.Score.Cmp(&best.Score) {
		case 1:
			best = cand
		case 0:
			// Identical scores require a hash collision, but the order
			// must stay deterministic regardless.
			if outPointLess(&cand.Record.CollateralOutPoint,
				&best.Record.CollateralOutPoint) {
				best = cand
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	cpy := *best
	return &cpy, nil
}

// fairnessLess orders records by the number of blocks since their last
// payment, longest first, with never paid records first and ties broken by
// the higher score.
func fairnessLess(a, b *Ranked) bool {
	// Ascending last paid height is descending blocks since payment, so
	// the least recently paid record comes first.  Never paid records have
	// height 0.
	if a.Record.LastPaidHeight != b.Record.LastPaidHeight {
		return a.Record.LastPaidHeight < b.Record.LastPaidHeight
	}
	if c := a.Score.Cmp(&b.Score); c != 0 {
		return c > 0
	}
	return outPointLess(&a.Record.CollateralOutPoint,
		&b.Record.CollateralOutPoint)
}

// RankedList returns the enabled records in payment fairness order for
// height.
func (r *Registry) RankedList(height int64, minProto uint32) ([]Ranked, error) {
	ranked, err := r.enabledScored(height, minProto)
	if err != nil {
		return nil, err
	}
	sort.Slice(ranked, func(i, j int) bool {
		return fairnessLess(&ranked[i], &ranked[j])
	})
	return ranked, nil
}

// Rank returns the 1-based position of the masternode with collateral op in
// the fairness order for height, or 0 when it is not enabled.
func (r *Registry) Rank(op wire.OutPoint, height int64, minProto uint32) (int, error) {
	ranked, err := r.RankedList(height, minProto)
	if err != nil {
		return 0, err
	}
	for i := range ranked {
		if ranked[i].Record.CollateralOutPoint == op {
			return i + 1, nil
		}
	}
	return 0, nil
}
