// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mncache persists the masternode registry and the payment winner
// list across restarts in a leveldb database.
//
// The cache only stores the signed messages records and winners were built
// from.  Nothing loaded from it is trusted: restored records are verified
// and rechecked against the ledger by their owners before use.
package mncache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/decred/dcrd/math/uint256"
	"github.com/decred/dcrd/wire"
	"github.com/mnsuite/mnd/internal/masternode"
	"github.com/mnsuite/mnd/internal/mnpayments"
	"github.com/mnsuite/mnd/internal/mnwire"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	// currentCacheVersion indicates the current cache database version.
	currentCacheVersion = 1

	// cacheDbName is the name of the cache database.
	cacheDbName = "mncache"
)

var (
	// versionKey houses the version of the cache database.
	versionKey = []byte("version")

	// netKey houses the network the cache database belongs to.
	netKey = []byte("net")

	// recordPrefix prefixes the keys of cached masternode records.  The
	// rest of the key is the serialized collateral outpoint.
	recordPrefix = []byte("mnr")

	// winnerPrefix prefixes the keys of cached payment winners.  The rest
	// of the key is the big endian block height so winners iterate in
	// height order.
	winnerPrefix = []byte("mnw")
)

// ErrorKind identifies a kind of error.  It has full support for errors.Is
// and errors.As, so the caller can directly check against an error kind
// when determining the reason for an error.
type ErrorKind string

// These constants are used to identify a specific CacheError.
const (
	// ErrCache indicates a general cache database error.
	ErrCache = ErrorKind("ErrCache")

	// ErrCacheCorruption indicates the cache database is corrupt.
	ErrCacheCorruption = ErrorKind("ErrCacheCorruption")

	// ErrCacheNotOpen indicates the cache database was used after it was
	// closed.
	ErrCacheNotOpen = ErrorKind("ErrCacheNotOpen")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// CacheError identifies a cache database error.  It has full support for
// errors.Is and errors.As.
type CacheError struct {
	Err         error
	Description string
	RawErr      error
}

// Error satisfies the error interface and prints human-readable errors.
func (e CacheError) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e CacheError) Unwrap() error {
	return e.Err
}

// convertLdbErr converts the passed leveldb error into a cache error with an
// equivalent error kind and the passed description.
func convertLdbErr(ldbErr error, desc string) CacheError {
	var kind = ErrCache
	switch {
	case ldberrors.IsCorrupted(ldbErr):
		kind = ErrCacheCorruption
	case errors.Is(ldbErr, leveldb.ErrClosed):
		kind = ErrCacheNotOpen
	}
	return CacheError{
		Err:         kind,
		Description: fmt.Sprintf("%s: %v", desc, ldbErr),
		RawErr:      ldbErr,
	}
}

// Cache is the masternode cache database.
type Cache struct {
	db  *leveldb.DB
	net wire.CurrencyNet
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// Open loads (or creates when needed) the cache database for net under
// dataDir.  A cache written by another version or for another network is
// emptied.
func Open(dataDir string, net wire.CurrencyNet) (*Cache, error) {
	dbPath := filepath.Join(dataDir, cacheDbName)
	if !fileExists(dbPath) {
		// The error can be ignored here since the call to leveldb.OpenFile
		// will fail if the directory couldn't be created.
		_ = os.MkdirAll(dataDir, 0700)
	}

	log.Infof("Loading masternode cache from '%s'", dbPath)
	opts := opt.Options{
		Strict:      opt.DefaultStrict,
		Compression: opt.NoCompression,
		Filter:      filter.NewBloomFilter(10),
	}
	db, err := leveldb.OpenFile(dbPath, &opts)
	if err != nil {
		return nil, convertLdbErr(err, "failed to open masternode cache")
	}

	c := &Cache{db: db, net: net}
	if err := c.checkVersion(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// checkVersion empties a cache of another version or network and stamps it
// with the current ones.
func (c *Cache) checkVersion() error {
	var want [8]byte
	binary.LittleEndian.PutUint32(want[:4], currentCacheVersion)
	binary.LittleEndian.PutUint32(want[4:], uint32(c.net))

	version, err := c.db.Get(versionKey, nil)
	if err != nil && !errors.Is(err, leveldb.ErrNotFound) {
		return convertLdbErr(err, "failed to read cache version")
	}
	net, err := c.db.Get(netKey, nil)
	if err != nil && !errors.Is(err, leveldb.ErrNotFound) {
		return convertLdbErr(err, "failed to read cache network")
	}
	if bytes.Equal(version, want[:4]) && bytes.Equal(net, want[4:]) {
		return nil
	}

	if version != nil || net != nil {
		log.Infof("Discarding masternode cache of another version or network")
	}
	batch := new(leveldb.Batch)
	iter := c.db.NewIterator(nil, nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return convertLdbErr(err, "failed to iterate masternode cache")
	}
	batch.Put(versionKey, want[:4])
	batch.Put(netKey, want[4:])
	if err := c.db.Write(batch, nil); err != nil {
		return convertLdbErr(err, "failed to reset masternode cache")
	}
	return nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	if err := c.db.Close(); err != nil {
		return convertLdbErr(err, "failed to close masternode cache")
	}
	return nil
}

// replacePrefix atomically replaces every key under prefix with entries.
func (c *Cache) replacePrefix(prefix []byte, entries map[string][]byte) error {
	tx, err := c.db.OpenTransaction()
	if err != nil {
		return convertLdbErr(err, "failed to open leveldb transaction")
	}
	var stale [][]byte
	iter := tx.NewIterator(util.BytesPrefix(prefix), nil)
	for iter.Next() {
		stale = append(stale, append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		tx.Discard()
		return convertLdbErr(err, "failed to iterate masternode cache")
	}
	for _, key := range stale {
		if err := tx.Delete(key, nil); err != nil {
			tx.Discard()
			return convertLdbErr(err, "failed to delete cache entry")
		}
	}
	for key, value := range entries {
		if err := tx.Put([]byte(key), value, nil); err != nil {
			tx.Discard()
			return convertLdbErr(err, "failed to write cache entry")
		}
	}
	if err := tx.Commit(); err != nil {
		tx.Discard()
		return convertLdbErr(err, "failed to commit leveldb transaction")
	}
	return nil
}

// forEach calls fn with the key suffix and value of every entry under
// prefix.
func (c *Cache) forEach(prefix []byte, fn func(key, value []byte)) error {
	iter := c.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		fn(iter.Key()[len(prefix):], iter.Value())
	}
	if err := iter.Error(); err != nil {
		return convertLdbErr(err, "failed to iterate masternode cache")
	}
	return nil
}

// putTime writes t as unix seconds, with zero for the zero time.
func putTime(w *bytes.Buffer, t time.Time) {
	var unix int64
	if !t.IsZero() {
		unix = t.Unix()
	}
	binary.Write(w, binary.LittleEndian, unix)
}

// readTime reads a time written by putTime.
func readTime(r io.Reader) (time.Time, error) {
	var unix int64
	if err := binary.Read(r, binary.LittleEndian, &unix); err != nil {
		return time.Time{}, err
	}
	if unix == 0 {
		return time.Time{}, nil
	}
	return time.Unix(unix, 0), nil
}

// serializeSnapshot returns the cache value of a record snapshot.
func serializeSnapshot(snap *masternode.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := snap.Announce.BtcEncode(&buf, mnwire.ProtocolVersion); err != nil {
		return nil, err
	}
	if snap.Ping == nil {
		buf.WriteByte(0)
	} else {
		buf.WriteByte(1)
		if err := snap.Ping.BtcEncode(&buf, mnwire.ProtocolVersion); err != nil {
			return nil, err
		}
	}
	putTime(&buf, snap.LastSeen)
	binary.Write(&buf, binary.LittleEndian, snap.LastPaidHeight)
	putTime(&buf, snap.LastPaidTime)
	return buf.Bytes(), nil
}

// deserializeSnapshot decodes a cache value written by serializeSnapshot.
func deserializeSnapshot(value []byte) (*masternode.Snapshot, error) {
	r := bytes.NewReader(value)
	snap := &masternode.Snapshot{Announce: new(mnwire.MsgMNAnnounce)}
	if err := snap.Announce.BtcDecode(r, mnwire.ProtocolVersion); err != nil {
		return nil, err
	}
	hasPing, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if hasPing == 1 {
		snap.Ping = new(mnwire.MsgMNPing)
		if err := snap.Ping.BtcDecode(r, mnwire.ProtocolVersion); err != nil {
			return nil, err
		}
	}
	if snap.LastSeen, err = readTime(r); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &snap.LastPaidHeight); err != nil {
		return nil, err
	}
	if snap.LastPaidTime, err = readTime(r); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes", r.Len())
	}
	return snap, nil
}

// outPointKey returns the key suffix of a collateral outpoint.
func outPointKey(op *wire.OutPoint) []byte {
	key := make([]byte, 0, len(op.Hash)+5)
	key = append(key, op.Hash[:]...)
	key = binary.LittleEndian.AppendUint32(key, op.Index)
	return append(key, byte(op.Tree))
}

// SaveRegistry replaces the cached registry with snaps.
func (c *Cache) SaveRegistry(snaps []masternode.Snapshot) error {
	entries := make(map[string][]byte, len(snaps))
	for i := range snaps {
		snap := &snaps[i]
		if snap.Announce == nil {
			continue
		}
		value, err := serializeSnapshot(snap)
		if err != nil {
			return CacheError{
				Err: ErrCache,
				Description: fmt.Sprintf("failed to serialize masternode "+
					"%v: %v", snap.Announce.CollateralOutPoint, err),
				RawErr: err,
			}
		}
		key := append(append([]byte(nil), recordPrefix...),
			outPointKey(&snap.Announce.CollateralOutPoint)...)
		entries[string(key)] = value
	}
	if err := c.replacePrefix(recordPrefix, entries); err != nil {
		return err
	}
	log.Debugf("Saved %d masternodes to the cache", len(entries))
	return nil
}

// LoadRegistry returns the cached record snapshots.  Entries that do not
// decode are skipped.
func (c *Cache) LoadRegistry() ([]masternode.Snapshot, error) {
	var snaps []masternode.Snapshot
	err := c.forEach(recordPrefix, func(key, value []byte) {
		snap, err := deserializeSnapshot(value)
		if err != nil {
			log.Warnf("Skipping corrupt cached masternode %x: %v", key, err)
			return
		}
		snaps = append(snaps, *snap)
	})
	if err != nil {
		return nil, err
	}
	log.Debugf("Loaded %d masternodes from the cache", len(snaps))
	return snaps, nil
}

// serializeWinner returns the cache value of a winner.
func serializeWinner(w *mnpayments.Winner) ([]byte, error) {
	var buf bytes.Buffer
	if err := w.Msg().BtcEncode(&buf, mnwire.ProtocolVersion); err != nil {
		return nil, err
	}
	buf.WriteByte(byte(w.State))
	return buf.Bytes(), nil
}

// deserializeWinner decodes a cache value written by serializeWinner.
func deserializeWinner(value []byte) (*mnpayments.Winner, error) {
	r := bytes.NewReader(value)
	var msg mnwire.MsgMNWinner
	if err := msg.BtcDecode(r, mnwire.ProtocolVersion); err != nil {
		return nil, err
	}
	state, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes", r.Len())
	}
	return &mnpayments.Winner{
		Height:             msg.Height,
		CollateralOutPoint: msg.CollateralOutPoint,
		PayeeScript:        msg.PayeeScript,
		Score:              *new(uint256.Uint256).SetBytesLE(&msg.Score),
		Signature:          msg.Signature,
		State:              mnpayments.VoteState(state),
	}, nil
}

// SaveWinners replaces the cached winner list with winners.
func (c *Cache) SaveWinners(winners []mnpayments.Winner) error {
	entries := make(map[string][]byte, len(winners))
	for i := range winners {
		w := &winners[i]
		value, err := serializeWinner(w)
		if err != nil {
			return CacheError{
				Err: ErrCache,
				Description: fmt.Sprintf("failed to serialize winner for "+
					"height %d: %v", w.Height, err),
				RawErr: err,
			}
		}
		key := append([]byte(nil), winnerPrefix...)
		key = binary.BigEndian.AppendUint64(key, uint64(w.Height))
		entries[string(key)] = value
	}
	if err := c.replacePrefix(winnerPrefix, entries); err != nil {
		return err
	}
	log.Debugf("Saved %d payment winners to the cache", len(entries))
	return nil
}

// LoadWinners returns the cached winners in height order.  Entries that do
// not decode are skipped.
func (c *Cache) LoadWinners() ([]mnpayments.Winner, error) {
	var winners []mnpayments.Winner
	err := c.forEach(winnerPrefix, func(key, value []byte) {
		w, err := deserializeWinner(value)
		if err != nil {
			log.Warnf("Skipping corrupt cached winner %x: %v", key, err)
			return
		}
		winners = append(winners, *w)
	})
	if err != nil {
		return nil, err
	}
	log.Debugf("Loaded %d payment winners from the cache", len(winners))
	return winners, nil
}
