// Copyright (c) 2015-2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package progresslog

import (
	"sync"
	"time"

	"github.com/decred/slog"
)

// logInterval is the minimum time between two unforced progress messages.
const logInterval = 10 * time.Second

// pickNoun returns the singular or plural form of a noun depending on the
// provided count.
func pickNoun(n uint64, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

// BlockStats describes the payment work done for a single connected block.
type BlockStats struct {
	Height int64

	// Paid is set when the block had a known winner whose payment was
	// confirmed.
	Paid bool

	// Elected is set when a winner vote was elected for a later block.
	Elected bool

	// Pruned is the number of winner votes pruned.
	Pruned int
}

// Logger provides periodic logging of progress towards some action such as
// connecting blocks.
type Logger struct {
	sync.Mutex
	subsystemLogger slog.Logger
	progressAction  string

	// lastLogTime tracks the last time a log statement was shown.
	lastLogTime time.Time

	// These fields accumulate information about blocks between log statements.
	receivedBlocks uint64
	paidBlocks     uint64
	electedVotes   uint64
	prunedVotes    uint64
}

// New returns a new block progress logger.
func New(progressAction string, logger slog.Logger) *Logger {
	return &Logger{
		lastLogTime:     time.Now(),
		progressAction:  progressAction,
		subsystemLogger: logger,
	}
}

// LogProgress accumulates the provided block stats and periodically (every 10
// seconds) logs an information message to show progress to the user along
// with duration and totals included.
//
// The force flag may be used to force a log message to be shown regardless of
// the time the last one was shown.
//
// The progress message is templated as follows:
//
//	{progressAction} {numProcessed} {blocks|block} in the last {timePeriod}
//	({numPaid} paid, {numElected} {votes|vote} elected, {numPruned}
//	{votes|vote} pruned, height {lastBlockHeight})
func (l *Logger) LogProgress(stats *BlockStats, forceLog bool) {
	l.Lock()
	defer l.Unlock()

	l.receivedBlocks++
	if stats.Paid {
		l.paidBlocks++
	}
	if stats.Elected {
		l.electedVotes++
	}
	l.prunedVotes += uint64(stats.Pruned)
	now := time.Now()
	duration := now.Sub(l.lastLogTime)
	if !forceLog && duration < logInterval {
		return
	}

	l.subsystemLogger.Infof("%s %d %s in the last %0.2fs (%d paid, %d %s "+
		"elected, %d %s pruned, height %d)", l.progressAction,
		l.receivedBlocks, pickNoun(l.receivedBlocks, "block", "blocks"),
		duration.Seconds(), l.paidBlocks,
		l.electedVotes, pickNoun(l.electedVotes, "vote", "votes"),
		l.prunedVotes, pickNoun(l.prunedVotes, "vote", "votes"),
		stats.Height)

	l.receivedBlocks = 0
	l.paidBlocks = 0
	l.electedVotes = 0
	l.prunedVotes = 0
	l.lastLogTime = now
}

// SetLastLogTime updates the last time data was logged to the provided time.
func (l *Logger) SetLastLogTime(time time.Time) {
	l.Lock()
	l.lastLogTime = time
	l.Unlock()
}
