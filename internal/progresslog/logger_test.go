// Copyright (c) 2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package progresslog

import (
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/decred/slog"
)

var (
	backendLog = slog.NewBackend(io.Discard)
	testLog    = backendLog.Logger("TEST")
)

// TestLogProgress ensures the logging functionality works as expected via a
// test logger.
func TestLogProgress(t *testing.T) {
	testStats := []BlockStats{
		{Height: 100000, Paid: true, Elected: true, Pruned: 2},
		{Height: 100001, Elected: true},
		{Height: 100002, Paid: true, Pruned: 1},
	}

	tests := []struct {
		name             string
		reset            bool
		inputStats       *BlockStats
		forceLog         bool
		inputLastLogTime time.Time
		wantBlocks       uint64
		wantPaid         uint64
		wantElected      uint64
		wantPruned       uint64
	}{{
		name:             "round 1, block 0, last log time < 10 secs ago, not forced",
		inputStats:       &testStats[0],
		inputLastLogTime: time.Now(),
		wantBlocks:       1,
		wantPaid:         1,
		wantElected:      1,
		wantPruned:       2,
	}, {
		name:             "round 1, block 1, last log time < 10 secs ago, not forced",
		inputStats:       &testStats[1],
		inputLastLogTime: time.Now(),
		wantBlocks:       2,
		wantPaid:         1,
		wantElected:      2,
		wantPruned:       2,
	}, {
		name:             "round 1, block 2, last log time < 10 secs ago, forced",
		inputStats:       &testStats[2],
		forceLog:         true,
		inputLastLogTime: time.Now(),
	}, {
		name:             "round 2, block 0, last log time < 10 secs ago, not forced",
		reset:            true,
		inputStats:       &testStats[0],
		inputLastLogTime: time.Now(),
		wantBlocks:       1,
		wantPaid:         1,
		wantElected:      1,
		wantPruned:       2,
	}, {
		name:             "round 2, block 1, last log time > 10 secs ago, not forced",
		inputStats:       &testStats[1],
		inputLastLogTime: time.Now().Add(-11 * time.Second),
	}, {
		name:             "round 2, block 2, last log time > 10 secs ago, forced",
		inputStats:       &testStats[2],
		forceLog:         true,
		inputLastLogTime: time.Now().Add(-11 * time.Second),
	}}

	progressLogger := New("Connected", testLog)
	for _, test := range tests {
		if test.reset {
			progressLogger = New("Connected", testLog)
		}
		progressLogger.SetLastLogTime(test.inputLastLogTime)
		progressLogger.LogProgress(test.inputStats, test.forceLog)
		want := &Logger{
			receivedBlocks:  test.wantBlocks,
			paidBlocks:      test.wantPaid,
			electedVotes:    test.wantElected,
			prunedVotes:     test.wantPruned,
			lastLogTime:     progressLogger.lastLogTime,
			progressAction:  progressLogger.progressAction,
			subsystemLogger: progressLogger.subsystemLogger,
		}
		if !reflect.DeepEqual(progressLogger, want) {
			t.Errorf("%s:\nwant: %+v\ngot: %+v\n", test.name, want,
				progressLogger)
		}
	}
}
