// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
	"github.com/mnsuite/mnd/internal/activemn"
	"github.com/mnsuite/mnd/internal/banmanager"
	"github.com/mnsuite/mnd/internal/masternode"
	"github.com/mnsuite/mnd/internal/mixclient"
	"github.com/mnsuite/mnd/internal/mixpool"
	"github.com/mnsuite/mnd/internal/mixqueue"
	"github.com/mnsuite/mnd/internal/mncache"
	"github.com/mnsuite/mnd/internal/mnpayments"
)

// logWriter implements an io.Writer that outputs to both standard output and
// the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

// Loggers per subsystem.  A single backend logger is created and all subsystem
// loggers created from it will write to the backend.  When adding new
// subsystems, add the subsystem logger variable here and to the
// subsystemLoggers map.
//
// Loggers can not be used before the log rotator has been initialized with a
// log file.  This must be performed early during application startup by
// calling initLogRotator.
var (
	// backendLog is the logging backend used to create all subsystem loggers.
	// The backend must not be used before the log rotator has been initialized,
	// or data races and/or nil pointer dereferences will occur.
	backendLog = slog.NewBackend(logWriter{})

	// logRotator is one of the logging outputs.  It should be closed on
	// application shutdown.
	logRotator *rotator.Rotator

	mndLog  = backendLog.Logger("MND")
	srvrLog = backendLog.Logger("SRVR")
	mnrgLog = backendLog.Logger("MNRG")
	mnpyLog = backendLog.Logger("MNPY")
	mixpLog = backendLog.Logger("MIXP")
	mixcLog = backendLog.Logger("MIXC")
	mixqLog = backendLog.Logger("MIXQ")
	bmgrLog = backendLog.Logger("BMGR")
	mncaLog = backendLog.Logger("MNCA")
	amnmLog = backendLog.Logger("AMNM")
)

// Initialize package-global logger variables.
func init() {
	activemn.UseLogger(amnmLog)
	banmanager.UseLogger(bmgrLog)
	masternode.UseLogger(mnrgLog)
	mixclient.UseLogger(mixcLog)
	mixpool.UseLogger(mixpLog)
	mixqueue.UseLogger(mixqLog)
	mncache.UseLogger(mncaLog)
	mnpayments.UseLogger(mnpyLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]slog.Logger{
	"MND":  mndLog,
	"SRVR": srvrLog,
	"MNRG": mnrgLog,
	"MNPY": mnpyLog,
	"MIXP": mixpLog,
	"MIXC": mixcLog,
	"MIXQ": mixqLog,
	"BMGR": bmgrLog,
	"MNCA": mncaLog,
	"AMNM": amnmLog,
}

// initLogRotator initializes the logging rotater to write logs to logFile and
// create roll files in the same directory.  It must be called before the
// package-global log rotater variables are used.  maxSizeKiB is the size a
// log file reaches before it is rolled.
func initLogRotator(logFile string, maxSizeKiB int64, maxRolls int) error {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	r, err := rotator.New(logFile, maxSizeKiB, false, maxRolls)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}

	logRotator = r
	return nil
}

// setLogLevel sets the logging level for provided subsystem.  Invalid
// subsystems are ignored.  Uninitialized subsystems are dynamically created as
// needed.
func setLogLevel(subsystemID string, logLevel string) {
	// Ignore invalid subsystems.
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}

	// Defaults to info if the log level is invalid.
	level, _ := slog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// setLogLevels sets the log level for all subsystem loggers to the passed
// level.  It also dynamically creates the subsystem loggers as needed, so it
// can be used to initialize the logging system.
func setLogLevels(logLevel string) {
	// Configure all sub-systems with the new logging level.  Dynamically
	// create loggers as needed.
	for subsystemID := range subsystemLoggers {
		setLogLevel(subsystemID, logLevel)
	}
}

// logClosure is used to provide a closure over expensive logging operations so
// don't have to be performed when the logging level doesn't warrant it.
type logClosure func() string

// String invokes the underlying function and returns the result.
func (c logClosure) String() string {
	return c()
}

// newLogClosure returns a new closure over a function that returns a string
// which itself provides a Stringer interface so that it can be used with the
// logging system.
func newLogClosure(c func() string) logClosure {
	return logClosure(c)
}

// pickNoun returns the singular or plural form of a noun depending on the
// count n.
func pickNoun(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
