// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"

	"github.com/mnsuite/mnd/internal/limits"
	"github.com/mnsuite/mnd/internal/memledger"
	"github.com/mnsuite/mnd/internal/mncache"
	"github.com/mnsuite/mnd/internal/version"
)

// mndMain is the real main function for mnd.  It is necessary to work around
// the fact that deferred functions do not run when os.Exit() is called.
func mndMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	cfg, _, err := loadConfig(appName)
	if err != nil {
		usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
		fmt.Fprintln(os.Stderr, err)
		var e errSuppressUsage
		if !errors.As(err, &e) {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Get a context that will be canceled when a shutdown signal has been
	// triggered from an OS signal such as SIGINT (Ctrl+C).
	ctx := shutdownListener()
	defer mndLog.Info("Shutdown complete")

	// Show version and home dir at startup.
	mndLog.Infof("Version %s (Go version %s %s/%s)", version.String(),
		runtime.Version(), runtime.GOOS, runtime.GOARCH)
	mndLog.Infof("Home dir: %s", cfg.HomeDir)
	if cfg.NoFileLogging {
		mndLog.Info("File logging disabled")
	}
	limits.SetMemoryLimit(limits.DefaultMemoryLimit)

	// Enable http profiling server if requested.
	if cfg.Profile != "" {
		var profiler profileServer
		err := profiler.Start(cfg.Profile, cfg.ProfileAllowNonLoopback)
		if err != nil {
			mndLog.Errorf("Unable to start profiling server: %v", err)
			return err
		}
		defer profiler.Stop()
	}

	// Write cpu profile if requested.
	if cfg.CPUProfile != "" {
		f, err := os.Create(cfg.CPUProfile)
		if err != nil {
			mndLog.Errorf("Unable to create cpu profile: %v", err)
			return err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			mndLog.Errorf("Unable to start cpu profile: %v", err)
			return err
		}
		defer f.Close()
		defer pprof.StopCPUProfile()
	}

	// Return now if a shutdown signal was triggered.
	if shutdownRequested(ctx) {
		return nil
	}

	// Open the masternode cache.
	var cache *mncache.Cache
	if !cfg.NoMNCache {
		cache, err = mncache.Open(cfg.DataDir, cfg.params.Net)
		if err != nil {
			mndLog.Errorf("%v", err)
			return err
		}
		defer func() {
			mndLog.Infof("Gracefully shutting down the masternode cache...")
			cache.Close()
		}()
	}

	// The daemon keeps a process local ledger.  Blocks are only produced
	// when a sim block interval is configured.
	ledger := memledger.New(cfg.params.Params)
	scfg := &serverConfig{
		Params:         cfg.params,
		Ledger:         ledger,
		Notifier:       logNotifier{},
		Cache:          cache,
		PaymentKey:     cfg.paymentKey,
		Mixing:         cfg.Mixing,
		DisableBanning: cfg.NoBanning,
		BanThreshold:   cfg.BanThreshold,
		BanDuration:    cfg.BanDuration,
		Whitelists:     cfg.whitelists,
	}
	if cfg.Masternode {
		scfg.Masternode = &localMasternode{
			OperatorKey:        cfg.operatorKey,
			CollateralOutPoint: cfg.collateral,
			CollateralPubKey:   cfg.collateralKey,
			ExternalAddr:       cfg.ExternalIP,
			Proxy:              cfg.Proxy,
			ProxyUser:          cfg.ProxyUser,
			ProxyPass:          cfg.ProxyPass,
		}
	}
	if cfg.SimBlockInterval > 0 {
		scfg.MineBlock = func() int64 { return ledger.MineBlocks(1) }
		scfg.BlockInterval = cfg.SimBlockInterval
	}

	// Return now if a shutdown signal was triggered.
	if shutdownRequested(ctx) {
		return nil
	}

	// Create server.
	svr, err := newServer(scfg)
	if err != nil {
		mndLog.Errorf("Unable to start server: %v", err)
		return err
	}

	// Run the server.  This will block until the context is cancelled which
	// happens when the interrupt signal is received.
	if err := svr.Run(ctx); err != nil {
		srvrLog.Errorf("Server stopped: %v", err)
		return err
	}
	srvrLog.Infof("Server shutdown complete")
	return nil
}

func main() {
	// Work around defer not working after os.Exit()
	if err := mndMain(); err != nil {
		os.Exit(1)
	}
}
