// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
mnd is a masternode daemon.  It keeps the network wide list of masternodes,
schedules the masternode payments, runs a local masternode and coordinates or
takes part in coin mixing sessions.

The default options are sane for most users.  The long form of all of the
options (except -C) can be specified in a configuration file that is
automatically parsed when mnd starts up.  By default, the configuration file is
located at ~/.mnd/mnd.conf on POSIX-style operating systems and
%LOCALAPPDATA%\mnd\mnd.conf on Windows.  The -C (--configfile) flag can be used
to override this location.

Usage:

	mnd [OPTIONS]

Application Options:

	-A, --appdata=            Path to application home directory
	-V, --version             Display version information and exit
	-C, --configfile=         Path to configuration file
	-b, --datadir=            Directory to store data
	    --nomncache           Do not persist the masternode list and payment
	                          votes across restarts
	    --logdir=             Directory to log output
	    --nofilelogging       Disable file logging
	-d, --debuglevel=         Logging level for all subsystems {trace, debug,
	                          info, warn, error, critical} -- You may also
	                          specify <subsystem>=<level>,<subsystem2>=<level>,...
	                          to set the log level for individual subsystems --
	                          Use show to list available subsystems (info)
	    --logsize=            Maximum size of log file before it is rotated
	                          (default: 10M)
	    --maxlogfiles=        Maximum number of logfiles to keep (0 for no
	                          rotation) (default: 3)
	    --profile=            Enable HTTP profiling on given [addr:]port --
	                          NOTE: port must be between 1024 and 65535
	    --profileallownonloopback
	                          Allow the profile server to listen on addresses
	                          that are not loopback addresses
	    --cpuprofile=         Write CPU profile to the specified file
	    --testnet             Use the test network
	    --simnet              Use the simulation test network
	    --regnet              Use the regression test network
	    --masternode          Run a masternode -- Requires --operatorkey,
	                          --collateral, --collateralkey and --externalip
	    --operatorkey=        Hex encoded private key the masternode signs its
	                          messages with
	    --collateral=         Collateral output of the masternode as txid:index
	    --collateralkey=      Hex encoded public key the collateral output pays
	                          to
	    --externalip=         host:port other nodes reach the masternode at
	    --proxy=              Connect via SOCKS5 proxy (eg. 127.0.0.1:9050) when
	                          checking the external address
	    --proxyuser=          Username for proxy server
	    --proxypass=          Password for proxy server
	    --paymentkey=         Hex encoded payment authority private key --
	                          Enables electing payment winners
	    --mixing              Coordinate mixing sessions -- Requires
	                          --masternode
	    --mixingquorum=       Number of entries a mixing session needs before
	                          signing (default: 3)
	    --simblockinterval=   Mine a block of the process local ledger at this
	                          interval -- Only valid on simnet and regnet
	    --nobanning           Disable banning of misbehaving peers
	    --banduration=        How long to ban misbehaving peers.  Valid time
	                          units are {s, m, h}.  Minimum 1 second (default:
	                          24h0m0s)
	    --banthreshold=       Maximum allowed ban score before disconnecting
	                          and banning misbehaving peers (default: 100)
	    --whitelist=          Add an IP network or IP that will not be banned
	                          (eg. 192.168.1.0/24 or ::1)

Help Options:

	-h, --help           Show this help message
*/
package main
