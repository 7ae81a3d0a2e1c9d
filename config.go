// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/wire"
	"github.com/decred/slog"
	flags "github.com/jessevdk/go-flags"
	"github.com/mnsuite/mnd/internal/mnauth"
	"github.com/mnsuite/mnd/internal/netparams"
	"github.com/mnsuite/mnd/internal/version"
)

const (
	defaultConfigFilename = "mnd.conf"
	defaultDataDirname    = "data"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "mnd.log"
	defaultLogSize        = "10M"
	defaultMaxLogFiles    = 3
	defaultBanDuration    = time.Hour * 24
	defaultBanThreshold   = 100
	defaultMaxPeers       = 125
	defaultMixingQuorum   = 3
	minMixingQuorum       = 2
	maxMixingQuorum       = 20
)

var (
	defaultHomeDir    = dcrutil.AppDataDir("mnd", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// config defines the configuration options for mnd.
//
// See loadConfig for details on the configuration load process.
type config struct {
	// General application behavior.
	HomeDir     string `short:"A" long:"appdata" description:"Path to application home directory"`
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir     string `short:"b" long:"datadir" description:"Directory to store data"`
	NoMNCache   bool   `long:"nomncache" description:"Do not persist the masternode list and payment votes across restarts"`

	// Logging.
	LogDir        string `long:"logdir" description:"Directory to log output"`
	NoFileLogging bool   `long:"nofilelogging" description:"Disable file logging"`
	DebugLevel    string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	LogSize       string `long:"logsize" description:"Maximum size of log file before it is rotated"`
	MaxLogFiles   int    `long:"maxlogfiles" description:"Maximum number of logfiles to keep (0 for no rotation)"`

	// Profiling.
	Profile                 string `long:"profile" description:"Enable HTTP profiling on given [addr:]port -- NOTE: port must be between 1024 and 65535"`
	ProfileAllowNonLoopback bool   `long:"profileallownonloopback" description:"Allow the profile server to listen on addresses that are not loopback addresses"`
	CPUProfile              string `long:"cpuprofile" description:"Write CPU profile to the specified file"`

	// Network.
	TestNet bool `long:"testnet" description:"Use the test network"`
	SimNet  bool `long:"simnet" description:"Use the simulation test network"`
	RegNet  bool `long:"regnet" description:"Use the regression test network"`

	// Local masternode.
	Masternode    bool   `long:"masternode" description:"Run a masternode -- Requires --operatorkey, --collateral, --collateralkey and --externalip"`
	OperatorKey   string `long:"operatorkey" description:"Hex encoded private key the masternode signs its messages with"`
	Collateral    string `long:"collateral" description:"Collateral output of the masternode as txid:index"`
	CollateralKey string `long:"collateralkey" description:"Hex encoded public key the collateral output pays to"`
	ExternalIP    string `long:"externalip" description:"host:port other nodes reach the masternode at"`
	Proxy         string `long:"proxy" description:"Connect via SOCKS5 proxy (eg. 127.0.0.1:9050) when checking the external address"`
	ProxyUser     string `long:"proxyuser" description:"Username for proxy server"`
	ProxyPass     string `long:"proxypass" default-mask:"-" description:"Password for proxy server"`

	// Payments.
	PaymentKey string `long:"paymentkey" description:"Hex encoded payment authority private key -- Enables electing payment winners"`

	// Mixing.
	Mixing           bool          `long:"mixing" description:"Coordinate mixing sessions -- Requires --masternode"`
	MixingQuorum     int           `long:"mixingquorum" description:"Number of entries a mixing session needs before signing"`
	SimBlockInterval time.Duration `long:"simblockinterval" description:"Mine a block of the process local ledger at this interval -- Only valid on simnet and regnet"`

	// Peer misbehavior.
	NoBanning    bool          `long:"nobanning" description:"Disable banning of misbehaving peers"`
	BanDuration  time.Duration `long:"banduration" description:"How long to ban misbehaving peers.  Valid time units are {s, m, h}.  Minimum 1 second"`
	BanThreshold uint32        `long:"banthreshold" description:"Maximum allowed ban score before disconnecting and banning misbehaving peers"`
	Whitelists   []string      `long:"whitelist" description:"Add an IP network or IP that will not be banned (eg. 192.168.1.0/24 or ::1)"`

	// The following fields are derived from the above fields by loadConfig.
	params        *netparams.Params
	logSizeKiB    int64
	operatorKey   *secp256k1.PrivateKey
	collateral    wire.OutPoint
	collateralKey *secp256k1.PublicKey
	paymentKey    *secp256k1.PrivateKey
	whitelists    []net.IPNet
}

// errSuppressUsage signifies that an error that happened during the initial
// configuration phase should suppress the usage output since it was not caused
// by the user.
type errSuppressUsage string

// Error implements the error interface.
func (e errSuppressUsage) Error() string {
	return string(e)
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Nothing to do when no path is given.
	if path == "" {
		return path
	}

	// Expand initial ~ to the current user's home directory.
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	_, ok := slog.LevelFromString(logLevel)
	return ok
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	// Convert the subsystemLoggers map keys to a slice.
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	// Sort the subsystems for stable display.
	sort.Strings(subsystems)
	return subsystems
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimiters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "the specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "the specified subsystem [%v] is invalid -- " +
				"supported subsystems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// parseLogSize parses a log size such as 10M into KiB.  The suffixes K, M and
// G are accepted, and a bare number is interpreted as MiB.
func parseLogSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	mult := int64(1 << 10)
	switch {
	case strings.HasSuffix(s, "K"):
		mult = 1
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"):
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "G"):
		mult = 1 << 20
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid log size %q", s)
	}
	return n * mult, nil
}

// parseOutPoint parses an outpoint in txid:index form.
func parseOutPoint(s string) (wire.OutPoint, error) {
	hashStr, indexStr, ok := strings.Cut(s, ":")
	if !ok {
		return wire.OutPoint{}, fmt.Errorf("outpoint %q is not of the form "+
			"txid:index", s)
	}
	hash, err := chainhash.NewHashFromStr(hashStr)
	if err != nil {
		return wire.OutPoint{}, fmt.Errorf("outpoint %q: %w", s, err)
	}
	index, err := strconv.ParseUint(indexStr, 10, 32)
	if err != nil {
		return wire.OutPoint{}, fmt.Errorf("outpoint %q: invalid index: %w",
			s, err)
	}
	return wire.OutPoint{Hash: *hash, Index: uint32(index)}, nil
}

// parseWhitelists parses IP networks and single IPs into networks.
func parseWhitelists(addrs []string) ([]net.IPNet, error) {
	nets := make([]net.IPNet, 0, len(addrs))
	for _, addr := range addrs {
		_, ipnet, err := net.ParseCIDR(addr)
		if err != nil {
			ip := net.ParseIP(addr)
			if ip == nil {
				return nil, fmt.Errorf("the whitelist value of '%s' is "+
					"invalid", addr)
			}
			var bits int
			if ip.To4() == nil {
				// IPv6
				bits = 128
			} else {
				bits = 32
			}
			ipnet = &net.IPNet{
				IP:   ip,
				Mask: net.CIDRMask(bits, bits),
			}
		}
		nets = append(nets, *ipnet)
	}
	return nets, nil
}

// newConfigParser returns a new command line flags parser.
func newConfigParser(cfg *config, options flags.Options) *flags.Parser {
	return flags.NewParser(cfg, options)
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in mnd functioning properly without any config settings
// while still allowing the user to override settings with config files and
// command line options.  Command line options always take precedence.
func loadConfig(appName string) (*config, []string, error) {
	// Default config.
	cfg := config{
		HomeDir:      defaultHomeDir,
		ConfigFile:   defaultConfigFile,
		DataDir:      defaultDataDir,
		LogDir:       defaultLogDir,
		DebugLevel:   defaultLogLevel,
		LogSize:      defaultLogSize,
		MaxLogFiles:  defaultMaxLogFiles,
		MixingQuorum: defaultMixingQuorum,
		BanDuration:  defaultBanDuration,
		BanThreshold: defaultBanThreshold,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := newConfigParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
	}

	// Show the version and exit if the version flag was specified.
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s (Go version %s %s/%s)\n", appName,
			version.String(), runtime.Version(), runtime.GOOS,
			runtime.GOARCH)
		os.Exit(0)
	}

	// Update the home directory for mnd if specified.  Since the home
	// directory is updated, other variables need to be updated to reflect
	// the new changes.
	if preCfg.HomeDir != "" {
		cfg.HomeDir, _ = filepath.Abs(cleanAndExpandPath(preCfg.HomeDir))
		if preCfg.ConfigFile == defaultConfigFile {
			cfg.ConfigFile = filepath.Join(cfg.HomeDir, defaultConfigFilename)
		} else {
			cfg.ConfigFile = cleanAndExpandPath(preCfg.ConfigFile)
		}
		if preCfg.DataDir == defaultDataDir {
			cfg.DataDir = filepath.Join(cfg.HomeDir, defaultDataDirname)
		}
		if preCfg.LogDir == defaultLogDir {
			cfg.LogDir = filepath.Join(cfg.HomeDir, defaultLogDirname)
		}
	}

	// Load additional config from file.
	var configFileError error
	parser := newConfigParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(cfg.ConfigFile)
	if err != nil {
		var e *os.PathError
		if !errors.As(err, &e) {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %v\n", err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, nil, err
	}

	// Multiple networks can't be selected simultaneously.
	numNets := 0
	cfg.params = &netparams.MainNetParams
	if cfg.TestNet {
		numNets++
		cfg.params = &netparams.TestNet3Params
	}
	if cfg.SimNet {
		numNets++
		cfg.params = &netparams.SimNetParams
	}
	if cfg.RegNet {
		numNets++
		cfg.params = &netparams.RegNetParams
	}
	if numNets > 1 {
		str := "%s: the testnet, regnet, and simnet params can't be " +
			"used together -- choose one of the three"
		err := fmt.Errorf(str, "loadConfig")
		return nil, nil, err
	}

	// Append the network type to the data and log directories so they are
	// "namespaced" per network.
	cfg.DataDir = filepath.Join(cleanAndExpandPath(cfg.DataDir),
		cfg.params.Name)
	cfg.LogDir = filepath.Join(cleanAndExpandPath(cfg.LogDir),
		cfg.params.Name)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %w", "loadConfig", err)
		return nil, nil, err
	}

	cfg.logSizeKiB, err = parseLogSize(cfg.LogSize)
	if err != nil {
		return nil, nil, fmt.Errorf("loadConfig: %w", err)
	}

	// Initialize log rotation.  After log rotation has been initialized,
	// the logger variables may be used.
	if !cfg.NoFileLogging {
		logFile := filepath.Join(cfg.LogDir, defaultLogFilename)
		err := initLogRotator(logFile, cfg.logSizeKiB, cfg.MaxLogFiles)
		if err != nil {
			return nil, nil, errSuppressUsage(err.Error())
		}
	}

	// Validate the local masternode options.
	if cfg.Masternode {
		if cfg.OperatorKey == "" || cfg.Collateral == "" ||
			cfg.CollateralKey == "" || cfg.ExternalIP == "" {

			str := "loadConfig: --masternode requires --operatorkey, " +
				"--collateral, --collateralkey and --externalip"
			return nil, nil, errors.New(str)
		}
		cfg.operatorKey, err = mnauth.ParsePrivateKeyHex(cfg.OperatorKey)
		if err != nil {
			return nil, nil, fmt.Errorf("loadConfig: invalid operator "+
				"key: %w", err)
		}
		cfg.collateral, err = parseOutPoint(cfg.Collateral)
		if err != nil {
			return nil, nil, fmt.Errorf("loadConfig: invalid collateral: "+
				"%w", err)
		}
		cfg.collateralKey, err = mnauth.ParsePubKeyHex(cfg.CollateralKey)
		if err != nil {
			return nil, nil, fmt.Errorf("loadConfig: invalid collateral "+
				"key: %w", err)
		}
		if _, _, err := net.SplitHostPort(cfg.ExternalIP); err != nil {
			return nil, nil, fmt.Errorf("loadConfig: invalid external "+
				"address %q: %w", cfg.ExternalIP, err)
		}
	}

	if cfg.Mixing && !cfg.Masternode {
		str := "loadConfig: --mixing requires --masternode"
		return nil, nil, errors.New(str)
	}
	if cfg.MixingQuorum < minMixingQuorum || cfg.MixingQuorum > maxMixingQuorum {
		str := "loadConfig: the mixing quorum must be between %d and %d " +
			"-- parsed [%d]"
		return nil, nil, fmt.Errorf(str, minMixingQuorum, maxMixingQuorum,
			cfg.MixingQuorum)
	}
	if cfg.MixingQuorum != cfg.params.MixingQuorum {
		params := *cfg.params
		params.MixingQuorum = cfg.MixingQuorum
		cfg.params = &params
	}

	if cfg.PaymentKey != "" {
		cfg.paymentKey, err = mnauth.ParsePrivateKeyHex(cfg.PaymentKey)
		if err != nil {
			return nil, nil, fmt.Errorf("loadConfig: invalid payment key: "+
				"%w", err)
		}
	}

	if cfg.SimBlockInterval < 0 {
		str := "loadConfig: the sim block interval may not be negative"
		return nil, nil, errors.New(str)
	}
	if cfg.SimBlockInterval > 0 && !cfg.SimNet && !cfg.RegNet {
		str := "loadConfig: --simblockinterval is only valid on simnet " +
			"and regnet"
		return nil, nil, errors.New(str)
	}

	// Don't allow ban durations that are too short.
	if cfg.BanDuration < time.Second {
		str := "%s: the banduration option may not be less than 1s -- " +
			"parsed [%v]"
		err := fmt.Errorf(str, "loadConfig", cfg.BanDuration)
		return nil, nil, err
	}

	// Validate the profile server address.
	if cfg.Profile != "" {
		addr := portToLocalHostAddr(cfg.Profile)
		if err := validateProfileAddr(addr); err != nil {
			return nil, nil, fmt.Errorf("loadConfig: invalid profile "+
				"address: %w", err)
		}
		if !cfg.ProfileAllowNonLoopback && !isLoopbackAddr(addr) {
			str := "loadConfig: the profile address %q is not a loopback " +
				"address -- use --profileallownonloopback to allow it"
			return nil, nil, fmt.Errorf(str, addr)
		}
	}
	if cfg.CPUProfile != "" {
		cfg.CPUProfile = cleanAndExpandPath(cfg.CPUProfile)
	}

	// Validate any given whitelisted IP addresses and networks.
	if len(cfg.Whitelists) > 0 {
		cfg.whitelists, err = parseWhitelists(cfg.Whitelists)
		if err != nil {
			return nil, nil, fmt.Errorf("loadConfig: %w", err)
		}
	}

	// Warn about missing config file only after all other configuration is
	// done.  This prevents the warning on help messages and invalid
	// options.  Note this should go directly before the return.
	if configFileError != nil {
		mndLog.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}
