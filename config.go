// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2019 The Decred developers
// Copyright (C) 2015-2017 The Lightning Network Developers

package hodlvoice

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrutil/v2"
	"github.com/decred/hodlvoice/build"
	"github.com/decred/hodlvoice/hodl"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "hodlvoice.conf"
	defaultLogLevel       = "info"
	defaultLogFilename    = "hodlvoice.log"
	defaultMaxLogFiles    = 3
	defaultMaxLogFileSize = 10

	// defaultCLTVDelta is the default value of the host option that sets
	// the cltv delta of hold invoices.
	defaultCLTVDelta = 34

	defaultDecisionStore = storeDatastore
	defaultMaxLookups    = 50
	defaultLookupBurst   = 10

	storeDatastore = "datastore"
	storeBolt      = "bolt"
	storeSQLite    = "sqlite"

	// minPollInterval bounds how often a pending evaluation may hit the
	// decision store.
	minPollInterval = 10 * time.Millisecond
)

var (
	defaultHodlvoiceDir = dcrutil.AppDataDir("hodlvoice", false)
	defaultConfigFile   = filepath.Join(defaultHodlvoiceDir, defaultConfigFilename)
	defaultDataDir      = filepath.Join(defaultHodlvoiceDir, "data")
)

type storeConfig struct {
	MaxLookups  float64 `long:"maxlookups" description:"Maximum number of decision store lookups per second made by all pending payments combined (0 for no limit)"`
	LookupBurst int     `long:"lookupburst" description:"Number of decision store lookups that may exceed maxlookups in a burst"`
}

type prometheusConfig struct {
	Listen string `long:"listen" description:"The interface and port on which to serve prometheus metrics, e.g. localhost:9108. Metrics are disabled when empty"`
}

// Config holds the plugin configuration. Options that the host manages, such
// as the cltv delta, are only defaults here and are overridden during init.
type Config struct {
	ShowVersion bool `short:"V" long:"version" description:"Display version information and exit"`

	HomeDir    string `long:"homedir" description:"The base directory that contains the plugin's data, logs and configuration file"`
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"The directory holding the bolt and sqlite decision stores"`

	LogDir         string `long:"logdir" description:"Directory to additionally write rotated log files to. Logs always go to stderr, which the host records"`
	MaxLogFiles    int    `long:"maxlogfiles" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int    `long:"maxlogfilesize" description:"Maximum logfile size in MB"`
	DebugLevel     string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	KeyMode             string        `long:"keymode" description:"What decision records are keyed by. hash holds individual htlcs; label holds fully received payments" choice:"hash" choice:"label"`
	CLTVDelta           uint32        `long:"cltvdelta" description:"Default of the host option hodlvoice-cltv-delta"`
	HoldSafetyBlocks    uint32        `long:"holdsafetyblocks" description:"Number of blocks of timelock margin kept on held htlcs. Also added to the final cltv of every hold invoice"`
	HTLCPollInterval    time.Duration `long:"htlcpollinterval" description:"How often a held htlc re-reads its decision record"`
	PaymentPollInterval time.Duration `long:"paymentpollinterval" description:"How often a held invoice payment re-reads its decision record"`
	DecisionStore       string        `long:"decisionstore" description:"Where decision records are kept" choice:"datastore" choice:"bolt" choice:"sqlite"`
	StrictStoreErrors   bool          `long:"strictstoreerrors" description:"Fail hook calls when the decision store cannot be read instead of letting the payment continue"`
	StrictResolve       bool          `long:"strictresolve" description:"Only allow accepting or rejecting payments that are still held"`

	Store *storeConfig `group:"Store" namespace:"store"`

	Prometheus *prometheusConfig `group:"Prometheus" namespace:"prometheus"`

	keyMode hodl.KeyMode
}

// DefaultConfig returns the configuration used when no option is given.
func DefaultConfig() Config {
	return Config{
		HomeDir:             defaultHodlvoiceDir,
		ConfigFile:          defaultConfigFile,
		DataDir:             defaultDataDir,
		MaxLogFiles:         defaultMaxLogFiles,
		MaxLogFileSize:      defaultMaxLogFileSize,
		DebugLevel:          defaultLogLevel,
		KeyMode:             hodl.KeyPaymentHash.String(),
		CLTVDelta:           defaultCLTVDelta,
		HoldSafetyBlocks:    hodl.DefaultHoldSafetyBlocks,
		HTLCPollInterval:    hodl.DefaultHTLCPollInterval,
		PaymentPollInterval: hodl.DefaultPaymentPollInterval,
		DecisionStore:       defaultDecisionStore,
		Store: &storeConfig{
			MaxLookups:  defaultMaxLookups,
			LookupBurst: defaultLookupBurst,
		},
		Prometheus: &prometheusConfig{},
	}
}

// newParser returns a parser that never prints, since stdout belongs to the
// plugin protocol.
func newParser(cfg *Config) *flags.Parser {
	return flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash)
}

// LoadConfig initializes and parses the config using a config file and
// command line options. The host starts plugins without arguments, so the
// configuration file is the usual source of options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func LoadConfig() (*Config, error) {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		return nil, err
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Fprintln(os.Stderr, "Supported subsystems",
			logWriter.SupportedSubsystems())
		os.Exit(0)
	}

	funcName := "LoadConfig"
	if cfg.LogDir != "" {
		err = logWriter.InitLogRotator(
			filepath.Join(cfg.LogDir, defaultLogFilename),
			cfg.MaxLogFileSize, cfg.MaxLogFiles,
		)
		if err != nil {
			str := "%s: log rotation setup failed: %v"
			return nil, fmt.Errorf(str, funcName, err.Error())
		}
	}

	// Parse, validate, and set debug log level(s).
	err = build.ParseAndSetDebugLevels(cfg.DebugLevel, logWriter)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", funcName, err.Error())
	}

	return cfg, nil
}

func loadConfig(args []string) (*Config, error) {
	defaultCfg := DefaultConfig()

	// Pre-parse the command line options to pick up an alternative config
	// file.
	preCfg := defaultCfg
	if _, err := newParser(&preCfg).ParseArgs(args); err != nil {
		return nil, err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if preCfg.ShowVersion {
		commit := build.SourceCommit()
		if commit != "" {
			commit = fmt.Sprintf("Commit %s; ", commit)
		}
		fmt.Fprintf(os.Stderr, "%s version %s (%sGo version %s %s/%s)\n",
			appName, build.Version(), commit,
			runtime.Version(), runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	// If the config file path has not been modified by the user, then
	// we'll use the default config file path. However, if the user has
	// modified their home directory, then we should assume they intend to
	// use the config file within it.
	homeDir := cleanAndExpandPath(preCfg.HomeDir)
	configFilePath := cleanAndExpandPath(preCfg.ConfigFile)
	if homeDir != defaultHodlvoiceDir && configFilePath == defaultConfigFile {
		configFilePath = filepath.Join(homeDir, defaultConfigFilename)
	}

	// Next, load any additional configuration options from the file.
	var configFileError error
	cfg := preCfg
	if err := flags.IniParse(configFilePath, &cfg); err != nil {
		// If it's a parsing related error, then we'll return
		// immediately, otherwise we can proceed as possibly the config
		// file doesn't exist which is OK.
		if _, ok := err.(*flags.IniError); ok {
			return nil, err
		}

		configFileError = err
	}

	// Finally, parse the remaining command line options again to ensure
	// they take precedence.
	if _, err := newParser(&cfg).ParseArgs(args); err != nil {
		return nil, err
	}

	// If the provided home directory is not the default, the data
	// directory moves along with it unless it was set explicitly.
	homeDir = cleanAndExpandPath(cfg.HomeDir)
	if homeDir != defaultHodlvoiceDir && cfg.DataDir == defaultDataDir {
		cfg.DataDir = filepath.Join(homeDir, "data")
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	funcName := "loadConfig"
	keyMode, err := hodl.ParseKeyMode(cfg.KeyMode)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", funcName, err)
	}
	cfg.keyMode = keyMode

	switch {
	case cfg.HoldSafetyBlocks == 0:
		str := "%s: holdsafetyblocks must be positive"
		return nil, fmt.Errorf(str, funcName)

	case cfg.HTLCPollInterval < minPollInterval:
		str := "%s: htlcpollinterval must be at least %v"
		return nil, fmt.Errorf(str, funcName, minPollInterval)

	case cfg.PaymentPollInterval < minPollInterval:
		str := "%s: paymentpollinterval must be at least %v"
		return nil, fmt.Errorf(str, funcName, minPollInterval)

	case cfg.Store.MaxLookups < 0:
		str := "%s: store.maxlookups must be non-negative"
		return nil, fmt.Errorf(str, funcName)

	case cfg.Store.MaxLookups > 0 && cfg.Store.LookupBurst < 1:
		str := "%s: store.lookupburst must be positive"
		return nil, fmt.Errorf(str, funcName)

	case cfg.MaxLogFiles < 0:
		str := "%s: maxlogfiles must be non-negative"
		return nil, fmt.Errorf(str, funcName)

	case cfg.MaxLogFileSize < 1:
		str := "%s: maxlogfilesize must be positive"
		return nil, fmt.Errorf(str, funcName)
	}

	// Warn about missing config file only after all other configuration
	// is done. This prevents the warning on help messages and invalid
	// options.
	if configFileError != nil {
		hdvcLog.Warnf("%v", configFileError)
	}

	return &cfg, nil
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/decred/dcrd
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		user, err := user.Current()
		if err == nil {
			homeDir = user.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
