// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btclog"
	"github.com/btcsuite/mwmerge/pkg/mwunit"
	"github.com/btcsuite/mwmerge/rangeproof"
	"github.com/btcsuite/mwmerge/utxo"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "mwmerge.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "mwmerge.log"
	defaultUtxoDBFilename = "utxo.db"
	defaultUtxoSQLiteName = "utxo.sqlite"
	defaultMinFeeRate     = 1000
)

var (
	defaultAppDataDir = btcutil.AppDataDir("mwmerge", false)
	defaultConfigFile = filepath.Join(defaultAppDataDir,
		defaultConfigFilename)

	errInvalidDebugLevel = errors.New("invalid debug level")
)

// config defines the configuration options for mwmerge.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ConfigFile     string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir        string `short:"b" long:"datadir" description:"Directory to store data"`
	DBBackend      string `long:"dbbackend" description:"Storage backend of the utxo database" choice:"bdb" choice:"sqlite"`
	UtxoDB         string `long:"utxodb" description:"Path to the utxo database (default: <datadir>/utxo.db, or utxo.sqlite for the sqlite backend)"`
	LogDir         string `long:"logdir" description:"Directory to log output (default: <datadir>/logs)"`
	DebugLevel     string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical} or <subsystem>=<level>,<subsystem2>=<level>,..."`
	MinFeeRate     int64  `long:"minfeerate" description:"Minimum fee rate in sat/kB accepted by aggregate"`
	RangeProofBits uint8  `long:"rangeproofbits" description:"Bit width range proofs are created and checked with (1-64)"`
}

// defaultConfig returns the configuration before any file or flag is
// applied.
func defaultConfig() config {
	return config{
		ConfigFile:     defaultConfigFile,
		DataDir:        defaultAppDataDir,
		DBBackend:      utxo.BackendBolt,
		DebugLevel:     defaultLogLevel,
		MinFeeRate:     defaultMinFeeRate,
		RangeProofBits: rangeproof.DefaultBits,
	}
}

// cleanAndExpandPath expands environment variables and a leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	return filepath.Clean(os.ExpandEnv(path))
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	_, ok := btclog.LevelFromString(logLevel)
	return ok
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)

	return subsystems
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly. An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimiters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") &&
		!strings.Contains(debugLevel, "=") {

		if !validLogLevel(debugLevel) {
			return fmt.Errorf("%w: %q", errInvalidDebugLevel,
				debugLevel)
		}

		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while
	// detecting issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		fields := strings.Split(logLevelPair, "=")
		if len(fields) != 2 {
			return fmt.Errorf("%w: %q must be of the form "+
				"<subsystem>=<level>", errInvalidDebugLevel,
				logLevelPair)
		}

		subsysID, logLevel := fields[0], fields[1]
		if _, exists := subsystemLoggers[subsysID]; !exists {
			return fmt.Errorf("%w: unknown subsystem %q, supported "+
				"subsystems are %v", errInvalidDebugLevel,
				subsysID, supportedSubsystems())
		}

		if !validLogLevel(logLevel) {
			return fmt.Errorf("%w: %q", errInvalidDebugLevel,
				logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// normalize fills derived defaults and validates the configuration.
func (c *config) normalize() error {
	c.DataDir = cleanAndExpandPath(c.DataDir)

	if c.UtxoDB == "" {
		name := defaultUtxoDBFilename
		if c.DBBackend == utxo.BackendSQLite {
			name = defaultUtxoSQLiteName
		}
		c.UtxoDB = filepath.Join(c.DataDir, name)
	}
	c.UtxoDB = cleanAndExpandPath(c.UtxoDB)

	if c.LogDir == "" {
		c.LogDir = filepath.Join(c.DataDir, defaultLogDirname)
	}
	c.LogDir = cleanAndExpandPath(c.LogDir)

	if c.MinFeeRate < 0 {
		return fmt.Errorf("minfeerate must not be negative, got %d",
			c.MinFeeRate)
	}

	if c.RangeProofBits == 0 || c.RangeProofBits > rangeproof.MaxBits {
		return fmt.Errorf("rangeproofbits must be in [1, %d], got %d",
			rangeproof.MaxBits, c.RangeProofBits)
	}

	return nil
}

// minFeeRate returns the configured minimum fee rate.
func (c *config) minFeeRate() mwunit.SatPerKByte {
	return mwunit.NewSatPerKByte(btcutil.Amount(c.MinFeeRate))
}

// openStore opens the configured utxo database.
func (c *config) openStore() (utxo.Database, error) {
	return utxo.Open(c.DBBackend, c.UtxoDB, utxo.DefaultDBTimeout)
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The returned parser has every command registered; the caller runs it.
func loadConfig(cfg *config, args []string, out io.Writer) (*flags.Parser,
	error) {

	// Pre-parse the command line options to see if an alternative config
	// file was specified. Help is left to the main parser so that
	// commands are listed.
	preCfg := defaultConfig()
	preParser := flags.NewParser(&preCfg, flags.IgnoreUnknown)
	if _, err := preParser.ParseArgs(args); err != nil {
		return nil, err
	}

	*cfg = defaultConfig()
	parser := flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash)
	if err := registerCommands(parser, cfg, out); err != nil {
		return nil, err
	}

	configFile := cleanAndExpandPath(preCfg.ConfigFile)
	err := flags.NewIniParser(parser).ParseFile(configFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error parsing config file %s: %w",
			configFile, err)
	}

	return parser, nil
}
