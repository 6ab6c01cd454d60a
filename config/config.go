// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Consensus parameters: per network, immutable for the process lifetime
//   - Node settings: runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies the network a node follows.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
	Regtest NetworkType = "regtest"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration. It is populated from
// the command line and an optional INI file (see Load).
type Config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"Directory to store data"`
	Network    string `long:"network" description:"Network to follow" default:"mainnet" choice:"mainnet" choice:"testnet" choice:"regtest"`
	ParamsFile string `long:"params" description:"TOML file overriding consensus parameters and checkpoints"`

	// Storage
	InMemory bool `long:"inmemory" description:"Keep the block index in memory only"`

	// Validation
	Workers int `long:"workers" description:"Maximum candidate blocks validated in parallel" default:"4"`

	// Block production
	Generate uint `long:"generate" description:"Mine this many proof-of-work blocks on the tip before verifying (regtest only)"`

	// Metrics
	MetricsAddr string `long:"metrics" description:"Serve prometheus metrics on this address (empty disables)"`

	// Logging
	Log LogConfig `group:"Logging"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `long:"loglevel" description:"Log level (trace, debug, info, warn, error)" default:"info"`
	File  string `long:"logfile" description:"Also write logs to this file"`
	JSON  bool   `long:"logjson" description:"Emit JSON logs instead of console output"`
}

// NetworkType returns the configured network.
func (c *Config) NetworkType() NetworkType {
	return NetworkType(c.Network)
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingnet-stake
//	macOS:   ~/Library/Application Support/KlingnetStake
//	Windows: %APPDATA%\KlingnetStake
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingnet-stake"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "KlingnetStake")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "KlingnetStake")
		}
		return filepath.Join(home, "AppData", "Roaming", "KlingnetStake")
	default:
		return filepath.Join(home, ".klingnet-stake")
	}
}

// ChainDataDir returns the network-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, c.Network)
}

// IndexDir returns the block index database directory.
func (c *Config) IndexDir() string {
	return filepath.Join(c.ChainDataDir(), "index")
}

// DefaultConfigFile returns the config file path inside the data directory.
func (c *Config) DefaultConfigFile() string {
	return filepath.Join(c.DataDir, "klingnet-stake.conf")
}
