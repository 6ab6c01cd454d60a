package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"
)

// Load parses the command line into a Config. An INI configuration file,
// either named by --configfile or found in the data directory, is read
// first; command-line options take precedence over it.
//
// A help request is returned as a *flags.Error of type flags.ErrHelp.
func Load(args []string) (*Config, []string, error) {
	// Pre-parse to find the data directory and config file.
	var preCfg Config
	preParser := flags.NewParser(&preCfg, flags.HelpFlag|flags.PassDoubleDash|flags.IgnoreUnknown)
	if _, err := preParser.ParseArgs(args); err != nil {
		return nil, nil, err
	}
	if preCfg.DataDir == "" {
		preCfg.DataDir = DefaultDataDir()
	}
	configFile := preCfg.ConfigFile
	explicit := configFile != ""
	if !explicit {
		configFile = preCfg.DefaultConfigFile()
	}

	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	if err := flags.NewIniParser(parser).ParseFile(configFile); err != nil {
		var pathErr *fs.PathError
		if explicit || !errors.As(err, &pathErr) {
			return nil, nil, fmt.Errorf("parse config file %s: %w", configFile, err)
		}
	}

	// Parse command line options again to ensure they take precedence.
	remaining, err := parser.ParseArgs(args)
	if err != nil {
		return nil, nil, err
	}

	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	cfg.DataDir = filepath.Clean(cfg.DataDir)

	if err := Validate(&cfg); err != nil {
		return nil, nil, err
	}
	return &cfg, remaining, nil
}

// IsHelp reports whether err is a help request from Load.
func IsHelp(err error) bool {
	var flagErr *flags.Error
	return errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp
}

// LoadParams returns the consensus parameters for the configured network,
// with the --params override file applied when set.
func LoadParams(cfg *Config) (*ConsensusParams, error) {
	params, err := ParamsFor(cfg.NetworkType())
	if err != nil {
		return nil, err
	}
	if cfg.ParamsFile == "" {
		return params, nil
	}
	return LoadParamsFile(cfg.ParamsFile, params)
}
