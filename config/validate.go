package config

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch cfg.NetworkType() {
	case Mainnet, Testnet, Regtest:
	default:
		return fmt.Errorf("network must be %q, %q or %q", Mainnet, Testnet, Regtest)
	}
	if cfg.DataDir == "" && !cfg.InMemory {
		return fmt.Errorf("datadir is required unless --inmemory is set")
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if cfg.Generate > 0 && cfg.NetworkType() != Regtest {
		return fmt.Errorf("generate is only supported on %s", Regtest)
	}
	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("loglevel: %w", err)
	}
	return nil
}
