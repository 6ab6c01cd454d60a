package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, rest, err := Load([]string{"--datadir", dir})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NetworkType() != Mainnet {
		t.Errorf("Network = %s, want mainnet", cfg.Network)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %s, want info", cfg.Log.Level)
	}
	if len(rest) != 0 {
		t.Errorf("remaining args = %v", rest)
	}
	if cfg.IndexDir() != filepath.Join(dir, "mainnet", "index") {
		t.Errorf("IndexDir() = %s", cfg.IndexDir())
	}
}

func TestLoad_ConfigFileThenFlags(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "klingnet-stake.conf")
	content := "[Application Options]\nnetwork=testnet\nworkers=8\n"
	if err := os.WriteFile(conf, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := Load([]string{"--datadir", dir, "--workers", "2"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NetworkType() != Testnet {
		t.Errorf("Network = %s, want testnet from config file", cfg.Network)
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want 2 (command line wins)", cfg.Workers)
	}
}

func TestLoad_ExplicitMissingConfigFile(t *testing.T) {
	dir := t.TempDir()
	_, _, err := Load([]string{"--datadir", dir, "--configfile", filepath.Join(dir, "missing.conf")})
	if err == nil {
		t.Fatal("expected error for explicit missing config file")
	}
}

func TestLoad_BadNetwork(t *testing.T) {
	if _, _, err := Load([]string{"--datadir", t.TempDir(), "--network", "devnet"}); err == nil {
		t.Fatal("expected error for unknown network")
	}
}

func TestValidate_Workers(t *testing.T) {
	cfg := &Config{Network: "regtest", DataDir: "x", Workers: 0, Log: LogConfig{Level: "info"}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for zero workers")
	}
	cfg.Workers = 1
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_GenerateRegtestOnly(t *testing.T) {
	cfg := &Config{Network: "mainnet", DataDir: "x", Workers: 1, Generate: 5, Log: LogConfig{Level: "info"}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for generate on mainnet")
	}
	cfg.Network = "regtest"
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadParams_Network(t *testing.T) {
	cfg := &Config{Network: "regtest"}
	p, err := LoadParams(cfg)
	if err != nil {
		t.Fatalf("LoadParams: %v", err)
	}
	if p.Network != Regtest {
		t.Errorf("Network = %s, want regtest", p.Network)
	}
}
