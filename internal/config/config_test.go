package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"BreachLedger/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Partitions != 8 {
		t.Errorf("partitions: got %d, want 8", cfg.Partitions)
	}
	if cfg.Rules.ThresholdPPM != 50_000 {
		t.Errorf("threshold: got %d, want 50000", cfg.Rules.ThresholdPPM)
	}
	if cfg.Fanout.LedgerTTL != 48*time.Hour {
		t.Errorf("ledger ttl: got %v, want 48h", cfg.Fanout.LedgerTTL)
	}
	if cfg.Fanout.NumShards != 64 {
		t.Errorf("num shards: got %d, want 64", cfg.Fanout.NumShards)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
nats_url: nats://broker:4222
partitions: 16
rules:
  threshold_ppm: 30000
  rule_version: 5
fanout:
  shard_deadline: 10s
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NATSURL != "nats://broker:4222" {
		t.Errorf("nats url: got %s", cfg.NATSURL)
	}
	if cfg.Partitions != 16 {
		t.Errorf("partitions: got %d, want 16", cfg.Partitions)
	}
	if cfg.Rules.ThresholdPPM != 30_000 || cfg.Rules.RuleVersion != 5 {
		t.Errorf("rules: %+v", cfg.Rules)
	}
	if cfg.Fanout.ShardDeadline != 10*time.Second {
		t.Errorf("shard deadline: got %v", cfg.Fanout.ShardDeadline)
	}
	// Unset keys keep their defaults.
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("http addr: got %s", cfg.HTTPAddr)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("partitions: 16\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BREACH_PARTITIONS", "4")
	t.Setenv("BREACH_THRESHOLD_PPM", "70000")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Partitions != 4 {
		t.Errorf("partitions: got %d, want 4 (env wins)", cfg.Partitions)
	}
	if cfg.Rules.ThresholdPPM != 70_000 {
		t.Errorf("threshold: got %d, want 70000", cfg.Rules.ThresholdPPM)
	}
}

func TestLoad_Invalid(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("explicit missing file should error")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("partitions: 0\n"), 0o644)
	if _, err := config.Load(path); err == nil {
		t.Error("zero partitions should fail validation")
	}

	os.WriteFile(path, []byte("rules:\n  threshold_ppm: -5\n"), 0o644)
	if _, err := config.Load(path); err == nil {
		t.Error("negative threshold should fail validation")
	}

	os.WriteFile(path, []byte("fanout:\n  num_shards: 0\n"), 0o644)
	if _, err := config.Load(path); err == nil {
		t.Error("zero shard count should fail validation")
	}
}
