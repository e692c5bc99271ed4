package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestLoadConfigFromAppliesDefaults(t *testing.T) {
	dir := writeConfig(t, "server:\n  port: 9090\n")

	cfg, err := LoadConfigFrom(dir)
	if err != nil {
		t.Fatalf("LoadConfigFrom: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Settlement.PayoutBatchSize != 3 {
		t.Errorf("payout batch = %d, want 3", cfg.Settlement.PayoutBatchSize)
	}
	if cfg.Settlement.ReferralRate != 0.10 {
		t.Errorf("referral rate = %v, want 0.10", cfg.Settlement.ReferralRate)
	}
	if cfg.Settlement.PayoutTimeout != 5*time.Minute {
		t.Errorf("payout timeout = %v, want 5m", cfg.Settlement.PayoutTimeout)
	}
	if cfg.AutoResolve.Grace != 10*time.Minute {
		t.Errorf("grace = %v, want 10m", cfg.AutoResolve.Grace)
	}
	if cfg.AutoResolve.LockTTL != 5*time.Minute {
		t.Errorf("lock ttl = %v, want 5m", cfg.AutoResolve.LockTTL)
	}
	if cfg.Oracle.Timeout != 10*time.Second {
		t.Errorf("oracle timeout = %v, want 10s", cfg.Oracle.Timeout)
	}
	if cfg.NFT.Timeout != 4*time.Second {
		t.Errorf("nft timeout = %v, want 4s", cfg.NFT.Timeout)
	}
}

func TestLoadConfigFromParsesCollections(t *testing.T) {
	dir := writeConfig(t, `
auto_resolve:
  batch_size: 3
  batch_pause: 250ms
nft:
  collections:
    - address: "0x1111111111111111111111111111111111111111"
      multiplier: 1.5
    - address: "0x2222222222222222222222222222222222222222"
      multiplier: 2
`)
	cfg, err := LoadConfigFrom(dir)
	if err != nil {
		t.Fatalf("LoadConfigFrom: %v", err)
	}
	if cfg.AutoResolve.BatchSize != 3 || cfg.AutoResolve.BatchPause != 250*time.Millisecond {
		t.Errorf("auto resolve = %+v", cfg.AutoResolve)
	}
	if len(cfg.NFT.Collections) != 2 {
		t.Fatalf("collections = %d, want 2", len(cfg.NFT.Collections))
	}
	if cfg.NFT.Collections[1].Multiplier != 2 {
		t.Errorf("multiplier = %v, want 2", cfg.NFT.Collections[1].Multiplier)
	}
}

func TestLoadConfigFromEnvOverride(t *testing.T) {
	dir := writeConfig(t, "database:\n  dsn: postgres://from-file\n")
	t.Setenv("DATABASE_DSN", "postgres://from-env")
	t.Setenv("ARCHIVE_SECRET_KEY", "s3cret")

	cfg, err := LoadConfigFrom(dir)
	if err != nil {
		t.Fatalf("LoadConfigFrom: %v", err)
	}
	if cfg.Database.DSN != "postgres://from-env" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.Archive.SecretKey != "s3cret" {
		t.Errorf("secret key = %q", cfg.Archive.SecretKey)
	}
}

func TestLoadConfigFromMissingFile(t *testing.T) {
	if _, err := LoadConfigFrom(t.TempDir()); err == nil {
		t.Fatal("expected error for missing config.yaml")
	}
}
