package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/parkerhq/fleetaudit/pkg/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Analysis.Concurrency != 4 {
		t.Errorf("Analysis.Concurrency = %d, want 4", cfg.Analysis.Concurrency)
	}
	if cfg.Analysis.WindowDays != 30 {
		t.Errorf("Analysis.WindowDays = %d, want 30", cfg.Analysis.WindowDays)
	}
	if cfg.Cache.Backend != CacheBackendFile {
		t.Errorf("Cache.Backend = %s, want file", cfg.Cache.Backend)
	}
	if cfg.Cache.TTLHours != 24 {
		t.Errorf("Cache.TTLHours = %d, want 24", cfg.Cache.TTLHours)
	}
	if cfg.Advisory.BatchSize != 100 {
		t.Errorf("Advisory.BatchSize = %d, want 100", cfg.Advisory.BatchSize)
	}
	if cfg.Metrics.Binary != "scc" {
		t.Errorf("Metrics.Binary = %s, want scc", cfg.Metrics.Binary)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleetaudit.yaml")
	content := `
analysis:
  concurrency: 8
  window_days: 14
cache:
  backend: none
tracker:
  org: acme
advisory:
  base_url: https://osv.example.test/v1
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Analysis.Concurrency != 8 {
		t.Errorf("Analysis.Concurrency = %d, want 8", cfg.Analysis.Concurrency)
	}
	if cfg.Analysis.WindowDays != 14 {
		t.Errorf("Analysis.WindowDays = %d, want 14", cfg.Analysis.WindowDays)
	}
	if cfg.Cache.Backend != CacheBackendNone {
		t.Errorf("Cache.Backend = %s, want none", cfg.Cache.Backend)
	}
	if cfg.Tracker.Org != "acme" {
		t.Errorf("Tracker.Org = %s, want acme", cfg.Tracker.Org)
	}
	if cfg.Advisory.BaseURL != "https://osv.example.test/v1" {
		t.Errorf("Advisory.BaseURL = %s", cfg.Advisory.BaseURL)
	}

	// Untouched keys keep their defaults.
	if cfg.Metrics.Binary != "scc" {
		t.Errorf("Metrics.Binary = %s, want scc", cfg.Metrics.Binary)
	}
}

func TestLoadRejectsBadBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleetaudit.yaml")
	if err := os.WriteFile(path, []byte("cache:\n  backend: memcached\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("error code = %v, want INVALID_CONFIG", errors.GetCode(err))
	}
}

func TestLoadRejectsRedisWithoutAddr(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleetaudit.yaml")
	if err := os.WriteFile(path, []byte("cache:\n  backend: redis\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("expected INVALID_CONFIG, got %v", err)
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(orig)

	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}
	if cfg.Analysis.Concurrency != 4 {
		t.Errorf("expected defaults, got %+v", cfg.Analysis)
	}
}
