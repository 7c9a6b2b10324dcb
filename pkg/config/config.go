// Package config loads run configuration from a YAML file, layered over
// built-in defaults. Credentials never live here: tokens come from the
// environment so config files stay safe to commit.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/parkerhq/fleetaudit/pkg/errors"
)

// Cache backend names accepted in config files.
const (
	CacheBackendFile  = "file"
	CacheBackendRedis = "redis"
	CacheBackendNone  = "none"
)

// Config holds all configuration for an analysis run.
type Config struct {
	// Analysis settings
	Analysis AnalysisConfig `koanf:"analysis"`

	// Cache settings
	Cache CacheConfig `koanf:"cache"`

	// Error-tracking platform settings
	Tracker TrackerConfig `koanf:"tracker"`

	// Vulnerability advisory feed settings
	Advisory AdvisoryConfig `koanf:"advisory"`

	// Code-metrics tool settings
	Metrics MetricsConfig `koanf:"metrics"`
}

// AnalysisConfig controls pipeline fan-out and activity windows.
type AnalysisConfig struct {
	Concurrency int    `koanf:"concurrency"`
	WindowDays  int    `koanf:"window_days"`
	OutputDir   string `koanf:"output_dir"`
}

// CacheConfig selects the cache backend for HTTP and API responses.
type CacheConfig struct {
	Backend   string `koanf:"backend"` // file, redis, none
	Dir       string `koanf:"dir"`
	TTLHours  int    `koanf:"ttl_hours"`
	RedisAddr string `koanf:"redis_addr"`
}

// TTL returns the configured cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// TrackerConfig points at the error-tracking platform.
type TrackerConfig struct {
	Org     string `koanf:"org"`
	BaseURL string `koanf:"base_url"`
}

// AdvisoryConfig points at the vulnerability advisory feed.
type AdvisoryConfig struct {
	BaseURL   string `koanf:"base_url"`
	BatchSize int    `koanf:"batch_size"`
}

// MetricsConfig names the code-metrics binary.
type MetricsConfig struct {
	Binary string `koanf:"binary"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Concurrency: 4,
			WindowDays:  30,
			OutputDir:   "fleetaudit-out",
		},
		Cache: CacheConfig{
			Backend:  CacheBackendFile,
			Dir:      defaultCacheDir(),
			TTLHours: 24,
		},
		Advisory: AdvisoryConfig{
			BatchSize: 100,
		},
		Metrics: MetricsConfig{
			Binary: "scc",
		},
	}
}

func defaultCacheDir() string {
	if base, err := os.UserCacheDir(); err == nil {
		return filepath.Join(base, "fleetaudit")
	}
	return ".fleetaudit-cache"
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "load config %s", path)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads the given path, or searches standard locations when
// path is empty. Missing files fall back to defaults; unreadable files are
// an error.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	for _, candidate := range []string{"fleetaudit.yaml", "fleetaudit.yml", ".fleetaudit.yaml"} {
		if _, err := os.Stat(candidate); err == nil {
			return Load(candidate)
		}
	}
	return DefaultConfig(), nil
}

// Validate rejects impossible settings.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case CacheBackendFile, CacheBackendRedis, CacheBackendNone:
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == CacheBackendRedis && c.Cache.RedisAddr == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "cache backend redis requires redis_addr")
	}
	if c.Analysis.Concurrency < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "concurrency must be positive")
	}
	if c.Analysis.WindowDays < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "window_days must be positive")
	}
	return nil
}
