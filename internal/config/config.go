// ABOUTME: Configuration management for backstage with YAML config loading.
// ABOUTME: Handles backend, storage, cache, media, and logging settings plus env overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file.
const (
	EnvOrigin        = "BACKSTAGE_ORIGIN"
	EnvLogLevel      = "BACKSTAGE_LOG_LEVEL"
	EnvStorageDriver = "BACKSTAGE_STORAGE_DRIVER"
	EnvMetricsAddr   = "BACKSTAGE_METRICS_ADDR"
)

// Config stores backstage configuration loaded from ~/.config/backstage/config.yaml.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Media   MediaConfig   `yaml:"media"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// BackendConfig holds the REST backend connection settings.
type BackendConfig struct {
	Origin    string          `yaml:"origin"`
	Timeout   time.Duration   `yaml:"timeout"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig caps outgoing requests. RPS 0 means unlimited.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// StorageConfig selects where the session is persisted.
type StorageConfig struct {
	Driver string `yaml:"driver"` // file or sqlite
	Path   string `yaml:"path"`
}

// CacheConfig tunes the query cache.
type CacheConfig struct {
	GCGrace time.Duration `yaml:"gc_grace"`
}

// MediaConfig holds media URL and upload settings.
type MediaConfig struct {
	Placeholder    string `yaml:"placeholder"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// LogConfig selects log verbosity and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// MetricsConfig enables the Prometheus listener for long-running modes.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Origin:  "http://localhost:8000",
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{Driver: "file"},
		Cache:   CacheConfig{GCGrace: 60 * time.Second},
		Media: MediaConfig{
			Placeholder:    "https://via.placeholder.com/150",
			MaxUploadBytes: 10 << 20,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Backend.Origin, "http://") && !strings.HasPrefix(c.Backend.Origin, "https://") {
		return fmt.Errorf("backend.origin must be an http(s) URL, got %q", c.Backend.Origin)
	}
	switch c.Storage.Driver {
	case "file", "sqlite":
	default:
		return fmt.Errorf("storage.driver must be file or sqlite, got %q", c.Storage.Driver)
	}
	if c.Backend.RateLimit.RPS < 0 {
		return fmt.Errorf("backend.rate_limit.rps must not be negative")
	}
	return nil
}

// GetStoragePath returns the session storage path, defaulting to the data dir.
func (c *Config) GetStoragePath() (string, error) {
	if c.Storage.Path != "" {
		return ExpandPath(c.Storage.Path)
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	name := "session.yaml"
	if c.Storage.Driver == "sqlite" {
		name = "session.db"
	}
	return filepath.Join(dir, name), nil
}

// DataDir returns the default backstage data directory.
func DataDir() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "backstage"), nil
}

// GetConfigPath returns the config file path.
func GetConfigPath() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "backstage", "config.yaml"), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

// Load reads config from disk over the defaults and applies env overrides.
// A missing file yields the defaults.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.Backend.Origin = strings.TrimRight(cfg.Backend.Origin, "/")
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvOrigin)); v != "" {
		c.Backend.Origin = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorageDriver)); v != "" {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvMetricsAddr)); v != "" {
		c.Metrics.Addr = v
	}
}

// Save writes config to disk.
func (c *Config) Save() error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
