// ABOUTME: Tests for backstage configuration loading and path expansion.
// ABOUTME: Covers YAML parsing, defaults, env overrides, validation, and save round trips.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"tilde only", "~", home},
		{"tilde slash", "~/foo/bar", filepath.Join(home, "foo", "bar")},
		{"absolute", "/tmp/foo", "/tmp/foo"},
		{"relative", "foo/bar", "foo/bar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandPath(tt.input)
			if err != nil {
				t.Fatalf("ExpandPath(%q) error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLoadDefaultConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(EnvOrigin, "")
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvStorageDriver, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Backend.Origin != "http://localhost:8000" {
		t.Errorf("unexpected default origin %q", cfg.Backend.Origin)
	}
	if cfg.Storage.Driver != "file" {
		t.Errorf("unexpected default driver %q", cfg.Storage.Driver)
	}
	if cfg.Cache.GCGrace != 60*time.Second {
		t.Errorf("unexpected default gc grace %v", cfg.Cache.GCGrace)
	}
	if cfg.Media.MaxUploadBytes != 10<<20 {
		t.Errorf("unexpected default upload limit %d", cfg.Media.MaxUploadBytes)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadYAMLConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv(EnvOrigin, "")
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvStorageDriver, "")

	configDir := filepath.Join(tmpDir, "backstage")
	if err := os.MkdirAll(configDir, 0750); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	configData := `backend:
  origin: "http://192.168.1.20:8000/"
  timeout: 5s
  rate_limit:
    rps: 2.5
    burst: 4
storage:
  driver: sqlite
  path: "~/backstage.db"
cache:
  gc_grace: 2m
log:
  level: debug
`
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configData), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Backend.Origin != "http://192.168.1.20:8000" {
		t.Errorf("origin = %q", cfg.Backend.Origin)
	}
	if cfg.Backend.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", cfg.Backend.Timeout)
	}
	if cfg.Backend.RateLimit.RPS != 2.5 || cfg.Backend.RateLimit.Burst != 4 {
		t.Errorf("rate limit = %+v", cfg.Backend.RateLimit)
	}
	if cfg.Cache.GCGrace != 2*time.Minute {
		t.Errorf("gc grace = %v", cfg.Cache.GCGrace)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Media.Placeholder != "https://via.placeholder.com/150" {
		t.Errorf("unset fields should keep defaults, placeholder = %q", cfg.Media.Placeholder)
	}

	home, _ := os.UserHomeDir()
	path, err := cfg.GetStoragePath()
	if err != nil {
		t.Fatalf("GetStoragePath error: %v", err)
	}
	if path != filepath.Join(home, "backstage.db") {
		t.Errorf("storage path = %q", path)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(EnvOrigin, "https://api.example.com")
	t.Setenv(EnvLogLevel, "WARN")
	t.Setenv(EnvStorageDriver, "sqlite")
	t.Setenv(EnvMetricsAddr, ":9100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Backend.Origin != "https://api.example.com" {
		t.Errorf("origin = %q", cfg.Backend.Origin)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("driver = %q", cfg.Storage.Driver)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("metrics addr = %q", cfg.Metrics.Addr)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	if err := os.MkdirAll(filepath.Join(tmpDir, "backstage"), 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "backstage", "config.yaml"), []byte("backend: [oops"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Backend.Origin = "localhost:8000"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for origin without scheme")
	}

	cfg = Default()
	cfg.Storage.Driver = "keychain"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestDefaultStoragePath(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataDir)

	cfg := Default()
	path, err := cfg.GetStoragePath()
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dataDir, "backstage", "session.yaml") {
		t.Errorf("file path = %q", path)
	}

	cfg.Storage.Driver = "sqlite"
	path, _ = cfg.GetStoragePath()
	if path != filepath.Join(dataDir, "backstage", "session.db") {
		t.Errorf("sqlite path = %q", path)
	}
}

func TestSaveRoundtrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(EnvOrigin, "")

	cfg := Default()
	cfg.Backend.Origin = "https://saved.example.com"
	cfg.Cache.GCGrace = 90 * time.Second
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Backend.Origin != "https://saved.example.com" {
		t.Errorf("origin = %q", loaded.Backend.Origin)
	}
	if loaded.Cache.GCGrace != 90*time.Second {
		t.Errorf("gc grace = %v", loaded.Cache.GCGrace)
	}
}
