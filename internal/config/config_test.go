package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Cache.MaxAge != time.Hour {
		t.Errorf("Cache.MaxAge = %s, want 1h", cfg.Cache.MaxAge)
	}
	if cfg.Cache.Dir == "" {
		t.Error("Cache.Dir is empty")
	}
	if cfg.GitHub.APIURL != "https://api.github.com" {
		t.Errorf("GitHub.APIURL = %q, want %q", cfg.GitHub.APIURL, "https://api.github.com")
	}
	if cfg.GitHub.PerPage != 100 {
		t.Errorf("GitHub.PerPage = %d, want 100", cfg.GitHub.PerPage)
	}
	if cfg.GitHub.MaxPages != 1 {
		t.Errorf("GitHub.MaxPages = %d, want 1", cfg.GitHub.MaxPages)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate(defaults) = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"empty cache dir", func(c *Config) { c.Cache.Dir = "" }, true},
		{"negative max_age", func(c *Config) { c.Cache.MaxAge = -time.Second }, true},
		{"zero max_age", func(c *Config) { c.Cache.MaxAge = 0 }, false},
		{"relative api url", func(c *Config) { c.GitHub.APIURL = "api.github.com" }, true},
		{"per_page 0", func(c *Config) { c.GitHub.PerPage = 0 }, true},
		{"per_page 101", func(c *Config) { c.GitHub.PerPage = 101 }, true},
		{"max_pages 0", func(c *Config) { c.GitHub.MaxPages = 0 }, true},
		{"max_pages 5", func(c *Config) { c.GitHub.MaxPages = 5 }, false},
		{"zero timeout", func(c *Config) { c.GitHub.Timeout = 0 }, true},
		{"relative temp dir", func(c *Config) { c.Runner.TempDir = "tmp" }, true},
		{"absolute temp dir", func(c *Config) { c.Runner.TempDir = "/tmp" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
cache:
  dir: /var/tmp/gistrun-test
  max_age: 10m
github:
  api_url: http://localhost:9000
  max_pages: 3
runner:
  temp_dir: /tmp
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Cache.Dir != "/var/tmp/gistrun-test" {
		t.Errorf("Cache.Dir = %q, want %q", cfg.Cache.Dir, "/var/tmp/gistrun-test")
	}
	if cfg.Cache.MaxAge != 10*time.Minute {
		t.Errorf("Cache.MaxAge = %s, want 10m", cfg.Cache.MaxAge)
	}
	if cfg.GitHub.APIURL != "http://localhost:9000" {
		t.Errorf("GitHub.APIURL = %q", cfg.GitHub.APIURL)
	}
	if cfg.GitHub.MaxPages != 3 {
		t.Errorf("GitHub.MaxPages = %d, want 3", cfg.GitHub.MaxPages)
	}
	// Untouched fields keep their defaults.
	if cfg.GitHub.PerPage != 100 {
		t.Errorf("GitHub.PerPage = %d, want 100", cfg.GitHub.PerPage)
	}
	if cfg.Runner.TempDir != "/tmp" {
		t.Errorf("Runner.TempDir = %q, want /tmp", cfg.Runner.TempDir)
	}
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("github:\n  per_page: 500\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for per_page 500, got nil")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestLoadDefault_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("cache:\n  max_age: 5m\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("GISTRUN_CACHE_DIR", filepath.Join(dir, "cache"))

	cfg, err := LoadDefault(path)
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	if cfg.GitHub.Token != "ghp_test" {
		t.Errorf("GitHub.Token = %q, want ghp_test", cfg.GitHub.Token)
	}
	if cfg.Cache.Dir != filepath.Join(dir, "cache") {
		t.Errorf("Cache.Dir = %q", cfg.Cache.Dir)
	}
	if cfg.Cache.MaxAge != 5*time.Minute {
		t.Errorf("Cache.MaxAge = %s, want 5m", cfg.Cache.MaxAge)
	}
}
