package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Cache   CacheConfig   `yaml:"cache"`
	GitHub  GitHubConfig  `yaml:"github"`
	Runner  RunnerConfig  `yaml:"runner"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type CacheConfig struct {
	Dir    string        `yaml:"dir"`
	MaxAge time.Duration `yaml:"max_age"` // 0 disables reuse; every fetch recomputes
}

type GitHubConfig struct {
	APIURL    string        `yaml:"api_url"`
	PerPage   int           `yaml:"per_page"`
	MaxPages  int           `yaml:"max_pages"` // listing pages searched before giving up
	Token     string        `yaml:"token"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

type RunnerConfig struct {
	TempDir string `yaml:"temp_dir"` // empty means os.TempDir()
}

// MetricsConfig controls the Prometheus textfile written at exit.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Load reads configuration from a YAML file on top of DefaultConfig.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from CLI flag or user config dir
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadDefault loads path if given, otherwise the user config file when it
// exists, otherwise the defaults. Environment overrides are applied last.
func LoadDefault(path string) (*Config, error) {
	if path == "" {
		path = UserConfigPath()
		if _, err := os.Stat(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("checking config file: %w", err)
			}
			log.Debug().Str("path", path).Msg("no config file found, using defaults")
			cfg := DefaultConfig()
			cfg.ApplyEnv()
			return cfg, cfg.Validate()
		}
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

// DefaultConfig returns sensible defaults for all configuration.
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			Dir:    defaultCacheDir(),
			MaxAge: time.Hour,
		},
		GitHub: GitHubConfig{
			APIURL:    "https://api.github.com",
			PerPage:   100,
			MaxPages:  1,
			UserAgent: "gistrun",
			Timeout:   30 * time.Second,
		},
	}
}

// ApplyEnv overrides fields from GITHUB_TOKEN and GISTRUN_CACHE_DIR.
func (c *Config) ApplyEnv() {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		c.GitHub.Token = token
	}
	if dir := os.Getenv("GISTRUN_CACHE_DIR"); dir != "" {
		c.Cache.Dir = dir
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required")
	}
	if c.Cache.MaxAge < 0 {
		return fmt.Errorf("cache.max_age must be >= 0, got %s", c.Cache.MaxAge)
	}
	u, err := url.Parse(c.GitHub.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("github.api_url must be an absolute URL, got %q", c.GitHub.APIURL)
	}
	if c.GitHub.PerPage < 1 || c.GitHub.PerPage > 100 {
		return fmt.Errorf("github.per_page must be 1-100, got %d", c.GitHub.PerPage)
	}
	if c.GitHub.MaxPages < 1 {
		return fmt.Errorf("github.max_pages must be >= 1")
	}
	if c.GitHub.Timeout <= 0 {
		return fmt.Errorf("github.timeout must be > 0")
	}
	if c.Runner.TempDir != "" && !filepath.IsAbs(c.Runner.TempDir) {
		return fmt.Errorf("runner.temp_dir: %q must be an absolute path", c.Runner.TempDir)
	}
	if u.Scheme == "http" && c.GitHub.Token != "" {
		log.Warn().Str("api_url", c.GitHub.APIURL).Msg("github token will be sent over plain http")
	}
	return nil
}

// UserConfigPath returns ~/.config/gistrun/config.yaml (or the platform equivalent).
func UserConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".gistrun", "config.yaml")
	}
	return filepath.Join(dir, "gistrun", "config.yaml")
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return filepath.Join(os.TempDir(), "gistrun")
		}
		return filepath.Join(home, ".gistrun", "cache")
	}
	return filepath.Join(dir, "gistrun")
}
