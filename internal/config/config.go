// Package config loads braindump settings from a YAML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Dir is the per-user directory holding the default database and config file
const Dir = ".braindump"

const defaultTimeout = "60s"

const defaultConfigYAML = `# braindump configuration

# sqlite database file; "sqlite3" uses the cgo driver, "sqlite" the pure Go one
db: ~/.braindump/braindump.db
driver: sqlite3

# owner used by the CLI and as the API fallback when no X-Owner-ID header is sent
owner: me

# IANA timezone used to compute "today" for each organization pass
timezone: UTC

oracle:
  # anthropic, gemini or heuristic; empty picks from the available API keys
  provider: ""
  model: ""
  timeout: 60s
  max_tokens: 1024
  # base_url: https://api.anthropic.com

server:
  addr: ":8080"

log:
  level: info
  development: false

# API keys are read from ANTHROPIC_API_KEY and GEMINI_API_KEY only.
`

// OracleConfig selects the classification backend
type OracleConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Timeout   string `yaml:"timeout"`
	MaxTokens int    `yaml:"max_tokens"`
	BaseURL   string `yaml:"base_url,omitempty"`

	// keys come from the environment only
	AnthropicKey string `yaml:"-"`
	GeminiKey    string `yaml:"-"`
}

// ServerConfig configures the REST API
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Config is the full braindump configuration
type Config struct {
	DB       string       `yaml:"db"`
	Driver   string       `yaml:"driver"`
	Owner    string       `yaml:"owner"`
	Timezone string       `yaml:"timezone"`
	Oracle   OracleConfig `yaml:"oracle"`
	Server   ServerConfig `yaml:"server"`
	Log      LogConfig    `yaml:"log"`
}

// ValidProviders lists the accepted oracle providers; empty means auto
var ValidProviders = []string{"", "anthropic", "gemini", "heuristic"}

// ValidDrivers lists the accepted database/sql driver names
var ValidDrivers = []string{"sqlite3", "sqlite"}

// DefaultPath returns ~/.braindump/config.yaml
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, Dir, "config.yaml")
}

// Default returns the built-in configuration
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DB:       filepath.Join(home, Dir, "braindump.db"),
		Driver:   "sqlite3",
		Owner:    "me",
		Timezone: "UTC",
		Oracle: OracleConfig{
			Timeout:   defaultTimeout,
			MaxTokens: 1024,
		},
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults and applies environment overrides. A missing file
// is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.DB = expandHome(cfg.DB)
	cfg.applyEnvOverrides()
	return cfg, nil
}

// WriteDefault writes the commented default template to path unless a file already exists
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("config: create dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0644); err != nil {
		return false, fmt.Errorf("config: write %s: %w", path, err)
	}
	return true, nil
}

func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.Oracle.AnthropicKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Oracle.GeminiKey = key
	} else if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.Oracle.GeminiKey = key
	}
	if p := os.Getenv("BRAINDUMP_PROVIDER"); p != "" {
		c.Oracle.Provider = p
	}
	if owner := os.Getenv("BRAINDUMP_OWNER"); owner != "" {
		c.Owner = owner
	}
	if tz := os.Getenv("BRAINDUMP_TZ"); tz != "" {
		c.Timezone = tz
	}
}

// Provider resolves the effective oracle provider. With none configured it prefers
// Anthropic, then Gemini, and falls back to the offline heuristic.
func (c *Config) Provider() string {
	if p := strings.ToLower(strings.TrimSpace(c.Oracle.Provider)); p != "" {
		return p
	}
	switch {
	case c.Oracle.AnthropicKey != "":
		return "anthropic"
	case c.Oracle.GeminiKey != "":
		return "gemini"
	}
	return "heuristic"
}

// APIKey returns the key for the effective provider
func (c *Config) APIKey() string {
	switch c.Provider() {
	case "anthropic":
		return c.Oracle.AnthropicKey
	case "gemini":
		return c.Oracle.GeminiKey
	}
	return ""
}

// OracleTimeout returns the parsed oracle timeout, defaulting to 60s
func (c *Config) OracleTimeout() time.Duration {
	d, err := time.ParseDuration(c.Oracle.Timeout)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(defaultTimeout)
	}
	return d
}

// Validate rejects settings the rest of the program cannot work with
func (c *Config) Validate() error {
	if !slices.Contains(ValidProviders, strings.ToLower(strings.TrimSpace(c.Oracle.Provider))) {
		return fmt.Errorf("config: invalid oracle provider %q (valid: anthropic, gemini, heuristic)", c.Oracle.Provider)
	}
	if !slices.Contains(ValidDrivers, c.Driver) {
		return fmt.Errorf("config: invalid driver %q (valid: %v)", c.Driver, ValidDrivers)
	}
	if c.Oracle.Timeout != "" {
		d, err := time.ParseDuration(c.Oracle.Timeout)
		if err != nil {
			return fmt.Errorf("config: oracle.timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("config: oracle.timeout must be positive, got %s", d)
		}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	if strings.TrimSpace(c.Owner) == "" {
		return fmt.Errorf("config: owner is required")
	}
	if strings.TrimSpace(c.DB) == "" {
		return fmt.Errorf("config: db is required")
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
