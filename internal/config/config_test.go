package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"ANTHROPIC_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY", "BRAINDUMP_PROVIDER", "BRAINDUMP_OWNER", "BRAINDUMP_TZ"} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Driver)
	assert.Equal(t, "me", cfg.Owner)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 60*time.Second, cfg.OracleTimeout())
	assert.Equal(t, "heuristic", cfg.Provider())
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db: ~/notes.db
driver: sqlite
owner: alice
timezone: Europe/Paris
oracle:
  provider: gemini
  timeout: 5s
log:
  level: debug
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, "notes.db"), cfg.DB)
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, "alice", cfg.Owner)
	assert.Equal(t, "Europe/Paris", cfg.Timezone)
	assert.Equal(t, "gemini", cfg.Provider())
	assert.Equal(t, 5*time.Second, cfg.OracleTimeout())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr, "unset keys keep defaults")
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("owner: [unterminated"), 0644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "config: parse")
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("GOOGLE_API_KEY", "g-test")
	t.Setenv("BRAINDUMP_OWNER", "bob")
	t.Setenv("BRAINDUMP_TZ", "Asia/Tokyo")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.Owner)
	assert.Equal(t, "Asia/Tokyo", cfg.Timezone)
	assert.Equal(t, "anthropic", cfg.Provider())
	assert.Equal(t, "sk-test", cfg.APIKey())

	t.Setenv("BRAINDUMP_PROVIDER", "gemini")
	cfg, err = Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "g-test", cfg.APIKey())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"provider", func(c *Config) { c.Oracle.Provider = "openai" }},
		{"driver", func(c *Config) { c.Driver = "postgres" }},
		{"timeout syntax", func(c *Config) { c.Oracle.Timeout = "soon" }},
		{"timeout sign", func(c *Config) { c.Oracle.Timeout = "-1s" }},
		{"timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"owner", func(c *Config) { c.Owner = " " }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteDefault(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	created, err := WriteDefault(path)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = WriteDefault(path)
	require.NoError(t, err)
	assert.False(t, created, "existing file is left alone")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Server.Addr)
}
