package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "planexec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_NoFileReturnsDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, warn := Load("")
	require.NoError(t, warn)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
commit:
  enabled: false
  co_author: "Plan Bot <bot@example.com>"
quality:
  lint: true
  lint_command: "eslint src"
  timeout: 90s
git:
  max_ops_per_minute: 10
`)

	cfg, warn := Load(path)
	require.NoError(t, warn)
	assert.False(t, cfg.Commit.Enabled)
	assert.Equal(t, "Plan Bot <bot@example.com>", cfg.Commit.CoAuthor)
	assert.Equal(t, "eslint src", cfg.Quality.LintCommand)
	assert.Equal(t, 90*time.Second, cfg.Quality.Timeout)
	assert.Equal(t, 10, cfg.Git.MaxOpsPerMinute)
	// Untouched sections keep defaults.
	assert.Equal(t, Default().Conventional.TypeMapping, cfg.Conventional.TypeMapping)
}

func TestLoad_InvalidYAMLFallsBackToDefaults(t *testing.T) {
	path := writeConfig(t, "commit: [not: a: mapping")

	cfg, warn := Load(path)
	require.Error(t, warn)
	assert.Contains(t, warn.Error(), "using defaults")
	assert.Equal(t, Default(), cfg)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	path := writeConfig(t, `
git:
  max_ops_per_minute: -5
`)

	cfg, warn := Load(path)
	require.Error(t, warn)
	assert.Contains(t, warn.Error(), "validation failed")
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ExplicitMissingFileWarns(t *testing.T) {
	cfg, warn := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, warn)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PLANEXEC_COMMIT_CO_AUTHOR", "Env Bot <env@example.com>")

	cfg, warn := Load("")
	require.NoError(t, warn)
	assert.Equal(t, "Env Bot <env@example.com>", cfg.Commit.CoAuthor)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults valid", func(c *Config) {}, ""},
		{"zero timeout", func(c *Config) { c.Quality.Timeout = 0 }, "timeout must be"},
		{"negative interval", func(c *Config) { c.Git.MinOpInterval = -time.Second }, "cannot be negative"},
		{"zero op cap", func(c *Config) { c.Git.MaxOpsPerMinute = 0 }, "must be > 0"},
		{"negative retries", func(c *Config) { c.Git.MaxRetries = -1 }, "cannot be negative"},
		{"bogus commit type", func(c *Config) {
			c.Conventional.TypeMapping["create_file"] = CommitType("zap")
		}, "unknown commit type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDefaultTypeMapping_NonCommittingTypes(t *testing.T) {
	mapping := DefaultTypeMapping()
	assert.Equal(t, CommitNone, mapping["branch"])
	assert.Equal(t, CommitNone, mapping["pull_request"])
	assert.Equal(t, CommitFeat, mapping["create_file"])
}
