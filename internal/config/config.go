// Package config provides configuration loading for planexec.
//
// Configuration is optional. A missing or invalid file never aborts a run:
// the loader logs what went wrong and returns defaults, so the engine always
// starts with a usable, validated configuration.
package config

import (
	"fmt"
	"time"
)

// CommitType is a conventional-commit type ("feat", "refactor", ...).
// The empty string means "do not commit steps of this type".
type CommitType string

const (
	CommitFeat     CommitType = "feat"
	CommitFix      CommitType = "fix"
	CommitRefactor CommitType = "refactor"
	CommitChore    CommitType = "chore"
	CommitTest     CommitType = "test"
	CommitDocs     CommitType = "docs"
	CommitNone     CommitType = ""
)

// Config is the full planexec configuration. Loaded once at startup and
// never mutated during a run.
type Config struct {
	Commit       CommitConfig       `koanf:"commit"`
	Quality      QualityConfig      `koanf:"quality"`
	Conventional ConventionalConfig `koanf:"conventional"`
	Git          GitConfig          `koanf:"git"`
	Log          LogConfig          `koanf:"log"`
}

// CommitConfig controls per-step commit behavior and run safety.
type CommitConfig struct {
	// Enabled turns per-step commits on. When false, steps still mutate the
	// tree and run quality checks but nothing is committed.
	Enabled bool `koanf:"enabled"`

	// CoAuthor, when set, is appended as a Co-authored-by trailer.
	CoAuthor string `koanf:"co_author"`

	// InteractiveSafety asks for confirmation before running on a dirty
	// working tree. When false the engine proceeds after a grace delay.
	InteractiveSafety bool `koanf:"interactive_safety"`

	// StrictValidation aborts the run when plan pre-validation fails
	// instead of downgrading failures to warnings.
	StrictValidation bool `koanf:"strict_validation"`
}

// QualityConfig controls the lint/test gate.
type QualityConfig struct {
	Lint        bool          `koanf:"lint"`
	LintCommand string        `koanf:"lint_command"`
	Test        bool          `koanf:"test"`
	TestCommand string        `koanf:"test_command"`
	Timeout     time.Duration `koanf:"timeout"`
}

// ConventionalConfig controls conventional-commit message generation.
type ConventionalConfig struct {
	Enabled bool `koanf:"enabled"`

	// TypeMapping maps step types to commit types. An explicit empty value
	// means steps of that type are never committed.
	TypeMapping map[string]CommitType `koanf:"type_mapping"`
}

// GitConfig controls the version-control adapter's pacing and retries.
type GitConfig struct {
	// MinOpInterval is the minimum delay between mutating git operations.
	MinOpInterval time.Duration `koanf:"min_op_interval"`

	// MaxOpsPerMinute caps mutating git operations in a sliding window.
	MaxOpsPerMinute int `koanf:"max_ops_per_minute"`

	// MaxRetries bounds retry attempts for transient git failures.
	MaxRetries int `koanf:"max_retries"`
}

// LogConfig mirrors logging.Config at the file-format level.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the configuration used when no file is present or the
// file cannot be loaded.
func Default() *Config {
	return &Config{
		Commit: CommitConfig{
			Enabled:           true,
			InteractiveSafety: true,
		},
		Quality: QualityConfig{
			Lint:    true,
			Test:    true,
			Timeout: 5 * time.Minute,
		},
		Conventional: ConventionalConfig{
			Enabled:     true,
			TypeMapping: DefaultTypeMapping(),
		},
		Git: GitConfig{
			MinOpInterval:   500 * time.Millisecond,
			MaxOpsPerMinute: 30,
			MaxRetries:      3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultTypeMapping returns the built-in step-type to commit-type table.
// Branch and pull-request steps map to CommitNone: they are realized by
// validation scripts, never committed by the engine.
func DefaultTypeMapping() map[string]CommitType {
	return map[string]CommitType{
		"create_file":   CommitFeat,
		"refactor_file": CommitRefactor,
		"delete_file":   CommitChore,
		"folder":        CommitChore,
		"branch":        CommitNone,
		"pull_request":  CommitNone,
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Quality.Timeout <= 0 {
		return fmt.Errorf("quality timeout must be > 0, got %s", c.Quality.Timeout)
	}
	if c.Git.MinOpInterval < 0 {
		return fmt.Errorf("git min_op_interval cannot be negative: %s", c.Git.MinOpInterval)
	}
	if c.Git.MaxOpsPerMinute <= 0 {
		return fmt.Errorf("git max_ops_per_minute must be > 0, got %d", c.Git.MaxOpsPerMinute)
	}
	if c.Git.MaxRetries < 0 {
		return fmt.Errorf("git max_retries cannot be negative: %d", c.Git.MaxRetries)
	}
	for stepType, commitType := range c.Conventional.TypeMapping {
		switch commitType {
		case CommitFeat, CommitFix, CommitRefactor, CommitChore, CommitTest, CommitDocs, CommitNone:
		default:
			return fmt.Errorf("unknown commit type %q for step type %q", commitType, stepType)
		}
	}
	return nil
}
