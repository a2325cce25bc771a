package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// DefaultFileName is looked up in the working tree when no explicit
	// config path is given.
	DefaultFileName = ".planexec.yaml"

	maxConfigFileSize = 1024 * 1024 // 1MB

	envPrefix = "PLANEXEC_"
)

// Load reads configuration from a YAML file, then overrides with
// PLANEXEC_-prefixed environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (PLANEXEC_QUALITY_LINT_COMMAND, ...)
//  2. YAML config file (configPath, or .planexec.yaml if empty)
//  3. Defaults
//
// Load never fails on a missing, oversized, unparsable, or invalid file;
// it returns defaults plus a non-nil warning describing the fallback. The
// caller logs the warning. A non-nil error is returned only for programmer
// mistakes (nil receiver paths etc.), so callers can treat errors as bugs.
func Load(configPath string) (cfg *Config, warning error) {
	path := configPath
	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}

	k := koanf.New(".")

	content, readErr := readConfigFile(path)
	switch {
	case readErr != nil && !explicit && os.IsNotExist(readErr):
		// No config file is the normal case; not worth a warning.
	case readErr != nil:
		return Default(), fmt.Errorf("config file %s unusable, using defaults: %w", path, readErr)
	default:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return Default(), fmt.Errorf("config file %s failed to parse, using defaults: %w", path, err)
		}
	}

	// PLANEXEC_COMMIT_CO_AUTHOR -> commit.co_author
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		trimmed := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(trimmed, "_", 2)
		if len(parts) == 1 {
			return trimmed
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return Default(), fmt.Errorf("environment overrides failed, using defaults: %w", err)
	}

	loaded := Default()
	if err := k.Unmarshal("", loaded); err != nil {
		return Default(), fmt.Errorf("config unmarshal failed, using defaults: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return Default(), fmt.Errorf("config validation failed, using defaults: %w", err)
	}

	return loaded, nil
}

// readConfigFile opens and validates the config file through one file
// descriptor so size checks cannot race a concurrent replace.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}
