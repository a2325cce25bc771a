// Package runner resolves which JS package manager owns a project and builds
// the argv arrays for its lint and test scripts. Detection looks at lock
// artifacts and verifies the binary actually exists before selecting it;
// commands are always argument arrays, never shell strings.
package runner

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Manager is a supported package manager.
type Manager string

const (
	ManagerNpm  Manager = "npm"
	ManagerYarn Manager = "yarn"
	ManagerPnpm Manager = "pnpm"
	ManagerBun  Manager = "bun"
)

// lockArtifacts maps lock files to managers, in detection priority order.
// pnpm and bun lock files are unambiguous; yarn.lock wins over a stray
// package-lock.json because yarn projects often carry both.
var lockArtifacts = []struct {
	file    string
	manager Manager
}{
	{"pnpm-lock.yaml", ManagerPnpm},
	{"bun.lockb", ManagerBun},
	{"bun.lock", ManagerBun},
	{"yarn.lock", ManagerYarn},
	{"package-lock.json", ManagerNpm},
}

// lookPath is swapped in tests.
var defaultLookPath = exec.LookPath

// Resolver detects the project's package manager and builds script
// invocations. The detection result is cached per instance, never in a
// process-wide global, so independent resolvers stay isolated.
type Resolver struct {
	dir      string
	lookPath func(string) (string, error)

	cached   Manager
	resolved bool
}

// NewResolver creates a resolver for the given project directory.
func NewResolver(dir string) *Resolver {
	return &Resolver{dir: dir, lookPath: defaultLookPath}
}

// Detect returns the package manager for the project, detecting and caching
// on first call. Detection falls back through the priority list when a lock
// file's manager is not installed, and defaults to npm.
func (r *Resolver) Detect() (Manager, error) {
	if r.resolved {
		return r.cached, nil
	}

	var firstErr error
	for _, candidate := range r.candidates() {
		if _, err := r.lookPath(string(candidate)); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s selected by lock file but not installed: %w", candidate, err)
			}
			continue
		}
		r.cached = candidate
		r.resolved = true
		return candidate, nil
	}

	if firstErr != nil {
		return "", fmt.Errorf("no usable package manager found in %s: %w", r.dir, firstErr)
	}
	return "", fmt.Errorf("no usable package manager found in %s", r.dir)
}

// candidates lists managers in preference order: lock-file matches first,
// then npm as the universal fallback.
func (r *Resolver) candidates() []Manager {
	var out []Manager
	seen := map[Manager]bool{}
	for _, artifact := range lockArtifacts {
		if _, err := os.Stat(filepath.Join(r.dir, artifact.file)); err == nil && !seen[artifact.manager] {
			out = append(out, artifact.manager)
			seen[artifact.manager] = true
		}
	}
	if !seen[ManagerNpm] {
		out = append(out, ManagerNpm)
	}
	return out
}

// LintCommand returns the argv for the project's lint script, or the
// override split into argv when one is configured.
func (r *Resolver) LintCommand(override string) ([]string, error) {
	return r.scriptCommand("lint", override)
}

// TestCommand returns the argv for the project's test script, or the
// override split into argv when one is configured.
func (r *Resolver) TestCommand(override string) ([]string, error) {
	return r.scriptCommand("test", override)
}

func (r *Resolver) scriptCommand(script, override string) ([]string, error) {
	if override != "" {
		argv := strings.Fields(override)
		if len(argv) == 0 {
			return nil, fmt.Errorf("override command for %s is blank", script)
		}
		return argv, nil
	}

	manager, err := r.Detect()
	if err != nil {
		return nil, err
	}

	switch manager {
	case ManagerYarn, ManagerPnpm:
		// yarn/pnpm run scripts directly.
		return []string{string(manager), script}, nil
	case ManagerNpm, ManagerBun:
		return []string{string(manager), "run", script}, nil
	default:
		return nil, fmt.Errorf("unknown package manager %q", manager)
	}
}
