package runner

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLookPath reports only the listed binaries as installed.
func fakeLookPath(installed ...string) func(string) (string, error) {
	set := map[string]bool{}
	for _, name := range installed {
		set[name] = true
	}
	return func(name string) (string, error) {
		if set[name] {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("executable file not found in $PATH")
	}
}

func projectWith(t *testing.T, lockFiles ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range lockFiles {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("{}"), 0o644))
	}
	return dir
}

func TestDetect_ByLockFile(t *testing.T) {
	tests := []struct {
		name  string
		locks []string
		want  Manager
	}{
		{"pnpm", []string{"pnpm-lock.yaml"}, ManagerPnpm},
		{"yarn", []string{"yarn.lock"}, ManagerYarn},
		{"bun binary lock", []string{"bun.lockb"}, ManagerBun},
		{"bun text lock", []string{"bun.lock"}, ManagerBun},
		{"npm", []string{"package-lock.json"}, ManagerNpm},
		{"yarn beats npm lock", []string{"yarn.lock", "package-lock.json"}, ManagerYarn},
		{"no lock defaults to npm", nil, ManagerNpm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(projectWith(t, tt.locks...))
			r.lookPath = fakeLookPath("npm", "yarn", "pnpm", "bun")

			got, err := r.Detect()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetect_FallsBackWhenBinaryMissing(t *testing.T) {
	r := NewResolver(projectWith(t, "pnpm-lock.yaml"))
	r.lookPath = fakeLookPath("npm") // pnpm lock present but pnpm not installed

	got, err := r.Detect()
	require.NoError(t, err)
	assert.Equal(t, ManagerNpm, got)
}

func TestDetect_NothingInstalled(t *testing.T) {
	r := NewResolver(projectWith(t, "yarn.lock"))
	r.lookPath = fakeLookPath()

	_, err := r.Detect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable package manager")
	assert.Contains(t, err.Error(), "yarn selected by lock file")
}

func TestDetect_CachesResult(t *testing.T) {
	dir := projectWith(t, "yarn.lock")
	r := NewResolver(dir)
	r.lookPath = fakeLookPath("yarn")

	first, err := r.Detect()
	require.NoError(t, err)

	// Removing the lock file after detection must not change the answer.
	require.NoError(t, os.Remove(filepath.Join(dir, "yarn.lock")))
	r.lookPath = fakeLookPath() // and neither does PATH churn

	second, err := r.Detect()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestScriptCommands_PerManager(t *testing.T) {
	tests := []struct {
		locks    []string
		binaries []string
		wantLint []string
		wantTest []string
	}{
		{[]string{"package-lock.json"}, []string{"npm"}, []string{"npm", "run", "lint"}, []string{"npm", "run", "test"}},
		{[]string{"yarn.lock"}, []string{"yarn"}, []string{"yarn", "lint"}, []string{"yarn", "test"}},
		{[]string{"pnpm-lock.yaml"}, []string{"pnpm"}, []string{"pnpm", "lint"}, []string{"pnpm", "test"}},
		{[]string{"bun.lockb"}, []string{"bun"}, []string{"bun", "run", "lint"}, []string{"bun", "run", "test"}},
	}

	for _, tt := range tests {
		r := NewResolver(projectWith(t, tt.locks...))
		r.lookPath = fakeLookPath(tt.binaries...)

		lint, err := r.LintCommand("")
		require.NoError(t, err)
		assert.Equal(t, tt.wantLint, lint)

		test, err := r.TestCommand("")
		require.NoError(t, err)
		assert.Equal(t, tt.wantTest, test)
	}
}

func TestScriptCommands_Override(t *testing.T) {
	r := NewResolver(t.TempDir())
	r.lookPath = fakeLookPath() // override must not need detection

	lint, err := r.LintCommand("npx eslint src --max-warnings 0")
	require.NoError(t, err)
	assert.Equal(t, []string{"npx", "eslint", "src", "--max-warnings", "0"}, lint)

	_, err = r.TestCommand("   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blank")
}
