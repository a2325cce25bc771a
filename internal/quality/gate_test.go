package quality

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/planexec/internal/config"
	"github.com/fyrsmithlabs/planexec/internal/logging"
	"github.com/fyrsmithlabs/planexec/internal/runner"
)

func gateConfig() config.QualityConfig {
	return config.QualityConfig{
		Lint:        true,
		LintCommand: "fake-lint",
		Test:        true,
		TestCommand: "fake-test",
		Timeout:     time.Minute,
	}
}

// newTestGate returns a gate whose command execution is stubbed per argv.
func newTestGate(t *testing.T, cfg config.QualityConfig, outputs map[string]string, fails map[string]bool) *Gate {
	t.Helper()
	g := NewGate(cfg, runner.NewResolver(t.TempDir()), t.TempDir(), logging.NewNop())
	g.runCommand = func(ctx context.Context, dir string, argv []string) (string, error) {
		key := argv[0]
		if fails[key] {
			return outputs[key], errors.New("exit status 1")
		}
		return outputs[key], nil
	}
	return g
}

func TestRun_AllPass(t *testing.T) {
	g := newTestGate(t, gateConfig(), map[string]string{
		"fake-lint": "clean",
		"fake-test": "12 passing",
	}, nil)

	result, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.OverallPassed)
	assert.True(t, result.Lint.Passed)
	assert.True(t, result.Test.Passed)
	assert.Empty(t, result.FailureSummary())
}

func TestRun_TestFailureNotMaskedByLintSuccess(t *testing.T) {
	g := newTestGate(t, gateConfig(), map[string]string{
		"fake-lint": "clean",
		"fake-test": "FAIL src/user.spec.ts\n  1 failing",
	}, map[string]bool{"fake-test": true})

	result, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.OverallPassed)
	assert.True(t, result.Lint.Passed)
	assert.False(t, result.Test.Passed)
	assert.Contains(t, result.FailureSummary(), "test failed")
	assert.Contains(t, result.FailureSummary(), "FAIL src/user.spec.ts")
}

func TestRun_LintFailureParsed(t *testing.T) {
	g := newTestGate(t, gateConfig(), map[string]string{
		"fake-lint": "src/app.ts\n  12:3  error  Missing semicolon  semi\n  14:1  warning  Unexpected console  no-console",
		"fake-test": "ok",
	}, map[string]bool{"fake-lint": true})

	result, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.OverallPassed)
	require.Len(t, result.Lint.Failures, 2)
	assert.Contains(t, result.Lint.Failures[0], "Missing semicolon")
}

func TestRun_DisabledChecksPassVacuously(t *testing.T) {
	cfg := gateConfig()
	cfg.Lint = false
	cfg.Test = false

	g := newTestGate(t, cfg, nil, nil)
	result, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.OverallPassed)
	assert.False(t, result.Lint.Ran)
	assert.False(t, result.Test.Ran)
}

func TestRun_BoundsFailureList(t *testing.T) {
	var out strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&out, "FAIL case %d\n", i)
	}

	g := newTestGate(t, gateConfig(), map[string]string{
		"fake-lint": "ok",
		"fake-test": out.String(),
	}, map[string]bool{"fake-test": true})

	result, err := g.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Test.Failures, maxFailures+1)
	assert.Contains(t, result.Test.Failures[maxFailures], "and 20 more")
}

func TestRun_UnparsableFailureKeepsErrorLine(t *testing.T) {
	g := newTestGate(t, gateConfig(), map[string]string{
		"fake-lint": "ok",
		"fake-test": "segmentation violation, no recognizable shape",
	}, map[string]bool{"fake-test": true})

	result, err := g.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Test.Failures, 1)
	assert.Equal(t, "exit status 1", result.Test.Failures[0])
}

func TestRun_ChecksRunConcurrently(t *testing.T) {
	g := NewGate(gateConfig(), runner.NewResolver(t.TempDir()), t.TempDir(), logging.NewNop())

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	g.runCommand = func(ctx context.Context, dir string, argv []string) (string, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(30 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return "ok", nil
	}

	_, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, maxInFlight)
}

func TestParseTestFailures(t *testing.T) {
	output := `
  ✓ creates a user
  ✕ rejects a duplicate email
  AssertionError: expected 409 to equal 200
  2 passing
  1 failing
`
	failures := parseTestFailures(output)
	require.Len(t, failures, 3)
	assert.Contains(t, failures[0], "rejects a duplicate email")
}
