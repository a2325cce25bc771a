// Package quality runs the lint and test gate for a step. Both checks run
// concurrently to shorten wall-clock time; the merge is deterministic, so a
// failing test can never be masked by a passing lint.
package quality

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/planexec/internal/config"
	"github.com/fyrsmithlabs/planexec/internal/logging"
	"github.com/fyrsmithlabs/planexec/internal/runner"
)

// maxFailures bounds the parsed failure list per check; tool output beyond
// that is summarized, not enumerated.
const maxFailures = 20

// CheckResult is the outcome of a single tool run.
type CheckResult struct {
	Name     string
	Ran      bool
	Passed   bool
	Failures []string
	Output   string
}

// Result is the merged gate verdict for one step.
type Result struct {
	Lint          CheckResult
	Test          CheckResult
	OverallPassed bool
}

// FailureSummary flattens the parsed failures into one human-readable block.
func (r Result) FailureSummary() string {
	var b strings.Builder
	for _, check := range []CheckResult{r.Lint, r.Test} {
		if !check.Ran || check.Passed {
			continue
		}
		fmt.Fprintf(&b, "%s failed:\n", check.Name)
		for _, f := range check.Failures {
			fmt.Fprintf(&b, "  - %s\n", f)
		}
	}
	return b.String()
}

// Gate runs the configured quality checks against the project.
type Gate struct {
	cfg      config.QualityConfig
	resolver *runner.Resolver
	dir      string
	log      *logging.Logger

	// runCommand is swapped in tests.
	runCommand func(ctx context.Context, dir string, argv []string) (string, error)
}

// NewGate creates a gate for the project at dir.
func NewGate(cfg config.QualityConfig, resolver *runner.Resolver, dir string, log *logging.Logger) *Gate {
	if log == nil {
		log = logging.NewNop()
	}
	return &Gate{
		cfg:        cfg,
		resolver:   resolver,
		dir:        dir,
		log:        log.Named("quality"),
		runCommand: runCommand,
	}
}

// Run executes lint and test concurrently and merges their results.
// Disabled checks pass vacuously. The error return covers gate plumbing
// (command resolution), not tool failures; those land in the Result.
func (g *Gate) Run(ctx context.Context) (Result, error) {
	lintArgv, testArgv, err := g.commands()
	if err != nil {
		return Result{}, err
	}

	var wg sync.WaitGroup
	var lint, test CheckResult

	if g.cfg.Lint {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lint = g.check(ctx, "lint", lintArgv, parseLintFailures)
		}()
	}
	if g.cfg.Test {
		wg.Add(1)
		go func() {
			defer wg.Done()
			test = g.check(ctx, "test", testArgv, parseTestFailures)
		}()
	}
	wg.Wait()

	result := Result{Lint: lint, Test: test}
	result.OverallPassed = (!lint.Ran || lint.Passed) && (!test.Ran || test.Passed)
	return result, nil
}

func (g *Gate) commands() (lint, test []string, err error) {
	if g.cfg.Lint {
		lint, err = g.resolver.LintCommand(g.cfg.LintCommand)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot resolve lint command: %w", err)
		}
	}
	if g.cfg.Test {
		test, err = g.resolver.TestCommand(g.cfg.TestCommand)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot resolve test command: %w", err)
		}
	}
	return lint, test, nil
}

func (g *Gate) check(ctx context.Context, name string, argv []string, parse func(string) []string) CheckResult {
	timeout := g.cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	output, err := g.runCommand(ctx, g.dir, argv)
	elapsed := time.Since(started)

	if err == nil {
		g.log.Debug("check passed", zap.String("check", name), zap.Duration("elapsed", elapsed))
		return CheckResult{Name: name, Ran: true, Passed: true, Output: output}
	}

	failures := parse(output)
	if len(failures) == 0 {
		failures = []string{firstLine(err.Error())}
	}
	if ctx.Err() == context.DeadlineExceeded {
		failures = append([]string{fmt.Sprintf("%s timed out after %s", name, timeout)}, failures...)
	}
	if len(failures) > maxFailures {
		rest := len(failures) - maxFailures
		failures = append(failures[:maxFailures], fmt.Sprintf("... and %d more", rest))
	}

	g.log.Warn("check failed",
		zap.String("check", name),
		zap.Duration("elapsed", elapsed),
		zap.Int("failures", len(failures)))
	return CheckResult{Name: name, Ran: true, Passed: false, Failures: failures, Output: output}
}

// runCommand executes an argv in dir and returns combined output.
func runCommand(ctx context.Context, dir string, argv []string) (string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	return buf.String(), err
}

// parseLintFailures extracts rule-violation lines from linter output.
// Recognizes the common "file:line:col message" and eslint's indented
// "line:col severity message rule" shapes.
func parseLintFailures(output string) []string {
	var failures []string
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if looksLikeLintFinding(trimmed) {
			failures = append(failures, trimmed)
		}
	}
	return failures
}

func looksLikeLintFinding(line string) bool {
	if strings.Contains(line, "error") || strings.Contains(line, "warning") {
		// "12:3  error  Missing semicolon  semi" or "src/a.ts:12:3: error ..."
		return strings.ContainsAny(line, ":")
	}
	return false
}

// parseTestFailures extracts failing-test lines from runner output.
func parseTestFailures(output string) []string {
	var failures []string
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		switch {
		case strings.HasPrefix(lower, "fail"),
			strings.HasPrefix(trimmed, "✕"), strings.HasPrefix(trimmed, "✗"),
			strings.Contains(lower, "failing"),
			strings.Contains(lower, "assertionerror"),
			strings.HasPrefix(lower, "expected"):
			failures = append(failures, trimmed)
		}
	}
	return failures
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
