package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyrsmithlabs/planexec/internal/plan"
)

// Patch delimiters for refactor_file steps.
const (
	findMarker    = "<<<FIND>>>"
	replaceMarker = "<<<REPLACE>>>"
)

// scriptTimeout bounds validation-script execution.
const scriptTimeout = 2 * time.Minute

// stepResult is what a mutation handler reports back to the run loop.
type stepResult struct {
	// touched lists the working-tree paths the step wrote or removed,
	// primary path first. Used for staging and rollback.
	touched []string

	// output is the human-readable record of what happened, appended to
	// the step's execution log.
	output string
}

// applyStep dispatches on the step type and performs its mutation. The
// switch is exhaustive over plan.StepType; an unknown type cannot reach
// here because plan loading rejects it.
func (e *Engine) applyStep(step *plan.Step) (stepResult, error) {
	switch step.Type {
	case plan.StepCreateFile:
		return e.applyCreate(step)
	case plan.StepRefactorFile:
		return e.applyRefactor(step)
	case plan.StepDeleteFile:
		return e.applyDelete(step)
	case plan.StepFolder:
		return e.applyFolder(step)
	case plan.StepBranch:
		return e.applyBranchIntent(step)
	case plan.StepPullRequest:
		return e.applyPullRequestIntent(step)
	default:
		return stepResult{}, fmt.Errorf("malformed step %s: unhandled type %q", step.ID, step.Type)
	}
}

func (e *Engine) applyCreate(step *plan.Step) (stepResult, error) {
	if step.Path == "" {
		return stepResult{}, fmt.Errorf("malformed step %s: create_file without path", step.ID)
	}
	target := filepath.Join(e.workDir, step.Path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return stepResult{}, fmt.Errorf("failed to create parent directories for %s: %w", step.Path, err)
	}
	if err := os.WriteFile(target, []byte(step.Content), 0o644); err != nil {
		return stepResult{}, fmt.Errorf("failed to write %s: %w", step.Path, err)
	}
	return stepResult{
		touched: []string{step.Path},
		output:  fmt.Sprintf("created %s (%d bytes)", step.Path, len(step.Content)),
	}, nil
}

func (e *Engine) applyRefactor(step *plan.Step) (stepResult, error) {
	if step.Path == "" {
		return stepResult{}, fmt.Errorf("malformed step %s: refactor_file without path", step.ID)
	}
	find, replace, err := parsePatch(step.ID, step.Content)
	if err != nil {
		return stepResult{}, err
	}

	target := filepath.Join(e.workDir, step.Path)
	current, err := os.ReadFile(target)
	if err != nil {
		return stepResult{}, fmt.Errorf("refactor target %s unreadable: %w", step.Path, err)
	}
	if !bytes.Contains(current, []byte(find)) {
		return stepResult{}, fmt.Errorf("refactor step %s: FIND block not present in %s", step.ID, step.Path)
	}

	updated := bytes.Replace(current, []byte(find), []byte(replace), 1)
	if err := os.WriteFile(target, updated, 0o644); err != nil {
		return stepResult{}, fmt.Errorf("failed to write %s: %w", step.Path, err)
	}
	return stepResult{
		touched: []string{step.Path},
		output:  fmt.Sprintf("patched %s (%d -> %d bytes)", step.Path, len(current), len(updated)),
	}, nil
}

func (e *Engine) applyDelete(step *plan.Step) (stepResult, error) {
	if step.Path == "" {
		return stepResult{}, fmt.Errorf("malformed step %s: delete_file without path", step.ID)
	}
	target := filepath.Join(e.workDir, step.Path)
	if err := os.Remove(target); err != nil {
		if os.IsNotExist(err) {
			// Already absent is an expected idempotent condition.
			return stepResult{output: fmt.Sprintf("%s already absent", step.Path)}, nil
		}
		return stepResult{}, fmt.Errorf("failed to delete %s: %w", step.Path, err)
	}
	return stepResult{
		touched: []string{step.Path},
		output:  fmt.Sprintf("deleted %s", step.Path),
	}, nil
}

func (e *Engine) applyFolder(step *plan.Step) (stepResult, error) {
	if step.Action == nil || step.Action.Folder == nil || len(step.Action.Folder.CreateFolders) == 0 {
		return stepResult{}, fmt.Errorf("malformed step %s: folder step without action.folder.create_folders", step.ID)
	}
	action := step.Action.Folder
	created := make([]string, 0, len(action.CreateFolders))
	for _, folder := range action.CreateFolders {
		rel := folder
		if action.BasePath != "" {
			rel = filepath.Join(action.BasePath, folder)
		}
		if err := os.MkdirAll(filepath.Join(e.workDir, rel), 0o755); err != nil {
			return stepResult{}, fmt.Errorf("failed to create %s: %w", rel, err)
		}
		created = append(created, rel)
	}
	// Directories are not tracked by git; nothing to stage or roll back.
	return stepResult{
		output: fmt.Sprintf("created directories: %s", strings.Join(created, ", ")),
	}, nil
}

// applyBranchIntent records the branch intent; the step's validation script
// is what realizes it, the engine never mutates refs for it.
func (e *Engine) applyBranchIntent(step *plan.Step) (stepResult, error) {
	if step.Action == nil || step.Action.Branch == nil || step.Action.Branch.Name == "" {
		return stepResult{}, fmt.Errorf("malformed step %s: branch step without action.branch.name", step.ID)
	}
	return stepResult{
		output: fmt.Sprintf("recorded branch intent %q", step.Action.Branch.Name),
	}, nil
}

func (e *Engine) applyPullRequestIntent(step *plan.Step) (stepResult, error) {
	if step.Action == nil || step.Action.PullRequest == nil || step.Action.PullRequest.Title == "" {
		return stepResult{}, fmt.Errorf("malformed step %s: pull_request step without action.pull_request.title", step.ID)
	}
	pr := step.Action.PullRequest
	return stepResult{
		output: fmt.Sprintf("recorded pull-request intent %q (%s -> %s)", pr.Title, pr.SourceBranch, pr.TargetBranch),
	}, nil
}

// parsePatch splits refactor content into its FIND and REPLACE blocks.
// Missing markers are a structural format violation.
func parsePatch(stepID, content string) (find, replace string, err error) {
	findIdx := strings.Index(content, findMarker)
	replaceIdx := strings.Index(content, replaceMarker)
	if findIdx < 0 || replaceIdx < 0 || replaceIdx < findIdx {
		return "", "", fmt.Errorf("refactor step %s missing %s/%s markers", stepID, findMarker, replaceMarker)
	}

	find = strings.TrimPrefix(content[findIdx+len(findMarker):replaceIdx], "\n")
	find = strings.TrimSuffix(find, "\n")
	replace = strings.TrimPrefix(content[replaceIdx+len(replaceMarker):], "\n")
	replace = strings.TrimSuffix(replace, "\n")

	if strings.TrimSpace(find) == "" {
		return "", "", fmt.Errorf("refactor step %s has an empty FIND block", stepID)
	}
	return find, replace, nil
}

// runValidationScript executes a step's validation script from an isolated
// temporary file and returns its combined output. The script runs with the
// working tree as cwd and a fixed timeout.
func (e *Engine) runValidationScript(ctx context.Context, step *plan.Step) (string, error) {
	e.audit.Record("script_validation", map[string]string{
		"step": step.ID,
	})

	f, err := os.CreateTemp("", "planexec-script-*.sh")
	if err != nil {
		return "", fmt.Errorf("failed to create script file: %w", err)
	}
	scriptPath := f.Name()
	defer os.Remove(scriptPath)

	if _, err := f.WriteString(step.ValidationScript); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write script file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close script file: %w", err)
	}
	if err := os.Chmod(scriptPath, 0o700); err != nil {
		return "", fmt.Errorf("failed to mark script executable: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, scriptTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", scriptPath)
	cmd.Dir = e.workDir

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	runErr := cmd.Run()
	output := buf.String()
	if runErr != nil {
		return output, fmt.Errorf("validation script for step %s failed: %w", step.ID, runErr)
	}
	return output, nil
}
