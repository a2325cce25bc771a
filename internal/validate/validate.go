// Package validate pre-flights a plan document before execution. The engine
// consumes the Validator interface as a black box; the structural validator
// here is the default implementation.
package validate

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/planexec/internal/layer"
	"github.com/fyrsmithlabs/planexec/internal/plan"
)

// Report is the validator verdict for a plan.
type Report struct {
	Valid    bool
	Errors   []string
	Warnings []string

	// DetectedTarget and DetectedLayer are hints for layer derivation,
	// empty when detection found nothing.
	DetectedTarget string
	DetectedLayer  string
}

// Validator checks a plan document before the engine touches the tree.
type Validator interface {
	ValidatePlan(path string) (*Report, error)
}

// Structural is the built-in validator: it loads the plan and checks the
// shape of every step without judging content.
type Structural struct{}

// NewStructural returns the default plan validator.
func NewStructural() *Structural {
	return &Structural{}
}

// ValidatePlan loads and checks the plan at path. The error return covers
// unreadable documents only; shape problems land in the report.
func (v *Structural) ValidatePlan(path string) (*Report, error) {
	p, err := plan.Load(path)
	if err != nil {
		return nil, fmt.Errorf("plan unreadable: %w", err)
	}

	report := &Report{Valid: true}
	v.detect(path, report)

	if len(p.Steps) == 0 {
		report.fail("plan has no steps")
	}

	seen := map[string]bool{}
	for _, s := range p.Steps {
		if seen[s.ID] {
			report.fail(fmt.Sprintf("duplicate step id %q", s.ID))
		}
		seen[s.ID] = true
		v.checkStep(s, report)
	}

	return report, nil
}

func (v *Structural) checkStep(s *plan.Step, report *Report) {
	switch s.Type {
	case plan.StepCreateFile:
		if s.Path == "" {
			report.fail(fmt.Sprintf("step %s: create_file needs a path", s.ID))
		}
		if s.Content == "" {
			report.warn(fmt.Sprintf("step %s: create_file with empty content", s.ID))
		}
	case plan.StepRefactorFile:
		if s.Path == "" {
			report.fail(fmt.Sprintf("step %s: refactor_file needs a path", s.ID))
		}
		if !strings.Contains(s.Content, "<<<FIND>>>") || !strings.Contains(s.Content, "<<<REPLACE>>>") {
			report.fail(fmt.Sprintf("step %s: refactor_file missing <<<FIND>>>/<<<REPLACE>>> markers", s.ID))
		}
	case plan.StepDeleteFile:
		if s.Path == "" {
			report.fail(fmt.Sprintf("step %s: delete_file needs a path", s.ID))
		}
	case plan.StepFolder:
		if s.Action == nil || s.Action.Folder == nil || len(s.Action.Folder.CreateFolders) == 0 {
			report.fail(fmt.Sprintf("step %s: folder step needs action.folder.create_folders", s.ID))
		}
	case plan.StepBranch:
		if s.Action == nil || s.Action.Branch == nil || s.Action.Branch.Name == "" {
			report.fail(fmt.Sprintf("step %s: branch step needs action.branch.name", s.ID))
		}
		if s.ValidationScript == "" {
			report.warn(fmt.Sprintf("step %s: branch intent has no validation_script to realize it", s.ID))
		}
	case plan.StepPullRequest:
		if s.Action == nil || s.Action.PullRequest == nil || s.Action.PullRequest.Title == "" {
			report.fail(fmt.Sprintf("step %s: pull_request step needs action.pull_request.title", s.ID))
		}
		if s.ValidationScript == "" {
			report.warn(fmt.Sprintf("step %s: pull_request intent has no validation_script to realize it", s.ID))
		}
	}
}

// detect extracts target/layer hints from the plan filename.
func (v *Structural) detect(path string, report *Report) {
	name := strings.ToLower(filepath.Base(path))
	for _, t := range []string{"fullstack", "frontend", "backend"} {
		if strings.Contains(name, t) {
			report.DetectedTarget = t
			break
		}
	}
	for _, l := range layer.AllLayers() {
		if strings.Contains(name, string(l)) {
			report.DetectedLayer = string(l)
			break
		}
	}
}

func (r *Report) fail(msg string) {
	r.Valid = false
	r.Errors = append(r.Errors, msg)
}

func (r *Report) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
