// Package plan holds the in-memory representation of a plan document and its
// persistence. The plan file is read in full at start and rewritten in full
// after every step, so an interrupted run can resume where it stopped.
package plan

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// StepType identifies the operation a step performs. The set is closed:
// unmarshaling rejects unknown values so a typo in a plan file fails at load
// time, not mid-run.
type StepType string

const (
	StepCreateFile   StepType = "create_file"
	StepRefactorFile StepType = "refactor_file"
	StepDeleteFile   StepType = "delete_file"
	StepFolder       StepType = "folder"
	StepBranch       StepType = "branch"
	StepPullRequest  StepType = "pull_request"
)

// AllStepTypes returns every valid step type.
func AllStepTypes() []StepType {
	return []StepType{
		StepCreateFile, StepRefactorFile, StepDeleteFile,
		StepFolder, StepBranch, StepPullRequest,
	}
}

// UnmarshalYAML implements yaml.Unmarshaler, rejecting unknown step types.
func (t *StepType) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	for _, known := range AllStepTypes() {
		if raw == string(known) {
			*t = known
			return nil
		}
	}
	return fmt.Errorf("unknown step type %q", raw)
}

// StepStatus tracks a step through its lifecycle. PENDING transitions only to
// SUCCESS or FAILED; SKIPPED is assigned only to already-completed steps on
// re-run.
type StepStatus string

const (
	StatusPending StepStatus = "PENDING"
	StatusSuccess StepStatus = "SUCCESS"
	StatusFailed  StepStatus = "FAILED"
	StatusSkipped StepStatus = "SKIPPED"
)

// Completed reports whether the status is terminal for resume purposes.
func (s StepStatus) Completed() bool {
	return s == StatusSuccess || s == StatusSkipped
}

// FolderAction describes directories to create for a folder step.
type FolderAction struct {
	CreateFolders []string `yaml:"create_folders,omitempty"`
	BasePath      string   `yaml:"base_path,omitempty"`
}

// BranchAction records a branch intent for an external validation script.
type BranchAction struct {
	Name string `yaml:"name,omitempty"`
}

// PullRequestAction records a pull-request intent for an external validation
// script.
type PullRequestAction struct {
	Title        string `yaml:"title,omitempty"`
	SourceBranch string `yaml:"source_branch,omitempty"`
	TargetBranch string `yaml:"target_branch,omitempty"`
}

// Action holds the type-specific payload of a step. Only the field matching
// the step type is ever set.
type Action struct {
	Folder      *FolderAction      `yaml:"folder,omitempty"`
	Branch      *BranchAction      `yaml:"branch,omitempty"`
	PullRequest *PullRequestAction `yaml:"pull_request,omitempty"`
}

// Step is one atomic operation in the plan.
type Step struct {
	ID               string     `yaml:"id"`
	Type             StepType   `yaml:"type"`
	Status           StepStatus `yaml:"status"`
	Score            *int       `yaml:"score"`
	ExecutionLog     string     `yaml:"execution_log,omitempty"`
	Path             string     `yaml:"path,omitempty"`
	Content          string     `yaml:"content,omitempty"`
	Action           *Action    `yaml:"action,omitempty"`
	ValidationScript string     `yaml:"validation_script,omitempty"`
}

// Resolve records the terminal status and score of a step. The score is set
// exactly once, at the moment the step resolves; Resolve refuses to touch an
// already-resolved step.
func (s *Step) Resolve(status StepStatus, score int, log string) error {
	if s.Status != StatusPending {
		return fmt.Errorf("step %s already resolved to %s", s.ID, s.Status)
	}
	if status != StatusSuccess && status != StatusFailed {
		return fmt.Errorf("step %s cannot transition PENDING -> %s", s.ID, status)
	}
	s.Status = status
	s.Score = &score
	s.ExecutionLog = log
	return nil
}

// Demote downgrades a SUCCESS step to FAILED when a later check rejects the
// work it produced. The score is rewritten to reflect the failure; this is
// the only sanctioned change to an already-resolved step.
func (s *Step) Demote(score int, log string) error {
	if s.Status != StatusSuccess {
		return fmt.Errorf("step %s is %s, only SUCCESS steps can be demoted", s.ID, s.Status)
	}
	s.Status = StatusFailed
	s.Score = &score
	if log != "" {
		s.ExecutionLog = log
	}
	return nil
}

// MarkSkipped marks an already-completed step as skipped on re-run.
func (s *Step) MarkSkipped() error {
	if s.Status != StatusSuccess && s.Status != StatusSkipped {
		return fmt.Errorf("step %s is %s, only completed steps can be skipped", s.ID, s.Status)
	}
	s.Status = StatusSkipped
	return nil
}

// Metadata describes the plan as a whole.
type Metadata struct {
	Layer             string `yaml:"layer,omitempty"`
	ProjectType       string `yaml:"project_type,omitempty"`
	ArchitectureStyle string `yaml:"architecture_style,omitempty"`
}

// Evaluation is the aggregate result written once all steps complete.
type Evaluation struct {
	FinalScore  float64    `yaml:"final_score"`
	FinalStatus StepStatus `yaml:"final_status"`
	CommitIDs   []string   `yaml:"commit_ids,omitempty"`
}

// Plan is the ordered document of steps the engine executes.
type Plan struct {
	Metadata   Metadata    `yaml:"metadata"`
	Steps      []*Step     `yaml:"steps"`
	Evaluation *Evaluation `yaml:"evaluation,omitempty"`

	// path is where the plan persists; set by Load.
	path string

	// partitioned remembers whether the document used layer sections, and
	// partition the per-layer step counts, so Save round-trips the shape.
	partitioned bool
	partition   map[string]int
}

// Path returns the backing file of the plan.
func (p *Plan) Path() string {
	return p.path
}

// Pending returns the steps that still need execution, in plan order.
func (p *Plan) Pending() []*Step {
	var pending []*Step
	for _, s := range p.Steps {
		if s.Status == StatusPending {
			pending = append(pending, s)
		}
	}
	return pending
}

// ResetFailed returns FAILED steps to PENDING so a re-run can retry them
// after manual intervention. Score and log from the failed attempt are
// cleared; the attempt's outcome lives in git history and the audit trail.
func (p *Plan) ResetFailed() int {
	reset := 0
	for _, s := range p.Steps {
		if s.Status == StatusFailed {
			s.Status = StatusPending
			s.Score = nil
			s.ExecutionLog = ""
			reset++
		}
	}
	return reset
}
