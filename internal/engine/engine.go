// Package engine executes a plan end to end: pre-validation, layer
// derivation, per-step mutation with layer enforcement, validation scripts,
// the quality gate, scoring, and per-step commit or rollback. The plan file
// is the single source of progress; it is rewritten after every step so an
// interrupted run resumes where it stopped.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/planexec/internal/commitmsg"
	"github.com/fyrsmithlabs/planexec/internal/config"
	"github.com/fyrsmithlabs/planexec/internal/gitops"
	"github.com/fyrsmithlabs/planexec/internal/layer"
	"github.com/fyrsmithlabs/planexec/internal/logging"
	"github.com/fyrsmithlabs/planexec/internal/plan"
	"github.com/fyrsmithlabs/planexec/internal/quality"
	"github.com/fyrsmithlabs/planexec/internal/runner"
	"github.com/fyrsmithlabs/planexec/internal/scoring"
	"github.com/fyrsmithlabs/planexec/internal/validate"
)

// dirtyGrace is how long a non-interactive run pauses before proceeding on
// a dirty working tree, giving an attended terminal a chance to abort.
const dirtyGrace = 3 * time.Second

// Confirmer asks the operator a yes/no question with a default answer. The
// CLI provides a terminal implementation; tests provide canned answers.
type Confirmer interface {
	Confirm(prompt string, def bool) (bool, error)
}

// Options configures an Engine. WorkDir is required; every other collaborator
// has a default.
type Options struct {
	// WorkDir is the project root the plan's paths are relative to.
	WorkDir string

	Config    *config.Config
	Logger    *logging.Logger
	Validator validate.Validator
	Git       *gitops.Client
	Gate      *quality.Gate
	Scorer    *scoring.Scorer
	Messages  *commitmsg.Generator
	Audit     *AuditLog
	Confirmer Confirmer

	// AssumeYes answers every confirmation prompt affirmatively.
	AssumeYes bool
}

// Engine runs plans. Construct with New; the zero value is not usable.
type Engine struct {
	cfg     *config.Config
	workDir string

	// baseLog is the logger as constructed; log is the per-run child with
	// the run id attached, rebuilt from baseLog on every Run.
	baseLog *logging.Logger
	log     *logging.Logger
	validator validate.Validator
	git       *gitops.Client
	gate      *quality.Gate
	scorer    *scoring.Scorer
	msgs      *commitmsg.Generator
	audit     *AuditLog
	confirmer Confirmer
	assumeYes bool

	signals   *SignalHandler
	commitIDs []string
}

// New wires an engine from options, filling in defaults for absent
// collaborators. The git client is mandatory: the engine refuses to run
// outside a repository because rollback depends on it.
func New(opts Options) (*Engine, error) {
	if opts.WorkDir == "" {
		return nil, fmt.Errorf("engine requires a working directory")
	}
	if opts.Git == nil {
		return nil, fmt.Errorf("engine requires a git client")
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	validator := opts.Validator
	if validator == nil {
		validator = validate.NewStructural()
	}
	gate := opts.Gate
	if gate == nil {
		gate = quality.NewGate(cfg.Quality, runner.NewResolver(opts.WorkDir), opts.WorkDir, log)
	}
	scorer := opts.Scorer
	if scorer == nil {
		scorer = scoring.NewScorer(nil)
	}
	msgs := opts.Messages
	if msgs == nil {
		msgs = commitmsg.NewGenerator(cfg.Conventional, cfg.Commit.CoAuthor)
	}
	audit := opts.Audit
	if audit == nil {
		audit = NewAuditLog(false, log)
	}

	return &Engine{
		cfg:       cfg,
		workDir:   opts.WorkDir,
		baseLog:   log.Named("engine"),
		log:       log.Named("engine"),
		validator: validator,
		git:       opts.Git,
		gate:      gate,
		scorer:    scorer,
		msgs:      msgs,
		audit:     audit,
		confirmer: opts.Confirmer,
		assumeYes: opts.AssumeYes,
	}, nil
}

// Audit exposes the engine's audit trail.
func (e *Engine) Audit() *AuditLog {
	return e.audit
}

// Start installs the process signal handlers. Construction has no side
// effects on global process state; an engine that is never started never
// touches signal registration.
func (e *Engine) Start() {
	if e.signals == nil {
		e.signals = NewSignalHandler(e.git, e.audit, e.log)
	}
	e.signals.Start()
}

// Stop releases the signal handlers installed by Start.
func (e *Engine) Stop() {
	if e.signals != nil {
		e.signals.Stop()
	}
}

// Run executes the plan at planPath. A nil return means every pending step
// succeeded; failures return an *ExitError carrying the process exit code.
func (e *Engine) Run(ctx context.Context, planPath string) error {
	runID := uuid.NewString()
	e.log = e.baseLog.With(zap.String("run_id", runID))
	e.audit.Record("run_started", map[string]string{
		"run_id": runID,
		"plan":   filepath.Base(planPath),
	})

	report, err := e.preValidate(planPath)
	if err != nil {
		return err
	}

	p, err := plan.Load(planPath)
	if err != nil {
		return exitErr(ExitValidation, fmt.Errorf("failed to load plan: %w", err))
	}

	info, err := layer.Derive(planPath, report.DetectedTarget, report.DetectedLayer, p.Metadata.Layer)
	if err != nil {
		return exitErr(ExitValidation, err)
	}
	e.log.Info("derived architectural context",
		zap.String("target", string(info.Target)),
		zap.String("layer", string(info.Layer)))

	if err := e.checkDirtyTree(ctx); err != nil {
		return err
	}

	e.prepareResume(p)

	pending := p.Pending()
	if len(pending) == 0 {
		e.log.Info("nothing to do, all steps already completed")
		return nil
	}
	e.log.Info("executing plan",
		zap.String("plan", filepath.Base(planPath)),
		zap.Int("pending", len(pending)),
		zap.Int("total", len(p.Steps)))

	for _, step := range pending {
		if err := ctx.Err(); err != nil {
			return exitErr(ExitInterrupt, fmt.Errorf("run canceled: %w", err))
		}
		if err := e.runStep(ctx, p, step, info); err != nil {
			// A failed run leaves no evaluation block; the failed step's
			// status and score are already persisted.
			return err
		}
	}

	e.finalize(p, info)
	return nil
}

// preValidate runs the plan validator. Shape failures abort only in strict
// mode; otherwise they are downgraded to warnings.
func (e *Engine) preValidate(planPath string) (*validate.Report, error) {
	report, err := e.validator.ValidatePlan(planPath)
	if err != nil {
		return nil, exitErr(ExitValidation, err)
	}

	for _, w := range report.Warnings {
		e.log.Warn("plan validation warning", zap.String("warning", w))
	}
	if !report.Valid {
		for _, msg := range report.Errors {
			e.log.Warn("plan validation error", zap.String("error", msg))
		}
		if e.cfg.Commit.StrictValidation {
			return nil, exitErr(ExitValidation,
				fmt.Errorf("plan failed validation with %d errors (strict mode)", len(report.Errors)))
		}
		e.log.Warn("continuing despite validation errors; enable strict_validation to abort instead")
	}
	return report, nil
}

// checkDirtyTree warns about uncommitted changes before the run mutates the
// tree. Interactive safety asks; otherwise a grace delay applies.
func (e *Engine) checkDirtyTree(ctx context.Context) error {
	dirty, err := e.git.IsDirty()
	if err != nil {
		return exitErr(ExitValidation, err)
	}
	if !dirty {
		return nil
	}

	e.log.Warn("working tree has uncommitted changes; step commits and rollbacks may mix with them")
	e.audit.Record("dirty_tree_detected", nil)

	if e.assumeYes {
		return nil
	}
	if e.cfg.Commit.InteractiveSafety && e.confirmer != nil {
		ok, err := e.confirmer.Confirm("Working tree is dirty. Continue anyway?", false)
		if err != nil {
			return exitErr(ExitValidation, fmt.Errorf("confirmation failed: %w", err))
		}
		if !ok {
			return exitErr(ExitValidation, fmt.Errorf("run refused on dirty working tree"))
		}
		return nil
	}

	e.log.Warn("proceeding on dirty tree shortly, interrupt to abort", zap.Duration("grace", dirtyGrace))
	select {
	case <-time.After(dirtyGrace):
		return nil
	case <-ctx.Done():
		return exitErr(ExitInterrupt, fmt.Errorf("aborted during dirty-tree grace period: %w", ctx.Err()))
	}
}

// prepareResume converts prior progress for a re-run: completed steps become
// SKIPPED, failed steps return to PENDING for another attempt.
func (e *Engine) prepareResume(p *plan.Plan) {
	skipped := 0
	for _, s := range p.Steps {
		if s.Status.Completed() {
			if err := s.MarkSkipped(); err == nil {
				skipped++
			}
		}
	}
	reset := p.ResetFailed()
	if skipped > 0 || reset > 0 {
		e.log.Info("resuming plan", zap.Int("skipped", skipped), zap.Int("retrying", reset))
		e.audit.Record("plan_resumed", map[string]string{
			"skipped":  fmt.Sprint(skipped),
			"retrying": fmt.Sprint(reset),
		})
	}
}

// runStep drives one step through its whole lifecycle. Any failure resolves
// the step FAILED, persists the plan, and aborts the run.
func (e *Engine) runStep(ctx context.Context, p *plan.Plan, step *plan.Step, info layer.Info) error {
	e.log.Info("step started", zap.String("step", step.ID), zap.String("type", string(step.Type)))
	e.audit.Record("step_started", map[string]string{
		"step": step.ID,
		"type": string(step.Type),
	})

	anchor, anchorErr := e.git.Head()
	if anchorErr != nil {
		// Without an anchor the step still runs, it just cannot be rolled
		// back automatically.
		e.log.Warn("could not record revision anchor, rollback disabled for this step",
			zap.String("step", step.ID), zap.Error(anchorErr))
	}

	// Layer rules run against the content before it reaches the tree, so a
	// violation costs nothing to undo.
	if content, ok := enforceableContent(step); ok {
		warnings, err := layer.Enforce(info.Layer, content)
		for _, w := range warnings {
			e.log.Warn("layer advisory",
				zap.String("step", step.ID),
				zap.String("rule", w.Rule),
				zap.String("detail", w.Detail))
		}
		if err != nil {
			e.audit.Record("layer_violation", map[string]string{
				"step":  step.ID,
				"layer": string(info.Layer),
			})
			return e.failStep(p, step, err)
		}
	}

	result, err := e.applyStep(step)
	if err != nil {
		return e.failStep(p, step, err)
	}
	output := result.output

	if step.ValidationScript != "" {
		scriptOut, scriptErr := e.runValidationScript(ctx, step)
		if scriptOut != "" {
			output += "\n" + scriptOut
		}
		if scriptErr != nil {
			if anchorErr == nil {
				e.rollback(ctx, anchor, e.effectiveChanges(result))
			}
			return e.failStepWithLog(p, step, scriptErr, output)
		}
	}

	// Folder and intent steps mutate the tree only through their validation
	// script; their change set is whatever tracked files it touched.
	touched := e.effectiveChanges(result)

	// rollbackPaths is empty when no anchor exists, turning rollback into
	// a no-op for this step.
	rollbackPaths := touched
	if anchorErr != nil {
		rollbackPaths = nil
	}

	score := e.scorer.Score(scoring.Outcome{Succeeded: true, Content: step.Content})
	if err := step.Resolve(plan.StatusSuccess, score, output); err != nil {
		return exitErr(ExitStepFailed, err)
	}
	e.persist(p)

	if len(touched) > 0 {
		if err := e.runGate(ctx, p, step, info, anchor, rollbackPaths, score); err != nil {
			return err
		}
		if err := e.commitStep(ctx, p, step, info, anchor, touched, rollbackPaths, score); err != nil {
			return err
		}
	}

	e.log.Info("step succeeded", zap.String("step", step.ID), zap.Int("score", score))
	e.audit.Record("step_succeeded", map[string]string{
		"step":  step.ID,
		"score": fmt.Sprint(score),
	})
	return nil
}

// effectiveChanges returns the files a step changed: the mutation's own
// paths, or for steps with no direct file mutation the tracked files its
// validation script modified.
func (e *Engine) effectiveChanges(result stepResult) []string {
	if len(result.touched) > 0 {
		return result.touched
	}
	changed, err := e.git.TrackedChanged()
	if err != nil {
		e.log.Warn("could not collect tracked changes", zap.Error(err))
		return nil
	}
	return changed
}

// runGate executes the quality checks for a step that touched the tree. A
// failed gate rolls the step's files back and demotes the step.
func (e *Engine) runGate(ctx context.Context, p *plan.Plan, step *plan.Step, info layer.Info, anchor string, rollbackPaths []string, successScore int) error {
	gateResult, err := e.gate.Run(ctx)
	if err != nil {
		e.rollback(ctx, anchor, rollbackPaths)
		return e.demoteStep(p, step, info, successScore, fmt.Sprintf("quality gate unavailable: %v", err))
	}
	if gateResult.OverallPassed {
		return nil
	}

	summary := gateResult.FailureSummary()
	e.log.Warn("quality gate failed, rolling back step",
		zap.String("step", step.ID))
	e.audit.Record("quality_gate_failed", map[string]string{
		"step": step.ID,
	})
	e.rollback(ctx, anchor, rollbackPaths)
	return e.demoteStep(p, step, info, successScore, summary)
}

// commitStep stages and commits the step's files when commits are enabled
// and the step type maps to a commit type.
func (e *Engine) commitStep(ctx context.Context, p *plan.Plan, step *plan.Step, info layer.Info, anchor string, touched, rollbackPaths []string, successScore int) error {
	if !e.cfg.Commit.Enabled {
		return nil
	}
	if _, ok := e.msgs.TypeFor(step.Type); !ok {
		return nil
	}

	message, err := e.msgs.Generate(step)
	if err != nil {
		e.rollback(ctx, anchor, rollbackPaths)
		return e.demoteStep(p, step, info, successScore, fmt.Sprintf("commit message generation failed: %v", err))
	}

	if err := e.git.Stage(ctx, touched); err != nil {
		e.rollback(ctx, anchor, rollbackPaths)
		return e.demoteStep(p, step, info, successScore, fmt.Sprintf("staging failed: %v", err))
	}

	revision, committed, err := e.git.Commit(ctx, message)
	if err != nil {
		e.rollback(ctx, anchor, rollbackPaths)
		return e.demoteStep(p, step, info, successScore, fmt.Sprintf("commit failed: %v", err))
	}
	if !committed {
		e.log.Debug("step produced no content changes, nothing committed", zap.String("step", step.ID))
		return nil
	}

	e.commitIDs = append(e.commitIDs, revision)
	e.log.Info("step committed", zap.String("step", step.ID), zap.String("revision", revision))
	e.audit.Record("step_committed", map[string]string{
		"step":     step.ID,
		"revision": revision,
	})
	return nil
}

// failStep resolves a still-pending step as FAILED, scoring its failure
// output, and aborts the run.
func (e *Engine) failStep(p *plan.Plan, step *plan.Step, cause error) error {
	return e.failStepWithLog(p, step, cause, cause.Error())
}

func (e *Engine) failStepWithLog(p *plan.Plan, step *plan.Step, cause error, log string) error {
	score := e.scorer.Score(scoring.Outcome{Succeeded: false, FailureOutput: cause.Error()})
	if err := step.Resolve(plan.StatusFailed, score, log); err != nil {
		e.log.Error("could not record step failure", zap.Error(err))
	}
	e.persist(p)

	e.log.Error("step failed",
		zap.String("step", step.ID),
		zap.Int("score", score),
		zap.Error(cause))
	e.audit.Record("step_failed", map[string]string{
		"step":  step.ID,
		"score": fmt.Sprint(score),
	})
	return exitErr(ExitStepFailed, fmt.Errorf("step %s failed: %w", step.ID, cause))
}

// demoteStep downgrades an already-persisted SUCCESS step after a post-hoc
// check rejected it, corrects the aggregate score, and aborts the run.
func (e *Engine) demoteStep(p *plan.Plan, step *plan.Step, info layer.Info, successScore int, summary string) error {
	if err := step.Demote(scoring.ScoreRuntimeError, summary); err != nil {
		e.log.Error("could not demote step", zap.Error(err))
	}
	e.scorer.Amend(successScore, scoring.ScoreRuntimeError)
	e.persist(p)

	e.audit.Record("step_demoted", map[string]string{
		"step":  step.ID,
		"layer": string(info.Layer),
	})
	return exitErr(ExitStepFailed, fmt.Errorf("step %s (%s layer) demoted: %s", step.ID, info.Layer, firstLine(summary)))
}

// rollback restores the tree after a failed step. Rollback failures are loud
// but do not mask the step failure that caused them.
func (e *Engine) rollback(ctx context.Context, anchor string, touched []string) {
	if len(touched) == 0 {
		return
	}
	e.audit.Record("rollback_started", map[string]string{
		"anchor": anchor,
		"files":  fmt.Sprint(len(touched)),
	})
	if err := e.git.Rollback(ctx, anchor, touched); err != nil {
		e.log.Error("rollback failed, working tree needs manual attention", zap.Error(err))
		e.audit.Record("rollback_failed", map[string]string{"anchor": anchor})
		return
	}
	e.audit.Record("rollback_completed", map[string]string{"anchor": anchor})
}

// finalize writes the aggregate evaluation into the plan. Only fully
// successful runs produce an evaluation block.
func (e *Engine) finalize(p *plan.Plan, info layer.Info) {
	final := e.scorer.Final(info.Layer)
	p.Evaluation = &plan.Evaluation{
		FinalScore:  final,
		FinalStatus: plan.StatusSuccess,
		CommitIDs:   append([]string(nil), e.commitIDs...),
	}
	e.persist(p)

	e.log.Info("plan evaluation",
		zap.Float64("final_score", final),
		zap.Int("commits", len(e.commitIDs)),
		zap.Int("scored_steps", e.scorer.Count()))
}

// persist saves the plan; persistence failures are loud but never abort a
// run on their own, the plan state still lives in memory and git history.
func (e *Engine) persist(p *plan.Plan) {
	if err := p.Save(); err != nil {
		e.log.Error("failed to persist plan", zap.Error(err))
	}
}

// enforceableContent returns the content layer rules should inspect: new
// file content for creations, the replacement block for refactors.
func enforceableContent(step *plan.Step) (string, bool) {
	switch step.Type {
	case plan.StepCreateFile:
		return step.Content, step.Content != ""
	case plan.StepRefactorFile:
		_, replace, err := parsePatch(step.ID, step.Content)
		if err != nil {
			// Malformed patches fail in applyStep with the right error.
			return "", false
		}
		return replace, replace != ""
	default:
		return "", false
	}
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
