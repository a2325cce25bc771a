package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/planexec/internal/config"
	"github.com/fyrsmithlabs/planexec/internal/engine"
	"github.com/fyrsmithlabs/planexec/internal/gitops"
	"github.com/fyrsmithlabs/planexec/internal/logging"
)

var (
	workDir      string
	assumeYes    bool
	strictMode   bool
	auditVerbose bool
)

var runCmd = &cobra.Command{
	Use:   "run <plan.yaml>",
	Short: "Execute a plan against the working tree",
	Long: `Execute every pending step of a plan. Progress is written back into the
plan file after each step, so an interrupted run resumes where it stopped:
completed steps are skipped, failed steps are retried.

Examples:
  # Execute a plan
  planexec run backend-domain-plan.yaml

  # Re-run without the dirty-tree prompt
  planexec run --yes backend-domain-plan.yaml

  # Abort on any plan validation error
  planexec run --strict backend-domain-plan.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	runCmd.Flags().StringVarP(&workDir, "dir", "C", ".", "project directory the plan's paths are relative to")
	runCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "answer every confirmation prompt affirmatively")
	runCmd.Flags().BoolVar(&strictMode, "strict", false, "abort when plan validation fails instead of warning")
	runCmd.Flags().BoolVar(&auditVerbose, "audit", false, "emit every audit entry to the log")
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, warning := config.Load(configPath)
	if strictMode {
		cfg.Commit.StrictValidation = true
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		return fail(err)
	}
	defer log.Sync()

	if warning != nil {
		log.Warn("using default configuration", zap.Error(warning))
	}

	git, err := gitops.Open(workDir, cfg.Git, nil, log)
	if err != nil {
		return fail(&engine.ExitError{Code: engine.ExitValidation, Err: err})
	}

	audit := engine.NewAuditLog(auditVerbose, log)
	eng, err := engine.New(engine.Options{
		WorkDir:   workDir,
		Config:    cfg,
		Logger:    log,
		Git:       git,
		Audit:     audit,
		Confirmer: &terminalConfirmer{},
		AssumeYes: assumeYes,
	})
	if err != nil {
		return fail(err)
	}

	eng.Start()
	defer eng.Stop()

	if err := eng.Run(context.Background(), args[0]); err != nil {
		return fail(err)
	}
	return nil
}

// newLogger builds the process logger from the file-level log section.
func newLogger(lc config.LogConfig) (*logging.Logger, error) {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}
	logCfg := logging.NewDefaultConfig()
	logCfg.Level = level
	if lc.Format != "" {
		logCfg.Format = lc.Format
	}
	if err := logCfg.Validate(); err != nil {
		return nil, err
	}
	return logging.NewLogger(logCfg)
}
