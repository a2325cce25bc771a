package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/planexec/internal/engine"
	"github.com/fyrsmithlabs/planexec/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate <plan.yaml>",
	Short: "Check a plan without executing it",
	Long: `Validate the structure of a plan: step shapes, duplicate ids, patch
markers, and intent payloads. Nothing is executed and nothing is written.

Examples:
  # Validate a plan
  planexec validate backend-domain-plan.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	report, err := validate.NewStructural().ValidatePlan(args[0])
	if err != nil {
		return fail(&engine.ExitError{Code: engine.ExitValidation, Err: err})
	}

	out := cmd.OutOrStdout()
	if report.DetectedTarget != "" || report.DetectedLayer != "" {
		fmt.Fprintf(out, "detected: target=%s layer=%s\n", report.DetectedTarget, report.DetectedLayer)
	}
	for _, w := range report.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	for _, e := range report.Errors {
		fmt.Fprintf(os.Stderr, "error: %s\n", e)
	}

	if !report.Valid {
		return &engine.ExitError{
			Code: engine.ExitValidation,
			Err:  fmt.Errorf("plan failed validation with %d errors", len(report.Errors)),
		}
	}
	fmt.Fprintln(out, "plan is valid")
	return nil
}
