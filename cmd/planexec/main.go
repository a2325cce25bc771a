// Package main implements the planexec CLI: declarative plan execution with
// quality gates, scoring, and per-step commits.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/planexec/internal/engine"
)

var (
	// configPath overrides the default config file lookup.
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitError *engine.ExitError
		if errors.As(err, &exitError) {
			os.Exit(exitError.Code)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "planexec",
	Short: "Execute declarative code-change plans with quality gates",
	Long: `planexec executes YAML plans of code-change steps against a git working
tree. Each step is validated against the target architectural layer, run
through the project's lint and test gate, scored, and committed with a
conventional commit message. Failed steps are rolled back to the revision
recorded when the step started.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default .planexec.yaml in the working directory)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}

// fail prints the error the way cobra would, then returns it for the exit
// code mapping in main.
func fail(err error) error {
	fmt.Fprintln(os.Stderr, "Error:", err)
	return err
}
