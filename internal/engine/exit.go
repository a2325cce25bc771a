package engine

import "fmt"

// Process exit codes. Each failure path carries a distinct code so callers
// can tell a validation abort from a failed step from a signal.
const (
	ExitOK         = 0
	ExitValidation = 2   // strict-mode validation abort or refused dirty tree
	ExitStepFailed = 3   // a step or its quality gate failed
	ExitInterrupt  = 130 // 128 + SIGINT
	ExitTerminated = 143 // 128 + SIGTERM
)

// ExitError carries the process exit code for a failed run.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("run failed (exit %d): %v", e.Code, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitErr(code int, err error) *ExitError {
	return &ExitError{Code: code, Err: err}
}
