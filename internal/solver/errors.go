package solver

import (
	"errors"
	"fmt"
)

var (
	// ErrSolverExecution indicates the solver could not be launched or did
	// not finish in time. It is fatal for a sweep.
	ErrSolverExecution = errors.New("solver: execution failed")

	// ErrOutputParse indicates a solver output file without a usable result
	// line. Sweeps recover from it by recording NaN for the cell.
	ErrOutputParse = errors.New("solver: unparseable output")

	// ErrTemplate indicates an input template referencing an unknown value.
	ErrTemplate = errors.New("solver: invalid input template")
)

// ExecError wraps an execution failure with the command and its stderr.
type ExecError struct {
	Path    string
	Stderr  string
	Wrapped error
}

func (e *ExecError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%v: %s: %v: %s", ErrSolverExecution, e.Path, e.Wrapped, e.Stderr)
	}
	return fmt.Sprintf("%v: %s: %v", ErrSolverExecution, e.Path, e.Wrapped)
}

func (e *ExecError) Unwrap() []error {
	return []error{ErrSolverExecution, e.Wrapped}
}
