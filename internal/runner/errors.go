package runner

import (
	"errors"
	"fmt"
)

// ExecutionError wraps errors with run context.
type ExecutionError struct {
	RunID string
	Op    string // The operation that failed
	Err   error
}

func (e *ExecutionError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("run %s: %s: %s", e.RunID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsExecutionError returns true if err is, or wraps, an *ExecutionError.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}
