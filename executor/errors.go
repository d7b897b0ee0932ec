package executor

import (
	"errors"
	"fmt"
	"time"
)

// Setup errors returned by New and Run.
var (
	ErrNoProvider       = errors.New("a session provider is required")
	ErrNoMatrix         = errors.New("an environment matrix is required")
	ErrBadConcurrency   = errors.New("concurrency must be at least 1")
	ErrDuplicateCase    = errors.New("duplicate test case name")
	ErrDuplicateEnv     = errors.New("duplicate environment")
	errCanceledBeforeGo = errors.New("run canceled before the task started")
)

// TimeoutError is recorded when a case runs past its time budget.
type TimeoutError struct {
	Case string
	D    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %q timed out after %s", e.Case, e.D)
}

// Hint returns a hint message for the user.
func (e *TimeoutError) Hint() string {
	return "You can increase the time limit via the task-timeout option"
}
