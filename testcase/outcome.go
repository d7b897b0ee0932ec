// Package testcase defines test bodies run against a remote session and the
// outcome they produce.
package testcase

import (
	"errors"
	"fmt"
	"time"
)

// Status is the terminal state of one test task.
type Status int

// Statuses.
const (
	Passed Status = iota
	Failed
	Errored
)

func (s Status) String() string {
	switch s {
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the result of running one case against one environment.
type Outcome struct {
	Status Status
	// Reason is a diagnostic message for Failed and Errored outcomes.
	Reason string
	// Err is the cause of a Failed or Errored outcome.
	Err error
	// SessionID is empty if no session could be opened.
	SessionID string
	Duration  time.Duration
}

// Passed reports whether the outcome is a pass.
func (o Outcome) Passed() bool { return o.Status == Passed }

// AssertionFailure is returned by a case when an expectation did not hold.
type AssertionFailure struct {
	Message string
}

func (e *AssertionFailure) Error() string { return e.Message }

// Failf returns an *AssertionFailure with a formatted message.
func Failf(format string, args ...interface{}) error {
	return &AssertionFailure{Message: fmt.Sprintf(format, args...)}
}

// PanicError wraps a panic raised by a case body.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Classify maps the error returned by a case body to an outcome:
// nil passes, an *AssertionFailure fails and anything else errors.
func Classify(err error) Outcome {
	if err == nil {
		return Outcome{Status: Passed}
	}
	var af *AssertionFailure
	if errors.As(err, &af) {
		return Outcome{Status: Failed, Reason: af.Message, Err: err}
	}
	return Outcome{Status: Errored, Reason: err.Error(), Err: err}
}
