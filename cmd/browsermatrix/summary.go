package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/grafana/browsermatrix/executor"
	"github.com/grafana/browsermatrix/testcase"
)

type summary struct {
	w io.Writer

	passed, failed, errored, faint *color.Color
}

func newSummary(w io.Writer, noColor bool) *summary {
	s := &summary{
		w:       w,
		passed:  color.New(color.FgGreen),
		failed:  color.New(color.FgRed),
		errored: color.New(color.FgYellow),
		faint:   color.New(color.Faint),
	}
	for _, c := range []*color.Color{s.passed, s.failed, s.errored, s.faint} {
		if noColor {
			c.DisableColor()
		} else {
			c.EnableColor()
		}
	}
	return s
}

func (s *summary) statusColor(st testcase.Status) *color.Color {
	switch st {
	case testcase.Passed:
		return s.passed
	case testcase.Failed:
		return s.failed
	default:
		return s.errored
	}
}

func statusMark(st testcase.Status) string {
	switch st {
	case testcase.Passed:
		return "✓"
	case testcase.Failed:
		return "✗"
	default:
		return "!"
	}
}

// print writes one line per task, in submission order, and the totals.
func (s *summary) print(r *executor.Report) {
	fmt.Fprintln(s.w)
	for _, e := range r.Entries() {
		c := s.statusColor(e.Outcome.Status)
		fmt.Fprintf(s.w, "  %s %-7s %s %s %s\n",
			c.Sprint(statusMark(e.Outcome.Status)),
			c.Sprint(e.Outcome.Status),
			e.Case,
			s.faint.Sprintf("on %s", e.Spec.Key()),
			s.faint.Sprintf("(%s)", e.Outcome.Duration.Round(time.Millisecond)),
		)
		if e.Outcome.Reason != "" {
			fmt.Fprintf(s.w, "      %s\n", c.Sprint(e.Outcome.Reason))
		}
	}

	counts := r.Counts()
	fmt.Fprintf(s.w, "\n  %s, %s, %s\n\n",
		s.passed.Sprintf("%d passed", counts.Passed),
		s.failed.Sprintf("%d failed", counts.Failed),
		s.errored.Sprintf("%d errored", counts.Errored),
	)
}
