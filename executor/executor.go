// Package executor runs test cases across an environment matrix in parallel.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/grafana/browsermatrix/api"
	"github.com/grafana/browsermatrix/env"
	"github.com/grafana/browsermatrix/log"
	"github.com/grafana/browsermatrix/otel"
	"github.com/grafana/browsermatrix/session"
	"github.com/grafana/browsermatrix/testcase"
)

// Defaults applied to zero Options fields.
const (
	DefaultConcurrency  = 4
	DefaultTaskTimeout  = 3 * time.Minute
	DefaultCloseTimeout = 30 * time.Second
)

// Options configures an Executor.
type Options struct {
	// Concurrency is the maximum number of tasks in flight.
	Concurrency int
	// TaskTimeout bounds opening the session plus running the case body.
	TaskTimeout time.Duration
	// CloseTimeout bounds reporting and closing a session after the case.
	CloseTimeout time.Duration
	// SessionRate, if set, limits how fast new sessions are requested.
	SessionRate *rate.Limiter
	// Register tracks open sessions. Defaults to the session package register.
	Register *session.Register
	// Tracer records a span per task.
	Tracer trace.Tracer
}

// Executor fans cases out over an environment matrix.
type Executor struct {
	provider api.Provider
	reporter api.Reporter
	opts     Options
	logger   *log.Logger
}

// New returns an Executor opening sessions with provider and reporting
// outcomes to reporter. A nil reporter discards reports.
func New(provider api.Provider, reporter api.Reporter, opts Options, logger *log.Logger) (*Executor, error) {
	if provider == nil {
		return nil, ErrNoProvider
	}
	if reporter == nil {
		reporter = api.NopReporter
	}
	if logger == nil {
		logger = log.NullLogger()
	}

	switch {
	case opts.Concurrency == 0:
		opts.Concurrency = DefaultConcurrency
	case opts.Concurrency < 0:
		return nil, fmt.Errorf("%w, got %d", ErrBadConcurrency, opts.Concurrency)
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = DefaultTaskTimeout
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = DefaultCloseTimeout
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.NewNoopTracerProvider().Tracer("")
	}

	return &Executor{
		provider: provider,
		reporter: reporter,
		opts:     opts,
		logger:   logger,
	}, nil
}

// Run executes every case against every spec of matrix and blocks until all
// tasks are done. Tasks are admitted in spec-major, case-minor order. A task
// failure never stops its siblings; Run only fails on setup errors.
func (e *Executor) Run(ctx context.Context, matrix *env.Matrix, cases []testcase.Case) (*Report, error) {
	if matrix == nil {
		return nil, ErrNoMatrix
	}
	specs := matrix.Enumerate()
	if err := checkUnique(specs, cases); err != nil {
		return nil, err
	}

	report := newReport(specs, cases, e.logger)
	e.logger.Infof("executor:run", "starting %d tasks (%d environments x %d cases), concurrency %d",
		len(specs)*len(cases), len(specs), len(cases), e.opts.Concurrency)

	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)
	for _, spec := range specs {
		for _, c := range cases {
			spec, c := spec, c
			g.Go(func() error {
				report.record(spec, c.Name(), e.runTask(ctx, matrix, spec, c))
				return nil
			})
		}
	}
	_ = g.Wait()

	counts := report.Counts()
	e.logger.Infof("executor:run", "finished: %d passed, %d failed, %d errored",
		counts.Passed, counts.Failed, counts.Errored)

	return report, nil
}

func checkUnique(specs []env.Spec, cases []testcase.Case) error {
	seenEnv := make(map[string]bool, len(specs))
	for _, s := range specs {
		if seenEnv[s.Key()] {
			return fmt.Errorf("%w: %q", ErrDuplicateEnv, s.Key())
		}
		seenEnv[s.Key()] = true
	}
	seenCase := make(map[string]bool, len(cases))
	for _, c := range cases {
		if seenCase[c.Name()] {
			return fmt.Errorf("%w: %q", ErrDuplicateCase, c.Name())
		}
		seenCase[c.Name()] = true
	}
	return nil
}

func (e *Executor) runTask(ctx context.Context, matrix *env.Matrix, spec env.Spec, c testcase.Case) testcase.Outcome {
	start := time.Now()
	ctx, span := e.opts.Tracer.Start(ctx, "task", trace.WithAttributes(
		attribute.String("environment", spec.Key()),
		attribute.String("case", c.Name()),
	))
	defer span.End()

	o := e.execute(ctx, matrix, spec, c)
	o.Duration = time.Since(start)

	span.SetAttributes(
		attribute.String("status", o.Status.String()),
		attribute.String("session.id", o.SessionID),
	)
	if !o.Passed() {
		span.SetStatus(codes.Error, o.Reason)
		e.logger.Warnf("executor:task", "env:%q case:%q sid:%q trace:%q %s: %s",
			spec.Key(), c.Name(), o.SessionID, otel.GetTraceID(span.SpanContext()), o.Status, o.Reason)
	} else {
		e.logger.Infof("executor:task", "env:%q case:%q sid:%q %s in %s",
			spec.Key(), c.Name(), o.SessionID, o.Status, o.Duration)
	}

	return o
}

func (e *Executor) execute(ctx context.Context, matrix *env.Matrix, spec env.Spec, c testcase.Case) testcase.Outcome {
	if err := matrix.Validate(spec); err != nil {
		return errored(err)
	}
	if ctx.Err() != nil {
		return errored(fmt.Errorf("%w: %v", errCanceledBeforeGo, ctx.Err()))
	}
	// Waiting for a rate token does not count against the task budget.
	if e.opts.SessionRate != nil {
		if err := e.opts.SessionRate.Wait(ctx); err != nil {
			return errored(&session.CreationError{Spec: spec, Cause: err})
		}
	}

	// One deadline covers opening the session and running the case.
	tctx, cancel := context.WithTimeout(ctx, e.opts.TaskTimeout)
	defer cancel()

	h, err := e.open(tctx, matrix, spec, c)
	if err != nil {
		if timedOut(ctx, tctx) {
			return errored(e.timeoutError(c))
		}
		return errored(err)
	}
	defer e.close(spec, h)

	o := e.runCase(ctx, tctx, c, h.Session())
	o.SessionID = h.ID()
	e.report(h.ID(), o)

	return o
}

// open requests a session in its own goroutine so that a provider ignoring
// its context can be abandoned once ctx is done. A session handed out after
// that is closed without running the case.
func (e *Executor) open(ctx context.Context, matrix *env.Matrix, spec env.Spec, c testcase.Case) (*session.Handle, error) {
	opts := []session.Option{
		session.WithMode(matrix.Mode()),
		session.WithLogger(e.logger),
	}
	if e.opts.Register != nil {
		opts = append(opts, session.WithRegister(e.opts.Register))
	}

	type result struct {
		h   *session.Handle
		err error
	}
	done := make(chan result, 1)
	go func() {
		h, err := session.Open(ctx, e.provider, spec, c.Name(), opts...)
		done <- result{h, err}
	}()

	select {
	case r := <-done:
		return r.h, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.h != nil {
				e.logger.Debugf("executor:open", "env:%q sid:%q arrived after the task ended", spec.Key(), r.h.ID())
				e.close(spec, r.h)
			}
		}()
		return nil, &session.CreationError{Spec: spec, Cause: ctx.Err()}
	}
}

func (e *Executor) close(spec env.Spec, h *session.Handle) {
	cctx, cancel := context.WithTimeout(context.Background(), e.opts.CloseTimeout)
	defer cancel()
	if err := h.Close(cctx); err != nil {
		e.logger.Errorf("executor:close", "env:%q sid:%q: %v", spec.Key(), h.ID(), err)
	}
}

// runCase runs the case body in its own goroutine so that a body ignoring
// its context can be abandoned once tctx, the task deadline, is done.
func (e *Executor) runCase(ctx, tctx context.Context, c testcase.Case, s api.Session) testcase.Outcome {
	done := make(chan error, 1)
	go func() {
		done <- testcase.Execute(tctx, c, s)
	}()

	select {
	case err := <-done:
		if err != nil && timedOut(ctx, tctx) {
			return errored(e.timeoutError(c))
		}
		return testcase.Classify(err)
	case <-tctx.Done():
		if err := ctx.Err(); err != nil {
			return errored(fmt.Errorf("task %q canceled: %w", c.Name(), err))
		}
		return errored(e.timeoutError(c))
	}
}

func (e *Executor) timeoutError(c testcase.Case) *TimeoutError {
	return &TimeoutError{Case: c.Name(), D: e.opts.TaskTimeout}
}

// timedOut reports whether tctx ended on its own deadline rather than on
// the cancellation of its parent ctx.
func timedOut(ctx, tctx context.Context) bool {
	return ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded)
}

func (e *Executor) report(sessionID string, o testcase.Outcome) {
	rctx, cancel := context.WithTimeout(context.Background(), e.opts.CloseTimeout)
	defer cancel()

	if err := e.reporter.Report(rctx, sessionID, o.Passed()); err != nil {
		e.logger.Errorf("executor:report", "sid:%q: %v", sessionID, err)
	}
}

func errored(err error) testcase.Outcome {
	return testcase.Outcome{Status: testcase.Errored, Reason: err.Error(), Err: err}
}
