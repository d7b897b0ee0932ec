package testcase

import (
	"context"
	"runtime/debug"

	"github.com/grafana/browsermatrix/api"
)

// Case is a named test body run against one remote session.
// Run reports expectation failures with an *AssertionFailure; any other
// error marks the run as errored.
type Case interface {
	Name() string
	Run(ctx context.Context, s api.Session) error
}

type funcCase struct {
	name string
	fn   func(ctx context.Context, s api.Session) error
}

// Func returns a Case running fn.
func Func(name string, fn func(ctx context.Context, s api.Session) error) Case {
	return funcCase{name: name, fn: fn}
}

func (c funcCase) Name() string { return c.name }

func (c funcCase) Run(ctx context.Context, s api.Session) error { return c.fn(ctx, s) }

// Execute runs c against s, turning a panic into a *PanicError.
func Execute(ctx context.Context, c Case, s api.Session) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return c.Run(ctx, s)
}
