/*
 *
 * browsermatrix - parallel cross-environment browser test runner
 * Copyright (C) 2021 Load Impact
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

// Package session manages the lifecycle of remote browser sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/grafana/browsermatrix/api"
	"github.com/grafana/browsermatrix/env"
	"github.com/grafana/browsermatrix/log"
)

// Handle states.
const (
	StateOpen int64 = iota
	StateClosing
	StateClosed
)

// ErrNoSession is the cause of a CreationError when the provider returns
// neither a session nor an error.
var ErrNoSession = errors.New("provider returned no session")

// CreationError reports that the provider could not open a session.
type CreationError struct {
	Spec  env.Spec
	Cause error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("creating session for %q: %v", e.Spec.Key(), e.Cause)
}

func (e *CreationError) Unwrap() error {
	return e.Cause
}

type options struct {
	mode     env.Mode
	modeSet  bool
	limiter  *rate.Limiter
	register *Register
	logger   *log.Logger
}

// Option configures Open.
type Option func(*options)

// WithMode sets the execution mode used to build the display name and the
// device defaults. Without it the mode is inferred from the presence of a
// deviceName attribute.
func WithMode(m env.Mode) Option {
	return func(o *options) {
		o.mode = m
		o.modeSet = true
	}
}

// WithRateLimit makes Open wait on l before contacting the provider.
func WithRateLimit(l *rate.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithRegister tracks the handle in r instead of the default register.
func WithRegister(r *Register) Option {
	return func(o *options) { o.register = r }
}

// WithLogger sets the logger of the handle.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Handle is an exclusively owned remote session tied to one spec.
type Handle struct {
	spec     env.Spec
	testName string
	caps     api.Capabilities
	sess     api.Session

	state int64

	register *Register
	logger   *log.Logger
}

// Open asks provider for a new session for testName running against spec.
// Any failure is returned as a *CreationError.
func Open(
	ctx context.Context, provider api.Provider, spec env.Spec, testName string, opts ...Option,
) (*Handle, error) {
	o := options{register: defaultRegister}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NullLogger()
	}
	if !o.modeSet && spec.Has(env.DeviceName) {
		o.mode = env.DeviceMode
	}

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, &CreationError{Spec: spec, Cause: err}
		}
	}

	caps := Capabilities(spec, testName, o.mode, GetRunID(ctx))
	o.logger.Debugf("session:open", "env:%q name:%q", spec.Key(), caps[CapName])

	sess, err := provider.NewSession(WithTestName(ctx, testName), caps)
	if err != nil {
		return nil, &CreationError{Spec: spec, Cause: err}
	}
	if sess == nil {
		return nil, &CreationError{Spec: spec, Cause: ErrNoSession}
	}

	h := &Handle{
		spec:     spec,
		testName: testName,
		caps:     caps,
		sess:     sess,
		state:    StateOpen,
		register: o.register,
		logger:   o.logger,
	}
	h.register.add(h)
	h.logger.Debugf("session:open", "sid:%q env:%q opened", sess.ID(), spec.Key())

	return h, nil
}

// ID returns the identifier the provider assigned to the session.
func (h *Handle) ID() string { return h.sess.ID() }

// Spec returns the environment the session runs in.
func (h *Handle) Spec() env.Spec { return h.spec }

// TestName returns the name of the test the session was opened for.
func (h *Handle) TestName() string { return h.testName }

// Capabilities returns a copy of the descriptor sent to the provider.
func (h *Handle) Capabilities() api.Capabilities {
	caps := make(api.Capabilities, len(h.caps))
	for k, v := range h.caps {
		caps[k] = v
	}
	return caps
}

// Session returns the interaction capability set of the remote session.
func (h *Handle) Session() api.Session { return h.sess }

// State returns the current lifecycle state.
func (h *Handle) State() int64 { return atomic.LoadInt64(&h.state) }

// Close ends the remote session. Only the first call contacts the provider;
// later calls are no-ops and return nil.
func (h *Handle) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt64(&h.state, StateOpen, StateClosing) {
		return nil
	}
	defer func() {
		atomic.StoreInt64(&h.state, StateClosed)
		h.register.remove(h)
	}()

	h.logger.Debugf("session:close", "sid:%q env:%q", h.ID(), h.spec.Key())
	if err := h.sess.Quit(ctx); err != nil {
		return fmt.Errorf("closing session %q: %w", h.ID(), err)
	}

	return nil
}
