// Package testutils provides instrumented collaborator doubles for tests.
package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grafana/browsermatrix/api"
)

var _ api.Provider = &Provider{}

// Provider is an in-memory api.Provider that counts session opens and
// closes and tracks how many sessions are open at the same time.
// Configure the exported fields before the first NewSession call.
type Provider struct {
	// Title is returned by Session.Title unless TitleFunc is set.
	Title     string
	TitleFunc func(s *Session) string
	// OpenErr decides whether opening a session with caps fails.
	OpenErr func(caps api.Capabilities) error
	// NavigateFunc runs on every Navigate call instead of the default delay.
	NavigateFunc func(ctx context.Context, s *Session, url string) error
	// Delay is how long Navigate blocks, bounded by its context.
	Delay   time.Duration
	QuitErr error

	mu         sync.Mutex
	seq        int
	opened     int
	closed     int
	current    int
	maxCurrent int
	quits      map[string]int
	sessions   []*Session
}

// NewSession implements api.Provider.
func (p *Provider) NewSession(ctx context.Context, caps api.Capabilities) (api.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.OpenErr != nil {
		if err := p.OpenErr(caps); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	p.opened++
	p.current++
	if p.current > p.maxCurrent {
		p.maxCurrent = p.current
	}
	if p.quits == nil {
		p.quits = make(map[string]int)
	}

	s := &Session{
		id:    fmt.Sprintf("session-%d", p.seq),
		caps:  caps,
		p:     p,
		typed: make(map[string]string),
	}
	p.sessions = append(p.sessions, s)

	return s, nil
}

// Opened returns how many sessions were opened.
func (p *Provider) Opened() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opened
}

// Closed returns how many Quit calls were received.
func (p *Provider) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// MaxConcurrent returns the highest number of simultaneously open sessions.
func (p *Provider) MaxConcurrent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxCurrent
}

// Quits returns how many times the session with id was closed.
func (p *Provider) Quits(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quits[id]
}

// Sessions returns the sessions opened so far, in opening order.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := make([]*Session, len(p.sessions))
	copy(s, p.sessions)
	return s
}

// SessionFor returns the first session whose capability name equals value.
func (p *Provider) SessionFor(name, value string) *Session {
	for _, s := range p.Sessions() {
		if s.caps[name] == value {
			return s
		}
	}
	return nil
}

func (p *Provider) quit(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed++
	if p.quits[id] == 0 {
		p.current--
	}
	p.quits[id]++

	return p.QuitErr
}

var _ api.Session = &Session{}

// Session is a session handed out by Provider. It records the interactions
// performed on it.
type Session struct {
	id   string
	caps api.Capabilities
	p    *Provider

	mu        sync.Mutex
	urls      []string
	typed     map[string]string
	submitted bool
}

// ID implements api.Session.
func (s *Session) ID() string { return s.id }

// Caps returns the capabilities the session was opened with.
func (s *Session) Caps() api.Capabilities { return s.caps }

// Navigate implements api.Session.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	s.urls = append(s.urls, url)
	s.mu.Unlock()

	if s.p.NavigateFunc != nil {
		return s.p.NavigateFunc(ctx, s, url)
	}
	if s.p.Delay <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(s.p.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Title implements api.Session.
func (s *Session) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.p.TitleFunc != nil {
		return s.p.TitleFunc(s), nil
	}
	return s.p.Title, nil
}

// FindElementByName implements api.Session.
func (s *Session) FindElementByName(ctx context.Context, name string) (api.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &element{s: s, name: name}, nil
}

// Quit implements api.Session.
func (s *Session) Quit(context.Context) error {
	return s.p.quit(s.id)
}

// URLs returns the URLs navigated to.
func (s *Session) URLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := make([]string, len(s.urls))
	copy(u, s.urls)
	return u
}

// Typed returns the text sent to the named element.
func (s *Session) Typed(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typed[name]
}

// Submitted reports whether a form was submitted.
func (s *Session) Submitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted
}

type element struct {
	s    *Session
	name string
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	e.s.typed[e.name] += text
	return ctx.Err()
}

func (e *element) Submit(ctx context.Context) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	e.s.submitted = true
	return ctx.Err()
}
