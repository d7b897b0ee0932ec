package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/grafana/browsermatrix/api"
	"github.com/grafana/browsermatrix/env"
	"github.com/grafana/browsermatrix/log"
	"github.com/grafana/browsermatrix/session"
)

const (
	blankPage         = "about:blank"
	readyPollInterval = 100 * time.Millisecond
)

// ErrUnsupportedBrowser is returned for environments asking for a browser
// that does not speak CDP.
var ErrUnsupportedBrowser = errors.New("browser is not driven over CDP")

var _ api.Provider = &Provider{}

// Provider opens sessions as isolated browser contexts of a single
// Chromium instance.
type Provider struct {
	client *Client
	logger *log.Logger
}

// NewProvider returns a provider issuing commands through client.
func NewProvider(client *Client, logger *log.Logger) *Provider {
	if logger == nil {
		logger = log.NullLogger()
	}
	return &Provider{client: client, logger: logger}
}

// NewSession implements api.Provider. It creates a browser context and a
// blank page in it, then attaches to the page.
func (p *Provider) NewSession(ctx context.Context, caps api.Capabilities) (api.Session, error) {
	if name := strings.ToLower(caps[env.BrowserName]); name != "" && !isChromium(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBrowser, caps[env.BrowserName])
	}

	bctxID, err := p.client.Target.CreateBrowserContext(ctx, true)
	if err != nil {
		return nil, err
	}
	s := &Session{client: p.client, bctxID: bctxID, logger: p.logger}

	targetID, err := p.client.Target.CreateTarget(ctx, blankPage, bctxID)
	if err != nil {
		return nil, p.abandon(s, err)
	}
	if s.sessionID, err = p.client.Target.AttachToTarget(ctx, targetID); err != nil {
		return nil, p.abandon(s, err)
	}
	p.logger.Debugf("cdp:session", "bctx:%q sid:%q test:%q name:%q opened", bctxID, s.sessionID, session.GetTestName(ctx), caps[session.CapName])

	return s, nil
}

func (p *Provider) abandon(s *Session, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.client.Target.DisposeBrowserContext(ctx, s.bctxID); err != nil {
		p.logger.Warnf("cdp:session", "bctx:%q dispose after failed open: %v", s.bctxID, err)
	}
	return cause
}

func isChromium(name string) bool {
	switch name {
	case "chrome", "chromium", "microsoftedge", "msedge", "edge":
		return true
	}
	return false
}

var _ api.Session = &Session{}

// Session is a page attached in its own browser context.
type Session struct {
	client    *Client
	bctxID    string
	sessionID string
	logger    *log.Logger
}

// ID implements api.Session.
func (s *Session) ID() string { return s.sessionID }

func (s *Session) ctx(ctx context.Context) context.Context {
	return onTarget(ctx, s.sessionID)
}

// Navigate implements api.Session. It returns once the document finished
// loading.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if _, err := s.client.Page.Navigate(s.ctx(ctx), url); err != nil {
		return err
	}
	return s.waitReady(ctx)
}

func (s *Session) waitReady(ctx context.Context) error {
	t := time.NewTicker(readyPollInterval)
	defer t.Stop()
	for {
		var state string
		if err := s.eval(ctx, "document.readyState", &state); err != nil {
			return err
		}
		if state == "complete" {
			return nil
		}
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Title implements api.Session.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.eval(ctx, "document.title", &title); err != nil {
		return "", fmt.Errorf("reading title: %w", err)
	}
	return title, nil
}

// FindElementByName implements api.Session.
func (s *Session) FindElementByName(ctx context.Context, name string) (api.Element, error) {
	var found bool
	if err := s.eval(ctx, byName(name)+" !== undefined", &found); err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no element named %q", name)
	}
	return &element{s: s, name: name}, nil
}

// Quit implements api.Session. Disposing the browser context closes its
// pages.
func (s *Session) Quit(ctx context.Context) error {
	return s.client.Target.DisposeBrowserContext(ctx, s.bctxID)
}

func (s *Session) eval(ctx context.Context, expr string, v interface{}) error {
	raw, err := s.client.Runtime.Evaluate(s.ctx(ctx), expr)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return fmt.Errorf("expression %q returned no value", expr)
	}
	return json.Unmarshal(raw, v)
}

// byName returns an expression yielding the first element named name.
func byName(name string) string {
	q, _ := json.Marshal(name)
	return fmt.Sprintf("document.getElementsByName(%s)[0]", q)
}

type element struct {
	s    *Session
	name string
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	var focused bool
	if err := e.s.eval(ctx, fmt.Sprintf("(() => { const el = %s; if (!el) return false; el.focus(); return true })()",
		byName(e.name)), &focused); err != nil {
		return err
	}
	if !focused {
		return fmt.Errorf("element named %q is gone", e.name)
	}
	return e.s.client.Input.InsertText(e.s.ctx(ctx), text)
}

func (e *element) Submit(ctx context.Context) error {
	const submit = `(() => {
	const el = %s;
	if (!el || !el.form) return false;
	if (el.form.requestSubmit) { el.form.requestSubmit(); } else { el.form.submit(); }
	return true
})()`
	var ok bool
	if err := e.s.eval(ctx, fmt.Sprintf(submit, byName(e.name)), &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("element named %q is not in a form", e.name)
	}
	return nil
}
