package webdriver

import (
	"context"

	"github.com/pkg/errors"
	"github.com/tebeka/selenium"

	"github.com/grafana/browsermatrix/api"
	"github.com/grafana/browsermatrix/log"
)

var _ api.Session = &Session{}

// Session is a remote WebDriver session.
type Session struct {
	remote remote
	logger *log.Logger
}

// ID implements api.Session.
func (s *Session) ID() string { return s.remote.SessionID() }

// Navigate implements api.Session.
func (s *Session) Navigate(ctx context.Context, url string) error {
	return errors.Wrapf(do(ctx, func() error { return s.remote.Get(url) }), "navigating to %q", url)
}

// Title implements api.Session.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	err := do(ctx, func() (err error) {
		title, err = s.remote.Title()
		return err
	})
	if err != nil {
		return "", errors.Wrap(err, "reading title")
	}
	return title, nil
}

// FindElementByName implements api.Session.
func (s *Session) FindElementByName(ctx context.Context, name string) (api.Element, error) {
	var el element
	err := do(ctx, func() (err error) {
		el, err = s.remote.FindElement(selenium.ByName, name)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "finding element named %q", name)
	}
	return &webElement{el: el, name: name}, nil
}

// Quit implements api.Session.
func (s *Session) Quit(ctx context.Context) error {
	s.logger.Debugf("webdriver:session", "sid:%q quit", s.ID())
	return errors.Wrap(do(ctx, s.remote.Quit), "quitting session")
}

type webElement struct {
	el   element
	name string
}

func (e *webElement) SendKeys(ctx context.Context, text string) error {
	return errors.Wrapf(do(ctx, func() error { return e.el.SendKeys(text) }), "typing into %q", e.name)
}

func (e *webElement) Submit(ctx context.Context) error {
	return errors.Wrapf(do(ctx, e.el.Submit), "submitting %q", e.name)
}
